package domain

import (
	"errors"
	"math"
	"time"

	"github.com/google/uuid"
)

const (
	StatusPending    = "pending"
	StatusPlanned    = "planned"
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
)

const DefaultTimeline = "1 month"

var ErrNoPendingTasks = errors.New("no pending tasks")

type Task struct {
	Name   string `json:"name"`
	Status string `json:"status"`
}

type Phase struct {
	Name     string `json:"name"`
	Duration string `json:"duration"`
	Status   string `json:"status"`
	Tasks    []Task `json:"tasks"`
}

func (p Phase) done() bool {
	for _, t := range p.Tasks {
		if t.Status != StatusCompleted {
			return false
		}
	}
	return true
}

// Project is a plan made of ordered phases. Goals, phases and resources are
// append-only; task progress moves forward one task at a time.
type Project struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	Description    string    `json:"description"`
	Timeline       string    `json:"timeline"`
	Goals          []string  `json:"goals"`
	Phases         []Phase   `json:"phases"`
	Resources      []string  `json:"resources"`
	Status         string    `json:"status"`
	CompletedTasks int       `json:"completed_tasks"`
	TotalTasks     int       `json:"total_tasks"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func NewProject(name, description string) *Project {
	now := time.Now().UTC()
	return &Project{
		ID:          "proj_" + uuid.NewString(),
		Name:        name,
		Description: description,
		Timeline:    DefaultTimeline,
		Goals:       []string{},
		Phases:      []Phase{},
		Resources:   []string{},
		Status:      StatusPlanned,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func (p *Project) touch() { p.UpdatedAt = time.Now().UTC() }

func (p *Project) AddGoal(goal string) {
	p.Goals = append(p.Goals, goal)
	p.touch()
}

func (p *Project) AddResource(resource string) {
	p.Resources = append(p.Resources, resource)
	p.touch()
}

// AddPhase appends a phase and recounts tasks. Tasks without a status
// start pending.
func (p *Project) AddPhase(phase Phase) {
	tasks := make([]Task, len(phase.Tasks))
	copy(tasks, phase.Tasks)
	for i := range tasks {
		if tasks[i].Status == "" {
			tasks[i].Status = StatusPending
		}
	}
	phase.Tasks = tasks
	if phase.Status == "" {
		phase.Status = StatusPending
	}
	if len(tasks) > 0 && phase.done() {
		phase.Status = StatusCompleted
	}
	p.Phases = append(p.Phases, phase)
	p.recount()
	p.touch()
}

func (p *Project) recount() {
	total, completed := 0, 0
	for _, ph := range p.Phases {
		for _, t := range ph.Tasks {
			total++
			if t.Status == StatusCompleted {
				completed++
			}
		}
	}
	p.TotalTasks = total
	p.CompletedTasks = completed
}

func (p *Project) UpdateStatus(status string) {
	p.Status = status
	p.touch()
}

// CompleteTask marks the first pending task, in phase order, as done and
// returns its name. A phase whose tasks are all done is completed, and the
// project is completed with its last task.
func (p *Project) CompleteTask() (string, error) {
	for i := range p.Phases {
		phase := &p.Phases[i]
		for j := range phase.Tasks {
			if phase.Tasks[j].Status == StatusCompleted {
				continue
			}
			phase.Tasks[j].Status = StatusCompleted
			if phase.done() {
				phase.Status = StatusCompleted
			} else {
				phase.Status = StatusInProgress
			}
			p.recount()
			if p.CompletedTasks == p.TotalTasks {
				p.Status = StatusCompleted
			} else {
				p.Status = StatusInProgress
			}
			p.touch()
			return phase.Tasks[j].Name, nil
		}
	}
	return "", ErrNoPendingTasks
}

// Progress returns the share of completed tasks as a whole percentage.
func (p *Project) Progress() int {
	if p.TotalTasks == 0 {
		return 0
	}
	pct := int(math.Round(float64(p.CompletedTasks) / float64(p.TotalTasks) * 100))
	return min(pct, 100)
}

func (p *Project) NextMilestone() string {
	for _, ph := range p.Phases {
		if ph.Status != StatusCompleted {
			return ph.Name
		}
	}
	return "Project completed"
}
