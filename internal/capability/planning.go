package capability

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/Organized-AI/DWY-Tool-Calling-LLM-Agent/internal/domain"
)

var demoPhases = []domain.Phase{
	{Name: "Planning & Setup", Duration: "1 week", Tasks: []domain.Task{
		{Name: "Define project requirements"},
		{Name: "Set up development environment"},
		{Name: "Create project timeline"},
	}},
	{Name: "Development", Duration: "2-3 weeks", Tasks: []domain.Task{
		{Name: "Build core functionality"},
		{Name: "Implement key features"},
		{Name: "Testing and iteration"},
	}},
	{Name: "Launch & Review", Duration: "1 week", Tasks: []domain.Task{
		{Name: "Final testing"},
		{Name: "Deployment"},
		{Name: "Performance review"},
	}},
}

var (
	demoGoals     = []string{"Complete project on time", "Meet quality standards", "Learn new skills"}
	demoNextSteps = []string{"Review plan with team", "Set up project tracking", "Begin phase 1 tasks"}
)

// executionSteps are the steps an execution plan can contain, keyed by
// the capability that calls for them, in execution order.
var executionSteps = []struct {
	tool         string
	action       string
	minutes      int
	dependencies []string
}{
	{domain.CapabilityPlanning, "Create project structure", 15, nil},
	{domain.CapabilityMemory, "Set up knowledge capture", 10, []string{"project structure"}},
	{domain.CapabilityMarketing, "Draft marketing strategy", 20, []string{"project structure"}},
	{domain.CapabilityContent, "Generate content assets", 30, []string{"project structure", "knowledge capture"}},
}

const planPrompt = `You are a project planner. Reply with JSON only, in the form
{"phases": [{"name": "...", "duration": "...", "tasks": ["...", "..."]}], "nextSteps": ["..."]}.
Use three to five phases with two to five tasks each.`

type ExecutionStep struct {
	Step             int      `json:"step"`
	Tool             string   `json:"tool"`
	Action           string   `json:"action"`
	EstimatedTime    string   `json:"estimated_time"`
	EstimatedMinutes int      `json:"estimated_minutes"`
	Dependencies     []string `json:"dependencies"`
}

// ExecutionPlan orders the work a message calls for.
type ExecutionPlan struct {
	Steps              []ExecutionStep `json:"execution_steps"`
	TotalEstimatedTime string          `json:"total_estimated_time"`
	CreatedAt          time.Time       `json:"created_at"`
}

// Planning creates project plans and tracks their progress.
type Planning struct {
	base

	// serializes read-modify-write of stored projects
	projectMu sync.Mutex
}

func NewPlanning(deps Deps) *Planning {
	p := &Planning{}
	p.setup(domain.CapabilityPlanning, "Project planning and workflow optimization", "/workshop1/plan", "createPlan",
		Request{
			"projectName": "Website Redesign",
			"description": "Modernize the company website",
			"goals":       []string{"Improve conversion", "Refresh branding"},
			"timeline":    "6 weeks",
		}, deps)
	p.actions["createPlan"] = p.createPlan
	p.actions["status"] = p.status
	p.actions["completeTask"] = p.completeTask
	return p
}

func (p *Planning) Initialize(ctx context.Context) error {
	if p.deps.Store == nil {
		return errors.New("planning requires a store")
	}
	p.markReady()
	return nil
}

func (p *Planning) createPlan(ctx context.Context, req Request) (Result, error) {
	name, err := req.requireString(p.name, p.example, "projectName")
	if err != nil {
		return nil, err
	}
	description, err := req.requireString(p.name, p.example, "description")
	if err != nil {
		return nil, err
	}
	goals, err := req.stringList(p.name, p.example, "goals")
	if err != nil {
		return nil, err
	}
	resources, err := req.stringList(p.name, p.example, "resources")
	if err != nil {
		return nil, err
	}

	project := domain.NewProject(name, description)
	if timeline := strings.TrimSpace(req.String("timeline")); timeline != "" {
		project.Timeline = timeline
	}
	if len(goals) == 0 {
		goals = demoGoals
	}
	for _, g := range goals {
		project.AddGoal(g)
	}
	for _, r := range resources {
		project.AddResource(r)
	}

	result := Result{"source": SourceDemo}
	phases, nextSteps := demoPhases, demoNextSteps
	if p.demo() {
		result["note"] = "This is a demo plan. Configure an LLM backend for AI-generated plans."
	} else {
		phases, nextSteps, err = p.backendPlan(ctx, project)
		if err != nil {
			phases, nextSteps = demoPhases, demoNextSteps
			p.fallback(ctx, result, err)
		} else {
			result["source"] = SourceBackend
		}
	}
	for _, ph := range phases {
		project.AddPhase(ph)
	}

	if err := p.deps.Store.SaveProject(ctx, project); err != nil {
		return nil, fmt.Errorf("failed to save project: %w", err)
	}
	p.deps.Logger.InfoContext(ctx, "project planned", "project_id", project.ID, "phases", len(project.Phases))

	result["project"] = project
	result["plan"] = map[string]any{
		"phases":    project.Phases,
		"goals":     project.Goals,
		"timeline":  project.Timeline,
		"nextSteps": nextSteps,
	}
	return result, nil
}

func (p *Planning) backendPlan(ctx context.Context, project *domain.Project) ([]domain.Phase, []string, error) {
	prompt := fmt.Sprintf("Project: %s\nDescription: %s\nTimeline: %s\nGoals: %s",
		project.Name, project.Description, project.Timeline, strings.Join(project.Goals, "; "))
	text, err := p.ask(ctx, planPrompt, prompt)
	if err != nil {
		return nil, nil, err
	}

	var raw struct {
		Phases []struct {
			Name     string   `json:"name"`
			Duration string   `json:"duration"`
			Tasks    []string `json:"tasks"`
		} `json:"phases"`
		NextSteps []string `json:"nextSteps"`
	}
	if err := decodeJSON(text, &raw); err != nil {
		return nil, nil, fmt.Errorf("failed to parse plan: %w", err)
	}
	if len(raw.Phases) == 0 {
		return nil, nil, errors.New("plan has no phases")
	}

	phases := make([]domain.Phase, 0, len(raw.Phases))
	for _, rp := range raw.Phases {
		ph := domain.Phase{Name: rp.Name, Duration: rp.Duration}
		for _, t := range rp.Tasks {
			ph.Tasks = append(ph.Tasks, domain.Task{Name: t})
		}
		phases = append(phases, ph)
	}
	if len(raw.NextSteps) == 0 {
		raw.NextSteps = demoNextSteps
	}
	return phases, raw.NextSteps, nil
}

func (p *Planning) status(ctx context.Context, req Request) (Result, error) {
	id, err := req.requireString(p.name, Request{"action": "status", "project_id": "proj_..."}, "project_id")
	if err != nil {
		return nil, err
	}
	return p.ProjectStatus(ctx, id)
}

func (p *Planning) completeTask(ctx context.Context, req Request) (Result, error) {
	id, err := req.requireString(p.name, Request{"action": "completeTask", "project_id": "proj_..."}, "project_id")
	if err != nil {
		return nil, err
	}
	return p.CompleteTask(ctx, id)
}

// CreateExecutionPlan turns a tool plan into ordered, estimated steps.
func (p *Planning) CreateExecutionPlan(ctx context.Context, plan domain.ToolPlan) (*ExecutionPlan, error) {
	if err := p.checkReady(); err != nil {
		return nil, err
	}

	out := &ExecutionPlan{Steps: []ExecutionStep{}, CreatedAt: time.Now().UTC()}
	total := 0
	for _, s := range executionSteps {
		if !slices.Contains(plan.Tools, s.tool) {
			continue
		}
		deps := s.dependencies
		if deps == nil {
			deps = []string{}
		}
		out.Steps = append(out.Steps, ExecutionStep{
			Step:             len(out.Steps) + 1,
			Tool:             s.tool,
			Action:           s.action,
			EstimatedTime:    fmt.Sprintf("%d minutes", s.minutes),
			EstimatedMinutes: s.minutes,
			Dependencies:     deps,
		})
		total += s.minutes
	}
	out.TotalEstimatedTime = formatMinutes(total)
	return out, nil
}

// formatMinutes renders a duration as "N minutes" below an hour and
// "Hh Mm" otherwise.
func formatMinutes(total int) string {
	if total < 60 {
		return fmt.Sprintf("%d minutes", total)
	}
	return fmt.Sprintf("%dh %dm", total/60, total%60)
}

// ProjectStatus reports a stored project's progress.
func (p *Planning) ProjectStatus(ctx context.Context, id string) (Result, error) {
	if err := p.checkReady(); err != nil {
		return nil, err
	}
	project, err := p.deps.Store.GetProject(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("project %s: %w", id, err)
	}
	return projectResult(project), nil
}

// CompleteTask completes the next pending task of a stored project.
func (p *Planning) CompleteTask(ctx context.Context, id string) (Result, error) {
	if err := p.checkReady(); err != nil {
		return nil, err
	}

	p.projectMu.Lock()
	defer p.projectMu.Unlock()

	project, err := p.deps.Store.GetProject(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("project %s: %w", id, err)
	}
	task, err := project.CompleteTask()
	if errors.Is(err, domain.ErrNoPendingTasks) {
		return nil, invalid(p.name, nil, "project %s has no pending tasks", id)
	}
	if err != nil {
		return nil, err
	}
	if err := p.deps.Store.SaveProject(ctx, project); err != nil {
		return nil, fmt.Errorf("failed to save project: %w", err)
	}

	result := projectResult(project)
	result["completed_task"] = task
	return result, nil
}

func projectResult(project *domain.Project) Result {
	return Result{
		"success":         true,
		"project_id":      project.ID,
		"status":          project.Status,
		"progress":        project.Progress(),
		"completed_tasks": project.CompletedTasks,
		"total_tasks":     project.TotalTasks,
		"next_milestone":  project.NextMilestone(),
		"project":         project,
	}
}
