package capability

// Set holds one instance of every capability, sharing the same Deps.
type Set struct {
	Planning  *Planning
	Memory    *Memory
	Marketing *Marketing
	Content   *Content
	Tools     *Tools
	AI        *AI
}

func NewSet(deps Deps) *Set {
	return &Set{
		Planning:  NewPlanning(deps),
		Memory:    NewMemory(deps),
		Marketing: NewMarketing(deps),
		Content:   NewContent(deps),
		Tools:     NewTools(deps),
		AI:        NewAI(deps),
	}
}

// Registry registers the set in its canonical order.
func (s *Set) Registry() (*Registry, error) {
	return NewRegistry(s.Planning, s.Memory, s.Marketing, s.Content, s.Tools, s.AI)
}
