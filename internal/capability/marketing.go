package capability

import (
	"context"
	"fmt"
	"strings"

	"github.com/Organized-AI/DWY-Tool-Calling-LLM-Agent/internal/domain"
)

const defaultAudience = "early adopters"

var demoChannels = []string{"Email newsletter", "LinkedIn", "Product Hunt launch", "Partner webinars"}

const strategyPrompt = `You are a marketing strategist. Reply with JSON only, in the form
{"positioning": "...", "channels": ["..."], "messages": ["..."]}.`

const marketingPrompt = "You are a marketing advisor. Give three short, concrete recommendations " +
	"for the user's request as a plain list."

// Strategy is a go-to-market outline for one product.
type Strategy struct {
	Product     string   `json:"product"`
	Audience    string   `json:"audience"`
	Goals       []string `json:"goals"`
	Positioning string   `json:"positioning"`
	Channels    []string `json:"channels"`
	Messages    []string `json:"messages"`
}

// Marketing drafts marketing strategies and advice.
type Marketing struct {
	base
}

func NewMarketing(deps Deps) *Marketing {
	m := &Marketing{}
	m.setup(domain.CapabilityMarketing, "Marketing strategy and messaging", "/workshop3/market", "generateStrategy",
		Request{
			"product":  "Acme Analytics",
			"audience": "small business owners",
			"goals":    []string{"Grow trial signups"},
		}, deps)
	m.actions["generateStrategy"] = m.generateStrategy
	return m
}

func (m *Marketing) Initialize(ctx context.Context) error {
	m.markReady()
	return nil
}

func (m *Marketing) generateStrategy(ctx context.Context, req Request) (Result, error) {
	product, err := req.requireString(m.name, m.example, "product")
	if err != nil {
		return nil, err
	}
	goals, err := req.stringList(m.name, m.example, "goals")
	if err != nil {
		return nil, err
	}
	audience := strings.TrimSpace(req.String("audience"))
	if audience == "" {
		audience = defaultAudience
	}

	strategy := demoStrategy(product, audience, goals)
	if m.demo() {
		return Result{"strategy": strategy, "source": SourceDemo}, nil
	}

	prompt := fmt.Sprintf("Product: %s\nAudience: %s\nGoals: %s", product, audience, strings.Join(goals, "; "))
	text, err := m.ask(ctx, strategyPrompt, prompt)
	if err == nil {
		err = decodeJSON(text, &strategy)
	}
	if err != nil {
		return m.fallback(ctx, Result{"strategy": demoStrategy(product, audience, goals)}, err), nil
	}
	return Result{"strategy": strategy, "source": SourceBackend}, nil
}

func demoStrategy(product, audience string, goals []string) Strategy {
	if goals == nil {
		goals = []string{}
	}
	return Strategy{
		Product:     product,
		Audience:    audience,
		Goals:       goals,
		Positioning: fmt.Sprintf("%s helps %s get results faster with less effort.", product, audience),
		Channels:    append([]string(nil), demoChannels...),
		Messages: []string{
			fmt.Sprintf("Meet %s: built for %s.", product, audience),
			fmt.Sprintf("See what %s can do for you in five minutes.", product),
			fmt.Sprintf("Join the %s who already rely on %s.", audience, product),
		},
	}
}

// GenerateResponse produces marketing advice for an analyzed message.
func (m *Marketing) GenerateResponse(ctx context.Context, analysis domain.Analysis) (Result, error) {
	if err := m.checkReady(); err != nil {
		return nil, err
	}

	result := Result{
		"intent": analysis.Intent,
		"recommendations": []string{
			"Define the single audience segment you will win first",
			"Lead with one measurable outcome in every message",
			"Pick two channels and test them for two weeks before expanding",
		},
		"source": SourceDemo,
	}
	if m.demo() {
		return result, nil
	}

	text, err := m.ask(ctx, marketingPrompt, "Intents: "+strings.Join(analysis.Intent, ", "))
	if err != nil {
		return m.fallback(ctx, result, err), nil
	}
	return Result{"intent": analysis.Intent, "advice": text, "source": SourceBackend}, nil
}
