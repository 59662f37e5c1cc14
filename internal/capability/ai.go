package capability

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"slices"
	"strings"

	"github.com/Organized-AI/DWY-Tool-Calling-LLM-Agent/internal/domain"
)

const demoAnalysisSource = "demo_analysis"

// intentKeywords maps message keywords to the intents they signal. Order
// is the order intents are reported in.
var intentKeywords = []struct {
	keywords []string
	intents  []string
}{
	{[]string{"plan", "project"}, []string{domain.IntentPlanning}},
	{[]string{"market", "business"}, []string{domain.IntentMarketing, domain.IntentBusiness}},
	{[]string{"video", "content"}, []string{domain.IntentVideo, domain.IntentContent}},
	{[]string{"remember", "know"}, []string{domain.IntentMemory}},
}

var knownIntents = []string{
	domain.IntentPlanning,
	domain.IntentMarketing,
	domain.IntentBusiness,
	domain.IntentVideo,
	domain.IntentContent,
	domain.IntentMemory,
	domain.IntentGeneral,
}

var demoReplies = []string{
	"Thank you for your message: %q. I've processed it through my capabilities.",
	"I understand you're asking about %q. Let me help you with that using my AI capabilities.",
	"Based on your message %q, I can assist you through my integrated capability system.",
	"I've analyzed your request: %q and I'm ready to help using my various tools.",
}

const demoNotice = "This is a demo response - connect a real AI backend for enhanced capabilities."

const analysisPrompt = `Classify the user's message. Reply with JSON only, in the form
{"intent": [...], "confidence": 0.0, "entities": [...], "sentiment": "positive|neutral|negative"}.
Allowed intents: planning, marketing, business, video, content, memory, general.`

const assistantPrompt = "You are the DWY agent, a helpful assistant that plans projects, " +
	"remembers context, drafts marketing and content, and calls tools."

// AI analyzes and answers messages with the configured LLM backend, or
// with keyword rules and templates in demo mode.
type AI struct {
	base
}

func NewAI(deps Deps) *AI {
	a := &AI{}
	a.setup(domain.CapabilityAI, "Local and hosted LLM reasoning", "/workshop6/think", "generate",
		Request{"prompt": "Summarize the benefits of tool-calling agents"}, deps)
	a.actions["generate"] = a.generate
	a.actions["analyze"] = a.analyze
	return a
}

func (a *AI) Initialize(ctx context.Context) error {
	a.markReady()
	return nil
}

func (a *AI) generate(ctx context.Context, req Request) (Result, error) {
	prompt, err := req.requireString(a.name, a.example, "prompt")
	if err != nil {
		return nil, err
	}
	system := req.String("system")
	if system == "" {
		system = assistantPrompt
	}

	if a.demo() {
		return Result{"text": demoText(prompt, nil), "source": SourceDemo}, nil
	}
	text, err := a.ask(ctx, system, prompt)
	if err != nil {
		return a.fallback(ctx, Result{"text": demoText(prompt, nil)}, err), nil
	}
	return Result{"text": text, "source": SourceBackend, "backend": a.deps.LLM.Name()}, nil
}

func (a *AI) analyze(ctx context.Context, req Request) (Result, error) {
	message, err := req.requireString(a.name, Request{"action": "analyze", "message": "plan my product launch"}, "message")
	if err != nil {
		return nil, err
	}
	analysis, err := a.Analyze(ctx, message)
	if err != nil {
		return nil, err
	}
	return Result{"analysis": analysis, "source": analysis.Source}, nil
}

// Analyze classifies message. Backend failures fall back to keyword rules.
func (a *AI) Analyze(ctx context.Context, message string) (domain.Analysis, error) {
	if err := a.checkReady(); err != nil {
		return domain.Analysis{}, err
	}
	if a.demo() {
		return keywordAnalysis(message), nil
	}

	text, err := a.ask(ctx, analysisPrompt, message)
	if err == nil {
		var analysis domain.Analysis
		analysis, err = parseAnalysis(text, message)
		if err == nil {
			return analysis, nil
		}
	}
	a.noteFallback(ctx, err)
	return keywordAnalysis(message), nil
}

func keywordAnalysis(message string) domain.Analysis {
	lower := strings.ToLower(message)
	var intent []string
	for _, rule := range intentKeywords {
		for _, kw := range rule.keywords {
			if strings.Contains(lower, kw) {
				intent = append(intent, rule.intents...)
				break
			}
		}
	}
	if len(intent) == 0 {
		intent = []string{domain.IntentGeneral}
	}
	return domain.Analysis{
		Intent:     intent,
		Confidence: 0.8,
		Entities:   []string{},
		Sentiment:  "neutral",
		Complexity: complexity(message),
		Source:     demoAnalysisSource,
	}
}

func complexity(message string) string {
	if len(message) > 100 {
		return "high"
	}
	return "medium"
}

func parseAnalysis(text, message string) (domain.Analysis, error) {
	var raw struct {
		Intent     []string `json:"intent"`
		Confidence float64  `json:"confidence"`
		Entities   []string `json:"entities"`
		Sentiment  string   `json:"sentiment"`
	}
	if err := decodeJSON(text, &raw); err != nil {
		return domain.Analysis{}, fmt.Errorf("failed to parse analysis: %w", err)
	}

	var intent []string
	for _, label := range raw.Intent {
		label = strings.ToLower(strings.TrimSpace(label))
		if slices.Contains(knownIntents, label) && !slices.Contains(intent, label) {
			intent = append(intent, label)
		}
	}
	if len(intent) == 0 {
		return domain.Analysis{}, fmt.Errorf("analysis has no known intent: %v", raw.Intent)
	}
	if raw.Entities == nil {
		raw.Entities = []string{}
	}
	if raw.Sentiment == "" {
		raw.Sentiment = "neutral"
	}
	return domain.Analysis{
		Intent:     intent,
		Confidence: raw.Confidence,
		Entities:   raw.Entities,
		Sentiment:  raw.Sentiment,
		Complexity: complexity(message),
		Source:     SourceBackend,
	}, nil
}

// decodeJSON unmarshals the first JSON object in text, tolerating prose or
// code fences around it.
func decodeJSON(text string, v any) error {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end < start {
		return fmt.Errorf("no JSON object in reply")
	}
	return json.Unmarshal([]byte(text[start:end+1]), v)
}

// SynthesisInput is everything gathered while answering one message.
type SynthesisInput struct {
	Message    string
	Analysis   domain.Analysis
	ToolPlan   domain.ToolPlan
	Components domain.Components
	Memory     MemoryContext
}

// engaged names the capabilities that produced output for the message.
func (in SynthesisInput) engaged() []string {
	var names []string
	for _, c := range []struct {
		name string
		v    any
	}{
		{domain.CapabilityPlanning, in.Components.Planning},
		{domain.CapabilityMarketing, in.Components.Marketing},
		{domain.CapabilityContent, in.Components.Content},
		{domain.CapabilityTools, in.Components.Tools},
	} {
		if c.v != nil {
			names = append(names, c.name)
		}
	}
	return names
}

// Synthesize writes the final reply to the user.
func (a *AI) Synthesize(ctx context.Context, in SynthesisInput) (string, error) {
	if err := a.checkReady(); err != nil {
		return "", err
	}
	if a.demo() {
		return demoText(in.Message, in.engaged()), nil
	}

	prompt, err := synthesisPrompt(in)
	if err != nil {
		return "", err
	}
	text, err := a.ask(ctx, assistantPrompt, prompt)
	if err != nil {
		a.noteFallback(ctx, err)
		return demoText(in.Message, in.engaged()), nil
	}
	return text, nil
}

func synthesisPrompt(in SynthesisInput) (string, error) {
	analysis, err := json.Marshal(in.Analysis)
	if err != nil {
		return "", fmt.Errorf("failed to encode analysis: %w", err)
	}
	components, err := json.Marshal(in.Components)
	if err != nil {
		return "", fmt.Errorf("failed to encode components: %w", err)
	}

	var b strings.Builder
	b.WriteString("Generate a helpful response to the user based on the following information.\n\n")
	fmt.Fprintf(&b, "User message: %s\n", in.Message)
	fmt.Fprintf(&b, "Analysis: %s\n", analysis)
	fmt.Fprintf(&b, "Capability results: %s\n", components)
	if len(in.Memory.RecentMessages) > 0 {
		b.WriteString("Recent memory:\n")
		for _, m := range in.Memory.RecentMessages {
			fmt.Fprintf(&b, "- %s\n", truncate(m.Content, 200))
		}
	}
	b.WriteString("\nProvide a natural, helpful response that acknowledges what the user asked for and explains how you can help.")
	return b.String(), nil
}

// demoText picks a reply template from a hash of message, so the same
// message always gets the same reply.
func demoText(message string, engaged []string) string {
	h := fnv.New32a()
	h.Write([]byte(message))
	text := fmt.Sprintf(demoReplies[h.Sum32()%uint32(len(demoReplies))], message)
	if len(engaged) > 0 {
		text += fmt.Sprintf(" I've engaged %s components to provide you with a comprehensive response.",
			strings.Join(engaged, ", "))
	}
	return text + " " + demoNotice
}
