package capability

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/Organized-AI/DWY-Tool-Calling-LLM-Agent/internal/domain"
)

const (
	defaultVideoStyle    = "explainer"
	defaultVideoDuration = 60
	minVideoDuration     = 15
	maxVideoDuration     = 600
)

const scriptPrompt = "You are a video scriptwriter. Write a short narration script with an intro, " +
	"a main section and a call to action. Plain text only."

const contentPrompt = "You are a content strategist. Suggest three content pieces for the user's " +
	"request, one per line."

// Scene is one segment of a generated video.
type Scene struct {
	Scene           int    `json:"scene"`
	Title           string `json:"title"`
	DurationSeconds int    `json:"duration_seconds"`
	Description     string `json:"description"`
}

// Content drafts video scripts and content ideas.
type Content struct {
	base
}

func NewContent(deps Deps) *Content {
	c := &Content{}
	c.setup(domain.CapabilityContent, "Video and content generation", "/workshop4/create", "generateVideo",
		Request{"topic": "How our onboarding works", "style": "explainer", "duration_seconds": 90}, deps)
	c.actions["generateVideo"] = c.generateVideo
	return c
}

func (c *Content) Initialize(ctx context.Context) error {
	c.markReady()
	return nil
}

func (c *Content) generateVideo(ctx context.Context, req Request) (Result, error) {
	topic, err := req.requireString(c.name, c.example, "topic")
	if err != nil {
		return nil, err
	}
	duration := req.Int("duration_seconds", defaultVideoDuration)
	if duration < minVideoDuration || duration > maxVideoDuration {
		return nil, invalid(c.name, c.example, "duration_seconds must be between %d and %d",
			minVideoDuration, maxVideoDuration)
	}
	style := strings.TrimSpace(req.String("style"))
	if style == "" {
		style = defaultVideoStyle
	}

	result := Result{
		"job_id":           "video_" + uuid.NewString(),
		"status":           "script_ready",
		"topic":            topic,
		"style":            style,
		"duration_seconds": duration,
		"scenes":           storyboard(topic, duration),
		"script":           demoScript(topic, style),
		"source":           SourceDemo,
	}
	if c.demo() {
		return result, nil
	}

	prompt := fmt.Sprintf("Topic: %s\nStyle: %s\nLength: %d seconds", topic, style, duration)
	script, err := c.ask(ctx, scriptPrompt, prompt)
	if err != nil {
		return c.fallback(ctx, result, err), nil
	}
	result["script"] = script
	result["source"] = SourceBackend
	return result, nil
}

// storyboard splits duration into intro, main and call-to-action scenes.
func storyboard(topic string, duration int) []Scene {
	intro := duration / 5
	outro := duration / 5
	return []Scene{
		{Scene: 1, Title: "Intro", DurationSeconds: intro, Description: "Hook the viewer and introduce " + topic},
		{Scene: 2, Title: "Main", DurationSeconds: duration - intro - outro, Description: "Walk through the key points of " + topic},
		{Scene: 3, Title: "Call to action", DurationSeconds: outro, Description: "Tell the viewer what to do next"},
	}
}

func demoScript(topic, style string) string {
	return fmt.Sprintf("[%s] Ever wondered about %s? In the next minute we'll cover what it is, "+
		"why it matters and how to get started. Let's dive in.", style, topic)
}

// GenerateContent suggests content pieces for an analyzed message.
func (c *Content) GenerateContent(ctx context.Context, analysis domain.Analysis) (Result, error) {
	if err := c.checkReady(); err != nil {
		return nil, err
	}

	kind := domain.IntentContent
	if analysis.HasIntent(domain.IntentVideo) {
		kind = domain.IntentVideo
	}
	result := Result{
		"type": kind,
		"suggestions": []string{
			"Short explainer video introducing the idea",
			"Step-by-step tutorial for first-time users",
			"Customer story showing the outcome",
		},
		"source": SourceDemo,
	}
	if c.demo() {
		return result, nil
	}

	text, err := c.ask(ctx, contentPrompt, "Intents: "+strings.Join(analysis.Intent, ", "))
	if err != nil {
		return c.fallback(ctx, result, err), nil
	}
	var suggestions []string
	for _, line := range strings.Split(text, "\n") {
		if line = strings.TrimSpace(strings.TrimLeft(line, "-*0123456789. ")); line != "" {
			suggestions = append(suggestions, line)
		}
	}
	result["suggestions"] = suggestions
	result["source"] = SourceBackend
	return result, nil
}
