// Package assist wraps the generative-text backend for the two jobs the live
// pipeline needs per transcript fragment: turning speech into formatted notes
// and spotting voice commands embedded in it. Both are best-effort; callers
// treat any failure as "no content produced" and keep the stream flowing.
package assist

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/classcast/classcast/internal/llm"
)

type CommandType string

const (
	CommandNone  CommandType = ""
	CommandSlide CommandType = "slide"
	CommandPoll  CommandType = "poll"
	CommandQuiz  CommandType = "quiz"
	CommandTimer CommandType = "timer"
	CommandEnd   CommandType = "end"
)

// Command is the structured result of voice-command detection.
type Command struct {
	Type             CommandType
	SlideTitle       string
	Question         string
	Options          []string
	TimeLimitSeconds int
}

type Generator struct {
	client llm.Client
	sleep  func(time.Duration)
}

func New(client llm.Client) *Generator {
	return &Generator{client: client, sleep: time.Sleep}
}

const notesSystemPrompt = `You are a lecture note-taker. Convert transcript fragments into clean,
organized bullet-point notes. Focus on key concepts, important details, and
actionable information. Respond with clean HTML using <ul> and <li> tags,
with sub-bullets where appropriate. Make it concise but comprehensive.
Respond with the notes only, no preamble.`

// GenerateNotes turns a finalized transcript fragment into formatted notes.
// An empty result with a nil error means the fragment carried nothing worth
// keeping.
func (g *Generator) GenerateNotes(ctx context.Context, transcript string) (string, error) {
	transcript = strings.TrimSpace(transcript)
	if transcript == "" {
		return "", nil
	}

	notes, err := g.client.Complete(ctx, llm.Request{
		System: notesSystemPrompt,
		Prompt: "Transcript: " + transcript,
	})
	if err != nil {
		return "", fmt.Errorf("generate notes: %w", err)
	}
	return strings.TrimSpace(notes), nil
}

const commandSystemPrompt = `You analyze lecture transcript fragments for voice commands addressed to a
lecture assistant. Commands to detect:
- "open a new slide" / "create new slide" (slide)
- "create a poll" with a question and options (poll)
- "create a quiz" with a question and options (quiz)
- "start a timer" (timer)
- "end the lecture" (end)

Respond with JSON only, in this exact shape:
{
  "hasCommand": boolean,
  "commandType": "slide" | "poll" | "quiz" | "timer" | "end" | null,
  "parameters": {
    "slideTitle": string,
    "question": string,
    "options": [string],
    "timeLimit": number
  }
}
Omit parameters that do not apply. If the fragment is ordinary speech,
respond {"hasCommand": false}.`

type commandResponse struct {
	HasCommand  bool   `json:"hasCommand"`
	CommandType string `json:"commandType"`
	Parameters  struct {
		SlideTitle string   `json:"slideTitle"`
		Question   string   `json:"question"`
		Options    []string `json:"options"`
		TimeLimit  int      `json:"timeLimit"`
	} `json:"parameters"`
}

// DetectCommand classifies a transcript fragment. A fragment that carries no
// command, or a backend response that cannot be parsed, yields CommandNone
// with a nil error; only transport-level backend failures surface as errors.
func (g *Generator) DetectCommand(ctx context.Context, text string) (Command, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Command{}, nil
	}

	raw, err := g.client.Complete(ctx, llm.Request{
		System:    commandSystemPrompt,
		Prompt:    fmt.Sprintf("Text: %q", text),
		ForceJSON: true,
	})
	if err != nil {
		return Command{}, fmt.Errorf("detect command: %w", err)
	}

	var parsed commandResponse
	if err := json.Unmarshal([]byte(stripCodeFence(raw)), &parsed); err != nil {
		// Unparseable classification is expected occasionally; the fragment
		// falls back to the note path.
		return Command{}, nil
	}
	if !parsed.HasCommand {
		return Command{}, nil
	}

	cmd := Command{
		SlideTitle:       strings.TrimSpace(parsed.Parameters.SlideTitle),
		Question:         strings.TrimSpace(parsed.Parameters.Question),
		Options:          parsed.Parameters.Options,
		TimeLimitSeconds: parsed.Parameters.TimeLimit,
	}

	switch CommandType(parsed.CommandType) {
	case CommandSlide, CommandPoll, CommandQuiz, CommandTimer, CommandEnd:
		cmd.Type = CommandType(parsed.CommandType)
	default:
		return Command{}, nil
	}

	return cmd, nil
}

const summarySystemPrompt = `You summarize lecture transcripts. Include the main topics covered, key
concepts and definitions, important examples, and conclusions or takeaways.
Format as a well-structured summary with clear sections.`

// Summarize produces a whole-lecture summary. Unlike the per-fragment paths
// this retries with backoff, since nothing downstream is waiting on it.
func (g *Generator) Summarize(ctx context.Context, transcript string) (string, error) {
	if len(strings.Fields(transcript)) < 20 {
		return "", nil
	}

	backoff := []time.Duration{1 * time.Second, 4 * time.Second, 16 * time.Second}
	var lastErr error
	for attempt := range backoff {
		result, err := g.client.Complete(ctx, llm.Request{
			System: summarySystemPrompt,
			Prompt: "Transcript: " + transcript,
		})
		if err == nil {
			return result, nil
		}
		lastErr = err
		if attempt < len(backoff)-1 {
			g.sleep(backoff[attempt])
		}
	}
	return "", fmt.Errorf("summarize failed after retries: %w", lastErr)
}

// stripCodeFence unwraps ```json ... ``` fences some models emit despite
// JSON-only instructions.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
