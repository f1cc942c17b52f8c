package coach

import (
	"fmt"
	"strings"

	"github.com/mathquest/coach-service/pkg/models"
)

// modeBehavior pairs a persona's guidance text with the sampling
// temperature used by the chat backend.
type modeBehavior struct {
	guidance    string
	temperature float64
}

var modeBehaviors = map[models.CoachMode]modeBehavior{
	models.ModeHint: {
		guidance:    "Offer a concise hint that nudges the student toward the next logical step without giving away the full solution. Encourage them to show their work.",
		temperature: 0.3,
	},
	models.ModeExplain: {
		guidance:    "Deliver a complete step-by-step explanation with clear reasoning and math notation. Tie the concept back to SAT Math framing where possible.",
		temperature: 0.2,
	},
	models.ModeComfort: {
		guidance:    "Lead with empathy and encouragement. Normalize struggle, reflect their effort, and offer a reassuring next action. Keep math guidance lightweight.",
		temperature: 0.6,
	},
	models.ModeChallenge: {
		guidance:    "Push the student to think deeper. Ask follow-up questions, highlight patterns, and suggest strategies that raise the difficulty slightly.",
		temperature: 0.5,
	},
}

const systemPreamble = "You are MathQuest Coach, an encouraging AI tutor helping Florida SAT students conquer math anxiety."

const styleDirective = "Keep responses under 180 words, use friendly language, and include LaTeX for math when useful."

// ModeTemperature returns the sampling temperature for a mode.
func ModeTemperature(mode models.CoachMode) float64 {
	if b, ok := modeBehaviors[mode]; ok {
		return b.temperature
	}
	return modeBehaviors[models.ModeHint].temperature
}

// BuildInstructions assembles the system instructions for a request:
// preamble, mode guidance, style directive, optional question/attempt
// context, and any system-role content from the caller, joined with single
// spaces. Empty sections are omitted. The caller's messages are never
// mutated.
func BuildInstructions(req *models.CoachRequest) string {
	behavior, ok := modeBehaviors[req.Mode]
	if !ok {
		behavior = modeBehaviors[models.ModeHint]
	}

	sections := []string{systemPreamble, behavior.guidance, styleDirective}
	if details := contextDetails(req); details != "" {
		sections = append(sections, details)
	}
	for _, m := range req.Messages {
		if m.Role != models.RoleSystem {
			continue
		}
		if content := strings.TrimSpace(m.Content); content != "" {
			sections = append(sections, content)
		}
	}
	return strings.Join(sections, " ")
}

// ConversationTurns returns the user/assistant turns to send to the
// provider. System turns are folded into the instructions instead; blank
// turns are dropped.
func ConversationTurns(req *models.CoachRequest) []models.CoachMessage {
	turns := make([]models.CoachMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		if m.Role != models.RoleUser && m.Role != models.RoleAssistant {
			continue
		}
		content := strings.TrimSpace(m.Content)
		if content == "" {
			continue
		}
		turns = append(turns, models.CoachMessage{Role: m.Role, Content: content})
	}
	return turns
}

// contextDetails formats the optional topic, question, and attempt-summary
// context into a single "Context: ..." section.
func contextDetails(req *models.CoachRequest) string {
	var details []string

	if req.Topic != "" {
		details = append(details, fmt.Sprintf("Student focus topic: %s.", req.Topic))
	}

	if q := req.Question; q != nil {
		parts := []string{"Current question prompt:", q.Prompt}
		if len(q.Choices) > 0 {
			parts = append(parts, fmt.Sprintf("Choices: %s", strings.Join(q.Choices, ", ")))
		}
		if q.Domain != "" {
			parts = append(parts, fmt.Sprintf("Domain: %s.", q.Domain))
		}
		if q.Difficulty != nil {
			parts = append(parts, fmt.Sprintf("Difficulty parameter: %.2f.", *q.Difficulty))
		}
		details = append(details, strings.Join(parts, " "))
	}

	if s := req.AttemptSummary; s != nil {
		var summary []string
		if s.Attempts != nil {
			summary = append(summary, fmt.Sprintf("Attempts this session: %d.", *s.Attempts))
		}
		if s.LastAnswer != "" {
			summary = append(summary, fmt.Sprintf("Most recent answer: %s.", s.LastAnswer))
		}
		if s.Correct != nil {
			answer := "no"
			if *s.Correct {
				answer = "yes"
			}
			summary = append(summary, fmt.Sprintf("Last answer correct: %s.", answer))
		}
		if s.Streak != nil {
			summary = append(summary, fmt.Sprintf("Current streak: %d.", *s.Streak))
		}
		if len(summary) > 0 {
			details = append(details, strings.Join(summary, " "))
		}
	}

	if len(details) == 0 {
		return ""
	}
	return "Context: " + strings.Join(details, " ")
}
