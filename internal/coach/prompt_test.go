package coach

import (
	"strings"
	"testing"

	"github.com/mathquest/coach-service/pkg/models"
)

func TestBuildInstructions_ModeGuidance(t *testing.T) {
	req := &models.CoachRequest{
		Mode:     models.ModeComfort,
		Messages: []models.CoachMessage{{Role: models.RoleUser, Content: "I keep getting this wrong"}},
	}

	got := BuildInstructions(req)
	if !strings.HasPrefix(got, systemPreamble) {
		t.Errorf("instructions should start with the preamble, got %q", got)
	}
	if !strings.Contains(got, "Lead with empathy") {
		t.Errorf("comfort instructions missing mode guidance: %q", got)
	}
	if !strings.Contains(got, styleDirective) {
		t.Errorf("instructions missing style directive: %q", got)
	}
}

func TestBuildInstructions_UnknownModeFallsBackToHint(t *testing.T) {
	req := &models.CoachRequest{
		Mode:     models.CoachMode("mystery"),
		Messages: []models.CoachMessage{{Role: models.RoleUser, Content: "help"}},
	}

	got := BuildInstructions(req)
	if !strings.Contains(got, modeBehaviors[models.ModeHint].guidance) {
		t.Errorf("unknown mode should use hint guidance, got %q", got)
	}
}

func TestBuildInstructions_ContextDetails(t *testing.T) {
	difficulty := 0.724
	attempts := 3
	correct := false
	streak := 5
	req := &models.CoachRequest{
		Mode:  models.ModeHint,
		Topic: "linear equations",
		Question: &models.QuestionContext{
			Prompt:     "Solve 2x + 3 = 11",
			Choices:    []string{"2", "4", "7"},
			Domain:     "algebra",
			Difficulty: &difficulty,
		},
		AttemptSummary: &models.AttemptSummary{
			Attempts:   &attempts,
			LastAnswer: "7",
			Correct:    &correct,
			Streak:     &streak,
		},
		Messages: []models.CoachMessage{{Role: models.RoleUser, Content: "hint please"}},
	}

	got := BuildInstructions(req)
	for _, want := range []string{
		"Context: ",
		"Student focus topic: linear equations.",
		"Current question prompt: Solve 2x + 3 = 11",
		"Choices: 2, 4, 7",
		"Domain: algebra.",
		"Difficulty parameter: 0.72.",
		"Attempts this session: 3.",
		"Most recent answer: 7.",
		"Last answer correct: no.",
		"Current streak: 5.",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("instructions missing %q in %q", want, got)
		}
	}
}

func TestBuildInstructions_NoContextOmitsSection(t *testing.T) {
	req := &models.CoachRequest{
		Mode:     models.ModeHint,
		Messages: []models.CoachMessage{{Role: models.RoleUser, Content: "help"}},
	}
	if got := BuildInstructions(req); strings.Contains(got, "Context:") {
		t.Errorf("bare request should have no context section, got %q", got)
	}
}

func TestBuildInstructions_FoldsSystemTurns(t *testing.T) {
	req := &models.CoachRequest{
		Mode: models.ModeHint,
		Messages: []models.CoachMessage{
			{Role: models.RoleSystem, Content: "  The student uses a screen reader.  "},
			{Role: models.RoleUser, Content: "help"},
		},
	}

	got := BuildInstructions(req)
	if !strings.Contains(got, "The student uses a screen reader.") {
		t.Errorf("system turn content should be folded into instructions, got %q", got)
	}
	if strings.Contains(got, "  The student") {
		t.Errorf("system turn content should be trimmed, got %q", got)
	}
}

func TestConversationTurns_FiltersAndTrims(t *testing.T) {
	req := &models.CoachRequest{
		Messages: []models.CoachMessage{
			{Role: models.RoleSystem, Content: "persona override"},
			{Role: models.RoleUser, Content: "  first question  "},
			{Role: models.RoleAssistant, Content: "an answer"},
			{Role: models.RoleUser, Content: "   "},
			{Role: models.RoleUser, Content: "second question"},
		},
	}

	turns := ConversationTurns(req)
	if len(turns) != 3 {
		t.Fatalf("ConversationTurns() returned %d turns, want 3", len(turns))
	}
	if turns[0].Content != "first question" {
		t.Errorf("first turn = %q, want trimmed content", turns[0].Content)
	}
	if turns[1].Role != models.RoleAssistant {
		t.Errorf("second turn role = %q, want assistant", turns[1].Role)
	}
	if turns[2].Content != "second question" {
		t.Errorf("third turn = %q, want %q", turns[2].Content, "second question")
	}
}

func TestModeTemperature(t *testing.T) {
	cases := []struct {
		mode models.CoachMode
		want float64
	}{
		{models.ModeHint, 0.3},
		{models.ModeExplain, 0.2},
		{models.ModeComfort, 0.6},
		{models.ModeChallenge, 0.5},
		{models.CoachMode("unknown"), 0.3},
	}
	for _, tc := range cases {
		if got := ModeTemperature(tc.mode); got != tc.want {
			t.Errorf("ModeTemperature(%q) = %v, want %v", tc.mode, got, tc.want)
		}
	}
}
