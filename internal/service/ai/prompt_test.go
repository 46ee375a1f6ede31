package ai

import (
	"strings"
	"testing"
	"time"

	"github.com/cloudwego/eino/schema"

	"github.com/sproutvoice/backend/internal/model/conversation"
	"github.com/sproutvoice/backend/internal/model/profile"
)

func TestBuildSystemPromptWithProfile(t *testing.T) {
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	prof := &profile.Profile{
		AccountID:      "acct-1",
		ChildName:      "Mia",
		ChildBirthdate: time.Date(2024, 11, 3, 0, 0, 0, 0, time.UTC),
		Notes:          "short napper",
	}

	got := buildSystemPrompt(prof, now)
	if !strings.Contains(got, "Mia") {
		t.Fatalf("prompt missing child name: %s", got)
	}
	if !strings.Contains(got, "6 months old") {
		t.Fatalf("prompt missing age: %s", got)
	}
	if !strings.Contains(got, "short napper") {
		t.Fatalf("prompt missing notes: %s", got)
	}
}

func TestBuildSystemPromptWithoutProfile(t *testing.T) {
	got := buildSystemPrompt(nil, time.Now())
	if got != basePrompt {
		t.Fatalf("nil profile should produce the base prompt")
	}
}

func TestHistoryMessagesWindowAndRoles(t *testing.T) {
	var turns []conversation.Turn
	for i := 0; i < 14; i++ {
		role := conversation.RoleUser
		if i%2 == 1 {
			role = conversation.RoleAssistant
		}
		turns = append(turns, conversation.Turn{Role: role, Content: string(rune('a' + i))})
	}

	history := historyMessages(turns)
	if len(history) != historyLimit {
		t.Fatalf("expected %d history messages, got %d", historyLimit, len(history))
	}
	if history[0].Content != "e" {
		t.Fatalf("window should start at 5th turn, got %q", history[0].Content)
	}
	if history[0].Role != schema.User {
		t.Fatalf("unexpected first role: %v", history[0].Role)
	}
	if history[1].Role != schema.Assistant {
		t.Fatalf("unexpected second role: %v", history[1].Role)
	}
}

func TestHistoryMessagesSkipsUnknownRoles(t *testing.T) {
	turns := []conversation.Turn{
		{Role: "system", Content: "ignore me"},
		{Role: conversation.RoleUser, Content: "hi"},
	}

	history := historyMessages(turns)
	if len(history) != 1 {
		t.Fatalf("expected 1 message, got %d", len(history))
	}
	if history[0].Content != "hi" {
		t.Fatalf("unexpected content: %q", history[0].Content)
	}
}

func TestTokensUsed(t *testing.T) {
	if tokensUsed(nil) != 0 {
		t.Fatal("nil message should report zero tokens")
	}

	msg := &schema.Message{
		ResponseMeta: &schema.ResponseMeta{
			Usage: &schema.TokenUsage{TotalTokens: 42},
		},
	}
	if tokensUsed(msg) != 42 {
		t.Fatalf("expected 42 tokens, got %d", tokensUsed(msg))
	}
}
