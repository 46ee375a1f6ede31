package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/sproutvoice/backend/internal/model/conversation"
)

func TestRecentTurnsWindowAndOrder(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 15; i++ {
		turn := conversation.Turn{
			AccountID: "acct-1",
			SessionID: "sess-1",
			Role:      conversation.RoleUser,
			Content:   string(rune('a' + i)),
			CreatedAt: base.Add(time.Duration(i) * time.Second),
		}
		if err := m.SaveTurns(ctx, turn); err != nil {
			t.Fatalf("SaveTurns err: %v", err)
		}
	}

	turns, err := m.RecentTurns(ctx, "acct-1", 10)
	if err != nil {
		t.Fatalf("RecentTurns err: %v", err)
	}
	if len(turns) != 10 {
		t.Fatalf("expected 10 turns, got %d", len(turns))
	}
	if turns[0].Content != "f" || turns[9].Content != "o" {
		t.Fatalf("expected chronological window f..o, got %s..%s", turns[0].Content, turns[9].Content)
	}
}

func TestSaveTurnsAssignsIDs(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	err := m.SaveTurns(ctx,
		conversation.Turn{AccountID: "acct-1", Role: conversation.RoleUser, Content: "hi"},
		conversation.Turn{AccountID: "acct-1", Role: conversation.RoleAssistant, Content: "hello"},
	)
	if err != nil {
		t.Fatalf("SaveTurns err: %v", err)
	}

	turns, err := m.RecentTurns(ctx, "acct-1", 10)
	if err != nil {
		t.Fatalf("RecentTurns err: %v", err)
	}
	for _, turn := range turns {
		if turn.ID == "" || turn.CreatedAt.IsZero() {
			t.Fatalf("turn missing id or timestamp: %+v", turn)
		}
	}
}

func TestVoiceMinutesKeyedByDay(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	monday := time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)
	tuesday := monday.Add(24 * time.Hour)

	if err := m.AddVoiceMinutes(ctx, "acct-1", monday, 3); err != nil {
		t.Fatalf("AddVoiceMinutes err: %v", err)
	}
	if err := m.AddVoiceMinutes(ctx, "acct-1", monday.Add(5*time.Hour), 2); err != nil {
		t.Fatalf("AddVoiceMinutes err: %v", err)
	}
	if err := m.AddVoiceMinutes(ctx, "acct-1", tuesday, 1); err != nil {
		t.Fatalf("AddVoiceMinutes err: %v", err)
	}

	used, err := m.VoiceMinutesUsed(ctx, "acct-1", monday)
	if err != nil {
		t.Fatalf("VoiceMinutesUsed err: %v", err)
	}
	if used != 5 {
		t.Fatalf("expected 5 minutes on monday, got %d", used)
	}

	used, err = m.VoiceMinutesUsed(ctx, "acct-1", tuesday)
	if err != nil {
		t.Fatalf("VoiceMinutesUsed err: %v", err)
	}
	if used != 1 {
		t.Fatalf("expected 1 minute on tuesday, got %d", used)
	}
}

func TestAddVoiceMinutesConcurrent(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	day := time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = m.AddVoiceMinutes(ctx, "acct-1", day, 1)
		}()
	}
	wg.Wait()

	used, err := m.VoiceMinutesUsed(ctx, "acct-1", day)
	if err != nil {
		t.Fatalf("VoiceMinutesUsed err: %v", err)
	}
	if used != 50 {
		t.Fatalf("lost increments: expected 50, got %d", used)
	}
}
