package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sproutvoice/backend/internal/model/conversation"
	"github.com/sproutvoice/backend/internal/model/usage"
)

// Memory implements TurnStore and UsageStore with mutex-guarded maps,
// suitable for tests and store-less development runs.
type Memory struct {
	mu      sync.RWMutex
	turns   map[string][]conversation.Turn
	minutes map[string]int
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		turns:   make(map[string][]conversation.Turn),
		minutes: make(map[string]int),
	}
}

// SaveTurns appends the turns to the account history.
func (m *Memory) SaveTurns(_ context.Context, turns ...conversation.Turn) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, turn := range turns {
		if turn.ID == "" {
			turn.ID = uuid.NewString()
		}
		if turn.CreatedAt.IsZero() {
			turn.CreatedAt = time.Now().UTC()
		}
		m.turns[turn.AccountID] = append(m.turns[turn.AccountID], turn)
	}
	return nil
}

// RecentTurns returns up to limit most recent turns in chronological order.
func (m *Memory) RecentTurns(_ context.Context, accountID string, limit int) ([]conversation.Turn, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	history := m.turns[accountID]
	start := 0
	if limit > 0 && len(history) > limit {
		start = len(history) - limit
	}

	copied := make([]conversation.Turn, len(history)-start)
	copy(copied, history[start:])
	return copied, nil
}

// VoiceMinutesUsed reads the ledger for one account-day.
func (m *Memory) VoiceMinutesUsed(_ context.Context, accountID string, day time.Time) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.minutes[usageKey(accountID, day)], nil
}

// AddVoiceMinutes increments the ledger for one account-day.
func (m *Memory) AddVoiceMinutes(_ context.Context, accountID string, day time.Time, minutes int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.minutes[usageKey(accountID, day)] += minutes
	return nil
}

func usageKey(accountID string, day time.Time) string {
	return accountID + "|" + usage.DayOf(day).Format("2006-01-02")
}
