package store

import (
	"context"
	"errors"
	"time"

	"github.com/sproutvoice/backend/internal/model/conversation"
)

// ErrUnavailable wraps transport/storage failures so callers can decide to
// retry. A lost billing write is a correctness issue, not a cosmetic one.
var ErrUnavailable = errors.New("store unavailable")

// TurnStore persists completed conversation turns.
type TurnStore interface {
	// SaveTurns writes the given turns as one logical write: either all of
	// them land or none do.
	SaveTurns(ctx context.Context, turns ...conversation.Turn) error
	// RecentTurns returns up to limit most recent turns for the account in
	// chronological order.
	RecentTurns(ctx context.Context, accountID string, limit int) ([]conversation.Turn, error)
}

// UsageStore is the daily usage ledger. AddVoiceMinutes must be atomic at
// the store level: two concurrent sessions for one account must not lose an
// increment to a read-modify-write race.
type UsageStore interface {
	VoiceMinutesUsed(ctx context.Context, accountID string, day time.Time) (int, error)
	AddVoiceMinutes(ctx context.Context, accountID string, day time.Time, minutes int) error
}
