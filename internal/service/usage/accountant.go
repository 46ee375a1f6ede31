package usage

import (
	"context"
	"fmt"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/sproutvoice/backend/internal/logging"
	usagemodel "github.com/sproutvoice/backend/internal/model/usage"
	"github.com/sproutvoice/backend/internal/store"
)

const (
	commitAttempts = 5
	commitBackoff  = 500 * time.Millisecond
)

// Accountant owns voice-minute quota checks and the close-time billing
// commit. The server, not the client, is the source of truth for elapsed
// time; idempotency per session is enforced by the session state machine,
// which calls CommitElapsed at most once.
type Accountant struct {
	store     store.UsageStore
	freeLimit int
	now       func() time.Time
	backoff   time.Duration
}

// New builds an accountant over the usage ledger. freeLimit is the daily
// voice-minute allowance for the free tier.
func New(usageStore store.UsageStore, freeLimit int) *Accountant {
	return &Accountant{store: usageStore, freeLimit: freeLimit, now: time.Now, backoff: commitBackoff}
}

// FreeLimit exposes the configured daily allowance for protocol payloads.
func (a *Accountant) FreeLimit() int { return a.freeLimit }

// CheckQuota returns the minutes remaining today for the account together
// with the minutes already used. The unlimited tier gets the Unbounded
// sentinel; the free tier never goes negative, though used may exceed the
// limit after an overage session.
func (a *Accountant) CheckQuota(ctx context.Context, accountID string, tier usagemodel.Tier) (remaining, used int, err error) {
	if tier == usagemodel.TierUnlimited {
		return usagemodel.Unbounded, 0, nil
	}

	used, err = a.store.VoiceMinutesUsed(ctx, accountID, a.now())
	if err != nil {
		return 0, 0, fmt.Errorf("check quota: %w", err)
	}

	remaining = a.freeLimit - used
	if remaining < 0 {
		remaining = 0
	}
	return remaining, used, nil
}

// CommitElapsed converts elapsed session time to whole minutes with ceiling
// rounding and increments today's ledger row. Store failures are retried
// with exponential backoff; when retries are exhausted the failure is logged
// for reconciliation and returned.
func (a *Accountant) CommitElapsed(ctx context.Context, sessionID, accountID string, elapsed time.Duration) (int, error) {
	minutes := usagemodel.BilledMinutes(elapsed)
	if minutes == 0 {
		return 0, nil
	}

	day := a.now()
	backoff := retry.WithMaxRetries(commitAttempts-1, retry.NewExponential(a.backoff))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		if err := a.store.AddVoiceMinutes(ctx, accountID, day, minutes); err != nil {
			logging.Warnw("usage: commit attempt failed",
				"session_id", sessionID, "account_id", accountID, "err", err)
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		// A dropped increment must never disappear silently.
		logging.Errorw("usage: billing commit lost, needs reconciliation",
			"session_id", sessionID, "account_id", accountID,
			"minutes", minutes, "elapsed_seconds", int(elapsed.Seconds()), "err", err)
		return minutes, fmt.Errorf("commit elapsed: %w", err)
	}

	logging.Infow("usage: committed voice minutes",
		"session_id", sessionID, "account_id", accountID, "minutes", minutes)
	return minutes, nil
}
