package usage

import (
	"context"
	"errors"
	"testing"
	"time"

	usagemodel "github.com/sproutvoice/backend/internal/model/usage"
	"github.com/sproutvoice/backend/internal/store"
)

type flakyUsageStore struct {
	*store.Memory
	failures int
	calls    int
}

func (f *flakyUsageStore) AddVoiceMinutes(ctx context.Context, accountID string, day time.Time, minutes int) error {
	f.calls++
	if f.calls <= f.failures {
		return store.ErrUnavailable
	}
	return f.Memory.AddVoiceMinutes(ctx, accountID, day, minutes)
}

func newTestAccountant(s store.UsageStore, limit int) *Accountant {
	a := New(s, limit)
	a.backoff = time.Millisecond
	a.now = func() time.Time { return time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC) }
	return a
}

func TestCheckQuotaUnlimitedSentinel(t *testing.T) {
	a := newTestAccountant(store.NewMemory(), 10)

	remaining, _, err := a.CheckQuota(context.Background(), "acct-1", usagemodel.TierUnlimited)
	if err != nil {
		t.Fatalf("CheckQuota err: %v", err)
	}
	if remaining != usagemodel.Unbounded {
		t.Fatalf("expected unbounded sentinel, got %d", remaining)
	}
}

func TestCheckQuotaNeverNegative(t *testing.T) {
	mem := store.NewMemory()
	a := newTestAccountant(mem, 10)
	ctx := context.Background()

	if err := mem.AddVoiceMinutes(ctx, "acct-1", a.now(), 14); err != nil {
		t.Fatalf("AddVoiceMinutes err: %v", err)
	}

	remaining, used, err := a.CheckQuota(ctx, "acct-1", usagemodel.TierFree)
	if err != nil {
		t.Fatalf("CheckQuota err: %v", err)
	}
	if remaining != 0 {
		t.Fatalf("remaining must clamp to 0, got %d", remaining)
	}
	if used != 14 {
		t.Fatalf("used must report the real overage figure, got %d", used)
	}
}

func TestCommitElapsedCeilingRounding(t *testing.T) {
	cases := []struct {
		elapsed time.Duration
		want    int
	}{
		{0, 0},
		{60 * time.Second, 1},
		{61 * time.Second, 2},
		{2*time.Minute + 30*time.Second, 3},
	}

	for _, tc := range cases {
		mem := store.NewMemory()
		a := newTestAccountant(mem, 10)
		ctx := context.Background()

		minutes, err := a.CommitElapsed(ctx, "sess-1", "acct-1", tc.elapsed)
		if err != nil {
			t.Fatalf("CommitElapsed(%v) err: %v", tc.elapsed, err)
		}
		if minutes != tc.want {
			t.Fatalf("CommitElapsed(%v) = %d minutes, want %d", tc.elapsed, minutes, tc.want)
		}

		used, err := mem.VoiceMinutesUsed(ctx, "acct-1", a.now())
		if err != nil {
			t.Fatalf("VoiceMinutesUsed err: %v", err)
		}
		if used != tc.want {
			t.Fatalf("ledger shows %d minutes for elapsed %v, want %d", used, tc.elapsed, tc.want)
		}
	}
}

func TestQuotaMonotonicity(t *testing.T) {
	mem := store.NewMemory()
	a := newTestAccountant(mem, 10)
	ctx := context.Background()

	sessions := []time.Duration{90 * time.Second, 3 * time.Minute, 45 * time.Second}
	total := 0
	for i, elapsed := range sessions {
		minutes, err := a.CommitElapsed(ctx, "sess", "acct-1", elapsed)
		if err != nil {
			t.Fatalf("CommitElapsed #%d err: %v", i, err)
		}
		total += minutes

		remaining, _, err := a.CheckQuota(ctx, "acct-1", usagemodel.TierFree)
		if err != nil {
			t.Fatalf("CheckQuota err: %v", err)
		}
		if remaining < 0 {
			t.Fatalf("remaining went negative: %d", remaining)
		}
		if consumed := a.FreeLimit() - remaining; consumed < total && remaining > 0 {
			t.Fatalf("reported consumption %d behind committed total %d", consumed, total)
		}
	}

	used, err := mem.VoiceMinutesUsed(ctx, "acct-1", a.now())
	if err != nil {
		t.Fatalf("VoiceMinutesUsed err: %v", err)
	}
	if used != total {
		t.Fatalf("ledger %d != sum of commits %d", used, total)
	}
}

func TestCommitElapsedRetriesTransientFailure(t *testing.T) {
	flaky := &flakyUsageStore{Memory: store.NewMemory(), failures: 2}
	a := newTestAccountant(flaky, 10)
	ctx := context.Background()

	minutes, err := a.CommitElapsed(ctx, "sess-1", "acct-1", 61*time.Second)
	if err != nil {
		t.Fatalf("CommitElapsed err: %v", err)
	}
	if minutes != 2 {
		t.Fatalf("expected 2 minutes, got %d", minutes)
	}
	if flaky.calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", flaky.calls)
	}
}

func TestCommitElapsedSurfacesExhaustedRetries(t *testing.T) {
	flaky := &flakyUsageStore{Memory: store.NewMemory(), failures: 100}
	a := newTestAccountant(flaky, 10)
	ctx := context.Background()

	if _, err := a.CommitElapsed(ctx, "sess-1", "acct-1", time.Minute); !errors.Is(err, store.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable after exhausted retries, got %v", err)
	}
	if flaky.calls != commitAttempts {
		t.Fatalf("expected %d attempts, got %d", commitAttempts, flaky.calls)
	}
}

func TestCommitElapsedZeroSkipsStore(t *testing.T) {
	flaky := &flakyUsageStore{Memory: store.NewMemory(), failures: 100}
	a := newTestAccountant(flaky, 10)

	minutes, err := a.CommitElapsed(context.Background(), "sess-1", "acct-1", 0)
	if err != nil {
		t.Fatalf("CommitElapsed err: %v", err)
	}
	if minutes != 0 {
		t.Fatalf("expected 0 minutes, got %d", minutes)
	}
	if flaky.calls != 0 {
		t.Fatalf("zero-minute commit should not touch the store, got %d calls", flaky.calls)
	}
}
