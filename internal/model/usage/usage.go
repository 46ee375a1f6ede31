package usage

import "time"

// Tier is the subscription class snapshot taken at session start.
type Tier string

const (
	TierFree      Tier = "free"
	TierUnlimited Tier = "unlimited"
)

// Unbounded is the remaining-minutes sentinel for the unlimited tier.
const Unbounded = -1

// ParseTier maps a stored/claimed tier string onto a known Tier. Unknown
// values degrade to the free tier so a malformed claim never grants
// unlimited minutes.
func ParseTier(s string) Tier {
	if Tier(s) == TierUnlimited {
		return TierUnlimited
	}
	return TierFree
}

// Record is one row of the daily usage ledger, keyed by account and
// calendar date. VoiceMinutesUsed only ever increases within a day.
type Record struct {
	AccountID        string    `json:"accountId"`
	Day              time.Time `json:"day"`
	VoiceMinutesUsed int       `json:"voiceMinutesUsed"`
	MessagesUsed     int       `json:"messagesUsed"`
}

// BilledMinutes converts elapsed wall-clock time to billable whole minutes
// with ceiling rounding: any partial minute counts as a full minute, and a
// zero or negative duration bills nothing.
func BilledMinutes(elapsed time.Duration) int {
	if elapsed <= 0 {
		return 0
	}
	return int((elapsed + time.Minute - 1) / time.Minute)
}

// DayOf truncates a timestamp to its calendar date in UTC, the ledger key.
func DayOf(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
