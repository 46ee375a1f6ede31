package profile

import "time"

// Profile captures the child context folded into assistant prompts.
type Profile struct {
	AccountID      string    `json:"accountId"`
	ChildName      string    `json:"childName"`
	ChildBirthdate time.Time `json:"childBirthdate,omitempty"`
	Notes          string    `json:"notes,omitempty"` // caregiver-supplied context (sleep habits, allergies, ...)
}

// AgeMonths returns the child's age in whole months at the given time, or -1
// when no birthdate is on record.
func (p Profile) AgeMonths(now time.Time) int {
	if p.ChildBirthdate.IsZero() {
		return -1
	}
	months := (now.Year()-p.ChildBirthdate.Year())*12 + int(now.Month()) - int(p.ChildBirthdate.Month())
	if now.Day() < p.ChildBirthdate.Day() {
		months--
	}
	if months < 0 {
		return 0
	}
	return months
}

// Seed provides a demo profile for store-less development runs.
func Seed() []Profile {
	return []Profile{
		{
			AccountID:      "demo-account",
			ChildName:      "Mia",
			ChildBirthdate: time.Date(2024, time.November, 3, 0, 0, 0, 0, time.UTC),
			Notes:          "short napper, currently teething",
		},
	}
}
