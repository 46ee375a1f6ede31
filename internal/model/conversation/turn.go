package conversation

import "time"

// Roles a persisted turn may carry.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Turn persists one side of a completed voice exchange. Turns are written
// once after a round trip and never mutated.
type Turn struct {
	ID        string    `json:"id"`
	AccountID string    `json:"accountId"`
	SessionID string    `json:"sessionId"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}
