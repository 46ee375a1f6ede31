package voice

import "encoding/json"

// Client → server message types.
const (
	msgStartSession = "start_session"
	msgStartTurn    = "start_turn"
	msgAudioChunk   = "audio_chunk"
	msgEndSession   = "end_session"
)

// Server → client message types.
const (
	msgSessionStarted      = "session_started"
	msgQuotaExceeded       = "quota_exceeded"
	msgTranscription       = "transcription"
	msgAssistantReply      = "assistant_reply"
	msgTranscriptionFailed = "transcription_failed"
	msgGenerationFailed    = "generation_failed"
	msgSessionEnded        = "session_ended"
	msgLimitWarning        = "limit_warning"
	msgError               = "error"
)

type inboundMessage struct {
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp int64           `json:"timestamp,omitempty"`
}

type outgoingMessage struct {
	Type      string      `json:"type"`
	SessionID string      `json:"sessionId,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp int64       `json:"timestamp"`
}

// audioChunkPayload carries one chunk of the open utterance. AudioData is
// base64 on the wire (encoding/json's []byte handling).
type audioChunkPayload struct {
	AudioData []byte `json:"audioData"`
	Format    string `json:"format,omitempty"`
	IsLast    bool   `json:"isLast"`
}

type sessionStartedPayload struct {
	SessionID string `json:"sessionId"`
	// MinutesRemaining is -1 for the unlimited tier.
	MinutesRemaining int `json:"minutesRemaining"`
}

type quotaExceededPayload struct {
	MinutesUsed int `json:"minutesUsed"`
	Limit       int `json:"limit"`
}

type transcriptionPayload struct {
	Text string `json:"text"`
}

type assistantReplyPayload struct {
	Text       string `json:"text"`
	TokensUsed int    `json:"tokensUsed"`
}

type sessionEndedPayload struct {
	DurationMinutes int `json:"durationMinutes"`
}

type limitWarningPayload struct {
	MinutesRemaining int `json:"minutesRemaining"`
}

type errorPayload struct {
	Message string `json:"message"`
}
