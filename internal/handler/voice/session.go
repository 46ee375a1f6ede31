package voice

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sproutvoice/backend/internal/auth"
	"github.com/sproutvoice/backend/internal/logging"
	"github.com/sproutvoice/backend/internal/model/conversation"
	"github.com/sproutvoice/backend/internal/model/profile"
	"github.com/sproutvoice/backend/internal/model/usage"
	"github.com/sproutvoice/backend/internal/store"
)

const (
	// maxUtteranceBytes caps one utterance buffer; roughly two minutes of
	// 16 kHz 16-bit mono PCM.
	maxUtteranceBytes = 4 << 20

	// historyWindow is the number of recent turns handed to the model.
	historyWindow = 10

	// commitTimeout bounds the detached billing commit at close time.
	commitTimeout = 30 * time.Second

	defaultProviderTimeout = 30 * time.Second
)

// Protocol-violation and lifecycle errors surfaced to the client as error
// events. Per-utterance failures never terminate the session.
var (
	ErrSessionNotStarted     = errors.New("session not started")
	ErrSessionAlreadyStarted = errors.New("session already started")
	ErrNoOpenUtterance       = errors.New("no open utterance")
	ErrUtteranceInFlight     = errors.New("utterance already in flight")
	ErrUtteranceTooLong      = errors.New("utterance too long, discarded")
)

// Transcriber converts one complete utterance to text.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, format string) (string, error)
}

// Responder generates the assistant reply for a transcript.
type Responder interface {
	Respond(ctx context.Context, transcript string, history []conversation.Turn, prof *profile.Profile) (string, int, error)
}

// Accountant owns quota checks and the close-time billing commit.
type Accountant interface {
	CheckQuota(ctx context.Context, accountID string, tier usage.Tier) (remaining, used int, err error)
	CommitElapsed(ctx context.Context, sessionID, accountID string, elapsed time.Duration) (int, error)
	FreeLimit() int
}

// emitter is the outbound half of the channel. The websocket transport
// implements it in production; tests record emitted messages instead.
type emitter interface {
	emit(msgType, sessionID string, data interface{})
}

type sessionState int

const (
	stateAwaitingStart sessionState = iota
	stateActive
	stateClosing
	stateClosed
)

func (s sessionState) String() string {
	switch s {
	case stateAwaitingStart:
		return "awaiting_start"
	case stateActive:
		return "active"
	case stateClosing:
		return "closing"
	case stateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Deps bundles the collaborators a session needs. Transcriber and Responder
// may be nil when the corresponding provider is not configured; the session
// degrades to failure events instead of refusing the channel.
type Deps struct {
	Transcriber       Transcriber
	Responder         Responder
	Accountant        Accountant
	Turns             store.TurnStore
	Profiles          profile.Store
	TranscribeTimeout time.Duration
	RespondTimeout    time.Duration
}

type utterance struct {
	buf    bytes.Buffer
	format string
}

// session is the per-connection state machine. All message handling runs on
// a single goroutine; mu guards only the fields the disconnect path touches
// concurrently (state, billed, startedAt).
type session struct {
	id        string
	accountID string
	tier      usage.Tier

	deps Deps
	out  emitter
	now  func() time.Time

	mu        sync.Mutex
	state     sessionState
	billed    bool
	startedAt time.Time

	minutesAtStart int
	warned         bool
	utterance      *utterance
}

func newSession(identity auth.Identity, deps Deps, out emitter) *session {
	if deps.TranscribeTimeout <= 0 {
		deps.TranscribeTimeout = defaultProviderTimeout
	}
	if deps.RespondTimeout <= 0 {
		deps.RespondTimeout = defaultProviderTimeout
	}
	return &session{
		id:        uuid.NewString(),
		accountID: identity.AccountID,
		tier:      identity.Tier,
		deps:      deps,
		out:       out,
		now:       time.Now,
	}
}

// handleMessage dispatches one inbound message. It returns false when the
// session is over and the read loop should stop.
func (s *session) handleMessage(ctx context.Context, msg *inboundMessage) bool {
	switch msg.Type {
	case msgStartSession:
		s.handleStartSession(ctx)
	case msgStartTurn:
		s.handleStartTurn()
	case msgAudioChunk:
		s.handleAudioChunk(ctx, msg.Data)
	case msgEndSession:
		s.handleEndSession()
		return false
	default:
		s.sendError("unsupported message type: " + msg.Type)
	}
	return true
}

func (s *session) handleStartSession(ctx context.Context) {
	if s.currentState() != stateAwaitingStart {
		s.sendProtocolError(ErrSessionAlreadyStarted)
		return
	}

	remaining, used, err := s.deps.Accountant.CheckQuota(ctx, s.accountID, s.tier)
	if err != nil {
		// Fail closed: without a quota answer we cannot meter the session.
		logging.Warnw("voice: quota check failed",
			"session_id", s.id, "account_id", s.accountID, "err", err)
		s.sendError("quota check unavailable, try again")
		return
	}

	if s.tier == usage.TierFree && remaining <= 0 {
		s.send(msgQuotaExceeded, quotaExceededPayload{
			MinutesUsed: used,
			Limit:       s.deps.Accountant.FreeLimit(),
		})
		return
	}

	s.mu.Lock()
	s.state = stateActive
	s.startedAt = s.now()
	s.mu.Unlock()
	s.minutesAtStart = remaining

	logging.Infow("voice: session started",
		"session_id", s.id, "account_id", s.accountID,
		"tier", string(s.tier), "minutes_remaining", remaining)
	s.send(msgSessionStarted, sessionStartedPayload{SessionID: s.id, MinutesRemaining: remaining})
}

func (s *session) handleStartTurn() {
	if s.currentState() != stateActive {
		s.sendProtocolError(ErrSessionNotStarted)
		return
	}
	if s.utterance != nil {
		s.sendProtocolError(ErrUtteranceInFlight)
		return
	}
	s.utterance = &utterance{}
}

func (s *session) handleAudioChunk(ctx context.Context, raw json.RawMessage) {
	if s.currentState() != stateActive {
		s.sendProtocolError(ErrSessionNotStarted)
		return
	}
	if s.utterance == nil {
		s.sendProtocolError(ErrNoOpenUtterance)
		return
	}

	var chunk audioChunkPayload
	if err := json.Unmarshal(raw, &chunk); err != nil {
		s.utterance = nil
		s.sendError("invalid audio payload")
		return
	}

	if s.utterance.buf.Len()+len(chunk.AudioData) > maxUtteranceBytes {
		s.utterance = nil
		s.sendProtocolError(ErrUtteranceTooLong)
		return
	}
	s.utterance.buf.Write(chunk.AudioData)
	if chunk.Format != "" {
		s.utterance.format = chunk.Format
	}

	if chunk.IsLast {
		s.processUtterance(ctx)
	}
}

// processUtterance runs the transcribe → respond → persist pipeline for the
// closed utterance. It runs synchronously on the session goroutine, so at
// most one utterance is ever in flight.
func (s *session) processUtterance(ctx context.Context) {
	utt := s.utterance
	s.utterance = nil

	audio := utt.buf.Bytes()
	if len(audio) == 0 {
		s.send(msgTranscriptionFailed, errorPayload{Message: "empty utterance"})
		return
	}
	if s.deps.Transcriber == nil {
		s.send(msgTranscriptionFailed, errorPayload{Message: "transcription not configured"})
		return
	}

	// The provider context is detached from the transport: a disconnect must
	// not abort an in-flight call, only discard its result afterwards.
	tctx, cancel := context.WithTimeout(context.Background(), s.deps.TranscribeTimeout)
	text, err := s.deps.Transcriber.Transcribe(tctx, audio, utt.format)
	cancel()
	if s.closed() {
		// The session was finalized while the provider call was in flight;
		// nothing may be emitted or persisted after billing.
		logging.Debugw("voice: discarding transcript after close", "session_id", s.id)
		return
	}
	if err != nil {
		logging.Warnw("voice: transcription failed",
			"session_id", s.id, "bytes", len(audio), "err", err)
		s.send(msgTranscriptionFailed, errorPayload{Message: "could not transcribe audio"})
		return
	}
	text = strings.TrimSpace(text)
	if text == "" {
		s.send(msgTranscriptionFailed, errorPayload{Message: "no speech detected"})
		return
	}

	s.send(msgTranscription, transcriptionPayload{Text: text})
	s.respond(ctx, text)
}

func (s *session) respond(ctx context.Context, transcript string) {
	history, err := s.deps.Turns.RecentTurns(ctx, s.accountID, historyWindow)
	if err != nil {
		// A reply without history beats no reply.
		logging.Warnw("voice: history fetch failed",
			"session_id", s.id, "account_id", s.accountID, "err", err)
		history = nil
	}

	var prof *profile.Profile
	if s.deps.Profiles != nil {
		if p, ok := s.deps.Profiles.FindByAccount(s.accountID); ok {
			prof = &p
		}
	}

	userTurn := conversation.Turn{
		AccountID: s.accountID,
		SessionID: s.id,
		Role:      conversation.RoleUser,
		Content:   transcript,
		CreatedAt: s.now(),
	}

	if s.deps.Responder == nil {
		s.persistTurns(ctx, userTurn)
		s.send(msgGenerationFailed, errorPayload{Message: "assistant not configured"})
		return
	}

	// Detached for the same reason as the transcription call.
	rctx, cancel := context.WithTimeout(context.Background(), s.deps.RespondTimeout)
	reply, tokens, err := s.deps.Responder.Respond(rctx, transcript, history, prof)
	cancel()
	if s.closed() {
		logging.Debugw("voice: discarding reply after close", "session_id", s.id)
		return
	}
	if err != nil {
		// The user's words were heard; keep them even when the reply is lost.
		logging.Warnw("voice: reply generation failed", "session_id", s.id, "err", err)
		s.persistTurns(ctx, userTurn)
		s.send(msgGenerationFailed, errorPayload{Message: "could not generate a reply"})
		return
	}

	s.send(msgAssistantReply, assistantReplyPayload{Text: reply, TokensUsed: tokens})
	assistantTurn := conversation.Turn{
		AccountID: s.accountID,
		SessionID: s.id,
		Role:      conversation.RoleAssistant,
		Content:   reply,
		CreatedAt: s.now(),
	}
	s.persistTurns(ctx, userTurn, assistantTurn)
	s.maybeWarnLimit()
}

func (s *session) persistTurns(ctx context.Context, turns ...conversation.Turn) {
	if err := s.deps.Turns.SaveTurns(ctx, turns...); err != nil {
		logging.Errorw("voice: persist turns failed",
			"session_id", s.id, "account_id", s.accountID,
			"turns", len(turns), "err", err)
	}
}

// maybeWarnLimit emits a one-shot warning once a free session has at most one
// billable minute left, based on server-side elapsed time.
func (s *session) maybeWarnLimit() {
	if s.tier != usage.TierFree || s.warned {
		return
	}

	s.mu.Lock()
	started := s.startedAt
	s.mu.Unlock()

	remaining := s.minutesAtStart - usage.BilledMinutes(s.now().Sub(started))
	if remaining < 0 {
		remaining = 0
	}
	if remaining <= 1 {
		s.warned = true
		s.send(msgLimitWarning, limitWarningPayload{MinutesRemaining: remaining})
	}
}

func (s *session) handleEndSession() {
	minutes, already := s.finalize(s.now())
	if already {
		return
	}
	s.send(msgSessionEnded, sessionEndedPayload{DurationMinutes: minutes})
}

// disconnect finalizes the session at the moment the transport dropped. Safe
// to call multiple times and concurrently with the session goroutine.
func (s *session) disconnect() {
	if _, already := s.finalize(s.now()); !already {
		logging.Infow("voice: session finalized on disconnect",
			"session_id", s.id, "account_id", s.accountID)
	}
}

// finalize bills the session exactly once using the elapsed time up to at.
// The second return is true when the session was already finalized.
func (s *session) finalize(at time.Time) (int, bool) {
	s.mu.Lock()
	if s.billed {
		s.mu.Unlock()
		return 0, true
	}
	s.billed = true
	s.state = stateClosing
	started := s.startedAt
	s.mu.Unlock()

	var minutes int
	if !started.IsZero() {
		// The commit must survive the request context: the connection that
		// spawned this session may already be gone.
		ctx, cancel := context.WithTimeout(context.Background(), commitTimeout)
		defer cancel()
		minutes, _ = s.deps.Accountant.CommitElapsed(ctx, s.id, s.accountID, at.Sub(started))
	}

	s.mu.Lock()
	s.state = stateClosed
	s.mu.Unlock()
	return minutes, false
}

func (s *session) currentState() sessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *session) closed() bool {
	state := s.currentState()
	return state == stateClosing || state == stateClosed
}

func (s *session) send(msgType string, data interface{}) {
	s.out.emit(msgType, s.id, data)
}

func (s *session) sendError(message string) {
	s.send(msgError, errorPayload{Message: message})
}

func (s *session) sendProtocolError(err error) {
	s.sendError(err.Error())
}
