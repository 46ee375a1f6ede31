package voice

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/sproutvoice/backend/internal/auth"
	"github.com/sproutvoice/backend/internal/logging"
	"github.com/sproutvoice/backend/pkg/utils"
)

const (
	readTimeout    = 60 * time.Second
	pingInterval   = 54 * time.Second
	eventQueueSize = 16
)

// Handler upgrades authenticated HTTP requests to voice websocket channels
// and runs one session per connection.
type Handler struct {
	verifier auth.Verifier
	deps     Deps
	upgrader websocket.Upgrader
}

// NewHandler wires the websocket endpoint to its collaborators.
func NewHandler(verifier auth.Verifier, deps Deps) *Handler {
	return &Handler{
		verifier: verifier,
		deps:     deps,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				// Origin checks are delegated to the deployment edge.
				return true
			},
		},
	}
}

// RegisterRoutes mounts the websocket endpoint.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/voice/ws", h.handleWebSocket)
}

func (h *Handler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	identity, err := h.verifier.Verify(r.Context(), bearerCredential(r))
	if err != nil {
		// Reject before the upgrade so the client gets a plain 401.
		logging.Warnw("voice: rejected unauthenticated channel", "remote", r.RemoteAddr)
		utils.RespondError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Warnw("voice: websocket upgrade failed", "err", err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	out := &wsEmitter{conn: conn}
	sess := newSession(identity, h.deps, out)
	logging.Infow("voice: channel open",
		"session_id", sess.id, "account_id", identity.AccountID, "remote", r.RemoteAddr)

	conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readTimeout))
	})
	go h.pingLoop(ctx, out, sess.id)

	events := make(chan *inboundMessage, eventQueueSize)
	go func() {
		defer close(events)
		for {
			var msg inboundMessage
			if err := conn.ReadJSON(&msg); err != nil {
				if websocket.IsUnexpectedCloseError(err,
					websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					logging.Warnw("voice: read error", "session_id", sess.id, "err", err)
				}
				// Billing is anchored to the moment the transport dropped,
				// not to whenever an in-flight provider call returns.
				sess.disconnect()
				cancel()
				return
			}
			conn.SetReadDeadline(time.Now().Add(readTimeout))

			select {
			case events <- &msg:
			case <-ctx.Done():
				return
			}
		}
	}()

	for msg := range events {
		if !sess.handleMessage(ctx, msg) {
			break
		}
	}
	sess.disconnect()
	logging.Infow("voice: channel closed", "session_id", sess.id)
}

func (h *Handler) pingLoop(ctx context.Context, out *wsEmitter, sessionID string) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := out.ping(); err != nil {
				logging.Debugw("voice: ping failed", "session_id", sessionID, "err", err)
				return
			}
		}
	}
}

// bearerCredential pulls the token from the Authorization header, falling
// back to the token query parameter for browser websocket clients that
// cannot set headers.
func bearerCredential(r *http.Request) string {
	if header := r.Header.Get("Authorization"); header != "" {
		if token, found := strings.CutPrefix(header, "Bearer "); found {
			return token
		}
		return ""
	}
	return r.URL.Query().Get("token")
}

// wsEmitter serializes writes to the connection; the session goroutine and
// the ping loop both write.
type wsEmitter struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (e *wsEmitter) emit(msgType, sessionID string, data interface{}) {
	e.mu.Lock()
	defer e.mu.Unlock()

	msg := outgoingMessage{
		Type:      msgType,
		SessionID: sessionID,
		Data:      data,
		Timestamp: time.Now().Unix(),
	}
	if err := e.conn.WriteJSON(msg); err != nil {
		logging.Warnw("voice: write failed", "type", msgType, "session_id", sessionID, "err", err)
	}
}

func (e *wsEmitter) ping() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.conn.WriteMessage(websocket.PingMessage, nil)
}
