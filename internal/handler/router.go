package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/sproutvoice/backend/internal/handler/voice"
	"github.com/sproutvoice/backend/internal/middleware"
	"github.com/sproutvoice/backend/pkg/utils"
)

// Pinger reports backing-store liveness for the health endpoint. A nil
// pinger means the in-memory store is in use and the check is trivially ok.
type Pinger interface {
	Ping(ctx context.Context) error
}

// NewRouter assembles the HTTP surface: health probe plus the voice
// websocket endpoint under /api.
func NewRouter(voiceHandler *voice.Handler, storePinger Pinger) chi.Router {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS)

	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		if storePinger != nil {
			if err := storePinger.Ping(req.Context()); err != nil {
				utils.RespondError(w, http.StatusServiceUnavailable, "store unavailable")
				return
			}
		}
		utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(api chi.Router) {
		voiceHandler.RegisterRoutes(api)
	})

	return r
}
