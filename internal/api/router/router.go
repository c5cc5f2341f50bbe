package router

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/Avaneeshakrishna/cliniccall-AI/internal/conversation"
	httpmiddleware "github.com/Avaneeshakrishna/cliniccall-AI/internal/http/middleware"
	"github.com/Avaneeshakrishna/cliniccall-AI/internal/scheduling"
	"github.com/Avaneeshakrishna/cliniccall-AI/pkg/logging"
)

// Config holds router configuration
type Config struct {
	Logger             *logging.Logger
	ChatHandler        *conversation.Handler
	SchedulingHandler  *scheduling.Handler
	TriageHandler      http.Handler
	WebchatHandler     http.Handler
	MetricsHandler     http.Handler
	AdminAuthSecret    string
	VoiceAPIToken      string
	CORSAllowedOrigins []string
	RateLimitPerSec    float64
	RateLimitBurst     int

	// HealthCheck reports dependency health. Nil means always healthy.
	HealthCheck func(ctx context.Context) error
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins, r))
	}
	r.Use(httpmiddleware.RequestLogger(cfg.Logger))

	r.Get("/health", healthHandler(cfg.HealthCheck))
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	r.Route("/api", func(api chi.Router) {
		if cfg.WebchatHandler != nil {
			// Websocket upgrades skip compression and the per-request limiter.
			api.Handle("/chat/ws", cfg.WebchatHandler)
		}

		api.Group(func(r chi.Router) {
			r.Use(middleware.Compress(5))
			r.Use(httpmiddleware.RateLimit(cfg.RateLimitPerSec, cfg.RateLimitBurst))

			if cfg.ChatHandler != nil {
				r.Post("/chat", cfg.ChatHandler.Chat)
				r.Get("/chat/{conversationID}/history", cfg.ChatHandler.History)
			}
			if cfg.TriageHandler != nil {
				r.Post("/triage", cfg.TriageHandler.ServeHTTP)
			}
			if h := cfg.SchedulingHandler; h != nil {
				r.Get("/slots", h.ListSlots)
				r.Post("/patients/ensure", h.EnsurePatient)
				r.With(httpmiddleware.VoiceToken(cfg.VoiceAPIToken)).Post("/appointments/voice-book", h.VoiceBook)

				r.Group(func(admin chi.Router) {
					admin.Use(httpmiddleware.AdminJWT(cfg.AdminAuthSecret))
					admin.Post("/appointments/book", h.Book)
					admin.Post("/appointments/{appointmentID}/cancel", h.Cancel)
					admin.Get("/urgent_cases", h.ListUrgentCases)
				})
			}
		})
	})

	return r
}

func healthHandler(check func(ctx context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status, code := "ok", http.StatusOK
		if check != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := check(ctx); err != nil {
				status, code = "degraded", http.StatusServiceUnavailable
			}
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(map[string]string{"status": status})
	}
}
