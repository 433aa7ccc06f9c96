// Package api provides the HTTP server for LearnQuest.
// It exposes the gamification engine as a small JSON API.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tutu-network/learnquest/internal/app"
	"github.com/tutu-network/learnquest/internal/app/engagement"
	"github.com/tutu-network/learnquest/internal/domain"
	"github.com/tutu-network/learnquest/internal/health"
	"github.com/tutu-network/learnquest/internal/logger"
)

// Version is reported by /api/version.
const Version = "0.1.0"

// maxBodyBytes caps request bodies, catalogue uploads included.
const maxBodyBytes = 1 << 20

// Server is the LearnQuest HTTP API server.
type Server struct {
	engine         *engagement.Engine
	store          domain.Reader
	catalog        app.CatalogWriter // nil disables catalogue uploads
	health         *health.Checker   // nil reports a bare "ok"
	log            *logger.Logger
	metricsEnabled bool
	timeout        time.Duration
	defaultLimit   int // leaderboard size when ?limit is absent
}

// NewServer creates a new API server.
func NewServer(engine *engagement.Engine, store domain.Reader, log *logger.Logger) *Server {
	if log == nil {
		log = logger.Nop()
	}
	return &Server{
		engine:  engine,
		store:   store,
		log:     log.With("component", "api"),
		timeout: 30 * time.Second,
	}
}

// EnableMetrics enables the /metrics Prometheus endpoint.
func (s *Server) EnableMetrics() { s.metricsEnabled = true }

// SetCatalog enables user and catalogue writes.
func (s *Server) SetCatalog(w app.CatalogWriter) { s.catalog = w }

// SetHealth sets the checker behind /health.
func (s *Server) SetHealth(c *health.Checker) { s.health = c }

// SetTimeout bounds request handling time.
func (s *Server) SetTimeout(d time.Duration) {
	if d > 0 {
		s.timeout = d
	}
}

// SetDefaultLimit sets the leaderboard size used when a request names none.
func (s *Server) SetDefaultLimit(n int) { s.defaultLimit = n }

// Handler returns the chi router with all routes mounted.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(s.timeout))
	r.Use(corsMiddleware)

	r.Get("/health", s.handleHealth)
	if s.metricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}

	r.Route("/api", func(r chi.Router) {
		r.Get("/version", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, map[string]string{"version": Version})
		})

		r.Route("/events", func(r chi.Router) {
			r.Post("/activity-completed", s.handleActivityCompleted)
			r.Post("/course-enrolled", s.handleCourseEnrolled)
			r.Post("/course-completed", s.handleCourseCompleted)
		})

		r.Get("/activities/{activityID}/access", s.handleAccess)
		r.Get("/leaderboard", s.handleLeaderboard)

		r.Route("/users/{userID}", func(r chi.Router) {
			r.Get("/", s.handleSummary)
			r.Put("/", s.handleUpsertUser)
			r.Get("/rank", s.handleRank)
			r.Get("/ledger", s.handleLedger)
			r.Post("/recalculate", s.handleRecalculate)
			r.Post("/redeem", s.handleRedeem)
		})

		r.Post("/catalog", s.handleCatalog)
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.health == nil {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		return
	}
	statuses := s.health.RunOnce(r.Context())
	status, code := "ok", http.StatusOK
	for _, st := range statuses {
		if !st.Healthy {
			status, code = "degraded", http.StatusServiceUnavailable
			break
		}
	}
	writeJSON(w, code, map[string]interface{}{
		"status": status,
		"checks": statuses,
	})
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]interface{}{
			"message": msg,
			"type":    errorType(status),
		},
	})
}

func errorType(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "invalid_request"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	}
	return "error"
}

// errorStatus maps engine errors onto HTTP status codes.
func errorStatus(err error) int {
	switch {
	case domain.IsValidation(err), errors.Is(err, domain.ErrInvalidCriteria):
		return http.StatusBadRequest
	case domain.IsNotFound(err):
		return http.StatusNotFound
	case domain.IsConflict(err):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

// fail writes err with its mapped status. Server errors are logged with
// their cause and answered with a generic message.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := errorStatus(err)
	msg := err.Error()
	if status >= http.StatusInternalServerError {
		s.log.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"request_id", middleware.GetReqID(r.Context()),
			"error", err,
		)
		msg = http.StatusText(status)
		if errors.Is(err, domain.ErrEventFailed) {
			msg = domain.ErrEventFailed.Error()
		}
	}
	writeError(w, status, msg)
}

// decodeJSON reads a size-limited JSON body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return false
	}
	return true
}

// requestLogger logs each request once it completes.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

// corsMiddleware adds CORS headers for browser clients.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}
