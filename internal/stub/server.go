package stub

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"golang.org/x/time/rate"

	"github.com/raphaelgruber/kbops-go/internal/kb"
)

var errNotFound = errors.New("not found")

// conflictError marks store rejections that map to 409.
type conflictError string

func errConflict(msg string) error { return conflictError(msg) }

func (e conflictError) Error() string { return string(e) }

// Config tunes the stub server. Zero values disable auth and rate
// limiting and use the default simulation step.
type Config struct {
	// ProgressStep is the percent a processing job advances per fetch.
	ProgressStep int
	// AuthToken, when set, requires "Bearer <token>" on every request.
	AuthToken string
	// RateLimitRPS, when positive, enables per-client rate limiting.
	RateLimitRPS   float64
	RateLimitBurst int
	// WatchInterval is the push cadence of the websocket watch channel.
	WatchInterval time.Duration
	// AllowedOrigins for CORS; empty allows any origin (local dev).
	AllowedOrigins []string
}

// Server serves the stub API.
type Server struct {
	store  *Store
	cfg    Config
	logger *slog.Logger
	router chi.Router
}

// New creates a stub server. A nil logger uses the default.
func New(cfg Config, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.WatchInterval <= 0 {
		cfg.WatchInterval = 250 * time.Millisecond
	}
	s := &Server{
		store:  NewStore(cfg.ProgressStep),
		cfg:    cfg,
		logger: logger,
	}
	s.router = s.routes()
	return s
}

// Store exposes the backing store so tests can drive job state directly.
func (s *Server) Store() *Store { return s.store }

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()

	origins := s.cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key"},
	}))
	r.Use(s.requestLog)
	if s.cfg.RateLimitRPS > 0 {
		r.Use(s.rateLimit())
	}
	if s.cfg.AuthToken != "" {
		r.Use(s.auth)
	}

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "service": "kbops-stub"})
	})

	r.Route("/kb", func(r chi.Router) {
		r.Post("/import", s.createJob)
		r.Get("/import", s.listJobs)
		r.Get("/import/{jobID}", s.getJob)
		r.Post("/import/{jobID}/commit", s.commitJob)
		r.Post("/import/{jobID}/cancel", s.cancelJob)
		r.Get("/import/{jobID}/watch", s.watchJob)

		r.Get("/assignments", s.listAssignments)
		r.Post("/assign", s.assign)
		r.Delete("/assignments/{id}", s.unassign)
	})

	return r
}

// requestLog logs every request with timing.
func (s *Server) requestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"duration_ms", time.Since(start).Milliseconds())
	})
}

// auth enforces the bearer token; failures are 403 per the error taxonomy.
func (s *Server) auth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if token != s.cfg.AuthToken {
			writeDetail(w, http.StatusForbidden, "access denied")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// rateLimit applies a per-client token bucket and answers 429 when
// exceeded.
func (s *Server) rateLimit() func(http.Handler) http.Handler {
	burst := s.cfg.RateLimitBurst
	if burst <= 0 {
		burst = 1
	}

	var mu sync.Mutex
	limiters := make(map[string]*rate.Limiter)
	limiterFor := func(ip string) *rate.Limiter {
		mu.Lock()
		defer mu.Unlock()
		l, ok := limiters[ip]
		if !ok {
			l = rate.NewLimiter(rate.Limit(s.cfg.RateLimitRPS), burst)
			limiters[ip] = l
		}
		return l
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip, _, err := net.SplitHostPort(r.RemoteAddr)
			if err != nil {
				ip = r.RemoteAddr
			}
			if !limiterFor(ip).Allow() {
				w.Header().Set("Retry-After", "1")
				writeDetail(w, http.StatusTooManyRequests, "too many requests")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// createJobRequest is the job creation body.
type createJobRequest struct {
	Kind           kb.SourceKind   `json:"kind"`
	Source         json.RawMessage `json:"source"`
	TargetKBID     string          `json:"targetKbId,omitempty"`
	IdempotencyKey string          `json:"idempotencyKey"`
}

func (s *Server) createJob(w http.ResponseWriter, r *http.Request) {
	var req createJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, "invalid request body")
		return
	}
	if len(req.Source) == 0 {
		writeDetail(w, http.StatusUnprocessableEntity, "source is required")
		return
	}
	source, err := kb.DecodeSource(req.Source)
	if err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	if req.Kind != "" && req.Kind != source.Kind() {
		writeDetail(w, http.StatusUnprocessableEntity, "kind does not match source")
		return
	}

	id, err := s.store.CreateJob(source, req.TargetKBID, req.IdempotencyKey)
	if err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"jobId": id})
}

func (s *Server) listJobs(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.store.ListJobs())
}

func (s *Server) getJob(w http.ResponseWriter, r *http.Request) {
	job, ok := s.store.FetchJob(chi.URLParam(r, "jobID"))
	if !ok {
		writeDetail(w, http.StatusNotFound, "job not found")
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) commitJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "jobID")
	err := s.store.CommitJob(id, r.Header.Get("Idempotency-Key"))
	switch {
	case err == nil:
		job, _ := s.store.PeekJob(id)
		writeJSON(w, http.StatusOK, map[string]any{"status": job.Status})
	case errors.Is(err, errNotFound):
		writeDetail(w, http.StatusNotFound, "job not found")
	default:
		var ce conflictError
		if errors.As(err, &ce) {
			writeDetail(w, http.StatusConflict, err.Error())
			return
		}
		writeDetail(w, http.StatusInternalServerError, err.Error())
	}
}

func (s *Server) cancelJob(w http.ResponseWriter, r *http.Request) {
	status, err := s.store.CancelJob(chi.URLParam(r, "jobID"))
	if errors.Is(err, errNotFound) {
		writeDetail(w, http.StatusNotFound, "job not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": status})
}

type assignBody struct {
	Scope   kb.Scope `json:"scope"`
	ScopeID string   `json:"scopeId,omitempty"`
	KBID    string   `json:"kbId"`
}

func (s *Server) assign(w http.ResponseWriter, r *http.Request) {
	var req assignBody
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, "invalid request body")
		return
	}
	a, err := s.store.UpsertAssignment(req.Scope, req.ScopeID, req.KBID)
	if err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (s *Server) listAssignments(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.store.ListAssignments())
}

func (s *Server) unassign(w http.ResponseWriter, r *http.Request) {
	if !s.store.DeleteAssignment(chi.URLParam(r, "id")) {
		writeDetail(w, http.StatusNotFound, "assignment not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(value)
}

// writeDetail writes the machine-readable error envelope the client's
// classifier consumes.
func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}
