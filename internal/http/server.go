package http

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"sort"
	"sync"
	"time"

	"gastos/internal/auth"
	"gastos/internal/ledger"
	"gastos/internal/log"
	"gastos/internal/middleware/ratelimit"
	"gastos/internal/middleware/security"
	"gastos/internal/middleware/trace"
	"gastos/internal/services"
	appweb "gastos/web"
)

var errTemplatesMissing = errors.New("templates not loaded")

// Config wires the server to the application services.
type Config struct {
	Addr   string
	Ledger *services.LedgerService
	Auth   *auth.Gateway
	Logger *log.Logger
	// HouseholdUsers feeds the report user selector. Empty lists every
	// registered account instead.
	HouseholdUsers []string
	MaxUploadBytes int64
	// SecureCookies marks the session cookie Secure; enable behind TLS.
	SecureCookies bool
	RateLimit     ratelimit.Config
	// Templates overrides the embedded templates, for tests.
	Templates fs.FS
	Now       func() time.Time
}

// Server is the household ledger web UI and its small JSON API.
type Server struct {
	http.Server
	ledger     *services.LedgerService
	auth       *auth.Gateway
	logger     *log.Logger
	templates  *template.Template
	limiter    *ratelimit.Limiter
	detector   *security.Detector
	tracer     *trace.Middleware
	households []string
	maxUpload  int64
	secure     bool
	now        func() time.Time
	started    time.Time

	shutdownOnce sync.Once
}

// NewServer configures routes and templates, returning a ready-to-run server.
func NewServer(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}
	logger = logger.WithComponent(log.ComponentHTTP)
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	maxUpload := cfg.MaxUploadBytes
	if maxUpload <= 0 {
		maxUpload = services.DefaultMaxUploadBytes
	}

	detector := security.NewDetector()
	s := &Server{
		ledger:     cfg.Ledger,
		auth:       cfg.Auth,
		logger:     logger,
		limiter:    ratelimit.NewLimiter(cfg.RateLimit),
		detector:   detector,
		tracer:     trace.NewMiddleware(logger, detector.ExtractClientIP),
		households: cfg.HouseholdUsers,
		maxUpload:  maxUpload,
		secure:     cfg.SecureCookies,
		now:        now,
		started:    now(),
	}

	templatesFS := cfg.Templates
	if templatesFS == nil {
		templatesFS = appweb.TemplatesFS
	}
	t, err := template.New("").Funcs(templateFuncs).ParseFS(templatesFS, "templates/*.html")
	if err != nil {
		logger.Warn("Failed parsing templates", log.FieldError, err)
	} else {
		s.templates = t
	}

	mux := http.NewServeMux()
	s.routes(mux)

	var handler http.Handler = mux
	handler = s.limiter.Middleware(detector.ExtractClientIP, s.onRateLimited,
		http.MethodPost, http.MethodPatch, http.MethodDelete)(handler)
	handler = detector.Middleware(handler)
	handler = s.tracer.Middleware(handler)
	handler = security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware(handler)

	s.Server = http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

func (s *Server) routes(mux *http.ServeMux) {
	if sub, err := fs.Sub(appweb.StaticFS, "static"); err == nil {
		static := http.StripPrefix("/static/", http.FileServer(http.FS(sub)))
		mux.Handle("GET /static/", security.StaticAssetMiddleware(3600)(static))
	} else {
		s.logger.Warn("Failed to mount embedded static FS", log.FieldError, err)
	}

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.HandleFunc("GET /metrics", s.handleMetrics)

	mux.HandleFunc("GET /signin", s.handleSignInPage)
	mux.HandleFunc("POST /signin", s.handleSignIn)
	mux.HandleFunc("POST /signup", s.handleSignUp)
	mux.HandleFunc("POST /signout", s.handleSignOut)

	mux.Handle("GET /{$}", s.requireUser(s.handleDashboard))

	mux.Handle("POST /transactions", s.requireUser(s.handleCreateTransaction))
	mux.Handle("PATCH /transactions/{id}", s.requireUser(s.handleUpdateTransaction))
	mux.Handle("POST /transactions/{id}", s.requireUser(s.handleUpdateTransaction))
	mux.Handle("DELETE /transactions/{id}", s.requireUser(s.handleDeleteTransaction))

	mux.Handle("GET /import", s.requireUser(s.handleImportPage))
	mux.Handle("POST /import", s.requireUser(s.handleImportUpload))
	mux.Handle("GET /import/{id}", s.requireUser(s.handleImportPreview))
	mux.Handle("POST /import/{id}/rows/{index}", s.requireUser(s.handleImportEditRow))
	mux.Handle("DELETE /import/{id}/rows/{index}", s.requireUser(s.handleImportRemoveRow))
	mux.Handle("POST /import/{id}/commit", s.requireUser(s.handleImportCommit))
	mux.Handle("POST /import/{id}/cancel", s.requireUser(s.handleImportCancel))

	mux.Handle("GET /report", s.requireUser(s.handleReport))
	mux.Handle("GET /api/report", s.requireUser(s.handleReportJSON))
	mux.Handle("GET /export", s.requireUser(s.handleExport))
	mux.Handle("GET /settlement", s.requireUser(s.handleSettlement))
	mux.Handle("GET /api/settlement", s.requireUser(s.handleSettlementJSON))
}

func (s *Server) onRateLimited(w http.ResponseWriter, r *http.Request) {
	log.FromContext(r.Context()).WithComponent(log.ComponentRateLimit).WarnContext(r.Context(), "Rate limit exceeded",
		log.FieldClientIP, s.detector.ExtractClientIP(r),
		log.FieldMethod, r.Method,
		log.FieldPath, r.URL.Path)
	ErrorResponse(http.StatusTooManyRequests, "Demasiadas solicitudes, espera un momento").Write(w)
}

// Shutdown stops the listener and the rate limiter's cleanup goroutine.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		s.limiter.Stop()
		err = s.Server.Shutdown(ctx)
	})
	return err
}

// householdUsers lists the ids offered in user selectors.
func (s *Server) householdUsers(ctx context.Context) []string {
	if len(s.households) > 0 {
		return s.households
	}
	users, err := s.auth.Users(ctx)
	if err != nil {
		log.FromContext(ctx).WarnContext(ctx, "Listing users failed", log.FieldError, err)
		return nil
	}
	out := make([]string, 0, len(users))
	for _, u := range users {
		out = append(out, u.ID)
	}
	sort.Strings(out)
	return out
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": s.now().Format(time.RFC3339),
		"uptime":    s.now().Sub(s.started).Round(time.Second).String(),
	})
}

// handleReady checks templates and that the store answers a cheap query.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status, code := "ready", http.StatusOK
	checks := map[string]string{"templates": "ok", "store": "ok"}
	if s.templates == nil {
		checks["templates"] = "failed: " + errTemplatesMissing.Error()
		status, code = "not_ready", http.StatusServiceUnavailable
	}
	if _, err := s.ledger.Transactions(ctx, ledger.Filter{UserID: ledger.AllUsers, Period: s.period(r)}); err != nil {
		checks["store"] = "failed: " + err.Error()
		status, code = "not_ready", http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]any{
		"status":    status,
		"timestamp": s.now().Format(time.RFC3339),
		"checks":    checks,
	})
}

// handleMetrics exposes counters in the Prometheus text format.
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")

	tm := s.tracer.GetMetrics()
	rl := s.limiter.GetMetrics()
	sec := s.detector.GetMetrics()

	metric := func(name, kind, help string, value int64) {
		fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s %s\n%s %d\n\n", name, help, name, kind, name, value)
	}
	metric("gastos_http_requests_total", "counter", "Total number of HTTP requests", tm.TotalRequests)
	metric("gastos_http_server_errors_total", "counter", "Responses with a 5xx status", tm.ServerErrors)
	metric("gastos_http_response_time_avg_us", "gauge", "Average response time in microseconds", tm.AverageResponseTime)
	metric("gastos_rate_limit_hits_total", "counter", "Requests rejected by the rate limiter", rl.TotalHits)
	metric("gastos_rate_limit_clients", "gauge", "Clients tracked by the rate limiter", rl.ClientCount)
	metric("gastos_suspicious_requests_total", "counter", "Suspicious requests detected", sec.SuspiciousRequests)
	metric("gastos_blocked_requests_total", "counter", "Suspicious requests blocked", sec.BlockedRequests)
	metric("gastos_uptime_seconds", "gauge", "Seconds since the server started", int64(s.now().Sub(s.started).Seconds()))
}
