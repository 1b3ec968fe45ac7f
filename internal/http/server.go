// Package http serves the JSON API over the auth and ledger services.
package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"revenue/internal/auth"
	"revenue/internal/core"
	applog "revenue/internal/log"
	"revenue/internal/middleware/ratelimit"
	"revenue/internal/middleware/security"
	"revenue/internal/middleware/trace"
)

// Authenticator is the part of auth.Service the API exposes.
type Authenticator interface {
	SignUp(ctx context.Context, email, password, name string) (auth.Session, auth.Token, error)
	SignIn(ctx context.Context, email, password string) (auth.Session, auth.Token, error)
	SignOut(ctx context.Context, token string) error
	Authenticate(ctx context.Context, token string) (auth.Session, error)
	Profile(ctx context.Context, session auth.Session) (core.Profile, error)
	UpdateProfile(ctx context.Context, session auth.Session, name string) (core.Profile, error)
}

// Ledger is the part of ledger.Service the API exposes.
type Ledger interface {
	Create(ctx context.Context, session auth.Session, kind core.Kind, in core.EntryInput) (core.Entry, error)
	List(ctx context.Context, session auth.Session, kind core.Kind) ([]core.Entry, error)
	Get(ctx context.Context, session auth.Session, kind core.Kind, id string) (core.Entry, error)
	Update(ctx context.Context, session auth.Session, kind core.Kind, id string, in core.EntryInput) (core.Entry, error)
	Delete(ctx context.Context, session auth.Session, kind core.Kind, id string) error
	Total(ctx context.Context, session auth.Session, kind core.Kind) (core.Money, error)
	MonthlyTotal(ctx context.Context, session auth.Session, kind core.Kind, year, month int) (core.Money, error)
	Dashboard(ctx context.Context, session auth.Session) (core.Summary, error)
	Report(ctx context.Context, session auth.Session, year int) ([]core.MonthSummary, error)
}

type Options struct {
	Addr               string
	Auth               Authenticator
	Ledger             Ledger
	Logger             *applog.Logger
	RateLimitPerMinute int
	TrustedProxies     []string
	// Ready reports whether dependencies can serve traffic; nil means always ready.
	Ready func(context.Context) error
}

type Server struct {
	http.Server
	auth     Authenticator
	ledger   Ledger
	validate *validator.Validate
	limiter  *ratelimit.Limiter
	tracer   *trace.Middleware
	logger   *applog.Logger
	ready    func(context.Context) error
	now      func() time.Time

	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run http.Server.
func NewServer(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = applog.New(applog.DefaultConfig())
	}
	logger = logger.WithComponent(applog.ComponentHTTP)

	resolver := security.NewIPResolver()
	for _, cidr := range opts.TrustedProxies {
		if err := resolver.AddTrustedProxy(cidr); err != nil {
			logger.Warn("Ignoring invalid trusted proxy", "cidr", cidr, applog.FieldError, err)
		}
	}

	s := &Server{
		auth:     opts.Auth,
		ledger:   opts.Ledger,
		validate: newValidator(),
		limiter: ratelimit.NewLimiter(ratelimit.Config{
			RequestsPerMinute: opts.RateLimitPerMinute,
		}),
		tracer: trace.NewMiddleware(logger, resolver.ClientIP),
		logger: logger,
		ready:  opts.Ready,
		now:    time.Now,
	}

	api := http.NewServeMux()
	s.routes(api)

	limited := s.limiter.Middleware(resolver.ClientIP, func(w http.ResponseWriter, r *http.Request) {
		applog.FromContext(r.Context()).WarnContext(r.Context(), "Rate limit exceeded",
			applog.FieldClientIP, resolver.ClientIP(r),
			applog.FieldPath, r.URL.Path)
		writeJSON(w, http.StatusTooManyRequests, errorResponse{Error: "rate limit exceeded, please try again later"})
	})

	root := http.NewServeMux()
	root.HandleFunc("GET /healthz", handleHealth)
	root.HandleFunc("GET /readyz", s.handleReady)
	root.Handle("/api/", limited(api))

	headers := security.NewHeadersMiddleware(security.DefaultHeadersConfig())

	s.Server = http.Server{
		Addr:         opts.Addr,
		Handler:      s.tracer.Middleware(headers.Middleware(root)),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

func (s *Server) routes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/auth/signup", s.handleSignUp)
	mux.HandleFunc("POST /api/auth/signin", s.handleSignIn)
	mux.HandleFunc("POST /api/auth/signout", s.handleSignOut)

	mux.Handle("GET /api/profile", s.withSession(s.handleProfile))
	mux.Handle("PUT /api/profile", s.withSession(s.handleUpdateProfile))

	for _, kind := range []core.Kind{core.Income, core.Expense} {
		base := "/api/" + kind.Collection()
		mux.Handle("GET "+base, s.withSession(s.handleList(kind)))
		mux.Handle("POST "+base, s.withSession(s.handleCreate(kind)))
		mux.Handle("GET "+base+"/total", s.withSession(s.handleTotal(kind)))
		mux.Handle("GET "+base+"/{id}", s.withSession(s.handleGet(kind)))
		mux.Handle("PUT "+base+"/{id}", s.withSession(s.handleUpdate(kind)))
		mux.Handle("DELETE "+base+"/{id}", s.withSession(s.handleDelete(kind)))
	}

	mux.Handle("GET /api/dashboard", s.withSession(s.handleDashboard))
	mux.Handle("GET /api/reports/monthly", s.withSession(s.handleReport))

	mux.HandleFunc("/api/", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "not found"})
	})
}

type sessionHandler func(w http.ResponseWriter, r *http.Request, session auth.Session)

// withSession resolves the bearer token before next runs. The session is
// handed to next explicitly and also stored on the request context.
func (s *Server) withSession(next sessionHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		session, err := s.auth.Authenticate(r.Context(), bearerToken(r))
		if err != nil {
			writeError(w, r, err)
			return
		}

		ctx := auth.NewContext(r.Context(), session)
		ctx = applog.NewContext(ctx, applog.FromContext(ctx).With(applog.FieldUserID, session.UserID))
		next(w, r.WithContext(ctx), session)
	})
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.ready(ctx); err != nil {
			applog.FromContext(r.Context()).WarnContext(r.Context(), "Readiness check failed", applog.FieldError, err)
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("not ready"))
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

// Metrics summarizes traffic since start.
type Metrics struct {
	TotalRequests  int64
	LastDurationUs int64
	RateLimited    int64
}

// Metrics exposes request counters for diagnostics.
func (s *Server) Metrics() Metrics {
	m := s.tracer.GetMetrics()
	return Metrics{
		TotalRequests:  m.TotalRequests,
		LastDurationUs: m.LastDurationUs,
		RateLimited:    s.limiter.Rejected(),
	}
}

// Shutdown stops the rate limiter and then the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.limiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}
