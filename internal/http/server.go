package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"fintrack/internal/core"
	"fintrack/internal/middleware/ratelimit"
	"fintrack/internal/middleware/security"
	"fintrack/internal/middleware/trace"
	"fintrack/internal/services"
	"fintrack/internal/storage"
)

// Server is the JSON API server. Routes use method+pattern matching and all
// /api routes except auth registration and login require a Bearer token.
type Server struct {
	http.Server

	records   *services.RecordService
	users     *storage.SQLiteRepository
	jwtSecret string
	tokenTTL  time.Duration

	limiter      *ratelimit.Limiter
	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run
// http.Server.
func NewServer(addr string, records *services.RecordService, users *storage.SQLiteRepository, jwtSecret string, tokenTTL time.Duration) *Server {
	mux := http.NewServeMux()

	s := &Server{
		records:   records,
		users:     users,
		jwtSecret: jwtSecret,
		tokenTTL:  tokenTTL,
		limiter:   ratelimit.NewLimiter(ratelimit.DefaultConfig()),
	}

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)

	mux.HandleFunc("POST /api/auth/register", s.handleRegister)
	mux.HandleFunc("POST /api/auth/login", s.handleLogin)
	mux.HandleFunc("GET /api/auth/profile", s.requireAuth(s.handleProfile))

	s.registerRecordRoutes(mux, "/api/expenses", core.KindExpense)
	s.registerRecordRoutes(mux, "/api/incomes", core.KindIncome)

	mux.HandleFunc("GET /api/transactions", s.requireAuth(s.handleListTransactions))
	mux.HandleFunc("GET /api/transactions/balance", s.requireAuth(s.handleBalance))
	mux.HandleFunc("GET /api/transactions/stats/monthly", s.requireAuth(s.handleMonthlyStats))
	mux.HandleFunc("GET /api/transactions/recent/{days}", s.requireAuth(s.handleRecentTransactions))
	mux.HandleFunc("GET /api/transactions/export", s.requireAuth(s.handleExportTransactions))

	traceMW := trace.NewMiddleware(extractClientIP)
	securityMW := security.NewHeadersMiddleware(security.DefaultHeadersConfig())
	limitMW := s.limiter.Middleware(extractClientIP, nil)

	handler := traceMW.Middleware(securityMW.Middleware(limitMW(mux)))

	s.Server = http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) registerRecordRoutes(mux *http.ServeMux, prefix string, kind core.Kind) {
	h := &recordHandlers{server: s, kind: kind, exportName: string(kind) + "s"}

	mux.HandleFunc("GET "+prefix, s.requireAuth(h.list))
	mux.HandleFunc("POST "+prefix, s.requireAuth(h.create))
	mux.HandleFunc("GET "+prefix+"/export", s.requireAuth(h.export))
	mux.HandleFunc("GET "+prefix+"/recent/{days}", s.requireAuth(h.recent))
	mux.HandleFunc("GET "+prefix+"/{id}", s.requireAuth(h.get))
	mux.HandleFunc("PUT "+prefix+"/{id}", s.requireAuth(h.update))
	mux.HandleFunc("DELETE "+prefix+"/{id}", s.requireAuth(h.delete))
}

// Shutdown stops background routines and drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		if s.limiter != nil {
			s.limiter.Stop()
		}
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if err := s.users.Ping(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, "database unavailable")
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}
