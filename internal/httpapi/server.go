package httpapi

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/openautogroup/lotview/internal/auth"
	"github.com/openautogroup/lotview/internal/realtime"
	"github.com/openautogroup/lotview/internal/store"
)

// Server assembles the HTTP surface: tenant resolution wraps every route,
// handler groups register themselves on one ServeMux.
type Server struct {
	Host string
	Port int

	resolver *auth.Resolver
	stores   *store.Stores
	logger   *slog.Logger

	handlers []interface{ RegisterRoutes(*http.ServeMux) }
	ws       *realtime.Handler

	httpServer *http.Server
	mux        *http.ServeMux
}

func NewServer(host string, port int, resolver *auth.Resolver, st *store.Stores, ws *realtime.Handler, logger *slog.Logger, handlers ...interface{ RegisterRoutes(*http.ServeMux) }) *Server {
	return &Server{
		Host:     host,
		Port:     port,
		resolver: resolver,
		stores:   st,
		logger:   logger,
		handlers: handlers,
		ws:       ws,
	}
}

// BuildMux creates and caches the mux with all routes registered.
func (s *Server) BuildMux() *http.ServeMux {
	if s.mux != nil {
		return s.mux
	}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	for _, h := range s.handlers {
		h.RegisterRoutes(mux)
	}
	if s.ws != nil {
		s.ws.RegisterRoutes(mux)
	}
	s.mux = mux
	return mux
}

// Start serves until ctx is cancelled, then drains connections.
func (s *Server) Start(ctx context.Context) error {
	handler := s.resolver.Middleware(s.audit(s.BuildMux()))

	addr := fmt.Sprintf("%s:%d", s.Host, s.Port)
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.logger.Info("http server starting", "addr", addr)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.httpServer.Shutdown(shutdownCtx)
	}()

	if err := s.httpServer.ListenAndServe(); err != http.ErrServerClosed {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

// audit records state-changing requests by authenticated users, and counts
// actions against active impersonation sessions.
func (s *Server) audit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, r)

		if r.Method == http.MethodGet || r.Method == http.MethodHead {
			return
		}
		id := auth.FromContext(r.Context())
		if id.User == nil {
			return
		}

		l := &store.AuditLog{
			UserID:    id.User.ID,
			Action:    r.Method,
			Resource:  r.URL.Path,
			IPAddress: clientIP(r),
		}
		if id.DealershipID > 0 {
			did := id.DealershipID
			l.DealershipID = &did
		}
		// Audit writes never fail the request.
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := s.stores.Audit.Write(ctx, l); err != nil {
			s.logger.Warn("audit write failed", "path", r.URL.Path, "error", err)
		}
		if id.Impersonation != nil {
			if err := s.stores.Audit.IncrementImpersonationActions(ctx, id.Impersonation.ID); err != nil {
				s.logger.Warn("impersonation count failed", "session", id.Impersonation.ID, "error", err)
			}
		}
	})
}
