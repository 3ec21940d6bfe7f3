// Package api exposes the storefront services over HTTP.
//
// Routes mirror the storefront's REST surface under /api. Authentication is
// a Supabase bearer token checked by auth.Middleware; handlers translate
// *apperr.Error values into {"error": ...} responses with the mapped
// status. The realtime hub is mounted at /ws.
package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/yohanns/storefront/internal/account"
	"github.com/yohanns/storefront/internal/apperr"
	"github.com/yohanns/storefront/internal/artist"
	"github.com/yohanns/storefront/internal/assign"
	"github.com/yohanns/storefront/internal/auth"
	"github.com/yohanns/storefront/internal/catalog"
	"github.com/yohanns/storefront/internal/chat"
	"github.com/yohanns/storefront/internal/insights"
	"github.com/yohanns/storefront/internal/media"
	"github.com/yohanns/storefront/internal/newsletter"
	"github.com/yohanns/storefront/internal/orders"
	"github.com/yohanns/storefront/internal/realtime"
	"github.com/yohanns/storefront/internal/users"
	"github.com/yohanns/storefront/internal/workflow"
)

// Services are the domain services the routes call.
type Services struct {
	Catalog    *catalog.Service
	Orders     *orders.Service
	Workflow   *workflow.Service
	Assign     *assign.Service
	Artist     *artist.Service
	Chat       *chat.Service
	Account    *account.Service
	Insights   *insights.Service
	Users      *users.Service
	Newsletter *newsletter.Service
	Media      *media.Service
}

// Config holds server configuration.
type Config struct {
	// Port to listen on; 0 picks a free port.
	Port int

	// Origins allowed by CORS; "*" echoes any origin.
	Origins []string

	Verifier auth.Verifier
	Hub      *realtime.Hub
	Logger   *zap.Logger

	// MediaFiles serves locally stored uploads below MediaPrefix.
	MediaPrefix string
	MediaFiles  http.Handler
}

// Server is the HTTP front of the storefront.
type Server struct {
	addr     string
	listener net.Listener
	server   *http.Server

	svc     Services
	auth    *auth.Middleware
	hub     *realtime.Hub
	files   http.Handler
	prefix  string
	origins []string
	log     *zap.Logger

	wg sync.WaitGroup
}

// NewServer creates a server. Call Start to listen, or use Handler with an
// existing listener.
func NewServer(cfg Config, svc Services) *Server {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if len(cfg.Origins) == 0 {
		cfg.Origins = []string{"*"}
	}
	if cfg.Verifier == nil {
		cfg.Verifier = unconfigured{}
	}
	s := &Server{
		addr:    fmt.Sprintf(":%d", cfg.Port),
		svc:     svc,
		hub:     cfg.Hub,
		files:   cfg.MediaFiles,
		prefix:  cfg.MediaPrefix,
		origins: cfg.Origins,
		log:     cfg.Logger,
	}
	s.auth = auth.NewMiddleware(cfg.Verifier, s.writeError, cfg.Logger.Named("auth"))
	return s
}

// Handler returns the routed handler with CORS applied.
func (s *Server) Handler() http.Handler {
	return s.cors(s.routes())
}

// Start listens on the configured port and serves in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	s.listener = ln

	s.server = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
	}
	if s.hub != nil {
		s.hub.Start()
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.log.Info("api server listening", zap.String("addr", ln.Addr().String()))
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("server error", zap.Error(err))
		}
	}()
	return nil
}

// Stop disconnects websocket clients and drains in-flight requests until
// ctx expires.
func (s *Server) Stop(ctx context.Context) error {
	s.log.Info("stopping api server")
	if s.hub != nil {
		s.hub.Stop()
	}
	if s.server == nil {
		return nil
	}
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown error: %w", err)
	}
	s.wg.Wait()
	s.log.Info("api server stopped")
	return nil
}

// GetAddr returns the listening address.
func (s *Server) GetAddr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// unconfigured rejects every token when no verifier is set up.
type unconfigured struct{}

func (unconfigured) Verify(context.Context, string) (*auth.Principal, error) {
	return nil, apperr.Unavailable("Authentication is not configured")
}

func (s *Server) cors(next http.Handler) http.Handler {
	allowAll := false
	allowed := make(map[string]bool, len(s.origins))
	for _, o := range s.origins {
		if o == "*" {
			allowAll = true
		}
		allowed[o] = true
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && (allowAll || allowed[origin]) {
			h := w.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Access-Control-Allow-Credentials", "true")
			h.Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
			h.Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
			h.Add("Vary", "Origin")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
