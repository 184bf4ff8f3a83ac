// Package api serves a loopback HTTP control surface for the renderer and the
// settings GUI.
package api

import (
	"context"
	"net"
	"net/http"
	"sync"
	"time"

	"codeberg.org/mutker/monitord/internal/errors"
	"codeberg.org/mutker/monitord/internal/logger"
	"github.com/gin-gonic/gin"
)

const shutdownTimeout = 5 * time.Second

type Server struct {
	http *http.Server
	log  logger.Logger

	mu   sync.Mutex
	addr net.Addr
}

// NewServer builds the control server. listen must name a loopback host.
func NewServer(listen string, api *API) (*Server, error) {
	errFactory := errors.New()

	if !isLoopback(listen) {
		return nil, errFactory.WithData(ErrNotLoopback, struct {
			Listen string
		}{
			Listen: listen,
		})
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger(api.log))
	api.RegisterRoutes(router)

	s := &http.Server{
		Addr:              listen,
		Handler:           router,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
	}

	return &Server{http: s, log: api.log}, nil
}

func (s *Server) Name() string { return "api" }

func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

// Addr is the bound address once Run is listening, nil before.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errFactory := errors.New()

	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", s.http.Addr)
	if err != nil {
		return errFactory.Wrap(ErrListenFailed, err)
	}

	s.mu.Lock()
	s.addr = ln.Addr()
	s.mu.Unlock()

	s.log.Info().Str("listen", ln.Addr().String()).Msg("Control API listening")

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.http.Serve(ln)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := s.http.Shutdown(shutdownCtx); err != nil {
			return errFactory.Wrap(errors.ErrShutdownFailed, err)
		}
		<-errCh
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return errFactory.Wrap(ErrServeFailed, err)
	}
}

func isLoopback(listen string) bool {
	host, _, err := net.SplitHostPort(listen)
	if err != nil {
		return false
	}
	if host == "localhost" {
		return true
	}

	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
