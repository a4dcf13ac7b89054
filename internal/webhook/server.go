package webhook

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

// Server serves one handler on every configured address.
type Server struct {
	addresses []string
	handler   http.Handler
	logger    *slog.Logger

	mu    sync.Mutex
	bound []net.Addr
	ready chan struct{}
}

// NewServer creates a server for the given listen addresses.
func NewServer(addresses []string, handler http.Handler, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		addresses: append([]string(nil), addresses...),
		handler:   handler,
		logger:    logger,
		ready:     make(chan struct{}),
	}
}

// Ready is closed once every address is bound.
func (s *Server) Ready() <-chan struct{} { return s.ready }

// Addrs returns the bound addresses. Only valid after Ready is closed.
func (s *Server) Addrs() []net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]net.Addr(nil), s.bound...)
}

// Serve binds every address, then blocks until ctx is cancelled or a
// listener fails. In-flight requests get shutdownTimeout to complete.
func (s *Server) Serve(ctx context.Context) error {
	if len(s.addresses) == 0 {
		return errors.New("no listen addresses configured")
	}

	listeners := make([]net.Listener, 0, len(s.addresses))
	for _, address := range s.addresses {
		listener, err := net.Listen("tcp", address)
		if err != nil {
			for _, l := range listeners {
				l.Close()
			}
			return fmt.Errorf("listening on %s: %w", address, err)
		}
		listeners = append(listeners, listener)
	}
	s.mu.Lock()
	for _, l := range listeners {
		s.bound = append(s.bound, l.Addr())
	}
	s.mu.Unlock()
	close(s.ready)

	group, ctx := errgroup.WithContext(ctx)
	for _, listener := range listeners {
		server := &http.Server{
			Handler:           s.handler,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       60 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       60 * time.Second,
		}
		address := listener.Addr().String()

		group.Go(func() error {
			s.logger.Info("http server listening", "address", address)
			if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("serving %s: %w", address, err)
			}
			return nil
		})
		group.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("shutting down %s: %w", address, err)
			}
			s.logger.Info("http server stopped", "address", address)
			return nil
		})
	}
	return group.Wait()
}
