// Package server hosts the TCP relay: it accepts client connections, runs
// the per-connection auth state machine, and routes chat traffic locally,
// across nodes, or into the offline queue.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/litchat/relay/internal/auth"
	"github.com/litchat/relay/internal/config"
	"github.com/litchat/relay/internal/crypto/payload"
	"github.com/litchat/relay/internal/route"
	"github.com/litchat/relay/internal/session"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Server wires dependencies and hosts the TCP listener.
type Server struct {
	cfg       config.Config
	log       *zap.Logger
	registry  *session.Registry
	routes    *route.Table
	router    *Router
	validator auth.Validator
	cipher    *payload.Cipher

	metrics       *relayMetrics
	mu            sync.Mutex
	listener      net.Listener
	adminHTTP     *http.Server
	advertiseAddr string
	idleTimeout   time.Duration
	ready         atomic.Bool
	wg            sync.WaitGroup
}

// Options carries the server's collaborators.
type Options struct {
	Registry  *session.Registry
	Routes    *route.Table
	Router    *Router
	Validator auth.Validator
	Cipher    *payload.Cipher
}

// NewServer constructs a server with its dependencies.
func NewServer(cfg config.Config, logger *zap.Logger, opts Options) *Server {
	reg := opts.Registry
	if reg == nil {
		reg = session.NewRegistry()
	}
	validator := opts.Validator
	if validator == nil {
		validator = auth.StaticValidator{}
	}
	idle := cfg.IdleTimeout
	if idle <= 0 {
		idle = 60 * time.Second
	}
	return &Server{
		cfg:         cfg,
		log:         logger,
		registry:    reg,
		routes:      opts.Routes,
		router:      opts.Router,
		validator:   validator,
		cipher:      opts.Cipher,
		idleTimeout: idle,
	}
}

// Start boots the listener, the broadcast consumer, and the admin endpoints,
// then blocks accepting connections until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.ListenAddress)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.cfg.ListenAddress, err)
	}
	s.mu.Lock()
	s.listener = ln
	s.advertiseAddr = s.cfg.AdvertiseAddress
	if s.advertiseAddr == "" {
		s.advertiseAddr = ln.Addr().String()
	}
	s.mu.Unlock()

	promReg := prometheus.NewRegistry()
	promReg.MustRegister(prometheus.NewGoCollector(), prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))
	s.metrics = newRelayMetrics(promReg)
	s.router.metrics = s.metrics
	s.startAdminServer(promReg)

	if err := s.router.Start(ctx); err != nil {
		return fmt.Errorf("start broadcast consumer: %w", err)
	}

	go func() {
		<-ctx.Done()
		stopCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownGracePeriod)
		defer cancel()
		s.Shutdown(stopCtx)
	}()

	s.log.Info("relay listening",
		zap.String("address", ln.Addr().String()),
		zap.String("advertise", s.advertiseAddr))
	s.ready.Store(true)

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				s.wg.Wait()
				return nil
			}
			return fmt.Errorf("accept: %w", err)
		}
		c := newConnection(ctx, conn, s)
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			c.run()
		}()
	}
}

// Addr returns the bound listen address once Start has been called.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *Server) startAdminServer(reg *prometheus.Registry) {
	if s.cfg.Admin.Address == "" {
		return
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		if s.ready.Load() {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ready"))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("not_ready"))
	})

	s.adminHTTP = &http.Server{
		Addr:              s.cfg.Admin.Address,
		Handler:           mux,
		ReadHeaderTimeout: s.cfg.Admin.ReadHeaderTimeout,
	}

	go func() {
		if err := s.adminHTTP.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Warn("admin server stopped", zap.Error(err))
		}
	}()
	s.log.Info("admin server listening", zap.String("address", s.cfg.Admin.Address))
}

// Shutdown stops accepting, detaches the broadcast consumer, and waits for
// open connections to wind down until ctx expires.
func (s *Server) Shutdown(ctx context.Context) {
	s.ready.Store(false)

	if s.adminHTTP != nil {
		if err := s.adminHTTP.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Warn("admin server shutdown", zap.Error(err))
		}
	}
	s.router.Stop()
	s.mu.Lock()
	if s.listener != nil {
		_ = s.listener.Close()
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		s.log.Info("relay stopped")
	case <-ctx.Done():
		s.log.Warn("graceful shutdown timed out")
	}
}
