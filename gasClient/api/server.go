package api

import (
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

// Server provides HTTP endpoints over the telemetry engine
type Server struct {
	logger      zerolog.Logger
	server      *http.Server
	engine      Engine
	reconnector Reconnector
	gatherer    prometheus.Gatherer
}

// NewServer creates a new Server instance. reconnector and gatherer may be nil.
func NewServer(logger zerolog.Logger, port int, engine Engine, reconnector Reconnector, gatherer prometheus.Gatherer) *Server {
	s := &Server{
		logger:      logger.With().Str("component", "query_server").Logger(),
		engine:      engine,
		reconnector: reconnector,
		gatherer:    gatherer,
	}

	router := s.setupRoutes()

	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return s
}

// Handler returns the server's router.
func (s *Server) Handler() http.Handler {
	if s.server == nil {
		return s.setupRoutes()
	}
	return s.server.Handler
}

// Start starts the HTTP server
func (s *Server) Start() error {
	if s.server == nil {
		return fmt.Errorf("query server is nil")
	}

	startupChan := make(chan error, 1)

	go func() {
		// Verify the port is available before handing off to ListenAndServe
		ln, err := net.Listen("tcp", s.server.Addr)
		if err != nil {
			startupChan <- fmt.Errorf("failed to bind to address %s: %w", s.server.Addr, err)
			return
		}
		ln.Close()

		startupChan <- nil

		err = s.server.ListenAndServe()
		switch err {
		case nil:
			s.logger.Info().Msg("Query server stopped normally")
		case http.ErrServerClosed:
			s.logger.Info().Msg("Query server closed gracefully")
		default:
			s.logger.Error().Err(err).Msg("Query server error")
		}
	}()

	select {
	case err := <-startupChan:
		if err != nil {
			return err
		}
		s.logger.Info().Str("addr", s.server.Addr).Msg("Query server started")
		return nil
	case <-time.After(5 * time.Second):
		return fmt.Errorf("server startup timeout")
	}
}

// Stop gracefully shuts down the HTTP server
func (s *Server) Stop() error {
	if s.server != nil {
		return s.server.Close()
	}
	return nil
}
