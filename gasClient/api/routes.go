package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// setupRoutes configures all HTTP routes for the API server
func (s *Server) setupRoutes() *mux.Router {
	r := mux.NewRouter()

	// Health check endpoint
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)

	// API v1 endpoints
	v1 := r.PathPrefix("/api/v1").Subrouter()
	v1.HandleFunc("/snapshot", s.handleSnapshot).Methods(http.MethodGet)
	v1.HandleFunc("/chains/{chain}", s.handleChain).Methods(http.MethodGet)
	v1.HandleFunc("/chains/{chain}/history", s.handleHistory).Methods(http.MethodGet)
	v1.HandleFunc("/chains/{chain}/reconnect", s.handleReconnect).Methods(http.MethodPost)
	v1.HandleFunc("/mode", s.handleSetMode).Methods(http.MethodPost)
	v1.HandleFunc("/simulation", s.handleSetSimulation).Methods(http.MethodPost)
	v1.HandleFunc("/stream", s.handleStream).Methods(http.MethodGet)

	if s.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	}

	return r
}
