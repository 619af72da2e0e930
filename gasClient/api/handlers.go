package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"github.com/pushchain/gas-monitor/gasClient/chains"
	gcerrors "github.com/pushchain/gas-monitor/gasClient/errors"
	"github.com/pushchain/gas-monitor/gasClient/telemetry"
)

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, ErrorResponse{Error: err.Error(), Code: string(gcerrors.CodeOf(err))})
}

// handleHealth handles GET /health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

// handleSnapshot handles GET /api/v1/snapshot
func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	snap := s.engine.Snapshot()
	writeJSON(w, http.StatusOK, QueryResponse{Data: newSnapshotView(snap), Version: snap.Version})
}

// handleChain handles GET /api/v1/chains/{chain}
func (s *Server) handleChain(w http.ResponseWriter, r *http.Request) {
	snap := s.engine.Snapshot()
	chain := telemetry.ChainID(mux.Vars(r)["chain"])

	cs, ok := snap.Chain(chain)
	if !ok {
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: fmt.Sprintf("chain %s not found", chain)})
		return
	}
	writeJSON(w, http.StatusOK, QueryResponse{Data: newChainView(cs), Version: snap.Version})
}

// handleHistory handles GET /api/v1/chains/{chain}/history
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	snap := s.engine.Snapshot()
	chain := telemetry.ChainID(mux.Vars(r)["chain"])

	cs, ok := snap.Chain(chain)
	if !ok {
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: fmt.Sprintf("chain %s not found", chain)})
		return
	}
	writeJSON(w, http.StatusOK, QueryResponse{
		Data:    HistoryView{Chain: chain, Points: cs.History.Points()},
		Version: snap.Version,
	})
}

// handleSetMode handles POST /api/v1/mode
func (s *Server) handleSetMode(w http.ResponseWriter, r *http.Request) {
	var req ModeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	mode, err := telemetry.ParseMode(req.Mode)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}
	if err := s.engine.SetMode(mode); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	s.logger.Info().Str("mode", mode.String()).Msg("mode changed via API")
	s.handleSnapshot(w, r)
}

// handleSetSimulation handles POST /api/v1/simulation
func (s *Server) handleSetSimulation(w http.ResponseWriter, r *http.Request) {
	var req SimulationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	patch := telemetry.SimulationInputPatch{Amount: req.Amount}
	if req.GasLimit != nil {
		limit, err := parseGasLimit(req.GasLimit)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		patch.GasLimit = &limit
	}

	if err := s.engine.SetSimulationInput(patch); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	s.handleSnapshot(w, r)
}

// handleReconnect handles POST /api/v1/chains/{chain}/reconnect
func (s *Server) handleReconnect(w http.ResponseWriter, r *http.Request) {
	chain := telemetry.ChainID(mux.Vars(r)["chain"])
	if s.reconnector == nil {
		writeJSON(w, http.StatusServiceUnavailable, ErrorResponse{Error: "reconnect is not available"})
		return
	}

	if err := s.reconnector.Reconnect(r.Context(), chain); err != nil {
		status := http.StatusBadGateway
		switch {
		case errors.Is(err, chains.ErrNotLive):
			status = http.StatusConflict
		case gcerrors.IsChainError(err, gcerrors.ErrCodeInvariant):
			status = http.StatusNotFound
		}
		writeError(w, status, err)
		return
	}

	snap := s.engine.Snapshot()
	cs, _ := snap.Chain(chain)
	writeJSON(w, http.StatusOK, QueryResponse{Data: newChainView(cs), Version: snap.Version})
}

// parseGasLimit accepts a JSON number or decimal string.
func parseGasLimit(v interface{}) (uint64, error) {
	switch t := v.(type) {
	case float64:
		if t < 0 || t != float64(uint64(t)) {
			return 0, gcerrors.NewInvalidSimulationInputError("gas limit must be a non-negative integer", nil)
		}
		return uint64(t), nil
	case string:
		limit, err := strconv.ParseUint(strings.TrimSpace(t), 10, 64)
		if err != nil {
			return 0, gcerrors.NewInvalidSimulationInputError("gas limit must be a non-negative integer", err)
		}
		return limit, nil
	default:
		return 0, gcerrors.NewInvalidSimulationInputError("gas limit must be a number", nil)
	}
}
