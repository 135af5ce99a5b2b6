package api

import (
	"encoding/json"
	"fmt"
	"net/http"
)

func (s *Server) pause(w http.ResponseWriter, r *http.Request) {
	if err := s.ledger.Pause(r.Context(), callerID(r)); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"paused": true})
}

func (s *Server) unpause(w http.ResponseWriter, r *http.Request) {
	if err := s.ledger.Unpause(r.Context(), callerID(r)); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"paused": false})
}

type maxStakeRequest struct {
	MaxStake uint64 `json:"max_stake"`
}

func (s *Server) updateMaxStake(w http.ResponseWriter, r *http.Request) {
	var req maxStakeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, fmt.Sprintf("invalid JSON: %v", err))
		return
	}
	if err := s.ledger.UpdateMaxStake(r.Context(), callerID(r), req.MaxStake); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]uint64{"max_stake": s.ledger.MaxStake()})
}
