package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/MikeSquared-Agency/verity/internal/ledger"
	"github.com/MikeSquared-Agency/verity/internal/metadata"
)

// entityKey resolves the {slug} path parameter. A 0x-prefixed 32-byte hex
// string is taken as a raw key; anything else is hashed as a slug.
func entityKey(r *http.Request) ledger.EntityKey {
	slug := chi.URLParam(r, "slug")
	if key, err := ledger.ParseEntityKey(slug); err == nil {
		return key
	}
	return ledger.EntityKeyFromSlug(slug)
}

func uintParam(raw string, fallback uint64) (uint64, error) {
	if raw == "" {
		return fallback, nil
	}
	return strconv.ParseUint(raw, 10, 64)
}

func indexParam(r *http.Request) (uint64, error) {
	idx, err := strconv.ParseUint(chi.URLParam(r, "index"), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid rating index %q", chi.URLParam(r, "index"))
	}
	return idx, nil
}

type scoreResponse struct {
	Entity     ledger.EntityKey `json:"entity"`
	TrustScore uint8            `json:"trust_score"`
}

func (s *Server) score(w http.ResponseWriter, r *http.Request) {
	key := entityKey(r)
	writeJSON(w, http.StatusOK, scoreResponse{Entity: key, TrustScore: s.ledger.TrustScore(key)})
}

func (s *Server) stats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.ledger.ModelStats(entityKey(r)))
}

type ratingsResponse struct {
	Ratings []ledger.Rating `json:"ratings"`
	Start   uint64          `json:"start"`
	Count   uint64          `json:"count"`
}

func (s *Server) ratings(w http.ResponseWriter, r *http.Request) {
	key := entityKey(r)
	q := r.URL.Query()
	start, err := uintParam(q.Get("start"), 0)
	if err != nil {
		badRequest(w, "invalid start")
		return
	}
	end, err := uintParam(q.Get("end"), start+s.ledger.Params().MaxPageSize)
	if err != nil {
		badRequest(w, "invalid end")
		return
	}

	ratings, err := s.ledger.RatingsRange(key, start, end)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ratingsResponse{
		Ratings: ratings,
		Start:   start,
		Count:   s.ledger.RatingCount(key),
	})
}

// ratingRequest carries either a precomputed metadata reference or the
// metadata itself, which is stored before the rating is recorded.
type ratingRequest struct {
	Score       uint8               `json:"score"`
	Stake       uint64              `json:"stake"`
	ExtraStake  uint64              `json:"extra_stake"`
	MetadataRef *ledger.MetadataRef `json:"metadata_ref,omitempty"`
	Comment     string              `json:"comment,omitempty"`
	Context     map[string]string   `json:"context,omitempty"`
}

func (s *Server) resolveMetadata(r *http.Request, req ratingRequest) (ledger.MetadataRef, error) {
	if req.Comment != "" || len(req.Context) > 0 {
		if s.metadata == nil {
			return ledger.MetadataRef{}, fmt.Errorf("metadata storage is not configured")
		}
		return s.metadata.Put(r.Context(), metadata.Blob{Comment: req.Comment, Context: req.Context})
	}
	if req.MetadataRef != nil {
		return *req.MetadataRef, nil
	}
	// The ledger rejects the zero reference.
	return ledger.MetadataRef{}, nil
}

func decodeRating(w http.ResponseWriter, r *http.Request) (ratingRequest, bool) {
	var req ratingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, fmt.Sprintf("invalid JSON: %v", err))
		return req, false
	}
	return req, true
}

type submitResponse struct {
	Index       uint64             `json:"index"`
	MetadataRef ledger.MetadataRef `json:"metadata_ref"`
	ledger.ModelStats
}

func (s *Server) submitRating(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeRating(w, r)
	if !ok {
		return
	}
	ref, err := s.resolveMetadata(r, req)
	if err != nil {
		badRequest(w, err.Error())
		return
	}

	key := entityKey(r)
	idx, err := s.ledger.Submit(r.Context(), callerID(r), key, req.Score, ref, req.Stake)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, submitResponse{
		Index:       idx,
		MetadataRef: ref,
		ModelStats:  s.ledger.ModelStats(key),
	})
}

func (s *Server) updateRating(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeRating(w, r)
	if !ok {
		return
	}
	ref, err := s.resolveMetadata(r, req)
	if err != nil {
		badRequest(w, err.Error())
		return
	}

	key := entityKey(r)
	caller := callerID(r)
	if err := s.ledger.Update(r.Context(), caller, key, req.Score, ref, req.ExtraStake); err != nil {
		s.writeError(w, r, err)
		return
	}
	idx, _ := s.ledger.RatingIndex(key, caller)
	writeJSON(w, http.StatusOK, submitResponse{
		Index:       idx,
		MetadataRef: ref,
		ModelStats:  s.ledger.ModelStats(key),
	})
}

func (s *Server) ratingMetadata(w http.ResponseWriter, r *http.Request) {
	idx, err := indexParam(r)
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	ratings, err := s.ledger.RatingsRange(entityKey(r), idx, idx+1)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if len(ratings) == 0 {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "rating not found"})
		return
	}
	if s.metadata == nil {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "metadata storage is not configured"})
		return
	}
	blob, err := s.metadata.Get(r.Context(), ratings[0].MetadataRef)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, blob)
}

func (s *Server) slash(w http.ResponseWriter, r *http.Request) {
	idx, err := indexParam(r)
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	key := entityKey(r)
	if err := s.ledger.Slash(r.Context(), callerID(r), key, idx); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.ledger.ModelStats(key))
}

type markRequest struct {
	Indices []uint64 `json:"indices"`
}

func (s *Server) markRefundable(w http.ResponseWriter, r *http.Request) {
	var req markRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, fmt.Sprintf("invalid JSON: %v", err))
		return
	}
	if err := s.ledger.MarkRefundable(r.Context(), callerID(r), entityKey(r), req.Indices); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"marked": len(req.Indices)})
}

type refundResponse struct {
	Index  uint64 `json:"index"`
	Amount uint64 `json:"amount"`
}

func (s *Server) claimRefund(w http.ResponseWriter, r *http.Request) {
	idx, err := indexParam(r)
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	amount, err := s.ledger.ClaimRefund(r.Context(), callerID(r), entityKey(r), idx)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, refundResponse{Index: idx, Amount: amount})
}

func (s *Server) pendingRefunds(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	rater := q.Get("rater")
	if rater == "" {
		rater = callerID(r)
	}
	start, err := uintParam(q.Get("start"), 0)
	if err != nil {
		badRequest(w, "invalid start")
		return
	}
	maxResults, err := uintParam(q.Get("max"), s.ledger.Params().MaxPageSize)
	if err != nil {
		badRequest(w, "invalid max")
		return
	}

	page, err := s.ledger.PendingRefunds(entityKey(r), rater, start, maxResults)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (s *Server) account(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.ledger.Account(chi.URLParam(r, "rater")))
}
