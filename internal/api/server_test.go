package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MikeSquared-Agency/verity/internal/escrow"
	"github.com/MikeSquared-Agency/verity/internal/ledger"
	"github.com/MikeSquared-Agency/verity/internal/metadata"
	"github.com/MikeSquared-Agency/verity/internal/metrics"
)

const (
	testToken = "test-token"
	testAdmin = "ops"
)

type testEnv struct {
	srv    *Server
	ledger *ledger.Ledger
	escrow *escrow.Memory
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	esc := escrow.NewMemory()
	l, err := ledger.New(ledger.DefaultParams(), ledger.NewAdminSet(testAdmin), esc, logger)
	require.NoError(t, err)

	srv := NewServer(8760, Deps{
		Ledger:   l,
		Metadata: metadata.New(metadata.NewMemory()),
		Metrics:  metrics.New(),
		APIToken: testToken,
		Logger:   logger,
	})
	return &testEnv{srv: srv, ledger: l, escrow: esc}
}

func (e *testEnv) do(t *testing.T, method, path, caller string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Authorization", "Bearer "+testToken)
	if caller != "" {
		req.Header.Set(CallerHeader, caller)
	}
	w := httptest.NewRecorder()
	e.srv.Handler().ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(w.Body).Decode(&v))
	return v
}

type statsBody struct {
	Index         uint64 `json:"index"`
	MetadataRef   string `json:"metadata_ref"`
	TrustScore    uint8  `json:"trust_score"`
	ActiveRatings uint64 `json:"active_ratings"`
	TotalRatings  uint64 `json:"total_ratings"`
	TotalStaked   uint64 `json:"total_staked"`
}

func TestHealthEndpoint(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest("GET", "/health", nil)
	w := httptest.NewRecorder()
	env.srv.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", decode[map[string]string](t, w)["status"])
}

func TestReadyEndpoint(t *testing.T) {
	env := newTestEnv(t)
	env.srv.ready = func(context.Context) error { return errors.New("db down") }

	w := httptest.NewRecorder()
	env.srv.router.ServeHTTP(w, httptest.NewRequest("GET", "/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestStatusEndpoint(t *testing.T) {
	env := newTestEnv(t)

	w := httptest.NewRecorder()
	env.srv.router.ServeHTTP(w, httptest.NewRequest("GET", "/api/v1/verity/status", nil))

	require.Equal(t, http.StatusOK, w.Code)
	body := decode[map[string]any](t, w)
	assert.Equal(t, "verity", body["agent"])
	assert.Equal(t, false, body["paused"])
	assert.Equal(t, float64(1_000_000), body["max_stake"])
}

func TestNotFoundEndpoint(t *testing.T) {
	env := newTestEnv(t)

	w := httptest.NewRecorder()
	env.srv.router.ServeHTTP(w, httptest.NewRequest("GET", "/nonexistent", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestBearerAuth(t *testing.T) {
	env := newTestEnv(t)

	for _, header := range []string{"", "Bearer wrong", "Basic " + testToken} {
		req := httptest.NewRequest("GET", "/api/v1/models/m1/score", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		w := httptest.NewRecorder()
		env.srv.router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code, "header %q", header)
	}

	w := env.do(t, "GET", "/api/v1/models/m1/score", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestSubmitAndRead(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, "POST", "/api/v1/models/gpt-4o/ratings", "alice", map[string]any{
		"score":   5,
		"stake":   1,
		"comment": "great at refactoring",
		"context": map[string]string{"suite": "eval-1"},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := decode[statsBody](t, w)
	assert.Equal(t, uint64(0), created.Index)
	assert.Equal(t, uint8(16), created.TrustScore)
	assert.NotEmpty(t, created.MetadataRef)

	w = env.do(t, "GET", "/api/v1/models/gpt-4o/score", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(16), decode[map[string]any](t, w)["trust_score"])

	// The raw key addresses the same entity as the slug.
	key := ledger.EntityKeyFromSlug("gpt-4o")
	w = env.do(t, "GET", "/api/v1/models/"+key.String()+"/stats", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, uint64(1), decode[statsBody](t, w).ActiveRatings)

	w = env.do(t, "GET", "/api/v1/models/gpt-4o/ratings/0/metadata", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	blob := decode[metadata.Blob](t, w)
	assert.Equal(t, "great at refactoring", blob.Comment)
	assert.Equal(t, "eval-1", blob.Context["suite"])

	w = env.do(t, "GET", "/api/v1/models/gpt-4o/ratings", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	page := decode[ratingsResponse](t, w)
	require.Len(t, page.Ratings, 1)
	assert.Equal(t, "alice", page.Ratings[0].Rater)
	assert.Equal(t, uint64(1), page.Count)

	w = env.do(t, "GET", "/api/v1/accounts/alice", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, ledger.Account{Reputation: 1, TotalStaked: 1, RatingsGiven: 1}, decode[ledger.Account](t, w))
}

func TestSubmitErrors(t *testing.T) {
	env := newTestEnv(t)
	path := "/api/v1/models/m1/ratings"

	w := env.do(t, "POST", path, "alice", map[string]any{"score": 9, "stake": 1, "comment": "x"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "validation", decode[errorBody](t, w).Kind)

	w = env.do(t, "POST", path, "alice", map[string]any{"score": 3, "stake": 1})
	assert.Equal(t, http.StatusBadRequest, w.Code, "missing metadata")

	w = env.do(t, "POST", path, "alice", map[string]any{"score": 3, "stake": 2_000_000, "comment": "x"})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = env.do(t, "POST", path, "alice", map[string]any{"score": 3, "stake": 10, "comment": "x"})
	require.Equal(t, http.StatusCreated, w.Code)
	w = env.do(t, "POST", path, "alice", map[string]any{"score": 3, "stake": 10, "comment": "again"})
	assert.Equal(t, http.StatusConflict, w.Code)

	req := httptest.NewRequest("POST", path, bytes.NewReader([]byte("{not json")))
	req.Header.Set("Authorization", "Bearer "+testToken)
	rec := httptest.NewRecorder()
	env.srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUpdateRating(t *testing.T) {
	env := newTestEnv(t)
	path := "/api/v1/models/m1/ratings"
	require.Equal(t, http.StatusCreated, env.do(t, "POST", path, "alice", map[string]any{"score": 5, "stake": 10, "comment": "x"}).Code)

	w := env.do(t, "PUT", path, "alice", map[string]any{"score": 2, "extra_stake": 5, "comment": "changed my mind"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, uint64(15), decode[statsBody](t, w).TotalStaked)

	w = env.do(t, "PUT", path, "bob", map[string]any{"score": 2, "comment": "never rated"})
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestSlashRefundLifecycle(t *testing.T) {
	env := newTestEnv(t)
	base := "/api/v1/models/m1"
	require.Equal(t, http.StatusCreated, env.do(t, "POST", base+"/ratings", "alice", map[string]any{"score": 1, "stake": 40, "comment": "spam"}).Code)

	assert.Equal(t, http.StatusForbidden, env.do(t, "POST", base+"/ratings/0/slash", "alice", nil).Code)
	assert.Equal(t, http.StatusBadRequest, env.do(t, "POST", base+"/ratings/abc/slash", testAdmin, nil).Code)
	assert.Equal(t, http.StatusBadRequest, env.do(t, "POST", base+"/ratings/7/slash", testAdmin, nil).Code)

	w := env.do(t, "POST", base+"/ratings/0/slash", testAdmin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, uint8(0), decode[statsBody](t, w).TrustScore)

	assert.Equal(t, http.StatusConflict, env.do(t, "POST", base+"/ratings/0/refund", "alice", nil).Code, "not marked yet")

	w = env.do(t, "POST", base+"/refunds/mark", testAdmin, markRequest{Indices: []uint64{0}})
	require.Equal(t, http.StatusOK, w.Code)

	w = env.do(t, "GET", base+"/refunds/pending", "alice", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []uint64{0}, decode[ledger.PendingPage](t, w).Indices)

	assert.Equal(t, http.StatusForbidden, env.do(t, "POST", base+"/ratings/0/refund", "mallory", nil).Code)

	env.escrow.FailNext(errors.New("settlement offline"))
	w = env.do(t, "POST", base+"/ratings/0/refund", "alice", nil)
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Equal(t, "transfer", decode[errorBody](t, w).Kind)

	w = env.do(t, "POST", base+"/ratings/0/refund", "alice", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, refundResponse{Index: 0, Amount: 40}, decode[refundResponse](t, w))
	assert.Equal(t, uint64(40), env.escrow.Balance("alice"))

	assert.Equal(t, http.StatusConflict, env.do(t, "POST", base+"/ratings/0/refund", "alice", nil).Code)
}

func TestRatingsWindow(t *testing.T) {
	env := newTestEnv(t)

	assert.Equal(t, http.StatusUnprocessableEntity, env.do(t, "GET", "/api/v1/models/m1/ratings?start=0&end=500", "", nil).Code)
	assert.Equal(t, http.StatusBadRequest, env.do(t, "GET", "/api/v1/models/m1/ratings?start=5&end=1", "", nil).Code)
	assert.Equal(t, http.StatusBadRequest, env.do(t, "GET", "/api/v1/models/m1/ratings?start=x", "", nil).Code)
	assert.Equal(t, http.StatusBadRequest, env.do(t, "GET", "/api/v1/models/m1/refunds/pending?rater=a&max=0", "", nil).Code)
}

func TestAdminEndpoints(t *testing.T) {
	env := newTestEnv(t)

	assert.Equal(t, http.StatusForbidden, env.do(t, "POST", "/api/v1/admin/pause", "alice", nil).Code)
	require.Equal(t, http.StatusOK, env.do(t, "POST", "/api/v1/admin/pause", testAdmin, nil).Code)
	assert.True(t, env.ledger.Paused())
	assert.Equal(t, http.StatusConflict, env.do(t, "POST", "/api/v1/admin/pause", testAdmin, nil).Code)

	w := env.do(t, "POST", "/api/v1/models/m1/ratings", "alice", map[string]any{"score": 3, "stake": 1, "comment": "x"})
	assert.Equal(t, http.StatusConflict, w.Code)

	require.Equal(t, http.StatusOK, env.do(t, "POST", "/api/v1/admin/unpause", testAdmin, nil).Code)

	assert.Equal(t, http.StatusBadRequest, env.do(t, "PUT", "/api/v1/admin/max-stake", testAdmin, maxStakeRequest{MaxStake: 1}).Code)
	w = env.do(t, "PUT", "/api/v1/admin/max-stake", testAdmin, maxStakeRequest{MaxStake: 50_000})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, uint64(50_000), decode[map[string]uint64](t, w)["max_stake"])
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t)
	env.do(t, "GET", "/api/v1/models/m1/score", "", nil)

	w := httptest.NewRecorder()
	env.srv.router.ServeHTTP(w, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "verity_api_requests_total")
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusNotFound, statusFor(metadata.ErrNotFound))
	assert.Equal(t, http.StatusInternalServerError, statusFor(errors.New("boom")))
}
