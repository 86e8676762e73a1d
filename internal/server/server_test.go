package server

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/worktype-resolver/internal/drafting"
	"github.com/jonathan/worktype-resolver/internal/matching"
	"github.com/jonathan/worktype-resolver/internal/resolution"
	"github.com/jonathan/worktype-resolver/internal/server/ratelimit"
	"github.com/jonathan/worktype-resolver/internal/similarity"
	"github.com/jonathan/worktype-resolver/internal/types"
)

// fakeResolver records the last call and echoes each fragment as unmatched.
type fakeResolver struct {
	mu        sync.Mutex
	fragments []string
	opts      resolution.Options
	err       error
}

func (f *fakeResolver) Resolve(_ context.Context, fragments []string, opts resolution.Options) ([]types.ResolvedItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fragments = fragments
	f.opts = opts
	if f.err != nil {
		return nil, f.err
	}
	items := make([]types.ResolvedItem, len(fragments))
	for i, raw := range fragments {
		if opts.OnProgress != nil {
			opts.OnProgress(resolution.ProgressEvent{Step: resolution.StepSearch, Index: i, Message: raw})
		}
		items[i] = types.ResolvedItem{Fragment: types.NewFragment(raw), Tier: types.TierUnmatched}
	}
	return items, nil
}

type fakeDrafter struct {
	got    []types.Fragment
	result drafting.Drafts
}

func (f *fakeDrafter) Generate(_ context.Context, fragments []types.Fragment) drafting.Drafts {
	f.got = fragments
	return f.result
}

type fakeCatalog struct {
	workTypes []*types.WorkType
	history   map[uuid.UUID][]types.CostSnapshot
	err       error
}

func (f *fakeCatalog) GetAll(_ context.Context) ([]*types.WorkType, error) {
	return f.workTypes, f.err
}

func (f *fakeCatalog) GetWorkType(_ context.Context, id uuid.UUID) (*types.WorkType, error) {
	if f.err != nil {
		return nil, f.err
	}
	for _, wt := range f.workTypes {
		if wt.ID == id {
			return wt, nil
		}
	}
	return nil, nil
}

func (f *fakeCatalog) ListCostHistory(_ context.Context, id uuid.UUID) ([]types.CostSnapshot, error) {
	return f.history[id], f.err
}

func disabledRateLimit() *ratelimit.Config {
	return &ratelimit.Config{Enabled: false}
}

func newTestServer(resolver Resolver, drafter resolution.Drafter, catalog Catalog) *Server {
	return New(Config{
		Options:   resolution.DefaultOptions(),
		RateLimit: disabledRateLimit(),
	}, resolver, drafter, catalog)
}

func doRequest(t *testing.T, s *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func decodeBody[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), "body: %s", w.Body.String())
	return v
}

func TestHandleHealth(t *testing.T) {
	s := newTestServer(&fakeResolver{}, nil, nil)

	w := doRequest(t, s, http.MethodGet, "/health", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", decodeBody[map[string]string](t, w)["status"])
}

func TestCORSPreflight(t *testing.T) {
	s := newTestServer(&fakeResolver{}, nil, nil)

	w := doRequest(t, s, http.MethodOptions, "/resolve", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestHandleResolve(t *testing.T) {
	t.Run("explicit fragments with overrides", func(t *testing.T) {
		resolver := &fakeResolver{}
		s := newTestServer(resolver, nil, nil)
		hard, soft := 0.9, 0.5

		w := doRequest(t, s, http.MethodPost, "/resolve", ResolveRequest{
			Fragments:     []string{"replace water heater", "  ", "install a bidet"},
			HardThreshold: &hard,
			SoftThreshold: &soft,
			K:             3,
			SkipDrafting:  true,
		})

		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		resp := decodeBody[ResolveResponse](t, w)
		require.Len(t, resp.Items, 2)
		assert.Equal(t, "install a bidet", resp.Items[1].Fragment.Raw)
		assert.Equal(t, []string{"replace water heater", "install a bidet"}, resolver.fragments)
		assert.Equal(t, matching.Thresholds{Hard: 0.9, Soft: 0.5}, resolver.opts.Thresholds)
		assert.Equal(t, 3, resolver.opts.K)
		assert.True(t, resolver.opts.SkipDrafting)
		assert.Nil(t, resolver.opts.OnProgress)
	})

	t.Run("free text is split", func(t *testing.T) {
		resolver := &fakeResolver{}
		s := newTestServer(resolver, nil, nil)

		w := doRequest(t, s, http.MethodPost, "/resolve", ResolveRequest{
			Text: "replace water heater\npatch drywall hole",
		})

		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		assert.Equal(t, resolution.SplitAssessment("replace water heater\npatch drywall hole"), resolver.fragments)
		assert.Equal(t, resolution.DefaultOptions().Thresholds, resolver.opts.Thresholds)
	})

	t.Run("missing input", func(t *testing.T) {
		s := newTestServer(&fakeResolver{}, nil, nil)

		w := doRequest(t, s, http.MethodPost, "/resolve", ResolveRequest{Text: "   "})

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, decodeBody[map[string]string](t, w)["error"], "fragments")
	})

	t.Run("invalid JSON", func(t *testing.T) {
		s := newTestServer(&fakeResolver{}, nil, nil)
		req := httptest.NewRequest(http.MethodPost, "/resolve", strings.NewReader("{not json"))
		w := httptest.NewRecorder()

		s.Handler().ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("too many fragments", func(t *testing.T) {
		s := New(Config{Options: resolution.DefaultOptions(), RateLimit: disabledRateLimit(), MaxFragments: 2},
			&fakeResolver{}, nil, nil)

		w := doRequest(t, s, http.MethodPost, "/resolve", ResolveRequest{Fragments: []string{"a", "b", "c"}})

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("configuration error maps to 400", func(t *testing.T) {
		resolver := &fakeResolver{err: &matching.ConfigurationError{Field: "soft_threshold", Message: "must be below hard", Value: 0.9}}
		s := newTestServer(resolver, nil, nil)

		w := doRequest(t, s, http.MethodPost, "/resolve", ResolveRequest{Fragments: []string{"x"}})

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, decodeBody[map[string]string](t, w)["error"], "soft_threshold")
	})

	t.Run("unexpected error is hidden", func(t *testing.T) {
		s := newTestServer(&fakeResolver{err: errors.New("connection refused on 10.0.0.5")}, nil, nil)

		w := doRequest(t, s, http.MethodPost, "/resolve", ResolveRequest{Fragments: []string{"x"}})

		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.Equal(t, "internal error", decodeBody[map[string]string](t, w)["error"])
	})
}

func TestHandleResolve_Orchestrator(t *testing.T) {
	catalog := similarity.NewCatalog(
		&types.WorkType{ID: uuid.New(), Name: "Water Heater Replacement", ParentBucket: types.BucketMechanical,
			MeasurementType: types.MeasurementQuantity, SuggestedUnits: "each", Revision: 1},
	)
	index, err := similarity.NewIndex(catalog, nil, similarity.Config{K: 5, ShortlistSize: 15})
	require.NoError(t, err)
	s := newTestServer(resolution.NewOrchestrator(index, nil, nil), nil, nil)

	w := doRequest(t, s, http.MethodPost, "/resolve", ResolveRequest{
		Fragments: []string{"Water Heater Replacement", "install a bidet"},
	})

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resp := decodeBody[ResolveResponse](t, w)
	require.Len(t, resp.Items, 2)
	assert.Equal(t, "Water Heater Replacement", resp.Items[0].Fragment.Raw)
	require.NotEmpty(t, resp.Items[0].Candidates)
	assert.Equal(t, "Water Heater Replacement", resp.Items[0].Candidates[0].WorkType.Name)
	require.NotEmpty(t, resp.Suggestions)
	assert.Equal(t, "Water Heater Replacement", resp.Suggestions[0].WorkType.Name)
}

// readEvents parses an SSE body into (event, data) pairs.
func readEvents(t *testing.T, body string) [][2]string {
	t.Helper()
	var events [][2]string
	var event string
	scanner := bufio.NewScanner(strings.NewReader(body))
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "event: "):
			event = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			events = append(events, [2]string{event, strings.TrimPrefix(line, "data: ")})
		}
	}
	require.NoError(t, scanner.Err())
	return events
}

func TestHandleResolveStream(t *testing.T) {
	t.Run("progress then complete", func(t *testing.T) {
		s := newTestServer(&fakeResolver{}, nil, nil)

		w := doRequest(t, s, http.MethodPost, "/resolve/stream", ResolveRequest{
			Fragments: []string{"replace sump pump", "patch drywall hole"},
		})

		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))
		events := readEvents(t, w.Body.String())
		require.Len(t, events, 3)
		assert.Equal(t, "progress", events[0][0])
		assert.Equal(t, "progress", events[1][0])
		assert.Equal(t, "complete", events[2][0])

		var progress resolution.ProgressEvent
		require.NoError(t, json.Unmarshal([]byte(events[1][1]), &progress))
		assert.Equal(t, 1, progress.Index)
		assert.Equal(t, "patch drywall hole", progress.Message)

		var complete ResolveResponse
		require.NoError(t, json.Unmarshal([]byte(events[2][1]), &complete))
		assert.Len(t, complete.Items, 2)
	})

	t.Run("resolver error becomes error event", func(t *testing.T) {
		resolver := &fakeResolver{err: &matching.ConfigurationError{Field: "k", Message: "must not be negative", Value: -1}}
		s := newTestServer(resolver, nil, nil)

		w := doRequest(t, s, http.MethodPost, "/resolve/stream", ResolveRequest{Fragments: []string{"x"}})

		events := readEvents(t, w.Body.String())
		require.Len(t, events, 1)
		assert.Equal(t, "error", events[0][0])
		assert.Contains(t, events[0][1], "must not be negative")
	})

	t.Run("bad request is plain JSON", func(t *testing.T) {
		s := newTestServer(&fakeResolver{}, nil, nil)

		w := doRequest(t, s, http.MethodPost, "/resolve/stream", ResolveRequest{})

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	})
}

func TestHandleDrafts(t *testing.T) {
	t.Run("returns drafts", func(t *testing.T) {
		drafter := &fakeDrafter{result: drafting.Drafts{
			Items: []types.DraftWorkType{{
				Name: "Bidet Installation", ParentBucket: types.BucketMechanical,
				MeasurementType: types.MeasurementQuantity, SuggestedUnits: "each", FragmentIndex: 1,
			}},
			Cached: true,
		}}
		s := newTestServer(&fakeResolver{}, drafter, nil)

		w := doRequest(t, s, http.MethodPost, "/drafts", DraftRequest{Fragments: []string{"Install a Bidet "}})

		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		resp := decodeBody[DraftResponse](t, w)
		require.Len(t, resp.Drafts, 1)
		assert.Equal(t, "Bidet Installation", resp.Drafts[0].Name)
		assert.True(t, resp.Cached)
		require.Len(t, drafter.got, 1)
		assert.Equal(t, "install a bidet", drafter.got[0].Normalized)
	})

	t.Run("degraded result keeps empty array", func(t *testing.T) {
		drafter := &fakeDrafter{result: drafting.Drafts{Degraded: []types.DegradedReason{types.ReasonGenerationTimeout}}}
		s := newTestServer(&fakeResolver{}, drafter, nil)

		w := doRequest(t, s, http.MethodPost, "/drafts", DraftRequest{Fragments: []string{"x"}})

		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"drafts":[]`)
		resp := decodeBody[DraftResponse](t, w)
		assert.Equal(t, []types.DegradedReason{types.ReasonGenerationTimeout}, resp.Degraded)
	})

	t.Run("no drafter configured", func(t *testing.T) {
		s := newTestServer(&fakeResolver{}, nil, nil)

		w := doRequest(t, s, http.MethodPost, "/drafts", DraftRequest{Fragments: []string{"x"}})

		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	})

	t.Run("empty fragments", func(t *testing.T) {
		s := newTestServer(&fakeResolver{}, &fakeDrafter{}, nil)

		w := doRequest(t, s, http.MethodPost, "/drafts", DraftRequest{Fragments: []string{" "}})

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestCatalogEndpoints(t *testing.T) {
	heater := &types.WorkType{ID: uuid.New(), Name: "Water Heater Replacement", ParentBucket: types.BucketMechanical,
		MeasurementType: types.MeasurementQuantity, SuggestedUnits: "each", Revision: 2}
	paint := &types.WorkType{ID: uuid.New(), Name: "Interior Wall Paint", ParentBucket: types.BucketInteriorFinish,
		MeasurementType: types.MeasurementArea, SuggestedUnits: "sq ft", Revision: 1}
	cost := 420.0
	catalog := &fakeCatalog{
		workTypes: []*types.WorkType{heater, paint},
		history: map[uuid.UUID][]types.CostSnapshot{
			heater.ID: {{ID: uuid.New(), WorkTypeID: heater.ID, Region: types.DefaultCostRegion, UnitCostLabor: &cost}},
		},
	}
	s := newTestServer(&fakeResolver{}, nil, catalog)

	t.Run("list", func(t *testing.T) {
		w := doRequest(t, s, http.MethodGet, "/work-types", nil)

		require.Equal(t, http.StatusOK, w.Code)
		resp := decodeBody[map[string][]types.WorkType](t, w)
		assert.Len(t, resp["work_types"], 2)
	})

	t.Run("list by bucket", func(t *testing.T) {
		w := doRequest(t, s, http.MethodGet, "/work-types?bucket=Mechanical", nil)

		require.Equal(t, http.StatusOK, w.Code)
		resp := decodeBody[map[string][]types.WorkType](t, w)
		require.Len(t, resp["work_types"], 1)
		assert.Equal(t, heater.ID, resp["work_types"][0].ID)
	})

	t.Run("unknown bucket", func(t *testing.T) {
		w := doRequest(t, s, http.MethodGet, "/work-types?bucket=Garden", nil)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("get", func(t *testing.T) {
		w := doRequest(t, s, http.MethodGet, "/work-types/"+paint.ID.String(), nil)

		require.Equal(t, http.StatusOK, w.Code)
		got := decodeBody[types.WorkType](t, w)
		assert.Equal(t, "Interior Wall Paint", got.Name)
	})

	t.Run("get missing", func(t *testing.T) {
		w := doRequest(t, s, http.MethodGet, "/work-types/"+uuid.NewString(), nil)

		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("get malformed id", func(t *testing.T) {
		w := doRequest(t, s, http.MethodGet, "/work-types/not-a-uuid", nil)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("cost history", func(t *testing.T) {
		w := doRequest(t, s, http.MethodGet, fmt.Sprintf("/work-types/%s/cost-history", heater.ID), nil)

		require.Equal(t, http.StatusOK, w.Code)
		resp := decodeBody[map[string][]types.CostSnapshot](t, w)
		require.Len(t, resp["history"], 1)
		assert.InDelta(t, 420.0, *resp["history"][0].UnitCostLabor, 1e-9)
	})

	t.Run("empty cost history", func(t *testing.T) {
		w := doRequest(t, s, http.MethodGet, fmt.Sprintf("/work-types/%s/cost-history", paint.ID), nil)

		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"history":[]`)
	})
}

func TestCatalogEndpoints_Unavailable(t *testing.T) {
	s := newTestServer(&fakeResolver{}, nil, nil)

	w := doRequest(t, s, http.MethodGet, "/work-types", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	failing := newTestServer(&fakeResolver{}, nil, &fakeCatalog{err: errors.New("pool closed")})
	w = doRequest(t, failing, http.MethodGet, "/work-types", nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestRateLimitMiddleware(t *testing.T) {
	s := New(Config{
		Options: resolution.DefaultOptions(),
		RateLimit: &ratelimit.Config{
			Enabled:       true,
			DefaultLimit:  2,
			DefaultWindow: time.Hour,
		},
	}, &fakeResolver{}, nil, &fakeCatalog{})
	defer s.rateLimiter.Stop()

	for i := 0; i < 2; i++ {
		w := doRequest(t, s, http.MethodGet, "/work-types", nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "2", w.Header().Get("X-RateLimit-Limit"))
	}

	w := doRequest(t, s, http.MethodGet, "/work-types", nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
	assert.Equal(t, "rate_limit_exceeded", decodeBody[map[string]any](t, w)["error"])

	w = doRequest(t, s, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code, "health is never limited")
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"validation", &ErrValidation{Field: "f", Message: "m"}, http.StatusBadRequest},
		{"configuration", fmt.Errorf("wrapped: %w", &matching.ConfigurationError{Field: "k"}), http.StatusBadRequest},
		{"not found", &ErrNotFound{Resource: "work type", ID: "x"}, http.StatusNotFound},
		{"unavailable", &ErrUnavailable{Component: "catalog"}, http.StatusServiceUnavailable},
		{"other", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HTTPStatus(tt.err))
		})
	}
}
