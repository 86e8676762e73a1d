package server

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/jonathan/worktype-resolver/internal/resolution"
	"github.com/jonathan/worktype-resolver/internal/types"
)

// maxBodyBytes bounds request bodies
const maxBodyBytes = 1 << 20

// ResolveRequest is the body of POST /resolve and POST /resolve/stream.
// Exactly one of Fragments or Text is used; Fragments wins when both are set.
type ResolveRequest struct {
	Fragments     []string `json:"fragments,omitempty"`
	Text          string   `json:"text,omitempty"`
	HardThreshold *float64 `json:"hard_threshold,omitempty"`
	SoftThreshold *float64 `json:"soft_threshold,omitempty"`
	K             int      `json:"k,omitempty"`
	SkipDrafting  bool     `json:"skip_drafting,omitempty"`
	Suggestions   int      `json:"suggestions,omitempty"`
}

// ResolveResponse is returned by POST /resolve and as the stream's complete event
type ResolveResponse struct {
	Items       []types.ResolvedItem `json:"items"`
	Suggestions []types.Candidate    `json:"suggestions,omitempty"`
}

// DraftRequest is the body of POST /drafts
type DraftRequest struct {
	Fragments []string `json:"fragments"`
}

// DraftResponse is returned by POST /drafts
type DraftResponse struct {
	Drafts   []types.DraftWorkType  `json:"drafts"`
	Degraded []types.DegradedReason `json:"degraded,omitempty"`
	Cached   bool                   `json:"cached"`
}

// ---- Resolution Handlers ----

func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	req, fragments, opts, err := s.parseResolveRequest(w, r)
	if err != nil {
		s.errorFrom(w, err)
		return
	}

	items, err := s.resolver.Resolve(r.Context(), fragments, opts)
	if err != nil {
		s.errorFrom(w, err)
		return
	}

	s.jsonResponse(w, http.StatusOK, ResolveResponse{
		Items:       items,
		Suggestions: resolution.Suggestions(items, suggestionLimit(req)),
	})
}

// handleResolveStream resolves with progress reported as SSE "progress" events,
// followed by one "complete" or "error" event.
func (s *Server) handleResolveStream(w http.ResponseWriter, r *http.Request) {
	req, fragments, opts, err := s.parseResolveRequest(w, r)
	if err != nil {
		s.errorFrom(w, err)
		return
	}

	sse, err := NewSSEWriter(w)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, err.Error())
		return
	}

	opts.OnProgress = func(event resolution.ProgressEvent) {
		if err := sse.WriteEvent("progress", event); err != nil {
			s.logger.Debug("server: failed to write progress event", "error", err)
		}
	}

	items, err := s.resolver.Resolve(r.Context(), fragments, opts)
	if err != nil {
		sse.WriteError(err.Error())
		return
	}

	sse.WriteComplete(ResolveResponse{
		Items:       items,
		Suggestions: resolution.Suggestions(items, suggestionLimit(req)),
	})
}

func (s *Server) handleDrafts(w http.ResponseWriter, r *http.Request) {
	if s.drafter == nil {
		s.errorFrom(w, &ErrUnavailable{Component: "draft generator"})
		return
	}

	var req DraftRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.errorFrom(w, err)
		return
	}
	raw := nonBlank(req.Fragments)
	if len(raw) == 0 {
		s.errorFrom(w, &ErrValidation{Field: "fragments", Message: "at least one fragment is required"})
		return
	}
	if len(raw) > s.maxFragments {
		s.errorFrom(w, &ErrValidation{Field: "fragments", Message: "too many fragments"})
		return
	}

	fragments := make([]types.Fragment, len(raw))
	for i, f := range raw {
		fragments[i] = types.NewFragment(f)
	}

	drafts := s.drafter.Generate(r.Context(), fragments)
	resp := DraftResponse{Drafts: drafts.Items, Degraded: drafts.Degraded, Cached: drafts.Cached}
	if resp.Drafts == nil {
		resp.Drafts = []types.DraftWorkType{}
	}
	s.jsonResponse(w, http.StatusOK, resp)
}

// parseResolveRequest decodes the body and builds the fragment list and
// per-request options on top of the server defaults.
func (s *Server) parseResolveRequest(w http.ResponseWriter, r *http.Request) (*ResolveRequest, []string, resolution.Options, error) {
	opts := s.options

	var req ResolveRequest
	if err := decodeJSON(w, r, &req); err != nil {
		return nil, nil, opts, err
	}

	fragments := nonBlank(req.Fragments)
	if len(fragments) == 0 && strings.TrimSpace(req.Text) != "" {
		fragments = resolution.SplitAssessment(req.Text)
	}
	if len(fragments) == 0 {
		return nil, nil, opts, &ErrValidation{Field: "fragments", Message: "fragments or text is required"}
	}
	if len(fragments) > s.maxFragments {
		return nil, nil, opts, &ErrValidation{Field: "fragments", Message: "too many fragments"}
	}

	if req.HardThreshold != nil {
		opts.Thresholds.Hard = *req.HardThreshold
	}
	if req.SoftThreshold != nil {
		opts.Thresholds.Soft = *req.SoftThreshold
	}
	if req.K != 0 {
		opts.K = req.K
	}
	opts.SkipDrafting = opts.SkipDrafting || req.SkipDrafting

	return &req, fragments, opts, nil
}

func suggestionLimit(req *ResolveRequest) int {
	if req.Suggestions > 0 {
		return req.Suggestions
	}
	return 10
}

// ---- Catalog Handlers ----

func (s *Server) handleListWorkTypes(w http.ResponseWriter, r *http.Request) {
	if s.catalog == nil {
		s.errorFrom(w, &ErrUnavailable{Component: "catalog"})
		return
	}

	bucket := types.ParentBucket(r.URL.Query().Get("bucket"))
	if bucket != "" && !validBucket(bucket) {
		s.errorFrom(w, &ErrValidation{Field: "bucket", Message: "unknown parent bucket"})
		return
	}

	all, err := s.catalog.GetAll(r.Context())
	if err != nil {
		s.errorFrom(w, err)
		return
	}

	workTypes := make([]*types.WorkType, 0, len(all))
	for _, wt := range all {
		if bucket == "" || wt.ParentBucket == bucket {
			workTypes = append(workTypes, wt)
		}
	}
	s.jsonResponse(w, http.StatusOK, map[string]any{"work_types": workTypes})
}

func (s *Server) handleGetWorkType(w http.ResponseWriter, r *http.Request) {
	if s.catalog == nil {
		s.errorFrom(w, &ErrUnavailable{Component: "catalog"})
		return
	}
	id, err := pathID(r)
	if err != nil {
		s.errorFrom(w, err)
		return
	}

	wt, err := s.catalog.GetWorkType(r.Context(), id)
	if err != nil {
		s.errorFrom(w, err)
		return
	}
	if wt == nil {
		s.errorFrom(w, &ErrNotFound{Resource: "work type", ID: id.String()})
		return
	}
	s.jsonResponse(w, http.StatusOK, wt)
}

func (s *Server) handleCostHistory(w http.ResponseWriter, r *http.Request) {
	if s.catalog == nil {
		s.errorFrom(w, &ErrUnavailable{Component: "catalog"})
		return
	}
	id, err := pathID(r)
	if err != nil {
		s.errorFrom(w, err)
		return
	}

	wt, err := s.catalog.GetWorkType(r.Context(), id)
	if err != nil {
		s.errorFrom(w, err)
		return
	}
	if wt == nil {
		s.errorFrom(w, &ErrNotFound{Resource: "work type", ID: id.String()})
		return
	}

	history, err := s.catalog.ListCostHistory(r.Context(), id)
	if err != nil {
		s.errorFrom(w, err)
		return
	}
	if history == nil {
		history = []types.CostSnapshot{}
	}
	s.jsonResponse(w, http.StatusOK, map[string]any{"history": history})
}

// ---- Helpers ----

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return &ErrValidation{Field: "body", Message: "invalid JSON: " + err.Error()}
	}
	return nil
}

func pathID(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		return uuid.Nil, &ErrValidation{Field: "id", Message: "must be a UUID"}
	}
	return id, nil
}

func nonBlank(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if strings.TrimSpace(s) != "" {
			out = append(out, s)
		}
	}
	return out
}

func validBucket(b types.ParentBucket) bool {
	for _, known := range types.ParentBuckets {
		if b == known {
			return true
		}
	}
	return false
}
