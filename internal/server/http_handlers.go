package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/sanonone/voxpath/pkg/chunkcache"
	"github.com/sanonone/voxpath/pkg/future"
	"github.com/sanonone/voxpath/pkg/grid"
	"github.com/sanonone/voxpath/pkg/plan"
	"github.com/sanonone/voxpath/pkg/search"
	"github.com/sanonone/voxpath/pkg/traverse"
	"github.com/sanonone/voxpath/pkg/workpool"
	"github.com/sanonone/voxpath/pkg/world"
)

// registerHTTPHandlers sets up the routes of the REST API.
func (s *Server) registerHTTPHandlers(mux *http.ServeMux) {
	mux.HandleFunc("POST /v1/path", s.handlePath)
	mux.HandleFunc("POST /v1/path/async", s.handlePathAsync)
	mux.HandleFunc("GET /v1/tasks/{id}", s.handleGetTask)
	mux.HandleFunc("DELETE /v1/tasks/{id}", s.handleCancelTask)

	mux.HandleFunc("POST /v1/hpa/path", s.handleHierarchicalPath)
	mux.HandleFunc("POST /v1/hpa/invalidate", s.handleInvalidate)
	mux.HandleFunc("GET /v1/hpa/stats", s.handleGraphStats)
	mux.HandleFunc("GET /v1/hpa/clusters", s.handleClusters)
	mux.HandleFunc("GET /v1/hpa/dump", s.handleDump)

	mux.HandleFunc("POST /v1/world/block", s.handleSetBlock)
	mux.HandleFunc("GET /v1/cache/stats", s.handleCacheStats)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"world":  s.Engine.WorldID(),
		"source": s.Engine.SourceMode(),
	})
}

// --- Grid searches ---

// searchParams applies the per-request overrides to the configured parameters.
// The returned recorder is non-nil when the request asked for actions.
func (s *Server) searchParams(req PathRequest) (grid.Params, *traverse.Recorder, error) {
	params := s.params
	if req.Chain != "" {
		chain, err := traverse.ChainByName(req.Chain)
		if err != nil {
			return params, nil, err
		}
		params.Chain = chain
	}
	if req.Margin != nil {
		if *req.Margin < 0 {
			return params, nil, errors.New("margin must not be negative")
		}
		params.Margin = *req.Margin
	}
	var rec *traverse.Recorder
	if req.Actions {
		rec = &traverse.Recorder{}
		params.Mover = rec
	}
	return params, rec, nil
}

func (s *Server) radius(r int) int {
	if r <= 0 {
		return s.prefetchRadius
	}
	return r
}

func (s *Server) handlePath(w http.ResponseWriter, r *http.Request) {
	var req PathRequest
	if !decodeBody(w, r, &req) {
		return
	}
	params, rec, err := s.searchParams(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	fut := s.Engine.FindPathAsync(r.Context(), req.From.Pos(), req.To.Pos(), s.radius(req.Radius), params)
	p, err := fut.Get(r.Context())
	if err != nil {
		writeSearchError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pathResponse(p, rec))
}

func (s *Server) handlePathAsync(w http.ResponseWriter, r *http.Request) {
	var req PathRequest
	if !decodeBody(w, r, &req) {
		return
	}
	params, rec, err := s.searchParams(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	// The task outlives the request; it stops with the server or on cancel.
	ctx, cancel := context.WithCancel(s.baseCtx)
	task := s.taskManager.NewTask(cancel)
	fut := s.Engine.FindPathAsync(ctx, req.From.Pos(), req.To.Pos(), s.radius(req.Radius), params)
	fut.OnComplete(func(p *plan.Path, err error) {
		defer cancel()
		if err != nil {
			task.SetError(err)
			return
		}
		task.Complete(pathResponse(p, rec))
	})
	writeJSON(w, http.StatusAccepted, AsyncResponse{TaskID: task.ID})
}

func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	task, ok := s.taskManager.GetTask(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, "task not found")
		return
	}
	writeJSON(w, http.StatusOK, task.Snapshot())
}

func (s *Server) handleCancelTask(w http.ResponseWriter, r *http.Request) {
	task, ok := s.taskManager.GetTask(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, "task not found")
		return
	}
	if !task.Cancel() {
		writeError(w, http.StatusConflict, "task already finished")
		return
	}
	writeJSON(w, http.StatusOK, task.Snapshot())
}

// --- Hierarchical graph ---

func (s *Server) handleHierarchicalPath(w http.ResponseWriter, r *http.Request) {
	var req HierarchicalRequest
	if !decodeBody(w, r, &req) {
		return
	}
	fut := s.Engine.FindHierarchicalAsync(r.Context(), s.Graph, req.From.Pos(), req.To.Pos(), s.radius(req.Radius))
	res, err := fut.Get(r.Context())
	if err != nil {
		writeSearchError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, hierarchicalResponse(r.Context(), res))
}

func (s *Server) handleInvalidate(w http.ResponseWriter, r *http.Request) {
	var req InvalidateRequest
	if !decodeBody(w, r, &req) {
		return
	}
	resp := InvalidateResponse{Loaded: s.Graph.InvalidateRegion(req.X, req.Z)}
	if req.Apply {
		resp.Rebuilt = s.Graph.ApplyPendingPatchesContext(r.Context())
	}
	resp.Dirty = s.Graph.Dirty()
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGraphStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Graph.Stats())
}

// handleClusters lists the clusters of one level intersecting a box given as
// query parameters: level, x0, y0, z0, x1, y1, z1. Missing Y bounds span the
// whole world height.
func (s *Server) handleClusters(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	ints := map[string]int{"level": 0, "y0": -1 << 20, "y1": 1 << 20}
	for _, key := range []string{"level", "x0", "y0", "z0", "x1", "y1", "z1"} {
		raw := q.Get(key)
		if raw == "" {
			if _, ok := ints[key]; ok {
				continue
			}
			writeError(w, http.StatusBadRequest, fmt.Sprintf("query parameter %q is required", key))
			return
		}
		v, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("query parameter %q: %v", key, err))
			return
		}
		ints[key] = v
	}
	level := ints["level"]
	if level < 0 || level > s.Graph.Config().TopLevel() {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("level must be in [0, %d]", s.Graph.Config().TopLevel()))
		return
	}

	box := grid.NewBounds(
		world.Pos(ints["x0"], ints["y0"], ints["z0"]),
		world.Pos(ints["x1"], ints["y1"], ints["z1"]))
	clusters := s.Graph.ClustersIn(level, box)
	out := make([]ClusterView, 0, len(clusters))
	for _, c := range clusters {
		out = append(out, ClusterView{
			ID:        c.ID,
			Level:     c.Level,
			Origin:    pointOf(c.Origin),
			Size:      c.Size,
			Height:    c.Height,
			Entrances: len(c.Nodes),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleDump(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	if err := s.Graph.Dump(&buf); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.Header().Set("Content-Type", "application/msgpack")
	w.Header().Set("Content-Disposition", `attachment; filename="hpa.msgpack"`)
	w.Write(buf.Bytes())
}

// --- World ---

func (s *Server) handleSetBlock(w http.ResponseWriter, r *http.Request) {
	if s.world == nil {
		writeError(w, http.StatusMethodNotAllowed, "world is read-only")
		return
	}
	var req SetBlockRequest
	if !decodeBody(w, r, &req) {
		return
	}
	dirty, err := s.Engine.SetBlock(r.Context(), s.world, req.Pos.Pos(), req.Material, s.Graph)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, SetBlockResponse{Dirty: dirty})
}

func (s *Server) handleCacheStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Engine.Cache().Stats())
}

// --- Helpers ---

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return false
	}
	return true
}

// writeSearchError maps search failures to HTTP statuses.
func writeSearchError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, search.ErrExpansionLimit):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, workpool.ErrClosed), errors.Is(err, chunkcache.ErrClosed):
		status = http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled), errors.Is(err, future.ErrCancelled):
		status = http.StatusRequestTimeout
	case errors.Is(err, world.ErrOutOfRange):
		status = http.StatusBadRequest
	}
	writeError(w, status, err.Error())
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{"error": message})
}
