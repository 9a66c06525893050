package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/si3lab/lidarlink/internal/attribute"
	"github.com/si3lab/lidarlink/internal/entity"
	"github.com/si3lab/lidarlink/internal/history"
)

// graphFallback is charted when the schema declares nothing graphable.
const graphFallback = "HEARTBEAT"

// AttributeInfo describes one schema attribute.
type AttributeInfo struct {
	attribute.Definition
	Graphable bool `json:"graphable"`
}

// RetentionRequest is the body of PUT /history/retention.
type RetentionRequest struct {
	Minutes *int `json:"minutes"`
}

// RetentionResponse describes the history window.
type RetentionResponse struct {
	Minutes    int `json:"minutes"`
	MaxMinutes int `json:"max_minutes"`
}

// handleAttributes lists the schema, or only graphable attributes when
// ?graphable=true.
func (s *Server) handleAttributes(w http.ResponseWriter, r *http.Request) {
	onlyGraphable := false
	if v := r.URL.Query().Get("graphable"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			writeStatus(w, http.StatusBadRequest, "graphable must be true or false")
			return
		}
		onlyGraphable = b
	}

	var defs []attribute.Definition
	if onlyGraphable {
		for _, name := range s.attrs.Graphable(graphFallback) {
			d, _ := s.attrs.Definition(name)
			defs = append(defs, d)
		}
	} else {
		defs = s.attrs.Definitions()
	}

	out := make([]AttributeInfo, len(defs))
	for i, d := range defs {
		out[i] = AttributeInfo{Definition: d, Graphable: d.Graphable()}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"attributes": out,
		"count":      len(out),
	})
}

// handleSnapshot returns the current value of every attribute.
func (s *Server) handleSnapshot(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, entity.ToDTO(s.attrs, s.projector.Snapshot(), s.now()))
}

// handleHistory returns the stored points of one attribute, oldest first.
// ?since=RFC3339 restricts the result to points strictly after that time.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	name, ok := s.attrs.Canonical(chi.URLParam(r, "attribute"))
	if !ok {
		writeStatus(w, http.StatusNotFound, "unknown attribute")
		return
	}

	var points []history.Point
	if v := r.URL.Query().Get("since"); v != "" {
		since, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			writeStatus(w, http.StatusBadRequest, "since must be an RFC 3339 timestamp")
			return
		}
		points = s.store.Since(name, since)
	} else {
		points = s.store.Get(name)
	}
	if points == nil {
		points = []history.Point{}
	}
	writeJSON(w, http.StatusOK, points)
}

// handleGetRetention returns the history window.
func (s *Server) handleGetRetention(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.retention())
}

// handleSetRetention changes the history window through the command
// channel, so it is serialised with every other operator command.
func (s *Server) handleSetRetention(w http.ResponseWriter, r *http.Request) {
	var req RetentionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeStatus(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Minutes == nil {
		writeStatus(w, http.StatusBadRequest, "minutes is required")
		return
	}

	cmd, err := s.catalogue.SetWindow(*req.Minutes)
	if err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeValidation, err.Error())
		return
	}
	cmd.Source = "api"

	res, err := s.submit(r, cmd, true)
	if err != nil {
		writeCommandError(w, err)
		return
	}
	if res.Err != nil {
		writeError(w, commandStatus(res.Err), ErrCodeCommandFailed, res.Err.Error())
		return
	}
	writeJSON(w, http.StatusOK, s.retention())
}

func (s *Server) retention() RetentionResponse {
	return RetentionResponse{
		Minutes:    int(s.store.Retention() / time.Minute),
		MaxMinutes: s.catalogue.MaxRetention(),
	}
}
