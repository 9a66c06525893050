package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/si3lab/lidarlink/internal/audit"
)

// handleEvents pages through the session journal, newest first.
//
// Query parameters: kind (state_change, command), subject, since
// (RFC 3339), limit, offset.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if s.journal == nil {
		writeStatus(w, http.StatusServiceUnavailable, "session journal is disabled")
		return
	}

	q := r.URL.Query()
	filter := audit.Filter{
		Kind:    q.Get("kind"),
		Subject: q.Get("subject"),
	}
	if v := q.Get("since"); v != "" {
		since, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			writeStatus(w, http.StatusBadRequest, "since must be an RFC 3339 timestamp")
			return
		}
		filter.Since = since
	}
	for _, p := range []struct {
		name string
		dst  *int
	}{{"limit", &filter.Limit}, {"offset", &filter.Offset}} {
		v := q.Get(p.name)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeStatus(w, http.StatusBadRequest, p.name+" must be a non-negative integer")
			return
		}
		*p.dst = n
	}

	result, err := s.journal.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("listing journal events", "error", err)
		writeStatus(w, http.StatusInternalServerError, "failed to list events")
		return
	}
	writeJSON(w, http.StatusOK, result)
}
