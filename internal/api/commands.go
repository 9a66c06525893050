package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/si3lab/lidarlink/internal/control"
	"github.com/si3lab/lidarlink/internal/instrument"
	"github.com/si3lab/lidarlink/internal/session"
)

// CommandResult is the JSON form of a session.Result.
type CommandResult struct {
	ID         string              `json:"id"`
	Kind       session.CommandKind `json:"kind"`
	Name       string              `json:"name,omitempty"`
	Source     string              `json:"source,omitempty"`
	Status     string              `json:"status"`
	Output     []any               `json:"output,omitempty"`
	Error      string              `json:"error,omitempty"`
	DurationMS float64             `json:"duration_ms"`
}

func newCommandResult(source string, res session.Result) CommandResult {
	out := CommandResult{
		ID:         res.ID,
		Kind:       res.Kind,
		Name:       res.Name,
		Source:     source,
		Status:     "ok",
		Output:     res.Output,
		Error:      res.ErrorText(),
		DurationMS: float64(res.Duration) / float64(time.Millisecond),
	}
	if res.Err != nil {
		out.Status = "failed"
	}
	return out
}

// handleControls lists the callable methods and writable nodes.
func (s *Server) handleControls(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"methods":   s.catalogue.Methods(),
		"setpoints": s.catalogue.Setpoints(),
	})
}

// handleCommand resolves a control.Request and places it on the command
// channel.
//
// Without ?wait=true the response is 202 with the command ID as soon as
// the command is queued. With it, the handler waits for the result and
// answers 200, or 502/503 when the instrument rejected the command or the
// link is down.
func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	var req control.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeStatus(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	wait := false
	if v := r.URL.Query().Get("wait"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			writeStatus(w, http.StatusBadRequest, "wait must be true or false")
			return
		}
		wait = b
	}

	cmd, err := s.catalogue.Build(req)
	if err != nil {
		writeCommandError(w, err)
		return
	}
	cmd.Source = "api"

	res, err := s.submit(r, cmd, wait)
	if err != nil {
		writeCommandError(w, err)
		return
	}
	if !wait {
		writeJSON(w, http.StatusAccepted, map[string]any{
			"id":     res.ID,
			"kind":   cmd.Kind,
			"status": "queued",
		})
		return
	}

	status := http.StatusOK
	if res.Err != nil {
		status = commandStatus(res.Err)
	}
	writeJSON(w, status, newCommandResult(cmd.Source, res))
}

// errCommandTimeout is returned when a waited-for result does not arrive.
var errCommandTimeout = errors.New("timed out waiting for command result")

// submit queues cmd. When wait is set it blocks for the result until the
// request is cancelled or commandWait passes; otherwise the returned
// result only carries the assigned ID.
func (s *Server) submit(r *http.Request, cmd session.Command, wait bool) (session.Result, error) {
	var reply chan session.Result
	if wait {
		reply = make(chan session.Result, 1)
		cmd.Reply = reply
	}

	id, err := s.session.Submit(cmd)
	if err != nil {
		return session.Result{}, err
	}
	if !wait {
		return session.Result{ID: id, Kind: cmd.Kind, Name: cmd.Name}, nil
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.commandWait)
	defer cancel()
	select {
	case res := <-reply:
		return res, nil
	case <-ctx.Done():
		return session.Result{}, errCommandTimeout
	}
}

// commandStatus maps a command error to an HTTP status.
func commandStatus(err error) int {
	switch {
	case errors.Is(err, control.ErrUnknownMethod),
		errors.Is(err, control.ErrUnknownSetpoint):
		return http.StatusNotFound
	case errors.Is(err, control.ErrInvalidArgument),
		errors.Is(err, control.ErrInvalidWindow),
		errors.Is(err, control.ErrUnknownRequest),
		errors.Is(err, session.ErrInvalidCommand):
		return http.StatusBadRequest
	case errors.Is(err, session.ErrCommandQueueFull):
		return http.StatusTooManyRequests
	case errors.Is(err, session.ErrClosed),
		errors.Is(err, instrument.ErrNotConnected):
		return http.StatusServiceUnavailable
	case errors.Is(err, errCommandTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, instrument.ErrProtocolRead),
		errors.Is(err, instrument.ErrProtocolWrite),
		errors.Is(err, instrument.ErrConnection),
		errors.Is(err, context.DeadlineExceeded):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// writeCommandError writes a structured error for a rejected command.
func writeCommandError(w http.ResponseWriter, err error) {
	status := commandStatus(err)
	code := ErrCodeInternal
	switch status {
	case http.StatusNotFound:
		code = ErrCodeNotFound
	case http.StatusBadRequest:
		code = ErrCodeValidation
	case http.StatusTooManyRequests:
		code = ErrCodeQueueFull
	case http.StatusServiceUnavailable:
		code = ErrCodeUnavailable
	case http.StatusGatewayTimeout, http.StatusBadGateway:
		code = ErrCodeCommandFailed
	}
	writeError(w, status, code, err.Error())
}
