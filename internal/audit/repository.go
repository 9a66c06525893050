// Package audit keeps the session journal: link state changes and
// operator commands, persisted to SQLite so they survive restarts.
package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Event kinds.
const (
	KindStateChange = "state_change"
	KindCommand     = "command"
)

// Command statuses. State change events carry the target state instead.
const (
	StatusOK     = "ok"
	StatusFailed = "failed"
)

// Page size bounds for List.
const (
	defaultLimit = 50
	maxLimit     = 500
)

// timeLayout is fixed-width so created_at sorts as text.
const timeLayout = "2006-01-02T15:04:05.000000Z"

// Event is one journal entry.
type Event struct {
	ID       string         `json:"id"`
	Kind     string         `json:"kind"`
	Subject  string         `json:"subject"`
	Status   string         `json:"status"`
	Source   string         `json:"source"`
	Message  string         `json:"message,omitempty"`
	Details  map[string]any `json:"details,omitempty"`
	Duration time.Duration  `json:"duration_ns,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// Filter selects journal events. Zero fields match everything.
type Filter struct {
	Kind    string
	Subject string
	Since   time.Time
	Limit   int // default 50, max 500
	Offset  int
}

// ListResult is one page of events, newest first.
type ListResult struct {
	Events []Event `json:"events"`
	Total  int     `json:"total"`
	Limit  int     `json:"limit"`
	Offset int     `json:"offset"`
}

// Repository stores journal events.
type Repository interface {
	Create(ctx context.Context, event *Event) error
	List(ctx context.Context, filter Filter) (*ListResult, error)
	Prune(ctx context.Context, before time.Time) (int64, error)
}

// SQLiteRepository stores events in the journal_events table.
type SQLiteRepository struct {
	db *sql.DB
}

var _ Repository = (*SQLiteRepository)(nil)

// NewSQLiteRepository creates a repository on a migrated database.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Create inserts an event. ID and CreatedAt are filled in when empty.
func (r *SQLiteRepository) Create(ctx context.Context, event *Event) error {
	if event.ID == "" {
		event.ID = "evt-" + uuid.NewString()[:8]
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}
	event.CreatedAt = event.CreatedAt.UTC()
	if event.Source == "" {
		event.Source = "system"
	}

	var details *string
	if len(event.Details) > 0 {
		b, err := json.Marshal(event.Details)
		if err != nil {
			return fmt.Errorf("marshalling journal details: %w", err)
		}
		s := string(b)
		details = &s
	}

	var duration *int64
	if event.Duration > 0 {
		ms := event.Duration.Milliseconds()
		duration = &ms
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO journal_events (id, kind, subject, status, source, message, details, duration_ms, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		event.ID, event.Kind, event.Subject, event.Status, event.Source,
		nullableString(event.Message), details, duration,
		event.CreatedAt.Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("inserting journal event: %w", err)
	}
	return nil
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// List returns events matching the filter, newest first.
func (r *SQLiteRepository) List(ctx context.Context, filter Filter) (*ListResult, error) {
	if filter.Limit <= 0 {
		filter.Limit = defaultLimit
	}
	if filter.Limit > maxLimit {
		filter.Limit = maxLimit
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	var conditions []string
	var args []any
	if filter.Kind != "" {
		conditions = append(conditions, "kind = ?")
		args = append(args, filter.Kind)
	}
	if filter.Subject != "" {
		conditions = append(conditions, "subject = ?")
		args = append(args, filter.Subject)
	}
	if !filter.Since.IsZero() {
		conditions = append(conditions, "created_at >= ?")
		args = append(args, filter.Since.UTC().Format(timeLayout))
	}

	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	countQuery := "SELECT COUNT(*) FROM journal_events " + where //nolint:gosec // WHERE built from parameterised conditions
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("counting journal events: %w", err)
	}

	query := "SELECT id, kind, subject, status, source, message, details, duration_ms, created_at FROM journal_events " + //nolint:gosec // WHERE built from parameterised conditions
		where + " ORDER BY created_at DESC, rowid DESC LIMIT ? OFFSET ?"
	rows, err := r.db.QueryContext(ctx, query, append(args, filter.Limit, filter.Offset)...)
	if err != nil {
		return nil, fmt.Errorf("querying journal events: %w", err)
	}
	defer rows.Close()

	events := []Event{}
	for rows.Next() {
		var (
			e         Event
			message   sql.NullString
			details   sql.NullString
			duration  sql.NullInt64
			createdAt string
		)
		if err := rows.Scan(&e.ID, &e.Kind, &e.Subject, &e.Status, &e.Source,
			&message, &details, &duration, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning journal event: %w", err)
		}
		e.Message = message.String
		if details.Valid && details.String != "" {
			if err := json.Unmarshal([]byte(details.String), &e.Details); err != nil {
				return nil, fmt.Errorf("decoding details of %s: %w", e.ID, err)
			}
		}
		if duration.Valid {
			e.Duration = time.Duration(duration.Int64) * time.Millisecond
		}
		if e.CreatedAt, err = time.Parse(timeLayout, createdAt); err != nil {
			return nil, fmt.Errorf("parsing journal timestamp %q: %w", createdAt, err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating journal events: %w", err)
	}

	return &ListResult{
		Events: events,
		Total:  total,
		Limit:  filter.Limit,
		Offset: filter.Offset,
	}, nil
}

// Prune deletes events older than before and returns how many went.
func (r *SQLiteRepository) Prune(ctx context.Context, before time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		"DELETE FROM journal_events WHERE created_at < ?", before.UTC().Format(timeLayout))
	if err != nil {
		return 0, fmt.Errorf("pruning journal events: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("pruning journal events: %w", err)
	}
	return n, nil
}
