package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hluisi/pausemon/model"
)

// Store persists events and forensic capture bundles in SQLite.
// Writes are best-effort from the daemon's point of view: the caller logs
// failures and keeps ticking.
type Store struct {
	db *sql.DB
}

// Open creates the database (and its directory) if needed and applies the
// schema. WAL mode keeps the daemon's writes from blocking CLI readers.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	dsn := "file:" + path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error { return s.db.Close() }

// InsertEvent persists one event. The rogue snapshot round-trips as JSON;
// the category summary is denormalized for cheap listing.
func (s *Store) InsertEvent(ctx context.Context, e model.Event) error {
	rogues, err := json.Marshal(e.Rogues)
	if err != nil {
		return fmt.Errorf("marshal rogues: %w", err)
	}
	created := e.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO events (id, kind, tier, start_ns, duration_ns, peak_score, categories, rogues, reviewed, created_ns)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, string(e.Kind), int(e.Tier), e.StartTime.UnixNano(), int64(e.Duration),
		e.PeakScore, e.CategorySummary(), string(rogues), boolToInt(e.Reviewed), created.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

// EventFilter narrows Events queries. Zero values mean "no constraint".
type EventFilter struct {
	Kind       model.EventKind
	Tier       model.Tier
	Since      time.Time
	Unreviewed bool
	Limit      int
}

// Events returns matching events, newest first.
func (s *Store) Events(ctx context.Context, f EventFilter) ([]model.Event, error) {
	query := `SELECT id, kind, tier, start_ns, duration_ns, peak_score, rogues, reviewed, created_ns FROM events`
	var conds []string
	var args []interface{}
	if f.Kind != "" {
		conds = append(conds, "kind = ?")
		args = append(args, string(f.Kind))
	}
	if f.Tier != 0 {
		conds = append(conds, "tier = ?")
		args = append(args, int(f.Tier))
	}
	if !f.Since.IsZero() {
		conds = append(conds, "start_ns >= ?")
		args = append(args, f.Since.UnixNano())
	}
	if f.Unreviewed {
		conds = append(conds, "reviewed = 0")
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY start_ns DESC"
	if f.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var out []model.Event
	for rows.Next() {
		var (
			e                              model.Event
			kind                           string
			tier, reviewed                 int
			startNS, durationNS, createdNS int64
			rogues                         string
		)
		if err := rows.Scan(&e.ID, &kind, &tier, &startNS, &durationNS, &e.PeakScore, &rogues, &reviewed, &createdNS); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		e.Kind = model.EventKind(kind)
		e.Tier = model.Tier(tier)
		e.StartTime = time.Unix(0, startNS)
		e.Duration = time.Duration(durationNS)
		e.Reviewed = reviewed != 0
		e.CreatedAt = time.Unix(0, createdNS)
		if err := json.Unmarshal([]byte(rogues), &e.Rogues); err != nil {
			return nil, fmt.Errorf("unmarshal rogues for %s: %w", e.ID, err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// ResolveEventID expands an id prefix, as printed by the CLI, to the full
// event id. Ambiguous prefixes are an error.
func (s *Store) ResolveEventID(ctx context.Context, prefix string) (string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id FROM events WHERE id LIKE ? || '%' LIMIT 2`, prefix)
	if err != nil {
		return "", fmt.Errorf("resolve event id: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return "", err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return "", err
	}
	switch len(ids) {
	case 0:
		return "", fmt.Errorf("no event with id %s", prefix)
	case 1:
		return ids[0], nil
	default:
		return "", fmt.Errorf("ambiguous event id %s", prefix)
	}
}

// MarkReviewed flags an event as reviewed.
func (s *Store) MarkReviewed(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE events SET reviewed = 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("mark reviewed: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("no event with id %s", id)
	}
	return nil
}

// PruneOlderThan deletes events that started more than age ago, along
// with their captures. Returns the number of events removed.
func (s *Store) PruneOlderThan(ctx context.Context, age time.Duration) (int64, error) {
	cutoff := time.Now().Add(-age).UnixNano()
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM captures WHERE event_id IN (SELECT id FROM events WHERE start_ns < ?)`, cutoff); err != nil {
		return 0, fmt.Errorf("prune captures: %w", err)
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM events WHERE start_ns < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune events: %w", err)
	}
	return res.RowsAffected()
}

// SaveCapture stores a forensic bundle for an event.
func (s *Store) SaveCapture(ctx context.Context, eventID string, blob []byte) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO captures (event_id, captured_ns, blob) VALUES (?, ?, ?)`,
		eventID, time.Now().UnixNano(), blob)
	if err != nil {
		return fmt.Errorf("save capture: %w", err)
	}
	return nil
}

// Capture returns the most recent forensic bundle for an event.
func (s *Store) Capture(ctx context.Context, eventID string) ([]byte, error) {
	var blob []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT blob FROM captures WHERE event_id = ? ORDER BY captured_ns DESC LIMIT 1`,
		eventID).Scan(&blob)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("no capture for event %s", eventID)
	}
	if err != nil {
		return nil, fmt.Errorf("query capture: %w", err)
	}
	return blob, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
