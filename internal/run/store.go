// Package run drives batch scoring passes over the contact population and
// persists their results: one immutable snapshot per contact per run, a
// materialized latest pointer, and an append-only audit row per run.
package run

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hearthside/leadscore/internal/scoring"
)

// Store provides database operations for scoring runs. Contacts and events
// are owned by the external CRM sync and read-only here; snapshots, latest
// pointers, and run audit rows are owned by this subsystem.
type Store struct {
	db *sql.DB
}

// NewStore creates a new run store.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// DB exposes the underlying handle for advisory locking.
func (s *Store) DB() *sql.DB { return s.db }

// ==========================================
// READ SIDE (CRM-owned tables)
// ==========================================

// LoadContacts returns the full contact population.
func (s *Store) LoadContacts(ctx context.Context) ([]scoring.Contact, error) {
	query := `SELECT id, stage, created_at, last_contacted_at, COALESCE(buying_timeframe, '')
		FROM contacts ORDER BY id`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("load contacts: %w", err)
	}
	defer rows.Close()

	var contacts []scoring.Contact
	for rows.Next() {
		var c scoring.Contact
		var lastContacted sql.NullTime
		if err := rows.Scan(&c.ID, &c.Stage, &c.CreatedAt, &lastContacted, &c.BuyingTimeframe); err != nil {
			return nil, fmt.Errorf("scan contact: %w", err)
		}
		if lastContacted.Valid {
			t := lastContacted.Time
			c.LastContactedAt = &t
		}
		contacts = append(contacts, c)
	}
	return contacts, rows.Err()
}

// LoadEvents returns every activity event at or before asOf, grouped by
// contact. One pass over the events table beats a query per contact at
// population scale.
func (s *Store) LoadEvents(ctx context.Context, asOf time.Time) (map[uuid.UUID][]scoring.ActivityEvent, error) {
	query := `SELECT id, contact_id, event_type, occurred_at,
		COALESCE(duration_seconds, 0), COALESCE(price, 0)
		FROM contact_events WHERE occurred_at <= $1
		ORDER BY contact_id, occurred_at`

	rows, err := s.db.QueryContext(ctx, query, asOf)
	if err != nil {
		return nil, fmt.Errorf("load events: %w", err)
	}
	defer rows.Close()

	events := make(map[uuid.UUID][]scoring.ActivityEvent)
	for rows.Next() {
		var ev scoring.ActivityEvent
		if err := rows.Scan(&ev.ID, &ev.ContactID, &ev.Type, &ev.OccurredAt,
			&ev.DurationSeconds, &ev.Price); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		events[ev.ContactID] = append(events[ev.ContactID], ev)
	}
	return events, rows.Err()
}

// LoadHistoricalContacts exports the (stage, created, last-contacted)
// distribution used for surge analysis of a candidate bucket set.
func (s *Store) LoadHistoricalContacts(ctx context.Context) ([]HistoricalRow, error) {
	query := `SELECT id, stage, created_at, COALESCE(last_contacted_at, created_at)
		FROM contacts`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("load historical contacts: %w", err)
	}
	defer rows.Close()

	var out []HistoricalRow
	for rows.Next() {
		var r HistoricalRow
		if err := rows.Scan(&r.ID, &r.Stage, &r.CreatedAt, &r.LastContactedAt); err != nil {
			return nil, fmt.Errorf("scan historical contact: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// HistoricalRow is one contact's timestamps for surge analysis.
type HistoricalRow struct {
	ID              uuid.UUID
	Stage           scoring.Stage
	CreatedAt       time.Time
	LastContactedAt time.Time
}

// ==========================================
// WRITE SIDE (one transaction per run)
// ==========================================

// CommitRun persists a completed run atomically: the audit row, every
// snapshot, and the latest-pointer upserts all land in one transaction, so
// a dashboard reader never observes a half-updated population. An aborted
// run leaves nothing behind.
func (s *Store) CommitRun(ctx context.Context, run *scoring.ScoringRun, snapshots []scoring.ScoreSnapshot) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin run commit: %w", err)
	}
	defer tx.Rollback()

	bucketCounts, err := json.Marshal(run.BucketCounts)
	if err != nil {
		return fmt.Errorf("marshal bucket counts: %w", err)
	}
	failures, err := json.Marshal(run.Failures)
	if err != nil {
		return fmt.Errorf("marshal failures: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO scoring_runs (id, status, started_at, completed_at, weights_version,
			contact_count, bucket_counts, failures)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		run.ID, run.Status, run.StartedAt, run.CompletedAt, run.WeightsVersion,
		run.ContactCount, bucketCounts, failures)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	snapStmt, err := tx.PrepareContext(ctx,
		`INSERT INTO score_snapshots (contact_id, run_id, heat, value, relationship,
			priority, components, bucket_id, weights_version, computed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`)
	if err != nil {
		return fmt.Errorf("prepare snapshot insert: %w", err)
	}
	defer snapStmt.Close()

	latestStmt, err := tx.PrepareContext(ctx,
		`INSERT INTO contact_scores_latest (contact_id, run_id, heat, value, relationship,
			priority, bucket_id, weights_version, computed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (contact_id) DO UPDATE SET
			run_id = EXCLUDED.run_id,
			heat = EXCLUDED.heat,
			value = EXCLUDED.value,
			relationship = EXCLUDED.relationship,
			priority = EXCLUDED.priority,
			bucket_id = EXCLUDED.bucket_id,
			weights_version = EXCLUDED.weights_version,
			computed_at = EXCLUDED.computed_at`)
	if err != nil {
		return fmt.Errorf("prepare latest upsert: %w", err)
	}
	defer latestStmt.Close()

	for i := range snapshots {
		snap := &snapshots[i]
		components, err := json.Marshal(snap.Components)
		if err != nil {
			return fmt.Errorf("marshal components for %s: %w", snap.ContactID, err)
		}
		if _, err := snapStmt.ExecContext(ctx, snap.ContactID, snap.RunID, snap.Heat,
			snap.Value, snap.Relationship, snap.Priority, components, snap.BucketID,
			snap.WeightsVersion, snap.ComputedAt); err != nil {
			return fmt.Errorf("insert snapshot for %s: %w", snap.ContactID, err)
		}
		if _, err := latestStmt.ExecContext(ctx, snap.ContactID, snap.RunID, snap.Heat,
			snap.Value, snap.Relationship, snap.Priority, snap.BucketID,
			snap.WeightsVersion, snap.ComputedAt); err != nil {
			return fmt.Errorf("upsert latest for %s: %w", snap.ContactID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit run: %w", err)
	}
	return nil
}

// ==========================================
// AUDIT READS
// ==========================================

// GetRun retrieves one run's audit row, or nil when it does not exist.
func (s *Store) GetRun(ctx context.Context, runID uuid.UUID) (*scoring.ScoringRun, error) {
	query := `SELECT id, status, started_at, completed_at, weights_version,
		contact_count, bucket_counts, failures
		FROM scoring_runs WHERE id = $1`

	run, err := scanRun(s.db.QueryRowContext(ctx, query, runID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return run, err
}

// ListRuns returns the most recent runs, newest first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]*scoring.ScoringRun, error) {
	if limit <= 0 {
		limit = 20
	}
	query := `SELECT id, status, started_at, completed_at, weights_version,
		contact_count, bucket_counts, failures
		FROM scoring_runs ORDER BY started_at DESC LIMIT $1`

	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []*scoring.ScoringRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(row rowScanner) (*scoring.ScoringRun, error) {
	run := &scoring.ScoringRun{}
	var completedAt sql.NullTime
	var bucketCounts, failures []byte
	if err := row.Scan(&run.ID, &run.Status, &run.StartedAt, &completedAt,
		&run.WeightsVersion, &run.ContactCount, &bucketCounts, &failures); err != nil {
		return nil, err
	}
	if completedAt.Valid {
		t := completedAt.Time
		run.CompletedAt = &t
	}
	if len(bucketCounts) > 0 {
		if err := json.Unmarshal(bucketCounts, &run.BucketCounts); err != nil {
			return nil, fmt.Errorf("unmarshal bucket counts: %w", err)
		}
	}
	if len(failures) > 0 {
		if err := json.Unmarshal(failures, &run.Failures); err != nil {
			return nil, fmt.Errorf("unmarshal failures: %w", err)
		}
	}
	return run, nil
}

// ==========================================
// SCORE READS
// ==========================================

// GetLatestScores returns a contact's current scores, or nil when the
// contact has never been scored.
func (s *Store) GetLatestScores(ctx context.Context, contactID uuid.UUID) (*scoring.ScoreSnapshot, error) {
	query := `SELECT contact_id, run_id, heat, value, relationship, priority,
		bucket_id, weights_version, computed_at
		FROM contact_scores_latest WHERE contact_id = $1`

	snap := &scoring.ScoreSnapshot{}
	err := s.db.QueryRowContext(ctx, query, contactID).Scan(
		&snap.ContactID, &snap.RunID, &snap.Heat, &snap.Value, &snap.Relationship,
		&snap.Priority, &snap.BucketID, &snap.WeightsVersion, &snap.ComputedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get latest scores: %w", err)
	}
	return snap, nil
}

// GetSnapshotHistory returns a contact's snapshots, newest first.
func (s *Store) GetSnapshotHistory(ctx context.Context, contactID uuid.UUID, limit int) ([]scoring.ScoreSnapshot, error) {
	if limit <= 0 {
		limit = 20
	}
	query := `SELECT contact_id, run_id, heat, value, relationship, priority,
		components, bucket_id, weights_version, computed_at
		FROM score_snapshots WHERE contact_id = $1
		ORDER BY computed_at DESC LIMIT $2`

	rows, err := s.db.QueryContext(ctx, query, contactID, limit)
	if err != nil {
		return nil, fmt.Errorf("get snapshot history: %w", err)
	}
	defer rows.Close()

	var snaps []scoring.ScoreSnapshot
	for rows.Next() {
		var snap scoring.ScoreSnapshot
		var components []byte
		if err := rows.Scan(&snap.ContactID, &snap.RunID, &snap.Heat, &snap.Value,
			&snap.Relationship, &snap.Priority, &components, &snap.BucketID,
			&snap.WeightsVersion, &snap.ComputedAt); err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		if len(components) > 0 {
			if err := json.Unmarshal(components, &snap.Components); err != nil {
				return nil, fmt.Errorf("unmarshal components: %w", err)
			}
		}
		snaps = append(snaps, snap)
	}
	return snaps, rows.Err()
}
