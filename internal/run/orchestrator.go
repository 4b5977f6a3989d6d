package run

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hearthside/leadscore/internal/bucket"
	"github.com/hearthside/leadscore/internal/pkg/runlock"
	"github.com/hearthside/leadscore/internal/scoring"
)

// ==========================================
// ERRORS
// ==========================================

var (
	// ErrRunInProgress is returned when a run is triggered while another
	// one is still executing. Runs never overlap.
	ErrRunInProgress = errors.New("a scoring run is already in progress")

	// ErrNoContacts is returned when the CRM sync has not populated any
	// contacts yet.
	ErrNoContacts = errors.New("contact population is empty")
)

// ==========================================
// ORCHESTRATOR
// ==========================================

// ContactSource supplies the read-only CRM-synced inputs for a run.
type ContactSource interface {
	LoadContacts(ctx context.Context) ([]scoring.Contact, error)
	LoadEvents(ctx context.Context, asOf time.Time) (map[uuid.UUID][]scoring.ActivityEvent, error)
}

// Sink persists a completed run. The commit must be atomic: either the
// whole run becomes visible or none of it does.
type Sink interface {
	CommitRun(ctx context.Context, run *scoring.ScoringRun, snapshots []scoring.ScoreSnapshot) error
}

// Config tunes one orchestrator instance.
type Config struct {
	// Workers bounds the scoring pool. Defaults to GOMAXPROCS.
	Workers int
	// JitterDays spreads elapsed-day boundaries per contact so bulk
	// timestamp resets cannot pour a cohort across one boundary in a
	// single run. 0 disables jitter.
	JitterDays int
}

// Orchestrator drives batch scoring passes: Idle -> Running ->
// {Completed, Failed}. Per-contact computation is pure and independent, so
// contacts fan out over a bounded worker pool; the only shared resource is
// the destination store, written once at the end of the run.
type Orchestrator struct {
	source ContactSource
	sink   Sink
	lock   runlock.Lock
	cache  *Cache
	log    zerolog.Logger

	workers    int
	jitterDays int

	mu     sync.Mutex
	status scoring.RunStatus
}

// New creates an orchestrator. The cache may be nil when Redis is not
// configured.
func New(source ContactSource, sink Sink, lock runlock.Lock, cache *Cache, log zerolog.Logger, cfg Config) *Orchestrator {
	workers := cfg.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	return &Orchestrator{
		source:     source,
		sink:       sink,
		lock:       lock,
		cache:      cache,
		log:        log,
		workers:    workers,
		jitterDays: cfg.JitterDays,
		status:     scoring.RunIdle,
	}
}

// Status returns the orchestrator's current state.
func (o *Orchestrator) Status() scoring.RunStatus {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.status
}

// Execute performs one full scoring run and returns its audit record.
//
// Configuration errors (invalid weights, a definition set that fails the
// coverage invariant) abort before any contact is scored: partial,
// miscalibrated scores are worse than none. Per-contact anomalies are
// recorded on the run and never abort it. If the context is cancelled
// before the final commit, nothing is persisted.
func (o *Orchestrator) Execute(ctx context.Context, weights *scoring.ScoringWeights, defs []bucket.Definition) (*scoring.ScoringRun, error) {
	if err := weights.Validate(); err != nil {
		return nil, fmt.Errorf("weights validation: %w", err)
	}
	if err := bucket.ValidateDefinitions(defs, scoring.AllStages()); err != nil {
		return nil, fmt.Errorf("bucket validation: %w", err)
	}

	o.mu.Lock()
	if o.status == scoring.RunRunning {
		o.mu.Unlock()
		return nil, ErrRunInProgress
	}
	o.status = scoring.RunRunning
	o.mu.Unlock()

	finish := func(s scoring.RunStatus) {
		o.mu.Lock()
		o.status = s
		o.mu.Unlock()
	}

	if o.lock != nil {
		acquired, err := o.lock.Acquire(ctx)
		if err != nil {
			finish(scoring.RunFailed)
			return nil, fmt.Errorf("acquire run lock: %w", err)
		}
		if !acquired {
			finish(scoring.RunIdle)
			return nil, ErrRunInProgress
		}
		defer o.lock.Release(context.WithoutCancel(ctx))
	}

	asOf := time.Now().UTC()
	started := time.Now()

	contacts, err := o.source.LoadContacts(ctx)
	if err != nil {
		finish(scoring.RunFailed)
		return nil, fmt.Errorf("load contacts: %w", err)
	}
	if len(contacts) == 0 {
		finish(scoring.RunFailed)
		return nil, ErrNoContacts
	}
	events, err := o.source.LoadEvents(ctx, asOf)
	if err != nil {
		finish(scoring.RunFailed)
		return nil, fmt.Errorf("load events: %w", err)
	}

	runID := uuid.New()
	o.log.Info().
		Str("run_id", runID.String()).
		Str("weights_version", weights.Version).
		Int("contacts", len(contacts)).
		Int("workers", o.workers).
		Msg("scoring run started")

	snapshots := make([]scoring.ScoreSnapshot, len(contacts))
	failures := make([][]scoring.ContactFailure, len(contacts))

	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < o.workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				snapshots[i], failures[i] = o.scoreContact(contacts[i], events[contacts[i].ID], asOf, runID, weights, defs)
			}
		}()
	}
	for i := range contacts {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	if err := ctx.Err(); err != nil {
		finish(scoring.RunFailed)
		return nil, fmt.Errorf("run aborted before commit: %w", err)
	}

	completed := time.Now().UTC()
	runRecord := &scoring.ScoringRun{
		ID:             runID,
		Status:         scoring.RunCompleted,
		StartedAt:      asOf,
		CompletedAt:    &completed,
		WeightsVersion: weights.Version,
		ContactCount:   len(contacts),
		BucketCounts:   make(map[string]int),
	}
	for i := range snapshots {
		if snapshots[i].BucketID != "" {
			runRecord.BucketCounts[snapshots[i].BucketID]++
		}
		runRecord.Failures = append(runRecord.Failures, failures[i]...)
	}

	if err := o.sink.CommitRun(ctx, runRecord, snapshots); err != nil {
		finish(scoring.RunFailed)
		return nil, fmt.Errorf("commit run: %w", err)
	}

	if o.cache != nil {
		if err := o.cache.StoreLatest(ctx, snapshots); err != nil {
			// Cache is a read-side accelerator, not the source of truth.
			o.log.Warn().Err(err).Msg("latest-score cache update failed")
		}
	}

	observeRun(runRecord, time.Since(started))
	o.logCompletion(runRecord, time.Since(started))
	finish(scoring.RunCompleted)
	return runRecord, nil
}

// scoreContact runs the per-contact pipeline: aggregate, score, assign.
// Anomalies (missing timestamps, unknown stage, no matching bucket, or a
// panic out of the pipeline) are reported back, never thrown; the contact
// stays in the run.
func (o *Orchestrator) scoreContact(contact scoring.Contact, history []scoring.ActivityEvent, asOf time.Time, runID uuid.UUID, weights *scoring.ScoringWeights, defs []bucket.Definition) (snap scoring.ScoreSnapshot, fails []scoring.ContactFailure) {
	defer func() {
		if r := recover(); r != nil {
			snap = scoring.ScoreSnapshot{
				ContactID:      contact.ID,
				RunID:          runID,
				WeightsVersion: weights.Version,
				ComputedAt:     asOf,
			}
			fails = append(fails, scoring.ContactFailure{
				ContactID: contact.ID,
				Reason:    fmt.Sprintf("scoring panic: %v", r),
			})
		}
	}()

	if !scoring.KnownStage(contact.Stage) {
		fails = append(fails, scoring.ContactFailure{
			ContactID: contact.ID,
			Reason:    fmt.Sprintf("unknown stage %q", contact.Stage),
		})
	}

	snap = scoring.Snapshot(contact, history, asOf, weights)
	snap.RunID = runID

	daysSinceCreated := asOf.Sub(contact.CreatedAt).Hours() / 24
	var daysSinceContact float64
	switch {
	case contact.LastContactedAt != nil:
		daysSinceContact = asOf.Sub(*contact.LastContactedAt).Hours() / 24
	case !contact.CreatedAt.IsZero():
		// Never contacted: the clock runs from creation.
		daysSinceContact = daysSinceCreated
	default:
		daysSinceContact = 0
		fails = append(fails, scoring.ContactFailure{
			ContactID: contact.ID,
			Reason:    "missing last_contacted_at and created_at",
		})
	}
	if daysSinceContact < 0 {
		// CRM clock skew; defaulted rather than dropped.
		daysSinceContact = 0
	}
	if daysSinceCreated < 0 {
		daysSinceCreated = 0
	}
	daysSinceContact += bucket.JitterDays(contact.ID.String(), o.jitterDays)

	bucketID, err := bucket.Assign(bucket.Input{
		Stage:            contact.Stage,
		Snapshot:         snap,
		DaysSinceContact: daysSinceContact,
		DaysSinceCreated: daysSinceCreated,
	}, defs)
	if err != nil {
		// Left unbucketed and flagged; the snapshot is still persisted.
		fails = append(fails, scoring.ContactFailure{
			ContactID: contact.ID,
			Reason:    err.Error(),
		})
		return snap, fails
	}

	snap.BucketID = bucketID
	return snap, fails
}

// logCompletion emits the completion report, distinguishing a fully
// successful run from one completed with anomalies.
func (o *Orchestrator) logCompletion(run *scoring.ScoringRun, elapsed time.Duration) {
	buckets := make([]string, 0, len(run.BucketCounts))
	for id := range run.BucketCounts {
		buckets = append(buckets, id)
	}
	sort.Strings(buckets)

	evt := o.log.Info().
		Str("run_id", run.ID.String()).
		Int("contacts", run.ContactCount).
		Dur("elapsed", elapsed)
	for _, id := range buckets {
		evt = evt.Int("bucket_"+id, run.BucketCounts[id])
	}
	if run.FullySuccessful() {
		evt.Msg("scoring run fully successful")
		return
	}
	evt.Int("anomalies", len(run.Failures)).Msg("scoring run completed with anomalies")
}
