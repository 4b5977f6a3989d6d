package bucket

import (
	"errors"
	"fmt"
	"hash/fnv"
	"math"
	"sort"
	"time"

	"github.com/hearthside/leadscore/internal/scoring"
)

// ==========================================
// ERRORS
// ==========================================

var (
	// ErrDeadBucket is returned for a definition whose stage filter can
	// never match a reachable stage.
	ErrDeadBucket = errors.New("bucket can never be populated")

	// ErrCoverageCliff is returned when a stage's elapsed-day chain has a
	// gap, overlap, or does not span [0, inf).
	ErrCoverageCliff = errors.New("elapsed coverage has a cliff")

	// ErrBadDefinition is returned for a structurally invalid definition.
	ErrBadDefinition = errors.New("invalid bucket definition")

	// ErrSurgeProne is returned when a synchronized timestamp reset would
	// swell a bucket past the configured bound.
	ErrSurgeProne = errors.New("bucket boundary is surge-prone")
)

// ==========================================
// STRUCTURAL + COVERAGE VALIDATION
// ==========================================

// ValidateDefinitions checks an ordered definition set against the stages
// the contact population can actually take. It enforces, at load time, the
// three properties the definition redesign exists for:
//
//  1. no dead buckets - every stage filter intersects reachableStages;
//  2. no cliffs - for each reachable stage, the unfiltered last-contact
//     definitions that apply to it form a contiguous, non-overlapping chain
//     covering [0, inf). Overlay definitions (score-filtered or
//     created-basis) sit on top and may fail to match;
//  3. structural sanity - unique IDs, non-empty stage filters, ordered
//     ranges, known score kinds.
//
// Surge-proneness depends on the live timestamp distribution and is checked
// separately by SurgeCheck before a definition set is activated.
func ValidateDefinitions(defs []Definition, reachableStages []scoring.Stage) error {
	if len(defs) == 0 {
		return fmt.Errorf("%w: empty definition set", ErrBadDefinition)
	}

	reachable := make(map[scoring.Stage]bool, len(reachableStages))
	for _, s := range reachableStages {
		reachable[s] = true
	}

	seen := make(map[string]bool, len(defs))
	for i := range defs {
		d := &defs[i]
		if d.ID == "" {
			return fmt.Errorf("%w: definition %d has no id", ErrBadDefinition, i)
		}
		if seen[d.ID] {
			return fmt.Errorf("%w: duplicate id %q", ErrBadDefinition, d.ID)
		}
		seen[d.ID] = true

		if len(d.Stages) == 0 {
			return fmt.Errorf("%w: %q has an empty stage filter", ErrBadDefinition, d.ID)
		}
		if d.Elapsed.MinDays < 0 {
			return fmt.Errorf("%w: %q starts at negative days", ErrBadDefinition, d.ID)
		}
		if !d.Elapsed.Unbounded() && d.Elapsed.MaxDays <= d.Elapsed.MinDays {
			return fmt.Errorf("%w: %q has an empty elapsed range", ErrBadDefinition, d.ID)
		}
		switch d.basis() {
		case BasisLastContact, BasisCreated:
		default:
			return fmt.Errorf("%w: %q has unknown basis %q", ErrBadDefinition, d.ID, d.Basis)
		}
		if d.Score != nil {
			switch d.Score.Score {
			case ScoreHeat, ScoreValue, ScoreRelationship, ScorePriority:
			default:
				return fmt.Errorf("%w: %q filters on unknown score %q", ErrBadDefinition, d.ID, d.Score.Score)
			}
			if math.IsNaN(d.Score.Min) || math.IsInf(d.Score.Min, 0) {
				return fmt.Errorf("%w: %q has a non-finite score threshold", ErrBadDefinition, d.ID)
			}
		}

		matchesAny := false
		for _, s := range d.Stages {
			if reachable[s] {
				matchesAny = true
				break
			}
		}
		if !matchesAny {
			return fmt.Errorf("%w: %q (stages %v)", ErrDeadBucket, d.ID, d.Stages)
		}
	}

	for _, stage := range reachableStages {
		if err := validateStageChain(defs, stage); err != nil {
			return err
		}
	}
	return nil
}

// validateStageChain checks the unfiltered last-contact chain for one stage:
// sorted ranges must start at day 0, touch exactly (rangeN.max ==
// rangeN+1.min), and end unbounded. A broad "bridge" window between a tight
// early window and a long-delay window is how a set satisfies this without
// an invisible middle region.
func validateStageChain(defs []Definition, stage scoring.Stage) error {
	var chain []ElapsedRange
	for i := range defs {
		d := &defs[i]
		if d.isOverlay() || !d.AppliesToStage(stage) {
			continue
		}
		chain = append(chain, d.Elapsed)
	}
	if len(chain) == 0 {
		return fmt.Errorf("%w: stage %s has no unfiltered buckets", ErrCoverageCliff, stage)
	}

	sort.Slice(chain, func(i, j int) bool { return chain[i].MinDays < chain[j].MinDays })

	if chain[0].MinDays != 0 {
		return fmt.Errorf("%w: stage %s uncovered on [0, %.1f)", ErrCoverageCliff, stage, chain[0].MinDays)
	}
	for i := 0; i < len(chain)-1; i++ {
		cur, next := chain[i], chain[i+1]
		if cur.Unbounded() {
			return fmt.Errorf("%w: stage %s has overlapping ranges past %.1f days", ErrCoverageCliff, stage, next.MinDays)
		}
		if cur.MaxDays < next.MinDays {
			return fmt.Errorf("%w: stage %s uncovered on [%.1f, %.1f)", ErrCoverageCliff, stage, cur.MaxDays, next.MinDays)
		}
		if cur.MaxDays > next.MinDays {
			return fmt.Errorf("%w: stage %s ranges overlap at %.1f days", ErrCoverageCliff, stage, next.MinDays)
		}
	}
	if !chain[len(chain)-1].Unbounded() {
		return fmt.Errorf("%w: stage %s uncovered past %.1f days", ErrCoverageCliff, stage, chain[len(chain)-1].MaxDays)
	}
	return nil
}

// ==========================================
// SURGE ANALYSIS
// ==========================================

// HistoricalContact is one row of the last-contacted distribution exported
// from the CRM for surge analysis.
type HistoricalContact struct {
	ID              string
	Stage           scoring.Stage
	CreatedAt       time.Time
	LastContactedAt time.Time
}

// SurgeReport summarizes one bucket's sensitivity to a synchronized
// timestamp reset.
type SurgeReport struct {
	BucketID      string  `json:"bucket_id"`
	ActualCount   int     `json:"actual_count"`
	JitteredCount int     `json:"jittered_count"`
	Increase      float64 `json:"increase"`
	SurgeProne    bool    `json:"surge_prone"`
}

// surgeAbsoluteFloor ignores buckets too small for a fraction bound to be
// meaningful.
const surgeAbsoluteFloor = 25

// SurgeCheck validates a definition set against a historical population
// before it is activated. It assigns every contact twice, once with the
// real last-contacted timestamps and once with each timestamp jittered by a
// deterministic per-contact offset inside jitterDays, then compares bucket
// populations. A bucket whose real population exceeds its jittered
// population by more than maxIncrease (for example 0.25 for 25%) is
// surge-prone: a bulk upstream action resetting many timestamps at once
// would dump contacts across that boundary in a single run.
//
// Score filters are ignored here; surge analysis is about elapsed-time
// boundaries, and historical score data is not part of the export.
func SurgeCheck(defs []Definition, population []HistoricalContact, asOf time.Time, jitterDays int, maxIncrease float64) ([]SurgeReport, error) {
	if jitterDays <= 0 {
		jitterDays = 7
	}

	actual := make(map[string]int)
	jittered := make(map[string]int)

	for _, hc := range population {
		in := Input{
			Stage:            hc.Stage,
			DaysSinceContact: asOf.Sub(hc.LastContactedAt).Hours() / 24,
			DaysSinceCreated: asOf.Sub(hc.CreatedAt).Hours() / 24,
		}
		if id, err := assignElapsedOnly(in, defs); err == nil {
			actual[id]++
		}

		in.DaysSinceContact += JitterDays(hc.ID, jitterDays)
		if id, err := assignElapsedOnly(in, defs); err == nil {
			jittered[id]++
		}
	}

	ids := make([]string, 0, len(defs))
	for i := range defs {
		ids = append(ids, defs[i].ID)
	}

	var reports []SurgeReport
	var surging []string
	for _, id := range ids {
		rep := SurgeReport{
			BucketID:      id,
			ActualCount:   actual[id],
			JitteredCount: jittered[id],
		}
		base := rep.JitteredCount
		if base == 0 {
			base = 1
		}
		rep.Increase = float64(rep.ActualCount-rep.JitteredCount) / float64(base)
		rep.SurgeProne = rep.ActualCount >= surgeAbsoluteFloor && rep.Increase > maxIncrease
		if rep.SurgeProne {
			surging = append(surging, id)
		}
		reports = append(reports, rep)
	}

	if len(surging) > 0 {
		return reports, fmt.Errorf("%w: %v exceed +%.0f%% under a synchronized reset",
			ErrSurgeProne, surging, maxIncrease*100)
	}
	return reports, nil
}

// assignElapsedOnly is Assign with score filters treated as never passing,
// which makes surge analysis independent of score history.
func assignElapsedOnly(in Input, defs []Definition) (string, error) {
	for i := range defs {
		d := &defs[i]
		if d.Score != nil || !d.AppliesToStage(in.Stage) {
			continue
		}
		days := in.DaysSinceContact
		if d.basis() == BasisCreated {
			days = in.DaysSinceCreated
		}
		if d.Elapsed.Contains(days) {
			return d.ID, nil
		}
	}
	return "", ErrNoBucketMatch
}

// ==========================================
// JITTER
// ==========================================

// JitterDays returns a deterministic offset in [0, spreadDays) derived from
// the contact identifier. The same contact always gets the same offset, so
// a rerun with unchanged inputs stays idempotent while a synchronized
// timestamp reset still fans out across bucket boundaries.
func JitterDays(contactID string, spreadDays int) float64 {
	if spreadDays <= 0 {
		return 0
	}
	h := fnv.New64a()
	h.Write([]byte(contactID))
	return float64(h.Sum64() % uint64(spreadDays))
}
