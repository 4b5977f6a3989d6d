package bucket

import (
	"errors"
	"fmt"

	"github.com/hearthside/leadscore/internal/scoring"
)

// ==========================================
// ASSIGNMENT
// ==========================================

// ErrNoBucketMatch is returned when no definition matches a contact. With a
// validated definition set this can only happen if the stage taxonomy
// drifted after load-time validation; the caller flags the contact rather
// than dropping it.
var ErrNoBucketMatch = errors.New("no bucket matches contact")

// Input is everything Assign needs for one contact. Elapsed values are in
// days; DaysSinceContact already includes any orchestration-layer jitter.
type Input struct {
	Stage            scoring.Stage
	Snapshot         scoring.ScoreSnapshot
	DaysSinceContact float64
	DaysSinceCreated float64
}

// Assign walks the definitions in priority order and returns the ID of the
// first one that matches. Stateless and pure: identical inputs always pick
// the same bucket. When a stage could match several score-filtered buckets
// over the same window, the earlier (more aggressive cadence) definition
// wins, favoring over-calling over under-calling.
func Assign(in Input, defs []Definition) (string, error) {
	for i := range defs {
		d := &defs[i]
		if !d.AppliesToStage(in.Stage) {
			continue
		}

		days := in.DaysSinceContact
		if d.basis() == BasisCreated {
			days = in.DaysSinceCreated
		}
		if !d.Elapsed.Contains(days) {
			continue
		}

		if d.Score != nil && scoreFor(in.Snapshot, d.Score.Score) < d.Score.Min {
			continue
		}
		return d.ID, nil
	}
	return "", fmt.Errorf("%w: stage %s, %.1f days since contact",
		ErrNoBucketMatch, in.Stage, in.DaysSinceContact)
}

// scoreFor picks the snapshot field a filter tests.
func scoreFor(s scoring.ScoreSnapshot, kind ScoreKind) float64 {
	switch kind {
	case ScoreHeat:
		return s.Heat
	case ScoreValue:
		return s.Value
	case ScoreRelationship:
		return s.Relationship
	case ScorePriority:
		return s.Priority
	default:
		return 0
	}
}
