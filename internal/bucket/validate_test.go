package bucket

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/hearthside/leadscore/internal/scoring"
)

func TestDefaultDefinitionsValidate(t *testing.T) {
	if err := ValidateDefinitions(DefaultDefinitions(), scoring.AllStages()); err != nil {
		t.Fatalf("default definition set rejected: %v", err)
	}
}

func twoStageSet() []Definition {
	return []Definition{
		{
			ID:      "fresh",
			Stages:  []scoring.Stage{scoring.StageLead},
			Elapsed: ElapsedRange{MinDays: 0, MaxDays: 7},
		},
		{
			ID:      "stale",
			Stages:  []scoring.Stage{scoring.StageLead},
			Elapsed: ElapsedRange{MinDays: 7},
		},
	}
}

func TestValidateStructuralErrors(t *testing.T) {
	lead := []scoring.Stage{scoring.StageLead}

	tests := []struct {
		name    string
		defs    []Definition
		wantErr error
	}{
		{
			name:    "empty set",
			defs:    nil,
			wantErr: ErrBadDefinition,
		},
		{
			name: "duplicate id",
			defs: append(twoStageSet(), Definition{
				ID: "fresh", Stages: lead, Elapsed: ElapsedRange{MinDays: 0},
			}),
			wantErr: ErrBadDefinition,
		},
		{
			name: "empty stage filter",
			defs: append(twoStageSet(), Definition{
				ID: "nobody", Elapsed: ElapsedRange{MinDays: 0},
			}),
			wantErr: ErrBadDefinition,
		},
		{
			name: "negative min days",
			defs: append(twoStageSet(), Definition{
				ID: "negative", Stages: lead, Elapsed: ElapsedRange{MinDays: -1, MaxDays: 5},
				Score: &ScoreFilter{Score: ScoreHeat, Min: 50},
			}),
			wantErr: ErrBadDefinition,
		},
		{
			name: "empty elapsed range",
			defs: append(twoStageSet(), Definition{
				ID: "inverted", Stages: lead, Elapsed: ElapsedRange{MinDays: 10, MaxDays: 5},
				Score: &ScoreFilter{Score: ScoreHeat, Min: 50},
			}),
			wantErr: ErrBadDefinition,
		},
		{
			name: "unknown basis",
			defs: append(twoStageSet(), Definition{
				ID: "basis", Stages: lead, Basis: "updated_at", Elapsed: ElapsedRange{MinDays: 0},
			}),
			wantErr: ErrBadDefinition,
		},
		{
			name: "unknown score kind",
			defs: append(twoStageSet(), Definition{
				ID: "kind", Stages: lead, Elapsed: ElapsedRange{MinDays: 0},
				Score: &ScoreFilter{Score: "charisma", Min: 10},
			}),
			wantErr: ErrBadDefinition,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateDefinitions(tt.defs, []scoring.Stage{scoring.StageLead})
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("ValidateDefinitions = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateDeadBucket(t *testing.T) {
	defs := append(twoStageSet(), Definition{
		ID:      "ghosts",
		Stages:  []scoring.Stage{scoring.StageVendor},
		Elapsed: ElapsedRange{MinDays: 0},
	})

	err := ValidateDefinitions(defs, []scoring.Stage{scoring.StageLead})
	if !errors.Is(err, ErrDeadBucket) {
		t.Errorf("ValidateDefinitions = %v, want ErrDeadBucket", err)
	}
}

func TestValidateCoverageCliffs(t *testing.T) {
	lead := []scoring.Stage{scoring.StageLead}

	tests := []struct {
		name string
		defs []Definition
	}{
		{
			name: "gap in the middle",
			defs: []Definition{
				{ID: "a", Stages: lead, Elapsed: ElapsedRange{MinDays: 0, MaxDays: 5}},
				{ID: "b", Stages: lead, Elapsed: ElapsedRange{MinDays: 30}},
			},
		},
		{
			name: "does not start at zero",
			defs: []Definition{
				{ID: "a", Stages: lead, Elapsed: ElapsedRange{MinDays: 1, MaxDays: 10}},
				{ID: "b", Stages: lead, Elapsed: ElapsedRange{MinDays: 10}},
			},
		},
		{
			name: "bounded tail",
			defs: []Definition{
				{ID: "a", Stages: lead, Elapsed: ElapsedRange{MinDays: 0, MaxDays: 90}},
			},
		},
		{
			name: "overlapping ranges",
			defs: []Definition{
				{ID: "a", Stages: lead, Elapsed: ElapsedRange{MinDays: 0, MaxDays: 10}},
				{ID: "b", Stages: lead, Elapsed: ElapsedRange{MinDays: 5}},
			},
		},
		{
			name: "only an overlay covers the stage",
			defs: []Definition{
				{ID: "a", Stages: lead, Elapsed: ElapsedRange{MinDays: 0},
					Score: &ScoreFilter{Score: ScoreHeat, Min: 50}},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateDefinitions(tt.defs, lead)
			if !errors.Is(err, ErrCoverageCliff) {
				t.Errorf("ValidateDefinitions = %v, want ErrCoverageCliff", err)
			}
		})
	}
}

func TestValidateOverlaysExemptFromCoverage(t *testing.T) {
	lead := []scoring.Stage{scoring.StageLead}
	defs := []Definition{
		{ID: "hot", Stages: lead, Elapsed: ElapsedRange{MinDays: 0},
			Score: &ScoreFilter{Score: ScoreHeat, Min: 70}},
		{ID: "new", Stages: lead, Basis: BasisCreated,
			Elapsed: ElapsedRange{MinDays: 0, MaxDays: 10}},
		{ID: "everyone", Stages: lead, Elapsed: ElapsedRange{MinDays: 0}},
	}

	if err := ValidateDefinitions(defs, lead); err != nil {
		t.Errorf("overlays should not break coverage: %v", err)
	}
}

// ==========================================
// SURGE ANALYSIS
// ==========================================

var surgeAsOf = time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

func synchronizedCohort(n int, lastContacted time.Time) []HistoricalContact {
	out := make([]HistoricalContact, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, HistoricalContact{
			ID:              fmt.Sprintf("contact-%04d", i),
			Stage:           scoring.StageNurture,
			CreatedAt:       surgeAsOf.AddDate(-1, 0, 0),
			LastContactedAt: lastContacted,
		})
	}
	return out
}

func TestSurgeCheckMidWindowCohortPasses(t *testing.T) {
	// 150 contacts share one timestamp in the middle of the bridge window.
	// Jitter cannot push them across a boundary, so populations match.
	population := synchronizedCohort(150, surgeAsOf.AddDate(0, 0, -20))

	reports, err := SurgeCheck(DefaultDefinitions(), population, surgeAsOf, 3, 0.25)
	if err != nil {
		t.Fatalf("SurgeCheck: %v", err)
	}
	for _, rep := range reports {
		if rep.SurgeProne {
			t.Errorf("bucket %s flagged surge-prone: %+v", rep.BucketID, rep)
		}
		if rep.BucketID == "attempted" && rep.ActualCount != 150 {
			t.Errorf("attempted actual = %d, want 150", rep.ActualCount)
		}
	}
}

func TestSurgeCheckBoundaryHuggingCohortFlagged(t *testing.T) {
	// The whole cohort sits just inside the active-followup boundary; the
	// jittered pass fans most of it across into the bridge window, so the
	// real population surges the first bucket.
	population := synchronizedCohort(150, surgeAsOf.Add(-4*24*time.Hour-12*time.Hour))

	reports, err := SurgeCheck(DefaultDefinitions(), population, surgeAsOf, 3, 0.25)
	if !errors.Is(err, ErrSurgeProne) {
		t.Fatalf("SurgeCheck = %v, want ErrSurgeProne", err)
	}

	flagged := false
	for _, rep := range reports {
		if rep.BucketID == "active-followup" && rep.SurgeProne {
			flagged = true
		}
	}
	if !flagged {
		t.Error("active-followup not flagged in reports")
	}
}

func TestSurgeCheckSmallBucketsIgnored(t *testing.T) {
	// Under the absolute floor, a large relative swing is noise.
	population := synchronizedCohort(10, surgeAsOf.Add(-4*24*time.Hour-12*time.Hour))

	if _, err := SurgeCheck(DefaultDefinitions(), population, surgeAsOf, 3, 0.25); err != nil {
		t.Errorf("SurgeCheck flagged a %d-contact bucket: %v", 10, err)
	}
}

func TestJitterDaysDeterministicAndBounded(t *testing.T) {
	for i := 0; i < 200; i++ {
		id := fmt.Sprintf("contact-%d", i)
		a := JitterDays(id, 7)
		b := JitterDays(id, 7)
		if a != b {
			t.Fatalf("jitter for %s not deterministic: %f vs %f", id, a, b)
		}
		if a < 0 || a >= 7 {
			t.Fatalf("jitter for %s = %f, want [0, 7)", id, a)
		}
	}

	if got := JitterDays("anyone", 0); got != 0 {
		t.Errorf("zero spread jitter = %f, want 0", got)
	}
}

func TestJitterDaysSpreadsACohort(t *testing.T) {
	seen := make(map[float64]bool)
	for i := 0; i < 100; i++ {
		seen[JitterDays(fmt.Sprintf("contact-%d", i), 7)] = true
	}
	if len(seen) < 4 {
		t.Errorf("100 contacts landed on only %d distinct offsets", len(seen))
	}
}
