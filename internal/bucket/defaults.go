package bucket

import "github.com/hearthside/leadscore/internal/scoring"

// DefaultDefinitions returns the recommended outreach bucket set, in
// priority order (most aggressive cadence first).
//
// The set is built around three rules:
//
//   - "hot-now" and "new-leads" are overlays: a heat gate and a
//     days-since-creation window respectively. Contacts that fall out of
//     them land in the last-contact chain underneath instead of vanishing.
//   - "attempted" is the bridge: a broad [5, 45) window between the tight
//     active-followup window and the long-nurture tail, so there is no
//     invisible middle region between "worked recently" and "gone cold".
//   - every boundary in the chain is wide relative to the orchestrator's
//     jitter spread, so a bulk action that resets many last-contacted
//     timestamps at once cannot pour a whole cohort across one boundary
//     in a single run.
//
// The set passes ValidateDefinitions for the full stage taxonomy.
func DefaultDefinitions() []Definition {
	workable := []scoring.Stage{scoring.StageLead, scoring.StageNurture, scoring.StageHotProspect}

	return []Definition{
		{
			ID:      "hot-now",
			Label:   "Hot - call today",
			Stages:  workable,
			Elapsed: ElapsedRange{MinDays: 0},
			Score:   &ScoreFilter{Score: ScoreHeat, Min: 70},
			Cadence: "daily",
		},
		{
			ID:      "new-leads",
			Label:   "New leads",
			Stages:  []scoring.Stage{scoring.StageLead},
			Basis:   BasisCreated,
			Elapsed: ElapsedRange{MinDays: 0, MaxDays: 10},
			Cadence: "daily",
		},
		{
			ID:      "active-followup",
			Label:   "Active follow-up",
			Stages:  workable,
			Elapsed: ElapsedRange{MinDays: 0, MaxDays: 5},
			Cadence: "every-2-days",
		},
		{
			ID:      "attempted",
			Label:   "Attempted - keep working",
			Stages:  workable,
			Elapsed: ElapsedRange{MinDays: 5, MaxDays: 45},
			Cadence: "every-5-days",
		},
		{
			ID:      "long-nurture",
			Label:   "Long-term nurture",
			Stages:  workable,
			Elapsed: ElapsedRange{MinDays: 45},
			Cadence: "monthly",
		},
		{
			ID:      "client-care",
			Label:   "Client care",
			Stages:  []scoring.Stage{scoring.StageActiveClient, scoring.StageUnderContract},
			Elapsed: ElapsedRange{MinDays: 0},
			Cadence: "weekly",
		},
		{
			ID:      "past-close",
			Label:   "Past clients",
			Stages:  []scoring.Stage{scoring.StageClosed},
			Elapsed: ElapsedRange{MinDays: 0},
			Cadence: "quarterly",
		},
		{
			ID:      "parked",
			Label:   "Parked",
			Stages:  []scoring.Stage{scoring.StageUnresponsive, scoring.StageVendor, scoring.StageTrash},
			Elapsed: ElapsedRange{MinDays: 0},
			Cadence: "none",
		},
	}
}
