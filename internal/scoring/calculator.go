package scoring

import "time"

// ==========================================
// SCORE CALCULATION
// ==========================================

// Score combines a FeatureSet with a validated weight set and produces the
// four scores plus their component breakdown. Pure: identical inputs always
// yield identical output, so reruns with an unchanged weights version are
// idempotent.
//
// Heat has no stage multiplier and no ceiling unless the optional cap is
// explicitly enabled in the weights document. All four scores are finite
// and >= 0 for any well-formed FeatureSet and valid weights.
func Score(features FeatureSet, stage Stage, timeframe BuyingTimeframe, w *ScoringWeights) (heat, value, relationship, priority float64, comps ScoreComponents) {
	// Heat: weighted event volume plus timing bonuses.
	for et, count := range features.Counts {
		comps.EventPoints += float64(count) * w.EventWeights[et]
	}
	for _, tier := range w.CallDurationTiers {
		switch {
		case tier.MinSeconds >= callDepth15Min:
			comps.CallDepthPoints += float64(features.CallsOver15Min) * tier.Weight
		case tier.MinSeconds >= callDepth5Min:
			comps.CallDepthPoints += float64(features.CallsOver5Min) * tier.Weight
		}
	}
	ageDays := features.LastActivityAge.Hours() / 24
	comps.RecencyBonus = w.RecencyBonusFor(ageDays, features.HasActivity)
	comps.ResponseBonus = w.ResponseBonusFor(features.MeanResponseSeconds, features.ResponsePairs)
	comps.ConcentrationBonus = w.ConcentrationBonusFor(features.RecentActivityFraction)

	heat = comps.EventPoints + comps.CallDepthPoints +
		comps.RecencyBonus + comps.ResponseBonus + comps.ConcentrationBonus
	if w.Cap.Enabled && heat > w.Cap.Value {
		heat = w.Cap.Value
		comps.HeatCapped = true
	}

	// Value: deal-size exposure from viewed inventory plus the contact's
	// stated buying horizon.
	for tier, count := range features.PriceTierViews {
		comps.PriceExposurePoints += float64(count) * w.PriceTierMultipliers[tier]
	}
	comps.TimeframePoints = w.TimeframeWeights[timeframe]
	value = comps.PriceExposurePoints + comps.TimeframePoints

	// Relationship: communication quality.
	for et, weight := range w.RelationshipWeights {
		comps.CommunicationPoints += float64(features.Counts[et]) * weight
	}
	comps.CommunicationPoints += float64(features.CallsOver5Min) * w.CallDepthWeight
	relationship = comps.CommunicationPoints

	// Priority: blended and scaled by stage. A zero multiplier drives
	// Priority to zero regardless of the other scores.
	comps.StageMultiplier = w.StageMultiplier(stage)
	priority = (heat*w.Combination.Heat +
		value*w.Combination.Value +
		relationship*w.Combination.Relationship) * comps.StageMultiplier

	return heat, value, relationship, priority, comps
}

// Snapshot runs the full per-contact pipeline up to bucket assignment:
// aggregate the event history as of asOf, then score it. The BucketID field
// is left empty for the assigner to fill.
func Snapshot(contact Contact, events []ActivityEvent, asOf time.Time, w *ScoringWeights) ScoreSnapshot {
	features := Aggregate(events, asOf)
	heat, value, relationship, priority, comps := Score(features, contact.Stage, contact.BuyingTimeframe, w)
	return ScoreSnapshot{
		ContactID:      contact.ID,
		Heat:           heat,
		Value:          value,
		Relationship:   relationship,
		Priority:       priority,
		Components:     comps,
		WeightsVersion: w.Version,
		ComputedAt:     asOf,
	}
}
