package scoring

import (
	"errors"
	"fmt"
	"math"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// ==========================================
// ERRORS
// ==========================================

var (
	// ErrWeightNotFinite is returned when any configured weight is NaN or Inf.
	ErrWeightNotFinite = errors.New("weight is not finite")

	// ErrNegativeWeight is returned for weights that must be >= 0.
	ErrNegativeWeight = errors.New("weight is negative")

	// ErrTableNotMonotonic is returned when a recency/response/concentration
	// table rewards staleness (bonus increases with elapsed time).
	ErrTableNotMonotonic = errors.New("bonus table rewards staleness")

	// ErrMissingVersion is returned for an unversioned weights document.
	ErrMissingVersion = errors.New("weights document has no version")

	// ErrBadHeatCap is returned for an enabled heat cap with a non-positive value.
	ErrBadHeatCap = errors.New("heat cap enabled with non-positive value")
)

// ==========================================
// WEIGHT TABLES
// ==========================================

// DurationTier awards a weight to calls at or above a duration threshold.
// Tiers are cumulative: a 20-minute call earns every tier it clears.
type DurationTier struct {
	MinSeconds int     `yaml:"min_seconds"`
	Weight     float64 `yaml:"weight"`
}

// AgeBonus maps an activity age ceiling (in days) to a bonus. A contact's
// recency bonus is the first row whose MaxAgeDays exceeds its most recent
// activity age; older activity falls through to zero.
type AgeBonus struct {
	MaxAgeDays float64 `yaml:"max_age_days"`
	Bonus      float64 `yaml:"bonus"`
}

// ResponseBonus maps a mean-response-time ceiling (in minutes) to a bonus.
type ResponseBonus struct {
	MaxMeanMinutes float64 `yaml:"max_mean_minutes"`
	Bonus          float64 `yaml:"bonus"`
}

// ConcentrationBonus maps a minimum 48h activity share to a bonus. Rows are
// evaluated highest floor first; a contact earns the best row it clears.
type ConcentrationBonus struct {
	MinFraction float64 `yaml:"min_fraction"`
	Bonus       float64 `yaml:"bonus"`
}

// CombinationWeights blend Heat/Value/Relationship into Priority. They need
// not sum to 1; market-specific tuning is expected.
type CombinationWeights struct {
	Heat         float64 `yaml:"heat"`
	Value        float64 `yaml:"value"`
	Relationship float64 `yaml:"relationship"`
}

// HeatCap is an optional, disabled-by-default ceiling on the Heat score.
// The default configuration ships with it off: a cap was found to destroy
// differentiation among top performers.
type HeatCap struct {
	Enabled bool    `yaml:"enabled"`
	Value   float64 `yaml:"value"`
}

// ==========================================
// SCORING WEIGHTS
// ==========================================

// ScoringWeights is the named, versioned parameter set for one scoring run.
// Loaded once per run and validated before any contact is scored; a run
// never starts on a document that fails Validate.
type ScoringWeights struct {
	Version string `yaml:"version"`

	// Heat inputs.
	EventWeights       map[EventType]float64 `yaml:"event_weights"`
	CallDurationTiers  []DurationTier        `yaml:"call_duration_tiers"`
	RecencyBonuses     []AgeBonus            `yaml:"recency_bonuses"`
	ResponseBonuses    []ResponseBonus       `yaml:"response_bonuses"`
	ConcentrationBonus []ConcentrationBonus  `yaml:"concentration_bonuses"`

	// Value inputs.
	PriceTierMultipliers map[PriceTier]float64       `yaml:"price_tier_multipliers"`
	TimeframeWeights     map[BuyingTimeframe]float64 `yaml:"timeframe_weights"`

	// Relationship inputs.
	RelationshipWeights map[EventType]float64 `yaml:"relationship_weights"`
	CallDepthWeight     float64               `yaml:"call_depth_weight"`

	// Priority blending.
	Combination      CombinationWeights `yaml:"combination"`
	StageMultipliers map[Stage]float64  `yaml:"stage_multipliers"`

	Cap HeatCap `yaml:"heat_cap"`
}

// LoadWeights reads and validates a weights document from a YAML file.
func LoadWeights(path string) (*ScoringWeights, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read weights file: %w", err)
	}

	var w ScoringWeights
	if err := yaml.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("parse weights file: %w", err)
	}

	if err := w.Validate(); err != nil {
		return nil, fmt.Errorf("weights %q: %w", w.Version, err)
	}
	return &w, nil
}

// Validate checks every invariant the calculator relies on. Violations are
// configuration errors that must block a run before it starts.
func (w *ScoringWeights) Validate() error {
	if w.Version == "" {
		return ErrMissingVersion
	}

	check := func(name string, v float64, allowNegative bool) error {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: %s", ErrWeightNotFinite, name)
		}
		if !allowNegative && v < 0 {
			return fmt.Errorf("%w: %s", ErrNegativeWeight, name)
		}
		return nil
	}

	for et, v := range w.EventWeights {
		if err := check(fmt.Sprintf("event_weights.%s", et), v, false); err != nil {
			return err
		}
	}
	for et, v := range w.RelationshipWeights {
		if err := check(fmt.Sprintf("relationship_weights.%s", et), v, false); err != nil {
			return err
		}
	}
	for tier, v := range w.PriceTierMultipliers {
		if err := check(fmt.Sprintf("price_tier_multipliers.%s", tier), v, false); err != nil {
			return err
		}
	}
	for tf, v := range w.TimeframeWeights {
		if err := check(fmt.Sprintf("timeframe_weights.%s", tf), v, false); err != nil {
			return err
		}
	}
	for stage, v := range w.StageMultipliers {
		if err := check(fmt.Sprintf("stage_multipliers.%s", stage), v, false); err != nil {
			return err
		}
	}
	for i, tier := range w.CallDurationTiers {
		if err := check(fmt.Sprintf("call_duration_tiers[%d]", i), tier.Weight, false); err != nil {
			return err
		}
	}
	if err := check("call_depth_weight", w.CallDepthWeight, false); err != nil {
		return err
	}
	if err := check("combination.heat", w.Combination.Heat, false); err != nil {
		return err
	}
	if err := check("combination.value", w.Combination.Value, false); err != nil {
		return err
	}
	if err := check("combination.relationship", w.Combination.Relationship, false); err != nil {
		return err
	}

	if err := w.validateRecency(); err != nil {
		return err
	}
	if err := w.validateResponse(); err != nil {
		return err
	}
	if err := w.validateConcentration(); err != nil {
		return err
	}

	if w.Cap.Enabled && w.Cap.Value <= 0 {
		return ErrBadHeatCap
	}
	return nil
}

// validateRecency enforces that older activity never earns a larger bonus.
func (w *ScoringWeights) validateRecency() error {
	rows := append([]AgeBonus(nil), w.RecencyBonuses...)
	sort.Slice(rows, func(i, j int) bool { return rows[i].MaxAgeDays < rows[j].MaxAgeDays })
	prev := math.Inf(1)
	for i, row := range rows {
		if math.IsNaN(row.Bonus) || math.IsInf(row.Bonus, 0) {
			return fmt.Errorf("%w: recency_bonuses[%d]", ErrWeightNotFinite, i)
		}
		if row.Bonus < 0 {
			return fmt.Errorf("%w: recency_bonuses[%d]", ErrNegativeWeight, i)
		}
		if row.Bonus > prev {
			return fmt.Errorf("%w: recency_bonuses at %.1f days", ErrTableNotMonotonic, row.MaxAgeDays)
		}
		prev = row.Bonus
	}
	return nil
}

// validateResponse enforces that a slower mean response never earns more.
func (w *ScoringWeights) validateResponse() error {
	rows := append([]ResponseBonus(nil), w.ResponseBonuses...)
	sort.Slice(rows, func(i, j int) bool { return rows[i].MaxMeanMinutes < rows[j].MaxMeanMinutes })
	prev := math.Inf(1)
	for i, row := range rows {
		if math.IsNaN(row.Bonus) || math.IsInf(row.Bonus, 0) {
			return fmt.Errorf("%w: response_bonuses[%d]", ErrWeightNotFinite, i)
		}
		if row.Bonus < 0 {
			return fmt.Errorf("%w: response_bonuses[%d]", ErrNegativeWeight, i)
		}
		if row.Bonus > prev {
			return fmt.Errorf("%w: response_bonuses at %.1f minutes", ErrTableNotMonotonic, row.MaxMeanMinutes)
		}
		prev = row.Bonus
	}
	return nil
}

// validateConcentration enforces that a smaller recent-activity share never
// earns more than a larger one.
func (w *ScoringWeights) validateConcentration() error {
	rows := append([]ConcentrationBonus(nil), w.ConcentrationBonus...)
	sort.Slice(rows, func(i, j int) bool { return rows[i].MinFraction < rows[j].MinFraction })
	prev := math.Inf(-1)
	for i, row := range rows {
		if math.IsNaN(row.Bonus) || math.IsInf(row.Bonus, 0) {
			return fmt.Errorf("%w: concentration_bonuses[%d]", ErrWeightNotFinite, i)
		}
		if row.Bonus < 0 {
			return fmt.Errorf("%w: concentration_bonuses[%d]", ErrNegativeWeight, i)
		}
		if row.MinFraction < 0 || row.MinFraction > 1 {
			return fmt.Errorf("concentration_bonuses[%d]: fraction %.2f outside [0,1]", i, row.MinFraction)
		}
		if row.Bonus < prev {
			return fmt.Errorf("%w: concentration_bonuses at fraction %.2f", ErrTableNotMonotonic, row.MinFraction)
		}
		prev = row.Bonus
	}
	return nil
}

// ==========================================
// TABLE LOOKUPS
// ==========================================

// RecencyBonusFor returns the bonus for a most-recent-activity age in days.
// An empty history (hasActivity false) decays fully to zero.
func (w *ScoringWeights) RecencyBonusFor(ageDays float64, hasActivity bool) float64 {
	if !hasActivity {
		return 0
	}
	rows := append([]AgeBonus(nil), w.RecencyBonuses...)
	sort.Slice(rows, func(i, j int) bool { return rows[i].MaxAgeDays < rows[j].MaxAgeDays })
	for _, row := range rows {
		if ageDays < row.MaxAgeDays {
			return row.Bonus
		}
	}
	return 0
}

// ResponseBonusFor returns the bonus for a mean response time in seconds.
func (w *ScoringWeights) ResponseBonusFor(meanSeconds float64, pairs int) float64 {
	if pairs == 0 {
		return 0
	}
	meanMinutes := meanSeconds / 60
	rows := append([]ResponseBonus(nil), w.ResponseBonuses...)
	sort.Slice(rows, func(i, j int) bool { return rows[i].MaxMeanMinutes < rows[j].MaxMeanMinutes })
	for _, row := range rows {
		if meanMinutes < row.MaxMeanMinutes {
			return row.Bonus
		}
	}
	return 0
}

// ConcentrationBonusFor returns the bonus for a 48h activity share.
func (w *ScoringWeights) ConcentrationBonusFor(fraction float64) float64 {
	rows := append([]ConcentrationBonus(nil), w.ConcentrationBonus...)
	sort.Slice(rows, func(i, j int) bool { return rows[i].MinFraction > rows[j].MinFraction })
	for _, row := range rows {
		if fraction >= row.MinFraction {
			return row.Bonus
		}
	}
	return 0
}

// StageMultiplier returns the configured multiplier for a stage. A stage
// missing from the table multiplies by zero, which deliberately drives
// non-lead stages (vendors, trash) to Priority 0 without special-casing
// them downstream.
func (w *ScoringWeights) StageMultiplier(stage Stage) float64 {
	m, ok := w.StageMultipliers[stage]
	if !ok {
		return 0
	}
	return m
}

// ==========================================
// DEFAULTS
// ==========================================

// DefaultWeights returns the recommended starting parameter set. Callers
// normally load a tuned document from YAML; the defaults exist for tests,
// local development, and as documentation of a known-valid shape.
func DefaultWeights() *ScoringWeights {
	return &ScoringWeights{
		Version: "default-v1",
		EventWeights: map[EventType]float64{
			EventSiteVisit:        1,
			EventPropertyView:     2,
			EventPropertyFavorite: 5,
			EventPropertyShare:    8,
			EventCallInbound:      15,
			EventCallOutbound:     3,
			EventTextInbound:      6,
			EventTextOutbound:     1,
			EventFormSubmission:   20,
		},
		CallDurationTiers: []DurationTier{
			{MinSeconds: 300, Weight: 10},
			{MinSeconds: 900, Weight: 15},
		},
		RecencyBonuses: []AgeBonus{
			{MaxAgeDays: 1, Bonus: 25},
			{MaxAgeDays: 3, Bonus: 15},
			{MaxAgeDays: 7, Bonus: 8},
			{MaxAgeDays: 14, Bonus: 3},
		},
		ResponseBonuses: []ResponseBonus{
			{MaxMeanMinutes: 5, Bonus: 15},
			{MaxMeanMinutes: 30, Bonus: 10},
			{MaxMeanMinutes: 120, Bonus: 5},
			{MaxMeanMinutes: 1440, Bonus: 2},
		},
		ConcentrationBonus: []ConcentrationBonus{
			{MinFraction: 0.75, Bonus: 12},
			{MinFraction: 0.5, Bonus: 8},
			{MinFraction: 0.25, Bonus: 4},
		},
		PriceTierMultipliers: map[PriceTier]float64{
			PriceTierEntry:  1,
			PriceTierMid:    2,
			PriceTierUpper:  4,
			PriceTierLuxury: 8,
		},
		TimeframeWeights: map[BuyingTimeframe]float64{
			Timeframe0To3Months:   30,
			Timeframe3To6Months:   20,
			Timeframe6To12Months:  10,
			TimeframeOver12Months: 4,
			TimeframeNoPlans:      0,
		},
		RelationshipWeights: map[EventType]float64{
			EventCallInbound:    10,
			EventTextInbound:    5,
			EventFormSubmission: 8,
		},
		CallDepthWeight: 6,
		Combination: CombinationWeights{
			Heat:         0.5,
			Value:        0.2,
			Relationship: 0.3,
		},
		StageMultipliers: map[Stage]float64{
			StageLead:          1.0,
			StageNurture:       0.8,
			StageHotProspect:   1.4,
			StageActiveClient:  1.2,
			StageUnderContract: 1.1,
			StageClosed:        0.5,
			StageUnresponsive:  0.3,
			StageVendor:        0,
			StageTrash:         0,
		},
		Cap: HeatCap{Enabled: false},
	}
}
