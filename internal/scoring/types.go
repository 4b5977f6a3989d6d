// Package scoring computes engagement scores for pipeline contacts from
// their raw activity history and a validated, versioned weight configuration.
package scoring

import (
	"time"

	"github.com/google/uuid"
)

// ==========================================
// PIPELINE STAGES
// ==========================================

// Stage is a contact's position in the sales pipeline.
type Stage string

const (
	StageLead          Stage = "lead"
	StageNurture       Stage = "nurture"
	StageHotProspect   Stage = "hot_prospect"
	StageActiveClient  Stage = "active_client"
	StageUnderContract Stage = "under_contract"
	StageClosed        Stage = "closed"
	StageUnresponsive  Stage = "unresponsive"
	StageVendor        Stage = "vendor"
	StageTrash         Stage = "trash"
)

// AllStages returns the full stage taxonomy in pipeline order.
func AllStages() []Stage {
	return []Stage{
		StageLead,
		StageNurture,
		StageHotProspect,
		StageActiveClient,
		StageUnderContract,
		StageClosed,
		StageUnresponsive,
		StageVendor,
		StageTrash,
	}
}

// KnownStage reports whether s is part of the stage taxonomy.
func KnownStage(s Stage) bool {
	for _, known := range AllStages() {
		if s == known {
			return true
		}
	}
	return false
}

// ==========================================
// BUYING TIMEFRAME
// ==========================================

// BuyingTimeframe is the contact's self-reported purchase horizon.
type BuyingTimeframe string

const (
	Timeframe0To3Months   BuyingTimeframe = "0-3mo"
	Timeframe3To6Months   BuyingTimeframe = "3-6mo"
	Timeframe6To12Months  BuyingTimeframe = "6-12mo"
	TimeframeOver12Months BuyingTimeframe = "12+mo"
	TimeframeNoPlans      BuyingTimeframe = "no_plans"
	TimeframeUnset        BuyingTimeframe = ""
)

// ==========================================
// CONTACTS
// ==========================================

// Contact is the slice of the CRM contact record this subsystem reads.
// The CRM sync owns these fields; only scores and bucket assignments are
// written back.
type Contact struct {
	ID              uuid.UUID       `json:"id" db:"id"`
	Stage           Stage           `json:"stage" db:"stage"`
	CreatedAt       time.Time       `json:"created_at" db:"created_at"`
	LastContactedAt *time.Time      `json:"last_contacted_at,omitempty" db:"last_contacted_at"`
	BuyingTimeframe BuyingTimeframe `json:"buying_timeframe,omitempty" db:"buying_timeframe"`
}

// ==========================================
// ACTIVITY EVENTS
// ==========================================

// EventType identifies a kind of engagement activity.
type EventType string

const (
	EventSiteVisit        EventType = "site_visit"
	EventPropertyView     EventType = "property_view"
	EventPropertyFavorite EventType = "property_favorite"
	EventPropertyShare    EventType = "property_share"
	EventCallInbound      EventType = "call_inbound"
	EventCallOutbound     EventType = "call_outbound"
	EventTextInbound      EventType = "text_inbound"
	EventTextOutbound     EventType = "text_outbound"
	EventFormSubmission   EventType = "form_submission"
)

// AllEventTypes returns every event type the aggregator understands.
func AllEventTypes() []EventType {
	return []EventType{
		EventSiteVisit,
		EventPropertyView,
		EventPropertyFavorite,
		EventPropertyShare,
		EventCallInbound,
		EventCallOutbound,
		EventTextInbound,
		EventTextOutbound,
		EventFormSubmission,
	}
}

// ActivityEvent is one immutable engagement record attached to a contact.
// DurationSeconds is set for calls, Price for property events.
type ActivityEvent struct {
	ID              uuid.UUID `json:"id" db:"id"`
	ContactID       uuid.UUID `json:"contact_id" db:"contact_id"`
	Type            EventType `json:"type" db:"event_type"`
	OccurredAt      time.Time `json:"occurred_at" db:"occurred_at"`
	DurationSeconds int       `json:"duration_seconds,omitempty" db:"duration_seconds"`
	Price           float64   `json:"price,omitempty" db:"price"`
}

// ==========================================
// PRICE TIERS
// ==========================================

// PriceTier buckets a viewed property's price. Tier boundaries are fixed so
// the feature aggregator stays configuration-free; the per-tier multipliers
// live in ScoringWeights.
type PriceTier string

const (
	PriceTierEntry   PriceTier = "entry"   // < $250k
	PriceTierMid     PriceTier = "mid"     // $250k - $500k
	PriceTierUpper   PriceTier = "upper"   // $500k - $1M
	PriceTierLuxury  PriceTier = "luxury"  // >= $1M
	PriceTierUnknown PriceTier = "unknown" // no price on the event
)

// TierForPrice maps a property price to its tier.
func TierForPrice(price float64) PriceTier {
	switch {
	case price <= 0:
		return PriceTierUnknown
	case price < 250_000:
		return PriceTierEntry
	case price < 500_000:
		return PriceTierMid
	case price < 1_000_000:
		return PriceTierUpper
	default:
		return PriceTierLuxury
	}
}

// ==========================================
// FEATURES
// ==========================================

// FeatureSet is the flat numeric summary of one contact's event history as
// of a given timestamp. It is a pure function of (events, asOf) and carries
// no knowledge of scoring weights.
type FeatureSet struct {
	// Per-type raw counts for events at or before asOf.
	Counts map[EventType]int `json:"counts"`

	// Property views split by price tier.
	PriceTierViews map[PriceTier]int `json:"price_tier_views"`

	// Call depth.
	CallsOver5Min    int `json:"calls_over_5min"`
	CallsOver15Min   int `json:"calls_over_15min"`
	TotalCallSeconds int `json:"total_call_seconds"`

	// Mean outbound-text -> inbound-text response time, when at least one
	// response pair exists inside the lookback window.
	MeanResponseSeconds float64 `json:"mean_response_seconds"`
	ResponsePairs       int     `json:"response_pairs"`

	// Fraction of all-time activity that happened in the 48h before asOf.
	RecentActivityFraction float64 `json:"recent_activity_fraction"`

	// Age of the most recent event relative to asOf. HasActivity is false
	// for an empty history, which downstream treats as maximal decay.
	LastActivityAge time.Duration `json:"last_activity_age"`
	HasActivity     bool          `json:"has_activity"`
}

// ==========================================
// SCORE SNAPSHOTS
// ==========================================

// ScoreComponents is the intermediate breakdown kept for audit.
type ScoreComponents struct {
	EventPoints         float64 `json:"event_points"`
	CallDepthPoints     float64 `json:"call_depth_points"`
	RecencyBonus        float64 `json:"recency_bonus"`
	ResponseBonus       float64 `json:"response_bonus"`
	ConcentrationBonus  float64 `json:"concentration_bonus"`
	PriceExposurePoints float64 `json:"price_exposure_points"`
	TimeframePoints     float64 `json:"timeframe_points"`
	CommunicationPoints float64 `json:"communication_points"`
	StageMultiplier     float64 `json:"stage_multiplier"`
	HeatCapped          bool    `json:"heat_capped,omitempty"`
}

// ScoreSnapshot is one contact's scores for one scoring run. Immutable once
// written; a contact's current scores are its latest snapshot.
type ScoreSnapshot struct {
	ContactID      uuid.UUID       `json:"contact_id" db:"contact_id"`
	RunID          uuid.UUID       `json:"run_id" db:"run_id"`
	Heat           float64         `json:"heat" db:"heat"`
	Value          float64         `json:"value" db:"value"`
	Relationship   float64         `json:"relationship" db:"relationship"`
	Priority       float64         `json:"priority" db:"priority"`
	Components     ScoreComponents `json:"components" db:"components"`
	BucketID       string          `json:"bucket_id" db:"bucket_id"`
	WeightsVersion string          `json:"weights_version" db:"weights_version"`
	ComputedAt     time.Time       `json:"computed_at" db:"computed_at"`
}

// ==========================================
// SCORING RUNS
// ==========================================

// RunStatus tracks the orchestrator state machine.
type RunStatus string

const (
	RunIdle      RunStatus = "idle"
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)

// ContactFailure records a per-contact anomaly inside an otherwise
// successful run. Contacts are never silently dropped.
type ContactFailure struct {
	ContactID uuid.UUID `json:"contact_id"`
	Reason    string    `json:"reason"`
}

// ScoringRun is the append-only audit record for one batch pass.
type ScoringRun struct {
	ID             uuid.UUID        `json:"id" db:"id"`
	Status         RunStatus        `json:"status" db:"status"`
	StartedAt      time.Time        `json:"started_at" db:"started_at"`
	CompletedAt    *time.Time       `json:"completed_at,omitempty" db:"completed_at"`
	WeightsVersion string           `json:"weights_version" db:"weights_version"`
	ContactCount   int              `json:"contact_count" db:"contact_count"`
	BucketCounts   map[string]int   `json:"bucket_counts" db:"bucket_counts"`
	Failures       []ContactFailure `json:"failures,omitempty" db:"failures"`
}

// FullySuccessful reports whether the run completed with zero per-contact
// anomalies. The completion report distinguishes this from "completed with
// N anomalies".
func (r *ScoringRun) FullySuccessful() bool {
	return r.Status == RunCompleted && len(r.Failures) == 0
}
