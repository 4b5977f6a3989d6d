// Package bucket partitions the contact population into an ordered set of
// mutually-exclusive outreach-cadence buckets, with load-time validation
// that the definition set has no dead buckets, no coverage cliffs, and no
// surge-prone boundaries.
package bucket

import (
	"fmt"
	"math"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/hearthside/leadscore/internal/scoring"
)

// ==========================================
// DEFINITION TYPES
// ==========================================

// ElapsedBasis selects which timestamp a definition's day window measures
// against.
type ElapsedBasis string

const (
	// BasisLastContact measures days since the last inbound or outbound
	// communication. This is the default, and the basis the coverage
	// invariant is enforced over.
	BasisLastContact ElapsedBasis = "last_contact"

	// BasisCreated measures days since the contact record was created.
	// Created-basis definitions are overlays: they may legally fail to
	// match, with the last-contact chain underneath catching the contact.
	BasisCreated ElapsedBasis = "created"
)

// ScoreKind names which score a filter tests.
type ScoreKind string

const (
	ScoreHeat         ScoreKind = "heat"
	ScoreValue        ScoreKind = "value"
	ScoreRelationship ScoreKind = "relationship"
	ScorePriority     ScoreKind = "priority"
)

// ScoreFilter is an optional minimum-score gate on a definition.
type ScoreFilter struct {
	Score ScoreKind `yaml:"score"`
	Min   float64   `yaml:"min"`
}

// ElapsedRange is a half-open interval [MinDays, MaxDays) of elapsed days.
// MaxDays <= 0 means unbounded above.
type ElapsedRange struct {
	MinDays float64 `yaml:"min_days"`
	MaxDays float64 `yaml:"max_days"`
}

// Unbounded reports whether the range has no upper limit.
func (r ElapsedRange) Unbounded() bool { return r.MaxDays <= 0 }

// Contains reports whether days falls inside the half-open interval.
func (r ElapsedRange) Contains(days float64) bool {
	if days < r.MinDays {
		return false
	}
	return r.Unbounded() || days < r.MaxDays
}

// upper returns the exclusive upper bound, +Inf when unbounded.
func (r ElapsedRange) upper() float64 {
	if r.Unbounded() {
		return math.Inf(1)
	}
	return r.MaxDays
}

// Definition is one outreach bucket. Definitions are evaluated in priority
// order (most aggressive cadence first); the first match wins.
type Definition struct {
	ID      string          `yaml:"id"`
	Label   string          `yaml:"label"`
	Stages  []scoring.Stage `yaml:"stages"`
	Basis   ElapsedBasis    `yaml:"basis"`
	Elapsed ElapsedRange    `yaml:"elapsed"`
	Score   *ScoreFilter    `yaml:"score,omitempty"`
	Cadence string          `yaml:"cadence"`
}

// AppliesToStage reports whether the definition's stage filter includes s.
func (d *Definition) AppliesToStage(s scoring.Stage) bool {
	for _, stage := range d.Stages {
		if stage == s {
			return true
		}
	}
	return false
}

// basis returns the definition's elapsed basis, defaulting to last contact.
func (d *Definition) basis() ElapsedBasis {
	if d.Basis == "" {
		return BasisLastContact
	}
	return d.Basis
}

// isOverlay reports whether the definition is exempt from the coverage
// invariant: score-filtered and created-basis definitions can fail to
// match, so the unfiltered last-contact chain must cover without them.
func (d *Definition) isOverlay() bool {
	return d.Score != nil || d.basis() == BasisCreated
}

// ==========================================
// DOCUMENT LOADING
// ==========================================

// definitionsDoc is the YAML shape of a bucket definition file.
type definitionsDoc struct {
	Buckets []Definition `yaml:"buckets"`
}

// LoadDefinitions reads an ordered definition set from a YAML file and
// validates it against the full stage taxonomy.
func LoadDefinitions(path string) ([]Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read bucket definitions: %w", err)
	}

	var doc definitionsDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse bucket definitions: %w", err)
	}

	if err := ValidateDefinitions(doc.Buckets, scoring.AllStages()); err != nil {
		return nil, err
	}
	return doc.Buckets, nil
}
