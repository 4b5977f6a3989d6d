package bucket

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/hearthside/leadscore/internal/scoring"
)

func TestLoadDefinitionsFromYAML(t *testing.T) {
	doc := `
buckets:
  - id: hot
    label: Hot
    stages: [lead, nurture, hot_prospect, active_client, under_contract, closed, unresponsive, vendor, trash]
    elapsed: {min_days: 0}
    score: {score: heat, min: 60}
    cadence: daily
  - id: working
    label: Working
    stages: [lead, nurture, hot_prospect, active_client, under_contract, closed, unresponsive, vendor, trash]
    elapsed: {min_days: 0, max_days: 30}
    cadence: weekly
  - id: cold
    label: Cold
    stages: [lead, nurture, hot_prospect, active_client, under_contract, closed, unresponsive, vendor, trash]
    elapsed: {min_days: 30}
    cadence: monthly
`
	path := filepath.Join(t.TempDir(), "buckets.yaml")
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}

	defs, err := LoadDefinitions(path)
	if err != nil {
		t.Fatalf("LoadDefinitions: %v", err)
	}
	if len(defs) != 3 {
		t.Fatalf("got %d definitions, want 3", len(defs))
	}
	if defs[0].ID != "hot" || defs[0].Score == nil || defs[0].Score.Min != 60 {
		t.Errorf("first definition = %+v", defs[0])
	}
	if !defs[1].Elapsed.Contains(29.9) || defs[1].Elapsed.Contains(30) {
		t.Error("working window should be [0, 30)")
	}
}

func TestLoadDefinitionsRejectsCliff(t *testing.T) {
	doc := `
buckets:
  - id: only
    label: Only
    stages: [lead]
    elapsed: {min_days: 0, max_days: 10}
`
	path := filepath.Join(t.TempDir(), "buckets.yaml")
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := LoadDefinitions(path); !errors.Is(err, ErrCoverageCliff) {
		t.Errorf("LoadDefinitions = %v, want ErrCoverageCliff", err)
	}
}

func TestElapsedRangeContains(t *testing.T) {
	bounded := ElapsedRange{MinDays: 5, MaxDays: 45}
	if bounded.Contains(4.99) || !bounded.Contains(5) || !bounded.Contains(44.99) || bounded.Contains(45) {
		t.Error("bounded range boundaries wrong")
	}

	open := ElapsedRange{MinDays: 45}
	if !open.Unbounded() || !open.Contains(45) || !open.Contains(1e6) || open.Contains(44) {
		t.Error("unbounded range boundaries wrong")
	}
}

func TestDefaultDefinitionsCoverEveryStage(t *testing.T) {
	defs := DefaultDefinitions()
	for _, stage := range scoring.AllStages() {
		found := false
		for i := range defs {
			if defs[i].AppliesToStage(stage) {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("stage %s has no bucket", stage)
		}
	}
}
