// validate-config checks a weights document and a bucket definition set
// before they go live: weight invariants, per-stage coverage, dead buckets,
// and surge analysis against a historical last-contacted distribution
// exported from the CRM as CSV (contact_id,stage,created_at,last_contacted_at,
// RFC 3339 timestamps).
package main

import (
	"encoding/csv"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/hearthside/leadscore/internal/bucket"
	"github.com/hearthside/leadscore/internal/pkg/logger"
	"github.com/hearthside/leadscore/internal/scoring"
)

func main() {
	weightsPath := flag.String("weights", "weights.yaml", "weights document to validate")
	bucketsPath := flag.String("buckets", "", "bucket definition document (empty validates the built-in set)")
	historyPath := flag.String("history", "", "CSV of historical contact timestamps for surge analysis")
	jitterDays := flag.Int("jitter", 3, "orchestrator jitter spread in days")
	maxIncrease := flag.Float64("max-increase", 0.25, "allowed fractional bucket growth under a synchronized reset")
	flag.Parse()

	log := logger.New()
	failed := false

	weights, err := scoring.LoadWeights(*weightsPath)
	if err != nil {
		log.Error().Err(err).Msg("weights REJECTED")
		failed = true
	} else {
		log.Info().Str("version", weights.Version).Msg("weights OK")
	}

	var defs []bucket.Definition
	if *bucketsPath == "" {
		defs = bucket.DefaultDefinitions()
		if err := bucket.ValidateDefinitions(defs, scoring.AllStages()); err != nil {
			log.Error().Err(err).Msg("built-in bucket set REJECTED")
			failed = true
		} else {
			log.Info().Int("buckets", len(defs)).Msg("built-in bucket set OK")
		}
	} else {
		defs, err = bucket.LoadDefinitions(*bucketsPath)
		if err != nil {
			log.Error().Err(err).Msg("bucket definitions REJECTED")
			failed = true
		} else {
			log.Info().Int("buckets", len(defs)).Msg("bucket definitions OK")
		}
	}

	if defs != nil && *historyPath != "" {
		population, err := readHistory(*historyPath)
		if err != nil {
			log.Fatal().Err(err).Msg("read history csv")
		}
		reports, err := bucket.SurgeCheck(defs, population, time.Now().UTC(), *jitterDays, *maxIncrease)
		for _, rep := range reports {
			fmt.Printf("  %-20s actual=%-7d jittered=%-7d increase=%+.1f%%",
				rep.BucketID, rep.ActualCount, rep.JitteredCount, rep.Increase*100)
			if rep.SurgeProne {
				fmt.Print("  SURGE-PRONE")
			}
			fmt.Println()
		}
		if err != nil {
			log.Error().Err(err).Msg("surge check FAILED")
			failed = true
		} else {
			log.Info().Int("contacts", len(population)).Msg("surge check OK")
		}
	}

	if failed {
		os.Exit(1)
	}
}

func readHistory(path string) ([]bucket.HistoricalContact, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	var out []bucket.HistoricalContact
	line := 0
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		line++
		if len(record) < 4 {
			return nil, fmt.Errorf("line %d: want 4 columns, got %d", line, len(record))
		}
		if line == 1 && record[0] == "contact_id" {
			continue
		}
		created, err := time.Parse(time.RFC3339, record[2])
		if err != nil {
			return nil, fmt.Errorf("line %d: created_at: %w", line, err)
		}
		lastContacted, err := time.Parse(time.RFC3339, record[3])
		if err != nil {
			return nil, fmt.Errorf("line %d: last_contacted_at: %w", line, err)
		}
		out = append(out, bucket.HistoricalContact{
			ID:              record[0],
			Stage:           scoring.Stage(record[1]),
			CreatedAt:       created,
			LastContactedAt: lastContacted,
		})
	}
	return out, nil
}
