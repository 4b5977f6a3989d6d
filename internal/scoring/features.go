package scoring

import (
	"sort"
	"time"
)

// ==========================================
// FEATURE AGGREGATION
// ==========================================

const (
	// concentrationWindow is the trailing window for the activity
	// concentration feature.
	concentrationWindow = 48 * time.Hour

	// responseLookback bounds how far before asOf outbound texts are
	// considered when computing the response-time statistic.
	responseLookback = 90 * 24 * time.Hour

	// responseWindow is how long after an outbound text an inbound text
	// still counts as a response to it.
	responseWindow = 48 * time.Hour

	// Call depth thresholds.
	callDepth5Min  = 5 * 60
	callDepth15Min = 15 * 60
)

// Aggregate reduces a contact's raw event history to a FeatureSet as of the
// given timestamp. It is a pure function of its inputs: no side effects and
// no dependency on scoring weights. Events after asOf are excluded so that
// recomputing a historical snapshot cannot see the future.
func Aggregate(events []ActivityEvent, asOf time.Time) FeatureSet {
	fs := FeatureSet{
		Counts:         make(map[EventType]int),
		PriceTierViews: make(map[PriceTier]int),
	}

	window := make([]ActivityEvent, 0, len(events))
	for _, ev := range events {
		if ev.OccurredAt.After(asOf) {
			continue
		}
		window = append(window, ev)
	}
	if len(window) == 0 {
		return fs
	}
	sort.Slice(window, func(i, j int) bool {
		return window[i].OccurredAt.Before(window[j].OccurredAt)
	})

	var latest time.Time
	recent := 0
	for _, ev := range window {
		fs.Counts[ev.Type]++
		if ev.OccurredAt.After(latest) {
			latest = ev.OccurredAt
		}
		if asOf.Sub(ev.OccurredAt) <= concentrationWindow {
			recent++
		}

		switch ev.Type {
		case EventPropertyView:
			fs.PriceTierViews[TierForPrice(ev.Price)]++
		case EventCallInbound, EventCallOutbound:
			fs.TotalCallSeconds += ev.DurationSeconds
			if ev.DurationSeconds >= callDepth5Min {
				fs.CallsOver5Min++
			}
			if ev.DurationSeconds >= callDepth15Min {
				fs.CallsOver15Min++
			}
		}
	}

	fs.HasActivity = true
	fs.LastActivityAge = asOf.Sub(latest)
	fs.RecentActivityFraction = float64(recent) / float64(len(window))

	fs.MeanResponseSeconds, fs.ResponsePairs = responseStat(window, asOf)
	return fs
}

// responseStat pairs each outbound text inside the lookback with the first
// inbound text that follows it within the response window, and returns the
// mean elapsed seconds over those pairs. Each inbound text answers at most
// one outbound text.
func responseStat(sorted []ActivityEvent, asOf time.Time) (mean float64, pairs int) {
	cutoff := asOf.Add(-responseLookback)

	var totalSeconds float64
	inboundIdx := 0
	for _, out := range sorted {
		if out.Type != EventTextOutbound || out.OccurredAt.Before(cutoff) {
			continue
		}
		for inboundIdx < len(sorted) {
			in := sorted[inboundIdx]
			if in.Type != EventTextInbound || !in.OccurredAt.After(out.OccurredAt) {
				inboundIdx++
				continue
			}
			if in.OccurredAt.Sub(out.OccurredAt) > responseWindow {
				// Too late to answer this outbound; it may still answer a
				// later one.
				break
			}
			totalSeconds += in.OccurredAt.Sub(out.OccurredAt).Seconds()
			pairs++
			inboundIdx++
			break
		}
	}

	if pairs == 0 {
		return 0, 0
	}
	return totalSeconds / float64(pairs), pairs
}
