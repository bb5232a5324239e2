package flakeanalyticsquery

import (
	"time"

	"github.com/montanaflynn/stats"

	"github.com/Pulkitchaturvedi/flakydashboard/pkg/flakeanalytics/flakeanalyticsapi"
)

// DefaultAnomalyZScore is the z-score at which a week counts as anomalous.
const DefaultAnomalyZScore = 3.0

// minimumWeeksForZScore is how many weeks of history a z-score needs before
// it says anything meaningful.
const minimumWeeksForZScore = 3

// ComputeWeeklyInsights buckets the resolved selection per week and enriches
// every bucket with the week-over-week rate delta and a z-score against all
// weeks of the range. The first week carries a nil delta; z-scores are nil
// while fewer than three weeks exist or the counts never vary.
func ComputeWeeklyInsights(resolved *ResolvedSelection, anomalyZScore float64) []flakeanalyticsapi.WeeklyFlakeInsight {
	dateRange := resolved.Selection.DateRange
	if dateRange.IsZero() {
		return []flakeanalyticsapi.WeeklyFlakeInsight{}
	}
	if anomalyZScore <= 0 {
		anomalyZScore = DefaultAnomalyZScore
	}

	weeks := bucketCount(dateRange, week)
	insights := make([]flakeanalyticsapi.WeeklyFlakeInsight, weeks)
	for i := range insights {
		insights[i].WeekStart = dateRange.Start.Add(time.Duration(i) * week)
	}
	for _, event := range resolved.Events {
		index := int(event.OccurredAt.Sub(dateRange.Start) / week)
		insights[index].FailureCount++
	}

	counts := make([]float64, weeks)
	for i := range insights {
		insights[i].FailureRate = float64(insights[i].FailureCount)
		counts[i] = float64(insights[i].FailureCount)
		if i > 0 {
			delta := insights[i].FailureRate - insights[i-1].FailureRate
			insights[i].WoWDelta = &delta
		}
	}

	if weeks >= minimumWeeksForZScore {
		mean, meanErr := stats.Mean(counts)
		deviation, deviationErr := stats.StandardDeviation(counts)
		if meanErr == nil && deviationErr == nil && deviation > 0 {
			for i := range insights {
				z := (counts[i] - mean) / deviation
				insights[i].ZScore = &z
				insights[i].IsAnomalous = z >= anomalyZScore
			}
		}
	}
	return insights
}
