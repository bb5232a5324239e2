package flakeanalyticsquery

import (
	"time"

	"k8s.io/apimachinery/pkg/util/sets"

	"github.com/Pulkitchaturvedi/flakydashboard/pkg/flakeanalytics/flakeanalyticsapi"
)

const (
	// DefaultBucketThresholdDays governs day-vs-week bucketing: ranges
	// spanning more than this many days aggregate per week to keep the
	// series visually tractable.
	DefaultBucketThresholdDays = 90

	day  = 24 * time.Hour
	week = 7 * day
)

// AggregationConfig carries the tunables of the aggregation engine. The zero
// value selects the documented defaults.
type AggregationConfig struct {
	BucketThresholdDays int
}

func (c AggregationConfig) bucketThresholdDays() int {
	if c.BucketThresholdDays <= 0 {
		return DefaultBucketThresholdDays
	}
	return c.BucketThresholdDays
}

// BucketWidth returns the bucket granularity for the given range: one day,
// or one week once the range spans more than the configured threshold.
func (c AggregationConfig) BucketWidth(dateRange flakeanalyticsapi.DateRange) time.Duration {
	spanDays := int(dateRange.End.Sub(dateRange.Start)/day) + 1
	if spanDays > c.bucketThresholdDays() {
		return week
	}
	return day
}

// bucketCount is the number of half-open buckets of the given width needed to
// cover the inclusive range. The range end always falls inside the last
// bucket.
func bucketCount(dateRange flakeanalyticsapi.DateRange, width time.Duration) int {
	return int(dateRange.End.Sub(dateRange.Start)/width) + 1
}

// ComputeKPIs derives the headline scalars for a resolved selection. Counts
// are exact; rates are events per elapsed bucket with no rounding applied.
// The delta compares against the immediately preceding window of equal
// length and is nil when the snapshot's history does not reach back that far.
func ComputeKPIs(resolved *ResolvedSelection, config AggregationConfig) flakeanalyticsapi.KPISnapshot {
	kpis := flakeanalyticsapi.KPISnapshot{
		TotalFlakyTests:  distinctTestCount(resolved.Events),
		UniqueRootCauses: distinctRootCauseCount(resolved.Events),
	}

	dateRange := resolved.Selection.DateRange
	if !resolved.HasHistory || dateRange.IsZero() {
		return kpis
	}

	width := config.BucketWidth(dateRange)
	buckets := bucketCount(dateRange, width)
	kpis.FailureRate = float64(len(resolved.Events)) / float64(buckets)

	windowSpan := time.Duration(buckets) * width
	priorStart := dateRange.Start.Add(-windowSpan)
	if resolved.SnapshotHorizon.Start.After(priorStart) {
		// Not enough history for the prior window: the delta is undefined,
		// never zero.
		return kpis
	}

	priorCount := 0
	for _, event := range resolved.EventsIgnoringDateRange {
		if !event.OccurredAt.Before(priorStart) && event.OccurredAt.Before(dateRange.Start) {
			priorCount++
		}
	}
	priorRate := float64(priorCount) / float64(buckets)
	delta := kpis.FailureRate - priorRate
	kpis.FailureRateDelta = &delta

	return kpis
}

// ComputeTimeSeries buckets the filtered subset over the full selected range.
// The series is continuous: every bucket is present, zero counts included,
// and the counts sum exactly to the subset size.
func ComputeTimeSeries(resolved *ResolvedSelection, config AggregationConfig) []flakeanalyticsapi.TimeSeriesPoint {
	dateRange := resolved.Selection.DateRange
	if dateRange.IsZero() {
		return []flakeanalyticsapi.TimeSeriesPoint{}
	}

	width := config.BucketWidth(dateRange)
	buckets := bucketCount(dateRange, width)

	series := make([]flakeanalyticsapi.TimeSeriesPoint, buckets)
	for i := range series {
		series[i].BucketStart = dateRange.Start.Add(time.Duration(i) * width)
	}
	for _, event := range resolved.Events {
		index := int(event.OccurredAt.Sub(dateRange.Start) / width)
		series[index].EventCount++
	}
	return series
}

func distinctTestCount(events []flakeanalyticsapi.FailureEvent) int {
	tests := sets.String{}
	for _, event := range events {
		tests.Insert(event.TestID)
	}
	return tests.Len()
}

func distinctRootCauseCount(events []flakeanalyticsapi.FailureEvent) int {
	reasons := sets.String{}
	for _, event := range events {
		if event.FailureReason == flakeanalyticsapi.UnclassifiedFailureReason {
			continue
		}
		reasons.Insert(event.FailureReason)
	}
	return reasons.Len()
}
