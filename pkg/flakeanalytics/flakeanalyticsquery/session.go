package flakeanalyticsquery

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/Pulkitchaturvedi/flakydashboard/pkg/flakeanalytics/flakeanalyticsapi"
)

// DashboardOptions carries the per-request tunables of a dashboard
// computation. The zero value selects all documented defaults.
type DashboardOptions struct {
	TopN          int
	Aggregation   AggregationConfig
	AnomalyZScore float64
}

// DashboardResult bundles every derived structure for one filter selection.
// All fields are value-equal, side-effect-free outputs of pure functions over
// the snapshot; nothing in here is mutated after construction.
type DashboardResult struct {
	Selection flakeanalyticsapi.FilterSelection `json:"selection"`
	Options   flakeanalyticsapi.FilterOptions   `json:"filter_options"`
	KPIs      flakeanalyticsapi.KPISnapshot     `json:"kpis"`

	TimeSeries       []flakeanalyticsapi.TimeSeriesPoint    `json:"time_series"`
	TeamPlatform     *flakeanalyticsapi.CrossTab            `json:"team_platform"`
	PlatformPipeline *flakeanalyticsapi.CrossTab            `json:"platform_pipeline"`
	TopReasons       flakeanalyticsapi.ReasonRanking        `json:"top_reasons"`
	GroupedFailures  []flakeanalyticsapi.GroupedFailureRow  `json:"grouped_failures"`
	WeeklyInsights   []flakeanalyticsapi.WeeklyFlakeInsight `json:"weekly_insights"`
}

// BuildDashboard resolves the filters once and then derives every downstream
// structure concurrently; the five consumers have no ordering dependency
// among each other. A selection yielding zero rows produces zeroed
// structures, not an error.
func BuildDashboard(ctx context.Context, snapshot *flakeanalyticsapi.Snapshot, selection flakeanalyticsapi.FilterSelection, options DashboardOptions) (*DashboardResult, error) {
	resolved, err := Resolve(snapshot, selection)
	if err != nil {
		return nil, err
	}

	result := &DashboardResult{
		Selection: resolved.Selection,
		Options:   resolved.Options,
	}

	group, _ := errgroup.WithContext(ctx)
	group.Go(func() error {
		result.KPIs = ComputeKPIs(resolved, options.Aggregation)
		result.TimeSeries = ComputeTimeSeries(resolved, options.Aggregation)
		return nil
	})
	group.Go(func() error {
		crossTab, err := BuildCrossTab(resolved.Events, DimensionTeam, DimensionPlatform)
		if err != nil {
			return err
		}
		result.TeamPlatform = crossTab
		return nil
	})
	group.Go(func() error {
		crossTab, err := BuildCrossTab(resolved.Events, DimensionPlatform, DimensionPipeline)
		if err != nil {
			return err
		}
		result.PlatformPipeline = crossTab
		return nil
	})
	group.Go(func() error {
		result.TopReasons = TopFailureReasons(resolved.Events, options.TopN)
		return nil
	})
	group.Go(func() error {
		result.GroupedFailures = BuildGroupedFailureTable(resolved.Events)
		return nil
	})
	group.Go(func() error {
		result.WeeklyInsights = ComputeWeeklyInsights(resolved, options.AnomalyZScore)
		return nil
	})
	if err := group.Wait(); err != nil {
		return nil, err
	}
	return result, nil
}

// Coordinator implements last-selection-wins for in-flight recomputations:
// every new selection begins a new generation, and results belonging to an
// older generation are discarded rather than waited on.
type Coordinator struct {
	generation atomic.Int64
}

// Begin registers a new computation and supersedes all earlier ones.
func (c *Coordinator) Begin() int64 {
	return c.generation.Add(1)
}

// Superseded reports whether a newer computation has begun since.
func (c *Coordinator) Superseded(generation int64) bool {
	return c.generation.Load() != generation
}

// Accept returns the result when its generation is still current and nil
// when it has been superseded.
func (c *Coordinator) Accept(generation int64, result *DashboardResult) *DashboardResult {
	if c.Superseded(generation) {
		return nil
	}
	return result
}
