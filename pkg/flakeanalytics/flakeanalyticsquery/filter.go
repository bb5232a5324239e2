package flakeanalyticsquery

import (
	"sort"

	"github.com/blang/semver"
	"k8s.io/apimachinery/pkg/util/sets"

	"github.com/Pulkitchaturvedi/flakydashboard/pkg/flakeanalytics/flakeanalyticsapi"
)

// Dimension names understood by the filter resolver and the cross-tab
// builder.
const (
	DimensionPlatform   = "platform"
	DimensionTeam       = "team"
	DimensionPipeline   = "pipeline"
	DimensionAppVersion = "app_version"
)

// dimensionDescriptor drives the cascading filter resolution generically: the
// resolver walks an ordered list of descriptors instead of special-casing
// each dimension.
type dimensionDescriptor struct {
	name     string
	accessor func(flakeanalyticsapi.FailureEvent) string
	selected func(flakeanalyticsapi.FilterSelection) string
}

// cascade is the fixed dependency order of the categorical dimensions that
// precede the date range: platform constrains team, team constrains pipeline.
// The app-version stage comes after date filtering because its option set is
// constrained by pipeline and date range together.
var cascade = []dimensionDescriptor{
	{
		name:     DimensionPlatform,
		accessor: func(e flakeanalyticsapi.FailureEvent) string { return e.Platform },
		selected: func(s flakeanalyticsapi.FilterSelection) string { return s.Platform },
	},
	{
		name:     DimensionTeam,
		accessor: func(e flakeanalyticsapi.FailureEvent) string { return e.Team },
		selected: func(s flakeanalyticsapi.FilterSelection) string { return s.Team },
	},
	{
		name:     DimensionPipeline,
		accessor: func(e flakeanalyticsapi.FailureEvent) string { return e.Pipeline },
		selected: func(s flakeanalyticsapi.FilterSelection) string { return s.Pipeline },
	},
}

var appVersionDimension = dimensionDescriptor{
	name:     DimensionAppVersion,
	accessor: func(e flakeanalyticsapi.FailureEvent) string { return e.AppVersion },
	selected: func(s flakeanalyticsapi.FilterSelection) string { return s.AppVersion },
}

func accessorForDimension(name string) (func(flakeanalyticsapi.FailureEvent) string, bool) {
	for _, descriptor := range append(append([]dimensionDescriptor{}, cascade...), appVersionDimension) {
		if descriptor.name == name {
			return descriptor.accessor, true
		}
	}
	return nil, false
}

// ResolvedSelection is the output of the filter resolver: the narrowed
// dataset, the refreshed per-dimension option sets, and the selection with
// its date range made concrete. EventsIgnoringDateRange carries the rows
// matching the categorical constraints over the whole horizon; the
// aggregation engine uses it to count the preceding comparison window.
type ResolvedSelection struct {
	Selection flakeanalyticsapi.FilterSelection
	Events    []flakeanalyticsapi.FailureEvent
	Options   flakeanalyticsapi.FilterOptions

	EventsIgnoringDateRange []flakeanalyticsapi.FailureEvent

	// SnapshotHorizon is the full data horizon of the snapshot; HasHistory is
	// false when the snapshot was empty.
	SnapshotHorizon flakeanalyticsapi.DateRange
	HasHistory      bool
}

// Resolve applies the selection to the snapshot dimension by dimension in
// dependency order. At each step the candidate option set for the next
// dimension is projected from the rows satisfying all filters applied so far,
// so narrowing an upstream dimension immediately narrows the downstream
// option lists and clearing it restores them. An empty result set is a valid
// output, not an error.
func Resolve(snapshot *flakeanalyticsapi.Snapshot, selection flakeanalyticsapi.FilterSelection) (*ResolvedSelection, error) {
	dateRange := selection.DateRange
	if dateRange.IsZero() {
		if horizon, ok := snapshot.Horizon(); ok {
			dateRange = horizon
		}
	}
	if dateRange.Start.After(dateRange.End) {
		return nil, flakeanalyticsapi.NewValidationError(
			"invalid date range: start %s is after end %s", dateRange.Start.Format("2006-01-02"), dateRange.End.Format("2006-01-02"))
	}
	selection.DateRange = dateRange

	options := flakeanalyticsapi.FilterOptions{}
	rows := snapshot.Events
	for _, descriptor := range cascade {
		values := distinctValues(rows, descriptor.accessor)
		switch descriptor.name {
		case DimensionPlatform:
			options.Platforms = values
		case DimensionTeam:
			options.Teams = values
		case DimensionPipeline:
			options.Pipelines = values
		}
		rows = filterByValue(rows, descriptor.accessor, descriptor.selected(selection))
	}

	categoricalRows := rows
	rows = filterByDateRange(rows, dateRange)

	options.AppVersions = sortVersions(distinctValues(rows, appVersionDimension.accessor))
	rows = filterByValue(rows, appVersionDimension.accessor, selection.AppVersion)
	if selection.AppVersion != "" {
		categoricalRows = filterByValue(categoricalRows, appVersionDimension.accessor, selection.AppVersion)
	}

	resolved := &ResolvedSelection{
		Selection:               selection,
		Events:                  rows,
		Options:                 options,
		EventsIgnoringDateRange: categoricalRows,
	}
	if horizon, ok := snapshot.Horizon(); ok {
		resolved.SnapshotHorizon = horizon
		resolved.HasHistory = true
	}
	return resolved, nil
}

// filterByValue is wildcard-aware: the empty selected value passes every row.
// A concrete value requires exact equality, so events without an app version
// drop out only once a specific version is selected.
func filterByValue(events []flakeanalyticsapi.FailureEvent, accessor func(flakeanalyticsapi.FailureEvent) string, selected string) []flakeanalyticsapi.FailureEvent {
	if selected == "" {
		return events
	}
	matched := make([]flakeanalyticsapi.FailureEvent, 0, len(events))
	for _, event := range events {
		if accessor(event) == selected {
			matched = append(matched, event)
		}
	}
	return matched
}

func filterByDateRange(events []flakeanalyticsapi.FailureEvent, dateRange flakeanalyticsapi.DateRange) []flakeanalyticsapi.FailureEvent {
	matched := make([]flakeanalyticsapi.FailureEvent, 0, len(events))
	for _, event := range events {
		if dateRange.Contains(event.OccurredAt) {
			matched = append(matched, event)
		}
	}
	return matched
}

func distinctValues(events []flakeanalyticsapi.FailureEvent, accessor func(flakeanalyticsapi.FailureEvent) string) []string {
	values := sets.String{}
	for _, event := range events {
		if value := accessor(event); value != "" {
			values.Insert(value)
		}
	}
	return values.List()
}

// sortVersions orders semver-parseable versions ascending and appends the
// remaining values lexicographically, so option lists stay stable even when
// version stamping is inconsistent.
func sortVersions(values []string) []string {
	type parsedVersion struct {
		raw     string
		version semver.Version
	}
	parseable := []parsedVersion{}
	unparseable := []string{}
	for _, value := range values {
		if version, err := semver.ParseTolerant(value); err == nil {
			parseable = append(parseable, parsedVersion{raw: value, version: version})
		} else {
			unparseable = append(unparseable, value)
		}
	}
	sort.SliceStable(parseable, func(i, j int) bool {
		if parseable[i].version.EQ(parseable[j].version) {
			return parseable[i].raw < parseable[j].raw
		}
		return parseable[i].version.LT(parseable[j].version)
	})
	sort.Strings(unparseable)

	ordered := make([]string, 0, len(values))
	for _, entry := range parseable {
		ordered = append(ordered, entry.raw)
	}
	return append(ordered, unparseable...)
}
