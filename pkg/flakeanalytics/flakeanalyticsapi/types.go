package flakeanalyticsapi

import (
	"sort"
	"time"
)

// UnclassifiedFailureReason is the sentinel stored when an event carries no
// root-cause classification. It is applied at load time so that downstream
// consumers never see an empty reason string.
const UnclassifiedFailureReason = "unclassified"

// FailureEvent is one row of the analytics dataset: a single flaky-test
// failure occurrence. Categorical dimension values (Platform, Team, Pipeline,
// AppVersion) are case/whitespace-normalized at load time so equality checks
// are exact-match.
type FailureEvent struct {
	TestID        string    `json:"test_id"`
	TestName      string    `json:"test_name"`
	Owner         string    `json:"owner"`
	Platform      string    `json:"platform"`
	Team          string    `json:"team"`
	Pipeline      string    `json:"pipeline"`
	AppVersion    string    `json:"app_version,omitempty"`
	OccurredAt    time.Time `json:"occurred_at"`
	FailureReason string    `json:"failure_reason"`
	DiagnosticURL string    `json:"diagnostic_url,omitempty"`
	TicketURL     string    `json:"ticket_url,omitempty"`
}

// DateRange is inclusive on both ends.
type DateRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

func (r DateRange) Contains(t time.Time) bool {
	return !t.Before(r.Start) && !t.After(r.End)
}

func (r DateRange) IsZero() bool {
	return r.Start.IsZero() && r.End.IsZero()
}

// FilterSelection captures the user's current filter state. The empty string
// means "no restriction" for the four categorical dimensions. DateRange is
// always effective: a zero range means the full data horizon of the snapshot.
// Selections are value types, recreated on every interaction and never
// mutated in place.
type FilterSelection struct {
	Platform   string    `json:"platform,omitempty"`
	Team       string    `json:"team,omitempty"`
	Pipeline   string    `json:"pipeline,omitempty"`
	AppVersion string    `json:"app_version,omitempty"`
	DateRange  DateRange `json:"date_range"`
}

// FilterOptions lists, per dimension, the values that would yield a non-empty
// result if selected next, computed against upstream selections only.
type FilterOptions struct {
	Platforms   []string `json:"platforms"`
	Teams       []string `json:"teams"`
	Pipelines   []string `json:"pipelines"`
	AppVersions []string `json:"app_versions"`
}

// KPISnapshot holds the headline scalars for the current selection. It is
// derived, never stored, and recomputed on every filter change.
type KPISnapshot struct {
	TotalFlakyTests  int     `json:"total_flaky_tests"`
	UniqueRootCauses int     `json:"unique_root_causes"`
	FailureRate      float64 `json:"failure_rate"`
	// FailureRateDelta is nil when the snapshot does not reach far enough
	// back to cover the immediately preceding window of equal length.
	FailureRateDelta *float64 `json:"failure_rate_delta"`
}

// TimeSeriesPoint is one bucket of the failure-count series. Buckets are
/// half-open [BucketStart, BucketStart+width) and the series is continuous:
// zero-count buckets are present, never skipped.
type TimeSeriesPoint struct {
	BucketStart time.Time `json:"bucket_start"`
	EventCount  int       `json:"event_count"`
}

// CrossTabCell holds the count for a (row value, column value) pair and the
// row-normalized rate.
type CrossTabCell struct {
	Count int     `json:"count"`
	Rate  float64 `json:"rate"`
}

// CrossTab is a dense two-dimensional contingency aggregation over the
// values of both dimensions actually occurring in the filtered subset.
// Missing pairs are explicit zero cells.
type CrossTab struct {
	RowDimension    string                             `json:"row_dimension"`
	ColumnDimension string                             `json:"column_dimension"`
	RowValues       []string                           `json:"row_values"`
	ColumnValues    []string                           `json:"column_values"`
	Cells           map[string]map[string]CrossTabCell `json:"cells"`
}

// ReasonCount is one entry of the failure-reason ranking.
type ReasonCount struct {
	Reason string `json:"reason"`
	Count  int    `json:"count"`
}

// ReasonRanking is the top-N failure reasons plus an aggregated remainder so
// that Top counts + OtherCount always reconcile to TotalCount.
type ReasonRanking struct {
	Top        []ReasonCount `json:"top"`
	OtherCount int           `json:"other_count"`
	TotalCount int           `json:"total_count"`
}

// GroupedFailureRow summarizes every failure of one test within the filtered
// subset. TestName, Owner and the URLs are carried from the most recent event
// of the group.
type GroupedFailureRow struct {
	TestID          string    `json:"test_id"`
	TestName        string    `json:"test_name"`
	Owner           string    `json:"owner"`
	OccurrenceCount int       `json:"occurrence_count"`
	LastOccurredAt  time.Time `json:"last_occurred_at"`
	DiagnosticURL   string    `json:"diagnostic_url,omitempty"`
	TicketURL       string    `json:"ticket_url,omitempty"`
}

// WeeklyFlakeInsight is one calendar-week bucket of the filtered subset,
// enriched with week-over-week movement and a z-score against the other
// weeks of the range.
type WeeklyFlakeInsight struct {
	WeekStart    time.Time `json:"week_start"`
	FailureCount int       `json:"failure_count"`
	FailureRate  float64   `json:"failure_rate"`
	WoWDelta     *float64  `json:"wow_delta"`
	ZScore       *float64  `json:"z_score"`
	IsAnomalous  bool      `json:"is_anomalous"`
}

// Snapshot is the immutable in-memory dataset for the configured time
// horizon. Events are sorted by OccurredAt, then TestID, and deduplicated on
// the (TestID, OccurredAt) pair. Callers must treat Events as read-only;
// concurrent sessions share a single snapshot without locking.
type Snapshot struct {
	Events   []FailureEvent
	LoadedAt time.Time
}

// NewSnapshot sorts and deduplicates the given events. The first occurrence
// of a duplicate (TestID, OccurredAt) pair wins.
func NewSnapshot(events []FailureEvent, loadedAt time.Time) *Snapshot {
	sorted := make([]FailureEvent, len(events))
	copy(sorted, events)
	sort.SliceStable(sorted, func(i, j int) bool {
		if !sorted[i].OccurredAt.Equal(sorted[j].OccurredAt) {
			return sorted[i].OccurredAt.Before(sorted[j].OccurredAt)
		}
		return sorted[i].TestID < sorted[j].TestID
	})

	type eventKey struct {
		testID     string
		occurredAt time.Time
	}
	seen := map[eventKey]bool{}
	deduped := make([]FailureEvent, 0, len(sorted))
	for _, event := range sorted {
		key := eventKey{testID: event.TestID, occurredAt: event.OccurredAt}
		if seen[key] {
			continue
		}
		seen[key] = true
		deduped = append(deduped, event)
	}

	return &Snapshot{Events: deduped, LoadedAt: loadedAt}
}

// Horizon returns the full data horizon of the snapshot. ok is false when the
// snapshot holds no events.
func (s *Snapshot) Horizon() (DateRange, bool) {
	if len(s.Events) == 0 {
		return DateRange{}, false
	}
	return DateRange{
		Start: s.Events[0].OccurredAt,
		End:   s.Events[len(s.Events)-1].OccurredAt,
	}, true
}
