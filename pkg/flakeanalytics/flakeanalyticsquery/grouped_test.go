package flakeanalyticsquery

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Pulkitchaturvedi/flakydashboard/pkg/flakeanalytics/flakeanalyticsapi"
)

func TestBuildGroupedFailureTable(t *testing.T) {
	older := event("T1", "ios", "mobile", "nightly", "timeout", mustDay(t, "2024-01-01"))
	older.DiagnosticURL = "https://logs.example.com/old"
	newer := event("T1", "ios", "mobile", "nightly", "crash", mustDay(t, "2024-01-03"))
	newer.DiagnosticURL = "https://logs.example.com/new"
	newer.TicketURL = "https://jira.example.com/FLAKE-1"
	single := event("T2", "android", "mobile", "nightly", "timeout", mustDay(t, "2024-01-02"))

	rows := BuildGroupedFailureTable([]flakeanalyticsapi.FailureEvent{older, newer, single})
	require.Len(t, rows, 2)

	// T1 sorts first on occurrence count
	assert.Equal(t, "T1", rows[0].TestID)
	assert.Equal(t, 2, rows[0].OccurrenceCount)
	assert.Equal(t, mustDay(t, "2024-01-03"), rows[0].LastOccurredAt)
	// fields carry from the most recent event of the group
	assert.Equal(t, "https://logs.example.com/new", rows[0].DiagnosticURL)
	assert.Equal(t, "https://jira.example.com/FLAKE-1", rows[0].TicketURL)

	assert.Equal(t, "T2", rows[1].TestID)
	assert.Equal(t, 1, rows[1].OccurrenceCount)
}

func TestBuildGroupedFailureTableNoDuplicates(t *testing.T) {
	snapshot := mobileSnapshot(t)
	resolved, err := Resolve(snapshot, flakeanalyticsapi.FilterSelection{})
	require.NoError(t, err)

	rows := BuildGroupedFailureTable(resolved.Events)
	seen := map[string]bool{}
	total := 0
	for _, row := range rows {
		assert.False(t, seen[row.TestID], "no test may appear twice")
		seen[row.TestID] = true
		total += row.OccurrenceCount
	}
	assert.Equal(t, len(resolved.Events), total, "occurrence counts must sum to the subset size")
}

func TestBuildGroupedFailureTableTieBreaks(t *testing.T) {
	events := []flakeanalyticsapi.FailureEvent{
		event("T2", "ios", "mobile", "nightly", "timeout", mustDay(t, "2024-01-02")),
		event("T1", "ios", "mobile", "nightly", "timeout", mustDay(t, "2024-01-02")),
		event("T3", "ios", "mobile", "nightly", "timeout", mustDay(t, "2024-01-03")),
	}

	rows := BuildGroupedFailureTable(events)
	require.Len(t, rows, 3)
	// equal counts: later last-occurrence first, then TestID ascending
	assert.Equal(t, "T3", rows[0].TestID)
	assert.Equal(t, "T1", rows[1].TestID)
	assert.Equal(t, "T2", rows[2].TestID)
}

func TestBuildGroupedFailureTableEmptyInput(t *testing.T) {
	assert.Empty(t, BuildGroupedFailureTable(nil))
}
