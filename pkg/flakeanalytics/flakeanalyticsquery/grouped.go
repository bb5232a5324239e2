package flakeanalyticsquery

import (
	"sort"

	"github.com/Pulkitchaturvedi/flakydashboard/pkg/flakeanalytics/flakeanalyticsapi"
)

// BuildGroupedFailureTable collapses the filtered events into one summary row
// per test. TestName, Owner and the URLs carry over from the most recent
// event of the group; on equal timestamps the first-seen event wins, keeping
// the output deterministic. Rows sort by occurrence count descending, then
// last occurrence descending, then TestID ascending.
func BuildGroupedFailureTable(events []flakeanalyticsapi.FailureEvent) []flakeanalyticsapi.GroupedFailureRow {
	byTest := map[string]*flakeanalyticsapi.GroupedFailureRow{}
	order := []string{}
	for _, event := range events {
		row, ok := byTest[event.TestID]
		if !ok {
			row = &flakeanalyticsapi.GroupedFailureRow{TestID: event.TestID}
			byTest[event.TestID] = row
			order = append(order, event.TestID)
		}
		row.OccurrenceCount++
		if event.OccurredAt.After(row.LastOccurredAt) {
			row.LastOccurredAt = event.OccurredAt
			row.TestName = event.TestName
			row.Owner = event.Owner
			row.DiagnosticURL = event.DiagnosticURL
			row.TicketURL = event.TicketURL
		}
	}

	rows := make([]flakeanalyticsapi.GroupedFailureRow, 0, len(order))
	for _, testID := range order {
		rows = append(rows, *byTest[testID])
	}
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].OccurrenceCount != rows[j].OccurrenceCount {
			return rows[i].OccurrenceCount > rows[j].OccurrenceCount
		}
		if !rows[i].LastOccurredAt.Equal(rows[j].LastOccurredAt) {
			return rows[i].LastOccurredAt.After(rows[j].LastOccurredAt)
		}
		return rows[i].TestID < rows[j].TestID
	})
	return rows
}
