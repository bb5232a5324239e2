package flakeanalyticsapi

import (
	"time"

	"cloud.google.com/go/bigquery"
)

// FailureEventRow is the BigQuery wire shape of one failure event. Optional
// columns are nullable; conversion to FailureEvent happens during load-time
// normalization.
type FailureEventRow struct {
	TestID        string                 `bigquery:"test_id"`
	TestName      string                 `bigquery:"test_name"`
	Owner         string                 `bigquery:"owner"`
	Platform      string                 `bigquery:"platform"`
	Team          string                 `bigquery:"team"`
	Pipeline      string                 `bigquery:"pipeline"`
	AppVersion    bigquery.NullString    `bigquery:"app_version"`
	OccurredAt    time.Time              `bigquery:"occurred_at"`
	FailureReason bigquery.NullString    `bigquery:"failure_reason"`
	DiagnosticURL bigquery.NullString    `bigquery:"diagnostic_url"`
	TicketURL     bigquery.NullString    `bigquery:"ticket_url"`
}

// ToFailureEvent converts the wire row to the domain shape. Null optional
// columns become empty strings; normalization of the values is the loader's
// responsibility.
func (r *FailureEventRow) ToFailureEvent() FailureEvent {
	event := FailureEvent{
		TestID:     r.TestID,
		TestName:   r.TestName,
		Owner:      r.Owner,
		Platform:   r.Platform,
		Team:       r.Team,
		Pipeline:   r.Pipeline,
		OccurredAt: r.OccurredAt,
	}
	if r.AppVersion.Valid {
		event.AppVersion = r.AppVersion.StringVal
	}
	if r.FailureReason.Valid {
		event.FailureReason = r.FailureReason.StringVal
	}
	if r.DiagnosticURL.Valid {
		event.DiagnosticURL = r.DiagnosticURL.StringVal
	}
	if r.TicketURL.Valid {
		event.TicketURL = r.TicketURL.StringVal
	}
	return event
}
