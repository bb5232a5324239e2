package flakeanalyticslib

import (
	"strings"

	"github.com/Pulkitchaturvedi/flakydashboard/pkg/flakeanalytics/flakeanalyticsapi"
)

// NormalizeEvent canonicalizes one raw event: categorical dimensions are
// lowercased and trimmed so filter equality checks are exact-match, free-form
// fields are trimmed, and an absent failure reason becomes the unclassified
// sentinel. Returns an error for rows violating the dataset invariants.
func NormalizeEvent(event flakeanalyticsapi.FailureEvent) (flakeanalyticsapi.FailureEvent, error) {
	event.TestID = strings.TrimSpace(event.TestID)
	event.TestName = strings.TrimSpace(event.TestName)
	event.Owner = strings.TrimSpace(event.Owner)
	event.Platform = normalizeCategorical(event.Platform)
	event.Team = normalizeCategorical(event.Team)
	event.Pipeline = normalizeCategorical(event.Pipeline)
	event.AppVersion = normalizeCategorical(event.AppVersion)
	event.FailureReason = normalizeCategorical(event.FailureReason)
	event.DiagnosticURL = strings.TrimSpace(event.DiagnosticURL)
	event.TicketURL = strings.TrimSpace(event.TicketURL)

	if event.TestID == "" {
		return event, flakeanalyticsapi.NewConfigurationError("failure event is missing test_id")
	}
	if event.OccurredAt.IsZero() {
		return event, flakeanalyticsapi.NewConfigurationError("failure event %q is missing occurred_at", event.TestID)
	}
	if event.FailureReason == "" {
		event.FailureReason = flakeanalyticsapi.UnclassifiedFailureReason
	}
	return event, nil
}

func normalizeCategorical(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}
