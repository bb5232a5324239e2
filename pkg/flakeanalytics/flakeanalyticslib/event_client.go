package flakeanalyticslib

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/iterator"

	"github.com/Pulkitchaturvedi/flakydashboard/pkg/flakeanalytics/flakeanalyticsapi"
)

// EventClient is the single read boundary to the data source: a warehouse
// query and a flat-file export are treated identically once rows are
// normalized into the FailureEvent shape.
type EventClient interface {
	ListFailureEvents(ctx context.Context) ([]flakeanalyticsapi.FailureEvent, error)
}

type bigQueryEventClient struct {
	dataCoordinates BigQueryDataCoordinates
	client          *bigquery.Client
}

func NewBigQueryEventClient(dataCoordinates BigQueryDataCoordinates, client *bigquery.Client) EventClient {
	return &bigQueryEventClient{
		dataCoordinates: dataCoordinates,
		client:          client,
	}
}

func (c *bigQueryEventClient) ListFailureEvents(ctx context.Context) ([]flakeanalyticsapi.FailureEvent, error) {
	queryString := c.dataCoordinates.SubstituteTableLocation(
		`SELECT test_id, test_name, owner, platform, team, pipeline, app_version, occurred_at, failure_reason, diagnostic_url, ticket_url
FROM TABLE_LOCATION
ORDER BY occurred_at ASC
`)

	query := c.client.Query(queryString)
	rows, err := query.Read(ctx)
	if err != nil {
		// A failing SELECT over the required columns means the table does not
		// have the shape this core needs; that is a configuration problem,
		// not a per-row one.
		return nil, flakeanalyticsapi.NewConfigurationError("failed to query failure event table with %q: %v", queryString, err)
	}

	events := []flakeanalyticsapi.FailureEvent{}
	for {
		row := &flakeanalyticsapi.FailureEventRow{}
		err = rows.Next(row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read failure event row: %w", err)
		}
		event, err := NormalizeEvent(row.ToFailureEvent())
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	return events, nil
}
