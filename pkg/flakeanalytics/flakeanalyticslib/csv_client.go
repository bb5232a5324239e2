package flakeanalyticslib

import (
	"context"
	"encoding/csv"
	"io"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/afero"

	"github.com/Pulkitchaturvedi/flakydashboard/pkg/flakeanalytics/flakeanalyticsapi"
)

var requiredCSVColumns = []string{
	"test_id", "test_name", "owner", "platform", "team", "pipeline", "occurred_at", "failure_reason",
}

var optionalCSVColumns = []string{
	"app_version", "diagnostic_url", "ticket_url",
}

// timestampLayouts are accepted for the occurred_at column, most specific
// first.
var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
}

type csvEventClient struct {
	fs   afero.Fs
	path string
}

// NewCSVEventClient reads failure events from a flat-file export. The file
// must carry a header row with all required columns; optional columns may be
// absent entirely.
func NewCSVEventClient(fs afero.Fs, path string) EventClient {
	return &csvEventClient{fs: fs, path: path}
}

func (c *csvEventClient) ListFailureEvents(ctx context.Context) ([]flakeanalyticsapi.FailureEvent, error) {
	file, err := c.fs.Open(c.path)
	if err != nil {
		return nil, flakeanalyticsapi.NewConfigurationError("failed to open csv export %q: %v", c.path, err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	header, err := reader.Read()
	if err != nil {
		return nil, flakeanalyticsapi.NewConfigurationError("failed to read csv header from %q: %v", c.path, err)
	}

	columnIndex := map[string]int{}
	for i, name := range header {
		columnIndex[strings.ToLower(strings.TrimSpace(name))] = i
	}
	missing := []string{}
	for _, name := range requiredCSVColumns {
		if _, ok := columnIndex[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return nil, flakeanalyticsapi.NewConfigurationError("csv export %q is missing required columns: %s", c.path, strings.Join(missing, ", "))
	}

	events := []flakeanalyticsapi.FailureEvent{}
	line := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, errors.Wrapf(err, "failed to parse csv record at line %d of %q", line, c.path)
		}

		field := func(name string) string {
			index, ok := columnIndex[name]
			if !ok || index >= len(record) {
				return ""
			}
			return record[index]
		}
		occurredAt, err := parseTimestamp(field("occurred_at"))
		if err != nil {
			return nil, errors.Wrapf(err, "invalid occurred_at at line %d of %q", line, c.path)
		}

		event, err := NormalizeEvent(flakeanalyticsapi.FailureEvent{
			TestID:        field("test_id"),
			TestName:      field("test_name"),
			Owner:         field("owner"),
			Platform:      field("platform"),
			Team:          field("team"),
			Pipeline:      field("pipeline"),
			AppVersion:    field("app_version"),
			OccurredAt:    occurredAt,
			FailureReason: field("failure_reason"),
			DiagnosticURL: field("diagnostic_url"),
			TicketURL:     field("ticket_url"),
		})
		if err != nil {
			return nil, errors.Wrapf(err, "invalid failure event at line %d of %q", line, c.path)
		}
		events = append(events, event)
	}
	return events, nil
}

func parseTimestamp(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	var lastErr error
	for _, layout := range timestampLayouts {
		parsed, err := time.Parse(layout, value)
		if err == nil {
			return parsed.UTC(), nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}
