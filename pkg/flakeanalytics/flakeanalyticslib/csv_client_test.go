package flakeanalyticslib

import (
	"context"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Pulkitchaturvedi/flakydashboard/pkg/flakeanalytics/flakeanalyticsapi"
)

func writeCSV(t *testing.T, content string) (afero.Fs, string) {
	t.Helper()

	fs := afero.NewMemMapFs()
	path := "/exports/flaky.csv"
	require.NoError(t, afero.WriteFile(fs, path, []byte(content), 0644))
	return fs, path
}

func TestCSVEventClient(t *testing.T) {
	fs, path := writeCSV(t, `test_id,test_name,owner,platform,team,pipeline,occurred_at,failure_reason,app_version,diagnostic_url,ticket_url
T1,login renders,alice,iOS ,Mobile,nightly,2024-01-01T08:00:00Z,Timeout,1.2.0,https://logs.example.com/1,
T2,checkout total,bob,android,mobile,nightly,2024-01-02 09:30:00,,,,
`)

	events, err := NewCSVEventClient(fs, path).ListFailureEvents(context.TODO())
	require.NoError(t, err)
	require.Len(t, events, 2)

	first := events[0]
	assert.Equal(t, "T1", first.TestID)
	assert.Equal(t, "ios", first.Platform, "categorical values are lowercased and trimmed")
	assert.Equal(t, "mobile", first.Team)
	assert.Equal(t, "timeout", first.FailureReason)
	assert.Equal(t, "1.2.0", first.AppVersion)
	assert.Equal(t, "https://logs.example.com/1", first.DiagnosticURL)
	assert.Equal(t, time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC), first.OccurredAt)

	second := events[1]
	assert.Equal(t, flakeanalyticsapi.UnclassifiedFailureReason, second.FailureReason, "an empty reason maps to the sentinel")
	assert.Empty(t, second.AppVersion)
	assert.Equal(t, time.Date(2024, 1, 2, 9, 30, 0, 0, time.UTC), second.OccurredAt)
}

func TestCSVEventClientOptionalColumnsAbsent(t *testing.T) {
	fs, path := writeCSV(t, `test_id,test_name,owner,platform,team,pipeline,occurred_at,failure_reason
T1,login renders,alice,ios,mobile,nightly,2024-01-01,timeout
`)

	events, err := NewCSVEventClient(fs, path).ListFailureEvents(context.TODO())
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Empty(t, events[0].AppVersion)
	assert.Empty(t, events[0].DiagnosticURL)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), events[0].OccurredAt)
}

func TestCSVEventClientMissingRequiredColumns(t *testing.T) {
	fs, path := writeCSV(t, `test_id,test_name,platform,team,pipeline,failure_reason
T1,login renders,ios,mobile,nightly,timeout
`)

	_, err := NewCSVEventClient(fs, path).ListFailureEvents(context.TODO())
	require.Error(t, err)
	assert.True(t, flakeanalyticsapi.IsConfigurationError(err))
	assert.Contains(t, err.Error(), "owner")
	assert.Contains(t, err.Error(), "occurred_at")
}

func TestCSVEventClientMissingTestID(t *testing.T) {
	fs, path := writeCSV(t, `test_id,test_name,owner,platform,team,pipeline,occurred_at,failure_reason
,login renders,alice,ios,mobile,nightly,2024-01-01,timeout
`)

	_, err := NewCSVEventClient(fs, path).ListFailureEvents(context.TODO())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 2")
}

func TestCSVEventClientBadTimestamp(t *testing.T) {
	fs, path := writeCSV(t, `test_id,test_name,owner,platform,team,pipeline,occurred_at,failure_reason
T1,login renders,alice,ios,mobile,nightly,yesterday,timeout
`)

	_, err := NewCSVEventClient(fs, path).ListFailureEvents(context.TODO())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid occurred_at")
}

func TestCSVEventClientMissingFile(t *testing.T) {
	_, err := NewCSVEventClient(afero.NewMemMapFs(), "/missing.csv").ListFailureEvents(context.TODO())
	require.Error(t, err)
	assert.True(t, flakeanalyticsapi.IsConfigurationError(err))
}
