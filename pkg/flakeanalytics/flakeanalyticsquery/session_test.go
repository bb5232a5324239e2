package flakeanalyticsquery

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Pulkitchaturvedi/flakydashboard/pkg/flakeanalytics/flakeanalyticsapi"
)

func TestBuildDashboard(t *testing.T) {
	snapshot := mobileSnapshot(t)

	result, err := BuildDashboard(context.TODO(), snapshot, flakeanalyticsapi.FilterSelection{}, DashboardOptions{})
	require.NoError(t, err)

	assert.Equal(t, 2, result.KPIs.TotalFlakyTests)
	assert.Equal(t, 1, result.KPIs.UniqueRootCauses)
	assert.InDelta(t, 1.0, result.KPIs.FailureRate, 0.0001)
	assert.Len(t, result.GroupedFailures, 2)
	require.NotNil(t, result.TeamPlatform)
	assert.Contains(t, result.TeamPlatform.RowValues, "mobile")
	require.NotNil(t, result.PlatformPipeline)
	assert.ElementsMatch(t, []string{"android", "ios"}, result.PlatformPipeline.RowValues)
	require.Len(t, result.TopReasons.Top, 1)
	assert.Equal(t, "timeout", result.TopReasons.Top[0].Reason)
	assert.Equal(t, 3, result.TopReasons.TotalCount)
	assert.NotEmpty(t, result.TimeSeries)
	assert.NotEmpty(t, result.WeeklyInsights)
	// the concrete range is echoed back so callers see what was computed
	assert.False(t, result.Selection.DateRange.IsZero())
}

func TestBuildDashboardFiltered(t *testing.T) {
	snapshot := mobileSnapshot(t)

	result, err := BuildDashboard(context.TODO(), snapshot, flakeanalyticsapi.FilterSelection{Platform: "ios"}, DashboardOptions{})
	require.NoError(t, err)

	assert.Equal(t, 1, result.KPIs.TotalFlakyTests)
	require.Len(t, result.GroupedFailures, 1)
	assert.Equal(t, "T1", result.GroupedFailures[0].TestID)
}

func TestBuildDashboardInvalidRange(t *testing.T) {
	snapshot := mobileSnapshot(t)

	_, err := BuildDashboard(context.TODO(), snapshot, flakeanalyticsapi.FilterSelection{
		DateRange: flakeanalyticsapi.DateRange{
			Start: mustDay(t, "2024-01-03"),
			End:   mustDay(t, "2024-01-01"),
		},
	}, DashboardOptions{})
	require.Error(t, err)
	assert.True(t, flakeanalyticsapi.IsValidationError(err))
}

func TestBuildDashboardEmptySelection(t *testing.T) {
	snapshot := mobileSnapshot(t)

	result, err := BuildDashboard(context.TODO(), snapshot, flakeanalyticsapi.FilterSelection{Platform: "web"}, DashboardOptions{})
	require.NoError(t, err)

	assert.Zero(t, result.KPIs.TotalFlakyTests)
	assert.Empty(t, result.GroupedFailures)
	assert.Empty(t, result.TopReasons.Top)
}

func TestCoordinatorLastSelectionWins(t *testing.T) {
	coordinator := &Coordinator{}

	first := coordinator.Begin()
	second := coordinator.Begin()

	assert.True(t, coordinator.Superseded(first))
	assert.False(t, coordinator.Superseded(second))

	stale := &DashboardResult{}
	assert.Nil(t, coordinator.Accept(first, stale), "a superseded result is discarded")
	assert.Same(t, stale, coordinator.Accept(second, stale))
}
