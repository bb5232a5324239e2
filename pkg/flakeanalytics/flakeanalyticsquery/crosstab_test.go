package flakeanalyticsquery

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Pulkitchaturvedi/flakydashboard/pkg/flakeanalytics/flakeanalyticsapi"
)

func TestBuildCrossTabDenseMatrix(t *testing.T) {
	events := []flakeanalyticsapi.FailureEvent{
		event("T1", "ios", "mobile", "nightly", "timeout", mustDay(t, "2024-01-01")),
		event("T1", "ios", "mobile", "nightly", "timeout", mustDay(t, "2024-01-03")),
		event("T2", "android", "mobile", "nightly", "timeout", mustDay(t, "2024-01-02")),
		event("T3", "android", "web", "merge", "crash", mustDay(t, "2024-01-02")),
	}

	crossTab, err := BuildCrossTab(events, DimensionTeam, DimensionPlatform)
	require.NoError(t, err)

	assert.Equal(t, []string{"mobile", "web"}, crossTab.RowValues)
	assert.Equal(t, []string{"android", "ios"}, crossTab.ColumnValues)

	// the web team never failed on ios: the cell exists and is an explicit zero
	webRow := crossTab.Cells["web"]
	require.Contains(t, webRow, "ios")
	assert.Equal(t, flakeanalyticsapi.CrossTabCell{Count: 0, Rate: 0}, webRow["ios"])

	expectedMobile := map[string]flakeanalyticsapi.CrossTabCell{
		"android": {Count: 1, Rate: 1.0 / 3.0},
		"ios":     {Count: 2, Rate: 2.0 / 3.0},
	}
	if diff := cmp.Diff(expectedMobile, crossTab.Cells["mobile"]); diff != "" {
		t.Errorf("unexpected mobile row: %v", diff)
	}
}

func TestBuildCrossTabRowInvariants(t *testing.T) {
	events := []flakeanalyticsapi.FailureEvent{
		event("T1", "ios", "mobile", "nightly", "timeout", mustDay(t, "2024-01-01")),
		event("T2", "android", "mobile", "nightly", "timeout", mustDay(t, "2024-01-02")),
		event("T3", "android", "web", "merge", "crash", mustDay(t, "2024-01-02")),
		event("T4", "android", "web", "merge", "crash", mustDay(t, "2024-01-03")),
	}

	crossTab, err := BuildCrossTab(events, DimensionPlatform, DimensionPipeline)
	require.NoError(t, err)

	grandTotal := 0
	for _, rowValue := range crossTab.RowValues {
		rowCount := 0
		rowRate := 0.0
		for _, columnValue := range crossTab.ColumnValues {
			cell := crossTab.Cells[rowValue][columnValue]
			rowCount += cell.Count
			rowRate += cell.Rate
		}
		grandTotal += rowCount
		if rowCount > 0 {
			assert.InDelta(t, 1.0, rowRate, 1e-9, "non-empty row rates must sum to 1.0")
		}
	}
	assert.Equal(t, len(events), grandTotal)
}

func TestBuildCrossTabFilteredScenario(t *testing.T) {
	snapshot := mobileSnapshot(t)
	resolved, err := Resolve(snapshot, flakeanalyticsapi.FilterSelection{Platform: "ios"})
	require.NoError(t, err)

	crossTab, err := BuildCrossTab(resolved.Events, DimensionTeam, DimensionPlatform)
	require.NoError(t, err)

	// android was filtered out, so the mobile row concentrates fully on ios
	require.Equal(t, []string{"mobile"}, crossTab.RowValues)
	require.Equal(t, []string{"ios"}, crossTab.ColumnValues)
	assert.InDelta(t, 1.0, crossTab.Cells["mobile"]["ios"].Rate, 1e-9)
}

func TestBuildCrossTabUnknownDimension(t *testing.T) {
	_, err := BuildCrossTab(nil, "owner", DimensionPlatform)
	require.Error(t, err)
	assert.True(t, flakeanalyticsapi.IsValidationError(err))
}

func TestBuildCrossTabEmptyInput(t *testing.T) {
	crossTab, err := BuildCrossTab(nil, DimensionTeam, DimensionPlatform)
	require.NoError(t, err)
	assert.Empty(t, crossTab.RowValues)
	assert.Empty(t, crossTab.ColumnValues)
	assert.Empty(t, crossTab.Cells)
}
