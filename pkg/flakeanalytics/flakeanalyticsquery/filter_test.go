package flakeanalyticsquery

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Pulkitchaturvedi/flakydashboard/pkg/flakeanalytics/flakeanalyticsapi"
)

func mustDay(t *testing.T, value string) time.Time {
	t.Helper()
	parsed, err := time.Parse("2006-01-02", value)
	require.NoError(t, err)
	return parsed
}

func event(testID, platform, team, pipeline, reason string, occurredAt time.Time) flakeanalyticsapi.FailureEvent {
	return flakeanalyticsapi.FailureEvent{
		TestID:        testID,
		TestName:      testID + "-name",
		Owner:         team,
		Platform:      platform,
		Team:          team,
		Pipeline:      pipeline,
		OccurredAt:    occurredAt,
		FailureReason: reason,
	}
}

func mobileSnapshot(t *testing.T) *flakeanalyticsapi.Snapshot {
	return flakeanalyticsapi.NewSnapshot([]flakeanalyticsapi.FailureEvent{
		event("T1", "ios", "mobile", "nightly", "timeout", mustDay(t, "2024-01-01")),
		event("T1", "ios", "mobile", "nightly", "timeout", mustDay(t, "2024-01-03")),
		event("T2", "android", "mobile", "nightly", "timeout", mustDay(t, "2024-01-02")),
	}, mustDay(t, "2024-01-10"))
}

func TestResolveFiltersByPlatform(t *testing.T) {
	resolved, err := Resolve(mobileSnapshot(t), flakeanalyticsapi.FilterSelection{Platform: "ios"})
	require.NoError(t, err)

	require.Len(t, resolved.Events, 2)
	for _, event := range resolved.Events {
		assert.Equal(t, "T1", event.TestID)
		assert.Equal(t, "ios", event.Platform)
	}
}

func TestResolveOptionSetsCascade(t *testing.T) {
	snapshot := flakeanalyticsapi.NewSnapshot([]flakeanalyticsapi.FailureEvent{
		event("T1", "ios", "mobile", "nightly", "timeout", mustDay(t, "2024-01-01")),
		event("T2", "android", "mobile", "nightly", "timeout", mustDay(t, "2024-01-02")),
		event("T3", "android", "web", "merge", "crash", mustDay(t, "2024-01-03")),
	}, mustDay(t, "2024-01-10"))

	tests := []struct {
		name              string
		selection         flakeanalyticsapi.FilterSelection
		expectedPlatforms []string
		expectedTeams     []string
		expectedPipelines []string
	}{
		{
			name:              "wildcard selection offers everything",
			selection:         flakeanalyticsapi.FilterSelection{},
			expectedPlatforms: []string{"android", "ios"},
			expectedTeams:     []string{"mobile", "web"},
			expectedPipelines: []string{"merge", "nightly"},
		},
		{
			name:              "platform narrows teams to those with events on it",
			selection:         flakeanalyticsapi.FilterSelection{Platform: "ios"},
			expectedPlatforms: []string{"android", "ios"},
			expectedTeams:     []string{"mobile"},
			expectedPipelines: []string{"nightly"},
		},
		{
			name:              "overlapping teams across platforms keep the team list broader",
			selection:         flakeanalyticsapi.FilterSelection{Platform: "android"},
			expectedPlatforms: []string{"android", "ios"},
			expectedTeams:     []string{"mobile", "web"},
			expectedPipelines: []string{"merge", "nightly"},
		},
		{
			name:              "team narrows pipelines below it",
			selection:         flakeanalyticsapi.FilterSelection{Platform: "android", Team: "web"},
			expectedPlatforms: []string{"android", "ios"},
			expectedTeams:     []string{"mobile", "web"},
			expectedPipelines: []string{"merge"},
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			resolved, err := Resolve(snapshot, test.selection)
			require.NoError(t, err)
			assert.Equal(t, test.expectedPlatforms, resolved.Options.Platforms)
			assert.Equal(t, test.expectedTeams, resolved.Options.Teams)
			assert.Equal(t, test.expectedPipelines, resolved.Options.Pipelines)
		})
	}
}

func TestResolveNarrowingNeverGrowsTheSubset(t *testing.T) {
	snapshot := mobileSnapshot(t)

	wildcard, err := Resolve(snapshot, flakeanalyticsapi.FilterSelection{})
	require.NoError(t, err)
	narrowed, err := Resolve(snapshot, flakeanalyticsapi.FilterSelection{Platform: "ios"})
	require.NoError(t, err)

	assert.LessOrEqual(t, len(narrowed.Events), len(wildcard.Events))
	assert.LessOrEqual(t, len(narrowed.Options.Teams), len(wildcard.Options.Teams))
	assert.LessOrEqual(t, len(narrowed.Options.Pipelines), len(wildcard.Options.Pipelines))

	// clearing the upstream selection restores the full option list
	cleared, err := Resolve(snapshot, flakeanalyticsapi.FilterSelection{})
	require.NoError(t, err)
	assert.Equal(t, wildcard.Options.Teams, cleared.Options.Teams)
}

func TestResolveInvertedDateRangeIsRejected(t *testing.T) {
	_, err := Resolve(mobileSnapshot(t), flakeanalyticsapi.FilterSelection{
		DateRange: flakeanalyticsapi.DateRange{Start: mustDay(t, "2024-01-05"), End: mustDay(t, "2024-01-01")},
	})
	require.Error(t, err)
	assert.True(t, flakeanalyticsapi.IsValidationError(err))
}

func TestResolveDateRangeIsInclusiveOnBothEnds(t *testing.T) {
	resolved, err := Resolve(mobileSnapshot(t), flakeanalyticsapi.FilterSelection{
		DateRange: flakeanalyticsapi.DateRange{Start: mustDay(t, "2024-01-01"), End: mustDay(t, "2024-01-03")},
	})
	require.NoError(t, err)
	assert.Len(t, resolved.Events, 3)

	resolved, err = Resolve(mobileSnapshot(t), flakeanalyticsapi.FilterSelection{
		DateRange: flakeanalyticsapi.DateRange{Start: mustDay(t, "2024-01-02"), End: mustDay(t, "2024-01-02")},
	})
	require.NoError(t, err)
	require.Len(t, resolved.Events, 1)
	assert.Equal(t, "T2", resolved.Events[0].TestID)
}

func TestResolveEmptyResultIsValid(t *testing.T) {
	resolved, err := Resolve(mobileSnapshot(t), flakeanalyticsapi.FilterSelection{Platform: "web"})
	require.NoError(t, err)
	assert.Empty(t, resolved.Events)
	assert.Empty(t, resolved.Options.AppVersions)
}

func TestResolveAppVersionHandling(t *testing.T) {
	versioned := event("T1", "ios", "mobile", "nightly", "timeout", mustDay(t, "2024-01-01"))
	versioned.AppVersion = "1.2.0"
	unversioned := event("T2", "ios", "mobile", "nightly", "timeout", mustDay(t, "2024-01-02"))
	older := event("T3", "ios", "mobile", "nightly", "timeout", mustDay(t, "2024-01-03"))
	older.AppVersion = "1.10.0"
	snapshot := flakeanalyticsapi.NewSnapshot([]flakeanalyticsapi.FailureEvent{versioned, unversioned, older}, mustDay(t, "2024-01-10"))

	// without a version selected, unversioned events are included
	resolved, err := Resolve(snapshot, flakeanalyticsapi.FilterSelection{})
	require.NoError(t, err)
	assert.Len(t, resolved.Events, 3)
	// option set excludes the absent value and sorts semantically
	assert.Equal(t, []string{"1.2.0", "1.10.0"}, resolved.Options.AppVersions)

	// selecting a version excludes unversioned events
	resolved, err = Resolve(snapshot, flakeanalyticsapi.FilterSelection{AppVersion: "1.2.0"})
	require.NoError(t, err)
	require.Len(t, resolved.Events, 1)
	assert.Equal(t, "T1", resolved.Events[0].TestID)
}

func TestResolveSubsetMatchesEveryConstraint(t *testing.T) {
	snapshot := mobileSnapshot(t)
	selection := flakeanalyticsapi.FilterSelection{
		Platform: "ios",
		Team:     "mobile",
		Pipeline: "nightly",
		DateRange: flakeanalyticsapi.DateRange{
			Start: mustDay(t, "2024-01-01"),
			End:   mustDay(t, "2024-01-02"),
		},
	}
	resolved, err := Resolve(snapshot, selection)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(resolved.Events), len(snapshot.Events))
	for _, event := range resolved.Events {
		assert.Equal(t, selection.Platform, event.Platform)
		assert.Equal(t, selection.Team, event.Team)
		assert.Equal(t, selection.Pipeline, event.Pipeline)
		assert.True(t, selection.DateRange.Contains(event.OccurredAt))
	}
}
