package flakeanalyticsquery

import (
	"sort"

	"github.com/Pulkitchaturvedi/flakydashboard/pkg/flakeanalytics/flakeanalyticsapi"
)

// DefaultTopN is the documented default for the ranking extractor.
const DefaultTopN = 5

// TopFailureReasons counts events per failure reason, sorts descending by
// count with ties broken lexicographically by label, and returns the top N
// plus an aggregated remainder so the displayed total reconciles exactly to
// the event count. topN values below one fall back to DefaultTopN.
func TopFailureReasons(events []flakeanalyticsapi.FailureEvent, topN int) flakeanalyticsapi.ReasonRanking {
	if topN < 1 {
		topN = DefaultTopN
	}

	counts := map[string]int{}
	for _, event := range events {
		counts[event.FailureReason]++
	}

	ranked := make([]flakeanalyticsapi.ReasonCount, 0, len(counts))
	for reason, count := range counts {
		ranked = append(ranked, flakeanalyticsapi.ReasonCount{Reason: reason, Count: count})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Count != ranked[j].Count {
			return ranked[i].Count > ranked[j].Count
		}
		return ranked[i].Reason < ranked[j].Reason
	})

	ranking := flakeanalyticsapi.ReasonRanking{
		Top:        []flakeanalyticsapi.ReasonCount{},
		TotalCount: len(events),
	}
	for i, entry := range ranked {
		if i < topN {
			ranking.Top = append(ranking.Top, entry)
			continue
		}
		ranking.OtherCount += entry.Count
	}
	return ranking
}
