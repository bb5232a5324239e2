package flakeanalyticsserver

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/Pulkitchaturvedi/flakydashboard/pkg/flakeanalytics/flakeanalyticsapi"
)

// WriteInsightsCSV renders the weekly insight export consumed by
// spreadsheets and downstream report jobs. Undefined deltas and z-scores stay
// empty cells, never zeros.
func WriteInsightsCSV(w io.Writer, insights []flakeanalyticsapi.WeeklyFlakeInsight) error {
	writer := csv.NewWriter(w)
	if err := writer.Write([]string{"week_start", "failure_count", "failure_rate", "wow_delta", "z_score", "is_anomalous"}); err != nil {
		return err
	}
	for _, insight := range insights {
		record := []string{
			insight.WeekStart.Format("2006-01-02"),
			strconv.Itoa(insight.FailureCount),
			formatFloat(insight.FailureRate),
			"",
			"",
			strconv.FormatBool(insight.IsAnomalous),
		}
		if insight.WoWDelta != nil {
			record[3] = formatFloat(*insight.WoWDelta)
		}
		if insight.ZScore != nil {
			record[4] = formatFloat(*insight.ZScore)
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

func formatFloat(value float64) string {
	return fmt.Sprintf("%.6f", value)
}
