package flakeanalytics

import (
	"github.com/spf13/cobra"

	"github.com/Pulkitchaturvedi/flakydashboard/pkg/flakeanalytics/flakeanalyticsalerter"
	"github.com/Pulkitchaturvedi/flakydashboard/pkg/flakeanalytics/flakeanalyticsserver"
)

// Overall usage
// 1. an upstream pipeline writes one row per flaky failure event into the
//    warehouse table (or a flat-file export of it)
// 2. `serve` loads a snapshot of that table, keeps it fresh behind a TTL
//    cache, and answers dashboard queries: cascading filter options, KPIs,
//    time series, heatmaps, rankings, and the grouped failure table
// 3. `export` materializes the weekly insight series for one selection
// 4. `alert` runs the same insights through thresholds and pages/posts/files
//    tickets when the latest week misbehaves

func NewFlakeAnalyticsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:  "flake-analytics",
		Long: `Commands associated with flaky-test analytics over pre-aggregated failure events`,
	}

	cmd.AddCommand(flakeanalyticsserver.NewServeCommand())
	cmd.AddCommand(flakeanalyticsserver.NewExportCommand())
	cmd.AddCommand(flakeanalyticsalerter.NewAlertCommand())

	return cmd
}
