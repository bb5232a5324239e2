package flakeanalyticsserver

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/Pulkitchaturvedi/flakydashboard/pkg/flakeanalytics/flakeanalyticsapi"
	"github.com/Pulkitchaturvedi/flakydashboard/pkg/flakeanalytics/flakeanalyticslib"
	"github.com/Pulkitchaturvedi/flakydashboard/pkg/flakeanalytics/flakeanalyticsquery"
)

type ServeFlags struct {
	Source *flakeanalyticslib.EventSourceFlags

	ListenAddr          string
	DefaultTopN         int
	BucketThresholdDays int
	AnomalyZScore       float64
}

func NewServeFlags() *ServeFlags {
	return &ServeFlags{
		Source:              flakeanalyticslib.NewEventSourceFlags(),
		ListenAddr:          "127.0.0.1:8080",
		DefaultTopN:         flakeanalyticsquery.DefaultTopN,
		BucketThresholdDays: flakeanalyticsquery.DefaultBucketThresholdDays,
		AnomalyZScore:       flakeanalyticsquery.DefaultAnomalyZScore,
	}
}

func (f *ServeFlags) BindFlags(fs *pflag.FlagSet) {
	f.Source.BindFlags(fs)

	fs.StringVar(&f.ListenAddr, "listen-addr", f.ListenAddr, "the address to listen on")
	fs.IntVar(&f.DefaultTopN, "default-top-n", f.DefaultTopN, "how many failure reasons the ranking returns before the remainder collapses into 'other'")
	fs.IntVar(&f.BucketThresholdDays, "bucket-threshold-days", f.BucketThresholdDays, "ranges spanning more than this many days aggregate per week instead of per day")
	fs.Float64Var(&f.AnomalyZScore, "anomaly-z-score", f.AnomalyZScore, "z-score at which a week counts as anomalous")
}

func (f *ServeFlags) Validate() error {
	if len(f.ListenAddr) == 0 {
		return fmt.Errorf("missing --listen-addr")
	}
	if f.DefaultTopN < 1 {
		return fmt.Errorf("--default-top-n must be positive")
	}
	if f.BucketThresholdDays < 1 {
		return fmt.Errorf("--bucket-threshold-days must be positive")
	}
	return f.Source.Validate()
}

func (f *ServeFlags) ToOptions(ctx context.Context) (*ServeOptions, error) {
	cache, err := f.Source.ToSnapshotCache(ctx)
	if err != nil {
		return nil, err
	}
	server := NewServer(cache, flakeanalyticsquery.DashboardOptions{
		TopN:          f.DefaultTopN,
		Aggregation:   flakeanalyticsquery.AggregationConfig{BucketThresholdDays: f.BucketThresholdDays},
		AnomalyZScore: f.AnomalyZScore,
	})
	return &ServeOptions{
		server:     server,
		cache:      cache,
		listenAddr: f.ListenAddr,
	}, nil
}

type ServeOptions struct {
	server     *Server
	cache      *flakeanalyticslib.SnapshotCache
	listenAddr string
}

func (o *ServeOptions) Run(ctx context.Context) error {
	// Load eagerly so a broken data source surfaces at startup instead of on
	// the first dashboard request.
	snapshot, _, err := o.cache.Get(ctx)
	if err != nil {
		return err
	}
	logrus.WithField("events", len(snapshot.Events)).Info("loaded initial snapshot")

	httpServer := &http.Server{
		Addr:              o.listenAddr,
		Handler:           o.server.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	logrus.WithField("addr", o.listenAddr).Info("serving flake analytics")
	return httpServer.ListenAndServe()
}

func NewServeCommand() *cobra.Command {
	f := NewServeFlags()

	cmd := &cobra.Command{
		Use:          "serve",
		Long:         `Serve the flaky-test analytics dashboard API and weekly insight exports.`,
		SilenceUsage: true,

		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			if err := f.Validate(); err != nil {
				logrus.WithError(err).Fatal("Flags are invalid")
			}
			o, err := f.ToOptions(ctx)
			if err != nil {
				logrus.WithError(err).Fatal("Failed to build runtime options")
			}

			if err := o.Run(ctx); err != nil {
				logrus.WithError(err).Fatal("Command failed")
			}
			return nil
		},

		Args: cobra.NoArgs,
	}

	f.BindFlags(cmd.Flags())
	return cmd
}

type ExportFlags struct {
	Source *flakeanalyticslib.EventSourceFlags

	Format        string
	OutputFile    string
	AnomalyZScore float64

	Platform   string
	Team       string
	Pipeline   string
	AppVersion string
	Start      string
	End        string
}

func NewExportFlags() *ExportFlags {
	return &ExportFlags{
		Source:        flakeanalyticslib.NewEventSourceFlags(),
		Format:        "csv",
		AnomalyZScore: flakeanalyticsquery.DefaultAnomalyZScore,
	}
}

func (f *ExportFlags) BindFlags(fs *pflag.FlagSet) {
	f.Source.BindFlags(fs)

	fs.StringVar(&f.Format, "format", f.Format, "export format, csv or json")
	fs.StringVar(&f.OutputFile, "output-file", f.OutputFile, "write the export here instead of stdout")
	fs.Float64Var(&f.AnomalyZScore, "anomaly-z-score", f.AnomalyZScore, "z-score at which a week counts as anomalous")

	fs.StringVar(&f.Platform, "platform", f.Platform, "restrict the export to one platform")
	fs.StringVar(&f.Team, "team", f.Team, "restrict the export to one team")
	fs.StringVar(&f.Pipeline, "pipeline", f.Pipeline, "restrict the export to one pipeline")
	fs.StringVar(&f.AppVersion, "app-version", f.AppVersion, "restrict the export to one app version")
	fs.StringVar(&f.Start, "start", f.Start, "range start, YYYY-MM-DD; defaults to the full data horizon")
	fs.StringVar(&f.End, "end", f.End, "range end, YYYY-MM-DD, inclusive")
}

func (f *ExportFlags) Validate() error {
	if f.Format != "csv" && f.Format != "json" {
		return fmt.Errorf("--format must be csv or json, not %q", f.Format)
	}
	if (f.Start == "") != (f.End == "") {
		return fmt.Errorf("--start and --end must be provided together")
	}
	return f.Source.Validate()
}

func (f *ExportFlags) selection() (flakeanalyticsapi.FilterSelection, error) {
	values := url.Values{}
	values.Set("platform", f.Platform)
	values.Set("team", f.Team)
	values.Set("pipeline", f.Pipeline)
	values.Set("app_version", f.AppVersion)
	values.Set("start", f.Start)
	values.Set("end", f.End)
	selection, _, err := parseSelection(values)
	return selection, err
}

func (f *ExportFlags) ToOptions(ctx context.Context) (*ExportOptions, error) {
	selection, err := f.selection()
	if err != nil {
		return nil, err
	}
	client, err := f.Source.ToEventClient(ctx)
	if err != nil {
		return nil, err
	}
	return &ExportOptions{
		client:        client,
		selection:     selection,
		format:        f.Format,
		outputFile:    f.OutputFile,
		anomalyZScore: f.AnomalyZScore,
	}, nil
}

type ExportOptions struct {
	client        flakeanalyticslib.EventClient
	selection     flakeanalyticsapi.FilterSelection
	format        string
	outputFile    string
	anomalyZScore float64
}

func (o *ExportOptions) Run(ctx context.Context) error {
	events, err := o.client.ListFailureEvents(ctx)
	if err != nil {
		return err
	}
	snapshot := flakeanalyticsapi.NewSnapshot(events, time.Now())
	resolved, err := flakeanalyticsquery.Resolve(snapshot, o.selection)
	if err != nil {
		return err
	}
	insights := flakeanalyticsquery.ComputeWeeklyInsights(resolved, o.anomalyZScore)

	out := os.Stdout
	if len(o.outputFile) > 0 {
		file, err := os.Create(o.outputFile)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer file.Close()
		out = file
	}

	if o.format == "json" {
		encoder := json.NewEncoder(out)
		encoder.SetIndent("", "  ")
		return encoder.Encode(insights)
	}
	return WriteInsightsCSV(out, insights)
}

func NewExportCommand() *cobra.Command {
	f := NewExportFlags()

	cmd := &cobra.Command{
		Use:          "export",
		Long:         `Write the weekly flake insight export for a filter selection to a file or stdout.`,
		SilenceUsage: true,

		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			if err := f.Validate(); err != nil {
				logrus.WithError(err).Fatal("Flags are invalid")
			}
			o, err := f.ToOptions(ctx)
			if err != nil {
				logrus.WithError(err).Fatal("Failed to build runtime options")
			}

			if err := o.Run(ctx); err != nil {
				logrus.WithError(err).Fatal("Command failed")
			}
			return nil
		},

		Args: cobra.NoArgs,
	}

	f.BindFlags(cmd.Flags())
	return cmd
}
