package flakeanalyticslib

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/pflag"
	"k8s.io/utils/clock"
)

// EventSourceFlags composes everything needed to construct an event source:
// either a CSV export or the BigQuery coordinates plus authentication. Every
// command that reads failure events binds these.
type EventSourceFlags struct {
	DataCoordinates *BigQueryDataCoordinates
	Authentication  *GoogleAuthenticationFlags

	CSVPath  string
	CacheTTL time.Duration
}

func NewEventSourceFlags() *EventSourceFlags {
	return &EventSourceFlags{
		DataCoordinates: NewBigQueryDataCoordinates(),
		Authentication:  NewGoogleAuthenticationFlags(),
		CacheTTL:        DefaultCacheTTL,
	}
}

func (f *EventSourceFlags) BindFlags(fs *pflag.FlagSet) {
	f.DataCoordinates.BindFlags(fs)
	f.Authentication.BindFlags(fs)

	fs.StringVar(&f.CSVPath, "csv-file", f.CSVPath, "read failure events from a flat-file export instead of BigQuery")
	fs.DurationVar(&f.CacheTTL, "cache-ttl", f.CacheTTL, "how long a loaded snapshot stays fresh before it is reloaded")
}

func (f *EventSourceFlags) Validate() error {
	if f.CacheTTL <= 0 {
		return fmt.Errorf("--cache-ttl must be positive")
	}
	if len(f.CSVPath) > 0 {
		return nil
	}
	return f.DataCoordinates.Validate()
}

// ToEventClient builds the configured client. Both source kinds feed the
// same normalization, so downstream code never distinguishes them.
func (f *EventSourceFlags) ToEventClient(ctx context.Context) (EventClient, error) {
	if len(f.CSVPath) > 0 {
		return NewCSVEventClient(afero.NewOsFs(), f.CSVPath), nil
	}
	client, err := f.Authentication.NewBigQueryClient(ctx, f.DataCoordinates.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("failed to construct bigquery client: %w", err)
	}
	return NewBigQueryEventClient(*f.DataCoordinates, client), nil
}

func (f *EventSourceFlags) ToSnapshotCache(ctx context.Context) (*SnapshotCache, error) {
	client, err := f.ToEventClient(ctx)
	if err != nil {
		return nil, err
	}
	return NewSnapshotCache(client, f.CacheTTL, clock.RealClock{}), nil
}
