package flakeanalyticslib

import (
	"fmt"
	"strings"

	"github.com/spf13/pflag"
)

const (
	DefaultBigQueryProjectID = "flaky-test-analytics"
	DefaultDataSetID         = "analytics"
	DefaultEventTableName    = "processed_flaky_tests"
)

// BigQueryDataCoordinates locates the warehouse table holding the
// pre-aggregated failure events.
type BigQueryDataCoordinates struct {
	ProjectID string
	DataSetID string
	TableName string
}

func NewBigQueryDataCoordinates() *BigQueryDataCoordinates {
	return &BigQueryDataCoordinates{
		ProjectID: DefaultBigQueryProjectID,
		DataSetID: DefaultDataSetID,
		TableName: DefaultEventTableName,
	}
}

func (f *BigQueryDataCoordinates) BindFlags(fs *pflag.FlagSet) {
	fs.StringVar(&f.ProjectID, "google-project-id", f.ProjectID, "project ID where analytics data is stored")
	fs.StringVar(&f.DataSetID, "bigquery-dataset", f.DataSetID, "bigquery dataset where analytics data is stored")
	fs.StringVar(&f.TableName, "bigquery-table", f.TableName, "bigquery table holding the processed failure events")
}

func (f *BigQueryDataCoordinates) Validate() error {
	if len(f.ProjectID) == 0 {
		return fmt.Errorf("missing --google-project-id")
	}
	if len(f.DataSetID) == 0 {
		return fmt.Errorf("missing --bigquery-dataset")
	}
	if len(f.TableName) == 0 {
		return fmt.Errorf("missing --bigquery-table")
	}
	return nil
}

// SubstituteTableLocation replaces the TABLE_LOCATION placeholder in a query
// with the fully qualified table name.
func (f *BigQueryDataCoordinates) SubstituteTableLocation(query string) string {
	return strings.Replace(
		query,
		"TABLE_LOCATION",
		f.ProjectID+"."+f.DataSetID+"."+f.TableName,
		-1)
}
