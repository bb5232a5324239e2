package flakeanalyticslib

import (
	"context"

	"cloud.google.com/go/bigquery"
	"github.com/spf13/pflag"
	"google.golang.org/api/option"
)

// GoogleAuthenticationFlags selects how the BigQuery client authenticates: a
// service-account credential file, or Application Default Credentials when
// none is given.
type GoogleAuthenticationFlags struct {
	// location of a credential file described by https://cloud.google.com/docs/authentication/production
	GoogleServiceAccountCredentialFile string
}

func NewGoogleAuthenticationFlags() *GoogleAuthenticationFlags {
	return &GoogleAuthenticationFlags{}
}

func (f *GoogleAuthenticationFlags) BindFlags(fs *pflag.FlagSet) {
	fs.StringVar(&f.GoogleServiceAccountCredentialFile, "google-service-account-credential-file", f.GoogleServiceAccountCredentialFile, "location of a credential file described by https://cloud.google.com/docs/authentication/production; falls back to application default credentials when unset")
}

func (f *GoogleAuthenticationFlags) NewBigQueryClient(ctx context.Context, projectID string) (*bigquery.Client, error) {
	if len(f.GoogleServiceAccountCredentialFile) > 0 {
		return bigquery.NewClient(ctx,
			projectID,
			option.WithCredentialsFile(f.GoogleServiceAccountCredentialFile),
		)
	}
	return bigquery.NewClient(ctx, projectID)
}
