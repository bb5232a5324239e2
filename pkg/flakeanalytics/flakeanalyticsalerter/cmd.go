package flakeanalyticsalerter

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/Pulkitchaturvedi/flakydashboard/pkg/flakeanalytics/flakeanalyticsapi"
	"github.com/Pulkitchaturvedi/flakydashboard/pkg/flakeanalytics/flakeanalyticslib"
	"github.com/Pulkitchaturvedi/flakydashboard/pkg/flakeanalytics/flakeanalyticsquery"
)

type AlertFlags struct {
	Source *flakeanalyticslib.EventSourceFlags

	ThresholdConfigFile string
	AnomalyZScore       float64

	SlackWebhookURL string
	SlackChannel    string
	PagerDutyKey    string
	WebhookURL      string

	JiraBaseURL    string
	JiraUsername   string
	JiraToken      string
	JiraProjectKey string
	JiraSLA        time.Duration
}

func NewAlertFlags() *AlertFlags {
	return &AlertFlags{
		Source:        flakeanalyticslib.NewEventSourceFlags(),
		AnomalyZScore: flakeanalyticsquery.DefaultAnomalyZScore,
		SlackChannel:  "#flaky-tests",
		JiraSLA:       5 * 24 * time.Hour,
	}
}

func (f *AlertFlags) BindFlags(fs *pflag.FlagSet) {
	f.Source.BindFlags(fs)

	fs.StringVar(&f.ThresholdConfigFile, "threshold-config", f.ThresholdConfigFile, "YAML file with alerting thresholds; defaults apply when unset")
	fs.Float64Var(&f.AnomalyZScore, "anomaly-z-score", f.AnomalyZScore, "z-score at which a week counts as anomalous")

	fs.StringVar(&f.SlackWebhookURL, "slack-webhook-url", f.SlackWebhookURL, "Slack incoming webhook to notify")
	fs.StringVar(&f.SlackChannel, "slack-channel", f.SlackChannel, "Slack channel for alerts")
	fs.StringVar(&f.PagerDutyKey, "pagerduty-routing-key", f.PagerDutyKey, "PagerDuty Events v2 routing key to trigger")
	fs.StringVar(&f.WebhookURL, "webhook-url", f.WebhookURL, "generic JSON webhook to notify")

	fs.StringVar(&f.JiraBaseURL, "jira-base-url", f.JiraBaseURL, "Jira instance to escalate untracked flaky tests to")
	fs.StringVar(&f.JiraUsername, "jira-username", f.JiraUsername, "Jira user for basic auth")
	fs.StringVar(&f.JiraToken, "jira-token", f.JiraToken, "Jira API token for basic auth")
	fs.StringVar(&f.JiraProjectKey, "jira-project", f.JiraProjectKey, "Jira project key to file escalation bugs under")
	fs.DurationVar(&f.JiraSLA, "jira-sla", f.JiraSLA, "how long a grouped failure may stay without a ticket before escalation")
}

func (f *AlertFlags) Validate() error {
	if f.SlackWebhookURL == "" && f.PagerDutyKey == "" && f.WebhookURL == "" && f.JiraBaseURL == "" {
		return fmt.Errorf("at least one of --slack-webhook-url, --pagerduty-routing-key, --webhook-url, or --jira-base-url must be set")
	}
	if f.JiraBaseURL != "" && f.JiraProjectKey == "" {
		return fmt.Errorf("--jira-project is required with --jira-base-url")
	}
	return f.Source.Validate()
}

func (f *AlertFlags) ToOptions(ctx context.Context) (*AlertOptions, error) {
	thresholds := DefaultThresholdConfig()
	if f.ThresholdConfigFile != "" {
		loaded, err := LoadThresholdConfig(afero.NewOsFs(), f.ThresholdConfigFile)
		if err != nil {
			return nil, err
		}
		thresholds = loaded
	}

	notifiers := []Notifier{}
	if f.SlackWebhookURL != "" {
		notifiers = append(notifiers, &SlackNotifier{WebhookURL: f.SlackWebhookURL, Channel: f.SlackChannel})
	}
	if f.PagerDutyKey != "" {
		notifiers = append(notifiers, &PagerDutyNotifier{RoutingKey: f.PagerDutyKey})
	}
	if f.WebhookURL != "" {
		notifiers = append(notifiers, NewWebhookNotifier(f.WebhookURL))
	}

	var escalator *Escalator
	if f.JiraBaseURL != "" {
		built, err := NewEscalator(f.JiraBaseURL, f.JiraUsername, f.JiraToken, f.JiraProjectKey, f.JiraSLA)
		if err != nil {
			return nil, err
		}
		escalator = built
	}

	client, err := f.Source.ToEventClient(ctx)
	if err != nil {
		return nil, err
	}

	return &AlertOptions{
		client:        client,
		engine:        &Engine{Thresholds: thresholds, Notifiers: notifiers},
		escalator:     escalator,
		anomalyZScore: f.AnomalyZScore,
	}, nil
}

type AlertOptions struct {
	client        flakeanalyticslib.EventClient
	engine        *Engine
	escalator     *Escalator
	anomalyZScore float64
}

func (o *AlertOptions) Run(ctx context.Context) error {
	events, err := o.client.ListFailureEvents(ctx)
	if err != nil {
		return err
	}
	snapshot := flakeanalyticsapi.NewSnapshot(events, time.Now())
	resolved, err := flakeanalyticsquery.Resolve(snapshot, flakeanalyticsapi.FilterSelection{})
	if err != nil {
		return err
	}

	insights := flakeanalyticsquery.ComputeWeeklyInsights(resolved, o.anomalyZScore)
	if err := o.engine.Run(ctx, insights); err != nil {
		return err
	}

	if o.escalator != nil {
		grouped := flakeanalyticsquery.BuildGroupedFailureTable(resolved.Events)
		keys, err := o.escalator.EscalateUntracked(grouped)
		if err != nil {
			return err
		}
		logrus.WithField("issues", len(keys)).Info("escalation sweep finished")
	}
	return nil
}

func NewAlertCommand() *cobra.Command {
	f := NewAlertFlags()

	cmd := &cobra.Command{
		Use:          "alert",
		Long:         `Evaluate the weekly flake insights against alerting thresholds, notify the configured channels, and escalate untracked flaky tests to Jira.`,
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
