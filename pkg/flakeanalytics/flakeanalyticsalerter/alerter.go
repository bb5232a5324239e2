package flakeanalyticsalerter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/PagerDuty/go-pagerduty"
	retryablehttp "github.com/hashicorp/go-retryablehttp"
	"github.com/sirupsen/logrus"
	"github.com/slack-go/slack"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v2"

	"github.com/Pulkitchaturvedi/flakydashboard/pkg/flakeanalytics/flakeanalyticsapi"
)

// ThresholdConfig holds the alerting thresholds, loaded from a YAML file so
// the same config feeds cron jobs and CI pipelines.
type ThresholdConfig struct {
	// MaxFailureRate is the weekly failure count above which the latest week
	// alerts.
	MaxFailureRate float64 `yaml:"maxFailureRate"`
	// MaxWoWDelta is the largest tolerated week-over-week increase.
	MaxWoWDelta float64 `yaml:"maxWoWDelta"`
	// MaxZScore is the z-score above which the latest week alerts.
	MaxZScore float64 `yaml:"maxZScore"`
}

func DefaultThresholdConfig() ThresholdConfig {
	return ThresholdConfig{
		MaxFailureRate: 50,
		MaxWoWDelta:    25,
		MaxZScore:      3,
	}
}

func LoadThresholdConfig(fs afero.Fs, path string) (ThresholdConfig, error) {
	config := DefaultThresholdConfig()
	raw, err := afero.ReadFile(fs, path)
	if err != nil {
		return config, fmt.Errorf("failed to read threshold config %q: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, &config); err != nil {
		return config, fmt.Errorf("failed to parse threshold config %q: %w", path, err)
	}
	return config, nil
}

// Notifier is one alert destination.
type Notifier interface {
	Notify(ctx context.Context, subject, body string) error
}

// SlackNotifier posts to an incoming webhook.
type SlackNotifier struct {
	WebhookURL string
	Channel    string
}

func (n *SlackNotifier) Notify(ctx context.Context, subject, body string) error {
	return slack.PostWebhookContext(ctx, n.WebhookURL, &slack.WebhookMessage{
		Channel:  n.Channel,
		Username: "flake-monitor",
		Text:     fmt.Sprintf("*%s*\n%s", subject, body),
	})
}

// PagerDutyNotifier triggers a PagerDuty Events API v2 incident.
type PagerDutyNotifier struct {
	RoutingKey string
}

func (n *PagerDutyNotifier) Notify(ctx context.Context, subject, body string) error {
	_, err := pagerduty.ManageEvent(pagerduty.V2Event{
		RoutingKey: n.RoutingKey,
		Action:     "trigger",
		Payload: &pagerduty.V2Payload{
			Summary:  subject,
			Source:   "flake-analytics",
			Severity: "warning",
			Details:  map[string]string{"body": body},
		},
	})
	return err
}

// WebhookNotifier posts a JSON payload to an arbitrary endpoint, retrying
// transient failures.
type WebhookNotifier struct {
	URL    string
	client *retryablehttp.Client
}

func NewWebhookNotifier(url string) *WebhookNotifier {
	client := retryablehttp.NewClient()
	client.Logger = nil
	return &WebhookNotifier{URL: url, client: client}
}

func (n *WebhookNotifier) Notify(ctx context.Context, subject, body string) error {
	payload, err := json.Marshal(map[string]string{"subject": subject, "body": body})
	if err != nil {
		return err
	}
	request, err := retryablehttp.NewRequest("POST", n.URL, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	request = request.WithContext(ctx)
	request.Header.Set("Content-Type", "application/json")
	response, err := n.client.Do(request)
	if err != nil {
		return err
	}
	defer response.Body.Close()
	if response.StatusCode >= 300 {
		return fmt.Errorf("webhook %q returned status %d", n.URL, response.StatusCode)
	}
	return nil
}

// Engine evaluates weekly insights against the thresholds and fans breaches
// out to every notifier.
type Engine struct {
	Thresholds ThresholdConfig
	Notifiers  []Notifier
}

// Evaluate inspects the latest week and returns the alert to send, if any.
// An empty insight series never alerts.
func (e *Engine) Evaluate(insights []flakeanalyticsapi.WeeklyFlakeInsight) (subject, body string, fired bool) {
	if len(insights) == 0 {
		return "", "", false
	}
	latest := insights[len(insights)-1]

	subjects := []string{}
	lines := []string{}
	if latest.FailureRate >= e.Thresholds.MaxFailureRate {
		subjects = append(subjects, "High flake volume")
		lines = append(lines, fmt.Sprintf("Week of %s saw %d failures, at or above the threshold of %.0f.",
			latest.WeekStart.Format("2006-01-02"), latest.FailureCount, e.Thresholds.MaxFailureRate))
	}
	if latest.WoWDelta != nil && *latest.WoWDelta >= e.Thresholds.MaxWoWDelta {
		subjects = append(subjects, "Week-over-week spike")
		lines = append(lines, fmt.Sprintf("Week-over-week delta is %+.0f, above the allowed delta of %.0f.",
			*latest.WoWDelta, e.Thresholds.MaxWoWDelta))
	}
	if latest.ZScore != nil && *latest.ZScore >= e.Thresholds.MaxZScore {
		subjects = append(subjects, "Anomalous spike")
		lines = append(lines, fmt.Sprintf("Latest z-score is %.2f, beyond the threshold of %.2f.",
			*latest.ZScore, e.Thresholds.MaxZScore))
	}

	anomalous := []string{}
	for _, insight := range insights {
		if insight.IsAnomalous {
			anomalous = append(anomalous, fmt.Sprintf("- %s: %d failures", insight.WeekStart.Format("2006-01-02"), insight.FailureCount))
		}
	}
	if len(subjects) > 0 && len(anomalous) > 0 {
		lines = append(lines, "Anomalous weeks in range:\n"+strings.Join(anomalous, "\n"))
	}

	if len(subjects) == 0 {
		return "", "", false
	}
	return strings.Join(subjects, " | "), strings.Join(lines, "\n"), true
}

// Run evaluates and notifies. Notifier failures are logged and aggregated so
// one broken channel does not silence the others.
func (e *Engine) Run(ctx context.Context, insights []flakeanalyticsapi.WeeklyFlakeInsight) error {
	subject, body, fired := e.Evaluate(insights)
	if !fired {
		return nil
	}

	var failed int
	for _, notifier := range e.Notifiers {
		if err := notifier.Notify(ctx, subject, body); err != nil {
			logrus.WithError(err).Error("failed to deliver flake alert")
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("failed to deliver flake alert to %d of %d notifiers", failed, len(e.Notifiers))
	}
	return nil
}
