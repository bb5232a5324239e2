package flakeanalyticsalerter

import (
	"fmt"
	"time"

	jira "github.com/andygrunwald/go-jira"
	"github.com/sirupsen/logrus"
	"k8s.io/utils/clock"

	"github.com/Pulkitchaturvedi/flakydashboard/pkg/flakeanalytics/flakeanalyticsapi"
)

// issueCreator is the sliver of the Jira client the escalator needs; the
// upstream types are not interfaces, so we adapt.
type issueCreator interface {
	CreateIssue(issue *jira.Issue) (*jira.Issue, *jira.Response, error)
}

type jiraAdapter struct {
	delegate *jira.Client
}

func (a *jiraAdapter) CreateIssue(issue *jira.Issue) (*jira.Issue, *jira.Response, error) {
	return a.delegate.Issue.Create(issue)
}

// Escalator files a Jira bug for every grouped failure that has stayed
// without a tracking ticket beyond the SLA window. Rows that already carry a
// TicketURL are never re-filed.
type Escalator struct {
	client     issueCreator
	projectKey string
	sla        time.Duration
	clock      clock.PassiveClock
}

func NewEscalator(baseURL, username, token, projectKey string, sla time.Duration) (*Escalator, error) {
	transport := jira.BasicAuthTransport{Username: username, Password: token}
	client, err := jira.NewClient(transport.Client(), baseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to construct jira client for %q: %w", baseURL, err)
	}
	return &Escalator{
		client:     &jiraAdapter{delegate: client},
		projectKey: projectKey,
		sla:        sla,
		clock:      clock.RealClock{},
	}, nil
}

// EscalateUntracked returns the keys of the issues it filed.
func (e *Escalator) EscalateUntracked(rows []flakeanalyticsapi.GroupedFailureRow) ([]string, error) {
	now := e.clock.Now()
	keys := []string{}
	for _, row := range rows {
		if row.TicketURL != "" {
			continue
		}
		if now.Sub(row.LastOccurredAt) < e.sla {
			continue
		}

		description := fmt.Sprintf(
			"Automated escalation: test %q (owner %s) has failed %d times, last on %s, with no tracking ticket.",
			row.TestName, row.Owner, row.OccurrenceCount, row.LastOccurredAt.Format(time.RFC3339))
		if row.DiagnosticURL != "" {
			description += "\nDiagnostics: " + row.DiagnosticURL
		}
		issue, _, err := e.client.CreateIssue(&jira.Issue{
			Fields: &jira.IssueFields{
				Project:     jira.Project{Key: e.projectKey},
				Type:        jira.IssueType{Name: "Bug"},
				Summary:     fmt.Sprintf("Flaky test without ticket: %s", row.TestName),
				Description: description,
			},
		})
		if err != nil {
			return keys, fmt.Errorf("failed to file issue for test %q: %w", row.TestID, err)
		}
		logrus.WithField("issue", issue.Key).WithField("test", row.TestID).Info("filed escalation issue")
		keys = append(keys, issue.Key)
	}
	return keys, nil
}
