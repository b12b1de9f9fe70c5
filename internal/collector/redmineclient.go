package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/a2rchi/a2rchi/internal/logging"
	"github.com/a2rchi/a2rchi/internal/resource"
)

// RedmineClient authenticates against a Redmine server with username/
// password and iterates closed issues in a configured project, extracting
// the latest journal entry that carries AnswerTag as the answer.
type RedmineClient struct {
	BaseURL    string
	Username   string
	Password   string
	Project    string
	AnswerTag  string
	Anonymizer *Anonymizer

	client *http.Client
	logger *logging.Logger
}

// NewRedmineClient builds a RedmineClient.
func NewRedmineClient(baseURL, username, password, project, answerTag string, anonymizer *Anonymizer, logger *logging.Logger) *RedmineClient {
	if logger == nil {
		logger = logging.Nop()
	}
	return &RedmineClient{
		BaseURL:    baseURL,
		Username:   username,
		Password:   password,
		Project:    project,
		AnswerTag:  answerTag,
		Anonymizer: anonymizer,
		client:     &http.Client{},
		logger:     logger,
	}
}

type redmineIssueSummary struct {
	ID int `json:"id"`
}

type redmineIssuesResponse struct {
	Issues []redmineIssueSummary `json:"issues"`
}

type redmineJournal struct {
	Notes string `json:"notes"`
}

type redmineFullIssue struct {
	ID          int              `json:"id"`
	Subject     string           `json:"subject"`
	Description string           `json:"description"`
	CreatedOn   string           `json:"created_on"`
	Journals    []redmineJournal `json:"journals"`
}

// Collect fetches closed issues in Project and returns one TicketResource
// per issue whose journal carries a non-trivial answer.
func (c *RedmineClient) Collect(ctx context.Context) []*resource.TicketResource {
	if c.BaseURL == "" || c.Username == "" || c.Password == "" || c.Project == "" {
		c.logger.Info(ctx, "Redmine not configured; skipping ticket collection")
		return nil
	}

	ids, err := c.closedIssueIDs(ctx)
	if err != nil {
		c.logger.Warn(ctx, "failed to list closed Redmine issues", zap.Error(err))
		return nil
	}

	var out []*resource.TicketResource
	for _, id := range ids {
		issue, err := c.fetchIssue(ctx, id)
		if err != nil {
			c.logger.Warn(ctx, "error processing Redmine ticket", zap.Int("issue_id", id), zap.Error(err))
			continue
		}

		subject := issue.Subject
		question := strings.ReplaceAll(issue.Description, "\n", " ")
		if c.Anonymizer != nil {
			subject = c.Anonymizer.Anonymize(subject)
			question = c.Anonymizer.Anonymize(question)
		}

		answer := c.extractAnswer(issue.Journals)
		if answer == "" || question == answer {
			continue
		}

		issueID := strconv.Itoa(issue.ID)
		content := fmt.Sprintf("Redmine issue ID/ticket number: %s\nSubject: %s\nQuestion: %s\nAnswer: %s\n\n", issueID, subject, question, answer)

		out = append(out, &resource.TicketResource{
			TicketID:   issueID,
			Body:       content,
			SourceType: "redmine",
			CreatedAt:  issue.CreatedOn,
			Extra:      map[string]interface{}{"subject": subject},
		})
	}
	return out
}

func (c *RedmineClient) closedIssueIDs(ctx context.Context) ([]int, error) {
	url := fmt.Sprintf("%s/issues.json?project_id=%s&status_id=closed&limit=100", c.BaseURL, c.Project)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.SetBasicAuth(c.Username, c.Password)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("redmine issues list returned status %d", resp.StatusCode)
	}

	var parsed redmineIssuesResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, err
	}

	ids := make([]int, len(parsed.Issues))
	for i, issue := range parsed.Issues {
		ids[i] = issue.ID
	}
	return ids, nil
}

func (c *RedmineClient) fetchIssue(ctx context.Context, id int) (*redmineFullIssue, error) {
	url := fmt.Sprintf("%s/issues/%d.json?include=journals", c.BaseURL, id)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.SetBasicAuth(c.Username, c.Password)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("redmine issue %d returned status %d", id, resp.StatusCode)
	}

	var wrapper struct {
		Issue redmineFullIssue `json:"issue"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&wrapper); err != nil {
		return nil, err
	}
	return &wrapper.Issue, nil
}

// extractAnswer walks journals newest-first (Redmine returns them oldest-
// first) looking for the most recent entry containing AnswerTag.
func (c *RedmineClient) extractAnswer(journals []redmineJournal) string {
	for i := len(journals) - 1; i >= 0; i-- {
		note := journals[i].Notes
		if note == "" || !strings.Contains(note, c.AnswerTag) {
			continue
		}

		answer := strings.ReplaceAll(note, c.AnswerTag, "")
		var lines []string
		for _, line := range strings.Split(answer, "\n") {
			if !strings.Contains(line, "ISSUE_ID") {
				lines = append(lines, line)
			}
		}
		answer = strings.Join(lines, "\n")
		answer = strings.ReplaceAll(answer, "\n", " ")
		if c.Anonymizer != nil {
			answer = c.Anonymizer.Anonymize(answer)
		}
		return answer
	}
	return ""
}
