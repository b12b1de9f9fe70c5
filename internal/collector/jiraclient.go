package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/a2rchi/a2rchi/internal/logging"
	"github.com/a2rchi/a2rchi/internal/resource"
)

// JiraClient authenticates against a JIRA server with a Personal Access
// Token and iterates issues across a set of configured projects, emitting
// one TicketResource per issue.
type JiraClient struct {
	BaseURL       string
	PAT           string
	Projects      []string
	AnonymizeData bool
	Anonymizer    *Anonymizer

	client *http.Client
	logger *logging.Logger
}

// NewJiraClient builds a JiraClient. If baseURL or pat is empty, Collect
// returns immediately: JIRA fetching is skipped rather than erroring.
func NewJiraClient(baseURL, pat string, projects []string, anonymize bool, anonymizer *Anonymizer, logger *logging.Logger) *JiraClient {
	if logger == nil {
		logger = logging.Nop()
	}
	return &JiraClient{
		BaseURL:       baseURL,
		PAT:           pat,
		Projects:      projects,
		AnonymizeData: anonymize,
		Anonymizer:    anonymizer,
		client:        &http.Client{},
		logger:        logger,
	}
}

type jiraSearchResponse struct {
	Issues []jiraIssue `json:"issues"`
}

type jiraIssue struct {
	Key    string `json:"key"`
	Fields struct {
		Summary     string `json:"summary"`
		Description string `json:"description"`
		Created     string `json:"created"`
		Project     struct {
			Key string `json:"key"`
		} `json:"project"`
	} `json:"fields"`
}

type jiraComment struct {
	Body string `json:"body"`
}

type jiraCommentsResponse struct {
	Comments []jiraComment `json:"comments"`
}

// Collect fetches every issue across configured projects, 100 at a time,
// and returns one TicketResource per issue.
func (c *JiraClient) Collect(ctx context.Context) []*resource.TicketResource {
	if c.BaseURL == "" || c.PAT == "" || len(c.Projects) == 0 {
		c.logger.Info(ctx, "JIRA not configured; skipping ticket collection")
		return nil
	}

	var out []*resource.TicketResource
	for _, project := range c.Projects {
		issues, err := c.fetchAllIssues(ctx, project)
		if err != nil {
			c.logger.Warn(ctx, "failed to fetch JIRA issues", zap.String("project", project), zap.Error(err))
			continue
		}
		for _, issue := range issues {
			out = append(out, c.toTicketResource(ctx, issue))
		}
	}
	return out
}

func (c *JiraClient) fetchAllIssues(ctx context.Context, project string) ([]jiraIssue, error) {
	const pageSize = 100
	var all []jiraIssue
	startAt := 0

	for {
		page, err := c.search(ctx, fmt.Sprintf("project=%s", project), startAt, pageSize)
		if err != nil {
			return nil, err
		}
		if len(page) == 0 {
			break
		}
		all = append(all, page...)
		if len(page) < pageSize {
			break
		}
		startAt += pageSize
	}
	return all, nil
}

func (c *JiraClient) search(ctx context.Context, jql string, startAt, maxResults int) ([]jiraIssue, error) {
	url := fmt.Sprintf("%s/rest/api/2/search?jql=%s&startAt=%d&maxResults=%d", c.BaseURL, jql, startAt, maxResults)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.PAT)
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("jira search returned status %d", resp.StatusCode)
	}

	var parsed jiraSearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, err
	}
	return parsed.Issues, nil
}

func (c *JiraClient) comments(ctx context.Context, issueKey string) []jiraComment {
	url := fmt.Sprintf("%s/rest/api/2/issue/%s/comment", c.BaseURL, issueKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil
	}
	req.Header.Set("Authorization", "Bearer "+c.PAT)
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil
	}

	var parsed jiraCommentsResponse
	if json.NewDecoder(resp.Body).Decode(&parsed) != nil {
		return nil
	}
	return parsed.Comments
}

func (c *JiraClient) toTicketResource(ctx context.Context, issue jiraIssue) *resource.TicketResource {
	text := fmt.Sprintf("Title: %s\nSummary: %s\nDescription: %s\n", issue.Key, issue.Fields.Summary, issue.Fields.Description)
	for _, comment := range c.comments(ctx, issue.Key) {
		text += "Comment: " + comment.Body + "\n"
	}

	if c.AnonymizeData && c.Anonymizer != nil {
		text = c.Anonymizer.Anonymize(text)
	}

	content := text
	if issue.Fields.Created != "" {
		content = issue.Fields.Created + "\n" + text
	}

	extra := map[string]interface{}{}
	if issue.Fields.Project.Key != "" {
		extra["project"] = issue.Fields.Project.Key
	}
	if c.BaseURL != "" {
		extra["url"] = c.BaseURL + "/browse/" + issue.Key
	}

	return &resource.TicketResource{
		TicketID:   issue.Key,
		Body:       content,
		SourceType: "jira",
		CreatedAt:  issue.Fields.Created,
		Extra:      extra,
	}
}
