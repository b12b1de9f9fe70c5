package collector

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/transport/http"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/a2rchi/a2rchi/internal/logging"
	"github.com/a2rchi/a2rchi/internal/resource"
)

var gitRepoNamePattern = regexp.MustCompile(`(?i)(?:github|gitlab)\.[\w.]+/[^/]+/([\w.-]+)(?:\.git|/)?$`)

// GitScraper clones documentation repositories and indexes their MkDocs
// site, recording each markdown file's computed public URL alongside its
// git creation/last-modified timestamps.
type GitScraper struct {
	GitUsername string
	GitToken    string
	WorkDir     string

	logger *logging.Logger
}

// NewGitScraper builds a GitScraper. If username/token are empty, Collect
// returns immediately with no results: git scraping requires credentials.
func NewGitScraper(username, token, workDir string, logger *logging.Logger) *GitScraper {
	if logger == nil {
		logger = logging.Nop()
	}
	return &GitScraper{GitUsername: username, GitToken: token, WorkDir: workDir, logger: logger}
}

type clonedRepo struct {
	originalURL string
	cloneURL    string
	repoName    string
	branch      string
}

// Collect clones each URL of form (github|gitlab)…/owner/repo(.git)?(/tree/<branch>)?,
// parses mkdocs.yml for site_url, and emits one ScrapedResource per
// markdown file under docs/. The clone is always removed afterward, even
// on failure mid-harvest.
func (g *GitScraper) Collect(ctx context.Context, gitURLs []string) []*resource.ScrapedResource {
	if g.GitUsername == "" || g.GitToken == "" || len(gitURLs) == 0 {
		g.logger.Info(ctx, "no git credentials supplied; skipping git scraping")
		return nil
	}

	var harvested []*resource.ScrapedResource
	for _, rawURL := range gitURLs {
		parsed, err := g.parseURL(rawURL)
		if err != nil {
			g.logger.Warn(ctx, "unsupported git url", zap.String("url", rawURL), zap.Error(err))
			continue
		}

		repoPath, repo, err := g.cloneRepo(ctx, parsed)
		if err != nil {
			g.logger.Error(ctx, "failed to clone repository", zap.String("url", rawURL), zap.Error(err))
			continue
		}

		func() {
			defer os.RemoveAll(repoPath)
			resources, err := g.harvestRepository(ctx, repo, repoPath, parsed)
			if err != nil {
				g.logger.Warn(ctx, "failed to harvest repository", zap.String("repo", parsed.repoName), zap.Error(err))
				return
			}
			harvested = append(harvested, resources...)
		}()
	}

	if len(harvested) > 0 {
		g.logger.Info(ctx, "git scraping completed", zap.Int("resources", len(harvested)))
	}
	return harvested
}

func (g *GitScraper) parseURL(rawURL string) (*clonedRepo, error) {
	cloneURL := rawURL
	branch := ""
	if idx := strings.Index(cloneURL, "/tree/"); idx != -1 {
		branch = cloneURL[idx+len("/tree/"):]
		cloneURL = cloneURL[:idx]
	}

	match := gitRepoNamePattern.FindStringSubmatch(cloneURL)
	if match == nil {
		return nil, fmt.Errorf("git url %q does not match the expected format", rawURL)
	}
	repoName := match[1]

	switch {
	case strings.Contains(cloneURL, "gitlab"):
		// credentials injected at clone time via BasicAuth, not in the URL itself
	case strings.Contains(cloneURL, "github"):
		// GitHub tokens are passed as BasicAuth too; no URL rewrite needed
	default:
		return nil, fmt.Errorf("unsupported git host in url %q", rawURL)
	}

	return &clonedRepo{originalURL: rawURL, cloneURL: cloneURL, repoName: repoName, branch: branch}, nil
}

func (g *GitScraper) cloneRepo(ctx context.Context, parsed *clonedRepo) (string, *git.Repository, error) {
	repoPath := filepath.Join(g.WorkDir, parsed.repoName)
	opts := &git.CloneOptions{
		URL: parsed.cloneURL,
		Auth: &http.BasicAuth{
			Username: g.GitUsername,
			Password: g.GitToken,
		},
	}
	if parsed.branch != "" {
		opts.ReferenceName = refNameForBranch(parsed.branch)
	}

	repo, err := git.PlainCloneContext(ctx, repoPath, false, opts)
	if err != nil {
		return "", nil, fmt.Errorf("cloning %s: %w", parsed.originalURL, err)
	}
	return repoPath, repo, nil
}

func (g *GitScraper) harvestRepository(ctx context.Context, repo *git.Repository, repoPath string, parsed *clonedRepo) ([]*resource.ScrapedResource, error) {
	siteURL := g.resolveSiteURL(repoPath, parsed)

	docsDir := filepath.Join(repoPath, "docs")
	if _, err := os.Stat(docsDir); err != nil {
		g.logger.Info(ctx, "docs directory not found; skipping", zap.String("repo", parsed.repoName))
		return nil, nil
	}

	var resources []*resource.ScrapedResource
	err := filepath.WalkDir(docsDir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(path, ".md") {
			return nil
		}

		relFromDocs, err := filepath.Rel(docsDir, path)
		if err != nil {
			return nil
		}
		urlPath := strings.TrimSuffix(relFromDocs, filepath.Ext(relFromDocs))
		currentURL := strings.TrimSuffix(siteURL, "/") + "/" + filepath.ToSlash(urlPath)

		content, err := os.ReadFile(path)
		if err != nil {
			return nil
		}
		if len(content) == 0 {
			return nil
		}

		relFromRepo, _ := filepath.Rel(repoPath, path)
		createdAt, updatedAt := g.commitTimestamps(repo, relFromRepo)

		title := titleCase(strings.ReplaceAll(strings.TrimSuffix(filepath.Base(path), ".md"), "_", " "))

		resources = append(resources, &resource.ScrapedResource{
			URL:        currentURL,
			Body:       content,
			Suffix:     "txt",
			SourceType: "git",
			Extra: map[string]interface{}{
				"path":       relFromRepo,
				"title":      title,
				"created_at": createdAt,
				"updated_at": updatedAt,
			},
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return resources, nil
}

func titleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		if len(w) > 0 {
			words[i] = strings.ToUpper(w[:1]) + w[1:]
		}
	}
	return strings.Join(words, " ")
}

func refNameForBranch(branch string) plumbing.ReferenceName {
	return plumbing.NewBranchReferenceName(branch)
}

func (g *GitScraper) resolveSiteURL(repoPath string, parsed *clonedRepo) string {
	data, err := os.ReadFile(filepath.Join(repoPath, "mkdocs.yml"))
	if err == nil {
		var doc struct {
			SiteURL string `yaml:"site_url"`
		}
		if yaml.Unmarshal(data, &doc) == nil && doc.SiteURL != "" {
			if !strings.HasSuffix(doc.SiteURL, "/") {
				return doc.SiteURL + "/"
			}
			return doc.SiteURL
		}
	}

	switch {
	case strings.Contains(parsed.cloneURL, "rucio"):
		return "https://rucio.cern.ch/documentation/"
	case strings.Contains(parsed.cloneURL, "fts"):
		return "https://fts3-docs.web.cern.ch/fts3-docs/"
	default:
		return parsed.cloneURL + "/"
	}
}

// commitTimestamps returns the RFC3339 creation (first commit) and
// last-modified (most recent commit) timestamps for filePath within repo.
// Either value is empty when the file has no history.
func (g *GitScraper) commitTimestamps(repo *git.Repository, filePath string) (createdAt, updatedAt string) {
	iter, err := repo.Log(&git.LogOptions{FileName: &filePath})
	if err != nil {
		return "", ""
	}
	defer iter.Close()

	var first, last time.Time
	err = iter.ForEach(func(c *object.Commit) error {
		if last.IsZero() {
			last = c.Committer.When
		}
		first = c.Committer.When
		return nil
	})
	if err != nil {
		return "", ""
	}
	if last.IsZero() {
		return "", ""
	}
	return first.UTC().Format(time.RFC3339Nano), last.UTC().Format(time.RFC3339Nano)
}
