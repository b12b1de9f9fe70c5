package collector

import (
	"bufio"
	"context"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/a2rchi/a2rchi/internal/logging"
	"github.com/a2rchi/a2rchi/internal/persistence"
)

// ScraperManager coordinates the web, git, and SSO scraper integrations,
// dispatching URLs read from configured input lists by their prefix
// convention (git-<url>, sso-<url>, otherwise a plain link) and
// centralising persistence.
type ScraperManager struct {
	WebScraper *WebScraper
	GitScraper *GitScraper
	SSO        *SSOCollector
	InputLists []string

	LinksEnabled bool
	GitEnabled   bool
	SSOEnabled   bool
	MaxDepth     int

	logger *logging.Logger
}

// NewScraperManager builds a ScraperManager. Any of webScraper/gitScraper/
// sso may be nil if that source type is disabled.
func NewScraperManager(webScraper *WebScraper, gitScraper *GitScraper, sso *SSOCollector, inputLists []string, linksEnabled, gitEnabled, ssoEnabled bool, maxDepth int, logger *logging.Logger) *ScraperManager {
	if logger == nil {
		logger = logging.Nop()
	}
	if maxDepth <= 0 {
		maxDepth = 1
	}
	return &ScraperManager{
		WebScraper:   webScraper,
		GitScraper:   gitScraper,
		SSO:          sso,
		InputLists:   inputLists,
		LinksEnabled: linksEnabled,
		GitEnabled:   gitEnabled,
		SSOEnabled:   ssoEnabled,
		MaxDepth:     maxDepth,
		logger:       logger,
	}
}

// CollectAllFromConfig reads every configured input list, splits URLs by
// their git-/sso-/plain prefix, and runs each enabled collector over its
// share.
func (m *ScraperManager) CollectAllFromConfig(ctx context.Context, p *persistence.Service) error {
	linkURLs, gitURLs, ssoURLs := m.urlsByType(ctx)

	m.CollectLinks(ctx, p, linkURLs)
	m.CollectSSO(ctx, p, ssoURLs)
	m.CollectGit(ctx, p, gitURLs)

	m.logger.Info(ctx, "web scraping completed")
	return nil
}

// CollectLinks crawls every URL in urls with WebScraper and persists each
// ScrapedResource produced.
func (m *ScraperManager) CollectLinks(ctx context.Context, p *persistence.Service, urls []string) {
	if !m.LinksEnabled || len(urls) == 0 || m.WebScraper == nil {
		return
	}
	for _, u := range urls {
		resources, err := m.WebScraper.Crawl(ctx, u, m.MaxDepth)
		if err != nil {
			m.logger.Warn(ctx, "failed to scrape url", zap.String("url", u), zap.Error(err))
			continue
		}
		for _, r := range resources {
			if _, err := p.PersistScraped(ctx, r, p.WebsitesDir()); err != nil {
				m.logger.Warn(ctx, "failed to persist scraped resource", zap.String("url", r.URL), zap.Error(err))
			}
		}
	}
}

// CollectGit clones and harvests every repository in urls with GitScraper.
func (m *ScraperManager) CollectGit(ctx context.Context, p *persistence.Service, urls []string) {
	if !m.GitEnabled || len(urls) == 0 || m.GitScraper == nil {
		return
	}
	for _, r := range m.GitScraper.Collect(ctx, urls) {
		if _, err := p.PersistScraped(ctx, r, p.GitDir()); err != nil {
			m.logger.Warn(ctx, "failed to persist git resource", zap.String("url", r.URL), zap.Error(err))
		}
	}
}

// CollectSSO crawls every URL in urls through the authenticated SSO
// session.
func (m *ScraperManager) CollectSSO(ctx context.Context, p *persistence.Service, urls []string) {
	if !m.SSOEnabled || len(urls) == 0 || m.SSO == nil {
		return
	}
	for _, u := range urls {
		resources, err := m.SSO.Collect(ctx, u, m.MaxDepth)
		if err != nil {
			m.logger.Warn(ctx, "failed to scrape sso url", zap.String("url", u), zap.Error(err))
			continue
		}
		for _, r := range resources {
			if _, err := p.PersistScraped(ctx, r, p.WebsitesDir()); err != nil {
				m.logger.Warn(ctx, "failed to persist sso resource", zap.String("url", r.URL), zap.Error(err))
			}
		}
	}
}

func (m *ScraperManager) urlsByType(ctx context.Context) (links, git, sso []string) {
	for _, listPath := range m.InputLists {
		urls, err := readURLList(listPath)
		if err != nil {
			m.logger.Warn(ctx, "input list not found", zap.String("path", listPath), zap.Error(err))
			continue
		}
		for _, raw := range urls {
			switch {
			case strings.HasPrefix(raw, "git-"):
				git = append(git, strings.TrimPrefix(raw, "git-"))
			case strings.HasPrefix(raw, "sso-"):
				sso = append(sso, strings.TrimPrefix(raw, "sso-"))
			default:
				links = append(links, raw)
			}
		}
	}
	return links, git, sso
}

func readURLList(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var urls []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		urls = append(urls, line)
	}
	return urls, scanner.Err()
}
