// Package config provides configuration loading for a2rchi.
//
// Configuration is loaded from environment variables, with a small amount
// of defaulting. Each sub-config carries a `koanf:"..."` tag so the whole
// tree can be unmarshalled in one pass by Load.
package config

import (
	"errors"
	"fmt"
	"net"
	"regexp"
	"strings"
	"time"
)

// Config holds the complete a2rchi configuration.
type Config struct {
	Production  ProductionConfig  `koanf:"production"`
	Server      ServerConfig      `koanf:"server"`
	DataPath    string            `koanf:"data_path"`
	VectorStore VectorStoreConfig `koanf:"vectorstore"`
	Embeddings  EmbeddingsConfig  `koanf:"embeddings"`
	Scheduler   SchedulerConfig   `koanf:"scheduler"`
	Collectors  CollectorsConfig  `koanf:"collectors"`
	TokenLimit  TokenLimitConfig  `koanf:"token_limit"`
}

// ServerConfig holds HTTP server configuration for internal/httpapi.
type ServerConfig struct {
	Port            int      `koanf:"http_port"`
	ShutdownTimeout Duration `koanf:"shutdown_timeout"`
}

// VectorStoreConfig selects and configures the embedded vector collection
// backend, along with the reconciliation settings VectorStoreManager uses
// to keep it in sync with the catalog.
type VectorStoreConfig struct {
	Provider string        `koanf:"provider"` // "chromem" (default) or "memory"
	Chromem  ChromemConfig `koanf:"chromem"`

	// CollectionName is suffixed with "_with_<embedding model>" when the
	// chromem collection is opened, so switching embedding models never
	// mixes incompatible vectors into one collection.
	CollectionName string `koanf:"collection_name"`

	// ChunkSize and ChunkOverlap configure the character-based text
	// splitter applied to every document before embedding.
	ChunkSize    int `koanf:"chunk_size"`
	ChunkOverlap int `koanf:"chunk_overlap"`

	// ResetCollection drops and rebuilds the collection on the next
	// reconciliation pass instead of diffing against it.
	ResetCollection bool `koanf:"reset_collection"`

	// ParallelWorkers bounds how many files are loaded/chunked
	// concurrently during reconciliation. 0 selects a default of
	// min(64, NumCPU+4).
	ParallelWorkers int `koanf:"parallel_workers"`

	// Stemming, if enabled, applies Porter stemming to chunk text
	// before it is embedded and indexed.
	Stemming bool `koanf:"stemming"`
}

// Validate validates VectorStoreConfig.
func (c *VectorStoreConfig) Validate() error {
	if c.ChunkSize <= 0 {
		return fmt.Errorf("vectorstore.chunk_size must be positive, got %d", c.ChunkSize)
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		return fmt.Errorf("vectorstore.chunk_overlap must be in [0, chunk_size), got %d", c.ChunkOverlap)
	}
	switch c.Provider {
	case "chromem":
		return c.Chromem.Validate()
	case "memory":
		return nil
	default:
		return fmt.Errorf("unsupported vectorstore provider: %s (supported: chromem, memory)", c.Provider)
	}
}

// ChromemConfig configures the chromem-go embedded vector database.
type ChromemConfig struct {
	// Path is the directory for persistent storage.
	Path string `koanf:"path"`

	// Compress enables gzip compression for stored data.
	Compress bool `koanf:"compress"`

	// DistanceMetric is one of "l2", "cosine", "ip"; set at collection creation.
	DistanceMetric string `koanf:"distance_metric"`

	// VectorSize is the expected embedding dimension.
	VectorSize int `koanf:"vector_size"`
}

// Validate validates ChromemConfig.
func (c *ChromemConfig) Validate() error {
	if c.VectorSize <= 0 {
		return fmt.Errorf("vector_size must be positive, got %d", c.VectorSize)
	}
	switch c.DistanceMetric {
	case "l2", "cosine", "ip":
	default:
		return fmt.Errorf("unsupported distance metric: %s (supported: l2, cosine, ip)", c.DistanceMetric)
	}
	return nil
}

// EmbeddingsConfig holds the embedding provider contract configuration.
// a2rchi does not ship a concrete network embedder; BaseURL/Model describe
// whatever external embedding service the deployment wires in.
type EmbeddingsConfig struct {
	BaseURL string `koanf:"base_url"`
	Model   string `koanf:"model"`
	APIKey  Secret `koanf:"api_key"`
}

// SchedulerConfig configures the background ingestion cron scheduler.
type SchedulerConfig struct {
	Enabled  bool   `koanf:"enabled"`
	CronSpec string `koanf:"cron_spec"` // robfig/cron/v3 expression, e.g. "0 */6 * * *"
}

// CollectorsConfig aggregates per-source collector configuration.
type CollectorsConfig struct {
	Web        WebCollectorConfig   `koanf:"web"`
	Git        GitCollectorConfig   `koanf:"git"`
	Jira       JiraConfig           `koanf:"jira"`
	Redmine    RedmineConfig        `koanf:"redmine"`
	LocalFiles LocalFilesConfig     `koanf:"local_files"`
}

// WebCollectorConfig configures the BFS web scraper.
type WebCollectorConfig struct {
	Enabled    bool     `koanf:"enabled"`
	SeedURLs   []string `koanf:"seed_urls"`
	MaxDepth   int      `koanf:"max_depth"`
	MaxPages   int      `koanf:"max_pages"`
	UserAgent  string   `koanf:"user_agent"`
}

// GitCollectorConfig configures repository cloning/scraping.
type GitCollectorConfig struct {
	Enabled      bool     `koanf:"enabled"`
	Repositories []string `koanf:"repositories"`
	Token        Secret   `koanf:"token"`
}

// JiraConfig configures the JIRA ticket collector.
type JiraConfig struct {
	Enabled    bool   `koanf:"enabled"`
	BaseURL    string `koanf:"base_url"`
	ProjectKey string `koanf:"project_key"`
	PAT        Secret `koanf:"pat"`
}

// RedmineConfig configures the Redmine ticket collector.
type RedmineConfig struct {
	Enabled   bool   `koanf:"enabled"`
	BaseURL   string `koanf:"base_url"`
	ProjectID string `koanf:"project_id"`
	APIKey    Secret `koanf:"api_key"`
}

// LocalFilesConfig configures the local filesystem collector.
type LocalFilesConfig struct {
	Enabled bool     `koanf:"enabled"`
	Roots   []string `koanf:"roots"`
}

// TokenLimitConfig configures prompt token-budget pruning.
type TokenLimitConfig struct {
	MaxTokens          int `koanf:"max_tokens"`
	ReservedTokens     int `koanf:"reserved_tokens"`
	MinHistoryMessages int `koanf:"min_history_messages"`
	MinDocs            int `koanf:"min_docs"`
}

// ProductionConfig holds production deployment safety switches.
type ProductionConfig struct {
	Enabled               bool `koanf:"enabled"`
	LocalModeAcknowledged bool `koanf:"local_mode_acknowledged"`
	RequireAuthentication bool `koanf:"require_authentication"`
	AuthenticationConfigured bool `koanf:"authentication_configured"`
}

// IsProduction returns true if running in production mode.
func (c *ProductionConfig) IsProduction() bool {
	return c.Enabled
}

// Validate checks production configuration for obviously unsafe combinations.
func (c *ProductionConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.RequireAuthentication && !c.AuthenticationConfigured {
		return errors.New("require_authentication is set but authentication is not configured")
	}
	return nil
}

// Validate validates the complete configuration tree.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d (must be 1-65535)", c.Server.Port)
	}
	if c.Server.ShutdownTimeout.Duration() <= 0 {
		return errors.New("shutdown timeout must be positive")
	}
	if err := validatePath(c.DataPath); err != nil {
		return fmt.Errorf("invalid data_path: %w", err)
	}
	if err := c.VectorStore.Validate(); err != nil {
		return fmt.Errorf("invalid vectorstore config: %w", err)
	}
	if c.Embeddings.BaseURL != "" {
		if err := validateURL(c.Embeddings.BaseURL); err != nil {
			return fmt.Errorf("invalid embeddings base_url: %w", err)
		}
	}
	if c.Collectors.Jira.BaseURL != "" {
		if err := validateURL(c.Collectors.Jira.BaseURL); err != nil {
			return fmt.Errorf("invalid jira base_url: %w", err)
		}
	}
	if c.Collectors.Redmine.BaseURL != "" {
		if err := validateURL(c.Collectors.Redmine.BaseURL); err != nil {
			return fmt.Errorf("invalid redmine base_url: %w", err)
		}
	}
	if c.TokenLimit.MaxTokens <= 0 {
		return fmt.Errorf("token_limit.max_tokens must be positive, got %d", c.TokenLimit.MaxTokens)
	}
	if c.TokenLimit.MinHistoryMessages < 0 || c.TokenLimit.MinDocs < 0 {
		return errors.New("token_limit.min_history_messages and min_docs must be non-negative")
	}
	return c.Production.Validate()
}

// validateHostname checks for command-injection-shaped hostnames. Not currently
// invoked by Validate (no remote vectorstore host exists in this deployment
// shape) but kept as a building block for deployments that add one.
func validateHostname(host string) error {
	if host == "" {
		return nil
	}
	if net.ParseIP(host) != nil {
		return nil
	}
	hostnameRegex := regexp.MustCompile(`^[a-zA-Z0-9]([a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?(\.[a-zA-Z0-9]([a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?)*$`)
	if !hostnameRegex.MatchString(host) {
		return fmt.Errorf("invalid hostname format: %s", host)
	}
	return nil
}

func validatePath(path string) error {
	if path == "" {
		return errors.New("path must not be empty")
	}
	if strings.Contains(path, "..") {
		return fmt.Errorf("path contains traversal sequence: %s", path)
	}
	return nil
}

func validateURL(urlStr string) error {
	if !strings.HasPrefix(urlStr, "http://") && !strings.HasPrefix(urlStr, "https://") {
		return fmt.Errorf("url must use http:// or https:// scheme, got: %s", urlStr)
	}
	return nil
}
