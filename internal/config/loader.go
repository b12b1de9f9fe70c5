// Package config provides configuration loading for a2rchi.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

// Load loads configuration from environment variables, applies defaults for
// anything left unset, and validates the result.
//
// Environment variables are uppercased and underscore-separated, e.g.
// SERVER_HTTP_PORT -> server.http_port, VECTORSTORE_CHROMEM_PATH ->
// vectorstore.chromem.path. Any variable named <KEY>_FILE is treated as a
// secret indirection: COLLECTORS_JIRA_PAT_FILE is read and its contents
// are used for COLLECTORS_JIRA_PAT, so secrets can be mounted as files
// (Docker/Kubernetes secrets) instead of living in the process environment.
func Load() (*Config, error) {
	unset, err := applySecretFileOverrides()
	defer unset()
	if err != nil {
		return nil, fmt.Errorf("resolving secret files: %w", err)
	}

	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", transformKey), nil); err != nil {
		return nil, fmt.Errorf("loading environment: %w", err)
	}

	cfg := defaultConfig()
	if err := k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// applySecretFileOverrides scans the process environment for KEY_FILE
// entries, reads the referenced file, and sets KEY to its contents unless
// KEY was already set explicitly. It returns a cleanup func that unsets
// anything it set; Load defers that cleanup, so the variables set here
// exist only for the duration of one Load call.
func applySecretFileOverrides() (func(), error) {
	var set []string
	for _, kv := range os.Environ() {
		parts := strings.SplitN(kv, "=", 2)
		if len(parts) != 2 || !strings.HasSuffix(parts[0], "_FILE") {
			continue
		}
		baseKey := strings.TrimSuffix(parts[0], "_FILE")
		if _, explicit := os.LookupEnv(baseKey); explicit {
			continue
		}
		content, err := os.ReadFile(parts[1])
		if err != nil {
			return func() {}, fmt.Errorf("reading secret file for %s: %w", baseKey, err)
		}
		if err := os.Setenv(baseKey, strings.TrimSpace(string(content))); err != nil {
			return func() {}, fmt.Errorf("setting %s from secret file: %w", baseKey, err)
		}
		set = append(set, baseKey)
	}
	return func() {
		for _, k := range set {
			os.Unsetenv(k)
		}
	}, nil
}

// transformKey maps an environment variable name to a dotted koanf key.
// Names under a nested struct, or under a section whose own name contains
// an underscore, are matched against the prefixes below:
// VECTORSTORE_CHROMEM_PATH -> vectorstore.chromem.path,
// TOKEN_LIMIT_MAX_TOKENS -> token_limit.max_tokens. Any other name is
// split once on its first underscore to separate section from field:
// SERVER_HTTP_PORT -> server.http_port.
func transformKey(key string) string {
	lower := strings.ToLower(key)
	for _, section := range []struct{ prefix, key string }{
		{"vectorstore_chromem_", "vectorstore.chromem."},
		{"collectors_web_", "collectors.web."},
		{"collectors_git_", "collectors.git."},
		{"collectors_jira_", "collectors.jira."},
		{"collectors_redmine_", "collectors.redmine."},
		{"collectors_local_files_", "collectors.local_files."},
		{"token_limit_", "token_limit."},
	} {
		if strings.HasPrefix(lower, section.prefix) {
			return section.key + strings.TrimPrefix(lower, section.prefix)
		}
	}
	parts := strings.SplitN(lower, "_", 2)
	if len(parts) == 1 {
		return lower
	}
	return parts[0] + "." + parts[1]
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            9090,
			ShutdownTimeout: Duration(10 * time.Second),
		},
		DataPath: "/data",
		VectorStore: VectorStoreConfig{
			Provider: "chromem",
			Chromem: ChromemConfig{
				Path:           "/data/vectorstore",
				Compress:       false,
				DistanceMetric: "cosine",
				VectorSize:     384,
			},
			CollectionName:  "a2rchi",
			ChunkSize:       1000,
			ChunkOverlap:    200,
			ResetCollection: false,
			ParallelWorkers: 0,
			Stemming:        false,
		},
		Embeddings: EmbeddingsConfig{
			Model: "BAAI/bge-small-en-v1.5",
		},
		Scheduler: SchedulerConfig{
			Enabled:  true,
			CronSpec: "0 */6 * * *",
		},
		TokenLimit: TokenLimitConfig{
			MaxTokens:          4000,
			ReservedTokens:     500,
			MinHistoryMessages: 1,
			MinDocs:            1,
		},
	}
}
