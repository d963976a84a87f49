// Package config loads the agent configuration: built-in defaults, then an
// optional TOML file, then environment overrides.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Environment variables that override file values.
const (
	EnvEndpoint   = "DIAL_ENDPOINT"
	EnvDeployment = "DEPLOYMENT_NAME"
	EnvAPIKey     = "DIAL_API_KEY"
	EnvAPIVersion = "DIAL_API_VERSION"
	EnvConfigPath = "DIALAGENT_CONFIG"
)

// Config is the complete agent configuration.
type Config struct {
	DIAL    DIAL    `toml:"dial"`
	Agent   Agent   `toml:"agent"`
	Tools   Tools   `toml:"tools"`
	RAG     RAG     `toml:"rag"`
	Logging Logging `toml:"logging"`
}

// DIAL holds the DIAL core connection.
type DIAL struct {
	Endpoint   string `toml:"endpoint"`
	APIKey     string `toml:"api_key"`
	APIVersion string `toml:"api_version"`
}

// Agent configures the turn loop.
type Agent struct {
	// Provider is "openai" (DIAL chat completions) or "anthropic".
	Provider              string `toml:"provider"`
	Deployment            string `toml:"deployment"`
	SystemPrompt          string `toml:"system_prompt"`
	MaxTurns              int    `toml:"max_turns"`
	MaxParallelTools      int    `toml:"max_parallel_tools"`
	MaxConcurrentRequests int    `toml:"max_concurrent_requests"`
}

// Tools selects and configures capabilities.
type Tools struct {
	ImageDeployment     string   `toml:"image_deployment"`
	WebSearch           bool     `toml:"web_search"`
	WebSearchDeployment string   `toml:"web_search_deployment"`
	FilePageSize        int      `toml:"file_page_size"`
	MCPServers          []string `toml:"mcp_servers"`
	InterpreterURL      string   `toml:"interpreter_url"`
	InterpreterTool     string   `toml:"interpreter_tool"`
	// StartupTimeout bounds MCP tool discovery when the agent starts.
	StartupTimeout Duration `toml:"startup_timeout"`
}

// RAG configures document search.
type RAG struct {
	Enabled    bool   `toml:"enabled"`
	Deployment string `toml:"deployment"`
	// Embedder is "openai" (DIAL embeddings) or "hash" (local feature hashing).
	Embedder       string `toml:"embedder"`
	EmbeddingModel string `toml:"embedding_model"`
	// Index is "flat" or "sqlite-vec".
	Index         string   `toml:"index"`
	ChunkSize     int      `toml:"chunk_size"`
	ChunkOverlap  int      `toml:"chunk_overlap"`
	TopK          int      `toml:"top_k"`
	CacheCapacity int      `toml:"cache_capacity"`
	CacheTTL      Duration `toml:"cache_ttl"`
}

// Logging configures the process logger.
type Logging struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		DIAL: DIAL{
			Endpoint:   "http://localhost:8080",
			APIVersion: "2025-01-01-preview",
		},
		Agent: Agent{
			Provider:   "openai",
			Deployment: "claude-sonnet-3-7",
			MaxTurns:   25,
		},
		Tools: Tools{
			ImageDeployment:     "dall-e-3",
			WebSearchDeployment: "gpt-4o",
			FilePageSize:        10000,
			MCPServers:          []string{"http://localhost:8051/mcp"},
			InterpreterURL:      "http://localhost:8050/mcp",
			InterpreterTool:     "execute_code",
			StartupTimeout:      Duration(30 * time.Second),
		},
		RAG: RAG{
			Enabled:        true,
			Embedder:       "openai",
			EmbeddingModel: "text-embedding-3-small",
			Index:          "flat",
			ChunkSize:      500,
			ChunkOverlap:   50,
			TopK:           3,
			CacheCapacity:  128,
			CacheTTL:       Duration(time.Hour),
		},
		Logging: Logging{Level: "info", Format: "text"},
	}
}

// Path returns the default config file location.
func Path() string {
	if p := os.Getenv(EnvConfigPath); p != "" {
		return p
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return "dialagent.toml"
	}
	return filepath.Join(dir, "dialagent", "config.toml")
}

// Load reads path over the defaults and applies environment overrides. A
// missing file is not an error; an empty path means Path().
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		path = Path()
	}
	md, err := toml.DecodeFile(path, cfg)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	default:
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			keys := make([]string, len(undecoded))
			for i, k := range undecoded {
				keys[i] = k.String()
			}
			return nil, fmt.Errorf("config: unknown keys in %s: %s", path, strings.Join(keys, ", "))
		}
	}
	cfg.ApplyEnv(os.LookupEnv)
	return cfg, nil
}

// ApplyEnv overrides values from the environment. lookup is usually os.LookupEnv.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	set := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	set(EnvEndpoint, &c.DIAL.Endpoint)
	set(EnvDeployment, &c.Agent.Deployment)
	set(EnvAPIKey, &c.DIAL.APIKey)
	set(EnvAPIVersion, &c.DIAL.APIVersion)
}
