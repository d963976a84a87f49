package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/ptacemic/ai-dial-general-purpose-agent/logging"
)

// Validate checks that the config is usable.
func (c *Config) Validate() error {
	u, err := url.Parse(c.DIAL.Endpoint)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("dial.endpoint must be an http(s) URL, got %q", c.DIAL.Endpoint)
	}
	switch c.Agent.Provider {
	case "openai", "anthropic":
	default:
		return fmt.Errorf("agent.provider must be one of: openai, anthropic")
	}
	if c.Agent.Deployment == "" {
		return fmt.Errorf("agent.deployment is required (or set %s)", EnvDeployment)
	}
	if c.Agent.MaxTurns < 0 {
		return fmt.Errorf("agent.max_turns must not be negative")
	}
	if c.Agent.MaxParallelTools < 0 || c.Agent.MaxConcurrentRequests < 0 {
		return fmt.Errorf("agent concurrency limits must not be negative")
	}
	if c.Tools.FilePageSize <= 0 {
		return fmt.Errorf("tools.file_page_size must be positive")
	}
	if c.Tools.InterpreterURL != "" && c.Tools.InterpreterTool == "" {
		return fmt.Errorf("tools.interpreter_tool is required when tools.interpreter_url is set")
	}
	for _, s := range c.Tools.MCPServers {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("tools.mcp_servers must not contain empty entries")
		}
	}
	if c.Tools.StartupTimeout < 0 {
		return fmt.Errorf("tools.startup_timeout must not be negative")
	}
	if c.RAG.Enabled {
		if err := c.RAG.validate(); err != nil {
			return err
		}
	}
	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("logging.level: %w", err)
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format must be one of: text, json")
	}
	return nil
}

func (r RAG) validate() error {
	switch r.Embedder {
	case "openai", "hash":
	default:
		return fmt.Errorf("rag.embedder must be one of: openai, hash")
	}
	switch r.Index {
	case "flat", "sqlite-vec":
	default:
		return fmt.Errorf("rag.index must be one of: flat, sqlite-vec")
	}
	if r.ChunkSize <= 0 {
		return fmt.Errorf("rag.chunk_size must be positive")
	}
	if r.ChunkOverlap < 0 || r.ChunkOverlap >= r.ChunkSize {
		return fmt.Errorf("rag.chunk_overlap must be in [0, chunk_size)")
	}
	if r.TopK <= 0 {
		return fmt.Errorf("rag.top_k must be positive")
	}
	return nil
}

// Redact returns a copy of the config with API keys masked for display.
func (c *Config) Redact() *Config {
	copy := *c
	copy.DIAL.APIKey = redactKey(c.DIAL.APIKey)
	copy.Tools.MCPServers = append([]string(nil), c.Tools.MCPServers...)
	return &copy
}

func redactKey(key string) string {
	if key == "" {
		return ""
	}
	if len(key) <= 8 {
		return "****"
	}
	return key[:4] + "..." + key[len(key)-4:]
}
