// Package app wires configuration into a ready agent: providers, the DIAL
// storage client, every capability and the registry they are offered from.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"

	"github.com/ptacemic/ai-dial-general-purpose-agent/agent"
	"github.com/ptacemic/ai-dial-general-purpose-agent/cache"
	"github.com/ptacemic/ai-dial-general-purpose-agent/config"
	"github.com/ptacemic/ai-dial-general-purpose-agent/dial"
	"github.com/ptacemic/ai-dial-general-purpose-agent/flow"
	"github.com/ptacemic/ai-dial-general-purpose-agent/logging"
	"github.com/ptacemic/ai-dial-general-purpose-agent/mcpclient"
	"github.com/ptacemic/ai-dial-general-purpose-agent/model"
	"github.com/ptacemic/ai-dial-general-purpose-agent/model/anthropic"
	"github.com/ptacemic/ai-dial-general-purpose-agent/model/openai"
	"github.com/ptacemic/ai-dial-general-purpose-agent/rag"
	"github.com/ptacemic/ai-dial-general-purpose-agent/tool"
	"github.com/ptacemic/ai-dial-general-purpose-agent/tool/deployment"
	"github.com/ptacemic/ai-dial-general-purpose-agent/tool/files"
	"github.com/ptacemic/ai-dial-general-purpose-agent/tool/interpreter"
	"github.com/ptacemic/ai-dial-general-purpose-agent/tool/mcptool"
	"github.com/ptacemic/ai-dial-general-purpose-agent/tool/ragsearch"
)

// Options configures Build.
type Options struct {
	// Logger defaults to a logger built from the config's logging section.
	Logger logging.Logger
	// Version is reported to MCP servers.
	Version string
	// ChatModel replaces the provider selected by the config.
	ChatModel model.Model
	// DIALModel replaces the DIAL chat model used by deployment-backed tools.
	DIALModel model.Model
	// Embedder replaces the embedder selected by the config.
	Embedder rag.Embedder
}

// App is a wired agent together with the resources it owns.
type App struct {
	Config   *config.Config
	Agent    *agent.Agent
	Registry *tool.Registry
	Logger   logging.Logger
	// Warnings lists optional capabilities that could not be set up.
	Warnings []string

	docs    *cache.Store[*rag.Document]
	closers []io.Closer
}

// NewLogger builds the process logger from the logging section.
func NewLogger(cfg config.Logging) (*logging.AgentLogger, error) {
	level, err := logging.ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	return logging.NewSlogLogger(level, cfg.Format, false).WithComponent("dialagent"), nil
}

// Build validates cfg and creates the agent. Optional capabilities that fail
// to start (MCP servers, the code interpreter) are skipped with a warning.
func Build(ctx context.Context, cfg *config.Config, optFns ...func(o *Options)) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("app: %w", err)
	}
	opts := Options{Version: "dev"}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Logger == nil {
		l, err := NewLogger(cfg.Logging)
		if err != nil {
			return nil, err
		}
		opts.Logger = l
	}

	a := &App{Config: cfg, Logger: opts.Logger}

	dialModel := opts.DIALModel
	if dialModel == nil {
		dialModel = newDIALModel(cfg)
	}
	chatModel := opts.ChatModel
	if chatModel == nil {
		chatModel = newChatModel(cfg, dialModel)
	}
	storage := dial.New(cfg.DIAL.Endpoint, func(o *dial.Options) { o.Logger = opts.Logger })

	tools := []tool.Tool{
		files.New(storage, func(o *files.Options) { o.PageSize = cfg.Tools.FilePageSize }),
		deployment.NewImageGeneration(dialModel, cfg.Tools.ImageDeployment),
	}
	if cfg.Tools.WebSearch {
		tools = append(tools, deployment.NewWebSearch(dialModel, cfg.Tools.WebSearchDeployment))
	}
	if cfg.RAG.Enabled {
		t, err := a.ragTool(cfg, dialModel, storage, opts.Embedder)
		if err != nil {
			return nil, err
		}
		tools = append(tools, t)
	}

	startCtx := ctx
	if d := cfg.Tools.StartupTimeout.Std(); d > 0 {
		var cancel context.CancelFunc
		startCtx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}
	for _, endpoint := range cfg.Tools.MCPServers {
		discovered, err := a.mcpTools(startCtx, endpoint, opts)
		if err != nil {
			a.warn("mcp tools unavailable", endpoint, err)
			continue
		}
		tools = append(tools, discovered...)
	}
	if cfg.Tools.InterpreterURL != "" {
		it, err := a.interpreterTool(startCtx, cfg, storage, opts)
		if err != nil {
			a.warn("code interpreter unavailable", cfg.Tools.InterpreterURL, err)
		} else {
			tools = append(tools, it)
		}
	}

	registry, err := tool.NewRegistry(tools...)
	if err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("app: %w", err)
	}
	a.Registry = registry

	instruction := agent.NewInstructionFromText(agent.DefaultSystemPrompt)
	if cfg.Agent.SystemPrompt != "" {
		instruction = agent.NewInstructionFromText(cfg.Agent.SystemPrompt)
	}
	a.Agent = agent.New(chatModel, registry, func(o *agent.Options) {
		o.Instruction = instruction
		o.Deployment = cfg.Agent.Deployment
		o.MaxTurns = cfg.Agent.MaxTurns
		o.MaxConcurrentRequests = cfg.Agent.MaxConcurrentRequests
		o.Dispatcher = flow.DispatcherOptions{MaxParallel: cfg.Agent.MaxParallelTools}
		o.Logger = opts.Logger
	})

	opts.Logger.Info("app.ready",
		"deployment", cfg.Agent.Deployment,
		"provider", cfg.Agent.Provider,
		"tools", registry.Names(),
		"warnings", len(a.Warnings),
	)
	return a, nil
}

// Close releases MCP sessions and cached indexes.
func (a *App) Close() error {
	var errs []error
	for _, c := range a.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	if a.docs != nil {
		a.docs.Purge()
	}
	return errors.Join(errs...)
}

func (a *App) warn(msg, endpoint string, err error) {
	a.Warnings = append(a.Warnings, fmt.Sprintf("%s (%s): %v", msg, endpoint, err))
	a.Logger.Warn("app.capability_skipped", "reason", msg, "endpoint", endpoint, "error", err.Error())
}

func (a *App) ragTool(cfg *config.Config, m model.Model, storage *dial.Client, embedder rag.Embedder) (tool.Tool, error) {
	newIndex := rag.NewFlatIndexFactory()
	if cfg.RAG.Index == "sqlite-vec" {
		newIndex = rag.NewSQLiteVecIndexFactory()
	}
	a.docs = cache.New[*rag.Document](func(o *cache.Options) {
		o.Capacity = cfg.RAG.CacheCapacity
		o.IdleTTL = cfg.RAG.CacheTTL.Std()
		o.Logger = a.Logger
	})

	var embedderFor func(apiKey string) rag.Embedder
	if embedder == nil {
		switch cfg.RAG.Embedder {
		case "hash":
			embedder = rag.NewHashEmbedder(rag.DefaultHashDims)
		case "openai":
			e := openai.NewEmbedder(func(o *openai.EmbedderOptions) {
				o.Model = cfg.RAG.EmbeddingModel
				o.Endpoint = cfg.DIAL.Endpoint
				o.APIVersion = cfg.DIAL.APIVersion
				o.APIKey = cfg.DIAL.APIKey
			})
			embedder = e
			embedderFor = func(apiKey string) rag.Embedder {
				if apiKey == "" {
					return e
				}
				return e.WithAPIKey(apiKey)
			}
		default:
			return nil, fmt.Errorf("app: unknown embedder %q", cfg.RAG.Embedder)
		}
	}

	return ragsearch.New(m, storage, embedder, func(o *ragsearch.Options) {
		o.Deployment = cfg.RAG.Deployment
		o.TopK = cfg.RAG.TopK
		o.Splitter = rag.NewSplitter(func(so *rag.SplitterOptions) {
			so.ChunkSize = cfg.RAG.ChunkSize
			so.ChunkOverlap = cfg.RAG.ChunkOverlap
		})
		o.NewIndex = newIndex
		o.EmbedderFor = embedderFor
		o.Cache = a.docs
	}), nil
}

func (a *App) mcpClient(endpoint string, opts Options) *mcpclient.Client {
	c := mcpclient.New(endpoint, func(o *mcpclient.Options) {
		o.Version = opts.Version
		o.Logger = opts.Logger
	})
	a.closers = append(a.closers, c)
	return c
}

func (a *App) mcpTools(ctx context.Context, endpoint string, opts Options) ([]tool.Tool, error) {
	return mcptool.Discover(ctx, a.mcpClient(endpoint, opts))
}

func (a *App) interpreterTool(ctx context.Context, cfg *config.Config, storage *dial.Client, opts Options) (tool.Tool, error) {
	return interpreter.New(ctx, a.mcpClient(cfg.Tools.InterpreterURL, opts), storage, cfg.Tools.InterpreterTool)
}

func newDIALModel(cfg *config.Config) *openai.Model {
	return openai.NewModel(func(o *openai.Options) {
		o.Model = cfg.Agent.Deployment
		o.Endpoint = cfg.DIAL.Endpoint
		o.APIVersion = cfg.DIAL.APIVersion
		o.APIKey = cfg.DIAL.APIKey
	})
}

// newChatModel selects the provider answering the conversation. DIAL serves
// every deployment through the OpenAI layout, so "openai" reuses dialModel.
func newChatModel(cfg *config.Config, dialModel model.Model) model.Model {
	if cfg.Agent.Provider != "anthropic" {
		return dialModel
	}
	return anthropic.NewModel(func(o *anthropic.Options) {
		o.Model = anthropicsdk.Model(cfg.Agent.Deployment)
		o.APIKey = cfg.DIAL.APIKey
	})
}
