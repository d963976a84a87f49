// Package ragsearch provides the rag_search tool: semantic search over an
// attached document followed by an answer generated from the best matching
// chunks. Document indexes are cached per conversation.
package ragsearch

import (
	"context"
	"errors"
	"fmt"

	"github.com/ptacemic/ai-dial-general-purpose-agent/cache"
	"github.com/ptacemic/ai-dial-general-purpose-agent/core"
	"github.com/ptacemic/ai-dial-general-purpose-agent/dial"
	"github.com/ptacemic/ai-dial-general-purpose-agent/extract"
	"github.com/ptacemic/ai-dial-general-purpose-agent/internal/util"
	"github.com/ptacemic/ai-dial-general-purpose-agent/model"
	"github.com/ptacemic/ai-dial-general-purpose-agent/rag"
	"github.com/ptacemic/ai-dial-general-purpose-agent/tool"
)

// NotFoundMessage is returned when the document has no extractable text.
const NotFoundMessage = "Error: File content not found."

// Downloader fetches a stored file with the caller's credentials.
type Downloader interface {
	Download(ctx context.Context, apiKey, fileURL string) (*dial.File, error)
}

// Options configures the tool.
type Options struct {
	// Deployment answers the augmented prompt; empty uses the request's deployment.
	Deployment string
	// TopK is the number of chunks retrieved; <= 0 uses rag.DefaultTopK.
	TopK int
	// Splitter and NewIndex default to rag's defaults.
	Splitter rag.Splitter
	NewIndex rag.IndexFactory
	// EmbedderFor, when set, binds the embedder to the caller's credential.
	EmbedderFor func(apiKey string) rag.Embedder
	// Cache holds built document indexes; a default store is created when nil.
	Cache *cache.Store[*rag.Document]
}

// Search is the rag_search tool.
type Search struct {
	model    model.Model
	files    Downloader
	embedder rag.Embedder
	opts     Options
	docs     *cache.Store[*rag.Document]
}

var (
	_ tool.Tool           = (*Search)(nil)
	_ tool.StagePresenter = (*Search)(nil)
)

// New creates the tool. m generates the answer; embedder is used when
// Options.EmbedderFor is unset.
func New(m model.Model, files Downloader, embedder rag.Embedder, optFns ...func(o *Options)) *Search {
	opts := Options{TopK: rag.DefaultTopK}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.TopK <= 0 {
		opts.TopK = rag.DefaultTopK
	}
	docs := opts.Cache
	if docs == nil {
		docs = cache.New[*rag.Document]()
	}
	return &Search{model: m, files: files, embedder: embedder, opts: opts, docs: docs}
}

// Name implements tool.Tool.
func (s *Search) Name() string { return "rag_search" }

// Description implements tool.Tool.
func (s *Search) Description() string {
	return "Performs semantic search on uploaded documents to find relevant information and answer questions. " +
		"Use this tool when you need to search through large documents (especially when file_content_extraction " +
		"shows pagination), or when you need to find specific information in a document. It uses semantic search " +
		"to find the chunks most relevant to your query. Supports PDF, TXT, CSV, and HTML files."
}

// Parameters implements tool.Tool.
func (s *Search) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"request": map[string]any{
				"type":        "string",
				"description": "The search query or question to search for in the document",
			},
			"file_url": map[string]any{
				"type":        "string",
				"description": "URL of the file to search in",
			},
		},
		"required": []string{"request", "file_url"},
	}
}

// ShowInStage implements tool.StagePresenter; the tool renders its own summary.
func (s *Search) ShowInStage() bool { return false }

var errNoContent = errors.New("ragsearch: no content")

// Call implements tool.Tool.
func (s *Search) Call(tc *core.ToolContext, args map[string]any) (tool.Result, error) {
	request := util.StringArg(args, "request")
	fileURL := util.StringArg(args, "file_url")
	ctx := tc.Context()
	stage := tc.Stage()

	stage.AppendContent("## Request arguments: \n")
	stage.AppendContent(fmt.Sprintf("**Request**: %s\n\r", request))
	stage.AppendContent(fmt.Sprintf("**File URL**: %s\n\r", fileURL))

	embedder := s.embedder
	if s.opts.EmbedderFor != nil {
		embedder = s.opts.EmbedderFor(tc.APIKey())
	}

	// The build is shared with concurrent callers on the same document, so it
	// must not die with this request.
	buildCtx := context.WithoutCancel(ctx)
	doc, release, err := s.docs.GetOrBuild(tc.ConversationID(), fileURL, func() (*rag.Document, error) {
		return s.index(buildCtx, tc, embedder, fileURL)
	})
	if errors.Is(err, errNoContent) {
		stage.AppendContent(NotFoundMessage + "\n\r")
		return tool.Text(NotFoundMessage), nil
	}
	if err != nil {
		return tool.Result{}, err
	}
	defer release()

	chunks, err := doc.Search(ctx, embedder, request, s.opts.TopK)
	if err != nil {
		return tool.Result{}, err
	}
	prompt, err := rag.Augment(request, chunks)
	if err != nil {
		return tool.Result{}, err
	}
	stage.AppendContent("## RAG Request: \n")
	stage.AppendContent("```text\n\r" + prompt + "\n\r```\n\r")
	stage.AppendContent("## Response: \n")

	deployment := s.opts.Deployment
	if deployment == "" {
		deployment = tc.RunContext().Deployment
	}
	comp, err := model.Collect(ctx, s.model, model.Request{
		Instructions: rag.SystemPrompt,
		Messages:     []core.Message{core.NewUserMessage(prompt)},
		Deployment:   deployment,
		APIKey:       tc.APIKey(),
	}, stage.AppendContent, nil)
	if err != nil {
		return tool.Result{}, fmt.Errorf("generate answer: %w", err)
	}
	return tool.Text(comp.Text), nil
}

func (s *Search) index(ctx context.Context, tc *core.ToolContext, embedder rag.Embedder, fileURL string) (*rag.Document, error) {
	f, err := s.files.Download(ctx, tc.APIKey(), fileURL)
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", fileURL, err)
	}
	text, err := extract.Text(f.Data, f.Name)
	if err != nil {
		tc.LogWarn("ragsearch.extract_failed", "file", f.Name, "error", err.Error())
		return nil, errNoContent
	}
	b := rag.Builder{Splitter: s.opts.Splitter, Embedder: embedder, NewIndex: s.opts.NewIndex}
	doc, err := b.Build(ctx, text)
	if errors.Is(err, rag.ErrNoChunks) {
		return nil, errNoContent
	}
	if err != nil {
		return nil, err
	}
	tc.LogInfo("ragsearch.indexed", "file", fileURL, "chunks", len(doc.Chunks))
	return doc, nil
}
