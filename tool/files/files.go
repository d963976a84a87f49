// Package files provides the file_content_extraction tool, which downloads a
// user attached file and returns its text, paginated for large files.
package files

import (
	"context"
	"errors"
	"fmt"

	"github.com/ptacemic/ai-dial-general-purpose-agent/core"
	"github.com/ptacemic/ai-dial-general-purpose-agent/dial"
	"github.com/ptacemic/ai-dial-general-purpose-agent/extract"
	"github.com/ptacemic/ai-dial-general-purpose-agent/internal/util"
	"github.com/ptacemic/ai-dial-general-purpose-agent/tool"
)

// DefaultPageSize is the page length in characters.
const DefaultPageSize = 10000

// NotFoundMessage is returned when a file has no extractable text.
const NotFoundMessage = "Error: File content not found."

// Downloader fetches a stored file with the caller's credentials.
type Downloader interface {
	Download(ctx context.Context, apiKey, fileURL string) (*dial.File, error)
}

// Options configures the tool.
type Options struct {
	PageSize int
}

// ContentExtraction is the file_content_extraction tool.
type ContentExtraction struct {
	files    Downloader
	pageSize int
}

var _ tool.Tool = (*ContentExtraction)(nil)

// New creates the tool.
func New(files Downloader, optFns ...func(o *Options)) *ContentExtraction {
	opts := Options{PageSize: DefaultPageSize}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.PageSize <= 0 {
		opts.PageSize = DefaultPageSize
	}
	return &ContentExtraction{files: files, pageSize: opts.PageSize}
}

// Name implements tool.Tool.
func (t *ContentExtraction) Name() string { return "file_content_extraction" }

// Description implements tool.Tool.
func (t *ContentExtraction) Description() string {
	return "Extracts the text content of a file attached to the conversation. " +
		"Supports PDF, TXT, CSV (returned as a markdown table) and HTML. " +
		fmt.Sprintf("Files longer than %d characters are paginated: start with page 1 ", t.pageSize) +
		"and request further pages only when needed. For targeted questions about large documents prefer rag_search."
}

// Parameters implements tool.Tool.
func (t *ContentExtraction) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"file_url": map[string]any{
				"type":        "string",
				"description": "URL of the attached file.",
			},
			"page": map[string]any{
				"type":        "integer",
				"description": "Page number for paginated content, starting at 1.",
				"default":     1,
			},
		},
		"required": []string{"file_url"},
	}
}

// Call implements tool.Tool.
func (t *ContentExtraction) Call(tc *core.ToolContext, args map[string]any) (tool.Result, error) {
	fileURL := util.StringArg(args, "file_url")
	page := util.IntArg(args, "page", 1)
	stage := tc.Stage()

	f, err := t.files.Download(tc.Context(), tc.APIKey(), fileURL)
	if err != nil {
		return tool.Result{}, fmt.Errorf("download %s: %w", fileURL, err)
	}
	text, err := extract.Text(f.Data, f.Name)
	if err != nil {
		if !errors.Is(err, extract.ErrEmpty) {
			tc.LogWarn("files.extract_failed", "file", f.Name, "error", err.Error())
		}
		stage.AppendContent(NotFoundMessage + "\n\r")
		return tool.Text(NotFoundMessage), nil
	}

	content, err := Paginate(text, page, t.pageSize)
	if err != nil {
		return tool.Result{}, err
	}
	stage.AppendContent("```text\n\r" + content + "\n\r```\n\r")
	return tool.Text(content), nil
}

// Paginate returns page (1-based) of text split into pages of size runes.
// Text that fits on one page is returned unchanged; otherwise the page is
// followed by a marker naming the page and the page count.
func Paginate(text string, page, size int) (string, error) {
	runes := []rune(text)
	if len(runes) <= size {
		return text, nil
	}
	total := (len(runes) + size - 1) / size
	if page < 1 || page > total {
		return "", fmt.Errorf("page %d out of range, the document has %d pages", page, total)
	}
	start := (page - 1) * size
	end := min(start+size, len(runes))
	return fmt.Sprintf("%s\n\n**Page #%d. Total pages: %d**", string(runes[start:end]), page, total), nil
}
