package rag

import (
	"context"
	"errors"
	"fmt"

	"github.com/ptacemic/ai-dial-general-purpose-agent/internal/util"
)

// DefaultTopK is the number of chunks retrieved per query.
const DefaultTopK = 3

// ErrNoChunks is returned when a text produces nothing to index.
var ErrNoChunks = errors.New("rag: document has no chunks")

// Document is an indexed text: its chunks and a vector index over them.
// It is an io.Closer so caches can release the index on eviction.
type Document struct {
	Chunks []string
	index  Index
}

// Builder turns texts into Documents.
type Builder struct {
	Splitter Splitter
	Embedder Embedder
	NewIndex IndexFactory
}

// Build splits, embeds and indexes text.
func (b Builder) Build(ctx context.Context, text string) (*Document, error) {
	splitter := b.Splitter
	if splitter == nil {
		splitter = NewSplitter()
	}
	newIndex := b.NewIndex
	if newIndex == nil {
		newIndex = NewFlatIndexFactory()
	}
	chunks, err := split(splitter, text)
	if err != nil {
		return nil, err
	}
	if len(chunks) == 0 {
		return nil, ErrNoChunks
	}
	vectors, err := b.Embedder.Embed(ctx, chunks)
	if err != nil {
		return nil, fmt.Errorf("rag: embed chunks: %w", err)
	}
	if len(vectors) != len(chunks) || len(vectors[0]) == 0 {
		return nil, fmt.Errorf("rag: embedder returned %d vectors for %d chunks", len(vectors), len(chunks))
	}
	idx, err := newIndex(len(vectors[0]))
	if err != nil {
		return nil, err
	}
	if err := idx.Add(ctx, vectors); err != nil {
		_ = idx.Close()
		return nil, err
	}
	return &Document{Chunks: chunks, index: idx}, nil
}

// Search returns up to k chunks closest to query, nearest first.
func (d *Document) Search(ctx context.Context, embedder Embedder, query string, k int) ([]string, error) {
	if k <= 0 {
		k = DefaultTopK
	}
	vecs, err := embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("rag: embed query: %w", err)
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("rag: embedder returned %d vectors for the query", len(vecs))
	}
	hits, err := d.index.Search(ctx, vecs[0], k)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(hits))
	for _, h := range hits {
		if h.ID >= 0 && h.ID < len(d.Chunks) {
			out = append(out, d.Chunks[h.ID])
		}
	}
	return out, nil
}

// Close releases the index.
func (d *Document) Close() error {
	if d.index == nil {
		return nil
	}
	return d.index.Close()
}

// SystemPrompt instructs the generation step to stay within the context.
const SystemPrompt = `You are a helpful assistant that answers questions based on the provided document context.
Use only the information from the provided context to answer the question. If the context doesn't contain enough information to answer the question, say so clearly.
Be concise and accurate in your responses.`

const augmentTemplate = `Based on the following context from the document, please answer the question.

Context:
{{range $i, $c := .Chunks}}{{if $i}}

{{end}}[{{inc $i}}] {{$c}}{{end}}

Question: {{.Request}}

Answer based only on the provided context. If the context doesn't contain enough information, say so.`

// Augment builds the generation prompt from the request and retrieved chunks.
func Augment(request string, chunks []string) (string, error) {
	return util.RenderTemplate(augmentTemplate, map[string]any{
		"Request": request,
		"Chunks":  chunks,
	})
}
