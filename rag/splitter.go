// Package rag holds the retrieval machinery behind document search: text
// splitting, embeddings, vector indexes and prompt augmentation.
package rag

import (
	"fmt"

	"github.com/tmc/langchaingo/textsplitter"
)

// Default splitting parameters, in characters.
const (
	DefaultChunkSize    = 500
	DefaultChunkOverlap = 50
)

// DefaultSeparators are tried in order: paragraphs, lines, sentences, words,
// then single characters.
var DefaultSeparators = []string{"\n\n", "\n", ". ", " ", ""}

// Splitter cuts text into overlapping chunks.
type Splitter interface {
	SplitText(text string) ([]string, error)
}

// SplitterOptions configure NewSplitter.
type SplitterOptions struct {
	ChunkSize    int
	ChunkOverlap int
	Separators   []string
}

// NewSplitter returns a recursive character splitter.
func NewSplitter(optFns ...func(o *SplitterOptions)) Splitter {
	opts := SplitterOptions{
		ChunkSize:    DefaultChunkSize,
		ChunkOverlap: DefaultChunkOverlap,
		Separators:   DefaultSeparators,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return textsplitter.NewRecursiveCharacter(
		textsplitter.WithChunkSize(opts.ChunkSize),
		textsplitter.WithChunkOverlap(opts.ChunkOverlap),
		textsplitter.WithSeparators(opts.Separators),
	)
}

func split(s Splitter, text string) ([]string, error) {
	chunks, err := s.SplitText(text)
	if err != nil {
		return nil, fmt.Errorf("split text: %w", err)
	}
	out := chunks[:0]
	for _, c := range chunks {
		if c != "" {
			out = append(out, c)
		}
	}
	return out, nil
}
