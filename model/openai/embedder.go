package openai

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// DefaultEmbeddingModel is used when EmbedderOptions.Model is empty.
const DefaultEmbeddingModel = "text-embedding-3-small"

// EmbedderOptions configure an Embedder. Routing mirrors Options.
type EmbedderOptions struct {
	Model      string
	Endpoint   string
	APIVersion string
	APIKey     string
	// Dimensions requests shortened vectors when > 0.
	Dimensions int
	// BatchSize bounds the inputs per request; <= 0 means 64.
	BatchSize      int
	RequestOptions []option.RequestOption
}

// Embedder computes text embeddings through the OpenAI embeddings API.
type Embedder struct {
	client *openai.Client
	opts   EmbedderOptions
}

// NewEmbedder creates an Embedder using the official client.
func NewEmbedder(optFns ...func(o *EmbedderOptions)) *Embedder {
	client := openai.NewClient()
	return NewEmbedderFromClient(&client, optFns...)
}

// NewEmbedderFromClient creates an Embedder from an existing client.
func NewEmbedderFromClient(client *openai.Client, optFns ...func(o *EmbedderOptions)) *Embedder {
	opts := EmbedderOptions{
		Model:      DefaultEmbeddingModel,
		APIVersion: DefaultAPIVersion,
		BatchSize:  64,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 64
	}
	return &Embedder{client: client, opts: opts}
}

// WithAPIKey returns a copy of e that authenticates with key.
func (e *Embedder) WithAPIKey(key string) *Embedder {
	cp := *e
	cp.opts.APIKey = key
	return &cp
}

// Dimensions returns the configured vector size, or 0 when the model decides.
func (e *Embedder) Dimensions() int { return e.opts.Dimensions }

// Embed returns one vector per input, in input order.
func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += e.opts.BatchSize {
		end := min(start+e.opts.BatchSize, len(texts))
		batch, err := e.embedBatch(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		out = append(out, batch...)
	}
	return out, nil
}

func (e *Embedder) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	params := openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
		Model: openai.EmbeddingModel(e.opts.Model),
	}
	if e.opts.Dimensions > 0 {
		params.Dimensions = openai.Int(int64(e.opts.Dimensions))
	}
	resp, err := e.client.Embeddings.New(ctx, params, e.requestOptions()...)
	if err != nil {
		return nil, fmt.Errorf("openai embeddings: %w", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("openai embeddings: got %d vectors for %d inputs", len(resp.Data), len(texts))
	}
	data := resp.Data
	sort.Slice(data, func(i, j int) bool { return data[i].Index < data[j].Index })
	vecs := make([][]float32, len(data))
	for i, d := range data {
		v := make([]float32, len(d.Embedding))
		for j, x := range d.Embedding {
			v[j] = float32(x)
		}
		vecs[i] = v
	}
	return vecs, nil
}

func (e *Embedder) requestOptions() []option.RequestOption {
	var opts []option.RequestOption
	if e.opts.Endpoint != "" {
		base := strings.TrimRight(e.opts.Endpoint, "/") + "/openai/deployments/" + e.opts.Model + "/"
		opts = append(opts, option.WithBaseURL(base))
		if e.opts.APIVersion != "" {
			opts = append(opts, option.WithQuery("api-version", e.opts.APIVersion))
		}
		if e.opts.APIKey != "" {
			opts = append(opts, option.WithHeader("Api-Key", e.opts.APIKey))
		}
	} else if e.opts.APIKey != "" {
		opts = append(opts, option.WithAPIKey(e.opts.APIKey))
	}
	return append(opts, e.opts.RequestOptions...)
}
