package openai

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

func TestEmbedder_BatchesAndOrders(t *testing.T) {
	var paths, keys []string
	var batches []int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		paths = append(paths, r.URL.Path)
		keys = append(keys, r.Header.Get("Api-Key"))
		inputs := gjson.GetBytes(body, "input").Array()
		batches = append(batches, len(inputs))
		assert.Equal(t, int64(8), gjson.GetBytes(body, "dimensions").Int())

		// Reply out of order; the embedder must restore input order.
		var items []string
		for i := len(inputs) - 1; i >= 0; i-- {
			n := len(inputs[i].String())
			items = append(items, fmt.Sprintf(`{"object":"embedding","index":%d,"embedding":[%d,0.5]}`, i, n))
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"object":"list","model":"emb","data":[%s],"usage":{"prompt_tokens":1,"total_tokens":1}}`, strings.Join(items, ","))
	}))
	defer srv.Close()

	client := openai.NewClient(option.WithBaseURL(srv.URL), option.WithAPIKey("unused"), option.WithMaxRetries(0))
	e := NewEmbedderFromClient(&client, func(o *EmbedderOptions) {
		o.Model = "emb"
		o.Endpoint = srv.URL
		o.Dimensions = 8
		o.BatchSize = 2
	}).WithAPIKey("user-key")

	vecs, err := e.Embed(context.Background(), []string{"a", "bb", "ccc"})
	require.NoError(t, err)
	require.Len(t, vecs, 3)
	assert.Equal(t, []float32{1, 0.5}, vecs[0])
	assert.Equal(t, []float32{2, 0.5}, vecs[1])
	assert.Equal(t, []float32{3, 0.5}, vecs[2])

	assert.Equal(t, []int{2, 1}, batches)
	assert.Equal(t, "/openai/deployments/emb/embeddings", paths[0])
	assert.Equal(t, "user-key", keys[0])
	assert.Equal(t, 8, e.Dimensions())
}
