// Package testutil provides shared test fixtures: a deterministic in-process
// embedder and helpers for opening throwaway stores.
package testutil

import (
	"context"
	"strings"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/core/api"
)

// Embedder implements ai.Embedder without any network dependency. Each text
// maps to a 26-dimension letter histogram, so similar texts embed close to
// each other under cosine distance.
type Embedder struct {
	Err       error // returned from every Embed call when set
	CallCount int
}

func (e *Embedder) Name() string { return "testutil-embedder" }

func (e *Embedder) Register(r api.Registry) {}

func (e *Embedder) Embed(ctx context.Context, req *ai.EmbedRequest) (*ai.EmbedResponse, error) {
	e.CallCount++
	if e.Err != nil {
		return nil, e.Err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	resp := &ai.EmbedResponse{}
	for _, doc := range req.Input {
		var text string
		if len(doc.Content) > 0 {
			text = doc.Content[0].Text
		}
		resp.Embeddings = append(resp.Embeddings, &ai.Embedding{
			Embedding: Vector(text),
		})
	}
	return resp, nil
}

// Vector returns the deterministic embedding Embedder produces for text.
// Useful for asserting what a query vector looks like without round-tripping
// through the embedder.
func Vector(text string) []float32 {
	v := make([]float32, 26)
	for _, r := range strings.ToLower(text) {
		if r >= 'a' && r <= 'z' {
			v[r-'a']++
		}
	}
	return v
}
