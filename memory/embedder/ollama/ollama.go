// Package ollama provides an embedder backed by a local Ollama server.
//
// It talks to the server over its HTTP API, so no model files or native
// runtimes need to ship with the binary. Requires a running Ollama
// instance with an embedding model pulled (e.g. nomic-embed-text).
package ollama

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/ollama/ollama/api"
)

const (
	// DefaultModel is the embedding model used when none is configured.
	DefaultModel = "nomic-embed-text"

	// DefaultHost is the standard Ollama listen address.
	DefaultHost = "http://localhost:11434"
)

// Config holds Ollama connection settings.
type Config struct {
	// Host is the base URL of the Ollama server. Defaults to DefaultHost.
	Host string

	// Model is the embedding model name. Defaults to DefaultModel.
	Model string

	// Dimensions is the embedding size of the configured model.
	// Defaults to 768 (nomic-embed-text).
	Dimensions int
}

// Embedder generates embeddings via an Ollama server.
type Embedder struct {
	client     *api.Client
	model      string
	dimensions int
}

// New creates an Ollama embedder. A nil config uses the defaults.
func New(cfg *Config) (*Embedder, error) {
	if cfg == nil {
		cfg = &Config{}
	}

	host := cfg.Host
	if host == "" {
		host = DefaultHost
	}
	base, err := url.Parse(host)
	if err != nil {
		return nil, fmt.Errorf("invalid ollama host %q: %w", host, err)
	}

	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}

	dims := cfg.Dimensions
	if dims == 0 {
		dims = 768
	}

	return &Embedder{
		client:     api.NewClient(base, http.DefaultClient),
		model:      model,
		dimensions: dims,
	}, nil
}

// Embed generates an embedding for a single text.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	embeddings, err := e.embed(ctx, text)
	if err != nil {
		return nil, err
	}
	if len(embeddings) != 1 {
		return nil, fmt.Errorf("ollama returned %d embeddings for one input", len(embeddings))
	}
	return embeddings[0], nil
}

// EmbedBatch generates embeddings for multiple texts in one request.
func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	embeddings, err := e.embed(ctx, texts)
	if err != nil {
		return nil, err
	}
	if len(embeddings) != len(texts) {
		return nil, fmt.Errorf("ollama returned %d embeddings for %d inputs", len(embeddings), len(texts))
	}
	return embeddings, nil
}

// Dimensions returns the configured embedding size.
func (e *Embedder) Dimensions() int {
	return e.dimensions
}

func (e *Embedder) embed(ctx context.Context, input any) ([][]float32, error) {
	resp, err := e.client.Embed(ctx, &api.EmbedRequest{
		Model: e.model,
		Input: input,
	})
	if err != nil {
		return nil, fmt.Errorf("ollama embed request: %w", err)
	}
	return resp.Embeddings, nil
}
