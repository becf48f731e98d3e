package ai

import (
	"context"
	"fmt"
	"sync"

	"github.com/panjf2000/ants/v2"
)

// embeddingClient is what Embedder needs from the provider client. Narrowed
// for testability.
type embeddingClient interface {
	Embed(ctx context.Context, cfg EmbeddingConfig, text string) ([]float32, error)
}

// Embedder wraps the provider client with a global concurrency cap so that
// document ingestion and query embedding together never exceed the provider's
// throughput allowance. Calls past the cap queue instead of spawning more
// requests.
type Embedder struct {
	client embeddingClient
	cfg    EmbeddingConfig
	pool   *ants.Pool
}

func NewEmbedder(client embeddingClient, cfg EmbeddingConfig, maxConcurrent int) (*Embedder, error) {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	pool, err := ants.NewPool(maxConcurrent)
	if err != nil {
		return nil, fmt.Errorf("create embedding pool failed: %w", err)
	}
	return &Embedder{client: client, cfg: cfg, pool: pool}, nil
}

// EmbedText generates the embedding vector for a single text, queueing behind
// the concurrency cap when it is saturated.
func (e *Embedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	type result struct {
		vec []float32
		err error
	}
	ch := make(chan result, 1)
	if err := e.pool.Submit(func() {
		vec, err := e.client.Embed(ctx, e.cfg, text)
		ch <- result{vec: vec, err: err}
	}); err != nil {
		return nil, fmt.Errorf("%w: submit failed: %v", ErrEmbedding, err)
	}

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %v", ErrEmbedding, ctx.Err())
	case r := <-ch:
		return r.vec, r.err
	}
}

// EmbedTexts embeds every text, preserving input order. The first failure
// aborts the batch; partial results are never returned.
func (e *Embedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
	)
	batchCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	for i, text := range texts {
		wg.Add(1)
		go func(i int, text string) {
			defer wg.Done()
			vec, err := e.EmbedText(batchCtx, text)
			if err != nil {
				mu.Lock()
				if firstErr == nil {
					firstErr = err
					cancel()
				}
				mu.Unlock()
				return
			}
			vectors[i] = vec
		}(i, text)
	}
	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}
	return vectors, nil
}

// Close releases the underlying worker pool.
func (e *Embedder) Close() {
	e.pool.Release()
}
