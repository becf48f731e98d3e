package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/pgvector/pgvector-go"

	"tradeberg/internal/ai"
	"tradeberg/internal/filing"
	"tradeberg/internal/model"
	"tradeberg/internal/repository"
)

// Interfaces over the pipeline's collaborators, narrowed to what one
// ingestion run actually needs.
type (
	FilingLocator interface {
		Resolve(ctx context.Context, ticker string) (string, error)
	}

	FilingDownloader interface {
		Fetch(ctx context.Context, url string) (string, error)
	}

	FilingCleaner interface {
		Clean(raw string) (string, error)
	}

	TextChunker interface {
		Chunk(text string) []string
	}

	Embedder interface {
		EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
	}

	ChunkStore interface {
		ReplaceForTicker(ctx context.Context, ticker string, chunks []model.DocumentChunk) error
	}

	StatusStore interface {
		EnsureExists(ctx context.Context, ticker string) error
		Claim(ctx context.Context, ticker string, staleAfter time.Duration) (bool, error)
		MarkSucceeded(ctx context.Context, ticker, sourceURL string) error
		MarkFailed(ctx context.Context, ticker, cause string) error
		ListDue(ctx context.Context, cooldown, staleAfter time.Duration) ([]model.IngestionStatus, error)
	}

	// ResultInvalidator drops cached retrieval results for a ticker after its
	// chunk set has been replaced.
	ResultInvalidator interface {
		Invalidate(ctx context.Context, ticker string) error
	}
)

// RetryPolicy bounds in-cycle retries of transient failures.
type RetryPolicy struct {
	Attempts int
	Backoff  time.Duration
}

// Pipeline drives one ticker through locate → download → clean → chunk →
// embed → store, gated by the status tracker on entry and exit.
type Pipeline struct {
	locator     FilingLocator
	downloader  FilingDownloader
	cleaner     FilingCleaner
	chunker     TextChunker
	embedder    Embedder
	chunks      ChunkStore
	status      StatusStore
	invalidator ResultInvalidator
	retry       RetryPolicy
	staleAfter  time.Duration
	logger      *slog.Logger
}

func NewPipeline(
	locator FilingLocator,
	downloader FilingDownloader,
	cleaner FilingCleaner,
	chunker TextChunker,
	embedder Embedder,
	chunks ChunkStore,
	status StatusStore,
	invalidator ResultInvalidator,
	retry RetryPolicy,
	staleAfter time.Duration,
	logger *slog.Logger,
) *Pipeline {
	if retry.Attempts < 1 {
		retry.Attempts = 1
	}
	if retry.Backoff <= 0 {
		retry.Backoff = 2 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		locator:     locator,
		downloader:  downloader,
		cleaner:     cleaner,
		chunker:     chunker,
		embedder:    embedder,
		chunks:      chunks,
		status:      status,
		invalidator: invalidator,
		retry:       retry,
		staleAfter:  staleAfter,
		logger:      logger.With("component", "pipeline"),
	}
}

// IngestTicker claims the ticker and runs the full pipeline, always resolving
// into a terminal succeeded/failed status. Losing the claim race is a no-op,
// not an error.
func (p *Pipeline) IngestTicker(ctx context.Context, ticker string) error {
	if err := p.status.EnsureExists(ctx, ticker); err != nil {
		return err
	}

	claimed, err := p.status.Claim(ctx, ticker, p.staleAfter)
	if err != nil {
		return err
	}
	if !claimed {
		p.logger.Debug("ticker already claimed, skipping", "ticker", ticker)
		return nil
	}

	// Terminal status writes must survive cancellation of the run itself,
	// otherwise an aborted ticker stays in running until the stale reclaim.
	statusCtx := context.WithoutCancel(ctx)

	sourceURL, runErr := p.runWithRetry(ctx, ticker)
	if runErr != nil {
		p.logger.Warn("ingestion failed", "ticker", ticker, "err", runErr)
		if err := p.status.MarkFailed(statusCtx, ticker, runErr.Error()); err != nil {
			return err
		}
		return runErr
	}

	if err := p.status.MarkSucceeded(statusCtx, ticker, sourceURL); err != nil {
		return err
	}
	if p.invalidator != nil {
		if err := p.invalidator.Invalidate(statusCtx, ticker); err != nil {
			p.logger.Warn("cache invalidation failed", "ticker", ticker, "err", err)
		}
	}
	p.logger.Info("ingestion succeeded", "ticker", ticker, "source", sourceURL)
	return nil
}

// runWithRetry retries the whole run on transient failures. A storage retry
// always starts a fresh transaction because ReplaceForTicker opens its own.
func (p *Pipeline) runWithRetry(ctx context.Context, ticker string) (string, error) {
	var lastErr error
	for attempt := 1; attempt <= p.retry.Attempts; attempt++ {
		sourceURL, err := p.run(ctx, ticker)
		if err == nil {
			return sourceURL, nil
		}
		lastErr = err
		if !Retryable(err) {
			return "", err
		}
		if attempt == p.retry.Attempts {
			break
		}

		backoff := p.retry.Backoff << (attempt - 1)
		p.logger.Warn("transient failure, backing off",
			"ticker", ticker, "attempt", attempt, "backoff", backoff, "err", err)
		select {
		case <-ctx.Done():
			return "", fmt.Errorf("ingestion aborted: %w", ctx.Err())
		case <-time.After(backoff):
		}
	}
	return "", lastErr
}

func (p *Pipeline) run(ctx context.Context, ticker string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("ingestion aborted: %w", err)
	}

	sourceURL, err := p.locator.Resolve(ctx, ticker)
	if err != nil {
		return "", err
	}
	p.logger.Debug("filing located", "ticker", ticker, "url", sourceURL)

	raw, err := p.downloader.Fetch(ctx, sourceURL)
	if err != nil {
		return "", err
	}

	text, err := p.cleaner.Clean(raw)
	if err != nil {
		return "", err
	}

	fragments := p.chunker.Chunk(text)
	if len(fragments) == 0 {
		return "", fmt.Errorf("%w: document reduced to no chunks", filing.ErrClean)
	}

	vectors, err := p.embedder.EmbedTexts(ctx, fragments)
	if err != nil {
		return "", err
	}
	if len(vectors) != len(fragments) {
		return "", fmt.Errorf("%w: got %d vectors for %d chunks", ai.ErrEmbedding, len(vectors), len(fragments))
	}

	chunks := make([]model.DocumentChunk, len(fragments))
	for i := range fragments {
		chunks[i] = model.DocumentChunk{
			Ticker:     ticker,
			ChunkIndex: i,
			Content:    fragments[i],
			Source:     sourceURL,
			Embedding:  pgvector.NewVector(vectors[i]),
		}
	}

	if err := p.chunks.ReplaceForTicker(ctx, ticker, chunks); err != nil {
		return "", err
	}
	p.logger.Debug("chunks stored", "ticker", ticker, "count", len(chunks))
	return sourceURL, nil
}

// Retryable reports whether a pipeline failure is transient. Missing filings
// and unparseable markup will not fix themselves within a cycle; network,
// provider, and storage hiccups might.
func Retryable(err error) bool {
	return errors.Is(err, filing.ErrDownload) ||
		errors.Is(err, ai.ErrEmbedding) ||
		errors.Is(err, repository.ErrStorage)
}
