package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradeberg/internal/ai"
	"tradeberg/internal/model"
	"tradeberg/internal/repository"
)

type stubEmbedder struct {
	vec   []float32
	err   error
	calls int
}

func (s *stubEmbedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.vec, nil
}

type stubSearcher struct {
	results   []model.ScoredChunk
	err       error
	gotVec    []float32
	gotTicker string
	gotK      int
	calls     int
}

func (s *stubSearcher) Search(ctx context.Context, queryVec []float32, ticker string, k int) ([]model.ScoredChunk, error) {
	s.calls++
	s.gotVec = queryVec
	s.gotTicker = ticker
	s.gotK = k
	if s.err != nil {
		return nil, s.err
	}
	return s.results, nil
}

type stubCache struct {
	entries map[string][]model.ScoredChunk
	getErr  error
	sets    int
}

func newStubCache() *stubCache {
	return &stubCache{entries: make(map[string][]model.ScoredChunk)}
}

func cacheKey(query, ticker string, k int) string {
	return fmt.Sprintf("%s|%s|%d", query, ticker, k)
}

func (s *stubCache) Get(ctx context.Context, query, ticker string, k int) ([]model.ScoredChunk, bool, error) {
	if s.getErr != nil {
		return nil, false, s.getErr
	}
	chunks, ok := s.entries[cacheKey(query, ticker, k)]
	return chunks, ok, nil
}

func (s *stubCache) Set(ctx context.Context, query, ticker string, k int, chunks []model.ScoredChunk) error {
	s.sets++
	s.entries[cacheKey(query, ticker, k)] = chunks
	return nil
}

func scoredChunk(ticker string, index int, content string, distance float64) model.ScoredChunk {
	return model.ScoredChunk{
		DocumentChunk: model.DocumentChunk{
			Ticker:     ticker,
			ChunkIndex: index,
			Content:    content,
			Source:     "https://example.com/filing.htm",
		},
		Distance: distance,
	}
}

func newTestService(embedder *stubEmbedder, searcher *stubSearcher, cache *stubCache) *RetrievalService {
	var c searchCache
	if cache != nil {
		c = cache
	}
	return NewRetrievalService(embedder, searcher, c, 5, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestSearchReturnsRankedFragments(t *testing.T) {
	embedder := &stubEmbedder{vec: []float32{0.1, 0.2, 0.3}}
	searcher := &stubSearcher{results: []model.ScoredChunk{
		scoredChunk("NVDA", 4, "data center revenue grew", 0.12),
		scoredChunk("NVDA", 7, "supply constraints eased", 0.31),
	}}
	service := newTestService(embedder, searcher, nil)

	fragments, err := service.Search(context.Background(), SearchInput{Query: "revenue growth", Ticker: "nvda", TopK: 2})
	require.NoError(t, err)
	require.Len(t, fragments, 2)

	assert.Equal(t, "NVDA", fragments[0].Ticker)
	assert.Equal(t, 4, fragments[0].ChunkIndex)
	assert.Equal(t, 0.12, fragments[0].Distance)
	assert.Equal(t, 0.31, fragments[1].Distance)

	assert.Equal(t, []float32{0.1, 0.2, 0.3}, searcher.gotVec)
	assert.Equal(t, "NVDA", searcher.gotTicker, "ticker not normalised to upper case")
	assert.Equal(t, 2, searcher.gotK)
}

func TestSearchRejectsBlankQuery(t *testing.T) {
	embedder := &stubEmbedder{vec: []float32{1}}
	searcher := &stubSearcher{}
	service := newTestService(embedder, searcher, nil)

	for _, query := range []string{"", "   ", "\n\t"} {
		_, err := service.Search(context.Background(), SearchInput{Query: query})
		assert.ErrorIs(t, err, ErrInvalidInput)
	}
	assert.Zero(t, embedder.calls, "blank query reached the embedder")
}

func TestSearchEmptyResultIsNotAnError(t *testing.T) {
	embedder := &stubEmbedder{vec: []float32{1}}
	searcher := &stubSearcher{}
	service := newTestService(embedder, searcher, nil)

	fragments, err := service.Search(context.Background(), SearchInput{Query: "anything", Ticker: "ZZZZ"})
	require.NoError(t, err)
	assert.Empty(t, fragments)
}

func TestSearchDefaultsTopK(t *testing.T) {
	embedder := &stubEmbedder{vec: []float32{1}}
	searcher := &stubSearcher{}
	service := newTestService(embedder, searcher, nil)

	_, err := service.Search(context.Background(), SearchInput{Query: "anything", TopK: 0})
	require.NoError(t, err)
	assert.Equal(t, 5, searcher.gotK)

	_, err = service.Search(context.Background(), SearchInput{Query: "anything", TopK: -3})
	require.NoError(t, err)
	assert.Equal(t, 5, searcher.gotK)
}

func TestSearchCacheHitSkipsEmbedding(t *testing.T) {
	embedder := &stubEmbedder{vec: []float32{1}}
	searcher := &stubSearcher{results: []model.ScoredChunk{
		scoredChunk("AAPL", 0, "services segment", 0.2),
	}}
	cache := newStubCache()
	service := newTestService(embedder, searcher, cache)

	first, err := service.Search(context.Background(), SearchInput{Query: "services", Ticker: "AAPL", TopK: 3})
	require.NoError(t, err)
	require.Equal(t, 1, embedder.calls)
	require.Equal(t, 1, cache.sets)

	second, err := service.Search(context.Background(), SearchInput{Query: "services", Ticker: "AAPL", TopK: 3})
	require.NoError(t, err)
	assert.Equal(t, 1, embedder.calls, "cache hit still embedded the query")
	assert.Equal(t, 1, searcher.calls, "cache hit still queried storage")
	assert.Equal(t, first, second)
}

func TestSearchCacheFailureFallsThrough(t *testing.T) {
	embedder := &stubEmbedder{vec: []float32{1}}
	searcher := &stubSearcher{results: []model.ScoredChunk{
		scoredChunk("AAPL", 0, "services segment", 0.2),
	}}
	cache := newStubCache()
	cache.getErr = errors.New("redis: connection refused")
	service := newTestService(embedder, searcher, cache)

	fragments, err := service.Search(context.Background(), SearchInput{Query: "services", Ticker: "AAPL"})
	require.NoError(t, err)
	assert.Len(t, fragments, 1)
	assert.Equal(t, 1, embedder.calls)
}

func TestSearchPropagatesEmbeddingError(t *testing.T) {
	embedder := &stubEmbedder{err: fmt.Errorf("%w: provider returned 503", ai.ErrEmbedding)}
	searcher := &stubSearcher{}
	service := newTestService(embedder, searcher, nil)

	_, err := service.Search(context.Background(), SearchInput{Query: "anything"})
	assert.ErrorIs(t, err, ai.ErrEmbedding)
	assert.Zero(t, searcher.calls)
}

func TestSearchPropagatesStorageError(t *testing.T) {
	embedder := &stubEmbedder{vec: []float32{1}}
	searcher := &stubSearcher{err: fmt.Errorf("%w: relation missing", repository.ErrStorage)}
	service := newTestService(embedder, searcher, nil)

	_, err := service.Search(context.Background(), SearchInput{Query: "anything"})
	assert.ErrorIs(t, err, repository.ErrStorage)
}
