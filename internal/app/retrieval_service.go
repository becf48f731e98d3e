package app

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"tradeberg/internal/model"
)

var ErrInvalidInput = errors.New("invalid input")

type (
	queryEmbedder interface {
		EmbedText(ctx context.Context, text string) ([]float32, error)
	}

	chunkSearcher interface {
		Search(ctx context.Context, queryVec []float32, ticker string, k int) ([]model.ScoredChunk, error)
	}

	searchCache interface {
		Get(ctx context.Context, query, ticker string, k int) ([]model.ScoredChunk, bool, error)
		Set(ctx context.Context, query, ticker string, k int, chunks []model.ScoredChunk) error
	}
)

// RetrievalService answers similarity queries over stored filing chunks. It
// is read-only: safe to call while ingestion is rewriting another ticker, and
// a ticker with no successful ingestion simply yields an empty result.
type RetrievalService struct {
	embedder    queryEmbedder
	chunks      chunkSearcher
	cache       searchCache
	defaultTopK int
	logger      *slog.Logger
}

func NewRetrievalService(embedder queryEmbedder, chunks chunkSearcher, cache searchCache, defaultTopK int, logger *slog.Logger) *RetrievalService {
	if defaultTopK <= 0 {
		defaultTopK = 5
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RetrievalService{
		embedder:    embedder,
		chunks:      chunks,
		cache:       cache,
		defaultTopK: defaultTopK,
		logger:      logger.With("component", "retrieval"),
	}
}

// SearchInput carries one retrieval request. Ticker is optional; an empty
// value searches across all tickers.
type SearchInput struct {
	Query  string
	Ticker string
	TopK   int
}

// Fragment is what the chat layer receives: source text plus provenance and
// a cosine distance score, smallest first.
type Fragment struct {
	Ticker     string  `json:"ticker"`
	ChunkIndex int     `json:"chunk_index"`
	Content    string  `json:"content"`
	Source     string  `json:"source"`
	Distance   float64 `json:"distance"`
}

// Search embeds the query and returns the top-k nearest stored fragments.
func (s *RetrievalService) Search(ctx context.Context, input SearchInput) ([]Fragment, error) {
	query := strings.TrimSpace(input.Query)
	if query == "" {
		return nil, ErrInvalidInput
	}
	ticker := strings.ToUpper(strings.TrimSpace(input.Ticker))
	topK := input.TopK
	if topK <= 0 {
		topK = s.defaultTopK
	}

	if s.cache != nil {
		cached, hit, err := s.cache.Get(ctx, query, ticker, topK)
		if err != nil {
			s.logger.Warn("search cache read failed", "err", err)
		} else if hit {
			return toFragments(cached), nil
		}
	}

	queryVec, err := s.embedder.EmbedText(ctx, query)
	if err != nil {
		return nil, err
	}

	scored, err := s.chunks.Search(ctx, queryVec, ticker, topK)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, query, ticker, topK, scored); err != nil {
			s.logger.Warn("search cache write failed", "err", err)
		}
	}
	return toFragments(scored), nil
}

func toFragments(scored []model.ScoredChunk) []Fragment {
	fragments := make([]Fragment, len(scored))
	for i, c := range scored {
		fragments[i] = Fragment{
			Ticker:     c.Ticker,
			ChunkIndex: c.ChunkIndex,
			Content:    c.Content,
			Source:     c.Source,
			Distance:   c.Distance,
		}
	}
	return fragments
}
