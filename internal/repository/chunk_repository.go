package repository

import (
	"context"
	"fmt"

	"github.com/pgvector/pgvector-go"
	"gorm.io/gorm"

	"tradeberg/internal/model"
)

type ChunkRepository struct {
	db *gorm.DB
}

func NewChunkRepository(db *gorm.DB) *ChunkRepository {
	return &ChunkRepository{db: db}
}

// ReplaceForTicker atomically swaps the ticker's chunk set for a new one.
// Delete-then-insert inside a single transaction so readers either see the
// old run or the new run, never a mix and never a partial set.
func (r *ChunkRepository) ReplaceForTicker(ctx context.Context, ticker string, chunks []model.DocumentChunk) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("ticker = ?", ticker).Delete(&model.DocumentChunk{}).Error; err != nil {
			return err
		}
		if len(chunks) == 0 {
			return nil
		}
		return tx.CreateInBatches(chunks, 200).Error
	})
	if err != nil {
		return fmt.Errorf("%w: replace chunks for %s: %v", ErrStorage, ticker, err)
	}
	return nil
}

// Search returns the k stored chunks nearest to the query embedding by cosine
// distance, optionally filtered to one ticker. Results are ordered ascending
// by distance, ties broken by ascending chunk_index, so a fixed store state
// always yields the same ranking.
func (r *ChunkRepository) Search(ctx context.Context, queryVec []float32, ticker string, k int) ([]model.ScoredChunk, error) {
	if k <= 0 {
		k = 5
	}

	query := r.db.WithContext(ctx).
		Model(&model.DocumentChunk{}).
		Select("*, embedding <=> ? AS distance", pgvector.NewVector(queryVec)).
		Order("distance ASC, chunk_index ASC").
		Limit(k)
	if ticker != "" {
		query = query.Where("ticker = ?", ticker)
	}

	var results []model.ScoredChunk
	if err := query.Scan(&results).Error; err != nil {
		return nil, fmt.Errorf("%w: similarity search: %v", ErrStorage, err)
	}
	return results, nil
}

// CountByTicker reports how many chunks are currently stored for a ticker.
func (r *ChunkRepository) CountByTicker(ctx context.Context, ticker string) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&model.DocumentChunk{}).
		Where("ticker = ?", ticker).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("%w: count chunks for %s: %v", ErrStorage, ticker, err)
	}
	return count, nil
}
