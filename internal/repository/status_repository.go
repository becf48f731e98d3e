package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"tradeberg/internal/model"
)

type StatusRepository struct {
	db *gorm.DB
}

func NewStatusRepository(db *gorm.DB) *StatusRepository {
	return &StatusRepository{db: db}
}

// EnsureExists creates the idle status row for a ticker if it does not exist
// yet. Safe to call from concurrent scheduler cycles.
func (r *StatusRepository) EnsureExists(ctx context.Context, ticker string) error {
	status := model.IngestionStatus{Ticker: ticker, State: model.StateIdle}
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&status).Error
	if err != nil {
		return fmt.Errorf("%w: ensure status for %s: %v", ErrStorage, ticker, err)
	}
	return nil
}

// Claim atomically transitions a ticker to running. The guard is a single
// conditional UPDATE: it succeeds only when the ticker is not running, or its
// running marker is older than staleAfter and therefore abandoned. Exactly
// one of N concurrent claimants wins; losing is not an error.
func (r *StatusRepository) Claim(ctx context.Context, ticker string, staleAfter time.Duration) (bool, error) {
	now := time.Now().UTC()
	res := r.db.WithContext(ctx).
		Model(&model.IngestionStatus{}).
		Where("ticker = ? AND (state <> ? OR last_attempt_at IS NULL OR last_attempt_at < ?)",
			ticker, model.StateRunning, now.Add(-staleAfter)).
		Updates(map[string]interface{}{
			"state":           model.StateRunning,
			"last_attempt_at": now,
			"updated_at":      now,
		})
	if res.Error != nil {
		return false, fmt.Errorf("%w: claim %s: %v", ErrStorage, ticker, res.Error)
	}
	return res.RowsAffected == 1, nil
}

// MarkSucceeded records a completed run: error cleared, success timestamp and
// source URL set.
func (r *StatusRepository) MarkSucceeded(ctx context.Context, ticker, sourceURL string) error {
	now := time.Now().UTC()
	err := r.db.WithContext(ctx).
		Model(&model.IngestionStatus{}).
		Where("ticker = ?", ticker).
		Updates(map[string]interface{}{
			"state":           model.StateSucceeded,
			"last_success_at": now,
			"last_error":      "",
			"source_url":      sourceURL,
			"updated_at":      now,
		}).Error
	if err != nil {
		return fmt.Errorf("%w: mark %s succeeded: %v", ErrStorage, ticker, err)
	}
	return nil
}

// MarkFailed records the terminal failure cause for the run. Previously
// stored chunks are deliberately left untouched.
func (r *StatusRepository) MarkFailed(ctx context.Context, ticker, cause string) error {
	err := r.db.WithContext(ctx).
		Model(&model.IngestionStatus{}).
		Where("ticker = ?", ticker).
		Updates(map[string]interface{}{
			"state":      model.StateFailed,
			"last_error": cause,
			"updated_at": time.Now().UTC(),
		}).Error
	if err != nil {
		return fmt.Errorf("%w: mark %s failed: %v", ErrStorage, ticker, err)
	}
	return nil
}

// ListDue returns tickers eligible for a new ingestion attempt: never
// attempted, past the re-ingestion cooldown, or stuck in running longer than
// staleAfter.
func (r *StatusRepository) ListDue(ctx context.Context, cooldown, staleAfter time.Duration) ([]model.IngestionStatus, error) {
	now := time.Now().UTC()
	var statuses []model.IngestionStatus
	err := r.db.WithContext(ctx).
		Where("(state <> ? AND (last_attempt_at IS NULL OR last_attempt_at < ?)) OR (state = ? AND last_attempt_at < ?)",
			model.StateRunning, now.Add(-cooldown), model.StateRunning, now.Add(-staleAfter)).
		Order("ticker ASC").
		Find(&statuses).Error
	if err != nil {
		return nil, fmt.Errorf("%w: list due tickers: %v", ErrStorage, err)
	}
	return statuses, nil
}

// Get returns the status row for one ticker, or nil when it has never been
// scheduled.
func (r *StatusRepository) Get(ctx context.Context, ticker string) (*model.IngestionStatus, error) {
	var status model.IngestionStatus
	err := r.db.WithContext(ctx).Where("ticker = ?", ticker).First(&status).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get status for %s: %v", ErrStorage, ticker, err)
	}
	return &status, nil
}

// List returns all status rows ordered by ticker.
func (r *StatusRepository) List(ctx context.Context) ([]model.IngestionStatus, error) {
	var statuses []model.IngestionStatus
	if err := r.db.WithContext(ctx).Order("ticker ASC").Find(&statuses).Error; err != nil {
		return nil, fmt.Errorf("%w: list statuses: %v", ErrStorage, err)
	}
	return statuses, nil
}
