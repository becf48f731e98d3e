package worker

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradeberg/internal/model"
)

type fakeIngester struct {
	tickers []string
	err     error
}

func (f *fakeIngester) IngestTicker(ctx context.Context, ticker string) error {
	f.tickers = append(f.tickers, ticker)
	return f.err
}

type fakeStatuses struct {
	statuses map[string]*model.IngestionStatus
	err      error
}

func (f *fakeStatuses) Get(ctx context.Context, ticker string) (*model.IngestionStatus, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.statuses[ticker], nil
}

func newTestWorker(ingester *fakeIngester, statuses *fakeStatuses, cooldown time.Duration) *IngestRequestWorker {
	return NewIngestRequestWorker(nil, ingester, statuses, "ingest.test", cooldown, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func requestBody(t *testing.T, ticker string) []byte {
	t.Helper()
	body, err := json.Marshal(model.IngestRequest{Ticker: ticker, RequestedAt: time.Now().UTC()})
	require.NoError(t, err)
	return body
}

func TestHandleRunsIngestion(t *testing.T) {
	ingester := &fakeIngester{}
	w := newTestWorker(ingester, &fakeStatuses{statuses: map[string]*model.IngestionStatus{}}, time.Hour)

	require.NoError(t, w.handle(context.Background(), requestBody(t, "nvda")))
	assert.Equal(t, []string{"NVDA"}, ingester.tickers, "ticker not normalised before ingestion")
}

func TestHandleDropsTriggerWithinCooldown(t *testing.T) {
	recent := time.Now().Add(-time.Minute)
	stale := time.Now().Add(-48 * time.Hour)
	ingester := &fakeIngester{}
	statuses := &fakeStatuses{statuses: map[string]*model.IngestionStatus{
		"AAPL": {Ticker: "AAPL", State: model.StateSucceeded, LastSuccessAt: &recent},
		"MSFT": {Ticker: "MSFT", State: model.StateSucceeded, LastSuccessAt: &stale},
	}}
	w := newTestWorker(ingester, statuses, 24*time.Hour)

	require.NoError(t, w.handle(context.Background(), requestBody(t, "AAPL")))
	assert.Empty(t, ingester.tickers, "recently succeeded ticker was re-ingested")

	require.NoError(t, w.handle(context.Background(), requestBody(t, "MSFT")))
	assert.Equal(t, []string{"MSFT"}, ingester.tickers)
}

func TestHandleIngestsFailedTickerRegardlessOfCooldown(t *testing.T) {
	// A failed ticker has no fresh success timestamp, so a trigger is its
	// fastest path to recovery.
	ingester := &fakeIngester{}
	statuses := &fakeStatuses{statuses: map[string]*model.IngestionStatus{
		"TSLA": {Ticker: "TSLA", State: model.StateFailed},
	}}
	w := newTestWorker(ingester, statuses, 24*time.Hour)

	require.NoError(t, w.handle(context.Background(), requestBody(t, "TSLA")))
	assert.Equal(t, []string{"TSLA"}, ingester.tickers)
}

func TestHandleStatusReadFailureDoesNotBlockTrigger(t *testing.T) {
	ingester := &fakeIngester{}
	statuses := &fakeStatuses{err: context.DeadlineExceeded}
	w := newTestWorker(ingester, statuses, 24*time.Hour)

	require.NoError(t, w.handle(context.Background(), requestBody(t, "NVDA")))
	assert.Equal(t, []string{"NVDA"}, ingester.tickers)
}

func TestHandleRejectsBadPayloads(t *testing.T) {
	ingester := &fakeIngester{}
	w := newTestWorker(ingester, &fakeStatuses{statuses: map[string]*model.IngestionStatus{}}, time.Hour)

	assert.Error(t, w.handle(context.Background(), []byte("not json")))
	assert.Error(t, w.handle(context.Background(), requestBody(t, "   ")))
	assert.Empty(t, ingester.tickers)
}
