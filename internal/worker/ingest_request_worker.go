package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"tradeberg/internal/model"
)

type (
	tickerIngester interface {
		IngestTicker(ctx context.Context, ticker string) error
	}

	statusReader interface {
		Get(ctx context.Context, ticker string) (*model.IngestionStatus, error)
	}
)

// IngestRequestWorker consumes on-demand ingestion triggers and drives the
// same pipeline the scheduler uses. Triggers obey the same rules as scheduled
// runs: the claim guard prevents overlap with an in-flight ingestion, and the
// re-ingestion cooldown drops triggers for a recently succeeded ticker.
type IngestRequestWorker struct {
	conn      *amqp.Connection
	ingester  tickerIngester
	statuses  statusReader
	queueName string
	cooldown  time.Duration
	logger    *slog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewIngestRequestWorker(
	conn *amqp.Connection,
	ingester tickerIngester,
	statuses statusReader,
	queueName string,
	cooldown time.Duration,
	logger *slog.Logger,
) *IngestRequestWorker {
	if logger == nil {
		logger = slog.Default()
	}
	return &IngestRequestWorker{
		conn:      conn,
		ingester:  ingester,
		statuses:  statuses,
		queueName: queueName,
		cooldown:  cooldown,
		logger:    logger.With("component", "ingest-worker"),
	}
}

func (w *IngestRequestWorker) Start(ctx context.Context) error {
	if w.cancel != nil {
		return nil
	}

	workerCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel

	ch, err := w.conn.Channel()
	if err != nil {
		cancel()
		return fmt.Errorf("open worker channel failed: %w", err)
	}

	_, err = ch.QueueDeclare(
		w.queueName,
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		_ = ch.Close()
		cancel()
		return fmt.Errorf("declare worker queue failed: %w", err)
	}

	deliveries, err := ch.Consume(
		w.queueName,
		"",
		false,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		_ = ch.Close()
		cancel()
		return fmt.Errorf("consume queue failed: %w", err)
	}

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		defer ch.Close()

		for {
			select {
			case <-workerCtx.Done():
				return
			case d, ok := <-deliveries:
				if !ok {
					return
				}
				if err := w.handle(workerCtx, d.Body); err != nil {
					_ = d.Nack(false, false)
					continue
				}
				_ = d.Ack(false)
			}
		}
	}()

	return nil
}

// handle processes one queued trigger. A non-nil return means the payload
// itself is unusable and should be rejected; a pipeline failure resolves into
// a failed status row and the message is consumed either way, so a broken
// filing cannot wedge the queue.
func (w *IngestRequestWorker) handle(ctx context.Context, body []byte) error {
	var req model.IngestRequest
	if err := json.Unmarshal(body, &req); err != nil {
		w.logger.Error("decode ingest request failed", "err", err)
		return err
	}

	ticker := strings.ToUpper(strings.TrimSpace(req.Ticker))
	if ticker == "" {
		w.logger.Error("ingest request without ticker")
		return errors.New("ingest request without ticker")
	}

	if w.withinCooldown(ctx, ticker) {
		w.logger.Info("ticker within re-ingestion cooldown, dropping trigger", "ticker", ticker)
		return nil
	}

	if err := w.ingester.IngestTicker(ctx, ticker); err != nil {
		w.logger.Error("requested ingestion resolved with error", "ticker", ticker, "err", err)
	}
	return nil
}

// withinCooldown reports whether the ticker succeeded recently enough that a
// new run would be a pointless re-download. A status read failure does not
// block the trigger; the claim guard still protects against overlap.
func (w *IngestRequestWorker) withinCooldown(ctx context.Context, ticker string) bool {
	if w.cooldown <= 0 {
		return false
	}
	status, err := w.statuses.Get(ctx, ticker)
	if err != nil || status == nil || status.LastSuccessAt == nil {
		return false
	}
	return time.Since(*status.LastSuccessAt) < w.cooldown
}

func (w *IngestRequestWorker) Close() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
}
