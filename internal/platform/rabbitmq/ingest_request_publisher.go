package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"tradeberg/internal/model"
)

// IngestRequestPublisher pushes on-demand ingestion triggers onto the queue
// consumed by the ingest worker, so HTTP callers never wait on a full
// pipeline run.
type IngestRequestPublisher struct {
	conn      *amqp.Connection
	queueName string
}

func NewIngestRequestPublisher(conn *amqp.Connection, queueName string) *IngestRequestPublisher {
	return &IngestRequestPublisher{
		conn:      conn,
		queueName: queueName,
	}
}

func (p *IngestRequestPublisher) Publish(ctx context.Context, ticker string) error {
	ch, err := p.conn.Channel()
	if err != nil {
		return fmt.Errorf("open rabbitmq channel failed: %w", err)
	}
	defer ch.Close()

	_, err = ch.QueueDeclare(
		p.queueName,
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("declare queue failed: %w", err)
	}

	payload, err := json.Marshal(model.IngestRequest{
		Ticker:      ticker,
		RequestedAt: time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("marshal ingest request failed: %w", err)
	}

	if err := ch.PublishWithContext(
		ctx,
		"",
		p.queueName,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         payload,
			DeliveryMode: amqp.Persistent,
		},
	); err != nil {
		return fmt.Errorf("publish ingest request failed: %w", err)
	}
	return nil
}
