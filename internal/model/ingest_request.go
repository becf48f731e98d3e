package model

import "time"

// IngestRequest is the queue payload for an on-demand ingestion trigger.
type IngestRequest struct {
	Ticker      string    `json:"ticker"`
	RequestedAt time.Time `json:"requested_at"`
}
