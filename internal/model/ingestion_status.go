package model

import "time"

// Ingestion states. A ticker may enter StateRunning from any state except
// StateRunning itself; that conditional transition is the mutual-exclusion
// guard for the whole pipeline.
const (
	StateIdle      = "idle"
	StateRunning   = "running"
	StateSucceeded = "succeeded"
	StateFailed    = "failed"
)

// IngestionStatus tracks the ingestion state machine for one ticker.
// Rows are created on first scheduling and only ever updated after that.
type IngestionStatus struct {
	Ticker        string     `gorm:"primaryKey;size:12" json:"ticker"`
	State         string     `gorm:"size:16;not null;default:idle" json:"state"`
	LastAttemptAt *time.Time `json:"last_attempt_at"`
	LastSuccessAt *time.Time `json:"last_success_at"`
	LastError     string     `gorm:"type:text" json:"last_error"`
	SourceURL     string     `gorm:"size:512" json:"source_url"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

func (IngestionStatus) TableName() string {
	return "ingestion_statuses"
}
