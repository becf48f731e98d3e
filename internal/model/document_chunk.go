package model

import (
	"time"

	"github.com/pgvector/pgvector-go"
)

// EmbeddingDimensions is the width of the embedding column. The vector type
// tag on DocumentChunk must agree with it; changing either is a schema
// migration, so config.Validate rejects any other configured dimension.
const EmbeddingDimensions = 768

// DocumentChunk is one retrievable fragment of a cleaned filing, stored with
// its embedding. chunk_index values for a ticker form a contiguous 0..N-1
// sequence within the current ingestion run; a successful re-ingestion
// replaces the whole set for that ticker.
type DocumentChunk struct {
	ID         uint            `gorm:"primaryKey" json:"id"`
	Ticker     string          `gorm:"size:12;not null;uniqueIndex:idx_ticker_chunk,priority:1" json:"ticker"`
	ChunkIndex int             `gorm:"not null;uniqueIndex:idx_ticker_chunk,priority:2" json:"chunk_index"`
	Content    string          `gorm:"type:text;not null" json:"content"`
	Embedding  pgvector.Vector `gorm:"type:vector(768)" json:"-"`
	Source     string          `gorm:"size:512" json:"source"`
	CreatedAt  time.Time       `json:"created_at"`
}

func (DocumentChunk) TableName() string {
	return "document_chunks"
}

// ScoredChunk is a chunk paired with its distance to a query embedding.
// Lower distance means more similar.
type ScoredChunk struct {
	DocumentChunk
	Distance float64 `gorm:"column:distance" json:"distance"`
}
