package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"tradeberg/internal/model"
	"tradeberg/internal/transport/http/response"
)

type (
	statusReader interface {
		List(ctx context.Context) ([]model.IngestionStatus, error)
		Get(ctx context.Context, ticker string) (*model.IngestionStatus, error)
	}

	chunkCounter interface {
		CountByTicker(ctx context.Context, ticker string) (int64, error)
	}

	ingestRequestPublisher interface {
		Publish(ctx context.Context, ticker string) error
	}
)

type IngestionHandler struct {
	statuses  statusReader
	chunks    chunkCounter
	publisher ingestRequestPublisher
}

func NewIngestionHandler(statuses statusReader, chunks chunkCounter, publisher ingestRequestPublisher) *IngestionHandler {
	return &IngestionHandler{statuses: statuses, chunks: chunks, publisher: publisher}
}

// TickerStatus is the status row plus how many chunks the ticker currently
// has stored, so operators can tell an empty succeeded run from a full one.
type TickerStatus struct {
	model.IngestionStatus
	ChunkCount int64 `json:"chunk_count"`
}

// ListStatuses reports the per-ticker ingestion state machine.
func (h *IngestionHandler) ListStatuses(c *gin.Context) {
	statuses, err := h.statuses.List(c.Request.Context())
	if err != nil {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "list statuses failed")
		return
	}
	response.OK(c, statuses)
}

// GetStatus reports the status row and stored chunk count for one ticker.
func (h *IngestionHandler) GetStatus(c *gin.Context) {
	ticker := strings.ToUpper(strings.TrimSpace(c.Param("ticker")))
	if ticker == "" {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "ticker is required")
		return
	}
	status, err := h.statuses.Get(c.Request.Context(), ticker)
	if err != nil {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "get status failed")
		return
	}
	if status == nil {
		response.Error(c, http.StatusNotFound, response.CodeTickerNotFound, "ticker has never been scheduled")
		return
	}
	count, err := h.chunks.CountByTicker(c.Request.Context(), ticker)
	if err != nil {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "count chunks failed")
		return
	}
	response.OK(c, TickerStatus{IngestionStatus: *status, ChunkCount: count})
}

// Trigger enqueues an on-demand ingestion request. The pipeline runs in the
// queue worker, never in the request path.
func (h *IngestionHandler) Trigger(c *gin.Context) {
	ticker := strings.ToUpper(strings.TrimSpace(c.Param("ticker")))
	if ticker == "" {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "ticker is required")
		return
	}
	if err := h.publisher.Publish(c.Request.Context(), ticker); err != nil {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "enqueue ingestion failed")
		return
	}
	response.OK(c, gin.H{"ticker": ticker, "queued": true})
}
