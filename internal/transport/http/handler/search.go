package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"tradeberg/internal/app"
	"tradeberg/internal/transport/http/response"
)

type SearchHandler struct {
	retrieval *app.RetrievalService
}

type SearchRequest struct {
	Query  string `json:"query" binding:"required"`
	Ticker string `json:"ticker"`
	TopK   int    `json:"top_k"`
}

func NewSearchHandler(retrieval *app.RetrievalService) *SearchHandler {
	return &SearchHandler{retrieval: retrieval}
}

// Search returns the stored fragments nearest to the query, for the chat
// layer to use as grounding context. No stored chunks is an empty list, not
// an error.
func (h *SearchHandler) Search(c *gin.Context) {
	var req SearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}

	fragments, err := h.retrieval.Search(c.Request.Context(), app.SearchInput{
		Query:  req.Query,
		Ticker: req.Ticker,
		TopK:   req.TopK,
	})
	if err != nil {
		if errors.Is(err, app.ErrInvalidInput) {
			response.Error(c, http.StatusBadRequest, response.CodeBadRequest, err.Error())
		} else {
			response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "search failed")
		}
		return
	}
	response.OK(c, fragments)
}
