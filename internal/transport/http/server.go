package http

import (
	"github.com/gin-gonic/gin"

	appsvc "tradeberg/internal/app"
	"tradeberg/internal/bootstrap"
	"tradeberg/internal/transport/http/handler"
)

func NewRouter(app *bootstrap.App) *gin.Engine {
	gin.SetMode(app.Config.App.GinMode)
	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())

	healthHandler := handler.NewHealthHandler(app.Config.App.Name, app.StartedAt)
	router.GET("/healthz", healthHandler.Check)

	retrievalService := appsvc.NewRetrievalService(
		app.Embedder,
		app.ChunkRepo,
		app.SearchCache,
		app.Config.Retrieval.TopK,
		app.Logger,
	)
	searchHandler := handler.NewSearchHandler(retrievalService)
	ingestionHandler := handler.NewIngestionHandler(app.StatusRepo, app.ChunkRepo, app.IngestPublisher)

	v1 := router.Group("/api/v1")
	v1.POST("/search", searchHandler.Search)

	ingestGroup := v1.Group("/ingestion")
	ingestGroup.GET("/status", ingestionHandler.ListStatuses)
	ingestGroup.GET("/status/:ticker", ingestionHandler.GetStatus)
	ingestGroup.POST("/trigger/:ticker", ingestionHandler.Trigger)

	return router
}
