package api

import (
	"go-sim-loop/internal/api/handler"
	"go-sim-loop/pkg/router"

	_ "go-sim-loop/docs"

	httpSwagger "github.com/swaggo/http-swagger"
)

func RegisterRoutes(r *router.Router, h *handler.Handler) {
	r.POST("/simulation", h.Submit)
	r.GET("/runs", h.ListRuns)
	// More specific routes first
	r.GET("/runs/{id}/result", h.GetResult)
	r.GET("/runs/{id}/related", h.GetRelated)
	r.GET("/runs/{id}/timeseries", h.GetTimeseries)
	r.GET("/runs/{id}/watch", h.WatchResult)
	// Generic run route last
	r.GET("/runs/{id}", h.GetRun)
	r.GET("/models/{name}", h.GetModel)
	r.GET("/health", h.Health)
	r.GET("/metrics", h.Metrics)
	r.Handle("/swagger/", httpSwagger.WrapHandler)
}
