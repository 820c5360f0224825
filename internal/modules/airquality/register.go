package airquality

import (
	"database/sql"
	"log/slog"
	"net/http"

	"github.com/wyolum/home-monitor/internal/modules/airquality/controller"
	"github.com/wyolum/home-monitor/internal/modules/airquality/repository"
	"github.com/wyolum/home-monitor/internal/modules/airquality/service"
	"github.com/wyolum/home-monitor/internal/modules/airquality/window"
	"github.com/wyolum/home-monitor/internal/mqtt"
)

// RegisterFeature wires the store, window and pipeline, exposes the read API on
// mux and routes subscriber messages into the pipeline. The caller must run
// Bootstrap on the returned service before connecting the subscriber.
func RegisterFeature(mux *http.ServeMux, db *sql.DB, subscriber mqtt.MQTTSubscriber, capacity int, logger *slog.Logger) *service.Service {
	airQualityRepository := repository.NewRepository(db, logger)
	readingWindow := window.New(capacity)

	airQualityService := service.NewService(airQualityRepository, readingWindow, logger)
	if subscriber != nil {
		airQualityService.Register(subscriber)
	}

	airQualityController := controller.NewAirQualityController(airQualityRepository, readingWindow)
	airQualityController.RegisterRoutes(mux)
	return airQualityService
}
