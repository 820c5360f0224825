package controller

import (
	"net/http"

	"github.com/wyolum/home-monitor/internal/modules/airquality/repository"
	"github.com/wyolum/home-monitor/internal/modules/airquality/window"
)

type AirQualityController interface {
	RegisterRoutes(mux *http.ServeMux)
}

type airQualityControllerImpl struct {
	repository repository.ReadingRepository
	window     *window.Window
}

func NewAirQualityController(repository repository.ReadingRepository, window *window.Window) AirQualityController {
	return &airQualityControllerImpl{repository: repository, window: window}
}

func (c *airQualityControllerImpl) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/window", c.handleWindow)
	mux.HandleFunc("GET /api/v1/latest", c.handleLatest)
	mux.HandleFunc("GET /api/v1/readings", c.handleReadings)
	mux.HandleFunc("GET /api/v1/stats", c.handleStats)
	mux.HandleFunc("GET /api/v1/levels", c.handleLevels)
	mux.HandleFunc("GET /api/v1/levels/{metric}", c.handleClassify)
}
