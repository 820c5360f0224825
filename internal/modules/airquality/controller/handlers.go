package controller

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/wyolum/home-monitor/internal/modules/airquality/levels"
	"github.com/wyolum/home-monitor/internal/modules/airquality/types"
	"github.com/wyolum/home-monitor/internal/utils"
)

type latestResponse struct {
	Reading types.Reading           `json:"reading"`
	Levels  map[string]levels.Level `json:"levels"`
}

type classifyResponse struct {
	Metric string       `json:"metric"`
	Value  float64      `json:"value"`
	Level  levels.Level `json:"level"`
}

func (c *airQualityControllerImpl) handleWindow(w http.ResponseWriter, r *http.Request) {
	limit, err := parseWindowQuery(r, c.window.Cap())
	if err != nil {
		utils.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	var readings []types.Reading
	if limit > 0 {
		readings = c.window.Tail(limit)
	} else {
		readings = c.window.Snapshot()
	}
	utils.WriteJSON(w, http.StatusOK, map[string]any{
		"capacity": c.window.Cap(),
		"count":    len(readings),
		"items":    readings,
	})
}

func (c *airQualityControllerImpl) handleLatest(w http.ResponseWriter, r *http.Request) {
	latest, ok := c.window.Latest()
	if !ok {
		utils.WriteError(w, http.StatusNotFound, "no readings yet")
		return
	}
	utils.WriteJSON(w, http.StatusOK, latestResponse{
		Reading: latest,
		Levels:  levels.ClassifyReading(latest),
	})
}

func (c *airQualityControllerImpl) handleReadings(w http.ResponseWriter, r *http.Request) {
	from, to, limit, err := parseReadingsQuery(r)
	if err != nil {
		utils.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	rangeTo := to
	if rangeTo.IsZero() {
		rangeTo = time.Now().UTC()
	}
	readings, err := c.repository.Range(r.Context(), from, rangeTo, limit)
	if err != nil {
		slog.Error("readings: range query failed", "error", err)
		utils.WriteError(w, http.StatusInternalServerError, "failed to load readings")
		return
	}

	utils.WriteJSON(w, http.StatusOK, map[string]any{
		"from":  zeroAsNullTime(from),
		"to":    zeroAsNullTime(to),
		"limit": limit,
		"items": readings,
	})
}

func (c *airQualityControllerImpl) handleStats(w http.ResponseWriter, r *http.Request) {
	stored, err := c.repository.Count(r.Context())
	if err != nil {
		slog.Error("stats: count failed", "error", err)
		utils.WriteError(w, http.StatusInternalServerError, "failed to count readings")
		return
	}
	resp := map[string]any{
		"stored":          stored,
		"window":          c.window.Len(),
		"window_capacity": c.window.Cap(),
		"latest":          nil,
	}
	if latest, ok := c.window.Latest(); ok {
		resp["latest"] = latest.Time
	}
	utils.WriteJSON(w, http.StatusOK, resp)
}

func (c *airQualityControllerImpl) handleLevels(w http.ResponseWriter, r *http.Request) {
	out := make(map[string][]levels.Threshold, len(levels.Metrics()))
	for _, m := range levels.Metrics() {
		out[m] = levels.Thresholds(m)
	}
	utils.WriteJSON(w, http.StatusOK, out)
}

func (c *airQualityControllerImpl) handleClassify(w http.ResponseWriter, r *http.Request) {
	metric := r.PathValue("metric")
	if levels.Thresholds(metric) == nil {
		utils.WriteError(w, http.StatusNotFound, "metric has no level table")
		return
	}

	value, err := parseClassifyQuery(r)
	if err != nil {
		utils.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	level, err := levels.Classify(metric, &value)
	if err != nil {
		utils.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	utils.WriteJSON(w, http.StatusOK, classifyResponse{Metric: metric, Value: value, Level: level})
}
