// Package service turns decoded sensor messages into stored readings and keeps
// the rolling window in step with the store.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/wyolum/home-monitor/internal/metrics"
	"github.com/wyolum/home-monitor/internal/modules/airquality/levels"
	"github.com/wyolum/home-monitor/internal/modules/airquality/repository"
	"github.com/wyolum/home-monitor/internal/modules/airquality/types"
	"github.com/wyolum/home-monitor/internal/modules/airquality/window"
)

type Service struct {
	repository repository.ReadingRepository
	window     *window.Window
	logger     *slog.Logger

	mu         sync.Mutex
	lastLevels map[string]levels.Level
}

func NewService(repo repository.ReadingRepository, w *window.Window, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repository: repo,
		window:     w,
		logger:     logger,
		lastLevels: make(map[string]levels.Level),
	}
}

func (s *Service) Window() *window.Window {
	return s.window
}

// Bootstrap ensures the schema exists and loads the most recent Cap() readings
// into the window. Must run before the subscriber starts delivering.
func (s *Service) Bootstrap(ctx context.Context) error {
	if err := s.repository.EnsureSchema(ctx); err != nil {
		return err
	}
	tail, err := s.repository.Tail(ctx, s.window.Cap())
	if err != nil {
		return fmt.Errorf("hydrate window: %w", err)
	}
	s.window.Hydrate(tail)
	metrics.WindowReadings.Set(float64(s.window.Len()))

	if latest, ok := s.window.Latest(); ok {
		s.mu.Lock()
		current := levels.ClassifyReading(latest)
		for _, m := range levels.Metrics() {
			metrics.LevelRank.WithLabelValues(m).Set(float64(current[m].Rank()))
		}
		for m, l := range current {
			s.lastLevels[m] = l
		}
		s.mu.Unlock()
	}

	s.logger.Info("window hydrated", "readings", len(tail), "capacity", s.window.Cap())
	return nil
}

// Ingest stores one raw record and appends it to the window. The store's
// duplicate outcome does not gate the window; only a reading stamped with the
// same second as the window tail is left out of it. On a storage failure the
// window is left untouched and the error wraps types.ErrStorage.
func (s *Service) Ingest(ctx context.Context, raw types.RawRecord) (types.Reading, repository.AppendResult, error) {
	if missing := raw.Missing(); len(missing) > 0 {
		metrics.RecordIngest(metrics.ResultMalformed)
		return types.Reading{}, repository.Failed,
			fmt.Errorf("%w: missing %s", types.ErrMalformedPayload, strings.Join(missing, ", "))
	}

	ts := raw.ReceivedAt.UTC().Truncate(time.Second)
	reading := Normalize(types.FromValues(ts, raw.Values))

	prev, hasPrev := s.window.Latest()

	result, err := s.repository.Append(ctx, reading)
	metrics.RecordIngest(result.String())
	if err != nil {
		return reading, result, err
	}
	if result == repository.Duplicate {
		s.logger.Debug("duplicate measurement time", "time", ts.Format(types.TimeLayout))
	}
	if hasPrev && ts.Equal(prev.Time) {
		// Re-delivery within the same second is already in the window.
		return reading, result, nil
	}
	if hasPrev && ts.Before(prev.Time) {
		s.logger.Debug("reading older than window tail",
			"time", ts.Format(types.TimeLayout),
			"tail", prev.Time.Format(types.TimeLayout),
		)
	}

	s.window.Append(reading)
	metrics.WindowReadings.Set(float64(s.window.Len()))

	s.checkLevels(reading)
	return reading, result, nil
}

// Normalize converts temperature from °C to °F and pressure from Pa to kPa.
func Normalize(r types.Reading) types.Reading {
	if r.Temperature != nil {
		r.Temperature = types.Float(*r.Temperature*9/5 + 32)
	}
	if r.Pressure != nil {
		r.Pressure = types.Float(*r.Pressure / 1000)
	}
	return r
}

// checkLevels logs when a classified metric crosses into Poor or worse, and
// when it comes back.
func (s *Service) checkLevels(r types.Reading) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current := levels.ClassifyReading(r)
	for _, metric := range levels.Metrics() {
		if _, ok := current[metric]; !ok {
			// Not reported this time.
			metrics.LevelRank.WithLabelValues(metric).Set(0)
		}
	}
	for metric, level := range current {
		metrics.LevelRank.WithLabelValues(metric).Set(float64(level.Rank()))

		prev := s.lastLevels[metric]
		s.lastLevels[metric] = level
		if prev == level {
			continue
		}
		value, _ := r.Value(metric)
		switch {
		case level.Rank() >= levels.Poor.Rank():
			s.logger.Warn("air quality degraded",
				"metric", metric,
				"value", *value,
				"level", level,
				"previous", prev,
			)
		case prev.Rank() >= levels.Poor.Rank():
			s.logger.Info("air quality recovered",
				"metric", metric,
				"value", *value,
				"level", level,
				"previous", prev,
			)
		}
	}
}
