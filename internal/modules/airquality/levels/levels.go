// Package levels classifies air-quality metrics into qualitative severity levels.
package levels

import (
	"fmt"
	"math"

	"github.com/wyolum/home-monitor/internal/modules/airquality/types"
)

type Level string

const (
	Unclassified  Level = "Unclassified"
	Good          Level = "Good"
	Fair          Level = "Fair"
	Moderate      Level = "Moderate"
	Poor          Level = "Poor"
	VeryPoor      Level = "Very Poor"
	ExtremelyPoor Level = "Extremely Poor"
)

// Rank orders levels by severity. Unclassified ranks 0, Good 1, up to Extremely Poor 6.
func (l Level) Rank() int {
	switch l {
	case Good:
		return 1
	case Fair:
		return 2
	case Moderate:
		return 3
	case Poor:
		return 4
	case VeryPoor:
		return 5
	case ExtremelyPoor:
		return 6
	default:
		return 0
	}
}

// Threshold is the lower bound at which Level starts to apply.
type Threshold struct {
	Bound float64 `json:"bound"`
	Level Level   `json:"level"`
}

// tables are sorted ascending by Bound.
var tables = map[string][]Threshold{
	types.MetricPM25: {
		{0, Good},
		{10, Fair},
		{20, Moderate},
		{25, Poor},
		{50, VeryPoor},
		{75, ExtremelyPoor},
	},
	types.MetricCO2: {
		{0, Good},
		{500, Fair},
		{800, Moderate},
		{1000, Poor},
		{1200, VeryPoor},
		{1800, ExtremelyPoor},
	},
}

// Classify returns the level whose bound is the greatest one not above value.
// Metrics without a table, and values below the lowest bound, are Unclassified.
// A nil or NaN value is a caller bug and fails with types.ErrInvalidInput.
func Classify(metric string, value *float64) (Level, error) {
	if value == nil {
		return Unclassified, fmt.Errorf("%w: %s has no value", types.ErrInvalidInput, metric)
	}
	if math.IsNaN(*value) {
		return Unclassified, fmt.Errorf("%w: %s is NaN", types.ErrInvalidInput, metric)
	}
	table, ok := tables[metric]
	if !ok {
		return Unclassified, nil
	}
	for i := len(table) - 1; i >= 0; i-- {
		if table[i].Bound <= *value {
			return table[i].Level, nil
		}
	}
	return Unclassified, nil
}

// ClassifyReading classifies every classified metric the reading carries.
// Absent metrics are skipped.
func ClassifyReading(r types.Reading) map[string]Level {
	out := make(map[string]Level, len(tables))
	for _, metric := range Metrics() {
		v, _ := r.Value(metric)
		if v == nil {
			continue
		}
		if level, err := Classify(metric, v); err == nil {
			out[metric] = level
		}
	}
	return out
}

// Thresholds returns a copy of the metric's table, or nil when it has none.
func Thresholds(metric string) []Threshold {
	table, ok := tables[metric]
	if !ok {
		return nil
	}
	out := make([]Threshold, len(table))
	copy(out, table)
	return out
}

// Metrics lists the classified metrics in column order.
func Metrics() []string {
	var out []string
	for _, m := range types.Metrics {
		if _, ok := tables[m]; ok {
			out = append(out, m)
		}
	}
	return out
}
