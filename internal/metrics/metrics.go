// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Ingest results beyond the store outcomes.
const (
	ResultMalformed = "malformed"
)

var (
	IngestTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "home_monitor_ingest_total",
			Help: "Inbound readings by outcome (inserted, duplicate, failed, malformed)",
		},
		[]string{"result"},
	)

	WindowReadings = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "home_monitor_window_readings",
			Help: "Readings currently held in the rolling window",
		},
	)

	// LevelRank is the severity rank of the latest classified value, 0 = unclassified.
	LevelRank = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "home_monitor_level_rank",
			Help: "Severity rank of the latest reading per classified metric",
		},
		[]string{"metric"},
	)

	MQTTConnected = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "home_monitor_mqtt_connected",
			Help: "1 while the MQTT subscriber is connected",
		},
	)
)

// RecordIngest counts one inbound reading under result.
func RecordIngest(result string) {
	IngestTotal.WithLabelValues(result).Inc()
}

func SetMQTTConnected(v bool) {
	if v {
		MQTTConnected.Set(1)
		return
	}
	MQTTConnected.Set(0)
}
