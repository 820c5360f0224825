package types

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// TimeLayout is how measurement times are persisted. Lexical order equals time order.
const TimeLayout = "2006-01-02T15:04:05Z"

const (
	MetricTemperature = "temperature"
	MetricPressure    = "pressure"
	MetricHumidity    = "humidity"
	MetricCO2         = "co2"
	MetricNOx         = "nox"
	MetricVOC         = "voc"
	MetricAQIVOC      = "aqi_voc"
	MetricAQINOx      = "aqi_nox"
	MetricPM1         = "pm1"
	MetricPM10        = "pm10"
	MetricPM25        = "pm25"
	MetricLux         = "lux"
)

// Metrics lists every metric in column order.
var Metrics = []string{
	MetricTemperature,
	MetricPressure,
	MetricHumidity,
	MetricCO2,
	MetricNOx,
	MetricVOC,
	MetricAQIVOC,
	MetricAQINOx,
	MetricPM1,
	MetricPM10,
	MetricPM25,
	MetricLux,
}

var (
	// ErrMalformedPayload marks an inbound message that cannot become a Reading.
	// Such messages are dropped, never retried.
	ErrMalformedPayload = errors.New("malformed payload")
	// ErrStorage marks an I/O failure of the reading store.
	ErrStorage = errors.New("storage failure")
	// ErrInvalidInput marks a classification request without a usable value.
	ErrInvalidInput = errors.New("invalid classification input")
)

// Reading is one timestamped sample. Temperature is in °F and pressure in kPa.
// A nil metric means the sensor did not report it.
type Reading struct {
	Time        time.Time `json:"time"`
	Temperature *float64  `json:"temperature"`
	Pressure    *float64  `json:"pressure"`
	Humidity    *float64  `json:"humidity"`
	CO2         *float64  `json:"co2"`
	NOx         *float64  `json:"nox"`
	VOC         *float64  `json:"voc"`
	AQIVOC      *float64  `json:"aqi_voc"`
	AQINOx      *float64  `json:"aqi_nox"`
	PM1         *float64  `json:"pm1"`
	PM10        *float64  `json:"pm10"`
	PM25        *float64  `json:"pm25"`
	Lux         *float64  `json:"lux"`
}

// Value returns the named metric. ok is false for unknown metric names.
func (r Reading) Value(metric string) (v *float64, ok bool) {
	switch metric {
	case MetricTemperature:
		return r.Temperature, true
	case MetricPressure:
		return r.Pressure, true
	case MetricHumidity:
		return r.Humidity, true
	case MetricCO2:
		return r.CO2, true
	case MetricNOx:
		return r.NOx, true
	case MetricVOC:
		return r.VOC, true
	case MetricAQIVOC:
		return r.AQIVOC, true
	case MetricAQINOx:
		return r.AQINOx, true
	case MetricPM1:
		return r.PM1, true
	case MetricPM10:
		return r.PM10, true
	case MetricPM25:
		return r.PM25, true
	case MetricLux:
		return r.Lux, true
	default:
		return nil, false
	}
}

// fields returns pointers to the metric fields in column order.
func (r *Reading) fields() []**float64 {
	return []**float64{
		&r.Temperature, &r.Pressure, &r.Humidity, &r.CO2, &r.NOx, &r.VOC,
		&r.AQIVOC, &r.AQINOx, &r.PM1, &r.PM10, &r.PM25, &r.Lux,
	}
}

// FromValues builds a Reading from metric name → value. Names outside Metrics are ignored.
func FromValues(t time.Time, values map[string]*float64) Reading {
	r := Reading{Time: t}
	for i, f := range r.fields() {
		if v, ok := values[Metrics[i]]; ok && v != nil {
			x := *v
			*f = &x
		}
	}
	return r
}

// FromColumns builds a Reading from metric values in column order.
func FromColumns(t time.Time, cols []*float64) Reading {
	r := Reading{Time: t}
	for i, f := range r.fields() {
		if i < len(cols) {
			*f = cols[i]
		}
	}
	return r
}

// Clone returns a copy of r that shares no metric pointers with it.
func (r Reading) Clone() Reading {
	out := Reading{Time: r.Time}
	src := r.fields()
	for i, f := range out.fields() {
		if v := *src[i]; v != nil {
			x := *v
			*f = &x
		}
	}
	return out
}

// Values returns the metrics in column order, nil where absent.
func (r Reading) Values() []*float64 {
	fs := r.fields()
	out := make([]*float64, len(fs))
	for i, f := range fs {
		out[i] = *f
	}
	return out
}

// RawRecord is one decoded inbound message. A key mapped to nil was sent as null.
type RawRecord struct {
	ReceivedAt time.Time
	Values     map[string]*float64
}

// Missing returns the metrics absent from the record, in column order.
func (r RawRecord) Missing() []string {
	var out []string
	for _, m := range Metrics {
		if _, ok := r.Values[m]; !ok {
			out = append(out, m)
		}
	}
	return out
}

// DecodePayload parses a JSON state message. Unknown keys are ignored; a known key
// holding anything other than a number or null fails with ErrMalformedPayload.
func DecodePayload(payload []byte) (map[string]*float64, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if raw == nil {
		return nil, fmt.Errorf("%w: not a JSON object", ErrMalformedPayload)
	}

	out := make(map[string]*float64, len(Metrics))
	for _, m := range Metrics {
		msg, ok := raw[m]
		if !ok {
			continue
		}
		if bytes.Equal(bytes.TrimSpace(msg), []byte("null")) {
			out[m] = nil
			continue
		}
		var v float64
		if err := json.Unmarshal(msg, &v); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrMalformedPayload, m, err)
		}
		out[m] = &v
	}
	return out, nil
}

// Float returns a pointer to v.
func Float(v float64) *float64 {
	return &v
}
