package controller

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/wyolum/home-monitor/internal/modules/airquality/repository"
	"github.com/wyolum/home-monitor/internal/modules/airquality/types"
	"github.com/wyolum/home-monitor/internal/modules/airquality/window"
)

var t0 = time.Date(2025, 2, 1, 12, 0, 0, 0, time.UTC)

type mockRepo struct {
	readings []types.Reading
	rangeErr error
	count    int
	countErr error
	gotFrom  time.Time
	gotTo    time.Time
	gotLimit int
}

func (m *mockRepo) EnsureSchema(context.Context) error { return nil }

func (m *mockRepo) Append(context.Context, types.Reading) (repository.AppendResult, error) {
	return repository.Inserted, nil
}

func (m *mockRepo) Tail(context.Context, int) ([]types.Reading, error) {
	return m.readings, nil
}

func (m *mockRepo) Range(_ context.Context, from, to time.Time, limit int) ([]types.Reading, error) {
	m.gotFrom, m.gotTo, m.gotLimit = from, to, limit
	return m.readings, m.rangeErr
}

func (m *mockRepo) Count(context.Context) (int, error) {
	return m.count, m.countErr
}

func newTestMux(repo *mockRepo, w *window.Window) *http.ServeMux {
	mux := http.NewServeMux()
	NewAirQualityController(repo, w).RegisterRoutes(mux)
	return mux
}

func serve(t *testing.T, mux *http.ServeMux, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.NewDecoder(rec.Body).Decode(&out); err != nil {
		t.Fatalf("body is not valid JSON: %v", err)
	}
	return out
}

func filledWindow(capacity, n int) *window.Window {
	w := window.New(capacity)
	for i := 0; i < n; i++ {
		w.Append(types.Reading{
			Time: t0.Add(time.Duration(i) * time.Minute),
			CO2:  types.Float(float64(600 + 100*i)),
			PM25: types.Float(5),
		})
	}
	return w
}

func Test_handleWindow(t *testing.T) {
	mux := newTestMux(&mockRepo{}, filledWindow(10, 4))

	t.Run("whole window", func(t *testing.T) {
		rec := serve(t, mux, "/api/v1/window")
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d; want %d", rec.Code, http.StatusOK)
		}
		body := decode[struct {
			Capacity int             `json:"capacity"`
			Count    int             `json:"count"`
			Items    []types.Reading `json:"items"`
		}](t, rec)
		if body.Capacity != 10 || body.Count != 4 || len(body.Items) != 4 {
			t.Fatalf("body = %+v; want capacity 10 and 4 items", body)
		}
		if !body.Items[0].Time.Equal(t0) {
			t.Errorf("first item time = %v; want %v", body.Items[0].Time, t0)
		}
	})

	t.Run("tail", func(t *testing.T) {
		rec := serve(t, mux, "/api/v1/window?limit=2")
		body := decode[struct {
			Items []types.Reading `json:"items"`
		}](t, rec)
		if len(body.Items) != 2 || *body.Items[1].CO2 != 900 {
			t.Errorf("items = %+v; want last two readings", body.Items)
		}
	})

	t.Run("empty window encodes empty list", func(t *testing.T) {
		rec := serve(t, newTestMux(&mockRepo{}, window.New(3)), "/api/v1/window")
		if !strings.Contains(rec.Body.String(), `"items":[]`) {
			t.Errorf("body = %q; want empty items array", rec.Body.String())
		}
	})

	for _, q := range []string{"limit=0", "limit=abc", "limit=11"} {
		t.Run("bad "+q, func(t *testing.T) {
			rec := serve(t, mux, "/api/v1/window?"+q)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d; want %d", rec.Code, http.StatusBadRequest)
			}
		})
	}
}

func Test_handleLatest(t *testing.T) {
	t.Run("404 when empty", func(t *testing.T) {
		rec := serve(t, newTestMux(&mockRepo{}, window.New(3)), "/api/v1/latest")
		if rec.Code != http.StatusNotFound {
			t.Fatalf("status = %d; want %d", rec.Code, http.StatusNotFound)
		}
	})

	t.Run("latest with levels", func(t *testing.T) {
		rec := serve(t, newTestMux(&mockRepo{}, filledWindow(10, 5)), "/api/v1/latest")
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d; want %d", rec.Code, http.StatusOK)
		}
		body := decode[struct {
			Reading types.Reading     `json:"reading"`
			Levels  map[string]string `json:"levels"`
		}](t, rec)
		if *body.Reading.CO2 != 1000 {
			t.Errorf("co2 = %v; want 1000", *body.Reading.CO2)
		}
		if body.Levels["co2"] != "Poor" || body.Levels["pm25"] != "Good" {
			t.Errorf("levels = %v; want co2 Poor, pm25 Good", body.Levels)
		}
	})
}

func Test_handleReadings(t *testing.T) {
	t.Run("passes range to repository", func(t *testing.T) {
		repo := &mockRepo{readings: []types.Reading{{Time: t0}}}
		rec := serve(t, newTestMux(repo, window.New(3)),
			"/api/v1/readings?from=2025-02-01T00:00:00Z&to=2025-02-02T00:00:00Z&limit=5")
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d; want %d", rec.Code, http.StatusOK)
		}
		if !repo.gotFrom.Equal(time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)) ||
			!repo.gotTo.Equal(time.Date(2025, 2, 2, 0, 0, 0, 0, time.UTC)) ||
			repo.gotLimit != 5 {
			t.Errorf("Range(%v, %v, %d); want the query values", repo.gotFrom, repo.gotTo, repo.gotLimit)
		}
		body := decode[map[string]any](t, rec)
		if items, _ := body["items"].([]any); len(items) != 1 {
			t.Errorf("items = %v; want 1", body["items"])
		}
	})

	t.Run("open range defaults", func(t *testing.T) {
		repo := &mockRepo{}
		rec := serve(t, newTestMux(repo, window.New(3)), "/api/v1/readings")
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d; want %d", rec.Code, http.StatusOK)
		}
		if repo.gotLimit != defaultReadingsLimit || !repo.gotFrom.IsZero() || repo.gotTo.IsZero() {
			t.Errorf("Range(%v, %v, %d); want zero from, now to, default limit", repo.gotFrom, repo.gotTo, repo.gotLimit)
		}
		body := decode[map[string]any](t, rec)
		if body["from"] != nil || body["to"] != nil {
			t.Errorf("from/to = %v/%v; want null", body["from"], body["to"])
		}
	})

	t.Run("bad query", func(t *testing.T) {
		rec := serve(t, newTestMux(&mockRepo{}, window.New(3)), "/api/v1/readings?from=yesterday")
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d; want %d", rec.Code, http.StatusBadRequest)
		}
	})

	t.Run("store failure", func(t *testing.T) {
		repo := &mockRepo{rangeErr: types.ErrStorage}
		rec := serve(t, newTestMux(repo, window.New(3)), "/api/v1/readings")
		if rec.Code != http.StatusInternalServerError {
			t.Errorf("status = %d; want %d", rec.Code, http.StatusInternalServerError)
		}
		if !strings.Contains(rec.Body.String(), "failed to load readings") {
			t.Errorf("body = %q", rec.Body.String())
		}
	})
}

func Test_handleStats(t *testing.T) {
	rec := serve(t, newTestMux(&mockRepo{count: 42}, filledWindow(10, 3)), "/api/v1/stats")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d; want %d", rec.Code, http.StatusOK)
	}
	body := decode[map[string]any](t, rec)
	if body["stored"] != float64(42) || body["window"] != float64(3) || body["window_capacity"] != float64(10) {
		t.Errorf("body = %v", body)
	}
	if body["latest"] != "2025-02-01T12:02:00Z" {
		t.Errorf("latest = %v; want 2025-02-01T12:02:00Z", body["latest"])
	}

	rec = serve(t, newTestMux(&mockRepo{countErr: errors.New("boom")}, window.New(3)), "/api/v1/stats")
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d; want %d", rec.Code, http.StatusInternalServerError)
	}
}

func Test_handleLevels(t *testing.T) {
	mux := newTestMux(&mockRepo{}, window.New(3))

	t.Run("tables", func(t *testing.T) {
		rec := serve(t, mux, "/api/v1/levels")
		body := decode[map[string][]struct {
			Bound float64 `json:"bound"`
			Level string  `json:"level"`
		}](t, rec)
		if len(body["co2"]) != 6 || len(body["pm25"]) != 6 {
			t.Fatalf("body = %v; want six thresholds for co2 and pm25", body)
		}
		if body["co2"][2].Bound != 800 || body["co2"][2].Level != "Moderate" {
			t.Errorf("co2[2] = %+v; want 800 Moderate", body["co2"][2])
		}
	})

	tests := []struct {
		target string
		status int
		level  string
	}{
		{target: "/api/v1/levels/co2?value=800", status: http.StatusOK, level: "Moderate"},
		{target: "/api/v1/levels/co2?value=799", status: http.StatusOK, level: "Fair"},
		{target: "/api/v1/levels/pm25?value=80", status: http.StatusOK, level: "Extremely Poor"},
		{target: "/api/v1/levels/co2?value=-5", status: http.StatusOK, level: "Unclassified"},
		{target: "/api/v1/levels/co2", status: http.StatusBadRequest},
		{target: "/api/v1/levels/co2?value=NaN", status: http.StatusBadRequest},
		{target: "/api/v1/levels/co2?value=lots", status: http.StatusBadRequest},
		{target: "/api/v1/levels/lux?value=10", status: http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.target, func(t *testing.T) {
			rec := serve(t, mux, tt.target)
			if rec.Code != tt.status {
				t.Fatalf("status = %d; want %d (body %q)", rec.Code, tt.status, rec.Body.String())
			}
			if tt.level == "" {
				return
			}
			body := decode[map[string]any](t, rec)
			if body["level"] != tt.level {
				t.Errorf("level = %v; want %q", body["level"], tt.level)
			}
		})
	}
}
