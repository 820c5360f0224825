package repository

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/wyolum/home-monitor/internal/modules/airquality/types"

	_ "github.com/mattn/go-sqlite3"
)

var t0 = time.Date(2025, 2, 1, 12, 0, 0, 0, time.UTC)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	// Every new :memory: connection is a fresh database.
	db.SetMaxOpenConns(1)
	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Errorf("close db: %v", err)
		}
	})
	return db
}

func setupRepo(t *testing.T) (ReadingRepository, *sql.DB) {
	t.Helper()
	db := setupTestDB(t)
	repo := NewRepository(db, nil)
	if err := repo.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("EnsureSchema: %v", err)
	}
	return repo, db
}

func reading(ts time.Time, co2 float64) types.Reading {
	return types.Reading{
		Time:        ts,
		Temperature: types.Float(70.7),
		Pressure:    types.Float(101.325),
		CO2:         types.Float(co2),
		PM25:        types.Float(8),
	}
}

func TestEnsureSchema_Idempotent(t *testing.T) {
	repo, _ := setupRepo(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := repo.EnsureSchema(ctx); err != nil {
			t.Fatalf("EnsureSchema #%d: %v", i+2, err)
		}
	}
	if _, err := repo.Append(ctx, reading(t0, 600)); err != nil {
		t.Fatalf("Append after repeated EnsureSchema: %v", err)
	}
}

func TestAppend_DuplicateTimestamp(t *testing.T) {
	repo, _ := setupRepo(t)
	ctx := context.Background()

	got, err := repo.Append(ctx, reading(t0, 600))
	if err != nil || got != Inserted {
		t.Fatalf("first Append = %v, %v; want Inserted, nil", got, err)
	}
	for i := 0; i < 4; i++ {
		got, err := repo.Append(ctx, reading(t0, float64(700+i)))
		if err != nil {
			t.Fatalf("Append duplicate: %v", err)
		}
		if got != Duplicate {
			t.Fatalf("Append duplicate = %v, want Duplicate", got)
		}
	}

	n, err := repo.Count(ctx)
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != 1 {
		t.Fatalf("Count = %d, want 1", n)
	}

	rs, err := repo.Tail(ctx, 10)
	if err != nil {
		t.Fatalf("Tail: %v", err)
	}
	if *rs[0].CO2 != 600 {
		t.Errorf("stored co2 = %v, want first value 600", *rs[0].CO2)
	}
}

func TestAppend_SubSecondTimestampsCollide(t *testing.T) {
	repo, _ := setupRepo(t)
	ctx := context.Background()

	if _, err := repo.Append(ctx, reading(t0.Add(100*time.Millisecond), 600)); err != nil {
		t.Fatalf("Append: %v", err)
	}
	got, err := repo.Append(ctx, reading(t0.Add(900*time.Millisecond), 601))
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	if got != Duplicate {
		t.Errorf("Append same second = %v, want Duplicate", got)
	}
}

func TestAppend_NullRoundTrip(t *testing.T) {
	repo, db := setupRepo(t)
	ctx := context.Background()

	r := types.Reading{Time: t0, Humidity: types.Float(41.5)}
	if _, err := repo.Append(ctx, r); err != nil {
		t.Fatalf("Append: %v", err)
	}

	var nulls int
	err := db.QueryRow(`SELECT COUNT(*) FROM air_quality WHERE co2 IS NULL AND pm25 IS NULL AND humidity = 41.5`).Scan(&nulls)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if nulls != 1 {
		t.Fatalf("expected SQL NULLs for absent metrics, got %d matching rows", nulls)
	}

	rs, err := repo.Tail(ctx, 1)
	if err != nil {
		t.Fatalf("Tail: %v", err)
	}
	if len(rs) != 1 {
		t.Fatalf("Tail: got %d readings, want 1", len(rs))
	}
	if rs[0].CO2 != nil || rs[0].Lux != nil {
		t.Errorf("CO2 = %v, Lux = %v, want nil", rs[0].CO2, rs[0].Lux)
	}
	if rs[0].Humidity == nil || *rs[0].Humidity != 41.5 {
		t.Errorf("Humidity = %v, want 41.5", rs[0].Humidity)
	}
	if !rs[0].Time.Equal(t0) {
		t.Errorf("Time = %v, want %v", rs[0].Time, t0)
	}
}

func TestAppend_StoredTimestampFormat(t *testing.T) {
	repo, db := setupRepo(t)
	ctx := context.Background()

	loc := time.FixedZone("EDT", -4*60*60)
	if _, err := repo.Append(ctx, reading(time.Date(2025, 2, 1, 8, 0, 0, 0, loc), 600)); err != nil {
		t.Fatalf("Append: %v", err)
	}
	var ts string
	if err := db.QueryRow(`SELECT measurement_time FROM air_quality`).Scan(&ts); err != nil {
		t.Fatalf("query: %v", err)
	}
	if ts != "2025-02-01T12:00:00Z" {
		t.Errorf("measurement_time = %q, want 2025-02-01T12:00:00Z", ts)
	}
}

func TestTail(t *testing.T) {
	repo, _ := setupRepo(t)
	ctx := context.Background()

	t.Run("empty", func(t *testing.T) {
		rs, err := repo.Tail(ctx, 100)
		if err != nil {
			t.Fatalf("Tail: %v", err)
		}
		if rs == nil || len(rs) != 0 {
			t.Fatalf("Tail on empty store = %v, want empty slice", rs)
		}
	})

	// Insert out of order; Tail must still come back ascending.
	for _, m := range []int{3, 1, 5, 2, 4} {
		if _, err := repo.Append(ctx, reading(t0.Add(time.Duration(m)*time.Minute), float64(m))); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	tests := []struct {
		name  string
		limit int
		want  []float64
	}{
		{name: "limit smaller than rows", limit: 2, want: []float64{4, 5}},
		{name: "limit larger than rows", limit: 10, want: []float64{1, 2, 3, 4, 5}},
		{name: "zero limit", limit: 0, want: []float64{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rs, err := repo.Tail(ctx, tt.limit)
			if err != nil {
				t.Fatalf("Tail: %v", err)
			}
			if len(rs) != len(tt.want) {
				t.Fatalf("Tail(%d): got %d readings, want %d", tt.limit, len(rs), len(tt.want))
			}
			for i := range rs {
				if *rs[i].CO2 != tt.want[i] {
					t.Errorf("Tail(%d)[%d].CO2 = %v, want %v", tt.limit, i, *rs[i].CO2, tt.want[i])
				}
			}
		})
	}
}

func TestRange(t *testing.T) {
	repo, _ := setupRepo(t)
	ctx := context.Background()

	for h := 10; h <= 14; h++ {
		ts := time.Date(2025, 2, 1, h, 0, 0, 0, time.UTC)
		if _, err := repo.Append(ctx, reading(ts, float64(h))); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	from := time.Date(2025, 2, 1, 11, 0, 0, 0, time.UTC)
	to := time.Date(2025, 2, 1, 13, 0, 0, 0, time.UTC)

	rs, err := repo.Range(ctx, from, to, 100)
	if err != nil {
		t.Fatalf("Range: %v", err)
	}
	if len(rs) != 3 {
		t.Fatalf("Range: got %d readings, want 3", len(rs))
	}
	for i, want := range []float64{11, 12, 13} {
		if *rs[i].CO2 != want {
			t.Errorf("Range[%d].CO2 = %v, want %v", i, *rs[i].CO2, want)
		}
	}

	rs, err = repo.Range(ctx, from, to, 2)
	if err != nil {
		t.Fatalf("Range: %v", err)
	}
	if len(rs) != 2 || *rs[0].CO2 != 11 {
		t.Errorf("Range(limit=2) = %d readings, want 2 starting at 11:00", len(rs))
	}

	rs, err = repo.Range(ctx, to.Add(24*time.Hour), to.Add(48*time.Hour), 10)
	if err != nil {
		t.Fatalf("Range: %v", err)
	}
	if len(rs) != 0 {
		t.Errorf("Range outside data: got %d readings, want 0", len(rs))
	}
}

func TestStorageFailure(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRepository(db, nil)
	ctx := context.Background()

	t.Run("missing table", func(t *testing.T) {
		got, err := repo.Append(ctx, reading(t0, 600))
		if !errors.Is(err, types.ErrStorage) {
			t.Fatalf("Append without schema: err = %v, want ErrStorage", err)
		}
		if got != Failed {
			t.Errorf("Append without schema = %v, want Failed", got)
		}
		if _, err := repo.Tail(ctx, 10); !errors.Is(err, types.ErrStorage) {
			t.Errorf("Tail without schema: err = %v, want ErrStorage", err)
		}
		if _, err := repo.Count(ctx); !errors.Is(err, types.ErrStorage) {
			t.Errorf("Count without schema: err = %v, want ErrStorage", err)
		}
	})

	t.Run("closed database", func(t *testing.T) {
		closed, err := sql.Open("sqlite3", ":memory:")
		if err != nil {
			t.Fatalf("open db: %v", err)
		}
		if err := closed.Close(); err != nil {
			t.Fatalf("close db: %v", err)
		}
		repo := NewRepository(closed, nil)

		if _, err := repo.Append(ctx, reading(t0, 600)); !errors.Is(err, types.ErrStorage) {
			t.Errorf("Append on closed db: err = %v, want ErrStorage", err)
		}
		if err := repo.EnsureSchema(ctx); !errors.Is(err, types.ErrStorage) {
			t.Errorf("EnsureSchema on closed db: err = %v, want ErrStorage", err)
		}
	})
}

func TestAppendResult_String(t *testing.T) {
	tests := []struct {
		in   AppendResult
		want string
	}{
		{Inserted, "inserted"},
		{Duplicate, "duplicate"},
		{Failed, "failed"},
	}
	for _, tt := range tests {
		if got := tt.in.String(); got != tt.want {
			t.Errorf("%d.String() = %q, want %q", tt.in, got, tt.want)
		}
	}
}
