package controller

import (
	"errors"
	"math"
	"net/http"
	"strconv"
	"time"
)

const (
	defaultReadingsLimit = 100
	maxReadingsLimit     = 1000
)

func parseReadingsQuery(r *http.Request) (from time.Time, to time.Time, limit int, err error) {
	q := r.URL.Query()

	if s := q.Get("from"); s != "" {
		from, err = time.Parse(time.RFC3339, s)
		if err != nil {
			return time.Time{}, time.Time{}, 0, errors.New("invalid 'from' (expected RFC3339)")
		}
	}
	if s := q.Get("to"); s != "" {
		to, err = time.Parse(time.RFC3339, s)
		if err != nil {
			return time.Time{}, time.Time{}, 0, errors.New("invalid 'to' (expected RFC3339)")
		}
	}
	if !from.IsZero() && !to.IsZero() && from.After(to) {
		return time.Time{}, time.Time{}, 0, errors.New("'from' must be <= 'to'")
	}

	limit, err = parseLimit(q.Get("limit"), defaultReadingsLimit, maxReadingsLimit)
	if err != nil {
		return time.Time{}, time.Time{}, 0, err
	}
	return from, to, limit, nil
}

// parseWindowQuery returns the requested tail length, 0 for the whole window.
func parseWindowQuery(r *http.Request, capacity int) (limit int, err error) {
	return parseLimit(r.URL.Query().Get("limit"), 0, capacity)
}

func parseLimit(s string, def, upper int) (int, error) {
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, errors.New("invalid 'limit' (expected integer)")
	}
	if n <= 0 {
		return 0, errors.New("'limit' must be > 0")
	}
	if n > upper {
		return 0, errors.New("'limit' must be <= " + strconv.Itoa(upper))
	}
	return n, nil
}

func parseClassifyQuery(r *http.Request) (float64, error) {
	s := r.URL.Query().Get("value")
	if s == "" {
		return 0, errors.New("missing 'value'")
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, errors.New("invalid 'value' (expected number)")
	}
	return v, nil
}

func zeroAsNullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
