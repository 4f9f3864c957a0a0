package crawler

import (
	"fmt"
	"time"
)

// boundaryDates partitions repository creation time into windows sized
// so each window's result count stays under the search API's 1000-item
// cap: years while the ecosystem was tiny, narrowing as it grew.
var boundaryDates = []string{
	"2015-01-01",
	"2018-01-01",
	"2019-01-01",
	"2020-01-01",
	"2020-07-01",
	"2021-01-01",
	"2021-07-01",
	"2022-01-01",
	"2022-04-01",
	"2022-07-01",
	"2022-10-01",
	"2023-01-01",
	"2023-04-01",
	"2023-07-01",
	"2023-10-01",
	"2024-01-01",
}

// Window is one half-open creation-date range [From, To).
type Window struct {
	From time.Time
	To   time.Time
}

// Qualifier renders the window as a search-query creation-date range.
// The endpoints overlap adjacent windows by a day, which is harmless:
// repository upserts are idempotent.
func (w Window) Qualifier() string {
	return fmt.Sprintf("created:%s..%s", w.From.Format("2006-01-02"), w.To.Format("2006-01-02"))
}

// Windows walks the precomputed boundaries forward, then advances a
// rolling one-month window from the last boundary, and wraps back to
// the first boundary upon reaching the present. The cycle never ends:
// it both completes history and continuously refreshes known entries.
type Windows struct {
	boundaries []time.Time
	idx        int
	rolling    time.Time
	now        func() time.Time
}

// NewWindows creates the perpetual window cycle. now is injectable for
// tests.
func NewWindows(now func() time.Time) *Windows {
	if now == nil {
		now = time.Now
	}
	boundaries := make([]time.Time, len(boundaryDates))
	for i, d := range boundaryDates {
		t, err := time.Parse("2006-01-02", d)
		if err != nil {
			panic("crawler: bad window boundary " + d)
		}
		boundaries[i] = t
	}
	return &Windows{boundaries: boundaries, now: now}
}

// Next returns the next window of the cycle.
func (w *Windows) Next() Window {
	if w.idx < len(w.boundaries)-1 {
		win := Window{From: w.boundaries[w.idx], To: w.boundaries[w.idx+1]}
		w.idx++
		return win
	}

	if w.rolling.IsZero() {
		w.rolling = w.boundaries[len(w.boundaries)-1]
	}
	if !w.rolling.Before(w.now()) {
		// Reached the present: wrap and rescan history.
		w.idx = 0
		w.rolling = time.Time{}
		return w.Next()
	}

	win := Window{From: w.rolling, To: w.rolling.AddDate(0, 1, 0)}
	w.rolling = win.To
	return win
}
