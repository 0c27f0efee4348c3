package scheduler

import "time"

// Ticker abstracts the periodic trigger so tests can fire ticks
// without waiting on wall-clock time.
type Ticker interface {
	// C returns the channel tick instants arrive on.
	C() <-chan time.Time

	// Stop releases the ticker. No more ticks arrive after Stop.
	Stop()
}

// IntervalTicker fires at a fixed wall-clock interval.
type IntervalTicker struct {
	ticker *time.Ticker
}

// NewIntervalTicker creates a ticker firing every interval.
func NewIntervalTicker(interval time.Duration) *IntervalTicker {
	return &IntervalTicker{ticker: time.NewTicker(interval)}
}

func (t *IntervalTicker) C() <-chan time.Time {
	return t.ticker.C
}

func (t *IntervalTicker) Stop() {
	t.ticker.Stop()
}

// ManualTicker fires only when told to. Tests drive it to simulate
// many scheduler cycles instantly.
type ManualTicker struct {
	ch chan time.Time
}

// NewManualTicker creates a stopped manual ticker.
func NewManualTicker() *ManualTicker {
	return &ManualTicker{ch: make(chan time.Time, 1)}
}

func (t *ManualTicker) C() <-chan time.Time {
	return t.ch
}

// Fire delivers one tick carrying the given instant.
func (t *ManualTicker) Fire(at time.Time) {
	t.ch <- at
}

func (t *ManualTicker) Stop() {}
