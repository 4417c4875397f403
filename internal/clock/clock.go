// Package clock provides the periodic tick sources that drive routine countdowns.
//
// Real wraps time.Ticker for production use; Manual fires ticks on demand for tests.
package clock

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// Ticker is a cancellable repeating task. Stop is immediate and safe to call more than once.
type Ticker interface {
	Stop()
}

// Clock schedules fn to run once per interval until the returned Ticker is stopped.
type Clock interface {
	Every(interval time.Duration, fn func()) Ticker
}

// TickerInfo describes an active ticker.
type TickerInfo struct {
	ID        string        `json:"id"`
	StartedAt time.Time     `json:"started_at"`
	Interval  time.Duration `json:"interval"`
}

// realTicker tracks one goroutine-backed ticker.
type realTicker struct {
	id        string
	owner     *Real
	stop      chan struct{}
	once      sync.Once
	startedAt time.Time
	interval  time.Duration
}

func (t *realTicker) Stop() {
	t.once.Do(func() {
		close(t.stop)
		t.owner.remove(t.id)
		slog.Debug("Clock ticker stopped", "id", t.id)
	})
}

// Real implements Clock using Go's standard time package.
type Real struct {
	tickers map[string]*realTicker
	mu      sync.Mutex
	nextID  int64
}

// NewReal creates a new Real clock.
func NewReal() *Real {
	slog.Debug("Creating real clock")
	return &Real{
		tickers: make(map[string]*realTicker),
	}
}

// Every starts a goroutine that calls fn on each interval until stopped.
func (c *Real) Every(interval time.Duration, fn func()) Ticker {
	c.mu.Lock()
	c.nextID++
	t := &realTicker{
		id:        fmt.Sprintf("ticker_%d", c.nextID),
		owner:     c,
		stop:      make(chan struct{}),
		startedAt: time.Now(),
		interval:  interval,
	}
	c.tickers[t.id] = t
	c.mu.Unlock()

	slog.Debug("Clock Every", "id", t.id, "interval", interval)

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				// A stop that raced the tick wins.
				select {
				case <-t.stop:
					return
				default:
				}
				fn()
			case <-t.stop:
				return
			}
		}
	}()

	return t
}

func (c *Real) remove(id string) {
	c.mu.Lock()
	delete(c.tickers, id)
	c.mu.Unlock()
}

// ListActive returns information about all active tickers ordered by start time.
func (c *Real) ListActive() []TickerInfo {
	c.mu.Lock()
	defer c.mu.Unlock()

	result := make([]TickerInfo, 0, len(c.tickers))
	for id, t := range c.tickers {
		result = append(result, TickerInfo{ID: id, StartedAt: t.startedAt, Interval: t.interval})
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].StartedAt.Before(result[j].StartedAt)
	})
	return result
}

// StopAll cancels every active ticker.
func (c *Real) StopAll() {
	c.mu.Lock()
	active := make([]*realTicker, 0, len(c.tickers))
	for _, t := range c.tickers {
		active = append(active, t)
	}
	c.mu.Unlock()

	for _, t := range active {
		t.Stop()
	}
	slog.Info("Clock stopped all tickers", "count", len(active))
}
