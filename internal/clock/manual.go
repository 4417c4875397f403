package clock

import (
	"sort"
	"sync"
	"time"
)

type manualTicker struct {
	id    int64
	fn    func()
	owner *Manual
	once  sync.Once
}

func (t *manualTicker) Stop() {
	t.once.Do(func() {
		t.owner.mu.Lock()
		delete(t.owner.tickers, t.id)
		t.owner.mu.Unlock()
	})
}

// Manual is a Clock whose ticks are fired explicitly with Advance.
// Intervals are ignored: one Advance step is one tick for every active ticker.
type Manual struct {
	mu      sync.Mutex
	tickers map[int64]*manualTicker
	nextID  int64
}

// NewManual creates a Manual clock with no active tickers.
func NewManual() *Manual {
	return &Manual{tickers: make(map[int64]*manualTicker)}
}

// Every registers fn; it runs on each Advance step until the ticker is stopped.
func (m *Manual) Every(_ time.Duration, fn func()) Ticker {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	t := &manualTicker{id: m.nextID, fn: fn, owner: m}
	m.tickers[t.id] = t
	return t
}

// Advance fires n ticks synchronously, in registration order.
func (m *Manual) Advance(n int) {
	for i := 0; i < n; i++ {
		for _, t := range m.snapshot() {
			if m.isActive(t.id) {
				t.fn()
			}
		}
	}
}

// Active reports how many tickers are registered.
func (m *Manual) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tickers)
}

func (m *Manual) snapshot() []*manualTicker {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*manualTicker, 0, len(m.tickers))
	for _, t := range m.tickers {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}

func (m *Manual) isActive(id int64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.tickers[id]
	return ok
}
