// Package connectivity tracks whether the remote services are reachable.
package connectivity

import (
	"context"
	"sync"
	"time"

	"github.com/markahope-aag/hazardos-sub008/internal/logging"
)

// Prober checks reachability. A nil error means online.
type Prober interface {
	Probe(ctx context.Context) error
}

// ProberFunc adapts a function to Prober.
type ProberFunc func(ctx context.Context) error

func (f ProberFunc) Probe(ctx context.Context) error { return f(ctx) }

// Listener is told about every online/offline transition.
type Listener func(online bool)

// Monitor holds the current connectivity state. Listeners fire exactly once
// per transition, in subscription order, and never for a repeated state.
type Monitor struct {
	prober   Prober
	interval time.Duration
	timeout  time.Duration
	log      logging.Logger

	mu        sync.Mutex
	online    bool
	nextID    int
	listeners map[int]Listener
	order     []int

	// notifyMu keeps notifications in transition order.
	notifyMu sync.Mutex
}

// New creates a monitor that starts offline. interval is the probe period
// and timeout bounds each probe.
func New(prober Prober, interval, timeout time.Duration, log logging.Logger) *Monitor {
	if log == nil {
		log = logging.Nop()
	}
	return &Monitor{
		prober:    prober,
		interval:  interval,
		timeout:   timeout,
		log:       log,
		listeners: make(map[int]Listener),
	}
}

func (m *Monitor) IsOnline() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// Subscribe registers l and returns a function that removes it. Listeners
// run on the goroutine that observed the transition and must not call Set.
func (m *Monitor) Subscribe(l Listener) func() {
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.listeners[id] = l
	m.order = append(m.order, id)
	m.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			delete(m.listeners, id)
			for i, v := range m.order {
				if v == id {
					m.order = append(m.order[:i], m.order[i+1:]...)
					break
				}
			}
		})
	}
}

// Set records the state and notifies listeners if it changed. It reports
// whether a transition happened.
func (m *Monitor) Set(online bool) bool {
	m.notifyMu.Lock()
	defer m.notifyMu.Unlock()

	m.mu.Lock()
	if m.online == online {
		m.mu.Unlock()
		return false
	}
	m.online = online
	ls := make([]Listener, 0, len(m.order))
	for _, id := range m.order {
		ls = append(ls, m.listeners[id])
	}
	m.mu.Unlock()

	for _, l := range ls {
		l(online)
	}
	return true
}

// Check probes once and updates the state.
func (m *Monitor) Check(ctx context.Context) bool {
	if m.prober == nil {
		return m.IsOnline()
	}

	pctx, cancel := context.WithTimeout(ctx, m.timeout)
	err := m.prober.Probe(pctx)
	cancel()

	online := err == nil
	if m.Set(online) {
		if online {
			m.log.Info(ctx, "connectivity restored")
		} else {
			m.log.Warn(ctx, "connectivity lost", "err", err)
		}
	}
	return online
}

// Run probes immediately and then on every interval until ctx is done.
func (m *Monitor) Run(ctx context.Context) error {
	m.Check(ctx)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.Check(ctx)
		case <-ctx.Done():
			return nil
		}
	}
}
