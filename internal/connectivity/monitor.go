// Package connectivity tracks whether the remote store is reachable and
// tells interested parties when it becomes reachable again.
package connectivity

import (
	"log/slog"
	"sync"
)

// Monitor holds the online flag. It starts online, like a browser that has
// not yet seen an offline event.
type Monitor struct {
	mu        sync.Mutex
	online    bool
	listeners map[int]func()
	nextID    int
}

// NewMonitor returns a monitor with the given initial state.
func NewMonitor(online bool) *Monitor {
	return &Monitor{online: online, listeners: make(map[int]func())}
}

// IsOnline reports the current state.
func (m *Monitor) IsOnline() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// SetOnline records the current state. Listeners registered with
// OnRegained run, on the caller's goroutine, when the state flips from
// offline to online.
func (m *Monitor) SetOnline(online bool) {
	m.mu.Lock()
	was := m.online
	m.online = online
	var fire []func()
	if !was && online {
		fire = make([]func(), 0, len(m.listeners))
		for _, fn := range m.listeners {
			fire = append(fire, fn)
		}
	}
	m.mu.Unlock()

	if was != online {
		slog.Info("connectivity changed", "online", online)
	}
	for _, fn := range fire {
		fn()
	}
}

// OnRegained registers fn for offline to online transitions.
func (m *Monitor) OnRegained(fn func()) (unsubscribe func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextID
	m.nextID++
	m.listeners[id] = fn
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.listeners, id)
	}
}
