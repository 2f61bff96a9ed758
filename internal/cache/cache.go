package cache

import (
	"time"

	"finsession/internal/storage"
)

// Manager periodically sweeps storage backends that do not expire entries
// on their own.
type Manager struct {
	cleaners    []storage.Cleaner
	onClean     func(removed int)
	stopCleanup chan struct{}
	cleanupDone chan struct{}
}

// NewManager creates a new cache manager. onClean, if set, is called after
// every sweep with the number of entries removed.
func NewManager(onClean func(removed int)) *Manager {
	return &Manager{
		onClean:     onClean,
		stopCleanup: make(chan struct{}),
		cleanupDone: make(chan struct{}),
	}
}

// Register adds a backend to the sweep list. Call before StartCleanup.
func (m *Manager) Register(c storage.Cleaner) {
	if c != nil {
		m.cleaners = append(m.cleaners, c)
	}
}

// StartCleanup begins periodic cleanup of all registered backends
func (m *Manager) StartCleanup(interval time.Duration) {
	go m.cleanup(interval)
}

// Sweep runs one cleanup pass and returns the number of removed entries.
func (m *Manager) Sweep() int {
	total := 0
	for _, c := range m.cleaners {
		total += c.CleanExpired()
	}
	if m.onClean != nil {
		m.onClean(total)
	}
	return total
}

func (m *Manager) cleanup(interval time.Duration) {
	defer close(m.cleanupDone)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.Sweep()
		case <-m.stopCleanup:
			return
		}
	}
}

// Stop stops the cleanup goroutine and waits for it. Only valid after StartCleanup.
func (m *Manager) Stop() {
	close(m.stopCleanup)
	<-m.cleanupDone
}
