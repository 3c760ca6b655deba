// internal/buffer/manager.go
package buffer

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ReignOfTea/protest-dash/internal/logging"
)

// Manager maps sessions to their edit buffers and reaps buffers whose
// sessions have gone idle, so abandoned logins do not pin staged
// content in memory forever.
type Manager struct {
	fetcher Fetcher
	logger  *logging.Logger
	idleTTL time.Duration

	mu      sync.Mutex
	buffers map[string]*managedBuffer

	stop chan struct{}
	done chan struct{}
}

type managedBuffer struct {
	buf      *Buffer
	lastUsed time.Time
}

func NewManager(fetcher Fetcher, logger *logging.Logger, idleTTL time.Duration) *Manager {
	if idleTTL <= 0 {
		idleTTL = time.Hour
	}

	m := &Manager{
		fetcher: fetcher,
		logger:  logger,
		idleTTL: idleTTL,
		buffers: map[string]*managedBuffer{},
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}

	go m.janitor()
	return m
}

// ForSession returns the session's buffer, creating it on first use.
func (m *Manager) ForSession(sessionID string) *Buffer {
	m.mu.Lock()
	defer m.mu.Unlock()

	mb, ok := m.buffers[sessionID]
	if !ok {
		mb = &managedBuffer{buf: New(m.fetcher)}
		m.buffers[sessionID] = mb
	}
	mb.lastUsed = time.Now()
	return mb.buf
}

// Drop discards a session's buffer entirely (logout).
func (m *Manager) Drop(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.buffers, sessionID)
}

func (m *Manager) Close() {
	close(m.stop)
	<-m.done
}

func (m *Manager) janitor() {
	defer close(m.done)

	ticker := time.NewTicker(m.idleTTL / 4)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.sweep()
		case <-m.stop:
			return
		}
	}
}

func (m *Manager) sweep() {
	cutoff := time.Now().Add(-m.idleTTL)

	m.mu.Lock()
	defer m.mu.Unlock()

	for id, mb := range m.buffers {
		if mb.lastUsed.Before(cutoff) {
			delete(m.buffers, id)
			m.logger.Debug("reaped idle edit buffer", zap.String("session", id))
		}
	}
}
