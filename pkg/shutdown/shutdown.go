package shutdown

import (
	"context"
	"sync"

	"github.com/quantra/livedesk/pkg/logger"
)

// Handler is a shutdown callback. It must return once its component has
// released its resources or the context is done.
type Handler func(ctx context.Context)

// Manager runs registered shutdown callbacks with a deadline.
type Manager struct {
	callbacks []Handler
	mu        sync.Mutex
}

// NewManager creates an empty shutdown manager.
func NewManager() *Manager {
	return &Manager{}
}

// OnShutdown registers a callback to run during Shutdown.
func (m *Manager) OnShutdown(handler Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callbacks = append(m.callbacks, handler)
}

// Shutdown runs all callbacks concurrently and blocks until they finish
// or ctx expires. ctx should carry a timeout.
func (m *Manager) Shutdown(ctx context.Context) {
	m.mu.Lock()
	callbacks := m.callbacks
	m.mu.Unlock()

	if len(callbacks) == 0 {
		return
	}

	logger.Infof("shutting down, %d callbacks", len(callbacks))

	var wg sync.WaitGroup
	wg.Add(len(callbacks))
	for _, cb := range callbacks {
		go func(handler Handler) {
			defer wg.Done()
			handler(ctx)
		}(cb)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logger.Info("shutdown complete")
	case <-ctx.Done():
		logger.Warnf("shutdown timed out: %v", ctx.Err())
	}
}
