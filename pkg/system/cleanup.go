package system

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"
)

type cleanupHandler struct {
	name string
	fn   func(ctx context.Context) error
}

// CleanupManager collects handlers that must run before the process exits.
// Go has no atexit, so entrypoints create one, hook it to a
// signal-cancelled context and defer Cleanup; libraries register the work
// they would lose on an abrupt exit.
type CleanupManager struct {
	mu       sync.Mutex
	handlers []cleanupHandler
}

func NewCleanupManager() *CleanupManager {
	return &CleanupManager{}
}

var defaultManager = NewCleanupManager()

// Default returns the process-wide cleanup manager, for callers that did
// not wire their own.
func Default() *CleanupManager {
	return defaultManager
}

// Register adds a named handler. Registering the same name again replaces
// the previous handler.
func (cm *CleanupManager) Register(name string, fn func(ctx context.Context) error) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	for i, h := range cm.handlers {
		if h.name == name {
			cm.handlers[i].fn = fn
			return
		}
	}
	cm.handlers = append(cm.handlers, cleanupHandler{name: name, fn: fn})
}

// Deregister removes a handler. Missing names are ignored.
func (cm *CleanupManager) Deregister(name string) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	for i, h := range cm.handlers {
		if h.name == name {
			cm.handlers = append(cm.handlers[:i], cm.handlers[i+1:]...)
			return
		}
	}
}

// Cleanup runs all registered handlers in reverse registration order and
// clears the manager. Handler errors are logged, not propagated, so one
// failing handler cannot starve the rest.
func (cm *CleanupManager) Cleanup(ctx context.Context) {
	cm.mu.Lock()
	handlers := cm.handlers
	cm.handlers = nil
	cm.mu.Unlock()

	for i := len(handlers) - 1; i >= 0; i-- {
		h := handlers[i]
		if err := h.fn(ctx); err != nil {
			log.Error().Err(err).Str("handler", h.name).Msg("cleanup handler failed")
		}
	}
}
