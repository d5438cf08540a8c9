// ==============================================
// File: internal/bot/shutdown.go
// ==============================================
package bot

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Shutdown closes registered resources in reverse registration order, each
// bounded by the shared grace period.
type Shutdown struct {
	logger *zap.Logger
	grace  time.Duration

	mu      sync.Mutex
	entries []namedCloser
}

type namedCloser struct {
	name  string
	close func() error
}

func NewShutdown(logger *zap.Logger, grace time.Duration) *Shutdown {
	if grace == 0 {
		grace = 10 * time.Second
	}
	return &Shutdown{logger: logger.Named("shutdown"), grace: grace}
}

// Add registers a resource. Registration order is startup order; closing
// happens LIFO.
func (s *Shutdown) Add(name string, close func() error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, namedCloser{name: name, close: close})
}

// Close runs every registered closer, newest first, within the grace window.
// A slow closer is abandoned with a logged timeout, never waited on forever.
func (s *Shutdown) Close() {
	s.mu.Lock()
	entries := make([]namedCloser, len(s.entries))
	copy(entries, s.entries)
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), s.grace)
	defer cancel()

	for i := len(entries) - 1; i >= 0; i-- {
		entry := entries[i]
		done := make(chan error, 1)
		go func() { done <- entry.close() }()

		select {
		case err := <-done:
			if err != nil {
				s.logger.Warn("resource closed with error",
					zap.String("resource", entry.name),
					zap.Error(err))
			} else {
				s.logger.Info("resource closed", zap.String("resource", entry.name))
			}
		case <-ctx.Done():
			s.logger.Error("grace period exhausted, abandoning remaining resources",
				zap.String("resource", entry.name))
			return
		}
	}
}
