// ==============================================
// File: internal/persistence/memory.go
// ==============================================
package persistence

import (
	"context"
	"sync"

	"github.com/gagliardetto/solana-go"

	"github.com/curvelab/pumpsentry/internal/domain"
)

// Memory keeps the analytics in process memory. History is lost on restart;
// behavior is otherwise identical to the durable store.
type Memory struct {
	mu       sync.RWMutex
	creators map[solana.PublicKey]int
	funders  map[solana.PublicKey]solana.PublicKey
	closed   []domain.ClosedTrade
}

func NewMemory() *Memory {
	return &Memory{
		creators: make(map[solana.PublicKey]int),
		funders:  make(map[solana.PublicKey]solana.PublicKey),
	}
}

func (m *Memory) HasCreator(_ context.Context, creator solana.PublicKey) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.creators[creator]
	return ok, nil
}

func (m *Memory) CreatorCreateCount(_ context.Context, creator solana.PublicKey) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.creators[creator], nil
}

func (m *Memory) RecordCreatorSeen(_ context.Context, creator solana.PublicKey, _ solana.Signature) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.creators[creator]++
	return nil
}

func (m *Memory) RecordFunderLink(_ context.Context, creator, funder solana.PublicKey, _ solana.Signature) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.funders[creator] = funder
	return nil
}

func (m *Memory) RecordTradeOpen(_ context.Context, _ *domain.Position) error { return nil }

func (m *Memory) RecordTradeClose(_ context.Context, trade domain.ClosedTrade) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = append(m.closed, trade)
	return nil
}

// ClosedTrades returns the recorded history, mostly for tests and the
// shutdown summary.
func (m *Memory) ClosedTrades() []domain.ClosedTrade {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.ClosedTrade, len(m.closed))
	copy(out, m.closed)
	return out
}

func (m *Memory) Close() {}
