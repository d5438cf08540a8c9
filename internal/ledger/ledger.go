// internal/ledger/ledger.go
package ledger

import (
	"math/big"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"

	"github.com/curvelab/pumpsentry/internal/domain"
)

// Ledger is the authoritative in-memory store of open positions, exactly
// one per asset. It performs no I/O.
type Ledger struct {
	mu        sync.RWMutex
	positions map[solana.PublicKey]*domain.Position
	logger    *zap.Logger
}

func New(logger *zap.Logger) *Ledger {
	return &Ledger{
		positions: make(map[solana.PublicKey]*domain.Position),
		logger:    logger.Named("ledger"),
	}
}

// AddBuy accumulates a buy into the position for the event's asset,
// creating it on first observation. Repeated buys accumulate, never
// overwrite; OpenedSig and OpenedAt track the latest contributing buy.
func (l *Ledger) AddBuy(ev domain.BuyEvent) *domain.Position {
	l.mu.Lock()
	defer l.mu.Unlock()

	openedAt := time.Now()
	if ev.BlockTime != nil {
		openedAt = *ev.BlockTime
	}

	pos, ok := l.positions[ev.Mint]
	if !ok {
		pos = &domain.Position{
			Mint:         ev.Mint,
			Tokens:       new(big.Int),
			CostLamports: new(big.Int),
		}
		l.positions[ev.Mint] = pos
		l.logger.Info("position opened", zap.String("mint", ev.Mint.String()))
	}

	pos.Tokens.Add(pos.Tokens, ev.TokenDelta)
	pos.CostLamports.Add(pos.CostLamports, ev.CostLamports)
	pos.OpenedSig = ev.Signature
	pos.OpenedAt = openedAt

	l.logger.Debug("position accumulated",
		zap.String("mint", ev.Mint.String()),
		zap.String("tokens", pos.Tokens.String()),
		zap.String("cost_lamports", pos.CostLamports.String()))

	return pos.Clone()
}

// Get returns a copy of the position for mint, if open.
func (l *Ledger) Get(mint solana.PublicKey) (*domain.Position, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	pos, ok := l.positions[mint]
	if !ok {
		return nil, false
	}
	return pos.Clone(), true
}

// All returns a snapshot of the open positions for iteration.
func (l *Ledger) All() []*domain.Position {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]*domain.Position, 0, len(l.positions))
	for _, pos := range l.positions {
		out = append(out, pos.Clone())
	}
	return out
}

// UpdatePeak persists the trailing high-water mark for mint. It is the only
// mutation the exit engine writes back.
func (l *Ledger) UpdatePeak(mint solana.PublicKey, peak *big.Int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if pos, ok := l.positions[mint]; ok {
		pos.PeakValue = new(big.Int).Set(peak)
	}
}

// Close removes the position; it must never be evaluated again.
func (l *Ledger) Close(mint solana.PublicKey) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.positions[mint]; ok {
		delete(l.positions, mint)
		l.logger.Info("position closed", zap.String("mint", mint.String()))
	}
}

// Len reports the number of open positions.
func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.positions)
}
