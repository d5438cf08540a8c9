// ==============================================
// File: internal/persistence/store.go
// ==============================================
package persistence

import (
	"context"

	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"

	"github.com/curvelab/pumpsentry/internal/domain"
)

// Store records creators, wallet links and trade history. The pipeline never
// depends on which engine backs it; swapping in the memory implementation
// changes nothing but the durability of analytics.
type Store interface {
	HasCreator(ctx context.Context, creator solana.PublicKey) (bool, error)
	CreatorCreateCount(ctx context.Context, creator solana.PublicKey) (int, error)
	RecordCreatorSeen(ctx context.Context, creator solana.PublicKey, sig solana.Signature) error
	RecordFunderLink(ctx context.Context, creator, funder solana.PublicKey, sig solana.Signature) error
	RecordTradeOpen(ctx context.Context, pos *domain.Position) error
	RecordTradeClose(ctx context.Context, trade domain.ClosedTrade) error
	Close()
}

// Open selects the backing store by capability: Postgres when a URL is
// configured and reachable, the in-memory store otherwise. The fallback is
// logged, never fatal.
func Open(ctx context.Context, postgresURL string, logger *zap.Logger) Store {
	log := logger.Named("persistence")
	if postgresURL == "" {
		log.Info("no postgres_url configured, using in-memory store")
		return NewMemory()
	}
	store, err := NewPostgres(ctx, postgresURL, log)
	if err != nil {
		log.Warn("postgres unavailable, falling back to in-memory store", zap.Error(err))
		return NewMemory()
	}
	log.Info("postgres store ready")
	return store
}
