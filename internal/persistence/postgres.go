// ==============================================
// File: internal/persistence/postgres.go
// ==============================================
package persistence

import (
	"context"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/curvelab/pumpsentry/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS creators (
	creator     TEXT PRIMARY KEY,
	create_count INTEGER NOT NULL DEFAULT 0,
	first_sig   TEXT NOT NULL,
	first_seen  TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS funder_links (
	creator    TEXT NOT NULL,
	funder     TEXT NOT NULL,
	sig        TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (creator, funder)
);
CREATE TABLE IF NOT EXISTS trades (
	mint          TEXT NOT NULL,
	opened_sig    TEXT NOT NULL,
	tokens        NUMERIC NOT NULL,
	cost_lamports NUMERIC NOT NULL,
	proceeds      NUMERIC,
	pnl_bps       BIGINT,
	reason        TEXT,
	opened_at     TIMESTAMPTZ NOT NULL,
	closed_at     TIMESTAMPTZ,
	exit_sig      TEXT,
	PRIMARY KEY (mint, opened_sig)
);`

// Postgres is the durable store, backed by a pgx connection pool.
type Postgres struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

func NewPostgres(ctx context.Context, url string, logger *zap.Logger) (*Postgres, error) {
	pctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(pctx, url)
	if err != nil {
		return nil, fmt.Errorf("open pool: %w", err)
	}
	if err := pool.Ping(pctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	if _, err := pool.Exec(pctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return &Postgres{pool: pool, logger: logger}, nil
}

func (p *Postgres) HasCreator(ctx context.Context, creator solana.PublicKey) (bool, error) {
	var exists bool
	err := p.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM creators WHERE creator = $1)`,
		creator.String()).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("query creator: %w", err)
	}
	return exists, nil
}

func (p *Postgres) CreatorCreateCount(ctx context.Context, creator solana.PublicKey) (int, error) {
	var count int
	err := p.pool.QueryRow(ctx,
		`SELECT COALESCE(MAX(create_count), 0) FROM creators WHERE creator = $1`,
		creator.String()).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("query creator count: %w", err)
	}
	return count, nil
}

func (p *Postgres) RecordCreatorSeen(ctx context.Context, creator solana.PublicKey, sig solana.Signature) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO creators (creator, create_count, first_sig)
		VALUES ($1, 1, $2)
		ON CONFLICT (creator) DO UPDATE SET create_count = creators.create_count + 1`,
		creator.String(), sig.String())
	if err != nil {
		return fmt.Errorf("record creator: %w", err)
	}
	return nil
}

func (p *Postgres) RecordFunderLink(ctx context.Context, creator, funder solana.PublicKey, sig solana.Signature) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO funder_links (creator, funder, sig)
		VALUES ($1, $2, $3)
		ON CONFLICT (creator, funder) DO NOTHING`,
		creator.String(), funder.String(), sig.String())
	if err != nil {
		return fmt.Errorf("record funder link: %w", err)
	}
	return nil
}

func (p *Postgres) RecordTradeOpen(ctx context.Context, pos *domain.Position) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO trades (mint, opened_sig, tokens, cost_lamports, opened_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (mint, opened_sig) DO UPDATE
		SET tokens = EXCLUDED.tokens, cost_lamports = EXCLUDED.cost_lamports`,
		pos.Mint.String(), pos.OpenedSig.String(),
		pos.Tokens.String(), pos.CostLamports.String(), pos.OpenedAt)
	if err != nil {
		return fmt.Errorf("record trade open: %w", err)
	}
	return nil
}

func (p *Postgres) RecordTradeClose(ctx context.Context, trade domain.ClosedTrade) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO trades (mint, opened_sig, tokens, cost_lamports, proceeds, pnl_bps, reason, opened_at, closed_at, exit_sig)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (mint, opened_sig) DO UPDATE
		SET proceeds = EXCLUDED.proceeds, pnl_bps = EXCLUDED.pnl_bps,
		    reason = EXCLUDED.reason, closed_at = EXCLUDED.closed_at,
		    exit_sig = EXCLUDED.exit_sig`,
		trade.Mint.String(), trade.OpenedSig.String(), trade.Tokens.String(), trade.CostLamports.String(),
		trade.Proceeds.String(), trade.PnLBps, string(trade.Reason),
		trade.OpenedAt, trade.ClosedAt, trade.ExitSig.String())
	if err != nil {
		return fmt.Errorf("record trade close: %w", err)
	}
	return nil
}

func (p *Postgres) Close() {
	p.pool.Close()
}
