// ==============================================
// File: internal/decision/queue.go
// ==============================================
package decision

import (
	"context"
	"math/big"
	"time"

	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"

	"github.com/curvelab/pumpsentry/internal/domain"
	"github.com/curvelab/pumpsentry/internal/gating"
	"github.com/curvelab/pumpsentry/internal/persistence"
	"github.com/curvelab/pumpsentry/internal/pricing"
)

// Buyer executes an entry purchase. curve.Trader implements it.
type Buyer interface {
	Buy(ctx context.Context, state *pricing.MarketState, tokensOut, maxCost *big.Int) (solana.Signature, error)
}

// Market is the slice of the pricing oracle the queue needs.
type Market interface {
	FetchMarketState(ctx context.Context, mint, owner solana.PublicKey) (*pricing.MarketState, error)
	QuoteBuy(state *pricing.MarketState, lamports *big.Int) *big.Int
}

// Config drives entry behavior.
type Config struct {
	AutoBuy     bool
	BuyLamports uint64
	Cooldown    time.Duration
	SlippageBps int64
}

// Queue serializes launch-candidate processing strictly one at a time and
// enforces a minimum cooldown between consecutive buy submissions.
type Queue struct {
	cfg    Config
	gate   *gating.Gate
	store  persistence.Store
	market Market
	buyer  Buyer // nil in simulation mode
	owner  solana.PublicKey
	logger *zap.Logger

	lastBuy time.Time
}

func NewQueue(cfg Config, gate *gating.Gate, store persistence.Store, market Market, buyer Buyer, owner solana.PublicKey, logger *zap.Logger) *Queue {
	return &Queue{
		cfg:    cfg,
		gate:   gate,
		store:  store,
		market: market,
		buyer:  buyer,
		owner:  owner,
		logger: logger.Named("decision"),
	}
}

// Run consumes launch events until ctx is cancelled. One candidate is fully
// processed before the next is looked at.
func (q *Queue) Run(ctx context.Context, in <-chan domain.LaunchEvent) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-in:
			if !ok {
				return nil
			}
			q.process(ctx, ev)
		}
	}
}

func (q *Queue) process(ctx context.Context, ev domain.LaunchEvent) {
	// Analytics land regardless of the verdict.
	if err := q.store.RecordCreatorSeen(ctx, ev.Creator, ev.Signature); err != nil {
		q.logger.Warn("creator not recorded", zap.Error(err))
	}
	if !ev.Funder.IsZero() && !ev.Funder.Equals(ev.Creator) {
		if err := q.store.RecordFunderLink(ctx, ev.Creator, ev.Funder, ev.Signature); err != nil {
			q.logger.Warn("funder link not recorded", zap.Error(err))
		}
	}

	verdict := q.gate.Evaluate(ctx, ev)
	if !verdict.Accepted {
		q.logger.Info("candidate rejected",
			zap.String("mint", ev.Mint.String()),
			zap.String("symbol", ev.Symbol),
			zap.Strings("reasons", verdict.Reasons))
		return
	}

	q.logger.Info("candidate accepted",
		zap.String("mint", ev.Mint.String()),
		zap.String("symbol", ev.Symbol),
		zap.String("creator", ev.Creator.String()))

	if !q.cfg.AutoBuy || q.buyer == nil {
		return
	}
	if since := time.Since(q.lastBuy); since < q.cfg.Cooldown {
		q.logger.Info("buy cooldown active, candidate skipped",
			zap.String("mint", ev.Mint.String()),
			zap.Duration("remaining", q.cfg.Cooldown-since))
		return
	}

	q.enter(ctx, ev)
}

// enter quotes and submits the entry buy for an accepted candidate.
func (q *Queue) enter(ctx context.Context, ev domain.LaunchEvent) {
	state, err := q.market.FetchMarketState(ctx, ev.Mint, q.owner)
	if err != nil {
		q.logger.Warn("market state unavailable, entry skipped",
			zap.String("mint", ev.Mint.String()),
			zap.Error(err))
		return
	}
	if state.Halted() {
		q.logger.Info("market already migrated, entry skipped",
			zap.String("mint", ev.Mint.String()))
		return
	}

	spend := new(big.Int).SetUint64(q.cfg.BuyLamports)
	quoted := q.market.QuoteBuy(state, spend)
	if quoted.Sign() <= 0 {
		q.logger.Warn("zero-token quote, entry skipped",
			zap.String("mint", ev.Mint.String()))
		return
	}
	minTokens := pricing.ApplySlippage(quoted, q.cfg.SlippageBps)

	sig, err := q.buyer.Buy(ctx, state, minTokens, spend)
	if err != nil {
		q.logger.Error("entry buy failed",
			zap.String("mint", ev.Mint.String()),
			zap.Error(err))
		return
	}
	q.lastBuy = time.Now()

	q.logger.Info("entry buy confirmed",
		zap.String("mint", ev.Mint.String()),
		zap.String("signature", sig.String()),
		zap.String("tokens_min", minTokens.String()))
}
