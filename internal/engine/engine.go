// ==============================================
// File: internal/engine/engine.go
// ==============================================
package engine

import (
	"context"
	"math/big"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"

	"github.com/curvelab/pumpsentry/internal/domain"
	"github.com/curvelab/pumpsentry/internal/ledger"
	"github.com/curvelab/pumpsentry/internal/pricing"
)

// Market is the slice of the pricing oracle the engine needs.
type Market interface {
	EnsureWarm(ctx context.Context) error
	FetchMarketState(ctx context.Context, mint, owner solana.PublicKey) (*pricing.MarketState, error)
	QuoteSell(state *pricing.MarketState, tokens *big.Int) *big.Int
}

// ExitExecutor liquidates a position on chain. Unused in simulation mode.
type ExitExecutor interface {
	Sell(ctx context.Context, state *pricing.MarketState, tokens, minOut *big.Int) (solana.Signature, error)
}

// Recorder persists closed trades. A no-op implementation is substitutable.
type Recorder interface {
	RecordTradeClose(ctx context.Context, trade domain.ClosedTrade) error
}

// Config carries the exit policy knobs.
type Config struct {
	Policy        string // "fixed" or "trailing"
	TakeProfitBps int64
	StopLossBps   int64 // negative; also the hard fallback under "trailing"
	TrailingBps   int64
	MinHold       time.Duration
	Tick          time.Duration

	Live        bool
	SlippageBps int64

	// Simulation-only auxiliary exits; zero windows disable each check.
	MaxHold          time.Duration
	FlatWindow       time.Duration
	FlatThresholdBps int64
	NoFlowWindow     time.Duration
	NoFlowFloor      int64 // lamports
}

// Engine evaluates every open position once per tick and decides exits.
// Evaluation is sequential; a slow fetch for one asset delays but never
// corrupts the others.
type Engine struct {
	cfg      Config
	ledger   *ledger.Ledger
	market   Market
	executor ExitExecutor
	recorder Recorder
	owner    solana.PublicKey
	logger   *zap.Logger

	mu    sync.Mutex
	track map[solana.PublicKey]*trackState
}

// trackState is engine-local evaluation state, separate from the position
// itself.
type trackState struct {
	exiting bool // per-asset exit attempt in flight

	lastValue *big.Int

	// Flat-market detection.
	refValue   *big.Int
	lastMoveAt time.Time

	// No-inflow detection over the early observation window.
	baselineReserves *big.Int
	noFlowChecked    bool
}

func New(cfg Config, lgr *ledger.Ledger, market Market, executor ExitExecutor, recorder Recorder, owner solana.PublicKey, logger *zap.Logger) *Engine {
	return &Engine{
		cfg:      cfg,
		ledger:   lgr,
		market:   market,
		executor: executor,
		recorder: recorder,
		owner:    owner,
		logger:   logger.Named("engine"),
		track:    make(map[solana.PublicKey]*trackState),
	}
}

// Run blocks until ctx is cancelled, ticking through all open positions.
func (e *Engine) Run(ctx context.Context) error {
	if err := e.market.EnsureWarm(ctx); err != nil {
		e.logger.Warn("fee parameters not warmed, using defaults until retry", zap.Error(err))
	}

	ticker := time.NewTicker(e.cfg.Tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			e.tick(ctx)
		}
	}
}

func (e *Engine) tick(ctx context.Context) {
	// Warm-up is retried opportunistically until it sticks.
	if err := e.market.EnsureWarm(ctx); err != nil {
		e.logger.Debug("fee parameter warm-up failed", zap.Error(err))
	}

	for _, pos := range e.ledger.All() {
		if ctx.Err() != nil {
			return
		}
		e.evaluate(ctx, pos)
	}
}

// evaluate runs the policy state machine for one position. Every failure is
// logged and confined to this asset and this tick.
func (e *Engine) evaluate(ctx context.Context, pos *domain.Position) {
	now := time.Now()
	if now.Before(pos.OpenedAt.Add(e.cfg.MinHold)) {
		return
	}

	e.mu.Lock()
	st, ok := e.track[pos.Mint]
	if !ok {
		st = &trackState{lastMoveAt: now}
		e.track[pos.Mint] = st
	}
	if st.exiting {
		e.mu.Unlock()
		return
	}
	e.mu.Unlock()

	state, err := e.market.FetchMarketState(ctx, pos.Mint, e.owner)
	if err != nil {
		e.logger.Warn("market state fetch failed",
			zap.String("mint", pos.Mint.String()),
			zap.Error(err))
		return
	}

	if state.Halted() {
		e.closeHalted(ctx, pos, st)
		return
	}

	// Backing token account gone or empty: the operator closed it manually.
	// Removed silently, no exit decision.
	if state.OwnerTokens == nil || state.OwnerTokens.Sign() == 0 {
		e.logger.Info("position emptied externally, removing",
			zap.String("mint", pos.Mint.String()))
		e.drop(pos.Mint)
		return
	}

	tokens := new(big.Int).Set(pos.Tokens)
	if state.OwnerTokens.Cmp(tokens) < 0 {
		tokens.Set(state.OwnerTokens)
	}

	value := e.market.QuoteSell(state, tokens)
	st.lastValue = new(big.Int).Set(value)
	pnl := pnlBps(value, pos.CostLamports)

	reason, triggered := e.policyDecision(pos, value, pnl)
	if !triggered && !e.cfg.Live {
		reason, triggered = e.auxiliaryDecision(pos, st, value, now)
	}
	if !triggered && !e.cfg.Live {
		reason, triggered = e.checkNoFlow(pos, st, state.Curve.RealSolReserves, now)
	}
	if !triggered {
		return
	}

	decision := domain.ExitDecision{
		Mint:             pos.Mint,
		Reason:           reason,
		ExpectedProceeds: value,
		Tokens:           tokens,
		DecidedAt:        now,
	}
	e.logger.Info("exit triggered",
		zap.String("mint", pos.Mint.String()),
		zap.String("reason", string(reason)),
		zap.String("expected_proceeds", value.String()),
		zap.Int64("pnl_bps", pnl))

	e.mu.Lock()
	st.exiting = true
	e.mu.Unlock()

	if e.cfg.Live {
		go e.executeExit(ctx, pos, state, decision)
		return
	}
	e.closeSimulated(ctx, pos, decision)
}

// policyDecision evaluates the configured primary policy.
func (e *Engine) policyDecision(pos *domain.Position, value *big.Int, pnl int64) (domain.ExitReason, bool) {
	switch e.cfg.Policy {
	case "trailing":
		// A new peak arms or raises the trail and never triggers on the
		// same tick.
		if pos.PeakValue == nil || value.Cmp(pos.PeakValue) > 0 {
			e.ledger.UpdatePeak(pos.Mint, value)
			return "", false
		}
		floor := new(big.Int).Mul(pos.PeakValue, big.NewInt(10_000-e.cfg.TrailingBps))
		floor.Div(floor, big.NewInt(10_000))
		if value.Cmp(floor) <= 0 {
			return domain.ExitTrailingStop, true
		}
		// Hard stop bounds worst-case loss before the trail ever arms
		// meaningfully.
		if e.cfg.StopLossBps < 0 && pnl <= e.cfg.StopLossBps {
			return domain.ExitStopLoss, true
		}
		return "", false
	default: // "fixed"
		if pnl >= e.cfg.TakeProfitBps {
			return domain.ExitTakeProfit, true
		}
		if pnl <= e.cfg.StopLossBps {
			return domain.ExitStopLoss, true
		}
		return "", false
	}
}

// auxiliaryDecision evaluates the simulation-only exits: maximum hold, flat
// market, and early no-inflow.
func (e *Engine) auxiliaryDecision(pos *domain.Position, st *trackState, value *big.Int, now time.Time) (domain.ExitReason, bool) {
	age := now.Sub(pos.OpenedAt)

	if e.cfg.MaxHold > 0 && age >= e.cfg.MaxHold {
		return domain.ExitTimeLimit, true
	}

	if e.cfg.FlatWindow > 0 {
		if st.refValue == nil || movedBeyond(st.refValue, value, e.cfg.FlatThresholdBps) {
			st.refValue = new(big.Int).Set(value)
			st.lastMoveAt = now
		} else if now.Sub(st.lastMoveAt) >= e.cfg.FlatWindow {
			return domain.ExitFlatMarket, true
		}
	}

	return "", false
}

// checkNoFlow compares net reserve inflow over the early observation window
// against the configured floor. It fires at most once per position.
func (e *Engine) checkNoFlow(pos *domain.Position, st *trackState, reserves uint64, now time.Time) (domain.ExitReason, bool) {
	if e.cfg.NoFlowWindow <= 0 || st.noFlowChecked {
		return "", false
	}
	current := new(big.Int).SetUint64(reserves)
	if st.baselineReserves == nil {
		st.baselineReserves = current
		return "", false
	}
	if now.Sub(pos.OpenedAt) < e.cfg.NoFlowWindow {
		return "", false
	}
	st.noFlowChecked = true
	inflow := new(big.Int).Sub(current, st.baselineReserves)
	if inflow.Cmp(big.NewInt(e.cfg.NoFlowFloor)) <= 0 {
		return domain.ExitNoFlow, true
	}
	return "", false
}

// closeHalted stops tracking a migrated market. No sell is ever attempted
// against a halted curve; in simulation the last known value is recorded.
func (e *Engine) closeHalted(ctx context.Context, pos *domain.Position, st *trackState) {
	e.logger.Info("market halted, closing position",
		zap.String("mint", pos.Mint.String()))

	if !e.cfg.Live {
		proceeds := new(big.Int)
		if st.lastValue != nil {
			proceeds.Set(st.lastValue)
		}
		e.record(ctx, pos, domain.ExitHalted, proceeds, solana.Signature{})
	}
	e.drop(pos.Mint)
}

// closeSimulated records the trade at the quoted value and removes the
// position. Negative net results are recorded as-is; losses below basis are
// real and must not be hidden.
func (e *Engine) closeSimulated(ctx context.Context, pos *domain.Position, decision domain.ExitDecision) {
	e.record(ctx, pos, decision.Reason, decision.ExpectedProceeds, solana.Signature{})
	e.drop(pos.Mint)
}

// executeExit performs the live sell. The position closes only on a locally
// confirmed success; terminal failure re-arms evaluation on a later tick.
func (e *Engine) executeExit(ctx context.Context, pos *domain.Position, state *pricing.MarketState, decision domain.ExitDecision) {
	minOut := pricing.ApplySlippage(decision.ExpectedProceeds, e.cfg.SlippageBps)

	sig, err := e.executor.Sell(ctx, state, decision.Tokens, minOut)
	if err != nil {
		e.logger.Error("exit submission failed, position stays open",
			zap.String("mint", pos.Mint.String()),
			zap.String("reason", string(decision.Reason)),
			zap.Error(err))
		e.mu.Lock()
		if st, ok := e.track[pos.Mint]; ok {
			st.exiting = false
		}
		e.mu.Unlock()
		return
	}

	e.logger.Info("exit confirmed",
		zap.String("mint", pos.Mint.String()),
		zap.String("signature", sig.String()),
		zap.String("reason", string(decision.Reason)))

	e.record(ctx, pos, decision.Reason, decision.ExpectedProceeds, sig)
	e.drop(pos.Mint)
}

func (e *Engine) record(ctx context.Context, pos *domain.Position, reason domain.ExitReason, proceeds *big.Int, sig solana.Signature) {
	if e.recorder == nil {
		return
	}
	trade := domain.ClosedTrade{
		Mint:         pos.Mint,
		OpenedSig:    pos.OpenedSig,
		Reason:       reason,
		Tokens:       new(big.Int).Set(pos.Tokens),
		CostLamports: new(big.Int).Set(pos.CostLamports),
		Proceeds:     new(big.Int).Set(proceeds),
		PnLBps:       pnlBps(proceeds, pos.CostLamports),
		OpenedAt:     pos.OpenedAt,
		ClosedAt:     time.Now(),
		ExitSig:      sig,
	}
	if err := e.recorder.RecordTradeClose(ctx, trade); err != nil {
		e.logger.Warn("trade close not recorded",
			zap.String("mint", pos.Mint.String()),
			zap.Error(err))
	}
}

// drop removes the position and its evaluation state in one motion.
func (e *Engine) drop(mint solana.PublicKey) {
	e.ledger.Close(mint)
	e.mu.Lock()
	delete(e.track, mint)
	e.mu.Unlock()
}

// pnlBps = (value - cost) * 10000 / cost, in integer arithmetic.
func pnlBps(value, cost *big.Int) int64 {
	if cost == nil || cost.Sign() <= 0 {
		return 0
	}
	diff := new(big.Int).Sub(value, cost)
	diff.Mul(diff, big.NewInt(10_000))
	diff.Div(diff, cost)
	return diff.Int64()
}

// movedBeyond reports whether value deviates from ref by more than
// thresholdBps.
func movedBeyond(ref, value *big.Int, thresholdBps int64) bool {
	if ref.Sign() == 0 {
		return value.Sign() != 0
	}
	diff := new(big.Int).Sub(value, ref)
	diff.Abs(diff)
	diff.Mul(diff, big.NewInt(10_000))
	diff.Div(diff, ref)
	return diff.Cmp(big.NewInt(thresholdBps)) > 0
}
