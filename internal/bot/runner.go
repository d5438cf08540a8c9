// ==============================================
// File: internal/bot/runner.go
// ==============================================
package bot

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/curvelab/pumpsentry/internal/chain"
	"github.com/curvelab/pumpsentry/internal/config"
	"github.com/curvelab/pumpsentry/internal/curve"
	"github.com/curvelab/pumpsentry/internal/decision"
	"github.com/curvelab/pumpsentry/internal/detector"
	"github.com/curvelab/pumpsentry/internal/domain"
	"github.com/curvelab/pumpsentry/internal/engine"
	"github.com/curvelab/pumpsentry/internal/gating"
	"github.com/curvelab/pumpsentry/internal/ledger"
	"github.com/curvelab/pumpsentry/internal/persistence"
	"github.com/curvelab/pumpsentry/internal/pricing"
	"github.com/curvelab/pumpsentry/internal/submitter"
	"github.com/curvelab/pumpsentry/internal/wallet"
)

// Runner wires the detectors, ledger, exit engine and decision queue into
// one long-running service.
type Runner struct {
	cfg    *config.Config
	logger *zap.Logger

	program solana.PublicKey
	tracked solana.PublicKey
	owner   solana.PublicKey

	client   *chain.Client
	wsConn   *chain.WSConn
	signer   *wallet.Wallet
	store    persistence.Store
	ledger   *ledger.Ledger
	oracle   *pricing.Oracle
	engine   *engine.Engine
	queue    *decision.Queue
	launches *detector.LaunchDetector
	buys     *detector.WalletBuyDetector

	launchCh chan domain.LaunchEvent
	buyCh    chan domain.BuyEvent

	shutdown *Shutdown
}

func NewRunner(logger *zap.Logger) *Runner {
	return &Runner{logger: logger.Named("bot")}
}

// Initialize builds every component from a validated configuration. Any
// error here is fatal; the process must not run on a partial wiring.
func (r *Runner) Initialize(ctx context.Context, cfg *config.Config) error {
	var err error
	r.cfg = cfg
	r.shutdown = NewShutdown(r.logger, cfg.ShutdownGrace())

	r.program = solana.MustPublicKeyFromBase58(cfg.ProgramID)

	if cfg.Live {
		r.signer, err = wallet.New(cfg.PrivateKey)
		if err != nil {
			return fmt.Errorf("load wallet: %w", err)
		}
		r.owner = r.signer.PublicKey
	}

	r.tracked = r.owner
	if cfg.TrackedWallet != "" {
		r.tracked = solana.MustPublicKeyFromBase58(cfg.TrackedWallet)
	}
	if r.tracked.IsZero() {
		return fmt.Errorf("no wallet to track: set tracked_wallet or enable live mode")
	}
	if r.owner.IsZero() {
		r.owner = r.tracked
	}

	r.client = chain.NewClient(cfg.RPCURL, r.logger)

	if cfg.WebSocketURL != "" && !cfg.ForcePolling {
		r.wsConn, err = chain.DialWS(ctx, cfg.WebSocketURL, r.logger)
		if err != nil {
			r.logger.Warn("websocket unavailable, detection degrades to polling", zap.Error(err))
		} else {
			r.shutdown.Add("websocket", func() error { r.wsConn.Close(); return nil })
		}
	}

	r.store = persistence.Open(ctx, cfg.PostgresURL, r.logger)
	r.shutdown.Add("persistence", func() error { r.store.Close(); return nil })

	r.ledger = ledger.New(r.logger)
	r.oracle = pricing.NewOracle(r.client, r.program, r.logger)

	var trader *curve.Trader
	if cfg.Live {
		trader, err = r.buildTrader(ctx)
		if err != nil {
			return err
		}
	}

	r.engine = engine.New(engine.Config{
		Policy:           cfg.Policy,
		TakeProfitBps:    cfg.TakeProfitBps,
		StopLossBps:      cfg.StopLossBps,
		TrailingBps:      cfg.TrailingBps,
		MinHold:          cfg.MinHold(),
		Tick:             cfg.TickInterval(),
		Live:             cfg.Live,
		SlippageBps:      cfg.SlippageBps,
		MaxHold:          time.Duration(cfg.MaxHoldMs) * time.Millisecond,
		FlatWindow:       time.Duration(cfg.FlatWindowMs) * time.Millisecond,
		FlatThresholdBps: cfg.FlatThresholdBps,
		NoFlowWindow:     time.Duration(cfg.NoFlowWindowMs) * time.Millisecond,
		NoFlowFloor:      cfg.NoFlowFloor,
	}, r.ledger, r.oracle, executor(trader), r.store, r.owner, r.logger)

	gate := gating.New(gating.Config{MaxCreatorUses: cfg.MaxCreatorUses}, r.store, r.logger)
	r.queue = decision.NewQueue(decision.Config{
		AutoBuy:     cfg.AutoBuy && cfg.Live,
		BuyLamports: uint64(cfg.BuyAmountSOL * float64(solana.LAMPORTS_PER_SOL)),
		Cooldown:    cfg.BuyCooldown(),
		SlippageBps: cfg.SlippageBps,
	}, gate, r.store, r.oracle, buyer(trader), r.owner, r.logger)

	r.launchCh = make(chan domain.LaunchEvent, 128)
	r.buyCh = make(chan domain.BuyEvent, 64)

	detCfg := detector.Config{
		PollInterval: cfg.PollInterval(),
		PollLimit:    cfg.PollLimit,
		ForcePolling: cfg.ForcePolling,
		FetchRetries: cfg.FetchRetries,
		FetchBackoff: cfg.FetchBackoff(),
	}
	gate1 := detector.NewSignatureGate(detector.DefaultGateCapacity)
	gate2 := detector.NewSignatureGate(detector.DefaultGateCapacity)
	r.launches = detector.NewLaunchDetector(detCfg, r.program, r.client, r.client, subscriber(r.wsConn), gate1, r.launchCh, r.logger)
	r.buys = detector.NewWalletBuyDetector(detCfg, r.program, r.tracked, r.client, r.client, subscriber(r.wsConn), gate2, r.buyCh, r.logger)

	r.logger.Info("runner initialized",
		zap.String("program", r.program.String()),
		zap.String("tracked_wallet", r.tracked.String()),
		zap.Bool("live", cfg.Live),
		zap.String("policy", cfg.Policy))
	return nil
}

// buildTrader assembles the live submission stack. Fee parameters must be
// warm before the first trade, so failure here is fatal in live mode.
func (r *Runner) buildTrader(ctx context.Context) (*curve.Trader, error) {
	if err := r.oracle.EnsureWarm(ctx); err != nil {
		return nil, fmt.Errorf("warm fee parameters: %w", err)
	}

	addrs, err := curve.ResolveAddresses(r.program)
	if err != nil {
		return nil, err
	}
	addrs.FeeRecipient = r.oracle.Global().FeeRecipient

	var bundles submitter.BundleTransport
	if r.cfg.BundleEndpoint != "" {
		bundles = submitter.NewHTTPBundleClient(r.cfg.BundleEndpoint, r.logger)
	}

	sub := submitter.New(r.client, subscriberSig(r.wsConn), r.signer, bundles, submitter.Config{
		ComputeUnits:        r.cfg.ComputeUnits,
		PriorityFeeLamports: uint64(r.cfg.PriorityFeeSOL * float64(solana.LAMPORTS_PER_SOL)),
	}, r.logger)

	tip := submitter.BundleConfig{TipLamports: r.cfg.BundleTipLamports}
	if r.cfg.BundleTipAccount != "" {
		tip.TipAccount = solana.MustPublicKeyFromBase58(r.cfg.BundleTipAccount)
	}
	return curve.NewTrader(addrs, r.signer, sub, tip, r.logger), nil
}

// Run blocks until a termination signal or a fatal component error, then
// drains through the shutdown registry.
func (r *Runner) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if r.cfg.AutoShutdownMin > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(r.cfg.AutoShutdownMin)*time.Minute)
		defer cancel()
		r.logger.Info("auto-shutdown armed", zap.Int("minutes", r.cfg.AutoShutdownMin))
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return r.launches.Run(gctx) })
	g.Go(func() error { return r.buys.Run(gctx) })
	g.Go(func() error { return r.engine.Run(gctx) })
	g.Go(func() error { return r.queue.Run(gctx, r.launchCh) })
	g.Go(func() error { return r.consumeBuys(gctx) })

	r.logger.Info("pumpsentry running")
	err := g.Wait()
	r.shutdown.Close()

	if err != nil && ctx.Err() == nil {
		return err
	}
	r.logger.Info("pumpsentry stopped")
	return nil
}

// consumeBuys folds detected wallet buys into the ledger and records the
// opens for analytics.
func (r *Runner) consumeBuys(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-r.buyCh:
			pos := r.ledger.AddBuy(ev)
			if err := r.store.RecordTradeOpen(ctx, pos); err != nil {
				r.logger.Warn("trade open not recorded",
					zap.String("mint", pos.Mint.String()),
					zap.Error(err))
			}
		}
	}
}

// The nil-interface helpers keep a typed nil pointer from masquerading as a
// live collaborator.

func subscriber(ws *chain.WSConn) detector.LogSubscriber {
	if ws == nil {
		return nil
	}
	return ws
}

func subscriberSig(ws *chain.WSConn) submitter.SigSubscriber {
	if ws == nil {
		return nil
	}
	return ws
}

func executor(t *curve.Trader) engine.ExitExecutor {
	if t == nil {
		return nil
	}
	return t
}

func buyer(t *curve.Trader) decision.Buyer {
	if t == nil {
		return nil
	}
	return t
}
