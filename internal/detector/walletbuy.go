// internal/detector/walletbuy.go
package detector

import (
	"context"
	"strings"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"go.uber.org/zap"

	"github.com/curvelab/pumpsentry/internal/decoder"
	"github.com/curvelab/pumpsentry/internal/domain"
)

// WalletBuyDetector watches the tracked wallet and emits a BuyEvent for
// every recognized purchase against the target program.
type WalletBuyDetector struct {
	watcher *watcher
	dec     *decoder.BuyDecoder
	out     chan<- domain.BuyEvent
	logger  *zap.Logger
}

func NewWalletBuyDetector(
	cfg Config,
	program solana.PublicKey,
	trackedWallet solana.PublicKey,
	fetcher TxFetcher,
	lister SignatureLister,
	subscriber LogSubscriber,
	gate *SignatureGate,
	out chan<- domain.BuyEvent,
	logger *zap.Logger,
) *WalletBuyDetector {
	log := logger.Named("buy-detector")
	d := &WalletBuyDetector{
		dec:    decoder.NewBuyDecoder(program, trackedWallet, log),
		out:    out,
		logger: log,
	}
	invokeMarker := "Program " + program.String() + " invoke"
	d.watcher = &watcher{
		cfg:        cfg,
		addr:       trackedWallet,
		fetcher:    fetcher,
		lister:     lister,
		subscriber: subscriber,
		gate:       gate,
		prefilter: func(logs []string) bool {
			for _, line := range logs {
				if strings.Contains(line, invokeMarker) {
					return true
				}
			}
			return false
		},
		handle: d.handleTransaction,
		logger: log,
	}
	return d
}

func (d *WalletBuyDetector) Run(ctx context.Context) error {
	return d.watcher.Run(ctx)
}

func (d *WalletBuyDetector) handleTransaction(ctx context.Context, sig solana.Signature, res *rpc.GetTransactionResult) {
	tx, err := res.Transaction.GetTransaction()
	if err != nil {
		d.logger.Warn("failed to decode transaction envelope",
			zap.String("signature", sig.String()),
			zap.Error(err))
		return
	}

	buy := d.dec.DecodeBuy(tx, res.Meta)
	if buy == nil {
		return
	}

	event := domain.BuyEvent{
		Signature:    sig,
		Slot:         res.Slot,
		BlockTime:    blockTime(res),
		Mint:         buy.Mint,
		TokenDelta:   buy.TokenDelta,
		CostLamports: buy.CostLamports,
		FeeLamports:  buy.FeeLamports,
	}

	d.logger.Info("wallet buy detected",
		zap.String("mint", event.Mint.String()),
		zap.String("tokens", event.TokenDelta.String()),
		zap.String("cost_lamports", event.CostLamports.String()),
		zap.String("signature", sig.String()))

	select {
	case d.out <- event:
	case <-ctx.Done():
	}
}
