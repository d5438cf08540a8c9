// internal/detector/launch.go
package detector

import (
	"context"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"go.uber.org/zap"

	"github.com/curvelab/pumpsentry/internal/decoder"
	"github.com/curvelab/pumpsentry/internal/domain"
)

// LaunchDetector watches the target program for "create" instructions and
// emits LaunchEvents to its output channel.
type LaunchDetector struct {
	watcher *watcher
	dec     *decoder.LaunchDecoder
	out     chan<- domain.LaunchEvent
	logger  *zap.Logger
}

func NewLaunchDetector(
	cfg Config,
	program solana.PublicKey,
	fetcher TxFetcher,
	lister SignatureLister,
	subscriber LogSubscriber,
	gate *SignatureGate,
	out chan<- domain.LaunchEvent,
	logger *zap.Logger,
) *LaunchDetector {
	log := logger.Named("launch-detector")
	d := &LaunchDetector{
		dec:    decoder.NewLaunchDecoder(program, log),
		out:    out,
		logger: log,
	}
	d.watcher = &watcher{
		cfg:        cfg,
		addr:       program,
		fetcher:    fetcher,
		lister:     lister,
		subscriber: subscriber,
		gate:       gate,
		prefilter:  hasCreateMarker,
		handle:     d.handleTransaction,
		logger:     log,
	}
	return d
}

func (d *LaunchDetector) Run(ctx context.Context) error {
	return d.watcher.Run(ctx)
}

func hasCreateMarker(logs []string) bool {
	for _, line := range logs {
		if strings.Contains(line, decoder.CreateLogMarker) {
			return true
		}
	}
	return false
}

func (d *LaunchDetector) handleTransaction(ctx context.Context, sig solana.Signature, res *rpc.GetTransactionResult) {
	tx, err := res.Transaction.GetTransaction()
	if err != nil {
		d.logger.Warn("failed to decode transaction envelope",
			zap.String("signature", sig.String()),
			zap.Error(err))
		return
	}

	ev := d.dec.DecodeCreate(tx, res.Meta)
	if ev == nil {
		return
	}

	launch := domain.LaunchEvent{
		Signature: sig,
		Slot:      res.Slot,
		BlockTime: blockTime(res),
		Mint:      ev.Mint,
		Creator:   ev.Creator,
		Funder:    ev.Funder,
		Name:      ev.Name,
		Symbol:    ev.Symbol,
		URI:       ev.URI,
	}

	d.logger.Info("token launch detected",
		zap.String("mint", launch.Mint.String()),
		zap.String("creator", launch.Creator.String()),
		zap.String("symbol", launch.Symbol),
		zap.Uint64("slot", launch.Slot))

	select {
	case d.out <- launch:
	case <-ctx.Done():
	}
}

func blockTime(res *rpc.GetTransactionResult) *time.Time {
	if res.BlockTime == nil {
		return nil
	}
	t := res.BlockTime.Time()
	return &t
}
