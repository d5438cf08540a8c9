// internal/detector/detector.go
package detector

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/curvelab/pumpsentry/internal/chain"
)

// TxFetcher fetches a confirmed transaction by signature. chain.Client
// implements it.
type TxFetcher interface {
	GetTransaction(ctx context.Context, sig solana.Signature) (*rpc.GetTransactionResult, error)
}

// SignatureLister returns the most recent signatures for an address, newest
// first. chain.Client implements it.
type SignatureLister interface {
	SignaturesForAddress(ctx context.Context, addr solana.PublicKey, limit int) ([]*rpc.TransactionSignature, error)
}

// LogSubscriber opens a push subscription for log notifications mentioning
// an address. chain.WSConn implements it.
type LogSubscriber interface {
	SubscribeMentions(addr solana.PublicKey) (chain.LogStream, error)
}

// txHandler consumes one fetched transaction. It runs at most once per
// signature.
type txHandler func(ctx context.Context, sig solana.Signature, res *rpc.GetTransactionResult)

// Config carries the knobs shared by both detectors.
type Config struct {
	PollInterval time.Duration
	PollLimit    int
	ForcePolling bool
	FetchRetries int
	FetchBackoff time.Duration
}

// watcher races a push subscription against a polling fallback over one
// address, funneling every observed signature through the shared gate.
type watcher struct {
	cfg        Config
	addr       solana.PublicKey
	fetcher    TxFetcher
	lister     SignatureLister
	subscriber LogSubscriber // nil forces polling
	gate       *SignatureGate
	prefilter  func(logs []string) bool
	handle     txHandler
	logger     *zap.Logger

	lastSeen solana.Signature
	primed   bool
}

// Run blocks until ctx is cancelled. The poll loop always runs; the push
// loop runs alongside it when a subscription can be established. Failure to
// establish the subscription degrades to polling only.
func (w *watcher) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	if w.subscriber != nil && !w.cfg.ForcePolling {
		stream, err := w.subscriber.SubscribeMentions(w.addr)
		if err != nil {
			w.logger.Warn("push subscription failed, falling back to polling",
				zap.String("address", w.addr.String()),
				zap.Error(err))
		} else {
			g.Go(func() error {
				defer stream.Unsubscribe()
				return w.pushLoop(ctx, stream)
			})
		}
	}

	g.Go(func() error { return w.pollLoop(ctx) })

	return g.Wait()
}

func (w *watcher) pushLoop(ctx context.Context, stream chain.LogStream) error {
	for {
		note, err := stream.Recv(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			w.logger.Warn("log subscription closed, poll path continues", zap.Error(err))
			return nil
		}
		if note.Failed {
			continue
		}
		// Cheap line scan before any fetch/decode.
		if w.prefilter != nil && !w.prefilter(note.Logs) {
			continue
		}
		w.process(ctx, note.Signature)
	}
}

func (w *watcher) pollLoop(ctx context.Context) error {
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := w.pollOnce(ctx); err != nil && ctx.Err() == nil {
				w.logger.Debug("poll failed", zap.Error(err))
			}
		}
	}
}

// pollOnce fetches recent signatures and processes the strictly newer ones
// oldest-to-newest, preserving causal order. The first successful poll only
// records the high-water mark so history before process start is never
// replayed.
func (w *watcher) pollOnce(ctx context.Context) error {
	sigs, err := w.lister.SignaturesForAddress(ctx, w.addr, w.cfg.PollLimit)
	if err != nil {
		return err
	}
	if len(sigs) == 0 {
		w.primed = true
		return nil
	}

	if !w.primed {
		w.lastSeen = sigs[0].Signature
		w.primed = true
		return nil
	}

	var fresh []*rpc.TransactionSignature
	for _, entry := range sigs {
		if entry.Signature.Equals(w.lastSeen) {
			break
		}
		fresh = append(fresh, entry)
	}
	w.lastSeen = sigs[0].Signature

	for i := len(fresh) - 1; i >= 0; i-- {
		entry := fresh[i]
		if entry.Err != nil {
			continue
		}
		w.process(ctx, entry.Signature)
	}
	return nil
}

// process claims the signature, fetches the transaction with a short
// bounded retry (the node may lag behind the notification), and hands it to
// the handler. Absence after the retry budget is logged and dropped.
func (w *watcher) process(ctx context.Context, sig solana.Signature) {
	if !w.gate.Begin(sig) {
		return
	}
	handled := false
	defer func() { w.gate.Done(sig, handled) }()

	res, err := w.fetchWithRetry(ctx, sig)
	if err != nil {
		if ctx.Err() == nil {
			w.logger.Info("transaction not visible within retry budget, dropped",
				zap.String("signature", sig.String()),
				zap.Error(err))
		}
		return
	}

	handled = true
	w.handle(ctx, sig, res)
}

func (w *watcher) fetchWithRetry(ctx context.Context, sig solana.Signature) (*rpc.GetTransactionResult, error) {
	op := func() (*rpc.GetTransactionResult, error) {
		res, err := w.fetcher.GetTransaction(ctx, sig)
		if err != nil {
			if chain.IsNotFound(err) || chain.IsTransient(err) {
				return nil, err
			}
			return nil, backoff.Permanent(err)
		}
		return res, nil
	}
	return backoff.Retry(ctx, op,
		backoff.WithBackOff(backoff.NewConstantBackOff(w.cfg.FetchBackoff)),
		backoff.WithMaxTries(uint(w.cfg.FetchRetries)),
	)
}
