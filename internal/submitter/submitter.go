// ==============================================
// File: internal/submitter/submitter.go
// ==============================================
package submitter

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	computebudget "github.com/gagliardetto/solana-go/programs/compute-budget"
	"github.com/gagliardetto/solana-go/rpc"
	"go.uber.org/zap"

	"github.com/curvelab/pumpsentry/internal/chain"
	"github.com/curvelab/pumpsentry/internal/wallet"
)

var (
	// ErrConfirmTimeout means the transaction was not observed at the
	// required commitment inside the window; it may still land later.
	ErrConfirmTimeout = errors.New("confirmation timed out")

	// ErrOnChainFailure means the transaction landed and failed; resending
	// the same instructions would fail again.
	ErrOnChainFailure = errors.New("transaction failed on chain")
)

// Sender is the slice of the chain client the submitter needs.
type Sender interface {
	LatestBlockhash(ctx context.Context) (solana.Hash, error)
	SendTransaction(ctx context.Context, tx *solana.Transaction) (solana.Signature, error)
	SignatureStatuses(ctx context.Context, sigs ...solana.Signature) (*rpc.GetSignatureStatusesResult, error)
}

// SigSubscriber opens push subscriptions for signature status. chain.WSConn
// implements it; nil degrades confirmation to status polling.
type SigSubscriber interface {
	SubscribeSignature(sig solana.Signature, commitment rpc.CommitmentType) (chain.SigStream, error)
}

// Config carries the submission knobs.
type Config struct {
	ComputeUnits        uint32
	PriorityFeeLamports uint64
	ProcessedTimeout    time.Duration
	ConfirmedTimeout    time.Duration
	StatusPollInterval  time.Duration
}

func (c *Config) withDefaults() Config {
	out := *c
	if out.ProcessedTimeout == 0 {
		out.ProcessedTimeout = 10 * time.Second
	}
	if out.ConfirmedTimeout == 0 {
		out.ConfirmedTimeout = 30 * time.Second
	}
	if out.StatusPollInterval == 0 {
		out.StatusPollInterval = time.Second
	}
	return out
}

// Submitter owns the build/sign/send/confirm protocol for every transaction
// the process emits.
type Submitter struct {
	sender     Sender
	subscriber SigSubscriber
	signer     *wallet.Wallet
	bundles    BundleTransport // nil disables the bundle path
	cfg        Config
	logger     *zap.Logger
}

func New(sender Sender, subscriber SigSubscriber, signer *wallet.Wallet, bundles BundleTransport, cfg Config, logger *zap.Logger) *Submitter {
	return &Submitter{
		sender:     sender,
		subscriber: subscriber,
		signer:     signer,
		bundles:    bundles,
		cfg:        cfg.withDefaults(),
		logger:     logger.Named("submitter"),
	}
}

// Submit builds, signs, sends and confirms a transaction around the given
// instructions. On confirmation timeout it rebuilds with a fresh blockhash
// and resends exactly once; an on-chain failure is terminal immediately.
func (s *Submitter) Submit(ctx context.Context, ixs []solana.Instruction) (solana.Signature, error) {
	sig, err := s.sendOnce(ctx, ixs)
	if err != nil {
		return solana.Signature{}, err
	}

	err = s.confirm(ctx, sig)
	switch {
	case err == nil:
		return sig, nil
	case errors.Is(err, ErrConfirmTimeout) && ctx.Err() == nil:
		s.logger.Warn("confirmation timed out, resubmitting once",
			zap.String("signature", sig.String()))
	default:
		return sig, err
	}

	// Second and final attempt with a fresh blockhash.
	sig, err = s.sendOnce(ctx, ixs)
	if err != nil {
		return solana.Signature{}, err
	}
	if err := s.confirm(ctx, sig); err != nil {
		return sig, err
	}
	return sig, nil
}

// sendOnce builds one transaction around ixs with the compute budget
// prepended, signs and sends it.
func (s *Submitter) sendOnce(ctx context.Context, ixs []solana.Instruction) (solana.Signature, error) {
	tx, err := s.buildTransaction(ctx, ixs)
	if err != nil {
		return solana.Signature{}, err
	}

	sig, err := s.sender.SendTransaction(ctx, tx)
	if err != nil {
		return solana.Signature{}, fmt.Errorf("send transaction: %w", err)
	}
	s.logger.Info("transaction sent", zap.String("signature", sig.String()))
	return sig, nil
}

func (s *Submitter) buildTransaction(ctx context.Context, ixs []solana.Instruction) (*solana.Transaction, error) {
	blockhash, err := s.sender.LatestBlockhash(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch blockhash: %w", err)
	}

	all := append(s.computeBudgetInstructions(), ixs...)
	tx, err := solana.NewTransaction(all, blockhash, solana.TransactionPayer(s.signer.PublicKey))
	if err != nil {
		return nil, fmt.Errorf("build transaction: %w", err)
	}
	if err := s.signer.SignTransaction(tx); err != nil {
		return nil, fmt.Errorf("sign transaction: %w", err)
	}
	return tx, nil
}

// computeBudgetInstructions converts the flat priority fee into a
// per-compute-unit price so total tip stays constant across unit budgets.
func (s *Submitter) computeBudgetInstructions() []solana.Instruction {
	microLamports := s.cfg.PriorityFeeLamports * 1_000_000 / uint64(s.cfg.ComputeUnits)
	return []solana.Instruction{
		computebudget.NewSetComputeUnitLimitInstruction(s.cfg.ComputeUnits).Build(),
		computebudget.NewSetComputeUnitPriceInstruction(microLamports).Build(),
	}
}

// confirm waits for processed within the short window, then confirmed within
// the long window. Each phase races a signature subscription against status
// polling so a dropped websocket never blocks confirmation.
func (s *Submitter) confirm(ctx context.Context, sig solana.Signature) error {
	if err := s.awaitCommitment(ctx, sig, rpc.CommitmentProcessed, s.cfg.ProcessedTimeout); err != nil {
		return err
	}
	return s.awaitCommitment(ctx, sig, rpc.CommitmentConfirmed, s.cfg.ConfirmedTimeout)
}

type sigResult struct {
	failed bool
	err    error
}

func (s *Submitter) awaitCommitment(ctx context.Context, sig solana.Signature, commitment rpc.CommitmentType, timeout time.Duration) error {
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	push := make(chan sigResult, 1)
	if s.subscriber != nil {
		stream, err := s.subscriber.SubscribeSignature(sig, commitment)
		if err != nil {
			s.logger.Debug("signature subscription failed, polling only", zap.Error(err))
		} else {
			go func() {
				defer stream.Unsubscribe()
				failed, err := stream.Recv(cctx)
				push <- sigResult{failed: failed, err: err}
			}()
		}
	}

	ticker := time.NewTicker(s.cfg.StatusPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-cctx.Done():
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("%w: %s at %s", ErrConfirmTimeout, sig, commitment)
		case res := <-push:
			if res.err != nil {
				// Subscription broke; the poll path keeps going.
				continue
			}
			if res.failed {
				return fmt.Errorf("%w: %s", ErrOnChainFailure, sig)
			}
			return nil
		case <-ticker.C:
			done, err := s.checkStatus(cctx, sig, commitment)
			if err != nil {
				if errors.Is(err, ErrOnChainFailure) {
					return err
				}
				s.logger.Debug("status poll failed", zap.Error(err))
				continue
			}
			if done {
				return nil
			}
		}
	}
}

// checkStatus reports whether sig has reached commitment. An execution error
// in the status is terminal.
func (s *Submitter) checkStatus(ctx context.Context, sig solana.Signature, commitment rpc.CommitmentType) (bool, error) {
	result, err := s.sender.SignatureStatuses(ctx, sig)
	if err != nil {
		return false, err
	}
	if result == nil || len(result.Value) == 0 || result.Value[0] == nil {
		return false, nil
	}
	status := result.Value[0]
	if status.Err != nil {
		return false, fmt.Errorf("%w: %s: %v", ErrOnChainFailure, sig, status.Err)
	}
	return commitmentReached(status.ConfirmationStatus, commitment), nil
}

func commitmentReached(have rpc.ConfirmationStatusType, want rpc.CommitmentType) bool {
	rank := func(s string) int {
		switch s {
		case "processed":
			return 1
		case "confirmed":
			return 2
		case "finalized":
			return 3
		}
		return 0
	}
	return rank(string(have)) >= rank(string(want))
}
