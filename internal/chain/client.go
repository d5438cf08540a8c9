// internal/chain/client.go
package chain

import (
	"context"
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"go.uber.org/zap"
)

// Client is a thin adapter over the solana-go RPC client. It owns the
// translation of RPC-level failures into the tagged error kinds of this
// package; nothing above it inspects error text.
type Client struct {
	rpc    *rpc.Client
	logger *zap.Logger
}

func NewClient(rpcURL string, logger *zap.Logger) *Client {
	return &Client{
		rpc:    rpc.New(rpcURL),
		logger: logger.Named("chain"),
	}
}

var maxTxVersion uint64 = 0

// GetTransaction fetches a confirmed transaction with address-table-extended
// support. Returns ErrNotFound while the node has not yet seen the
// signature at the requested commitment.
func (c *Client) GetTransaction(ctx context.Context, sig solana.Signature) (*rpc.GetTransactionResult, error) {
	out, err := c.rpc.GetTransaction(ctx, sig, &rpc.GetTransactionOpts{
		Encoding:                       solana.EncodingBase64,
		Commitment:                     rpc.CommitmentConfirmed,
		MaxSupportedTransactionVersion: &maxTxVersion,
	})
	if err != nil {
		if errors.Is(err, rpc.ErrNotFound) {
			return nil, fmt.Errorf("transaction %s: %w", sig, ErrNotFound)
		}
		return nil, fmt.Errorf("getTransaction %s: %w: %s", sig, ErrTransient, err)
	}
	if out == nil {
		return nil, fmt.Errorf("transaction %s: %w", sig, ErrNotFound)
	}
	return out, nil
}

// SignaturesForAddress returns the most recent signatures mentioning addr,
// newest first, as the node reports them.
func (c *Client) SignaturesForAddress(ctx context.Context, addr solana.PublicKey, limit int) ([]*rpc.TransactionSignature, error) {
	sigs, err := c.rpc.GetSignaturesForAddressWithOpts(ctx, addr, &rpc.GetSignaturesForAddressOpts{
		Limit:      &limit,
		Commitment: rpc.CommitmentConfirmed,
	})
	if err != nil {
		return nil, fmt.Errorf("getSignaturesForAddress %s: %w: %s", addr, ErrTransient, err)
	}
	return sigs, nil
}

func (c *Client) LatestBlockhash(ctx context.Context) (solana.Hash, error) {
	result, err := c.rpc.GetLatestBlockhash(ctx, rpc.CommitmentConfirmed)
	if err != nil {
		return solana.Hash{}, fmt.Errorf("getLatestBlockhash: %w: %s", ErrTransient, err)
	}
	return result.Value.Blockhash, nil
}

// SendTransaction submits with preflight skipped; the submission pipeline
// relies on its own confirmation protocol, not on preflight simulation.
func (c *Client) SendTransaction(ctx context.Context, tx *solana.Transaction) (solana.Signature, error) {
	sig, err := c.rpc.SendTransactionWithOpts(ctx, tx, rpc.TransactionOpts{
		SkipPreflight:       true,
		PreflightCommitment: rpc.CommitmentConfirmed,
	})
	if err != nil {
		c.logger.Error("sendTransaction failed", zap.Error(err))
		return solana.Signature{}, err
	}
	return sig, nil
}

func (c *Client) SignatureStatuses(ctx context.Context, sigs ...solana.Signature) (*rpc.GetSignatureStatusesResult, error) {
	result, err := c.rpc.GetSignatureStatuses(ctx, false, sigs...)
	if err != nil {
		return nil, fmt.Errorf("getSignatureStatuses: %w: %s", ErrTransient, err)
	}
	return result, nil
}

// AccountInfo returns the raw account, or ErrNotFound when it does not
// exist.
func (c *Client) AccountInfo(ctx context.Context, pubkey solana.PublicKey) (*rpc.Account, error) {
	result, err := c.rpc.GetAccountInfoWithOpts(ctx, pubkey, &rpc.GetAccountInfoOpts{
		Commitment: rpc.CommitmentConfirmed,
		Encoding:   solana.EncodingBase64,
	})
	if err != nil {
		if errors.Is(err, rpc.ErrNotFound) {
			return nil, fmt.Errorf("account %s: %w", pubkey, ErrNotFound)
		}
		return nil, fmt.Errorf("getAccountInfo %s: %w: %s", pubkey, ErrTransient, err)
	}
	if result == nil || result.Value == nil {
		return nil, fmt.Errorf("account %s: %w", pubkey, ErrNotFound)
	}
	return result.Value, nil
}

// TokenBalance returns the raw base-unit amount held by a token account, or
// ErrNotFound when the account does not exist (e.g. closed after a manual
// sell).
func (c *Client) TokenBalance(ctx context.Context, account solana.PublicKey) (string, error) {
	result, err := c.rpc.GetTokenAccountBalance(ctx, account, rpc.CommitmentConfirmed)
	if err != nil {
		if errors.Is(err, rpc.ErrNotFound) {
			return "", fmt.Errorf("token account %s: %w", account, ErrNotFound)
		}
		return "", fmt.Errorf("getTokenAccountBalance %s: %w: %s", account, ErrTransient, err)
	}
	if result == nil || result.Value == nil {
		return "", fmt.Errorf("token account %s: %w", account, ErrNotFound)
	}
	return result.Value.Amount, nil
}

func (c *Client) Balance(ctx context.Context, pubkey solana.PublicKey) (uint64, error) {
	result, err := c.rpc.GetBalance(ctx, pubkey, rpc.CommitmentConfirmed)
	if err != nil {
		return 0, fmt.Errorf("getBalance %s: %w: %s", pubkey, ErrTransient, err)
	}
	return result.Value, nil
}
