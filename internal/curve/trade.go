// ==============================================
// File: internal/curve/trade.go
// ==============================================
package curve

import (
	"context"
	"fmt"
	"math/big"

	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"

	"github.com/curvelab/pumpsentry/internal/pricing"
	"github.com/curvelab/pumpsentry/internal/submitter"
	"github.com/curvelab/pumpsentry/internal/wallet"
)

// Trader turns quotes into signed, submitted trades against the bonding
// curve. It implements the exit engine's executor contract.
type Trader struct {
	addrs  Addresses
	wallet *wallet.Wallet
	sub    *submitter.Submitter
	tip    submitter.BundleConfig
	logger *zap.Logger
}

func NewTrader(addrs Addresses, w *wallet.Wallet, sub *submitter.Submitter, tip submitter.BundleConfig, logger *zap.Logger) *Trader {
	return &Trader{
		addrs:  addrs,
		wallet: w,
		sub:    sub,
		tip:    tip,
		logger: logger.Named("trader"),
	}
}

// Sell liquidates tokens with minOut as the slippage floor and returns the
// confirmed signature.
func (t *Trader) Sell(ctx context.Context, state *pricing.MarketState, tokens, minOut *big.Int) (solana.Signature, error) {
	if !tokens.IsUint64() || !minOut.IsUint64() {
		return solana.Signature{}, fmt.Errorf("sell amounts out of range: tokens=%s minOut=%s", tokens, minOut)
	}

	ix, err := BuildSellInstruction(t.addrs, tradeAccounts(state), t.wallet, tokens.Uint64(), minOut.Uint64())
	if err != nil {
		return solana.Signature{}, fmt.Errorf("build sell instruction: %w", err)
	}

	t.logger.Info("submitting sell",
		zap.String("mint", state.Mint.String()),
		zap.String("tokens", tokens.String()),
		zap.String("min_out", minOut.String()))

	return t.sub.Submit(ctx, []solana.Instruction{ix})
}

// Buy purchases tokensOut spending at most maxCost lamports. The token
// account creation rides in the same transaction; when a tip is configured
// the pair goes out as an atomic bundle.
func (t *Trader) Buy(ctx context.Context, state *pricing.MarketState, tokensOut, maxCost *big.Int) (solana.Signature, error) {
	if !tokensOut.IsUint64() || !maxCost.IsUint64() {
		return solana.Signature{}, fmt.Errorf("buy amounts out of range: tokens=%s maxCost=%s", tokensOut, maxCost)
	}

	ataIx, err := BuildCreateATAInstruction(t.wallet.PublicKey, t.wallet.PublicKey, state.Mint)
	if err != nil {
		return solana.Signature{}, fmt.Errorf("build token account instruction: %w", err)
	}
	buyIx, err := BuildBuyInstruction(t.addrs, tradeAccounts(state), t.wallet, tokensOut.Uint64(), maxCost.Uint64())
	if err != nil {
		return solana.Signature{}, fmt.Errorf("build buy instruction: %w", err)
	}

	ixs := []solana.Instruction{ataIx, buyIx}

	t.logger.Info("submitting buy",
		zap.String("mint", state.Mint.String()),
		zap.String("tokens", tokensOut.String()),
		zap.String("max_cost", maxCost.String()))

	if t.tip.TipLamports > 0 && !t.tip.TipAccount.IsZero() {
		return t.sub.SubmitBundle(ctx, ixs, t.tip)
	}
	return t.sub.Submit(ctx, ixs)
}

func tradeAccounts(state *pricing.MarketState) TradeAccounts {
	return TradeAccounts{
		Mint:                   state.Mint,
		BondingCurve:           state.BondingCurve,
		AssociatedBondingCurve: state.AssociatedBondingCurve,
	}
}
