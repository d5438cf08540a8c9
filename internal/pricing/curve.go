// ==============================================
// File: internal/pricing/curve.go
// ==============================================
package pricing

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"go.uber.org/zap"

	"github.com/curvelab/pumpsentry/internal/chain"
)

// CurveState is the bonding-curve account layout after the 8-byte Anchor
// discriminator.
type CurveState struct {
	VirtualTokenReserves uint64
	VirtualSolReserves   uint64
	RealTokenReserves    uint64
	RealSolReserves      uint64
	TokenTotalSupply     uint64
	Complete             bool
}

// GlobalParams are the program-wide fee parameters, fetched once and
// injected rather than kept as ambient global state.
type GlobalParams struct {
	Initialized    bool
	Authority      solana.PublicKey
	FeeRecipient   solana.PublicKey
	FeeBasisPoints uint64
}

// MarketState is everything the exit engine needs for one evaluation of one
// asset.
type MarketState struct {
	Mint                   solana.PublicKey
	BondingCurve           solana.PublicKey
	AssociatedBondingCurve solana.PublicKey
	Curve                  CurveState
	// OwnerTokens is the wallet's on-chain balance in base units; nil when
	// the backing token account does not exist.
	OwnerTokens *big.Int
}

// Halted reports whether the curve has completed and migrated away; selling
// into it is no longer possible.
func (m *MarketState) Halted() bool { return m.Curve.Complete }

// AccountReader is the slice of the chain client the oracle needs.
type AccountReader interface {
	AccountInfo(ctx context.Context, pubkey solana.PublicKey) (*rpc.Account, error)
	TokenBalance(ctx context.Context, account solana.PublicKey) (string, error)
}

// Oracle quotes buys and sells against bonding-curve state. It is
// side-effect-free apart from reading accounts.
type Oracle struct {
	reader  AccountReader
	program solana.PublicKey
	logger  *zap.Logger

	mu     sync.RWMutex
	global *GlobalParams
}

// DefaultFeeBps is used until EnsureWarm has fetched the on-chain value.
const DefaultFeeBps = 100

func NewOracle(reader AccountReader, program solana.PublicKey, logger *zap.Logger) *Oracle {
	return &Oracle{
		reader:  reader,
		program: program,
		logger:  logger.Named("pricing"),
	}
}

// EnsureWarm fetches the global fee parameters once. Safe to call
// repeatedly; only the first successful fetch does work.
func (o *Oracle) EnsureWarm(ctx context.Context) error {
	o.mu.RLock()
	warm := o.global != nil
	o.mu.RUnlock()
	if warm {
		return nil
	}

	globalAddr, _, err := solana.FindProgramAddress([][]byte{[]byte("global")}, o.program)
	if err != nil {
		return fmt.Errorf("derive global account: %w", err)
	}
	acc, err := o.reader.AccountInfo(ctx, globalAddr)
	if err != nil {
		return fmt.Errorf("fetch global account: %w", err)
	}

	data := acc.Data.GetBinary()
	if len(data) < 8 {
		return fmt.Errorf("global account data too short: %d bytes", len(data))
	}
	var params GlobalParams
	dec := bin.NewBorshDecoder(data[8:])
	if err := dec.Decode(&params); err != nil {
		return fmt.Errorf("decode global account: %w", err)
	}

	o.mu.Lock()
	o.global = &params
	o.mu.Unlock()

	o.logger.Info("global fee parameters warmed",
		zap.Uint64("fee_bps", params.FeeBasisPoints),
		zap.String("fee_recipient", params.FeeRecipient.String()))
	return nil
}

// Global returns the warmed parameters, or defaults when EnsureWarm has not
// succeeded yet.
func (o *Oracle) Global() GlobalParams {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if o.global != nil {
		return *o.global
	}
	return GlobalParams{FeeBasisPoints: DefaultFeeBps}
}

// CurveAddress derives the bonding-curve PDA for mint.
func (o *Oracle) CurveAddress(mint solana.PublicKey) (solana.PublicKey, error) {
	addr, _, err := solana.FindProgramAddress([][]byte{[]byte("bonding-curve"), mint.Bytes()}, o.program)
	return addr, err
}

// FetchMarketState reads the curve account and the owner's token account
// for mint. A missing curve account surfaces as chain.ErrNotFound; a
// missing owner token account leaves OwnerTokens nil.
func (o *Oracle) FetchMarketState(ctx context.Context, mint, owner solana.PublicKey) (*MarketState, error) {
	curveAddr, err := o.CurveAddress(mint)
	if err != nil {
		return nil, fmt.Errorf("derive bonding curve: %w", err)
	}

	acc, err := o.reader.AccountInfo(ctx, curveAddr)
	if err != nil {
		return nil, err
	}
	data := acc.Data.GetBinary()
	if len(data) < 8 {
		return nil, fmt.Errorf("bonding curve data too short: %d bytes", len(data))
	}

	var curve CurveState
	dec := bin.NewBorshDecoder(data[8:])
	if err := dec.Decode(&curve); err != nil {
		return nil, fmt.Errorf("decode bonding curve %s: %w", curveAddr, err)
	}

	assoc, _, err := solana.FindAssociatedTokenAddress(curveAddr, mint)
	if err != nil {
		return nil, fmt.Errorf("derive associated bonding curve: %w", err)
	}

	state := &MarketState{
		Mint:                   mint,
		BondingCurve:           curveAddr,
		AssociatedBondingCurve: assoc,
		Curve:                  curve,
	}

	ownerATA, _, err := solana.FindAssociatedTokenAddress(owner, mint)
	if err != nil {
		return nil, fmt.Errorf("derive owner token account: %w", err)
	}
	amount, err := o.reader.TokenBalance(ctx, ownerATA)
	switch {
	case err == nil:
		tokens, ok := new(big.Int).SetString(amount, 10)
		if ok {
			state.OwnerTokens = tokens
		}
	case chain.IsNotFound(err):
		// Account missing: externally closed, reported via nil.
	default:
		return nil, err
	}

	return state, nil
}

// QuoteSell returns the lamports obtainable for selling tokens into the
// curve, net of the protocol fee.
func (o *Oracle) QuoteSell(state *MarketState, tokens *big.Int) *big.Int {
	return QuoteSellLamports(state.Curve, tokens, o.Global().FeeBasisPoints)
}

// QuoteBuy returns the tokens obtainable for lamports, with the protocol
// fee taken from the input.
func (o *Oracle) QuoteBuy(state *MarketState, lamports *big.Int) *big.Int {
	return QuoteBuyTokens(state.Curve, lamports, o.Global().FeeBasisPoints)
}

// MarketCap values the full supply at the current spot ratio.
func (o *Oracle) MarketCap(state *MarketState) *big.Int {
	return CurveMarketCap(state.Curve)
}

// QuoteSellLamports computes tokens -> lamports on the constant-product
// virtual reserves, net of feeBps. Pure integer arithmetic.
func QuoteSellLamports(curve CurveState, tokens *big.Int, feeBps uint64) *big.Int {
	if tokens == nil || tokens.Sign() <= 0 || curve.VirtualTokenReserves == 0 {
		return new(big.Int)
	}
	vSol := new(big.Int).SetUint64(curve.VirtualSolReserves)
	vTok := new(big.Int).SetUint64(curve.VirtualTokenReserves)

	// gross = tokens * vSol / (vTok + tokens)
	gross := new(big.Int).Mul(tokens, vSol)
	gross.Div(gross, new(big.Int).Add(vTok, tokens))

	// net = gross * (10000 - feeBps) / 10000
	net := new(big.Int).Mul(gross, big.NewInt(10_000-int64(feeBps)))
	net.Div(net, big.NewInt(10_000))
	return net
}

// QuoteBuyTokens computes lamports -> tokens with feeBps taken from the SOL
// input before the swap.
func QuoteBuyTokens(curve CurveState, lamports *big.Int, feeBps uint64) *big.Int {
	if lamports == nil || lamports.Sign() <= 0 || curve.VirtualSolReserves == 0 {
		return new(big.Int)
	}
	vSol := new(big.Int).SetUint64(curve.VirtualSolReserves)
	vTok := new(big.Int).SetUint64(curve.VirtualTokenReserves)

	effective := new(big.Int).Mul(lamports, big.NewInt(10_000-int64(feeBps)))
	effective.Div(effective, big.NewInt(10_000))

	out := new(big.Int).Mul(effective, vTok)
	out.Div(out, new(big.Int).Add(vSol, effective))
	return out
}

// CurveMarketCap = totalSupply * vSol / vTok.
func CurveMarketCap(curve CurveState) *big.Int {
	if curve.VirtualTokenReserves == 0 {
		return new(big.Int)
	}
	cap := new(big.Int).SetUint64(curve.TokenTotalSupply)
	cap.Mul(cap, new(big.Int).SetUint64(curve.VirtualSolReserves))
	cap.Div(cap, new(big.Int).SetUint64(curve.VirtualTokenReserves))
	return cap
}

// ApplySlippage converts a quote into a minimum acceptable output.
// Convention: slippage is carried in basis points and applied directly,
// minOut = quote * (10000 - slippageBps) / 10000.
func ApplySlippage(quote *big.Int, slippageBps int64) *big.Int {
	out := new(big.Int).Mul(quote, big.NewInt(10_000-slippageBps))
	out.Div(out, big.NewInt(10_000))
	return out
}
