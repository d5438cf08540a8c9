// ==============================
// File: internal/domain/events.go
// ==============================
package domain

import (
	"math/big"
	"time"

	"github.com/gagliardetto/solana-go"
)

// BuyEvent is one recognized purchase by the tracked wallet. Produced by the
// wallet-buy detector, consumed exactly once by the ledger.
type BuyEvent struct {
	Signature    solana.Signature
	Slot         uint64
	BlockTime    *time.Time
	Mint         solana.PublicKey
	TokenDelta   *big.Int // base units, positive
	CostLamports *big.Int // curve cost including protocol fee
	FeeLamports  uint64   // network fee, informational
}

// LaunchEvent is one observed token creation on the target program.
type LaunchEvent struct {
	Signature solana.Signature
	Slot      uint64
	BlockTime *time.Time
	Mint      solana.PublicKey
	Creator   solana.PublicKey
	Funder    solana.PublicKey
	Name      string
	Symbol    string
	URI       string
}

// ExitReason tags why a position was closed.
type ExitReason string

const (
	ExitTakeProfit   ExitReason = "TAKE_PROFIT"
	ExitStopLoss     ExitReason = "STOP_LOSS"
	ExitTrailingStop ExitReason = "TRAILING_STOP"
	ExitTimeLimit    ExitReason = "TIME_LIMIT"
	ExitFlatMarket   ExitReason = "FLAT_MARKET"
	ExitNoFlow       ExitReason = "NO_FLOW"
	ExitHalted       ExitReason = "HALTED"
)

// ExitDecision is the exit engine's verdict for one position.
type ExitDecision struct {
	Mint             solana.PublicKey
	Reason           ExitReason
	ExpectedProceeds *big.Int // lamports, net of protocol fee
	Tokens           *big.Int // base units to liquidate
	DecidedAt        time.Time
}

// Position is the live holding for one asset. Exactly one exists per mint;
// repeated buys accumulate into it.
type Position struct {
	Mint         solana.PublicKey
	OpenedAt     time.Time
	OpenedSig    solana.Signature
	Tokens       *big.Int
	CostLamports *big.Int
	// PeakValue is the trailing-stop high-water mark; nil until the first
	// evaluation under the trailing policy.
	PeakValue *big.Int
}

// Clone returns a deep copy safe to hand outside the ledger's lock.
func (p *Position) Clone() *Position {
	out := &Position{
		Mint:      p.Mint,
		OpenedAt:  p.OpenedAt,
		OpenedSig: p.OpenedSig,
	}
	if p.Tokens != nil {
		out.Tokens = new(big.Int).Set(p.Tokens)
	}
	if p.CostLamports != nil {
		out.CostLamports = new(big.Int).Set(p.CostLamports)
	}
	if p.PeakValue != nil {
		out.PeakValue = new(big.Int).Set(p.PeakValue)
	}
	return out
}

// ClosedTrade is the durable record of a finished position, written to the
// persistence collaborator.
type ClosedTrade struct {
	Mint         solana.PublicKey
	OpenedSig    solana.Signature
	Reason       ExitReason
	Tokens       *big.Int
	CostLamports *big.Int
	Proceeds     *big.Int // lamports; may be below cost, losses are not clamped
	PnLBps       int64
	OpenedAt     time.Time
	ClosedAt     time.Time
	ExitSig      solana.Signature // zero in simulation mode
}
