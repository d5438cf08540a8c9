// internal/ledger/ledger_test.go
package ledger

import (
	"math/big"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/curvelab/pumpsentry/internal/domain"
)

func mintN(n byte) solana.PublicKey {
	var pk solana.PublicKey
	pk[0] = n
	return pk
}

func buyEvent(mint solana.PublicKey, sigByte byte, tokens, cost int64) domain.BuyEvent {
	var sig solana.Signature
	sig[0] = sigByte
	now := time.Now()
	return domain.BuyEvent{
		Signature:    sig,
		Mint:         mint,
		BlockTime:    &now,
		TokenDelta:   big.NewInt(tokens),
		CostLamports: big.NewInt(cost),
	}
}

func TestLedger_BuysAccumulate(t *testing.T) {
	l := New(zaptest.NewLogger(t))
	mint := mintN(1)

	l.AddBuy(buyEvent(mint, 1, 1_000_000, 50_000_000))
	l.AddBuy(buyEvent(mint, 2, 250_000, 10_000_000))
	pos := l.AddBuy(buyEvent(mint, 3, 750_000, 40_000_000))

	assert.Equal(t, big.NewInt(2_000_000), pos.Tokens)
	assert.Equal(t, big.NewInt(100_000_000), pos.CostLamports)
	assert.Equal(t, 1, l.Len(), "repeated buys accumulate into one position")
}

func TestLedger_OpenedSigTracksLatestBuy(t *testing.T) {
	l := New(zaptest.NewLogger(t))
	mint := mintN(2)

	l.AddBuy(buyEvent(mint, 1, 100, 100))
	pos := l.AddBuy(buyEvent(mint, 9, 100, 100))

	assert.Equal(t, byte(9), pos.OpenedSig[0])
}

func TestLedger_GetReturnsCopy(t *testing.T) {
	l := New(zaptest.NewLogger(t))
	mint := mintN(3)
	l.AddBuy(buyEvent(mint, 1, 100, 200))

	pos, ok := l.Get(mint)
	require.True(t, ok)
	pos.Tokens.SetInt64(999)

	again, ok := l.Get(mint)
	require.True(t, ok)
	assert.Equal(t, big.NewInt(100), again.Tokens, "mutating a snapshot must not leak back")
}

func TestLedger_CloseRemoves(t *testing.T) {
	l := New(zaptest.NewLogger(t))
	mint := mintN(4)
	l.AddBuy(buyEvent(mint, 1, 100, 200))

	l.Close(mint)

	_, ok := l.Get(mint)
	assert.False(t, ok)
	assert.Empty(t, l.All())
}

func TestLedger_UpdatePeak(t *testing.T) {
	l := New(zaptest.NewLogger(t))
	mint := mintN(5)
	l.AddBuy(buyEvent(mint, 1, 100, 200))

	l.UpdatePeak(mint, big.NewInt(123_456))

	pos, ok := l.Get(mint)
	require.True(t, ok)
	assert.Equal(t, big.NewInt(123_456), pos.PeakValue)
}
