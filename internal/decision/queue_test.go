// internal/decision/queue_test.go
package decision

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/curvelab/pumpsentry/internal/domain"
	"github.com/curvelab/pumpsentry/internal/gating"
	"github.com/curvelab/pumpsentry/internal/persistence"
	"github.com/curvelab/pumpsentry/internal/pricing"
)

type fakeMarket struct {
	halted bool
}

func (m *fakeMarket) FetchMarketState(_ context.Context, mint, _ solana.PublicKey) (*pricing.MarketState, error) {
	return &pricing.MarketState{
		Mint: mint,
		Curve: pricing.CurveState{
			VirtualTokenReserves: 1_000_000_000,
			VirtualSolReserves:   30_000_000_000,
			Complete:             m.halted,
		},
	}, nil
}

func (m *fakeMarket) QuoteBuy(state *pricing.MarketState, lamports *big.Int) *big.Int {
	return pricing.QuoteBuyTokens(state.Curve, lamports, 100)
}

type fakeBuyer struct {
	buys []solana.PublicKey
}

func (b *fakeBuyer) Buy(_ context.Context, state *pricing.MarketState, _, _ *big.Int) (solana.Signature, error) {
	b.buys = append(b.buys, state.Mint)
	return solana.Signature{1}, nil
}

func launch(n byte) domain.LaunchEvent {
	var mint, creator solana.PublicKey
	mint[0] = n
	creator[0] = 0xC0
	var sig solana.Signature
	sig[0] = n
	return domain.LaunchEvent{
		Signature: sig,
		Mint:      mint,
		Creator:   creator,
		Name:      "Token",
		Symbol:    "TKN",
	}
}

func newTestQueue(t *testing.T, cfg Config, store persistence.Store, buyer Buyer) *Queue {
	t.Helper()
	gate := gating.New(gating.Config{}, store, zaptest.NewLogger(t))
	var owner solana.PublicKey
	owner[0] = 42
	return NewQueue(cfg, gate, store, &fakeMarket{}, buyer, owner, zaptest.NewLogger(t))
}

func TestQueue_RecordsCreatorAndBuys(t *testing.T) {
	store := persistence.NewMemory()
	buyer := &fakeBuyer{}
	q := newTestQueue(t, Config{AutoBuy: true, BuyLamports: 1_000_000_000}, store, buyer)

	ev := launch(1)
	q.process(context.Background(), ev)

	count, err := store.CreatorCreateCount(context.Background(), ev.Creator)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	require.Len(t, buyer.buys, 1)
	assert.Equal(t, ev.Mint, buyer.buys[0])
}

func TestQueue_RejectedCandidateNeverBuys(t *testing.T) {
	store := persistence.NewMemory()
	buyer := &fakeBuyer{}
	q := newTestQueue(t, Config{AutoBuy: true, BuyLamports: 1_000_000_000}, store, buyer)

	ev := launch(2)
	ev.Symbol = "" // fails the gate
	q.process(context.Background(), ev)

	assert.Empty(t, buyer.buys)
	// Analytics still recorded for rejected candidates.
	count, err := store.CreatorCreateCount(context.Background(), ev.Creator)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestQueue_CooldownBetweenBuys(t *testing.T) {
	store := persistence.NewMemory()
	buyer := &fakeBuyer{}
	q := newTestQueue(t, Config{AutoBuy: true, BuyLamports: 1_000_000_000, Cooldown: time.Hour}, store, buyer)

	ctx := context.Background()
	q.process(ctx, launch(3))
	q.process(ctx, launch(4))

	assert.Len(t, buyer.buys, 1, "second buy inside the cooldown window is skipped")
}

func TestQueue_AutoBuyDisabled(t *testing.T) {
	store := persistence.NewMemory()
	buyer := &fakeBuyer{}
	q := newTestQueue(t, Config{AutoBuy: false}, store, buyer)

	q.process(context.Background(), launch(5))
	assert.Empty(t, buyer.buys)
}

func TestQueue_FunderLinkRecorded(t *testing.T) {
	store := persistence.NewMemory()
	q := newTestQueue(t, Config{}, store, nil)

	ev := launch(6)
	ev.Funder = solana.PublicKey{0xF0}
	q.process(context.Background(), ev)

	// Only observable through the store contract; no error means recorded.
	seen, err := store.HasCreator(context.Background(), ev.Creator)
	require.NoError(t, err)
	assert.True(t, seen)
}
