// internal/detector/detector_test.go
package detector

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/curvelab/pumpsentry/internal/chain"
)

type fakeFetcher struct {
	mu sync.Mutex
	// failures is how many times a fetch must fail with NotFound before
	// succeeding; -1 fails forever.
	failures map[solana.Signature]int
	fetched  []solana.Signature
}

func (f *fakeFetcher) GetTransaction(_ context.Context, sig solana.Signature) (*rpc.GetTransactionResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if left, ok := f.failures[sig]; ok && left != 0 {
		if left > 0 {
			f.failures[sig] = left - 1
		}
		return nil, fmt.Errorf("transaction %s: %w", sig, chain.ErrNotFound)
	}
	f.fetched = append(f.fetched, sig)
	return &rpc.GetTransactionResult{}, nil
}

type fakeLister struct {
	mu    sync.Mutex
	pages [][]*rpc.TransactionSignature
	calls int
}

func (f *fakeLister) SignaturesForAddress(context.Context, solana.PublicKey, int) ([]*rpc.TransactionSignature, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.calls >= len(f.pages) {
		return f.pages[len(f.pages)-1], nil
	}
	page := f.pages[f.calls]
	f.calls++
	return page, nil
}

func entry(n byte) *rpc.TransactionSignature {
	return &rpc.TransactionSignature{Signature: sigN(n)}
}

func newTestWatcher(t *testing.T, fetcher TxFetcher, lister SignatureLister, handle txHandler) *watcher {
	t.Helper()
	return &watcher{
		cfg: Config{
			PollInterval: 10 * time.Millisecond,
			PollLimit:    25,
			FetchRetries: 3,
			FetchBackoff: time.Millisecond,
		},
		addr:    pkN(1),
		fetcher: fetcher,
		lister:  lister,
		gate:    NewSignatureGate(DefaultGateCapacity),
		handle:  handle,
		logger:  zaptest.NewLogger(t),
	}
}

func pkN(n byte) solana.PublicKey {
	var pk solana.PublicKey
	pk[0] = n
	return pk
}

func TestPollOnce_FirstPollOnlyPrimes(t *testing.T) {
	fetcher := &fakeFetcher{}
	lister := &fakeLister{pages: [][]*rpc.TransactionSignature{
		{entry(3), entry(2), entry(1)}, // newest first
	}}

	var handled []solana.Signature
	w := newTestWatcher(t, fetcher, lister, func(_ context.Context, sig solana.Signature, _ *rpc.GetTransactionResult) {
		handled = append(handled, sig)
	})

	require.NoError(t, w.pollOnce(context.Background()))
	assert.Empty(t, handled, "history before process start is never replayed")
	assert.Equal(t, sigN(3), w.lastSeen)
}

func TestPollOnce_ProcessesNewerOldestFirst(t *testing.T) {
	fetcher := &fakeFetcher{}
	lister := &fakeLister{pages: [][]*rpc.TransactionSignature{
		{entry(3), entry(2), entry(1)},
		{entry(5), entry(4), entry(3), entry(2)},
	}}

	var handled []solana.Signature
	w := newTestWatcher(t, fetcher, lister, func(_ context.Context, sig solana.Signature, _ *rpc.GetTransactionResult) {
		handled = append(handled, sig)
	})

	ctx := context.Background()
	require.NoError(t, w.pollOnce(ctx)) // primes at 3
	require.NoError(t, w.pollOnce(ctx))

	require.Len(t, handled, 2)
	assert.Equal(t, sigN(4), handled[0], "causal order: oldest of the fresh batch first")
	assert.Equal(t, sigN(5), handled[1])
}

func TestPollOnce_SkipsFailedEntries(t *testing.T) {
	failed := entry(4)
	failed.Err = map[string]interface{}{"InstructionError": 0}

	fetcher := &fakeFetcher{}
	lister := &fakeLister{pages: [][]*rpc.TransactionSignature{
		{entry(3)},
		{entry(5), failed, entry(3)},
	}}

	var handled []solana.Signature
	w := newTestWatcher(t, fetcher, lister, func(_ context.Context, sig solana.Signature, _ *rpc.GetTransactionResult) {
		handled = append(handled, sig)
	})

	ctx := context.Background()
	require.NoError(t, w.pollOnce(ctx))
	require.NoError(t, w.pollOnce(ctx))

	require.Len(t, handled, 1)
	assert.Equal(t, sigN(5), handled[0])
}

func TestProcess_RetriesUntilVisible(t *testing.T) {
	sig := sigN(7)
	fetcher := &fakeFetcher{failures: map[solana.Signature]int{sig: 2}}

	handled := 0
	w := newTestWatcher(t, fetcher, nil, func(context.Context, solana.Signature, *rpc.GetTransactionResult) {
		handled++
	})

	w.process(context.Background(), sig)
	assert.Equal(t, 1, handled, "fetch succeeds within the retry budget")
}

func TestProcess_DropsAfterRetryBudget(t *testing.T) {
	sig := sigN(8)
	fetcher := &fakeFetcher{failures: map[solana.Signature]int{sig: -1}}

	handled := 0
	w := newTestWatcher(t, fetcher, nil, func(context.Context, solana.Signature, *rpc.GetTransactionResult) {
		handled++
	})

	w.process(context.Background(), sig)
	assert.Zero(t, handled, "absence after the retry budget is dropped, not fatal")
	assert.True(t, w.gate.Begin(sig), "a dropped signature may be retried by a later observation")
}

func TestProcess_DuplicateAcrossPaths(t *testing.T) {
	sig := sigN(9)
	fetcher := &fakeFetcher{}

	handled := 0
	w := newTestWatcher(t, fetcher, nil, func(context.Context, solana.Signature, *rpc.GetTransactionResult) {
		handled++
	})

	w.process(context.Background(), sig) // push path
	w.process(context.Background(), sig) // poll path sees it again
	assert.Equal(t, 1, handled)
}
