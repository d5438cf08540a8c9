// internal/submitter/submitter_test.go
package submitter

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/curvelab/pumpsentry/internal/wallet"
)

// fakeSender scripts per-signature confirmation behavior: the Nth send
// yields signature {N} and the status table decides its fate.
type fakeSender struct {
	mu       sync.Mutex
	sends    int
	statuses map[byte]*rpc.SignatureStatusesResult
}

func newFakeSender() *fakeSender {
	return &fakeSender{statuses: make(map[byte]*rpc.SignatureStatusesResult)}
}

func (f *fakeSender) LatestBlockhash(context.Context) (solana.Hash, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return solana.Hash{byte(f.sends + 1)}, nil
}

func (f *fakeSender) SendTransaction(_ context.Context, _ *solana.Transaction) (solana.Signature, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sends++
	return solana.Signature{byte(f.sends)}, nil
}

func (f *fakeSender) SignatureStatuses(_ context.Context, sigs ...solana.Signature) (*rpc.GetSignatureStatusesResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := &rpc.GetSignatureStatusesResult{}
	for _, sig := range sigs {
		out.Value = append(out.Value, f.statuses[sig[0]])
	}
	return out, nil
}

func (f *fakeSender) sendCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sends
}

func (f *fakeSender) setStatus(sigByte byte, status *rpc.SignatureStatusesResult) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses[sigByte] = status
}

func confirmedStatus() *rpc.SignatureStatusesResult {
	return &rpc.SignatureStatusesResult{ConfirmationStatus: rpc.ConfirmationStatusConfirmed}
}

func testSigner(t *testing.T) *wallet.Wallet {
	t.Helper()
	priv := solana.NewWallet().PrivateKey
	w, err := wallet.New(base58.Encode(priv))
	require.NoError(t, err)
	return w
}

func testSubmitter(t *testing.T, sender *fakeSender) *Submitter {
	t.Helper()
	return New(sender, nil, testSigner(t), nil, Config{
		ComputeUnits:        100_000,
		PriorityFeeLamports: 100_000,
		ProcessedTimeout:    80 * time.Millisecond,
		ConfirmedTimeout:    80 * time.Millisecond,
		StatusPollInterval:  10 * time.Millisecond,
	}, zaptest.NewLogger(t))
}

func TestSubmit_Confirms(t *testing.T) {
	sender := newFakeSender()
	sender.setStatus(1, confirmedStatus())
	s := testSubmitter(t, sender)

	sig, err := s.Submit(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, byte(1), sig[0])
	assert.Equal(t, 1, sender.sendCount())
}

func TestSubmit_TimeoutResubmitsExactlyOnce(t *testing.T) {
	sender := newFakeSender()
	// First signature never lands; the second confirms immediately.
	sender.setStatus(2, confirmedStatus())
	s := testSubmitter(t, sender)

	sig, err := s.Submit(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, byte(2), sig[0], "result is the resubmitted transaction")
	assert.Equal(t, 2, sender.sendCount())
}

func TestSubmit_SecondTimeoutIsTerminal(t *testing.T) {
	sender := newFakeSender()
	s := testSubmitter(t, sender)

	_, err := s.Submit(context.Background(), nil)
	require.ErrorIs(t, err, ErrConfirmTimeout)
	assert.Equal(t, 2, sender.sendCount(), "no third attempt after the second timeout")
}

func TestSubmit_OnChainErrorIsTerminal(t *testing.T) {
	sender := newFakeSender()
	sender.setStatus(1, &rpc.SignatureStatusesResult{
		Err:                map[string]interface{}{"InstructionError": "slippage"},
		ConfirmationStatus: rpc.ConfirmationStatusConfirmed,
	})
	s := testSubmitter(t, sender)

	_, err := s.Submit(context.Background(), nil)
	require.ErrorIs(t, err, ErrOnChainFailure)
	assert.Equal(t, 1, sender.sendCount(), "on-chain failure is never retried")
}

func TestCommitmentReached(t *testing.T) {
	assert.True(t, commitmentReached(rpc.ConfirmationStatusConfirmed, rpc.CommitmentProcessed))
	assert.True(t, commitmentReached(rpc.ConfirmationStatusFinalized, rpc.CommitmentConfirmed))
	assert.False(t, commitmentReached(rpc.ConfirmationStatusProcessed, rpc.CommitmentConfirmed))
	assert.False(t, commitmentReached("", rpc.CommitmentProcessed))
}
