// internal/detector/gate_test.go
package detector

import (
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sigN(n byte) solana.Signature {
	var sig solana.Signature
	sig[0] = n
	return sig
}

func TestSignatureGate_AtMostOnce(t *testing.T) {
	gate := NewSignatureGate(10)
	sig := sigN(1)

	require.True(t, gate.Begin(sig), "first claim must succeed")
	assert.False(t, gate.Begin(sig), "claim while in flight must fail")

	gate.Done(sig, true)
	assert.False(t, gate.Begin(sig), "claim after successful handling must fail")
}

func TestSignatureGate_DualPathDuplicate(t *testing.T) {
	// The same signature observed via push and poll within one processing
	// window yields exactly one handled claim.
	gate := NewSignatureGate(10)
	sig := sigN(2)

	claims := 0
	if gate.Begin(sig) { // push path
		claims++
		gate.Done(sig, true)
	}
	if gate.Begin(sig) { // poll path
		claims++
		gate.Done(sig, true)
	}
	assert.Equal(t, 1, claims)
}

func TestSignatureGate_UnhandledMayRetry(t *testing.T) {
	gate := NewSignatureGate(10)
	sig := sigN(3)

	require.True(t, gate.Begin(sig))
	gate.Done(sig, false) // fetch never succeeded

	assert.True(t, gate.Begin(sig), "an unhandled signature is claimable again")
}

func TestSignatureGate_EvictsOldestFirst(t *testing.T) {
	gate := NewSignatureGate(2)

	for i := byte(1); i <= 3; i++ {
		require.True(t, gate.Begin(sigN(i)))
		gate.Done(sigN(i), true)
	}

	// Capacity 2: sig 1 evicted, 2 and 3 still remembered.
	assert.True(t, gate.Begin(sigN(1)), "evicted signature is claimable again")
	assert.False(t, gate.Begin(sigN(2)))
	assert.False(t, gate.Begin(sigN(3)))
}

func TestSignatureGate_Seen(t *testing.T) {
	gate := NewSignatureGate(10)
	sig := sigN(4)

	assert.False(t, gate.Seen(sig))
	gate.Begin(sig)
	assert.True(t, gate.Seen(sig), "in-flight counts as seen")
	gate.Done(sig, true)
	assert.True(t, gate.Seen(sig), "processed counts as seen")
}
