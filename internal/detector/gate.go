// internal/detector/gate.go
package detector

import (
	"sync"

	"github.com/gagliardetto/solana-go"
)

// SignatureGate enforces at-most-once handling per signature across the
// push and poll paths. A signature entering either path is held in an
// in-flight set for the duration of its processing and moved to a
// bounded-size processed set on success, oldest evicted first.
type SignatureGate struct {
	mu        sync.Mutex
	inFlight  map[solana.Signature]struct{}
	processed map[solana.Signature]struct{}
	order     []solana.Signature
	capacity  int
}

const DefaultGateCapacity = 200

func NewSignatureGate(capacity int) *SignatureGate {
	if capacity <= 0 {
		capacity = DefaultGateCapacity
	}
	return &SignatureGate{
		inFlight:  make(map[solana.Signature]struct{}),
		processed: make(map[solana.Signature]struct{}),
		capacity:  capacity,
	}
}

// Begin claims sig for processing. It returns false when the signature is
// already in flight or already processed; the caller must skip it.
func (g *SignatureGate) Begin(sig solana.Signature) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.processed[sig]; ok {
		return false
	}
	if _, ok := g.inFlight[sig]; ok {
		return false
	}
	g.inFlight[sig] = struct{}{}
	return true
}

// Done releases the in-flight claim. When handled is true the signature is
// remembered so neither path ever handles it again; when false (e.g. the
// transaction never became visible) a later observation may retry it.
func (g *SignatureGate) Done(sig solana.Signature, handled bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	delete(g.inFlight, sig)
	if !handled {
		return
	}
	if _, ok := g.processed[sig]; ok {
		return
	}
	g.processed[sig] = struct{}{}
	g.order = append(g.order, sig)
	for len(g.order) > g.capacity {
		oldest := g.order[0]
		g.order = g.order[1:]
		delete(g.processed, oldest)
	}
}

// Seen reports whether sig is currently in flight or already processed.
func (g *SignatureGate) Seen(sig solana.Signature) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.processed[sig]; ok {
		return true
	}
	_, ok := g.inFlight[sig]
	return ok
}
