// internal/chain/errors.go
package chain

import "errors"

// Error kinds decided at the RPC boundary. Callers branch on these with
// errors.Is instead of matching message text.
var (
	// ErrNotFound: the account or transaction does not exist at the
	// queried commitment.
	ErrNotFound = errors.New("chain: not found")
	// ErrHalted: the market reports itself complete/migrated; terminal for
	// the position that observes it.
	ErrHalted = errors.New("chain: market halted")
	// ErrTransient: worth retrying with backoff.
	ErrTransient = errors.New("chain: transient failure")
)

func IsNotFound(err error) bool  { return errors.Is(err, ErrNotFound) }
func IsHalted(err error) bool    { return errors.Is(err, ErrHalted) }
func IsTransient(err error) bool { return errors.Is(err, ErrTransient) }
