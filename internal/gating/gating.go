// ==============================================
// File: internal/gating/gating.go
// ==============================================
package gating

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"

	"github.com/curvelab/pumpsentry/internal/domain"
)

// CreatorHistory is the slice of the persistence store the gate consults.
type CreatorHistory interface {
	CreatorCreateCount(ctx context.Context, creator solana.PublicKey) (int, error)
}

// Verdict is the gate's answer for one launch candidate. Reasons list every
// failed check, not just the first.
type Verdict struct {
	Accepted bool
	Reasons  []string
}

// Config bounds what the gate tolerates.
type Config struct {
	// MaxCreatorUses rejects creators already seen this many times or more.
	// Zero disables the check.
	MaxCreatorUses int
	MaxNameLen     int
	MaxSymbolLen   int
}

func (c *Config) withDefaults() Config {
	out := *c
	if out.MaxNameLen == 0 {
		out.MaxNameLen = 64
	}
	if out.MaxSymbolLen == 0 {
		out.MaxSymbolLen = 12
	}
	return out
}

// Gate filters launch candidates before any entry is considered. It is
// opaque to the rest of the pipeline: accepted or not, with reasons.
type Gate struct {
	cfg     Config
	history CreatorHistory
	logger  *zap.Logger
}

func New(cfg Config, history CreatorHistory, logger *zap.Logger) *Gate {
	return &Gate{
		cfg:     cfg.withDefaults(),
		history: history,
		logger:  logger.Named("gating"),
	}
}

// Evaluate runs every check and aggregates the failures. A history lookup
// error fails open for that check; a flaky database must not veto entries.
func (g *Gate) Evaluate(ctx context.Context, candidate domain.LaunchEvent) Verdict {
	var reasons []string

	if name := strings.TrimSpace(candidate.Name); name == "" {
		reasons = append(reasons, "empty name")
	} else if len(name) > g.cfg.MaxNameLen {
		reasons = append(reasons, fmt.Sprintf("name longer than %d", g.cfg.MaxNameLen))
	}

	symbol := strings.TrimSpace(candidate.Symbol)
	switch {
	case symbol == "":
		reasons = append(reasons, "empty symbol")
	case len(symbol) > g.cfg.MaxSymbolLen:
		reasons = append(reasons, fmt.Sprintf("symbol longer than %d", g.cfg.MaxSymbolLen))
	case !printable(symbol):
		reasons = append(reasons, "symbol contains non-printable characters")
	}

	if candidate.Creator.IsZero() {
		reasons = append(reasons, "unresolved creator")
	} else if g.cfg.MaxCreatorUses > 0 && g.history != nil {
		count, err := g.history.CreatorCreateCount(ctx, candidate.Creator)
		if err != nil {
			g.logger.Warn("creator history lookup failed, check skipped",
				zap.String("creator", candidate.Creator.String()),
				zap.Error(err))
		} else if count >= g.cfg.MaxCreatorUses {
			reasons = append(reasons, fmt.Sprintf("creator used %d times (limit %d)", count, g.cfg.MaxCreatorUses))
		}
	}

	return Verdict{Accepted: len(reasons) == 0, Reasons: reasons}
}

func printable(s string) bool {
	for _, r := range s {
		if !unicode.IsPrint(r) {
			return false
		}
	}
	return true
}
