// ==============================================
// File: internal/decoder/decoder.go
// ==============================================
package decoder

import (
	"bytes"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"go.uber.org/zap"
)

// Anchor instruction discriminators of the bonding-curve program
// (sha256("global:<name>")[:8]).
var (
	CreateDiscriminator = []byte{0x18, 0x1e, 0xc8, 0x28, 0x05, 0x1c, 0x07, 0x77}
	BuyDiscriminator    = []byte{0x66, 0x06, 0x3d, 0x12, 0x01, 0xda, 0xeb, 0xea}
	SellDiscriminator   = []byte{0x33, 0xe6, 0x85, 0xa4, 0x01, 0x7f, 0x83, 0xad}
)

// CreateLogMarker is the cheap pre-filter applied to log notifications
// before any transaction fetch.
const CreateLogMarker = "Program log: Instruction: Create"

// SPL token program InitializeMint variants, used by the last-resort mint
// inference.
const (
	tokenIxInitializeMint  = 0
	tokenIxInitializeMint2 = 20
)

// CreateEvent is the decoded payload of a "create" instruction. Signature,
// slot and block time are attached by the caller that fetched the
// transaction.
type CreateEvent struct {
	Mint    solana.PublicKey
	Creator solana.PublicKey
	// Funder is the fee payer; it differs from Creator when the launch was
	// bankrolled by another wallet.
	Funder solana.PublicKey
	Name   string
	Symbol string
	URI    string
}

type createArgs struct {
	Name   string
	Symbol string
	URI    string
}

// LaunchDecoder extracts "create" instructions from confirmed transactions.
type LaunchDecoder struct {
	program solana.PublicKey
	logger  *zap.Logger
}

func NewLaunchDecoder(program solana.PublicKey, logger *zap.Logger) *LaunchDecoder {
	return &LaunchDecoder{program: program, logger: logger.Named("decoder")}
}

// DecodeCreate returns the create event found in tx, or nil when the
// transaction carries none. Decode failures and wrong discriminators are
// not errors: they just mean "keep searching". A transaction that failed
// on-chain never yields an event.
func (d *LaunchDecoder) DecodeCreate(tx *solana.Transaction, meta *rpc.TransactionMeta) *CreateEvent {
	if tx == nil || meta == nil || meta.Err != nil {
		return nil
	}

	keys := AccountTable(tx, meta)

	for _, ix := range walkInstructions(tx, meta) {
		if int(ix.ProgramIDIndex) >= len(keys) || !keys[ix.ProgramIDIndex].Equals(d.program) {
			continue
		}
		data := []byte(ix.Data)
		if len(data) < 8 || !bytes.Equal(data[:8], CreateDiscriminator) {
			continue
		}

		var args createArgs
		dec := bin.NewBorshDecoder(data[8:])
		if err := dec.Decode(&args); err != nil {
			// Unknown layout revision; not a create for our purposes.
			continue
		}

		// Newer program revisions append the creator key to the args.
		var explicitCreator *solana.PublicKey
		if dec.Remaining() >= 32 {
			var pk solana.PublicKey
			if err := dec.Decode(&pk); err == nil && !pk.IsZero() {
				explicitCreator = &pk
			}
		}

		mint := d.resolveMint(ix, keys, tx, meta)
		if mint.IsZero() {
			// No identifier could be inferred: emit nothing.
			d.logger.Debug("create instruction without resolvable mint, skipping")
			continue
		}

		creator := feePayer(tx)
		if explicitCreator != nil {
			creator = *explicitCreator
		}

		return &CreateEvent{
			Mint:    mint,
			Creator: creator,
			Funder:  feePayer(tx),
			Name:    args.Name,
			Symbol:  args.Symbol,
			URI:     args.URI,
		}
	}
	return nil
}

// resolveMint picks the new asset identifier for a create instruction.
// Account layouts vary across program revisions, so the instruction's first
// account is trusted only when the post-transaction token balances confirm
// it is a mint; after that the fallbacks of the detection contract apply.
func (d *LaunchDecoder) resolveMint(ix solana.CompiledInstruction, keys []solana.PublicKey, tx *solana.Transaction, meta *rpc.TransactionMeta) solana.PublicKey {
	if len(ix.Accounts) > 0 && int(ix.Accounts[0]) < len(keys) {
		candidate := keys[ix.Accounts[0]]
		if len(meta.PostTokenBalances) == 0 {
			return candidate
		}
		for _, tb := range meta.PostTokenBalances {
			if tb.Mint.Equals(candidate) {
				return candidate
			}
		}
	}

	if mint := majorityMint(meta); !mint.IsZero() {
		return mint
	}
	return mintFromInitializeMint(tx, meta, keys)
}

// majorityMint infers the mint by majority occurrence across post-balance
// entries.
func majorityMint(meta *rpc.TransactionMeta) solana.PublicKey {
	counts := make(map[solana.PublicKey]int)
	for _, tb := range meta.PostTokenBalances {
		counts[tb.Mint]++
	}
	var best solana.PublicKey
	bestCount := 0
	for mint, n := range counts {
		if n > bestCount {
			best, bestCount = mint, n
		}
	}
	return best
}

// mintFromInitializeMint re-parses inner instructions with a token-program
// view and takes the mint of an InitializeMint/InitializeMint2 operation.
func mintFromInitializeMint(tx *solana.Transaction, meta *rpc.TransactionMeta, keys []solana.PublicKey) solana.PublicKey {
	for _, ix := range walkInstructions(tx, meta) {
		if int(ix.ProgramIDIndex) >= len(keys) || !keys[ix.ProgramIDIndex].Equals(solana.TokenProgramID) {
			continue
		}
		data := []byte(ix.Data)
		if len(data) == 0 {
			continue
		}
		if data[0] != tokenIxInitializeMint && data[0] != tokenIxInitializeMint2 {
			continue
		}
		if len(ix.Accounts) > 0 && int(ix.Accounts[0]) < len(keys) {
			return keys[ix.Accounts[0]]
		}
	}
	return solana.PublicKey{}
}

// AccountTable reconstructs the full account-key address space of a
// (possibly versioned) transaction: static keys followed by keys loaded
// from address-lookup tables, writable before readonly. Balance entries and
// instruction indices refer into this combined table.
func AccountTable(tx *solana.Transaction, meta *rpc.TransactionMeta) []solana.PublicKey {
	keys := make([]solana.PublicKey, 0,
		len(tx.Message.AccountKeys)+len(meta.LoadedAddresses.Writable)+len(meta.LoadedAddresses.ReadOnly))
	keys = append(keys, tx.Message.AccountKeys...)
	keys = append(keys, meta.LoadedAddresses.Writable...)
	keys = append(keys, meta.LoadedAddresses.ReadOnly...)
	return keys
}

// walkInstructions yields top-level instructions followed by inner
// instructions; the instruction of interest may live in either depending on
// transaction shape.
func walkInstructions(tx *solana.Transaction, meta *rpc.TransactionMeta) []solana.CompiledInstruction {
	out := make([]solana.CompiledInstruction, 0, len(tx.Message.Instructions))
	out = append(out, tx.Message.Instructions...)
	for _, inner := range meta.InnerInstructions {
		out = append(out, inner.Instructions...)
	}
	return out
}

// feePayer is the transaction's designated authority account.
func feePayer(tx *solana.Transaction) solana.PublicKey {
	if len(tx.Message.AccountKeys) == 0 {
		return solana.PublicKey{}
	}
	return tx.Message.AccountKeys[0]
}
