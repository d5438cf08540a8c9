// internal/decoder/decoder_test.go
package decoder

import (
	"encoding/binary"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func pk(n byte) solana.PublicKey {
	var out solana.PublicKey
	out[0] = n
	return out
}

var (
	testProgram = pk(0xAA)
	testMint    = pk(0xBB)
	testPayer   = pk(0xCC)
	testCreator = pk(0xDD)
)

func borshString(s string) []byte {
	out := make([]byte, 4, 4+len(s))
	binary.LittleEndian.PutUint32(out, uint32(len(s)))
	return append(out, s...)
}

func createData(withCreator bool) []byte {
	data := append([]byte{}, CreateDiscriminator...)
	data = append(data, borshString("Test Token")...)
	data = append(data, borshString("TT")...)
	data = append(data, borshString("https://example.invalid/meta.json")...)
	if withCreator {
		data = append(data, testCreator.Bytes()...)
	}
	return data
}

// createTx builds a transaction whose static keys are
// [payer, mint, program] with the create instruction placed either top-level
// or inside inner instructions.
func createTx(inner bool, data []byte) (*solana.Transaction, *rpc.TransactionMeta) {
	createIx := solana.CompiledInstruction{
		ProgramIDIndex: 2,
		Accounts:       []uint16{1},
		Data:           data,
	}

	tx := &solana.Transaction{
		Message: solana.Message{
			Header:      solana.MessageHeader{NumRequiredSignatures: 1},
			AccountKeys: []solana.PublicKey{testPayer, testMint, testProgram},
		},
	}
	meta := &rpc.TransactionMeta{}

	if inner {
		// Top level carries an unrelated instruction; the create hides in
		// the inner list.
		tx.Message.Instructions = []solana.CompiledInstruction{
			{ProgramIDIndex: 2, Accounts: []uint16{0}, Data: []byte{0x01}},
		}
		meta.InnerInstructions = []rpc.InnerInstruction{
			{Index: 0, Instructions: []solana.CompiledInstruction{createIx}},
		}
	} else {
		tx.Message.Instructions = []solana.CompiledInstruction{createIx}
	}
	return tx, meta
}

func TestDecodeCreate_TopLevel(t *testing.T) {
	dec := NewLaunchDecoder(testProgram, zaptest.NewLogger(t))
	tx, meta := createTx(false, createData(false))

	ev := dec.DecodeCreate(tx, meta)
	require.NotNil(t, ev)
	assert.Equal(t, testMint, ev.Mint)
	assert.Equal(t, testPayer, ev.Creator, "creator defaults to the fee payer")
	assert.Equal(t, testPayer, ev.Funder)
	assert.Equal(t, "Test Token", ev.Name)
	assert.Equal(t, "TT", ev.Symbol)
	assert.Equal(t, "https://example.invalid/meta.json", ev.URI)
}

func TestDecodeCreate_InnerInstructionOnly(t *testing.T) {
	dec := NewLaunchDecoder(testProgram, zaptest.NewLogger(t))
	tx, meta := createTx(true, createData(false))

	ev := dec.DecodeCreate(tx, meta)
	require.NotNil(t, ev, "create hidden in inner instructions must still be found")
	assert.Equal(t, testMint, ev.Mint)
}

func TestDecodeCreate_ExplicitCreator(t *testing.T) {
	dec := NewLaunchDecoder(testProgram, zaptest.NewLogger(t))
	tx, meta := createTx(false, createData(true))

	ev := dec.DecodeCreate(tx, meta)
	require.NotNil(t, ev)
	assert.Equal(t, testCreator, ev.Creator, "trailing creator key wins over the fee payer")
	assert.Equal(t, testPayer, ev.Funder)
}

func TestDecodeCreate_FailedTransaction(t *testing.T) {
	dec := NewLaunchDecoder(testProgram, zaptest.NewLogger(t))
	tx, meta := createTx(false, createData(false))
	meta.Err = map[string]interface{}{"InstructionError": []interface{}{0, "Custom"}}

	assert.Nil(t, dec.DecodeCreate(tx, meta), "failed transactions never yield events")
}

func TestDecodeCreate_NoResolvableMint(t *testing.T) {
	dec := NewLaunchDecoder(testProgram, zaptest.NewLogger(t))

	tx := &solana.Transaction{
		Message: solana.Message{
			Header:      solana.MessageHeader{NumRequiredSignatures: 1},
			AccountKeys: []solana.PublicKey{testPayer, testProgram},
			Instructions: []solana.CompiledInstruction{
				{ProgramIDIndex: 1, Accounts: nil, Data: createData(false)},
			},
		},
	}
	meta := &rpc.TransactionMeta{}

	assert.Nil(t, dec.DecodeCreate(tx, meta), "no event without an asset identifier")
}

func TestDecodeCreate_WrongDiscriminator(t *testing.T) {
	dec := NewLaunchDecoder(testProgram, zaptest.NewLogger(t))
	data := append([]byte{}, BuyDiscriminator...)
	data = append(data, borshString("x")...)
	tx, meta := createTx(false, data)

	assert.Nil(t, dec.DecodeCreate(tx, meta))
}

func TestDecodeCreate_MintViaAddressTable(t *testing.T) {
	dec := NewLaunchDecoder(testProgram, zaptest.NewLogger(t))

	// Static keys hold only payer and program; the mint arrives through the
	// loaded address table, so account index 2 points past the static list.
	tx := &solana.Transaction{
		Message: solana.Message{
			Header:      solana.MessageHeader{NumRequiredSignatures: 1},
			AccountKeys: []solana.PublicKey{testPayer, testProgram},
			Instructions: []solana.CompiledInstruction{
				{ProgramIDIndex: 1, Accounts: []uint16{2}, Data: createData(false)},
			},
		},
	}
	meta := &rpc.TransactionMeta{
		LoadedAddresses: rpc.LoadedAddresses{
			Writable: []solana.PublicKey{testMint},
		},
	}

	ev := dec.DecodeCreate(tx, meta)
	require.NotNil(t, ev)
	assert.Equal(t, testMint, ev.Mint)
}

func TestDecodeCreate_MintConfirmedByTokenBalances(t *testing.T) {
	dec := NewLaunchDecoder(testProgram, zaptest.NewLogger(t))
	tx, meta := createTx(false, createData(false))

	// Post balances referencing a different mint disqualify the first
	// account; majority inference takes over.
	other := pk(0xEE)
	meta.PostTokenBalances = []rpc.TokenBalance{
		{AccountIndex: 1, Mint: other},
		{AccountIndex: 2, Mint: other},
	}

	ev := dec.DecodeCreate(tx, meta)
	require.NotNil(t, ev)
	assert.Equal(t, other, ev.Mint)
}
