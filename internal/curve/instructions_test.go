// internal/curve/instructions_test.go
package curve

import (
	"encoding/binary"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/curvelab/pumpsentry/internal/wallet"
)

func testWallet(t *testing.T) *wallet.Wallet {
	t.Helper()
	priv := solana.NewWallet().PrivateKey
	w, err := wallet.New(base58.Encode(priv))
	require.NoError(t, err)
	return w
}

func testSetup(t *testing.T) (Addresses, TradeAccounts, *wallet.Wallet) {
	t.Helper()
	program := solana.MustPublicKeyFromBase58("6EF8rrecthR5Dkzon8Nwu78hRvfCKubJ14M5uBEwF6P")
	addrs, err := ResolveAddresses(program)
	require.NoError(t, err)
	addrs.FeeRecipient = solana.PublicKey{0xFE}

	accounts := TradeAccounts{
		Mint:                   solana.PublicKey{0x01},
		BondingCurve:           solana.PublicKey{0x02},
		AssociatedBondingCurve: solana.PublicKey{0x03},
	}
	return addrs, accounts, testWallet(t)
}

func TestResolveAddresses(t *testing.T) {
	program := solana.MustPublicKeyFromBase58("6EF8rrecthR5Dkzon8Nwu78hRvfCKubJ14M5uBEwF6P")
	addrs, err := ResolveAddresses(program)
	require.NoError(t, err)

	assert.Equal(t, program, addrs.Program)
	assert.False(t, addrs.Global.IsZero())
	assert.False(t, addrs.EventAuthority.IsZero())
	assert.True(t, addrs.FeeRecipient.IsZero(), "fee recipient is filled from the warmed global account")
}

func TestBuildSellInstruction(t *testing.T) {
	addrs, accounts, w := testSetup(t)

	ix, err := BuildSellInstruction(addrs, accounts, w, 1_000_000, 45_000_000)
	require.NoError(t, err)

	assert.Equal(t, addrs.Program, ix.ProgramID())

	data, err := ix.Data()
	require.NoError(t, err)
	require.Len(t, data, 24, "discriminator + amount + limit")
	assert.Equal(t, sellDiscriminator, data[:8])
	assert.Equal(t, uint64(1_000_000), binary.LittleEndian.Uint64(data[8:16]))
	assert.Equal(t, uint64(45_000_000), binary.LittleEndian.Uint64(data[16:24]))

	metas := ix.Accounts()
	require.Len(t, metas, 12)
	assert.Equal(t, addrs.Global, metas[0].PublicKey)
	assert.Equal(t, addrs.FeeRecipient, metas[1].PublicKey)
	assert.Equal(t, accounts.Mint, metas[2].PublicKey)
	assert.Equal(t, accounts.BondingCurve, metas[3].PublicKey)
	assert.Equal(t, accounts.AssociatedBondingCurve, metas[4].PublicKey)
	assert.Equal(t, w.PublicKey, metas[6].PublicKey)
	assert.True(t, metas[6].IsSigner)
	assert.Equal(t, AssociatedTokenProgramID, metas[9].PublicKey)
}

func TestBuildBuyInstruction(t *testing.T) {
	addrs, accounts, w := testSetup(t)

	ix, err := BuildBuyInstruction(addrs, accounts, w, 500_000, 60_000_000)
	require.NoError(t, err)

	data, err := ix.Data()
	require.NoError(t, err)
	assert.Equal(t, buyDiscriminator, data[:8])
	assert.Equal(t, uint64(500_000), binary.LittleEndian.Uint64(data[8:16]))
	assert.Equal(t, uint64(60_000_000), binary.LittleEndian.Uint64(data[16:24]))

	metas := ix.Accounts()
	require.Len(t, metas, 12)
	assert.Equal(t, SysvarRentPubkey, metas[9].PublicKey, "buy carries the rent sysvar where sell carries the ATA program")
}

func TestBuildCreateATAInstruction(t *testing.T) {
	owner := solana.PublicKey{0x10}
	mint := solana.PublicKey{0x20}

	ix, err := BuildCreateATAInstruction(owner, owner, mint)
	require.NoError(t, err)
	assert.Equal(t, AssociatedTokenProgramID, ix.ProgramID())

	data, err := ix.Data()
	require.NoError(t, err)
	assert.Empty(t, data)

	metas := ix.Accounts()
	require.Len(t, metas, 7)
	expected, _, err := solana.FindAssociatedTokenAddress(owner, mint)
	require.NoError(t, err)
	assert.Equal(t, expected, metas[1].PublicKey)
}
