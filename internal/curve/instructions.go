// ==============================================
// File: internal/curve/instructions.go
// ==============================================
package curve

import (
	"encoding/binary"
	"fmt"

	"github.com/gagliardetto/solana-go"

	"github.com/curvelab/pumpsentry/internal/wallet"
)

var (
	buyDiscriminator  = []byte{0x66, 0x06, 0x3d, 0x12, 0x01, 0xda, 0xeb, 0xea}
	sellDiscriminator = []byte{0x33, 0xe6, 0x85, 0xa4, 0x01, 0x7f, 0x83, 0xad}

	// SysvarRentPubkey is the rent sysvar expected in the buy account list.
	SysvarRentPubkey = solana.MustPublicKeyFromBase58("SysvarRent111111111111111111111111111111111")

	// AssociatedTokenProgramID is the SPL associated-token program.
	AssociatedTokenProgramID = solana.MustPublicKeyFromBase58("ATokenGPvbdGVxr1b2hvZbsiqW5xWH25efTNsLJA8knL")
)

// Addresses collects the program-level accounts every trade instruction
// references. Global and EventAuthority are PDAs of the program; derive them
// once with ResolveAddresses.
type Addresses struct {
	Program        solana.PublicKey
	Global         solana.PublicKey
	FeeRecipient   solana.PublicKey
	EventAuthority solana.PublicKey
}

// ResolveAddresses derives the program PDAs. FeeRecipient comes from the
// warmed global account and is filled in by the caller.
func ResolveAddresses(program solana.PublicKey) (Addresses, error) {
	global, _, err := solana.FindProgramAddress([][]byte{[]byte("global")}, program)
	if err != nil {
		return Addresses{}, fmt.Errorf("derive global PDA: %w", err)
	}
	eventAuthority, _, err := solana.FindProgramAddress([][]byte{[]byte("__event_authority")}, program)
	if err != nil {
		return Addresses{}, fmt.Errorf("derive event authority PDA: %w", err)
	}
	return Addresses{
		Program:        program,
		Global:         global,
		EventAuthority: eventAuthority,
	}, nil
}

// TradeAccounts are the per-asset accounts of a single trade.
type TradeAccounts struct {
	Mint                   solana.PublicKey
	BondingCurve           solana.PublicKey
	AssociatedBondingCurve solana.PublicKey
}

// BuildBuyInstruction assembles the buy instruction: amount is the token
// quantity requested, maxSolCost caps the lamports spent.
func BuildBuyInstruction(
	addrs Addresses,
	accounts TradeAccounts,
	userWallet *wallet.Wallet,
	amount, maxSolCost uint64,
) (solana.Instruction, error) {
	data := encodeTradeArgs(buyDiscriminator, amount, maxSolCost)

	associatedUser, err := userWallet.ATA(accounts.Mint)
	if err != nil {
		return nil, fmt.Errorf("derive user token account: %w", err)
	}

	// Account list must be in the exact order expected by the program.
	metas := []*solana.AccountMeta{
		{PublicKey: addrs.Global, IsSigner: false, IsWritable: false},
		{PublicKey: addrs.FeeRecipient, IsSigner: false, IsWritable: true},
		{PublicKey: accounts.Mint, IsSigner: false, IsWritable: false},
		{PublicKey: accounts.BondingCurve, IsSigner: false, IsWritable: true},
		{PublicKey: accounts.AssociatedBondingCurve, IsSigner: false, IsWritable: true},
		{PublicKey: associatedUser, IsSigner: false, IsWritable: true},
		{PublicKey: userWallet.PublicKey, IsSigner: true, IsWritable: true},
		{PublicKey: solana.SystemProgramID, IsSigner: false, IsWritable: false},
		{PublicKey: solana.TokenProgramID, IsSigner: false, IsWritable: false},
		{PublicKey: SysvarRentPubkey, IsSigner: false, IsWritable: false},
		{PublicKey: addrs.EventAuthority, IsSigner: false, IsWritable: false},
		{PublicKey: addrs.Program, IsSigner: false, IsWritable: false},
	}

	return solana.NewInstruction(addrs.Program, metas, data), nil
}

// BuildSellInstruction assembles the sell instruction: amount is the token
// quantity sold, minSolOutput is the slippage floor in lamports.
func BuildSellInstruction(
	addrs Addresses,
	accounts TradeAccounts,
	userWallet *wallet.Wallet,
	amount, minSolOutput uint64,
) (solana.Instruction, error) {
	data := encodeTradeArgs(sellDiscriminator, amount, minSolOutput)

	associatedUser, err := userWallet.ATA(accounts.Mint)
	if err != nil {
		return nil, fmt.Errorf("derive user token account: %w", err)
	}

	// Account list must be in the exact order expected by the program.
	metas := []*solana.AccountMeta{
		{PublicKey: addrs.Global, IsSigner: false, IsWritable: false},
		{PublicKey: addrs.FeeRecipient, IsSigner: false, IsWritable: true},
		{PublicKey: accounts.Mint, IsSigner: false, IsWritable: false},
		{PublicKey: accounts.BondingCurve, IsSigner: false, IsWritable: true},
		{PublicKey: accounts.AssociatedBondingCurve, IsSigner: false, IsWritable: true},
		{PublicKey: associatedUser, IsSigner: false, IsWritable: true},
		{PublicKey: userWallet.PublicKey, IsSigner: true, IsWritable: true},
		{PublicKey: solana.SystemProgramID, IsSigner: false, IsWritable: false},
		{PublicKey: solana.TokenProgramID, IsSigner: false, IsWritable: false},
		{PublicKey: AssociatedTokenProgramID, IsSigner: false, IsWritable: false},
		{PublicKey: addrs.EventAuthority, IsSigner: false, IsWritable: false},
		{PublicKey: addrs.Program, IsSigner: false, IsWritable: false},
	}

	return solana.NewInstruction(addrs.Program, metas, data), nil
}

// BuildCreateATAInstruction creates the user's associated token account via
// the associated-token program. Idempotent existence checks belong to the
// caller.
func BuildCreateATAInstruction(payer, owner, mint solana.PublicKey) (solana.Instruction, error) {
	associatedAddress, _, err := solana.FindAssociatedTokenAddress(owner, mint)
	if err != nil {
		return nil, fmt.Errorf("derive associated token address: %w", err)
	}

	metas := []*solana.AccountMeta{
		{PublicKey: payer, IsSigner: true, IsWritable: true},
		{PublicKey: associatedAddress, IsSigner: false, IsWritable: true},
		{PublicKey: owner, IsSigner: false, IsWritable: false},
		{PublicKey: mint, IsSigner: false, IsWritable: false},
		{PublicKey: solana.SystemProgramID, IsSigner: false, IsWritable: false},
		{PublicKey: solana.TokenProgramID, IsSigner: false, IsWritable: false},
		{PublicKey: AssociatedTokenProgramID, IsSigner: false, IsWritable: false},
	}

	return solana.NewInstruction(AssociatedTokenProgramID, metas, []byte{}), nil
}

func encodeTradeArgs(discriminator []byte, amount, limit uint64) []byte {
	data := make([]byte, 0, len(discriminator)+16)
	data = append(data, discriminator...)

	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], amount)
	data = append(data, buf[:]...)
	binary.LittleEndian.PutUint64(buf[:], limit)
	data = append(data, buf[:]...)

	return data
}
