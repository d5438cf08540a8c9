// ==============================================
// File: internal/decoder/buy.go
// ==============================================
package decoder

import (
	"encoding/binary"
	"math/big"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"go.uber.org/zap"
)

const systemIxTransfer = 2

// WalletBuy is a reconstructed purchase by the tracked wallet.
// CostLamports is the curve cost attributable to the wallet, excluding the
// network fee and the rent deposit of a freshly created token account.
type WalletBuy struct {
	Mint         solana.PublicKey
	TokenDelta   *big.Int
	CostLamports *big.Int
	FeeLamports  uint64
}

// BuyDecoder recognizes purchases of the tracked wallet against the target
// program.
type BuyDecoder struct {
	program solana.PublicKey
	wallet  solana.PublicKey
	logger  *zap.Logger
}

func NewBuyDecoder(program, wallet solana.PublicKey, logger *zap.Logger) *BuyDecoder {
	return &BuyDecoder{program: program, wallet: wallet, logger: logger.Named("buy-decoder")}
}

// DecodeBuy returns the wallet's purchase carried by tx, or nil when the
// transaction is not a buy: failed on-chain, program untouched, wallet not a
// signer, no positive token delta, or zero/negative SOL cost (an airdrop or
// plain transfer).
func (d *BuyDecoder) DecodeBuy(tx *solana.Transaction, meta *rpc.TransactionMeta) *WalletBuy {
	if tx == nil || meta == nil || meta.Err != nil {
		return nil
	}

	keys := AccountTable(tx, meta)

	if !touchesProgram(tx, meta, keys, d.program) {
		return nil
	}
	if !tx.Message.IsSigner(d.wallet) {
		return nil
	}
	walletIdx := indexOf(keys, d.wallet)
	if walletIdx < 0 {
		return nil
	}

	mint, delta, ataIdx := d.largestWalletDelta(meta)
	if delta == nil || delta.Sign() <= 0 {
		return nil
	}

	cost := d.transferCost(tx, meta, keys, ataIdx)
	if cost == nil || cost.Sign() <= 0 {
		cost = d.balanceCost(meta, walletIdx, ataIdx)
	}
	if cost == nil || cost.Sign() <= 0 {
		d.logger.Debug("no positive SOL cost attributable to wallet, not a buy",
			zap.String("mint", mint.String()))
		return nil
	}

	return &WalletBuy{
		Mint:         mint,
		TokenDelta:   delta,
		CostLamports: cost,
		FeeLamports:  meta.Fee,
	}
}

// largestWalletDelta finds the biggest positive token-balance delta across
// mints for accounts owned by the wallet; that mint is "the" purchased
// asset. Returns the index of the wallet's token account in the combined
// key table alongside.
func (d *BuyDecoder) largestWalletDelta(meta *rpc.TransactionMeta) (solana.PublicKey, *big.Int, int) {
	pre := make(map[uint16]*big.Int)
	for _, tb := range meta.PreTokenBalances {
		if tb.Owner != nil && tb.Owner.Equals(d.wallet) {
			pre[tb.AccountIndex] = amountBig(tb)
		}
	}

	var (
		bestMint  solana.PublicKey
		bestDelta *big.Int
		bestIdx   = -1
	)
	for _, tb := range meta.PostTokenBalances {
		if tb.Owner == nil || !tb.Owner.Equals(d.wallet) {
			continue
		}
		delta := amountBig(tb)
		if before, ok := pre[tb.AccountIndex]; ok {
			delta = new(big.Int).Sub(delta, before)
		}
		if delta.Sign() > 0 && (bestDelta == nil || delta.Cmp(bestDelta) > 0) {
			bestMint = tb.Mint
			bestDelta = delta
			bestIdx = int(tb.AccountIndex)
		}
	}
	return bestMint, bestDelta, bestIdx
}

// transferCost sums native transfers originating from the wallet across all
// instructions, excluding the rent deposit into the wallet's own token
// account.
func (d *BuyDecoder) transferCost(tx *solana.Transaction, meta *rpc.TransactionMeta, keys []solana.PublicKey, ataIdx int) *big.Int {
	total := new(big.Int)
	found := false
	for _, ix := range walkInstructions(tx, meta) {
		if int(ix.ProgramIDIndex) >= len(keys) || !keys[ix.ProgramIDIndex].Equals(solana.SystemProgramID) {
			continue
		}
		data := []byte(ix.Data)
		if len(data) < 12 || binary.LittleEndian.Uint32(data[0:4]) != systemIxTransfer {
			continue
		}
		if len(ix.Accounts) < 2 {
			continue
		}
		from, to := int(ix.Accounts[0]), int(ix.Accounts[1])
		if from >= len(keys) || !keys[from].Equals(d.wallet) {
			continue
		}
		if ataIdx >= 0 && to == ataIdx {
			continue // rent deposit into the wallet's own token account
		}
		lamports := binary.LittleEndian.Uint64(data[4:12])
		total.Add(total, new(big.Int).SetUint64(lamports))
		found = true
	}
	if !found {
		return nil
	}
	return total
}

// balanceCost is the fallback when no transfers are parseable:
// preBalance - postBalance - networkFee - rentDelta.
func (d *BuyDecoder) balanceCost(meta *rpc.TransactionMeta, walletIdx, ataIdx int) *big.Int {
	if walletIdx >= len(meta.PreBalances) || walletIdx >= len(meta.PostBalances) {
		return nil
	}
	cost := new(big.Int).SetUint64(meta.PreBalances[walletIdx])
	cost.Sub(cost, new(big.Int).SetUint64(meta.PostBalances[walletIdx]))
	cost.Sub(cost, new(big.Int).SetUint64(meta.Fee))

	if ataIdx >= 0 && ataIdx < len(meta.PreBalances) && ataIdx < len(meta.PostBalances) {
		rentDelta := new(big.Int).SetUint64(meta.PostBalances[ataIdx])
		rentDelta.Sub(rentDelta, new(big.Int).SetUint64(meta.PreBalances[ataIdx]))
		if rentDelta.Sign() > 0 {
			cost.Sub(cost, rentDelta)
		}
	}
	return cost
}

func touchesProgram(tx *solana.Transaction, meta *rpc.TransactionMeta, keys []solana.PublicKey, program solana.PublicKey) bool {
	for _, ix := range walkInstructions(tx, meta) {
		if int(ix.ProgramIDIndex) < len(keys) && keys[ix.ProgramIDIndex].Equals(program) {
			return true
		}
	}
	return false
}

func indexOf(keys []solana.PublicKey, key solana.PublicKey) int {
	for i, k := range keys {
		if k.Equals(key) {
			return i
		}
	}
	return -1
}

func amountBig(tb rpc.TokenBalance) *big.Int {
	out := new(big.Int)
	if tb.UiTokenAmount == nil {
		return out
	}
	if _, ok := out.SetString(tb.UiTokenAmount.Amount, 10); !ok {
		return new(big.Int)
	}
	return out
}
