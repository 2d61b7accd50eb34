package ingest

import (
	"encoding/json"
	"time"

	"github.com/mr-tron/base58"
	"github.com/shopspring/decimal"

	"github.com/walltrack/engine/pkg/models"
)

const nativeSOLMint = "So11111111111111111111111111111111111111112"

// rawTokenTransfer mirrors the shape of a provider's enhanced-transaction
// token transfer entry.
type rawTokenTransfer struct {
	Mint            string  `json:"mint"`
	FromUserAccount string  `json:"fromUserAccount"`
	ToUserAccount   string  `json:"toUserAccount"`
	TokenAmount     float64 `json:"tokenAmount"`
}

type rawNativeTransfer struct {
	FromUserAccount string `json:"fromUserAccount"`
	ToUserAccount   string `json:"toUserAccount"`
	Amount          int64  `json:"amount"` // lamports
}

// rawTransaction mirrors a single element of the provider webhook payload.
type rawTransaction struct {
	Signature       string              `json:"signature"`
	FeePayer        string              `json:"feePayer"`
	Slot            uint64              `json:"slot"`
	Timestamp       int64               `json:"timestamp"`
	Type            string              `json:"type"`
	Source          string              `json:"source"`
	TokenTransfers  []rawTokenTransfer  `json:"tokenTransfers"`
	NativeTransfers []rawNativeTransfer `json:"nativeTransfers"`
}

const lamportsPerSOL = 1_000_000_000

// knownDEXSources lists the swap-program identifiers the provider's
// enhanced-transaction API tags a transaction's source with. A transaction
// with an incidental non-SOL token leg but no recognized DEX source — an
// NFT sale, a staking deposit, a plain transfer — is not a swap, regardless
// of whether it happens to move a token other than SOL.
var knownDEXSources = map[string]bool{
	"JUPITER":  true,
	"RAYDIUM":  true,
	"ORCA":     true,
	"METEORA":  true,
	"PHOENIX":  true,
	"OPENBOOK": true,
	"PUMP_FUN": true,
}

// isSwapTransaction reports whether tx is attributable to a known DEX
// program. The provider labels a recognized swap with type "SWAP"
// directly; failing that, a source naming one of the known DEX programs is
// also accepted, since not every swap on every program is classified as
// type SWAP.
func isSwapTransaction(tx rawTransaction) bool {
	if tx.Type == "SWAP" {
		return true
	}
	return knownDEXSources[tx.Source]
}

// decodeBody accepts either a single transaction object or a batch array.
func decodeBody(body []byte) ([]rawTransaction, error) {
	var batch []rawTransaction
	if err := json.Unmarshal(body, &batch); err == nil {
		return batch, nil
	}
	var single rawTransaction
	if err := json.Unmarshal(body, &single); err != nil {
		return nil, err
	}
	return []rawTransaction{single}, nil
}

// isValidSolanaAddress checks the base58 decoding and byte length a Solana
// public key must have (32 raw bytes).
func isValidSolanaAddress(addr string) bool {
	if addr == "" {
		return false
	}
	decoded, err := base58.Decode(addr)
	if err != nil {
		return false
	}
	return len(decoded) == 32
}

// toSwapEvent extracts the fee-payer (mirrored wallet), the non-native token
// leg, and the direction from a raw transaction. Returns ok=false for
// transactions that are not swaps: a fee payer that is not a valid base58
// address, no token transfer, no known DEX program involved, or no non-SOL
// token transfer with the fee payer as sender or receiver. Direction is sell
// when the fee payer's net native SOL movement is positive, buy otherwise.
func toSwapEvent(tx rawTransaction) (models.SwapEvent, bool) {
	if !isValidSolanaAddress(tx.FeePayer) || len(tx.TokenTransfers) == 0 {
		return models.SwapEvent{}, false
	}
	if !isSwapTransaction(tx) {
		return models.SwapEvent{}, false
	}

	var tokenLeg *rawTokenTransfer
	for i := range tx.TokenTransfers {
		tt := &tx.TokenTransfers[i]
		if tt.Mint == "" || tt.Mint == nativeSOLMint {
			continue
		}
		if tt.FromUserAccount == tx.FeePayer || tt.ToUserAccount == tx.FeePayer {
			tokenLeg = tt
			break
		}
	}
	if tokenLeg == nil {
		return models.SwapEvent{}, false
	}

	var netLamports int64 // positive: wallet received SOL; negative: wallet spent SOL
	for _, nt := range tx.NativeTransfers {
		if nt.ToUserAccount == tx.FeePayer {
			netLamports += nt.Amount
		}
		if nt.FromUserAccount == tx.FeePayer {
			netLamports -= nt.Amount
		}
	}

	direction := models.DirectionBuy
	if netLamports > 0 {
		direction = models.DirectionSell
	}

	amountSOL := decimal.NewFromInt(netLamports).Abs().Div(decimal.NewFromInt(lamportsPerSOL))
	amountToken := decimal.NewFromFloat(tokenLeg.TokenAmount)

	return models.SwapEvent{
		TxSignature: tx.Signature,
		Wallet:      tx.FeePayer,
		Token:       tokenLeg.Mint,
		Direction:   direction,
		AmountToken: amountToken,
		AmountSOL:   amountSOL,
		Slot:        tx.Slot,
		Timestamp:   time.Unix(tx.Timestamp, 0).UTC(),
	}, true
}
