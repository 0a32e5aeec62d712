package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"tradeslip/internal/domain"
)

// ComputeBatchID computes a deterministic batch_id using SHA256.
// Formula: SHA256(generation|slippage|leg_1|...|leg_n)
// where leg = kind:pool_id:asset_in:asset_out:amount:limit.
// Returns hex-encoded hash (64 characters).
func ComputeBatchID(generation uint64, slippagePct decimal.Decimal, legs []domain.Leg) string {
	parts := make([]string, 0, len(legs)+2)
	parts = append(parts, fmt.Sprintf("%d", generation), slippagePct.String())
	for _, leg := range legs {
		parts = append(parts, fmt.Sprintf("%s:%d:%s:%s:%s:%s",
			leg.Kind,
			leg.PoolID,
			leg.AssetIn,
			leg.AssetOut,
			leg.Amount.String(),
			leg.Limit.String(),
		))
	}

	hash := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(hash[:])
}

// ComputeQuoteID computes a deterministic quote_id using SHA256.
// Formula: SHA256(slip_id|generation|item_key)
// Returns hex-encoded hash (64 characters).
func ComputeQuoteID(slipID string, generation uint64, key domain.ItemKey) string {
	data := fmt.Sprintf("%s|%d|%s", slipID, generation, key)

	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}
