package chain

import (
	"fmt"

	"github.com/shopspring/decimal"

	"tradeslip/internal/domain"
)

// Extrinsic call names of the swaps pallet.
const (
	callSwapExactAmountOut = "swapExactAmountOut"
	callSwapExactAmountIn  = "swapExactAmountIn"
)

// poolResult is the raw RPC response for swaps_poolByAsset.
// Weights and the swap fee are planck-scaled integers.
type poolResult struct {
	ID        uint64            `json:"id"`
	Account   string            `json:"account"`
	MarketID  uint64            `json:"marketId"`
	BaseAsset string            `json:"baseAsset"`
	Assets    []string          `json:"assets"`
	Weights   map[string]string `json:"weights"`
	SwapFee   string            `json:"swapFee"`
}

func (r *poolResult) toDomain() (*domain.Pool, error) {
	base, err := domain.ParseAssetID(r.BaseAsset)
	if err != nil {
		return nil, fmt.Errorf("pool %d base asset: %w", r.ID, err)
	}
	account, err := domain.ParseAccount(r.Account)
	if err != nil {
		return nil, fmt.Errorf("pool %d account: %w", r.ID, err)
	}
	fee, err := FromPlanck(r.SwapFee)
	if err != nil {
		return nil, fmt.Errorf("pool %d swap fee: %w", r.ID, err)
	}

	pool := &domain.Pool{
		ID:        r.ID,
		Account:   account,
		MarketID:  r.MarketID,
		BaseAsset: base,
		Assets:    make([]domain.AssetID, 0, len(r.Assets)),
		Weights:   make(map[domain.AssetID]decimal.Decimal, len(r.Weights)),
		SwapFee:   fee,
	}
	for _, s := range r.Assets {
		a, err := domain.ParseAssetID(s)
		if err != nil {
			return nil, fmt.Errorf("pool %d asset: %w", r.ID, err)
		}
		pool.Assets = append(pool.Assets, a)
	}
	for s, raw := range r.Weights {
		a, err := domain.ParseAssetID(s)
		if err != nil {
			return nil, fmt.Errorf("pool %d weight asset: %w", r.ID, err)
		}
		w, err := FromPlanck(raw)
		if err != nil {
			return nil, fmt.Errorf("pool %d weight of %s: %w", r.ID, s, err)
		}
		pool.Weights[a] = w
	}

	if err := pool.Validate(); err != nil {
		return nil, err
	}
	return pool, nil
}

// wireBatch is the params object of author_submitBatch and payment_estimateBatchFee.
type wireBatch struct {
	ID    string    `json:"id"`
	Calls []wireLeg `json:"calls"`
}

// wireLeg is one swaps pallet call. Amounts are planck integers.
type wireLeg struct {
	Call           string `json:"call"`
	PoolID         uint64 `json:"poolId"`
	AssetIn        string `json:"assetIn"`
	AssetOut       string `json:"assetOut"`
	AssetAmountIn  string `json:"assetAmountIn,omitempty"`
	AssetAmountOut string `json:"assetAmountOut,omitempty"`
	MaxAmountIn    string `json:"maxAmountIn,omitempty"`
	MinAmountOut   string `json:"minAmountOut,omitempty"`
}

// encodeBatch converts tx to its wire form. Limits round in the trader's favour:
// maxAmountIn down, minAmountOut up, exact amounts down.
func encodeBatch(tx *domain.BatchTransaction) (wireBatch, error) {
	out := wireBatch{ID: tx.ID, Calls: make([]wireLeg, 0, len(tx.Legs))}
	for _, leg := range tx.Legs {
		w := wireLeg{
			PoolID:   leg.PoolID,
			AssetIn:  leg.AssetIn.String(),
			AssetOut: leg.AssetOut.String(),
		}
		switch leg.Kind {
		case domain.LegSwapExactAmountOut:
			w.Call = callSwapExactAmountOut
			w.AssetAmountOut = ToPlanck(leg.Amount, RoundDown).String()
			w.MaxAmountIn = ToPlanck(leg.Limit, RoundDown).String()
		case domain.LegSwapExactAmountIn:
			w.Call = callSwapExactAmountIn
			w.AssetAmountIn = ToPlanck(leg.Amount, RoundDown).String()
			w.MinAmountOut = ToPlanck(leg.Limit, RoundUp).String()
		default:
			return wireBatch{}, fmt.Errorf("unknown leg kind %q", leg.Kind)
		}
		out.Calls = append(out.Calls, w)
	}
	return out, nil
}

// submitResult is the raw RPC response for author_submitBatch.
type submitResult struct {
	SubmissionID string `json:"submissionId"`
	TxHash       string `json:"txHash"`
	Success      bool   `json:"success"`
	Error        string `json:"error"`
}
