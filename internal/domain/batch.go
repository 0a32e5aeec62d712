package domain

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

// LegKind is the swap instruction a leg encodes.
type LegKind string

const (
	// LegSwapExactAmountOut buys an exact amount out for at most Limit in.
	LegSwapExactAmountOut LegKind = "swap_exact_amount_out"
	// LegSwapExactAmountIn sells an exact amount in for at least Limit out.
	LegSwapExactAmountIn LegKind = "swap_exact_amount_in"
)

// Leg is one slippage-bounded swap of a batch transaction.
type Leg struct {
	Item     ItemKey         `json:"item"`
	Kind     LegKind         `json:"kind"`
	PoolID   uint64          `json:"pool_id"`
	AssetIn  AssetID         `json:"asset_in"`
	AssetOut AssetID         `json:"asset_out"`
	Amount   decimal.Decimal `json:"amount"` // exact amount out (buy) or in (sell)
	Limit    decimal.Decimal `json:"limit"`  // max amount in (buy) or min amount out (sell)
	Quote    decimal.Decimal `json:"quote"`  // unslipped cost or proceeds
}

// BatchTransaction is an ordered list of legs submitted as one all-or-nothing unit.
type BatchTransaction struct {
	ID          string          `json:"id"` // deterministic hash of generation and legs
	Generation  uint64          `json:"generation"`
	SlippagePct decimal.Decimal `json:"slippage_pct"`
	Legs        []Leg           `json:"legs"`
}

// DroppedLeg records an item the assembler excluded from the batch.
type DroppedLeg struct {
	Item   ItemKey
	Reason error
}

// MarshalJSON renders the reason as text.
func (d DroppedLeg) MarshalJSON() ([]byte, error) {
	reason := ""
	if d.Reason != nil {
		reason = d.Reason.Error()
	}
	return json.Marshal(struct {
		Item   ItemKey `json:"item"`
		Reason string  `json:"reason"`
	}{d.Item, reason})
}

// SubmitResult is the outcome reported by the submission collaborator.
type SubmitResult struct {
	SubmissionID string `json:"submission_id"`
	BatchID      string `json:"batch_id"`
	TxHash       string `json:"tx_hash,omitempty"`
	Success      bool   `json:"success"`
	Reason       string `json:"reason,omitempty"` // collaborator message, verbatim
}

// Submission status constants
const (
	SubmissionStatusSuccess = "success"
	SubmissionStatusFailure = "failure"
)

// SubmissionEvent is published for every submission attempt.
type SubmissionEvent struct {
	SubmissionID string          `json:"submission_id"`
	SlipID       string          `json:"slip_id"`
	Account      Account         `json:"account"`
	BatchID      string          `json:"batch_id"`
	Generation   uint64          `json:"generation"`
	Legs         int             `json:"legs"`
	Total        decimal.Decimal `json:"total"`
	Status       string          `json:"status"`
	TxHash       string          `json:"tx_hash,omitempty"`
	Reason       string          `json:"reason,omitempty"`
	TimestampMs  int64           `json:"timestamp_ms"`
}
