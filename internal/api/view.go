package api

import (
	"github.com/shopspring/decimal"

	"tradeslip/internal/domain"
	"tradeslip/internal/engine"
)

type itemView struct {
	Direction            domain.Direction  `json:"direction"`
	Asset                domain.AssetID    `json:"asset"`
	Quantity             decimal.Decimal   `json:"quantity"`
	Status               domain.ItemStatus `json:"status"`
	Error                string            `json:"error,omitempty"`
	PoolID               *uint64           `json:"pool_id,omitempty"`
	Price                *decimal.Decimal  `json:"price,omitempty"`
	Sum                  decimal.Decimal   `json:"sum"`
	MaxQuantity          decimal.Decimal   `json:"max_quantity"`
	SwapFee              decimal.Decimal   `json:"swap_fee"`
	TradeablePoolBalance decimal.Decimal   `json:"tradeable_pool_balance"`
}

type droppedView struct {
	Item   domain.ItemKey `json:"item"`
	Reason string         `json:"reason"`
}

type slipView struct {
	SlipID       string                   `json:"slip_id"`
	Account      domain.Account           `json:"account,omitempty"`
	Generation   uint64                   `json:"generation"`
	BatchID      string                   `json:"batch_id,omitempty"`
	SlippagePct  decimal.Decimal          `json:"slippage_pct"`
	Total        decimal.Decimal          `json:"total"`
	Complete     bool                     `json:"complete"`
	Items        []itemView               `json:"items"`
	Transaction  *domain.BatchTransaction `json:"transaction,omitempty"`
	Dropped      []droppedView            `json:"dropped,omitempty"`
	EstimatedFee decimal.Decimal          `json:"estimated_fee"`
}

func newSlipView(eng *engine.Engine) slipView {
	state := eng.State()
	view := slipView{
		SlipID:       eng.SlipID(),
		Account:      state.Account,
		Generation:   state.Generation,
		SlippagePct:  state.SlippagePct,
		Total:        state.Total,
		Complete:     state.Complete(),
		Items:        make([]itemView, 0, len(state.States)),
		Transaction:  state.Transaction,
		EstimatedFee: eng.EstimatedFee(),
	}
	if state.Transaction != nil {
		view.BatchID = state.Transaction.ID
	}
	if view.Account == "" {
		view.Account = eng.Account()
	}

	for _, dl := range state.Dropped {
		dv := droppedView{Item: dl.Item}
		if dl.Reason != nil {
			dv.Reason = dl.Reason.Error()
		}
		view.Dropped = append(view.Dropped, dv)
	}

	for _, st := range state.States {
		iv := itemView{
			Direction:            st.Item.Direction,
			Asset:                st.Item.Asset,
			Quantity:             st.Item.Quantity,
			Status:               st.Status,
			Sum:                  st.Sum,
			MaxQuantity:          st.MaxQuantity,
			SwapFee:              st.SwapFee,
			TradeablePoolBalance: st.TradeablePoolBalance,
		}
		if st.Err != nil {
			iv.Error = st.Err.Error()
		}
		if st.Pool != nil {
			id := st.Pool.ID
			iv.PoolID = &id
		}
		if st.Asset != nil {
			price := st.Asset.Price
			iv.Price = &price
		}
		view.Items = append(view.Items, iv)
	}
	return view
}

type quoteView struct {
	Generation  uint64            `json:"generation"`
	TimestampMs int64             `json:"timestamp_ms"`
	Direction   domain.Direction  `json:"direction"`
	Asset       string            `json:"asset"`
	Quantity    decimal.Decimal   `json:"quantity"`
	Status      domain.ItemStatus `json:"status"`
	SpotPrice   decimal.Decimal   `json:"spot_price"`
	Sum         decimal.Decimal   `json:"sum"`
	MaxQuantity decimal.Decimal   `json:"max_quantity"`
	PoolID      uint64            `json:"pool_id"`
}

func newQuoteView(q *domain.QuoteRecord) quoteView {
	return quoteView{
		Generation:  q.Generation,
		TimestampMs: q.TimestampMs,
		Direction:   q.Direction,
		Asset:       q.Asset,
		Quantity:    q.Quantity,
		Status:      q.Status,
		SpotPrice:   q.SpotPrice,
		Sum:         q.Sum,
		MaxQuantity: q.MaxQuantity,
		PoolID:      q.PoolID,
	}
}
