package slip

import (
	"testing"

	"github.com/shopspring/decimal"

	"tradeslip/internal/domain"
	"tradeslip/internal/snapshot"
)

func testSnapshot() *snapshot.Snapshot {
	pool := &domain.Pool{
		ID:        1,
		MarketID:  7,
		BaseAsset: domain.BaseAsset(),
		Assets:    []domain.AssetID{domain.BaseAsset(), yes, no},
		Weights: map[domain.AssetID]decimal.Decimal{
			domain.BaseAsset(): d("1"), yes: d("1"), no: d("1"),
		},
		SwapFee: decimal.Zero,
	}
	snap := snapshot.New(4, "")
	snap.AddPool(pool, map[domain.AssetID]decimal.Decimal{
		domain.BaseAsset(): d("1000"), yes: d("300"), no: d("600"),
	})
	return snap
}

func TestFold_Total(t *testing.T) {
	states := []domain.ItemState{
		{Item: item(domain.DirectionBuy, yes, "1"), Status: domain.StatusReady, Sum: d("10")},
		{Item: item(domain.DirectionSell, no, "1"), Status: domain.StatusReady, Sum: d("4")},
	}
	agg := Fold(states)

	if !agg.Total.Equal(d("-6")) {
		t.Errorf("Total = %s, want -6", agg.Total)
	}
	if !agg.Complete() {
		t.Error("Complete() = false, want true")
	}
	got, ok := agg.StateOf(domain.DirectionSell, no)
	if !ok || !got.Sum.Equal(d("4")) {
		t.Errorf("StateOf(sell, no) = %v, %v", got, ok)
	}
	if _, ok := agg.StateOf(domain.DirectionSell, yes); ok {
		t.Error("StateOf(sell, yes) found, want missing")
	}
}

func TestFold_IncompleteStatesContributeZero(t *testing.T) {
	states := []domain.ItemState{
		{Item: item(domain.DirectionBuy, yes, "1"), Status: domain.StatusReady, Sum: d("10")},
		{Item: item(domain.DirectionSell, yes, "1"), Status: domain.StatusInvalid, Sum: d("500")},
		{Item: item(domain.DirectionSell, no, "1"), Status: domain.StatusNotReady},
	}
	agg := Fold(states)

	if !agg.Total.Equal(d("-10")) {
		t.Errorf("Total = %s, want -10", agg.Total)
	}
	if agg.Ready != 1 || agg.Invalid != 1 || agg.NotReady != 1 {
		t.Errorf("counts = %d/%d/%d, want 1/1/1", agg.Ready, agg.Invalid, agg.NotReady)
	}
	if agg.Complete() {
		t.Error("Complete() = true, want false")
	}
}

func TestRecompute(t *testing.T) {
	s := New("default")
	_ = s.Add(item(domain.DirectionBuy, yes, "60"))
	_ = s.Add(item(domain.DirectionSell, no, "150"))

	derived := Recompute(s.Items(), testSnapshot(), s.Slippage())

	if derived.Generation != 4 {
		t.Errorf("Generation = %d, want 4", derived.Generation)
	}
	if derived.Ready != 2 {
		t.Fatalf("Ready = %d, want 2", derived.Ready)
	}
	// buy 60 yes costs 250; sell 150 no yields 1000 * (1 - 600/750) = 200
	if !derived.Total.Equal(d("-50")) {
		t.Errorf("Total = %s, want -50", derived.Total)
	}
	if derived.Transaction == nil || len(derived.Transaction.Legs) != 2 {
		t.Fatalf("Transaction = %+v, want two legs", derived.Transaction)
	}
	if derived.Transaction.Generation != derived.Generation {
		t.Errorf("transaction generation %d != state generation %d", derived.Transaction.Generation, derived.Generation)
	}
	if !derived.Transaction.Legs[1].Limit.Equal(d("252.5")) {
		t.Errorf("buy limit = %s, want 252.5", derived.Transaction.Legs[1].Limit)
	}
}

func TestRecompute_ReplaceDoesNotDuplicate(t *testing.T) {
	s := New("default")
	_ = s.Add(item(domain.DirectionBuy, yes, "60"))
	first := Recompute(s.Items(), testSnapshot(), s.Slippage())

	s.Remove(domain.ItemKey{Direction: domain.DirectionBuy, Asset: yes})
	_ = s.Add(item(domain.DirectionBuy, yes, "30"))
	second := Recompute(s.Items(), testSnapshot(), s.Slippage())

	if len(second.States) != 1 {
		t.Fatalf("len(States) = %d, want 1", len(second.States))
	}
	state, _ := second.StateOf(domain.DirectionBuy, yes)
	if !second.Total.Equal(state.Sum.Neg()) {
		t.Errorf("Total = %s, want %s", second.Total, state.Sum.Neg())
	}
	if !second.Total.GreaterThan(first.Total) {
		t.Errorf("smaller buy should cost less: %s vs %s", second.Total, first.Total)
	}
}

func TestRecompute_Cleared(t *testing.T) {
	s := New("default")
	_ = s.Add(item(domain.DirectionBuy, yes, "60"))
	s.Clear()

	derived := Recompute(s.Items(), testSnapshot(), s.Slippage())
	if !derived.Total.IsZero() {
		t.Errorf("Total = %s, want 0", derived.Total)
	}
	if derived.Transaction != nil {
		t.Errorf("Transaction = %+v, want nil", derived.Transaction)
	}
}

func TestRecompute_NilSnapshot(t *testing.T) {
	derived := Recompute([]domain.TradeItem{item(domain.DirectionBuy, yes, "1")}, nil, DefaultSlippage)
	if derived.NotReady != 1 || derived.Transaction != nil {
		t.Errorf("NotReady = %d, Transaction = %+v", derived.NotReady, derived.Transaction)
	}
}

func TestDerivedState_Quotes(t *testing.T) {
	items := []domain.TradeItem{item(domain.DirectionBuy, yes, "60"), item(domain.DirectionBuy, domain.CategoricalOutcome(8, 0), "1")}
	derived := Recompute(items, testSnapshot(), DefaultSlippage)

	quotes := derived.Quotes("default", 1700000000000)
	if len(quotes) != 2 {
		t.Fatalf("len(Quotes) = %d, want 2", len(quotes))
	}
	if quotes[0].PoolID != 1 || !quotes[0].Sum.Equal(d("250")) || quotes[0].Status != domain.StatusReady {
		t.Errorf("quotes[0] = %+v", quotes[0])
	}
	if quotes[1].Status != domain.StatusNotReady || quotes[1].PoolID != 0 {
		t.Errorf("quotes[1] = %+v", quotes[1])
	}
	if quotes[0].QuoteID == quotes[1].QuoteID || len(quotes[0].QuoteID) != 64 {
		t.Errorf("quote IDs = %s, %s", quotes[0].QuoteID, quotes[1].QuoteID)
	}
}
