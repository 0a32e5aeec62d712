// Package main prices a trade slip once against the node and prints per-item state,
// the slip total and the assembled batch legs.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"tradeslip/internal/chain"
	"tradeslip/internal/config"
	"tradeslip/internal/domain"
	"tradeslip/internal/engine"
	"tradeslip/internal/logging"
	"tradeslip/internal/slip"
	"tradeslip/internal/storage"
	"tradeslip/internal/storage/memory"
	"tradeslip/internal/storage/stores"
)

func main() {
	os.Exit(run())
}

// run returns the process exit code: 0 when every item is priced, 3 when the slip is
// incomplete, 1 on errors.
func run() int {
	if err := config.LoadDotEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "Error loading .env: %v\n", err)
		return 1
	}

	configPath := flag.String("config", os.Getenv("TRADESLIP_CONFIG"), "Path to YAML config file")
	slipPath := flag.String("slip-file", "", "YAML slip file (default: load the slip from the configured store)")
	slipID := flag.String("slip-id", "", "Slip ID (overrides config)")
	account := flag.String("account", "", "Trader account, SS58 (overrides config)")
	rpcEndpoint := flag.String("rpc-endpoint", "", "Node JSON-RPC HTTP endpoint (overrides config)")
	timeout := flag.Duration("timeout", 30*time.Second, "Overall quote timeout")
	asJSON := flag.Bool("json", false, "Print JSON instead of tables")
	withFee := flag.Bool("fee", false, "Estimate the network fee of the batch")
	flag.Parse()

	cfg, err := config.Read(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading config: %v\n", err)
		return 1
	}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "slip-id":
			cfg.Slip.ID = *slipID
		case "account":
			cfg.Slip.Account = *account
		case "rpc-endpoint":
			cfg.Chain.RPCEndpoint = *rpcEndpoint
		}
	})
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid config: %v\n", err)
		return 1
	}
	slippage, err := cfg.Slippage()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	logger := logging.New(os.Stderr, cfg.Log.Level, cfg.Log.Format)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	var slipStore storage.SlipStore
	if *slipPath != "" {
		rec, err := readSlipFile(*slipPath, cfg.Slip.ID, slippage)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
		mem := memory.NewSlipStore()
		if err := mem.Save(ctx, rec); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
		slipStore = mem
	} else {
		set, err := stores.Open(ctx, cfg.Storage, logger)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error opening stores: %v\n", err)
			return 1
		}
		defer set.Close()
		slipStore = set.Slips
	}

	var trader domain.Account
	if cfg.Slip.Account != "" {
		if trader, err = domain.ParseAccount(cfg.Slip.Account); err != nil {
			fmt.Fprintf(os.Stderr, "Error: trader account: %v\n", err)
			return 1
		}
	}

	rpc := chain.NewHTTPClient(cfg.Chain.RPCEndpoint,
		chain.WithTimeout(cfg.Chain.Timeout),
		chain.WithMaxRetries(cfg.Chain.MaxRetries),
		chain.WithRateLimit(cfg.Chain.RateLimit, cfg.Chain.RateBurst),
	)

	eng, err := engine.New(ctx, engine.Options{
		SlipID:          cfg.Slip.ID,
		Account:         trader,
		DefaultSlippage: &slippage,
		Source:          rpc,
		Submitter:       rpc,
		SlipStore:       slipStore,
		Logger:          logger,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading slip: %v\n", err)
		return 1
	}
	defer eng.Close()

	if err := eng.Refresh(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error fetching chain data: %v\n", err)
		return 1
	}
	if *withFee {
		if _, err := eng.EstimateFee(ctx); err != nil {
			logger.Warn("fee estimate failed", "error", err)
		}
	}

	state := eng.State()
	out := buildOutput(eng.SlipID(), state, feeText(eng))
	if *asJSON {
		err = writeJSON(os.Stdout, out)
	} else {
		err = renderTables(os.Stdout, out)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error writing output: %v\n", err)
		return 1
	}
	if !out.Complete {
		return 3
	}
	return 0
}

// quoteOutput is the JSON form of one quote run.
type quoteOutput struct {
	SlipID      string                   `json:"slip_id"`
	Generation  uint64                   `json:"generation"`
	Account     domain.Account           `json:"account,omitempty"`
	SlippagePct string                   `json:"slippage_pct"`
	Items       []quoteItem              `json:"items"`
	Total       string                   `json:"total"`
	Complete    bool                     `json:"complete"`
	Transaction *domain.BatchTransaction `json:"transaction,omitempty"`
	Dropped     []domain.DroppedLeg      `json:"dropped,omitempty"`
	Fee         string                   `json:"estimated_fee,omitempty"`
}

type quoteItem struct {
	Direction   domain.Direction  `json:"direction"`
	Asset       domain.AssetID    `json:"asset"`
	Quantity    string            `json:"quantity"`
	Status      domain.ItemStatus `json:"status"`
	Error       string            `json:"error,omitempty"`
	Price       string            `json:"price,omitempty"`
	Sum         string            `json:"sum"`
	MaxQuantity string            `json:"max_quantity"`
}

func buildOutput(slipID string, state *slip.DerivedState, fee string) quoteOutput {
	out := quoteOutput{
		SlipID:      slipID,
		Generation:  state.Generation,
		Account:     state.Account,
		SlippagePct: state.SlippagePct.String(),
		Items:       make([]quoteItem, 0, len(state.States)),
		Total:       state.Total.String(),
		Complete:    state.Complete(),
		Transaction: state.Transaction,
		Dropped:     state.Dropped,
		Fee:         fee,
	}
	for _, st := range state.States {
		item := quoteItem{
			Direction:   st.Item.Direction,
			Asset:       st.Item.Asset,
			Quantity:    st.Item.Quantity.String(),
			Status:      st.Status,
			Sum:         st.Sum.String(),
			MaxQuantity: st.MaxQuantity.String(),
		}
		if st.Err != nil {
			item.Error = st.Err.Error()
		}
		if st.Asset != nil {
			item.Price = st.Asset.Price.String()
		}
		out.Items = append(out.Items, item)
	}
	return out
}

func feeText(eng *engine.Engine) string {
	fee := eng.EstimatedFee()
	if fee.IsZero() {
		return ""
	}
	return fee.String()
}

func writeJSON(w io.Writer, out quoteOutput) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func renderTables(w io.Writer, out quoteOutput) error {
	fmt.Fprintf(w, "Slip %s  generation %d  slippage %s%%\n\n", out.SlipID, out.Generation, out.SlippagePct)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "DIRECTION\tASSET\tQUANTITY\tSTATUS\tPRICE\tSUM\tMAX\tERROR")
	for _, it := range out.Items {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			it.Direction, it.Asset, it.Quantity, it.Status, dash(it.Price), it.Sum, it.MaxQuantity, dash(it.Error))
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	complete := "complete"
	if !out.Complete {
		complete = "incomplete"
	}
	fmt.Fprintf(w, "\nTotal: %s (%s)\n", out.Total, complete)
	if out.Fee != "" {
		fmt.Fprintf(w, "Estimated fee: %s\n", out.Fee)
	}

	if out.Transaction == nil {
		fmt.Fprintln(w, "\nNo transaction.")
	} else {
		fmt.Fprintf(w, "\nBatch %s\n", out.Transaction.ID)
		tw = tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "KIND\tPOOL\tIN\tOUT\tAMOUNT\tLIMIT")
		for _, leg := range out.Transaction.Legs {
			fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%s\t%s\n",
				leg.Kind, leg.PoolID, leg.AssetIn, leg.AssetOut, leg.Amount, leg.Limit)
		}
		if err := tw.Flush(); err != nil {
			return err
		}
	}

	for _, d := range out.Dropped {
		reason := ""
		if d.Reason != nil {
			reason = d.Reason.Error()
		}
		fmt.Fprintf(w, "dropped %s: %s\n", d.Item, reason)
	}
	return nil
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
