package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"tradeslip/internal/domain"
)

var errEmptySlipFile = errors.New("slip file has no items")

// slipFile is the on-disk slip format:
//
//	slippage: "1"
//	items:
//	  - {direction: buy, asset: "cat:7:0", quantity: "2.5"}
type slipFile struct {
	Slippage string         `yaml:"slippage"`
	Items    []slipFileItem `yaml:"items"`
}

type slipFileItem struct {
	Direction string `yaml:"direction"`
	Asset     string `yaml:"asset"`
	Quantity  string `yaml:"quantity"`
}

// readSlipFile parses path into a slip record with the given ID. An empty slippage
// field keeps defaultSlippage.
func readSlipFile(path, slipID string, defaultSlippage decimal.Decimal) (*domain.SlipRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read slip file: %w", err)
	}
	return parseSlipFile(data, slipID, defaultSlippage)
}

func parseSlipFile(data []byte, slipID string, defaultSlippage decimal.Decimal) (*domain.SlipRecord, error) {
	var file slipFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("decode slip file: %w", err)
	}
	if len(file.Items) == 0 {
		return nil, errEmptySlipFile
	}

	rec := &domain.SlipRecord{
		SlipID:      slipID,
		SlippagePct: defaultSlippage,
		Items:       make([]domain.TradeItem, 0, len(file.Items)),
	}
	if file.Slippage != "" {
		pct, err := decimal.NewFromString(file.Slippage)
		if err != nil {
			return nil, fmt.Errorf("slippage %q: %w", file.Slippage, err)
		}
		rec.SlippagePct = pct
	}

	for i, raw := range file.Items {
		item, err := raw.toItem()
		if err != nil {
			return nil, fmt.Errorf("item %d: %w", i, err)
		}
		rec.Items = append(rec.Items, item)
	}
	return rec, nil
}

func (raw slipFileItem) toItem() (domain.TradeItem, error) {
	dir, err := domain.ParseDirection(raw.Direction)
	if err != nil {
		return domain.TradeItem{}, err
	}
	asset, err := domain.ParseAssetID(raw.Asset)
	if err != nil {
		return domain.TradeItem{}, err
	}
	qty, err := decimal.NewFromString(raw.Quantity)
	if err != nil {
		return domain.TradeItem{}, fmt.Errorf("quantity %q: %w", raw.Quantity, err)
	}
	return domain.NewTradeItem(dir, asset, qty)
}
