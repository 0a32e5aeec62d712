package domain

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrInvalidAsset is returned when an asset identifier is malformed.
var ErrInvalidAsset = errors.New("invalid asset")

// AssetKind enumerates the asset families a pool can hold.
type AssetKind uint8

const (
	AssetKindBase AssetKind = iota + 1
	AssetKindCategorical
	AssetKindScalar
	AssetKindPoolShare
)

// ScalarPosition is the side of a scalar market outcome.
type ScalarPosition uint8

const (
	ScalarLong ScalarPosition = iota + 1
	ScalarShort
)

// String returns the string representation of ScalarPosition.
func (p ScalarPosition) String() string {
	switch p {
	case ScalarLong:
		return "long"
	case ScalarShort:
		return "short"
	default:
		return "unknown"
	}
}

// AssetID identifies one asset held by a pool or an account.
// Values are comparable, so == is structural equality and AssetID can key maps.
// Fields that do not belong to Kind are always zero; use the constructors.
type AssetID struct {
	Kind     AssetKind
	MarketID uint64
	Index    uint16         // categorical outcome index
	Position ScalarPosition // scalar outcome side
	PoolID   uint64         // pool share token
}

// BaseAsset returns the pool collateral asset.
func BaseAsset() AssetID {
	return AssetID{Kind: AssetKindBase}
}

// CategoricalOutcome returns the outcome token at index of a categorical market.
func CategoricalOutcome(marketID uint64, index uint16) AssetID {
	return AssetID{Kind: AssetKindCategorical, MarketID: marketID, Index: index}
}

// ScalarOutcome returns the long or short token of a scalar market.
func ScalarOutcome(marketID uint64, pos ScalarPosition) AssetID {
	return AssetID{Kind: AssetKindScalar, MarketID: marketID, Position: pos}
}

// PoolShare returns the liquidity share token of a pool.
func PoolShare(poolID uint64) AssetID {
	return AssetID{Kind: AssetKindPoolShare, PoolID: poolID}
}

// IsOutcome reports whether the asset is a market outcome token.
func (a AssetID) IsOutcome() bool {
	return a.Kind == AssetKindCategorical || a.Kind == AssetKindScalar
}

// Validate checks that only the fields owned by Kind are set.
func (a AssetID) Validate() error {
	switch a.Kind {
	case AssetKindBase:
		if a != BaseAsset() {
			return fmt.Errorf("%w: base asset carries extra fields", ErrInvalidAsset)
		}
	case AssetKindCategorical:
		if a != CategoricalOutcome(a.MarketID, a.Index) {
			return fmt.Errorf("%w: categorical outcome carries extra fields", ErrInvalidAsset)
		}
	case AssetKindScalar:
		if a.Position != ScalarLong && a.Position != ScalarShort {
			return fmt.Errorf("%w: scalar position %d", ErrInvalidAsset, a.Position)
		}
		if a != ScalarOutcome(a.MarketID, a.Position) {
			return fmt.Errorf("%w: scalar outcome carries extra fields", ErrInvalidAsset)
		}
	case AssetKindPoolShare:
		if a != PoolShare(a.PoolID) {
			return fmt.Errorf("%w: pool share carries extra fields", ErrInvalidAsset)
		}
	default:
		return fmt.Errorf("%w: unknown kind %d", ErrInvalidAsset, a.Kind)
	}
	return nil
}

// String returns the canonical text form used in storage, JSON and logs:
// "base", "cat:<market>:<index>", "scalar:<market>:long|short", "pool:<id>".
func (a AssetID) String() string {
	switch a.Kind {
	case AssetKindBase:
		return "base"
	case AssetKindCategorical:
		return fmt.Sprintf("cat:%d:%d", a.MarketID, a.Index)
	case AssetKindScalar:
		return fmt.Sprintf("scalar:%d:%s", a.MarketID, a.Position)
	case AssetKindPoolShare:
		return fmt.Sprintf("pool:%d", a.PoolID)
	default:
		return "invalid"
	}
}

// ParseAssetID parses the canonical text form produced by String.
func ParseAssetID(s string) (AssetID, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	switch parts[0] {
	case "base":
		if len(parts) != 1 {
			break
		}
		return BaseAsset(), nil
	case "cat":
		if len(parts) != 3 {
			break
		}
		market, err := strconv.ParseUint(parts[1], 10, 64)
		if err != nil {
			return AssetID{}, fmt.Errorf("%w: market id %q", ErrInvalidAsset, parts[1])
		}
		index, err := strconv.ParseUint(parts[2], 10, 16)
		if err != nil {
			return AssetID{}, fmt.Errorf("%w: outcome index %q", ErrInvalidAsset, parts[2])
		}
		return CategoricalOutcome(market, uint16(index)), nil
	case "scalar":
		if len(parts) != 3 {
			break
		}
		market, err := strconv.ParseUint(parts[1], 10, 64)
		if err != nil {
			return AssetID{}, fmt.Errorf("%w: market id %q", ErrInvalidAsset, parts[1])
		}
		switch parts[2] {
		case "long":
			return ScalarOutcome(market, ScalarLong), nil
		case "short":
			return ScalarOutcome(market, ScalarShort), nil
		}
		return AssetID{}, fmt.Errorf("%w: scalar position %q", ErrInvalidAsset, parts[2])
	case "pool":
		if len(parts) != 2 {
			break
		}
		pool, err := strconv.ParseUint(parts[1], 10, 64)
		if err != nil {
			return AssetID{}, fmt.Errorf("%w: pool id %q", ErrInvalidAsset, parts[1])
		}
		return PoolShare(pool), nil
	}
	return AssetID{}, fmt.Errorf("%w: %q", ErrInvalidAsset, s)
}

// MarshalText implements encoding.TextMarshaler.
func (a AssetID) MarshalText() ([]byte, error) {
	if err := a.Validate(); err != nil {
		return nil, err
	}
	return []byte(a.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *AssetID) UnmarshalText(text []byte) error {
	parsed, err := ParseAssetID(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
