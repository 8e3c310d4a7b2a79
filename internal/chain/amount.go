package chain

import (
	"fmt"
	"math/big"
	"strings"
)

// Amount is a payout amount in one of two forms: an already-denominated
// base-unit integer (as the escrow record reports it), or a decimal
// string plus asset symbol (as policy defaults and PR text state it).
// The decimal form is converted once the token's decimals are known.
type Amount struct {
	Asset     string
	Value     string   // decimal string, e.g. "1.5"; empty when BaseUnits is set
	BaseUnits *big.Int // authoritative when non-nil
}

func FromBaseUnits(units uint64, asset string) Amount {
	return Amount{Asset: strings.ToUpper(asset), BaseUnits: new(big.Int).SetUint64(units)}
}

func FromDecimal(value, asset string) Amount {
	return Amount{Asset: strings.ToUpper(asset), Value: strings.TrimSpace(value)}
}

func (a Amount) String() string {
	if a.BaseUnits != nil {
		return fmt.Sprintf("%s base units %s", a.BaseUnits.String(), a.Asset)
	}
	return fmt.Sprintf("%s %s", a.Value, a.Asset)
}

// Resolve returns the integer base-unit amount for a token with the
// given decimals. Decimal values are scaled by 10^decimals and rounded
// half up. The result must be positive.
func (a Amount) Resolve(decimals uint8) (*big.Int, error) {
	if a.BaseUnits != nil {
		if a.BaseUnits.Sign() <= 0 {
			return nil, fmt.Errorf("amount must be positive, got %s", a.BaseUnits.String())
		}
		return new(big.Int).Set(a.BaseUnits), nil
	}

	rat, ok := new(big.Rat).SetString(a.Value)
	if !ok {
		return nil, fmt.Errorf("amount %q is not a decimal number", a.Value)
	}
	if rat.Sign() <= 0 {
		return nil, fmt.Errorf("amount must be positive, got %q", a.Value)
	}

	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
	rat.Mul(rat, new(big.Rat).SetInt(scale))

	// Round half up: floor(x + 1/2).
	rat.Add(rat, big.NewRat(1, 2))
	units := new(big.Int).Quo(rat.Num(), rat.Denom())
	if units.Sign() <= 0 {
		return nil, fmt.Errorf("amount %q rounds to zero base units at %d decimals", a.Value, decimals)
	}
	return units, nil
}
