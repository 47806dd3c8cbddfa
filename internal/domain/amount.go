package domain

import (
	"fmt"
	"math/big"
)

// ParseAmount parses a base-10 smallest-unit token amount. The empty string
// parses as zero so NULL-ish database values round-trip cleanly.
func ParseAmount(s string) (*big.Int, error) {
	if s == "" {
		return new(big.Int), nil
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", s)
	}
	return v, nil
}

// FormatAmount renders an amount for persistence. A nil amount is "0".
func FormatAmount(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
