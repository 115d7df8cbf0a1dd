package utils

import (
	"fmt"
	"math/big"
	"regexp"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

var hexAddressPattern = regexp.MustCompile("^[0-9a-fA-F]{40}$")

// IsEvmAddress checkwhetherEVMaddress (20 bytes), with or without 0x prefix
func IsEvmAddress(address string) bool {
	if address == "" {
		return false
	}
	if strings.HasPrefix(strings.ToLower(address), "0x") {
		return len(address) == 42 && hexAddressPattern.MatchString(address[2:])
	}
	return hexAddressPattern.MatchString(address)
}

// NormalizeAddress lowercases an EVM address and adds the 0x prefix.
// Anything that is not an EVM address is returned as-is.
func NormalizeAddress(address string) string {
	address = strings.TrimSpace(address)
	if !IsEvmAddress(address) {
		return address
	}
	if strings.HasPrefix(strings.ToLower(address), "0x") {
		return strings.ToLower(address)
	}
	return "0x" + strings.ToLower(address)
}

// ParseAddress validates and converts a hex address
func ParseAddress(address string) (common.Address, error) {
	normalized := NormalizeAddress(address)
	if !IsEvmAddress(normalized) {
		return common.Address{}, fmt.Errorf("invalid EVM address %q", address)
	}
	return common.HexToAddress(normalized), nil
}

// SameAddress compares two hex addresses case-insensitively
func SameAddress(a, b string) bool {
	return strings.EqualFold(NormalizeAddress(a), NormalizeAddress(b))
}

// ParseAmount parses a non-negative base-unit amount (decimal or 0x-hex)
func ParseAmount(amount string) (*big.Int, error) {
	s := strings.TrimSpace(amount)
	base := 10
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		s, base = s[2:], 16
	}
	v, ok := new(big.Int).SetString(s, base)
	if !ok || v.Sign() < 0 {
		return nil, fmt.Errorf("invalid amount %q", amount)
	}
	return v, nil
}
