package types

import (
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// ContentID identifies a payload in the content-addressable tree store
type ContentID string

// CommitmentMetadata timing stored next to the tree.
// LockupEndTime is an absolute instant in milliseconds, LockupDuration is in seconds.
type CommitmentMetadata struct {
	LockupEndTime  int64 `json:"lockupEndTime"`
	LockupDuration int64 `json:"lockupDuration"`
}

// DeploymentTimestamp derives the deployment instant in milliseconds
func (m CommitmentMetadata) DeploymentTimestamp() int64 {
	return m.LockupEndTime - m.LockupDuration*1000
}

// AddressSet lowercase-normalized address membership
type AddressSet map[string]struct{}

// NewAddressSet builds a set from hex addresses in any case
func NewAddressSet(addresses ...string) AddressSet {
	s := make(AddressSet, len(addresses))
	for _, a := range addresses {
		s.Add(a)
	}
	return s
}

// Add inserts an address with or without 0x prefix, ignoring empty strings
func (s AddressSet) Add(address string) {
	a := strings.ToLower(strings.TrimSpace(address))
	if a == "" {
		return
	}
	if !strings.HasPrefix(a, "0x") {
		a = "0x" + a
	}
	s[a] = struct{}{}
}

// Contains reports membership case-insensitively
func (s AddressSet) Contains(address common.Address) bool {
	_, ok := s[strings.ToLower(address.Hex())]
	return ok
}

// Len number of distinct addresses
func (s AddressSet) Len() int {
	return len(s)
}
