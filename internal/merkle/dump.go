package merkle

import (
	"encoding/json"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// FormatStandardV1 is the dump format tag shared with the JS tooling
const FormatStandardV1 = "standard-v1"

// TreeDump is the serialized form of a StandardTree
type TreeDump struct {
	Format       string          `json:"format"`
	LeafEncoding []string        `json:"leafEncoding"`
	Tree         []common.Hash   `json:"tree"`
	Values       []TreeDumpValue `json:"values"`
}

// TreeDumpValue is one committed value and its node position
type TreeDumpValue struct {
	Value     [2]json.RawMessage `json:"value"`
	TreeIndex int                `json:"treeIndex"`
}

// Dump serializes the tree; values stay in insertion order
func (t *StandardTree) Dump() TreeDump {
	d := TreeDump{
		Format:       FormatStandardV1,
		LeafEncoding: append([]string(nil), LeafEncoding...),
		Tree:         append([]common.Hash(nil), t.tree...),
		Values:       make([]TreeDumpValue, len(t.values)),
	}
	for i, v := range t.values {
		addr, _ := json.Marshal(v.leaf.Address.Hex())
		amount, _ := json.Marshal(v.leaf.Amount.String())
		d.Values[i] = TreeDumpValue{
			Value:     [2]json.RawMessage{addr, amount},
			TreeIndex: v.treeIndex,
		}
	}
	return d
}

// Load rebuilds a tree from a dump and validates it end to end
func Load(d TreeDump) (*StandardTree, error) {
	if d.Format != FormatStandardV1 {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedDump, d.Format)
	}
	if len(d.LeafEncoding) != len(LeafEncoding) {
		return nil, fmt.Errorf("%w: leaf encoding %v", ErrUnsupportedDump, d.LeafEncoding)
	}
	for i, enc := range LeafEncoding {
		if d.LeafEncoding[i] != enc {
			return nil, fmt.Errorf("%w: leaf encoding %v", ErrUnsupportedDump, d.LeafEncoding)
		}
	}

	t := &StandardTree{
		tree:   append([]common.Hash(nil), d.Tree...),
		values: make([]treeValue, len(d.Values)),
	}
	for i, v := range d.Values {
		leaf, err := decodeValue(v.Value)
		if err != nil {
			return nil, fmt.Errorf("value %d: %w", i, err)
		}
		t.values[i] = treeValue{leaf: leaf, treeIndex: v.TreeIndex}
	}
	if err := t.validate(); err != nil {
		return nil, err
	}
	return t, nil
}

func decodeValue(raw [2]json.RawMessage) (Leaf, error) {
	var addr string
	if err := json.Unmarshal(raw[0], &addr); err != nil {
		return Leaf{}, fmt.Errorf("%w: address: %v", ErrInvalidLeaf, err)
	}
	if !common.IsHexAddress(addr) {
		return Leaf{}, fmt.Errorf("%w: bad address %q", ErrInvalidLeaf, addr)
	}
	amount, err := decodeAmount(raw[1])
	if err != nil {
		return Leaf{}, err
	}
	return Leaf{Address: common.HexToAddress(addr), Amount: amount}, nil
}

// decodeAmount accepts a decimal or 0x-hex string, or a bare JSON number
func decodeAmount(raw json.RawMessage) (*big.Int, error) {
	s := strings.TrimSpace(string(raw))
	if strings.HasPrefix(s, `"`) {
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, fmt.Errorf("%w: amount: %v", ErrInvalidLeaf, err)
		}
	}
	base := 10
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		s, base = s[2:], 16
	}
	amount, ok := new(big.Int).SetString(s, base)
	if !ok || amount.Sign() < 0 {
		return nil, fmt.Errorf("%w: bad amount %q", ErrInvalidLeaf, s)
	}
	return amount, nil
}

// MarshalJSON encodes the tree in dump form
func (t *StandardTree) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.Dump())
}

// UnmarshalJSON decodes and validates a dump
func (t *StandardTree) UnmarshalJSON(data []byte) error {
	var d TreeDump
	if err := json.Unmarshal(data, &d); err != nil {
		return err
	}
	loaded, err := Load(d)
	if err != nil {
		return err
	}
	*t = *loaded
	return nil
}
