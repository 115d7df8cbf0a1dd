// Package merkle builds and verifies airdrop commitments.
//
// The encoding is the one OpenZeppelin's StandardMerkleTree and MerkleProof.sol
// agree on: leaf = keccak256(keccak256(abi.encode(address, uint256))), pairs
// are hashed in sorted order, and the tree is a flat array of 2n-1 nodes with
// the leaves stored at the tail. Any deviation makes every proof fail on-chain.
package merkle

import (
	"bytes"
	"errors"
	"fmt"
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

var (
	ErrEmptyTree       = errors.New("merkle: expected non-zero number of leaves")
	ErrIndexOutOfRange = errors.New("merkle: index out of range")
	ErrInvalidLeaf     = errors.New("merkle: invalid leaf")
	ErrInvalidTree     = errors.New("merkle: invalid tree")
	ErrUnsupportedDump = errors.New("merkle: unsupported tree format")
)

// LeafEncoding is the ABI type list every leaf is encoded with
var LeafEncoding = []string{"address", "uint256"}

var leafArguments abi.Arguments

func init() {
	addressTy, _ := abi.NewType("address", "", nil)
	uint256Ty, _ := abi.NewType("uint256", "", nil)
	leafArguments = abi.Arguments{{Type: addressTy}, {Type: uint256Ty}}
}

// Leaf is one committed (address, amount) pair
type Leaf struct {
	Address common.Address
	Amount  *big.Int
}

// LeafHash returns the double keccak of the ABI-encoded leaf
func LeafHash(leaf Leaf) (common.Hash, error) {
	if leaf.Amount == nil || leaf.Amount.Sign() < 0 {
		return common.Hash{}, fmt.Errorf("%w: amount for %s must be a non-negative integer", ErrInvalidLeaf, leaf.Address.Hex())
	}
	encoded, err := leafArguments.Pack(leaf.Address, leaf.Amount)
	if err != nil {
		return common.Hash{}, fmt.Errorf("%w: %v", ErrInvalidLeaf, err)
	}
	return crypto.Keccak256Hash(crypto.Keccak256(encoded)), nil
}

func hashPair(a, b common.Hash) common.Hash {
	if bytes.Compare(a[:], b[:]) > 0 {
		a, b = b, a
	}
	return crypto.Keccak256Hash(a[:], b[:])
}

type treeValue struct {
	leaf      Leaf
	treeIndex int
}

// StandardTree is an immutable airdrop commitment.
// Values keep their insertion order; that order is the proof index callers persist.
type StandardTree struct {
	tree   []common.Hash
	values []treeValue
}

// Build hashes the leaves, sorts them by hash and lays out the node array
func Build(leaves []Leaf) (*StandardTree, error) {
	if len(leaves) == 0 {
		return nil, ErrEmptyTree
	}

	type hashedLeaf struct {
		hash       common.Hash
		valueIndex int
	}
	hashed := make([]hashedLeaf, len(leaves))
	values := make([]treeValue, len(leaves))
	for i, leaf := range leaves {
		h, err := LeafHash(leaf)
		if err != nil {
			return nil, fmt.Errorf("leaf %d: %w", i, err)
		}
		hashed[i] = hashedLeaf{hash: h, valueIndex: i}
		values[i] = treeValue{leaf: Leaf{Address: leaf.Address, Amount: new(big.Int).Set(leaf.Amount)}}
	}
	sort.SliceStable(hashed, func(i, j int) bool {
		return bytes.Compare(hashed[i].hash[:], hashed[j].hash[:]) < 0
	})

	n := len(hashed)
	tree := make([]common.Hash, 2*n-1)
	for i, h := range hashed {
		pos := len(tree) - 1 - i
		tree[pos] = h.hash
		values[h.valueIndex].treeIndex = pos
	}
	for i := len(tree) - 1 - n; i >= 0; i-- {
		tree[i] = hashPair(tree[leftChild(i)], tree[rightChild(i)])
	}

	return &StandardTree{tree: tree, values: values}, nil
}

func leftChild(i int) int  { return 2*i + 1 }
func rightChild(i int) int { return 2*i + 2 }
func parent(i int) int     { return (i - 1) / 2 }

func sibling(i int) int {
	if i%2 == 1 {
		return i + 1
	}
	return i - 1
}

// Root returns the commitment anchored on-chain
func (t *StandardTree) Root() common.Hash {
	return t.tree[0]
}

// Len returns the number of leaves
func (t *StandardTree) Len() int {
	return len(t.values)
}

// Leaf returns the leaf at value index i
func (t *StandardTree) Leaf(i int) (Leaf, error) {
	if i < 0 || i >= len(t.values) {
		return Leaf{}, fmt.Errorf("%w: %d (tree has %d leaves)", ErrIndexOutOfRange, i, len(t.values))
	}
	v := t.values[i].leaf
	return Leaf{Address: v.Address, Amount: new(big.Int).Set(v.Amount)}, nil
}

// Leaves returns a copy of all leaves in insertion order
func (t *StandardTree) Leaves() []Leaf {
	out := make([]Leaf, len(t.values))
	for i, v := range t.values {
		out[i] = Leaf{Address: v.leaf.Address, Amount: new(big.Int).Set(v.leaf.Amount)}
	}
	return out
}

// LeafIndex finds the first value index committed to address
func (t *StandardTree) LeafIndex(address common.Address) (int, bool) {
	for i, v := range t.values {
		if v.leaf.Address == address {
			return i, true
		}
	}
	return -1, false
}

// Proof returns the sibling path for the leaf at value index i, leaf to root
func (t *StandardTree) Proof(i int) ([]common.Hash, error) {
	if i < 0 || i >= len(t.values) {
		return nil, fmt.Errorf("%w: %d (tree has %d leaves)", ErrIndexOutOfRange, i, len(t.values))
	}
	pos := t.values[i].treeIndex
	proof := make([]common.Hash, 0)
	for pos > 0 {
		proof = append(proof, t.tree[sibling(pos)])
		pos = parent(pos)
	}
	return proof, nil
}

// Verify checks a proof against a root the same way MerkleProof.verify does
func Verify(root common.Hash, leaf Leaf, proof []common.Hash) bool {
	h, err := LeafHash(leaf)
	if err != nil {
		return false
	}
	for _, p := range proof {
		h = hashPair(h, p)
	}
	return h == root
}

// validate checks node consistency and that every value hashes to its slot
func (t *StandardTree) validate() error {
	n := len(t.values)
	if n == 0 {
		return ErrEmptyTree
	}
	if len(t.tree) != 2*n-1 {
		return fmt.Errorf("%w: %d nodes for %d values", ErrInvalidTree, len(t.tree), n)
	}
	for i := len(t.tree) - 1 - n; i >= 0; i-- {
		if t.tree[i] != hashPair(t.tree[leftChild(i)], t.tree[rightChild(i)]) {
			return fmt.Errorf("%w: node %d does not match its children", ErrInvalidTree, i)
		}
	}
	seen := make(map[int]struct{}, n)
	for i, v := range t.values {
		if v.treeIndex < len(t.tree)-n || v.treeIndex >= len(t.tree) {
			return fmt.Errorf("%w: value %d points at non-leaf node %d", ErrInvalidTree, i, v.treeIndex)
		}
		if _, dup := seen[v.treeIndex]; dup {
			return fmt.Errorf("%w: node %d claimed by more than one value", ErrInvalidTree, v.treeIndex)
		}
		seen[v.treeIndex] = struct{}{}
		h, err := LeafHash(v.leaf)
		if err != nil {
			return fmt.Errorf("value %d: %w", i, err)
		}
		if h != t.tree[v.treeIndex] {
			return fmt.Errorf("%w: value %d does not hash to node %d", ErrInvalidTree, i, v.treeIndex)
		}
	}
	return nil
}
