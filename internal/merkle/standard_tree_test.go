package merkle

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

func scenarioLeaves() []Leaf {
	return []Leaf{
		{Address: common.HexToAddress("0x000000000000000000000000000000000000000a"), Amount: big.NewInt(100)},
		{Address: common.HexToAddress("0x000000000000000000000000000000000000000b"), Amount: big.NewInt(50)},
		{Address: common.HexToAddress("0x000000000000000000000000000000000000007e"), Amount: big.NewInt(30)},
	}
}

func generatedLeaves(n int) []Leaf {
	leaves := make([]Leaf, n)
	for i := range leaves {
		addr := common.BigToAddress(big.NewInt(int64(0x1000 + i*7919)))
		leaves[i] = Leaf{Address: addr, Amount: new(big.Int).Mul(big.NewInt(int64(i+1)), big.NewInt(1e18))}
	}
	return leaves
}

// Values computed independently from the OpenZeppelin StandardMerkleTree algorithm.
func TestBuild_MatchesStandardMerkleTreeEncoding(t *testing.T) {
	tree, err := Build(scenarioLeaves())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	wantRoot := common.HexToHash("0x077d57cbcf369bca0d93fc312b3d4fa9502095029ecc95d8e276ad82021eafd5")
	if tree.Root() != wantRoot {
		t.Fatalf("root = %s, want %s", tree.Root().Hex(), wantRoot.Hex())
	}

	leafA, err := LeafHash(scenarioLeaves()[0])
	if err != nil {
		t.Fatalf("LeafHash: %v", err)
	}
	if want := common.HexToHash("0x29bf9fbf773c8405c013cb7f38aa31de8718c8de5d2a66500b004ac10bf1aad4"); leafA != want {
		t.Errorf("leaf hash = %s, want %s", leafA.Hex(), want.Hex())
	}

	wantProofs := [][]common.Hash{
		{
			common.HexToHash("0x4c264c7895bde0f7bab103a5959c730086cde6e727aef5aaad7c1f8552e5a2cf"),
			common.HexToHash("0x919343f25d8168a5703af122169603a35cf6103dc7fc8a09c96dc1217275b6f0"),
		},
		{
			common.HexToHash("0x29bf9fbf773c8405c013cb7f38aa31de8718c8de5d2a66500b004ac10bf1aad4"),
			common.HexToHash("0x919343f25d8168a5703af122169603a35cf6103dc7fc8a09c96dc1217275b6f0"),
		},
		{
			common.HexToHash("0xd2c5d71177f7390140df36a35246eb78959eb41cb32c5c02eb4e8728d92958a3"),
		},
	}
	for i, want := range wantProofs {
		got, err := tree.Proof(i)
		if err != nil {
			t.Fatalf("Proof(%d): %v", i, err)
		}
		if len(got) != len(want) {
			t.Fatalf("Proof(%d) has %d nodes, want %d", i, len(got), len(want))
		}
		for j := range want {
			if got[j] != want[j] {
				t.Errorf("Proof(%d)[%d] = %s, want %s", i, j, got[j].Hex(), want[j].Hex())
			}
		}
	}
}

func TestProof_VerifiesForEveryIndex(t *testing.T) {
	for n := 1; n <= 33; n++ {
		leaves := generatedLeaves(n)
		tree, err := Build(leaves)
		if err != nil {
			t.Fatalf("n=%d: Build: %v", n, err)
		}
		for i, leaf := range leaves {
			proof, err := tree.Proof(i)
			if err != nil {
				t.Fatalf("n=%d: Proof(%d): %v", n, i, err)
			}
			if !Verify(tree.Root(), leaf, proof) {
				t.Errorf("n=%d: proof for index %d does not verify", n, i)
			}
		}
	}
}

func TestVerify_RejectsWrongAmount(t *testing.T) {
	leaves := scenarioLeaves()
	tree, err := Build(leaves)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	proof, _ := tree.Proof(0)
	forged := Leaf{Address: leaves[0].Address, Amount: big.NewInt(101)}
	if Verify(tree.Root(), forged, proof) {
		t.Error("forged amount verified")
	}
	if Verify(tree.Root(), leaves[1], proof) {
		t.Error("proof for index 0 verified leaf 1")
	}
}

func TestBuild_Deterministic(t *testing.T) {
	a, _ := Build(generatedLeaves(12))
	b, _ := Build(generatedLeaves(12))
	if a.Root() != b.Root() {
		t.Errorf("roots differ: %s vs %s", a.Root().Hex(), b.Root().Hex())
	}
}

func TestBuild_KeepsInsertionOrder(t *testing.T) {
	leaves := generatedLeaves(9)
	tree, _ := Build(leaves)
	for i, got := range tree.Leaves() {
		if got.Address != leaves[i].Address || got.Amount.Cmp(leaves[i].Amount) != 0 {
			t.Errorf("leaf %d = %s/%s, want %s/%s", i, got.Address.Hex(), got.Amount, leaves[i].Address.Hex(), leaves[i].Amount)
		}
	}
	idx, ok := tree.LeafIndex(leaves[5].Address)
	if !ok || idx != 5 {
		t.Errorf("LeafIndex = %d,%v want 5,true", idx, ok)
	}
}

func TestBuild_Errors(t *testing.T) {
	if _, err := Build(nil); !errors.Is(err, ErrEmptyTree) {
		t.Errorf("Build(nil) err = %v, want ErrEmptyTree", err)
	}
	_, err := Build([]Leaf{{Address: common.HexToAddress("0x01"), Amount: big.NewInt(-1)}})
	if !errors.Is(err, ErrInvalidLeaf) {
		t.Errorf("negative amount err = %v, want ErrInvalidLeaf", err)
	}
}

func TestProof_IndexOutOfRange(t *testing.T) {
	tree, _ := Build(scenarioLeaves())
	for _, i := range []int{-1, 3, 100} {
		if _, err := tree.Proof(i); !errors.Is(err, ErrIndexOutOfRange) {
			t.Errorf("Proof(%d) err = %v, want ErrIndexOutOfRange", i, err)
		}
	}
}

func TestDumpLoad_RoundTrip(t *testing.T) {
	for _, n := range []int{1, 2, 3, 8, 21} {
		t.Run(fmt.Sprintf("n=%d", n), func(t *testing.T) {
			tree, _ := Build(generatedLeaves(n))
			data, err := json.Marshal(tree)
			if err != nil {
				t.Fatalf("Marshal: %v", err)
			}
			var loaded StandardTree
			if err := json.Unmarshal(data, &loaded); err != nil {
				t.Fatalf("Unmarshal: %v", err)
			}
			if loaded.Root() != tree.Root() {
				t.Fatalf("root changed: %s -> %s", tree.Root().Hex(), loaded.Root().Hex())
			}
			for i := 0; i < n; i++ {
				want, _ := tree.Proof(i)
				got, err := loaded.Proof(i)
				if err != nil {
					t.Fatalf("Proof(%d): %v", i, err)
				}
				if len(got) != len(want) {
					t.Fatalf("Proof(%d) length %d, want %d", i, len(got), len(want))
				}
				for j := range want {
					if got[j] != want[j] {
						t.Errorf("Proof(%d)[%d] changed", i, j)
					}
				}
			}
		})
	}
}

func TestLoad_AcceptsNumericAndHexAmounts(t *testing.T) {
	tree, _ := Build(scenarioLeaves())
	d := tree.Dump()
	d.Values[0].Value[1] = json.RawMessage(`100`)
	d.Values[1].Value[1] = json.RawMessage(`"0x32"`)
	loaded, err := Load(d)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.Root() != tree.Root() {
		t.Error("root changed")
	}
}

func TestLoad_RejectsTamperedDumps(t *testing.T) {
	base, _ := Build(scenarioLeaves())

	cases := map[string]func(d *TreeDump){
		"format": func(d *TreeDump) { d.Format = "simple-v1" },
		"encoding": func(d *TreeDump) {
			d.LeafEncoding = []string{"address", "uint128"}
		},
		"amount": func(d *TreeDump) {
			d.Values[0].Value[1] = json.RawMessage(`"101"`)
		},
		"internal node": func(d *TreeDump) {
			d.Tree[0] = common.HexToHash("0x01")
		},
		"tree index": func(d *TreeDump) {
			d.Values[0].TreeIndex = 0
		},
		"duplicate index": func(d *TreeDump) {
			d.Values[1].TreeIndex = d.Values[0].TreeIndex
		},
		"node count": func(d *TreeDump) {
			d.Tree = d.Tree[:len(d.Tree)-1]
		},
		"empty": func(d *TreeDump) {
			d.Tree = nil
			d.Values = nil
		},
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			d := base.Dump()
			mutate(&d)
			if _, err := Load(d); err == nil {
				t.Error("Load accepted a tampered dump")
			}
		})
	}
}
