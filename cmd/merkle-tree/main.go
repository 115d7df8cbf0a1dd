package main

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"airdrop-backend/internal/clients"
	"airdrop-backend/internal/config"
	"airdrop-backend/internal/merkle"
	"airdrop-backend/internal/services"
	"airdrop-backend/internal/types"
	"airdrop-backend/internal/utils"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"
)

func main() {
	input := flag.String("csv", "", "recipients CSV: address,amount per line (header optional)")
	dumpPath := flag.String("dump", "", "write the standard-v1 tree dump to this file")
	proofFor := flag.String("proof", "", "print the proof for this recipient address")
	upload := flag.Bool("upload", false, "upload the tree to the configured tree store")
	configPath := flag.String("config", "", "config file for -upload")
	chainID := flag.Int64("chain", 0, "chain ID tag for -upload")
	token := flag.String("token", "", "token address tag for -upload")
	lockupEnd := flag.Int64("lockup-end", 0, "lockup end time in ms, stored as metadata with -upload")
	flag.Parse()

	if *input == "" {
		fmt.Println("usage: merkle-tree -csv recipients.csv [-dump tree.json] [-proof 0x...] [-upload -chain 1 -token 0x...]")
		os.Exit(2)
	}

	f, err := os.Open(*input)
	if err != nil {
		fatalf("open %s: %v", *input, err)
	}
	leaves, err := readLeaves(f)
	f.Close()
	if err != nil {
		fatalf("read recipients: %v", err)
	}

	tree, err := merkle.Build(leaves)
	if err != nil {
		fatalf("build tree: %v", err)
	}
	fmt.Printf("🌳 Recipients: %d\n", tree.Len())
	fmt.Printf("🌳 Merkle root: %s\n", tree.Root().Hex())

	if *dumpPath != "" {
		data, err := json.MarshalIndent(tree.Dump(), "", "  ")
		if err != nil {
			fatalf("encode dump: %v", err)
		}
		if err := os.WriteFile(*dumpPath, data, 0o644); err != nil {
			fatalf("write dump: %v", err)
		}
		fmt.Printf("💾 Dump written to %s\n", *dumpPath)
	}

	if *proofFor != "" {
		address, err := utils.ParseAddress(*proofFor)
		if err != nil {
			fatalf("%v", err)
		}
		index, ok := tree.LeafIndex(address)
		if !ok {
			fatalf("%s is not a recipient", address.Hex())
		}
		proof, err := tree.Proof(index)
		if err != nil {
			fatalf("proof: %v", err)
		}
		leaf, _ := tree.Leaf(index)
		fmt.Printf("🔑 %s amount=%s index=%d\n", leaf.Address.Hex(), leaf.Amount.String(), index)
		for _, h := range proof {
			fmt.Printf("   %s\n", h.Hex())
		}
	}

	if *upload {
		uploadTree(*configPath, *chainID, *token, *lockupEnd, tree)
	}
}

func readLeaves(r io.Reader) ([]merkle.Leaf, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = 2
	reader.TrimLeadingSpace = true

	var leaves []merkle.Leaf
	seen := make(map[common.Address]int)
	line := 0
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		line++
		if line == 1 && strings.EqualFold(strings.TrimSpace(record[0]), "address") {
			continue
		}
		address, err := utils.ParseAddress(record[0])
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		amount, err := utils.ParseAmount(record[1])
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if first, dup := seen[address]; dup {
			return nil, fmt.Errorf("line %d: duplicate recipient %s (first on line %d)", line, address.Hex(), first)
		}
		seen[address] = line
		leaves = append(leaves, merkle.Leaf{Address: address, Amount: amount})
	}
	return leaves, nil
}

func uploadTree(configPath string, chainID int64, token string, lockupEnd int64, tree *merkle.StandardTree) {
	if chainID <= 0 {
		fatalf("-upload needs -chain")
	}
	tokenAddress, err := utils.ParseAddress(token)
	if err != nil {
		fatalf("-upload needs a valid -token: %v", err)
	}
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		fatalf("load config: %v", err)
	}

	var metadata *types.CommitmentMetadata
	if lockupEnd > 0 {
		metadata = &types.CommitmentMetadata{LockupEndTime: lockupEnd, LockupDuration: services.DefaultLockupDuration}
	}

	logger := logrus.New()
	store := clients.NewTreeStoreClient(cfg.TreeStore, logger)
	ctx, cancel := context.WithTimeout(context.Background(), cfg.TreeStoreTimeout()+5*time.Second)
	defer cancel()

	res := store.Store(ctx, clients.StoreKey{ChainID: chainID, TokenAddress: tokenAddress}, tree, metadata)
	if !res.IsOK() {
		fatalf("upload failed (%s): %v", res.Status, res.Err)
	}
	fmt.Printf("📤 Uploaded, cid: %s\n", res.Value)
}

func fatalf(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "❌ "+format+"\n", args...)
	os.Exit(1)
}
