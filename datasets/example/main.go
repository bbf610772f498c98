package main

// Example command that loads a face pair dataset, walks one epoch and
// converts the first batch into gomlx tensors.
//
// Usage:
//   go run ./datasets/example /path/to/dataset
//
// The dataset root must hold a protocol file (pairs.txt or any *.txt found
// by datasets.FindProtocolFile) listing "<label> <sample A> <sample B>"
// lines, with samples stored as .npy arrays or ASCII .ply meshes.

import (
	"fmt"
	"log"
	"os"

	"github.com/Noofbiz/facePairs/datasets"
)

func main() {
	root := "../assets/frgc"
	if len(os.Args) > 1 {
		root = os.Args[1]
	}

	protocol, err := datasets.FindProtocolFile(root)
	if err != nil {
		log.Fatalf("failed to find protocol file: %v", err)
	}
	fmt.Printf("Using protocol file: %s\n", protocol)

	cfg := datasets.DefaultConfig(root)
	cfg.ProtocolFilePath = protocol
	cfg.BatchSize = 8
	ds, err := datasets.NewPairDataset(cfg)
	if err != nil {
		log.Fatalf("failed to load pair dataset: %v", err)
	}
	fmt.Printf("Total pairs available: %d (%d batches of %d)\n", ds.Len(), ds.NumBatches(), cfg.BatchSize)

	if !ds.HasNextBatch() {
		fmt.Println("Dataset is empty")
		return
	}
	b, err := ds.NextBatch(true)
	if err != nil {
		log.Fatalf("failed to build batch: %v", err)
	}
	inT, laT, err := b.ToGomlxTensors()
	if err != nil {
		log.Fatalf("failed to convert batch to gomlx tensors: %v", err)
	}
	fmt.Printf("Created tensors: input=%s labels=%s\n", inT.Shape(), laT.Shape())
	fmt.Printf("  First labels: %v\n", b.Labels[:min(4, b.Size)])

	// Drain the rest of the epoch
	n := 1
	for ds.HasNextBatch() {
		if _, err := ds.NextBatch(false); err != nil {
			log.Fatalf("failed to build batch %d: %v", n, err)
		}
		n++
	}
	st := ds.Stats()
	fmt.Printf("Served %d batches, cache holds %d pairs (hits=%d misses=%d)\n",
		n, ds.Cache().Len(), st.Hits, st.Misses)
}
