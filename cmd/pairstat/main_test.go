package main

import (
	"encoding/csv"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Noofbiz/facePairs/datasets"
	"github.com/Noofbiz/facePairs/internal/fixtures"
)

func writeRoot(t *testing.T, n int) string {
	t.Helper()
	root := t.TempDir()
	var lines []string
	for i := 0; i < n; i++ {
		a, b := fmt.Sprintf("s%d_a.npy", i), fmt.Sprintf("s%d_b.npy", i)
		fixtures.WriteNPY(t, filepath.Join(root, a), 12, 3, fixtures.Grid(12, 3, float32(i)))
		fixtures.WriteNPY(t, filepath.Join(root, b), 12, 3, fixtures.Grid(12, 3, float32(i+50)))
		label := "1"
		if i%3 == 0 {
			label = "0"
		}
		lines = append(lines, label+" "+a+" "+b)
	}
	if err := os.WriteFile(filepath.Join(root, "pairs.txt"), []byte(strings.Join(lines, "\n")), 0o644); err != nil {
		t.Fatalf("failed to write pairs: %v", err)
	}
	return root
}

func TestWalkEpoch(t *testing.T) {
	root := writeRoot(t, 5)
	cfg := datasets.DefaultConfig(root)
	cfg.BatchSize = 2
	cfg.NPoints = 10
	ds, err := datasets.NewPairDataset(cfg)
	if err != nil {
		t.Fatalf("NewPairDataset failed: %v", err)
	}

	st, norms, err := walkEpoch(ds, false)
	if err != nil {
		t.Fatalf("walkEpoch failed: %v", err)
	}
	if st.Batches != 3 || st.Pairs != 5 || st.Same != 3 || st.Different != 2 {
		t.Fatalf("unexpected stats %+v", st)
	}
	if st.Misses != 5 || st.Hits != 0 {
		t.Fatalf("unexpected cache counters %+v", st)
	}
	if len(norms) != 5*2*10 {
		t.Fatalf("got %d norms", len(norms))
	}
	for _, n := range norms {
		if n > 1+1e-5 {
			t.Fatalf("normalized point outside unit sphere: %v", n)
		}
	}
	if st.MeanNorm <= 0 || st.MeanNorm > 1 || math.IsNaN(st.StdNorm) {
		t.Fatalf("unexpected norm stats %+v", st)
	}

	ds.Reset()
	st, _, err = walkEpoch(ds, true)
	if err != nil {
		t.Fatalf("walkEpoch failed: %v", err)
	}
	if st.Hits != 5 || st.Misses != 0 {
		t.Fatalf("second epoch should be served from cache: %+v", st)
	}
}

func TestWriteOutputs(t *testing.T) {
	dir := t.TempDir()
	csvPath := filepath.Join(dir, "out", "stats.csv")
	all := []epochStats{{Epoch: 0, Batches: 3, Pairs: 5}, {Epoch: 1, Batches: 3, Pairs: 5}}
	if err := writeStatsCSV(csvPath, all); err != nil {
		t.Fatalf("writeStatsCSV failed: %v", err)
	}
	f, err := os.Open(csvPath)
	if err != nil {
		t.Fatalf("open csv: %v", err)
	}
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	if len(rows) != 3 || rows[2][0] != "1" {
		t.Fatalf("unexpected csv rows %v", rows)
	}

	pngPath := filepath.Join(dir, "plots", "norms.png")
	if err := plotNorms(pngPath, []float64{0.2, 0.5, 0.5, 0.9, 1}); err != nil {
		t.Fatalf("plotNorms failed: %v", err)
	}
	if fi, err := os.Stat(pngPath); err != nil || fi.Size() == 0 {
		t.Fatalf("histogram not written: %v", err)
	}
	if err := plotNorms(pngPath, nil); err == nil {
		t.Fatalf("expected error for empty norms")
	}
}
