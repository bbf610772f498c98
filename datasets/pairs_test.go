package datasets

import (
	"fmt"
	"io"
	"math"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Noofbiz/facePairs/augment"
	"github.com/Noofbiz/facePairs/fault"
	"github.com/Noofbiz/facePairs/internal/fixtures"
	"github.com/Noofbiz/facePairs/pointcloud"
	"github.com/Noofbiz/facePairs/protocol"
)

// writeDataset creates n pairs of rows x cols .npy samples under a temp
// root. Pair i alternates between same (even i) and different identity and
// its clouds start at value i and 1000+i.
func writeDataset(t *testing.T, n, rows, cols int) string {
	t.Helper()
	root := t.TempDir()
	var lines []string
	for i := 0; i < n; i++ {
		a := fmt.Sprintf("a_%02d.npy", i)
		b := fmt.Sprintf("b_%02d.npy", i)
		fixtures.WriteNPY(t, filepath.Join(root, a), rows, cols, fixtures.Grid(rows, cols, float32(i)))
		fixtures.WriteNPY(t, filepath.Join(root, b), rows, cols, fixtures.Grid(rows, cols, float32(1000+i)))
		label := "1"
		if i%2 == 1 {
			label = "0"
		}
		lines = append(lines, fmt.Sprintf("%s %s %s", label, a, b))
	}
	if err := os.WriteFile(filepath.Join(root, "pairs.txt"), []byte(strings.Join(lines, "\n")+"\n"), 0o644); err != nil {
		t.Fatalf("failed to write pairs file: %v", err)
	}
	return root
}

func testConfig(root string) Config {
	cfg := DefaultConfig(root)
	cfg.BatchSize = 4
	cfg.NPoints = 16
	cfg.Seed = 7
	return cfg
}

func TestPairDatasetEpoch(t *testing.T) {
	root := writeDataset(t, 10, 20, 3)
	ds, err := NewPairDataset(testConfig(root))
	if err != nil {
		t.Fatalf("NewPairDataset failed: %v", err)
	}
	if ds.Len() != 10 {
		t.Fatalf("expected 10 pairs, got %d", ds.Len())
	}
	if ds.NumBatches() != 3 {
		t.Fatalf("expected 3 batches, got %d", ds.NumBatches())
	}

	var sizes []int
	total := 0
	for ds.HasNextBatch() {
		b, err := ds.NextBatch(false)
		if err != nil {
			t.Fatalf("NextBatch failed: %v", err)
		}
		if got := b.Shape(); got != [4]int{2, b.Size, 16, 3} {
			t.Fatalf("unexpected batch shape %v", got)
		}
		sizes = append(sizes, b.Size)
		total += b.Size
	}
	if fmt.Sprint(sizes) != "[4 4 2]" {
		t.Fatalf("unexpected batch sizes %v", sizes)
	}
	if total != ds.Len() {
		t.Fatalf("epoch covered %d pairs, want %d", total, ds.Len())
	}
	if ds.BatchIndex() != ds.NumBatches() {
		t.Fatalf("cursor at %d after epoch, want %d", ds.BatchIndex(), ds.NumBatches())
	}

	_, err = ds.NextBatch(false)
	if !fault.IsExhausted(err) {
		t.Fatalf("expected exhausted error past the epoch, got %v", err)
	}

	ds.Reset()
	if !ds.HasNextBatch() {
		t.Fatalf("HasNextBatch false after Reset")
	}
	if ds.BatchIndex() != 0 {
		t.Fatalf("cursor at %d after Reset", ds.BatchIndex())
	}
}

func TestPairDatasetLenIndependentOfSettings(t *testing.T) {
	root := writeDataset(t, 7, 20, 3)
	for _, tc := range []struct {
		shuffle bool
		cache   int
	}{{false, 0}, {true, 0}, {false, 100}, {true, 3}} {
		cfg := testConfig(root)
		cfg.Shuffle = tc.shuffle
		cfg.CacheSize = tc.cache
		ds, err := NewPairDataset(cfg)
		if err != nil {
			t.Fatalf("NewPairDataset(shuffle=%v cache=%d) failed: %v", tc.shuffle, tc.cache, err)
		}
		if ds.Len() != 7 {
			t.Fatalf("shuffle=%v cache=%d: Len %d, want 7", tc.shuffle, tc.cache, ds.Len())
		}
		if ds.NumBatches() != 2 {
			t.Fatalf("shuffle=%v cache=%d: NumBatches %d, want 2", tc.shuffle, tc.cache, ds.NumBatches())
		}
	}
}

func TestPairDatasetLabels(t *testing.T) {
	root := writeDataset(t, 4, 20, 3)
	ds, err := NewPairDataset(testConfig(root))
	if err != nil {
		t.Fatalf("NewPairDataset failed: %v", err)
	}
	classes := ds.Classes()
	if classes["1"] != 1 || classes["0"] != 0 || len(classes) != 2 {
		t.Fatalf("unexpected classes %v", classes)
	}
	if ds.NumClasses() != 2 {
		t.Fatalf("NumClasses %d", ds.NumClasses())
	}
	if ds.Label(1) != "1" || ds.Label(0) != "0" {
		t.Fatalf("Label does not invert Classes")
	}

	b, err := ds.NextBatch(false)
	if err != nil {
		t.Fatalf("NextBatch failed: %v", err)
	}
	want := []int32{1, 0, 1, 0}
	for i, l := range b.Labels {
		if l != want[i] {
			t.Fatalf("label %d: got %d want %d", i, l, want[i])
		}
	}
}

func TestPairDatasetItemCached(t *testing.T) {
	root := writeDataset(t, 3, 20, 3)
	counter := pointcloud.NewCountingReader(pointcloud.NewFileReader())
	ds, err := NewPairDataset(testConfig(root), WithReader(counter))
	if err != nil {
		t.Fatalf("NewPairDataset failed: %v", err)
	}

	first, err := ds.Item(2)
	if err != nil {
		t.Fatalf("Item failed: %v", err)
	}
	second, err := ds.Item(2)
	if err != nil {
		t.Fatalf("Item failed: %v", err)
	}
	if first != second {
		t.Fatalf("expected cached sample on second Item call")
	}
	if counter.Loads() != 2 {
		t.Fatalf("expected 2 reads, got %d", counter.Loads())
	}
	if st := ds.Stats(); st.Hits != 1 || st.Misses != 1 {
		t.Fatalf("unexpected stats %+v", st)
	}
}

func TestPairDatasetCacheCapacity(t *testing.T) {
	root := writeDataset(t, 2, 20, 3)
	cfg := testConfig(root)
	cfg.CacheSize = 1
	counter := pointcloud.NewCountingReader(pointcloud.NewFileReader())
	ds, err := NewPairDataset(cfg, WithReader(counter))
	if err != nil {
		t.Fatalf("NewPairDataset failed: %v", err)
	}

	s0, err := ds.Item(0)
	if err != nil {
		t.Fatalf("Item(0) failed: %v", err)
	}
	s1, err := ds.Item(1)
	if err != nil {
		t.Fatalf("Item(1) failed: %v", err)
	}
	if ds.Cache().Len() != 1 {
		t.Fatalf("cache holds %d entries, want 1", ds.Cache().Len())
	}
	if _, ok := ds.Cache().Get(0); !ok {
		t.Fatalf("first index should stay cached")
	}
	if _, ok := ds.Cache().Get(1); ok {
		t.Fatalf("second index should not be cached")
	}

	path1 := ds.Pairs()[1].PathA
	if counter.LoadsOf(path1) != 1 {
		t.Fatalf("expected one read of %s, got %d", path1, counter.LoadsOf(path1))
	}
	again, err := ds.Item(1)
	if err != nil {
		t.Fatalf("Item(1) reload failed: %v", err)
	}
	if counter.LoadsOf(path1) != 2 {
		t.Fatalf("uncached index was not re-read, loads=%d", counter.LoadsOf(path1))
	}
	for i := range s1.A.Data {
		if again.A.Data[i] != s1.A.Data[i] {
			t.Fatalf("reloaded sample differs at %d", i)
		}
	}

	if _, err := ds.Item(0); err != nil {
		t.Fatalf("Item(0) failed: %v", err)
	}
	if counter.LoadsOf(ds.Pairs()[0].PathA) != 1 {
		t.Fatalf("cached index was re-read")
	}
	if cached, _ := ds.Cache().Get(0); cached != s0 {
		t.Fatalf("cached entry replaced")
	}
}

func TestPairDatasetNormalizes(t *testing.T) {
	root := writeDataset(t, 1, 20, 3)
	ds, err := NewPairDataset(testConfig(root))
	if err != nil {
		t.Fatalf("NewPairDataset failed: %v", err)
	}
	s, err := ds.Item(0)
	if err != nil {
		t.Fatalf("Item failed: %v", err)
	}
	for _, c := range []*pointcloud.Cloud{s.A, s.B} {
		maxNorm := 0.0
		var cx, cy, cz float64
		for i := 0; i < c.Rows; i++ {
			p := c.Position(i)
			maxNorm = math.Max(maxNorm, p.Norm())
			cx += p.X
			cy += p.Y
			cz += p.Z
		}
		if math.Abs(maxNorm-1) > 1e-5 {
			t.Fatalf("max norm %v, want 1", maxNorm)
		}
		n := float64(c.Rows)
		if math.Abs(cx/n) > 1e-5 || math.Abs(cy/n) > 1e-5 || math.Abs(cz/n) > 1e-5 {
			t.Fatalf("centroid (%v, %v, %v) not at origin", cx/n, cy/n, cz/n)
		}
	}
}

func TestPairDatasetNormalChannel(t *testing.T) {
	const rows, cols = 20, 7
	root := writeDataset(t, 2, rows, cols)
	cfg := testConfig(root)
	cfg.NormalChannel = true
	ds, err := NewPairDataset(cfg)
	if err != nil {
		t.Fatalf("NewPairDataset failed: %v", err)
	}
	if ds.NumChannels() != 6 {
		t.Fatalf("NumChannels %d, want 6", ds.NumChannels())
	}
	b, err := ds.NextBatch(false)
	if err != nil {
		t.Fatalf("NextBatch failed: %v", err)
	}
	if b.Channels != 6 {
		t.Fatalf("batch has %d channels", b.Channels)
	}

	// normals pass through untouched, positions are normalized
	raw := fixtures.Grid(rows, cols, 0)
	cloud := b.Cloud(Left, 0)
	for j := 3; j < 6; j++ {
		if cloud[j] != raw[j] {
			t.Fatalf("normal column %d: got %v want %v", j, cloud[j], raw[j])
		}
	}
	if cloud[0] == raw[0] && cloud[1] == raw[1] && cloud[2] == raw[2] {
		t.Fatalf("positions were not normalized")
	}
}

func TestPairDatasetDropsNormals(t *testing.T) {
	root := writeDataset(t, 2, 20, 7)
	ds, err := NewPairDataset(testConfig(root))
	if err != nil {
		t.Fatalf("NewPairDataset failed: %v", err)
	}
	s, err := ds.Item(0)
	if err != nil {
		t.Fatalf("Item failed: %v", err)
	}
	if s.A.Cols != 3 || s.A.Rows != 16 {
		t.Fatalf("sample is %dx%d, want 16x3", s.A.Rows, s.A.Cols)
	}
}

func TestPairDatasetNormalChannelMissing(t *testing.T) {
	root := writeDataset(t, 1, 20, 3)
	cfg := testConfig(root)
	cfg.NormalChannel = true
	ds, err := NewPairDataset(cfg)
	if err != nil {
		t.Fatalf("NewPairDataset failed: %v", err)
	}
	if _, err := ds.Item(0); !fault.IsFormat(err) {
		t.Fatalf("expected format error for 3 column sample with normals on, got %v", err)
	}
}

func TestPairDatasetTooFewPoints(t *testing.T) {
	root := writeDataset(t, 3, 10, 3)
	ds, err := NewPairDataset(testConfig(root))
	if err != nil {
		t.Fatalf("NewPairDataset failed: %v", err)
	}
	_, err = ds.NextBatch(false)
	if !fault.IsFormat(err) {
		t.Fatalf("expected format error, got %v", err)
	}
	if ds.BatchIndex() != 0 {
		t.Fatalf("failed batch advanced the cursor to %d", ds.BatchIndex())
	}
}

func TestPairDatasetMissingSample(t *testing.T) {
	root := writeDataset(t, 2, 20, 3)
	if err := os.Remove(filepath.Join(root, "b_01.npy")); err != nil {
		t.Fatalf("remove: %v", err)
	}
	ds, err := NewPairDataset(testConfig(root))
	if err != nil {
		t.Fatalf("NewPairDataset failed: %v", err)
	}
	_, err = ds.NextBatch(false)
	if !fault.IsIO(err) {
		t.Fatalf("expected io error, got %v", err)
	}
	if !strings.Contains(err.Error(), "pair 1") {
		t.Fatalf("error does not name the pair: %v", err)
	}
}

func TestPairDatasetDegenerateSample(t *testing.T) {
	root := writeDataset(t, 1, 20, 3)
	flat := make([]float32, 20*3)
	for i := range flat {
		flat[i] = 4
	}
	fixtures.WriteNPY(t, filepath.Join(root, "a_00.npy"), 20, 3, flat)
	ds, err := NewPairDataset(testConfig(root))
	if err != nil {
		t.Fatalf("NewPairDataset failed: %v", err)
	}
	if _, err := ds.Item(0); !fault.IsDegenerate(err) {
		t.Fatalf("expected degenerate error, got %v", err)
	}

	cfg := testConfig(root)
	cfg.Normalize = false
	ds, err = NewPairDataset(cfg)
	if err != nil {
		t.Fatalf("NewPairDataset failed: %v", err)
	}
	if _, err := ds.Item(0); err != nil {
		t.Fatalf("unnormalized flat sample should load, got %v", err)
	}
}

func TestPairDatasetItemOutOfRange(t *testing.T) {
	root := writeDataset(t, 2, 20, 3)
	ds, err := NewPairDataset(testConfig(root))
	if err != nil {
		t.Fatalf("NewPairDataset failed: %v", err)
	}
	for _, i := range []int{-1, 2} {
		if _, err := ds.Item(i); !fault.IsInvalid(err) {
			t.Fatalf("Item(%d): expected invalid error, got %v", i, err)
		}
	}
}

func TestPairDatasetMissingProtocol(t *testing.T) {
	cfg := testConfig(t.TempDir())
	if _, err := NewPairDataset(cfg); !fault.IsIO(err) {
		t.Fatalf("expected io error, got %v", err)
	}
}

// firstValues returns the first value of the left cloud of every pair served
// in one epoch.
func firstValues(t *testing.T, ds *PairDataset) []float32 {
	t.Helper()
	var out []float32
	for ds.HasNextBatch() {
		b, err := ds.NextBatch(false)
		if err != nil {
			t.Fatalf("NextBatch failed: %v", err)
		}
		for i := 0; i < b.Size; i++ {
			out = append(out, b.Cloud(Left, i)[0])
		}
	}
	return out
}

func TestPairDatasetShuffle(t *testing.T) {
	root := writeDataset(t, 10, 20, 3)
	cfg := testConfig(root)
	cfg.Normalize = false
	cfg.Shuffle = true

	ds1, err := NewPairDataset(cfg, WithRandSource(rand.NewPCG(1, 2)))
	if err != nil {
		t.Fatalf("NewPairDataset failed: %v", err)
	}
	ds2, err := NewPairDataset(cfg, WithRandSource(rand.NewPCG(1, 2)))
	if err != nil {
		t.Fatalf("NewPairDataset failed: %v", err)
	}
	order1 := firstValues(t, ds1)
	order2 := firstValues(t, ds2)
	if fmt.Sprint(order1) != fmt.Sprint(order2) {
		t.Fatalf("same seed gave different orders: %v vs %v", order1, order2)
	}

	seen := make(map[float32]bool)
	for _, v := range order1 {
		seen[v] = true
	}
	for i := 0; i < 10; i++ {
		if !seen[float32(i)] {
			t.Fatalf("pair %d missing from shuffled epoch %v", i, order1)
		}
	}

	// identity order without shuffle
	cfg.Shuffle = false
	ds3, err := NewPairDataset(cfg)
	if err != nil {
		t.Fatalf("NewPairDataset failed: %v", err)
	}
	for i, v := range firstValues(t, ds3) {
		if v != float32(i) {
			t.Fatalf("position %d holds pair %v without shuffle", i, v)
		}
	}
}

type countingAugmenter struct {
	calls int
	last  augment.Samples
}

func (c *countingAugmenter) Apply(s augment.Samples) error {
	c.calls++
	c.last = s
	return nil
}

func TestPairDatasetAugmenterInjected(t *testing.T) {
	root := writeDataset(t, 4, 20, 3)
	aug := &countingAugmenter{}
	ds, err := NewPairDataset(testConfig(root), WithAugmenter(aug))
	if err != nil {
		t.Fatalf("NewPairDataset failed: %v", err)
	}
	if _, err := ds.NextBatch(false); err != nil {
		t.Fatalf("NextBatch failed: %v", err)
	}
	if aug.calls != 0 {
		t.Fatalf("augmenter ran without augment flag")
	}
	ds.Reset()
	if _, err := ds.NextBatch(true); err != nil {
		t.Fatalf("NextBatch failed: %v", err)
	}
	if aug.calls != 1 {
		t.Fatalf("augmenter ran %d times, want 1", aug.calls)
	}
	if aug.last.Count != 8 || aug.last.Points != 16 || aug.last.Channels != 3 {
		t.Fatalf("augmenter saw %d x %d x %d", aug.last.Count, aug.last.Points, aug.last.Channels)
	}
}

func TestPairDatasetAugmentKeepsShapeAndCache(t *testing.T) {
	root := writeDataset(t, 6, 20, 7)
	cfg := testConfig(root)
	cfg.NormalChannel = true
	ds, err := NewPairDataset(cfg)
	if err != nil {
		t.Fatalf("NewPairDataset failed: %v", err)
	}
	for ds.HasNextBatch() {
		b, err := ds.NextBatch(true)
		if err != nil {
			t.Fatalf("NextBatch failed: %v", err)
		}
		if got := b.Shape(); got != [4]int{2, b.Size, 16, 6} {
			t.Fatalf("augmented batch has shape %v", got)
		}
		if len(b.Data) != 2*b.Size*16*6 {
			t.Fatalf("augmented buffer has %d values", len(b.Data))
		}
	}

	// augmentation works on batch copies, cached samples keep unit norm
	s, err := ds.Item(0)
	if err != nil {
		t.Fatalf("Item failed: %v", err)
	}
	maxNorm := 0.0
	for i := 0; i < s.A.Rows; i++ {
		maxNorm = math.Max(maxNorm, s.A.Position(i).Norm())
	}
	if math.Abs(maxNorm-1) > 1e-5 {
		t.Fatalf("cached sample modified by augmentation, max norm %v", maxNorm)
	}
}

func TestPairDatasetYield(t *testing.T) {
	root := writeDataset(t, 5, 20, 3)
	cfg := testConfig(root)
	cfg.Augment = true
	ds, err := NewPairDataset(cfg)
	if err != nil {
		t.Fatalf("NewPairDataset failed: %v", err)
	}
	if ds.Name() == "" {
		t.Fatalf("empty dataset name")
	}

	batches := 0
	for {
		spec, inputs, labels, err := ds.Yield()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("Yield failed: %v", err)
		}
		if spec == nil || len(inputs) != 1 || len(labels) != 1 {
			t.Fatalf("unexpected Yield result: spec=%v inputs=%d labels=%d", spec, len(inputs), len(labels))
		}
		dims := inputs[0].Shape().Dimensions
		if len(dims) != 4 || dims[0] != 2 || dims[2] != 16 || dims[3] != 3 {
			t.Fatalf("unexpected input dims %v", dims)
		}
		batches++
	}
	if batches != 2 {
		t.Fatalf("yielded %d batches, want 2", batches)
	}

	ds.Reset()
	if _, _, _, err := ds.Yield(); err != nil {
		t.Fatalf("Yield after Reset failed: %v", err)
	}
}

// staticResolver serves a fixed index.
type staticResolver struct {
	idx *protocol.Index
}

func (r staticResolver) Resolve(root, protocolPath string) (*protocol.Index, error) {
	return r.idx, nil
}

func TestPairDatasetResolverLabels(t *testing.T) {
	root := writeDataset(t, 2, 20, 3)
	pairs := []protocol.Pair{
		{Label: "same", PathA: filepath.Join(root, "a_00.npy"), PathB: filepath.Join(root, "b_00.npy")},
		{Label: "other", PathA: filepath.Join(root, "a_01.npy"), PathB: filepath.Join(root, "b_01.npy")},
	}

	collapsed := staticResolver{&protocol.Index{Pairs: pairs, PosLabel: "same", NegLabel: "same"}}
	if _, err := NewPairDataset(testConfig(root), WithResolver(collapsed)); !fault.IsFormat(err) {
		t.Fatalf("expected format error for identical labels, got %v", err)
	}

	resolver := staticResolver{&protocol.Index{Pairs: pairs, PosLabel: "same", NegLabel: "diff"}}
	ds, err := NewPairDataset(testConfig(root), WithResolver(resolver))
	if err != nil {
		t.Fatalf("NewPairDataset failed: %v", err)
	}
	s, err := ds.Item(0)
	if err != nil {
		t.Fatalf("Item(0) failed: %v", err)
	}
	if s.Label != 1 {
		t.Fatalf("label %d, want 1", s.Label)
	}
	if _, err := ds.Item(1); !fault.IsFormat(err) {
		t.Fatalf("expected format error for unknown label, got %v", err)
	}
	if ds.Cache().Len() != 1 {
		t.Fatalf("pair with unknown label was cached")
	}
	if _, err := ds.NextBatch(false); !fault.IsFormat(err) {
		t.Fatalf("expected batch to fail on unknown label, got %v", err)
	}
}

func TestPairDatasetLabelOutOfRange(t *testing.T) {
	root := writeDataset(t, 1, 20, 3)
	ds, err := NewPairDataset(testConfig(root))
	if err != nil {
		t.Fatalf("NewPairDataset failed: %v", err)
	}
	for _, id := range []int32{-1, 2, 100} {
		if got := ds.Label(id); got != "" {
			t.Fatalf("Label(%d) = %q, want empty", id, got)
		}
	}
}
