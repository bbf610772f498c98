// Command pairstat walks a face pair dataset for a number of epochs and
// reports batch, label and point norm statistics. It is a quick way to check
// that a dataset root, its protocol file and the loader settings agree
// before starting a training run.
//
// Usage:
//
//	pairstat -root /data/frgc -pairs pairs.txt -epochs 2 -augment -plot plots/norms.png
package main

import (
	"encoding/csv"
	"flag"
	"fmt"
	"image/color"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/golang/geo/r3"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/Noofbiz/facePairs/datasets"
)

// histBins is the number of bins of the norm histogram.
const histBins = 40

// epochStats summarises one pass over the dataset.
type epochStats struct {
	Epoch     int
	Batches   int
	Pairs     int
	Same      int
	Different int
	MeanNorm  float64
	StdNorm   float64
	Hits      int
	Misses    int
	Elapsed   time.Duration
}

func main() {
	configPath := flag.String("config", "", "path to a JSON dataset config; explicit flags override its values")
	root := flag.String("root", ".", "dataset root directory")
	pairs := flag.String("pairs", "pairs.txt", "protocol file, relative to root unless absolute")
	batchSize := flag.Int("batch-size", 32, "pairs per batch")
	npoints := flag.Int("npoints", 2900, "points kept per cloud")
	normalChannel := flag.Bool("normal-channel", false, "keep normals (6 channels instead of 3)")
	shuffle := flag.Bool("shuffle", false, "shuffle pair order every epoch")
	augmentFlag := flag.Bool("augment", false, "augment every batch")
	seed := flag.Uint64("seed", 0, "random seed for shuffling and augmentation (0 = time based)")
	epochs := flag.Int("epochs", 1, "number of epochs to walk")
	plotPath := flag.String("plot", "", "if set, write a histogram of point norms of the first epoch to this PNG")
	outCSV := flag.String("out-csv", "", "if set, write per-epoch statistics to this CSV file")
	verbose := flag.Bool("verbose", false, "enable debug logging")
	flag.Parse()

	logger := newLogger(*verbose)
	defer func() { _ = logger.Sync() }()

	cfg := datasets.DefaultConfig(*root)
	if *configPath != "" {
		loaded, err := datasets.LoadConfig(*configPath)
		if err != nil {
			logger.Fatalw("failed to load config", "path", *configPath, "error", err)
		}
		cfg = loaded
		logger.Infow("loaded config", "path", *configPath)
	}

	// flags given on the command line take precedence over the JSON file
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "root":
			cfg.Root = *root
		case "pairs":
			cfg.ProtocolFilePath = *pairs
		case "batch-size":
			cfg.BatchSize = *batchSize
		case "npoints":
			cfg.NPoints = *npoints
		case "normal-channel":
			cfg.NormalChannel = *normalChannel
		case "shuffle":
			cfg.Shuffle = *shuffle
		case "augment":
			cfg.Augment = *augmentFlag
		case "seed":
			cfg.Seed = *seed
		}
	})
	if cfg.Root == "" {
		cfg.Root = *root
	}

	if !filepath.IsAbs(cfg.ProtocolFilePath) {
		if _, err := os.Stat(filepath.Join(cfg.Root, cfg.ProtocolFilePath)); os.IsNotExist(err) {
			found, ferr := datasets.FindProtocolFile(cfg.Root)
			if ferr != nil {
				logger.Fatalw("no protocol file", "root", cfg.Root, "error", ferr)
			}
			logger.Warnw("protocol file not found, using discovered file",
				"wanted", cfg.ProtocolFilePath, "found", found)
			cfg.ProtocolFilePath = found
		}
	}

	ds, err := datasets.NewPairDataset(cfg, datasets.WithLogger(logger.Named("datasets")))
	if err != nil {
		logger.Fatalw("failed to open dataset", "root", cfg.Root, "error", err)
	}
	logger.Infow("dataset loaded",
		"pairs", ds.Len(), "batches", ds.NumBatches(), "channels", ds.NumChannels(),
		"classes", ds.Classes())

	var all []epochStats
	var firstNorms []float64
	for e := 0; e < *epochs; e++ {
		if e > 0 {
			ds.Reset()
		}
		st, norms, err := walkEpoch(ds, cfg.Augment)
		if err != nil {
			logger.Fatalw("epoch failed", "epoch", e, "batch", ds.BatchIndex(), "error", err)
		}
		st.Epoch = e
		if e == 0 {
			firstNorms = norms
		}
		all = append(all, st)
		logger.Infow("epoch done",
			"epoch", e, "batches", st.Batches, "pairs", st.Pairs,
			"same", st.Same, "different", st.Different,
			"mean_norm", st.MeanNorm, "std_norm", st.StdNorm,
			"cache_hits", st.Hits, "cache_misses", st.Misses,
			"elapsed", st.Elapsed)
	}

	if *outCSV != "" {
		if err := writeStatsCSV(*outCSV, all); err != nil {
			logger.Fatalw("failed to write statistics", "path", *outCSV, "error", err)
		}
		logger.Infow("wrote statistics", "path", *outCSV)
	}
	if *plotPath != "" {
		if err := plotNorms(*plotPath, firstNorms); err != nil {
			logger.Fatalw("failed to plot norms", "path", *plotPath, "error", err)
		}
		logger.Infow("wrote norm histogram", "path", *plotPath)
	}
}

func newLogger(verbose bool) *zap.SugaredLogger {
	var (
		l   *zap.Logger
		err error
	)
	if verbose {
		l, err = zap.NewDevelopment()
	} else {
		l, err = zap.NewProduction()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	return l.Sugar()
}

// walkEpoch consumes the remaining batches of the current epoch and returns
// its statistics together with the norm of every point served.
func walkEpoch(ds *datasets.PairDataset, augment bool) (epochStats, []float64, error) {
	var st epochStats
	var norms []float64
	start := time.Now()
	before := ds.Stats()
	for ds.HasNextBatch() {
		b, err := ds.NextBatch(augment)
		if err != nil {
			return st, nil, err
		}
		st.Batches++
		st.Pairs += b.Size
		for _, l := range b.Labels {
			if l == 1 {
				st.Same++
			} else {
				st.Different++
			}
		}
		for side := datasets.Left; side <= datasets.Right; side++ {
			for i := 0; i < b.Size; i++ {
				cloud := b.Cloud(side, i)
				for p := 0; p < b.Points; p++ {
					row := cloud[p*b.Channels:]
					v := r3.Vector{X: float64(row[0]), Y: float64(row[1]), Z: float64(row[2])}
					norms = append(norms, v.Norm())
				}
			}
		}
	}
	after := ds.Stats()
	st.Hits = after.Hits - before.Hits
	st.Misses = after.Misses - before.Misses
	if len(norms) > 0 {
		st.MeanNorm, st.StdNorm = stat.MeanStdDev(norms, nil)
	}
	st.Elapsed = time.Since(start)
	return st, norms, nil
}

func writeStatsCSV(path string, all []epochStats) error {
	if err := ensureDir(filepath.Dir(path)); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	w := csv.NewWriter(f)
	_ = w.Write([]string{"epoch", "batches", "pairs", "same", "different", "mean_norm", "std_norm", "cache_hits", "cache_misses", "elapsed_ms"})
	for _, st := range all {
		_ = w.Write([]string{
			strconv.Itoa(st.Epoch),
			strconv.Itoa(st.Batches),
			strconv.Itoa(st.Pairs),
			strconv.Itoa(st.Same),
			strconv.Itoa(st.Different),
			strconv.FormatFloat(st.MeanNorm, 'f', 6, 64),
			strconv.FormatFloat(st.StdNorm, 'f', 6, 64),
			strconv.Itoa(st.Hits),
			strconv.Itoa(st.Misses),
			strconv.FormatInt(st.Elapsed.Milliseconds(), 10),
		})
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// plotNorms writes a PNG histogram of point distances from the origin.
func plotNorms(path string, norms []float64) error {
	if len(norms) == 0 {
		return fmt.Errorf("no points to plot")
	}
	p := plot.New()
	p.Title.Text = "Point norms"
	p.X.Label.Text = "distance from origin"
	p.Y.Label.Text = "points"

	h, err := plotter.NewHist(plotter.Values(norms), histBins)
	if err != nil {
		return err
	}
	h.FillColor = color.RGBA{R: 20, G: 80, B: 200, A: 180}
	p.Add(h)
	p.Add(plotter.NewGrid())

	if err := ensureDir(filepath.Dir(path)); err != nil {
		return err
	}
	return p.Save(8*vg.Inch, 6*vg.Inch, path)
}

func ensureDir(path string) error {
	if path == "" || path == "." {
		return nil
	}
	return os.MkdirAll(path, 0755)
}
