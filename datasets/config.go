package datasets

import (
	"encoding/json"
	"os"

	"github.com/pkg/errors"

	"github.com/Noofbiz/facePairs/fault"
	"github.com/Noofbiz/facePairs/protocol"
)

const opConfig = "load config"

// Config holds the construction parameters of a PairDataset.
type Config struct {
	// Root is the dataset base directory. Relative protocol and sample
	// paths are resolved against it.
	Root string `json:"root"`

	// ProtocolFilePath names the pairs file, relative to Root unless absolute.
	ProtocolFilePath string `json:"protocol_file_path"`

	// SampleSuffix is appended to sample ids in the pairs file that have no
	// extension.
	SampleSuffix string `json:"sample_suffix"`

	// BatchSize is the number of pairs per batch. The last batch of an
	// epoch may be smaller.
	BatchSize int `json:"batch_size"`

	// NPoints is the number of points kept per cloud. Clouds with fewer
	// points are rejected.
	NPoints int `json:"npoints"`

	// Normalize maps every cloud into the unit sphere.
	Normalize bool `json:"normalize"`

	// NormalChannel keeps the normal columns, giving 6 channels instead of 3.
	NormalChannel bool `json:"normal_channel"`

	// CacheSize caps how many distinct pairs are kept in memory. Zero
	// disables caching.
	CacheSize int `json:"cache_size"`

	// Shuffle permutes the pair order on every Reset.
	Shuffle bool `json:"shuffle"`

	// Augment makes Yield return augmented batches.
	Augment bool `json:"augment"`

	// Seed drives shuffling and augmentation. If zero, a time-based seed is used.
	Seed uint64 `json:"seed"`

	// PosLabel and NegLabel are the same and different identity labels
	// used in the pairs file.
	PosLabel string `json:"pos_label"`
	NegLabel string `json:"neg_label"`
}

// DefaultConfig returns the default parameters for a dataset under root.
func DefaultConfig(root string) Config {
	return Config{
		Root:             root,
		ProtocolFilePath: "pairs.txt",
		BatchSize:        32,
		NPoints:          2900,
		Normalize:        true,
		NormalChannel:    false,
		CacheSize:        15000,
		Shuffle:          false,
		PosLabel:         protocol.DefaultPosLabel,
		NegLabel:         protocol.DefaultNegLabel,
	}
}

// LoadConfig reads a JSON config file. Fields missing from the file keep
// their DefaultConfig values.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig("")
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fault.IO(opConfig, path, err)
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return cfg, fault.Format(opConfig, path, errors.Wrap(err, "parse json"))
	}
	return cfg, cfg.Validate()
}

// Validate checks the numeric parameters.
func (c Config) Validate() error {
	switch {
	case c.BatchSize <= 0:
		return fault.Invalid(opConfig, errors.Errorf("batch size must be positive, got %d", c.BatchSize))
	case c.NPoints <= 0:
		return fault.Invalid(opConfig, errors.Errorf("npoints must be positive, got %d", c.NPoints))
	case c.CacheSize < 0:
		return fault.Invalid(opConfig, errors.Errorf("cache size must not be negative, got %d", c.CacheSize))
	case c.ProtocolFilePath == "":
		return fault.Invalid(opConfig, errors.New("protocol file path is required"))
	}
	return nil
}

// Channels returns the per-point channel count of emitted clouds.
func (c Config) Channels() int {
	if c.NormalChannel {
		return 6
	}
	return 3
}
