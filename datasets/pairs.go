package datasets

import (
	"io"
	"math/rand/v2"
	"time"

	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/Noofbiz/facePairs/augment"
	"github.com/Noofbiz/facePairs/fault"
	"github.com/Noofbiz/facePairs/pointcloud"
	"github.com/Noofbiz/facePairs/protocol"
)

// Augmenter perturbs a batch in place without changing its shape.
type Augmenter interface {
	Apply(s augment.Samples) error
}

// CacheStats counts Item lookups.
type CacheStats struct {
	Hits   int
	Misses int
}

// PairDataset serves face pairs listed in a protocol file as batches of
// point clouds. Samples are read lazily on first use and kept in a bounded
// SampleCache.
//
// A PairDataset is not safe for concurrent use.
type PairDataset struct {
	cfg Config

	pairs   []protocol.Pair
	classes map[string]int32
	// labels[id] is the protocol label of class id
	labels [2]string

	resolver  protocol.Resolver
	reader    pointcloud.Reader
	augmenter Augmenter
	src       rand.Source
	rng       *rand.Rand
	logger    *zap.SugaredLogger

	cache *SampleCache
	stats CacheStats

	// Epoch state
	idxs       []int
	numBatches int
	batchIdx   int
}

// Option customises a PairDataset.
type Option func(*PairDataset)

// WithResolver replaces the protocol file resolver.
func WithResolver(r protocol.Resolver) Option {
	return func(d *PairDataset) { d.resolver = r }
}

// WithReader replaces the sample reader.
func WithReader(r pointcloud.Reader) Option {
	return func(d *PairDataset) { d.reader = r }
}

// WithAugmenter replaces the augmentation pipeline used by NextBatch.
func WithAugmenter(a Augmenter) Option {
	return func(d *PairDataset) { d.augmenter = a }
}

// WithRandSource sets the source used for shuffling and, unless an
// augmenter is given, augmentation.
func WithRandSource(src rand.Source) Option {
	return func(d *PairDataset) { d.src = src }
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *zap.SugaredLogger) Option {
	return func(d *PairDataset) { d.logger = l }
}

// NewPairDataset resolves the protocol file of cfg and prepares the first
// epoch.
func NewPairDataset(cfg Config, opts ...Option) (*PairDataset, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	d := &PairDataset{cfg: cfg}
	for _, opt := range opts {
		opt(d)
	}
	if d.resolver == nil {
		d.resolver = protocol.NewFileResolver(cfg.PosLabel, cfg.NegLabel, cfg.SampleSuffix)
	}
	if d.reader == nil {
		d.reader = pointcloud.NewFileReader()
	}
	if d.src == nil {
		seed := cfg.Seed
		if seed == 0 {
			seed = uint64(time.Now().UnixNano())
		}
		d.src = rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)
	}
	d.rng = rand.New(d.src)
	if d.augmenter == nil {
		d.augmenter = augment.NewPipeline(augment.NewRandomProvider(d.src, augment.DefaultParams()))
	}
	if d.logger == nil {
		d.logger = zap.NewNop().Sugar()
	}

	idx, err := d.resolver.Resolve(cfg.Root, cfg.ProtocolFilePath)
	if err != nil {
		return nil, errors.Wrap(err, "failed to resolve pairs")
	}
	if idx.PosLabel == idx.NegLabel {
		return nil, fault.Formatf("resolve pairs", cfg.ProtocolFilePath,
			"positive and negative label are both %q", idx.PosLabel)
	}
	d.pairs = idx.Pairs
	d.labels = [2]string{idx.NegLabel, idx.PosLabel}
	d.classes = map[string]int32{idx.NegLabel: 0, idx.PosLabel: 1}
	d.cache = NewSampleCache(cfg.CacheSize)

	d.logger.Debugw("pair dataset loaded", "root", cfg.Root, "protocol", cfg.ProtocolFilePath,
		"pairs", len(d.pairs), "cache_size", cfg.CacheSize)
	d.Reset()
	return d, nil
}

// Name returns the name of the dataset
func (d *PairDataset) Name() string {
	return "PairDataset"
}

// Len returns the number of pairs.
func (d *PairDataset) Len() int {
	return len(d.pairs)
}

// Config returns the parameters the dataset was built with.
func (d *PairDataset) Config() Config {
	return d.cfg
}

// NumChannels returns 6 when normals are kept, else 3.
func (d *PairDataset) NumChannels() int {
	return d.cfg.Channels()
}

// NumClasses is always 2: different and same identity.
func (d *PairDataset) NumClasses() int {
	return len(d.labels)
}

// Classes maps protocol labels to class ids.
func (d *PairDataset) Classes() map[string]int32 {
	out := make(map[string]int32, len(d.classes))
	for k, v := range d.classes {
		out[k] = v
	}
	return out
}

// Label returns the protocol label of a class id, or "" for an unknown id.
func (d *PairDataset) Label(class int32) string {
	if class < 0 || int(class) >= len(d.labels) {
		return ""
	}
	return d.labels[class]
}

// Pairs returns a copy of the pair list in protocol order.
func (d *PairDataset) Pairs() []protocol.Pair {
	return append([]protocol.Pair(nil), d.pairs...)
}

// Cache exposes the sample cache for inspection.
func (d *PairDataset) Cache() *SampleCache {
	return d.cache
}

// Stats returns cache hit and miss counts since construction.
func (d *PairDataset) Stats() CacheStats {
	return d.stats
}

// Item returns pair i, loading and caching it on first use. The returned
// clouds may be shared with the cache and must not be modified.
func (d *PairDataset) Item(i int) (*Sample, error) {
	if i < 0 || i >= len(d.pairs) {
		return nil, fault.Invalid("item", errors.Errorf("index %d out of range [0, %d)", i, len(d.pairs)))
	}
	if s, ok := d.cache.Get(i); ok {
		d.stats.Hits++
		return s, nil
	}
	d.stats.Misses++

	p := d.pairs[i]
	label, ok := d.classes[p.Label]
	if !ok {
		return nil, fault.Formatf("item", "", "pair %d has unknown label %q", i, p.Label)
	}
	a, err := d.loadCloud(p.PathA)
	if err != nil {
		return nil, errors.Wrapf(err, "pair %d", i)
	}
	b, err := d.loadCloud(p.PathB)
	if err != nil {
		return nil, errors.Wrapf(err, "pair %d", i)
	}
	s := &Sample{A: a, B: b, Label: label}

	if d.cache.Put(i, s) && d.cache.Len() == d.cache.Capacity() {
		d.logger.Debugw("sample cache full", "capacity", d.cache.Capacity())
	}
	return s, nil
}

// loadCloud reads one sample and brings it to NPoints x NumChannels.
func (d *PairDataset) loadCloud(path string) (*pointcloud.Cloud, error) {
	c, err := d.reader.Read(path)
	if err != nil {
		return nil, err
	}
	c, err = c.DropCurvature().Head(d.cfg.NPoints)
	if err != nil {
		return nil, fault.Format("load sample", path, err)
	}
	if d.cfg.Normalize {
		if c, err = pointcloud.Normalize(c); err != nil {
			return nil, errors.Wrap(err, path)
		}
	}
	channels := d.cfg.Channels()
	if c.Cols < channels {
		return nil, fault.Formatf("load sample", path, "sample has %d channels, need %d", c.Cols, channels)
	}
	return c.Columns(channels), nil
}

// Reset starts a new epoch: the pair order is regenerated (shuffled if
// configured) and the batch cursor rewinds.
func (d *PairDataset) Reset() {
	n := len(d.pairs)
	d.idxs = make([]int, n)
	for i := range d.idxs {
		d.idxs[i] = i
	}
	if d.cfg.Shuffle {
		d.rng.Shuffle(n, func(i, j int) {
			d.idxs[i], d.idxs[j] = d.idxs[j], d.idxs[i]
		})
	}
	d.numBatches = (n + d.cfg.BatchSize - 1) / d.cfg.BatchSize
	d.batchIdx = 0
	d.logger.Debugw("epoch reset", "batches", d.numBatches, "cached", d.cache.Len(),
		"cache_hits", d.stats.Hits, "cache_misses", d.stats.Misses)
}

// NumBatches returns the number of batches per epoch.
func (d *PairDataset) NumBatches() int {
	return d.numBatches
}

// BatchIndex returns the number of batches served this epoch.
func (d *PairDataset) BatchIndex() int {
	return d.batchIdx
}

// HasNextBatch reports whether the epoch has batches left.
func (d *PairDataset) HasNextBatch() bool {
	return d.batchIdx < d.numBatches
}

// NextBatch assembles the next batch of the epoch. The last batch may hold
// fewer than BatchSize pairs. If any sample fails to load the batch is
// abandoned and the cursor stays put.
func (d *PairDataset) NextBatch(augmentBatch bool) (*PairBatch, error) {
	if !d.HasNextBatch() {
		return nil, fault.Exhausted("next batch", d.batchIdx, d.numBatches)
	}
	start := d.batchIdx * d.cfg.BatchSize
	end := min(start+d.cfg.BatchSize, len(d.pairs))

	b := NewPairBatch(end-start, d.cfg.NPoints, d.cfg.Channels())
	for i := range b.Size {
		s, err := d.Item(d.idxs[start+i])
		if err != nil {
			return nil, err
		}
		if err := b.Set(i, s); err != nil {
			return nil, err
		}
	}
	d.batchIdx++

	if augmentBatch {
		if err := d.augmenter.Apply(b.Samples()); err != nil {
			return nil, errors.Wrap(err, "augment batch")
		}
	}
	return b, nil
}

// Yield returns the next batch as gomlx tensors, augmented when
// Config.Augment is set, and io.EOF at the end of an epoch.
func (d *PairDataset) Yield() (spec any, inputs []*tensors.Tensor, labels []*tensors.Tensor, err error) {
	if !d.HasNextBatch() {
		return nil, nil, nil, io.EOF
	}
	b, err := d.NextBatch(d.cfg.Augment)
	if err != nil {
		return nil, nil, nil, err
	}
	in, la, err := b.ToGomlxTensors()
	if err != nil {
		return nil, nil, nil, err
	}
	return d, []*tensors.Tensor{in}, []*tensors.Tensor{la}, nil
}
