// Package datasets serves face verification pairs as batches of point
// clouds ready for model training.
//
// Pairs are listed in a protocol file under the dataset root. Samples are
// loaded lazily the first time a pair is requested and kept in a bounded
// cache, as a full face dataset does not fit in memory.
//
// Batches are laid out as (2, batch, npoints, channels): the leading axis
// separates the first and second cloud of every pair. Labels are class ids,
// 0 for different identity and 1 for same identity.
//
// Converting a batch into gomlx tensors is done with PairBatch.ToGomlxTensors,
// and PairDataset implements gomlx's train.Dataset through Yield.
package datasets

import "github.com/gomlx/gomlx/pkg/core/tensors"

// Dataset is implemented by batch iterators over a fixed set of examples.
type Dataset interface {
	Len() int
	Reset()
	HasNextBatch() bool
	NextBatch(augment bool) (*PairBatch, error)

	// To implement gomlx's train.Dataset interface
	Name() string
	Yield() (any, []*tensors.Tensor, []*tensors.Tensor, error)
}

var _ Dataset = (*PairDataset)(nil)
