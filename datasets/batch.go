package datasets

import (
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/pkg/errors"

	"github.com/Noofbiz/facePairs/augment"
	"github.com/Noofbiz/facePairs/fault"
	"github.com/Noofbiz/facePairs/pointcloud"
)

// Sides of a pair along the first batch axis.
const (
	Left  = 0
	Right = 1
)

// PairBatch stores a batch in one flat buffer of shape
// (2, Size, Points, Channels): Data[Left] holds the first cloud of every
// pair and Data[Right] the second. Labels[i] is the class id of pair i.
type PairBatch struct {
	Data     []float32
	Labels   []int32
	Size     int
	Points   int
	Channels int
}

// NewPairBatch allocates a zeroed batch.
func NewPairBatch(size, points, channels int) *PairBatch {
	return &PairBatch{
		Data:     make([]float32, 2*size*points*channels),
		Labels:   make([]int32, size),
		Size:     size,
		Points:   points,
		Channels: channels,
	}
}

// Shape returns the dimensions of Data.
func (b *PairBatch) Shape() [4]int {
	return [4]int{2, b.Size, b.Points, b.Channels}
}

// Cloud returns the buffer of one side of pair i, aliasing Data.
func (b *PairBatch) Cloud(side, i int) []float32 {
	n := b.Points * b.Channels
	off := (side*b.Size + i) * n
	return b.Data[off : off+n]
}

// Set copies sample s into position i.
func (b *PairBatch) Set(i int, s *Sample) error {
	for side, c := range [2]*pointcloud.Cloud{s.A, s.B} {
		if c.Rows != b.Points || c.Cols != b.Channels {
			return fault.Format("assemble batch", "", errors.Errorf("sample %d side %d is %dx%d, batch expects %dx%d",
				i, side, c.Rows, c.Cols, b.Points, b.Channels))
		}
		copy(b.Cloud(side, i), c.Data)
	}
	b.Labels[i] = s.Label
	return nil
}

// Samples views the batch as 2*Size independent clouds for augmentation.
func (b *PairBatch) Samples() augment.Samples {
	return augment.Samples{Data: b.Data, Count: 2 * b.Size, Points: b.Points, Channels: b.Channels}
}

// ToGomlxTensors converts the batch to a [2, Size, Points, Channels] float32
// tensor and a [Size] int32 label tensor.
func (b *PairBatch) ToGomlxTensors() (*tensors.Tensor, *tensors.Tensor, error) {
	if b.Size == 0 || b.Points == 0 || b.Channels == 0 {
		return tensors.FromAnyValue(make([][][][]float32, 0)), tensors.FromAnyValue(make([]int32, 0)), nil
	}
	if len(b.Data) != 2*b.Size*b.Points*b.Channels || len(b.Labels) != b.Size {
		return nil, nil, fault.Invalid("batch to tensors", errors.Errorf("buffers do not match shape %v", b.Shape()))
	}
	// Reshape flat buffer into 4D slice
	data := make([][][][]float32, 2)
	for side := range data {
		data[side] = make([][][]float32, b.Size)
		for i := range data[side] {
			cloud := b.Cloud(side, i)
			data[side][i] = make([][]float32, b.Points)
			for p := range data[side][i] {
				data[side][i][p] = cloud[p*b.Channels : (p+1)*b.Channels]
			}
		}
	}
	return tensors.FromAnyValue(data), tensors.FromAnyValue(b.Labels), nil
}
