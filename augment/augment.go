// Package augment perturbs batches of point clouds for training.
//
// The Pipeline fixes the order of the transforms and which channels each one
// sees; the transforms themselves come from a Provider so the ordering can
// be exercised without randomness.
package augment

import (
	"github.com/pkg/errors"

	"github.com/Noofbiz/facePairs/fault"
)

const (
	positionChannels = 3
	normalChannels   = 6
)

// Samples views Count point sets of Points x Channels values stored back to
// back in Data. A pair batch of shape (2, B, N, C) is viewed as (2B, N, C).
type Samples struct {
	Data     []float32
	Count    int
	Points   int
	Channels int
}

// Sample returns the i-th point set, aliasing Data.
func (s Samples) Sample(i int) []float32 {
	n := s.Points * s.Channels
	return s.Data[i*n : (i+1)*n]
}

// HasNormals reports whether columns 3..5 hold normal vectors.
func (s Samples) HasNormals() bool {
	return s.Channels >= normalChannels
}

func (s Samples) validate() error {
	if s.Count < 0 || s.Points < 0 || s.Channels < positionChannels {
		return fault.Invalid("augment", errors.Errorf("bad sample shape (%d, %d, %d)", s.Count, s.Points, s.Channels))
	}
	if len(s.Data) != s.Count*s.Points*s.Channels {
		return fault.Invalid("augment", errors.Errorf("%d values cannot hold shape (%d, %d, %d)", len(s.Data), s.Count, s.Points, s.Channels))
	}
	return nil
}

// Provider implements the individual transforms. Rotations receive every
// channel and must turn normals with positions when normals is true. The
// remaining position transforms only ever see 3-channel samples.
type Provider interface {
	Rotate(s Samples, normals bool)
	RotatePerturb(s Samples, normals bool)
	Scale(s Samples)
	Shift(s Samples)
	Jitter(s Samples)
	ShufflePoints(s Samples)
}

// Pipeline applies a Provider's transforms in a fixed order.
type Pipeline struct {
	Provider Provider
}

// NewPipeline returns a pipeline over p.
func NewPipeline(p Provider) *Pipeline {
	return &Pipeline{Provider: p}
}

// Apply transforms s in place: rotate, perturb the rotation, then scale,
// shift and jitter the positions, then shuffle point order. The shape of s
// never changes.
func (p *Pipeline) Apply(s Samples) error {
	if err := s.validate(); err != nil {
		return err
	}
	if s.Count == 0 || s.Points == 0 {
		return nil
	}

	normals := s.HasNormals()
	p.Provider.Rotate(s, normals)
	p.Provider.RotatePerturb(s, normals)

	pos := positions(s)
	p.Provider.Scale(pos)
	p.Provider.Shift(pos)
	p.Provider.Jitter(pos)
	if pos.Channels != s.Channels {
		setPositions(s, pos)
	}

	p.Provider.ShufflePoints(s)
	return nil
}

// positions returns the x, y, z channels of s. When s carries nothing else
// the result aliases s.
func positions(s Samples) Samples {
	if s.Channels == positionChannels {
		return s
	}
	out := Samples{
		Data:     make([]float32, s.Count*s.Points*positionChannels),
		Count:    s.Count,
		Points:   s.Points,
		Channels: positionChannels,
	}
	rows := s.Count * s.Points
	for r := 0; r < rows; r++ {
		copy(out.Data[r*positionChannels:(r+1)*positionChannels], s.Data[r*s.Channels:r*s.Channels+positionChannels])
	}
	return out
}

func setPositions(dst, pos Samples) {
	rows := dst.Count * dst.Points
	for r := 0; r < rows; r++ {
		copy(dst.Data[r*dst.Channels:r*dst.Channels+positionChannels], pos.Data[r*positionChannels:(r+1)*positionChannels])
	}
}
