// Package pointcloud reads face point clouds from disk and puts them into a
// canonical coordinate frame.
//
// A Cloud is a dense row-major matrix of float32 values: one row per point,
// with the first three columns holding x, y and z. Extra columns, when
// present, hold per-point normals (columns 3..5) and possibly a trailing
// curvature value.
package pointcloud

import (
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"

	"github.com/Noofbiz/facePairs/fault"
)

const (
	// PositionChannels is the number of coordinate columns (x, y, z).
	PositionChannels = 3
	// NormalChannels is the number of columns when normals are kept.
	NormalChannels = 6
	// curvatureCols is the column count of clouds that carry a trailing
	// curvature value after x, y, z and the normal.
	curvatureCols = 7
)

// Cloud is a point cloud stored as a Rows x Cols row-major buffer.
type Cloud struct {
	Data []float32
	Rows int
	Cols int
}

// New allocates a zeroed cloud.
func New(rows, cols int) *Cloud {
	return &Cloud{Data: make([]float32, rows*cols), Rows: rows, Cols: cols}
}

// FromData wraps an existing buffer. The buffer is not copied.
func FromData(data []float32, rows, cols int) (*Cloud, error) {
	if rows < 0 || cols <= 0 || len(data) != rows*cols {
		return nil, fault.Invalid("pointcloud", errors.Errorf("buffer of %d values cannot hold %dx%d", len(data), rows, cols))
	}
	return &Cloud{Data: data, Rows: rows, Cols: cols}, nil
}

// Row returns the i-th point as a slice aliasing the cloud buffer.
func (c *Cloud) Row(i int) []float32 {
	return c.Data[i*c.Cols : (i+1)*c.Cols]
}

// Position returns the x, y, z of the i-th point.
func (c *Cloud) Position(i int) r3.Vector {
	row := c.Row(i)
	return r3.Vector{X: float64(row[0]), Y: float64(row[1]), Z: float64(row[2])}
}

// SetPosition overwrites the x, y, z of the i-th point.
func (c *Cloud) SetPosition(i int, v r3.Vector) {
	row := c.Row(i)
	row[0], row[1], row[2] = float32(v.X), float32(v.Y), float32(v.Z)
}

// Clone returns a deep copy.
func (c *Cloud) Clone() *Cloud {
	out := &Cloud{Data: make([]float32, len(c.Data)), Rows: c.Rows, Cols: c.Cols}
	copy(out.Data, c.Data)
	return out
}

// Columns returns a copy holding only the first n columns.
func (c *Cloud) Columns(n int) *Cloud {
	if n >= c.Cols {
		return c.Clone()
	}
	out := New(c.Rows, n)
	for i := 0; i < c.Rows; i++ {
		copy(out.Row(i), c.Row(i)[:n])
	}
	return out
}

// DropCurvature removes the trailing curvature column of 7-column clouds.
// Any other cloud is returned unchanged.
func (c *Cloud) DropCurvature() *Cloud {
	if c.Cols != curvatureCols {
		return c
	}
	return c.Columns(c.Cols - 1)
}

// Head keeps the first n points. Clouds with fewer than n points are
// rejected: batches are built from fixed-size samples and nothing pads.
func (c *Cloud) Head(n int) (*Cloud, error) {
	if c.Rows < n {
		return nil, fault.Formatf("truncate", "", "cloud has %d points, need %d", c.Rows, n)
	}
	if c.Rows == n {
		return c, nil
	}
	return &Cloud{Data: c.Data[:n*c.Cols], Rows: n, Cols: c.Cols}, nil
}
