package pointcloud

import (
	"math"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"

	"github.com/Noofbiz/facePairs/fault"
)

const opNormalize = "normalize"

// sourceUnitScale converts reconstruction units to the scale the min-max
// step expects.
const sourceUnitScale = 100

// Normalize maps the x, y, z columns of c into the unit sphere and returns
// the result as a new cloud; other columns are copied unchanged.
//
// The steps run in a fixed order:
//  1. divide every coordinate by 100
//  2. min-max scale using one global min and max over all coordinates
//  3. subtract the centroid
//  4. divide by the largest point norm
//
// A cloud with no coordinate spread fails with a degenerate input error.
func Normalize(c *Cloud) (*Cloud, error) {
	if c.Rows == 0 {
		return nil, fault.Degenerate(opNormalize, errors.New("empty cloud"))
	}
	if c.Cols < PositionChannels {
		return nil, fault.Formatf(opNormalize, "", "cloud has %d columns, need %d", c.Cols, PositionChannels)
	}

	coords := make([]float64, 0, c.Rows*PositionChannels)
	for i := 0; i < c.Rows; i++ {
		for _, v := range c.Row(i)[:PositionChannels] {
			coords = append(coords, float64(v)/sourceUnitScale)
		}
	}

	lo, hi := floats.Min(coords), floats.Max(coords)
	if hi == lo {
		return nil, fault.Degenerate(opNormalize, errors.Errorf("all coordinates equal %v", lo*sourceUnitScale))
	}
	floats.AddConst(-lo, coords)
	floats.Scale(1/(hi-lo), coords)

	points := make([]r3.Vector, c.Rows)
	var centroid r3.Vector
	for i := range points {
		points[i] = r3.Vector{X: coords[3*i], Y: coords[3*i+1], Z: coords[3*i+2]}
		centroid = centroid.Add(points[i])
	}
	centroid = centroid.Mul(1 / float64(c.Rows))

	var maxNorm float64
	for i := range points {
		points[i] = points[i].Sub(centroid)
		maxNorm = math.Max(maxNorm, points[i].Norm())
	}
	if maxNorm == 0 {
		return nil, fault.Degenerate(opNormalize, errors.New("all points coincide"))
	}

	out := c.Clone()
	for i, p := range points {
		out.SetPosition(i, p.Mul(1/maxNorm))
	}
	return out, nil
}
