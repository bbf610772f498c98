package augment

import (
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

// Params tunes RandomProvider.
type Params struct {
	// PerturbSigma and PerturbClip bound the small per-axis rotation
	// angles, in radians.
	PerturbSigma float64
	PerturbClip  float64
	// ScaleLow and ScaleHigh bound the per-sample uniform scale factor.
	ScaleLow  float64
	ScaleHigh float64
	// ShiftRange bounds the per-sample, per-axis translation.
	ShiftRange float64
	// JitterSigma and JitterClip bound the per-value Gaussian noise.
	JitterSigma float64
	JitterClip  float64
}

// DefaultParams returns the augmentation strengths used for face training.
func DefaultParams() Params {
	return Params{
		PerturbSigma: 0.06,
		PerturbClip:  0.18,
		ScaleLow:     0.8,
		ScaleHigh:    1.25,
		ShiftRange:   0.1,
		JitterSigma:  0.01,
		JitterClip:   0.05,
	}
}

// RandomProvider draws independent parameters for every sample, so the two
// halves of a pair are perturbed differently.
type RandomProvider struct {
	Params Params

	src rand.Source
	rng *rand.Rand
}

// NewRandomProvider returns a provider drawing from src.
func NewRandomProvider(src rand.Source, params Params) *RandomProvider {
	return &RandomProvider{Params: params, src: src, rng: rand.New(src)}
}

// Rotate turns every sample about the up (y) axis by a uniform angle.
func (p *RandomProvider) Rotate(s Samples, normals bool) {
	angle := distuv.Uniform{Min: 0, Max: 2 * math.Pi, Src: p.src}
	for i := 0; i < s.Count; i++ {
		rotateSample(s.Sample(i), s.Channels, rotationY(angle.Rand()), normals)
	}
}

// RotatePerturb applies a small random rotation Rz*Ry*Rx to every sample.
func (p *RandomProvider) RotatePerturb(s Samples, normals bool) {
	for i := 0; i < s.Count; i++ {
		ax := p.clippedNormal(p.Params.PerturbSigma, p.Params.PerturbClip)
		ay := p.clippedNormal(p.Params.PerturbSigma, p.Params.PerturbClip)
		az := p.clippedNormal(p.Params.PerturbSigma, p.Params.PerturbClip)

		var ryx, r mat.Dense
		ryx.Mul(rotationY(ay), rotationX(ax))
		r.Mul(rotationZ(az), &ryx)
		rotateSample(s.Sample(i), s.Channels, &r, normals)
	}
}

// Scale multiplies every sample by its own uniform factor.
func (p *RandomProvider) Scale(s Samples) {
	factor := distuv.Uniform{Min: p.Params.ScaleLow, Max: p.Params.ScaleHigh, Src: p.src}
	for i := 0; i < s.Count; i++ {
		f := float32(factor.Rand())
		for j, sample := 0, s.Sample(i); j < len(sample); j++ {
			sample[j] *= f
		}
	}
}

// Shift translates every sample by its own uniform offset.
func (p *RandomProvider) Shift(s Samples) {
	offset := distuv.Uniform{Min: -p.Params.ShiftRange, Max: p.Params.ShiftRange, Src: p.src}
	for i := 0; i < s.Count; i++ {
		var d [positionChannels]float32
		for k := range d {
			d[k] = float32(offset.Rand())
		}
		sample := s.Sample(i)
		for j := 0; j < s.Points; j++ {
			row := sample[j*s.Channels:]
			for k := range d {
				row[k] += d[k]
			}
		}
	}
}

// Jitter adds clipped Gaussian noise to every value.
func (p *RandomProvider) Jitter(s Samples) {
	for i := range s.Data {
		s.Data[i] += float32(p.clippedNormal(p.Params.JitterSigma, p.Params.JitterClip))
	}
}

// ShufflePoints reorders points with one permutation shared by all samples.
func (p *RandomProvider) ShufflePoints(s Samples) {
	perm := p.rng.Perm(s.Points)
	tmp := make([]float32, s.Points*s.Channels)
	for i := 0; i < s.Count; i++ {
		sample := s.Sample(i)
		for dst, src := range perm {
			copy(tmp[dst*s.Channels:(dst+1)*s.Channels], sample[src*s.Channels:(src+1)*s.Channels])
		}
		copy(sample, tmp)
	}
}

func (p *RandomProvider) clippedNormal(sigma, clip float64) float64 {
	v := distuv.Normal{Mu: 0, Sigma: sigma, Src: p.src}.Rand()
	return math.Max(-clip, math.Min(clip, v))
}

func rotationX(a float64) *mat.Dense {
	c, s := math.Cos(a), math.Sin(a)
	return mat.NewDense(3, 3, []float64{
		1, 0, 0,
		0, c, -s,
		0, s, c,
	})
}

func rotationY(a float64) *mat.Dense {
	c, s := math.Cos(a), math.Sin(a)
	return mat.NewDense(3, 3, []float64{
		c, 0, s,
		0, 1, 0,
		-s, 0, c,
	})
}

func rotationZ(a float64) *mat.Dense {
	c, s := math.Cos(a), math.Sin(a)
	return mat.NewDense(3, 3, []float64{
		c, -s, 0,
		s, c, 0,
		0, 0, 1,
	})
}

// rotateSample multiplies every point, as a row vector, by r. Normals in
// columns 3..5 are turned by the same matrix when normals is set.
func rotateSample(sample []float32, channels int, r mat.Matrix, normals bool) {
	var m [3][3]float64
	for i := range m {
		for j := range m[i] {
			m[i][j] = r.At(i, j)
		}
	}
	apply := func(v []float32) {
		x, y, z := float64(v[0]), float64(v[1]), float64(v[2])
		for j := 0; j < 3; j++ {
			v[j] = float32(x*m[0][j] + y*m[1][j] + z*m[2][j])
		}
	}
	for off := 0; off+channels <= len(sample); off += channels {
		apply(sample[off : off+3])
		if normals && channels >= normalChannels {
			apply(sample[off+3 : off+6])
		}
	}
}
