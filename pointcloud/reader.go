package pointcloud

import (
	"bufio"
	"fmt"
	"io"
	"os"

	"github.com/chenzhekl/goply"
	"github.com/pkg/errors"
	"github.com/sbinet/npyio/npy"
	"go.uber.org/multierr"

	"github.com/Noofbiz/facePairs/fault"
)

const opRead = "read sample"

// Reader loads a single point cloud.
type Reader interface {
	Read(path string) (*Cloud, error)
}

// FileReader reads .npy arrays and ASCII .ply meshes from the local
// filesystem. Seven column arrays lose their trailing curvature column.
type FileReader struct{}

// NewFileReader returns a reader for the formats listed in Format.
func NewFileReader() *FileReader {
	return &FileReader{}
}

// Read resolves the format of path and loads it.
func (r *FileReader) Read(path string) (*Cloud, error) {
	format, err := FormatFromPath(path)
	if err != nil {
		return nil, err
	}
	return r.ReadFormat(path, format)
}

// ReadFormat loads path as the given format.
func (r *FileReader) ReadFormat(path string, format Format) (*Cloud, error) {
	var (
		c   *Cloud
		err error
	)
	switch format {
	case FormatNPY:
		c, err = readNPY(path)
	case FormatPLY:
		c, err = readPLY(path)
	default:
		return nil, fault.Formatf(opRead, path, "unsupported format %v", format)
	}
	if err != nil {
		return nil, err
	}
	return c.DropCurvature(), nil
}

func readNPY(path string) (c *Cloud, err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fault.IO(opRead, path, err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil {
			err = multierr.Combine(err, fault.IO(opRead, path, cerr))
		}
	}()

	r, err := npy.NewReader(f)
	if err != nil {
		return nil, fault.IO(opRead, path, errors.Wrap(err, "decode npy header"))
	}
	descr := r.Header.Descr
	if len(descr.Shape) != 2 {
		return nil, fault.Formatf(opRead, path, "expected a 2-D array, got shape %v", descr.Shape)
	}
	rows, cols := descr.Shape[0], descr.Shape[1]
	if cols < PositionChannels {
		return nil, fault.Formatf(opRead, path, "expected at least %d columns, got %d", PositionChannels, cols)
	}

	data := make([]float32, rows*cols)
	switch descr.Type {
	case "<f4", "|f4":
		if err := r.Read(&data); err != nil {
			return nil, fault.IO(opRead, path, errors.Wrap(err, "decode npy data"))
		}
	case "<f8", "|f8":
		buf := make([]float64, rows*cols)
		if err := r.Read(&buf); err != nil {
			return nil, fault.IO(opRead, path, errors.Wrap(err, "decode npy data"))
		}
		for i, v := range buf {
			data[i] = float32(v)
		}
	default:
		return nil, fault.Formatf(opRead, path, "unsupported npy dtype %q", descr.Type)
	}
	if descr.Fortran {
		data = transpose(data, rows, cols)
	}
	return &Cloud{Data: data, Rows: rows, Cols: cols}, nil
}

// transpose converts a column-major rows x cols buffer to row-major.
func transpose(src []float32, rows, cols int) []float32 {
	dst := make([]float32, len(src))
	for j := 0; j < cols; j++ {
		for i := 0; i < rows; i++ {
			dst[i*cols+j] = src[j*rows+i]
		}
	}
	return dst
}

var plyAxes = [PositionChannels]string{"x", "y", "z"}

func readPLY(path string) (c *Cloud, err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fault.IO(opRead, path, err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil {
			err = multierr.Combine(err, fault.IO(opRead, path, cerr))
		}
	}()

	br := bufio.NewReader(f)
	h, err := readPLYHeader(br)
	if err != nil {
		return nil, fault.Format(opRead, path, err)
	}
	if h.order != nil {
		if c, err = decodeBinaryPLY(br, h); err != nil {
			return nil, fault.Format(opRead, path, err)
		}
		return c, nil
	}

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, fault.IO(opRead, path, err)
	}
	ply, err := parsePLY(f, path)
	if err != nil {
		return nil, err
	}
	vertices := ply.Elements("vertex")
	if len(vertices) == 0 {
		return nil, fault.Formatf(opRead, path, "mesh has no vertex element")
	}

	c = New(len(vertices), PositionChannels)
	for i := range vertices {
		row := c.Row(i)
		for j, axis := range plyAxes {
			v, ok := plyFloat(vertices[i].Property(axis))
			if !ok {
				return nil, fault.Formatf(opRead, path, "vertex %d has no numeric %q property", i, axis)
			}
			row[j] = v
		}
	}
	return c, nil
}

// parsePLY wraps goply, which reports malformed input by panicking.
func parsePLY(r io.Reader, path string) (ply *goply.Ply, err error) {
	defer func() {
		if p := recover(); p != nil {
			ply = nil
			err = fault.Format(opRead, path, errors.New(fmt.Sprint(p)))
		}
	}()
	return goply.New(r), nil
}

func plyFloat(v interface{}) (float32, bool) {
	switch t := v.(type) {
	case float32:
		return t, true
	case float64:
		return float32(t), true
	case int8:
		return float32(t), true
	case uint8:
		return float32(t), true
	case int16:
		return float32(t), true
	case uint16:
		return float32(t), true
	case int32:
		return float32(t), true
	case uint32:
		return float32(t), true
	default:
		return 0, false
	}
}

// CountingReader wraps a Reader and records how many times each path was
// loaded.
type CountingReader struct {
	Reader Reader

	total  int
	byPath map[string]int
}

// NewCountingReader wraps r.
func NewCountingReader(r Reader) *CountingReader {
	return &CountingReader{Reader: r, byPath: make(map[string]int)}
}

// Read delegates to the wrapped reader and counts the attempt.
func (c *CountingReader) Read(path string) (*Cloud, error) {
	c.total++
	c.byPath[path]++
	return c.Reader.Read(path)
}

// Loads returns the number of Read calls so far.
func (c *CountingReader) Loads() int { return c.total }

// LoadsOf returns the number of Read calls for path.
func (c *CountingReader) LoadsOf(path string) int { return c.byPath[path] }
