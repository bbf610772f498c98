// Package fixtures writes small sample files for tests.
package fixtures

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"strings"
	"testing"

	"github.com/sbinet/npyio/npy"
	"gonum.org/v1/gonum/mat"
)

// npyMagic opens every version 1.0 .npy file.
const npyMagic = "\x93NUMPY\x01\x00"

// WriteNPY writes a rows x cols little-endian float32 array to path.
func WriteNPY(t testing.TB, path string, rows, cols int, data []float32) {
	t.Helper()
	if len(data) != rows*cols {
		t.Fatalf("fixture %s: %d values for %dx%d", path, len(data), rows, cols)
	}
	writeNPY32(t, path, rows, cols, false, data)
}

// WriteNPYFortran writes data, given in row-major order, as a column-major
// (fortran_order: True) float32 array.
func WriteNPYFortran(t testing.TB, path string, rows, cols int, data []float32) {
	t.Helper()
	if len(data) != rows*cols {
		t.Fatalf("fixture %s: %d values for %dx%d", path, len(data), rows, cols)
	}
	colMajor := make([]float32, len(data))
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			colMajor[j*rows+i] = data[i*cols+j]
		}
	}
	writeNPY32(t, path, rows, cols, true, colMajor)
}

// WriteNPY64 writes a rows x cols float64 array to path using npyio.
func WriteNPY64(t testing.TB, path string, rows, cols int, data []float64) {
	t.Helper()
	if len(data) != rows*cols {
		t.Fatalf("fixture %s: %d values for %dx%d", path, len(data), rows, cols)
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("failed to create npy %s: %v", path, err)
	}
	defer f.Close()
	if err := npy.Write(f, mat.NewDense(rows, cols, data)); err != nil {
		t.Fatalf("failed to write npy %s: %v", path, err)
	}
}

// writeNPY32 builds the header by hand, as npy.Write only produces 2-D
// arrays from float64 matrices.
func writeNPY32(t testing.TB, path string, rows, cols int, fortran bool, data []float32) {
	t.Helper()
	order := "False"
	if fortran {
		order = "True"
	}
	header := fmt.Sprintf("{'descr': '<f4', 'fortran_order': %s, 'shape': (%d, %d), }", order, rows, cols)
	// header block is padded so the data starts on a 64 byte boundary
	total := len(npyMagic) + 2 + len(header) + 1
	if pad := total % 64; pad != 0 {
		header += strings.Repeat(" ", 64-pad)
	}
	header += "\n"

	var buf bytes.Buffer
	buf.WriteString(npyMagic)
	_ = binary.Write(&buf, binary.LittleEndian, uint16(len(header)))
	buf.WriteString(header)
	for _, v := range data {
		_ = binary.Write(&buf, binary.LittleEndian, math.Float32bits(v))
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("failed to write npy %s: %v", path, err)
	}
}

// WritePLY writes an ASCII PLY mesh whose vertices carry x, y, z and an
// extra red channel, followed by a single face.
func WritePLY(t testing.TB, path string, points [][3]float32) {
	t.Helper()
	var b strings.Builder
	b.WriteString("ply\nformat ascii 1.0\ncomment fixture\n")
	fmt.Fprintf(&b, "element vertex %d\n", len(points))
	b.WriteString("property float x\nproperty float y\nproperty float z\nproperty uchar red\n")
	b.WriteString("element face 1\nproperty list uchar int vertex_indices\nend_header\n")
	for _, p := range points {
		fmt.Fprintf(&b, "%g %g %g 255\n", p[0], p[1], p[2])
	}
	b.WriteString("3 0 1 2\n")
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		t.Fatalf("failed to write ply %s: %v", path, err)
	}
}

// WriteBinaryPLY writes a binary PLY mesh in the given byte order. A camera
// element precedes the vertices, whose x, y, z use coordType ("float" or
// "double") and are followed by a red channel; a single face closes the file.
func WriteBinaryPLY(t testing.TB, path string, order binary.ByteOrder, coordType string, points [][3]float32) {
	t.Helper()
	format := "binary_little_endian"
	if order == binary.BigEndian {
		format = "binary_big_endian"
	}
	var b bytes.Buffer
	fmt.Fprintf(&b, "ply\nformat %s 1.0\ncomment fixture\n", format)
	b.WriteString("element camera 1\nproperty short id\nproperty list uchar float params\n")
	fmt.Fprintf(&b, "element vertex %d\n", len(points))
	fmt.Fprintf(&b, "property %[1]s x\nproperty %[1]s y\nproperty %[1]s z\nproperty uchar red\n", coordType)
	b.WriteString("element face 1\nproperty list uchar int vertex_indices\nend_header\n")

	put := func(v any) { _ = binary.Write(&b, order, v) }
	put(int16(7))
	put(uint8(2))
	put([]float32{0.5, 1.5})
	for _, p := range points {
		for _, v := range p {
			switch coordType {
			case "double":
				put(float64(v))
			default:
				put(v)
			}
		}
		put(uint8(255))
	}
	put(uint8(3))
	put([]int32{0, 1, 2})
	if err := os.WriteFile(path, b.Bytes(), 0o644); err != nil {
		t.Fatalf("failed to write ply %s: %v", path, err)
	}
}

// Grid returns rows points of cols channels whose values differ by row and
// column, offset by seed so different fixtures are distinguishable.
func Grid(rows, cols int, seed float32) []float32 {
	data := make([]float32, rows*cols)
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			data[i*cols+j] = seed + float32(i)*10 + float32(j)*3 + float32((i*j)%7)
		}
	}
	return data
}
