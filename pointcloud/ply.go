package pointcloud

import (
	"bufio"
	"encoding/binary"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// plyProperty is one property line of a PLY header. List properties carry
// the type of their length prefix in countType.
type plyProperty struct {
	name      string
	typ       string
	list      bool
	countType string
}

type plyElement struct {
	name  string
	count int
	props []plyProperty
}

// plyHeader is the parsed header of a PLY file. order is nil for ASCII
// files.
type plyHeader struct {
	order    binary.ByteOrder
	elements []plyElement
}

// plySizes maps PLY scalar types to their width in bytes.
var plySizes = map[string]int{
	"char": 1, "int8": 1,
	"uchar": 1, "uint8": 1,
	"short": 2, "int16": 2,
	"ushort": 2, "uint16": 2,
	"int": 4, "int32": 4,
	"uint": 4, "uint32": 4,
	"float": 4, "float32": 4,
	"double": 8, "float64": 8,
}

// readPLYHeader consumes the header of a PLY file up to and including the
// end_header line.
func readPLYHeader(br *bufio.Reader) (*plyHeader, error) {
	line, err := br.ReadString('\n')
	if err != nil || strings.TrimSpace(line) != "ply" {
		return nil, errors.New("missing ply magic")
	}

	h := &plyHeader{}
	format := ""
	for {
		line, err := br.ReadString('\n')
		if err != nil {
			return nil, errors.New("unterminated ply header")
		}
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		switch fields[0] {
		case "comment", "obj_info":
		case "format":
			if len(fields) != 3 {
				return nil, errors.Errorf("malformed format line %q", strings.TrimSpace(line))
			}
			format = fields[1]
		case "element":
			if len(fields) != 3 {
				return nil, errors.Errorf("malformed element line %q", strings.TrimSpace(line))
			}
			n, err := strconv.Atoi(fields[2])
			if err != nil || n < 0 {
				return nil, errors.Errorf("invalid count for element %q", fields[1])
			}
			h.elements = append(h.elements, plyElement{name: fields[1], count: n})
		case "property":
			if len(h.elements) == 0 {
				return nil, errors.New("property before any element")
			}
			prop, err := parsePLYProperty(fields)
			if err != nil {
				return nil, err
			}
			el := &h.elements[len(h.elements)-1]
			el.props = append(el.props, prop)
		case "end_header":
			switch format {
			case "ascii":
			case "binary_little_endian":
				h.order = binary.LittleEndian
			case "binary_big_endian":
				h.order = binary.BigEndian
			default:
				return nil, errors.Errorf("unsupported ply format %q", format)
			}
			return h, nil
		default:
			return nil, errors.Errorf("unexpected header line %q", strings.TrimSpace(line))
		}
	}
}

func parsePLYProperty(fields []string) (plyProperty, error) {
	if len(fields) == 5 && fields[1] == "list" {
		p := plyProperty{name: fields[4], typ: fields[3], list: true, countType: fields[2]}
		if plySizes[p.countType] == 0 || plySizes[p.typ] == 0 {
			return p, errors.Errorf("unknown type in list property %q", p.name)
		}
		return p, nil
	}
	if len(fields) != 3 {
		return plyProperty{}, errors.Errorf("malformed property line %q", strings.Join(fields, " "))
	}
	p := plyProperty{name: fields[2], typ: fields[1]}
	if plySizes[p.typ] == 0 {
		return p, errors.Errorf("unknown type %q for property %q", p.typ, p.name)
	}
	return p, nil
}

// decodeBinaryPLY reads the x, y, z properties of the vertex element from
// the body of a binary PLY file. Elements stored before the vertices are
// skipped; anything after them is not read.
func decodeBinaryPLY(r io.Reader, h *plyHeader) (*Cloud, error) {
	var buf [8]byte
	for _, el := range h.elements {
		if el.name != "vertex" {
			if err := skipPLYElement(r, h.order, el, buf[:]); err != nil {
				return nil, err
			}
			continue
		}

		axes := [PositionChannels]int{-1, -1, -1}
		for i, p := range el.props {
			for j, axis := range plyAxes {
				if p.name == axis && !p.list {
					axes[j] = i
				}
			}
		}
		for j, i := range axes {
			if i < 0 {
				return nil, errors.Errorf("vertex element has no scalar %q property", plyAxes[j])
			}
		}

		c := New(el.count, PositionChannels)
		values := make([]float64, len(el.props))
		for v := 0; v < el.count; v++ {
			for i, p := range el.props {
				if p.list {
					if err := skipPLYList(r, h.order, p, buf[:]); err != nil {
						return nil, errors.Wrapf(err, "vertex %d", v)
					}
					continue
				}
				x, err := readPLYScalar(r, h.order, p.typ, buf[:])
				if err != nil {
					return nil, errors.Wrapf(err, "vertex %d", v)
				}
				values[i] = x
			}
			row := c.Row(v)
			for j, i := range axes {
				row[j] = float32(values[i])
			}
		}
		return c, nil
	}
	return nil, errors.New("mesh has no vertex element")
}

func skipPLYElement(r io.Reader, order binary.ByteOrder, el plyElement, buf []byte) error {
	for n := 0; n < el.count; n++ {
		for _, p := range el.props {
			var err error
			if p.list {
				err = skipPLYList(r, order, p, buf)
			} else {
				_, err = readPLYScalar(r, order, p.typ, buf)
			}
			if err != nil {
				return errors.Wrapf(err, "element %s %d", el.name, n)
			}
		}
	}
	return nil
}

func skipPLYList(r io.Reader, order binary.ByteOrder, p plyProperty, buf []byte) error {
	n, err := readPLYScalar(r, order, p.countType, buf)
	if err != nil {
		return err
	}
	if n < 0 {
		return errors.Errorf("negative length for list %q", p.name)
	}
	_, err = io.CopyN(io.Discard, r, int64(n)*int64(plySizes[p.typ]))
	return err
}

// readPLYScalar reads one value of PLY type typ.
func readPLYScalar(r io.Reader, order binary.ByteOrder, typ string, buf []byte) (float64, error) {
	size := plySizes[typ]
	b := buf[:size]
	if _, err := io.ReadFull(r, b); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return 0, errors.Wrap(err, "truncated ply body")
	}
	switch typ {
	case "char", "int8":
		return float64(int8(b[0])), nil
	case "uchar", "uint8":
		return float64(b[0]), nil
	case "short", "int16":
		return float64(int16(order.Uint16(b))), nil
	case "ushort", "uint16":
		return float64(order.Uint16(b)), nil
	case "int", "int32":
		return float64(int32(order.Uint32(b))), nil
	case "uint", "uint32":
		return float64(order.Uint32(b)), nil
	case "float", "float32":
		return float64(math.Float32frombits(order.Uint32(b))), nil
	default:
		return math.Float64frombits(order.Uint64(b)), nil
	}
}
