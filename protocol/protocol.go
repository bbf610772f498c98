// Package protocol turns a verification protocol file into an ordered list
// of sample pairs.
//
// A protocol file holds one trial per line:
//
//	<label> <sample A> <sample B>
//
// Blank lines and lines starting with '#' are skipped, except for fold
// markers of the form "# fold <n>" which assign the following pairs to
// fold n. Sample paths are relative to the dataset root unless absolute.
package protocol

import (
	"bufio"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"github.com/Noofbiz/facePairs/fault"
)

const opResolve = "resolve pairs"

// Default label identifiers.
const (
	DefaultPosLabel = "1"
	DefaultNegLabel = "0"
)

// Pair is one verification trial.
type Pair struct {
	Label string
	PathA string
	PathB string
	Fold  int
}

// Index is the resolved content of a protocol file.
type Index struct {
	Pairs    []Pair
	PosLabel string
	NegLabel string
}

// Resolver produces the pair list for a dataset root.
type Resolver interface {
	Resolve(root, protocolPath string) (*Index, error)
}

// FileResolver reads the line format described in the package comment.
type FileResolver struct {
	// PosLabel and NegLabel are the identifiers for same and different
	// identity trials. Any other label is a format error.
	PosLabel string
	NegLabel string

	// Suffix is appended to sample paths that carry no extension, e.g.
	// "mesh_centralized-nosetip_with-normals_filter-radius=100.npy".
	Suffix string
}

// NewFileResolver returns a resolver using the default labels when pos or
// neg are empty.
func NewFileResolver(pos, neg, suffix string) *FileResolver {
	if pos == "" {
		pos = DefaultPosLabel
	}
	if neg == "" {
		neg = DefaultNegLabel
	}
	return &FileResolver{PosLabel: pos, NegLabel: neg, Suffix: suffix}
}

// Resolve parses protocolPath, joined to root when relative.
func (r *FileResolver) Resolve(root, protocolPath string) (idx *Index, err error) {
	if r.PosLabel == r.NegLabel {
		return nil, fault.Invalid(opResolve, errors.Errorf("positive and negative label are both %q", r.PosLabel))
	}
	path := protocolPath
	if !filepath.IsAbs(path) {
		path = filepath.Join(root, path)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fault.IO(opResolve, path, err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil {
			err = multierr.Combine(err, fault.IO(opResolve, path, cerr))
		}
	}()

	idx = &Index{PosLabel: r.PosLabel, NegLabel: r.NegLabel}
	fold := 0
	lineNo := 0
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "#") {
			if n, ok, ferr := parseFoldMarker(line); ferr != nil {
				return nil, fault.Formatf(opResolve, path, "line %d: %v", lineNo, ferr)
			} else if ok {
				fold = n
			}
			continue
		}

		fields := strings.Fields(line)
		if len(fields) != 3 {
			return nil, fault.Formatf(opResolve, path, "line %d: expected 3 fields, got %d", lineNo, len(fields))
		}
		label := fields[0]
		if label != r.PosLabel && label != r.NegLabel {
			return nil, fault.Formatf(opResolve, path, "line %d: unknown label %q", lineNo, label)
		}
		idx.Pairs = append(idx.Pairs, Pair{
			Label: label,
			PathA: r.samplePath(root, fields[1]),
			PathB: r.samplePath(root, fields[2]),
			Fold:  fold,
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, fault.IO(opResolve, path, err)
	}
	return idx, nil
}

func (r *FileResolver) samplePath(root, p string) string {
	if r.Suffix != "" && filepath.Ext(p) == "" {
		p += r.Suffix
	}
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(root, p)
}

// parseFoldMarker recognises "# fold <n>" comments.
func parseFoldMarker(line string) (int, bool, error) {
	fields := strings.Fields(strings.TrimPrefix(line, "#"))
	if len(fields) == 0 || !strings.EqualFold(fields[0], "fold") {
		return 0, false, nil
	}
	if len(fields) != 2 {
		return 0, false, errors.Errorf("malformed fold marker %q", line)
	}
	n, err := strconv.Atoi(fields[1])
	if err != nil || n < 0 {
		return 0, false, errors.Errorf("invalid fold number %q", fields[1])
	}
	return n, true, nil
}

// Folds groups pair positions by fold number.
func (idx *Index) Folds() map[int][]int {
	folds := make(map[int][]int)
	for i, p := range idx.Pairs {
		folds[p.Fold] = append(folds[p.Fold], i)
	}
	return folds
}
