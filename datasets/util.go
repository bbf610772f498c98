package datasets

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/Noofbiz/facePairs/fault"
)

// protocolPatterns are tried in order by FindProtocolFile.
var protocolPatterns = []string{"pairs.txt", "*pairs*.txt", "*.txt"}

// FindProtocolFile looks for a protocol file in dir and returns its path
// relative to dir.
func FindProtocolFile(dir string) (string, error) {
	for _, pattern := range protocolPatterns {
		matches, err := filepath.Glob(filepath.Join(dir, pattern))
		if err != nil {
			return "", fault.Invalid("find protocol file", err)
		}
		for _, m := range matches {
			if fi, err := os.Stat(m); err == nil && fi.Mode().IsRegular() {
				return filepath.Base(m), nil
			}
		}
	}
	return "", fault.IO("find protocol file", dir, errors.New("no protocol file found"))
}

