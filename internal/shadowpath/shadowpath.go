// Package shadowpath computes the shadow sibling path a target directory is
// moved to while toda is injecting faults on it.
package shadowpath

import (
	"fmt"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

const prefix = "__chaosfs__"
const suffix = "__"

// Encode returns the shadow path for target, e.g. /data/x -> /data/__chaosfs__x__.
//
// It fails for the filesystem root and for any path whose basename is empty
// or not valid UTF-8, since neither can be embedded in the shadow filename.
func Encode(target string) (string, error) {
	clean := filepath.Clean(target)
	if clean == "/" || clean == "." {
		return "", fmt.Errorf("shadowpath: %q is the root, refusing to encode", target)
	}

	dir := filepath.Dir(clean)
	base := filepath.Base(clean)
	if base == "" || base == "/" || base == "." {
		return "", fmt.Errorf("shadowpath: %q has no basename", target)
	}
	if !utf8.ValidString(base) {
		return "", fmt.Errorf("shadowpath: %q basename is not valid UTF-8", target)
	}

	return filepath.Join(dir, prefix+base+suffix), nil
}

// Decode recovers the original target path from a shadow path produced by
// Encode. It is the inverse of Encode: Encode(Decode(Encode(p))) == Encode(p).
func Decode(shadow string) (string, error) {
	clean := filepath.Clean(shadow)
	dir := filepath.Dir(clean)
	base := filepath.Base(clean)

	if !strings.HasPrefix(base, prefix) || !strings.HasSuffix(base, suffix) || len(base) <= len(prefix)+len(suffix) {
		return "", fmt.Errorf("shadowpath: %q is not a shadow path", shadow)
	}

	original := base[len(prefix) : len(base)-len(suffix)]
	if original == "" {
		return "", fmt.Errorf("shadowpath: %q decodes to an empty basename", shadow)
	}

	return filepath.Join(dir, original), nil
}
