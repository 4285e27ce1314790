// Package wpath provides the path/string primitives shared by the wire
// codec, the view, and the query engine: an encoding-tagged string type for
// the BSER codec's byte-string/utf8-string choice, and the path operations
// (BaseName, DirName, Join, PathIsEqual, AsWideUNC) that every layer
// above it needs instead of reaching for path/filepath, since wire paths are
// always '/'-separated regardless of the host platform.
package wpath

import (
	"runtime"
	"strings"
	"unicode/utf8"
)

// Encoding identifies how the bytes of a WName should be treated when
// serialized.
type Encoding uint8

const (
	// EncodingByte indicates that the string is an opaque byte sequence with
	// no known text encoding (e.g. a path component that failed UTF-8
	// validation).
	EncodingByte Encoding = iota
	// EncodingUnicode indicates that the string is valid UTF-8.
	EncodingUnicode
	// EncodingMixed indicates that the string was assembled from components
	// of different encodings (e.g. joining a byte path with a unicode
	// suffix) and must be re-validated before being treated as unicode.
	EncodingMixed
)

// WName is an immutable byte string with an encoding tag. Instances are
// intended to be copied by value; the underlying bytes are never mutated
// after construction, so sharing the backing array across copies is safe.
type WName struct {
	// bytes holds the raw content of the name. It is never modified in place.
	bytes []byte
	// encoding records how bytes should be interpreted for wire purposes.
	encoding Encoding
}

// New classifies s and wraps it as a WName: EncodingUnicode if s is valid
// UTF-8, EncodingByte otherwise. This is the rule the BSER codec applies to
// a bare Go string passed as a Value.
func New(s string) WName {
	enc := EncodingByte
	if utf8.ValidString(s) {
		enc = EncodingUnicode
	}
	return WName{bytes: []byte(s), encoding: enc}
}

// NewMixed wraps s as an EncodingMixed WName, for a caller that has already
// assembled it from components of different encodings and knows it needs
// re-validation rather than blind trust.
func NewMixed(s string) WName {
	return WName{bytes: []byte(s), encoding: EncodingMixed}
}

// Len returns the length of the name in bytes.
func (w WName) Len() int {
	return len(w.bytes)
}

// Encoding reports how w's bytes should be treated when serialized.
func (w WName) Encoding() Encoding {
	return w.encoding
}

// Bytes returns the name's raw bytes. The caller must not modify the
// returned slice.
func (w WName) Bytes() []byte {
	return w.bytes
}

// String returns the name as a Go string.
func (w WName) String() string {
	return string(w.bytes)
}

// Hash returns an FNV-1a hash of the name's bytes, for use as a map key
// surrogate where the full bytes would be wasteful to store repeatedly.
func (w WName) Hash() uint64 {
	const (
		offset64 = 14695981039346656037
		prime64  = 1099511628211
	)
	h := uint64(offset64)
	for _, b := range w.bytes {
		h ^= uint64(b)
		h *= prime64
	}
	return h
}

// Equal reports whether w and other name the same path, applying the same
// case-sensitivity and separator rules as PathIsEqual.
func (w WName) Equal(other WName, caseSensitive bool) bool {
	return PathIsEqual(w.String(), other.String(), caseSensitive)
}

// BaseName returns the final '/'-separated component of path, without
// allocating when the component is already a suffix of the backing string.
func BaseName(path string) string {
	if idx := strings.LastIndexByte(path, '/'); idx >= 0 {
		return path[idx+1:]
	}
	return path
}

// DirName returns path with its final '/'-separated component removed,
// without allocating.
func DirName(path string) string {
	if idx := strings.LastIndexByte(path, '/'); idx >= 0 {
		return path[:idx]
	}
	return ""
}

// BaseName returns the final '/'-separated component of w.
func (w WName) BaseName() string {
	return BaseName(w.String())
}

// DirName returns w with its final '/'-separated component removed.
func (w WName) DirName() string {
	return DirName(w.String())
}

// pathCat joins two path segments with a single '/' separator, collapsing
// any repeated separators at the join and skipping either component if it's
// empty.
func pathCat(a, b string) string {
	a = strings.TrimRight(a, "/")
	b = strings.TrimLeft(b, "/")
	if a == "" {
		return b
	}
	if b == "" {
		return a
	}
	return a + "/" + b
}

// Join concatenates components with pathCat's collapsing/empty-skipping
// semantics, left to right. It exists as an ergonomic variadic wrapper since
// most call sites build a path incrementally rather than two segments at a
// time.
func Join(components ...string) string {
	var result string
	for _, c := range components {
		result = pathCat(result, c)
	}
	return result
}

// PathIsEqual reports whether a and b name the same path. Separator class is
// determined per OS: on Windows, '/' and '\' are treated as equivalent
// separators and only a drive letter is allowed to differ in case even when
// caseSensitive is requested; elsewhere '\' is an ordinary filename byte, not
// a separator, and the comparison is a plain (optionally case-folding)
// byte compare.
func PathIsEqual(a, b string, caseSensitive bool) bool {
	if runtime.GOOS != "windows" {
		if caseSensitive {
			return a == b
		}
		return strings.EqualFold(a, b)
	}

	na := normalizeSeparators(a)
	nb := normalizeSeparators(b)
	if drive, rest, ok := splitDriveLetter(na); ok {
		odrive, orest, ook := splitDriveLetter(nb)
		if !ook || !strings.EqualFold(drive, odrive) {
			return false
		}
		na, nb = rest, orest
	}
	if caseSensitive {
		return na == nb
	}
	return strings.EqualFold(na, nb)
}

func normalizeSeparators(s string) string {
	if !strings.ContainsRune(s, '\\') {
		return s
	}
	return strings.ReplaceAll(s, "\\", "/")
}

// splitDriveLetter splits a Windows path of the form "C:/rest" into its
// single-letter drive and the remainder, reporting ok=false if path does not
// begin with a drive letter.
func splitDriveLetter(path string) (drive, rest string, ok bool) {
	if len(path) >= 2 && path[1] == ':' {
		c := path[0]
		if (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') {
			return path[:1], path[2:], true
		}
	}
	return "", path, false
}

// AsWideUNC converts an absolute Windows path to its extended-length
// ("\\?\") form, which lifts the MAX_PATH limit on Windows APIs that accept
// it. It is a no-op on every other platform and on paths already in that
// form.
func AsWideUNC(path string) string {
	if runtime.GOOS != "windows" {
		return path
	}
	if strings.HasPrefix(path, `\\?\`) {
		return path
	}
	if len(path) >= 2 && path[1] == ':' {
		return `\\?\` + path
	}
	if strings.HasPrefix(path, `\\`) {
		return `\\?\UNC\` + path[2:]
	}
	return path
}
