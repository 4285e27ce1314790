package wpath

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewClassifiesByUTF8Validity(t *testing.T) {
	assert.Equal(t, EncodingUnicode, New("hello/world").Encoding())
	assert.Equal(t, EncodingByte, New(string([]byte{0xff, 0xfe})).Encoding())
}

func TestNewMixedIsAlwaysMixed(t *testing.T) {
	assert.Equal(t, EncodingMixed, NewMixed("hello").Encoding())
}

func TestBaseNameAndDirName(t *testing.T) {
	assert.Equal(t, "c", BaseName("a/b/c"))
	assert.Equal(t, "a/b", DirName("a/b/c"))
	assert.Equal(t, "a", BaseName("a"))
	assert.Equal(t, "", DirName("a"))
}

func TestWNameBaseNameAndDirName(t *testing.T) {
	w := New("a/b/c")
	assert.Equal(t, "c", w.BaseName())
	assert.Equal(t, "a/b", w.DirName())
}

func TestJoinCollapsesSeparatorsAndSkipsEmpty(t *testing.T) {
	assert.Equal(t, "a/b/c", Join("a/", "", "/b/", "c"))
	assert.Equal(t, "a", Join("a"))
	assert.Equal(t, "", Join("", ""))
}

func TestPathIsEqualCaseSensitivity(t *testing.T) {
	assert.True(t, PathIsEqual("Foo/Bar", "Foo/Bar", true))
	assert.False(t, PathIsEqual("Foo/Bar", "foo/bar", true))
	assert.True(t, PathIsEqual("Foo/Bar", "foo/bar", false))
}

func TestWNameEqual(t *testing.T) {
	a := New("Foo")
	b := New("foo")
	assert.False(t, a.Equal(b, true))
	assert.True(t, a.Equal(b, false))
}

func TestHashIsStableForEqualBytes(t *testing.T) {
	assert.Equal(t, New("same").Hash(), New("same").Hash())
}
