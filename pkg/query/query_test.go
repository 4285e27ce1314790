package query

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wisprd/wisp/pkg/clock"
	"github.com/wisprd/wisp/pkg/ignore"
	"github.com/wisprd/wisp/pkg/view"
)

func candidate(name string, size int64, exists bool) Candidate {
	return Candidate{
		WholeName: name,
		File: &view.File{
			Name:   name,
			Exists: exists,
			Info:   view.FileInfo{Size: size, ModTime: time.Unix(1000, 0)},
		},
	}
}

func TestSizeComparators(t *testing.T) {
	c := candidate("a.txt", 100, true)
	ok, err := Size(CmpGt, 50).eval(c, true)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, _ = Size(CmpLt, 50).eval(c, true)
	assert.False(t, ok)
}

func TestNameDefaultsToBaseNameAndWholeNameIsExplicit(t *testing.T) {
	c := candidate("dir/sub/a.txt", 1, true)

	ok, _ := Name(false, "a.txt").eval(c, true)
	assert.True(t, ok, "default name comparison is against the base name")

	ok, _ = Name(true, "a.txt").eval(c, true)
	assert.False(t, ok, "wholename comparison must fail against just the base name")

	ok, _ = Name(true, "dir/sub/a.txt").eval(c, true)
	assert.True(t, ok)
}

func TestMatchIsCaseInsensitiveWhenRequested(t *testing.T) {
	c := candidate("README.MD", 1, true)
	ok, _ := Match("readme.md", false).eval(c, false)
	assert.True(t, ok)

	ok, _ = Match("readme.md", false).eval(c, true)
	assert.False(t, ok)
}

func TestSuffixMatchesLowercasedExtension(t *testing.T) {
	c := candidate("Module.PY", 1, true)
	ok, _ := Suffix("py").eval(c, true)
	assert.True(t, ok)
}

func TestAllOfShortCircuitsInOrder(t *testing.T) {
	c := candidate("a.txt", 1, true)
	ok, _ := AllOf(Exists(), False()).eval(c, true)
	assert.False(t, ok)

	ok, _ = AllOf(Exists(), True()).eval(c, true)
	assert.True(t, ok)
}

func TestAnyOfShortCircuits(t *testing.T) {
	c := candidate("a.txt", 1, true)
	ok, _ := AnyOf(False(), True()).eval(c, true)
	assert.True(t, ok)
}

func TestNotNegates(t *testing.T) {
	c := candidate("a.txt", 1, false)
	ok, _ := Not(Exists()).eval(c, true)
	assert.True(t, ok)
}

func TestSinceComparesConfiguredTickField(t *testing.T) {
	c := candidate("a.txt", 1, true)
	c.File.CtimeTick = 5
	c.File.ContentTick = 3

	ok, _ := Since(SinceCtime, 4).eval(c, true)
	assert.True(t, ok)

	ok, _ = Since(SinceMtime, 4).eval(c, true)
	assert.False(t, ok)
}

func TestExecuteFiltersRendersAndDedupes(t *testing.T) {
	candidates := []Candidate{
		candidate("a.txt", 10, true),
		candidate("b.txt", 1, true),
		candidate("a.txt", 10, true), // duplicate whole-name
	}

	spec := &Spec{
		CaseSensitive: true,
		DedupResults:  true,
		Expr:          Size(CmpGe, 5),
		FieldList:     []string{"name", "size"},
	}

	result, err := Execute(spec, clock.Resolved{Ticks: 1}, nil, func(*Spec, *ignore.Set) ([]Candidate, int) {
		return candidates, len(candidates)
	}, DefaultRenderers)
	require.NoError(t, err)
	require.Len(t, result.Files, 1)
	assert.Equal(t, "a.txt", result.Files[0]["name"])
	assert.Equal(t, int64(10), result.Files[0]["size"])
	assert.Equal(t, 3, result.Stats.NumWalked)
	assert.Equal(t, 1, result.Stats.NumMatched)
}

func TestExecuteEmptyOnFreshInstance(t *testing.T) {
	spec := &Spec{EmptyOnFreshInstance: true, FieldList: []string{"name"}}
	result, err := Execute(spec, clock.Resolved{IsFreshInstance: true}, nil, func(*Spec, *ignore.Set) ([]Candidate, int) {
		t.Fatal("generator should not run when the query elects to return empty on fresh instance")
		return nil, 0
	}, DefaultRenderers)
	require.NoError(t, err)
	assert.True(t, result.IsFreshInstance)
	assert.Empty(t, result.Files)
}

func TestExecuteRespectsRelativeRoot(t *testing.T) {
	candidates := []Candidate{
		candidate("keep/a.txt", 1, true),
		candidate("other/b.txt", 1, true),
	}
	spec := &Spec{
		CaseSensitive: true,
		RelativeRoot:  "keep",
		FieldList:     []string{"name"},
	}
	result, err := Execute(spec, clock.Resolved{Ticks: 1}, nil, func(*Spec, *ignore.Set) ([]Candidate, int) {
		return candidates, len(candidates)
	}, DefaultRenderers)
	require.NoError(t, err)
	require.Len(t, result.Files, 1)
	assert.Equal(t, "a.txt", result.Files[0]["name"])
}

func TestExecuteRejectsUnknownField(t *testing.T) {
	candidates := []Candidate{candidate("a.txt", 1, true)}
	spec := &Spec{CaseSensitive: true, FieldList: []string{"bogus"}}
	_, err := Execute(spec, clock.Resolved{Ticks: 1}, nil, func(*Spec, *ignore.Set) ([]Candidate, int) {
		return candidates, len(candidates)
	}, DefaultRenderers)
	assert.Error(t, err)
}
