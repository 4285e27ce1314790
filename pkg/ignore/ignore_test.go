package ignore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFullIgnoreCoversSelfAndDescendants(t *testing.T) {
	s := New()
	s.AddIgnoreDir("/root/node_modules")

	assert.True(t, s.IsIgnored("/root/node_modules"))
	assert.True(t, s.IsIgnored("/root/node_modules/pkg/index.js"))
	assert.False(t, s.IsIgnored("/root/src/index.js"))
	assert.True(t, s.IsIgnoreDir("/root/node_modules"))
}

func TestVCSEntryItselfIsNotIgnoredButContentsAre(t *testing.T) {
	s := New()
	s.AddIgnoreVCS("/root/.git")

	assert.False(t, s.IsIgnored("/root/.git"), "the vcs directory entry itself must be reported")
	assert.True(t, s.IsIgnored("/root/.git/HEAD"))
	assert.True(t, s.IsIgnoreVCS("/root/.git"))
}

func TestUnrelatedPathsAreNotIgnored(t *testing.T) {
	s := New()
	s.AddIgnoreDir("/root/.git")
	assert.False(t, s.IsIgnored("/root/.gitignore"))
	assert.False(t, s.IsIgnored("/rootother/file"))
}

func TestNamePatternMatching(t *testing.T) {
	s := New()
	require.NoError(t, s.CompileNamePatterns([]string{"*.pyc", ".DS_Store"}))
	assert.True(t, s.IsIgnored("/root/pkg/module.pyc"))
	assert.True(t, s.IsIgnored("/root/.DS_Store"))
	assert.False(t, s.IsIgnored("/root/module.py"))
}

func TestInvalidPatternRejected(t *testing.T) {
	s := New()
	err := s.CompileNamePatterns([]string{"["})
	assert.Error(t, err)
}

func TestKernelExclusionsCappedAndOrdered(t *testing.T) {
	s := New()
	s.AddIgnoreDir("/a")
	s.AddIgnoreDir("/b")
	s.AddIgnoreVCS("/c")

	full, vcs := s.KernelExclusions()
	assert.Equal(t, []string{"/a", "/b"}, full)
	assert.Equal(t, []string{"/c"}, vcs)
}
