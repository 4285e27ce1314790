package wisp

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVersionStringMatchesComponents(t *testing.T) {
	assert.Equal(t, "0.1.0", Version)
}
