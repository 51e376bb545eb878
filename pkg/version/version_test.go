package version

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestString(t *testing.T) {
	s := String()
	assert.True(t, strings.HasPrefix(s, "vaultsearch "))
	assert.Contains(t, s, Version)
}

func TestShort(t *testing.T) {
	assert.Equal(t, Version, Short())
}
