package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCarriesKindAndMessage(t *testing.T) {
	err := New(KindConfig, "vault path is not a directory")

	assert.Equal(t, KindConfig, err.Kind)
	assert.Contains(t, err.Error(), "vault path is not a directory")
	assert.Contains(t, err.Error(), "config")
}

func TestErrorIncludesPath(t *testing.T) {
	err := New(KindIndexCorrupt, "manifest unreadable").WithPath("/data/index/snap-1/manifest.json")

	assert.Contains(t, err.Error(), "/data/index/snap-1/manifest.json")
}

func TestWrapNilReturnsNil(t *testing.T) {
	var wrapped *Error = Wrap(KindProvider, "embed failed", nil)
	assert.Nil(t, wrapped)
}

func TestWrapPreservesCause(t *testing.T) {
	cause := fmt.Errorf("connection refused")
	err := Wrap(KindProvider, "embedding request failed", cause)

	require.NotNil(t, err)
	assert.True(t, stderrors.Is(err, cause))
}

func TestIsMatchesByKind(t *testing.T) {
	err := Newf(KindIndexNotFound, "no index for %s", "/vault")

	assert.True(t, stderrors.Is(err, &Error{Kind: KindIndexNotFound}))
	assert.False(t, stderrors.Is(err, &Error{Kind: KindIndexCorrupt}))
}

func TestKindOfUnwrapsChain(t *testing.T) {
	inner := New(KindChannel, "connection reset mid-response")
	outer := fmt.Errorf("query failed: %w", inner)

	assert.Equal(t, KindChannel, KindOf(outer))
}

func TestKindOfPlainError(t *testing.T) {
	assert.Equal(t, KindInternal, KindOf(fmt.Errorf("boom")))
	assert.Equal(t, Kind(""), KindOf(nil))
}

func TestFormatForCLI(t *testing.T) {
	err := New(KindIndexNotFound, "no search index exists").
		WithPath("/home/u/.local/share/vault-search").
		WithSuggestion("run 'vaultsearch index' to build one")

	out := FormatForCLI(err)

	assert.Contains(t, out, "Error: no search index exists")
	assert.Contains(t, out, "Hint: run 'vaultsearch index' to build one")
	assert.NotContains(t, out, "internal")
}

func TestExitCodes(t *testing.T) {
	assert.Equal(t, 0, ExitCode(nil))
	assert.Equal(t, 2, ExitCode(New(KindConfig, "bad")))
	assert.Equal(t, 3, ExitCode(New(KindIndexNotFound, "none")))
	assert.Equal(t, 4, ExitCode(New(KindIndexCorrupt, "bad bytes")))
	assert.Equal(t, 5, ExitCode(New(KindProvider, "down")))
	assert.Equal(t, 6, ExitCode(New(KindChannel, "reset")))
	assert.Equal(t, 1, ExitCode(fmt.Errorf("plain")))
}
