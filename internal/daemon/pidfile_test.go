package daemon

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPIDFileWriteAndRead(t *testing.T) {
	p := NewPIDFile(filepath.Join(t.TempDir(), "run", "daemon.pid"))

	require.NoError(t, p.Write())
	pid, err := p.Read()
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), pid)
	assert.True(t, p.IsRunning())

	require.NoError(t, p.Remove())
	_, err = p.Read()
	assert.Error(t, err)
}

func TestPIDFileRemoveMissing(t *testing.T) {
	p := NewPIDFile(filepath.Join(t.TempDir(), "daemon.pid"))
	assert.NoError(t, p.Remove())
}

func TestPIDFileInvalidContents(t *testing.T) {
	path := filepath.Join(t.TempDir(), "daemon.pid")
	require.NoError(t, os.WriteFile(path, []byte("not a pid"), 0o644))

	p := NewPIDFile(path)
	_, err := p.Read()
	assert.Error(t, err)
	assert.False(t, p.IsRunning())
}

func TestPIDFileReclaimStale(t *testing.T) {
	path := filepath.Join(t.TempDir(), "daemon.pid")
	// A PID far above the kernel's pid_max cannot belong to a live
	// process.
	require.NoError(t, os.WriteFile(path, []byte(strconv.Itoa(1<<30)), 0o644))

	p := NewPIDFile(path)
	assert.True(t, p.ReclaimStale())
	assert.NoFileExists(t, path)
}

func TestPIDFileReclaimLeavesLiveProcess(t *testing.T) {
	p := NewPIDFile(filepath.Join(t.TempDir(), "daemon.pid"))
	require.NoError(t, p.Write())

	assert.False(t, p.ReclaimStale())
	assert.FileExists(t, p.Path())
}
