package pidfile

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquireWritesPID(t *testing.T) {
	p := New(filepath.Join(t.TempDir(), "run", "netserver.pid"))

	require.NoError(t, p.Acquire())
	pid, err := p.Read()
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), pid)

	require.NoError(t, p.Remove())
	_, err = os.Stat(p.Path())
	assert.True(t, os.IsNotExist(err))
	assert.NoError(t, p.Remove())
}

func TestAcquireReplacesStaleFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "netserver.pid")
	require.NoError(t, os.WriteFile(path, []byte("0\n"), 0644))

	p := New(path)
	require.NoError(t, p.Acquire())
	pid, err := p.Read()
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), pid)
}

func TestAcquireRefusesLiveProcess(t *testing.T) {
	path := filepath.Join(t.TempDir(), "netserver.pid")
	parent := os.Getppid()
	require.NoError(t, os.WriteFile(path, []byte(strconv.Itoa(parent)), 0644))

	err := New(path).Acquire()

	var running *RunningError
	require.ErrorAs(t, err, &running)
	assert.Equal(t, parent, running.PID)
	assert.Contains(t, err.Error(), strconv.Itoa(parent))
}

func TestRemoveKeepsForeignFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "netserver.pid")
	require.NoError(t, os.WriteFile(path, []byte(strconv.Itoa(os.Getppid())), 0644))

	require.NoError(t, New(path).Remove())
	_, err := os.Stat(path)
	assert.NoError(t, err)
}

func TestReadInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "netserver.pid")
	require.NoError(t, os.WriteFile(path, []byte("not a pid"), 0644))

	_, err := New(path).Read()
	assert.Error(t, err)
}
