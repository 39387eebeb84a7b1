package cyclewriter

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConsiderRotatesOnByteLimit(t *testing.T) {
	base := filepath.Join(t.TempDir(), "capture.scap")
	w := New(Config{
		BaseName:  base,
		ByteLimit: 1 << 20, // 1 MB
		DoCycle:   true,
		FileLimit: 3,
	})
	defer w.Close()

	const chunk = 600 * 1000 // 0.6 MB

	require.Equal(t, SameFile, w.Consider(chunk))
	w.written += chunk

	require.Equal(t, NewFile, w.Consider(chunk))
	require.NoError(t, w.Rotate())
	assert.Equal(t, 1, w.FileIndex())
	w.written += chunk

	require.Equal(t, NewFile, w.Consider(chunk))
	require.NoError(t, w.Rotate())
	assert.Equal(t, 2, w.FileIndex())
	w.written += chunk

	require.Equal(t, NewFile, w.Consider(chunk))
	require.NoError(t, w.Rotate())
	assert.Equal(t, 0, w.FileIndex(), "file index must wrap modulo FileLimit when cycling")
}

func TestConsiderDoQuitWhenCyclingDisabled(t *testing.T) {
	base := filepath.Join(t.TempDir(), "capture.scap")
	w := New(Config{
		BaseName:  base,
		ByteLimit: 100,
		DoCycle:   false,
		FileLimit: 1,
	})
	defer w.Close()

	w.written = 100
	assert.Equal(t, DoQuit, w.Consider(1))
}

func TestFileNameDerivation(t *testing.T) {
	w := &Writer{cfg: Config{BaseName: "/tmp/capture.scap"}}
	assert.Equal(t, "/tmp/capture.scap", w.fileName(0))
	assert.Equal(t, "/tmp/capture.2.scap", w.fileName(2))
}
