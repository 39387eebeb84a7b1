package source

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/evgeni/sysdig/pkg/ierrors"
	"github.com/evgeni/sysdig/pkg/kevent"
	"github.com/evgeni/sysdig/pkg/source/trace"
)

func writeThreeEventTrace(t *testing.T, path string) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	w, err := trace.NewWriter(f, false)
	require.NoError(t, err)

	open := kevent.New(1, 0, kevent.Open, time.Now())
	open.AppendParam(kevent.Tid, kevent.Uint32, uint32(100))
	open.AppendParam(kevent.Fd, kevent.Uint32, uint32(5))
	open.AppendParam(kevent.FdName, kevent.FilePath, "/tmp/a")

	write := kevent.New(2, 0, kevent.Write, time.Now())
	write.AppendParam(kevent.Tid, kevent.Uint32, uint32(100))
	write.AppendParam(kevent.Fd, kevent.Uint32, uint32(5))

	closeEvt := kevent.New(3, 0, kevent.Close, time.Now())
	closeEvt.AppendParam(kevent.Tid, kevent.Uint32, uint32(100))
	closeEvt.AppendParam(kevent.Fd, kevent.Uint32, uint32(5))

	for _, e := range []*kevent.Kevent{open, write, closeEvt} {
		require.NoError(t, w.WriteFrame(trace.FromKevent(e)))
	}
	require.NoError(t, w.Close())
}

func TestAdapterOpenCloseLifecycle(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trace.bin")
	writeThreeEventTrace(t, path)

	a, err := OpenFile(path)
	require.NoError(t, err)
	defer a.Close()

	for i := 0; i < 3; i++ {
		e, _, err := a.Next()
		require.NoErrorf(t, err, "event %d", i+1)
		require.NotNil(t, e)
	}

	_, _, err = a.Next()
	require.True(t, errors.Is(err, ierrors.ErrEOF))

	_, _, err = a.Next()
	require.True(t, errors.Is(err, ierrors.ErrEOF), "Eof is sticky on repeated pulls")
}

func TestAdapterSnaplenIgnoredOnFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trace.bin")
	writeThreeEventTrace(t, path)

	a, err := OpenFile(path)
	require.NoError(t, err)
	defer a.Close()

	require.NoError(t, a.SetSnaplen(16))
}
