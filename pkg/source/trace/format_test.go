package trace

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/evgeni/sysdig/pkg/kevent"
)

func writeSampleTrace(t *testing.T, path string, compress bool) []*kevent.Kevent {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	w, err := NewWriter(f, compress)
	require.NoError(t, err)

	events := []*kevent.Kevent{
		kevent.New(1, 0, kevent.Open, time.Now()),
		kevent.New(2, 0, kevent.Write, time.Now()),
		kevent.New(3, 0, kevent.Close, time.Now()),
	}
	events[0].AppendParam(kevent.Fd, kevent.Uint32, uint32(5))
	events[0].AppendParam(kevent.FdName, kevent.FilePath, "/tmp/a")

	for _, e := range events {
		require.NoError(t, w.WriteFrame(FromKevent(e)))
	}
	require.NoError(t, w.Close())
	return events
}

func TestWriteReadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trace.bin")
	original := writeSampleTrace(t, path, false)

	f, err := os.Open(path)
	require.NoError(t, err)
	r, err := NewReader(f)
	require.NoError(t, err)
	defer r.Close()

	var got []*kevent.Kevent
	for {
		frame, err := r.ReadFrame()
		if err != nil {
			break
		}
		got = append(got, frame.ToKevent())
	}

	require.Len(t, got, len(original))
	for i, e := range original {
		require.Equal(t, e.Seq, got[i].Seq)
		require.Equal(t, e.Type, got[i].Type)
	}
	fd, err := got[0].Kparams.GetUint32(kevent.Fd)
	require.NoError(t, err)
	require.EqualValues(t, 5, fd)
}

func TestWriteReadRoundTripCompressed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trace.bin.gz")
	original := writeSampleTrace(t, path, true)

	f, err := os.Open(path)
	require.NoError(t, err)
	r, err := NewReader(f)
	require.NoError(t, err)
	defer r.Close()

	var n int
	for {
		_, err := r.ReadFrame()
		if err != nil {
			break
		}
		n++
	}
	require.Equal(t, len(original), n)
}

func TestNewReaderRejectsBadMagic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notatrace.bin")
	require.NoError(t, os.WriteFile(path, []byte("not a trace file at all"), 0o644))
	f, err := os.Open(path)
	require.NoError(t, err)
	_, err = NewReader(f)
	require.ErrorIs(t, err, ErrBadMagic)
}
