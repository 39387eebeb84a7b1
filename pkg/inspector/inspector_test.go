package inspector

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evgeni/sysdig/pkg/config"
	"github.com/evgeni/sysdig/pkg/cyclewriter"
	"github.com/evgeni/sysdig/pkg/kevent"
	"github.com/evgeni/sysdig/pkg/source/trace"
)

// writeTrace builds a trace file out of evts at path, for tests that open
// it back through an Inspector.
func writeTrace(t *testing.T, path string, evts ...*kevent.Kevent) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	w, err := trace.NewWriter(f, false)
	require.NoError(t, err)
	for _, e := range evts {
		require.NoError(t, w.WriteFrame(trace.FromKevent(e)))
	}
	require.NoError(t, w.Close())
}

func cloneEvt(seq uint64, tid, pid, ppid uint32, comm string, ts time.Time) *kevent.Kevent {
	e := kevent.New(seq, 0, kevent.Clone, ts)
	e.AppendParam(kevent.Tid, kevent.Uint32, tid)
	e.AppendParam(kevent.Pid, kevent.Uint32, pid)
	e.AppendParam(kevent.Ppid, kevent.Uint32, ppid)
	e.AppendParam(kevent.Comm, kevent.AnsiString, comm)
	e.AppendParam(kevent.Exe, kevent.AnsiString, "/bin/"+comm)
	e.AppendParam(kevent.Uid, kevent.Uint32, uint32(1000))
	e.AppendParam(kevent.Gid, kevent.Uint32, uint32(1000))
	return e
}

func openEvt(seq uint64, tid, fd uint32, name string, ts time.Time) *kevent.Kevent {
	e := kevent.New(seq, 0, kevent.Open, ts)
	e.AppendParam(kevent.Tid, kevent.Uint32, tid)
	e.AppendParam(kevent.Fd, kevent.Uint32, fd)
	e.AppendParam(kevent.FdName, kevent.FilePath, name)
	return e
}

func closeEvt(seq uint64, tid, fd uint32, ts time.Time) *kevent.Kevent {
	e := kevent.New(seq, 0, kevent.Close, ts)
	e.AppendParam(kevent.Tid, kevent.Uint32, tid)
	e.AppendParam(kevent.Fd, kevent.Uint32, fd)
	return e
}

func exitEvt(seq uint64, tid uint32, ts time.Time) *kevent.Kevent {
	e := kevent.New(seq, 0, kevent.Exit, ts)
	e.AppendParam(kevent.Tid, kevent.Uint32, tid)
	return e
}

func newOpenInspector(t *testing.T, path string) *Inspector {
	t.Helper()
	insp := New(config.Default())
	require.NoError(t, insp.OpenFile(path))
	t.Cleanup(func() { insp.Close() })
	return insp
}

// TestOpenCloseLifecycle walks every state the configuration machine
// allows: Configuring -> Opened -> Capturing -> Opened -> Closed, driven
// entirely through the Inspector's own surface.
func TestOpenCloseLifecycle(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trace.bin")
	writeTrace(t, path)

	insp := New(config.Default())
	require.NoError(t, insp.OpenFile(path))
	require.NoError(t, insp.StartCapture())
	require.NoError(t, insp.StopCapture())
	require.NoError(t, insp.Close())
}

// TestNextReturnsEofOnExhaustedTrace exercises Next's Step 2 EOF path and
// confirms EOF keeps being reported on repeated calls.
func TestNextReturnsEofOnExhaustedTrace(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trace.bin")
	now := time.Now()
	writeTrace(t, path, cloneEvt(1, 100, 100, 1, "initd", now))

	insp := newOpenInspector(t, path)

	e, status, err := insp.Next()
	require.NoError(t, err)
	require.Equal(t, StatusEvent, status)
	require.NotNil(t, e)

	_, status, err = insp.Next()
	require.NoError(t, err)
	assert.Equal(t, StatusEof, status)

	_, status, err = insp.Next()
	require.NoError(t, err)
	assert.Equal(t, StatusEof, status, "Eof keeps being reported on repeated pulls")
}

// TestCancelIsHonoredBeforeNextPull confirms Cancel takes effect at the
// top of the following Next call, not mid-event.
func TestCancelIsHonoredBeforeNextPull(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trace.bin")
	now := time.Now()
	writeTrace(t, path,
		cloneEvt(1, 100, 100, 1, "initd", now),
		cloneEvt(2, 101, 101, 1, "workerd", now.Add(time.Millisecond)),
	)

	insp := newOpenInspector(t, path)

	e, status, err := insp.Next()
	require.NoError(t, err)
	require.Equal(t, StatusEvent, status)
	require.NotNil(t, e)

	insp.Cancel()

	_, status, err = insp.Next()
	require.NoError(t, err)
	assert.Equal(t, StatusEof, status)
}

// TestFilterRejectionMarksEventAsFiltered walks Step 8: a filter that
// rejects everything still returns the event, flagged, at StatusTimeout
// rather than suppressing it outright.
type acceptNothingFilter struct{}

func (acceptNothingFilter) Eval(e *kevent.Kevent) bool                { return false }
func (acceptNothingFilter) DumpFlags(e *kevent.Kevent) (uint32, bool) { return 0, false }

func TestFilterRejectionMarksEventAsFiltered(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trace.bin")
	now := time.Now()
	writeTrace(t, path, cloneEvt(1, 100, 100, 1, "initd", now))

	insp := newOpenInspector(t, path)
	require.NoError(t, insp.SetFilter(acceptNothingFilter{}))

	e, status, err := insp.Next()
	require.NoError(t, err)
	assert.Equal(t, StatusTimeout, status)
	require.NotNil(t, e)
	assert.True(t, e.Filtered)
}

// TestSetFilterIsSingleShot confirms the configuration machine's
// single-shot contract for SetFilter is actually wired through the
// Inspector, not just asserted in isolation against config.Machine.
func TestSetFilterIsSingleShot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trace.bin")
	writeTrace(t, path)

	insp := newOpenInspector(t, path)
	require.NoError(t, insp.SetFilter(acceptNothingFilter{}))
	err := insp.SetFilter(acceptNothingFilter{})
	assert.Error(t, err)
}

// TestUnknownTidFallsBackToSentinelOnFileSource exercises get_or_query's
// fallback: a trace file has no live OS to consult, so an event
// referencing a tid the file never clones must still resolve, to a
// sentinel entry, rather than blocking the loop.
func TestUnknownTidFallsBackToSentinelOnFileSource(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trace.bin")
	writeTrace(t, path, openEvt(1, 555, 5, "/tmp/x", time.Now()))

	insp := newOpenInspector(t, path)

	_, status, err := insp.Next()
	require.NoError(t, err)
	require.Equal(t, StatusEvent, status)

	ti, ok := insp.threads.Get(555, true)
	require.True(t, ok)
	assert.True(t, ti.IsSentinel())
}

// TestAutodumpRoundTrip: autodump_start -> write events via Next ->
// autodump_stop yields a file readable back as a valid trace (spec §8
// "autodump round-trip").
func TestAutodumpRoundTrip(t *testing.T) {
	srcPath := filepath.Join(t.TempDir(), "src.bin")
	now := time.Now()
	writeTrace(t, srcPath,
		cloneEvt(1, 100, 100, 1, "initd", now),
		openEvt(2, 100, 5, "/tmp/a", now.Add(time.Millisecond)),
		closeEvt(3, 100, 5, now.Add(2*time.Millisecond)),
	)

	insp := newOpenInspector(t, srcPath)

	dumpPath := filepath.Join(t.TempDir(), "dump.bin")
	require.NoError(t, insp.AutodumpStart(dumpPath, false))

	for i := 0; i < 3; i++ {
		_, status, err := insp.Next()
		require.NoError(t, err)
		require.Equal(t, StatusEvent, status)
	}
	require.NoError(t, insp.AutodumpStop())

	f, err := os.Open(dumpPath)
	require.NoError(t, err)
	defer f.Close()
	r, err := trace.NewReader(f)
	require.NoError(t, err)
	count := 0
	for {
		_, err := r.ReadFrame()
		if err != nil {
			break
		}
		count++
	}
	assert.Equal(t, 3, count)
}

// TestAutodumpStartTwiceClosesThePreviousDump confirms switching dump
// targets never leaks the first file handle: the first file must already
// be a valid, readable trace once the second AutodumpStart returns.
func TestAutodumpStartTwiceClosesThePreviousDump(t *testing.T) {
	srcPath := filepath.Join(t.TempDir(), "src.bin")
	now := time.Now()
	writeTrace(t, srcPath, cloneEvt(1, 100, 100, 1, "initd", now))

	insp := newOpenInspector(t, srcPath)

	firstDump := filepath.Join(t.TempDir(), "first.bin")
	secondDump := filepath.Join(t.TempDir(), "second.bin")

	require.NoError(t, insp.AutodumpStart(firstDump, false))
	require.NoError(t, insp.AutodumpStart(secondDump, false))
	require.NoError(t, insp.AutodumpStop())

	f, err := os.Open(firstDump)
	require.NoError(t, err)
	defer f.Close()
	_, err = trace.NewReader(f)
	require.NoError(t, err, "first dump's header should already be flushed and closed")
}

// TestCycleWriterQuitSurfacesAsEof sets a 1-byte limit, which the trace
// header written when the cycle writer is set up already exceeds, so the
// first event's consider hits DOQUIT, and confirms Next translates that
// into a plain Eof rather than an error (spec §7 kind 8).
func TestCycleWriterQuitSurfacesAsEof(t *testing.T) {
	srcPath := filepath.Join(t.TempDir(), "src.bin")
	now := time.Now()
	writeTrace(t, srcPath,
		cloneEvt(1, 100, 100, 1, "initd", now),
		cloneEvt(2, 101, 101, 1, "workerd", now.Add(time.Millisecond)),
	)

	insp := newOpenInspector(t, srcPath)

	cwCfg := cyclewriter.Config{
		BaseName:  filepath.Join(t.TempDir(), "cycle.bin"),
		ByteLimit: 1, // the trace header alone already exceeds this
		FileLimit: 1,
		DoCycle:   false,
	}
	require.NoError(t, insp.SetupCycleWriter(cwCfg))

	_, status, err := insp.Next()
	require.NoError(t, err)
	assert.Equal(t, StatusEof, status)
}

// TestCaptureStatsReflectsThreadTable confirms CaptureStats (the
// telemetry.StatsProvider implementation) reports a thread count that
// tracks the thread table as events are processed.
func TestCaptureStatsReflectsThreadTable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trace.bin")
	now := time.Now()
	writeTrace(t, path, cloneEvt(1, 100, 100, 1, "initd", now))

	insp := newOpenInspector(t, path)

	before := insp.CaptureStats()
	assert.Equal(t, 0, before.ThreadCount)

	_, status, err := insp.Next()
	require.NoError(t, err)
	require.Equal(t, StatusEvent, status)

	after := insp.CaptureStats()
	assert.Equal(t, 1, after.ThreadCount)
	assert.Equal(t, uint64(1), after.SeenEvents)
}

// TestReserveThreadMemorySizesPrivateBlock confirms reserve_thread_memory
// is not just a setup-phase formality: every ThreadInfo created after open
// actually carries a Private block of at least the reserved size.
func TestReserveThreadMemorySizesPrivateBlock(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trace.bin")
	now := time.Now()
	writeTrace(t, path, cloneEvt(1, 100, 100, 1, "initd", now))

	insp := New(config.Default())
	require.NoError(t, insp.ReserveThreadMemory(64))
	require.NoError(t, insp.OpenFile(path))
	defer insp.Close()

	_, status, err := insp.Next()
	require.NoError(t, err)
	require.Equal(t, StatusEvent, status)

	ti, ok := insp.threads.Get(100, true)
	require.True(t, ok)
	assert.GreaterOrEqual(t, len(ti.Private), 64)
}

// TestReserveThreadMemoryRejectedAfterOpen confirms the pre-open-only rule
// (spec §6) surfaces as a setup error once capture state has opened.
func TestReserveThreadMemoryRejectedAfterOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trace.bin")
	writeTrace(t, path)

	insp := newOpenInspector(t, path)
	err := insp.ReserveThreadMemory(64)
	assert.Error(t, err)
}

// TestInactiveThreadSweepEvictsStaleThreads drives two events far enough
// apart in their own timestamps that the second Next call's Step 5 sweep
// evicts the first thread once its timeout has elapsed (spec §4.2
// remove_inactive).
func TestInactiveThreadSweepEvictsStaleThreads(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trace.bin")
	base := time.Now()
	writeTrace(t, path,
		cloneEvt(1, 100, 100, 1, "initd", base),
		cloneEvt(2, 101, 101, 1, "workerd", base.Add(time.Hour)),
	)

	cfg := config.Default()
	cfg.ThreadTimeout = time.Minute
	cfg.InactiveScanEvery = 0 // sweep on every Next call
	insp := New(cfg)
	require.NoError(t, insp.OpenFile(path))
	defer insp.Close()

	_, status, err := insp.Next()
	require.NoError(t, err)
	require.Equal(t, StatusEvent, status)

	ti, ok := insp.threads.Get(100, true)
	require.True(t, ok)
	ti.LastEventTs = base // Next's step 9 already stamped base; set it explicitly

	_, status, err = insp.Next()
	require.NoError(t, err)
	require.Equal(t, StatusEvent, status)

	_, ok = insp.threads.Get(100, true)
	assert.False(t, ok, "thread 100 should have been evicted by the inactive sweep")
}

// TestCloseNeverOpenedIsNoop confirms Close is safe to call on an
// Inspector that never finished opening a source.
func TestCloseNeverOpenedIsNoop(t *testing.T) {
	insp := New(config.Default())
	assert.NoError(t, insp.Close())
}

// TestExitEnqueuesDeferredTidRemoval confirms an exit event's tid is only
// removed from the thread table once the *next* event drains it (spec
// §4.6 Step 4), not in-place during the exit event's own processing.
func TestExitEnqueuesDeferredTidRemoval(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trace.bin")
	now := time.Now()
	writeTrace(t, path,
		cloneEvt(1, 100, 100, 1, "workerd", now),
		exitEvt(2, 100, now.Add(time.Millisecond)),
		cloneEvt(3, 101, 101, 1, "workerd2", now.Add(2*time.Millisecond)),
	)

	insp := newOpenInspector(t, path)

	_, status, err := insp.Next() // clone(100)
	require.NoError(t, err)
	require.Equal(t, StatusEvent, status)

	_, status, err = insp.Next() // exit(100): still present, removal only enqueued
	require.NoError(t, err)
	require.Equal(t, StatusEvent, status)
	_, ok := insp.threads.Get(100, true)
	assert.True(t, ok, "tid 100 must survive its own exit event")

	_, status, err = insp.Next() // clone(101): drains the pending removal first
	require.NoError(t, err)
	require.Equal(t, StatusEvent, status)
	_, ok = insp.threads.Get(100, true)
	assert.False(t, ok, "tid 100 must be gone once the following event drains it")
}

func TestConsiderAndWriteHonorsDumpFlagsDrop(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trace.bin")
	now := time.Now()
	writeTrace(t, path, cloneEvt(1, 100, 100, 1, "initd", now))

	insp := newOpenInspector(t, path)
	insp.filter = dropAllDumpFilter{}

	dumpPath := filepath.Join(t.TempDir(), "dump.bin")
	require.NoError(t, insp.AutodumpStart(dumpPath, false))

	_, status, err := insp.Next()
	require.NoError(t, err)
	require.Equal(t, StatusEvent, status)
	require.NoError(t, insp.AutodumpStop())

	f, err := os.Open(dumpPath)
	require.NoError(t, err)
	defer f.Close()
	r, err := trace.NewReader(f)
	require.NoError(t, err)
	_, err = r.ReadFrame()
	assert.True(t, errors.Is(err, io.EOF), "dump_flags drop should leave the trace empty")
}

type dropAllDumpFilter struct{}

func (dropAllDumpFilter) Eval(e *kevent.Kevent) bool { return true }
func (dropAllDumpFilter) DumpFlags(e *kevent.Kevent) (uint32, bool) {
	return 0, true
}
