package parser

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evgeni/sysdig/pkg/decoder"
	"github.com/evgeni/sysdig/pkg/ifaces"
	"github.com/evgeni/sysdig/pkg/kevent"
	"github.com/evgeni/sysdig/pkg/procfs"
)

func newTestParser() (*Parser, *procfs.Table) {
	threads := procfs.NewTable(procfs.Config{MaxThreadTableSize: 1000}, nil)
	return New(threads, ifaces.New(), decoder.NewRegistry()), threads
}

func openEvt(tid, fd uint32, name string) *kevent.Kevent {
	e := kevent.New(1, 0, kevent.Open, time.Now())
	e.AppendParam(kevent.Tid, kevent.Uint32, tid)
	e.AppendParam(kevent.Fd, kevent.Uint32, fd)
	e.AppendParam(kevent.FdName, kevent.FilePath, name)
	return e
}

func closeEvt(tid, fd uint32) *kevent.Kevent {
	e := kevent.New(3, 0, kevent.Close, time.Now())
	e.AppendParam(kevent.Tid, kevent.Uint32, tid)
	e.AppendParam(kevent.Fd, kevent.Uint32, fd)
	return e
}

// TestOpenCloseLifecycle mirrors spec §8 scenario 1: fd stays visible
// through the close event itself and disappears only once the next
// event's deferred-removal drain runs.
func TestOpenCloseLifecycle(t *testing.T) {
	p, threads := newTestParser()
	threads.Add(procfs.New(100, 100, -1, "a.out", "/bin/a.out", 0, 0), false)

	p.ProcessEvent(openEvt(100, 5, "/tmp/a"))
	ti, _ := threads.Get(100, true)
	fi, ok := ti.Fds.Get(5)
	require.True(t, ok)
	assert.Equal(t, "/tmp/a", fi.Name)

	write := kevent.New(2, 0, kevent.Write, time.Now())
	write.AppendParam(kevent.Tid, kevent.Uint32, uint32(100))
	write.AppendParam(kevent.Fd, kevent.Uint32, uint32(5))
	p.ProcessEvent(write)
	_, ok = ti.Fds.Get(5)
	require.True(t, ok, "fd must still be visible after a write")

	p.ProcessEvent(closeEvt(100, 5))
	_, ok = ti.Fds.Get(5)
	require.True(t, ok, "fd must still be visible during the close event itself")

	threads.DrainFdRemovals()
	_, ok = ti.Fds.Get(5)
	assert.False(t, ok, "fd must be gone once the next event drains the deferred removal")
}

// TestDelayedExit mirrors spec §8 scenario 2.
func TestDelayedExit(t *testing.T) {
	p, threads := newTestParser()
	threads.Add(procfs.New(100, 100, -1, "a", "/bin/a", 0, 0), false)

	a := kevent.New(1, 0, kevent.Write, time.Now())
	a.AppendParam(kevent.Tid, kevent.Uint32, uint32(100))
	a.AppendParam(kevent.Fd, kevent.Uint32, uint32(1))
	p.ProcessEvent(a)

	exit := kevent.New(2, 0, kevent.Exit, time.Now())
	exit.AppendParam(kevent.Tid, kevent.Uint32, uint32(100))
	p.ProcessEvent(exit)

	_, ok := threads.Get(100, true)
	require.True(t, ok, "tid=100 still resolves during the exit event itself")

	removed := threads.DrainTidRemoval()
	assert.EqualValues(t, 100, removed)

	_, ok = threads.Get(100, true)
	assert.False(t, ok, "tid=100 must be absent once tid_to_remove is drained")
}

// TestSnapshotReconciliation mirrors spec §8 scenario 3.
func TestSnapshotReconciliation(t *testing.T) {
	p, threads := newTestParser()
	threads.Add(procfs.New(1, 1, -1, "init", "/sbin/init", 0, 0), true)
	threads.Add(procfs.New(2, 2, 1, "a", "/bin/a", 0, 0), true)
	threads.Add(procfs.New(3, 3, 1, "b", "/bin/b", 0, 0), true)
	threads.CreateChildDependencies()

	parent, _ := threads.Get(1, true)
	require.Equal(t, 2, parent.ChildCount)

	clone := kevent.New(4, 0, kevent.Clone, time.Now())
	clone.AppendParam(kevent.Tid, kevent.Uint32, uint32(4))
	clone.AppendParam(kevent.Pid, kevent.Uint32, uint32(4))
	clone.AppendParam(kevent.Ppid, kevent.Uint32, uint32(1))
	clone.AppendParam(kevent.Comm, kevent.AnsiString, "c")
	p.ProcessEvent(clone)

	assert.Equal(t, 3, parent.ChildCount)
}

// TestSocketOrientation checks connect/accept set the expected roles
// (spec §4.4 "Socket orientation").
func TestSocketOrientation(t *testing.T) {
	p, threads := newTestParser()
	threads.Add(procfs.New(100, 100, -1, "a", "/bin/a", 0, 0), false)

	socket := kevent.New(1, 0, kevent.Socket, time.Now())
	socket.AppendParam(kevent.Tid, kevent.Uint32, uint32(100))
	socket.AppendParam(kevent.Fd, kevent.Uint32, uint32(7))
	socket.AppendParam(kevent.FdType, kevent.AnsiString, "ipv4")
	p.ProcessEvent(socket)

	connect := kevent.New(2, 0, kevent.Connect, time.Now())
	connect.AppendParam(kevent.Tid, kevent.Uint32, uint32(100))
	connect.AppendParam(kevent.Fd, kevent.Uint32, uint32(7))
	connect.AppendParam(kevent.SocketRemoteIP, kevent.AnsiString, "93.184.216.34")
	connect.AppendParam(kevent.SocketRemotePort, kevent.Uint32, uint32(443))
	p.ProcessEvent(connect)

	ti, _ := threads.Get(100, true)
	fi, ok := ti.Fds.Get(7)
	require.True(t, ok)
	assert.Equal(t, procfs.RoleClient, fi.Role)
	assert.Equal(t, "93.184.216.34", fi.Remote.IP)
	assert.EqualValues(t, 443, fi.Remote.Port)
}

// TestMissingParamSkipsWithoutMutation exercises the failure policy
// (spec §4.4: "an event whose required parameters are missing is logged
// and skipped without state mutation").
func TestMissingParamSkipsWithoutMutation(t *testing.T) {
	p, threads := newTestParser()
	before := threads.Size()

	bad := kevent.New(1, 0, kevent.Open, time.Now())
	// Deliberately missing tid/fd.
	p.ProcessEvent(bad)

	assert.Equal(t, before, threads.Size())
}
