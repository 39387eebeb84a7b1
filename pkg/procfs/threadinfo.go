package procfs

import (
	"time"

	"golang.org/x/text/unicode/norm"
)

// sentinelID is the uid and gid that mark a sentinel thread per spec §4.2 ("uid=0xFFFFFFFF,
// gid=0xFFFFFFFF").
const sentinelID = 0xFFFFFFFF

// ThreadInfo is the central entity: identity, attributes, and the fd table
// it owns (spec §3 "ThreadInfo").
type ThreadInfo struct {
	Tid  int64
	Pid  int64
	Ptid int64

	Comm string
	Exe  string
	UID  uint32
	GID  uint32

	ChildCount int

	LastEventTs time.Time
	PrevEventTs time.Time

	// Private is the opaque per-extension reserved block (spec §9
	// "Extensible per-thread state"): a single flat slice sized to the sum
	// of pre-open registrations, sliced per registration by offset.
	Private []byte

	Fds *FdTable

	sentinel bool
}

// New builds a regular (non-sentinel) ThreadInfo.
func New(tid, pid, ptid int64, comm, exe string, uid, gid uint32) *ThreadInfo {
	return &ThreadInfo{
		Tid:  tid,
		Pid:  pid,
		Ptid: ptid,
		Comm: normalizeComm(comm),
		Exe:  normalizeComm(exe),
		UID:  uid,
		GID:  gid,
		Fds:  NewFdTable(),
	}
}

// NewSentinel builds the placeholder ThreadInfo inserted when the OS
// cannot supply information for a referenced tid (spec §4.2 get_or_query).
// It suppresses repeated lookups for that tid until evicted by inactivity.
func NewSentinel(tid int64) *ThreadInfo {
	ti := New(tid, tid, -1, "<NA>", "<NA>", sentinelID, sentinelID)
	ti.sentinel = true
	return ti
}

// IsSentinel reports whether this entry is a lookup-failure placeholder.
func (t *ThreadInfo) IsSentinel() bool { return t.sentinel }

// normalizeComm runs OS-supplied strings through NFC normalization before
// they enter the data model: /proc/<pid>/comm and /proc/<pid>/exe can carry
// non-normalized UTF8 for exotic binaries, and storing denormalized bytes
// would silently break string-equality filters downstream.
func normalizeComm(s string) string {
	if s == "" || norm.NFC.IsNormalString(s) {
		return s
	}
	return norm.NFC.String(s)
}

// ReserveIfNeeded grows the private block to at least size bytes, preserving
// any bytes already written. Must only be called before the thread is
// inserted into a table being actively captured from.
func (t *ThreadInfo) ReserveIfNeeded(size int) {
	if len(t.Private) < size {
		grown := make([]byte, size)
		copy(grown, t.Private)
		t.Private = grown
	}
}
