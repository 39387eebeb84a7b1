package procfs

// FdTable maps fd number to FdInfo within a single thread. Fd numbers are
// unique per thread (spec §3 FdInfo invariant); the table is exclusively
// owned by its ThreadInfo.
type FdTable struct {
	fds map[int64]*FdInfo
}

// NewFdTable builds an empty fd table.
func NewFdTable() *FdTable {
	return &FdTable{fds: make(map[int64]*FdInfo)}
}

// Add inserts or replaces the fd record.
func (t *FdTable) Add(fd *FdInfo) { t.fds[fd.Fd] = fd }

// Get returns the fd record, if present.
func (t *FdTable) Get(fd int64) (*FdInfo, bool) {
	f, ok := t.fds[fd]
	return f, ok
}

// Remove deletes the fd record. It is a no-op if absent, matching spec
// §4.3 ("if the owning thread is absent when draining, the removal is
// dropped" - the symmetric case of the fd itself being absent is handled
// the same way: removing what isn't there is harmless).
func (t *FdTable) Remove(fd int64) { delete(t.fds, fd) }

// Size returns the number of open fds.
func (t *FdTable) Size() int { return len(t.fds) }

// Each iterates all fd records. Iteration order is unspecified.
func (t *FdTable) Each(fn func(*FdInfo)) {
	for _, f := range t.fds {
		fn(f)
	}
}
