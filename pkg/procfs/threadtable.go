/*
 * Copyright 2019-2020 by Nedim Sabic Sabic
 * https://www.fibratus.io
 * All Rights Reserved.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package procfs

import (
	"sync"
	"time"

	"github.com/gammazero/deque"

	"github.com/evgeni/sysdig/pkg/ilog"
)

// OSQuerier is how the thread table "consults the OS" for a tid it hasn't
// seen yet (spec §4.2 get_or_query). Implemented by the source adapter,
// which is the only layer allowed to talk to the kernel/procfs.
type OSQuerier interface {
	QueryThread(tid int64, scanSockets bool) (*ThreadInfo, error)
}

// fdRemoval is one pending deferred fd removal (spec §4.3).
type fdRemoval struct {
	tid int64
	fd  int64
}

// Table is the mapping from thread id to thread record (spec §4.2).
// It is bounded by maxSize. Mutation (Add/Remove/GetOrQuery/RemoveInactive)
// is driven entirely in-loop by the Inspector, never from a background
// goroutine - the mutex exists only so telemetry's read-only Each scan can
// run concurrently with that loop without racing.
type Table struct {
	mu sync.RWMutex

	threads map[int64]*ThreadInfo
	maxSize int

	querier OSQuerier

	nProcLookups          int
	maxNProcLookups       int
	maxNProcSocketLookups int

	pendingTidRemoval int64 // -1 means none pending

	fdsToRemove deque.Deque

	inactiveScanEvery time.Duration
	threadTimeout     time.Duration
	lastScanAt        time.Time

	reservedPrivateSize int
}

// Config bundles the thread table's tunables (spec §2/§9 process-wide
// configuration: max_thread_table_size, thread_timeout,
// inactive_thread_scan_time, max_n_proc_lookups,
// max_n_proc_socket_lookups).
type Config struct {
	MaxThreadTableSize    int
	ThreadTimeout         time.Duration
	InactiveScanEvery     time.Duration
	MaxNProcLookups       int
	MaxNProcSocketLookups int

	// ReservedPrivateSize is the sum of every pre-open per-thread
	// reservation (spec §9 "Extensible per-thread state"); every
	// ThreadInfo inserted after this is built gets a Private block of at
	// least this size.
	ReservedPrivateSize int
}

// NewTable builds an empty thread table.
func NewTable(cfg Config, querier OSQuerier) *Table {
	return &Table{
		threads:               make(map[int64]*ThreadInfo),
		maxSize:               cfg.MaxThreadTableSize,
		querier:               querier,
		maxNProcLookups:       cfg.MaxNProcLookups,
		maxNProcSocketLookups: cfg.MaxNProcSocketLookups,
		pendingTidRemoval:     -1,
		inactiveScanEvery:     cfg.InactiveScanEvery,
		threadTimeout:         cfg.ThreadTimeout,
		reservedPrivateSize:   cfg.ReservedPrivateSize,
	}
}

// Size returns the number of threads currently tracked. Never exceeds
// maxSize (spec §8 invariant).
func (t *Table) Size() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.threads)
}

// Add inserts ti. It never links ti to its parent itself: snapshot entries
// (fromSnapshot true) are linked by the CreateChildDependencies second
// pass, and entries created from clone events are linked by the parser
// (spec §4.2 "add").
func (t *Table) Add(ti *ThreadInfo, fromSnapshot bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.reservedPrivateSize > 0 {
		ti.ReserveIfNeeded(t.reservedPrivateSize)
	}
	t.threads[ti.Tid] = ti
	if fromSnapshot {
		return
	}
}

// Get returns the thread record for tid, if present (spec §4.2 "get").
// Get has no side effects, so lookupOnly makes no difference: neither form
// marks the entry as touched.
func (t *Table) Get(tid int64, lookupOnly bool) (*ThreadInfo, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	ti, ok := t.threads[tid]
	return ti, ok
}

// GetOrQuery returns the thread record for tid, consulting the OS via the
// injected OSQuerier when absent, subject to the lookup caps (spec §4.2).
// On OS-query failure, or once the caps are exhausted, a sentinel entry is
// inserted instead so repeated lookups are suppressed.
func (t *Table) GetOrQuery(tid int64) *ThreadInfo {
	if ti, ok := t.Get(tid, false); ok {
		return ti
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if ti, ok := t.threads[tid]; ok {
		return ti
	}

	if len(t.threads) >= t.maxSize {
		return nil
	}

	var ti *ThreadInfo
	if t.querier != nil {
		t.nProcLookups++

		if t.maxNProcSocketLookups != 0 && t.nProcLookups == t.maxNProcSocketLookups {
			ilog.Infof("reached max socket lookup number")
		}
		if t.maxNProcLookups != 0 && t.nProcLookups == t.maxNProcLookups {
			ilog.Infof("reached max process lookup number")
		}

		if t.maxNProcLookups == 0 || t.nProcLookups <= t.maxNProcLookups {
			scanSockets := t.maxNProcSocketLookups == 0 || t.nProcLookups <= t.maxNProcSocketLookups
			queried, err := t.querier.QueryThread(tid, scanSockets)
			if err == nil && queried != nil {
				ti = queried
			}
		}
	}

	if ti == nil {
		ti = NewSentinel(tid)
	}

	// Since this thread was created out of thin air, scan the table to
	// properly set its reference count (spec §4.2, mirroring sinsp::get_thread).
	for _, other := range t.threads {
		if other.Ptid == tid {
			ti.ChildCount++
		}
	}

	if t.reservedPrivateSize > 0 {
		ti.ReserveIfNeeded(t.reservedPrivateSize)
	}
	t.threads[tid] = ti
	return ti
}

// Remove deletes tid's entry. If !force and the thread still has children,
// its child count is decremented rather than the entry erased (spec §4.2
// "remove").
func (t *Table) Remove(tid int64, force bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	ti, ok := t.threads[tid]
	if !ok {
		return
	}
	if !force && ti.ChildCount > 0 {
		ti.ChildCount--
		return
	}
	delete(t.threads, tid)
}

// RemoveInactive evicts any non-sentinel entry whose LastEventTs is older
// than threadTimeout relative to now, at most once per inactiveScanEvery
// (spec §4.2 "remove_inactive"). Sentinels never expire here: they stand
// in for a tid whose OS lookup failed, not a live thread whose staleness
// should be tracked, so they are skipped even if something stamped a
// LastEventTs on one in the meantime.
func (t *Table) RemoveInactive(now time.Time) {
	if t.inactiveScanEvery > 0 && !t.lastScanAt.IsZero() && now.Sub(t.lastScanAt) < t.inactiveScanEvery {
		return
	}
	t.lastScanAt = now

	t.mu.Lock()
	defer t.mu.Unlock()
	for tid, ti := range t.threads {
		if ti.IsSentinel() || ti.LastEventTs.IsZero() {
			continue
		}
		if now.Sub(ti.LastEventTs) > t.threadTimeout {
			delete(t.threads, tid)
		}
	}
}

// CreateChildDependencies is the second pass after snapshot import: for
// each entry, look up its parent by ptid and increment the parent's child
// count (spec §4.2).
func (t *Table) CreateChildDependencies() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, ti := range t.threads {
		if ti.Ptid == -1 {
			continue
		}
		for _, parent := range t.threads {
			if parent.Pid == ti.Ptid {
				parent.ChildCount++
				break
			}
		}
	}
}

// EnqueueFdRemoval records a deferred fd removal, to be drained at the top
// of the next event (spec §4.3).
func (t *Table) EnqueueFdRemoval(tid, fd int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.fdsToRemove.PushBack(fdRemoval{tid: tid, fd: fd})
}

// DrainFdRemovals applies every queued fd removal. If the owning thread is
// absent, the removal is silently dropped (spec §4.3).
func (t *Table) DrainFdRemovals() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for t.fdsToRemove.Len() > 0 {
		r := t.fdsToRemove.PopFront().(fdRemoval)
		if ti, ok := t.threads[r.tid]; ok {
			ti.Fds.Remove(r.fd)
		}
	}
}

// SetPendingTidRemoval records the tid an exit event enqueued. Only one tid
// can be pending at a time, matching the original single-value semantics
// (spec §4.4 "tid_to_remove").
func (t *Table) SetPendingTidRemoval(tid int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pendingTidRemoval = tid
}

// DrainTidRemoval removes the pending tid, if any, and clears the pending
// slot. Returns the removed tid, or -1 if none was pending.
func (t *Table) DrainTidRemoval() int64 {
	t.mu.Lock()
	tid := t.pendingTidRemoval
	t.pendingTidRemoval = -1
	t.mu.Unlock()
	if tid == -1 {
		return -1
	}
	t.Remove(tid, false)
	return tid
}

// Each iterates all thread records. Iteration order is unspecified.
func (t *Table) Each(fn func(*ThreadInfo)) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, ti := range t.threads {
		fn(ti)
	}
}
