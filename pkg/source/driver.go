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

// Package source implements the Event Source Adapter (spec §4.1): a
// uniform pull interface over either a live kernel event source or a
// trace file, plus the snapshot accessors and lifecycle/control-plane
// operations consumed by the Inspector.
//
// The raw "scap" layer itself - ring buffer access, the kernel driver
// ioctl surface - is out of scope (spec §1) and is modeled here purely
// as the Driver seam. This package ships one fully real Driver, the
// trace-file driver; a live capture requires an embedder-supplied
// Backend plugged into LiveDriver.
package source

import (
	"time"

	"github.com/evgeni/sysdig/pkg/ifaces"
	"github.com/evgeni/sysdig/pkg/kevent"
	"github.com/evgeni/sysdig/pkg/procfs"
	"github.com/evgeni/sysdig/pkg/userdb"
)

// MachineInfo is the host metadata exposed by the snapshot accessor of
// the same name (spec §6 "machine_info").
type MachineInfo struct {
	Hostname   string
	NumCPUs    int
	MemTotalKB uint64
	BootTime   time.Time
}

// Stats mirrors the in-scope capture_stats accessor (spec §7 propagation
// policy: "counted in internal statistics where the build includes
// them"; original_source/userspace/libsinsp/sinsp.cpp's
// GATHER_INTERNAL_STATS: n_seen_evts, n_drops, n_preemptions).
type Stats struct {
	SeenEvents  uint64
	Drops       uint64
	Preemptions uint64
}

// Driver is the Event Source Adapter's collaborator interface over the
// raw event source (spec §1 "the scap layer - presented here only
// through its interface").
type Driver interface {
	// Open attaches to the underlying source (kernel backend or trace
	// file).
	Open() error
	// Close releases the underlying source.
	Close() error
	// Next performs one non-blocking pull (spec §4.1 "next"). It returns
	// ierrors.ErrTimeout when no event is currently available and
	// ierrors.ErrEOF once the stream is exhausted (trace file only).
	Next() (evt *kevent.Kevent, cpu int32, err error)

	SetSnaplen(n int) error
	StartCapture() error
	StopCapture() error
	StartDropping(ratio float64) error
	StopDropping() error

	// QueryThread services the Thread Table's on-demand OS lookup (spec
	// §4.2 get_or_query); Driver satisfies procfs.OSQuerier directly so
	// the Adapter can hand it to procfs.NewTable without an adapter shim.
	QueryThread(tid int64, scanSockets bool) (*procfs.ThreadInfo, error)

	ProcSnapshot() []*procfs.ThreadInfo
	InterfaceSnapshot() *ifaces.Table
	UserSnapshot() *userdb.DB
	MachineInfo() MachineInfo
	Stats() Stats
	// ReadOffset reports bytes consumed so far; Size reports the total
	// size if known (trace files) or 0 (live).
	ReadOffset() int64
	Size() int64
}
