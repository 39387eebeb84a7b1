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

// Package inspector implements the core orchestration loop (spec §4.6):
// the single-threaded pulling loop that ties the Event Source Adapter,
// Thread Table, Event Parser, Protocol Decoders and Cycle Writer
// together, plus the lifecycle/configuration/snapshot-import surface
// consumers drive it through (spec §6).
package inspector

import (
	"errors"
	"time"

	"github.com/evgeni/sysdig/pkg/config"
	"github.com/evgeni/sysdig/pkg/cyclewriter"
	"github.com/evgeni/sysdig/pkg/decoder"
	"github.com/evgeni/sysdig/pkg/ierrors"
	"github.com/evgeni/sysdig/pkg/ifaces"
	"github.com/evgeni/sysdig/pkg/ilog"
	"github.com/evgeni/sysdig/pkg/kevent"
	"github.com/evgeni/sysdig/pkg/parser"
	"github.com/evgeni/sysdig/pkg/procfs"
	"github.com/evgeni/sysdig/pkg/source"
	"github.com/evgeni/sysdig/pkg/telemetry"
	"github.com/evgeni/sysdig/pkg/userdb"
)

// Status tags the outcome of a Next call (spec §6 "next() -> {Event,
// TimeoutMarker, EofMarker, Error}").
type Status int

const (
	StatusEvent Status = iota
	StatusTimeout
	StatusEof
)

// FlushMode mirrors the Analyzer collaborator's flush contract (spec §6).
type FlushMode int

const (
	FlushNone FlushMode = iota
	FlushForce
	FlushForceNoEmit
	FlushForceNoFlush
)

// Filter is the compiled-expression collaborator (spec §6): Eval decides
// whether an event reaches the consumer at all; DumpFlags derives the
// capture-filter's drop hint used by the write path (step 7).
type Filter interface {
	Eval(e *kevent.Kevent) bool
	DumpFlags(e *kevent.Kevent) (flags uint32, drop bool)
}

// Formatter renders an event to a display string (spec §6).
type Formatter interface {
	Render(e *kevent.Kevent) (string, bool)
}

// Analyzer is the optional downstream collaborator notified of capture
// start/end and every processed event (spec §6).
type Analyzer interface {
	OnCaptureStart()
	ProcessEvent(e *kevent.Kevent, mode FlushMode) error
	OnEof()
}

// Inspector is the core orchestration object: exactly one pulling loop,
// owning its Source, Thread Table, Parser, decoder registry and (when
// dumping) its Cycle Writer (spec §5 "Shared-resource policy").
type Inspector struct {
	machine *config.Machine
	cfg     config.Config

	adapter  *source.Adapter
	threads  *procfs.Table
	ifaces   *ifaces.Table
	users    *userdb.DB
	decoders *decoder.Registry
	parser   *parser.Parser

	filter    Filter
	formatter Formatter
	analyzer  Analyzer

	dump *dumper

	reservedSize int

	seq          uint64
	firstEventTs time.Time
	cancelled    bool
}

// New builds an Inspector in the StateConfiguring stage. Callers then set
// any pre-open configuration (SetFilter, ReserveThreadMemory) before
// calling OpenFile/OpenLive.
func New(cfg config.Config) *Inspector {
	return &Inspector{
		machine:  config.NewMachine(),
		cfg:      cfg,
		decoders: decoder.NewRegistry(),
	}
}

// Config returns the Inspector's configuration, for collaborators (e.g.
// cmd/inspect) that need to read it back after construction.
func (i *Inspector) Config() config.Config { return i.cfg }

// SetFilter installs f as the active filter/capture-filter collaborator
// and enforces the single-shot contract via the configuration state
// machine (spec §6 "set_filter(expr) (once)").
func (i *Inspector) SetFilter(f Filter) error {
	if err := i.machine.SetFilter(); err != nil {
		return err
	}
	i.filter = f
	return nil
}

// SetFormatter installs the render collaborator. Unlike the filter, this
// is not single-shot; it may be replaced any time before or after open.
func (i *Inspector) SetFormatter(f Formatter) { i.formatter = f }

// SetAnalyzer installs the optional analyzer collaborator.
func (i *Inspector) SetAnalyzer(a Analyzer) { i.analyzer = a }

// ReserveThreadMemory enforces spec §6's "pre-open only" rule for the
// extensible per-thread state block (spec §9). size bytes are reserved on
// every ThreadInfo created from this point on.
func (i *Inspector) ReserveThreadMemory(size int) error {
	if err := i.machine.ReserveThreadMemory(); err != nil {
		return err
	}
	i.reservedSize += size
	return nil
}

// OpenFile opens path as the event source (spec §6 "open_file(path)").
func (i *Inspector) OpenFile(path string) error {
	adapter, err := source.OpenFile(path)
	if err != nil {
		return err
	}
	return i.open(adapter)
}

// OpenLive opens backend as the event source (spec §6
// "open_live(timeout_ms)"; the timeout itself is owned by the Backend
// implementation, which is the embedder-supplied seam - see pkg/source).
func (i *Inspector) OpenLive(backend source.Backend) error {
	adapter, err := source.OpenLive(backend)
	if err != nil {
		return err
	}
	return i.open(adapter)
}

func (i *Inspector) open(adapter *source.Adapter) error {
	if err := i.machine.Open(); err != nil {
		adapter.Close()
		return err
	}
	i.adapter = adapter
	i.ifaces = adapter.InterfaceList()
	i.users = adapter.UserList()
	i.threads = procfs.NewTable(procfs.Config{
		MaxThreadTableSize:    i.cfg.MaxThreadTableSize,
		ThreadTimeout:         i.cfg.ThreadTimeout,
		InactiveScanEvery:     i.cfg.InactiveScanEvery,
		MaxNProcLookups:       i.cfg.MaxNProcLookups,
		MaxNProcSocketLookups: i.cfg.MaxNProcSocketLookups,
		ReservedPrivateSize:   i.reservedSize,
	}, adapter)
	i.parser = parser.New(i.threads, i.ifaces, i.decoders)

	if i.cfg.Snaplen > 0 {
		if err := i.adapter.SetSnaplen(i.cfg.Snaplen); err != nil {
			return err
		}
	}

	i.importSnapshot()

	if i.analyzer != nil {
		i.analyzer.OnCaptureStart()
	}
	return nil
}

// importSnapshot seeds the thread table from the driver's process
// snapshot and runs the two fix-up passes (spec §4.2/§4.8
// "ImportThreadTable / ImportIfaddrList / ImportUserList" +
// "create_child_dependencies / fix_sockets_coming_from_proc"). The
// interface and user tables are already populated directly by the driver
// (source.Adapter.InterfaceList/UserList), so only the process list needs
// inserting here.
func (i *Inspector) importSnapshot() {
	for _, ti := range i.adapter.ProcTable() {
		i.threads.Add(ti, true)
	}
	i.threads.CreateChildDependencies()
	i.threads.FixSocketsComingFromProc(i.ifaces)
}

// StartCapture/StopCapture drive the capture control-plane operations
// (spec §6), gated by the configuration state machine.
func (i *Inspector) StartCapture() error {
	if err := i.machine.StartCapture(); err != nil {
		return err
	}
	return i.adapter.StartCapture()
}

func (i *Inspector) StopCapture() error {
	if err := i.machine.StopCapture(); err != nil {
		return err
	}
	return i.adapter.StopCapture()
}

func (i *Inspector) StartDropping(ratio float64) error { return i.adapter.StartDropping(ratio) }
func (i *Inspector) StopDropping() error               { return i.adapter.StopDropping() }

// SetSnaplen forwards to the source adapter (spec §6 "set_snaplen(n)").
func (i *Inspector) SetSnaplen(n int) error { return i.adapter.SetSnaplen(n) }

// Cancel sets the externally-driven cancellation flag (spec §5
// "Cancellation"); checked at the top of the next Next call. The current
// event in flight is always finished first.
func (i *Inspector) Cancel() { i.cancelled = true }

// AutodumpStart opens path for a single, non-rotating trace dump (spec §6
// "autodump_start(path, compress)"). A previously active dump is closed
// first so switching dump targets never leaks a file handle.
func (i *Inspector) AutodumpStart(path string, compress bool) error {
	if i.dump != nil {
		if err := i.dump.close(); err != nil {
			return err
		}
		i.dump = nil
	}
	d, err := newAutodump(path, compress)
	if err != nil {
		return err
	}
	i.dump = d
	return nil
}

// AutodumpStop closes the active dump, if any (spec §6 "autodump_stop()").
func (i *Inspector) AutodumpStop() error {
	if i.dump == nil {
		return nil
	}
	err := i.dump.close()
	i.dump = nil
	return err
}

// SetupCycleWriter installs a rotating dump (spec §6 "setup_cycle_writer").
// A previously active dump is closed first so switching dump targets never
// leaks a file handle.
func (i *Inspector) SetupCycleWriter(cfg cyclewriter.Config) error {
	if i.dump != nil {
		if err := i.dump.close(); err != nil {
			return err
		}
		i.dump = nil
	}
	d, err := newCycleDump(cfg)
	if err != nil {
		return err
	}
	i.dump = d
	return nil
}

// Close releases every resource this Inspector owns, on every exit path
// (spec §5 "Resource lifetimes"), and advances the configuration state
// machine to Closed.
func (i *Inspector) Close() error {
	var errs []error
	if i.dump != nil {
		if err := i.dump.close(); err != nil {
			errs = append(errs, err)
		}
		i.dump = nil
	}
	if i.adapter != nil {
		if err := i.adapter.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := i.machine.Close(); err != nil {
		errs = append(errs, err)
	}
	return ierrors.Wrap(errs...)
}

// Next runs exactly one iteration of the inspector loop (spec §4.6's
// ten-step sequence).
func (i *Inspector) Next() (*kevent.Kevent, Status, error) {
	if i.cancelled {
		return nil, StatusEof, nil
	}

	// Step 1: reset any decoders registered in the prior iteration.
	i.decoders.DrainReset()

	// Step 2: pull the next event.
	e, _, err := i.adapter.Next()
	switch {
	case errors.Is(err, ierrors.ErrTimeout):
		return nil, StatusTimeout, nil
	case errors.Is(err, ierrors.ErrEOF):
		if i.analyzer != nil {
			i.analyzer.OnEof()
		}
		return nil, StatusEof, nil
	case err != nil:
		return nil, StatusEvent, err
	}
	// Step 3: stamp event number and timestamp.
	i.seq++
	e.Seq = i.seq
	if i.firstEventTs.IsZero() {
		i.firstEventTs = e.Timestamp
	}

	// Step 4: drain deferred removals.
	i.threads.DrainTidRemoval()
	i.threads.DrainFdRemovals()

	// Step 5: periodic inactive-thread sweep.
	i.threads.RemoveInactive(e.Timestamp)

	// Step 6: parse.
	i.parser.ProcessEvent(e)

	// Step 7: dump, if active.
	if i.dump != nil {
		if err := i.considerAndWrite(e); err != nil {
			if _, ok := err.(*quitError); ok {
				if i.analyzer != nil {
					i.analyzer.OnEof()
				}
				return nil, StatusEof, nil
			}
			return nil, StatusEvent, err
		}
	}

	// Step 8: honor the filter's accept/reject verdict.
	if i.filter != nil && !i.filter.Eval(e) {
		e.Filtered = true
		if i.analyzer != nil {
			_ = i.analyzer.ProcessEvent(e, FlushNone)
		}
		return e, StatusTimeout, nil
	}

	// Step 9: update last_event_ts unless this is a scheduling switch.
	if !e.IsSchedSwitch() {
		if tid, terr := e.Kparams.GetTid(); terr == nil {
			if ti, ok := i.threads.Get(int64(tid), true); ok {
				ti.PrevEventTs = ti.LastEventTs
				ti.LastEventTs = e.Timestamp
			}
		}
	}

	if i.analyzer != nil {
		if err := i.analyzer.ProcessEvent(e, FlushNone); err != nil {
			ilog.Warnf("analyzer processing error on event %d: %v", e.Seq, err)
		}
	}

	// Step 10: return the enriched event.
	return e, StatusEvent, nil
}

// quitError signals the dump path hit a non-cycling DOQUIT (spec §7 kind
// 8: "Cycle Writer DOQUIT: normal end-of-capture, surfaced as Eof").
type quitError struct{}

func (q *quitError) Error() string { return "cycle writer reached its limit" }

func (i *Inspector) considerAndWrite(e *kevent.Kevent) error {
	if i.filter != nil {
		if _, drop := i.filter.DumpFlags(e); drop {
			return nil
		}
	}

	buf := e.Buffer()
	n := int64(0)
	if buf != nil {
		n = int64(buf.Len())
	}

	switch i.dump.consider(n) {
	case cyclewriter.DoQuit:
		return &quitError{}
	case cyclewriter.NewFile:
		if err := i.dump.rotate(); err != nil {
			return err
		}
	}

	return i.dump.write(e)
}

// CaptureStats implements telemetry.StatsProvider (spec §6
// "capture_stats").
func (i *Inspector) CaptureStats() telemetry.Stats {
	fdCount := 0
	if i.threads != nil {
		i.threads.Each(func(ti *procfs.ThreadInfo) { fdCount += ti.Fds.Size() })
	}
	threadCount := 0
	if i.threads != nil {
		threadCount = i.threads.Size()
	}
	var stats telemetry.Stats
	if i.adapter != nil {
		as := i.adapter.Stats()
		stats.SeenEvents = as.SeenEvents
		stats.Drops = as.Drops
		stats.Preemptions = as.Preemptions
	}
	stats.ThreadCount = threadCount
	stats.FdCount = fdCount
	return stats
}

// MachineInfo, InterfaceList, UserList and ReadProgress are the remaining
// snapshot accessors of spec §6.
func (i *Inspector) MachineInfo() source.MachineInfo { return i.adapter.MachineInfo() }
func (i *Inspector) InterfaceList() *ifaces.Table     { return i.ifaces }
func (i *Inspector) UserList() *userdb.DB             { return i.users }
func (i *Inspector) ReadProgress() int                { return i.adapter.ReadOffset() }

// FirstEventTimestamp returns the timestamp stamped on the first event
// pulled from this Inspector's source, or the zero time before any event
// has been processed (spec §4.6 step 3).
func (i *Inspector) FirstEventTimestamp() time.Time { return i.firstEventTs }
