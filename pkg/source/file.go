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

package source

import (
	"io"
	"os"
	"strings"

	"github.com/evgeni/sysdig/pkg/ierrors"
	"github.com/evgeni/sysdig/pkg/ifaces"
	"github.com/evgeni/sysdig/pkg/kevent"
	"github.com/evgeni/sysdig/pkg/procfs"
	"github.com/evgeni/sysdig/pkg/source/trace"
	"github.com/evgeni/sysdig/pkg/userdb"
)

// FileDriver is the one fully real Driver this repo ships: it reads (and
// can write) this project's own trace file format (spec §6 "trace files
// are an opaque stream... GZIP or none"). It is the Go analogue of
// sysdig's scap_open_offline/scap_dump_*.
type FileDriver struct {
	path     string
	compress bool

	f      *os.File
	reader *trace.Reader
	writer *trace.Writer

	size    int64
	readPos int64

	snaplen int
	stats   Stats

	procSnapshot []*procfs.ThreadInfo
	ifSnapshot   *ifaces.Table
	userSnapshot *userdb.DB
	machine      MachineInfo
}

// NewFileDriver builds a driver reading from path. The compress field is
// set only by OpenForWrite.
func NewFileDriver(path string) *FileDriver {
	return &FileDriver{path: path, ifSnapshot: ifaces.New(), userSnapshot: userdb.New()}
}

// Open opens path for reading (spec §4.1 "open_file").
func (d *FileDriver) Open() error {
	f, err := os.Open(d.path)
	if err != nil {
		return ierrors.New(ierrors.KindOpen, err)
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return ierrors.New(ierrors.KindOpen, err)
	}
	d.size = fi.Size()
	r, err := trace.NewReader(f)
	if err != nil {
		f.Close()
		return ierrors.New(ierrors.KindOpen, err)
	}
	d.f = f
	d.reader = r
	return nil
}

// OpenForWrite opens path for writing a fresh trace that WriteEvent then
// appends to. The Inspector's autodump and cycle-writer dumps do not use
// it; they write through trace.NewWriter directly.
func (d *FileDriver) OpenForWrite(compress bool) error {
	f, err := os.Create(d.path)
	if err != nil {
		return ierrors.New(ierrors.KindOpen, err)
	}
	w, err := trace.NewWriter(f, compress)
	if err != nil {
		f.Close()
		return ierrors.New(ierrors.KindOpen, err)
	}
	d.f = f
	d.writer = w
	d.compress = compress
	return nil
}

// WriteEvent appends e to a driver opened with OpenForWrite.
func (d *FileDriver) WriteEvent(e *kevent.Kevent) error {
	if d.writer == nil {
		return ierrors.Newf(ierrors.KindWrite, "file driver not opened for writing")
	}
	if err := d.writer.WriteFrame(trace.FromKevent(e)); err != nil {
		return ierrors.New(ierrors.KindWrite, err)
	}
	return nil
}

// Close closes whichever of reader/writer is active.
func (d *FileDriver) Close() error {
	if d.reader != nil {
		return d.reader.Close()
	}
	if d.writer != nil {
		return d.writer.Close()
	}
	return nil
}

// Next pulls the next frame from the trace file (spec §4.1 "next").
func (d *FileDriver) Next() (*kevent.Kevent, int32, error) {
	if d.reader == nil {
		return nil, 0, ierrors.Newf(ierrors.KindEvent, "file driver not opened for reading")
	}
	f, err := d.reader.ReadFrame()
	if err != nil {
		if isEOF(err) {
			return nil, 0, ierrors.ErrEOF
		}
		return nil, 0, ierrors.New(ierrors.KindEvent, err)
	}
	d.stats.SeenEvents++
	e := f.ToKevent()
	if d.snaplen > 0 {
		if buf := e.Buffer(); buf != nil && buf.Len() > d.snaplen {
			buf.Set(buf.B[:d.snaplen])
		}
	}
	return e, 0, nil
}

func isEOF(err error) bool {
	return err != nil && strings.Contains(err.Error(), "EOF")
}

// SetSnaplen is ignored-on-error for file sources (spec §4.1/§7 kind 7:
// "Snaplen change on file: silently ignored").
func (d *FileDriver) SetSnaplen(n int) error {
	d.snaplen = n
	return nil
}

// StartCapture/StopCapture are no-ops for a trace file (spec §4.1).
func (d *FileDriver) StartCapture() error { return nil }
func (d *FileDriver) StopCapture() error  { return nil }

// StartDropping/StopDropping are no-ops on trace files (spec §4.1
// "dropping-mode ops are no-ops on trace files").
func (d *FileDriver) StartDropping(ratio float64) error { return nil }
func (d *FileDriver) StopDropping() error               { return nil }

// QueryThread never succeeds for a trace file: there is no live OS to
// consult, so the thread table always falls back to a sentinel for an
// unknown tid (spec §4.2 get_or_query).
func (d *FileDriver) QueryThread(tid int64, scanSockets bool) (*procfs.ThreadInfo, error) {
	return nil, ierrors.Newf(ierrors.KindLookup, "no OS to query from a trace file (tid=%d)", tid)
}

// ImportSnapshot lets a caller seed the process/interface/user snapshot
// the driver reports, for tests and tooling that construct one directly
// rather than recording a live capture first. The Inspector does not call
// it, and Open does not read a snapshot from the file, so without it the
// snapshot accessors report empty tables.
func (d *FileDriver) ImportSnapshot(procs []*procfs.ThreadInfo, ift *ifaces.Table, users *userdb.DB, mi MachineInfo) {
	d.procSnapshot = procs
	d.ifSnapshot = ift
	d.userSnapshot = users
	d.machine = mi
}

func (d *FileDriver) ProcSnapshot() []*procfs.ThreadInfo { return d.procSnapshot }
func (d *FileDriver) InterfaceSnapshot() *ifaces.Table   { return d.ifSnapshot }
func (d *FileDriver) UserSnapshot() *userdb.DB           { return d.userSnapshot }
func (d *FileDriver) MachineInfo() MachineInfo           { return d.machine }
func (d *FileDriver) Stats() Stats                       { return d.stats }

// ReadOffset/Size back spec §4.1's read_progress (spec §6: "read_progress
// () -> 0..100%").
func (d *FileDriver) ReadOffset() int64 {
	if d.f == nil {
		return 0
	}
	pos, err := d.f.Seek(0, io.SeekCurrent)
	if err != nil {
		return d.readPos
	}
	return pos
}
func (d *FileDriver) Size() int64 { return d.size }
