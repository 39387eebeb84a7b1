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

package inspector

import (
	"os"

	"github.com/evgeni/sysdig/pkg/cyclewriter"
	"github.com/evgeni/sysdig/pkg/ierrors"
	"github.com/evgeni/sysdig/pkg/kevent"
	"github.com/evgeni/sysdig/pkg/source/trace"
)

// dumper is the Inspector's write side (spec §6 "Dump control"): either a
// single autodump file or a cycle-writer-backed rotating sequence. Both
// paths funnel through the same trace.Writer frame codec.
type dumper struct {
	cw       *cyclewriter.Writer // non-nil only for the cycle-writer path
	tw       *trace.Writer
	compress bool
}

// newAutodump opens path for a single, non-rotating trace (spec §6
// "autodump_start(path, compress)").
func newAutodump(path string, compress bool) (*dumper, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, ierrors.New(ierrors.KindOpen, err)
	}
	tw, err := trace.NewWriter(f, compress)
	if err != nil {
		f.Close()
		return nil, ierrors.New(ierrors.KindOpen, err)
	}
	return &dumper{tw: tw, compress: compress}, nil
}

// newCycleDump builds a rotating dumper (spec §6 "setup_cycle_writer").
func newCycleDump(cfg cyclewriter.Config) (*dumper, error) {
	cw := cyclewriter.New(cfg)
	tw, err := trace.NewWriter(cw, cfg.Compress)
	if err != nil {
		cw.Close()
		return nil, ierrors.New(ierrors.KindOpen, err)
	}
	return &dumper{cw: cw, tw: tw, compress: cfg.Compress}, nil
}

// consider delegates to the cycle writer's decision rule; a plain
// autodump never rotates or quits (spec §4.5 only governs the
// cycle-writer path).
func (d *dumper) consider(bytesToWrite int64) cyclewriter.Decision {
	if d.cw == nil {
		return cyclewriter.SameFile
	}
	return d.cw.Consider(bytesToWrite)
}

// rotate closes out the current file's frames and opens the next one in
// the cycle (spec §4.5 NEWFILE).
func (d *dumper) rotate() error {
	if err := d.tw.Flush(); err != nil {
		return ierrors.New(ierrors.KindWrite, err)
	}
	if err := d.cw.Rotate(); err != nil {
		return ierrors.New(ierrors.KindWrite, err)
	}
	tw, err := trace.NewWriter(d.cw, d.compress)
	if err != nil {
		return ierrors.New(ierrors.KindWrite, err)
	}
	d.tw = tw
	return nil
}

// write appends e to the current file.
func (d *dumper) write(e *kevent.Kevent) error {
	if err := d.tw.WriteFrame(trace.FromKevent(e)); err != nil {
		return ierrors.New(ierrors.KindWrite, err)
	}
	return nil
}

// close flushes and releases the underlying file (or cycle-writer) handle.
func (d *dumper) close() error {
	return d.tw.Close()
}
