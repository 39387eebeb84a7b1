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
	"github.com/evgeni/sysdig/pkg/ierrors"
	"github.com/evgeni/sysdig/pkg/ifaces"
	"github.com/evgeni/sysdig/pkg/kevent"
	"github.com/evgeni/sysdig/pkg/procfs"
	"github.com/evgeni/sysdig/pkg/userdb"
)

// Backend is the real kernel event source (ebpf, ftrace, perf_event, ...)
// that a production embedder supplies. This repo never implements a
// Backend itself - per spec §1 the raw "scap" layer is an out-of-scope
// collaborator - but LiveDriver shows the exact seam a concrete
// implementation plugs into.
type Backend interface {
	Open() error
	Close() error
	Next() (*kevent.Kevent, int32, error)
	SetSnaplen(n int) error
	StartCapture() error
	StopCapture() error
	QueryThread(tid int64, scanSockets bool) (*procfs.ThreadInfo, error)
	ProcSnapshot() []*procfs.ThreadInfo
	InterfaceSnapshot() *ifaces.Table
	UserSnapshot() *userdb.DB
	MachineInfo() MachineInfo
	Stats() Stats
}

// LiveDriver adapts an embedder-supplied Backend to the Driver interface.
// Drop-mode sampling is implemented here, in userspace, rather than
// delegated to the backend (spec §4.1 "start_dropping(ratio)"): the
// backend only needs to produce the full event stream. This layer marks
// the events outside the sampled fraction as Dropped and still returns
// them; it does not withhold any event from the core.
type LiveDriver struct {
	backend Backend
	limiter *dropLimiter
}

// NewLiveDriver wraps backend. backend must not be nil - this repo does
// not fabricate a working kernel backend, so callers must supply a real
// one.
func NewLiveDriver(backend Backend) *LiveDriver {
	return &LiveDriver{backend: backend}
}

func (d *LiveDriver) Open() error  { return d.backend.Open() }
func (d *LiveDriver) Close() error { return d.backend.Close() }

func (d *LiveDriver) Next() (*kevent.Kevent, int32, error) {
	e, cpu, err := d.backend.Next()
	if err != nil {
		return nil, cpu, err
	}
	if d.limiter != nil && !d.limiter.allow() {
		e.Dropped = true
	}
	return e, cpu, nil
}

func (d *LiveDriver) SetSnaplen(n int) error { return d.backend.SetSnaplen(n) }
func (d *LiveDriver) StartCapture() error    { return d.backend.StartCapture() }
func (d *LiveDriver) StopCapture() error     { return d.backend.StopCapture() }

func (d *LiveDriver) StartDropping(ratio float64) error {
	lim, err := newDropLimiter(ratio)
	if err != nil {
		return ierrors.New(ierrors.KindSetup, err)
	}
	d.limiter = lim
	return nil
}

func (d *LiveDriver) StopDropping() error {
	d.limiter = nil
	return nil
}

func (d *LiveDriver) QueryThread(tid int64, scanSockets bool) (*procfs.ThreadInfo, error) {
	return d.backend.QueryThread(tid, scanSockets)
}

func (d *LiveDriver) ProcSnapshot() []*procfs.ThreadInfo   { return d.backend.ProcSnapshot() }
func (d *LiveDriver) InterfaceSnapshot() *ifaces.Table     { return d.backend.InterfaceSnapshot() }
func (d *LiveDriver) UserSnapshot() *userdb.DB              { return d.backend.UserSnapshot() }
func (d *LiveDriver) MachineInfo() MachineInfo              { return d.backend.MachineInfo() }
func (d *LiveDriver) Stats() Stats                          { return d.backend.Stats() }
func (d *LiveDriver) ReadOffset() int64                     { return 0 }
func (d *LiveDriver) Size() int64                           { return 0 }
