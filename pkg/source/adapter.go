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
	"github.com/evgeni/sysdig/pkg/ifaces"
	"github.com/evgeni/sysdig/pkg/kevent"
	"github.com/evgeni/sysdig/pkg/procfs"
	"github.com/evgeni/sysdig/pkg/userdb"
)

// Adapter is the Event Source Adapter (spec §4.1): it holds exactly one
// Driver - live or file - and exposes the operations and snapshot
// accessors the Inspector consumes, without the Inspector ever knowing
// which concrete Driver backs it.
type Adapter struct {
	driver  Driver
	snaplen int
	opened  bool
}

// New wraps an already-constructed Driver. Use OpenFile/OpenLive to pick
// which concrete Driver backs a fresh Adapter, or pass one in directly
// for tests that need to inject a fake.
func New(driver Driver) *Adapter {
	return &Adapter{driver: driver}
}

// OpenFile builds a FileDriver over path and opens it (spec §4.1
// "open_file(path)").
func OpenFile(path string) (*Adapter, error) {
	d := NewFileDriver(path)
	if err := d.Open(); err != nil {
		return nil, err
	}
	return &Adapter{driver: d, opened: true}, nil
}

// OpenLive opens backend through a LiveDriver (spec §4.1 "open_live").
func OpenLive(backend Backend) (*Adapter, error) {
	d := NewLiveDriver(backend)
	if err := d.Open(); err != nil {
		return nil, err
	}
	return &Adapter{driver: d, opened: true}, nil
}

// Close releases the underlying driver.
func (a *Adapter) Close() error {
	if !a.opened {
		return nil
	}
	a.opened = false
	return a.driver.Close()
}

// Next performs one non-blocking pull (spec §4.1 "next"). Callers
// distinguish ierrors.ErrTimeout ("no event currently available") and
// ierrors.ErrEOF ("stream exhausted") from a fatal error via errors.Is.
func (a *Adapter) Next() (*kevent.Kevent, int32, error) {
	return a.driver.Next()
}

// SetSnaplen stores n and forwards it to the driver (spec §4.1
// "set_snaplen(n)": deferred until open, fatal-on-live, ignored-on-file).
func (a *Adapter) SetSnaplen(n int) error {
	a.snaplen = n
	return a.driver.SetSnaplen(n)
}

// StartCapture/StopCapture/StartDropping/StopDropping are the
// control-plane operations of spec §4.1.
func (a *Adapter) StartCapture() error { return a.driver.StartCapture() }
func (a *Adapter) StopCapture() error  { return a.driver.StopCapture() }

func (a *Adapter) StartDropping(ratio float64) error {
	if live, ok := a.driver.(*LiveDriver); ok {
		return live.StartDropping(ratio)
	}
	return nil // no-op on trace files, spec §4.1
}

func (a *Adapter) StopDropping() error {
	if live, ok := a.driver.(*LiveDriver); ok {
		return live.StopDropping()
	}
	return nil
}

// QueryThread implements procfs.OSQuerier by delegating to the driver,
// so an Adapter can be handed directly to procfs.NewTable as its querier.
func (a *Adapter) QueryThread(tid int64, scanSockets bool) (*procfs.ThreadInfo, error) {
	return a.driver.QueryThread(tid, scanSockets)
}

// ProcTable, InterfaceList, UserList, MachineInfo, Stats, and ReadOffset
// are the snapshot accessors of spec §4.1/§6.
func (a *Adapter) ProcTable() []*procfs.ThreadInfo { return a.driver.ProcSnapshot() }
func (a *Adapter) InterfaceList() *ifaces.Table    { return a.driver.InterfaceSnapshot() }
func (a *Adapter) UserList() *userdb.DB            { return a.driver.UserSnapshot() }
func (a *Adapter) MachineInfo() MachineInfo        { return a.driver.MachineInfo() }
func (a *Adapter) Stats() Stats                    { return a.driver.Stats() }

// ReadOffset reports read_progress as a 0..100 percentage when the
// driver reports a known total size (spec §6 "read_progress() ->
// 0..100%"); live sources, which have no fixed size, always report 0.
func (a *Adapter) ReadOffset() int {
	size := a.driver.Size()
	if size <= 0 {
		return 0
	}
	pct := int(float64(a.driver.ReadOffset()) / float64(size) * 100)
	if pct > 100 {
		pct = 100
	}
	return pct
}

var _ procfs.OSQuerier = (*Adapter)(nil)
