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

// Package config is the Inspector's configuration surface: the Config
// value itself, its load/validate path, and the single-shot-setter state
// machine (spec §9 "Single-shot configuration").
package config

import (
	"github.com/qmuntal/stateless"

	"github.com/evgeni/sysdig/pkg/ierrors"
)

// State is a lifecycle stage of the Inspector's configuration surface
// (spec §9: "explicit states {configuring, opened, capturing, closed}").
type State string

const (
	StateConfiguring State = "configuring"
	StateOpened      State = "opened"
	StateCapturing   State = "capturing"
	StateClosed      State = "closed"
)

// Trigger is a state transition request.
type Trigger string

const (
	TriggerOpen         Trigger = "open"
	TriggerStartCapture Trigger = "start_capture"
	TriggerStopCapture  Trigger = "stop_capture"
	TriggerClose        Trigger = "close"
)

// Machine wraps a qmuntal/stateless state machine configured with the
// exact legal transitions of spec §6's lifecycle (open -> capture start/
// stop -> close), used to turn "filter can only be set once" and
// "reserve_thread_memory is pre-open only" from runtime asserts (as in
// original_source's sinsp::set_filter) into illegal-transition errors.
type Machine struct {
	sm *stateless.StateMachine

	filterSet   bool
	memReserved bool
}

// NewMachine builds a state machine starting in StateConfiguring.
func NewMachine() *Machine {
	sm := stateless.NewStateMachine(StateConfiguring)

	sm.Configure(StateConfiguring).
		Permit(TriggerOpen, StateOpened)

	sm.Configure(StateOpened).
		Permit(TriggerStartCapture, StateCapturing).
		Permit(TriggerClose, StateClosed)

	sm.Configure(StateCapturing).
		Permit(TriggerStopCapture, StateOpened).
		Permit(TriggerClose, StateClosed)

	sm.Configure(StateClosed)

	return &Machine{sm: sm}
}

// State returns the current lifecycle stage.
func (m *Machine) State() State {
	return m.sm.MustState().(State)
}

// Open fires the open transition (spec §6 "open_live"/"open_file").
func (m *Machine) Open() error {
	if err := m.sm.Fire(TriggerOpen); err != nil {
		return ierrors.New(ierrors.KindSetup, err)
	}
	return nil
}

// StartCapture/StopCapture/Close fire their respective transitions.
func (m *Machine) StartCapture() error { return m.fire(TriggerStartCapture) }
func (m *Machine) StopCapture() error  { return m.fire(TriggerStopCapture) }
func (m *Machine) Close() error        { return m.fire(TriggerClose) }

func (m *Machine) fire(t Trigger) error {
	if err := m.sm.Fire(t); err != nil {
		return ierrors.New(ierrors.KindSetup, err)
	}
	return nil
}

// SetFilter enforces the single-shot contract: a second call is an
// illegal-transition-style setup error (spec §9, §6 "set_filter(expr)
// (once)").
func (m *Machine) SetFilter() error {
	if m.filterSet {
		return ierrors.Newf(ierrors.KindSetup, "filter already set, it can only be set once")
	}
	m.filterSet = true
	return nil
}

// ReserveThreadMemory enforces "pre-open only" (spec §6
// "reserve_thread_memory(size) (pre-open only)").
func (m *Machine) ReserveThreadMemory() error {
	if m.State() != StateConfiguring {
		return ierrors.Newf(ierrors.KindSetup, "reserved thread memory must be set before open")
	}
	if m.memReserved {
		return ierrors.Newf(ierrors.KindSetup, "thread memory already reserved, it can only be set once")
	}
	m.memReserved = true
	return nil
}
