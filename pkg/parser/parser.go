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

// Package parser implements the Event Parser / State Engine (spec §4.4):
// a pure state-machine dispatcher that mutates the thread and fd tables
// according to event type, and drives protocol decoders.
package parser

import (
	"github.com/evgeni/sysdig/pkg/decoder"
	"github.com/evgeni/sysdig/pkg/ierrors"
	"github.com/evgeni/sysdig/pkg/ifaces"
	"github.com/evgeni/sysdig/pkg/ilog"
	"github.com/evgeni/sysdig/pkg/kevent"
	"github.com/evgeni/sysdig/pkg/procfs"
)

// Parser owns no state of its own beyond the collaborators it mutates -
// the thread table, the interface table it consults for socket
// orientation, and the decoder registry it dispatches to (spec §3
// "Mutated exclusively by the Parser").
type Parser struct {
	threads  *procfs.Table
	ifaces   *ifaces.Table
	decoders *decoder.Registry
}

// New builds a Parser over the given collaborators. All three are owned
// by the Inspector and merely borrowed here.
func New(threads *procfs.Table, ift *ifaces.Table, decoders *decoder.Registry) *Parser {
	return &Parser{threads: threads, ifaces: ift, decoders: decoders}
}

// ProcessEvent dispatches e by type (spec §4.4). A missing required
// parameter is logged and the event is skipped without state mutation;
// it never halts the capture (spec §4.4 "Failure policy") - which is why
// this never returns an error of its own.
func (p *Parser) ProcessEvent(e *kevent.Kevent) {
	var err error
	switch {
	case kevent.IsCloneLike(e.Type):
		err = p.handleClone(e)
	case e.Type == kevent.Execve:
		err = p.handleExecve(e)
	case e.Type == kevent.Exit:
		err = p.handleExit(e)
	case kevent.IsFdCreating(e.Type):
		err = p.handleFdCreate(e)
	case kevent.IsFdRemoving(e.Type):
		err = p.handleFdRemove(e)
	case e.Type == kevent.Connect:
		err = p.handleConnect(e)
	case e.Type == kevent.Bind, e.Type == kevent.Listen:
		err = p.handleBindListen(e)
	case e.Type == kevent.SchedSwitch:
		// Deliberately a no-op: sched-switch events never mutate thread
		// or fd state (spec §4.4 "Scheduling").
	}

	if err != nil {
		ilog.Warnf("skipping event %d (%s): %v", e.Seq, e.Type, err)
	}

	if errs := p.decoders.Dispatch(e); len(errs) > 0 {
		ilog.Warnf("decoder errors on event %d: %v", e.Seq, ierrors.Wrap(errs...))
	}
}
