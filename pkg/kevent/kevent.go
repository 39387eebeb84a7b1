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

package kevent

import (
	"time"

	"github.com/valyala/bytebufferpool"
)

var bufPool bytebufferpool.Pool

// Kevent is the concrete event type flowing through the capture pipeline.
// It is the Go analogue of sinsp_evt: it carries identity (sequence number,
// cpu, timestamp, type), a typed parameter bag, a slot for the owning
// thread, and an optional raw I/O buffer bounded by the configured
// snaplen.
type Kevent struct {
	Seq       uint64
	CPU       int32
	Timestamp time.Time
	Type      Type
	Direction Direction
	Category  Category

	Kparams *Kparams

	// Thread is a slot for the owning thread record. The parser and the
	// Inspector do not fill it in, so it stays nil unless a consumer sets
	// it.
	Thread interface{}

	// Filtered marks an event the compiled filter rejected; it still flows
	// back to the consumer (spec step 8) so decoder timeout hooks can run,
	// but downstream code treats it as a timeout-like signal.
	Filtered bool
	// Dropped marks an event that LiveDriver's drop-mode sampling did not
	// admit, independent of Filtered. Such an event is still delivered;
	// a dump_flags() drop does not set this flag.
	Dropped bool

	buf *bytebufferpool.ByteBuffer
}

// New allocates a Kevent with an empty parameter bag and a pooled buffer.
func New(seq uint64, cpu int32, typ Type, ts time.Time) *Kevent {
	return &Kevent{
		Seq:       seq,
		CPU:       cpu,
		Timestamp: ts,
		Type:      typ,
		Direction: DirExit,
		Category:  CategoryOf(typ),
		Kparams:   NewKparams(),
		buf:       bufPool.Get(),
	}
}

// Buffer returns the pooled scratch buffer for this event's captured I/O
// payload, truncated to at most snaplen bytes by the caller.
func (e *Kevent) Buffer() *bytebufferpool.ByteBuffer { return e.buf }

// Release returns the event's pooled buffer. Call once the event has been
// fully consumed (published to the downstream consumer or dropped).
func (e *Kevent) Release() {
	if e.buf != nil {
		bufPool.Put(e.buf)
		e.buf = nil
	}
}

// AppendParam is a convenience wrapper over Kparams.Append.
func (e *Kevent) AppendParam(name string, typ ParamType, value interface{}) {
	e.Kparams.Append(name, typ, value)
}

// GetParamAsString returns the named parameter rendered as a string,
// swallowing a missing-parameter error in favor of an empty result -
// handy for optional display fields.
func (e *Kevent) GetParamAsString(name string) string {
	s, _ := e.Kparams.GetString(name)
	return s
}

// PID returns the pid parameter, or zero if absent.
func (e *Kevent) PID() uint32 { return e.Kparams.MustGetUint32(Pid) }

// IsSchedSwitch reports whether this is a scheduling transition - these
// never update a thread's last-event timestamp (spec §4.4, §4.6 step 9).
func (e *Kevent) IsSchedSwitch() bool { return e.Type == SchedSwitch }

// IsExit reports whether this is a process-exit event.
func (e *Kevent) IsExit() bool { return e.Type == Exit }

// IsClone reports whether this event spawns a new thread.
func (e *Kevent) IsClone() bool { return IsCloneLike(e.Type) }
