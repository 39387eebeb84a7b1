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

// Package ierrors classifies the error kinds this project's error
// handling design covers. Kind tags setup, open, per-event, write,
// parser-anomaly and OS-lookup errors; a snaplen change on a trace file
// and a cycle-writer DOQUIT have no Kind, since neither is reported as an
// error (the first is accepted, the second ends the capture as Eof). Fatal
// kinds surface to the pull caller; non-fatal kinds are absorbed to
// preserve capture continuity.
package ierrors

import (
	"errors"
	"fmt"

	perrors "github.com/pkg/errors"
)

// Kind tags an error with the propagation policy it should receive.
type Kind uint8

const (
	// KindSetup covers bad configuration or re-setting a single-shot option.
	KindSetup Kind = iota
	// KindOpen covers driver-unavailable / trace-file-not-found.
	KindOpen
	// KindEvent covers a fatal per-event error from the source, other than
	// timeout/EOF.
	KindEvent
	// KindWrite covers a fatal dumper write error.
	KindWrite
	// KindParser covers a non-fatal parser anomaly (missing param,
	// inconsistent state); the event is skipped, capture continues.
	KindParser
	// KindLookup covers a non-fatal OS lookup failure, recorded as a
	// sentinel thread; never propagated.
	KindLookup
)

// Fatal reports whether errors of this kind should unwind to the caller.
func (k Kind) Fatal() bool {
	switch k {
	case KindSetup, KindOpen, KindEvent, KindWrite:
		return true
	default:
		return false
	}
}

// Error wraps a causal error with its propagation Kind.
type Error struct {
	Kind  Kind
	Cause error
}

func (e *Error) Error() string { return fmt.Sprintf("%s: %v", e.Kind, e.Cause) }

// Unwrap exposes the wrapped cause to errors.Is/errors.As.
func (e *Error) Unwrap() error { return e.Cause }

func (k Kind) String() string {
	switch k {
	case KindSetup:
		return "setup error"
	case KindOpen:
		return "open error"
	case KindEvent:
		return "event error"
	case KindWrite:
		return "write error"
	case KindParser:
		return "parser anomaly"
	case KindLookup:
		return "lookup failure"
	default:
		return "error"
	}
}

// New wraps cause with a stack-carrying trace (via pkg/errors) and tags it
// with kind, so a fatal error returned from Next() retains the originating
// frame without every layer re-wrapping by hand.
func New(kind Kind, cause error) *Error {
	return &Error{Kind: kind, Cause: perrors.WithStack(cause)}
}

// Newf builds a Kind-tagged error from a format string.
func Newf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Cause: perrors.Errorf(format, args...)}
}

// ErrTimeout is returned by a Source when no event is currently available.
// It is not an error condition - callers must not treat it as fatal.
var ErrTimeout = errors.New("timeout")

// ErrEOF is returned once a trace file is exhausted.
var ErrEOF = errors.New("eof")

// ErrCancelUpstreamKevent signals that an event was consumed and
// deliberately withheld from further processing. It is not a failure.
var ErrCancelUpstreamKevent = errors.New("cancel upstream kevent")

// IsCancelUpstreamKevent reports whether err is, or wraps,
// ErrCancelUpstreamKevent.
func IsCancelUpstreamKevent(err error) bool {
	return errors.Is(err, ErrCancelUpstreamKevent)
}

// Multi aggregates independent errors so that one failure - a single
// decoder or exporter erroring out, say - never prevents the rest from
// running.
type Multi struct {
	Errs []error
}

// Wrap builds a Multi from a non-empty error slice, returning nil if empty.
func Wrap(errs ...error) error {
	if len(errs) == 0 {
		return nil
	}
	return &Multi{Errs: errs}
}

func (m *Multi) Error() string {
	if len(m.Errs) == 1 {
		return m.Errs[0].Error()
	}
	s := fmt.Sprintf("%d errors occurred:", len(m.Errs))
	for _, e := range m.Errs {
		s += "\n\t* " + e.Error()
	}
	return s
}
