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

// Package decoder implements pluggable per-event protocol decoders (spec
// §3 "ProtoDecoder", §4.4/§9 "Decoder reset list"). A decoder is put on
// the reset list by a call to Registry.RegisterReset; no decoder in this
// package makes that call itself. The registry keeps that reset list as a
// set of indices into a stable slice rather than holding pointers with
// independent lifetimes.
package decoder

import "github.com/evgeni/sysdig/pkg/kevent"

// ProtoDecoder is a named, registered hook with lifecycle callbacks (spec
// §3).
type ProtoDecoder interface {
	Name() string
	OnAttach()
	OnEvent(e *kevent.Kevent) error
	OnReset()
}

// Registry tracks attached decoders by name and the transient per-iteration
// reset list.
type Registry struct {
	byName    map[string]ProtoDecoder
	order     []ProtoDecoder
	resetList []int
}

// NewRegistry builds an empty decoder registry.
func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]ProtoDecoder)}
}

// Require attaches (idempotently) the named decoder, returning the
// existing instance if already attached. Mirrors
// sinsp::require_protodecoder / parser.add_protodecoder.
func (r *Registry) Require(name string, factory func() ProtoDecoder) ProtoDecoder {
	if d, ok := r.byName[name]; ok {
		return d
	}
	d := factory()
	d.OnAttach()
	r.byName[name] = d
	r.order = append(r.order, d)
	return d
}

// Dispatch runs e through every attached decoder. A decoder error does not
// stop the others from running, matching the parser's skip-don't-halt
// failure policy for anomalies (spec §4.4, §7 kind 5).
func (r *Registry) Dispatch(e *kevent.Kevent) []error {
	var errs []error
	for _, d := range r.order {
		if err := d.OnEvent(e); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}

// RegisterReset marks decoder d for a reset at the start of the next
// iteration (spec §9 "Decoder reset list").
func (r *Registry) RegisterReset(d ProtoDecoder) {
	for i, dec := range r.order {
		if dec == d {
			r.resetList = append(r.resetList, i)
			return
		}
	}
}

// DrainReset resets every decoder registered since the last drain, then
// clears the list. Called at the top of the Inspector's loop (spec §4.6
// step 1).
func (r *Registry) DrainReset() {
	for _, i := range r.resetList {
		r.order[i].OnReset()
	}
	r.resetList = r.resetList[:0]
}
