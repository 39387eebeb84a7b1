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
	"fmt"
	"time"

	"github.com/pkg/errors"
)

// ParamType identifies the Go type backing a parameter's value.
type ParamType uint8

const (
	AnsiString ParamType = iota
	UnicodeString
	FilePath
	Uint8
	Uint16
	Uint32
	Uint64
	Int32
	Int64
	Hex
	Bool
	Time
	IPv4Endpoint
	IPv6Endpoint
)

// Param is a single named, typed value carried on a Kevent.
type Param struct {
	Name  string
	Type  ParamType
	Value interface{}
}

// ErrParamNotFound is returned when a required parameter is absent from
// the event. The parser's failure policy is to log and skip the event
// rather than propagate this upward.
var ErrParamNotFound = errors.New("parameter not found")

// Kparams is the ordered bag of parameters attached to a Kevent. Order is
// preserved because it mirrors the order fields were captured by the
// driver, which downstream formatters rely on.
type Kparams struct {
	names  []string
	values map[string]Param
}

// NewKparams creates an empty parameter bag.
func NewKparams() *Kparams {
	return &Kparams{values: make(map[string]Param)}
}

// Append adds, or overwrites in place, a named parameter.
func (k *Kparams) Append(name string, typ ParamType, value interface{}) {
	if _, ok := k.values[name]; !ok {
		k.names = append(k.names, name)
	}
	k.values[name] = Param{Name: name, Type: typ, Value: value}
}

// Remove deletes a parameter. It is a no-op if the parameter is absent.
func (k *Kparams) Remove(name string) {
	if _, ok := k.values[name]; !ok {
		return
	}
	delete(k.values, name)
	for i, n := range k.names {
		if n == name {
			k.names = append(k.names[:i], k.names[i+1:]...)
			break
		}
	}
}

// SetValue overwrites the value of an existing parameter, keeping its type.
func (k *Kparams) SetValue(name string, value interface{}) error {
	p, ok := k.values[name]
	if !ok {
		return errors.Wrapf(ErrParamNotFound, "param %q", name)
	}
	p.Value = value
	k.values[name] = p
	return nil
}

// Contains reports whether the named parameter is present.
func (k *Kparams) Contains(name string) bool {
	_, ok := k.values[name]
	return ok
}

// Names returns the parameter names in capture order.
func (k *Kparams) Names() []string {
	out := make([]string, len(k.names))
	copy(out, k.names)
	return out
}

// GetParam returns the raw Param record for name, for callers (e.g. the
// trace file codec) that need the type tag alongside the value.
func (k *Kparams) GetParam(name string) (Param, error) {
	return k.get(name)
}

func (k *Kparams) get(name string) (Param, error) {
	p, ok := k.values[name]
	if !ok {
		return Param{}, errors.Wrapf(ErrParamNotFound, "param %q", name)
	}
	return p, nil
}

// GetString returns the string-valued parameter, converting via fmt.Sprint
// when the stored value isn't already a string.
func (k *Kparams) GetString(name string) (string, error) {
	p, err := k.get(name)
	if err != nil {
		return "", err
	}
	if s, ok := p.Value.(string); ok {
		return s, nil
	}
	return fmt.Sprint(p.Value), nil
}

// GetUint32 returns a uint32-valued parameter.
func (k *Kparams) GetUint32(name string) (uint32, error) {
	p, err := k.get(name)
	if err != nil {
		return 0, err
	}
	v, ok := p.Value.(uint32)
	if !ok {
		return 0, errors.Errorf("param %q is not uint32", name)
	}
	return v, nil
}

// MustGetUint32 returns the value or zero, swallowing the error. Used where
// a missing optional parameter is a legitimate outcome, not a failure.
func (k *Kparams) MustGetUint32(name string) uint32 {
	v, _ := k.GetUint32(name)
	return v
}

// GetUint64 returns a uint64-valued parameter.
func (k *Kparams) GetUint64(name string) (uint64, error) {
	p, err := k.get(name)
	if err != nil {
		return 0, err
	}
	v, ok := p.Value.(uint64)
	if !ok {
		return 0, errors.Errorf("param %q is not uint64", name)
	}
	return v, nil
}

// GetInt64 returns an int64-valued parameter.
func (k *Kparams) GetInt64(name string) (int64, error) {
	p, err := k.get(name)
	if err != nil {
		return 0, err
	}
	v, ok := p.Value.(int64)
	if !ok {
		return 0, errors.Errorf("param %q is not int64", name)
	}
	return v, nil
}

// GetUint8 returns a uint8-valued parameter.
func (k *Kparams) GetUint8(name string) (uint8, error) {
	p, err := k.get(name)
	if err != nil {
		return 0, err
	}
	v, ok := p.Value.(uint8)
	if !ok {
		return 0, errors.Errorf("param %q is not uint8", name)
	}
	return v, nil
}

// GetHex returns a Hex-typed parameter as uint64.
func (k *Kparams) GetHex(name string) (uint64, error) { return k.GetUint64(name) }

// GetBool returns a bool-valued parameter.
func (k *Kparams) GetBool(name string) (bool, error) {
	p, err := k.get(name)
	if err != nil {
		return false, err
	}
	v, ok := p.Value.(bool)
	if !ok {
		return false, errors.Errorf("param %q is not bool", name)
	}
	return v, nil
}

// GetTime returns a Time-typed parameter.
func (k *Kparams) GetTime(name string) (time.Time, error) {
	p, err := k.get(name)
	if err != nil {
		return time.Time{}, err
	}
	v, ok := p.Value.(time.Time)
	if !ok {
		return time.Time{}, errors.Errorf("param %q is not time.Time", name)
	}
	return v, nil
}

// GetPid returns the Pid parameter, present on (almost) every event.
func (k *Kparams) GetPid() (uint32, error) { return k.GetUint32(Pid) }

// GetTid returns the Tid parameter.
func (k *Kparams) GetTid() (uint32, error) { return k.GetUint32(Tid) }

// GetPpid returns the Ppid parameter.
func (k *Kparams) GetPpid() (uint32, error) { return k.GetUint32(Ppid) }

// MustGetPid returns Pid or zero.
func (k *Kparams) MustGetPid() uint32 { return k.MustGetUint32(Pid) }
