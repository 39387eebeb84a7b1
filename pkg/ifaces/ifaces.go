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

// Package ifaces is the network interface snapshot used to classify socket
// endpoints as local or remote (spec §3 "NetworkInterfaceTable",
// immutable after import).
package ifaces

import "net"

// IPv4Interface is a single IPv4 host interface record.
type IPv4Interface struct {
	Name    string
	Addr    net.IP
	Netmask net.IP
}

// IPv6Interface is a single IPv6 host interface record.
type IPv6Interface struct {
	Name string
	Addr net.IP
}

func (i IPv4Interface) contains(ip net.IP) bool {
	ip4 := ip.To4()
	if ip4 == nil || i.Addr == nil || i.Netmask == nil {
		return false
	}
	mask := net.IPMask(i.Netmask.To4())
	return i.Addr.To4().Mask(mask).Equal(ip4.Mask(mask))
}

// Table is the immutable-after-import set of host network interfaces.
type Table struct {
	v4 []IPv4Interface
	v6 []IPv6Interface
}

// New builds an empty interface table; Import populates it once at
// snapshot-import time.
func New() *Table { return &Table{} }

// Import replaces the table's contents. Called exactly once, during
// snapshot import (spec §4.8 ImportIfaddrList); the table is immutable
// afterward.
func (t *Table) Import(v4 []IPv4Interface, v6 []IPv6Interface) {
	t.v4 = v4
	t.v6 = v6
}

// V4 returns the imported IPv4 interfaces.
func (t *Table) V4() []IPv4Interface { return t.v4 }

// V6 returns the imported IPv6 interfaces.
func (t *Table) V6() []IPv6Interface { return t.v6 }

// IsLocalV4 reports whether ip belongs to one of the host's IPv4
// interfaces.
func (t *Table) IsLocalV4(ip net.IP) bool {
	for _, i := range t.v4 {
		if i.contains(ip) {
			return true
		}
	}
	return false
}

// IsLocalV6 reports whether ip matches one of the host's IPv6 interfaces.
func (t *Table) IsLocalV6(ip net.IP) bool {
	for _, i := range t.v6 {
		if i.Addr.Equal(ip) {
			return true
		}
	}
	return false
}

// Classify returns "local" or "remote" for the given endpoint IP, used by
// the parser to annotate connect/accept/bind events (spec §4.4 "Socket
// orientation").
func (t *Table) Classify(ip net.IP) string {
	if ip.To4() != nil {
		if t.IsLocalV4(ip) {
			return "local"
		}
		return "remote"
	}
	if t.IsLocalV6(ip) {
		return "local"
	}
	return "remote"
}
