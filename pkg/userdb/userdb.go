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

// Package userdb holds the immutable-after-import uid/gid snapshot (spec
// §3 "User/Group tables").
package userdb

// User is a single imported account record.
type User struct {
	UID      uint32
	GID      uint32
	Name     string
	HomeDir  string
	Shell    string
}

// Group is a single imported group record.
type Group struct {
	GID  uint32
	Name string
}

// DB is the immutable-after-import uid/gid snapshot.
type DB struct {
	users  map[uint32]User
	groups map[uint32]Group
}

// New builds an empty DB; Import populates it once at snapshot-import time.
func New() *DB {
	return &DB{users: make(map[uint32]User), groups: make(map[uint32]Group)}
}

// Import replaces the DB's contents (spec §4.8 ImportUserList).
func (d *DB) Import(users []User, groups []Group) {
	d.users = make(map[uint32]User, len(users))
	for _, u := range users {
		d.users[u.UID] = u
	}
	d.groups = make(map[uint32]Group, len(groups))
	for _, g := range groups {
		d.groups[g.GID] = g
	}
}

// User looks up an account by uid.
func (d *DB) User(uid uint32) (User, bool) {
	u, ok := d.users[uid]
	return u, ok
}

// Group looks up a group by gid.
func (d *DB) Group(gid uint32) (Group, bool) {
	g, ok := d.groups[gid]
	return g, ok
}

// Users returns all imported users.
func (d *DB) Users() []User {
	out := make([]User, 0, len(d.users))
	for _, u := range d.users {
		out = append(out, u)
	}
	return out
}

// Groups returns all imported groups.
func (d *DB) Groups() []Group {
	out := make([]Group, 0, len(d.groups))
	for _, g := range d.groups {
		out = append(out, g)
	}
	return out
}
