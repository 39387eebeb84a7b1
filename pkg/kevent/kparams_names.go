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

// Well-known parameter names. Keeping these as constants (rather than raw
// string literals scattered across the parser) is what lets the parser,
// decoders and tests all agree on the same vocabulary.
const (
	Pid  = "pid"
	Tid  = "tid"
	Ppid = "ppid"

	Comm    = "comm"
	Exe     = "exe"
	Cwd     = "cwd"
	Cmdline = "cmdline"
	Uid     = "uid"
	Gid     = "gid"

	CloneFlags = "clone_flags"

	Fd      = "fd"
	FdType  = "fd_type"
	FdName  = "fd_name"
	FdRole  = "fd_role"
	Flags   = "flags"
	Mode    = "mode"
	Ret     = "ret"
	BufSize = "buf_size"
	Buf     = "buf"

	SocketFamily      = "socket_family"
	SocketLocalIP     = "local_ip"
	SocketLocalPort   = "local_port"
	SocketRemoteIP    = "remote_ip"
	SocketRemotePort  = "remote_port"
	SocketBacklog     = "backlog"
	NextTid           = "next_tid"
	PrevTid           = "prev_tid"
	ExitCode          = "exit_code"
)
