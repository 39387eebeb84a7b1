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

// Package procfs is the live model of processes/threads and their open file
// descriptors: the ThreadTable and, nested inside each ThreadInfo, its
// FdTable. It is mutated exclusively by the parser and by the Inspector's
// delayed-removal/eviction logic (spec §3, §4.2, §4.3).
//
// Sentinel threads (comm "<NA>", uid/gid 0xFFFFFFFF) have no TTL at all:
// once max_n_proc_lookups is exhausted for a tid, or the OS query fails,
// the sentinel stands for the lifetime of the table and RemoveInactive
// skips it rather than evicting it on a timeout. We preserve this
// behavior rather than adding a retry path, per the open question in
// spec §9 - a richer stream arriving later for the same tid does not get
// a second OS query.
package procfs
