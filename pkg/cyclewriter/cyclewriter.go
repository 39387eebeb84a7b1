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

// Package cyclewriter implements the trace-file rotation policy
// (§4.5 "Cycle Writer"). It owns only the decision; the file mechanics of
// actually closing one named file and opening the next belong to
// gopkg.in/natefinch/lumberjack.v2, leaning on a dedicated library for
// every mechanical file-rolling concern rather than hand-rolling
// os.Rename/os.Create sequences.
package cyclewriter

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/evgeni/sysdig/pkg/ilog"
)

// Decision is the per-event verdict returned by Consider (spec §4.5).
type Decision int

const (
	SameFile Decision = iota
	NewFile
	DoQuit
)

func (d Decision) String() string {
	switch d {
	case SameFile:
		return "SAMEFILE"
	case NewFile:
		return "NEWFILE"
	case DoQuit:
		return "DOQUIT"
	default:
		return "UNKNOWN"
	}
}

// Config bundles the cycle writer's tunables (spec §4.5): base file name,
// optional byte size limit, optional duration limit, optional file count
// limit, and the do-cycle flag.
type Config struct {
	BaseName   string
	ByteLimit  int64 // 0 disables the byte-size rule
	Duration   time.Duration
	FileLimit  int // 0 disables the file-count rule
	DoCycle    bool
	Compress   bool
}

// Writer decides, per event, whether to keep writing to the current trace
// file, roll to a new one, or stop capture entirely.
type Writer struct {
	cfg Config

	logger    *lumberjack.Logger
	fileIndex int
	openedAt  time.Time
	written   int64
}

// New builds a cycle writer and opens the first output file, which for
// index 0 is Config.BaseName itself (spec §4.5: "base name + monotonically
// increasing index").
func New(cfg Config) *Writer {
	w := &Writer{cfg: cfg}
	w.openCurrent()
	return w
}

func (w *Writer) fileName(index int) string {
	if index == 0 {
		return w.cfg.BaseName
	}
	if dot := strings.LastIndexByte(w.cfg.BaseName, '.'); dot >= 0 {
		return fmt.Sprintf("%s.%d%s", w.cfg.BaseName[:dot], index, w.cfg.BaseName[dot:])
	}
	return fmt.Sprintf("%s.%d", w.cfg.BaseName, index)
}

func (w *Writer) openCurrent() {
	w.logger = &lumberjack.Logger{
		Filename: w.fileName(w.fileIndex),
		Compress: w.cfg.Compress,
	}
	w.openedAt = time.Now()
	w.written = 0
}

// Consider is the decision rule of spec §4.5: if appending bytesToWrite
// would exceed the byte limit, or the configured duration has elapsed
// since this file opened, rotate. If cycling is off and the file index has
// reached the file count limit, quit instead of rotating.
func (w *Writer) Consider(bytesToWrite int64) Decision {
	exceedsBytes := w.cfg.ByteLimit > 0 && w.written+bytesToWrite > w.cfg.ByteLimit
	exceedsDuration := w.cfg.Duration > 0 && time.Since(w.openedAt) >= w.cfg.Duration

	if !exceedsBytes && !exceedsDuration {
		return SameFile
	}

	if !w.cfg.DoCycle && w.cfg.FileLimit > 0 && w.fileIndex+1 >= w.cfg.FileLimit {
		ilog.Infof("cycle writer reached file limit (%d) with cycling disabled, stopping capture", w.cfg.FileLimit)
		return DoQuit
	}

	return NewFile
}

// Rotate closes the current file and opens the next one, wrapping the
// file index modulo FileLimit when cycling is enabled (spec §4.5).
func (w *Writer) Rotate() error {
	if err := w.logger.Close(); err != nil {
		return err
	}
	w.fileIndex++
	if w.cfg.DoCycle && w.cfg.FileLimit > 0 {
		w.fileIndex = w.fileIndex % w.cfg.FileLimit
	}
	ilog.Infof("rolling to %s after %s written", w.fileName(w.fileIndex), humanize.Bytes(uint64(w.written)))
	w.openCurrent()
	return nil
}

// Write appends p to the current file and tracks bytes written for the
// next Consider call.
func (w *Writer) Write(p []byte) (int, error) {
	n, err := w.logger.Write(p)
	w.written += int64(n)
	return n, err
}

// Close closes the underlying file handle.
func (w *Writer) Close() error {
	return w.logger.Close()
}

// FileIndex reports the current (0-based) file index.
func (w *Writer) FileIndex() int {
	return w.fileIndex
}
