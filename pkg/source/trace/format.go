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

package trace

import (
	"bufio"
	"compress/gzip"
	"encoding/binary"
	"encoding/gob"
	"io"

	"github.com/hashicorp/go-version"
	"github.com/pkg/errors"
)

// magic identifies this project's trace file format; formatVersion is
// compared with github.com/hashicorp/go-version so a future incompatible
// bump fails fast at open time instead of silently misparsing frames.
const magic = "SYSDIGTR"

var formatVersion = version.Must(version.NewVersion("1.0.0"))

// ErrBadMagic is returned when a file does not start with the expected
// 8-byte magic string.
var ErrBadMagic = errors.New("trace: not a recognized trace file")

// ErrIncompatibleVersion is returned when the file's format version has a
// different major version from the one this build writes, older or newer.
var ErrIncompatibleVersion = errors.New("trace: incompatible format version")

// Writer appends Frames to an underlying stream, optionally gzip-wrapped
// (§6: "compression is a boolean delegated to the Source's dump writer
// - GZIP or none").
type Writer struct {
	out  io.WriteCloser
	gz   *gzip.Writer
	bw   *bufio.Writer
	enc  *gob.Encoder
}

// NewWriter writes the magic+version header immediately and returns a
// Writer ready to accept frames.
func NewWriter(w io.WriteCloser, compress bool) (*Writer, error) {
	if _, err := w.Write([]byte(magic)); err != nil {
		return nil, err
	}
	if _, err := w.Write([]byte(formatVersion.String() + "\n")); err != nil {
		return nil, err
	}

	tw := &Writer{out: w}
	var dest io.Writer = w
	if compress {
		tw.gz = gzip.NewWriter(w)
		dest = tw.gz
	}
	tw.bw = bufio.NewWriter(dest)
	return tw, nil
}

// WriteFrame gob-encodes f and appends it length-prefixed.
func (w *Writer) WriteFrame(f *Frame) error {
	var buf frameBuf
	if err := gob.NewEncoder(&buf).Encode(f); err != nil {
		return errors.Wrap(err, "encode frame")
	}
	var lenPrefix [4]byte
	binary.BigEndian.PutUint32(lenPrefix[:], uint32(len(buf.b)))
	if _, err := w.bw.Write(lenPrefix[:]); err != nil {
		return err
	}
	_, err := w.bw.Write(buf.b)
	return err
}

// Close flushes and closes every layer the writer opened.
func (w *Writer) Close() error {
	if err := w.Flush(); err != nil {
		return err
	}
	return w.out.Close()
}

// Flush pushes buffered bytes through the gzip layer (if any) without
// closing the underlying stream - used by the cycle writer to finish one
// rotation's frames before closing and reopening the next file itself.
func (w *Writer) Flush() error {
	if err := w.bw.Flush(); err != nil {
		return err
	}
	if w.gz != nil {
		return w.gz.Close()
	}
	return nil
}

// Reader pulls Frames back out of a stream written by Writer.
type Reader struct {
	in io.ReadCloser
	gz *gzip.Reader
	br *bufio.Reader
}

// NewReader validates the magic+version header and returns a Reader
// positioned at the first frame.
func NewReader(r io.ReadCloser) (*Reader, error) {
	hdr := make([]byte, len(magic))
	if _, err := io.ReadFull(r, hdr); err != nil {
		return nil, errors.Wrap(err, "read trace header")
	}
	if string(hdr) != magic {
		return nil, ErrBadMagic
	}
	br := bufio.NewReader(r)
	verLine, err := br.ReadString('\n')
	if err != nil {
		return nil, errors.Wrap(err, "read trace version")
	}
	fileVer, err := version.NewVersion(trimNL(verLine))
	if err != nil {
		return nil, errors.Wrap(err, "parse trace version")
	}
	if fileVer.Segments()[0] != formatVersion.Segments()[0] {
		return nil, ErrIncompatibleVersion
	}

	tr := &Reader{in: r}
	// Peek to discover whether the payload is gzip-compressed, reusing
	// the same buffered reader so no bytes consumed above are lost.
	magicBytes, err := br.Peek(2)
	if err == nil && len(magicBytes) == 2 && magicBytes[0] == 0x1f && magicBytes[1] == 0x8b {
		gz, err := gzip.NewReader(br)
		if err != nil {
			return nil, err
		}
		tr.gz = gz
		tr.br = bufio.NewReader(gz)
	} else {
		tr.br = br
	}
	return tr, nil
}

// ReadFrame reads the next frame, returning io.EOF once the stream is
// exhausted.
func (r *Reader) ReadFrame() (*Frame, error) {
	var lenPrefix [4]byte
	if _, err := io.ReadFull(r.br, lenPrefix[:]); err != nil {
		if err == io.ErrUnexpectedEOF {
			return nil, io.EOF
		}
		return nil, err
	}
	n := binary.BigEndian.Uint32(lenPrefix[:])
	payload := make([]byte, n)
	if _, err := io.ReadFull(r.br, payload); err != nil {
		return nil, err
	}
	var f Frame
	if err := gob.NewDecoder(&frameBuf{b: payload}).Decode(&f); err != nil {
		return nil, errors.Wrap(err, "decode frame")
	}
	return &f, nil
}

// Close closes every layer the reader opened.
func (r *Reader) Close() error {
	if r.gz != nil {
		if err := r.gz.Close(); err != nil {
			return err
		}
	}
	return r.in.Close()
}

func trimNL(s string) string {
	if n := len(s); n > 0 && s[n-1] == '\n' {
		return s[:n-1]
	}
	return s
}

// frameBuf is a minimal io.Reader/io.Writer over an in-memory byte slice,
// used to gob-encode/decode exactly one frame at a time so its length is
// known before writing the length prefix.
type frameBuf struct{ b []byte }

func (f *frameBuf) Write(p []byte) (int, error) {
	f.b = append(f.b, p...)
	return len(p), nil
}

func (f *frameBuf) Read(p []byte) (int, error) {
	if len(f.b) == 0 {
		return 0, io.EOF
	}
	n := copy(p, f.b)
	f.b = f.b[n:]
	return n, nil
}
