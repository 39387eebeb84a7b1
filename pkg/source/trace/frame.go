// Package trace implements the on-disk framing for this project's own
// trace file format (§6: "trace files are an opaque stream consumed by
// the same Source in file mode; the core does not inspect their binary
// layout"). It is internal plumbing for pkg/source's file driver and for
// pkg/inspector's dump writer; the other core packages do not import it.
package trace

import (
	"encoding/gob"
	"time"

	"github.com/evgeni/sysdig/pkg/kevent"
)

func init() {
	// Every concrete type a Param.Value can hold must be registered so
	// gob can encode/decode it through the interface{} field.
	gob.Register("")
	gob.Register(uint8(0))
	gob.Register(uint16(0))
	gob.Register(uint32(0))
	gob.Register(uint64(0))
	gob.Register(int32(0))
	gob.Register(int64(0))
	gob.Register(false)
	gob.Register(time.Time{})
}

// Frame is the wire-level shape of one captured event: a flat,
// gob-friendly projection of kevent.Kevent. The core's Kevent carries a
// pooled buffer and a live Thread pointer that have no business crossing
// a trace-file boundary, so the driver converts to/from Frame instead of
// gob-encoding Kevent directly.
type Frame struct {
	Seq       uint64
	CPU       int32
	Timestamp time.Time
	Type      kevent.Type
	Direction kevent.Direction

	ParamNames  []string
	ParamTypes  []kevent.ParamType
	ParamValues []interface{}

	Buf []byte
}

// FromKevent projects e into a wire Frame.
func FromKevent(e *kevent.Kevent) *Frame {
	names := e.Kparams.Names()
	f := &Frame{
		Seq:        e.Seq,
		CPU:        e.CPU,
		Timestamp:  e.Timestamp,
		Type:       e.Type,
		Direction:  e.Direction,
		ParamNames: names,
	}
	for _, n := range names {
		p, _ := e.Kparams.GetParam(n)
		f.ParamTypes = append(f.ParamTypes, p.Type)
		f.ParamValues = append(f.ParamValues, p.Value)
	}
	if buf := e.Buffer(); buf != nil {
		f.Buf = append([]byte(nil), buf.B...)
	}
	return f
}

// ToKevent reconstructs a core Kevent from a wire Frame.
func (f *Frame) ToKevent() *kevent.Kevent {
	e := kevent.New(f.Seq, f.CPU, f.Type, f.Timestamp)
	e.Direction = f.Direction
	e.Category = kevent.CategoryOf(f.Type)
	for i, name := range f.ParamNames {
		e.Kparams.Append(name, f.ParamTypes[i], f.ParamValues[i])
	}
	if len(f.Buf) > 0 {
		_, _ = e.Buffer().Write(f.Buf)
	}
	return e
}
