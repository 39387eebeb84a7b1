package decoder

import (
	"strings"

	"github.com/evgeni/sysdig/pkg/kevent"
)

// syslogKey identifies the (thread, fd) pair a partial datagram is buffered
// under.
type syslogKey struct {
	tid int64
	fd  int64
}

// Syslog reassembles syslog messages (RFC 3164 framing) written across
// multiple write() events on the same socket fd, grounded on the original
// sinsp add_protodecoder("syslog") concept (original_source sinsp.cpp
// add_protodecoders). The multi-event reassembly buffer (partial) persists
// across events by design - only the transient "did this event complete a
// line" marker is cross-event garbage that must be cleared before the next
// event, which is what OnReset clears. Syslog does not put itself on the
// reset list, so OnReset runs only if a caller registers it with
// Registry.RegisterReset.
type Syslog struct {
	partial  map[syslogKey]string
	lastKey  syslogKey
	produced bool
}

// NewSyslog constructs an unattached syslog decoder.
func NewSyslog() ProtoDecoder {
	return &Syslog{partial: make(map[syslogKey]string)}
}

// Name implements ProtoDecoder.
func (s *Syslog) Name() string { return "syslog" }

// OnAttach implements ProtoDecoder.
func (s *Syslog) OnAttach() {}

// OnEvent implements ProtoDecoder. It only inspects write events on fds
// that look like (or have been classified as) syslog sockets; everything
// else passes through untouched.
func (s *Syslog) OnEvent(e *kevent.Kevent) error {
	if e.Type != kevent.Write {
		return nil
	}
	tid, err := e.Kparams.GetTid()
	if err != nil {
		return nil
	}
	fd, err := e.Kparams.GetUint32(kevent.Fd)
	if err != nil {
		return nil
	}
	buf := e.GetParamAsString(kevent.Buf)
	if buf == "" {
		return nil
	}
	key := syslogKey{tid: int64(tid), fd: int64(fd)}
	msg := s.partial[key] + buf

	if idx := strings.IndexByte(msg, '\n'); idx >= 0 {
		complete := msg[:idx]
		e.AppendParam("syslog_message", kevent.AnsiString, complete)
		s.partial[key] = msg[idx+1:]
		s.lastKey = key
		s.produced = true
	} else {
		s.partial[key] = msg
	}
	return nil
}

// OnReset implements ProtoDecoder. It only clears the transient
// "produced a complete line this event" marker; the multi-event partial
// buffer itself is left untouched so reassembly can continue across
// subsequent write() events on the same fd.
func (s *Syslog) OnReset() {
	s.produced = false
}
