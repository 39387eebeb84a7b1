package parser

import (
	"net"

	"github.com/evgeni/sysdig/pkg/ilog"
	"github.com/evgeni/sysdig/pkg/kevent"
	"github.com/evgeni/sysdig/pkg/procfs"
)

// fdTypeFor maps the textual fd-type parameter reported by the driver to
// a procfs.FdType. An unrecognized or absent tag defaults to FdIPv4Sock
// for socket/accept/accept4 and to FdUnknown otherwise, rather than
// failing the event (spec §4.4 failure policy only requires
// skipping when a *required* parameter is missing; fd type is
// best-effort classification).
func fdTypeFor(e *kevent.Kevent) procfs.FdType {
	switch e.GetParamAsString(kevent.FdType) {
	case "file":
		return procfs.FdFile
	case "directory":
		return procfs.FdDirectory
	case "pipe":
		return procfs.FdPipe
	case "ipv4":
		return procfs.FdIPv4Sock
	case "ipv6":
		return procfs.FdIPv6Sock
	case "unix":
		return procfs.FdUnixSock
	case "signalfd":
		return procfs.FdSignalfd
	case "eventfd":
		return procfs.FdEventfd
	case "timerfd":
		return procfs.FdTimerfd
	case "inotify":
		return procfs.FdInotify
	default:
		if e.Type == kevent.Socket || e.Type == kevent.Accept || e.Type == kevent.Accept4 {
			return procfs.FdIPv4Sock
		}
		return procfs.FdUnknown
	}
}

// handleFdCreate inserts an FdInfo on the exit side of open/openat/
// creat/pipe/socket/accept/accept4 (spec §4.4 "Fd lifecycle"). These
// calls only have state to record once the return value (the fd number)
// is available, which is why fd creation is tied to the exit side.
func (p *Parser) handleFdCreate(e *kevent.Kevent) error {
	tid, err := e.Kparams.GetTid()
	if err != nil {
		return err
	}
	fd, err := e.Kparams.GetUint32(kevent.Fd)
	if err != nil {
		return err
	}
	ti := p.threads.GetOrQuery(int64(tid))
	if ti == nil {
		return nil
	}
	name := e.GetParamAsString(kevent.FdName)
	fi := procfs.NewFdInfo(int64(fd), fdTypeFor(e), name, e.Timestamp)

	if e.Type == kevent.Accept || e.Type == kevent.Accept4 {
		// accept's exit side is where role=server is established (spec
		// §4.4 "Socket orientation").
		fi.Role = procfs.RoleServer
		fi.Local = endpointOf(e, kevent.SocketLocalIP, kevent.SocketLocalPort)
		fi.Remote = endpointOf(e, kevent.SocketRemoteIP, kevent.SocketRemotePort)
		p.classify(fi)
	}

	ti.Fds.Add(fi)
	return nil
}

// handleFdRemove enqueues deferred removal for close/shutdown events
// (spec §4.3/§4.4): the removal is applied at the top of the next event,
// never in-place, so the closing event itself can still see the fd.
func (p *Parser) handleFdRemove(e *kevent.Kevent) error {
	tid, err := e.Kparams.GetTid()
	if err != nil {
		return err
	}
	fd, err := e.Kparams.GetUint32(kevent.Fd)
	if err != nil {
		return err
	}
	p.threads.EnqueueFdRemoval(int64(tid), int64(fd))
	return nil
}

// handleConnect sets role=client and records the remote endpoint on
// connect's exit side (spec §4.4 "Socket orientation").
func (p *Parser) handleConnect(e *kevent.Kevent) error {
	tid, err := e.Kparams.GetTid()
	if err != nil {
		return err
	}
	fd, err := e.Kparams.GetUint32(kevent.Fd)
	if err != nil {
		return err
	}
	ti, ok := p.threads.Get(int64(tid), true)
	if !ok {
		return nil
	}
	fi, ok := ti.Fds.Get(int64(fd))
	if !ok {
		return nil
	}
	fi.Role = procfs.RoleClient
	fi.Remote = endpointOf(e, kevent.SocketRemoteIP, kevent.SocketRemotePort)
	fi.Local = endpointOf(e, kevent.SocketLocalIP, kevent.SocketLocalPort)
	p.classify(fi)
	return nil
}

// handleBindListen records the local endpoint bind/listen report, for
// completeness only - a role is not required to be set here
// (§4.4: "bind+listen are observed for completeness").
func (p *Parser) handleBindListen(e *kevent.Kevent) error {
	tid, err := e.Kparams.GetTid()
	if err != nil {
		return err
	}
	fd, err := e.Kparams.GetUint32(kevent.Fd)
	if err != nil {
		return err
	}
	ti, ok := p.threads.Get(int64(tid), true)
	if !ok {
		return nil
	}
	fi, ok := ti.Fds.Get(int64(fd))
	if !ok {
		return nil
	}
	fi.Local = endpointOf(e, kevent.SocketLocalIP, kevent.SocketLocalPort)
	return nil
}

func endpointOf(e *kevent.Kevent, ipParam, portParam string) procfs.Endpoint {
	ip, _ := e.Kparams.GetString(ipParam)
	port, _ := e.Kparams.GetUint32(portParam)
	return procfs.Endpoint{IP: ip, Port: uint16(port)}
}

// classify consults the interface table to confirm the locally-reported
// endpoint actually belongs to a host interface (spec §4.4: "For each
// endpoint, the interface table classifies local vs remote"). A mismatch
// doesn't change the already-established role - connect/accept report it
// directly - it only gets logged, since it means either a spoofed source
// address or a driver reporting the wrong side.
func (p *Parser) classify(fi *procfs.FdInfo) {
	if p.ifaces == nil || fi.Local.IP == "" {
		return
	}
	ip := net.ParseIP(fi.Local.IP)
	if ip == nil {
		return
	}
	if p.ifaces.Classify(ip) != "local" {
		ilog.Warnf("fd %d: reported local endpoint %s is not a host interface address", fi.Fd, fi.Local.IP)
	}
}
