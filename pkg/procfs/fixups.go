package procfs

import (
	"net"

	"github.com/evgeni/sysdig/pkg/ifaces"
)

// FixSocketsComingFromProc is the second pass after snapshot import: for
// each socket FdInfo imported from the kernel process scan, set its role
// (client/server) using the interface table, since the snapshot reports no
// direction bit - the connecting syscall was never observed (spec §4.2).
//
// Heuristic: a socket whose local endpoint sits on a host interface and
// whose local port is numerically lower than its remote port is treated as
// the server side of the connection (the well-known/listening port is
// conventionally the lower one); otherwise it is the client. This is an
// approximation precisely because the connecting syscall was never
// observed for snapshot-imported sockets.
func (t *Table) FixSocketsComingFromProc(ift *ifaces.Table) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, ti := range t.threads {
		ti.Fds.Each(func(fd *FdInfo) {
			if !fd.Type.IsSocket() || fd.Role != RoleNone {
				return
			}
			if fd.Remote.IP == "" {
				return
			}
			localIP := net.ParseIP(fd.Local.IP)
			local := "remote"
			if localIP != nil && ift != nil {
				local = ift.Classify(localIP)
			}
			// A socket bound to one of the host's own addresses on the
			// numerically lower port is treated as the listening/server
			// side; this only discriminates in the local case because a
			// remote-only endpoint gives no host-ownership signal at all.
			if local == "local" && fd.Local.Port != 0 && fd.Remote.Port != 0 && fd.Local.Port < fd.Remote.Port {
				fd.Role = RoleServer
			} else {
				fd.Role = RoleClient
			}
		})
	}
}
