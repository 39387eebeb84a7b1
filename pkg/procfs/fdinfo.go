package procfs

import "time"

// FdType tags the kind of resource a file descriptor refers to.
type FdType uint8

const (
	FdUnknown FdType = iota
	FdFile
	FdDirectory
	FdPipe
	FdIPv4Sock
	FdIPv6Sock
	FdUnixSock
	FdSignalfd
	FdEventfd
	FdTimerfd
	FdInotify
)

func (t FdType) String() string {
	switch t {
	case FdFile:
		return "file"
	case FdDirectory:
		return "directory"
	case FdPipe:
		return "pipe"
	case FdIPv4Sock:
		return "ipv4"
	case FdIPv6Sock:
		return "ipv6"
	case FdUnixSock:
		return "unix"
	case FdSignalfd:
		return "signalfd"
	case FdEventfd:
		return "eventfd"
	case FdTimerfd:
		return "timerfd"
	case FdInotify:
		return "inotify"
	default:
		return "unknown"
	}
}

// IsSocket reports whether t is one of the socket fd types.
func (t FdType) IsSocket() bool {
	return t == FdIPv4Sock || t == FdIPv6Sock || t == FdUnixSock
}

// Role tags a socket fd's connection direction - unset until the parser
// observes the connect/accept syscall that establishes it (spec §3
// "FdInfo" role tag).
type Role uint8

const (
	RoleNone Role = iota
	RoleClient
	RoleServer
)

// Endpoint is one side of a socket fd (used for both local and remote).
type Endpoint struct {
	IP   string
	Port uint16
}

// FdInfo is a single open file descriptor (spec §3 "FdInfo").
type FdInfo struct {
	Fd        int64
	Type      FdType
	Name      string
	Role      Role
	Local     Endpoint
	Remote    Endpoint
	CreatedAt time.Time
}

// NewFdInfo builds a non-socket fd record.
func NewFdInfo(fd int64, typ FdType, name string, createdAt time.Time) *FdInfo {
	return &FdInfo{Fd: fd, Type: typ, Name: name, CreatedAt: createdAt}
}
