package parser

import (
	"github.com/evgeni/sysdig/pkg/kevent"
	"github.com/evgeni/sysdig/pkg/procfs"
)

// cloneFiles mirrors Linux's CLONE_FILES: the child shares its parent's
// fd table instead of getting its own (spec §4.4 "optionally sharing the
// fd table (depending on the clone flags reported)").
const cloneFiles = 0x400

// handleClone populates a new ThreadInfo on the exit side of
// clone/fork/vfork, inheriting from the parent (when it is in the table)
// any of comm, exe, uid and gid the event does not report (spec §4.4
// "Process lifecycle").
func (p *Parser) handleClone(e *kevent.Kevent) error {
	tid, err := e.Kparams.GetTid()
	if err != nil {
		return err
	}
	pid, err := e.Kparams.GetPid()
	if err != nil {
		return err
	}
	ppid, err := e.Kparams.GetPpid()
	if err != nil {
		return err
	}
	comm := e.GetParamAsString(kevent.Comm)
	exe := e.GetParamAsString(kevent.Exe)
	uid, uidErr := e.Kparams.GetUint32(kevent.Uid)
	gid, gidErr := e.Kparams.GetUint32(kevent.Gid)
	flags, _ := e.Kparams.GetUint64(kevent.CloneFlags)

	parent, hasParent := p.threads.Get(int64(ppid), true)
	if hasParent {
		if comm == "" {
			comm = parent.Comm
		}
		if exe == "" {
			exe = parent.Exe
		}
		if uidErr != nil {
			uid = parent.UID
		}
		if gidErr != nil {
			gid = parent.GID
		}
	}

	child := procfs.New(int64(tid), int64(pid), int64(ppid), comm, exe, uid, gid)

	if flags&cloneFiles != 0 && hasParent {
		child.Fds = parent.Fds
	}

	p.threads.Add(child, false)

	if hasParent {
		parent.ChildCount++
	}
	return nil
}

// handleExecve updates comm, exe, uid and gid for the calling thread
// (spec §4.4: "execve updates comm, exe, uid, gid, and resets relevant
// per-process state").
func (p *Parser) handleExecve(e *kevent.Kevent) error {
	tid, err := e.Kparams.GetTid()
	if err != nil {
		return err
	}
	ti := p.threads.GetOrQuery(int64(tid))
	if ti == nil {
		return nil
	}
	if comm := e.GetParamAsString(kevent.Comm); comm != "" {
		ti.Comm = comm
	}
	if exe := e.GetParamAsString(kevent.Exe); exe != "" {
		ti.Exe = exe
	}
	if uid, err := e.Kparams.GetUint32(kevent.Uid); err == nil {
		ti.UID = uid
	}
	if gid, err := e.Kparams.GetUint32(kevent.Gid); err == nil {
		ti.GID = gid
	}
	return nil
}

// handleExit enqueues the tid for removal; the Inspector deletes it only
// after handing the exit event downstream (spec §4.4 "Exit enqueues the
// tid into tid_to_remove").
func (p *Parser) handleExit(e *kevent.Kevent) error {
	tid, err := e.Kparams.GetTid()
	if err != nil {
		return err
	}
	p.threads.SetPendingTidRemoval(int64(tid))
	return nil
}
