// Copyright 2016-2021 National Technology & Engineering Solutions of Sandia, LLC (NTESS).
// Under the terms of Contract DE-NA0003525 with NTESS, the U.S. Government retains certain
// rights in this software.

package orchestrator

import (
	"net"
	"os"
	"syscall"

	"github.com/sandia-minimega/microbox/internal/ipam"
	"github.com/sandia-minimega/microbox/internal/minilog"
	"github.com/sandia-minimega/microbox/internal/netplumber"
)

// Wait blocks until the sandbox's child process exits and returns its exit
// code: the program's own exit status if it ran, 128+signal if it was
// killed by a signal, or 127 if it never got to exec (the child shim
// reports that itself via os.Exit(127) on any setup failure).
func (h *Handle) Wait() int {
	err := h.cmd.Wait()
	return exitCodeFromWaitErr(h.cmd.ProcessState, err)
}

func exitCodeFromWaitErr(state *os.ProcessState, waitErr error) int {
	if state == nil {
		return 127
	}

	if status, ok := state.Sys().(syscall.WaitStatus); ok {
		if status.Signaled() {
			return 128 + int(status.Signal())
		}
		if status.Exited() {
			return status.ExitStatus()
		}
	}

	if waitErr != nil {
		return 127
	}
	return state.ExitCode()
}

// Teardown releases every resource the sandbox accumulated: the IPAM
// lease, the host veth (and with it, its peer), and the cgroup directory.
// Safe to call more than once; every step tolerates "already gone".
func (h *Handle) Teardown() {
	if h.Process.Network != nil {
		if err := netplumber.Teardown(h.Process.Network.HostVeth); err != nil {
			minilog.Warn("teardown veth %s: %v", h.Process.Network.HostVeth, err)
		}
		if h.ipamCIDR != "" && h.ipamAddr != "" {
			store := ipam.New(ipamDBPath())
			if err := store.Release(h.ipamCIDR, net.ParseIP(h.ipamAddr)); err != nil {
				minilog.Warn("release ipam lease %s: %v", h.ipamAddr, err)
			}
		}
	}

	if h.cgroupDir != nil {
		if err := h.cgroupDir.Kill(); err != nil {
			minilog.Warn("cgroup kill %s: %v", h.cgroupDir.Dir, err)
		}
	}

	if h.Process.PidFD >= 0 {
		syscall.Close(h.Process.PidFD)
	}

	os.RemoveAll(h.dir)
}
