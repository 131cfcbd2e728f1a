// Copyright 2016-2021 National Technology & Engineering Solutions of Sandia, LLC (NTESS).
// Under the terms of Contract DE-NA0003525 with NTESS, the U.S. Government retains certain
// rights in this software.

package orchestrator

import (
	"syscall"
	"testing"

	"github.com/sandia-minimega/microbox/internal/options"
)

func TestCloneFlagsBaseline(t *testing.T) {
	opts := &options.SandboxOptions{UserNs: options.UserNsHost, Net: options.NetHost}
	flags := cloneFlags(opts)

	must := []int{syscall.CLONE_NEWPID, syscall.CLONE_NEWUTS, syscall.CLONE_NEWIPC,
		syscall.CLONE_NEWCGROUP, syscall.CLONE_NEWTIME, syscall.CLONE_NEWNS}
	for _, f := range must {
		if flags&uintptr(f) == 0 {
			t.Fatalf("expected flag %x set unconditionally", f)
		}
	}
	if flags&uintptr(syscall.CLONE_NEWUSER) != 0 {
		t.Fatal("CLONE_NEWUSER should not be set when UserNs == Host")
	}
	if flags&uintptr(syscall.CLONE_NEWNET) != 0 {
		t.Fatal("CLONE_NEWNET should not be set when Net == Host")
	}
}

func TestCloneFlagsIsolatedUserAndBridgeNet(t *testing.T) {
	opts := &options.SandboxOptions{UserNs: options.UserNsIsolated, Net: options.NetBridge}
	flags := cloneFlags(opts)

	if flags&uintptr(syscall.CLONE_NEWUSER) == 0 {
		t.Fatal("expected CLONE_NEWUSER for an isolated user namespace")
	}
	if flags&uintptr(syscall.CLONE_NEWNET) == 0 {
		t.Fatal("expected CLONE_NEWNET for bridge networking")
	}
}

func TestCloneFlagsNetNoneStillGetsOwnNetns(t *testing.T) {
	opts := &options.SandboxOptions{UserNs: options.UserNsHost, Net: options.NetNone}
	flags := cloneFlags(opts)
	if flags&uintptr(syscall.CLONE_NEWNET) == 0 {
		t.Fatal("NetNone still isolates into its own (unconfigured) netns")
	}
}

func TestExitCodeNilProcessState(t *testing.T) {
	// syscall.WaitStatus doesn't expose a portable constructor, so the
	// normal-exit and signal cases aren't covered here; this checks only
	// that a nil ProcessState ("never got a wait status") maps to 127.
	got := exitCodeFromWaitErr(nil, nil)
	if got != 127 {
		t.Fatalf("got %d, want 127 for a nil ProcessState", got)
	}
}
