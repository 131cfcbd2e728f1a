// Copyright 2016-2021 National Technology & Engineering Solutions of Sandia, LLC (NTESS).
// Under the terms of Contract DE-NA0003525 with NTESS, the U.S. Government retains certain
// rights in this software.

package cli

import (
	"errors"
	"testing"

	"github.com/sandia-minimega/microbox/internal/options"
)

func TestParseDefaults(t *testing.T) {
	c, err := Parse([]string{"/bin/sh"})
	if err != nil {
		t.Fatal(err)
	}
	if c.Opts.FS != options.FSTmpfs {
		t.Fatalf("default fs = %v, want FSTmpfs", c.Opts.FS)
	}
	if c.Opts.Net != options.NetNone {
		t.Fatalf("default net = %v, want NetNone", c.Opts.Net)
	}
	if len(c.Opts.Argv) != 1 || c.Opts.Argv[0] != "/bin/sh" {
		t.Fatalf("argv = %v", c.Opts.Argv)
	}
}

func TestParseBindFlags(t *testing.T) {
	c, err := Parse([]string{"-mount-ro", "/etc/ssl:/etc/ssl", "-mount-rw", "/data:/mnt/data", "/bin/sh"})
	if err != nil {
		t.Fatal(err)
	}
	if len(c.Opts.BindRO) != 1 || c.Opts.BindRO[0].Dest != "/etc/ssl" {
		t.Fatalf("bindRO = %v", c.Opts.BindRO)
	}
	if len(c.Opts.BindRW) != 1 || c.Opts.BindRW[0].HostPath != "/data" {
		t.Fatalf("bindRW = %v", c.Opts.BindRW)
	}
}

func TestParseRejectsBadBindSpec(t *testing.T) {
	if _, err := Parse([]string{"-mount-rw", "no-colon-here", "/bin/sh"}); err == nil {
		t.Fatal("expected an error for a bind spec missing the colon separator")
	}
}

func TestParseReadOnlyFlag(t *testing.T) {
	c, err := Parse([]string{"-readonly", "/bin/sh"})
	if err != nil {
		t.Fatal(err)
	}
	if !c.Opts.ReadOnly {
		t.Fatal("expected ReadOnly = true")
	}
}

func TestParseSyscallFlags(t *testing.T) {
	c, err := Parse([]string{"-allow-syscall", "ptrace", "-deny-syscall", "mount", "/bin/sh"})
	if err != nil {
		t.Fatal(err)
	}
	if len(c.Opts.SyscallAllow) != 1 || c.Opts.SyscallAllow[0] != "ptrace" {
		t.Fatalf("syscallAllow = %v", c.Opts.SyscallAllow)
	}
	if len(c.Opts.SyscallDeny) != 1 || c.Opts.SyscallDeny[0] != "mount" {
		t.Fatalf("syscallDeny = %v", c.Opts.SyscallDeny)
	}
}

func TestParseHelp(t *testing.T) {
	for _, flag := range []string{"--help", "-help", "-h"} {
		if _, err := Parse([]string{flag}); !errors.Is(err, ErrHelp) {
			t.Fatalf("%s: expected ErrHelp, got %v", flag, err)
		}
	}
}

func TestParseVersion(t *testing.T) {
	for _, flag := range []string{"--version", "-version"} {
		if _, err := Parse([]string{flag}); !errors.Is(err, ErrVersion) {
			t.Fatalf("%s: expected ErrVersion, got %v", flag, err)
		}
	}
}

func TestParseHelpStopsAtDoubleDash(t *testing.T) {
	// "--help" after "--" belongs to argv, not to the flag scanner.
	c, err := Parse([]string{"--", "/bin/sh", "--help"})
	if err != nil {
		t.Fatal(err)
	}
	if len(c.Opts.Argv) != 2 || c.Opts.Argv[1] != "--help" {
		t.Fatalf("argv = %v", c.Opts.Argv)
	}
}

func TestParseEnvFlags(t *testing.T) {
	c, err := Parse([]string{"-env", "FOO=bar", "/bin/sh"})
	if err != nil {
		t.Fatal(err)
	}
	if c.Opts.Env["FOO"] != "bar" {
		t.Fatalf("env = %v", c.Opts.Env)
	}
}

func TestParseRejectsEnvMissingKey(t *testing.T) {
	if _, err := Parse([]string{"-env", "=value", "/bin/sh"}); err == nil {
		t.Fatal("expected an error for an -env value with an empty key")
	}
	if _, err := Parse([]string{"-env", "noequals", "/bin/sh"}); err == nil {
		t.Fatal("expected an error for an -env value missing '='")
	}
}

func TestParseRootfsPath(t *testing.T) {
	c, err := Parse([]string{"-fs", "/srv/rootfs", "/bin/sh"})
	if err != nil {
		t.Fatal(err)
	}
	if c.Opts.FS != options.FSRootfs || c.Opts.RootfsPath != "/srv/rootfs" {
		t.Fatalf("fs = %v, path = %v", c.Opts.FS, c.Opts.RootfsPath)
	}
}

func TestParseInvalidNet(t *testing.T) {
	if _, err := Parse([]string{"-net", "carrier-pigeon", "/bin/sh"}); err == nil {
		t.Fatal("expected an error for an invalid -net value")
	}
}

func TestParseStorageSize(t *testing.T) {
	c, err := Parse([]string{"-storage", "128M", "/bin/sh"})
	if err != nil {
		t.Fatal(err)
	}
	if c.Opts.StorageBytes != 128*1000*1000 {
		t.Fatalf("storage bytes = %d", c.Opts.StorageBytes)
	}
}
