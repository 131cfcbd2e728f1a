// Copyright 2016-2021 National Technology & Engineering Solutions of Sandia, LLC (NTESS).
// Under the terms of Contract DE-NA0003525 with NTESS, the U.S. Government retains certain
// rights in this software.

package fsbuilder

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sandia-minimega/microbox/internal/options"
)

func TestWriteResolvConfDefaultServers(t *testing.T) {
	dir := t.TempDir()
	if err := writeResolvConf(dir, nil); err != nil {
		t.Fatal(err)
	}
	got, err := os.ReadFile(filepath.Join(dir, "resolv.conf"))
	if err != nil {
		t.Fatal(err)
	}
	want := "nameserver 8.8.8.8\nnameserver 8.8.4.4\n"
	if string(got) != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestWriteResolvConfCustomServers(t *testing.T) {
	dir := t.TempDir()
	if err := writeResolvConf(dir, []string{"10.0.0.1"}); err != nil {
		t.Fatal(err)
	}
	got, err := os.ReadFile(filepath.Join(dir, "resolv.conf"))
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "nameserver 10.0.0.1\n" {
		t.Fatalf("got %q", got)
	}
}

func TestWriteResolvConfRemovesPreexistingSymlink(t *testing.T) {
	dir := t.TempDir()
	link := filepath.Join(dir, "resolv.conf")
	if err := os.Symlink("/run/somewhere/resolv.conf", link); err != nil {
		t.Fatal(err)
	}

	if err := writeResolvConf(dir, []string{"1.1.1.1"}); err != nil {
		t.Fatal(err)
	}

	fi, err := os.Lstat(link)
	if err != nil {
		t.Fatal(err)
	}
	if fi.Mode()&os.ModeSymlink != 0 {
		t.Fatal("resolv.conf is still a symlink")
	}
	got, err := os.ReadFile(link)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "nameserver 1.1.1.1\n" {
		t.Fatalf("got %q", got)
	}
}

func TestBindMountRejectsSymlinkSource(t *testing.T) {
	dir := t.TempDir()
	target, err := os.MkdirTemp("", "fsbuilder-real")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(target)

	link := filepath.Join(dir, "link")
	if err := os.Symlink(target, link); err != nil {
		t.Fatal(err)
	}

	err = bindMount(dir, options.BindSpec{HostPath: link, Dest: "/mnt"}, false)
	if err == nil {
		t.Fatal("expected error binding a symlink source")
	}
}

func TestMaskedAndReadOnlyPathsAreDistinct(t *testing.T) {
	seen := make(map[string]bool)
	for _, p := range maskedPaths {
		seen[p] = true
	}
	for _, p := range readOnlyPaths {
		if seen[p] {
			t.Fatalf("%q listed in both maskedPaths and readOnlyPaths", p)
		}
	}
}
