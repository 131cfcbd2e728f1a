// Copyright 2016-2021 National Technology & Engineering Solutions of Sandia, LLC (NTESS).
// Under the terms of Contract DE-NA0003525 with NTESS, the U.S. Government retains certain
// rights in this software.

package idmap

import (
	"os"
	"path/filepath"
	"testing"
)

func TestSubordinateRangeParses(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "subuid")
	content := "# comment\nalice:100000:65536\nbob:200000:65536\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	start, length, err := subordinateRange(path, "bob")
	if err != nil {
		t.Fatal(err)
	}
	if start != 200000 || length != 65536 {
		t.Fatalf("got (%d, %d), want (200000, 65536)", start, length)
	}
}

func TestSubordinateRangeMissingUser(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "subuid")
	if err := os.WriteFile(path, []byte("alice:100000:65536\n"), 0644); err != nil {
		t.Fatal(err)
	}

	if _, _, err := subordinateRange(path, "carol"); err == nil {
		t.Fatal("expected error for missing user")
	}
}
