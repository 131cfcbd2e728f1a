// Copyright 2016-2021 National Technology & Engineering Solutions of Sandia, LLC (NTESS).
// Under the terms of Contract DE-NA0003525 with NTESS, the U.S. Government retains certain
// rights in this software.

package sizeparse

import "testing"

func TestBytesEmptyIsZero(t *testing.T) {
	got, err := Bytes("")
	if err != nil {
		t.Fatal(err)
	}
	if got != 0 {
		t.Fatalf("got %d, want 0", got)
	}
}

func TestBytesParsesSuffix(t *testing.T) {
	got, err := Bytes("64M")
	if err != nil {
		t.Fatal(err)
	}
	if got != 64*1000*1000 {
		t.Fatalf("got %d, want %d", got, 64*1000*1000)
	}
}

func TestBytesRejectsGarbage(t *testing.T) {
	if _, err := Bytes("not-a-size"); err == nil {
		t.Fatal("expected an error for an unparseable size string")
	}
}
