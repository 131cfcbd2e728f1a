// Copyright 2016-2021 National Technology & Engineering Solutions of Sandia, LLC (NTESS).
// Under the terms of Contract DE-NA0003525 with NTESS, the U.S. Government retains certain
// rights in this software.

package ipam

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/sandia-minimega/microbox/internal/options"
)

func TestAllocateExcludesNetworkAndBroadcast(t *testing.T) {
	store := New(filepath.Join(t.TempDir(), "ipam.db"))

	// a /30 has exactly two usable addresses once network/broadcast are
	// excluded: .1 and .2.
	got, err := store.Allocate("10.99.0.0/30", nil)
	if err != nil {
		t.Fatal(err)
	}
	if got.String() != "10.99.0.1" {
		t.Fatalf("first allocation: got %s, want 10.99.0.1", got)
	}

	got, err = store.Allocate("10.99.0.0/30", nil)
	if err != nil {
		t.Fatal(err)
	}
	if got.String() != "10.99.0.2" {
		t.Fatalf("second allocation: got %s, want 10.99.0.2", got)
	}

	_, err = store.Allocate("10.99.0.0/30", nil)
	if err == nil {
		t.Fatal("expected exhaustion on third allocation from a /30")
	}
	if !errors.Is(err, options.ErrIpamExhausted) {
		t.Fatalf("expected ErrIpamExhausted, got %v", err)
	}
}

func TestAllocateSkipsReserved(t *testing.T) {
	store := New(filepath.Join(t.TempDir(), "ipam.db"))

	got, err := store.Allocate("10.99.1.0/29", []string{"10.99.1.1"})
	if err != nil {
		t.Fatal(err)
	}
	if got.String() != "10.99.1.2" {
		t.Fatalf("got %s, want 10.99.1.2 (10.99.1.1 is reserved)", got)
	}
}

func TestReleaseThenReallocate(t *testing.T) {
	store := New(filepath.Join(t.TempDir(), "ipam.db"))

	first, err := store.Allocate("10.99.2.0/30", nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := store.Release("10.99.2.0/30", first); err != nil {
		t.Fatal(err)
	}

	// idempotent: releasing again must not error
	if err := store.Release("10.99.2.0/30", first); err != nil {
		t.Fatal(err)
	}

	second, err := store.Allocate("10.99.2.0/30", nil)
	if err != nil {
		t.Fatal(err)
	}
	if !second.Equal(first) {
		t.Fatalf("expected the released address %s to be handed back out, got %s", first, second)
	}
}

func TestAllocateRejectsIPv6(t *testing.T) {
	store := New(filepath.Join(t.TempDir(), "ipam.db"))
	if _, err := store.Allocate("2001:db8::/32", nil); err == nil {
		t.Fatal("expected rejection of an IPv6 CIDR")
	}
}
