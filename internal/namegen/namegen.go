// Copyright 2016-2021 National Technology & Engineering Solutions of Sandia, LLC (NTESS).
// Under the terms of Contract DE-NA0003525 with NTESS, the U.S. Government retains certain
// rights in this software.

// Package namegen generates adjective-noun sandbox names for display
// purposes (logs, `ps`-style listings) when the caller doesn't supply a
// hostname; the sandbox's real identity is always its uuid (see
// options.NewID), never this name.
package namegen

import "fmt"

var adjectives = []string{
	"quiet", "brisk", "amber", "hollow", "steady", "rapid",
	"wry", "blunt", "plain", "coarse", "stark", "lean", "dry",
}

var nouns = []string{
	"otter", "finch", "cedar", "quartz", "ridge", "harbor", "ember",
	"thicket", "meadow", "slate", "kestrel", "marsh", "bramble",
}

// Generate returns a deterministic adjective-noun name for the given seed,
// intended to be called with a value that already varies per sandbox (a
// pid, or the low bits of a uuid) rather than a clock reading.
func Generate(seed uint32) string {
	a := adjectives[seed%uint32(len(adjectives))]
	n := nouns[(seed/uint32(len(adjectives)))%uint32(len(nouns))]
	return fmt.Sprintf("%s-%s", a, n)
}
