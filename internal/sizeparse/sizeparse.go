// Copyright 2016-2021 National Technology & Engineering Solutions of Sandia, LLC (NTESS).
// Under the terms of Contract DE-NA0003525 with NTESS, the U.S. Government retains certain
// rights in this software.

// Package sizeparse parses human-readable byte-size strings (e.g. "512M",
// "2G") for the --storage and --memory flags, via
// github.com/dustin/go-humanize rather than a hand-rolled suffix table.
package sizeparse

import (
	"fmt"

	"github.com/dustin/go-humanize"
)

// Bytes parses s ("512M", "2GiB", "1073741824") into a byte count. An
// empty string parses as 0 (caller-side "unset" sentinel).
func Bytes(s string) (int64, error) {
	if s == "" {
		return 0, nil
	}
	n, err := humanize.ParseBytes(s)
	if err != nil {
		return 0, fmt.Errorf("parse size %q: %w", s, err)
	}
	return int64(n), nil
}
