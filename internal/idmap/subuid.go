// Copyright 2016-2021 National Technology & Engineering Solutions of Sandia, LLC (NTESS).
// Under the terms of Contract DE-NA0003525 with NTESS, the U.S. Government retains certain
// rights in this software.

package idmap

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// subordinateRange parses /etc/subuid or /etc/subgid for the entry matching
// user, returning (start, length). Format: "name:start:length" per line.
func subordinateRange(path, user string) (int, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, fmt.Errorf("open %s: %w (required for rootless user namespaces)", path, err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Split(line, ":")
		if len(fields) != 3 || fields[0] != user {
			continue
		}
		start, err := strconv.Atoi(fields[1])
		if err != nil {
			continue
		}
		length, err := strconv.Atoi(fields[2])
		if err != nil {
			continue
		}
		return start, length, nil
	}
	if err := sc.Err(); err != nil {
		return 0, 0, err
	}

	return 0, 0, fmt.Errorf("no subordinate id range for %q in %s", user, path)
}
