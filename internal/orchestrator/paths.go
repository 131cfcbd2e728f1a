// Copyright 2016-2021 National Technology & Engineering Solutions of Sandia, LLC (NTESS).
// Under the terms of Contract DE-NA0003525 with NTESS, the U.S. Government retains certain
// rights in this software.

package orchestrator

import "path/filepath"

const runRoot = "/var/run/microbox"

func sandboxDir(id string) string {
	return filepath.Join(runRoot, id)
}

func optionsPath(dir string) string {
	return filepath.Join(dir, "options.json")
}

func networkPath(dir string) string {
	return filepath.Join(dir, "network.json")
}

func ipamDBPath() string {
	return filepath.Join(runRoot, "ipam.db")
}
