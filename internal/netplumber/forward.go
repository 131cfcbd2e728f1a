// Copyright 2016-2021 National Technology & Engineering Solutions of Sandia, LLC (NTESS).
// Under the terms of Contract DE-NA0003525 with NTESS, the U.S. Government retains certain
// rights in this software.

package netplumber

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/exec"

	"github.com/vishvananda/netlink"
	"sigs.k8s.io/knftables"

	"github.com/sandia-minimega/microbox/internal/options"
)

// EnableIPForwarding flips net.ipv4.ip_forward on, following the same
// direct-sysfs-write idiom as the teacher's cgroup/sysctl writers rather
// than shelling out to sysctl(8).
func EnableIPForwarding() error {
	if err := os.WriteFile("/proc/sys/net/ipv4/ip_forward", []byte("1"), 0644); err != nil {
		return fmt.Errorf("%w: enable ip forwarding: %v", options.ErrNetlinkFailed, err)
	}
	return nil
}

// InstallFirewallRules inserts the FORWARD and POSTROUTING rules described
// in the spec, so bridged sandboxes can reach the outside world and nothing
// else reaches in uninvited. It prefers iptables, matching the teacher's
// external-tool-wrapping idiom (internal/bridge/process.go's processWrapper)
// generalized from ovs-vsctl/ovs-ofctl; on an nftables-only host (no
// iptables binary, or iptables-nft's compat shim absent) it falls back to
// driving nftables directly through knftables, the same library the rest of
// the example pack vendors for this (k3s's and Singularity's CNI stacks).
func InstallFirewallRules(subnetCIDR string) error {
	egress, err := defaultEgressInterface()
	if err != nil {
		return fmt.Errorf("%w: %v", options.ErrFirewallFailed, err)
	}

	if hasIPTables() {
		return installFirewallRulesIPTables(subnetCIDR, egress)
	}
	return installFirewallRulesNFT(subnetCIDR, egress)
}

// hasIPTables reports whether the iptables(8) binary is on PATH.
func hasIPTables() bool {
	_, err := exec.LookPath("iptables")
	return err == nil
}

// installFirewallRulesIPTables inserts rules at the top of their chains so
// they take precedence over any rules installed by other software (Docker's
// rules, notably). Insertion uses -I (insert) rather than -A (append) and is
// itself idempotent thanks to -C (check-then-insert).
func installFirewallRulesIPTables(subnetCIDR, egress string) error {
	rules := [][]string{
		{"-I", "FORWARD", "1", "-i", bridgeName, "-o", egress, "-j", "ACCEPT"},
		{"-I", "FORWARD", "1", "-i", egress, "-o", bridgeName, "-m", "conntrack", "--ctstate", "ESTABLISHED,RELATED", "-j", "ACCEPT"},
		{"-I", "FORWARD", "1", "-i", bridgeName, "-o", bridgeName, "-j", "ACCEPT"},
		{"-t", "nat", "-I", "POSTROUTING", "1", "-s", subnetCIDR, "!", "-o", bridgeName, "-j", "MASQUERADE"},
	}

	for _, r := range rules {
		if err := insertIfAbsent(r); err != nil {
			return fmt.Errorf("%w: %v", options.ErrFirewallFailed, err)
		}
	}

	return nil
}

// insertIfAbsent checks for the rule (swapping the -I/insert-position
// prefix for a -C/check one) before inserting, so repeated sandbox launches
// never pile up duplicate rules.
func insertIfAbsent(insertArgs []string) error {
	checkArgs := toCheckArgs(insertArgs)
	if err := exec.Command("iptables", checkArgs...).Run(); err == nil {
		return nil // already present
	}

	out, err := exec.Command("iptables", insertArgs...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("iptables %v: %v: %s", insertArgs, err, out)
	}
	return nil
}

// toCheckArgs rewrites an "-I <chain> <pos> <match...> -j <target>" arg
// list into "-C <chain> <match...> -j <target>", dropping the insert
// position; an optional leading "-t <table>" is kept as is.
func toCheckArgs(insertArgs []string) []string {
	out := make([]string, 0, len(insertArgs))
	for i := 0; i < len(insertArgs); i++ {
		if insertArgs[i] == "-I" {
			out = append(out, "-C", insertArgs[i+1])
			i += 2 // skip chain and position
			continue
		}
		out = append(out, insertArgs[i])
	}
	return out
}

// nftTable is the microbox-owned nftables table; everything in it is
// rebuilt on every InstallFirewallRules call, so reruns stay idempotent the
// same way the iptables path's check-then-insert does.
const nftTable = "microbox"

// installFirewallRulesNFT rebuilds the microbox nftables table from
// scratch via a single transaction. Chains are flushed before their rules
// are re-added, so a second call (another bridged sandbox starting up)
// never duplicates rules the way a naive nft add would.
func installFirewallRulesNFT(subnetCIDR, egress string) error {
	ctx := context.Background()
	nft, err := knftables.New(knftables.InetFamily, nftTable)
	if err != nil {
		return fmt.Errorf("%w: connect to nftables: %v", options.ErrFirewallFailed, err)
	}

	tx := nft.NewTransaction()
	tx.Add(&knftables.Table{
		Comment: knftables.PtrTo("microbox bridge forwarding and masquerade"),
	})

	tx.Add(&knftables.Chain{
		Name:     "forward",
		Type:     knftables.PtrTo(knftables.FilterType),
		Hook:     knftables.PtrTo(knftables.ForwardHook),
		Priority: knftables.PtrTo(knftables.FilterPriority),
	})
	tx.Flush(&knftables.Chain{Name: "forward"})
	tx.Add(&knftables.Rule{
		Chain: "forward",
		Rule:  knftables.Concat("iifname", bridgeName, "oifname", egress, "accept"),
	})
	tx.Add(&knftables.Rule{
		Chain: "forward",
		Rule:  knftables.Concat("iifname", egress, "oifname", bridgeName, "ct state established,related accept"),
	})
	tx.Add(&knftables.Rule{
		Chain: "forward",
		Rule:  knftables.Concat("iifname", bridgeName, "oifname", bridgeName, "accept"),
	})

	tx.Add(&knftables.Chain{
		Name:     "postrouting",
		Type:     knftables.PtrTo(knftables.NATType),
		Hook:     knftables.PtrTo(knftables.PostroutingHook),
		Priority: knftables.PtrTo(knftables.SNATPriority),
	})
	tx.Flush(&knftables.Chain{Name: "postrouting"})
	tx.Add(&knftables.Rule{
		Chain: "postrouting",
		Rule:  knftables.Concat("ip saddr", subnetCIDR, "oifname !=", bridgeName, "masquerade"),
	})

	if err := nft.Run(ctx, tx); err != nil {
		return fmt.Errorf("%w: apply nftables rules: %v", options.ErrFirewallFailed, err)
	}
	return nil
}

// defaultEgressInterface finds the interface that would carry traffic to a
// well-known external address, falling back to a scan of the main routing
// table for any default route.
func defaultEgressInterface() (string, error) {
	probe := net.ParseIP(defaultEgressProbe)
	routes, err := netlink.RouteGet(probe)
	if err == nil && len(routes) > 0 {
		link, err := netlink.LinkByIndex(routes[0].LinkIndex)
		if err == nil {
			return link.Attrs().Name, nil
		}
	}

	routes, err = netlink.RouteList(nil, netlink.FAMILY_V4)
	if err != nil {
		return "", fmt.Errorf("list routes: %v", err)
	}
	for _, r := range routes {
		if r.Dst == nil {
			link, err := netlink.LinkByIndex(r.LinkIndex)
			if err == nil {
				return link.Attrs().Name, nil
			}
		}
	}

	return "", fmt.Errorf("no default route found")
}
