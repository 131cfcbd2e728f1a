// Copyright 2016-2021 National Technology & Engineering Solutions of Sandia, LLC (NTESS).
// Under the terms of Contract DE-NA0003525 with NTESS, the U.S. Government retains certain
// rights in this software.

// Package netplumber implements the bridged-networking component (C6):
// bridge creation, veth pair setup, and child-side interface finalization,
// built on github.com/vishvananda/netlink rather than the teacher's
// ovs-vsctl/ovs-ofctl shell-outs (internal/bridge/ovs.go equivalent), since
// the spec calls for a plain Linux bridge, not an Open vSwitch one. The
// "ensure it exists, otherwise assert its state" bridge-create idiom and
// the deterministic host/peer name derivation mirror
// internal/bridge/bridges.go's Bridges.NewBridge/getTap naming, and the
// external-tool-wrapping of firewall rule installation follows
// internal/bridge/process.go's processWrapper.
package netplumber

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"

	"github.com/vishvananda/netlink"

	"github.com/sandia-minimega/microbox/internal/options"
)

const (
	bridgeName  = "mbx0"
	bridgeCIDR  = "172.30.0.0/24"
	defaultEgressProbe = "8.8.8.8"
)

// vethNames derives a deterministic, interface-name-limit-safe host/peer
// veth pair name from the child PID, following the same "short deterministic
// suffix" idea as the teacher's per-VM tap naming.
func vethNames(pid int) (host, peer string) {
	return fmt.Sprintf("mbxh%d", pid), fmt.Sprintf("mbxp%d", pid)
}

// EnsureBridge creates the shared bridge if it doesn't already exist and
// assigns it the fixed bridge address; if it already exists, it only makes
// sure the bridge is up and carries the address.
func EnsureBridge() (*netlink.Bridge, net.IP, error) {
	br, err := findBridge(bridgeName)
	if err == nil {
		if err := netlink.LinkSetUp(br); err != nil {
			return nil, nil, fmt.Errorf("%w: bring up %s: %v", options.ErrNetlinkFailed, bridgeName, err)
		}
		addr, ipnet, perr := net.ParseCIDR(bridgeCIDR)
		if perr != nil {
			return nil, nil, fmt.Errorf("%w: parse bridge CIDR %q: %v", options.ErrNetlinkFailed, bridgeCIDR, perr)
		}
		ipnet.IP = addr
		if err := netlink.AddrReplace(br, &netlink.Addr{IPNet: ipnet}); err != nil {
			return nil, nil, fmt.Errorf("%w: assign address to %s: %v", options.ErrNetlinkFailed, bridgeName, err)
		}
		return br, addr, nil
	}

	la := netlink.NewLinkAttrs()
	la.Name = bridgeName
	br = &netlink.Bridge{LinkAttrs: la}

	if err := netlink.LinkAdd(br); err != nil {
		return nil, nil, fmt.Errorf("%w: create bridge %s: %v", options.ErrNetlinkFailed, bridgeName, err)
	}

	addr, ipnet, err := net.ParseCIDR(bridgeCIDR)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: parse bridge CIDR %q: %v", options.ErrNetlinkFailed, bridgeCIDR, err)
	}
	ipnet.IP = addr
	nlAddr := &netlink.Addr{IPNet: ipnet}
	if err := netlink.AddrAdd(br, nlAddr); err != nil {
		return nil, nil, fmt.Errorf("%w: assign address to %s: %v", options.ErrNetlinkFailed, bridgeName, err)
	}

	if err := netlink.LinkSetUp(br); err != nil {
		return nil, nil, fmt.Errorf("%w: bring up %s: %v", options.ErrNetlinkFailed, bridgeName, err)
	}

	return br, addr, nil
}

func findBridge(name string) (*netlink.Bridge, error) {
	link, err := netlink.LinkByName(name)
	if err != nil {
		return nil, err
	}
	br, ok := link.(*netlink.Bridge)
	if !ok {
		return nil, fmt.Errorf("%s exists but is not a bridge", name)
	}
	return br, nil
}

// SetupHostSide creates the veth pair, enslaves the host end to the
// bridge, and moves the peer end into the child's network namespace. It
// must run before the child proceeds past its sync-pipe read, like the
// rest of the parent-side setup in this spec.
func SetupHostSide(childPid int, bridge *netlink.Bridge) (hostVeth, peerVeth string, err error) {
	hostVeth, peerVeth = vethNames(childPid)

	la := netlink.NewLinkAttrs()
	la.Name = hostVeth
	veth := &netlink.Veth{
		LinkAttrs: la,
		PeerName:  peerVeth,
	}

	if err := netlink.LinkAdd(veth); err != nil {
		return "", "", fmt.Errorf("%w: create veth pair %s/%s: %v", options.ErrNetlinkFailed, hostVeth, peerVeth, err)
	}

	hostLink, err := netlink.LinkByName(hostVeth)
	if err != nil {
		return "", "", fmt.Errorf("%w: lookup %s: %v", options.ErrNetlinkFailed, hostVeth, err)
	}
	if err := netlink.LinkSetMaster(hostLink, bridge); err != nil {
		return "", "", fmt.Errorf("%w: enslave %s to %s: %v", options.ErrNetlinkFailed, hostVeth, bridgeName, err)
	}
	if err := netlink.LinkSetUp(hostLink); err != nil {
		return "", "", fmt.Errorf("%w: bring up %s: %v", options.ErrNetlinkFailed, hostVeth, err)
	}

	peerLink, err := netlink.LinkByName(peerVeth)
	if err != nil {
		return "", "", fmt.Errorf("%w: lookup %s: %v", options.ErrNetlinkFailed, peerVeth, err)
	}
	if err := netlink.LinkSetNsPid(peerLink, childPid); err != nil {
		return "", "", fmt.Errorf("%w: move %s into pid %d's netns: %v", options.ErrNetlinkFailed, peerVeth, childPid, err)
	}

	return hostVeth, peerVeth, nil
}

// StaleHostVeths lists host veths matching this package's naming scheme
// (mbxh<pid>) whose owning pid is no longer alive, for opportunistic
// startup GC (orchestrator.GC). It never returns the bridge itself or any
// interface outside the mbxh* namespace.
func StaleHostVeths() ([]string, error) {
	links, err := netlink.LinkList()
	if err != nil {
		return nil, fmt.Errorf("%w: list links: %v", options.ErrNetlinkFailed, err)
	}

	var stale []string
	for _, link := range links {
		name := link.Attrs().Name
		pidStr := strings.TrimPrefix(name, "mbxh")
		if pidStr == name {
			continue // not one of ours
		}
		pid, err := strconv.Atoi(pidStr)
		if err != nil {
			continue
		}
		if _, err := os.Stat(fmt.Sprintf("/proc/%d", pid)); err == nil {
			continue // owner still alive
		}
		stale = append(stale, name)
	}
	return stale, nil
}

// Teardown removes the host veth end (which takes the peer with it, since
// they're one pair) once the sandbox has exited. The bridge itself is left
// in place; it is shared across sandboxes.
func Teardown(hostVeth string) error {
	link, err := netlink.LinkByName(hostVeth)
	if err != nil {
		return nil // already gone
	}
	if err := netlink.LinkDel(link); err != nil {
		return fmt.Errorf("%w: delete %s: %v", options.ErrNetlinkFailed, hostVeth, err)
	}
	return nil
}
