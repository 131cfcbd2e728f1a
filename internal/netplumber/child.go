// Copyright 2016-2021 National Technology & Engineering Solutions of Sandia, LLC (NTESS).
// Under the terms of Contract DE-NA0003525 with NTESS, the U.S. Government retains certain
// rights in this software.

package netplumber

import (
	"fmt"
	"net"
	"time"

	"github.com/vishvananda/netlink"

	"github.com/sandia-minimega/microbox/internal/options"
)

const peerWaitTimeout = 5 * time.Second

// FinalizeChildSide runs inside the child's (already pivot_root'd) network
// namespace: it waits for the moved peer interface to appear, optionally
// renames it, brings loopback and the peer up, assigns the allocated
// address, and adds a default route via the bridge.
func FinalizeChildSide(peerVeth, renameTo string, containerIP net.IP, prefixLen int, bridgeIP net.IP) error {
	link, err := waitForLink(peerVeth)
	if err != nil {
		return fmt.Errorf("%w: %v", options.ErrNetlinkFailed, err)
	}

	if renameTo != "" && renameTo != peerVeth {
		if err := netlink.LinkSetName(link, renameTo); err != nil {
			return fmt.Errorf("%w: rename %s to %s: %v", options.ErrNetlinkFailed, peerVeth, renameTo, err)
		}
		link, err = netlink.LinkByName(renameTo)
		if err != nil {
			return fmt.Errorf("%w: lookup renamed link %s: %v", options.ErrNetlinkFailed, renameTo, err)
		}
	}

	lo, err := netlink.LinkByName("lo")
	if err != nil {
		return fmt.Errorf("%w: lookup lo: %v", options.ErrNetlinkFailed, err)
	}
	if err := netlink.LinkSetUp(lo); err != nil {
		return fmt.Errorf("%w: bring up lo: %v", options.ErrNetlinkFailed, err)
	}

	if err := netlink.LinkSetUp(link); err != nil {
		return fmt.Errorf("%w: bring up %s: %v", options.ErrNetlinkFailed, link.Attrs().Name, err)
	}

	addr := &netlink.Addr{IPNet: &net.IPNet{IP: containerIP, Mask: net.CIDRMask(prefixLen, 32)}}
	if err := netlink.AddrAdd(link, addr); err != nil {
		return fmt.Errorf("%w: assign %s: %v", options.ErrNetlinkFailed, containerIP, err)
	}

	route := &netlink.Route{
		LinkIndex: link.Attrs().Index,
		Gw:        bridgeIP,
	}
	if err := netlink.RouteAdd(route); err != nil {
		return fmt.Errorf("%w: add default route via %s: %v", options.ErrNetlinkFailed, bridgeIP, err)
	}

	return nil
}

// waitForLink polls for name to appear, since the peer end of a veth moved
// into a new netns shows up asynchronously relative to the netlink call
// that moved it.
func waitForLink(name string) (netlink.Link, error) {
	deadline := time.Now().Add(peerWaitTimeout)
	for {
		link, err := netlink.LinkByName(name)
		if err == nil {
			return link, nil
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("timed out waiting for %s to appear", name)
		}
		time.Sleep(50 * time.Millisecond)
	}
}
