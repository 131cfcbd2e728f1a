// Copyright 2016-2021 National Technology & Engineering Solutions of Sandia, LLC (NTESS).
// Under the terms of Contract DE-NA0003525 with NTESS, the U.S. Government retains certain
// rights in this software.

// Package ipam implements the persistent IPv4 allocator (C5): one bbolt
// bucket per subnet CIDR, opened fresh for each allocate/release so
// concurrent sandbox launches serialize on the DB's own file lock rather
// than on an in-process mutex. Grounded on the bucket-per-namespace,
// open-a-bolt-db-and-transact pattern used throughout podman's BoltState
// (vendor/github.com/containers/podman/v5/libpod/boltdb_state.go, pulled
// in via the lazydocker example), adapted from podman's much larger
// multi-bucket container/pod registry down to the single
// address-key-presence-means-allocated bucket the spec calls for.
package ipam

import (
	"fmt"
	"net"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/sandia-minimega/microbox/internal/options"
)

const openTimeout = 2 * time.Second

// Store is a handle to the on-disk allocation table. The underlying bbolt
// file is opened and closed within each Allocate/Release call; Store only
// remembers the path.
type Store struct {
	Path string
}

// New returns a Store backed by path. The file is created on first use.
func New(path string) *Store {
	return &Store{Path: path}
}

// Allocate picks the first free address in cidr, excluding the network and
// broadcast addresses and any address in reserved (typically the bridge
// IP). It returns ErrIpamExhausted if the subnet has no free address, or
// ErrIpamBusy if the DB could not be opened within the timeout.
func (s *Store) Allocate(cidr string, reserved []string) (net.IP, error) {
	_, ipnet, err := net.ParseCIDR(cidr)
	if err != nil {
		return nil, fmt.Errorf("%w: parse %q: %v", options.ErrInvalidOption, cidr, err)
	}
	if ipnet.IP.To4() == nil {
		return nil, fmt.Errorf("%w: %q is not IPv4", options.ErrInvalidOption, cidr)
	}

	reservedSet := make(map[string]bool, len(reserved)+2)
	for _, r := range reserved {
		reservedSet[r] = true
	}
	network := ipnet.IP.Mask(ipnet.Mask)
	reservedSet[network.String()] = true
	reservedSet[broadcast(ipnet).String()] = true

	db, err := s.open()
	if err != nil {
		return nil, err
	}
	defer db.Close()

	bucketName := []byte(cidr)
	var allocated net.IP

	err = db.Update(func(tx *bolt.Tx) error {
		bucket, err := tx.CreateBucketIfNotExists(bucketName)
		if err != nil {
			return err
		}

		ip := make(net.IP, len(network))
		copy(ip, network)
		incr(ip)

		for ipnet.Contains(ip) {
			key := ip.String()
			if !reservedSet[key] && bucket.Get([]byte(key)) == nil {
				if err := bucket.Put([]byte(key), []byte{1}); err != nil {
					return err
				}
				allocated = make(net.IP, len(ip))
				copy(allocated, ip)
				return nil
			}
			incr(ip)
		}
		return options.ErrIpamExhausted
	})

	if err != nil {
		if err == options.ErrIpamExhausted {
			return nil, fmt.Errorf("%w: %s has no free address", options.ErrIpamExhausted, cidr)
		}
		return nil, fmt.Errorf("%w: transaction failed: %v", options.ErrIpamBusy, err)
	}

	return allocated, nil
}

// Release deletes addr's key from cidr's bucket. Releasing an address that
// was never allocated (or already released) is not an error.
func (s *Store) Release(cidr string, addr net.IP) error {
	db, err := s.open()
	if err != nil {
		return err
	}
	defer db.Close()

	return db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(cidr))
		if bucket == nil {
			return nil
		}
		return bucket.Delete([]byte(addr.String()))
	})
}

func (s *Store) open() (*bolt.DB, error) {
	db, err := bolt.Open(s.Path, 0600, &bolt.Options{Timeout: openTimeout})
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", options.ErrIpamBusy, s.Path, err)
	}
	return db, nil
}

func incr(ip net.IP) {
	for i := len(ip) - 1; i >= 0; i-- {
		ip[i]++
		if ip[i] != 0 {
			return
		}
	}
}

func broadcast(ipnet *net.IPNet) net.IP {
	ip := make(net.IP, len(ipnet.IP))
	for i := range ip {
		ip[i] = ipnet.IP[i] | ^ipnet.Mask[i]
	}
	return ip
}
