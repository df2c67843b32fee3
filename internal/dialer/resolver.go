package dialer

import (
	"context"
	"fmt"
	"net"
	"net/netip"

	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"

	"github.com/die-net/socksrelay/internal/socks5"
)

// DefaultResolveWorkers is the number of concurrent lookups a Resolver allows
// when none is configured.
const DefaultResolveWorkers = 16

type lookupFunc func(ctx context.Context, network, host string) ([]netip.Addr, error)

// Resolver maps destination hosts to IPv4 addresses.
//
// Lookups run on a bounded pool: at most the configured number of lookups are
// in flight, and concurrent requests for the same host share one lookup.
// Callers can give up early when their context is canceled while the lookup
// continues for other waiters.
type Resolver struct {
	lookup lookupFunc
	sem    *semaphore.Weighted
	sf     singleflight.Group
}

// NewResolver returns a Resolver backed by net.DefaultResolver.
func NewResolver(workers int) *Resolver {
	return newResolver(workers, net.DefaultResolver.LookupNetIP)
}

func newResolver(workers int, lookup lookupFunc) *Resolver {
	if workers <= 0 {
		workers = DefaultResolveWorkers
	}
	return &Resolver{lookup: lookup, sem: semaphore.NewWeighted(int64(workers))}
}

// LookupIPv4 returns the IPv4 addresses of host in resolver order. IP
// literals are returned without a lookup. If no IPv4 address remains the
// error wraps socks5.ErrHostUnreachable.
func (r *Resolver) LookupIPv4(ctx context.Context, host string) ([]netip.Addr, error) {
	if ip, err := netip.ParseAddr(host); err == nil {
		return filterIPv4(host, []netip.Addr{ip})
	}

	ch := r.sf.DoChan(host, func() (any, error) {
		// Detached from the triggering caller so other waiters still get a
		// result if it gives up.
		ctx := context.Background()
		if err := r.sem.Acquire(ctx, 1); err != nil {
			return nil, err
		}
		defer r.sem.Release(1)
		return r.lookup(ctx, "ip", host)
	})

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("resolve %s: %w", host, ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return nil, fmt.Errorf("resolve %s: %w", host, res.Err)
		}
		return filterIPv4(host, res.Val.([]netip.Addr))
	}
}

func filterIPv4(host string, addrs []netip.Addr) ([]netip.Addr, error) {
	var v4 []netip.Addr
	for _, a := range addrs {
		if a = a.Unmap(); a.Is4() {
			v4 = append(v4, a)
		}
	}
	if len(v4) == 0 {
		return nil, fmt.Errorf("resolve %s: no ipv4 address: %w", host, socks5.ErrHostUnreachable)
	}
	return v4, nil
}
