package dialer

import (
	"context"
	"fmt"
	"net"
	"net/netip"
	"strconv"
	"strings"
)

type directDialer struct {
	cfg      Config
	resolver *Resolver
}

// NewDirectDialer returns a Dialer that connects straight to the destination
// over IPv4.
func NewDirectDialer(cfg Config) Dialer {
	return &directDialer{cfg: cfg, resolver: NewResolver(cfg.ResolveWorkers)}
}

// DialContext resolves the host part of address, keeps only IPv4 results and
// connects to the first one. The returned connection is a *net.TCPConn.
func (d *directDialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	if !strings.HasPrefix(network, "tcp") {
		return nil, fmt.Errorf("dial %s %s: unsupported network", network, address)
	}

	host, portStr, err := net.SplitHostPort(address)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", address, err)
	}
	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		return nil, fmt.Errorf("dial %s: invalid port: %w", address, err)
	}

	addrs, err := d.resolver.LookupIPv4(ctx, host)
	if err != nil {
		return nil, err
	}
	dst := netip.AddrPortFrom(addrs[0], uint16(port))

	// Keepalive is configured after the connect, from cfg alone.
	dd := net.Dialer{Timeout: d.cfg.DialTimeout, KeepAlive: -1}
	conn, err := dd.DialContext(ctx, "tcp4", dst.String())
	if err != nil {
		return nil, fmt.Errorf("dial %s (%s): %w", address, dst, err)
	}

	if tc, ok := conn.(*net.TCPConn); ok {
		_ = tc.SetKeepAliveConfig(d.cfg.KeepAlive)
	}
	return conn, nil
}
