package dialer

import (
	"net"
	"time"
)

type Config struct {
	// DialTimeout bounds the outbound TCP connect. Zero means no timeout.
	DialTimeout time.Duration
	// NegotiationTimeout bounds the SOCKS5 exchange with an upstream proxy.
	// Zero means no timeout.
	NegotiationTimeout time.Duration

	KeepAlive net.KeepAliveConfig

	// ResolveWorkers caps concurrent name resolutions. Zero selects
	// DefaultResolveWorkers.
	ResolveWorkers int

	// SSHKeyPath is "agent", a private key file, or empty for password only.
	SSHKeyPath string
	// SSHKnownHostsPath is the known_hosts file. Empty disables host key
	// checking.
	SSHKnownHostsPath string
}
