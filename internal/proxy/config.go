package proxy

import (
	"net"
	"time"

	"github.com/die-net/socksrelay/internal/dialer"
)

type Config struct {
	// NegotiationTimeout bounds the SOCKS5 handshake with a client. Zero
	// means no timeout.
	NegotiationTimeout time.Duration

	KeepAlive net.KeepAliveConfig

	// MaxConns caps concurrently handled connections; the accept loop waits
	// for a slot before accepting. Zero means unlimited.
	MaxConns int

	Dialer dialer.Dialer
}
