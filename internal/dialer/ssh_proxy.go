package dialer

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"sync"
	"syscall"

	"golang.org/x/crypto/ssh"
	"golang.org/x/sync/singleflight"

	"github.com/die-net/socksrelay/internal/socks5"
	internalssh "github.com/die-net/socksrelay/internal/ssh"
)

// SSHProxyDialer reaches destinations through an SSH server, like ssh -D.
//
// One SSH transport is shared by every connection the dialer makes; each
// DialContext opens a "direct-tcpip" channel on it. The transport is
// established lazily on first use. If opening a channel fails for a reason
// other than the server refusing it, the transport is discarded and the dial
// is retried once on a fresh one.
type SSHProxyDialer struct {
	sshAddr   string
	sshConfig internalssh.ClientConfig
	direct    Dialer

	mu     sync.Mutex
	client *ssh.Client
	sf     singleflight.Group
}

// NewSSHProxyDialer constructs a dialer for the SSH server at sshAddr.
//
// Authentication uses password, the keys named by cfg.SSHKeyPath, or both.
// Host keys are checked against cfg.SSHKnownHostsPath.
func NewSSHProxyDialer(cfg Config, sshAddr, username, password string) (*SSHProxyDialer, error) {
	if sshAddr == "" {
		return nil, errors.New("ssh dialer: missing ssh address")
	}

	signers, err := internalssh.LoadSigners(cfg.SSHKeyPath)
	if err != nil {
		return nil, fmt.Errorf("ssh dialer: %w", err)
	}

	hostKeyCallback, err := internalssh.NewHostKeyCallback(cfg.SSHKnownHostsPath)
	if err != nil {
		return nil, fmt.Errorf("ssh dialer: %w", err)
	}

	sshConfig := internalssh.ClientConfig{
		Username:         username,
		Password:         password,
		Signers:          signers,
		HostKeyCallback:  hostKeyCallback,
		Timeout:          cfg.DialTimeout,
		HandshakeTimeout: cfg.NegotiationTimeout,
	}
	if err := sshConfig.Validate(); err != nil {
		return nil, fmt.Errorf("ssh dialer: %w", err)
	}

	return &SSHProxyDialer{
		sshAddr:   sshAddr,
		sshConfig: sshConfig,
		direct:    NewDirectDialer(cfg),
	}, nil
}

// ProxyAddr returns the SSH server host:port.
func (f *SSHProxyDialer) ProxyAddr() string {
	return f.sshAddr
}

// DialContext opens a channel to address. A channel the server refuses maps
// to "connection refused" or "not allowed" like a direct dial would.
//
// Canceling ctx closes the returned channel.
func (f *SSHProxyDialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	if !strings.HasPrefix(network, "tcp") {
		return nil, fmt.Errorf("ssh proxy dial %s %s: unsupported network", network, address)
	}

	client, err := f.getClient(ctx)
	if err != nil {
		return nil, err
	}

	upConn, err := client.DialContext(ctx, "tcp", address)
	if err != nil {
		// The transport is fine; the server refused this destination.
		var openErr *ssh.OpenChannelError
		if errors.As(err, &openErr) {
			return nil, fmt.Errorf("ssh proxy dial %s: %w", address, openChannelError(openErr))
		}

		f.invalidateClient(client)
		client, err2 := f.getClient(ctx)
		if err2 != nil {
			return nil, fmt.Errorf("ssh proxy dial %s: %w", address, err)
		}
		upConn, err = client.DialContext(ctx, "tcp", address)
		if err != nil {
			if errors.As(err, &openErr) {
				err = openChannelError(openErr)
			}
			return nil, fmt.Errorf("ssh proxy dial %s: %w", address, err)
		}
	}

	stop := context.AfterFunc(ctx, func() {
		_ = upConn.Close()
	})
	return &sshChannelConn{Conn: upConn, stop: stop}, nil
}

func openChannelError(e *ssh.OpenChannelError) error {
	switch e.Reason {
	case ssh.ConnectionFailed:
		return fmt.Errorf("%s: %w", e.Message, syscall.ECONNREFUSED)
	case ssh.Prohibited:
		return fmt.Errorf("%s: %w", e.Message, os.ErrPermission)
	default:
		return fmt.Errorf("%w: %w", e, socks5.ErrGeneral)
	}
}

// getClient returns the shared SSH client, connecting if there is none.
// Concurrent callers share one connection attempt, which carries on for the
// others if a caller's ctx is canceled.
func (f *SSHProxyDialer) getClient(ctx context.Context) (*ssh.Client, error) {
	f.mu.Lock()
	client := f.client
	f.mu.Unlock()
	if client != nil {
		return client, nil
	}

	ch := f.sf.DoChan("connect", func() (any, error) {
		f.mu.Lock()
		if c := f.client; c != nil {
			f.mu.Unlock()
			return c, nil
		}
		f.mu.Unlock()

		newClient, err := f.dialSSH(context.Background())
		if err != nil {
			return nil, err
		}

		f.mu.Lock()
		f.client = newClient
		f.mu.Unlock()
		return newClient, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*ssh.Client), nil
	}
}

func (f *SSHProxyDialer) dialSSH(ctx context.Context) (*ssh.Client, error) {
	conn, err := f.direct.DialContext(ctx, "tcp", f.sshAddr)
	if err != nil {
		return nil, fmt.Errorf("ssh transport dial: %w", err)
	}

	client, err := internalssh.NewClient(conn, f.sshConfig, f.sshAddr)
	if err != nil {
		return nil, fmt.Errorf("ssh transport: %w", err)
	}
	return client, nil
}

// invalidateClient drops and closes stale if it is still the shared client.
func (f *SSHProxyDialer) invalidateClient(stale *ssh.Client) {
	f.mu.Lock()
	if f.client != stale {
		f.mu.Unlock()
		return
	}
	f.client = nil
	f.mu.Unlock()
	_ = stale.Close()
}

// Close closes the shared SSH transport, if any, and every channel on it.
func (f *SSHProxyDialer) Close() error {
	f.mu.Lock()
	client := f.client
	f.client = nil
	f.mu.Unlock()
	if client == nil {
		return nil
	}
	return client.Close()
}

// sshChannelConn is one "direct-tcpip" channel. Its LocalAddr is the
// all-zero IPv4 address: the server does not report the socket it opened.
type sshChannelConn struct {
	net.Conn
	stop func() bool
}

func (c *sshChannelConn) Close() error {
	c.stop()
	return c.Conn.Close()
}

// CloseWrite sends EOF on the channel while leaving it readable.
func (c *sshChannelConn) CloseWrite() error {
	if cw, ok := c.Conn.(interface{ CloseWrite() error }); ok {
		return cw.CloseWrite()
	}
	return c.Conn.Close()
}
