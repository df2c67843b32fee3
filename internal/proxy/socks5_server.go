package proxy

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"

	"github.com/die-net/socksrelay/internal/dialer"
	"github.com/die-net/socksrelay/internal/metrics"
	"github.com/die-net/socksrelay/internal/socks5"
)

// SOCKS5Server accepts SOCKS5 clients and relays each CONNECT to its
// destination.
type SOCKS5Server struct {
	ctx                context.Context
	dialer             dialer.Dialer
	negotiationTimeout time.Duration
	slots              *semaphore.Weighted
	verbose            bool
}

// NewSOCKS5Server constructs a server. Relays still running when ctx is
// canceled are closed.
func NewSOCKS5Server(ctx context.Context, cfg Config, verbose bool) *SOCKS5Server {
	if ctx == nil {
		ctx = context.Background()
	}
	s := &SOCKS5Server{
		ctx:                ctx,
		dialer:             cfg.Dialer,
		negotiationTimeout: cfg.NegotiationTimeout,
		verbose:            verbose,
	}
	if cfg.MaxConns > 0 {
		s.slots = semaphore.NewWeighted(int64(cfg.MaxConns))
	}
	return s
}

// Serve accepts connections on ln and handles each one on its own goroutine.
// A failing connection never stops the loop; Serve only returns once ln is
// closed (nil if the server's context is done) or the context is canceled
// while waiting for a connection slot.
func (s *SOCKS5Server) Serve(ln net.Listener) error {
	var tempDelay time.Duration
	for {
		if err := s.acquire(); err != nil {
			return nil
		}

		c, err := ln.Accept()
		if err != nil {
			s.release()
			if errors.Is(err, net.ErrClosed) {
				if s.ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("accept: %w", err)
			}

			if tempDelay == 0 {
				tempDelay = 5 * time.Millisecond
			} else {
				tempDelay = min(2*tempDelay, time.Second)
			}
			log.WithError(err).Warnf("socks5: accept failed; retrying in %v", tempDelay)
			time.Sleep(tempDelay)
			continue
		}
		tempDelay = 0

		go s.handleConn(c)
	}
}

func (s *SOCKS5Server) acquire() error {
	if s.slots == nil {
		return nil
	}
	return s.slots.Acquire(s.ctx, 1)
}

func (s *SOCKS5Server) release() {
	if s.slots != nil {
		s.slots.Release(1)
	}
}

func (s *SOCKS5Server) handleConn(conn net.Conn) {
	defer s.release()
	defer conn.Close()

	metrics.ConnectionsTotal.Inc()
	metrics.ConnectionsActive.Inc()
	defer metrics.ConnectionsActive.Dec()

	entry := log.WithField("client", conn.RemoteAddr().String())
	entry.Debug("socks5: accepted")

	if err := s.serveConn(conn, entry); err != nil {
		s.logError(entry, err, "socks5: connection error")
	}
	entry.Debug("socks5: closed")
}

// logError reports per-connection failures at Warn only when verbose.
func (s *SOCKS5Server) logError(entry *log.Entry, err error, msg string) {
	if s.verbose {
		entry.WithError(err).Warn(msg)
	} else {
		entry.WithError(err).Debug(msg)
	}
}

func (s *SOCKS5Server) serveConn(conn net.Conn, entry *log.Entry) error {
	if s.negotiationTimeout > 0 {
		_ = conn.SetDeadline(time.Now().Add(s.negotiationTimeout))
	}

	req, err := socks5.ServerHandshake(conn)
	if err != nil {
		if errors.Is(err, socks5.ErrCommandNotSupported) {
			countReply(socks5.StatusOf(err))
		}
		return fmt.Errorf("handshake: %w", err)
	}

	if s.negotiationTimeout > 0 {
		_ = conn.SetDeadline(time.Time{})
	}

	dst := req.Address()
	entry = entry.WithField("dst", dst)
	entry.Debug("socks5: connect")

	ctx, cancel := context.WithCancel(s.ctx)
	defer cancel()

	up, err := s.dialer.DialContext(ctx, "tcp", dst)
	if err != nil {
		countReply(socks5.StatusOf(err))
		return fmt.Errorf("connect: %w", socks5.WriteErrorReply(conn, err))
	}
	defer up.Close()

	if err := socks5.WriteSuccessReply(conn, up.LocalAddr()); err != nil {
		countReply(socks5.StatusOf(err))
		return err
	}
	countReply(socks5.StatusSuccess)

	entry = entry.WithField("bind", up.LocalAddr().String())
	entry.Debug("socks5: relaying")

	// Each direction is logged as it ends, so the joined error is not
	// reported again.
	_ = CopyBidirectional(ctx, conn, up, func(direction string, n int64, err error) {
		e := entry.WithFields(log.Fields{"direction": direction, "bytes": n})
		if err != nil {
			s.logError(e, err, "socks5: relay error")
			return
		}
		e.Debug("socks5: half-closed")
	})
	return nil
}

func countReply(status socks5.StatusCode) {
	metrics.Replies.WithLabelValues(status.String()).Inc()
}
