package proxy

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"

	"golang.org/x/sync/errgroup"

	"github.com/die-net/socksrelay/internal/metrics"
)

// PipeBufferSize is the largest chunk a Pipe reads before writing it out.
const PipeBufferSize = 65536

var pipeBuffers = newBufferPool(PipeBufferSize)

type closeWriter interface {
	CloseWrite() error
}

type closeReader interface {
	CloseRead() error
}

// Pipe copies from in to out until in reports end-of-stream (a zero-length
// read or io.EOF) or either side fails. It then shuts down the write side of
// out and the read side of in, once, ignoring errors. A connection without
// CloseWrite is closed instead so its peer still sees end-of-stream.
//
// It returns the number of bytes written to out and the read or write error
// that ended the copy, or nil on a clean end-of-stream.
func Pipe(in, out net.Conn) (int64, error) {
	buf := pipeBuffers.Get()
	defer pipeBuffers.Put(buf)

	var (
		written int64
		err     error
	)
	for {
		nr, rerr := in.Read(buf)
		if nr > 0 {
			nw, werr := out.Write(buf[:nr])
			written += int64(nw)
			if werr != nil {
				err = fmt.Errorf("write %s: %w", out.RemoteAddr(), werr)
				break
			}
		}
		if rerr != nil {
			if !errors.Is(rerr, io.EOF) {
				err = fmt.Errorf("read %s: %w", in.RemoteAddr(), rerr)
			}
			break
		}
		if nr == 0 {
			break
		}
	}

	if cw, ok := out.(closeWriter); ok {
		_ = cw.CloseWrite()
	} else {
		_ = out.Close()
	}
	if cr, ok := in.(closeReader); ok {
		_ = cr.CloseRead()
	}

	return written, err
}

// DirectionFunc is told about each direction of CopyBidirectional as soon as
// it ends, with the bytes it relayed and the error that stopped it.
type DirectionFunc func(direction string, n int64, err error)

// CopyBidirectional relays client and remote with one Pipe per direction and
// returns when both have finished. The directions run independently: one
// ending only half-closes its own sockets. If done is not nil it is called
// from each direction's goroutine as that direction ends. Errors from both
// directions are joined. Canceling ctx closes both connections.
//
// The caller still owns, and must close, both connections.
func CopyBidirectional(ctx context.Context, client, remote net.Conn, done DirectionFunc) error {
	stop := context.AfterFunc(ctx, func() {
		_ = client.Close()
		_ = remote.Close()
	})
	defer stop()

	pipe := func(direction string, in, out net.Conn) error {
		n, err := Pipe(in, out)
		metrics.RelayedBytes.WithLabelValues(direction).Add(float64(n))
		if err != nil {
			err = fmt.Errorf("%s: %w", direction, err)
		}
		if done != nil {
			done(direction, n, err)
		}
		return err
	}

	var upErr, downErr error
	var g errgroup.Group
	g.Go(func() error {
		upErr = pipe("upload", client, remote)
		return nil
	})
	g.Go(func() error {
		downErr = pipe("download", remote, client)
		return nil
	})
	_ = g.Wait()

	return errors.Join(upErr, downErr)
}
