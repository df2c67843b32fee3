package proxy

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"syscall"
	"testing"
	"time"
)

// scriptedConn replays reads and records writes and shutdowns.
type scriptedConn struct {
	net.Conn

	reads     [][]byte
	readErr   error
	readCalls int

	written  bytes.Buffer
	writeErr error

	closeWrites, closeReads, closes int
}

func (c *scriptedConn) Read(p []byte) (int, error) {
	c.readCalls++
	if len(c.reads) == 0 {
		return 0, c.readErr
	}
	n := copy(p, c.reads[0])
	if c.reads[0] = c.reads[0][n:]; len(c.reads[0]) == 0 {
		c.reads = c.reads[1:]
	}
	return n, nil
}

func (c *scriptedConn) Write(p []byte) (int, error) {
	if c.writeErr != nil {
		return 0, c.writeErr
	}
	return c.written.Write(p)
}

func (c *scriptedConn) CloseWrite() error { c.closeWrites++; return nil }
func (c *scriptedConn) CloseRead() error  { c.closeReads++; return nil }
func (c *scriptedConn) Close() error      { c.closes++; return nil }

func (c *scriptedConn) RemoteAddr() net.Addr {
	return &net.TCPAddr{IP: net.IPv4(192, 0, 2, 1), Port: 1080}
}

func TestPipe(t *testing.T) {
	tests := []struct {
		name      string
		reads     [][]byte
		readErr   error
		writeErr  error
		want      string
		wantErr   error
		wantReads int
	}{
		{
			name:      "zero_length_read",
			reads:     [][]byte{[]byte("hello "), []byte("world")},
			want:      "hello world",
			wantReads: 3,
		},
		{
			name:      "eof",
			reads:     [][]byte{[]byte("data")},
			readErr:   io.EOF,
			want:      "data",
			wantReads: 2,
		},
		{
			name:      "read_error",
			reads:     [][]byte{[]byte("partial")},
			readErr:   syscall.ECONNRESET,
			want:      "partial",
			wantErr:   syscall.ECONNRESET,
			wantReads: 2,
		},
		{
			name:      "write_error",
			reads:     [][]byte{[]byte("lost"), []byte("never read")},
			writeErr:  syscall.EPIPE,
			wantErr:   syscall.EPIPE,
			wantReads: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := &scriptedConn{reads: tt.reads, readErr: tt.readErr}
			out := &scriptedConn{writeErr: tt.writeErr}

			n, err := Pipe(in, out)
			if tt.wantErr == nil && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Fatalf("got err %v want %v", err, tt.wantErr)
			}
			if got := out.written.String(); got != tt.want || n != int64(len(tt.want)) {
				t.Fatalf("wrote %q (%d) want %q", got, n, tt.want)
			}
			if in.readCalls != tt.wantReads {
				t.Fatalf("%d reads want %d", in.readCalls, tt.wantReads)
			}
			if out.closeWrites != 1 || in.closeReads != 1 {
				t.Fatalf("CloseWrite x%d, CloseRead x%d; want once each", out.closeWrites, in.closeReads)
			}
			if in.closes != 0 || out.closes != 0 {
				t.Fatalf("Pipe fully closed a connection")
			}
		})
	}
}

func TestPipeLargePayload(t *testing.T) {
	payload := bytes.Repeat([]byte("0123456789abcdef"), PipeBufferSize/4)
	in := &scriptedConn{reads: [][]byte{payload[:PipeBufferSize], payload[PipeBufferSize:]}, readErr: io.EOF}
	out := &scriptedConn{}

	n, err := Pipe(in, out)
	if err != nil {
		t.Fatal(err)
	}
	if n != int64(len(payload)) || !bytes.Equal(out.written.Bytes(), payload) {
		t.Fatalf("copied %d of %d bytes", n, len(payload))
	}
}

// tcpPair returns two ends of a loopback TCP connection.
func tcpPair(t *testing.T) (*net.TCPConn, *net.TCPConn) {
	t.Helper()

	ln, err := net.ListenTCP("tcp4", &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()

	accepted := make(chan *net.TCPConn, 1)
	go func() {
		c, err := ln.AcceptTCP()
		if err != nil {
			close(accepted)
			return
		}
		accepted <- c
	}()

	c, err := net.DialTCP("tcp4", nil, ln.Addr().(*net.TCPAddr))
	if err != nil {
		t.Fatal(err)
	}
	s, ok := <-accepted
	if !ok {
		t.Fatal("accept failed")
	}
	t.Cleanup(func() {
		_ = c.Close()
		_ = s.Close()
	})
	return c, s
}

func TestCopyBidirectionalHalfClose(t *testing.T) {
	client, relayClient := tcpPair(t)
	relayRemote, remote := tcpPair(t)

	done := make(chan error, 1)
	go func() {
		done <- CopyBidirectional(context.Background(), relayClient, relayRemote, nil)
	}()

	deadline := time.Now().Add(2 * time.Second)
	_ = client.SetDeadline(deadline)
	_ = remote.SetDeadline(deadline)

	// The client finishes its request first; the response must still flow.
	if _, err := client.Write([]byte("request")); err != nil {
		t.Fatal(err)
	}
	if err := client.CloseWrite(); err != nil {
		t.Fatal(err)
	}

	got, err := io.ReadAll(remote)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "request" {
		t.Fatalf("remote got %q", got)
	}

	if _, err := remote.Write([]byte("response")); err != nil {
		t.Fatal(err)
	}
	if err := remote.CloseWrite(); err != nil {
		t.Fatal(err)
	}

	got, err = io.ReadAll(client)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "response" {
		t.Fatalf("client got %q", got)
	}

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("unexpected relay error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("relay did not finish after both sides half-closed")
	}
}

func TestCopyBidirectionalContextCancel(t *testing.T) {
	_, relayClient := tcpPair(t)
	relayRemote, _ := tcpPair(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- CopyBidirectional(ctx, relayClient, relayRemote, nil)
	}()

	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("relay did not stop after cancel")
	}
}

// resetConn fails every Read as if the peer had reset the connection.
type resetConn struct {
	*net.TCPConn
}

func (c resetConn) Read([]byte) (int, error) {
	return 0, syscall.ECONNRESET
}

func TestCopyBidirectionalReportsEachDirection(t *testing.T) {
	_, relayClient := tcpPair(t)
	relayRemote, remote := tcpPair(t)

	type ended struct {
		direction string
		err       error
	}
	ends := make(chan ended, 2)
	done := make(chan error, 1)
	go func() {
		done <- CopyBidirectional(context.Background(), resetConn{relayClient}, relayRemote, func(direction string, _ int64, err error) {
			ends <- ended{direction, err}
		})
	}()

	// The failed upload is reported while the download is still open.
	select {
	case e := <-ends:
		if e.direction != "upload" || !errors.Is(e.err, syscall.ECONNRESET) {
			t.Fatalf("got %s %v, want upload ECONNRESET", e.direction, e.err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("upload failure was not reported")
	}
	select {
	case err := <-done:
		t.Fatalf("relay finished early: %v", err)
	default:
	}

	_ = remote.Close()

	select {
	case e := <-ends:
		if e.direction != "download" {
			t.Fatalf("got %s want download", e.direction)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("download end was not reported")
	}
	if err := <-done; !errors.Is(err, syscall.ECONNRESET) {
		t.Fatalf("relay error %v want ECONNRESET", err)
	}
}
