package proxy

import (
	"net"
	"testing"
)

func TestListenTCPAppliesKeepAlive(t *testing.T) {
	ln, err := ListenTCP("tcp", "127.0.0.1:0", net.KeepAliveConfig{Enable: true})
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()

	if _, ok := ln.(*KeepAliveListener); !ok {
		t.Fatalf("got %T want *KeepAliveListener", ln)
	}

	accepted := make(chan error, 1)
	go func() {
		c, err := ln.Accept()
		if err == nil {
			_ = c.Close()
		}
		accepted <- err
	}()

	c, err := net.Dial("tcp", ln.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	if err := <-accepted; err != nil {
		t.Fatal(err)
	}
}

func TestListenTCPInvalidAddress(t *testing.T) {
	if _, err := ListenTCP("tcp", "127.0.0.1:-1", net.KeepAliveConfig{}); err == nil {
		t.Fatal("expected error")
	}
}
