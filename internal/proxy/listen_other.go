//go:build !unix

package proxy

import "net"

func setBacklog(_ net.Listener, _ int) error {
	return nil
}
