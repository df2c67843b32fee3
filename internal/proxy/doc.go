// Package proxy implements the listener side of the relay.
//
// It contains the SOCKS5 server (accept loop and per-connection handshake,
// connect and reply) and the connection plumbing it relies on: listeners with
// a fixed backlog and TCP keepalive, and the half-closing bidirectional copy.
package proxy
