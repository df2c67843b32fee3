// Package socks5 implements the server side of the SOCKS5 CONNECT handshake
// (RFC 1928, no-auth only) and a matching minimal client.
//
// The server half is a strict state machine: version/method negotiation,
// request parsing, then exactly one reply. Protocol constants come from
// github.com/txthinking/socks5 so both halves agree with a well-known
// independent implementation.
//
// Errors are either a ProtocolError (a SOCKS5 grammar violation or an
// unserviceable request) or an I/O error from the transport. StatusOf maps any
// error to the one-byte reply code sent to the client.
package socks5
