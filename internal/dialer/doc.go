// Package dialer opens the outbound side of a relayed connection.
//
// The direct dialer resolves the destination on a bounded resolver pool, keeps
// only IPv4 results and connects to the first one. The upstream dialers chain
// the request through a SOCKS5 server, an HTTP(S) CONNECT proxy or an SSH
// server instead. Failures are returned as errors that socks5.StatusOf maps to
// the reply code sent to the client.
package dialer
