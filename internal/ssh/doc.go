// Package ssh establishes the SSH transport used to chain outbound relay
// connections through an SSH server.
//
// Each destination is reached over its own "direct-tcpip" channel, the same
// mechanism as ssh -D, while all channels share one authenticated transport.
// Authentication can use a password, private key files or the SSH agent, and
// host keys are checked against a known_hosts file with trust on first use.
package ssh
