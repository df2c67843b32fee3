package socks5

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"net/netip"

	txsocks5 "github.com/txthinking/socks5"
)

// ReplyLen is the size of every reply written by this package: replies always
// carry an IPv4 bound address.
const ReplyLen = 10

// EncodeReply builds VER REP RSV ATYP BND.ADDR BND.PORT with an IPv4 bound
// address. A non-IPv4 bind is encoded as 0.0.0.0.
func EncodeReply(status StatusCode, bind netip.AddrPort) [ReplyLen]byte {
	var b [ReplyLen]byte
	b[0] = txsocks5.Ver
	b[1] = byte(status)
	b[2] = 0x00
	b[3] = txsocks5.ATYPIPv4
	if a := bind.Addr().Unmap(); a.Is4() {
		ip := a.As4()
		copy(b[4:8], ip[:])
		binary.BigEndian.PutUint16(b[8:], bind.Port())
	}
	return b
}

// WriteSuccessReply writes a success reply using bind, the local address of
// the outbound connection. If bind is not an IPv4 TCP address, a general
// failure reply is written instead and an ErrGeneral error is returned.
func WriteSuccessReply(w io.Writer, bind net.Addr) error {
	ap, ok := ipv4AddrPort(bind)
	if !ok {
		return WriteErrorReply(w, fmt.Errorf("bound address %v is not ipv4: %w", bind, ErrGeneral))
	}

	b := EncodeReply(StatusSuccess, ap)
	if _, err := w.Write(b[:]); err != nil {
		return fmt.Errorf("success reply: %w", err)
	}
	return nil
}

// WriteErrorReply writes a failure reply with an all-zero bound address and
// the status StatusOf(cause). It returns cause, joined with the write error if
// the reply could not be written.
func WriteErrorReply(w io.Writer, cause error) error {
	b := EncodeReply(StatusOf(cause), netip.AddrPort{})
	if _, err := w.Write(b[:]); err != nil {
		return errors.Join(cause, fmt.Errorf("error reply: %w", err))
	}
	return cause
}

func ipv4AddrPort(a net.Addr) (netip.AddrPort, bool) {
	ta, ok := a.(*net.TCPAddr)
	if !ok || ta == nil {
		return netip.AddrPort{}, false
	}
	ap := ta.AddrPort()
	ip := ap.Addr().Unmap()
	if !ip.Is4() {
		return netip.AddrPort{}, false
	}
	return netip.AddrPortFrom(ip, ap.Port()), true
}
