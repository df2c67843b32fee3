package socks5

import (
	"fmt"
	"io"
	"net"
	"net/netip"
	"strconv"
	"unicode/utf8"

	txsocks5 "github.com/txthinking/socks5"
)

// Request is a parsed CONNECT request. Host is either a dotted-decimal IPv4
// literal or a domain name.
type Request struct {
	Host string
	Port uint16
}

// Address returns the destination in host:port form.
func (r *Request) Address() string {
	return net.JoinHostPort(r.Host, strconv.Itoa(int(r.Port)))
}

// ServerHandshake negotiates the "no authentication" method with the client
// and then reads its CONNECT request.
//
// Only two failures are answered on the wire: a client offering no
// acceptable method gets method 0xFF, and a command other than CONNECT gets a
// command-not-supported reply. Every other failure, including an unsupported
// address type, is returned without a reply.
func ServerHandshake(rw io.ReadWriter) (*Request, error) {
	if err := ServerNegotiate(rw); err != nil {
		return nil, err
	}
	return ServerReadRequest(rw)
}

// ServerNegotiate reads the client's method list and selects "no
// authentication", or rejects the client with method 0xFF if it did not offer
// it.
func ServerNegotiate(rw io.ReadWriter) error {
	r := NewReader(rw)

	if err := readVersion(r); err != nil {
		return err
	}

	n, err := r.ReadByte()
	if err != nil {
		return fmt.Errorf("read method count: %w", err)
	}
	methods, err := r.ReadBytes(int(n))
	if err != nil {
		return fmt.Errorf("read methods: %w", err)
	}

	if !containsMethod(methods, txsocks5.MethodNone) {
		if err := writeNegotiationReply(rw, txsocks5.MethodUnsupportAll); err != nil {
			return err
		}
		return ErrNoSupportedAuth
	}
	return writeNegotiationReply(rw, txsocks5.MethodNone)
}

// ServerReadRequest reads a CONNECT request following a successful
// negotiation.
func ServerReadRequest(rw io.ReadWriter) (*Request, error) {
	r := NewReader(rw)

	if err := readVersion(r); err != nil {
		return nil, err
	}

	cmd, err := r.ReadByte()
	if err != nil {
		return nil, fmt.Errorf("read command: %w", err)
	}
	if cmd != txsocks5.CmdConnect {
		return nil, WriteErrorReply(rw, ErrCommandNotSupported)
	}

	if _, err := r.ReadByte(); err != nil {
		return nil, fmt.Errorf("read reserved: %w", err)
	}

	atyp, err := r.ReadByte()
	if err != nil {
		return nil, fmt.Errorf("read address type: %w", err)
	}
	host, err := readHost(r, atyp)
	if err != nil {
		return nil, err
	}

	port, err := r.ReadUint16()
	if err != nil {
		return nil, fmt.Errorf("read port: %w", err)
	}

	return &Request{Host: host, Port: port}, nil
}

func readVersion(r *Reader) error {
	ver, err := r.ReadByte()
	if err != nil {
		return fmt.Errorf("read version: %w", err)
	}
	if ver != txsocks5.Ver {
		return ErrUnsupportedVersion
	}
	return nil
}

func readHost(r *Reader, atyp byte) (string, error) {
	switch atyp {
	case txsocks5.ATYPIPv4:
		b, err := r.ReadBytes(4)
		if err != nil {
			return "", fmt.Errorf("read ipv4 address: %w", err)
		}
		return netip.AddrFrom4([4]byte(b)).String(), nil
	case txsocks5.ATYPDomain:
		n, err := r.ReadByte()
		if err != nil {
			return "", fmt.Errorf("read domain length: %w", err)
		}
		b, err := r.ReadBytes(int(n))
		if err != nil {
			return "", fmt.Errorf("read domain: %w", err)
		}
		if !utf8.Valid(b) {
			return "", fmt.Errorf("domain is not utf-8: %w", ErrAddressTypeNotSupported)
		}
		return string(b), nil
	default:
		return "", fmt.Errorf("address type %d: %w", atyp, ErrAddressTypeNotSupported)
	}
}

func writeNegotiationReply(w io.Writer, method byte) error {
	if _, err := txsocks5.NewNegotiationReply(method).WriteTo(w); err != nil {
		return fmt.Errorf("negotiation reply: %w", err)
	}
	return nil
}

func containsMethod(methods []byte, want byte) bool {
	for _, m := range methods {
		if m == want {
			return true
		}
	}
	return false
}
