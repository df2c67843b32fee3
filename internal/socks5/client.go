package socks5

import (
	"fmt"
	"net"
	"os"
	"syscall"

	txsocks5 "github.com/txthinking/socks5"
)

// Auth holds optional RFC 1929 credentials for an upstream SOCKS5 server.
// An empty Username offers only the "no authentication" method.
type Auth struct {
	Username string
	Password string
}

// ClientDial negotiates with a SOCKS5 server over an already established
// connection and asks it to CONNECT to address.
func ClientDial(conn net.Conn, auth Auth, address string) error {
	if err := ClientNegotiate(conn, auth); err != nil {
		return err
	}
	if err := ClientConnect(conn, address); err != nil {
		return err
	}
	return nil
}

func ClientNegotiate(conn net.Conn, auth Auth) error {
	methods := []byte{txsocks5.MethodNone}
	if auth.Username != "" {
		methods = append(methods, txsocks5.MethodUsernamePassword)
	}

	if _, err := txsocks5.NewNegotiationRequest(methods).WriteTo(conn); err != nil {
		return fmt.Errorf("write negotiation: %w", err)
	}

	neg, err := txsocks5.NewNegotiationReplyFrom(conn)
	if err != nil {
		return fmt.Errorf("read negotiation: %w", err)
	}

	switch neg.Method {
	case txsocks5.MethodNone:
		return nil
	case txsocks5.MethodUsernamePassword:
		if auth.Username == "" {
			return fmt.Errorf("server requires username/password: %w", ErrNoSupportedAuth)
		}

		if _, err := txsocks5.NewUserPassNegotiationRequest([]byte(auth.Username), []byte(auth.Password)).WriteTo(conn); err != nil {
			return fmt.Errorf("write userpass: %w", err)
		}
		rep, err := txsocks5.NewUserPassNegotiationReplyFrom(conn)
		if err != nil {
			return fmt.Errorf("read userpass: %w", err)
		}
		if rep.Status != txsocks5.UserPassStatusSuccess {
			return fmt.Errorf("userpass rejected: %w", os.ErrPermission)
		}
		return nil
	default:
		return fmt.Errorf("negotiation method %#x: %w", neg.Method, ErrNoSupportedAuth)
	}
}

// ClientConnect sends a CONNECT request for address. A failure reply is
// translated back into an error that StatusOf maps to the same reply code.
func ClientConnect(conn net.Conn, address string) error {
	atyp, dstAddr, dstPort, err := txsocks5.ParseAddress(address)
	if err != nil {
		return fmt.Errorf("parse address: %w", err)
	}
	if atyp == txsocks5.ATYPDomain {
		dstAddr = dstAddr[1:]
	}

	if _, err := txsocks5.NewRequest(txsocks5.CmdConnect, atyp, dstAddr, dstPort).WriteTo(conn); err != nil {
		return fmt.Errorf("write request: %w", err)
	}

	rep, err := txsocks5.NewReplyFrom(conn)
	if err != nil {
		return fmt.Errorf("read reply: %w", err)
	}
	if rep.Rep != txsocks5.RepSuccess {
		return fmt.Errorf("connect %s: %w", address, replyError(StatusCode(rep.Rep)))
	}
	return nil
}

func replyError(s StatusCode) error {
	switch s {
	case StatusHostUnreachable:
		return ErrHostUnreachable
	case StatusCommandNotSupported:
		return ErrCommandNotSupported
	case StatusAddressTypeNotSupported:
		return ErrAddressTypeNotSupported
	case StatusConnectionRefused:
		return syscall.ECONNREFUSED
	case StatusConnectionNotAllowed:
		return os.ErrPermission
	default:
		return ErrGeneral
	}
}
