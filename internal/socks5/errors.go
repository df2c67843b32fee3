package socks5

import (
	"errors"
	"os"
	"syscall"

	txsocks5 "github.com/txthinking/socks5"
)

// ProtocolError is a violation of the SOCKS5 grammar or a request the relay
// cannot service. Any error that is not a ProtocolError is treated as an I/O
// error.
type ProtocolError uint8

const (
	ErrUnsupportedVersion ProtocolError = iota + 1
	ErrNoSupportedAuth
	ErrGeneral
	ErrCommandNotSupported
	ErrAddressTypeNotSupported
	ErrHostUnreachable
)

func (e ProtocolError) Error() string {
	switch e {
	case ErrUnsupportedVersion:
		return "socks5: unsupported version"
	case ErrNoSupportedAuth:
		return "socks5: no supported authentication method"
	case ErrGeneral:
		return "socks5: general failure"
	case ErrCommandNotSupported:
		return "socks5: command not supported"
	case ErrAddressTypeNotSupported:
		return "socks5: address type not supported"
	case ErrHostUnreachable:
		return "socks5: host unreachable"
	default:
		return "socks5: unknown protocol error"
	}
}

// StatusCode is the REP field of a SOCKS5 reply.
type StatusCode byte

const (
	StatusSuccess                 = StatusCode(txsocks5.RepSuccess)
	StatusGeneralFailure          = StatusCode(txsocks5.RepServerFailure)
	StatusConnectionNotAllowed    = StatusCode(txsocks5.RepNotAllowed)
	StatusNetworkUnreachable      = StatusCode(txsocks5.RepNetworkUnreachable)
	StatusHostUnreachable         = StatusCode(txsocks5.RepHostUnreachable)
	StatusConnectionRefused       = StatusCode(txsocks5.RepConnectionRefused)
	StatusTTLExpired              = StatusCode(txsocks5.RepTTLExpired)
	StatusCommandNotSupported     = StatusCode(txsocks5.RepCommandNotSupported)
	StatusAddressTypeNotSupported = StatusCode(txsocks5.RepAddressNotSupported)
)

func (s StatusCode) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusGeneralFailure:
		return "general_failure"
	case StatusConnectionNotAllowed:
		return "not_allowed"
	case StatusNetworkUnreachable:
		return "network_unreachable"
	case StatusHostUnreachable:
		return "host_unreachable"
	case StatusConnectionRefused:
		return "connection_refused"
	case StatusTTLExpired:
		return "ttl_expired"
	case StatusCommandNotSupported:
		return "command_not_supported"
	case StatusAddressTypeNotSupported:
		return "address_type_not_supported"
	default:
		return "unknown"
	}
}

// StatusOf maps err to the reply code sent to the client. A nil error is
// StatusSuccess.
func StatusOf(err error) StatusCode {
	if err == nil {
		return StatusSuccess
	}

	var pe ProtocolError
	if errors.As(err, &pe) {
		switch pe {
		case ErrHostUnreachable:
			return StatusHostUnreachable
		case ErrCommandNotSupported:
			return StatusCommandNotSupported
		case ErrAddressTypeNotSupported:
			return StatusAddressTypeNotSupported
		default:
			return StatusGeneralFailure
		}
	}

	switch {
	case errors.Is(err, syscall.ECONNREFUSED), errors.Is(err, syscall.ECONNRESET):
		return StatusConnectionRefused
	case errors.Is(err, os.ErrPermission):
		return StatusConnectionNotAllowed
	default:
		return StatusGeneralFailure
	}
}
