package socks5

import (
	"encoding/binary"
	"errors"
	"io"
)

// Reader reads exact byte counts from a stream. A stream that ends before the
// requested count has been read yields io.ErrUnexpectedEOF, even when no byte
// at all was available.
//
// Reader does not buffer ahead, so nothing past the last requested byte is
// consumed from the underlying stream.
type Reader struct {
	r   io.Reader
	buf [255]byte
}

// NewReader returns a Reader consuming r.
func NewReader(r io.Reader) *Reader {
	return &Reader{r: r}
}

// ReadByte reads a single byte.
func (r *Reader) ReadByte() (byte, error) {
	if err := r.fill(1); err != nil {
		return 0, err
	}
	return r.buf[0], nil
}

// ReadBytes reads exactly n bytes (n <= 255). The returned slice is only valid
// until the next call.
func (r *Reader) ReadBytes(n int) ([]byte, error) {
	if n > len(r.buf) {
		return nil, errors.New("socks5: read exceeds 255 bytes")
	}
	if err := r.fill(n); err != nil {
		return nil, err
	}
	return r.buf[:n], nil
}

// ReadUint16 reads a big-endian unsigned 16-bit integer.
func (r *Reader) ReadUint16() (uint16, error) {
	if err := r.fill(2); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(r.buf[:2]), nil
}

func (r *Reader) fill(n int) error {
	if n == 0 {
		return nil
	}
	_, err := io.ReadFull(r.r, r.buf[:n])
	if errors.Is(err, io.EOF) {
		return io.ErrUnexpectedEOF
	}
	return err
}
