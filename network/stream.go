package network

import (
	"bufio"
	"fmt"
	"net"
)

var (
	_ Channel = &StreamChannel{}
)

// StreamChannel implements Channel over a TCP connection, the
// socket-backed transport spec.md §9 names. It is modeled on p2p.Conn:
// a buffered reader/writer pair wrapping a net.Conn, framed the same way
// PipeChannel frames in-memory messages.
type StreamChannel struct {
	conn net.Conn
	r    *bufio.Reader
	w    *bufio.Writer
}

// NewStreamChannel wraps an established TCP connection.
func NewStreamChannel(conn net.Conn) *StreamChannel {
	return &StreamChannel{
		conn: conn,
		r:    bufio.NewReader(conn),
		w:    bufio.NewWriter(conn),
	}
}

// Dial connects to addr and returns a StreamChannel.
func Dial(addr string) (*StreamChannel, error) {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("network: dial %s: %w", addr, err)
	}
	return NewStreamChannel(conn), nil
}

// SendData writes a 4-byte length prefix followed by val.
func (s *StreamChannel) SendData(val []byte) error {
	var lenBuf [4]byte
	bo.PutUint32(lenBuf[:], uint32(len(val)))
	if _, err := s.w.Write(lenBuf[:]); err != nil {
		return fmt.Errorf("network: write length prefix: %w", err)
	}
	if len(val) > 0 {
		if _, err := s.w.Write(val); err != nil {
			return fmt.Errorf("network: write payload: %w", err)
		}
	}
	return nil
}

// SendUint32 writes val as 4 bytes, big-endian.
func (s *StreamChannel) SendUint32(val int) error {
	var buf [4]byte
	bo.PutUint32(buf[:], uint32(val))
	_, err := s.w.Write(buf[:])
	return err
}

// Flush flushes the buffered writer to the underlying connection.
func (s *StreamChannel) Flush() error {
	return s.w.Flush()
}

// ReceiveData reads one length-prefixed message.
func (s *StreamChannel) ReceiveData() ([]byte, error) {
	var lenBuf [4]byte
	if _, err := readFull(s.r, lenBuf[:]); err != nil {
		return nil, fmt.Errorf("network: read length prefix: %w", err)
	}
	n := bo.Uint32(lenBuf[:])
	buf := make([]byte, n)
	if n > 0 {
		if _, err := readFull(s.r, buf); err != nil {
			return nil, fmt.Errorf("network: read payload: %w", err)
		}
	}
	return buf, nil
}

// ReceiveUint32 reads 4 bytes, big-endian.
func (s *StreamChannel) ReceiveUint32() (int, error) {
	var buf [4]byte
	if _, err := readFull(s.r, buf[:]); err != nil {
		return 0, fmt.Errorf("network: read uint32: %w", err)
	}
	return int(bo.Uint32(buf[:])), nil
}

// Close closes the underlying connection.
func (s *StreamChannel) Close() error {
	return s.conn.Close()
}

func readFull(r *bufio.Reader, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := r.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}
