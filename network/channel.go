// Package network implements the framed byte-channel transport spec.md
// §6 depends on and §9 collapses to "a single channel trait with two
// implementations (stream-backed, socket-backed)". It is modeled on the
// teacher codebase's ot.IO/ot.Pipe pair, generalized from OT's fixed-size label
// transfers to arbitrary-length framed messages.
package network

import (
	"encoding/binary"
	"fmt"
	"io"
)

var bo = binary.BigEndian

// Channel is the single trait both transport implementations satisfy;
// the core depends only on this interface (spec.md §9).
type Channel interface {
	// SendData sends a length-prefixed binary message.
	SendData(val []byte) error
	// SendUint32 sends a 4-byte unsigned integer.
	SendUint32(val int) error
	// Flush flushes any buffered output.
	Flush() error
	// ReceiveData receives one length-prefixed binary message.
	ReceiveData() ([]byte, error)
	// ReceiveUint32 receives a 4-byte unsigned integer.
	ReceiveUint32() (int, error)
	// Close closes the channel.
	Close() error
}

var (
	_ Channel = &PipeChannel{}
)

// PipeChannel implements Channel over an in-memory io.Pipe pair, the
// stream-backed implementation spec.md §9 names; it is the transport
// used by in-process tests, mirroring ot.Pipe.
type PipeChannel struct {
	r *io.PipeReader
	w *io.PipeWriter
}

// NewPipeChannel returns a connected pair of PipeChannels, one per side.
func NewPipeChannel() (*PipeChannel, *PipeChannel) {
	ar, aw := io.Pipe()
	br, bw := io.Pipe()
	return &PipeChannel{r: ar, w: bw}, &PipeChannel{r: br, w: aw}
}

// SendData writes a 4-byte big-endian length prefix followed by val.
func (p *PipeChannel) SendData(val []byte) error {
	var lenBuf [4]byte
	bo.PutUint32(lenBuf[:], uint32(len(val)))
	if _, err := p.w.Write(lenBuf[:]); err != nil {
		return fmt.Errorf("network: write length prefix: %w", err)
	}
	if len(val) == 0 {
		return nil
	}
	if _, err := p.w.Write(val); err != nil {
		return fmt.Errorf("network: write payload: %w", err)
	}
	return nil
}

// SendUint32 writes val as 4 bytes, big-endian.
func (p *PipeChannel) SendUint32(val int) error {
	var buf [4]byte
	bo.PutUint32(buf[:], uint32(val))
	_, err := p.w.Write(buf[:])
	return err
}

// Flush is a no-op: io.Pipe has no internal buffering to flush.
func (p *PipeChannel) Flush() error {
	return nil
}

// ReceiveData reads one length-prefixed message written by SendData.
func (p *PipeChannel) ReceiveData() ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(p.r, lenBuf[:]); err != nil {
		return nil, fmt.Errorf("network: read length prefix: %w", err)
	}
	n := bo.Uint32(lenBuf[:])
	buf := make([]byte, n)
	if n > 0 {
		if _, err := io.ReadFull(p.r, buf); err != nil {
			return nil, fmt.Errorf("network: read payload: %w", err)
		}
	}
	return buf, nil
}

// ReceiveUint32 reads 4 bytes, big-endian.
func (p *PipeChannel) ReceiveUint32() (int, error) {
	var buf [4]byte
	if _, err := io.ReadFull(p.r, buf[:]); err != nil {
		return 0, fmt.Errorf("network: read uint32: %w", err)
	}
	return int(bo.Uint32(buf[:])), nil
}

// Close closes the write side; the peer's next read returns io.EOF.
func (p *PipeChannel) Close() error {
	return p.w.Close()
}
