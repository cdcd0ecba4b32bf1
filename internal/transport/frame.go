// Package transport implements the framed TCP wire: a 4-byte big-endian
// length prefix followed by one protobuf-encoded envelope per frame.
// The acceptor owns connection lifecycle and hands decoded frames to a
// Handler; it knows nothing about the chat protocol itself.
package transport

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// ErrFrameTooLarge is returned when an inbound frame header announces a
// payload above the configured limit.
var ErrFrameTooLarge = errors.New("frame too large")

// ReadFrame reads one length-prefixed frame. A zero-length frame is
// valid and yields an empty payload.
func ReadFrame(r io.Reader, maxSize int) ([]byte, error) {
	var hdr [4]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, err
	}
	size := binary.BigEndian.Uint32(hdr[:])
	if size > uint32(maxSize) {
		return nil, fmt.Errorf("frame of %d bytes over limit %d: %w", size, maxSize, ErrFrameTooLarge)
	}
	payload := make([]byte, size)
	if _, err := io.ReadFull(r, payload); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return nil, fmt.Errorf("reading frame payload: %w", err)
	}
	return payload, nil
}

// WriteFrame writes one length-prefixed frame.
func WriteFrame(w io.Writer, payload []byte) error {
	var hdr [4]byte
	binary.BigEndian.PutUint32(hdr[:], uint32(len(payload)))
	if _, err := w.Write(hdr[:]); err != nil {
		return fmt.Errorf("writing frame header: %w", err)
	}
	if _, err := w.Write(payload); err != nil {
		return fmt.Errorf("writing frame payload: %w", err)
	}
	return nil
}
