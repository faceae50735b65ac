package main

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// ErrFrameTooShort is returned when a frame's declared length is below the
// protocol minimum. Per spec §4.1 this is always a fatal protocol error.
var ErrFrameTooShort = errors.New("frame shorter than the minimum frame length")

// ErrFrameTooLarge guards against a peer declaring an unreasonable payload
// size; it is also treated as a fatal protocol error.
var ErrFrameTooLarge = errors.New("frame larger than the maximum frame length")

// frame is the wire envelope used on the control port (the transfer port,
// in internal/transfer, frames its messages without a message-id): a u32
// big-endian length (of messageID + payload), a u32 big-endian
// message-id chosen by the request's sender and echoed back on the matching
// response, and an opaque tagged-JSON payload.
type frame struct {
	messageID uint32
	payload   []byte
}

// readFrame reads one frame from r. It never partially applies a frame: on
// any error the caller's parse state is unchanged because nothing has been
// decoded yet.
func readFrame(r io.Reader) (frame, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return frame{}, err
	}
	length := binary.BigEndian.Uint32(lenBuf[:])
	if length < 4 {
		return frame{}, fmt.Errorf("%w: declared length %d", ErrFrameTooShort, length)
	}
	if length > maxFrameLength {
		return frame{}, fmt.Errorf("%w: declared length %d", ErrFrameTooLarge, length)
	}

	var idBuf [4]byte
	if _, err := io.ReadFull(r, idBuf[:]); err != nil {
		return frame{}, err
	}
	messageID := binary.BigEndian.Uint32(idBuf[:])

	payloadLen := length - 4
	payload := make([]byte, payloadLen)
	if payloadLen > 0 {
		if _, err := io.ReadFull(r, payload); err != nil {
			return frame{}, err
		}
	}
	return frame{messageID: messageID, payload: payload}, nil
}

// writeFrame writes a single frame to w. Writes are not buffered here; the
// caller (the writer task) owns batching/flushing policy.
func writeFrame(w io.Writer, messageID uint32, payload []byte) error {
	total := 4 + len(payload)
	if total > maxFrameLength {
		return fmt.Errorf("%w: payload length %d", ErrFrameTooLarge, len(payload))
	}
	buf := make([]byte, 8+len(payload))
	binary.BigEndian.PutUint32(buf[0:4], uint32(total))
	binary.BigEndian.PutUint32(buf[4:8], messageID)
	copy(buf[8:], payload)
	_, err := w.Write(buf)
	return err
}
