package transfer

import (
	"encoding/binary"
	"errors"
	"io"
)

// ErrFrameTooLarge guards the transfer port's control frames (handshake,
// login, file records) against a hostile or corrupt length prefix. File
// body bytes are read separately by Size, not through readFrame.
var ErrFrameTooLarge = errors.New("transfer: frame too large")

const maxFrameLength = 1 << 20

// readFrame reads one u32-BE-length-prefixed payload. Unlike the control
// port's frames, these carry no message-id (spec §4.9 shares the
// handshake/login wire shape with §4.8, just not the rest of the message set).
func readFrame(r io.Reader) ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	if n > maxFrameLength {
		return nil, ErrFrameTooLarge
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

func writeFrame(w io.Writer, payload []byte) error {
	buf := make([]byte, 4+len(payload))
	binary.BigEndian.PutUint32(buf[:4], uint32(len(payload)))
	copy(buf[4:], payload)
	_, err := w.Write(buf)
	return err
}
