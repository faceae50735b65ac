package main

import (
	"encoding/json"
	"io"
)

// decodeClientMessage unmarshals one frame payload into the tagged-union
// clientMessage.
func decodeClientMessage(payload []byte) (clientMessage, error) {
	var msg clientMessage
	err := json.Unmarshal(payload, &msg)
	return msg, err
}

// writeServerMessage marshals msg and writes it as a frame correlated to
// messageID (0 for an uncorrelated push).
func writeServerMessage(w io.Writer, messageID uint32, msg serverMessage) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return writeFrame(w, messageID, payload)
}

// copyBuf streams src into dst without holding an entire file in memory,
// used by the file-copy operation.
func copyBuf(dst io.Writer, src io.Reader) (int64, error) {
	return io.Copy(dst, src)
}

type writerTo = io.Writer
type readerFrom = io.Reader
