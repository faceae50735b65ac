package main

import (
	"context"
	"fmt"
	"net"

	"github.com/pion/dtls/v3"
)

// voiceAckOK / voiceAckDenied mirror the server's voiceplane.go single-byte
// reply after the token frame is checked.
const (
	voiceAckOK     = 0x01
	voiceAckDenied = 0x00
)

// DialVoicePlane opens the DTLS control association to addr, sends the
// token voice_join_response returned, and waits for the server's ack
// (spec §4.6, §6). The association is then held open as a liveness channel
// until ctx is cancelled; no media is exchanged (Non-goal).
func DialVoicePlane(ctx context.Context, addr, token string) error {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return fmt.Errorf("resolve voice addr %s: %w", addr, err)
	}

	conn, err := dtls.DialWithContext(ctx, "udp", udpAddr, &dtls.Config{
		InsecureSkipVerify:   true, // TOFU-pinned at the control-connection layer; voice reuses that trust
		ExtendedMasterSecret: dtls.RequireExtendedMasterSecret,
	})
	if err != nil {
		return fmt.Errorf("dial voice plane %s: %w", addr, err)
	}
	defer conn.Close()

	if _, err := conn.Write([]byte(token)); err != nil {
		return fmt.Errorf("send voice token: %w", err)
	}

	var ack [1]byte
	if _, err := conn.Read(ack[:]); err != nil {
		return fmt.Errorf("read voice ack: %w", err)
	}
	if ack[0] != voiceAckOK {
		return fmt.Errorf("voice plane denied association")
	}

	// Hold the association open for as long as the caller's context lives;
	// closing it (deferred above) signals the server to drop the voice
	// session's liveness channel.
	<-ctx.Done()
	return nil
}
