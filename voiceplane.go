package main

import (
	"context"
	"crypto/tls"
	"log"
	"net"
	"time"

	"github.com/pion/dtls/v3"
)

// voiceAckOK / voiceAckDenied are the single-byte replies written on the
// DTLS association after the token frame is checked.
const (
	voiceAckOK      = 0x01
	voiceAckDenied  = 0x00
	voiceTokenLimit = 256
)

// VoicePlane is the DTLS control-plane listener that authenticates the
// separate association a client dials after voice_join (spec §4.6, §6):
// "Voice uses a separate DTLS association ... authenticated by a
// server-issued token." This carries no media — a client proves it holds
// the token handed out by VoiceRegistry.Insert and the association is then
// just held open as a liveness/keepalive channel; RTP/media forwarding is a
// Non-goal.
type VoicePlane struct {
	Voices *VoiceRegistry
	Certs  []tls.Certificate
	Addr   string

	listener net.Listener
}

// ListenAndServe binds a DTLS listener on the UDP voice port and accepts
// associations until ctx is cancelled.
func (vp *VoicePlane) ListenAndServe(ctx context.Context) error {
	udpAddr, err := net.ResolveUDPAddr("udp", vp.Addr)
	if err != nil {
		return err
	}

	ln, err := dtls.Listen("udp", udpAddr, &dtls.Config{
		Certificates:         vp.Certs,
		ExtendedMasterSecret: dtls.RequireExtendedMasterSecret,
	})
	if err != nil {
		return err
	}
	vp.listener = ln
	log.Printf("[voice] DTLS control plane listening on %s", vp.Addr)

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				log.Printf("[voice] accept: %v", err)
				return err
			}
		}
		go vp.handleAssociation(ctx, conn)
	}
}

// Close stops accepting new voice associations.
func (vp *VoicePlane) Close() error {
	if vp.listener == nil {
		return nil
	}
	return vp.listener.Close()
}

// handleAssociation reads exactly one token frame, validates it against the
// voice registry, and acks or closes. No further frames are written, and
// anything the peer sends afterwards is read only to be discarded —
// holding the association open is the entire "carriage" contract this
// control plane provides.
func (vp *VoicePlane) handleAssociation(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(negotiationTimeout))
	buf := make([]byte, voiceTokenLimit)
	n, err := conn.Read(buf)
	if err != nil {
		return
	}
	token := string(buf[:n])

	vs, ok := vp.Voices.LookupByToken(token)
	if !ok {
		conn.Write([]byte{voiceAckDenied})
		return
	}
	if _, err := conn.Write([]byte{voiceAckOK}); err != nil {
		return
	}

	log.Printf("[voice] association authenticated for %s on %s", vs.Nickname, vs.Target)

	// Hold the association open as a liveness channel until the peer
	// closes it, the server shuts down, or it goes idle. No media or
	// further control frames are expected here (spec voice Non-goals).
	idle := make(chan struct{})
	go func() {
		defer close(idle)
		discard := make([]byte, 1)
		for {
			conn.SetReadDeadline(time.Now().Add(idleTimeout))
			if _, err := conn.Read(discard); err != nil {
				return
			}
		}
	}()

	select {
	case <-ctx.Done():
	case <-idle:
	}
}
