package main

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"net"
	"testing"
	"time"

	"github.com/pion/dtls/v3"
)

func selfSignedDTLSCert(t *testing.T) tls.Certificate {
	t.Helper()
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "nexus-voice-test"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &priv.PublicKey, priv)
	if err != nil {
		t.Fatalf("create certificate: %v", err)
	}
	return tls.Certificate{Certificate: [][]byte{der}, PrivateKey: priv}
}

// startTestVoicePlane runs a minimal stand-in for the server's
// VoicePlane.handleAssociation: it reads one token frame and writes a
// single ack byte (voiceAckOK for wantToken, voiceAckDenied otherwise).
func startTestVoicePlane(t *testing.T, wantToken string) net.Addr {
	t.Helper()
	udpAddr, err := net.ResolveUDPAddr("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	ln, err := dtls.Listen("udp", udpAddr, &dtls.Config{
		Certificates:         []tls.Certificate{selfSignedDTLSCert(t)},
		ExtendedMasterSecret: dtls.RequireExtendedMasterSecret,
	})
	if err != nil {
		t.Fatalf("dtls listen: %v", err)
	}
	t.Cleanup(func() { ln.Close() })

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		buf := make([]byte, 256)
		n, err := conn.Read(buf)
		if err != nil {
			return
		}
		if string(buf[:n]) == wantToken {
			conn.Write([]byte{voiceAckOK})
		} else {
			conn.Write([]byte{voiceAckDenied})
			return
		}
		// Hold the association open briefly so the client's <-ctx.Done() path runs.
		discard := make([]byte, 1)
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		conn.Read(discard)
	}()

	return ln.Addr()
}

func TestDialVoicePlaneAccepted(t *testing.T) {
	addr := startTestVoicePlane(t, "good-token")

	// DialVoicePlane holds the association open until ctx is done, so a
	// short timeout doubles as "the ack was accepted and the association
	// stayed live" rather than erroring out immediately.
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	if err := DialVoicePlane(ctx, addr.String(), "good-token"); err != nil {
		t.Fatalf("DialVoicePlane: %v", err)
	}
}

func TestDialVoicePlaneDenied(t *testing.T) {
	addr := startTestVoicePlane(t, "good-token")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := DialVoicePlane(ctx, addr.String(), "wrong-token"); err == nil {
		t.Fatal("expected an error for a denied voice token")
	}
}
