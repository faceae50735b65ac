package main

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"testing"
	"time"
)

func selfSignedCert(t *testing.T) *x509.Certificate {
	t.Helper()
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "nexus-test"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &priv.PublicKey, priv)
	if err != nil {
		t.Fatalf("create certificate: %v", err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		t.Fatalf("parse certificate: %v", err)
	}
	return cert
}

func TestPinningTLSConfigFirstUseRecordsFingerprint(t *testing.T) {
	cert := selfSignedCert(t)
	cfg, observed := pinningTLSConfig("")

	if !cfg.InsecureSkipVerify {
		t.Fatal("expected InsecureSkipVerify, since fingerprint pinning replaces chain verification")
	}
	if err := cfg.VerifyConnection(tls.ConnectionState{PeerCertificates: []*x509.Certificate{cert}}); err != nil {
		t.Fatalf("VerifyConnection on first use: %v", err)
	}

	want := verifyLeafFingerprint(cert)
	if *observed != want {
		t.Errorf("observed fingerprint: want %q got %q", want, *observed)
	}
}

func TestPinningTLSConfigRejectsMismatch(t *testing.T) {
	cert := selfSignedCert(t)
	cfg, _ := pinningTLSConfig("0000000000000000000000000000000000000000000000000000000000000000")

	if err := cfg.VerifyConnection(tls.ConnectionState{PeerCertificates: []*x509.Certificate{cert}}); err == nil {
		t.Fatal("expected VerifyConnection to reject a fingerprint that doesn't match the pinned value")
	}
}

func TestPinningTLSConfigAcceptsMatchingPin(t *testing.T) {
	cert := selfSignedCert(t)
	pinned := verifyLeafFingerprint(cert)
	cfg, _ := pinningTLSConfig(pinned)

	if err := cfg.VerifyConnection(tls.ConnectionState{PeerCertificates: []*x509.Certificate{cert}}); err != nil {
		t.Errorf("expected VerifyConnection to accept the matching pinned fingerprint, got %v", err)
	}
}

func TestPinningTLSConfigNoCertificates(t *testing.T) {
	cfg, _ := pinningTLSConfig("")
	if err := cfg.VerifyConnection(tls.ConnectionState{}); err == nil {
		t.Fatal("expected an error when the server presents no certificates")
	}
}
