package main

import (
	"crypto/rand"
	"encoding/base32"
	"strings"
)

// randomToken returns a URL-safe random string encoding n random bytes
// (lowercase unpadded base32, so ceil(8n/5) characters: 26 for n=16),
// used for generated bootstrap passwords and anywhere else a short opaque
// secret is needed outside the voice token path (which has its own
// generator in voice.go).
func randomToken(n int) string {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		panic(err)
	}
	enc := base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(buf)
	return strings.ToLower(enc)
}
