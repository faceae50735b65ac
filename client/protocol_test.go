package main

import (
	"bytes"
	"testing"
)

func TestWireFrameRoundTrip(t *testing.T) {
	payload, err := encodeClientMessage(ClientMessage{Type: msgChatSend, Channel: "#lobby", Message: "hi"})
	if err != nil {
		t.Fatalf("encodeClientMessage: %v", err)
	}

	var buf bytes.Buffer
	if err := writeWireFrame(&buf, 42, payload); err != nil {
		t.Fatalf("writeWireFrame: %v", err)
	}

	frame, err := readWireFrame(&buf)
	if err != nil {
		t.Fatalf("readWireFrame: %v", err)
	}
	if frame.messageID != 42 {
		t.Errorf("messageID: want 42 got %d", frame.messageID)
	}
	if !bytes.Equal(frame.payload, payload) {
		t.Errorf("payload mismatch: want %s got %s", payload, frame.payload)
	}
}

func TestReadWireFrameTooShort(t *testing.T) {
	var buf bytes.Buffer
	buf.Write([]byte{0, 0, 0, 2}) // declared length 2, less than the 4-byte message-id alone
	if _, err := readWireFrame(&buf); err == nil {
		t.Error("expected ErrFrameTooShort for a declared length under the minimum")
	}
}

func TestReadWireFrameTooLarge(t *testing.T) {
	var buf bytes.Buffer
	buf.Write([]byte{0xFF, 0xFF, 0xFF, 0xFF})
	if _, err := readWireFrame(&buf); err == nil {
		t.Error("expected ErrFrameTooLarge for a declared length over the maximum")
	}
}

func TestDecodeServerMessageVoiceJoinResponse(t *testing.T) {
	payload := []byte(`{"type":"voice_join_response","success":true,"session_token":"tok","voice_addr":"10.0.0.1:6669","voice_target":"#lobby","is_channel":true,"participants":["alice"]}`)
	msg, err := decodeServerMessage(payload)
	if err != nil {
		t.Fatalf("decodeServerMessage: %v", err)
	}
	if msg.VoiceAddr != "10.0.0.1:6669" {
		t.Errorf("VoiceAddr: want %q got %q", "10.0.0.1:6669", msg.VoiceAddr)
	}
	if !msg.Success || msg.SessionToken != "tok" {
		t.Errorf("unexpected message: %+v", msg)
	}
}

func TestEncodeClientMessageOmitsEmptyFields(t *testing.T) {
	payload, err := encodeClientMessage(ClientMessage{Type: msgChatJoin, Channel: "#lobby"})
	if err != nil {
		t.Fatalf("encodeClientMessage: %v", err)
	}
	if bytes.Contains(payload, []byte("password")) {
		t.Error("expected omitempty to drop the unset password field")
	}
}
