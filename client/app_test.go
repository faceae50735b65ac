package main

import (
	"testing"

	"github.com/nexus-im/client/internal/pending"
	"github.com/nexus-im/client/internal/state"
	"github.com/nexus-im/client/internal/transfermgr"
)

func newTestApp(t *testing.T) *App {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	tm, err := transfermgr.Load()
	if err != nil {
		t.Fatalf("transfermgr.Load: %v", err)
	}
	return &App{cfg: LoadConfig(), pending: pending.New(), state: state.New(), transfer: tm}
}

func TestHandleFrameLoginResponseSetsSessionID(t *testing.T) {
	a := newTestApp(t)
	a.handleFrame(InboundFrame{Message: ServerMessage{Type: msgLoginResponse, Success: true, SessionID: 7}})
	if a.sessionID != 7 {
		t.Errorf("sessionID: want 7 got %d", a.sessionID)
	}
}

func TestHandleFrameLoginResponseFailureLeavesSessionID(t *testing.T) {
	a := newTestApp(t)
	a.sessionID = 3
	a.handleFrame(InboundFrame{Message: ServerMessage{Type: msgLoginResponse, Success: false}})
	if a.sessionID != 3 {
		t.Errorf("expected sessionID unchanged on a failed login, got %d", a.sessionID)
	}
}

func TestHandleFrameChatJoinResponseOpensTab(t *testing.T) {
	a := newTestApp(t)
	a.handleFrame(InboundFrame{Message: ServerMessage{Type: msgChatJoinResponse, Channel: "#lobby", Topic: "welcome"}})

	found := false
	for _, tab := range a.state.Tabs {
		if tab.Kind == state.TabChannel && tab.Target == "#lobby" {
			found = true
		}
	}
	if !found {
		t.Error("expected a #lobby channel tab to be opened")
	}
	if ch := a.state.Channels["#lobby"]; ch == nil || ch.Topic != "welcome" {
		t.Errorf("expected channel metadata to be recorded, got %+v", ch)
	}
}

func TestHandleFrameVoiceJoinResponseFailureDoesNotSetVoice(t *testing.T) {
	a := newTestApp(t)
	a.handleFrame(InboundFrame{Message: ServerMessage{Type: msgVoiceJoinResponse, Success: false, Error: "denied"}})
	if a.state.Voice.Target != "" {
		t.Error("expected a failed voice_join_response to leave voice state cleared")
	}
}

func TestHandleFrameVoiceUserLeftClearsVoice(t *testing.T) {
	a := newTestApp(t)
	a.state.SetVoice("#lobby", true, []string{"alice"})
	a.handleFrame(InboundFrame{Message: ServerMessage{Type: msgVoiceUserLeft}})
	if a.state.Voice.Target != "" {
		t.Error("expected msgVoiceUserLeft to clear voice state")
	}
}

func TestHandleFrameUserListResponse(t *testing.T) {
	a := newTestApp(t)
	a.handleFrame(InboundFrame{Message: ServerMessage{
		Type:  msgUserListResponse,
		Users: []UserSummary{{SessionID: 1, Username: "alice"}, {SessionID: 2, Username: "bob"}},
	}})
	if len(a.state.Users) != 2 {
		t.Fatalf("expected 2 users, got %d", len(a.state.Users))
	}
}

func TestHandleFrameDiscardsUnknownMessageID(t *testing.T) {
	a := newTestApp(t)
	// No Allocate call preceded this, so message-id 99 is unknown; handleFrame
	// must not panic; it logs and discards the frame.
	a.handleFrame(InboundFrame{MessageID: 99, Message: ServerMessage{Type: msgChatMessage, Channel: "#lobby"}})
}

func TestApplyUserPushConnectedAndDisconnected(t *testing.T) {
	a := newTestApp(t)
	a.applyUserPush(ServerMessage{Type: msgUserConnected, User: &UserSummary{SessionID: 5, Username: "carol"}})
	if len(a.state.Users) != 1 {
		t.Fatalf("expected 1 user after connect push, got %d", len(a.state.Users))
	}

	a.applyUserPush(ServerMessage{Type: msgUserDisconnected, User: &UserSummary{SessionID: 5}})
	if len(a.state.Users) != 0 {
		t.Errorf("expected 0 users after disconnect push, got %d", len(a.state.Users))
	}
}
