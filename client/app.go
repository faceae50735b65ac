package main

import (
	"context"
	"fmt"
	"log"

	"github.com/nexus-im/client/internal/pending"
	"github.com/nexus-im/client/internal/state"
	"github.com/nexus-im/client/internal/transfermgr"
	"github.com/nexus-im/client/internal/uri"
)

// clientVersion is advertised in the handshake frame.
const clientVersion = "1.0.0"

// App bridges the network task, the pending-request table, the transfer
// manager, and the state model. Keep it thin — delegate to those, the same
// posture the teacher's App took toward Transport/AudioEngine.
type App struct {
	cfg Config

	conn     *Connection
	handle   *ConnectionHandle
	shutdown *ShutdownHandle
	pending  *pending.Table
	state    *state.State
	transfer *transfermgr.Manager

	serverAddr string
	sessionID  uint32
}

// NewApp constructs an App with its config and transfer manager loaded
// from disk (spec §6: transfers file resumes with everything in-flight
// reset to Queued).
func NewApp() *App {
	cfg := LoadConfig()
	tm, err := transfermgr.Load()
	if err != nil {
		log.Printf("[app] load transfers: %v", err)
		tm, _ = transfermgr.Load() // falls back to an empty, clean manager
	}
	return &App{cfg: cfg, pending: pending.New(), state: state.New(), transfer: tm}
}

// Connect dials addr, completes the handshake/login sequence, and starts
// the background loop that dispatches inbound frames to the pending table
// and state model (spec §4.10, §4.11).
func (a *App) Connect(ctx context.Context, addr, username, password string) error {
	pinned := a.pinnedFingerprint(addr)
	tlsConfig, observed := pinningTLSConfig(pinned)

	conn, handle, shutdown, err := Dial(ctx, addr, tlsConfig)
	if err != nil {
		return err
	}
	a.conn, a.handle, a.shutdown, a.serverAddr = conn, handle, shutdown, addr

	if pinned == "" {
		a.rememberFingerprint(addr, *observed)
	}

	go a.dispatchLoop()

	handshakeID := a.pending.Allocate(pending.Routing{Tab: "console"})
	handle.Send(handshakeID, ClientMessage{Type: msgHandshake, Version: clientVersion})

	loginID := a.pending.Allocate(pending.Routing{Tab: "console"})
	handle.Send(loginID, ClientMessage{Type: msgLogin, Username: username, Password: password})

	return nil
}

// Disconnect tears down the active connection, if any.
func (a *App) Disconnect() {
	if a.handle != nil {
		a.handle.Close()
	}
	a.conn, a.handle, a.shutdown = nil, nil, nil
	a.pending.Clear()
}

// ConnectURI resolves a nexus:// link and connects if not already on a
// matching connection (spec §4.13). Credentials embedded in the URI are
// used as given; a bookmark is consulted only when the URI carries none,
// and then only its username is taken (bookmarks store no password).
func (a *App) ConnectURI(ctx context.Context, raw string) (uri.PathIntent, error) {
	link, err := uri.Parse(raw)
	if err != nil {
		return nil, err
	}

	if a.serverAddr == link.Addr() {
		return link.Intent, nil
	}

	username, password := link.Username, link.Password
	if !link.HasAuth {
		for _, bm := range a.cfg.Servers {
			if bm.Addr == link.Addr() {
				username = bm.Username
				break
			}
		}
	}

	if err := a.Connect(ctx, link.Addr(), username, password); err != nil {
		return nil, err
	}
	return link.Intent, nil
}

// SendChat sends a channel or console chat message.
func (a *App) SendChat(channel, message string) error {
	if a.handle == nil {
		return fmt.Errorf("not connected")
	}
	id := a.pending.Allocate(pending.Routing{Tab: channel})
	a.handle.Send(id, ClientMessage{Type: msgChatSend, Channel: channel, Message: message})
	return nil
}

// JoinChannel requests to join a channel, routing the response to that
// channel's tab.
func (a *App) JoinChannel(name string) error {
	if a.handle == nil {
		return fmt.Errorf("not connected")
	}
	id := a.pending.Allocate(pending.Routing{Tab: name})
	a.handle.Send(id, ClientMessage{Type: msgChatJoin, Channel: name})
	return nil
}

// ListFiles requests a directory listing, routing the response to tabID
// and optionally selecting navigateTo once it loads (spec §4.11).
func (a *App) ListFiles(tabID, path, navigateTo string) error {
	if a.handle == nil {
		return fmt.Errorf("not connected")
	}
	id := a.pending.Allocate(pending.Routing{Tab: "files:" + tabID, NavigateTo: navigateTo})
	a.handle.Send(id, ClientMessage{Type: msgFileList, Path: path})
	return nil
}

// JoinVoice requests a voice session against target, then dials the
// separate DTLS association carrying the returned token (spec §4.6, §6).
func (a *App) JoinVoice(ctx context.Context, target string, isChannel bool) error {
	if a.handle == nil {
		return fmt.Errorf("not connected")
	}
	id := a.pending.Allocate(pending.Routing{Tab: "voice"})
	a.handle.Send(id, ClientMessage{Type: msgVoiceJoin, VoiceTarget: target, IsChannel: isChannel})
	return nil
}

// dispatchLoop drains Inbound, correlating responses via the pending
// table and folding every frame into the state model. This is the
// subscription body spec §4.10 describes the UI moving the receiver into.
func (a *App) dispatchLoop() {
	for frame := range a.conn.Inbound {
		a.handleFrame(frame)
	}
	a.state.ClearVoice()
}

func (a *App) handleFrame(frame InboundFrame) {
	msg := frame.Message

	if frame.MessageID != 0 {
		if _, ok := a.pending.Take(frame.MessageID); !ok {
			log.Printf("[app] response for unknown message-id %d (type %s), discarding", frame.MessageID, msg.Type)
			return
		}
	}

	switch msg.Type {
	case msgNetworkError:
		log.Printf("[app] network error: %s", msg.Error)
		a.state.ClearVoice()
	case msgLoginResponse:
		if msg.Success {
			a.sessionID = msg.SessionID
		}
	case msgChatJoinResponse:
		a.state.UpsertChannel(msg.Channel, msg.Topic, msg.TopicSetBy, msg.Secret)
		a.state.OpenTab(state.TabChannel, msg.Channel)
	case msgChatMessage:
		a.state.MarkUnread(state.TabChannel, msg.Channel)
	case msgChatTopicChanged:
		if ch := msg.Channel; ch != "" {
			a.state.UpsertChannel(ch, msg.Topic, msg.TopicSetBy, msg.Secret)
		}
	case msgChatUserJoined:
		a.state.ChannelMemberJoined(msg.Channel, 0)
	case msgChatUserLeft:
		a.state.ChannelMemberLeft(msg.Channel, 0)
	case msgChatListResponse:
		names := make([]string, 0, len(msg.Channels))
		for _, c := range msg.Channels {
			names = append(names, c.Name)
		}
		a.state.MergeKnownChannels(names)
	case msgUserListResponse, msgUserConnected, msgUserDisconnected, msgUserUpdated:
		a.applyUserPush(msg)
	case msgVoiceJoinResponse:
		if msg.Success {
			a.state.SetVoice(msg.VoiceTarget, msg.IsChannel, msg.Participants)
			go a.dialVoicePlane(msg.VoiceAddr, msg.SessionToken)
		}
	case msgVoiceUserLeft:
		a.state.ClearVoice()
	}
}

func (a *App) applyUserPush(msg ServerMessage) {
	switch msg.Type {
	case msgUserListResponse:
		rows := make([]state.UserRow, 0, len(msg.Users))
		for _, u := range msg.Users {
			rows = append(rows, state.UserRow{
				SessionID: u.SessionID, Username: u.Username, Nickname: u.Nickname,
				IsAdmin: u.IsAdmin, IsAway: u.IsAway, Status: u.Status, Channel: u.Channel,
				AvatarKey: u.Username,
			})
		}
		a.state.SetUsers(rows)
	case msgUserConnected, msgUserUpdated:
		if msg.User != nil {
			u := *msg.User
			a.state.UpsertUser(state.UserRow{
				SessionID: u.SessionID, Username: u.Username, Nickname: u.Nickname,
				IsAdmin: u.IsAdmin, IsAway: u.IsAway, Status: u.Status, Channel: u.Channel,
				AvatarKey: u.Username,
			})
		}
	case msgUserDisconnected:
		if msg.User != nil {
			a.state.RemoveUser(msg.User.SessionID)
		}
	}
}

// dialVoicePlane opens the DTLS control association carrying token, at the
// address the server advertised in the voice_join_response (spec §4.6, §6).
// The association is held open for liveness only; no media is exchanged
// (Non-goal). An empty addr means the server has no voice plane configured.
func (a *App) dialVoicePlane(addr, token string) {
	if addr == "" {
		log.Printf("[voice] server did not advertise a voice plane address")
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	a.state.SetVoiceCancel(cancel)
	if err := DialVoicePlane(ctx, addr, token); err != nil {
		log.Printf("[voice] dial: %v", err)
	}
}

func (a *App) pinnedFingerprint(addr string) string {
	for _, bm := range a.cfg.Servers {
		if bm.Addr == addr {
			return bm.Fingerprint
		}
	}
	return ""
}

func (a *App) rememberFingerprint(addr, fingerprint string) {
	for i := range a.cfg.Servers {
		if a.cfg.Servers[i].Addr == addr {
			a.cfg.Servers[i].Fingerprint = fingerprint
			_ = SaveConfig(a.cfg)
			return
		}
	}
	a.cfg.Servers = append(a.cfg.Servers, ServerEntry{Addr: addr, Fingerprint: fingerprint})
	_ = SaveConfig(a.cfg)
}
