package main

import (
	"context"
	"errors"
	"log"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/nexus-im/server/internal/filearea"
	"github.com/nexus-im/server/internal/ipcache"
	"github.com/nexus-im/server/internal/store"
)

// Engine is the control-protocol dispatcher: every accepted connection on
// the control port is driven by HandleConnection, which performs the
// handshake/login then loops reading frames and dispatching them by
// message type (spec §4.8).
type Engine struct {
	Store    *store.Store
	IPCache  *ipcache.Cache
	Sessions *SessionRegistry
	Channels *ChannelRegistry
	Voices   *VoiceRegistry

	FileAreaRoot string

	ServerName        string
	ServerDescription string
	ServerImage       string
	ServerVersion     string
	MaxUsers          int
	TransferPort      int
	DefaultChannel    string

	// VoiceAddr is advertised in voice_join_response so the client knows
	// where to dial the DTLS control association (spec §4.6, §6). Empty
	// when the voice plane is disabled.
	VoiceAddr string
}

// HandleConnection drives one accepted control-port connection end to end:
// handshake, login, then a read/dispatch loop until the peer disconnects or
// is forcibly removed. The session's outbound channel and its writer
// goroutine are created here once login succeeds.
func (e *Engine) HandleConnection(ctx context.Context, conn net.Conn, remote net.Addr) {
	negotiationDeadline := time.Now().Add(negotiationTimeout)
	conn.SetReadDeadline(negotiationDeadline)

	hsFrame, err := readFrame(conn)
	if err != nil {
		log.Printf("[engine] handshake read from %s: %v", remote, err)
		return
	}
	hs, err := decodeClientMessage(hsFrame.payload)
	if err != nil || hs.Type != msgHandshake {
		log.Printf("[engine] malformed handshake from %s", remote)
		return
	}
	if err := writeServerMessage(conn, hsFrame.messageID, serverMessage{
		Type: msgHandshakeResponse, Success: true, ServerVersion: e.ServerVersion,
	}); err != nil {
		return
	}

	loginFrame, err := readFrame(conn)
	if err != nil {
		log.Printf("[engine] login read from %s: %v", remote, err)
		return
	}
	login, err := decodeClientMessage(loginFrame.payload)
	if err != nil || login.Type != msgLogin {
		writeServerMessage(conn, loginFrame.messageID, serverMessage{Type: msgLoginResponse, Success: false, Error: "expected login"})
		return
	}

	sess, loginResp, ok := e.authenticate(login, remote)
	if !ok {
		writeServerMessage(conn, loginFrame.messageID, loginResp)
		return
	}

	sessCtx, cancel := context.WithCancel(ctx)
	send := make(chan outboundFrame, 256)
	sess = NewSession(sess.ID, sess.AccountID, sess.Username, sess.Nickname(), sess.IsShared, send, cancel)
	sess.Addr = remote
	sess.Locale = login.Locale
	for _, f := range login.Features {
		sess.Features[f] = struct{}{}
	}
	account, _ := e.Store.GetByID(sess.AccountID)
	sess.applyAccountSnapshot(account.IsAdmin, NewPermissionSet(account.Permissions))

	if err := e.Sessions.Add(sess); err != nil {
		writeServerMessage(conn, loginFrame.messageID, serverMessage{Type: msgLoginResponse, Success: false, Error: "nickname in use"})
		cancel()
		return
	}
	defer e.Sessions.RemoveAndBroadcast(e.Channels, sess.ID)
	defer e.Channels.LeaveAll(sess.ID)

	loginResp = serverMessage{
		Type: msgLoginResponse, Success: true,
		SessionID: sess.ID, IsAdmin: sess.IsAdmin(), Permissions: sess.Permissions().Slice(),
		ServerInfo: &serverInfoMsg{Name: e.ServerName, Description: e.ServerDescription, Image: e.ServerImage, Version: e.ServerVersion, MaxUsers: e.MaxUsers},
	}
	writeServerMessage(conn, loginFrame.messageID, loginResp)
	e.deliverOfflineMessages(sess)

	conn.SetReadDeadline(time.Time{})
	go e.writerLoop(sessCtx, conn, send)
	e.readerLoop(sessCtx, conn, sess)
}

func (e *Engine) writerLoop(ctx context.Context, conn net.Conn, send chan outboundFrame) {
	for {
		select {
		case <-ctx.Done():
			if tc, ok := conn.(interface{ CloseWrite() error }); ok {
				tc.CloseWrite()
			}
			conn.Close()
			return
		case f := <-send:
			if err := writeServerMessage(conn, f.messageID, f.msg); err != nil {
				return
			}
		}
	}
}

func (e *Engine) readerLoop(ctx context.Context, conn net.Conn, sess *Session) {
	idle := idleTimeout
	for {
		conn.SetReadDeadline(time.Now().Add(idle))
		fr, err := readFrame(conn)
		if err != nil {
			sess.Disconnect()
			return
		}
		msg, err := decodeClientMessage(fr.payload)
		if err != nil {
			sess.Send(fr.messageID, serverMessage{Type: msgGenericResponse, Success: false, Error: "malformed message"})
			continue
		}
		select {
		case <-ctx.Done():
			return
		default:
		}
		e.dispatch(sess, fr.messageID, msg)
	}
}

// authenticate validates credentials and, on success, returns a
// not-yet-registered Session (no send channel/cancel yet — the caller
// finishes constructing it). On failure ok is false and resp is the
// login_response to send before disconnecting (spec §4.8 "authentication
// failures ... disconnect the client").
func (e *Engine) authenticate(login clientMessage, remote net.Addr) (*Session, serverMessage, bool) {
	if ip := hostIP(remote); ip != nil && e.IPCache.IsBanned(ip) {
		return nil, serverMessage{Type: msgLoginResponse, Success: false, Error: "banned"}, false
	}

	account, err := e.Store.GetByUsername(login.Username)
	if err != nil {
		return nil, serverMessage{Type: msgLoginResponse, Success: false, Error: "invalid credentials"}, false
	}
	if !account.Enabled {
		return nil, serverMessage{Type: msgLoginResponse, Success: false, Error: "account disabled"}, false
	}
	if !store.VerifyPassword(login.Password, account.PasswordHash) {
		return nil, serverMessage{Type: msgLoginResponse, Success: false, Error: "invalid credentials"}, false
	}

	nickname := account.Username
	if account.IsShared && login.Nickname != "" {
		nickname = login.Nickname
	}

	id := e.Sessions.NextID()
	sess := NewSession(id, account.ID, account.Username, nickname, account.IsShared, nil, nil)
	return sess, serverMessage{}, true
}

func (e *Engine) deliverOfflineMessages(sess *Session) {
	msgs, err := e.Store.DrainOfflineMessages(sess.AccountID)
	if err != nil {
		log.Printf("[engine] drain offline messages for %s: %v", sess.Username, err)
		return
	}
	for _, m := range msgs {
		sess.Send(0, serverMessage{Type: msgUserMessage, Username: m.SenderName, Message: m.Body, Timestamp: m.CreatedAt})
	}
}

// dispatch routes one decoded client message to its handler. Every branch
// is responsible for sending exactly one correlated response, except push
// producers that also fan out separate uncorrelated events.
func (e *Engine) dispatch(s *Session, id uint32, msg clientMessage) {
	switch msg.Type {
	case msgUserList:
		s.Send(id, serverMessage{Type: msgUserListResponse, Success: true, Users: e.Sessions.All(e.Channels)})

	case msgUserInfo:
		e.handleUserInfo(s, id, msg)

	case msgUserAway:
		isAway := msg.IsAway != nil && *msg.IsAway
		e.Sessions.SetStatus(s.AccountID, isAway, "")
		s.Send(id, serverMessage{Type: msgGenericResponse, Success: true})

	case msgUserStatus:
		_, _, _ = s.presence()
		e.Sessions.SetStatus(s.AccountID, false, msg.Status)
		s.Send(id, serverMessage{Type: msgGenericResponse, Success: true})

	case msgUserMessage:
		e.handleUserMessage(s, id, msg)

	case msgUserBroadcast:
		e.handleBroadcast(s, id, msg)

	case msgUserKick:
		e.handleKick(s, id, msg)

	case msgUserCreate:
		e.handleUserCreate(s, id, msg)

	case msgUserUpdate:
		e.handleUserUpdate(s, id, msg)

	case msgUserDelete:
		e.handleUserDelete(s, id, msg)

	case msgChatJoin:
		e.handleChatJoin(s, id, msg)
	case msgChatLeave:
		e.Channels.Leave(msg.Channel, s.ID)
		s.Send(id, serverMessage{Type: msgGenericResponse, Success: true})
	case msgChatSend:
		e.handleChatSend(s, id, msg)
	case msgChatTopicSet:
		e.handleChatTopicSet(s, id, msg)
	case msgChatSecretSet:
		e.handleChatSecretSet(s, id, msg)
	case msgChatList:
		s.Send(id, serverMessage{Type: msgChatListResponse, Success: true, Channels: e.Channels.List(s.ID, s.IsAdmin())})

	case msgNewsList:
		e.handleNewsList(s, id)
	case msgNewsShow:
		e.handleNewsShow(s, id, msg)
	case msgNewsCreate:
		e.handleNewsCreate(s, id, msg)
	case msgNewsEdit:
		e.handleNewsEdit(s, id, msg)
	case msgNewsUpdate:
		e.handleNewsUpdate(s, id, msg)
	case msgNewsDelete:
		e.handleNewsDelete(s, id, msg)

	case msgBanCreate:
		e.handleBanCreate(s, id, msg)
	case msgBanDelete:
		e.handleRuleDelete(s, id, msg, true)
	case msgBanList:
		e.handleRuleList(s, id, true)
	case msgTrustCreate:
		e.handleTrustCreate(s, id, msg)
	case msgTrustDelete:
		e.handleRuleDelete(s, id, msg, false)
	case msgTrustList:
		e.handleRuleList(s, id, false)

	case msgFileList:
		e.handleFileList(s, id, msg)
	case msgFileSearch:
		e.handleFileSearch(s, id, msg)
	case msgFileInfo:
		e.handleFileInfo(s, id, msg)
	case msgFileCreateDir:
		e.handleFileCreateDir(s, id, msg)
	case msgFileDelete:
		e.handleFileDelete(s, id, msg)
	case msgFileRename:
		e.handleFileRename(s, id, msg)
	case msgFileMove:
		e.handleFileMoveOrCopy(s, id, msg, true)
	case msgFileCopy:
		e.handleFileMoveOrCopy(s, id, msg, false)

	case msgVoiceJoin:
		e.handleVoiceJoin(s, id, msg)
	case msgVoiceLeave:
		e.handleVoiceLeave(s, id)

	default:
		s.Send(id, serverMessage{Type: msgGenericResponse, Success: false, Error: "unknown message type"})
	}
}

func fail(id uint32, errMsg string) serverMessage {
	return serverMessage{Type: msgGenericResponse, Success: false, Error: errMsg}
}

// --- Identity / presence -----------------------------------------------

func (e *Engine) handleUserMessage(s *Session, id uint32, msg clientMessage) {
	if !s.Can(PermChatSend) {
		s.Send(id, fail(id, "permission denied"))
		return
	}
	target, err := e.Store.GetByUsername(msg.Username)
	if err != nil {
		s.Send(id, fail(id, "user not found"))
		return
	}
	delivered := false
	for _, recipient := range e.sessionsForDelivery(target.ID) {
		recipient.Send(0, serverMessage{Type: msgUserMessage, Username: s.Nickname(), Message: msg.Message, Timestamp: nowUnix()})
		delivered = true
	}
	if !delivered {
		if err := e.Store.QueueOfflineMessage(target.ID, s.Nickname(), msg.Message); err != nil {
			s.Send(id, fail(id, "database error"))
			return
		}
	}
	s.Send(id, serverMessage{Type: msgGenericResponse, Success: true})
}

// sessionsForDelivery finds live sessions for an account by scanning the
// registry's snapshot (small N; the registry itself has no by-account index
// beyond sessionsForAccount, which is unexported — this mirrors it via All
// plus a direct registry lookup helper).
func (e *Engine) sessionsForDelivery(accountID uint32) []*Session {
	var out []*Session
	for _, u := range e.Sessions.All(e.Channels) {
		if sess := e.Sessions.Get(u.SessionID); sess != nil && sess.AccountID == accountID {
			out = append(out, sess)
		}
	}
	return out
}

func (e *Engine) handleUserInfo(s *Session, id uint32, msg clientMessage) {
	if !s.Can(PermUserList) {
		s.Send(id, fail(id, "permission denied"))
		return
	}
	target := e.Sessions.Get(msg.UserID)
	if target == nil {
		s.Send(id, fail(id, "user not found"))
		return
	}
	summary := target.summary(e.Channels.ChannelOf(target.ID))
	s.Send(id, serverMessage{Type: msgUserInfoResponse, Success: true, User: &summary})
}

func (e *Engine) handleBroadcast(s *Session, id uint32, msg clientMessage) {
	if !s.Can(PermBroadcast) {
		s.Send(id, fail(id, "permission denied"))
		return
	}
	e.Sessions.BroadcastUserEvent(serverMessage{Type: msgUserBroadcast, Message: msg.Message, Username: s.Nickname()}, 0)
	s.Send(id, serverMessage{Type: msgGenericResponse, Success: true})
}

func (e *Engine) handleKick(s *Session, id uint32, msg clientMessage) {
	if !s.Can(PermUserKick) {
		s.Send(id, fail(id, "permission denied"))
		return
	}
	target := e.Sessions.Get(msg.UserID)
	if target == nil {
		s.Send(id, fail(id, "user not found"))
		return
	}
	target.Send(0, serverMessage{Type: msgUserDisconnected, SessionID: target.ID, Message: msg.Reason})
	target.Disconnect()
	s.Send(id, serverMessage{Type: msgGenericResponse, Success: true})
}

func (e *Engine) handleUserCreate(s *Session, id uint32, msg clientMessage) {
	if !s.Can(PermUserCreate) {
		s.Send(id, fail(id, "permission denied"))
		return
	}
	isAdmin := msg.IsAdmin != nil && *msg.IsAdmin
	if _, err := e.Store.CreateAccount(msg.Username, msg.Password, isAdmin, false, msg.Permissions); err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			s.Send(id, fail(id, "username taken"))
			return
		}
		s.Send(id, fail(id, "database error"))
		return
	}
	s.Send(id, serverMessage{Type: msgGenericResponse, Success: true})
}

func (e *Engine) handleUserUpdate(s *Session, id uint32, msg clientMessage) {
	if !s.Can(PermUserEdit) {
		s.Send(id, fail(id, "permission denied"))
		return
	}
	account, err := e.Store.GetByID(msg.UserID)
	if err != nil {
		s.Send(id, fail(id, "user not found"))
		return
	}
	username := account.Username
	if msg.Username != "" {
		username = msg.Username
	}
	isAdmin := account.IsAdmin
	if msg.IsAdmin != nil {
		isAdmin = *msg.IsAdmin
	}
	enabled := account.Enabled
	if msg.Enabled != nil {
		enabled = *msg.Enabled
	}
	perms := account.Permissions
	if msg.Permissions != nil {
		perms = msg.Permissions
	}
	if err := e.Store.UpdateAccount(account.ID, username, isAdmin, enabled, perms); err != nil {
		s.Send(id, fail(id, "database error"))
		return
	}
	e.Sessions.UpdateUsername(account.ID, username)
	e.Sessions.UpdateAdminAndPermissions(account.ID, isAdmin, NewPermissionSet(perms))
	s.Send(id, serverMessage{Type: msgGenericResponse, Success: true})
}

func (e *Engine) handleUserDelete(s *Session, id uint32, msg clientMessage) {
	if !s.Can(PermUserDelete) {
		s.Send(id, fail(id, "permission denied"))
		return
	}
	if err := e.Store.DeleteAccount(msg.UserID); err != nil {
		s.Send(id, fail(id, "database error"))
		return
	}
	for _, sess := range e.sessionsForDelivery(msg.UserID) {
		sess.Send(0, serverMessage{Type: msgUserDisconnected, SessionID: sess.ID, Message: "account deleted"})
		sess.Disconnect()
	}
	s.Send(id, serverMessage{Type: msgGenericResponse, Success: true})
}

// --- Chat ---------------------------------------------------------------

func (e *Engine) handleChatJoin(s *Session, id uint32, msg clientMessage) {
	ch := e.Channels.Join(msg.Channel, s.ID)
	s.Send(id, serverMessage{
		Type: msgChatJoinResponse, Success: true,
		Channel: ch.Name, Topic: ch.Topic, TopicSetBy: ch.TopicSetBy, Secret: ch.Secret,
		Members: e.Channels.Members(ch.Name),
	})
	e.Sessions.BroadcastUserEvent(serverMessage{Type: msgChatUserJoined, Channel: ch.Name, SessionID: s.ID, Username: s.Nickname()}, s.ID)
}

func (e *Engine) handleChatSend(s *Session, id uint32, msg clientMessage) {
	if !s.Can(PermChatSend) {
		s.Send(id, fail(id, "permission denied"))
		return
	}
	if utf8.RuneCountInString(msg.Message) > maxChatLength {
		s.Send(id, fail(id, "message too long"))
		return
	}
	for _, member := range e.Channels.Members(msg.Channel) {
		if sess := e.Sessions.Get(member); sess != nil {
			sess.Send(0, serverMessage{Type: msgChatMessage, Channel: msg.Channel, SessionID: sess.ID, Username: s.Nickname(), Message: msg.Message, Timestamp: nowUnix()})
		}
	}
	s.Send(id, serverMessage{Type: msgGenericResponse, Success: true})
}

func (e *Engine) handleChatTopicSet(s *Session, id uint32, msg clientMessage) {
	if !s.Can(PermChatTopicEdit) {
		s.Send(id, fail(id, "permission denied"))
		return
	}
	if err := e.Channels.SetTopic(msg.Channel, msg.Topic, s.Nickname()); err != nil {
		s.Send(id, fail(id, "channel not found"))
		return
	}
	for _, member := range e.Channels.Members(msg.Channel) {
		if sess := e.Sessions.Get(member); sess != nil {
			sess.Send(0, serverMessage{Type: msgChatTopicChanged, Channel: msg.Channel, Topic: msg.Topic, TopicSetBy: s.Nickname()})
		}
	}
	s.Send(id, serverMessage{Type: msgGenericResponse, Success: true})
}

func (e *Engine) handleChatSecretSet(s *Session, id uint32, msg clientMessage) {
	if !s.Can(PermChatSecretSet) {
		s.Send(id, fail(id, "permission denied"))
		return
	}
	secret := msg.Secret != nil && *msg.Secret
	if err := e.Channels.SetSecret(msg.Channel, secret); err != nil {
		s.Send(id, fail(id, "channel not found"))
		return
	}
	s.Send(id, serverMessage{Type: msgGenericResponse, Success: true})
}

// --- News -----------------------------------------------------------------

func (e *Engine) handleNewsList(s *Session, id uint32) {
	if !s.Can(PermNewsRead) {
		s.Send(id, fail(id, "permission denied"))
		return
	}
	items, err := e.Store.GetAllNews()
	if err != nil {
		s.Send(id, fail(id, "database error"))
		return
	}
	out := make([]newsItemMsg, len(items))
	for i, n := range items {
		out[i] = toNewsMsg(n)
	}
	s.Send(id, serverMessage{Type: msgNewsListResponse, Success: true, NewsList: out})
}

func (e *Engine) handleNewsShow(s *Session, id uint32, msg clientMessage) {
	if !s.Can(PermNewsRead) {
		s.Send(id, fail(id, "permission denied"))
		return
	}
	n, err := e.Store.GetNewsByID(msg.NewsID)
	if err != nil {
		s.Send(id, fail(id, "news not found"))
		return
	}
	item := toNewsMsg(n)
	s.Send(id, serverMessage{Type: msgNewsShowResponse, Success: true, News: &item})
}

func (e *Engine) handleNewsCreate(s *Session, id uint32, msg clientMessage) {
	if !s.Can(PermNewsPost) {
		s.Send(id, fail(id, "permission denied"))
		return
	}
	n, err := e.Store.CreateNews(msg.Body, msg.Image, s.AccountID, s.Username, s.IsAdmin())
	if err != nil {
		s.Send(id, fail(id, "database error"))
		return
	}
	item := toNewsMsg(n)
	e.Sessions.BroadcastUserEvent(serverMessage{Type: msgNewsUpdatedCreated, News: &item}, 0)
	s.Send(id, serverMessage{Type: msgGenericResponse, Success: true})
}

// newsEditAuthorized enforces the edit/delete rule: the original author or
// a permission holder may act, but a non-admin may never touch an admin's
// post (spec §4.8 Permission model).
func (e *Engine) newsEditAuthorized(s *Session, n store.NewsItem, perm Permission) bool {
	if n.AuthorIsAdmin && !s.IsAdmin() {
		return false
	}
	if n.AuthorID == s.AccountID {
		return true
	}
	return s.Can(perm)
}

// handleNewsEdit fetches a news item for editing under the same
// authorization rule as update/delete, so a client cannot probe an admin's
// post contents through the edit flow ahead of a denied update.
func (e *Engine) handleNewsEdit(s *Session, id uint32, msg clientMessage) {
	n, err := e.Store.GetNewsByID(msg.NewsID)
	if err != nil {
		s.Send(id, fail(id, "news not found"))
		return
	}
	if !e.newsEditAuthorized(s, n, PermNewsPost) {
		s.Send(id, fail(id, "permission denied"))
		return
	}
	item := toNewsMsg(n)
	s.Send(id, serverMessage{Type: msgNewsEditResponse, Success: true, News: &item})
}

func (e *Engine) handleNewsUpdate(s *Session, id uint32, msg clientMessage) {
	n, err := e.Store.GetNewsByID(msg.NewsID)
	if err != nil {
		s.Send(id, fail(id, "news not found"))
		return
	}
	if !e.newsEditAuthorized(s, n, PermNewsPost) {
		s.Send(id, fail(id, "permission denied"))
		return
	}
	if err := e.Store.UpdateNews(msg.NewsID, msg.Body, msg.Image); err != nil {
		s.Send(id, fail(id, "database error"))
		return
	}
	updated, _ := e.Store.GetNewsByID(msg.NewsID)
	item := toNewsMsg(updated)
	e.Sessions.BroadcastUserEvent(serverMessage{Type: msgNewsUpdatedUpdated, News: &item}, 0)
	s.Send(id, serverMessage{Type: msgGenericResponse, Success: true})
}

func (e *Engine) handleNewsDelete(s *Session, id uint32, msg clientMessage) {
	n, err := e.Store.GetNewsByID(msg.NewsID)
	if err != nil {
		s.Send(id, fail(id, "news not found"))
		return
	}
	if !e.newsEditAuthorized(s, n, PermNewsDelete) {
		s.Send(id, fail(id, "permission denied"))
		return
	}
	if err := e.Store.DeleteNews(msg.NewsID); err != nil {
		s.Send(id, fail(id, "database error"))
		return
	}
	e.Sessions.BroadcastUserEvent(serverMessage{Type: msgNewsUpdatedDeleted, NewsID: msg.NewsID}, 0)
	s.Send(id, serverMessage{Type: msgGenericResponse, Success: true})
}

func toNewsMsg(n store.NewsItem) newsItemMsg {
	return newsItemMsg{
		ID: n.ID, Body: n.Body, Image: n.Image, AuthorID: n.AuthorID,
		AuthorUsername: n.AuthorUsername, AuthorIsAdmin: n.AuthorIsAdmin,
		CreatedAt: n.CreatedAt, UpdatedAt: n.UpdatedAt,
	}
}

// --- Bans / Trusts ----------------------------------------------------

func (e *Engine) handleBanCreate(s *Session, id uint32, msg clientMessage) {
	if !s.Can(PermBanCreate) {
		s.Send(id, fail(id, "permission denied"))
		return
	}
	var expires int64
	if msg.ExpiresAt != nil {
		expires = *msg.ExpiresAt
	}
	rec, err := e.Store.CreateOrUpdateBan(msg.Target, msg.Nickname, msg.Reason, s.Username, expires)
	if err != nil {
		s.Send(id, fail(id, "database error"))
		return
	}
	e.IPCache.AddBan(ipcache.Rule{IPAddress: rec.IPAddress, Nickname: rec.Nickname, Reason: rec.Reason, CreatedBy: rec.CreatedBy, CreatedAt: rec.CreatedAt, ExpiresAt: rec.ExpiresAt})
	e.enforceBan(rec.IPAddress)
	s.Send(id, serverMessage{Type: msgGenericResponse, Success: true})
}

func (e *Engine) handleTrustCreate(s *Session, id uint32, msg clientMessage) {
	if !s.Can(PermTrustCreate) {
		s.Send(id, fail(id, "permission denied"))
		return
	}
	var expires int64
	if msg.ExpiresAt != nil {
		expires = *msg.ExpiresAt
	}
	rec, err := e.Store.CreateOrUpdateTrust(msg.Target, msg.Nickname, msg.Reason, s.Username, expires)
	if err != nil {
		s.Send(id, fail(id, "database error"))
		return
	}
	e.IPCache.AddTrust(ipcache.Rule{IPAddress: rec.IPAddress, Nickname: rec.Nickname, Reason: rec.Reason, CreatedBy: rec.CreatedBy, CreatedAt: rec.CreatedAt, ExpiresAt: rec.ExpiresAt})
	s.Send(id, serverMessage{Type: msgGenericResponse, Success: true})
}

// enforceBan disconnects every live session now covered by a freshly
// created ban, unless a same-or-better trust protects them (spec §4.8 "Ban
// enforcement").
func (e *Engine) enforceBan(ipOrCIDR string) {
	if _, cidr, err := net.ParseCIDR(ipOrCIDR); err == nil {
		e.Sessions.DisconnectInRange(cidr, banMessage, func(s *Session) bool {
			ip := sessionIP(s)
			return ip != nil && e.IPCache.IsTrusted(ip) && !e.IPCache.IsBanned(ip)
		})
		return
	}
	ip := net.ParseIP(ipOrCIDR)
	if ip == nil {
		return
	}
	e.Sessions.DisconnectByIP(ip, banMessage, func(s *Session) bool {
		sip := sessionIP(s)
		return sip != nil && e.IPCache.IsTrusted(sip) && !e.IPCache.IsBanned(sip)
	})
}

func banMessage(s *Session) serverMessage {
	return serverMessage{Type: msgUserDisconnected, SessionID: s.ID, Message: "banned"}
}

func (e *Engine) handleRuleDelete(s *Session, id uint32, msg clientMessage, ban bool) {
	perm := PermTrustDelete
	if ban {
		perm = PermBanDelete
	}
	if !s.Can(perm) {
		s.Send(id, fail(id, "permission denied"))
		return
	}

	target := msg.Target
	switch {
	case net.ParseIP(target) != nil, isCIDR(target):
		var removed bool
		var err error
		if ban {
			removed, err = e.Store.DeleteBanByIP(target)
		} else {
			removed, err = e.Store.DeleteTrustByIP(target)
		}
		if err != nil {
			s.Send(id, fail(id, "database error"))
			return
		}
		if ban {
			e.IPCache.RemoveBan(target)
		} else {
			e.IPCache.RemoveTrust(target)
		}
		if _, cidr, cerr := net.ParseCIDR(target); cerr == nil {
			var contained []string
			if ban {
				contained = e.IPCache.RemoveBansContainedBy(cidr)
			} else {
				contained = e.IPCache.RemoveTrustsContainedBy(cidr)
			}
			for _, ip := range contained {
				if ban {
					e.Store.DeleteBanByIP(ip)
				} else {
					e.Store.DeleteTrustByIP(ip)
				}
			}
		}
		_ = removed
	default:
		// A bare target is a nickname annotation: bulk-delete every rule
		// carrying it (spec §4.8 "Ban/trust delete").
		var ips []string
		var err error
		if ban {
			ips, err = e.Store.DeleteBansByNickname(target)
		} else {
			ips, err = e.Store.DeleteTrustsByNickname(target)
		}
		if err != nil {
			s.Send(id, fail(id, "database error"))
			return
		}
		for _, ip := range ips {
			if ban {
				e.IPCache.RemoveBan(ip)
			} else {
				e.IPCache.RemoveTrust(ip)
			}
		}
	}
	s.Send(id, serverMessage{Type: msgGenericResponse, Success: true})
}

func isCIDR(s string) bool {
	_, _, err := net.ParseCIDR(s)
	return err == nil
}

func (e *Engine) handleRuleList(s *Session, id uint32, ban bool) {
	perm := PermTrustCreate
	if ban {
		perm = PermBanCreate
	}
	if !s.Can(perm) {
		s.Send(id, fail(id, "permission denied"))
		return
	}
	var recs []store.RuleRecord
	var err error
	if ban {
		recs, err = e.Store.ListActiveBans()
	} else {
		recs, err = e.Store.ListActiveTrusts()
	}
	if err != nil {
		s.Send(id, fail(id, "database error"))
		return
	}
	out := make([]ruleEntryMsg, len(recs))
	for i, r := range recs {
		out[i] = ruleEntryMsg{IPAddress: r.IPAddress, Nickname: r.Nickname, Reason: r.Reason, CreatedBy: r.CreatedBy, CreatedAt: r.CreatedAt, ExpiresAt: r.ExpiresAt}
	}
	if ban {
		s.Send(id, serverMessage{Type: msgBanListResp, Success: true, Bans: out})
	} else {
		s.Send(id, serverMessage{Type: msgTrustListResp, Success: true, Trusts: out})
	}
}

// --- Files --------------------------------------------------------------

func (e *Engine) areaRootFor(s *Session, root bool) (string, error) {
	if root {
		if !s.Can(PermFileRoot) {
			return "", errPermission
		}
		return e.FileAreaRoot, nil
	}
	return filepath.Join(e.FileAreaRoot, filearea.UserAreaPath(s.Username)), nil
}

var errPermission = errors.New("permission denied")

func (e *Engine) handleFileList(s *Session, id uint32, msg clientMessage) {
	if !s.Can(PermFileList) {
		s.Send(id, fail(id, "permission denied"))
		return
	}
	areaRoot, err := e.areaRootFor(s, msg.Root)
	if err != nil {
		s.Send(id, fail(id, "permission denied"))
		return
	}
	resolved, err := filearea.Resolve(areaRoot, msg.Path)
	if err != nil {
		s.Send(id, fail(id, "invalid path"))
		return
	}
	entries, err := os.ReadDir(resolved.AbsPath)
	if err != nil {
		s.Send(id, fail(id, "internal error"))
		return
	}
	out := make([]fileEntryMsg, 0, len(entries))
	for _, de := range entries {
		parsed := filearea.ParseFolderType(de.Name())
		if parsed.Type == filearea.DropBox && !s.IsAdmin() {
			continue
		}
		if parsed.Type == filearea.UserDropBox && !s.IsAdmin() && !strings.EqualFold(parsed.User, s.Username) {
			continue
		}
		info, err := de.Info()
		if err != nil {
			continue
		}
		out = append(out, fileEntryMsg{
			Path: filepath.ToSlash(filepath.Join(msg.Path, de.Name())), Name: filearea.DisplayName(de.Name()),
			Size: info.Size(), Modified: info.ModTime().Unix(), IsDir: de.IsDir(),
			IsSymlink: info.Mode()&os.ModeSymlink != 0, FolderType: folderTypeTag(parsed),
		})
	}
	s.Send(id, serverMessage{Type: msgFileListResp, Success: true, Entries: out})
}

func folderTypeTag(p filearea.ParseResult) string {
	switch p.Type {
	case filearea.Upload:
		return "upload"
	case filearea.DropBox:
		return "dropbox"
	case filearea.UserDropBox:
		return "user_dropbox"
	default:
		return ""
	}
}

func (e *Engine) handleFileSearch(s *Session, id uint32, msg clientMessage) {
	if !s.Can(PermFileList) {
		s.Send(id, fail(id, "permission denied"))
		return
	}
	areaRoot, err := e.areaRootFor(s, msg.Root)
	if err != nil {
		s.Send(id, fail(id, "permission denied"))
		return
	}
	prefixRoot := areaRoot
	if msg.AreaPrefix != "" {
		prefixRoot = filepath.Join(areaRoot, msg.AreaPrefix)
	}
	results, err := filearea.Search(e.FileAreaRoot, prefixRoot, msg.Query)
	if err != nil {
		if errors.Is(err, filearea.ErrInvalidQuery) {
			s.Send(id, fail(id, "invalid query"))
			return
		}
		s.Send(id, fail(id, "internal error"))
		return
	}
	out := make([]fileEntryMsg, len(results))
	for i, r := range results {
		out[i] = fileEntryMsg{Path: r.Path, Name: r.Name, Size: r.Size, Modified: r.Modified, IsDir: r.IsDir, IsSymlink: r.IsSymlink}
	}
	s.Send(id, serverMessage{Type: msgFileSearchResp, Success: true, Entries: out})
}

func (e *Engine) handleFileInfo(s *Session, id uint32, msg clientMessage) {
	if !s.Can(PermFileList) {
		s.Send(id, fail(id, "permission denied"))
		return
	}
	areaRoot, err := e.areaRootFor(s, msg.Root)
	if err != nil {
		s.Send(id, fail(id, "permission denied"))
		return
	}
	resolved, err := filearea.Resolve(areaRoot, msg.Path)
	if err != nil {
		s.Send(id, fail(id, "invalid path"))
		return
	}
	info, err := os.Stat(resolved.AbsPath)
	if err != nil {
		s.Send(id, fail(id, "not found"))
		return
	}
	entry := fileEntryMsg{
		Path: msg.Path, Name: filearea.DisplayName(filepath.Base(resolved.AbsPath)),
		Size: info.Size(), Modified: info.ModTime().Unix(), IsDir: info.IsDir(), IsSymlink: resolved.IsSymlink,
	}
	s.Send(id, serverMessage{Type: msgFileInfoResp, Success: true, Entry: &entry})
}

func (e *Engine) handleFileCreateDir(s *Session, id uint32, msg clientMessage) {
	if !s.Can(PermFileUpload) {
		s.Send(id, fail(id, "permission denied"))
		return
	}
	areaRoot, err := e.areaRootFor(s, msg.Root)
	if err != nil {
		s.Send(id, fail(id, "permission denied"))
		return
	}
	if err := filearea.ValidateRelativePath(msg.Path); err != nil {
		s.Send(id, fail(id, "invalid path"))
		return
	}
	if err := os.MkdirAll(filepath.Join(areaRoot, msg.Path), 0o755); err != nil {
		s.Send(id, fail(id, "internal error"))
		return
	}
	s.Send(id, serverMessage{Type: msgGenericResponse, Success: true})
}

func (e *Engine) handleFileDelete(s *Session, id uint32, msg clientMessage) {
	if !s.Can(PermFileDelete) {
		s.Send(id, fail(id, "permission denied"))
		return
	}
	areaRoot, err := e.areaRootFor(s, msg.Root)
	if err != nil {
		s.Send(id, fail(id, "permission denied"))
		return
	}
	resolved, err := filearea.Resolve(areaRoot, msg.Path)
	if err != nil {
		s.Send(id, fail(id, "invalid path"))
		return
	}
	if err := removePath(resolved.AbsPath); err != nil {
		s.Send(id, fail(id, "internal error"))
		return
	}
	s.Send(id, serverMessage{Type: msgGenericResponse, Success: true})
}

func removePath(path string) error {
	meta, err := os.Lstat(path)
	if err != nil {
		return err
	}
	if meta.IsDir() && meta.Mode()&os.ModeSymlink == 0 {
		return os.RemoveAll(path)
	}
	return os.Remove(path)
}

func (e *Engine) handleFileRename(s *Session, id uint32, msg clientMessage) {
	if !s.Can(PermFileDelete) {
		s.Send(id, fail(id, "permission denied"))
		return
	}
	areaRoot, err := e.areaRootFor(s, msg.Root)
	if err != nil {
		s.Send(id, fail(id, "permission denied"))
		return
	}
	src, err := filearea.Resolve(areaRoot, msg.Path)
	if err != nil {
		s.Send(id, fail(id, "invalid path"))
		return
	}
	if err := filearea.ValidateRelativePath(msg.Destination); err != nil {
		s.Send(id, fail(id, "invalid path"))
		return
	}
	dest := filepath.Join(areaRoot, msg.Destination)
	if !msg.Overwrite {
		if _, err := os.Stat(dest); err == nil {
			s.Send(id, fail(id, "destination exists"))
			return
		}
	}
	if err := os.Rename(src.AbsPath, dest); err != nil {
		s.Send(id, fail(id, "internal error"))
		return
	}
	s.Send(id, serverMessage{Type: msgGenericResponse, Success: true})
}

func (e *Engine) handleFileMoveOrCopy(s *Session, id uint32, msg clientMessage, move bool) {
	if !s.Can(PermFileDelete) {
		s.Send(id, fail(id, "permission denied"))
		return
	}
	areaRoot, err := e.areaRootFor(s, msg.Root)
	if err != nil {
		s.Send(id, fail(id, "permission denied"))
		return
	}
	src, err := filearea.Resolve(areaRoot, msg.Path)
	if err != nil {
		s.Send(id, fail(id, "invalid path"))
		return
	}
	if err := filearea.ValidateRelativePath(msg.Destination); err != nil {
		s.Send(id, fail(id, "invalid path"))
		return
	}
	dest := filepath.Join(areaRoot, msg.Destination)
	if strings.HasPrefix(dest+string(filepath.Separator), src.AbsPath+string(filepath.Separator)) {
		s.Send(id, fail(id, "cannot move a folder into itself"))
		return
	}
	if !msg.Overwrite {
		if _, err := os.Stat(dest); err == nil {
			s.Send(id, fail(id, "destination exists"))
			return
		}
	}
	if move {
		err = os.Rename(src.AbsPath, dest)
	} else {
		err = copyPathRecursive(src.AbsPath, dest)
	}
	if err != nil {
		s.Send(id, fail(id, "internal error"))
		return
	}
	s.Send(id, serverMessage{Type: msgGenericResponse, Success: true})
}

func copyPathRecursive(src, dest string) error {
	meta, err := os.Lstat(src)
	if err != nil {
		return err
	}
	switch {
	case meta.Mode()&os.ModeSymlink != 0:
		target, err := os.Readlink(src)
		if err != nil {
			return err
		}
		return os.Symlink(target, dest)
	case meta.IsDir():
		if err := os.MkdirAll(dest, meta.Mode().Perm()); err != nil {
			return err
		}
		entries, err := os.ReadDir(src)
		if err != nil {
			return err
		}
		for _, de := range entries {
			if err := copyPathRecursive(filepath.Join(src, de.Name()), filepath.Join(dest, de.Name())); err != nil {
				return err
			}
		}
		return nil
	default:
		in, err := os.Open(src)
		if err != nil {
			return err
		}
		defer in.Close()
		out, err := os.OpenFile(dest, os.O_CREATE|os.O_EXCL|os.O_WRONLY, meta.Mode().Perm())
		if err != nil {
			return err
		}
		defer out.Close()
		_, err = copyAll(out, in)
		return err
	}
}

func copyAll(dst writerTo, src readerFrom) (int64, error) { return copyBuf(dst, src) }

// --- Voice ----------------------------------------------------------------

func (e *Engine) handleVoiceJoin(s *Session, id uint32, msg clientMessage) {
	if !s.Can(PermVoiceJoin) {
		s.Send(id, fail(id, "permission denied"))
		return
	}
	vs, err := e.Voices.Insert(s.ID, s.Username, s.Nickname(), msg.VoiceTarget, msg.IsChannel)
	if err != nil {
		s.Send(id, fail(id, "already in voice"))
		return
	}
	s.Send(id, serverMessage{
		Type: msgVoiceJoinResponse, Success: true, SessionToken: vs.Token, VoiceAddr: e.VoiceAddr,
		Participants: e.Voices.GetParticipants(vs.Target), VoiceTarget: msg.VoiceTarget, IsChannel: msg.IsChannel,
	})
	e.broadcastVoiceEvent(msgVoiceUserJoined, vs.Target, s)
}

func (e *Engine) handleVoiceLeave(s *Session, id uint32) {
	vs, stillPresent := e.Voices.RemoveBySessionID(s.ID)
	s.Send(id, serverMessage{Type: msgGenericResponse, Success: true})
	if vs != nil && !stillPresent {
		e.broadcastVoiceEvent(msgVoiceUserLeft, vs.Target, s)
	}
}

func (e *Engine) broadcastVoiceEvent(msgType, target string, s *Session) {
	for _, nickname := range e.Voices.GetParticipants(target) {
		if strings.EqualFold(nickname, s.Nickname()) {
			continue
		}
		// Participants are tracked by nickname only; resolve back to a
		// session via the registry snapshot (small N for a voice room).
		for _, u := range e.Sessions.All(e.Channels) {
			if strings.EqualFold(u.Nickname, nickname) {
				if sess := e.Sessions.Get(u.SessionID); sess != nil {
					sess.Send(0, serverMessage{Type: msgType, VoiceTarget: target, Nickname: s.Nickname()})
				}
			}
		}
	}
}

func hostIP(addr net.Addr) net.IP {
	if addr == nil {
		return nil
	}
	host, _, err := net.SplitHostPort(addr.String())
	if err != nil {
		return net.ParseIP(addr.String())
	}
	return net.ParseIP(host)
}

func nowUnix() int64 { return time.Now().Unix() }
