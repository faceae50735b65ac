package main

import (
	"context"
	"errors"
	"log"
	"net"
	"strings"
	"sync"
	"sync/atomic"
)

// ErrNicknameInUse is returned by SessionRegistry.Add when the proposed
// nickname (or, for shared accounts, the account username itself) collides
// with a live session's nickname or username.
var ErrNicknameInUse = errors.New("nickname in use")

// Session is a live login, created on successful authentication and
// destroyed on disconnect, kick, ban, or account disable/delete. Field
// comments mark which are immutable for the session's lifetime versus
// overwritten in place when the underlying account changes.
type Session struct {
	ID        uint32 // process-unique for the lifetime of the session; never reused while live
	AccountID uint32
	Username  string // overwritten in place on account rename (setUsername); equals Nickname for regular accounts
	IsShared  bool

	mu          sync.RWMutex
	nickname    string // independent of Username only for shared accounts
	isAdmin     bool
	permissions PermissionSet
	isAway      bool
	status      string
	avatar      string

	Addr     net.Addr
	Locale   string
	Features map[string]struct{}

	send   chan outboundFrame // single outbound channel; only the writer task reads it
	cancel context.CancelFunc
}

type outboundFrame struct {
	messageID uint32
	msg       serverMessage
}

// NewSession constructs a session in the given send channel's ownership;
// callers must start exactly one writer goroutine draining send.
func NewSession(id, accountID uint32, username, nickname string, isShared bool, send chan outboundFrame, cancel context.CancelFunc) *Session {
	return &Session{
		ID:        id,
		AccountID: accountID,
		Username:  username,
		IsShared:  isShared,
		nickname:  nickname,
		Features:  make(map[string]struct{}),
		send:      send,
		cancel:    cancel,
	}
}

// Nickname returns the session's current display nickname.
func (s *Session) Nickname() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nickname
}

// IsAdmin reports the session's admin snapshot.
func (s *Session) IsAdmin() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isAdmin
}

// Can reports whether the session is authorized for p: admins hold every
// permission; otherwise the session's permission snapshot is consulted.
func (s *Session) Can(p Permission) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isAdmin || s.permissions.Has(p)
}

// Permissions returns a copy of the permission snapshot (for presentation,
// e.g. in LoginResponse).
func (s *Session) Permissions() PermissionSet {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(PermissionSet, len(s.permissions))
	for p := range s.permissions {
		out[p] = struct{}{}
	}
	return out
}

// applyAccountSnapshot overwrites the admin and permission fields (the
// username and nickname are updated by setUsername). Called whenever the underlying account is edited so
// existing sessions see new rights on their next request (spec §3).
func (s *Session) applyAccountSnapshot(isAdmin bool, perms PermissionSet) {
	s.mu.Lock()
	s.isAdmin = isAdmin
	s.permissions = perms
	s.mu.Unlock()
}

func (s *Session) setUsername(username string) {
	s.mu.Lock()
	s.Username = username
	if !s.IsShared {
		s.nickname = username
	}
	s.mu.Unlock()
}

// SetPresence updates the away flag and/or status text. Pass "" for status
// to leave it unchanged.
func (s *Session) SetPresence(isAway bool, status string) {
	s.mu.Lock()
	s.isAway = isAway
	if status != "" {
		s.status = status
	}
	s.mu.Unlock()
}

func (s *Session) presence() (isAway bool, status, avatar string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isAway, s.status, s.avatar
}

// HasFeature reports whether the client advertised feature at login.
func (s *Session) HasFeature(feature string) bool {
	_, ok := s.Features[feature]
	return ok
}

// Send enqueues a message for delivery by this session's writer task.
// Never blocks indefinitely on a stalled peer: the channel is created with
// enough buffer that normal traffic never fills it, and a full channel
// means the session is already being torn down, so the send is dropped
// (spec §4.4: events queued before removal are allowed to drop silently).
func (s *Session) Send(messageID uint32, msg serverMessage) {
	select {
	case s.send <- outboundFrame{messageID: messageID, msg: msg}:
	default:
		log.Printf("[session %d] outbound channel full, dropping %s", s.ID, msg.Type)
	}
}

// Disconnect asks the connection's reader/writer tasks to stop.
func (s *Session) Disconnect() {
	if s.cancel != nil {
		s.cancel()
	}
}

// summary renders the session's presentation fields for user_list/
// user_connected pushes.
func (s *Session) summary(channel string) userSummary {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return userSummary{
		SessionID: s.ID,
		Username:  s.Username,
		Nickname:  s.nickname,
		IsAdmin:   s.isAdmin,
		IsAway:    s.isAway,
		Status:    s.status,
		Channel:   channel,
	}
}

// SessionRegistry holds every live session, keyed by session-id. Mutations
// are serialized under a single writer lock; reads take a shared lock,
// mirroring the teacher's Room registry.
type SessionRegistry struct {
	mu       sync.RWMutex
	sessions map[uint32]*Session
	nextID   atomic.Uint32
}

// NewSessionRegistry constructs an empty registry.
func NewSessionRegistry() *SessionRegistry {
	return &SessionRegistry{sessions: make(map[uint32]*Session)}
}

// NextID allocates a fresh session-id. IDs are never reused while any
// session using them is still registered (the counter only increases).
func (r *SessionRegistry) NextID() uint32 {
	return r.nextID.Add(1)
}

// nicknameCollision reports whether nickname (case-insensitive) is already
// in use by another live session's nickname or username.
func (r *SessionRegistry) nicknameCollision(nickname string, except uint32) bool {
	lower := strings.ToLower(nickname)
	for id, s := range r.sessions {
		if id == except {
			continue
		}
		if strings.ToLower(s.Nickname()) == lower || strings.ToLower(s.Username) == lower {
			return true
		}
	}
	return false
}

// Add performs the atomic check+insert: nickname uniqueness is re-verified
// under the write lock immediately before insertion, making this the
// source of truth over any earlier non-atomic pre-check the login handler
// may have performed (spec §4.4).
func (r *SessionRegistry) Add(s *Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.nicknameCollision(s.Nickname(), 0) {
		return ErrNicknameInUse
	}
	r.sessions[s.ID] = s
	return nil
}

// Get returns the session by id, or nil if it is not (or no longer) live.
func (r *SessionRegistry) Get(id uint32) *Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sessions[id]
}

// Remove deletes the session from the registry. It returns false if the
// session was already gone.
func (r *SessionRegistry) Remove(id uint32) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[id]; !ok {
		return false
	}
	delete(r.sessions, id)
	return true
}

// sessionsForAccount returns every live session belonging to accountID.
// Caller must hold at least the read lock.
func (r *SessionRegistry) sessionsForAccount(accountID uint32) []*Session {
	var out []*Session
	for _, s := range r.sessions {
		if s.AccountID == accountID {
			out = append(out, s)
		}
	}
	return out
}

// newestSurvivor returns the most-recently-registered (highest session-id)
// remaining session for accountID, used to derive UserUpdated's
// presentation fields under the "newest login wins" rule (spec §4.9 Design
// Notes).
func (r *SessionRegistry) newestSurvivor(accountID uint32) *Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var newest *Session
	for _, s := range r.sessionsForAccount(accountID) {
		if newest == nil || s.ID > newest.ID {
			newest = s
		}
	}
	return newest
}

// RemoveAndBroadcast removes the session and fans out UserDisconnected to
// every session holding user_list; for regular accounts with remaining
// sessions it additionally emits UserUpdated derived from the newest
// surviving session so clients stay in sync (spec §3, §4.4).
func (r *SessionRegistry) RemoveAndBroadcast(channels *ChannelRegistry, id uint32) {
	r.mu.Lock()
	s, ok := r.sessions[id]
	if !ok {
		r.mu.Unlock()
		return
	}
	delete(r.sessions, id)
	r.mu.Unlock()

	r.BroadcastUserEvent(serverMessage{
		Type:      msgUserDisconnected,
		SessionID: id,
		Username:  s.Nickname(),
	}, id)

	if !s.IsShared {
		if survivor := r.newestSurvivor(s.AccountID); survivor != nil {
			r.BroadcastUserEvent(serverMessage{
				Type: msgUserUpdated,
				User: ptrSummary(survivor.summary(channels.ChannelOf(survivor.ID))),
			}, id)
		}
	}
}

func ptrSummary(u userSummary) *userSummary { return &u }

// UpdateUsername applies a new username to every session of accountID. For
// regular accounts the nickname is updated to match (spec §3).
func (r *SessionRegistry) UpdateUsername(accountID uint32, username string) {
	r.mu.RLock()
	sessions := r.sessionsForAccount(accountID)
	r.mu.RUnlock()
	for _, s := range sessions {
		s.setUsername(username)
	}
}

// UpdateAdminAndPermissions applies a new admin/permission snapshot to
// every session of accountID, taking effect on the session's next request
// (spec §3).
func (r *SessionRegistry) UpdateAdminAndPermissions(accountID uint32, isAdmin bool, perms PermissionSet) {
	r.mu.RLock()
	sessions := r.sessionsForAccount(accountID)
	r.mu.RUnlock()
	for _, s := range sessions {
		s.applyAccountSnapshot(isAdmin, perms)
	}
}

// SetStatus applies presence fields to every session of accountID.
func (r *SessionRegistry) SetStatus(accountID uint32, isAway bool, status string) {
	r.mu.RLock()
	sessions := r.sessionsForAccount(accountID)
	r.mu.RUnlock()
	for _, s := range sessions {
		s.SetPresence(isAway, status)
	}
}

// BroadcastUserEvent fans out msg to every session holding user_list,
// except the one identified by except (0 to exclude none).
func (r *SessionRegistry) BroadcastUserEvent(msg serverMessage, except uint32) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for id, s := range r.sessions {
		if id == except {
			continue
		}
		if !s.Can(PermUserList) {
			continue
		}
		s.Send(0, msg)
	}
}

// BroadcastToFeature fans out msg to every session that advertised feature
// and holds permission.
func (r *SessionRegistry) BroadcastToFeature(feature string, msg serverMessage, permission Permission) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, s := range r.sessions {
		if !s.HasFeature(feature) {
			continue
		}
		if permission != "" && !s.Can(permission) {
			continue
		}
		s.Send(0, msg)
	}
}

// All returns a snapshot of every live session's presentation summary.
func (r *SessionRegistry) All(channels *ChannelRegistry) []userSummary {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]userSummary, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s.summary(channels.ChannelOf(s.ID)))
	}
	return out
}

// Count returns the number of live sessions.
func (r *SessionRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// DisconnectByIP sends build(s) to every live session whose address matches
// ip and removes it, unless skip(s) reports true (used to let a covering
// trust override a ban, spec §4.4).
func (r *SessionRegistry) DisconnectByIP(ip net.IP, build func(*Session) serverMessage, skip func(*Session) bool) []uint32 {
	return r.disconnectMatching(func(s *Session) bool {
		return sessionIP(s).Equal(ip)
	}, build, skip)
}

// DisconnectInRange is DisconnectByIP generalized to a CIDR range.
func (r *SessionRegistry) DisconnectInRange(cidr *net.IPNet, build func(*Session) serverMessage, skip func(*Session) bool) []uint32 {
	return r.disconnectMatching(func(s *Session) bool {
		ip := sessionIP(s)
		return ip != nil && cidr.Contains(ip)
	}, build, skip)
}

func (r *SessionRegistry) disconnectMatching(match func(*Session) bool, build func(*Session) serverMessage, skip func(*Session) bool) []uint32 {
	r.mu.Lock()
	var matched []*Session
	for _, s := range r.sessions {
		if match(s) && (skip == nil || !skip(s)) {
			matched = append(matched, s)
		}
	}
	for _, s := range matched {
		delete(r.sessions, s.ID)
	}
	r.mu.Unlock()

	ids := make([]uint32, 0, len(matched))
	for _, s := range matched {
		s.Send(0, build(s))
		s.Disconnect()
		ids = append(ids, s.ID)
	}
	return ids
}

func sessionIP(s *Session) net.IP {
	if s.Addr == nil {
		return nil
	}
	host, _, err := net.SplitHostPort(s.Addr.String())
	if err != nil {
		return net.ParseIP(s.Addr.String())
	}
	return net.ParseIP(host)
}
