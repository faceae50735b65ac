package main

import (
	"crypto/rand"
	"encoding/hex"
	"sort"
	"strings"
	"sync"
)

// ErrAlreadyInVoice is returned when a nickname already holds a voice
// session anywhere in the process; a user may hold at most one voice
// session across all their client connections (spec §4.6).
var ErrAlreadyInVoice = voiceConflictError{}

type voiceConflictError struct{}

func (voiceConflictError) Error() string { return "already in voice" }

// VoiceSession is one active voice association, authenticated by Token and
// carried over a separate DTLS association the client dials after
// receiving it in the VoiceJoin response.
type VoiceSession struct {
	SessionID uint32
	Username  string
	Nickname  string
	Target    string // channel name, or "user:<a>:<b>" for a sorted nickname pair
	Token     string
	IsChannel bool
}

// targetKey computes the key used to group participants. For user-to-user
// voice the two lowercased nicknames are sorted so either party resolves to
// the same key (spec §4.6).
func targetKey(isChannel bool, target, selfNickname string) string {
	if isChannel {
		return "channel:" + strings.ToLower(target)
	}
	pair := []string{strings.ToLower(selfNickname), strings.ToLower(target)}
	sort.Strings(pair)
	return "user:" + pair[0] + ":" + pair[1]
}

// VoiceRegistry tracks active voice sessions keyed by session-id, with
// per-target participant sets derived on demand (spec §4.6).
type VoiceRegistry struct {
	mu       sync.RWMutex
	sessions map[uint32]*VoiceSession
}

// NewVoiceRegistry constructs an empty registry.
func NewVoiceRegistry() *VoiceRegistry {
	return &VoiceRegistry{sessions: make(map[uint32]*VoiceSession)}
}

// nicknameActive reports whether nickname already holds a voice session
// anywhere in the registry. Caller must hold at least the read lock.
func (r *VoiceRegistry) nicknameActive(nickname string) bool {
	lower := strings.ToLower(nickname)
	for _, vs := range r.sessions {
		if strings.ToLower(vs.Nickname) == lower {
			return true
		}
	}
	return false
}

// Insert registers a new voice session for sessionID, rejecting a second
// join while one is already active for the same nickname.
func (r *VoiceRegistry) Insert(sessionID uint32, username, nickname, target string, isChannel bool) (*VoiceSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.nicknameActive(nickname) {
		return nil, ErrAlreadyInVoice
	}
	token, err := newVoiceToken()
	if err != nil {
		return nil, err
	}
	vs := &VoiceSession{
		SessionID: sessionID,
		Username:  username,
		Nickname:  nickname,
		Target:    targetKey(isChannel, target, nickname),
		Token:     token,
		IsChannel: isChannel,
	}
	r.sessions[sessionID] = vs
	return vs, nil
}

func newVoiceToken() (string, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

// RemoveBySessionID removes the voice session for sessionID. The second
// return value reports whether any other session sharing the same nickname
// still holds a voice session in the same target — callers use this to
// suppress a spurious VoiceUserLeft broadcast when a user is connected from
// multiple devices (spec §4.6).
func (r *VoiceRegistry) RemoveBySessionID(sessionID uint32) (removed *VoiceSession, nicknameStillPresent bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	vs, ok := r.sessions[sessionID]
	if !ok {
		return nil, false
	}
	delete(r.sessions, sessionID)
	for _, other := range r.sessions {
		if other.Target == vs.Target && strings.EqualFold(other.Nickname, vs.Nickname) {
			return vs, true
		}
	}
	return vs, false
}

// GetParticipants returns the nicknames of every session in targetKey.
func (r *VoiceRegistry) GetParticipants(key string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []string
	for _, vs := range r.sessions {
		if vs.Target == key {
			out = append(out, vs.Nickname)
		}
	}
	return out
}

// IsNicknameInTarget reports whether nickname already has a voice session
// in targetKey, excluding exceptSession.
func (r *VoiceRegistry) IsNicknameInTarget(key, nickname string, exceptSession uint32) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for id, vs := range r.sessions {
		if id == exceptSession {
			continue
		}
		if vs.Target == key && strings.EqualFold(vs.Nickname, nickname) {
			return true
		}
	}
	return false
}

// TargetKeyFor computes the key for a join request, given the joining
// session's own nickname.
func TargetKeyFor(isChannel bool, target, selfNickname string) string {
	return targetKey(isChannel, target, selfNickname)
}

// LookupByToken resolves the voice session that owns token, for
// authenticating the separate DTLS association a client dials after
// voice_join (spec §4.6, §6).
func (r *VoiceRegistry) LookupByToken(token string) (*VoiceSession, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, vs := range r.sessions {
		if vs.Token == token {
			return vs, true
		}
	}
	return nil, false
}
