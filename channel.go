package main

import (
	"strings"
	"sync"
)

// Channel is a chat room: persistent channels survive restarts (their topic
// and secret flag are stored); ephemeral channels are created on first join
// and destroyed when the last member leaves, never touching storage
// (spec §3).
type Channel struct {
	Name       string // case-insensitive-unique, begins with "#"
	Topic      string
	TopicSetBy string
	Secret     bool
	Persistent bool
	members    map[uint32]struct{}
}

func newChannel(name string, persistent bool) *Channel {
	return &Channel{Name: name, Persistent: persistent, members: make(map[uint32]struct{})}
}

func (c *Channel) memberCount() int { return len(c.members) }

func (c *Channel) summary() channelSummary {
	return channelSummary{
		Name:        c.Name,
		Topic:       c.Topic,
		TopicSetBy:  c.TopicSetBy,
		Secret:      c.Secret,
		MemberCount: c.memberCount(),
	}
}

// ChannelRegistry keeps lowercased-name -> Channel, mirroring the teacher's
// Room map for clients, protected by a single RWMutex.
type ChannelRegistry struct {
	mu       sync.RWMutex
	channels map[string]*Channel
	// membership tracks which channel (lowercased name) each session is
	// currently in, so ChannelOf can answer in O(1) without scanning every
	// channel's member set.
	membership map[uint32]string

	onUpsert func(name string, topic string, secret bool) error
}

// NewChannelRegistry constructs a registry seeded with defaultName as a
// persistent channel (spec §3: "a default channel exists at first boot").
func NewChannelRegistry(defaultName string) *ChannelRegistry {
	r := &ChannelRegistry{
		channels:   make(map[string]*Channel),
		membership: make(map[uint32]string),
	}
	if defaultName != "" {
		r.channels[strings.ToLower(defaultName)] = newChannel(defaultName, true)
	}
	return r
}

// SetOnUpsert registers a persistence callback invoked after topic/secret
// mutations on persistent channels. Called outside the registry's lock.
func (r *ChannelRegistry) SetOnUpsert(fn func(name, topic string, secret bool) error) {
	r.mu.Lock()
	r.onUpsert = fn
	r.mu.Unlock()
}

// LoadPersistent seeds the registry from storage at startup.
func (r *ChannelRegistry) LoadPersistent(channels []PersistedChannel) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range channels {
		ch := newChannel(c.Name, true)
		ch.Topic = c.Topic
		ch.TopicSetBy = c.TopicSetBy
		ch.Secret = c.Secret
		r.channels[strings.ToLower(c.Name)] = ch
	}
}

// PersistedChannel is the subset of channel fields the store round-trips.
type PersistedChannel struct {
	Name       string
	Topic      string
	TopicSetBy string
	Secret     bool
}

// Join creates the channel if absent (as ephemeral) and adds sessionID to
// its member set, returning the channel's topic and member list.
func (r *ChannelRegistry) Join(name string, sessionID uint32) *Channel {
	key := strings.ToLower(name)
	r.mu.Lock()
	defer r.mu.Unlock()
	ch, ok := r.channels[key]
	if !ok {
		ch = newChannel(name, false)
		r.channels[key] = ch
	}
	ch.members[sessionID] = struct{}{}
	if prev, had := r.membership[sessionID]; had && prev != key {
		if old, ok := r.channels[prev]; ok {
			delete(old.members, sessionID)
			if !old.Persistent && len(old.members) == 0 {
				delete(r.channels, prev)
			}
		}
	}
	r.membership[sessionID] = key
	return ch
}

// Leave removes sessionID from the channel. If the channel is ephemeral and
// becomes empty, it is dropped (spec §4.5).
func (r *ChannelRegistry) Leave(name string, sessionID uint32) {
	key := strings.ToLower(name)
	r.mu.Lock()
	defer r.mu.Unlock()
	ch, ok := r.channels[key]
	if !ok {
		return
	}
	delete(ch.members, sessionID)
	if m, had := r.membership[sessionID]; had && m == key {
		delete(r.membership, sessionID)
	}
	if !ch.Persistent && len(ch.members) == 0 {
		delete(r.channels, key)
	}
}

// LeaveAll removes sessionID from whatever channel it currently occupies,
// used on disconnect.
func (r *ChannelRegistry) LeaveAll(sessionID uint32) {
	r.mu.RLock()
	key, ok := r.membership[sessionID]
	r.mu.RUnlock()
	if !ok {
		return
	}
	r.Leave(key, sessionID)
}

// ChannelOf returns the name of the channel sessionID currently occupies,
// or "" if none.
func (r *ChannelRegistry) ChannelOf(sessionID uint32) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.membership[sessionID]
}

// Count returns the number of channels currently tracked (persistent and
// ephemeral).
func (r *ChannelRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.channels)
}

// Get returns the channel by name, or nil.
func (r *ChannelRegistry) Get(name string) *Channel {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.channels[strings.ToLower(name)]
}

// Members returns a copy of the channel's member session-ids.
func (r *ChannelRegistry) Members(name string) []uint32 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ch, ok := r.channels[strings.ToLower(name)]
	if !ok {
		return nil
	}
	out := make([]uint32, 0, len(ch.members))
	for id := range ch.members {
		out = append(out, id)
	}
	return out
}

// SetTopic updates the channel's topic (requires chat_topic_edit at the
// handler level) and persists it if the channel is persistent.
func (r *ChannelRegistry) SetTopic(name, topic, setBy string) error {
	key := strings.ToLower(name)
	r.mu.Lock()
	ch, ok := r.channels[key]
	if !ok {
		r.mu.Unlock()
		return ErrChannelNotFound
	}
	ch.Topic = topic
	ch.TopicSetBy = setBy
	persistent, secret := ch.Persistent, ch.Secret
	cb := r.onUpsert
	r.mu.Unlock()

	if persistent && cb != nil {
		return cb(name, topic, secret)
	}
	return nil
}

// SetSecret transitions the channel's secret flag and persists it if the
// channel is persistent.
func (r *ChannelRegistry) SetSecret(name string, secret bool) error {
	key := strings.ToLower(name)
	r.mu.Lock()
	ch, ok := r.channels[key]
	if !ok {
		r.mu.Unlock()
		return ErrChannelNotFound
	}
	ch.Secret = secret
	persistent, topic := ch.Persistent, ch.Topic
	cb := r.onUpsert
	r.mu.Unlock()

	if persistent && cb != nil {
		return cb(name, topic, secret)
	}
	return nil
}

// List returns a snapshot summary of every channel, skipping secret
// channels the requester is not a member of.
func (r *ChannelRegistry) List(requester uint32, requesterIsAdmin bool) []channelSummary {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]channelSummary, 0, len(r.channels))
	for _, ch := range r.channels {
		if ch.Secret && !requesterIsAdmin {
			if _, member := ch.members[requester]; !member {
				continue
			}
		}
		out = append(out, ch.summary())
	}
	return out
}

// ErrChannelNotFound is returned by topic/secret mutations on an unknown
// channel.
var ErrChannelNotFound = channelNotFoundError{}

type channelNotFoundError struct{}

func (channelNotFoundError) Error() string { return "channel not found" }
