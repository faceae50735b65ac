// Package state holds the per-connection UI state model described by
// spec §4.14: channels, tabs, the user list, the files panel, and voice.
// Mutations happen only through the methods here, driven by response
// handlers and push events — there is no independent mutation path, which
// keeps the model consistent with the single-threaded cooperative
// dispatch spec §5 describes for the client.
package state

import (
	"sort"
	"strconv"
	"strings"
)

// Channel tracks one channel's chat state, keyed by lowercase name.
type Channel struct {
	Name       string
	Topic      string
	TopicSetBy string
	Secret     bool
	Members    map[uint32]struct{}
}

// TabKind distinguishes the console tab from a channel or PM tab.
type TabKind int

const (
	TabConsole TabKind = iota
	TabChannel
	TabUserMessage
)

// Tab is one chat tab: the console, a channel, or a user-message thread.
type Tab struct {
	Kind   TabKind
	Target string // channel name or peer nickname; empty for TabConsole
	Unread bool
	Scroll int
}

// key identifies a tab independent of display case.
func (t Tab) key() string {
	if t.Kind == TabConsole {
		return "console"
	}
	return strconv.Itoa(int(t.Kind)) + ":" + strings.ToLower(t.Target)
}

// FileDialog names a pending confirmation dialog in a files tab.
type FileDialog int

const (
	DialogNone FileDialog = iota
	DialogDelete
	DialogRename
	DialogInfo
	DialogOverwrite
)

// SortColumn is the files tab's active sort key.
type SortColumn int

const (
	SortName SortColumn = iota
	SortSize
	SortModified
)

// FileEntry is one row in a files tab's listing.
type FileEntry struct {
	Path       string
	Name       string
	Size       int64
	Modified   int64
	IsDir      bool
	IsSymlink  bool
	FolderType string
}

// ClipboardOp distinguishes a cut from a copy.
type ClipboardOp int

const (
	ClipboardNone ClipboardOp = iota
	ClipboardCut
	ClipboardCopy
)

// FilesTab is one open files panel tab.
type FilesTab struct {
	ID          string
	Path        string
	ViewingRoot bool
	Entries     []FileEntry // nil while loading
	Loading     bool

	SearchQuery   string
	SearchLoading bool
	SearchResults []FileEntry
	SearchError   string

	ClipboardOp   ClipboardOp
	ClipboardPath string

	PendingDialog FileDialog
	DialogTarget  string

	SortColumn SortColumn
	SortDesc   bool
}

// Voice tracks the connection's current voice association.
type Voice struct {
	Target       string
	IsChannel    bool
	Participants []string
	Muted        map[string]struct{}
	Speaking     bool

	// cancel tears down the DTLS control association's dial goroutine; set
	// by SetVoiceCancel once the dial starts, invoked by ClearVoice.
	cancel func()
}

// State is the full per-connection view-model.
type State struct {
	Channels map[string]*Channel // keyed lowercase

	Tabs       []Tab
	ActiveTab  string // matches Tab.key()
	unreadKeys map[string]struct{}

	Users []UserRow

	FilesTabs []FilesTab

	Voice Voice

	// KnownChannels is the deduplicated, case-insensitively-sorted list
	// used for tab completion, merged from every channel_list/chat_join
	// response seen on this connection.
	KnownChannels []string
}

// UserRow is one row in the connection's user list, with a cached avatar
// placeholder key (the real image bytes live in a UI-side cache keyed by
// this same string).
type UserRow struct {
	SessionID uint32
	Username  string
	Nickname  string
	IsAdmin   bool
	IsAway    bool
	Status    string
	Channel   string
	AvatarKey string
}

// New constructs an empty state model with a console tab active.
func New() *State {
	s := &State{
		Channels:   make(map[string]*Channel),
		Tabs:       []Tab{{Kind: TabConsole}},
		unreadKeys: make(map[string]struct{}),
	}
	s.ActiveTab = s.Tabs[0].key()
	return s
}

// UpsertChannel creates or updates a channel's metadata.
func (s *State) UpsertChannel(name, topic, topicSetBy string, secret bool) {
	key := strings.ToLower(name)
	ch, ok := s.Channels[key]
	if !ok {
		ch = &Channel{Name: name, Members: make(map[uint32]struct{})}
		s.Channels[key] = ch
	}
	ch.Topic = topic
	ch.TopicSetBy = topicSetBy
	ch.Secret = secret
	s.mergeKnownChannel(name)
}

// ChannelMemberJoined/Left update a channel's live member set.
func (s *State) ChannelMemberJoined(name string, sessionID uint32) {
	ch := s.Channels[strings.ToLower(name)]
	if ch != nil {
		ch.Members[sessionID] = struct{}{}
	}
}

func (s *State) ChannelMemberLeft(name string, sessionID uint32) {
	ch := s.Channels[strings.ToLower(name)]
	if ch != nil {
		delete(ch.Members, sessionID)
	}
}

// mergeKnownChannel inserts name into KnownChannels, deduplicated and kept
// sorted case-insensitively (spec §4.14).
func (s *State) mergeKnownChannel(name string) {
	lower := strings.ToLower(name)
	for _, existing := range s.KnownChannels {
		if strings.ToLower(existing) == lower {
			return
		}
	}
	s.KnownChannels = append(s.KnownChannels, name)
	sort.Slice(s.KnownChannels, func(i, j int) bool {
		return strings.ToLower(s.KnownChannels[i]) < strings.ToLower(s.KnownChannels[j])
	})
}

// MergeKnownChannels bulk-merges a channel_list response.
func (s *State) MergeKnownChannels(names []string) {
	for _, n := range names {
		s.mergeKnownChannel(n)
	}
}

// OpenTab ensures a tab for kind/target exists, marks it active, and
// clears its unread flag.
func (s *State) OpenTab(kind TabKind, target string) {
	t := Tab{Kind: kind, Target: target}
	key := t.key()
	for i := range s.Tabs {
		if s.Tabs[i].key() == key {
			s.Tabs[i].Unread = false
			s.ActiveTab = key
			return
		}
	}
	s.Tabs = append(s.Tabs, t)
	s.ActiveTab = key
}

// MarkUnread flags a non-active tab as having unseen content.
func (s *State) MarkUnread(kind TabKind, target string) {
	key := (Tab{Kind: kind, Target: target}).key()
	if key == s.ActiveTab {
		return
	}
	for i := range s.Tabs {
		if s.Tabs[i].key() == key {
			s.Tabs[i].Unread = true
			return
		}
	}
}

// CloseTab removes a channel or user-message tab (the console tab cannot
// be closed).
func (s *State) CloseTab(kind TabKind, target string) {
	if kind == TabConsole {
		return
	}
	key := (Tab{Kind: kind, Target: target}).key()
	for i := range s.Tabs {
		if s.Tabs[i].key() == key {
			s.Tabs = append(s.Tabs[:i], s.Tabs[i+1:]...)
			if s.ActiveTab == key && len(s.Tabs) > 0 {
				s.ActiveTab = s.Tabs[0].key()
			}
			return
		}
	}
}

// SetUsers replaces the user list wholesale, as delivered by a
// user_list_response.
func (s *State) SetUsers(users []UserRow) {
	s.Users = users
}

// UpsertUser inserts or updates a single row, used for user_connected /
// user_updated pushes.
func (s *State) UpsertUser(u UserRow) {
	for i := range s.Users {
		if s.Users[i].SessionID == u.SessionID {
			s.Users[i] = u
			return
		}
	}
	s.Users = append(s.Users, u)
}

// RemoveUser drops a row on user_disconnected.
func (s *State) RemoveUser(sessionID uint32) {
	for i, u := range s.Users {
		if u.SessionID == sessionID {
			s.Users = append(s.Users[:i], s.Users[i+1:]...)
			return
		}
	}
}

// OpenFilesTab appends a new files tab rooted at path.
func (s *State) OpenFilesTab(id, path string) *FilesTab {
	s.FilesTabs = append(s.FilesTabs, FilesTab{ID: id, Path: path, ViewingRoot: path == ""})
	return &s.FilesTabs[len(s.FilesTabs)-1]
}

// FilesTabByID returns a pointer to the tab with id, or nil.
func (s *State) FilesTabByID(id string) *FilesTab {
	for i := range s.FilesTabs {
		if s.FilesTabs[i].ID == id {
			return &s.FilesTabs[i]
		}
	}
	return nil
}

// SetVoice replaces the voice state on a successful voice_join.
func (s *State) SetVoice(target string, isChannel bool, participants []string) {
	s.Voice = Voice{Target: target, IsChannel: isChannel, Participants: participants, Muted: make(map[string]struct{})}
}

// SetVoiceCancel attaches the cancel func for the in-flight DTLS dial, so
// ClearVoice can tear it down when the voice session ends.
func (s *State) SetVoiceCancel(cancel func()) {
	s.Voice.cancel = cancel
}

// ClearVoice resets voice state on voice_leave / voice session end,
// cancelling the DTLS control association's dial goroutine if one is live.
func (s *State) ClearVoice() {
	if s.Voice.cancel != nil {
		s.Voice.cancel()
	}
	s.Voice = Voice{}
}

// MuteLocal / UnmuteLocal toggle the purely client-side per-user mute set
// (spec §4.6: local muting is never sent to the server).
func (s *State) MuteLocal(nickname string) {
	if s.Voice.Muted == nil {
		s.Voice.Muted = make(map[string]struct{})
	}
	s.Voice.Muted[strings.ToLower(nickname)] = struct{}{}
}

func (s *State) UnmuteLocal(nickname string) {
	delete(s.Voice.Muted, strings.ToLower(nickname))
}

func (s *State) IsMutedLocal(nickname string) bool {
	_, ok := s.Voice.Muted[strings.ToLower(nickname)]
	return ok
}
