package main

// Message type tags. Client messages are requests (or the handshake/login
// pair); server messages are either a response correlated by message-id or
// a push event (message-id 0, or the id of the request that induced it).
const (
	// Handshake / login.
	msgHandshake         = "handshake"
	msgHandshakeResponse = "handshake_response"
	msgLogin             = "login"
	msgLoginResponse     = "login_response"

	// Identity & presence.
	msgUserList         = "user_list"
	msgUserListResponse = "user_list_response"
	msgUserInfo         = "user_info"
	msgUserInfoResponse = "user_info_response"
	msgUserUpdate       = "user_update"
	msgUserDelete       = "user_delete"
	msgUserCreate       = "user_create"
	msgUserAway         = "user_away"
	msgUserStatus       = "user_status"
	msgUserKick         = "user_kick"
	msgUserBroadcast    = "user_broadcast"
	msgUserMessage      = "user_message"
	msgGenericResponse  = "response"
	msgUserConnected    = "user_connected"
	msgUserDisconnected = "user_disconnected"
	msgUserUpdated      = "user_updated"

	// Chat.
	msgChatJoin          = "chat_join"
	msgChatJoinResponse  = "chat_join_response"
	msgChatLeave         = "chat_leave"
	msgChatSend          = "chat_send"
	msgChatTopicSet      = "chat_topic_set"
	msgChatSecretSet     = "chat_secret_set"
	msgChatList          = "chat_list"
	msgChatListResponse  = "chat_list_response"
	msgChatMessage       = "chat_message"
	msgChatUserJoined    = "chat_user_joined"
	msgChatUserLeft      = "chat_user_left"
	msgChatTopicChanged  = "chat_topic_changed"

	// News.
	msgNewsList            = "news_list"
	msgNewsListResponse    = "news_list_response"
	msgNewsShow            = "news_show"
	msgNewsShowResponse    = "news_show_response"
	msgNewsCreate          = "news_create"
	msgNewsEdit            = "news_edit"
	msgNewsEditResponse    = "news_edit_response"
	msgNewsUpdate          = "news_update"
	msgNewsDelete          = "news_delete"
	msgNewsUpdatedCreated  = "news_updated_created"
	msgNewsUpdatedUpdated  = "news_updated_updated"
	msgNewsUpdatedDeleted  = "news_updated_deleted"

	// Bans & trusts.
	msgBanCreate     = "ban_create"
	msgBanDelete     = "ban_delete"
	msgBanList       = "ban_list"
	msgBanListResp   = "ban_list_response"
	msgTrustCreate   = "trust_create"
	msgTrustDelete   = "trust_delete"
	msgTrustList     = "trust_list"
	msgTrustListResp = "trust_list_response"

	// Files.
	msgFileList       = "file_list"
	msgFileListResp   = "file_list_response"
	msgFileSearch     = "file_search"
	msgFileSearchResp = "file_search_response"
	msgFileInfo       = "file_info"
	msgFileInfoResp   = "file_info_response"
	msgFileCreateDir  = "file_create_dir"
	msgFileDelete     = "file_delete"
	msgFileRename     = "file_rename"
	msgFileMove       = "file_move"
	msgFileCopy       = "file_copy"

	// Voice.
	msgVoiceJoin         = "voice_join"
	msgVoiceJoinResponse = "voice_join_response"
	msgVoiceLeave        = "voice_leave"
	msgVoiceUserJoined   = "voice_user_joined"
	msgVoiceUserLeft     = "voice_user_left"
)

// clientMessage is the tagged-union payload sent by clients on the control
// connection. Only the fields relevant to Type are populated; this mirrors
// the teacher's ControlMsg — one flat struct with per-field doc comments
// naming the message types that use them, rather than one Go type per
// variant, so (de)serialization stays a single json.Unmarshal call.
type clientMessage struct {
	Type string `json:"type"`

	// Handshake.
	Version string `json:"version,omitempty"` // handshake: client semver

	// Login.
	Username string   `json:"username,omitempty"`
	Password string   `json:"password,omitempty"`
	Locale   string   `json:"locale,omitempty"`
	Features []string `json:"features,omitempty"`
	Nickname string   `json:"nickname,omitempty"` // login: optional nickname for shared accounts

	// User admin / presence.
	UserID      uint32 `json:"user_id,omitempty"`
	IsAdmin     *bool  `json:"is_admin,omitempty"`
	Permissions []string `json:"permissions,omitempty"`
	Enabled     *bool  `json:"enabled,omitempty"`
	IsAway      *bool  `json:"is_away,omitempty"`
	Status      string `json:"status,omitempty"`
	Reason      string `json:"reason,omitempty"`

	// Chat.
	Channel string `json:"channel,omitempty"`
	Message string `json:"message,omitempty"`
	Topic   string `json:"topic,omitempty"`
	Secret  *bool  `json:"secret,omitempty"`

	// News.
	NewsID uint32 `json:"news_id,omitempty"`
	Body   string `json:"body,omitempty"`
	Image  string `json:"image,omitempty"`

	// Bans/trusts: the target may be a nickname (bulk), a literal IP, or a CIDR.
	Target    string `json:"target,omitempty"`
	ExpiresAt *int64 `json:"expires_at,omitempty"`

	// Files.
	Path        string `json:"path,omitempty"`
	Destination string `json:"destination,omitempty"`
	Query       string `json:"query,omitempty"`
	AreaPrefix  string `json:"area_prefix,omitempty"`
	Root        bool   `json:"root,omitempty"`
	Overwrite   bool   `json:"overwrite,omitempty"`

	// Voice.
	VoiceTarget string `json:"voice_target,omitempty"`
	IsChannel   bool   `json:"is_channel,omitempty"`
}

// serverMessage is the tagged-union payload sent by the server: either a
// direct response (message-id echoes the request) or a push event
// (message-id 0 or the id of the request that induced it).
type serverMessage struct {
	Type string `json:"type"`

	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`

	// Handshake.
	ServerVersion string `json:"server_version,omitempty"`

	// Login.
	SessionID   uint32          `json:"session_id,omitempty"`
	IsAdmin     bool            `json:"is_admin,omitempty"`
	Permissions []string        `json:"permissions,omitempty"`
	ServerInfo  *serverInfoMsg  `json:"server_info,omitempty"`
	ChatInfo    *chatInfoMsg    `json:"chat_info,omitempty"`
	Locale      string          `json:"locale,omitempty"`

	// Identity & presence.
	Users      []userSummary `json:"users,omitempty"`
	User       *userSummary  `json:"user,omitempty"`

	// Chat.
	Channel   string           `json:"channel,omitempty"`
	Topic     string           `json:"topic,omitempty"`
	TopicSetBy string          `json:"topic_set_by,omitempty"`
	Secret    bool             `json:"secret,omitempty"`
	Members   []uint32         `json:"members,omitempty"`
	Channels  []channelSummary `json:"channels,omitempty"`
	Username  string           `json:"username,omitempty"`
	Nickname  string           `json:"nickname,omitempty"`
	Message   string           `json:"message,omitempty"`
	Timestamp int64            `json:"timestamp,omitempty"`

	// News.
	News     *newsItemMsg   `json:"news,omitempty"`
	NewsList []newsItemMsg  `json:"news_list,omitempty"`
	NewsID   uint32         `json:"news_id,omitempty"`

	// Bans/trusts.
	Bans   []ruleEntryMsg `json:"bans,omitempty"`
	Trusts []ruleEntryMsg `json:"trusts,omitempty"`

	// Files.
	Entries []fileEntryMsg `json:"entries,omitempty"`
	Entry   *fileEntryMsg  `json:"entry,omitempty"`

	// Voice.
	SessionToken string   `json:"session_token,omitempty"`
	VoiceAddr    string   `json:"voice_addr,omitempty"`
	Participants []string `json:"participants,omitempty"`
	VoiceTarget  string   `json:"voice_target,omitempty"`
	IsChannel    bool     `json:"is_channel,omitempty"`
}

type serverInfoMsg struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Image       string `json:"image,omitempty"`
	Version     string `json:"version"`
	MaxUsers    int    `json:"max_users,omitempty"`
}

type chatInfoMsg struct {
	Topic      string `json:"topic,omitempty"`
	TopicSetBy string `json:"topic_set_by,omitempty"`
}

type userSummary struct {
	SessionID uint32   `json:"session_id"`
	Username  string   `json:"username"`
	Nickname  string   `json:"nickname"`
	IsAdmin   bool     `json:"is_admin"`
	IsAway    bool     `json:"is_away"`
	Status    string   `json:"status,omitempty"`
	Channel   string   `json:"channel,omitempty"`
}

type channelSummary struct {
	Name       string `json:"name"`
	Topic      string `json:"topic,omitempty"`
	TopicSetBy string `json:"topic_set_by,omitempty"`
	Secret     bool   `json:"secret"`
	MemberCount int   `json:"member_count"`
}

type newsItemMsg struct {
	ID              uint32 `json:"id"`
	Body            string `json:"body,omitempty"`
	Image           string `json:"image,omitempty"`
	AuthorID        uint32 `json:"author_id"`
	AuthorUsername  string `json:"author_username"`
	AuthorIsAdmin   bool   `json:"author_is_admin"`
	CreatedAt       int64  `json:"created_at"`
	UpdatedAt       int64  `json:"updated_at,omitempty"`
}

type ruleEntryMsg struct {
	IPAddress string `json:"ip_address"`
	Nickname  string `json:"nickname,omitempty"`
	Reason    string `json:"reason,omitempty"`
	CreatedBy string `json:"created_by"`
	CreatedAt int64  `json:"created_at"`
	ExpiresAt int64  `json:"expires_at,omitempty"`
}

type fileEntryMsg struct {
	Path       string `json:"path"`
	Name       string `json:"name"`
	Size       int64  `json:"size"`
	Modified   int64  `json:"modified"`
	IsDir      bool   `json:"is_directory"`
	IsSymlink  bool   `json:"is_symlink"`
	FolderType string `json:"folder_type,omitempty"`
}
