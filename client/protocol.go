package main

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// Message type tags, mirroring the server's wire contract (spec §4.1, §6).
// Kept as a flat constant list rather than an imported package since the
// client and server are separate modules/binaries that only agree on the
// wire shape, the same way the teacher's own client duplicated the server's
// ControlMsg field set in transport.go instead of importing it.
const (
	msgHandshake         = "handshake"
	msgHandshakeResponse = "handshake_response"
	msgLogin             = "login"
	msgLoginResponse     = "login_response"

	msgUserList         = "user_list"
	msgUserListResponse = "user_list_response"
	msgUserConnected    = "user_connected"
	msgUserDisconnected = "user_disconnected"
	msgUserUpdated      = "user_updated"
	msgUserMessage      = "user_message"

	msgChatJoin         = "chat_join"
	msgChatJoinResponse = "chat_join_response"
	msgChatLeave        = "chat_leave"
	msgChatSend         = "chat_send"
	msgChatTopicSet     = "chat_topic_set"
	msgChatSecretSet    = "chat_secret_set"
	msgChatList         = "chat_list"
	msgChatListResponse = "chat_list_response"
	msgChatMessage      = "chat_message"
	msgChatUserJoined   = "chat_user_joined"
	msgChatUserLeft     = "chat_user_left"
	msgChatTopicChanged = "chat_topic_changed"

	msgNewsList         = "news_list"
	msgNewsListResponse = "news_list_response"
	msgNewsShow         = "news_show"
	msgNewsShowResponse = "news_show_response"

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

	msgVoiceJoin         = "voice_join"
	msgVoiceJoinResponse = "voice_join_response"
	msgVoiceLeave        = "voice_leave"
	msgVoiceUserJoined   = "voice_user_joined"
	msgVoiceUserLeft     = "voice_user_left"

	msgNetworkError = "network_error" // synthetic, never sent on the wire (§4.10)
)

// ClientMessage is the tagged-union request payload sent to the server.
type ClientMessage struct {
	Type string `json:"type"`

	Version string `json:"version,omitempty"`

	Username string   `json:"username,omitempty"`
	Password string   `json:"password,omitempty"`
	Locale   string   `json:"locale,omitempty"`
	Features []string `json:"features,omitempty"`
	Nickname string   `json:"nickname,omitempty"`

	Channel string `json:"channel,omitempty"`
	Message string `json:"message,omitempty"`
	Topic   string `json:"topic,omitempty"`
	Secret  *bool  `json:"secret,omitempty"`

	NewsID uint32 `json:"news_id,omitempty"`

	Path        string `json:"path,omitempty"`
	Destination string `json:"destination,omitempty"`
	Query       string `json:"query,omitempty"`
	AreaPrefix  string `json:"area_prefix,omitempty"`
	Root        bool   `json:"root,omitempty"`
	Overwrite   bool   `json:"overwrite,omitempty"`

	VoiceTarget string `json:"voice_target,omitempty"`
	IsChannel   bool   `json:"is_channel,omitempty"`
}

// ServerMessage is the tagged-union payload received from the server.
type ServerMessage struct {
	Type string `json:"type"`

	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`

	ServerVersion string `json:"server_version,omitempty"`

	SessionID   uint32         `json:"session_id,omitempty"`
	IsAdmin     bool           `json:"is_admin,omitempty"`
	Permissions []string       `json:"permissions,omitempty"`
	ServerInfo  *ServerInfoMsg `json:"server_info,omitempty"`
	ChatInfo    *ChatInfoMsg   `json:"chat_info,omitempty"`

	Users []UserSummary `json:"users,omitempty"`
	User  *UserSummary  `json:"user,omitempty"`

	Channel    string           `json:"channel,omitempty"`
	Topic      string           `json:"topic,omitempty"`
	TopicSetBy string           `json:"topic_set_by,omitempty"`
	Secret     bool             `json:"secret,omitempty"`
	Members    []uint32         `json:"members,omitempty"`
	Channels   []ChannelSummary `json:"channels,omitempty"`
	Username   string           `json:"username,omitempty"`
	Nickname   string           `json:"nickname,omitempty"`
	Message    string           `json:"message,omitempty"`
	Timestamp  int64            `json:"timestamp,omitempty"`

	News     *NewsItemMsg  `json:"news,omitempty"`
	NewsList []NewsItemMsg `json:"news_list,omitempty"`
	NewsID   uint32        `json:"news_id,omitempty"`

	Entries []FileEntryMsg `json:"entries,omitempty"`
	Entry   *FileEntryMsg  `json:"entry,omitempty"`

	SessionToken string   `json:"session_token,omitempty"`
	VoiceAddr    string   `json:"voice_addr,omitempty"`
	Participants []string `json:"participants,omitempty"`
	VoiceTarget  string   `json:"voice_target,omitempty"`
	IsChannel    bool     `json:"is_channel,omitempty"`
}

type ServerInfoMsg struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Image       string `json:"image,omitempty"`
	Version     string `json:"version"`
	MaxUsers    int    `json:"max_users,omitempty"`
}

type ChatInfoMsg struct {
	Topic      string `json:"topic,omitempty"`
	TopicSetBy string `json:"topic_set_by,omitempty"`
}

type UserSummary struct {
	SessionID uint32 `json:"session_id"`
	Username  string `json:"username"`
	Nickname  string `json:"nickname"`
	IsAdmin   bool   `json:"is_admin"`
	IsAway    bool   `json:"is_away"`
	Status    string `json:"status,omitempty"`
	Channel   string `json:"channel,omitempty"`
}

type ChannelSummary struct {
	Name        string `json:"name"`
	Topic       string `json:"topic,omitempty"`
	TopicSetBy  string `json:"topic_set_by,omitempty"`
	Secret      bool   `json:"secret"`
	MemberCount int    `json:"member_count"`
}

type NewsItemMsg struct {
	ID             uint32 `json:"id"`
	Body           string `json:"body,omitempty"`
	Image          string `json:"image,omitempty"`
	AuthorID       uint32 `json:"author_id"`
	AuthorUsername string `json:"author_username"`
	AuthorIsAdmin  bool   `json:"author_is_admin"`
	CreatedAt      int64  `json:"created_at"`
	UpdatedAt      int64  `json:"updated_at,omitempty"`
}

type FileEntryMsg struct {
	Path       string `json:"path"`
	Name       string `json:"name"`
	Size       int64  `json:"size"`
	Modified   int64  `json:"modified"`
	IsDir      bool   `json:"is_directory"`
	IsSymlink  bool   `json:"is_symlink"`
	FolderType string `json:"folder_type,omitempty"`
}

// maxFrameLength mirrors the server's limits.go bound on a single frame's
// payload.
const maxFrameLength = 16 * 1024 * 1024

// ErrFrameTooShort / ErrFrameTooLarge mirror the server's frame.go errors.
var (
	ErrFrameTooShort = errors.New("frame shorter than the minimum frame length")
	ErrFrameTooLarge = errors.New("frame larger than the maximum frame length")
)

// wireFrame is the u32-length | u32-message-id | JSON-payload envelope
// of the control port (spec §4.1, §6).
type wireFrame struct {
	messageID uint32
	payload   []byte
}

func readWireFrame(r io.Reader) (wireFrame, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return wireFrame{}, err
	}
	length := binary.BigEndian.Uint32(lenBuf[:])
	if length < 4 {
		return wireFrame{}, fmt.Errorf("%w: declared length %d", ErrFrameTooShort, length)
	}
	if length > maxFrameLength {
		return wireFrame{}, fmt.Errorf("%w: declared length %d", ErrFrameTooLarge, length)
	}

	var idBuf [4]byte
	if _, err := io.ReadFull(r, idBuf[:]); err != nil {
		return wireFrame{}, err
	}
	messageID := binary.BigEndian.Uint32(idBuf[:])

	payload := make([]byte, length-4)
	if len(payload) > 0 {
		if _, err := io.ReadFull(r, payload); err != nil {
			return wireFrame{}, err
		}
	}
	return wireFrame{messageID: messageID, payload: payload}, nil
}

func writeWireFrame(w io.Writer, messageID uint32, payload []byte) error {
	total := 4 + len(payload)
	if total > maxFrameLength {
		return fmt.Errorf("%w: payload length %d", ErrFrameTooLarge, len(payload))
	}
	buf := make([]byte, 8+len(payload))
	binary.BigEndian.PutUint32(buf[0:4], uint32(total))
	binary.BigEndian.PutUint32(buf[4:8], messageID)
	copy(buf[8:], payload)
	_, err := w.Write(buf)
	return err
}

func decodeServerMessage(payload []byte) (ServerMessage, error) {
	var msg ServerMessage
	err := json.Unmarshal(payload, &msg)
	return msg, err
}

func encodeClientMessage(msg ClientMessage) ([]byte, error) {
	return json.Marshal(msg)
}
