package main

// Permission is one tag from the closed set of operations a session may be
// authorized to perform. Admins are treated as holding every permission
// (see Session.Can).
type Permission string

const (
	PermChatSend      Permission = "chat_send"
	PermChatTopicEdit Permission = "chat_topic_edit"
	PermChatSecretSet Permission = "chat_secret_set"
	PermUserList      Permission = "user_list"
	PermUserEdit      Permission = "user_edit"
	PermUserCreate    Permission = "user_create"
	PermUserDelete    Permission = "user_delete"
	PermUserKick      Permission = "user_kick"
	PermBroadcast     Permission = "broadcast"
	PermNewsRead      Permission = "news_read"
	PermNewsPost      Permission = "news_post"
	PermNewsDelete    Permission = "news_delete"
	PermBanCreate     Permission = "ban_create"
	PermBanDelete     Permission = "ban_delete"
	PermTrustCreate   Permission = "trust_create"
	PermTrustDelete   Permission = "trust_delete"
	PermFileList      Permission = "file_list"
	PermFileUpload    Permission = "file_upload"
	PermFileDownload  Permission = "file_download"
	PermFileDelete    Permission = "file_delete"
	PermFileRoot      Permission = "file_root"
	PermVoiceJoin     Permission = "voice_join"
)

// allPermissions lists every permission tag; admins are granted the union
// of this set (spec §4.8).
var allPermissions = []Permission{
	PermChatSend, PermChatTopicEdit, PermChatSecretSet,
	PermUserList, PermUserEdit, PermUserCreate, PermUserDelete, PermUserKick,
	PermBroadcast,
	PermNewsRead, PermNewsPost, PermNewsDelete,
	PermBanCreate, PermBanDelete, PermTrustCreate, PermTrustDelete,
	PermFileList, PermFileUpload, PermFileDownload, PermFileDelete, PermFileRoot,
	PermVoiceJoin,
}

// PermissionSet is an immutable-by-convention set of permission tags. The
// zero value is an empty set.
type PermissionSet map[Permission]struct{}

// NewPermissionSet builds a set from a permission-tag slice (as stored in
// the database, or as received in a user_update request).
func NewPermissionSet(tags []string) PermissionSet {
	s := make(PermissionSet, len(tags))
	for _, t := range tags {
		s[Permission(t)] = struct{}{}
	}
	return s
}

// AdminPermissionSet returns the set of every known permission.
func AdminPermissionSet() PermissionSet {
	return NewPermissionSet(permissionStrings(allPermissions))
}

func permissionStrings(perms []Permission) []string {
	out := make([]string, len(perms))
	for i, p := range perms {
		out[i] = string(p)
	}
	return out
}

// Has reports whether the set contains p.
func (s PermissionSet) Has(p Permission) bool {
	_, ok := s[p]
	return ok
}

// Slice returns the set's members as a string slice, in no particular
// order, suitable for wire serialization. Order is not significant to clients.
func (s PermissionSet) Slice() []string {
	out := make([]string, 0, len(s))
	for p := range s {
		out = append(out, string(p))
	}
	return out
}
