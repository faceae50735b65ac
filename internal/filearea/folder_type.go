// Package filearea implements the server's file-area model: folder-type
// inference from name suffixes, safe path resolution rooted under a single
// on-disk directory, and a lightweight search index (spec §7, §8.6).
package filearea

import "strings"

// FolderType describes the upload/visibility semantics a folder's name
// suffix grants (spec §7).
type FolderType int

const (
	// Default is a read-only folder: no suffix.
	Default FolderType = iota
	// Upload allows any permitted user to add files; the permission is
	// inherited by subfolders.
	Upload
	// DropBox is a blind-upload folder whose contents only admins can see.
	DropBox
	// UserDropBox is a blind-upload folder whose contents the named user
	// (plus admins) can see.
	UserDropBox
)

const (
	suffixUpload         = " [NEXUS-UL]"
	suffixDropbox        = " [NEXUS-DB]"
	suffixDropboxPrefix  = "[NEXUS-DB-"
)

// ParseResult is the outcome of parsing a folder name's suffix.
type ParseResult struct {
	Type FolderType
	// User holds the drop-box owner's username, case as written in the
	// folder name, when Type is UserDropBox.
	User string
}

// ParseFolderType inspects name for a case-insensitive type suffix. Suffix
// matching requires a space immediately before the bracket and at least one
// non-whitespace character before that — a suffix-only name (e.g.
// "[NEXUS-UL]", even with leading spaces) is Default. When a name carries
// more than one valid suffix, only the last one (the one actually at the
// end of the string) determines the type (spec §8.6).
func ParseFolderType(name string) ParseResult {
	upper := strings.ToUpper(name)

	if strings.HasSuffix(upper, suffixUpload) && len(name) > len(suffixUpload) {
		prefixEnd := len(name) - len(suffixUpload)
		if strings.TrimSpace(name[:prefixEnd]) != "" {
			return ParseResult{Type: Upload}
		}
	}

	if strings.HasSuffix(upper, "]") {
		if prefixPos := strings.LastIndex(upper, suffixDropboxPrefix); prefixPos > 0 && upper[prefixPos-1] == ' ' {
			bracketPos := len(name) - 1
			userStart := prefixPos + len(suffixDropboxPrefix)
			userEnd := bracketPos
			if userStart < userEnd {
				user := name[userStart:userEnd]
				if !strings.ContainsAny(user, "[]") && user != "" && strings.TrimSpace(name[:prefixPos]) != "" {
					return ParseResult{Type: UserDropBox, User: user}
				}
			}
		}
	}

	if strings.HasSuffix(upper, suffixDropbox) && len(name) > len(suffixDropbox) {
		prefixEnd := len(name) - len(suffixDropbox)
		if strings.TrimSpace(name[:prefixEnd]) != "" {
			return ParseResult{Type: DropBox}
		}
	}

	return ParseResult{Type: Default}
}

// DisplayName strips a recognized, well-formed type suffix (and any
// whitespace immediately before it) from name. A name with no valid suffix,
// or one that parses as Default, is returned unchanged.
func DisplayName(name string) string {
	upper := strings.ToUpper(name)

	if strings.HasSuffix(upper, suffixUpload) && len(name) > len(suffixUpload) {
		end := len(name) - len(suffixUpload)
		if prefix := strings.TrimRight(name[:end], " \t"); prefix != "" {
			return prefix
		}
	}

	if strings.HasSuffix(upper, "]") {
		if prefixPos := strings.LastIndex(upper, suffixDropboxPrefix); prefixPos > 0 && upper[prefixPos-1] == ' ' {
			userStart := prefixPos + len(suffixDropboxPrefix)
			userEnd := len(name) - 1
			if userStart < userEnd {
				user := name[userStart:userEnd]
				if !strings.ContainsAny(user, "[]") && user != "" {
					if prefix := strings.TrimRight(name[:prefixPos], " \t"); prefix != "" {
						return prefix
					}
				}
			}
		}
	}

	if strings.HasSuffix(upper, suffixDropbox) && len(name) > len(suffixDropbox) {
		end := len(name) - len(suffixDropbox)
		if prefix := strings.TrimRight(name[:end], " \t"); prefix != "" {
			return prefix
		}
	}

	return name
}
