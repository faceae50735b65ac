// Package transfer implements the file-transfer sub-protocol served on the
// dedicated transfer port: its own handshake/login, then exactly one of
// FileDownload or FileUpload per connection, streaming length-prefixed file
// records (spec §4.9).
package transfer

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/nexus-im/server/internal/filearea"
)

// Identity is the authenticated principal driving one transfer connection.
type Identity struct {
	AccountID   uint32
	Username    string
	IsAdmin     bool
	Permissions map[string]struct{}
}

func (id Identity) can(perm string) bool {
	if id.IsAdmin {
		return true
	}
	_, ok := id.Permissions[perm]
	return ok
}

// Authenticator verifies transfer-port login credentials.
type Authenticator interface {
	Authenticate(username, password string) (Identity, error)
}

// AreaResolver maps an authenticated identity to its file-area root
// (root browsing vs per-user area).
type AreaResolver interface {
	// UserAreaDir returns the absolute directory for id's own user area.
	UserAreaDir(id Identity) (string, error)
	// RootDir returns the file-area root, used when root=true.
	RootDir() string
}

// Engine serves one accepted connection on the transfer port.
type Engine struct {
	ServerVersion string
	Auth          Authenticator
	Areas         AreaResolver
	IdleTimeout   time.Duration
}

// errClientFault marks an error that should be reported to the client as a
// response frame rather than just logged and the connection dropped silently.
type errClientFault struct{ msg string }

func (e errClientFault) Error() string { return e.msg }

func fault(format string, args ...any) error {
	return errClientFault{msg: fmt.Sprintf(format, args...)}
}

// Serve drives one transfer-port connection end to end. conn must support
// SetReadDeadline (a *tls.Conn in production, a net.Conn in tests).
func (e *Engine) Serve(conn net.Conn) {
	defer conn.Close()

	if e.IdleTimeout > 0 {
		conn.SetReadDeadline(time.Now().Add(e.IdleTimeout))
	}

	id, err := e.handshakeAndLogin(conn)
	if err != nil {
		var cf errClientFault
		if errors.As(err, &cf) {
			log.Printf("[transfer] auth failed from %s: %s", conn.RemoteAddr(), cf.msg)
		} else {
			log.Printf("[transfer] connection setup error from %s: %v", conn.RemoteAddr(), err)
		}
		return
	}

	// Idle timeout only guards the handshake/login phase; once a transfer
	// begins, body bytes flowing keep the connection alive (spec §4.9).
	conn.SetReadDeadline(time.Time{})

	req, err := readRequest(conn)
	if err != nil {
		log.Printf("[transfer] read request from %s: %v", conn.RemoteAddr(), err)
		return
	}

	switch req.Type {
	case reqFileDownload:
		if err := e.handleDownload(conn, id, req); err != nil {
			e.sendError(conn, err)
		}
	case reqFileUpload:
		if err := e.handleUpload(conn, id, req); err != nil {
			e.sendError(conn, err)
		}
	default:
		e.sendError(conn, fault("expected file_download or file_upload, got %q", req.Type))
	}
}

func (e *Engine) sendError(conn net.Conn, err error) {
	msg := "internal error"
	var cf errClientFault
	if errors.As(err, &cf) {
		msg = cf.msg
	} else {
		log.Printf("[transfer] internal error: %v", err)
	}
	writeResponse(conn, response{Type: respError, Success: false, Error: msg})
}

func (e *Engine) handshakeAndLogin(conn net.Conn) (Identity, error) {
	hs, err := readRequest(conn)
	if err != nil {
		return Identity{}, err
	}
	if hs.Type != reqHandshake {
		return Identity{}, fault("expected handshake, got %q", hs.Type)
	}
	if err := writeResponse(conn, response{Type: respHandshake, Success: true, ServerVersion: e.ServerVersion}); err != nil {
		return Identity{}, err
	}

	login, err := readRequest(conn)
	if err != nil {
		return Identity{}, err
	}
	if login.Type != reqLogin {
		return Identity{}, fault("expected login, got %q", login.Type)
	}

	id, authErr := e.Auth.Authenticate(login.Username, login.Password)
	if authErr != nil {
		writeResponse(conn, response{Type: respLoginResponse, Success: false, Error: "invalid credentials"})
		return Identity{}, fault("invalid credentials for %q", login.Username)
	}
	if err := writeResponse(conn, response{Type: respLoginResponse, Success: true}); err != nil {
		return Identity{}, err
	}
	return id, nil
}

func readRequest(r io.Reader) (request, error) {
	raw, err := readFrame(r)
	if err != nil {
		return request{}, err
	}
	var req request
	if err := json.Unmarshal(raw, &req); err != nil {
		return request{}, fmt.Errorf("decode request: %w", err)
	}
	return req, nil
}

func writeResponse(w io.Writer, resp response) error {
	raw, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	return writeFrame(w, raw)
}

// handleDownload resolves req.Path (within the root area or id's own user
// area) and streams it as a single-file transfer record.
func (e *Engine) handleDownload(conn net.Conn, id Identity, req request) error {
	if !id.can("file_download") {
		return fault("permission denied")
	}
	areaRoot, err := e.areaFor(id, req.Root)
	if err != nil {
		return err
	}

	resolved, err := filearea.Resolve(areaRoot, req.Path)
	if err != nil {
		return fault("invalid path")
	}
	if resolved.IsDir {
		return fault("cannot download a directory")
	}

	f, err := os.Open(resolved.AbsPath)
	if err != nil {
		return fmt.Errorf("open %s: %w", resolved.AbsPath, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat %s: %w", resolved.AbsPath, err)
	}

	transferID := newTransferID()
	if err := writeResponse(conn, response{
		Type: respTransferStarted, TransferID: transferID,
		TotalBytes: info.Size(), FileCount: 1,
	}); err != nil {
		return err
	}

	name := filepath.Base(resolved.AbsPath)
	if err := writeFileRecord(conn, name, info.Size(), f); err != nil {
		return err
	}
	return writeResponse(conn, response{Type: respTransferComplete, Success: true})
}

// handleUpload accepts req.FileCount records into req.Destination, enforcing
// folder-type gating: the destination must be an upload folder, a folder
// inside one, or a drop box (spec §4.9).
func (e *Engine) handleUpload(conn net.Conn, id Identity, req request) error {
	if !id.can("file_upload") {
		return fault("permission denied")
	}
	areaRoot, err := e.areaFor(id, req.Root)
	if err != nil {
		return err
	}

	resolved, err := filearea.Resolve(areaRoot, req.Destination)
	if err != nil {
		return fault("invalid destination")
	}
	if !resolved.IsDir {
		return fault("destination is not a directory")
	}

	folderName := filepath.Base(resolved.AbsPath)
	parsed := filearea.ParseFolderType(folderName)
	accepts := parsed.Type == filearea.Upload || parsed.Type == filearea.DropBox || parsed.Type == filearea.UserDropBox
	for _, seg := range strings.Split(filepath.ToSlash(req.Destination), "/") {
		if filearea.ParseFolderType(seg).Type == filearea.Upload {
			accepts = true // upload permission is inherited by subfolders
		}
	}
	if !accepts {
		return fault("destination does not accept uploads")
	}

	transferID := newTransferID()
	if err := writeResponse(conn, response{Type: respTransferReady, TransferID: transferID}); err != nil {
		return err
	}

	for i := 0; i < req.FileCount; i++ {
		name, size, err := readFileRecordHeader(conn)
		if err != nil {
			return err
		}
		if strings.ContainsAny(name, "/\\\x00") {
			return fault("invalid file name %q", name)
		}
		dest := filepath.Join(resolved.AbsPath, name)
		if !req.Overwrite {
			if _, err := os.Stat(dest); err == nil {
				return fault("%s already exists", name)
			}
		}
		if err := receiveFile(conn, dest, size); err != nil {
			return fmt.Errorf("receive %s: %w", name, err)
		}
	}

	return writeResponse(conn, response{Type: respTransferComplete, Success: true})
}

func (e *Engine) areaFor(id Identity, root bool) (string, error) {
	if root {
		if !id.can("file_root") {
			return "", fault("permission denied")
		}
		return e.Areas.RootDir(), nil
	}
	return e.Areas.UserAreaDir(id)
}

func writeFileRecord(w io.Writer, name string, size int64, body io.Reader) error {
	hdr, err := json.Marshal(fileRecordHeader{Name: name, Size: size})
	if err != nil {
		return err
	}
	if err := writeFrame(w, hdr); err != nil {
		return err
	}
	_, err = io.CopyN(w, body, size)
	return err
}

func readFileRecordHeader(r io.Reader) (string, int64, error) {
	raw, err := readFrame(r)
	if err != nil {
		return "", 0, err
	}
	var hdr fileRecordHeader
	if err := json.Unmarshal(raw, &hdr); err != nil {
		return "", 0, fmt.Errorf("decode file record header: %w", err)
	}
	return hdr.Name, hdr.Size, nil
}

func receiveFile(r io.Reader, dest string, size int64) error {
	f, err := os.OpenFile(dest, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = io.CopyN(f, r, size)
	return err
}

var transferIDCounter uint64

func newTransferID() string {
	transferIDCounter++
	return fmt.Sprintf("xfer-%d-%d", time.Now().UnixNano(), transferIDCounter)
}
