package transfer

import (
	"encoding/json"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"
)

type fakeAuth struct{}

func (fakeAuth) Authenticate(username, password string) (Identity, error) {
	if username == "alice" && password == "pw" {
		return Identity{
			AccountID: 1, Username: "alice",
			Permissions: map[string]struct{}{"file_download": {}, "file_upload": {}},
		}, nil
	}
	return Identity{}, errNotAuthorized
}

var errNotAuthorized = &authError{}

type authError struct{}

func (*authError) Error() string { return "not authorized" }

type fakeAreas struct{ root, userDir string }

func (a fakeAreas) UserAreaDir(Identity) (string, error) { return a.userDir, nil }
func (a fakeAreas) RootDir() string                      { return a.root }

func dial(t *testing.T, e *Engine) net.Conn {
	t.Helper()
	server, client := net.Pipe()
	go e.Serve(server)
	return client
}

func doHandshakeLogin(t *testing.T, conn net.Conn) {
	t.Helper()
	sendRequest(t, conn, request{Type: reqHandshake, Version: "1.0.0"})
	readAndExpect(t, conn, respHandshake, true)

	sendRequest(t, conn, request{Type: reqLogin, Username: "alice", Password: "pw"})
	readAndExpect(t, conn, respLoginResponse, true)
}

func sendRequest(t *testing.T, conn net.Conn, req request) {
	t.Helper()
	raw, err := json.Marshal(req)
	if err != nil {
		t.Fatal(err)
	}
	if err := writeFrame(conn, raw); err != nil {
		t.Fatalf("writeFrame: %v", err)
	}
}

func readAndExpect(t *testing.T, conn net.Conn, wantType string, wantSuccess bool) response {
	t.Helper()
	raw, err := readFrame(conn)
	if err != nil {
		t.Fatalf("readFrame: %v", err)
	}
	var resp response
	if err := json.Unmarshal(raw, &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Type != wantType {
		t.Fatalf("got type %q, want %q (resp=%+v)", resp.Type, wantType, resp)
	}
	if resp.Success != wantSuccess {
		t.Fatalf("got success=%v, want %v (resp=%+v)", resp.Success, wantSuccess, resp)
	}
	return resp
}

func TestDownloadHappyPath(t *testing.T) {
	userDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(userDir, "note.txt"), []byte("hello world"), 0o644); err != nil {
		t.Fatal(err)
	}

	e := &Engine{ServerVersion: "1.3.0", Auth: fakeAuth{}, Areas: fakeAreas{userDir: userDir}, IdleTimeout: time.Second}
	conn := dial(t, e)
	defer conn.Close()

	doHandshakeLogin(t, conn)
	sendRequest(t, conn, request{Type: reqFileDownload, Path: "note.txt"})

	started := readAndExpect(t, conn, respTransferStarted, false)
	if started.TotalBytes != int64(len("hello world")) || started.FileCount != 1 {
		t.Fatalf("unexpected transfer_started: %+v", started)
	}

	hdrRaw, err := readFrame(conn)
	if err != nil {
		t.Fatalf("readFrame header: %v", err)
	}
	var hdr fileRecordHeader
	if err := json.Unmarshal(hdrRaw, &hdr); err != nil {
		t.Fatal(err)
	}
	if hdr.Name != "note.txt" || hdr.Size != int64(len("hello world")) {
		t.Fatalf("unexpected header: %+v", hdr)
	}

	body := make([]byte, hdr.Size)
	if _, err := readFull(conn, body); err != nil {
		t.Fatalf("read body: %v", err)
	}
	if string(body) != "hello world" {
		t.Fatalf("body = %q", body)
	}

	readAndExpect(t, conn, respTransferComplete, true)
}

func TestDownloadRejectsPathTraversal(t *testing.T) {
	userDir := t.TempDir()
	e := &Engine{ServerVersion: "1.3.0", Auth: fakeAuth{}, Areas: fakeAreas{userDir: userDir}}
	conn := dial(t, e)
	defer conn.Close()

	doHandshakeLogin(t, conn)
	sendRequest(t, conn, request{Type: reqFileDownload, Path: "../../../../etc/passwd"})
	readAndExpect(t, conn, respError, false)
}

func TestUploadRejectsNonUploadFolder(t *testing.T) {
	userDir := t.TempDir()
	if err := os.Mkdir(filepath.Join(userDir, "ReadOnly"), 0o755); err != nil {
		t.Fatal(err)
	}
	e := &Engine{ServerVersion: "1.3.0", Auth: fakeAuth{}, Areas: fakeAreas{userDir: userDir}}
	conn := dial(t, e)
	defer conn.Close()

	doHandshakeLogin(t, conn)
	sendRequest(t, conn, request{Type: reqFileUpload, Destination: "ReadOnly", FileCount: 0})
	readAndExpect(t, conn, respError, false)
}

func TestUploadToDropBoxSucceeds(t *testing.T) {
	userDir := t.TempDir()
	if err := os.Mkdir(filepath.Join(userDir, "Inbox [NEXUS-DB]"), 0o755); err != nil {
		t.Fatal(err)
	}
	e := &Engine{ServerVersion: "1.3.0", Auth: fakeAuth{}, Areas: fakeAreas{userDir: userDir}}
	conn := dial(t, e)
	defer conn.Close()

	doHandshakeLogin(t, conn)
	sendRequest(t, conn, request{Type: reqFileUpload, Destination: "Inbox [NEXUS-DB]", FileCount: 1})
	readAndExpect(t, conn, respTransferReady, false)

	body := []byte("secret payload")
	hdr, _ := json.Marshal(fileRecordHeader{Name: "tip.txt", Size: int64(len(body))})
	if err := writeFrame(conn, hdr); err != nil {
		t.Fatal(err)
	}
	if _, err := conn.Write(body); err != nil {
		t.Fatal(err)
	}

	readAndExpect(t, conn, respTransferComplete, true)

	got, err := os.ReadFile(filepath.Join(userDir, "Inbox [NEXUS-DB]", "tip.txt"))
	if err != nil {
		t.Fatalf("read uploaded file: %v", err)
	}
	if string(got) != "secret payload" {
		t.Fatalf("uploaded content = %q", got)
	}
}

func TestLoginFailureClosesConnection(t *testing.T) {
	userDir := t.TempDir()
	e := &Engine{ServerVersion: "1.3.0", Auth: fakeAuth{}, Areas: fakeAreas{userDir: userDir}}
	conn := dial(t, e)
	defer conn.Close()

	sendRequest(t, conn, request{Type: reqHandshake})
	readAndExpect(t, conn, respHandshake, true)

	sendRequest(t, conn, request{Type: reqLogin, Username: "alice", Password: "wrong"})
	readAndExpect(t, conn, respLoginResponse, false)

	if _, err := readFrame(conn); err == nil {
		t.Fatal("expected the connection to be closed after a failed login")
	}
}

func readFull(r net.Conn, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := r.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}
