// Package transfermgr implements the client's persisted, resumable file
// transfer queue (spec §4.12, §6 "Persisted state"): a JSON transfers file
// in the OS config directory, a queued-or-parallel execution policy, and
// cooperative cancellation via a per-transfer atomic flag.
package transfermgr

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// Status is a transfer's lifecycle state.
type Status string

const (
	Queued      Status = "queued"
	Connecting  Status = "connecting"
	Transferring Status = "transferring"
	Completed   Status = "completed"
	Failed      Status = "failed"
	Paused      Status = "paused"
)

// FailureReason is the client-side transfer failure taxonomy (spec §4.12),
// each mapped by the UI to a localized message.
type FailureReason string

const (
	FailureNotFound             FailureReason = "not_found"
	FailurePermission           FailureReason = "permission"
	FailureInvalid              FailureReason = "invalid"
	FailureUnsupportedVersion   FailureReason = "unsupported_version"
	FailureDiskFull             FailureReason = "disk_full"
	FailureHashMismatch         FailureReason = "hash_mismatch"
	FailureIoError              FailureReason = "io_error"
	FailureProtocolError        FailureReason = "protocol_error"
	FailureConnectionError      FailureReason = "connection_error"
	FailureCertificateMismatch  FailureReason = "certificate_mismatch"
	FailureAuthenticationFailed FailureReason = "authentication_failed"
	FailureUnknown              FailureReason = "unknown"
)

// Direction distinguishes an upload from a download.
type Direction string

const (
	Upload   Direction = "upload"
	Download Direction = "download"
)

// Transfer is one queued or in-flight file transfer.
type Transfer struct {
	ID           string        `json:"id"`
	ServerAddr   string        `json:"server_addr"`
	Direction    Direction     `json:"direction"`
	RemotePath   string        `json:"remote_path"`
	LocalPath    string        `json:"local_path"`
	Size         int64         `json:"size"`
	Transferred  int64         `json:"transferred"`
	Status       Status        `json:"status"`
	FailureReason FailureReason `json:"failure_reason,omitempty"`
}

// file is the on-disk shape of the transfers file.
type file struct {
	QueueTransfers bool       `json:"queue_transfers"`
	Transfers      []Transfer `json:"transfers"`
}

// Manager owns the in-memory transfer list, the dirty flag, and the
// cancellation-flag registry for in-flight transfers.
type Manager struct {
	mu             sync.Mutex
	path           string
	queueTransfers bool
	transfers      []Transfer
	dirty          bool

	cancelMu sync.Mutex
	cancels  map[string]*atomic.Bool
}

// Path returns the platform config directory path for the transfers file
// (spec §6: "a transfers file in the platform config directory... mode
// 0600" on Unix).
func Path() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "nexus", "transfers.json"), nil
}

// Load reads the transfers file at Path, resetting any transfer still
// marked Connecting or Transferring back to Queued (spec §6: "active
// reset to Queued on load" — a transfer cannot legitimately be mid-flight
// across a process restart). A missing file yields an empty, clean
// Manager rather than an error; any other failure returns an empty, clean
// Manager together with the error.
func Load() (*Manager, error) {
	path, err := Path()
	m := &Manager{path: path, queueTransfers: true, cancels: make(map[string]*atomic.Bool)}
	if err != nil {
		return m, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return m, nil
		}
		return m, fmt.Errorf("read transfers file: %w", err)
	}
	var f file
	if err := json.Unmarshal(data, &f); err != nil {
		return m, fmt.Errorf("parse transfers file: %w", err)
	}
	for i := range f.Transfers {
		if f.Transfers[i].Status == Connecting || f.Transfers[i].Status == Transferring {
			f.Transfers[i].Status = Queued
		}
	}
	m.queueTransfers = f.QueueTransfers
	m.transfers = f.Transfers
	return m, nil
}

// Save writes the transfers file if it has been modified since the last
// Save, clearing the dirty flag on success.
func (m *Manager) Save() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.dirty {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(m.path), 0o750); err != nil {
		return err
	}
	data, err := json.MarshalIndent(file{QueueTransfers: m.queueTransfers, Transfers: m.transfers}, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(m.path, data, 0o600); err != nil {
		return err
	}
	m.dirty = false
	return nil
}

// SetQueuePolicy toggles queued (one at a time) vs. parallel transfers.
func (m *Manager) SetQueuePolicy(queued bool) {
	m.mu.Lock()
	m.queueTransfers = queued
	m.dirty = true
	m.mu.Unlock()
}

// QueuePolicy reports whether transfers currently run one at a time.
func (m *Manager) QueuePolicy() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.queueTransfers
}

// Enqueue adds a new transfer in the Queued state and returns it.
func (m *Manager) Enqueue(serverAddr string, dir Direction, remotePath, localPath string, size int64) Transfer {
	t := Transfer{
		ID: uuid.NewString(), ServerAddr: serverAddr, Direction: dir,
		RemotePath: remotePath, LocalPath: localPath, Size: size, Status: Queued,
	}
	m.mu.Lock()
	m.transfers = append(m.transfers, t)
	m.dirty = true
	m.mu.Unlock()
	return t
}

// All returns a snapshot of every tracked transfer.
func (m *Manager) All() []Transfer {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Transfer, len(m.transfers))
	copy(out, m.transfers)
	return out
}

// NextRunnable returns the next Queued transfer eligible to start under
// the current queue policy: under queued policy, only when nothing is
// Connecting or Transferring; under parallel policy, the next Queued
// transfer unconditionally (spec §4.12).
func (m *Manager) NextRunnable() (Transfer, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.queueTransfers {
		for _, t := range m.transfers {
			if t.Status == Connecting || t.Status == Transferring {
				return Transfer{}, false
			}
		}
	}
	for _, t := range m.transfers {
		if t.Status == Queued {
			return t, true
		}
	}
	return Transfer{}, false
}

// UpdateStatus transitions id's status, and on entering Connecting
// registers a fresh cancellation flag for the executor's subscription
// (spec §4.12: "A global registry hands the transfer and its cancellation
// flag to the subscription at start").
func (m *Manager) UpdateStatus(id string, status Status, reason FailureReason) {
	m.mu.Lock()
	for i := range m.transfers {
		if m.transfers[i].ID == id {
			m.transfers[i].Status = status
			m.transfers[i].FailureReason = reason
			break
		}
	}
	m.dirty = true
	m.mu.Unlock()

	if status == Connecting {
		m.cancelMu.Lock()
		m.cancels[id] = &atomic.Bool{}
		m.cancelMu.Unlock()
	}
}

// UpdateProgress records bytes transferred so far for id.
func (m *Manager) UpdateProgress(id string, transferred int64) {
	m.mu.Lock()
	for i := range m.transfers {
		if m.transfers[i].ID == id {
			m.transfers[i].Transferred = transferred
			break
		}
	}
	m.dirty = true
	m.mu.Unlock()
}

// Cancel asks the transfer's executor to abort at the next checkpoint
// (spec §4.12). It is a no-op if the transfer has never entered
// Connecting (no cancellation flag has been registered for it yet).
func (m *Manager) Cancel(id string) {
	m.cancelMu.Lock()
	flag, ok := m.cancels[id]
	m.cancelMu.Unlock()
	if ok {
		flag.Store(true)
	}
}

// Cancelled reports whether id's executor has been asked to abort.
func (m *Manager) Cancelled(id string) bool {
	m.cancelMu.Lock()
	flag, ok := m.cancels[id]
	m.cancelMu.Unlock()
	return ok && flag.Load()
}

// Remove drops id from both the transfer list and the cancellation
// registry, e.g. once a completed transfer is dismissed from the UI.
func (m *Manager) Remove(id string) {
	m.mu.Lock()
	for i, t := range m.transfers {
		if t.ID == id {
			m.transfers = append(m.transfers[:i], m.transfers[i+1:]...)
			break
		}
	}
	m.dirty = true
	m.mu.Unlock()

	m.cancelMu.Lock()
	delete(m.cancels, id)
	m.cancelMu.Unlock()
}
