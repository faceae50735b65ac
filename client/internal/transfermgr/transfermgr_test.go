package transfermgr_test

import (
	"testing"

	"github.com/nexus-im/client/internal/transfermgr"
)

func TestEnqueueAndNextRunnableQueuedPolicy(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	m, err := transfermgr.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	m.SetQueuePolicy(true)

	t1 := m.Enqueue("srv:6668", transfermgr.Download, "/a.txt", "/tmp/a.txt", 100)
	m.Enqueue("srv:6668", transfermgr.Download, "/b.txt", "/tmp/b.txt", 200)

	next, ok := m.NextRunnable()
	if !ok {
		t.Fatal("expected a runnable transfer")
	}
	if next.ID != t1.ID {
		t.Errorf("expected the first-enqueued transfer to run first, got %s", next.ID)
	}

	m.UpdateStatus(t1.ID, transfermgr.Transferring, "")
	if _, ok := m.NextRunnable(); ok {
		t.Error("under queued policy, nothing should be runnable while one transfer is in flight")
	}
}

func TestNextRunnableParallelPolicy(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	m, err := transfermgr.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	m.SetQueuePolicy(false)

	t1 := m.Enqueue("srv:6668", transfermgr.Upload, "/a.txt", "/tmp/a.txt", 100)
	m.Enqueue("srv:6668", transfermgr.Upload, "/b.txt", "/tmp/b.txt", 200)
	m.UpdateStatus(t1.ID, transfermgr.Transferring, "")

	next, ok := m.NextRunnable()
	if !ok {
		t.Fatal("expected the second transfer to be runnable under a parallel policy")
	}
	if next.ID == t1.ID {
		t.Error("expected NextRunnable to skip the in-flight transfer")
	}
}

func TestSaveAndLoadResetsInFlightToQueued(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)

	m, err := transfermgr.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	tr := m.Enqueue("srv:6668", transfermgr.Download, "/a.txt", "/tmp/a.txt", 100)
	m.UpdateStatus(tr.ID, transfermgr.Transferring, "")
	if err := m.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}

	reloaded, err := transfermgr.Load()
	if err != nil {
		t.Fatalf("Load (reloaded): %v", err)
	}
	all := reloaded.All()
	if len(all) != 1 {
		t.Fatalf("expected 1 transfer after reload, got %d", len(all))
	}
	if all[0].Status != transfermgr.Queued {
		t.Errorf("expected a Transferring transfer to reset to Queued on load, got %s", all[0].Status)
	}
}

func TestLoadMissingFileIsClean(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	m, err := transfermgr.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(m.All()) != 0 {
		t.Error("expected an empty manager for a missing transfers file")
	}
}

func TestCancel(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	m, err := transfermgr.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	tr := m.Enqueue("srv:6668", transfermgr.Download, "/a.txt", "/tmp/a.txt", 100)

	if m.Cancelled(tr.ID) {
		t.Error("a transfer not yet Connecting should not be cancellable")
	}

	m.UpdateStatus(tr.ID, transfermgr.Connecting, "")
	if m.Cancelled(tr.ID) {
		t.Error("expected a fresh cancellation flag to start false")
	}

	m.Cancel(tr.ID)
	if !m.Cancelled(tr.ID) {
		t.Error("expected Cancel to set the flag Cancelled checks")
	}
}

func TestRemove(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	m, err := transfermgr.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	tr := m.Enqueue("srv:6668", transfermgr.Download, "/a.txt", "/tmp/a.txt", 100)
	m.Remove(tr.ID)
	if len(m.All()) != 0 {
		t.Error("expected Remove to drop the transfer from All")
	}
}

func TestUpdateProgress(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	m, err := transfermgr.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	tr := m.Enqueue("srv:6668", transfermgr.Download, "/a.txt", "/tmp/a.txt", 1000)
	m.UpdateProgress(tr.ID, 512)

	all := m.All()
	if all[0].Transferred != 512 {
		t.Errorf("Transferred: want 512 got %d", all[0].Transferred)
	}
}
