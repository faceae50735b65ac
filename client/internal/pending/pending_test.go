package pending_test

import (
	"testing"

	"github.com/nexus-im/client/internal/pending"
)

func TestAllocateAndTake(t *testing.T) {
	tbl := pending.New()

	id := tbl.Allocate(pending.Routing{Tab: "#lobby"})
	if id == 0 {
		t.Fatal("expected a nonzero message-id so 0 can unambiguously mean a push")
	}

	r, ok := tbl.Take(id)
	if !ok {
		t.Fatalf("Take(%d): expected a routing to be present", id)
	}
	if r.Tab != "#lobby" {
		t.Errorf("Tab: want %q got %q", "#lobby", r.Tab)
	}

	if _, ok := tbl.Take(id); ok {
		t.Error("Take should not return the same routing twice")
	}
}

func TestTakeUnknownID(t *testing.T) {
	tbl := pending.New()
	if _, ok := tbl.Take(999); ok {
		t.Error("Take on an unallocated id should report ok=false, not panic or succeed")
	}
}

func TestAllocateIDsAreMonotonicAndNonZero(t *testing.T) {
	tbl := pending.New()
	seen := make(map[uint32]bool)
	for i := 0; i < 10; i++ {
		id := tbl.Allocate(pending.Routing{})
		if id == 0 {
			t.Fatalf("iteration %d: got id 0", i)
		}
		if seen[id] {
			t.Fatalf("iteration %d: id %d reused", i, id)
		}
		seen[id] = true
	}
}

func TestPendingCount(t *testing.T) {
	tbl := pending.New()
	if got := tbl.Pending(); got != 0 {
		t.Fatalf("expected 0 pending on a fresh table, got %d", got)
	}

	a := tbl.Allocate(pending.Routing{Tab: "a"})
	tbl.Allocate(pending.Routing{Tab: "b"})
	if got := tbl.Pending(); got != 2 {
		t.Fatalf("expected 2 pending, got %d", got)
	}

	tbl.Take(a)
	if got := tbl.Pending(); got != 1 {
		t.Fatalf("expected 1 pending after Take, got %d", got)
	}
}

func TestClear(t *testing.T) {
	tbl := pending.New()
	tbl.Allocate(pending.Routing{Tab: "a"})
	tbl.Allocate(pending.Routing{Tab: "b"})

	tbl.Clear()
	if got := tbl.Pending(); got != 0 {
		t.Fatalf("expected 0 pending after Clear, got %d", got)
	}
}

func TestRoutingNavigateToAndContext(t *testing.T) {
	tbl := pending.New()
	id := tbl.Allocate(pending.Routing{Tab: "files:abc", NavigateTo: "/docs/readme.txt", Context: "paste-target"})

	r, ok := tbl.Take(id)
	if !ok {
		t.Fatal("expected routing to be present")
	}
	if r.NavigateTo != "/docs/readme.txt" {
		t.Errorf("NavigateTo: want %q got %q", "/docs/readme.txt", r.NavigateTo)
	}
	if r.Context != "paste-target" {
		t.Errorf("Context: want %q got %v", "paste-target", r.Context)
	}
}
