package filearea

import (
	"os"
	"path/filepath"
	"testing"
)

func TestValidateQueryBounds(t *testing.T) {
	if err := ValidateQuery("a"); err != ErrInvalidQuery {
		t.Errorf("1-char query: got %v, want ErrInvalidQuery", err)
	}
	long := make([]byte, 201)
	for i := range long {
		long[i] = 'a'
	}
	if err := ValidateQuery(string(long)); err != ErrInvalidQuery {
		t.Errorf("201-char query: got %v, want ErrInvalidQuery", err)
	}
	if err := ValidateQuery("ab"); err != nil {
		t.Errorf("2-char query should be valid, got %v", err)
	}
}

func TestValidateQueryRejectsControlChars(t *testing.T) {
	if err := ValidateQuery("ab\x00cd"); err != ErrInvalidQuery {
		t.Errorf("got %v, want ErrInvalidQuery", err)
	}
}

func TestSearchFindsMatchesAndStripsPrefix(t *testing.T) {
	root := t.TempDir()
	area := filepath.Join(root, "alice")
	if err := os.MkdirAll(filepath.Join(area, "Documents"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(area, "Documents", "photo-vacation.jpg"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(area, "Documents", "resume.pdf"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	results, err := Search(root, area, "vacation")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d: %+v", len(results), results)
	}
	if results[0].Path != "Documents/photo-vacation.jpg" {
		t.Errorf("expected area-relative path, got %q", results[0].Path)
	}
}

func TestSearchCaseInsensitive(t *testing.T) {
	area := t.TempDir()
	if err := os.WriteFile(filepath.Join(area, "REPORT.TXT"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	results, err := Search(area, area, "report")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
}

func TestSearchRejectsInvalidQuery(t *testing.T) {
	area := t.TempDir()
	if _, err := Search(area, area, "x"); err != ErrInvalidQuery {
		t.Errorf("got %v, want ErrInvalidQuery", err)
	}
}
