package filearea

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
)

// ErrInvalidQuery is returned for a search query failing length or
// character validation (spec §7 "Search").
var ErrInvalidQuery = errors.New("invalid search query")

const (
	minQueryLength = 2
	maxQueryLength = 200
)

// Entry is one matched filesystem entry, with its path already stripped of
// the caller's area prefix so it reads as a path virtualized at that area's
// root (spec §7).
type Entry struct {
	Path      string
	Name      string
	Size      int64
	Modified  int64
	IsDir     bool
	IsSymlink bool
}

// ValidateQuery enforces the search query's length bounds and rejects
// control characters.
func ValidateQuery(query string) error {
	if len(query) < minQueryLength || len(query) > maxQueryLength {
		return ErrInvalidQuery
	}
	for _, r := range query {
		if r < 0x20 {
			return ErrInvalidQuery
		}
	}
	return nil
}

// Search walks areaRoot (which must itself be inside root) looking for
// entries whose name contains query, case-insensitively, returning paths
// relative to areaRoot (spec §7). Symlinked directories are reported as
// entries but not descended into (filepath.WalkDir does not follow them).
func Search(root, areaRoot, query string) ([]Entry, error) {
	if err := ValidateQuery(query); err != nil {
		return nil, err
	}
	needle := strings.ToLower(query)

	absAreaRoot, err := filepath.Abs(areaRoot)
	if err != nil {
		return nil, err
	}

	var out []Entry
	err = filepath.WalkDir(absAreaRoot, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil // skip unreadable entries rather than aborting the whole search
		}
		if path == absAreaRoot {
			return nil
		}
		if !strings.Contains(strings.ToLower(d.Name()), needle) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		rel, err := filepath.Rel(absAreaRoot, path)
		if err != nil {
			return nil
		}
		out = append(out, Entry{
			Path:      filepath.ToSlash(rel),
			Name:      d.Name(),
			Size:      info.Size(),
			Modified:  info.ModTime().Unix(),
			IsDir:     d.IsDir(),
			IsSymlink: info.Mode()&os.ModeSymlink != 0,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
