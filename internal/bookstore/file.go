package bookstore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"bookforge/internal/memory"
)

func (s *Store) bookDir(bookID string) string {
	return filepath.Join(s.root, sanitizeID(bookID))
}

func (s *Store) saveContextFile(bookID string, snap memory.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	dir := s.bookDir(bookID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	b, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return err
	}
	path := filepath.Join(dir, "context.json")
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func (s *Store) loadContextFile(bookID string) (memory.Snapshot, bool, error) {
	b, err := os.ReadFile(filepath.Join(s.bookDir(bookID), "context.json"))
	if os.IsNotExist(err) {
		return memory.Snapshot{}, false, nil
	}
	if err != nil {
		return memory.Snapshot{}, false, err
	}
	var snap memory.Snapshot
	if err := json.Unmarshal(b, &snap); err != nil {
		return memory.Snapshot{}, false, err
	}
	return snap, true, nil
}

func (s *Store) versionsDir(bookID string, unit int) string {
	return filepath.Join(s.bookDir(bookID), "versions", fmt.Sprintf("unit_%04d", unit))
}

func (s *Store) saveVersionFile(bookID string, unit int, stage, body string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	dir := s.versionsDir(bookID, unit)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	seq, err := nextSeq(dir)
	if err != nil {
		return err
	}
	v := UnitVersion{
		BookID:    bookID,
		Unit:      unit,
		Seq:       seq,
		Stage:     stage,
		Body:      body,
		CreatedAt: time.Now().UTC(),
	}
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	path := filepath.Join(dir, fmt.Sprintf("v%04d.json", seq))
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func (s *Store) latestVersionFile(bookID string, unit int) (UnitVersion, bool, error) {
	dir := s.versionsDir(bookID, unit)
	names, err := versionFiles(dir)
	if err != nil || len(names) == 0 {
		return UnitVersion{}, false, err
	}
	b, err := os.ReadFile(filepath.Join(dir, names[len(names)-1]))
	if err != nil {
		return UnitVersion{}, false, err
	}
	var v UnitVersion
	if err := json.Unmarshal(b, &v); err != nil {
		return UnitVersion{}, false, err
	}
	return v, true, nil
}

func nextSeq(dir string) (int, error) {
	names, err := versionFiles(dir)
	if err != nil {
		return 0, err
	}
	return len(names) + 1, nil
}

func versionFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if filepath.Ext(name) == ".json" {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}

// sanitizeID keeps book ids safe as directory names.
func sanitizeID(id string) string {
	out := make([]rune, 0, len(id))
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			out = append(out, r)
		default:
			out = append(out, '_')
		}
	}
	if len(out) == 0 {
		return "book"
	}
	return string(out)
}
