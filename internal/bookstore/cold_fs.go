package bookstore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"bookforge/internal/memory"
)

// FSColdStore keeps the full text of every committed unit as append-only
// files under root/<book>/cold/, with a JSON index mapping unit numbers to
// titles and files. The warm/hot tiers hold copies; this store owns the
// archive.
type FSColdStore struct {
	mu   sync.Mutex
	root string
}

var _ memory.ColdStore = (*FSColdStore)(nil)

func NewFSColdStore(root string) *FSColdStore {
	return &FSColdStore{root: root}
}

type coldIndex struct {
	Units map[string]coldIndexEntry `json:"units"`
}

type coldIndexEntry struct {
	Title string `json:"title"`
	File  string `json:"file"`
}

func (c *FSColdStore) dir(bookID string) string {
	return filepath.Join(c.root, sanitizeID(bookID), "cold")
}

func (c *FSColdStore) Put(ctx context.Context, bookID string, unit memory.HotUnit) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	dir := c.dir(bookID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	file := fmt.Sprintf("unit_%04d.txt", unit.Number)
	if err := os.WriteFile(filepath.Join(dir, file), []byte(unit.Text), 0o644); err != nil {
		return err
	}

	idx, err := c.loadIndex(dir)
	if err != nil {
		return err
	}
	idx.Units[fmt.Sprintf("%d", unit.Number)] = coldIndexEntry{Title: unit.Title, File: file}
	return c.saveIndex(dir, idx)
}

func (c *FSColdStore) Get(ctx context.Context, bookID string, number int) (memory.HotUnit, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	dir := c.dir(bookID)
	idx, err := c.loadIndex(dir)
	if err != nil {
		return memory.HotUnit{}, false, err
	}
	entry, ok := idx.Units[fmt.Sprintf("%d", number)]
	if !ok {
		return memory.HotUnit{}, false, nil
	}
	b, err := os.ReadFile(filepath.Join(dir, entry.File))
	if err != nil {
		return memory.HotUnit{}, false, err
	}
	return memory.HotUnit{Number: number, Title: entry.Title, Text: string(b)}, true, nil
}

func (c *FSColdStore) loadIndex(dir string) (coldIndex, error) {
	idx := coldIndex{Units: map[string]coldIndexEntry{}}
	b, err := os.ReadFile(filepath.Join(dir, "index.json"))
	if os.IsNotExist(err) {
		return idx, nil
	}
	if err != nil {
		return idx, err
	}
	if err := json.Unmarshal(b, &idx); err != nil {
		return coldIndex{Units: map[string]coldIndexEntry{}}, err
	}
	if idx.Units == nil {
		idx.Units = map[string]coldIndexEntry{}
	}
	return idx, nil
}

func (c *FSColdStore) saveIndex(dir string, idx coldIndex) error {
	b, err := json.MarshalIndent(idx, "", "  ")
	if err != nil {
		return err
	}
	path := filepath.Join(dir, "index.json")
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
