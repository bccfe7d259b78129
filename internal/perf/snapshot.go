package perf

import (
	"encoding/json"
	"log"
	"os"
	"path/filepath"
	"time"
)

type snapshotFile struct {
	UpdatedAt string            `json:"updated_at"`
	Records   []OperationRecord `json:"records"`
}

func (l *Ledger) loadSnapshot() {
	if l.path == "" {
		return
	}
	b, err := os.ReadFile(l.path)
	if err != nil {
		return
	}
	var f snapshotFile
	if err := json.Unmarshal(b, &f); err != nil {
		log.Printf("perf: ignoring unreadable snapshot %s: %v", l.path, err)
		return
	}
	if over := len(f.Records) - maxRecords; over > 0 {
		f.Records = f.Records[over:]
	}
	l.records = f.Records
}

func (l *Ledger) snapshotLocked() []OperationRecord {
	if l.path == "" {
		return nil
	}
	return append([]OperationRecord(nil), l.records...)
}

// writeSnapshot persists best-effort via tmp file + rename. A write failure
// is logged and never retried; the ledger stays authoritative in memory.
func (l *Ledger) writeSnapshot(records []OperationRecord) {
	if l.path == "" || records == nil {
		return
	}
	f := snapshotFile{
		UpdatedAt: time.Now().UTC().Format(time.RFC3339),
		Records:   records,
	}
	b, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return
	}
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		log.Printf("perf: snapshot dir: %v", err)
		return
	}
	tmp := l.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		log.Printf("perf: snapshot write: %v", err)
		return
	}
	if err := os.Rename(tmp, l.path); err != nil {
		log.Printf("perf: snapshot rename: %v", err)
	}
}
