package bookstore

import (
	"context"
	"testing"

	"bookforge/internal/memory"
)

func TestContextRoundTrip(t *testing.T) {
	s := New(t.TempDir())
	ctx := context.Background()

	snap := memory.Snapshot{
		State: memory.ContextState{
			Thesis:   "the thesis",
			Audience: "founders",
			Concepts: []memory.Concept{{Name: "Runway", Definition: "months of cash", IntroducedIn: 1}},
		},
		Warm:   []memory.UnitSummary{{Number: 1, Title: "Ch 1", Summary: "s"}},
		Hot:    []memory.HotUnit{{Number: 1, Title: "Ch 1", Text: "full"}},
		Digest: "digest",
	}
	if err := s.SaveContext(ctx, "my book!", snap); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, ok, err := s.LoadContext(ctx, "my book!")
	if err != nil || !ok {
		t.Fatalf("load: ok=%v err=%v", ok, err)
	}
	if got.State.Thesis != "the thesis" || len(got.Warm) != 1 || got.Hot[0].Text != "full" {
		t.Fatalf("round trip mismatch: %+v", got)
	}

	// A fresh store over the same root must read it back from disk.
	s2 := New(s.root)
	got, ok, err = s2.LoadContext(ctx, "my book!")
	if err != nil || !ok || got.Digest != "digest" {
		t.Fatalf("reload: ok=%v err=%v snap=%+v", ok, err, got)
	}
}

func TestLoadContextMissing(t *testing.T) {
	s := New(t.TempDir())
	_, ok, err := s.LoadContext(context.Background(), "nope")
	if err != nil {
		t.Fatalf("missing context is not an error: %v", err)
	}
	if ok {
		t.Fatalf("expected ok=false")
	}
}

func TestVersionSequence(t *testing.T) {
	s := New(t.TempDir())
	ctx := context.Background()

	stages := []string{"skeleton", "draft", "revision", "polish"}
	for _, stage := range stages {
		if err := s.SaveVersion(ctx, "b", 3, stage, "body at "+stage); err != nil {
			t.Fatalf("save %s: %v", stage, err)
		}
	}

	v, ok, err := s.LatestVersion(ctx, "b", 3)
	if err != nil || !ok {
		t.Fatalf("latest: ok=%v err=%v", ok, err)
	}
	if v.Seq != 4 || v.Stage != "polish" || v.Body != "body at polish" {
		t.Fatalf("latest version %+v", v)
	}

	if _, ok, _ := s.LatestVersion(ctx, "b", 99); ok {
		t.Fatalf("unit without versions must report ok=false")
	}
}

func TestFSColdStoreRoundTrip(t *testing.T) {
	c := NewFSColdStore(t.TempDir())
	ctx := context.Background()

	put := memory.HotUnit{Number: 2, Title: "Chapter Two", Text: "the full text"}
	if err := c.Put(ctx, "book-1", put); err != nil {
		t.Fatalf("put: %v", err)
	}
	got, ok, err := c.Get(ctx, "book-1", 2)
	if err != nil || !ok {
		t.Fatalf("get: ok=%v err=%v", ok, err)
	}
	if got != put {
		t.Fatalf("got %+v want %+v", got, put)
	}

	if _, ok, _ := c.Get(ctx, "book-1", 7); ok {
		t.Fatalf("missing unit must report ok=false")
	}

	// Re-putting the same unit overwrites in place.
	put.Text = "revised full text"
	if err := c.Put(ctx, "book-1", put); err != nil {
		t.Fatalf("re-put: %v", err)
	}
	got, _, _ = c.Get(ctx, "book-1", 2)
	if got.Text != "revised full text" {
		t.Fatalf("got %q", got.Text)
	}
}

func TestSanitizeID(t *testing.T) {
	if got := sanitizeID("My Book: Vol 2!"); got != "My_Book__Vol_2_" {
		t.Fatalf("got %q", got)
	}
	if got := sanitizeID(""); got != "book" {
		t.Fatalf("got %q", got)
	}
}
