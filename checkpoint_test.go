package qualia_test

import (
	"testing"

	_ "github.com/mattn/go-sqlite3"

	"github.com/pianohacker/qualia"
	"github.com/pianohacker/qualia/field"
)

// S6 — undo ordering.
func Test_Store_Undo_RevertsLastCheckpoint(t *testing.T) {
	t.Parallel()

	s, _ := openTemp(t)

	id, err := s.Add(qualia.Properties{"name": {field.NewPhrase("first")}})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := s.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}

	if err := s.Rename(id, "name", "name2"); err != nil {
		t.Fatalf("rename: %v", err)
	}
	if err := s.Set(id, "name2", nil); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if err := s.Delete(id); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := s.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}

	coll, err := s.Query("")
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if coll.Count() != 0 {
		t.Fatalf("count = %d, want 0", coll.Count())
	}

	if err := s.Undo(); err != nil {
		t.Fatalf("undo: %v", err)
	}

	coll, err = s.Query("")
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	obj, err := coll.One()
	if err != nil {
		t.Fatalf("one: %v", err)
	}
	if got := obj.Properties["name"][0].Phrase(); got != "first" {
		t.Fatalf("name = %q, want first", got)
	}
}

// S7 — undo across reopen.
func Test_Store_Undo_SurvivesReopen(t *testing.T) {
	t.Parallel()

	s, path := openTemp(t)

	if _, err := s.Add(qualia.Properties{"name": {field.NewPhrase("first")}}); err != nil {
		t.Fatalf("add first: %v", err)
	}
	if err := s.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if _, err := s.Add(qualia.Properties{"name": {field.NewPhrase("second")}}); err != nil {
		t.Fatalf("add second: %v", err)
	}
	if err := s.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if err := s.Undo(); err != nil {
		t.Fatalf("undo: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	s2, err := qualia.Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer func() { _ = s2.Close() }()

	coll, err := s2.Query("")
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	obj, err := coll.One()
	if err != nil {
		t.Fatalf("one: %v", err)
	}
	if got := obj.Properties["name"][0].Phrase(); got != "first" {
		t.Fatalf("name = %q, want first", got)
	}
}

// Invariant 1 — ids are never reused, even for an id an undo just freed up
// and even across a reopen.
func Test_Store_Add_NeverReusesId_AfterUndoAndReopen(t *testing.T) {
	t.Parallel()

	s, path := openTemp(t)

	firstID, err := s.Add(qualia.Properties{"name": {field.NewPhrase("first")}})
	if err != nil {
		t.Fatalf("add first: %v", err)
	}
	if err := s.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}

	secondID, err := s.Add(qualia.Properties{"name": {field.NewPhrase("second")}})
	if err != nil {
		t.Fatalf("add second: %v", err)
	}
	if err := s.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if err := s.Undo(); err != nil {
		t.Fatalf("undo: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	s2, err := qualia.Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer func() { _ = s2.Close() }()

	thirdID, err := s2.Add(qualia.Properties{"name": {field.NewPhrase("third")}})
	if err != nil {
		t.Fatalf("add third: %v", err)
	}

	if thirdID == firstID || thirdID == secondID {
		t.Fatalf("third id = %d, reused one of first=%d/second=%d", thirdID, firstID, secondID)
	}
	if thirdID <= secondID {
		t.Fatalf("third id = %d, want strictly greater than second=%d", thirdID, secondID)
	}
}

// Invariant 5 — undo chain: after n commits, at most n undos succeed;
// further undos are silent no-ops.
func Test_Store_Undo_IsNoopOnceJournalIsEmpty(t *testing.T) {
	t.Parallel()

	s, _ := openTemp(t)

	if _, err := s.Add(qualia.Properties{"name": {field.NewPhrase("only")}}); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := s.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}

	if err := s.Undo(); err != nil {
		t.Fatalf("undo 1: %v", err)
	}
	if err := s.Undo(); err != nil {
		t.Fatalf("undo 2 (should be a silent no-op): %v", err)
	}

	coll, err := s.Query("")
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if coll.Count() != 0 {
		t.Fatalf("count = %d, want 0", coll.Count())
	}
}

func Test_Store_Commit_IsNoopWhenNothingPending(t *testing.T) {
	t.Parallel()

	s, _ := openTemp(t)

	if err := s.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
}
