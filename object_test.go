package qualia_test

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	_ "github.com/mattn/go-sqlite3"

	"github.com/pianohacker/qualia"
	"github.com/pianohacker/qualia/field"
)

func Test_Store_Set_ReplacesValues(t *testing.T) {
	t.Parallel()

	s, _ := openTemp(t)

	id, err := s.Add(qualia.Properties{"status": {field.NewPhrase("open")}})
	if err != nil {
		t.Fatalf("add: %v", err)
	}

	if err := s.Set(id, "status", []field.Value{field.NewPhrase("closed")}); err != nil {
		t.Fatalf("set: %v", err)
	}

	props, err := s.Get(id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got := props["status"][0].Phrase(); got != "closed" {
		t.Fatalf("status = %q, want closed", got)
	}
}

func Test_Store_Set_EmptyValuesRemovesProperty(t *testing.T) {
	t.Parallel()

	s, _ := openTemp(t)

	id, err := s.Add(qualia.Properties{"status": {field.NewPhrase("open")}})
	if err != nil {
		t.Fatalf("add: %v", err)
	}

	if err := s.Set(id, "status", nil); err != nil {
		t.Fatalf("set: %v", err)
	}

	props, err := s.Get(id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if _, ok := props["status"]; ok {
		t.Fatalf("expected status to be removed, got %v", props["status"])
	}
}

func Test_Store_Set_FailsWithNotFound_When_IdMissing(t *testing.T) {
	t.Parallel()

	s, _ := openTemp(t)

	err := s.Set(999, "status", []field.Value{field.NewPhrase("x")})
	if !errors.Is(err, qualia.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func Test_Store_Rename_MovesValues(t *testing.T) {
	t.Parallel()

	s, _ := openTemp(t)

	id, err := s.Add(qualia.Properties{"old_name": {field.NewPhrase("first")}})
	if err != nil {
		t.Fatalf("add: %v", err)
	}

	if err := s.Rename(id, "old_name", "new_name"); err != nil {
		t.Fatalf("rename: %v", err)
	}

	props, err := s.Get(id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if _, ok := props["old_name"]; ok {
		t.Fatal("expected old_name to be gone")
	}
	if got := props["new_name"][0].Phrase(); got != "first" {
		t.Fatalf("new_name = %q, want first", got)
	}
}

func Test_Store_Get_FailsWithNotFound_When_IdMissing(t *testing.T) {
	t.Parallel()

	s, _ := openTemp(t)

	_, err := s.Get(999)
	if !errors.Is(err, qualia.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func Test_Store_Add_PreservesMultipleValues(t *testing.T) {
	t.Parallel()

	s, _ := openTemp(t)

	id, err := s.Add(qualia.Properties{
		"tag": {field.NewPhrase("bug"), field.NewPhrase("urgent")},
	})
	if err != nil {
		t.Fatalf("add: %v", err)
	}

	props, err := s.Get(id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(props["tag"]) != 2 {
		t.Fatalf("tag values = %v, want 2 entries", props["tag"])
	}
}

func Test_Store_Get_RoundTripsFullPropertyBag(t *testing.T) {
	t.Parallel()

	s, _ := openTemp(t)

	birthday, err := field.ParseDay("1990-10-11")
	if err != nil {
		t.Fatalf("parse day: %v", err)
	}

	in := qualia.Properties{
		"name":     {field.NewPhrase("Joe")},
		"birthday": {field.NewDate(birthday)},
		"priority": {field.NewInteger(3)},
		"parent":   {field.NewObjectID(42)},
	}

	id, err := s.Add(in)
	if err != nil {
		t.Fatalf("add: %v", err)
	}

	out, err := s.Get(id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}

	if diff := cmp.Diff(in, out); diff != "" {
		t.Fatalf("round-tripped properties differ (-want +got):\n%s", diff)
	}
}
