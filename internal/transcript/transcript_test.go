package transcript

import (
	"context"
	"fmt"
	"testing"
)

func TestTrim_KeepsNewest(t *testing.T) {
	var tr Transcript
	for i := 0; i < 7; i++ {
		tr = append(tr, Entry{Role: RoleUser, Content: fmt.Sprintf("m%d", i)})
	}

	got := Trim(tr, 4)
	if len(got) != 4 {
		t.Fatalf("expected 4 entries, got %d", len(got))
	}
	if got[0].Content != "m3" || got[3].Content != "m6" {
		t.Fatalf("oldest entries should be evicted first, got %v", got)
	}
}

func TestTrim_UnderLimitNoop(t *testing.T) {
	tr := Transcript{{Role: RoleUser, Content: "hi"}}
	if got := Trim(tr, 10); len(got) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(got))
	}
}

func TestMemoryStore_GetAbsentIsEmpty(t *testing.T) {
	s := NewMemoryStore()
	got, err := s.Get(context.Background(), "missing")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected empty transcript, got %v", got)
	}
}

func TestMemoryStore_PutCopies(t *testing.T) {
	s := NewMemoryStore()
	tr := Transcript{{Role: RoleUser, Content: "a"}}
	if err := s.Put(context.Background(), "s1", tr); err != nil {
		t.Fatalf("put: %v", err)
	}

	// mutating the caller's slice must not leak into the store
	tr[0].Content = "mutated"

	got, err := s.Get(context.Background(), "s1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got[0].Content != "a" {
		t.Fatalf("store leaked caller mutation: %q", got[0].Content)
	}
}
