package ui

import "testing"

func TestSetGet_RoundTrips(t *testing.T) {
	s := New()
	s.Set("theme", "dark")

	v, ok := s.Get("theme")
	if !ok || v != "dark" {
		t.Fatalf("expected theme=dark, got %v, %v", v, ok)
	}
}

func TestGet_MissingKey(t *testing.T) {
	s := New()
	_, ok := s.Get("missing")
	if ok {
		t.Fatal("expected missing key to report not found")
	}
}

func TestSnapshot_IsACopy(t *testing.T) {
	s := New()
	s.Set("a", 1)

	snap := s.Snapshot()
	snap["a"] = 2
	snap["b"] = 3

	v, _ := s.Get("a")
	if v != 1 {
		t.Fatalf("mutating a snapshot must not affect the store, got %v", v)
	}
	if _, ok := s.Get("b"); ok {
		t.Fatal("mutating a snapshot must not add keys to the store")
	}
}

func TestReplaceAll_DiscardsPriorState(t *testing.T) {
	s := New()
	s.Set("stale", true)

	s.ReplaceAll(map[string]any{"fresh": "value"})

	if _, ok := s.Get("stale"); ok {
		t.Fatal("expected ReplaceAll to discard prior keys")
	}
	v, ok := s.Get("fresh")
	if !ok || v != "value" {
		t.Fatalf("expected fresh=value after ReplaceAll, got %v, %v", v, ok)
	}
}
