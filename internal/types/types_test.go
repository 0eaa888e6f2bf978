package types

import "testing"

func TestNewIDValid(t *testing.T) {
	a, b := NewID(), NewID()
	if !a.Valid() || !b.Valid() {
		t.Fatalf("expected valid ids, got %q %q", a, b)
	}
	if a == b {
		t.Fatalf("expected distinct ids")
	}
	if ID("accept_taxi").Valid() {
		t.Fatalf("expected invalid id")
	}
}
