package domain

import (
	"testing"
	"time"
)

func TestKeyFor_DefaultCategoryIsTenantOnly(t *testing.T) {
	if got := KeyFor("acme", ""); got != "acme" {
		t.Fatalf("expected acme, got %q", got)
	}
	if got := KeyFor("acme", DefaultCategory); got != "acme" {
		t.Fatalf("expected acme, got %q", got)
	}
	if got := KeyFor("acme", "reports"); got != "acme|reports" {
		t.Fatalf("expected acme|reports, got %q", got)
	}
}

func TestWindow_ExpiredAtExactLength(t *testing.T) {
	start := time.Unix(1000, 0)
	w := Window{Start: start, Count: 3}

	if w.Expired(start.Add(59*time.Second), time.Minute) {
		t.Fatalf("expected window alive at 59s")
	}
	if !w.Expired(start.Add(time.Minute), time.Minute) {
		t.Fatalf("expected window expired at exactly 60s")
	}
}

func TestDecision_Remaining(t *testing.T) {
	if got := (Decision{Limit: 3, Count: 1}).Remaining(); got != 2 {
		t.Fatalf("expected 2, got %d", got)
	}
	if got := (Decision{Limit: 3, Count: 5}).Remaining(); got != 0 {
		t.Fatalf("expected 0, got %d", got)
	}
}
