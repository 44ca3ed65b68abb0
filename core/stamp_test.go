package core

import (
	"testing"
	"time"
)

func TestStampFactory_UsesClockAndActor(t *testing.T) {
	clock := NewFixedClock(testNow)
	stamps := NewStampFactory(clock)

	stamp := stamps.Stamp(User{ID: "u-42", DisplayName: "Ada"})
	if stamp.UserID != "u-42" {
		t.Fatalf("expected actor id, got %q", stamp.UserID)
	}
	if stamp.Timestamp != testNow.UnixMilli() {
		t.Fatalf("expected %d, got %d", testNow.UnixMilli(), stamp.Timestamp)
	}
	if !stamp.Time().Equal(testNow) {
		t.Fatalf("expected stamp time %s, got %s", testNow, stamp.Time())
	}

	clock.Advance(1500 * time.Millisecond)
	later := stamps.Stamp(User{ID: "u-42"})
	if later.Timestamp-stamp.Timestamp != 1500 {
		t.Fatalf("expected 1500ms between stamps, got %d", later.Timestamp-stamp.Timestamp)
	}
}

func TestStampFactory_NilClockFallsBackToSystemClock(t *testing.T) {
	before := time.Now().UnixMilli()
	stamp := StampFactory{}.Stamp(User{ID: "u-1"})
	after := time.Now().UnixMilli()
	if stamp.Timestamp < before || stamp.Timestamp > after {
		t.Fatalf("expected timestamp between %d and %d, got %d", before, after, stamp.Timestamp)
	}
	if stamp.IsZero() {
		t.Fatalf("expected non-zero stamp")
	}
}
