package models

import (
	"testing"
	"time"
)

func TestFormatTimeSortsLexicographically(t *testing.T) {
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	a := FormatTime(base)
	b := FormatTime(base.Add(100 * time.Millisecond))
	c := FormatTime(base.Add(time.Second))
	if !(a < b && b < c) {
		t.Fatalf("expected %s < %s < %s", a, b, c)
	}
	if len(a) != len(b) || len(b) != len(c) {
		t.Fatalf("expected fixed width timestamps")
	}
}

func TestParseTimeLegacy(t *testing.T) {
	got, err := ParseTime("2025-11-02T08:15:30.5Z")
	if err != nil {
		t.Fatalf("parse legacy: %v", err)
	}
	want := time.Date(2025, 11, 2, 8, 15, 30, 500_000_000, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("got %v want %v", got, want)
	}
	round, err := ParseTime(FormatTime(want))
	if err != nil || !round.Equal(want) {
		t.Fatalf("round trip failed: %v %v", round, err)
	}
}

func TestActorOfDefaultsOrg(t *testing.T) {
	a := ActorOf(Principal{ID: "u1", Role: RolePolice})
	if a.Org != "INTERNAL" || a.Role != "POLICE" || a.UserID != "u1" {
		t.Fatalf("unexpected actor: %+v", a)
	}
}

func TestActionVocabulary(t *testing.T) {
	if !ActionIssueCert.Valid() || AuditAction("DELETE").Valid() {
		t.Fatalf("unexpected vocabulary check")
	}
}
