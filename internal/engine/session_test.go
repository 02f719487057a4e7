package engine

import (
	"testing"
	"time"

	"deskbot/internal/domain"
)

func TestSessionStorePutGetClear(t *testing.T) {
	s := NewSessionStore(time.Minute, discardLogger())

	if got := s.Get(1); got != nil {
		t.Fatalf("expected nil for unknown client, got %+v", got)
	}

	sess := &domain.Session{ClientID: 1, FlowName: "f", LastActive: time.Now()}
	s.Put(sess)
	if got := s.Get(1); got == nil || got.FlowName != "f" {
		t.Fatalf("unexpected session %+v", got)
	}

	s.Clear(1)
	if got := s.Get(1); got != nil {
		t.Fatalf("expected nil after clear, got %+v", got)
	}
}

func TestSessionStoreOnePerClient(t *testing.T) {
	s := NewSessionStore(time.Minute, discardLogger())
	s.Put(&domain.Session{ClientID: 1, FlowName: "old", LastActive: time.Now()})
	s.Put(&domain.Session{ClientID: 1, FlowName: "new", LastActive: time.Now()})

	if s.Len() != 1 {
		t.Fatalf("expected 1 session, got %d", s.Len())
	}
	if got := s.Get(1); got.FlowName != "new" {
		t.Fatalf("expected replacement, got %q", got.FlowName)
	}
}

func TestSessionStoreExpiry(t *testing.T) {
	s := NewSessionStore(time.Minute, discardLogger())
	now := time.Now()

	fresh := &domain.Session{ClientID: 1, LastActive: now.Add(-30 * time.Second)}
	stale := &domain.Session{ClientID: 2, LastActive: now.Add(-2 * time.Minute)}
	s.Put(fresh)
	s.Put(stale)

	if s.Expired(fresh, now) {
		t.Fatal("fresh session reported expired")
	}
	if !s.Expired(stale, now) {
		t.Fatal("stale session not reported expired")
	}

	expired := s.ListExpired(now)
	if len(expired) != 1 || expired[0] != 2 {
		t.Fatalf("unexpected expired list %v", expired)
	}

	// ListExpired only reports; nothing is cleared.
	if s.Len() != 2 {
		t.Fatalf("expected 2 sessions after listing, got %d", s.Len())
	}
}
