package pipeline

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/hyperjump/medibot/internal/models"
)

// record runs one successful turn in id.
func record(s *SessionStore, id string) {
	sess := s.acquire(id)
	s.append(sess, models.Turn{Question: id + "?", Answer: "ok"})
	s.release(sess)
}

func TestSessionStore_evictsLeastRecentlyUsed(t *testing.T) {
	s := NewSessionStore(5, SessionLimits{MaxSessions: 2})
	record(s, "a")
	record(s, "b")
	record(s, "a")
	record(s, "c")

	if n := s.Len(); n != 2 {
		t.Fatalf("store holds %d sessions, want 2", n)
	}
	if len(s.History("b")) != 0 {
		t.Error("least recently used session b survived")
	}
	if len(s.History("a")) != 2 || len(s.History("c")) != 1 {
		t.Errorf("histories a=%d c=%d", len(s.History("a")), len(s.History("c")))
	}
}

func TestSessionStore_expiresIdleSessions(t *testing.T) {
	now := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	s := NewSessionStore(5, SessionLimits{IdleTTL: 10 * time.Minute})
	s.now = func() time.Time { return now }

	record(s, "morning")
	now = now.Add(5 * time.Minute)
	record(s, "later")
	now = now.Add(6 * time.Minute)
	record(s, "new")

	if len(s.History("morning")) != 0 {
		t.Error("session idle for 11 minutes was kept")
	}
	if len(s.History("later")) != 1 || len(s.History("new")) != 1 {
		t.Errorf("recent sessions lost: later=%d new=%d", len(s.History("later")), len(s.History("new")))
	}
}

func TestSessionStore_keepsSessionsInFlight(t *testing.T) {
	s := NewSessionStore(5, SessionLimits{MaxSessions: 1})
	running := s.acquire("running")
	record(s, "other")
	if n := s.Len(); n != 2 {
		t.Fatalf("store holds %d sessions, want the running one kept over the cap", n)
	}

	s.release(running)
	if n := s.Len(); n != 1 {
		t.Errorf("running session without turns kept after release: %d sessions", n)
	}
	if len(s.History("other")) != 1 {
		t.Error("recorded session lost")
	}
}

func TestSessionStore_resetDuringQuery(t *testing.T) {
	s := NewSessionStore(5, SessionLimits{})
	record(s, "s")
	sess := s.acquire("s")
	if !s.Reset("s") {
		t.Fatal("Reset of a stored session returned false")
	}
	s.append(sess, models.Turn{Question: "late?", Answer: "ok"})
	s.release(sess)
	if n := s.Len(); n != 0 || len(s.History("s")) != 0 {
		t.Errorf("reset session came back: %d sessions", n)
	}
}

func TestAnswer_sessionsStayBounded(t *testing.T) {
	retrieved := models.RetrievedContext{{Chunk: &models.Chunk{ID: "c_0", Content: "Aspirin reduces fever."}, Score: 0.9, Rank: 1}}
	opts := testOptions()
	opts.Sessions = SessionLimits{MaxSessions: 10}
	gen := &fakeGenerator{text: "ok"}
	p := newPipeline(t, &fakeRetriever{context: retrieved}, gen, opts)
	ctx := context.Background()

	for i := 0; i < 100; i++ {
		if ans := p.Answer(ctx, "what?", ""); ans.Status != models.StatusAnswered {
			t.Fatal(ans.Err)
		}
	}
	if n := p.sessions.Len(); n != 10 {
		t.Errorf("%d sessions kept after anonymous queries, want 10", n)
	}

	gen.err = fmt.Errorf("%w: connection refused", models.ErrGenerationUnavailable)
	for i := 0; i < 100; i++ {
		if ans := p.Answer(ctx, "what?", fmt.Sprintf("failed-%d", i)); ans.Status != models.StatusFailed {
			t.Fatalf("query %d: status %s", i, ans.Status)
		}
	}
	if n := p.sessions.Len(); n != 10 {
		t.Errorf("%d sessions kept after failed first queries, want 10", n)
	}
	if h := p.History("failed-0"); h != nil {
		t.Errorf("failed session has history %+v", h)
	}
}

func TestNew_negativeSessionLimits(t *testing.T) {
	opts := testOptions()
	opts.Sessions.IdleTTL = -time.Second
	if _, err := New(&fakeRetriever{}, newComposer(t), &fakeGenerator{}, opts); !errors.Is(err, models.ErrInvalidParameter) {
		t.Errorf("expected ErrInvalidParameter, got %v", err)
	}
}
