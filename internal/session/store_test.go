package session

import (
	"testing"
	"time"
)

func newTestStore(ttl time.Duration) (*Store, *time.Time) {
	s := NewStore(ttl)
	now := time.Unix(1_700_000_000, 0)
	s.now = func() time.Time { return now }
	return s, &now
}

func TestUpdateCreatesAndMutates(t *testing.T) {
	s, _ := newTestStore(0)

	got := s.Update(7, func(sess *Session) {
		sess.Mode = ModePost
		sess.Step = StepSelectChannel
	})
	if got.Mode != ModePost || got.Step != StepSelectChannel {
		t.Fatalf("unexpected session after create: %+v", got)
	}
	if !s.Active(7) {
		t.Error("session should be active after Update")
	}

	got = s.Update(7, func(sess *Session) {
		sess.Step = StepAwaitMessage
	})
	if got.Mode != ModePost {
		t.Errorf("mode lost across updates: %+v", got)
	}
	if got.Step != StepAwaitMessage {
		t.Errorf("step = %q, want %q", got.Step, StepAwaitMessage)
	}
}

func TestGetReturnsCopy(t *testing.T) {
	s, _ := newTestStore(0)
	s.Update(7, func(sess *Session) {
		sess.ChannelTitle = "News"
	})

	got, ok := s.Get(7)
	if !ok {
		t.Fatal("expected session")
	}
	got.ChannelTitle = "Mutated"

	again, _ := s.Get(7)
	if again.ChannelTitle != "News" {
		t.Errorf("store state leaked through copy: %+v", again)
	}
}

func TestMutateRequiresLiveSession(t *testing.T) {
	s, now := newTestStore(time.Minute)

	if _, ok := s.Mutate(7, func(sess *Session) { sess.Mode = ModePost }); ok {
		t.Error("Mutate should miss when no session exists")
	}
	if s.Active(7) {
		t.Error("Mutate must not create a session")
	}

	s.Update(7, func(sess *Session) { sess.Mode = ModePost })
	got, ok := s.Mutate(7, func(sess *Session) { sess.Step = StepAskButtons })
	if !ok || got.Step != StepAskButtons {
		t.Fatalf("Mutate = %+v (ok=%v)", got, ok)
	}

	*now = now.Add(2 * time.Minute)
	if _, ok := s.Mutate(7, func(sess *Session) {}); ok {
		t.Error("Mutate should miss on an expired session")
	}
}

func TestTakeConsumesOnce(t *testing.T) {
	s, _ := newTestStore(0)
	s.Update(7, func(sess *Session) {
		sess.Mode = ModePost
		sess.Step = StepConfirmSend
		sess.HasContent = true
	})

	got, ok := s.Take(7, func(sess Session) bool { return sess.Step == StepConfirmSend })
	if !ok {
		t.Fatal("first Take should win")
	}
	if !got.HasContent {
		t.Errorf("snapshot lost the draft: %+v", got)
	}

	if _, ok := s.Take(7, nil); ok {
		t.Error("second Take should miss")
	}
	if s.Active(7) {
		t.Error("session should be gone after Take")
	}
}

func TestTakeRejectedLeavesSession(t *testing.T) {
	s, _ := newTestStore(0)
	s.Update(7, func(sess *Session) { sess.Step = StepAskButtons })

	if _, ok := s.Take(7, func(sess Session) bool { return sess.Step == StepConfirmSend }); ok {
		t.Fatal("Take should refuse a session the predicate rejects")
	}
	if !s.Active(7) {
		t.Error("rejected Take must leave the session in place")
	}
}

func TestClear(t *testing.T) {
	s, _ := newTestStore(0)
	s.Update(7, func(sess *Session) { sess.Mode = ModeRegister })
	s.Clear(7)
	if s.Active(7) {
		t.Error("session should be gone after Clear")
	}
	if _, ok := s.Get(7); ok {
		t.Error("Get should miss after Clear")
	}
}

func TestExpiry(t *testing.T) {
	s, now := newTestStore(time.Minute)
	s.Update(7, func(sess *Session) { sess.Mode = ModePost })

	*now = now.Add(2 * time.Minute)

	if s.Active(7) {
		t.Error("expired session reported active")
	}
	if _, ok := s.Get(7); ok {
		t.Error("expired session returned by Get")
	}
}

func TestUpdateAfterExpiryStartsFresh(t *testing.T) {
	s, now := newTestStore(time.Minute)
	s.Update(7, func(sess *Session) {
		sess.Mode = ModeEdit
		sess.ChannelID = -100
	})

	*now = now.Add(2 * time.Minute)

	got := s.Update(7, func(sess *Session) { sess.Mode = ModePost })
	if got.ChannelID != 0 {
		t.Errorf("stale draft leaked into new session: %+v", got)
	}
}

func TestReap(t *testing.T) {
	s, now := newTestStore(time.Minute)
	s.Update(1, func(sess *Session) {})
	s.Update(2, func(sess *Session) {})

	*now = now.Add(30 * time.Second)
	s.Update(2, func(sess *Session) {})

	*now = now.Add(45 * time.Second)

	if removed := s.Reap(); removed != 1 {
		t.Fatalf("Reap removed %d, want 1", removed)
	}
	if s.Active(1) {
		t.Error("idle session survived reap")
	}
	if !s.Active(2) {
		t.Error("fresh session reaped")
	}
}
