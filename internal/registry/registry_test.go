package registry

import (
	"sort"
	"testing"

	v1 "relay/contracts/chat/v1"
)

// fakeConn is a minimal Conn for registry tests.
type fakeConn struct {
	frames []v1.Frame
	done   chan struct{}
}

func newFakeConn() *fakeConn {
	return &fakeConn{done: make(chan struct{})}
}

func (c *fakeConn) Enqueue(f v1.Frame) bool {
	c.frames = append(c.frames, f)
	return true
}
func (c *fakeConn) Done() <-chan struct{} { return c.done }
func (c *fakeConn) Close()                {}
func (c *fakeConn) CloseTransport()       {}

func TestRegisterLookupUnregister(t *testing.T) {
	t.Parallel()

	r := New()
	conn := newFakeConn()

	r.Register("alice", "Alice", conn)
	if r.Len() != 1 {
		t.Fatalf("expected 1 session, got %d", r.Len())
	}

	got, ok := r.Lookup("alice")
	if !ok || got != Conn(conn) {
		t.Fatalf("lookup returned %v ok=%v", got, ok)
	}

	s, ok := r.Unregister("alice")
	if !ok {
		t.Fatalf("expected unregister to find session")
	}
	if s.UserID != "alice" || s.DisplayName != "Alice" {
		t.Fatalf("unexpected session: %+v", s)
	}

	// Second call is a no-op.
	if _, ok := r.Unregister("alice"); ok {
		t.Fatalf("expected second unregister to report ok=false")
	}
	if _, ok := r.Lookup("alice"); ok {
		t.Fatalf("expected lookup after unregister to miss")
	}
}

func TestRegisterSupersedes(t *testing.T) {
	t.Parallel()

	r := New()
	first := newFakeConn()
	second := newFakeConn()

	r.Register("alice", "Alice", first)
	r.Register("alice", "Alice", second)

	if r.Len() != 1 {
		t.Fatalf("expected 1 session after re-register, got %d", r.Len())
	}
	got, _ := r.Lookup("alice")
	if got != Conn(second) {
		t.Fatalf("expected second connection to win")
	}
}

func TestUnregisterConnOnlyEvictsOwnSession(t *testing.T) {
	t.Parallel()

	r := New()
	first := newFakeConn()
	second := newFakeConn()

	r.Register("alice", "Alice", first)
	r.Subscribe("alice", "general")
	r.Register("alice", "Alice", second)

	// The superseded connection's teardown must leave the live session alone.
	if _, ok := r.UnregisterConn("alice", first); ok {
		t.Fatalf("stale connection must not evict the live session")
	}
	if got, ok := r.Lookup("alice"); !ok || got != Conn(second) {
		t.Fatalf("live session lost: %v ok=%v", got, ok)
	}
	if !r.Subscribed("alice", "general") {
		t.Fatalf("live session's subscriptions lost")
	}

	// The owning connection still tears the session down.
	s, ok := r.UnregisterConn("alice", second)
	if !ok || s.UserID != "alice" {
		t.Fatalf("owning connection failed to unregister: %+v ok=%v", s, ok)
	}
	if _, ok := r.UnregisterConn("alice", second); ok {
		t.Fatalf("second unregister must report ok=false")
	}
}

func TestRegisterIgnoresInvalid(t *testing.T) {
	t.Parallel()

	r := New()
	r.Register("", "Alice", newFakeConn())
	r.Register("alice", "Alice", nil)
	if r.Len() != 0 {
		t.Fatalf("expected no sessions, got %d", r.Len())
	}
}

func TestSubscriptions(t *testing.T) {
	t.Parallel()

	r := New()
	r.Register("alice", "Alice", newFakeConn())

	r.Subscribe("alice", "general")
	r.Subscribe("alice", "random")
	r.Subscribe("alice", "general") // duplicate is a no-op

	rooms := r.Subscriptions("alice")
	sort.Strings(rooms)
	if len(rooms) != 2 || rooms[0] != "general" || rooms[1] != "random" {
		t.Fatalf("unexpected subscriptions: %v", rooms)
	}

	if !r.Subscribed("alice", "general") {
		t.Fatalf("expected alice subscribed to general")
	}
	if r.Subscribed("alice", "secret") {
		t.Fatalf("did not expect alice subscribed to secret")
	}
	if r.Subscribed("ghost", "general") {
		t.Fatalf("unknown user must not read as subscribed")
	}
}

func TestUnregisterDropsSubscriptions(t *testing.T) {
	t.Parallel()

	r := New()
	r.Register("alice", "Alice", newFakeConn())
	r.Subscribe("alice", "general")

	r.Unregister("alice")
	if r.Subscribed("alice", "general") {
		t.Fatalf("subscriptions must be dropped with the session")
	}
	if got := r.Subscriptions("alice"); len(got) != 0 {
		t.Fatalf("expected empty subscriptions, got %v", got)
	}
}

func TestSnapshotAndClear(t *testing.T) {
	t.Parallel()

	r := New()
	r.Register("alice", "Alice", newFakeConn())
	r.Register("bob", "Bob", newFakeConn())
	r.Subscribe("alice", "general")

	sessions := r.SnapshotAndClear()
	if len(sessions) != 2 {
		t.Fatalf("expected snapshot of 2 sessions, got %d", len(sessions))
	}
	if r.Len() != 0 {
		t.Fatalf("expected registry cleared, len=%d", r.Len())
	}
	if r.Subscribed("alice", "general") {
		t.Fatalf("expected subscriptions cleared")
	}
	if got := r.SnapshotAndClear(); len(got) != 0 {
		t.Fatalf("second snapshot should be empty, got %d", len(got))
	}
}

func TestAllSessionsIsSnapshot(t *testing.T) {
	t.Parallel()

	r := New()
	r.Register("alice", "Alice", newFakeConn())

	snap := r.AllSessions()
	r.Unregister("alice")

	if len(snap) != 1 || snap[0].UserID != "alice" {
		t.Fatalf("snapshot must not observe later mutation: %+v", snap)
	}
}
