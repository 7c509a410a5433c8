package store

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	v1 "relay/contracts/chat/v1"
)

func TestMemoryMessagesByRoomLimit(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewMemory()

	for i := 0; i < 5; i++ {
		_, err := s.CreateMessage(ctx, v1.Message{
			ID:      fmt.Sprintf("m%d", i),
			ChatID:  "general",
			Content: fmt.Sprintf("msg %d", i),
			Kind:    v1.KindText,
		})
		if err != nil {
			t.Fatalf("create message %d: %v", i, err)
		}
	}

	got, err := s.MessagesByRoom(ctx, "general", 3)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(got))
	}
	// Most recent window, oldest first.
	if got[0].ID != "m2" || got[2].ID != "m4" {
		t.Fatalf("unexpected window: %v..%v", got[0].ID, got[2].ID)
	}

	empty, err := s.MessagesByRoom(ctx, "nowhere", 10)
	if err != nil || len(empty) != 0 {
		t.Fatalf("unknown room should yield an empty list, got %d err=%v", len(empty), err)
	}
}

func TestMemoryCreateMessageValidation(t *testing.T) {
	t.Parallel()

	s := NewMemory()
	if _, err := s.CreateMessage(context.Background(), v1.Message{ID: "m1"}); err == nil {
		t.Fatalf("expected error for message without room")
	}
	if _, err := s.CreateMessage(context.Background(), v1.Message{ChatID: "general"}); err == nil {
		t.Fatalf("expected error for message without id")
	}
}

func TestMemoryRoomsLifecycle(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewMemory()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i, id := range []string{"b-room", "a-room"} {
		if _, err := s.CreateRoom(ctx, Room{ID: id, Name: id, CreatedAt: base.Add(time.Duration(i) * time.Minute)}); err != nil {
			t.Fatalf("create %s: %v", id, err)
		}
	}

	rooms, err := s.Rooms(ctx)
	if err != nil {
		t.Fatalf("rooms: %v", err)
	}
	if len(rooms) != 2 || rooms[0].ID != "b-room" || rooms[1].ID != "a-room" {
		t.Fatalf("expected creation order, got %+v", rooms)
	}

	ok, err := s.DeleteRoom(ctx, "a-room")
	if err != nil || !ok {
		t.Fatalf("delete: ok=%v err=%v", ok, err)
	}
	ok, err = s.DeleteRoom(ctx, "a-room")
	if err != nil || ok {
		t.Fatalf("second delete must report ok=false, got ok=%v err=%v", ok, err)
	}
}

func TestMemoryDeleteRoomDropsMessages(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewMemory()
	if _, err := s.CreateRoom(ctx, Room{ID: "r1", Name: "r1"}); err != nil {
		t.Fatalf("create room: %v", err)
	}
	if _, err := s.CreateMessage(ctx, v1.Message{ID: "m1", ChatID: "r1", Kind: v1.KindText}); err != nil {
		t.Fatalf("create message: %v", err)
	}

	if _, err := s.DeleteRoom(ctx, "r1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	msgs, err := s.MessagesByRoom(ctx, "r1", 10)
	if err != nil || len(msgs) != 0 {
		t.Fatalf("expected messages gone with the room, got %d err=%v", len(msgs), err)
	}
}

func TestMemoryUserConflicts(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewMemory()

	if _, err := s.CreateUser(ctx, User{ID: "u1", Username: "alice", Email: "alice@example.com"}); err != nil {
		t.Fatalf("create: %v", err)
	}

	cases := []struct {
		name string
		user User
	}{
		{"duplicate username", User{ID: "u2", Username: "alice", Email: "other@example.com"}},
		{"duplicate email", User{ID: "u3", Username: "bob", Email: "alice@example.com"}},
		{"duplicate email different case", User{ID: "u4", Username: "carol", Email: "ALICE@example.com"}},
	}
	for _, tc := range cases {
		if _, err := s.CreateUser(ctx, tc.user); !errors.Is(err, ErrConflict) {
			t.Fatalf("%s: expected ErrConflict, got %v", tc.name, err)
		}
	}
}

func TestMemoryUserLookups(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewMemory()
	if _, err := s.CreateUser(ctx, User{ID: "u1", Username: "alice", Email: "Alice@Example.com"}); err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, err := s.UserByID(ctx, "ghost"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	u, err := s.UserByEmail(ctx, "alice@example.com")
	if err != nil || u.ID != "u1" {
		t.Fatalf("case-insensitive email lookup failed: %+v err=%v", u, err)
	}
	if _, err := s.UserByEmail(ctx, "nobody@example.com"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryUpdateLastLogin(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewMemory()
	if _, err := s.CreateUser(ctx, User{ID: "u1", Username: "alice", Email: "alice@example.com"}); err != nil {
		t.Fatalf("create: %v", err)
	}

	ok, err := s.UpdateLastLogin(ctx, "u1")
	if err != nil || !ok {
		t.Fatalf("update: ok=%v err=%v", ok, err)
	}
	u, _ := s.UserByID(ctx, "u1")
	if u.LastLogin.IsZero() {
		t.Fatalf("expected last login stamped")
	}

	ok, err = s.UpdateLastLogin(ctx, "ghost")
	if err != nil || ok {
		t.Fatalf("unknown user: ok=%v err=%v", ok, err)
	}
}

func TestMemoryVerifyEmailTokenConsumesToken(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewMemory()
	if _, err := s.CreateUser(ctx, User{
		ID: "u1", Username: "alice", Email: "alice@example.com",
		VerificationToken: "tok123",
	}); err != nil {
		t.Fatalf("create: %v", err)
	}

	res, err := s.VerifyEmailToken(ctx, "tok123")
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !res.Success || res.UserID != "u1" || res.Email != "alice@example.com" {
		t.Fatalf("unexpected result: %+v", res)
	}

	u, _ := s.UserByID(ctx, "u1")
	if !u.EmailConfirmed || u.VerificationToken != "" {
		t.Fatalf("token must be consumed: %+v", u)
	}

	// Replay and unknown tokens fail quietly.
	if res, _ := s.VerifyEmailToken(ctx, "tok123"); res.Success {
		t.Fatalf("replayed token must not verify")
	}
	if res, _ := s.VerifyEmailToken(ctx, ""); res.Success {
		t.Fatalf("empty token must not verify")
	}
}

func TestMemoryCreateMessageCapsRoom(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewMemory()
	for i := 0; i < memMaxMessagesPerRoom+10; i++ {
		if _, err := s.CreateMessage(ctx, v1.Message{ID: fmt.Sprintf("m%06d", i), ChatID: "busy", Kind: v1.KindText}); err != nil {
			t.Fatalf("create %d: %v", i, err)
		}
	}

	msgs, err := s.MessagesByRoom(ctx, "busy", memMaxMessagesPerRoom*2)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(msgs) != memMaxMessagesPerRoom {
		t.Fatalf("expected cap at %d, got %d", memMaxMessagesPerRoom, len(msgs))
	}
	if msgs[0].ID != "m000010" {
		t.Fatalf("expected oldest entries evicted, first=%s", msgs[0].ID)
	}
}
