package store

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	v1 "relay/contracts/chat/v1"
)

const memMaxMessagesPerRoom = 10_000

// Memory is the dev-mode Store used when no database is configured.
type Memory struct {
	mu       sync.Mutex
	messages map[string][]v1.Message // roomID -> messages, arrival order
	rooms    map[string]Room
	users    map[string]User // userID -> user
}

// NewMemory constructs an empty in-memory Store.
func NewMemory() *Memory {
	return &Memory{
		messages: make(map[string][]v1.Message),
		rooms:    make(map[string]Room),
		users:    make(map[string]User),
	}
}

// Close closes the store (noop for in-memory).
func (s *Memory) Close() error { return nil }

// CreateMessage appends a message to its room.
func (s *Memory) CreateMessage(ctx context.Context, msg v1.Message) (v1.Message, error) {
	if msg.ID == "" || msg.ChatID == "" {
		return v1.Message{}, errors.New("store: invalid message")
	}
	if err := ctx.Err(); err != nil {
		return v1.Message{}, err
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	msgs := append(s.messages[msg.ChatID], msg)
	// Bound memory to avoid unbounded growth in dev.
	if len(msgs) > memMaxMessagesPerRoom {
		msgs = msgs[len(msgs)-memMaxMessagesPerRoom:]
	}
	s.messages[msg.ChatID] = msgs
	return msg, nil
}

// MessagesByRoom returns up to limit most recent messages, oldest first.
func (s *Memory) MessagesByRoom(ctx context.Context, roomID string, limit int) ([]v1.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 50
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	msgs := s.messages[roomID]
	if len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	out := make([]v1.Message, len(msgs))
	copy(out, msgs)
	return out, nil
}

// CreateRoom inserts or overwrites a room record.
func (s *Memory) CreateRoom(ctx context.Context, room Room) (Room, error) {
	if strings.TrimSpace(room.ID) == "" {
		return Room{}, errors.New("store: missing room id")
	}
	if err := ctx.Err(); err != nil {
		return Room{}, err
	}
	if room.CreatedAt.IsZero() {
		room.CreatedAt = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.rooms[room.ID] = room
	return room, nil
}

// Rooms lists all rooms ordered by creation time, then id.
func (s *Memory) Rooms(ctx context.Context) ([]Room, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Room, 0, len(s.rooms))
	for _, r := range s.rooms {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// DeleteRoom removes a room; reports whether it existed.
func (s *Memory) DeleteRoom(ctx context.Context, id string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.rooms[id]; !ok {
		return false, nil
	}
	delete(s.rooms, id)
	delete(s.messages, id)
	return true, nil
}

// UserByID returns a user or ErrNotFound.
func (s *Memory) UserByID(ctx context.Context, id string) (User, error) {
	if err := ctx.Err(); err != nil {
		return User{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return User{}, ErrNotFound
	}
	return u, nil
}

// UserByEmail returns a user or ErrNotFound. Email matching is case-insensitive.
func (s *Memory) UserByEmail(ctx context.Context, email string) (User, error) {
	if err := ctx.Err(); err != nil {
		return User{}, err
	}
	email = strings.ToLower(strings.TrimSpace(email))

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range s.users {
		if strings.ToLower(u.Email) == email {
			return u, nil
		}
	}
	return User{}, ErrNotFound
}

// CreateUser inserts a new user; ErrConflict if the username or email is taken.
func (s *Memory) CreateUser(ctx context.Context, u User) (User, error) {
	if u.ID == "" || u.Username == "" || u.Email == "" {
		return User{}, errors.New("store: invalid user")
	}
	if err := ctx.Err(); err != nil {
		return User{}, err
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.users {
		if existing.Username == u.Username || strings.EqualFold(existing.Email, u.Email) {
			return User{}, ErrConflict
		}
	}
	s.users[u.ID] = u
	return u, nil
}

// UpdateLastLogin stamps the user's last login; reports whether the user exists.
func (s *Memory) UpdateLastLogin(ctx context.Context, id string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return false, nil
	}
	u.LastLogin = time.Now().UTC()
	s.users[id] = u
	return true, nil
}

// VerifyEmailToken confirms the user holding the token, consuming it.
func (s *Memory) VerifyEmailToken(ctx context.Context, token string) (VerifyResult, error) {
	if err := ctx.Err(); err != nil {
		return VerifyResult{}, err
	}
	if token == "" {
		return VerifyResult{}, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for id, u := range s.users {
		if u.VerificationToken == token {
			u.EmailConfirmed = true
			u.VerificationToken = ""
			s.users[id] = u
			return VerifyResult{Success: true, UserID: u.ID, Email: u.Email}, nil
		}
	}
	return VerifyResult{}, nil
}
