// Package store defines the persistence collaborator consumed by the relay
// core: messages, rooms and users behind a single interface with in-memory
// and PostgreSQL implementations.
package store

import (
	"context"
	"errors"
	"time"

	v1 "relay/contracts/chat/v1"
)

// Sentinel errors shared by all implementations.
var (
	// ErrNotFound is returned for lookups of unknown ids/emails/tokens.
	ErrNotFound = errors.New("store: not found")
	// ErrConflict is returned when a unique constraint (username/email) is violated.
	ErrConflict = errors.New("store: already exists")
)

// User is the persisted user record.
type User struct {
	ID                string
	Username          string
	Email             string
	PasswordHash      string
	CreatedAt         time.Time
	LastLogin         time.Time
	EmailConfirmed    bool
	VerificationToken string
}

// Room is the persisted chat room record.
type Room struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	IsPrivate   bool      `json:"isPrivate"`
	Members     []string  `json:"members,omitempty"`
}

// DefaultRoomID is the room every deployment has; it cannot be deleted and is
// recreated whenever the room listing comes back empty.
const DefaultRoomID = "general"

// DefaultRoom returns the canonical default room.
func DefaultRoom() Room {
	return Room{
		ID:          DefaultRoomID,
		Name:        "General",
		Description: "Public chat room for everyone",
		CreatedAt:   time.Now().UTC(),
	}
}

// VerifyResult is the outcome of an email verification attempt.
type VerifyResult struct {
	Success bool
	UserID  string
	Email   string
}

// Store is the persistence boundary of the relay core.
//
// Lookup operations report unknown ids via ErrNotFound, never via panics.
// Implementations must be safe for concurrent use.
type Store interface {
	CreateMessage(ctx context.Context, msg v1.Message) (v1.Message, error)
	MessagesByRoom(ctx context.Context, roomID string, limit int) ([]v1.Message, error)

	CreateRoom(ctx context.Context, room Room) (Room, error)
	Rooms(ctx context.Context) ([]Room, error)
	DeleteRoom(ctx context.Context, id string) (bool, error)

	UserByID(ctx context.Context, id string) (User, error)
	UserByEmail(ctx context.Context, email string) (User, error)
	CreateUser(ctx context.Context, u User) (User, error)
	UpdateLastLogin(ctx context.Context, id string) (bool, error)
	VerifyEmailToken(ctx context.Context, token string) (VerifyResult, error)

	Close() error
}
