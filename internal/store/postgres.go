package store

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	v1 "relay/contracts/chat/v1"
)

// Postgres is a Store backed by PostgreSQL.
//
// Ownership model:
// - Postgres does NOT own the pgx pool. The caller must close the pool.
// - Close() is therefore a no-op.
type Postgres struct {
	pool   *pgxpool.Pool
	schema string
}

// PostgresOption configures Postgres behavior.
type PostgresOption func(*Postgres) error

// WithSchema sets the DB schema used by this store (default: "relay").
// The schema name is validated and safely quoted in queries.
func WithSchema(schema string) PostgresOption {
	return func(s *Postgres) error {
		schema = strings.TrimSpace(schema)
		if schema == "" {
			return errors.New("store: empty schema")
		}
		if !isValidPGIdent(schema) {
			return errors.New("store: invalid schema identifier")
		}
		s.schema = schema
		return nil
	}
}

// NewPostgres constructs a Postgres-backed Store.
func NewPostgres(pool *pgxpool.Pool, opts ...PostgresOption) (*Postgres, error) {
	st := &Postgres{
		pool:   pool,
		schema: "relay",
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(st); err != nil {
			return nil, err
		}
	}
	if st.pool == nil {
		return nil, errors.New("store: nil pool")
	}
	return st, nil
}

// Close is a no-op because the pool is owned by the caller.
func (s *Postgres) Close() error { return nil }

// CreateMessage inserts a message row.
func (s *Postgres) CreateMessage(ctx context.Context, msg v1.Message) (v1.Message, error) {
	if msg.ID == "" || msg.ChatID == "" {
		return v1.Message{}, errors.New("store: invalid message")
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}

	messages := pgIdent(s.schema, "messages")

	_, err := s.pool.Exec(ctx,
		`INSERT INTO `+messages+` (
		     id, room_id, sender_id, sender_name, content, kind, attachment_url, attachment_filename, ts
		   ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		msg.ID, msg.ChatID, msg.SenderID, msg.SenderName,
		msg.Content, msg.Kind, nullable(msg.AttachmentURL), nullable(msg.AttachmentFilename), msg.Timestamp,
	)
	if err != nil {
		return v1.Message{}, fmt.Errorf("insert message: %w", err)
	}
	return msg, nil
}

// MessagesByRoom returns up to limit most recent messages, oldest first.
func (s *Postgres) MessagesByRoom(ctx context.Context, roomID string, limit int) ([]v1.Message, error) {
	if limit <= 0 {
		limit = 50
	}

	messages := pgIdent(s.schema, "messages")

	rows, err := s.pool.Query(ctx,
		`SELECT id, room_id, sender_id, sender_name, content, kind, attachment_url, attachment_filename, ts
		   FROM (SELECT * FROM `+messages+` WHERE room_id = $1 ORDER BY ts DESC LIMIT $2) recent
		  ORDER BY ts ASC`,
		roomID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]v1.Message, 0, limit)
	for rows.Next() {
		var (
			m                    v1.Message
			content, aURL, aName *string
		)
		if err := rows.Scan(&m.ID, &m.ChatID, &m.SenderID, &m.SenderName, &content, &m.Kind, &aURL, &aName, &m.Timestamp); err != nil {
			return nil, err
		}
		m.Content = deref(content)
		m.AttachmentURL = deref(aURL)
		m.AttachmentFilename = deref(aName)
		out = append(out, m)
	}
	return out, rows.Err()
}

// CreateRoom inserts or updates a room row.
func (s *Postgres) CreateRoom(ctx context.Context, room Room) (Room, error) {
	if strings.TrimSpace(room.ID) == "" {
		return Room{}, errors.New("store: missing room id")
	}
	if room.CreatedAt.IsZero() {
		room.CreatedAt = time.Now().UTC()
	}

	rooms := pgIdent(s.schema, "rooms")

	_, err := s.pool.Exec(ctx,
		`INSERT INTO `+rooms+` (id, name, description, created_at, is_private, members)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (id) DO UPDATE
		    SET name = EXCLUDED.name, description = EXCLUDED.description, is_private = EXCLUDED.is_private`,
		room.ID, room.Name, nullable(room.Description), room.CreatedAt, room.IsPrivate, room.Members,
	)
	if err != nil {
		return Room{}, fmt.Errorf("insert room: %w", err)
	}
	return room, nil
}

// Rooms lists all rooms ordered by creation time.
func (s *Postgres) Rooms(ctx context.Context) ([]Room, error) {
	rooms := pgIdent(s.schema, "rooms")

	rows, err := s.pool.Query(ctx,
		`SELECT id, name, description, created_at, is_private, members
		   FROM `+rooms+`
		  ORDER BY created_at ASC, id ASC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Room
	for rows.Next() {
		var (
			r    Room
			desc *string
		)
		if err := rows.Scan(&r.ID, &r.Name, &desc, &r.CreatedAt, &r.IsPrivate, &r.Members); err != nil {
			return nil, err
		}
		r.Description = deref(desc)
		out = append(out, r)
	}
	return out, rows.Err()
}

// DeleteRoom removes a room and its messages; reports whether the room existed.
func (s *Postgres) DeleteRoom(ctx context.Context, id string) (bool, error) {
	rooms := pgIdent(s.schema, "rooms")
	messages := pgIdent(s.schema, "messages")

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return false, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `DELETE FROM `+messages+` WHERE room_id = $1`, id); err != nil {
		return false, err
	}
	tag, err := tx.Exec(ctx, `DELETE FROM `+rooms+` WHERE id = $1`, id)
	if err != nil {
		return false, err
	}
	if err := tx.Commit(ctx); err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// UserByID returns a user or ErrNotFound.
func (s *Postgres) UserByID(ctx context.Context, id string) (User, error) {
	users := pgIdent(s.schema, "users")
	return s.scanUser(s.pool.QueryRow(ctx,
		`SELECT id, username, email, password_hash, created_at, last_login, email_confirmed, verification_token
		   FROM `+users+` WHERE id = $1`, id))
}

// UserByEmail returns a user or ErrNotFound. Email matching is case-insensitive.
func (s *Postgres) UserByEmail(ctx context.Context, email string) (User, error) {
	users := pgIdent(s.schema, "users")
	return s.scanUser(s.pool.QueryRow(ctx,
		`SELECT id, username, email, password_hash, created_at, last_login, email_confirmed, verification_token
		   FROM `+users+` WHERE lower(email) = lower($1)`, strings.TrimSpace(email)))
}

// CreateUser inserts a new user; ErrConflict if the username or email is taken.
func (s *Postgres) CreateUser(ctx context.Context, u User) (User, error) {
	if u.ID == "" || u.Username == "" || u.Email == "" {
		return User{}, errors.New("store: invalid user")
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}

	users := pgIdent(s.schema, "users")

	_, err := s.pool.Exec(ctx,
		`INSERT INTO `+users+` (id, username, email, password_hash, created_at, email_confirmed, verification_token)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		u.ID, u.Username, u.Email, u.PasswordHash, u.CreatedAt, u.EmailConfirmed, nullable(u.VerificationToken),
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" { // unique_violation
			return User{}, ErrConflict
		}
		return User{}, fmt.Errorf("insert user: %w", err)
	}
	return u, nil
}

// UpdateLastLogin stamps the user's last login; reports whether the user exists.
func (s *Postgres) UpdateLastLogin(ctx context.Context, id string) (bool, error) {
	users := pgIdent(s.schema, "users")

	tag, err := s.pool.Exec(ctx, `UPDATE `+users+` SET last_login = now() WHERE id = $1`, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// VerifyEmailToken confirms the user holding the token, consuming it.
func (s *Postgres) VerifyEmailToken(ctx context.Context, token string) (VerifyResult, error) {
	if token == "" {
		return VerifyResult{}, nil
	}

	users := pgIdent(s.schema, "users")

	var res VerifyResult
	err := s.pool.QueryRow(ctx,
		`UPDATE `+users+`
		    SET email_confirmed = true, verification_token = NULL
		  WHERE verification_token = $1
		RETURNING id, email`,
		token,
	).Scan(&res.UserID, &res.Email)
	if errors.Is(err, pgx.ErrNoRows) {
		return VerifyResult{}, nil
	}
	if err != nil {
		return VerifyResult{}, err
	}
	res.Success = true
	return res, nil
}

func (s *Postgres) scanUser(row pgx.Row) (User, error) {
	var (
		u          User
		lastLogin  *time.Time
		verifToken *string
	)
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.CreatedAt, &lastLogin, &u.EmailConfirmed, &verifToken)
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, ErrNotFound
	}
	if err != nil {
		return User{}, err
	}
	if lastLogin != nil {
		u.LastLogin = *lastLogin
	}
	u.VerificationToken = deref(verifToken)
	return u, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

var pgIdentRE = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

func isValidPGIdent(s string) bool {
	return pgIdentRE.MatchString(s)
}

func pgIdent(schema, table string) string {
	// pgx.Identifier safely quotes identifiers, preventing SQL injection.
	return pgx.Identifier{schema, table}.Sanitize()
}
