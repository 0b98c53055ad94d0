package devbackend

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

var (
	ErrUserExists   = errors.New("user already exists")
	ErrUserNotFound = errors.New("user not found")
)

// User is an account on the development backend. Username is the email.
type User struct {
	ID           uuid.UUID
	Username     string
	PasswordHash string
	BirthDate    time.Time
	CreatedAt    time.Time
}

// Age returns the user's age in whole years at now.
func (u *User) Age(now time.Time) int {
	if u.BirthDate.IsZero() {
		return 0
	}
	age := now.Year() - u.BirthDate.Year()
	if now.Month() < u.BirthDate.Month() || (now.Month() == u.BirthDate.Month() && now.Day() < u.BirthDate.Day()) {
		age--
	}
	if age < 0 {
		return 0
	}
	return age
}

type UserRepository interface {
	Create(ctx context.Context, username, passwordHash string, birthDate time.Time) (*User, error)
	FindByUsername(ctx context.Context, username string) (*User, error)
}

const createUsersTable = `CREATE TABLE IF NOT EXISTS users (
	id UUID PRIMARY KEY,
	username VARCHAR(254) NOT NULL UNIQUE,
	password_hash VARCHAR(255) NOT NULL,
	birth_date DATE,
	created_at TIMESTAMP NOT NULL DEFAULT NOW()
)`

const createUsersIndex = `CREATE INDEX IF NOT EXISTS idx_users_username_lower ON users(LOWER(username))`

// PostgresUsers stores accounts in the users table.
type PostgresUsers struct {
	db  *sql.DB
	now func() time.Time
}

func NewPostgresUsers(db *sql.DB) *PostgresUsers {
	return &PostgresUsers{db: db, now: time.Now}
}

func (s *PostgresUsers) EnsureSchema(ctx context.Context) error {
	for _, q := range []string{createUsersTable, createUsersIndex} {
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("ensure users schema: %w", err)
		}
	}
	return nil
}

func (s *PostgresUsers) Create(ctx context.Context, username, passwordHash string, birthDate time.Time) (*User, error) {
	u := &User{
		ID:           uuid.New(),
		Username:     username,
		PasswordHash: passwordHash,
		BirthDate:    birthDate,
		CreatedAt:    s.now().UTC(),
	}
	var bd sql.NullTime
	if !birthDate.IsZero() {
		bd = sql.NullTime{Time: birthDate, Valid: true}
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (id, username, password_hash, birth_date, created_at) VALUES ($1, $2, $3, $4, $5)`,
		u.ID, u.Username, u.PasswordHash, bd, u.CreatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return nil, ErrUserExists
		}
		return nil, fmt.Errorf("insert user: %w", err)
	}
	return u, nil
}

func (s *PostgresUsers) FindByUsername(ctx context.Context, username string) (*User, error) {
	var u User
	var bd sql.NullTime
	err := s.db.QueryRowContext(ctx,
		`SELECT id, username, password_hash, birth_date, created_at FROM users WHERE LOWER(username) = LOWER($1)`,
		username).Scan(&u.ID, &u.Username, &u.PasswordHash, &bd, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find user: %w", err)
	}
	if bd.Valid {
		u.BirthDate = bd.Time
	}
	return &u, nil
}
