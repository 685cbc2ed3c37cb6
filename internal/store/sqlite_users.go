package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
)

type User struct {
	ID           int64
	FirstName    string
	LastName     string
	Username     string
	PasswordHash string
	CreatedUTC   time.Time
	LastLoginUTC time.Time
}

// bcryptCost is lowered by tests.
var bcryptCost = bcrypt.DefaultCost

func (s *Store) CreateUser(ctx context.Context, firstName, lastName, username, password string) (User, error) {
	firstName = strings.TrimSpace(firstName)
	lastName = strings.TrimSpace(lastName)
	username = strings.TrimSpace(username)
	if firstName == "" || lastName == "" || username == "" {
		return User{}, fmt.Errorf("first name, last name and username are required")
	}
	if password == "" {
		return User{}, fmt.Errorf("password is required")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return User{}, fmt.Errorf("hash password: %w", err)
	}
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO users (first_name, last_name, username, password_hash, created_utc) VALUES (?, ?, ?, ?, ?)`,
		firstName, lastName, username, string(hash), now.Format(time.RFC3339Nano))
	if err != nil {
		return User{}, fmt.Errorf("insert user %q: %w", username, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return User{}, fmt.Errorf("read user id: %w", err)
	}
	return User{
		ID:           id,
		FirstName:    firstName,
		LastName:     lastName,
		Username:     username,
		PasswordHash: string(hash),
		CreatedUTC:   now,
	}, nil
}

// UserByPassword returns the user whose password matches. The password is the
// only credential, so every stored hash is checked.
func (s *Store) UserByPassword(ctx context.Context, password string) (User, error) {
	if password == "" {
		return User{}, ErrNotFound
	}
	users, err := s.listUsers(ctx)
	if err != nil {
		return User{}, err
	}
	for _, u := range users {
		if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) == nil {
			return u, nil
		}
	}
	return User{}, ErrNotFound
}

func (s *Store) UserByID(ctx context.Context, id int64) (User, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, first_name, last_name, username, password_hash, created_utc, last_login_utc
		FROM users WHERE id = ?`, id)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrNotFound
	}
	if err != nil {
		return User{}, fmt.Errorf("query user %d: %w", id, err)
	}
	return u, nil
}

func (s *Store) MarkLogin(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `UPDATE users SET last_login_utc = ? WHERE id = ?`,
		time.Now().UTC().Format(time.RFC3339Nano), id)
	if err != nil {
		return fmt.Errorf("update last login: %w", err)
	}
	return nil
}

func (s *Store) listUsers(ctx context.Context) ([]User, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, first_name, last_name, username, password_hash, created_utc, last_login_utc
		FROM users ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query users: %w", err)
	}
	defer rows.Close()

	var out []User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func scanUser(scanner interface{ Scan(dest ...any) error }) (User, error) {
	var (
		u         User
		created   string
		lastLogin sql.NullString
	)
	if err := scanner.Scan(&u.ID, &u.FirstName, &u.LastName, &u.Username, &u.PasswordHash, &created, &lastLogin); err != nil {
		return User{}, err
	}
	u.CreatedUTC = parseUTC(created)
	if lastLogin.Valid {
		u.LastLoginUTC = parseUTC(lastLogin.String)
	}
	return u, nil
}

func parseUTC(v string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return time.Time{}
	}
	return t
}
