package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/nhle/pmsync/internal/model"
)

const userColumns = `id, remote_account_id, email, display_name, active, source, is_stub, created_at, updated_at`

type userRow struct {
	ID              string         `db:"id"`
	RemoteAccountID sql.NullString `db:"remote_account_id"`
	Email           string         `db:"email"`
	DisplayName     string         `db:"display_name"`
	Active          bool           `db:"active"`
	Source          string         `db:"source"`
	IsStub          bool           `db:"is_stub"`
	CreatedAt       time.Time      `db:"created_at"`
	UpdatedAt       time.Time      `db:"updated_at"`
}

func (r userRow) toModel() model.User {
	return model.User{
		ID:              r.ID,
		RemoteAccountID: stringPtr(r.RemoteAccountID),
		Email:           r.Email,
		DisplayName:     r.DisplayName,
		Active:          r.Active,
		Source:          model.UserSource(r.Source),
		IsStub:          r.IsStub,
		CreatedAt:       r.CreatedAt.UTC(),
		UpdatedAt:       r.UpdatedAt.UTC(),
	}
}

// GetUserByID retrieves a single user by its internal id.
func (s *SQLStore) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	return s.getUser(ctx, "id = ?", id)
}

// GetUserByAccountID retrieves the user linked to a remote account.
func (s *SQLStore) GetUserByAccountID(ctx context.Context, accountID string) (*model.User, error) {
	return s.getUser(ctx, "remote_account_id = ?", accountID)
}

// GetUserByEmail retrieves a user by email, ignoring case.
func (s *SQLStore) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	return s.getUser(ctx, "lower(email) = ?", strings.ToLower(strings.TrimSpace(email)))
}

func (s *SQLStore) getUser(ctx context.Context, where string, arg interface{}) (*model.User, error) {
	var row userRow
	if err := s.get(ctx, &row, "SELECT "+userColumns+" FROM users WHERE "+where, arg); err != nil {
		return nil, fmt.Errorf("getting user %v: %w", arg, err)
	}
	user := row.toModel()
	return &user, nil
}

// ListUsers retrieves all users ordered by display name.
func (s *SQLStore) ListUsers(ctx context.Context) ([]model.User, error) {
	var rows []userRow
	if err := s.db.SelectContext(ctx, &rows,
		"SELECT "+userColumns+" FROM users ORDER BY display_name, email"); err != nil {
		return nil, fmt.Errorf("querying users: %w", err)
	}
	users := make([]model.User, 0, len(rows))
	for _, r := range rows {
		users = append(users, r.toModel())
	}
	return users, nil
}

// SaveUser inserts a user or updates it in place by id. CreatedAt is
// kept from the first insert.
func (s *SQLStore) SaveUser(ctx context.Context, user model.User) error {
	if strings.TrimSpace(user.Email) == "" {
		return fmt.Errorf("user email must not be empty")
	}
	now := time.Now().UTC()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	user.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, s.q(`
		INSERT INTO users (`+userColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			remote_account_id = excluded.remote_account_id,
			email = excluded.email,
			display_name = excluded.display_name,
			active = excluded.active,
			source = excluded.source,
			is_stub = excluded.is_stub,
			updated_at = excluded.updated_at`),
		user.ID, nullString(user.RemoteAccountID), user.Email, user.DisplayName,
		boolToInt(user.Active), string(user.Source), boolToInt(user.IsStub),
		user.CreatedAt.UTC(), user.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("saving user %s: %w", user.ID, err)
	}
	return nil
}
