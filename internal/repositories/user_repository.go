package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"taskbot/internal/authz"
	"taskbot/internal/models"
)

type rowScanner interface {
	Scan(dest ...any) error
}

const userColumns = `user_id, telegram_id, username, first_name, last_name, role, created_at`

type userRepository struct {
	db      *sql.DB
	timeout time.Duration
}

func NewUserRepository(db *sql.DB, timeout time.Duration) UserRepository {
	return &userRepository{db: db, timeout: timeout}
}

func scanUser(row rowScanner) (*models.User, error) {
	var (
		u                     models.User
		username, first, last sql.NullString
	)
	if err := row.Scan(&u.ID, &u.ExternalID, &username, &first, &last, &u.Role, &u.CreatedAt); err != nil {
		return nil, err
	}
	u.Username, u.FirstName, u.LastName = username.String, first.String, last.String
	return &u, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func (r *userRepository) Register(ctx context.Context, user *models.User) (*models.User, bool, error) {
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now()
	}
	const q = `
		INSERT INTO users (user_id, telegram_id, username, first_name, last_name, role, created_at)
		SELECT $1::uuid, $2::bigint, $3, $4, $5,
		       CASE WHEN EXISTS (SELECT 1 FROM users) THEN 'admin' ELSE 'director' END,
		       $6::timestamptz
		ON CONFLICT (telegram_id) DO NOTHING
		RETURNING ` + userColumns
	stored, err := scanUser(r.db.QueryRowContext(ctx, q,
		user.ID, user.ExternalID, nullString(user.Username), nullString(user.FirstName), nullString(user.LastName),
		user.CreatedAt,
	))
	if err == nil {
		return stored, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, false, fmt.Errorf("register user: %w", err)
	}

	stored, err = scanUser(r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE telegram_id = $1`, user.ExternalID))
	if err != nil {
		return nil, false, notFound(err, "user")
	}
	return stored, false, nil
}

func (r *userRepository) FindByID(ctx context.Context, id string) (*models.User, error) {
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	u, err := scanUser(r.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE user_id = $1`, id))
	if err != nil {
		return nil, notFound(err, "user")
	}
	return u, nil
}

func (r *userRepository) FindByExternalID(ctx context.Context, externalID int64) (*models.User, error) {
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	u, err := scanUser(r.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE telegram_id = $1`, externalID))
	if err != nil {
		return nil, notFound(err, "user")
	}
	return u, nil
}

func (r *userRepository) UpdateRole(ctx context.Context, id string, role authz.Role) error {
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `UPDATE users SET role = $1 WHERE user_id = $2`, role, id)
	if err != nil {
		return fmt.Errorf("update role: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("user: %w", ErrNotFound)
	}
	return nil
}

func (r *userRepository) List(ctx context.Context) ([]models.User, error) {
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `SELECT `+userColumns+` FROM users ORDER BY first_name, username`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *u)
	}
	return users, rows.Err()
}
