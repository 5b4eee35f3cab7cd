package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"vidtube/internal/mediaurl"
	"vidtube/internal/models"
)

// userColumns is the caller-facing projection. password_hash is read only
// through the credential lookups.
const userColumns = `id, username, email, full_name, avatar_url, cover_image_url, created_at, updated_at`

type UserRepository struct {
	db *DB
}

func NewUserRepository(db *DB) *UserRepository {
	return &UserRepository{db: db}
}

// Create inserts user with the given password hash and fills in its ID and
// timestamps. A username or email collision returns ErrDuplicate.
func (r *UserRepository) Create(ctx context.Context, user *models.User, passwordHash string) error {
	id, err := GenerateID(PrefixUser)
	if err != nil {
		return fmt.Errorf("generating user ID: %w", err)
	}
	now := time.Now().UTC()

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO users (id, username, email, full_name, password_hash, avatar_url, cover_image_url, created_at)
         VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		id, user.Username, user.Email, user.FullName, passwordHash, user.AvatarURL, user.CoverImageURL, now,
	)
	if err != nil {
		if IsUniqueConstraintError(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("creating user: %w", err)
	}

	user.ID = id
	user.CreatedAt = now
	user.UpdatedAt = nil
	return nil
}

func (r *UserRepository) FindByID(ctx context.Context, id string) (*models.User, error) {
	return r.findOne(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
}

func (r *UserRepository) FindByUsername(ctx context.Context, username string) (*models.User, error) {
	return r.findOne(ctx, `SELECT `+userColumns+` FROM users WHERE username = $1`, username)
}

func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	return r.findOne(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email)
}

// FindCredentialsByLogin looks a user up by username or email. A username
// match wins when the two identify different users.
func (r *UserRepository) FindCredentialsByLogin(ctx context.Context, username, email string) (*models.Credentials, error) {
	return r.findCredentials(ctx,
		`SELECT id, password_hash FROM users
          WHERE username = $1 OR email = $2
          ORDER BY CASE WHEN username = $1 THEN 0 ELSE 1 END
          LIMIT 1`,
		username, email,
	)
}

func (r *UserRepository) FindCredentialsByID(ctx context.Context, id string) (*models.Credentials, error) {
	return r.findCredentials(ctx, `SELECT id, password_hash FROM users WHERE id = $1`, id)
}

func (r *UserRepository) ExistsByUsernameOrEmail(ctx context.Context, username, email string) (bool, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM users WHERE username = $1 OR email = $2`,
		username, email,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("checking user existence: %w", err)
	}
	return count > 0, nil
}

func (r *UserRepository) UpdatePasswordHash(ctx context.Context, id, passwordHash string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE users SET password_hash = $1, updated_at = $2 WHERE id = $3`,
		passwordHash, time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("updating password: %w", err)
	}
	return checkRowsAffected(result)
}

func (r *UserRepository) UpdateAccount(ctx context.Context, id, fullName, email string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE users SET full_name = $1, email = $2, updated_at = $3 WHERE id = $4`,
		fullName, email, time.Now().UTC(), id,
	)
	if err != nil {
		if IsUniqueConstraintError(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("updating account: %w", err)
	}
	return checkRowsAffected(result)
}

func (r *UserRepository) UpdateAvatarURL(ctx context.Context, id, url string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE users SET avatar_url = $1, updated_at = $2 WHERE id = $3`,
		url, time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("updating avatar: %w", err)
	}
	return checkRowsAffected(result)
}

func (r *UserRepository) UpdateCoverImageURL(ctx context.Context, id, url string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE users SET cover_image_url = $1, updated_at = $2 WHERE id = $3`,
		url, time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("updating cover image: %w", err)
	}
	return checkRowsAffected(result)
}

// BlobReferenced reports whether any avatar or cover image URL points at
// the local blob file name.
func (r *UserRepository) BlobReferenced(ctx context.Context, name string) (bool, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM users WHERE avatar_url LIKE $1 OR cover_image_url LIKE $1`,
		"%"+mediaurl.PathPrefix+name,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("checking blob references: %w", err)
	}
	return count > 0, nil
}

func (r *UserRepository) findOne(ctx context.Context, query string, args ...any) (*models.User, error) {
	var u models.User
	var updatedAt sql.NullTime

	err := r.db.QueryRowContext(ctx, query, args...).Scan(
		&u.ID,
		&u.Username,
		&u.Email,
		&u.FullName,
		&u.AvatarURL,
		&u.CoverImageURL,
		&u.CreatedAt,
		&updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying user: %w", err)
	}

	u.CreatedAt = u.CreatedAt.UTC()
	u.UpdatedAt = nullTimeToPtr(updatedAt)

	return &u, nil
}

func (r *UserRepository) findCredentials(ctx context.Context, query string, args ...any) (*models.Credentials, error) {
	var c models.Credentials
	err := r.db.QueryRowContext(ctx, query, args...).Scan(&c.UserID, &c.PasswordHash)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying credentials: %w", err)
	}
	return &c, nil
}
