package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"vidtube/internal/models"
)

const sessionColumns = `id, user_id, refresh_token_hash, user_agent, ip_address, created_at, last_used_at, expires_at, revoked_at`

type SessionRepository struct {
	db *DB
}

func NewSessionRepository(db *DB) *SessionRepository {
	return &SessionRepository{db: db}
}

// NewSessionID returns an identifier for a session that is about to be
// created. The id is minted before the row exists because the refresh token
// embeds it.
func NewSessionID() (string, error) {
	return GenerateID(PrefixSession)
}

func (r *SessionRepository) Create(ctx context.Context, s *models.Session) error {
	if s.ID == "" {
		id, err := NewSessionID()
		if err != nil {
			return fmt.Errorf("generating session ID: %w", err)
		}
		s.ID = id
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now().UTC()
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO sessions (id, user_id, refresh_token_hash, user_agent, ip_address, created_at, expires_at)
         VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		s.ID, s.UserID, s.RefreshTokenHash, s.UserAgent, s.IPAddress, s.CreatedAt.UTC(), s.ExpiresAt.UTC(),
	)
	if err != nil {
		if IsUniqueConstraintError(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("creating session: %w", err)
	}
	return nil
}

func (r *SessionRepository) FindByID(ctx context.Context, id string) (*models.Session, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = $1`, id)
	s, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying session: %w", err)
	}
	return s, nil
}

// Rotate replaces the stored refresh hash only if the session still holds
// oldHash and is live. Concurrent rotations of the same token race on this
// statement and exactly one wins; the rest get ErrNotFound.
func (r *SessionRepository) Rotate(ctx context.Context, id, userID, oldHash, newHash string, expiresAt time.Time) error {
	now := time.Now().UTC()
	result, err := r.db.ExecContext(ctx,
		`UPDATE sessions
            SET refresh_token_hash = $1, last_used_at = $2, expires_at = $3
          WHERE id = $4 AND user_id = $5 AND refresh_token_hash = $6
            AND revoked_at IS NULL AND expires_at > $2`,
		newHash, now, expiresAt.UTC(), id, userID, oldHash,
	)
	if err != nil {
		return fmt.Errorf("rotating session: %w", err)
	}
	return checkRowsAffected(result)
}

// Revoke marks one of the user's sessions revoked. It reports whether a live
// session was actually revoked.
func (r *SessionRepository) Revoke(ctx context.Context, id, userID string) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE sessions SET revoked_at = $1
          WHERE id = $2 AND user_id = $3 AND revoked_at IS NULL`,
		time.Now().UTC(), id, userID,
	)
	if err != nil {
		return false, fmt.Errorf("revoking session: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("checking rows affected: %w", err)
	}
	return rows > 0, nil
}

// RevokeAllForUser revokes every live session of the user except exceptID,
// which may be empty. It returns the ids it revoked.
func (r *SessionRepository) RevokeAllForUser(ctx context.Context, userID, exceptID string) ([]string, error) {
	now := time.Now().UTC()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx,
		`SELECT id FROM sessions WHERE user_id = $1 AND id <> $2 AND revoked_at IS NULL`,
		userID, exceptID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scanning session id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Close(); err != nil {
		return nil, fmt.Errorf("closing rows: %w", err)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating sessions: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE sessions SET revoked_at = $1
          WHERE user_id = $2 AND id <> $3 AND revoked_at IS NULL`,
		now, userID, exceptID,
	); err != nil {
		return nil, fmt.Errorf("revoking sessions: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing transaction: %w", err)
	}
	return ids, nil
}

// ListActiveForUser returns the user's live sessions, newest first.
func (r *SessionRepository) ListActiveForUser(ctx context.Context, userID string) ([]models.Session, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions
          WHERE user_id = $1 AND revoked_at IS NULL AND expires_at > $2
          ORDER BY created_at DESC`,
		userID, time.Now().UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}
	defer rows.Close()

	sessions := []models.Session{}
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning session: %w", err)
		}
		sessions = append(sessions, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating sessions: %w", err)
	}
	return sessions, nil
}

// DeleteExpired removes sessions that expired or were revoked before cutoff.
func (r *SessionRepository) DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM sessions WHERE expires_at < $1 OR revoked_at < $1`,
		cutoff.UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("deleting expired sessions: %w", err)
	}
	return result.RowsAffected()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*models.Session, error) {
	var s models.Session
	var lastUsedAt, revokedAt sql.NullTime

	if err := row.Scan(
		&s.ID,
		&s.UserID,
		&s.RefreshTokenHash,
		&s.UserAgent,
		&s.IPAddress,
		&s.CreatedAt,
		&lastUsedAt,
		&s.ExpiresAt,
		&revokedAt,
	); err != nil {
		return nil, err
	}

	s.CreatedAt = s.CreatedAt.UTC()
	s.ExpiresAt = s.ExpiresAt.UTC()
	s.LastUsedAt = nullTimeToPtr(lastUsedAt)
	s.RevokedAt = nullTimeToPtr(revokedAt)
	return &s, nil
}
