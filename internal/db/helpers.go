package db

import (
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"fmt"
	"time"

	"vidtube/internal/constants"
)

// ID prefixes for stored records.
const (
	PrefixUser    = "usr"
	PrefixSession = "ses"
	PrefixBlob    = "blb"
)

// GenerateID returns prefix_<hex> with constants.IDRandomBytes of randomness.
func GenerateID(prefix string) (string, error) {
	b := make([]byte, constants.IDRandomBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("reading random id bytes: %w", err)
	}
	return prefix + "_" + hex.EncodeToString(b), nil
}

func nullTimeToPtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time.UTC()
	return &t
}

// checkRowsAffected maps an update that matched nothing to ErrNotFound.
func checkRowsAffected(result sql.Result) error {
	n, err := result.RowsAffected()
	switch {
	case err != nil:
		return fmt.Errorf("reading rows affected: %w", err)
	case n == 0:
		return ErrNotFound
	default:
		return nil
	}
}
