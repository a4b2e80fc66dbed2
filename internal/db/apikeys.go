package db

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/kiroo/kiroo-sync-server/internal/model"
)

// ErrNotFound is returned by point lookups when no row matches.
var ErrNotFound = errors.New("not found")

// GetAPIKeyByHash resolves a key digest to its credential record. The
// lookup is deliberately not user-scoped: the digest alone identifies
// the device, which identifies the user.
func (db *DB) GetAPIKeyByHash(ctx context.Context, keyHash string) (*model.APIKey, error) {
	var k model.APIKey
	row := db.QueryRowContext(ctx, `
		SELECT id, user_id, key_hash, name, device_name, last_used_at, created_at
		FROM api_keys WHERE key_hash = ?`, keyHash)
	err := row.Scan(&k.ID, &k.UserID, &k.KeyHash, &k.Name, &k.DeviceName, &k.LastUsedAt, &k.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &k, nil
}

// TouchAPIKey stamps last_used_at. Callers treat failures as non-fatal.
func (db *DB) TouchAPIKey(ctx context.Context, id string, now int64) error {
	_, err := db.ExecContext(ctx, "UPDATE api_keys SET last_used_at = ? WHERE id = ?", now, id)
	return err
}

func (db *DB) CreateAPIKey(ctx context.Context, userID int64, keyHash, name string, deviceName *string, now int64) (*model.APIKey, error) {
	k := &model.APIKey{
		ID:         uuid.NewString(),
		UserID:     userID,
		KeyHash:    keyHash,
		Name:       name,
		DeviceName: deviceName,
		CreatedAt:  now,
	}
	_, err := db.ExecContext(ctx, `
		INSERT INTO api_keys (id, user_id, key_hash, name, device_name, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		k.ID, k.UserID, k.KeyHash, k.Name, k.DeviceName, k.CreatedAt)
	if err != nil {
		return nil, err
	}
	return k, nil
}

func (db *DB) ListAPIKeys(ctx context.Context, userID int64) ([]model.APIKey, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, user_id, name, device_name, last_used_at, created_at
		FROM api_keys WHERE user_id = ? ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []model.APIKey
	for rows.Next() {
		var k model.APIKey
		if err := rows.Scan(&k.ID, &k.UserID, &k.Name, &k.DeviceName, &k.LastUsedAt, &k.CreatedAt); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

func (db *DB) DeleteAPIKey(ctx context.Context, userID int64, id string) error {
	res, err := db.ExecContext(ctx, "DELETE FROM api_keys WHERE id = ? AND user_id = ?", id, userID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
