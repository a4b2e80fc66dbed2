package db

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/kiroo/kiroo-sync-server/internal/model"
)

const syncRecordColumns = "id, user_id, device_name, sync_type, manga_synced, chapters_synced, status, error_message, created_at"

// InsertSyncRecord appends one audit row. Rows are never updated.
func (db *DB) InsertSyncRecord(ctx context.Context, r *model.SyncRecord) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	_, err := db.ExecContext(ctx, `
		INSERT INTO sync_history (`+syncRecordColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.UserID, r.DeviceName, r.SyncType, r.MangaSynced, r.ChaptersSynced,
		r.Status, r.ErrorMessage, r.CreatedAt)
	return err
}

func (db *DB) ListSyncRecords(ctx context.Context, userID int64, limit, offset int) ([]model.SyncRecord, error) {
	rows, err := db.QueryContext(ctx,
		"SELECT "+syncRecordColumns+" FROM sync_history WHERE user_id = ? ORDER BY created_at DESC LIMIT ? OFFSET ?",
		userID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []model.SyncRecord
	for rows.Next() {
		var r model.SyncRecord
		if err := rows.Scan(&r.ID, &r.UserID, &r.DeviceName, &r.SyncType, &r.MangaSynced,
			&r.ChaptersSynced, &r.Status, &r.ErrorMessage, &r.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, r)
	}
	return list, rows.Err()
}

func (db *DB) LatestSyncRecord(ctx context.Context, userID int64) (*model.SyncRecord, error) {
	var r model.SyncRecord
	row := db.QueryRowContext(ctx,
		"SELECT "+syncRecordColumns+" FROM sync_history WHERE user_id = ? ORDER BY created_at DESC LIMIT 1",
		userID)
	err := row.Scan(&r.ID, &r.UserID, &r.DeviceName, &r.SyncType, &r.MangaSynced,
		&r.ChaptersSynced, &r.Status, &r.ErrorMessage, &r.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}
