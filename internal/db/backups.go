package db

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/kiroo/kiroo-sync-server/internal/model"
)

const backupMetaColumns = "id, user_id, name, description, manga_count, chapter_count, size_bytes, created_at"

func (db *DB) InsertBackup(ctx context.Context, b *model.Backup) error {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	_, err := db.ExecContext(ctx, `
		INSERT INTO backups (id, user_id, name, description, data, manga_count, chapter_count, size_bytes, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		b.ID, b.UserID, b.Name, b.Description, b.Data, b.MangaCount, b.ChapterCount, b.SizeBytes, b.CreatedAt)
	return err
}

// ListBackups returns snapshot metadata only; the data blob stays in
// the database until a targeted get/download.
func (db *DB) ListBackups(ctx context.Context, userID int64, limit, offset int) ([]model.Backup, error) {
	rows, err := db.QueryContext(ctx,
		"SELECT "+backupMetaColumns+" FROM backups WHERE user_id = ? ORDER BY created_at DESC LIMIT ? OFFSET ?",
		userID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []model.Backup
	for rows.Next() {
		var b model.Backup
		if err := rows.Scan(&b.ID, &b.UserID, &b.Name, &b.Description, &b.MangaCount, &b.ChapterCount, &b.SizeBytes, &b.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, b)
	}
	return list, rows.Err()
}

func (db *DB) GetBackup(ctx context.Context, userID int64, id string) (*model.Backup, error) {
	var b model.Backup
	row := db.QueryRowContext(ctx,
		"SELECT id, user_id, name, description, data, manga_count, chapter_count, size_bytes, created_at FROM backups WHERE id = ? AND user_id = ?",
		id, userID)
	err := row.Scan(&b.ID, &b.UserID, &b.Name, &b.Description, &b.Data, &b.MangaCount, &b.ChapterCount, &b.SizeBytes, &b.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func (db *DB) DeleteBackup(ctx context.Context, userID int64, id string) error {
	return db.deleteUserRow(ctx, "backups", userID, id)
}
