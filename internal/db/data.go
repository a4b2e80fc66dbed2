package db

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/kiroo/kiroo-sync-server/internal/model"
)

// Preferences

func (db *DB) UpsertPreference(ctx context.Context, userID int64, key, value, prefType string) error {
	res, err := db.ExecContext(ctx,
		"UPDATE preferences SET value = ?, type = ? WHERE user_id = ? AND `key` = ?",
		value, prefType, userID, key)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}
	_, err = db.ExecContext(ctx,
		"INSERT INTO preferences (id, user_id, `key`, value, type) VALUES (?, ?, ?, ?, ?)",
		uuid.NewString(), userID, key, value, prefType)
	if IsUniqueViolation(err) {
		_, err = db.ExecContext(ctx,
			"UPDATE preferences SET value = ?, type = ? WHERE user_id = ? AND `key` = ?",
			value, prefType, userID, key)
	}
	return err
}

func (db *DB) ListPreferences(ctx context.Context, userID int64) ([]model.Preference, error) {
	rows, err := db.QueryContext(ctx,
		"SELECT id, user_id, `key`, COALESCE(value, ''), type FROM preferences WHERE user_id = ?", userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []model.Preference
	for rows.Next() {
		var p model.Preference
		if err := rows.Scan(&p.ID, &p.UserID, &p.Key, &p.Value, &p.Type); err != nil {
			return nil, err
		}
		list = append(list, p)
	}
	return list, rows.Err()
}

// Source preferences

func (db *DB) UpsertSourcePreference(ctx context.Context, userID, sourceID int64, prefs string) error {
	res, err := db.ExecContext(ctx,
		"UPDATE source_preferences SET preferences = ? WHERE user_id = ? AND source_id = ?",
		prefs, userID, sourceID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}
	_, err = db.ExecContext(ctx,
		"INSERT INTO source_preferences (id, user_id, source_id, preferences) VALUES (?, ?, ?, ?)",
		uuid.NewString(), userID, sourceID, prefs)
	if IsUniqueViolation(err) {
		_, err = db.ExecContext(ctx,
			"UPDATE source_preferences SET preferences = ? WHERE user_id = ? AND source_id = ?",
			prefs, userID, sourceID)
	}
	return err
}

func (db *DB) ListSourcePreferences(ctx context.Context, userID int64) ([]model.SourcePreference, error) {
	rows, err := db.QueryContext(ctx,
		"SELECT id, user_id, source_id, COALESCE(preferences, '') FROM source_preferences WHERE user_id = ?", userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []model.SourcePreference
	for rows.Next() {
		var p model.SourcePreference
		if err := rows.Scan(&p.ID, &p.UserID, &p.SourceID, &p.Preferences); err != nil {
			return nil, err
		}
		list = append(list, p)
	}
	return list, rows.Err()
}

// Extension repos, saved searches and feeds are first-write-wins: sync
// only ever inserts rows that are not there yet.

func (db *DB) InsertExtensionRepoIfAbsent(ctx context.Context, r *model.ExtensionRepo) error {
	var exists bool
	err := db.QueryRowContext(ctx,
		"SELECT EXISTS(SELECT 1 FROM extension_repos WHERE user_id = ? AND base_url = ?)",
		r.UserID, r.BaseURL).Scan(&exists)
	if err != nil || exists {
		return err
	}
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	_, err = db.ExecContext(ctx, `
		INSERT INTO extension_repos (id, user_id, base_url, name, short_name, website, signing_key_fingerprint)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.UserID, r.BaseURL, r.Name, r.ShortName, r.Website, r.SigningKeyFingerprint)
	if IsUniqueViolation(err) {
		return nil
	}
	return err
}

func (db *DB) ListExtensionRepos(ctx context.Context, userID int64) ([]model.ExtensionRepo, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, user_id, base_url, name, short_name, website, signing_key_fingerprint
		FROM extension_repos WHERE user_id = ?`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []model.ExtensionRepo
	for rows.Next() {
		var r model.ExtensionRepo
		if err := rows.Scan(&r.ID, &r.UserID, &r.BaseURL, &r.Name, &r.ShortName, &r.Website, &r.SigningKeyFingerprint); err != nil {
			return nil, err
		}
		list = append(list, r)
	}
	return list, rows.Err()
}

func (db *DB) DeleteExtensionRepo(ctx context.Context, userID int64, id string) error {
	return db.deleteUserRow(ctx, "extension_repos", userID, id)
}

func (db *DB) InsertSavedSearchIfAbsent(ctx context.Context, s *model.SavedSearch) error {
	var exists bool
	err := db.QueryRowContext(ctx,
		"SELECT EXISTS(SELECT 1 FROM saved_searches WHERE user_id = ? AND name = ? AND source = ?)",
		s.UserID, s.Name, s.Source).Scan(&exists)
	if err != nil || exists {
		return err
	}
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	_, err = db.ExecContext(ctx,
		"INSERT INTO saved_searches (id, user_id, name, source, query, filter_list) VALUES (?, ?, ?, ?, ?, ?)",
		s.ID, s.UserID, s.Name, s.Source, s.Query, s.FilterList)
	if IsUniqueViolation(err) {
		return nil
	}
	return err
}

func (db *DB) ListSavedSearches(ctx context.Context, userID int64) ([]model.SavedSearch, error) {
	rows, err := db.QueryContext(ctx,
		"SELECT id, user_id, name, source, query, filter_list FROM saved_searches WHERE user_id = ?", userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []model.SavedSearch
	for rows.Next() {
		var s model.SavedSearch
		if err := rows.Scan(&s.ID, &s.UserID, &s.Name, &s.Source, &s.Query, &s.FilterList); err != nil {
			return nil, err
		}
		list = append(list, s)
	}
	return list, rows.Err()
}

func (db *DB) DeleteSavedSearch(ctx context.Context, userID int64, id string) error {
	return db.deleteUserRow(ctx, "saved_searches", userID, id)
}

func (db *DB) InsertFeedIfAbsent(ctx context.Context, f *model.Feed) error {
	var exists bool
	err := db.QueryRowContext(ctx,
		"SELECT EXISTS(SELECT 1 FROM feeds WHERE user_id = ? AND source = ?)",
		f.UserID, f.Source).Scan(&exists)
	if err != nil || exists {
		return err
	}
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	_, err = db.ExecContext(ctx,
		"INSERT INTO feeds (id, user_id, source, saved_search_id, global) VALUES (?, ?, ?, ?, ?)",
		f.ID, f.UserID, f.Source, f.SavedSearchID, f.Global)
	if IsUniqueViolation(err) {
		return nil
	}
	return err
}

func (db *DB) ListFeeds(ctx context.Context, userID int64) ([]model.Feed, error) {
	rows, err := db.QueryContext(ctx,
		"SELECT id, user_id, source, saved_search_id, global FROM feeds WHERE user_id = ?", userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []model.Feed
	for rows.Next() {
		var f model.Feed
		if err := rows.Scan(&f.ID, &f.UserID, &f.Source, &f.SavedSearchID, &f.Global); err != nil {
			return nil, err
		}
		list = append(list, f)
	}
	return list, rows.Err()
}

func (db *DB) DeleteFeed(ctx context.Context, userID int64, id string) error {
	return db.deleteUserRow(ctx, "feeds", userID, id)
}

func (db *DB) deleteUserRow(ctx context.Context, table string, userID int64, id string) error {
	res, err := db.ExecContext(ctx,
		"DELETE FROM "+table+" WHERE id = ? AND user_id = ?", id, userID)
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

// ResetUserData wipes every synced collection for one user in a single
// transaction. API keys and the user row survive.
func (db *DB) ResetUserData(ctx context.Context, userID int64) error {
	return db.WithTx(ctx, func(tx *sql.Tx) error {
		tables := []string{
			"manga", // cascades to chapters, tracking, history, manga_categories
			"categories",
			"extension_repos",
			"saved_searches",
			"feeds",
			"preferences",
			"source_preferences",
			"sync_history",
			"backups",
		}
		for _, table := range tables {
			if _, err := tx.ExecContext(ctx,
				"DELETE FROM "+table+" WHERE user_id = ?", userID); err != nil {
				return err
			}
		}
		return nil
	})
}
