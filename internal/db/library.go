package db

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/kiroo/kiroo-sync-server/internal/model"
)

// Genre lists are stored as JSON text columns so the same schema works
// on both backing databases.

func encodeGenres(genres []string) string {
	if genres == nil {
		genres = []string{}
	}
	b, _ := json.Marshal(genres)
	return string(b)
}

func decodeGenres(s string) []string {
	if s == "" {
		return []string{}
	}
	var genres []string
	if err := json.Unmarshal([]byte(s), &genres); err != nil {
		return []string{}
	}
	return genres
}

func encodeNullableGenres(genres []string) *string {
	if genres == nil {
		return nil
	}
	s := encodeGenres(genres)
	return &s
}

const mangaColumns = `id, user_id, source, source_name, url, title, artist, author, description,
	genres, status, thumbnail_url, favorite, date_added, viewer_flags, chapter_flags,
	update_strategy, custom_title, custom_artist, custom_author, custom_description,
	custom_genres, custom_status, custom_thumbnail_url, last_modified_at, version`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanManga(row rowScanner) (*model.Manga, error) {
	var m model.Manga
	var genres string
	var customGenres *string
	err := row.Scan(
		&m.ID, &m.UserID, &m.Source, &m.SourceName, &m.URL, &m.Title, &m.Artist, &m.Author,
		&m.Description, &genres, &m.Status, &m.ThumbnailURL, &m.Favorite, &m.DateAdded,
		&m.ViewerFlags, &m.ChapterFlags, &m.UpdateStrategy, &m.CustomTitle, &m.CustomArtist,
		&m.CustomAuthor, &m.CustomDescription, &customGenres, &m.CustomStatus,
		&m.CustomThumbnailURL, &m.LastModifiedAt, &m.Version,
	)
	if err != nil {
		return nil, err
	}
	m.Genres = decodeGenres(genres)
	if customGenres != nil {
		m.CustomGenres = decodeGenres(*customGenres)
	}
	return &m, nil
}

// FindMangaByNaturalKey looks a manga up by the client-visible identity
// (user, source, url). Returns ErrNotFound when absent.
func (db *DB) FindMangaByNaturalKey(ctx context.Context, userID, source int64, url string) (*model.Manga, error) {
	row := db.QueryRowContext(ctx,
		"SELECT "+mangaColumns+" FROM manga WHERE user_id = ? AND source = ? AND url = ?",
		userID, source, url)
	m, err := scanManga(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return m, err
}

func (db *DB) GetManga(ctx context.Context, userID int64, id string) (*model.Manga, error) {
	row := db.QueryRowContext(ctx,
		"SELECT "+mangaColumns+" FROM manga WHERE id = ? AND user_id = ?", id, userID)
	m, err := scanManga(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return m, err
}

func (db *DB) InsertManga(ctx context.Context, m *model.Manga) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	_, err := db.ExecContext(ctx, `
		INSERT INTO manga (`+mangaColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.UserID, m.Source, m.SourceName, m.URL, m.Title, m.Artist, m.Author,
		m.Description, encodeGenres(m.Genres), m.Status, m.ThumbnailURL, m.Favorite,
		m.DateAdded, m.ViewerFlags, m.ChapterFlags, m.UpdateStrategy, m.CustomTitle,
		m.CustomArtist, m.CustomAuthor, m.CustomDescription, encodeNullableGenres(m.CustomGenres),
		m.CustomStatus, m.CustomThumbnailURL, m.LastModifiedAt, m.Version)
	return err
}

func (db *DB) UpdateManga(ctx context.Context, m *model.Manga) error {
	_, err := db.ExecContext(ctx, `
		UPDATE manga SET
			source_name = ?, title = ?, artist = ?, author = ?, description = ?, genres = ?,
			status = ?, thumbnail_url = ?, favorite = ?, viewer_flags = ?, chapter_flags = ?,
			update_strategy = ?, custom_title = ?, custom_artist = ?, custom_author = ?,
			custom_description = ?, custom_genres = ?, custom_status = ?, custom_thumbnail_url = ?,
			last_modified_at = ?, version = ?
		WHERE id = ?`,
		m.SourceName, m.Title, m.Artist, m.Author, m.Description, encodeGenres(m.Genres),
		m.Status, m.ThumbnailURL, m.Favorite, m.ViewerFlags, m.ChapterFlags,
		m.UpdateStrategy, m.CustomTitle, m.CustomArtist, m.CustomAuthor,
		m.CustomDescription, encodeNullableGenres(m.CustomGenres), m.CustomStatus,
		m.CustomThumbnailURL, m.LastModifiedAt, m.Version, m.ID)
	return err
}

func (db *DB) ListManga(ctx context.Context, userID int64) ([]model.Manga, error) {
	rows, err := db.QueryContext(ctx,
		"SELECT "+mangaColumns+" FROM manga WHERE user_id = ? ORDER BY last_modified_at DESC", userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []model.Manga
	for rows.Next() {
		m, err := scanManga(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *m)
	}
	return list, rows.Err()
}

func (db *DB) CountManga(ctx context.Context, userID int64) (int, error) {
	var n int
	err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM manga WHERE user_id = ?", userID).Scan(&n)
	return n, err
}

func (db *DB) DeleteManga(ctx context.Context, userID int64, id string) error {
	res, err := db.ExecContext(ctx, "DELETE FROM manga WHERE id = ? AND user_id = ?", id, userID)
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

// Chapters

const chapterColumns = "id, manga_id, url, name, scanlator, chapter_number, source_order, `read`, bookmark, last_page_read, pages_left, date_fetch, date_upload, last_modified_at, version"

func scanChapter(row rowScanner) (*model.Chapter, error) {
	var c model.Chapter
	err := row.Scan(&c.ID, &c.MangaID, &c.URL, &c.Name, &c.Scanlator, &c.ChapterNumber,
		&c.SourceOrder, &c.Read, &c.Bookmark, &c.LastPageRead, &c.PagesLeft,
		&c.DateFetch, &c.DateUpload, &c.LastModifiedAt, &c.Version)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (db *DB) FindChapterByURL(ctx context.Context, mangaID, url string) (*model.Chapter, error) {
	row := db.QueryRowContext(ctx,
		"SELECT "+chapterColumns+" FROM chapters WHERE manga_id = ? AND url = ?", mangaID, url)
	c, err := scanChapter(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return c, err
}

func (db *DB) InsertChapter(ctx context.Context, c *model.Chapter) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	_, err := db.ExecContext(ctx, `
		INSERT INTO chapters (`+chapterColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.MangaID, c.URL, c.Name, c.Scanlator, c.ChapterNumber, c.SourceOrder,
		c.Read, c.Bookmark, c.LastPageRead, c.PagesLeft, c.DateFetch, c.DateUpload,
		c.LastModifiedAt, c.Version)
	return err
}

func (db *DB) UpdateChapter(ctx context.Context, c *model.Chapter) error {
	_, err := db.ExecContext(ctx, `
		UPDATE chapters SET
			name = ?, scanlator = ?, chapter_number = ?, source_order = ?, `+"`read`"+` = ?,
			bookmark = ?, last_page_read = ?, pages_left = ?, date_fetch = ?, date_upload = ?,
			last_modified_at = ?, version = ?
		WHERE id = ?`,
		c.Name, c.Scanlator, c.ChapterNumber, c.SourceOrder, c.Read, c.Bookmark,
		c.LastPageRead, c.PagesLeft, c.DateFetch, c.DateUpload, c.LastModifiedAt,
		c.Version, c.ID)
	return err
}

func (db *DB) ListChapters(ctx context.Context, mangaID string) ([]model.Chapter, error) {
	rows, err := db.QueryContext(ctx,
		"SELECT "+chapterColumns+" FROM chapters WHERE manga_id = ? ORDER BY source_order, chapter_number", mangaID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []model.Chapter
	for rows.Next() {
		c, err := scanChapter(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *c)
	}
	return list, rows.Err()
}

// ChapterCounts returns total and read chapter counts for one manga.
func (db *DB) ChapterCounts(ctx context.Context, mangaID string) (total, read int, err error) {
	err = db.QueryRowContext(ctx,
		"SELECT COUNT(*), COALESCE(SUM(CASE WHEN `read` THEN 1 ELSE 0 END), 0) FROM chapters WHERE manga_id = ?",
		mangaID).Scan(&total, &read)
	return total, read, err
}

// Categories

func scanCategory(row rowScanner) (*model.Category, error) {
	var c model.Category
	if err := row.Scan(&c.ID, &c.UserID, &c.Name, &c.Order, &c.Flags, &c.MangaSort); err != nil {
		return nil, err
	}
	return &c, nil
}

const categoryColumns = "id, user_id, name, `order`, flags, manga_sort"

func (db *DB) FindCategoryByName(ctx context.Context, userID int64, name string) (*model.Category, error) {
	row := db.QueryRowContext(ctx,
		"SELECT "+categoryColumns+" FROM categories WHERE user_id = ? AND name = ?", userID, name)
	c, err := scanCategory(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return c, err
}

func (db *DB) InsertCategory(ctx context.Context, c *model.Category) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	_, err := db.ExecContext(ctx, `
		INSERT INTO categories (`+categoryColumns+`) VALUES (?, ?, ?, ?, ?, ?)`,
		c.ID, c.UserID, c.Name, c.Order, c.Flags, c.MangaSort)
	return err
}

func (db *DB) UpdateCategory(ctx context.Context, c *model.Category) error {
	_, err := db.ExecContext(ctx,
		"UPDATE categories SET `order` = ?, flags = ?, manga_sort = ? WHERE id = ?",
		c.Order, c.Flags, c.MangaSort, c.ID)
	return err
}

func (db *DB) ListCategories(ctx context.Context, userID int64) ([]model.Category, error) {
	rows, err := db.QueryContext(ctx,
		"SELECT "+categoryColumns+" FROM categories WHERE user_id = ? ORDER BY `order`", userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []model.Category
	for rows.Next() {
		c, err := scanCategory(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *c)
	}
	return list, rows.Err()
}

// ReplaceMangaCategories swaps the whole membership set for one manga.
// The incoming list is authoritative, so delete-then-insert beats a diff.
func (db *DB) ReplaceMangaCategories(ctx context.Context, mangaID string, categoryIDs []string) error {
	if _, err := db.ExecContext(ctx,
		"DELETE FROM manga_categories WHERE manga_id = ?", mangaID); err != nil {
		return err
	}
	for _, catID := range categoryIDs {
		if _, err := db.ExecContext(ctx,
			"INSERT INTO manga_categories (manga_id, category_id) VALUES (?, ?)",
			mangaID, catID); err != nil {
			if IsUniqueViolation(err) {
				continue
			}
			return err
		}
	}
	return nil
}

func (db *DB) ListMangaCategoryIDs(ctx context.Context, mangaID string) ([]string, error) {
	rows, err := db.QueryContext(ctx,
		"SELECT category_id FROM manga_categories WHERE manga_id = ?", mangaID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Tracking

const trackingColumns = `id, manga_id, sync_id, media_id, library_id, title, tracking_url,
	last_chapter_read, total_chapters, score, status, started_reading_date,
	finished_reading_date, private`

func scanTracking(row rowScanner) (*model.Tracking, error) {
	var t model.Tracking
	err := row.Scan(&t.ID, &t.MangaID, &t.SyncID, &t.MediaID, &t.LibraryID, &t.Title,
		&t.TrackingURL, &t.LastChapterRead, &t.TotalChapters, &t.Score, &t.Status,
		&t.StartedReadingDate, &t.FinishedReadingDate, &t.Private)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (db *DB) FindTracking(ctx context.Context, mangaID string, syncID int) (*model.Tracking, error) {
	row := db.QueryRowContext(ctx,
		"SELECT "+trackingColumns+" FROM tracking WHERE manga_id = ? AND sync_id = ?", mangaID, syncID)
	t, err := scanTracking(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return t, err
}

func (db *DB) InsertTracking(ctx context.Context, t *model.Tracking) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	_, err := db.ExecContext(ctx, `
		INSERT INTO tracking (`+trackingColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.MangaID, t.SyncID, t.MediaID, t.LibraryID, t.Title, t.TrackingURL,
		t.LastChapterRead, t.TotalChapters, t.Score, t.Status, t.StartedReadingDate,
		t.FinishedReadingDate, t.Private)
	return err
}

func (db *DB) UpdateTracking(ctx context.Context, t *model.Tracking) error {
	_, err := db.ExecContext(ctx, `
		UPDATE tracking SET
			media_id = ?, library_id = ?, title = ?, tracking_url = ?, last_chapter_read = ?,
			total_chapters = ?, score = ?, status = ?, started_reading_date = ?,
			finished_reading_date = ?, private = ?
		WHERE id = ?`,
		t.MediaID, t.LibraryID, t.Title, t.TrackingURL, t.LastChapterRead, t.TotalChapters,
		t.Score, t.Status, t.StartedReadingDate, t.FinishedReadingDate, t.Private, t.ID)
	return err
}

func (db *DB) ListTracking(ctx context.Context, mangaID string) ([]model.Tracking, error) {
	rows, err := db.QueryContext(ctx,
		"SELECT "+trackingColumns+" FROM tracking WHERE manga_id = ?", mangaID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []model.Tracking
	for rows.Next() {
		t, err := scanTracking(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *t)
	}
	return list, rows.Err()
}

// History

func (db *DB) FindHistory(ctx context.Context, mangaID, chapterURL string) (*model.History, error) {
	var h model.History
	row := db.QueryRowContext(ctx,
		"SELECT id, manga_id, chapter_url, last_read, read_duration FROM history WHERE manga_id = ? AND chapter_url = ?",
		mangaID, chapterURL)
	err := row.Scan(&h.ID, &h.MangaID, &h.ChapterURL, &h.LastRead, &h.ReadDuration)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &h, nil
}

func (db *DB) InsertHistory(ctx context.Context, h *model.History) error {
	if h.ID == "" {
		h.ID = uuid.NewString()
	}
	_, err := db.ExecContext(ctx,
		"INSERT INTO history (id, manga_id, chapter_url, last_read, read_duration) VALUES (?, ?, ?, ?, ?)",
		h.ID, h.MangaID, h.ChapterURL, h.LastRead, h.ReadDuration)
	return err
}

func (db *DB) UpdateHistory(ctx context.Context, h *model.History) error {
	_, err := db.ExecContext(ctx,
		"UPDATE history SET last_read = ?, read_duration = ? WHERE id = ?",
		h.LastRead, h.ReadDuration, h.ID)
	return err
}

func (db *DB) ListHistory(ctx context.Context, mangaID string) ([]model.History, error) {
	rows, err := db.QueryContext(ctx,
		"SELECT id, manga_id, chapter_url, last_read, read_duration FROM history WHERE manga_id = ? ORDER BY last_read DESC",
		mangaID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []model.History
	for rows.Next() {
		var h model.History
		if err := rows.Scan(&h.ID, &h.MangaID, &h.ChapterURL, &h.LastRead, &h.ReadDuration); err != nil {
			return nil, err
		}
		list = append(list, h)
	}
	return list, rows.Err()
}
