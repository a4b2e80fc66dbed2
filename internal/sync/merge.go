package sync

import (
	"github.com/kiroo/kiroo-sync-server/internal/backup"
	"github.com/kiroo/kiroo-sync-server/internal/model"
)

// Per-field merge rules, shared by both API surfaces:
//
//   - required identity fields and title: overwrite always
//   - optional fields (pointers in the wire type): overwrite when the
//     key is present, keep the stored value when absent; hardcoded
//     defaults apply on first insert only
//   - custom override fields (Nullable in the wire type): present value
//     replaces, explicit null clears, absent key keeps the stored value
//
// merge* functions return the merged row and whether it differs from
// the stored one; an unchanged row is not written, so a pull
// immediately pushed back leaves every version counter untouched.

const defaultUpdateStrategy = "ALWAYS_UPDATE"

func newMangaRow(userID int64, in *backup.Manga, sourceNames map[int64]string, now int64) *model.Manga {
	m := &model.Manga{
		UserID:             userID,
		Source:             in.Source.Int64(),
		URL:                in.URL,
		Title:              in.Title,
		Artist:             in.Artist,
		Author:             in.Author,
		Description:        in.Description,
		Genres:             normalizedGenres(in),
		Status:             intOr(in.Status, 0),
		ThumbnailURL:       in.ThumbnailURL,
		Favorite:           boolOr(in.Favorite, true),
		DateAdded:          int64Or(in.DateAdded, now),
		ViewerFlags:        intOr(in.ViewerFlagsValue(), -1),
		ChapterFlags:       intOr(in.ChapterFlags, 0),
		UpdateStrategy:     strOr(in.UpdateStrategy, defaultUpdateStrategy),
		CustomTitle:        in.CustomTitle.Ptr(),
		CustomArtist:       in.CustomArtist.Ptr(),
		CustomAuthor:       in.CustomAuthor.Ptr(),
		CustomDescription:  in.CustomDescription.Ptr(),
		CustomStatus:       intOrNullable(in.CustomStatus, 0),
		CustomThumbnailURL: in.CustomThumbnailURL.Ptr(),
		LastModifiedAt:     now,
		Version:            1,
	}
	if cg := in.CustomGenreList(); cg.Set && cg.Valid {
		m.CustomGenres = []string(cg.Value)
	}
	if name, ok := sourceNames[m.Source]; ok {
		m.SourceName = &name
	}
	return m
}

func mergeManga(stored *model.Manga, in *backup.Manga, sourceNames map[int64]string) (*model.Manga, bool) {
	m := *stored
	m.Genres = append([]string(nil), stored.Genres...)
	m.CustomGenres = append([]string(nil), stored.CustomGenres...)

	m.Title = in.Title
	if in.Artist != nil {
		m.Artist = in.Artist
	}
	if in.Author != nil {
		m.Author = in.Author
	}
	if in.Description != nil {
		m.Description = in.Description
	}
	if g := normalizedGenresOrNil(in); g != nil {
		m.Genres = g
	}
	if in.Status != nil {
		m.Status = *in.Status
	}
	if in.ThumbnailURL != nil {
		m.ThumbnailURL = in.ThumbnailURL
	}
	if in.Favorite != nil {
		m.Favorite = *in.Favorite
	}
	if v := in.ViewerFlagsValue(); v != nil {
		m.ViewerFlags = *v
	}
	if in.ChapterFlags != nil {
		m.ChapterFlags = *in.ChapterFlags
	}
	if in.UpdateStrategy != nil {
		m.UpdateStrategy = *in.UpdateStrategy
	}
	if name, ok := sourceNames[m.Source]; ok {
		m.SourceName = &name
	}

	applyNullableStr(&m.CustomTitle, in.CustomTitle)
	applyNullableStr(&m.CustomArtist, in.CustomArtist)
	applyNullableStr(&m.CustomAuthor, in.CustomAuthor)
	applyNullableStr(&m.CustomDescription, in.CustomDescription)
	applyNullableStr(&m.CustomThumbnailURL, in.CustomThumbnailURL)
	if cg := in.CustomGenreList(); cg.Set {
		if cg.Valid {
			m.CustomGenres = []string(cg.Value)
		} else {
			m.CustomGenres = nil
		}
	}
	if in.CustomStatus.Set {
		if in.CustomStatus.Valid {
			m.CustomStatus = in.CustomStatus.Value
		} else {
			m.CustomStatus = 0
		}
	}

	return &m, !mangaEqual(stored, &m)
}

func mangaEqual(a, b *model.Manga) bool {
	return a.Title == b.Title &&
		eqStrPtr(a.SourceName, b.SourceName) &&
		eqStrPtr(a.Artist, b.Artist) &&
		eqStrPtr(a.Author, b.Author) &&
		eqStrPtr(a.Description, b.Description) &&
		eqStrings(a.Genres, b.Genres) &&
		a.Status == b.Status &&
		eqStrPtr(a.ThumbnailURL, b.ThumbnailURL) &&
		a.Favorite == b.Favorite &&
		a.ViewerFlags == b.ViewerFlags &&
		a.ChapterFlags == b.ChapterFlags &&
		a.UpdateStrategy == b.UpdateStrategy &&
		eqStrPtr(a.CustomTitle, b.CustomTitle) &&
		eqStrPtr(a.CustomArtist, b.CustomArtist) &&
		eqStrPtr(a.CustomAuthor, b.CustomAuthor) &&
		eqStrPtr(a.CustomDescription, b.CustomDescription) &&
		eqNullableStrings(a.CustomGenres, b.CustomGenres) &&
		a.CustomStatus == b.CustomStatus &&
		eqStrPtr(a.CustomThumbnailURL, b.CustomThumbnailURL)
}

func newChapterRow(mangaID string, in *backup.Chapter, now int64) *model.Chapter {
	return &model.Chapter{
		MangaID:        mangaID,
		URL:            in.URL,
		Name:           strOr(in.Name, ""),
		Scanlator:      in.Scanlator,
		ChapterNumber:  floatOr(in.Number(), 0),
		SourceOrder:    intOr(in.SourceOrder, 0),
		Read:           boolOr(in.Read, false),
		Bookmark:       boolOr(in.Bookmark, false),
		LastPageRead:   int64Or(in.PageRead(), 0),
		PagesLeft:      int64Or(in.PagesLeftValue(), 0),
		DateFetch:      in.DateFetch,
		DateUpload:     in.DateUpload,
		LastModifiedAt: now,
		Version:        1,
	}
}

func mergeChapter(stored *model.Chapter, in *backup.Chapter) (*model.Chapter, bool) {
	c := *stored
	if in.Name != nil {
		c.Name = *in.Name
	}
	if in.Scanlator != nil {
		c.Scanlator = in.Scanlator
	}
	if n := in.Number(); n != nil {
		c.ChapterNumber = *n
	}
	if in.SourceOrder != nil {
		c.SourceOrder = *in.SourceOrder
	}
	if in.Read != nil {
		c.Read = *in.Read
	}
	if in.Bookmark != nil {
		c.Bookmark = *in.Bookmark
	}
	if v := in.PageRead(); v != nil {
		c.LastPageRead = *v
	}
	if v := in.PagesLeftValue(); v != nil {
		c.PagesLeft = *v
	}
	if in.DateFetch != nil {
		c.DateFetch = in.DateFetch
	}
	if in.DateUpload != nil {
		c.DateUpload = in.DateUpload
	}

	changed := !(stored.Name == c.Name &&
		eqStrPtr(stored.Scanlator, c.Scanlator) &&
		stored.ChapterNumber == c.ChapterNumber &&
		stored.SourceOrder == c.SourceOrder &&
		stored.Read == c.Read &&
		stored.Bookmark == c.Bookmark &&
		stored.LastPageRead == c.LastPageRead &&
		stored.PagesLeft == c.PagesLeft &&
		eqI64Ptr(stored.DateFetch, c.DateFetch) &&
		eqI64Ptr(stored.DateUpload, c.DateUpload))
	return &c, changed
}

func newTrackingRow(mangaID string, in *backup.Tracking) *model.Tracking {
	t := &model.Tracking{
		MangaID:             mangaID,
		SyncID:              in.SyncID,
		MediaID:             in.MediaIDValue(),
		Title:               in.Title,
		TrackingURL:         in.TrackingURL,
		LastChapterRead:     floatOr(in.LastChapterRead, 0),
		TotalChapters:       intOr(in.TotalChapters, 0),
		Score:               floatOr(in.Score, 0),
		Status:              intOr(in.Status, 0),
		StartedReadingDate:  in.StartedReadingDate,
		FinishedReadingDate: in.FinishedReadingDate,
		Private:             in.Private.Set && in.Private.Valid && in.Private.Value,
	}
	if in.LibraryID != nil {
		v := in.LibraryID.Int64()
		t.LibraryID = &v
	}
	return t
}

func mergeTracking(stored *model.Tracking, in *backup.Tracking) (*model.Tracking, bool) {
	t := *stored
	if in.MediaID != nil || in.MediaIDAlt != nil {
		t.MediaID = in.MediaIDValue()
	}
	if in.LibraryID != nil {
		v := in.LibraryID.Int64()
		t.LibraryID = &v
	}
	if in.Title != nil {
		t.Title = in.Title
	}
	if in.TrackingURL != nil {
		t.TrackingURL = in.TrackingURL
	}
	if in.LastChapterRead != nil {
		t.LastChapterRead = *in.LastChapterRead
	}
	if in.TotalChapters != nil {
		t.TotalChapters = *in.TotalChapters
	}
	if in.Score != nil {
		t.Score = *in.Score
	}
	if in.Status != nil {
		t.Status = *in.Status
	}
	if in.StartedReadingDate != nil {
		t.StartedReadingDate = in.StartedReadingDate
	}
	if in.FinishedReadingDate != nil {
		t.FinishedReadingDate = in.FinishedReadingDate
	}
	if in.Private.Set {
		t.Private = in.Private.Valid && in.Private.Value
	}

	changed := !(stored.MediaID == t.MediaID &&
		eqI64Ptr(stored.LibraryID, t.LibraryID) &&
		eqStrPtr(stored.Title, t.Title) &&
		eqStrPtr(stored.TrackingURL, t.TrackingURL) &&
		stored.LastChapterRead == t.LastChapterRead &&
		stored.TotalChapters == t.TotalChapters &&
		stored.Score == t.Score &&
		stored.Status == t.Status &&
		eqI64Ptr(stored.StartedReadingDate, t.StartedReadingDate) &&
		eqI64Ptr(stored.FinishedReadingDate, t.FinishedReadingDate) &&
		stored.Private == t.Private)
	return &t, changed
}

// normalizedGenres always yields a list, for inserts.
func normalizedGenres(in *backup.Manga) []string {
	if g := normalizedGenresOrNil(in); g != nil {
		return g
	}
	return []string{}
}

// normalizedGenresOrNil yields nil when the payload carried no genre
// field at all, so updates can keep the stored list.
func normalizedGenresOrNil(in *backup.Manga) []string {
	if in.Genres != nil {
		return in.Genres
	}
	if in.Genre != nil {
		return in.Genre
	}
	return nil
}

func applyNullableStr(dst **string, n backup.Nullable[string]) {
	if !n.Set {
		return
	}
	*dst = n.Ptr()
}

func intOr(p *int, def int) int {
	if p != nil {
		return *p
	}
	return def
}

func intOrNullable(n backup.Nullable[int], def int) int {
	if n.Set && n.Valid {
		return n.Value
	}
	return def
}

func int64Or(p *int64, def int64) int64 {
	if p != nil {
		return *p
	}
	return def
}

func floatOr(p *float64, def float64) float64 {
	if p != nil {
		return *p
	}
	return def
}

func boolOr(p *bool, def bool) bool {
	if p != nil {
		return *p
	}
	return def
}

func strOr(p *string, def string) string {
	if p != nil {
		return *p
	}
	return def
}

func eqStrPtr(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func eqI64Ptr(a, b *int64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func eqStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// eqNullableStrings treats nil as distinct from empty: nil means "no
// override".
func eqNullableStrings(a, b []string) bool {
	if (a == nil) != (b == nil) {
		return false
	}
	return eqStrings(a, b)
}
