package sync

import (
	"github.com/kiroo/kiroo-sync-server/internal/backup"
	"github.com/kiroo/kiroo-sync-server/internal/model"
)

// export* builds the wire shape of a stored row. Every field the merge
// reads is emitted, custom overrides as explicit values or nulls, so
// pushing an exported document back is a no-op.

func exportMangaRow(m *model.Manga) *backup.Manga {
	out := &backup.Manga{
		Source:             backup.FlexInt64(m.Source),
		URL:                m.URL,
		Title:              m.Title,
		Artist:             m.Artist,
		Author:             m.Author,
		Description:        m.Description,
		Genres:             backup.StringList(m.Genres),
		Status:             ptr(m.Status),
		ThumbnailURL:       m.ThumbnailURL,
		Favorite:           ptr(m.Favorite),
		DateAdded:          ptr(m.DateAdded),
		ViewerFlags:        ptr(m.ViewerFlags),
		ChapterFlags:       ptr(m.ChapterFlags),
		UpdateStrategy:     ptr(m.UpdateStrategy),
		CustomTitle:        nullableStr(m.CustomTitle),
		CustomArtist:       nullableStr(m.CustomArtist),
		CustomAuthor:       nullableStr(m.CustomAuthor),
		CustomDescription:  nullableStr(m.CustomDescription),
		CustomStatus:       backup.NullableOf(m.CustomStatus),
		CustomThumbnailURL: nullableStr(m.CustomThumbnailURL),
	}
	if m.CustomGenres != nil {
		out.CustomGenres = backup.NullableOf(backup.StringList(m.CustomGenres))
	} else {
		out.CustomGenres = backup.Nullable[backup.StringList]{Set: true}
	}
	return out
}

func exportChapter(c *model.Chapter) backup.Chapter {
	lastPageRead := backup.FlexInt64(c.LastPageRead)
	pagesLeft := backup.FlexInt64(c.PagesLeft)
	return backup.Chapter{
		URL:           c.URL,
		Name:          ptr(c.Name),
		Scanlator:     c.Scanlator,
		ChapterNumber: ptr(c.ChapterNumber),
		SourceOrder:   ptr(c.SourceOrder),
		Read:          ptr(c.Read),
		Bookmark:      ptr(c.Bookmark),
		LastPageRead:  &lastPageRead,
		PagesLeft:     &pagesLeft,
		DateFetch:     c.DateFetch,
		DateUpload:    c.DateUpload,
	}
}

func exportTracking(t *model.Tracking) backup.Tracking {
	mediaID := backup.FlexInt64(t.MediaID)
	out := backup.Tracking{
		SyncID:              t.SyncID,
		MediaID:             &mediaID,
		Title:               t.Title,
		TrackingURL:         t.TrackingURL,
		LastChapterRead:     ptr(t.LastChapterRead),
		TotalChapters:       ptr(t.TotalChapters),
		Score:               ptr(t.Score),
		Status:              ptr(t.Status),
		StartedReadingDate:  t.StartedReadingDate,
		FinishedReadingDate: t.FinishedReadingDate,
		Private:             backup.NullableOf(t.Private),
	}
	if t.LibraryID != nil {
		libraryID := backup.FlexInt64(*t.LibraryID)
		out.LibraryID = &libraryID
	}
	return out
}

func exportCategory(c *model.Category) backup.Category {
	return backup.Category{
		Name:      c.Name,
		Order:     ptr(c.Order),
		Flags:     ptr(c.Flags),
		MangaSort: c.MangaSort,
	}
}

func ptr[T any](v T) *T {
	return &v
}

func nullableStr(p *string) backup.Nullable[string] {
	if p == nil {
		return backup.Nullable[string]{Set: true}
	}
	return backup.NullableOf(*p)
}
