// Package sync reconciles uploaded backup documents against the stored
// library. Records are matched by natural keys, never by client row
// ids, so the same series pushed from two devices converges on one row.
package sync

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/kiroo/kiroo-sync-server/internal/backup"
	"github.com/kiroo/kiroo-sync-server/internal/db"
	"github.com/kiroo/kiroo-sync-server/internal/model"
)

type Engine struct {
	DB *db.DB
}

// Report summarizes one push. A manga counts as synced when its row and
// all its children were processed, whether or not anything changed.
type Report struct {
	MangaSynced    int      `json:"mangaSynced"`
	ChaptersSynced int      `json:"chaptersSynced"`
	FailedManga    []string `json:"failedManga,omitempty"`
}

func (r *Report) Status() string {
	if len(r.FailedManga) > 0 {
		return model.SyncStatusPartial
	}
	return model.SyncStatusSuccess
}

func nowMillis() int64 {
	return time.Now().UnixMilli()
}

// Push reconciles one uploaded document. Manga entries fail
// independently: a bad entry is recorded in the report and the rest of
// the payload still lands. Errors outside the per-manga loop abort the
// whole push and bubble up so the caller can record a failed sync.
func (e *Engine) Push(ctx context.Context, userID int64, device string, doc *backup.Document) (*Report, error) {
	report := &Report{}

	categoryByOrder, err := e.syncCategories(ctx, userID, doc.Categories)
	if err != nil {
		return nil, fmt.Errorf("sync categories: %w", err)
	}

	sourceNames := doc.SourceNames()
	for i := range doc.Manga {
		in := &doc.Manga[i]
		chapters, err := e.syncManga(ctx, userID, in, categoryByOrder, sourceNames)
		if err != nil {
			log.Printf("sync: user %d manga %q: %v", userID, in.Title, err)
			report.FailedManga = append(report.FailedManga, in.Title)
			continue
		}
		report.MangaSynced++
		report.ChaptersSynced += chapters
	}

	if err := e.syncPreferences(ctx, userID, doc.Preferences); err != nil {
		return nil, fmt.Errorf("sync preferences: %w", err)
	}
	if err := e.syncSourcePreferences(ctx, userID, doc.SourcePreferences); err != nil {
		return nil, fmt.Errorf("sync source preferences: %w", err)
	}
	if err := e.syncExtensionRepos(ctx, userID, doc.ExtensionRepos); err != nil {
		return nil, fmt.Errorf("sync extension repos: %w", err)
	}
	if err := e.syncSavedSearchesAndFeeds(ctx, userID, doc.SavedSearches, doc.Feeds); err != nil {
		return nil, fmt.Errorf("sync saved searches: %w", err)
	}

	rec := &model.SyncRecord{
		UserID:         userID,
		DeviceName:     deviceName(doc.DeviceName, device),
		SyncType:       model.SyncTypePush,
		MangaSynced:    report.MangaSynced,
		ChaptersSynced: report.ChaptersSynced,
		Status:         report.Status(),
		CreatedAt:      nowMillis(),
	}
	if len(report.FailedManga) > 0 {
		msg := "failed: " + strings.Join(report.FailedManga, ", ")
		rec.ErrorMessage = &msg
	}
	if err := e.DB.InsertSyncRecord(ctx, rec); err != nil {
		return nil, fmt.Errorf("record sync: %w", err)
	}
	return report, nil
}

// Pull builds a backup document from the stored library and records the
// sync. Custom override fields are emitted explicitly, null included,
// so a pulled document pushed back reproduces the exact stored state.
func (e *Engine) Pull(ctx context.Context, userID int64, device string) (*backup.Document, error) {
	doc, mangaCount, chapterCount, err := e.Snapshot(ctx, userID)
	if err != nil {
		return nil, err
	}

	rec := &model.SyncRecord{
		UserID:         userID,
		DeviceName:     deviceName("", device),
		SyncType:       model.SyncTypePull,
		MangaSynced:    mangaCount,
		ChaptersSynced: chapterCount,
		Status:         model.SyncStatusSuccess,
		CreatedAt:      nowMillis(),
	}
	if err := e.DB.InsertSyncRecord(ctx, rec); err != nil {
		return nil, fmt.Errorf("record sync: %w", err)
	}
	return doc, nil
}

// Snapshot serializes the user's whole library into document form.
// Backup creation uses it too, so snapshots and pulls never drift.
func (e *Engine) Snapshot(ctx context.Context, userID int64) (*backup.Document, int, int, error) {
	mangaList, err := e.DB.ListManga(ctx, userID)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("list manga: %w", err)
	}
	categories, err := e.DB.ListCategories(ctx, userID)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("list categories: %w", err)
	}

	orderByID := make(map[string]int, len(categories))
	doc := &backup.Document{
		Manga:      make([]backup.Manga, 0, len(mangaList)),
		Categories: make([]backup.Category, 0, len(categories)),
	}
	for _, c := range categories {
		orderByID[c.ID] = c.Order
		doc.Categories = append(doc.Categories, exportCategory(&c))
	}

	sources := make(map[int64]string)
	chapterCount := 0
	for i := range mangaList {
		m := &mangaList[i]
		out, n, err := e.exportManga(ctx, m, orderByID)
		if err != nil {
			return nil, 0, 0, fmt.Errorf("export manga %s: %w", m.ID, err)
		}
		doc.Manga = append(doc.Manga, *out)
		chapterCount += n
		if m.SourceName != nil && *m.SourceName != "" {
			sources[m.Source] = *m.SourceName
		}
	}
	for id, name := range sources {
		doc.Sources = append(doc.Sources, backup.Source{SourceID: backup.FlexInt64(id), Name: name})
	}

	prefs, err := e.DB.ListPreferences(ctx, userID)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("list preferences: %w", err)
	}
	for _, p := range prefs {
		doc.Preferences = append(doc.Preferences, backup.Preference{
			Key:   p.Key,
			Value: json.RawMessage(p.Value),
		})
	}
	sourcePrefs, err := e.DB.ListSourcePreferences(ctx, userID)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("list source preferences: %w", err)
	}
	for _, p := range sourcePrefs {
		key := backup.FlexInt64(p.SourceID)
		doc.SourcePreferences = append(doc.SourcePreferences, backup.SourcePreference{
			SourceKey: &key,
			Prefs:     json.RawMessage(p.Preferences),
		})
	}
	repos, err := e.DB.ListExtensionRepos(ctx, userID)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("list extension repos: %w", err)
	}
	for _, r := range repos {
		doc.ExtensionRepos = append(doc.ExtensionRepos, backup.ExtensionRepo{
			BaseURL:               r.BaseURL,
			Name:                  r.Name,
			ShortName:             r.ShortName,
			Website:               r.Website,
			SigningKeyFingerprint: r.SigningKeyFingerprint,
		})
	}
	searches, err := e.DB.ListSavedSearches(ctx, userID)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("list saved searches: %w", err)
	}
	for _, s := range searches {
		doc.SavedSearches = append(doc.SavedSearches, backup.SavedSearch{
			Name:       s.Name,
			Source:     backup.FlexInt64(s.Source),
			Query:      s.Query,
			FilterList: s.FilterList,
		})
	}
	feeds, err := e.DB.ListFeeds(ctx, userID)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("list feeds: %w", err)
	}
	for _, f := range feeds {
		g := f.Global
		doc.Feeds = append(doc.Feeds, backup.Feed{
			Source:      backup.FlexInt64(f.Source),
			SavedSearch: f.SavedSearchID,
			Global:      &g,
		})
	}

	return doc, len(doc.Manga), chapterCount, nil
}

// syncCategories upserts the payload's categories and returns category
// ids keyed by order index. The map is pre-seeded from storage so a
// manga can reference a category created on an earlier push even when
// the current payload omits the category list.
func (e *Engine) syncCategories(ctx context.Context, userID int64, cats []backup.Category) (map[int64]string, error) {
	existing, err := e.DB.ListCategories(ctx, userID)
	if err != nil {
		return nil, err
	}
	byOrder := make(map[int64]string, len(existing)+len(cats))
	for _, c := range existing {
		byOrder[int64(c.Order)] = c.ID
	}

	for i := range cats {
		in := &cats[i]
		if in.Name == "" {
			continue
		}
		stored, err := e.DB.FindCategoryByName(ctx, userID, in.Name)
		if err != nil && err != db.ErrNotFound {
			return nil, err
		}
		if err == db.ErrNotFound {
			row := &model.Category{
				UserID:    userID,
				Name:      in.Name,
				Order:     intOr(in.Order, 0),
				Flags:     intOr(in.Flags, 0),
				MangaSort: in.MangaSort,
			}
			insErr := e.DB.InsertCategory(ctx, row)
			if insErr == nil {
				byOrder[int64(row.Order)] = row.ID
				continue
			}
			if !db.IsUniqueViolation(insErr) {
				return nil, insErr
			}
			stored, err = e.DB.FindCategoryByName(ctx, userID, in.Name)
			if err != nil {
				return nil, insErr
			}
		}

		merged := *stored
		if in.Order != nil {
			merged.Order = *in.Order
		}
		if in.Flags != nil {
			merged.Flags = *in.Flags
		}
		if in.MangaSort != nil {
			merged.MangaSort = in.MangaSort
		}
		if merged.Order != stored.Order || merged.Flags != stored.Flags ||
			!eqStrPtr(merged.MangaSort, stored.MangaSort) {
			if err := e.DB.UpdateCategory(ctx, &merged); err != nil {
				return nil, err
			}
		}
		byOrder[int64(merged.Order)] = stored.ID
	}
	return byOrder, nil
}

func (e *Engine) syncManga(ctx context.Context, userID int64, in *backup.Manga, categoryByOrder map[int64]string, sourceNames map[int64]string) (int, error) {
	if in.URL == "" || in.Title == "" {
		return 0, fmt.Errorf("missing url or title")
	}

	stored, err := e.upsertManga(ctx, userID, in, sourceNames)
	if err != nil {
		return 0, err
	}

	if in.Categories != nil {
		ids := make([]string, 0, len(in.Categories))
		for _, order := range in.Categories {
			if id, ok := categoryByOrder[order.Int64()]; ok {
				ids = append(ids, id)
			}
		}
		if err := e.DB.ReplaceMangaCategories(ctx, stored.ID, ids); err != nil {
			return 0, fmt.Errorf("categories: %w", err)
		}
	}

	chapters := 0
	for i := range in.Chapters {
		c := &in.Chapters[i]
		if c.URL == "" {
			continue
		}
		if err := e.syncChapter(ctx, stored.ID, c); err != nil {
			return 0, fmt.Errorf("chapter %s: %w", c.URL, err)
		}
		chapters++
	}
	for i := range in.Tracking {
		if err := e.syncTracking(ctx, stored.ID, &in.Tracking[i]); err != nil {
			return 0, fmt.Errorf("tracking %d: %w", in.Tracking[i].SyncID, err)
		}
	}
	for i := range in.History {
		if err := e.syncHistory(ctx, stored.ID, &in.History[i]); err != nil {
			return 0, fmt.Errorf("history: %w", err)
		}
	}
	return chapters, nil
}

func (e *Engine) upsertManga(ctx context.Context, userID int64, in *backup.Manga, sourceNames map[int64]string) (*model.Manga, error) {
	source := in.Source.Int64()
	stored, err := e.DB.FindMangaByNaturalKey(ctx, userID, source, in.URL)
	if err != nil && err != db.ErrNotFound {
		return nil, err
	}
	if err == db.ErrNotFound {
		row := newMangaRow(userID, in, sourceNames, nowMillis())
		insErr := e.DB.InsertManga(ctx, row)
		if insErr == nil {
			return row, nil
		}
		if !db.IsUniqueViolation(insErr) {
			return nil, insErr
		}
		// Lost an insert race against another device. The unique key on
		// (user_id, source, url) guarantees the winner's row exists now,
		// so merge into it instead.
		stored, err = e.DB.FindMangaByNaturalKey(ctx, userID, source, in.URL)
		if err != nil {
			return nil, insErr
		}
	}

	merged, changed := mergeManga(stored, in, sourceNames)
	if !changed {
		return stored, nil
	}
	merged.LastModifiedAt = nowMillis()
	merged.Version = stored.Version + 1
	if err := e.DB.UpdateManga(ctx, merged); err != nil {
		return nil, err
	}
	return merged, nil
}

func (e *Engine) syncChapter(ctx context.Context, mangaID string, in *backup.Chapter) error {
	stored, err := e.DB.FindChapterByURL(ctx, mangaID, in.URL)
	if err != nil && err != db.ErrNotFound {
		return err
	}
	if err == db.ErrNotFound {
		row := newChapterRow(mangaID, in, nowMillis())
		insErr := e.DB.InsertChapter(ctx, row)
		if insErr == nil {
			return nil
		}
		if !db.IsUniqueViolation(insErr) {
			return insErr
		}
		stored, err = e.DB.FindChapterByURL(ctx, mangaID, in.URL)
		if err != nil {
			return insErr
		}
	}

	merged, changed := mergeChapter(stored, in)
	if !changed {
		return nil
	}
	merged.LastModifiedAt = nowMillis()
	merged.Version = stored.Version + 1
	return e.DB.UpdateChapter(ctx, merged)
}

func (e *Engine) syncTracking(ctx context.Context, mangaID string, in *backup.Tracking) error {
	stored, err := e.DB.FindTracking(ctx, mangaID, in.SyncID)
	if err != nil && err != db.ErrNotFound {
		return err
	}
	if err == db.ErrNotFound {
		row := newTrackingRow(mangaID, in)
		insErr := e.DB.InsertTracking(ctx, row)
		if insErr == nil {
			return nil
		}
		if !db.IsUniqueViolation(insErr) {
			return insErr
		}
		stored, err = e.DB.FindTracking(ctx, mangaID, in.SyncID)
		if err != nil {
			return insErr
		}
	}

	merged, changed := mergeTracking(stored, in)
	if !changed {
		return nil
	}
	return e.DB.UpdateTracking(ctx, merged)
}

func (e *Engine) syncHistory(ctx context.Context, mangaID string, in *backup.History) error {
	url := in.ResolveURL()
	if url == "" {
		return nil
	}
	stored, err := e.DB.FindHistory(ctx, mangaID, url)
	if err != nil && err != db.ErrNotFound {
		return err
	}
	if err == db.ErrNotFound {
		row := &model.History{
			MangaID:      mangaID,
			ChapterURL:   url,
			LastRead:     in.LastRead,
			ReadDuration: int64Or(in.ReadDuration, 0),
		}
		insErr := e.DB.InsertHistory(ctx, row)
		if insErr == nil {
			return nil
		}
		if !db.IsUniqueViolation(insErr) {
			return insErr
		}
		stored, err = e.DB.FindHistory(ctx, mangaID, url)
		if err != nil {
			return insErr
		}
	}

	merged := *stored
	merged.LastRead = in.LastRead
	if in.ReadDuration != nil {
		merged.ReadDuration = *in.ReadDuration
	}
	if merged.LastRead == stored.LastRead && merged.ReadDuration == stored.ReadDuration {
		return nil
	}
	return e.DB.UpdateHistory(ctx, &merged)
}

func (e *Engine) syncPreferences(ctx context.Context, userID int64, prefs []backup.Preference) error {
	for _, p := range prefs {
		if p.Key == "" {
			continue
		}
		value := "null"
		if len(p.Value) > 0 {
			value = string(p.Value)
		}
		if err := e.DB.UpsertPreference(ctx, userID, p.Key, value, preferenceType(p.Value)); err != nil {
			return err
		}
	}
	return nil
}

// preferenceType reads the "type" discriminator clients embed in the
// preference value object.
func preferenceType(raw json.RawMessage) string {
	var v struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(raw, &v); err == nil && v.Type != "" {
		return v.Type
	}
	return "string"
}

func (e *Engine) syncSourcePreferences(ctx context.Context, userID int64, prefs []backup.SourcePreference) error {
	for i := range prefs {
		p := &prefs[i]
		sourceID := p.SourceID()
		if sourceID == nil {
			continue
		}
		value := "{}"
		if len(p.Prefs) > 0 {
			value = string(p.Prefs)
		}
		if err := e.DB.UpsertSourcePreference(ctx, userID, *sourceID, value); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) syncExtensionRepos(ctx context.Context, userID int64, repos []backup.ExtensionRepo) error {
	for i := range repos {
		in := &repos[i]
		if in.BaseURL == "" {
			continue
		}
		row := &model.ExtensionRepo{
			UserID:                userID,
			BaseURL:               in.BaseURL,
			Name:                  in.Name,
			ShortName:             in.ShortName,
			Website:               in.Website,
			SigningKeyFingerprint: in.SigningKeyFingerprint,
		}
		if err := e.DB.InsertExtensionRepoIfAbsent(ctx, row); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) syncSavedSearchesAndFeeds(ctx context.Context, userID int64, searches []backup.SavedSearch, feeds []backup.Feed) error {
	for i := range searches {
		in := &searches[i]
		if in.Name == "" {
			continue
		}
		row := &model.SavedSearch{
			UserID:     userID,
			Name:       in.Name,
			Source:     in.Source.Int64(),
			Query:      in.Query,
			FilterList: in.FilterList,
		}
		if err := e.DB.InsertSavedSearchIfAbsent(ctx, row); err != nil {
			return err
		}
	}
	for i := range feeds {
		in := &feeds[i]
		row := &model.Feed{
			UserID:        userID,
			Source:        in.Source.Int64(),
			SavedSearchID: in.SavedSearch,
			Global:        boolOr(in.Global, false),
		}
		if err := e.DB.InsertFeedIfAbsent(ctx, row); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) exportManga(ctx context.Context, m *model.Manga, orderByID map[string]int) (*backup.Manga, int, error) {
	out := exportMangaRow(m)

	catIDs, err := e.DB.ListMangaCategoryIDs(ctx, m.ID)
	if err != nil {
		return nil, 0, err
	}
	out.Categories = make([]backup.FlexInt64, 0, len(catIDs))
	for _, id := range catIDs {
		if order, ok := orderByID[id]; ok {
			out.Categories = append(out.Categories, backup.FlexInt64(order))
		}
	}

	chapters, err := e.DB.ListChapters(ctx, m.ID)
	if err != nil {
		return nil, 0, err
	}
	out.Chapters = make([]backup.Chapter, 0, len(chapters))
	for i := range chapters {
		out.Chapters = append(out.Chapters, exportChapter(&chapters[i]))
	}

	tracking, err := e.DB.ListTracking(ctx, m.ID)
	if err != nil {
		return nil, 0, err
	}
	for i := range tracking {
		out.Tracking = append(out.Tracking, exportTracking(&tracking[i]))
	}

	history, err := e.DB.ListHistory(ctx, m.ID)
	if err != nil {
		return nil, 0, err
	}
	for i := range history {
		h := history[i]
		url := h.ChapterURL
		duration := h.ReadDuration
		out.History = append(out.History, backup.History{
			URL:          &url,
			LastRead:     h.LastRead,
			ReadDuration: &duration,
		})
	}

	return out, len(chapters), nil
}

func deviceName(fromDoc, fromKey string) *string {
	if fromDoc != "" {
		return &fromDoc
	}
	if fromKey != "" {
		return &fromKey
	}
	return nil
}
