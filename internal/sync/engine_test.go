package sync

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/kiroo/kiroo-sync-server/internal/backup"
	"github.com/kiroo/kiroo-sync-server/internal/db"
	"github.com/kiroo/kiroo-sync-server/internal/model"
	"github.com/kiroo/kiroo-sync-server/internal/testutil"
)

func setupEngine(t *testing.T) (*Engine, int64) {
	t.Helper()
	database := testutil.SetupTestDB(t)
	userID := testutil.SeedUser(t, database, "sync@example.com")
	return &Engine{DB: database}, userID
}

func decodeDoc(t *testing.T, raw string) *backup.Document {
	t.Helper()
	var doc backup.Document
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		t.Fatalf("decode document: %v", err)
	}
	return &doc
}

func TestPushIdempotent(t *testing.T) {
	e, userID := setupEngine(t)
	ctx := context.Background()

	raw := `{"backupManga": [
		{"source": 1, "url": "/m/1", "title": "One", "chapters": [
			{"url": "/c/1", "name": "Ch 1", "chapterNumber": 1, "read": true}
		]},
		{"source": 1, "url": "/m/2", "title": "Two"}
	]}`

	first, err := e.Push(ctx, userID, "phone", decodeDoc(t, raw))
	if err != nil {
		t.Fatalf("first push: %v", err)
	}
	second, err := e.Push(ctx, userID, "phone", decodeDoc(t, raw))
	if err != nil {
		t.Fatalf("second push: %v", err)
	}

	if first.MangaSynced != 2 || second.MangaSynced != 2 {
		t.Errorf("mangaSynced should be 2/2, got %d/%d", first.MangaSynced, second.MangaSynced)
	}
	if first.ChaptersSynced != 1 || second.ChaptersSynced != 1 {
		t.Errorf("chaptersSynced should be 1/1, got %d/%d", first.ChaptersSynced, second.ChaptersSynced)
	}

	count, err := e.DB.CountManga(ctx, userID)
	if err != nil {
		t.Fatal(err)
	}
	if count != 2 {
		t.Errorf("expected 2 manga rows after duplicate push, got %d", count)
	}

	m, err := e.DB.FindMangaByNaturalKey(ctx, userID, 1, "/m/1")
	if err != nil {
		t.Fatal(err)
	}
	if m.Version != 1 {
		t.Errorf("identical re-push must not bump version, got %d", m.Version)
	}
}

func TestPullPushRoundTripIsNoOp(t *testing.T) {
	e, userID := setupEngine(t)
	ctx := context.Background()

	raw := `{"backupManga": [
		{"source": 7, "url": "/m/1", "title": "Solo Leveling", "genres": ["Action"],
		 "customTitle": "SL", "customStatus": 2, "favorite": true,
		 "chapters": [{"url": "/c/1", "chapterNumber": 1, "read": true, "lastPageRead": 12}],
		 "tracking": [{"syncId": 1, "mediaId": 99, "score": 8.5}],
		 "history": [{"url": "/c/1", "lastRead": 1700000000000, "readDuration": 60000}],
		 "categories": [1]}
	], "backupCategories": [{"name": "Reading", "order": 1}],
	   "backupSources": [{"sourceId": 7, "name": "MangaDex"}]}`

	if _, err := e.Push(ctx, userID, "a", decodeDoc(t, raw)); err != nil {
		t.Fatalf("seed push: %v", err)
	}

	before, err := e.DB.FindMangaByNaturalKey(ctx, userID, 7, "/m/1")
	if err != nil {
		t.Fatal(err)
	}

	pulled, err := e.Pull(ctx, userID, "b")
	if err != nil {
		t.Fatalf("pull: %v", err)
	}

	// Serialize and re-decode like a client would.
	data, err := json.Marshal(pulled)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := e.Push(ctx, userID, "b", decodeDoc(t, string(data))); err != nil {
		t.Fatalf("round-trip push: %v", err)
	}

	after, err := e.DB.FindMangaByNaturalKey(ctx, userID, 7, "/m/1")
	if err != nil {
		t.Fatal(err)
	}
	if after.Version != before.Version {
		t.Errorf("round trip bumped manga version %d -> %d", before.Version, after.Version)
	}
	if after.LastModifiedAt != before.LastModifiedAt {
		t.Errorf("round trip touched last_modified_at")
	}

	chapters, err := e.DB.ListChapters(ctx, after.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(chapters) != 1 || chapters[0].Version != 1 {
		t.Errorf("round trip bumped chapter version: %+v", chapters)
	}
}

func TestCustomOverridePrecedence(t *testing.T) {
	e, userID := setupEngine(t)
	ctx := context.Background()

	push := func(raw string) {
		t.Helper()
		if _, err := e.Push(ctx, userID, "", decodeDoc(t, raw)); err != nil {
			t.Fatalf("push: %v", err)
		}
	}
	get := func() *model.Manga {
		t.Helper()
		m, err := e.DB.FindMangaByNaturalKey(ctx, userID, 1, "/m/1")
		if err != nil {
			t.Fatal(err)
		}
		return m
	}

	push(`{"backupManga": [{"source": 1, "url": "/m/1", "title": "Original", "customTitle": "Mine"}]}`)
	if m := get(); m.CustomTitle == nil || *m.CustomTitle != "Mine" {
		t.Fatalf("customTitle not stored: %+v", m.CustomTitle)
	}

	// Absent key keeps the override.
	push(`{"backupManga": [{"source": 1, "url": "/m/1", "title": "Renamed"}]}`)
	m := get()
	if m.Title != "Renamed" {
		t.Errorf("title should follow the source: %q", m.Title)
	}
	if m.CustomTitle == nil || *m.CustomTitle != "Mine" {
		t.Errorf("absent customTitle must keep the override, got %v", m.CustomTitle)
	}
	if m.DisplayTitle() != "Mine" {
		t.Errorf("display should prefer the override, got %q", m.DisplayTitle())
	}

	// Explicit null clears it.
	push(`{"backupManga": [{"source": 1, "url": "/m/1", "title": "Renamed", "customTitle": null}]}`)
	if m := get(); m.CustomTitle != nil {
		t.Errorf("explicit null must clear the override, got %v", *m.CustomTitle)
	}
}

func TestGenreNormalization(t *testing.T) {
	e, userID := setupEngine(t)
	ctx := context.Background()

	shapes := []string{
		`{"backupManga": [{"source": 1, "url": "/m/1", "title": "A", "genres": ["Action", "Drama"]}]}`,
		`{"backupManga": [{"source": 1, "url": "/m/2", "title": "B", "genre": ["Action", "Drama"]}]}`,
		`{"backupManga": [{"source": 1, "url": "/m/3", "title": "C", "genre": "Action, Drama"}]}`,
	}
	for _, raw := range shapes {
		if _, err := e.Push(ctx, userID, "", decodeDoc(t, raw)); err != nil {
			t.Fatalf("push: %v", err)
		}
	}

	for _, url := range []string{"/m/1", "/m/2", "/m/3"} {
		m, err := e.DB.FindMangaByNaturalKey(ctx, userID, 1, url)
		if err != nil {
			t.Fatal(err)
		}
		if len(m.Genres) != 2 || m.Genres[0] != "Action" || m.Genres[1] != "Drama" {
			t.Errorf("%s: genres not normalized: %v", url, m.Genres)
		}
	}
}

func TestCategoryMembershipReplacement(t *testing.T) {
	e, userID := setupEngine(t)
	ctx := context.Background()

	seed := `{"backupManga": [{"source": 1, "url": "/m/1", "title": "A", "categories": [1, 2]}],
		"backupCategories": [
			{"name": "Reading", "order": 1},
			{"name": "Done", "order": 2},
			{"name": "Plan", "order": 3}
		]}`
	if _, err := e.Push(ctx, userID, "", decodeDoc(t, seed)); err != nil {
		t.Fatalf("push: %v", err)
	}

	m, err := e.DB.FindMangaByNaturalKey(ctx, userID, 1, "/m/1")
	if err != nil {
		t.Fatal(err)
	}
	if n := len(memberOrders(t, e, ctx, userID, m.ID)); n != 2 {
		t.Fatalf("expected 2 memberships, got %d", n)
	}

	// Membership list is authoritative: {1,2} -> {2,3}. The payload can
	// omit the category list entirely; stored orders still resolve.
	update := `{"backupManga": [{"source": 1, "url": "/m/1", "title": "A", "categories": [2, 3]}]}`
	if _, err := e.Push(ctx, userID, "", decodeDoc(t, update)); err != nil {
		t.Fatalf("push: %v", err)
	}

	orders := memberOrders(t, e, ctx, userID, m.ID)
	if len(orders) != 2 || !orders[2] || !orders[3] || orders[1] {
		t.Errorf("membership not replaced, got orders %v", orders)
	}
}

func memberOrders(t *testing.T, e *Engine, ctx context.Context, userID int64, mangaID string) map[int]bool {
	t.Helper()
	cats, err := e.DB.ListCategories(ctx, userID)
	if err != nil {
		t.Fatal(err)
	}
	orderByID := map[string]int{}
	for _, c := range cats {
		orderByID[c.ID] = c.Order
	}
	ids, err := e.DB.ListMangaCategoryIDs(ctx, mangaID)
	if err != nil {
		t.Fatal(err)
	}
	orders := map[int]bool{}
	for _, id := range ids {
		orders[orderByID[id]] = true
	}
	return orders
}

func TestPartialFailureIsolation(t *testing.T) {
	e, userID := setupEngine(t)
	ctx := context.Background()

	raw := `{"backupManga": [
		{"source": 1, "url": "/m/1", "title": "Good One"},
		{"source": 1, "url": "", "title": "Broken"},
		{"source": 1, "url": "/m/3", "title": "Good Two"}
	]}`
	report, err := e.Push(ctx, userID, "tablet", decodeDoc(t, raw))
	if err != nil {
		t.Fatalf("push should not fail wholesale: %v", err)
	}

	if report.MangaSynced != 2 {
		t.Errorf("expected 2 synced, got %d", report.MangaSynced)
	}
	if len(report.FailedManga) != 1 || report.FailedManga[0] != "Broken" {
		t.Errorf("expected Broken in failure list, got %v", report.FailedManga)
	}

	count, err := e.DB.CountManga(ctx, userID)
	if err != nil {
		t.Fatal(err)
	}
	if count != 2 {
		t.Errorf("good rows should land, got %d", count)
	}

	rec, err := e.DB.LatestSyncRecord(ctx, userID)
	if err != nil {
		t.Fatal(err)
	}
	if rec.Status != model.SyncStatusPartial {
		t.Errorf("audit status should be partial, got %q", rec.Status)
	}
	if rec.DeviceName == nil || *rec.DeviceName != "tablet" {
		t.Errorf("device name lost: %v", rec.DeviceName)
	}
}

func TestNaturalKeyScoping(t *testing.T) {
	e, userID := setupEngine(t)
	otherID := testutil.SeedUser(t, e.DB, "other@example.com")
	ctx := context.Background()

	raw := `{"backupManga": [{"source": 1, "url": "/m/1", "title": "Mine"}]}`
	if _, err := e.Push(ctx, userID, "", decodeDoc(t, raw)); err != nil {
		t.Fatal(err)
	}
	if _, err := e.Push(ctx, otherID, "", decodeDoc(t, raw)); err != nil {
		t.Fatal(err)
	}

	// Same natural key and different source are distinct rows.
	other := `{"backupManga": [{"source": 2, "url": "/m/1", "title": "Same URL other source"}]}`
	if _, err := e.Push(ctx, userID, "", decodeDoc(t, other)); err != nil {
		t.Fatal(err)
	}

	count, err := e.DB.CountManga(ctx, userID)
	if err != nil {
		t.Fatal(err)
	}
	if count != 2 {
		t.Errorf("expected 2 rows for first user, got %d", count)
	}
	otherCount, err := e.DB.CountManga(ctx, otherID)
	if err != nil {
		t.Fatal(err)
	}
	if otherCount != 1 {
		t.Errorf("expected 1 row for second user, got %d", otherCount)
	}
}

func TestFirstWriteWinsCollections(t *testing.T) {
	e, userID := setupEngine(t)
	ctx := context.Background()

	first := `{"backupExtensionRepo": [{"baseUrl": "https://repo.example", "name": "Main"}],
		"backupSavedSearches": [{"name": "isekai", "source": 4, "query": "isekai"}],
		"backupFeeds": [{"source": 4, "global": true}]}`
	if _, err := e.Push(ctx, userID, "", decodeDoc(t, first)); err != nil {
		t.Fatal(err)
	}

	second := `{"backupExtensionRepo": [{"baseUrl": "https://repo.example", "name": "Renamed"}],
		"backupSavedSearches": [{"name": "isekai", "source": 4, "query": "changed"}],
		"backupFeeds": [{"source": 4, "global": false}]}`
	if _, err := e.Push(ctx, userID, "", decodeDoc(t, second)); err != nil {
		t.Fatal(err)
	}

	repos, err := e.DB.ListExtensionRepos(ctx, userID)
	if err != nil {
		t.Fatal(err)
	}
	if len(repos) != 1 || repos[0].Name != "Main" {
		t.Errorf("extension repo should keep first write: %+v", repos)
	}
	searches, err := e.DB.ListSavedSearches(ctx, userID)
	if err != nil {
		t.Fatal(err)
	}
	if len(searches) != 1 || searches[0].Query == nil || *searches[0].Query != "isekai" {
		t.Errorf("saved search should keep first write: %+v", searches)
	}
	feeds, err := e.DB.ListFeeds(ctx, userID)
	if err != nil {
		t.Fatal(err)
	}
	if len(feeds) != 1 || !feeds[0].Global {
		t.Errorf("feed should keep first write: %+v", feeds)
	}
}

func TestPreferencesLastWriteWins(t *testing.T) {
	e, userID := setupEngine(t)
	ctx := context.Background()

	first := `{"backupPreferences": [{"key": "theme", "value": {"type": "int", "value": 1}}]}`
	if _, err := e.Push(ctx, userID, "", decodeDoc(t, first)); err != nil {
		t.Fatal(err)
	}
	second := `{"backupPreferences": [{"key": "theme", "value": {"type": "int", "value": 2}}]}`
	if _, err := e.Push(ctx, userID, "", decodeDoc(t, second)); err != nil {
		t.Fatal(err)
	}

	prefs, err := e.DB.ListPreferences(ctx, userID)
	if err != nil {
		t.Fatal(err)
	}
	if len(prefs) != 1 {
		t.Fatalf("expected 1 preference row, got %d", len(prefs))
	}
	if prefs[0].Type != "int" {
		t.Errorf("type discriminator lost: %q", prefs[0].Type)
	}
	var v struct {
		Value int `json:"value"`
	}
	if err := json.Unmarshal([]byte(prefs[0].Value), &v); err != nil || v.Value != 2 {
		t.Errorf("preference should take the last write: %s", prefs[0].Value)
	}
}

func TestWorkedExample(t *testing.T) {
	e, userID := setupEngine(t)
	ctx := context.Background()

	raw := `{"backupManga": [
		{"source": 2499283573021220255, "url": "/manga/aa", "title": "Frieren",
		 "genres": ["Adventure", "Fantasy"], "favorite": true,
		 "chapters": [
			{"url": "/chapter/1", "name": "The Journey's End", "chapterNumber": 1, "read": true, "lastPageRead": 0},
			{"url": "/chapter/2", "name": "It Didn't Have to Be Magic", "chapterNumber": 2, "read": false, "lastPageRead": 5}
		 ]}
	], "backupCategories": [{"name": "Favorites", "order": 1}],
	   "backupSources": [{"sourceId": 2499283573021220255, "name": "MangaDex"}]}`

	report, err := e.Push(ctx, userID, "phone", decodeDoc(t, raw))
	if err != nil {
		t.Fatalf("push: %v", err)
	}
	if report.MangaSynced != 1 || report.ChaptersSynced != 2 {
		t.Fatalf("report: %+v", report)
	}

	pulled, err := e.Pull(ctx, userID, "laptop")
	if err != nil {
		t.Fatalf("pull: %v", err)
	}
	if len(pulled.Manga) != 1 {
		t.Fatalf("expected 1 manga in pull, got %d", len(pulled.Manga))
	}
	m := pulled.Manga[0]
	if m.Source.Int64() != 2499283573021220255 {
		t.Errorf("wide source id mangled: %d", m.Source.Int64())
	}
	if len(m.Chapters) != 2 {
		t.Fatalf("expected 2 chapters, got %d", len(m.Chapters))
	}
	byURL := map[string]backup.Chapter{}
	for _, c := range m.Chapters {
		byURL[c.URL] = c
	}
	if c := byURL["/chapter/1"]; c.Read == nil || !*c.Read {
		t.Error("read chapter state lost")
	}
	if c := byURL["/chapter/2"]; c.PageRead() == nil || *c.PageRead() != 5 {
		t.Error("lastPageRead lost")
	}
	if name := findSourceName(pulled, 2499283573021220255); name != "MangaDex" {
		t.Errorf("source name lost, got %q", name)
	}

	records, err := e.DB.ListSyncRecords(ctx, userID, 10, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 2 {
		t.Fatalf("expected push+pull audit rows, got %d", len(records))
	}
	if records[0].SyncType != model.SyncTypePull && records[1].SyncType != model.SyncTypePull {
		t.Error("pull audit row missing")
	}
}

func findSourceName(doc *backup.Document, id int64) string {
	for _, s := range doc.Sources {
		if s.SourceID.Int64() == id {
			return s.Name
		}
	}
	return ""
}

func TestInsertRaceFallsBackToUpdate(t *testing.T) {
	e, userID := setupEngine(t)
	ctx := context.Background()

	// Simulate the losing side of a concurrent insert: the row appears
	// after the not-found check. Inserting a prebuilt row with the same
	// natural key must surface as a unique violation the engine absorbs.
	seed := `{"backupManga": [{"source": 1, "url": "/m/1", "title": "Winner"}]}`
	if _, err := e.Push(ctx, userID, "", decodeDoc(t, seed)); err != nil {
		t.Fatal(err)
	}

	dup := &model.Manga{
		UserID: userID, Source: 1, URL: "/m/1", Title: "Loser",
		Genres: []string{}, Favorite: true, ViewerFlags: -1,
		UpdateStrategy: "ALWAYS_UPDATE", Version: 1,
	}
	err := e.DB.InsertManga(ctx, dup)
	if !db.IsUniqueViolation(err) {
		t.Fatalf("expected unique violation, got %v", err)
	}

	// The engine path: a push of the same key merges instead of erroring.
	again := `{"backupManga": [{"source": 1, "url": "/m/1", "title": "Loser"}]}`
	report, err := e.Push(ctx, userID, "", decodeDoc(t, again))
	if err != nil || report.MangaSynced != 1 {
		t.Fatalf("push after race: %v %+v", err, report)
	}
	m, err := e.DB.FindMangaByNaturalKey(ctx, userID, 1, "/m/1")
	if err != nil {
		t.Fatal(err)
	}
	if m.Title != "Loser" || m.Version != 2 {
		t.Errorf("merge after race wrong: title=%q version=%d", m.Title, m.Version)
	}
}
