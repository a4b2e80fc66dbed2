package api

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/kiroo/kiroo-sync-server/internal/auth"
	syncengine "github.com/kiroo/kiroo-sync-server/internal/sync"
	"github.com/kiroo/kiroo-sync-server/internal/testutil"
)

// Exercises the full push/pull path against MySQL. Skipped unless
// MYSQL_TEST_DSN is set.
func TestSyncPushPullMySQL(t *testing.T) {
	database := testutil.SetupMySQLTestDB(t)
	userID := testutil.SeedUser(t, database, "mysql@example.com")

	rawKey, keyHash, err := auth.GenerateAPIKey()
	if err != nil {
		t.Fatal(err)
	}
	if _, err := database.CreateAPIKey(context.Background(), userID, keyHash, "ci", nil, time.Now().UnixMilli()); err != nil {
		t.Fatal(err)
	}

	f := &syncFixture{
		db:      database,
		handler: &SyncHandler{DB: database, Engine: &syncengine.Engine{DB: database}},
		mw:      &Middleware{DB: database},
		userID:  userID,
		apiKey:  rawKey,
	}

	payload := []byte(`{"backupManga": [
		{"source": 9, "url": "/m/mysql", "title": "Mysql Manga", "genres": ["Action"],
		 "customTitle": "Renamed",
		 "chapters": [{"url": "/c/1", "chapterNumber": 1, "read": true}]}
	]}`)

	for i := 0; i < 2; i++ {
		rr := f.do(t, "POST", "/sync", f.apiKey, payload)
		if rr.Code != http.StatusOK {
			t.Fatalf("push %d failed: %v %s", i, rr.Code, rr.Body.String())
		}
	}

	m, err := database.FindMangaByNaturalKey(context.Background(), userID, 9, "/m/mysql")
	if err != nil {
		t.Fatalf("manga row missing: %v", err)
	}
	if m.Version != 1 {
		t.Errorf("idempotent re-push bumped version on mysql: %d", m.Version)
	}
	if m.CustomTitle == nil || *m.CustomTitle != "Renamed" {
		t.Errorf("custom title lost on mysql: %v", m.CustomTitle)
	}

	rr := f.do(t, "GET", "/sync", f.apiKey, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("pull failed: %v %s", rr.Code, rr.Body.String())
	}
	var doc struct {
		Manga []json.RawMessage `json:"backupManga"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&doc); err != nil {
		t.Fatal(err)
	}
	if len(doc.Manga) != 1 {
		t.Errorf("expected 1 manga in mysql pull, got %d", len(doc.Manga))
	}
}
