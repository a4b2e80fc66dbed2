package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/kiroo/kiroo-sync-server/internal/backup"
	"github.com/kiroo/kiroo-sync-server/internal/db"
	"github.com/kiroo/kiroo-sync-server/internal/model"
	syncengine "github.com/kiroo/kiroo-sync-server/internal/sync"
	"github.com/kiroo/kiroo-sync-server/internal/testutil"
)

func seedLibrary(t *testing.T, database *db.DB, userID int64) {
	t.Helper()
	engine := &syncengine.Engine{DB: database}
	raw := `{"backupManga": [
		{"source": 1, "url": "/m/1", "title": "One",
		 "chapters": [{"url": "/c/1", "chapterNumber": 1}, {"url": "/c/2", "chapterNumber": 2}]}
	], "backupCategories": [{"name": "Reading", "order": 1}]}`
	var doc backup.Document
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		t.Fatal(err)
	}
	if _, err := engine.Push(context.Background(), userID, "", &doc); err != nil {
		t.Fatalf("seed push: %v", err)
	}
}

func TestBackupLifecycle(t *testing.T) {
	database := testutil.SetupTestDB(t)
	userID := testutil.SeedUser(t, database, "backup@example.com")
	seedLibrary(t, database, userID)

	handler := &BackupHandler{DB: database, Engine: &syncengine.Engine{DB: database}}
	ctx := context.WithValue(context.Background(), UserIDKey, userID)

	// Create
	body, _ := json.Marshal(CreateBackupRequest{Name: "before migration"})
	req, _ := http.NewRequest("POST", "/rpc/backup.create", bytes.NewBuffer(body))
	req = req.WithContext(ctx)
	rr := httptest.NewRecorder()
	handler.Create(rr, req)
	if rr.Code != http.StatusCreated {
		t.Fatalf("create failed: %v %s", rr.Code, rr.Body.String())
	}
	var created model.Backup
	if err := json.NewDecoder(rr.Body).Decode(&created); err != nil {
		t.Fatal(err)
	}
	if created.MangaCount != 1 || created.ChapterCount != 2 {
		t.Errorf("snapshot counts wrong: %+v", created)
	}
	if created.SizeBytes == 0 {
		t.Error("size should be recorded")
	}

	// List carries metadata only
	req, _ = http.NewRequest("GET", "/rpc/backup.list", nil)
	req = req.WithContext(ctx)
	rr = httptest.NewRecorder()
	handler.List(rr, req)
	var listed []model.Backup
	if err := json.NewDecoder(rr.Body).Decode(&listed); err != nil {
		t.Fatal(err)
	}
	if len(listed) != 1 || listed[0].Name != "before migration" {
		t.Fatalf("unexpected list: %+v", listed)
	}

	// Download streams the document
	req, _ = http.NewRequest("GET", "/rpc/backup.download?id="+created.ID, nil)
	req = req.WithContext(ctx)
	rr = httptest.NewRecorder()
	handler.Download(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("download failed: %v", rr.Code)
	}
	if !strings.Contains(rr.Header().Get("Content-Disposition"), "attachment") {
		t.Error("download should be an attachment")
	}
	var doc struct {
		Manga []json.RawMessage `json:"backupManga"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&doc); err != nil {
		t.Fatal(err)
	}
	if len(doc.Manga) != 1 {
		t.Errorf("downloaded document should hold the library, got %d manga", len(doc.Manga))
	}

	// Snapshots are immutable: pushing more data later leaves them alone.
	seedMore := `{"backupManga": [{"source": 1, "url": "/m/2", "title": "Two"}]}`
	var more backup.Document
	if err := json.Unmarshal([]byte(seedMore), &more); err != nil {
		t.Fatal(err)
	}
	engine := &syncengine.Engine{DB: database}
	if _, err := engine.Push(context.Background(), userID, "", &more); err != nil {
		t.Fatal(err)
	}
	stored, err := database.GetBackup(context.Background(), userID, created.ID)
	if err != nil {
		t.Fatal(err)
	}
	if stored.MangaCount != 1 {
		t.Errorf("existing snapshot changed: %+v", stored)
	}

	// Delete
	body, _ = json.Marshal(map[string]string{"id": created.ID})
	req, _ = http.NewRequest("POST", "/rpc/backup.delete", bytes.NewBuffer(body))
	req = req.WithContext(ctx)
	rr = httptest.NewRecorder()
	handler.Delete(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("delete failed: %v", rr.Code)
	}
	if _, err := database.GetBackup(context.Background(), userID, created.ID); err != db.ErrNotFound {
		t.Errorf("deleted backup still there: %v", err)
	}
}

func TestResetAllData(t *testing.T) {
	database := testutil.SetupTestDB(t)
	userID := testutil.SeedUser(t, database, "reset@example.com")
	keeper := testutil.SeedUser(t, database, "keep@example.com")
	seedLibrary(t, database, userID)
	seedLibrary(t, database, keeper)

	handler := &DataHandler{DB: database}
	ctx := context.WithValue(context.Background(), UserIDKey, userID)

	req, _ := http.NewRequest("POST", "/rpc/data.resetAllData", bytes.NewBuffer([]byte(`{}`)))
	req = req.WithContext(ctx)
	rr := httptest.NewRecorder()
	handler.ResetAllData(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("reset failed: %v %s", rr.Code, rr.Body.String())
	}

	count, err := database.CountManga(context.Background(), userID)
	if err != nil {
		t.Fatal(err)
	}
	if count != 0 {
		t.Errorf("reset left %d manga", count)
	}
	cats, err := database.ListCategories(context.Background(), userID)
	if err != nil {
		t.Fatal(err)
	}
	if len(cats) != 0 {
		t.Errorf("reset left %d categories", len(cats))
	}

	// The other user's data survives.
	otherCount, err := database.CountManga(context.Background(), keeper)
	if err != nil {
		t.Fatal(err)
	}
	if otherCount != 1 {
		t.Errorf("reset leaked into other user, %d manga left", otherCount)
	}
}
