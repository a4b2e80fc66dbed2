package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/kiroo/kiroo-sync-server/internal/auth"
	"github.com/kiroo/kiroo-sync-server/internal/db"
	"github.com/kiroo/kiroo-sync-server/internal/model"
	syncengine "github.com/kiroo/kiroo-sync-server/internal/sync"
	"github.com/kiroo/kiroo-sync-server/internal/testutil"
)

type syncFixture struct {
	db      *db.DB
	handler *SyncHandler
	mw      *Middleware
	userID  int64
	apiKey  string
}

func setupSync(t *testing.T) *syncFixture {
	t.Helper()
	database := testutil.SetupTestDB(t)
	userID := testutil.SeedUser(t, database, "device@example.com")

	rawKey, keyHash, err := auth.GenerateAPIKey()
	if err != nil {
		t.Fatal(err)
	}
	device := "Pixel 9"
	if _, err := database.CreateAPIKey(context.Background(), userID, keyHash, "phone", &device, time.Now().UnixMilli()); err != nil {
		t.Fatal(err)
	}

	return &syncFixture{
		db:      database,
		handler: &SyncHandler{DB: database, Engine: &syncengine.Engine{DB: database}},
		mw:      &Middleware{DB: database},
		userID:  userID,
		apiKey:  rawKey,
	}
}

func (f *syncFixture) do(t *testing.T, method, path, key string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	var handler http.Handler
	if method == "POST" {
		handler = f.mw.RequireAPIKey(http.HandlerFunc(f.handler.Push))
	} else {
		handler = f.mw.RequireAPIKey(http.HandlerFunc(f.handler.Pull))
	}
	req, _ := http.NewRequest(method, path, bytes.NewBuffer(body))
	if key != "" {
		req.Header.Set("x-api-key", key)
	}
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	return rr
}

func TestSyncRequiresAPIKey(t *testing.T) {
	f := setupSync(t)

	if rr := f.do(t, "POST", "/sync", "", []byte(`{}`)); rr.Code != http.StatusUnauthorized {
		t.Errorf("push without key should 401, got %v", rr.Code)
	}
	if rr := f.do(t, "GET", "/sync", "mk_bogus", nil); rr.Code != http.StatusUnauthorized {
		t.Errorf("pull with unknown key should 401, got %v", rr.Code)
	}
	if rr := f.do(t, "POST", "/sync", "definitely not a key \x00", []byte(`{}`)); rr.Code != http.StatusUnauthorized {
		t.Errorf("malformed key should 401, got %v", rr.Code)
	}
}

func TestSyncPushPull(t *testing.T) {
	f := setupSync(t)

	payload := []byte(`{"backupManga": [
		{"source": 1, "url": "/m/1", "title": "One", "favorite": true,
		 "chapters": [{"url": "/c/1", "chapterNumber": 1, "read": true}]}
	]}`)

	rr := f.do(t, "POST", "/sync", f.apiKey, payload)
	if rr.Code != http.StatusOK {
		t.Fatalf("push failed: %v %s", rr.Code, rr.Body.String())
	}
	var resp PushResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if !resp.Success || resp.MangaSynced != 1 || resp.ChaptersSynced != 1 {
		t.Errorf("unexpected push response: %+v", resp)
	}

	rr = f.do(t, "GET", "/sync", f.apiKey, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("pull failed: %v %s", rr.Code, rr.Body.String())
	}
	var doc map[string]json.RawMessage
	if err := json.NewDecoder(rr.Body).Decode(&doc); err != nil {
		t.Fatal(err)
	}
	if _, ok := doc["backupManga"]; !ok {
		t.Error("pull response missing backupManga")
	}

	// The API key's device name lands in the audit row.
	rec, err := f.db.LatestSyncRecord(context.Background(), f.userID)
	if err != nil {
		t.Fatal(err)
	}
	if rec.DeviceName == nil || *rec.DeviceName != "Pixel 9" {
		t.Errorf("device name not recorded: %v", rec.DeviceName)
	}
}

func TestSyncPushBadBody(t *testing.T) {
	f := setupSync(t)

	rr := f.do(t, "POST", "/sync", f.apiKey, []byte(`{not json`))
	if rr.Code != http.StatusBadRequest {
		t.Errorf("malformed body should 400, got %v", rr.Code)
	}

	// Nothing synced, nothing audited.
	count, err := f.db.CountManga(context.Background(), f.userID)
	if err != nil {
		t.Fatal(err)
	}
	if count != 0 {
		t.Errorf("rejected push must not write rows, got %d", count)
	}
	if _, err := f.db.LatestSyncRecord(context.Background(), f.userID); err != db.ErrNotFound {
		t.Errorf("rejected push must not write audit rows: %v", err)
	}
}

func TestAPIKeyLifecycle(t *testing.T) {
	database := testutil.SetupTestDB(t)
	userID := testutil.SeedUser(t, database, "keys@example.com")
	handler := &APIKeyHandler{DB: database}

	ctx := context.WithValue(context.Background(), UserIDKey, userID)

	// Create
	body, _ := json.Marshal(CreateAPIKeyRequest{Name: "phone"})
	req, _ := http.NewRequest("POST", "/rpc/apiKeys.create", bytes.NewBuffer(body))
	req = req.WithContext(ctx)
	rr := httptest.NewRecorder()
	handler.Create(rr, req)
	if rr.Code != http.StatusCreated {
		t.Fatalf("create failed: %v %s", rr.Code, rr.Body.String())
	}
	var created CreateAPIKeyResponse
	if err := json.NewDecoder(rr.Body).Decode(&created); err != nil {
		t.Fatal(err)
	}
	if created.Key == "" || !auth.LooksLikeAPIKey(created.Key) {
		t.Errorf("raw key missing or malformed: %q", created.Key)
	}

	// The stored record holds the digest, not the key.
	stored, err := database.GetAPIKeyByHash(context.Background(), auth.HashAPIKey(created.Key))
	if err != nil {
		t.Fatalf("digest lookup failed: %v", err)
	}
	if stored.UserID != userID {
		t.Errorf("key bound to wrong user: %d", stored.UserID)
	}

	// List
	req, _ = http.NewRequest("GET", "/rpc/apiKeys.list", nil)
	req = req.WithContext(ctx)
	rr = httptest.NewRecorder()
	handler.List(rr, req)
	var keys []model.APIKey
	if err := json.NewDecoder(rr.Body).Decode(&keys); err != nil {
		t.Fatal(err)
	}
	if len(keys) != 1 {
		t.Fatalf("expected 1 key, got %d", len(keys))
	}

	// Revoke
	body, _ = json.Marshal(map[string]string{"id": created.ID})
	req, _ = http.NewRequest("POST", "/rpc/apiKeys.revoke", bytes.NewBuffer(body))
	req = req.WithContext(ctx)
	rr = httptest.NewRecorder()
	handler.Revoke(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("revoke failed: %v", rr.Code)
	}
	if _, err := database.GetAPIKeyByHash(context.Background(), auth.HashAPIKey(created.Key)); err != db.ErrNotFound {
		t.Errorf("revoked key still resolves: %v", err)
	}
}
