package model

type User struct {
	ID           int64  `json:"id" db:"id"`
	Email        string `json:"email" db:"email"`
	PasswordHash string `json:"-" db:"password_hash"`
	CreatedAt    int64  `json:"created_at" db:"created_at"`
}

// APIKey is a per-device credential. Only the SHA-256 digest of the raw
// key is stored; the plaintext is shown once at creation and never again.
type APIKey struct {
	ID         string  `json:"id" db:"id"`
	UserID     int64   `json:"user_id" db:"user_id"`
	KeyHash    string  `json:"-" db:"key_hash"`
	Name       string  `json:"name" db:"name"`
	DeviceName *string `json:"device_name" db:"device_name"`
	LastUsedAt *int64  `json:"last_used_at" db:"last_used_at"`
	CreatedAt  int64   `json:"created_at" db:"created_at"`
}

// Manga is one tracked series. Natural key: (user_id, source, url).
// The custom_* columns hold user overrides that take precedence over the
// source-provided values when present.
type Manga struct {
	ID                 string   `json:"id" db:"id"`
	UserID             int64    `json:"user_id" db:"user_id"`
	Source             int64    `json:"source" db:"source"`
	SourceName         *string  `json:"source_name" db:"source_name"`
	URL                string   `json:"url" db:"url"`
	Title              string   `json:"title" db:"title"`
	Artist             *string  `json:"artist" db:"artist"`
	Author             *string  `json:"author" db:"author"`
	Description        *string  `json:"description" db:"description"`
	Genres             []string `json:"genres" db:"genres"`
	Status             int      `json:"status" db:"status"`
	ThumbnailURL       *string  `json:"thumbnail_url" db:"thumbnail_url"`
	Favorite           bool     `json:"favorite" db:"favorite"`
	DateAdded          int64    `json:"date_added" db:"date_added"`
	ViewerFlags        int      `json:"viewer_flags" db:"viewer_flags"`
	ChapterFlags       int      `json:"chapter_flags" db:"chapter_flags"`
	UpdateStrategy     string   `json:"update_strategy" db:"update_strategy"`
	CustomTitle        *string  `json:"custom_title" db:"custom_title"`
	CustomArtist       *string  `json:"custom_artist" db:"custom_artist"`
	CustomAuthor       *string  `json:"custom_author" db:"custom_author"`
	CustomDescription  *string  `json:"custom_description" db:"custom_description"`
	CustomGenres       []string `json:"custom_genres" db:"custom_genres"`
	CustomStatus       int      `json:"custom_status" db:"custom_status"`
	CustomThumbnailURL *string  `json:"custom_thumbnail_url" db:"custom_thumbnail_url"`
	LastModifiedAt     int64    `json:"last_modified_at" db:"last_modified_at"`
	Version            int      `json:"version" db:"version"`
}

// DisplayTitle applies the user override when set.
func (m *Manga) DisplayTitle() string {
	if m.CustomTitle != nil && *m.CustomTitle != "" {
		return *m.CustomTitle
	}
	return m.Title
}

// Chapter belongs to exactly one manga. Natural key: (manga_id, url).
type Chapter struct {
	ID             string  `json:"id" db:"id"`
	MangaID        string  `json:"manga_id" db:"manga_id"`
	URL            string  `json:"url" db:"url"`
	Name           string  `json:"name" db:"name"`
	Scanlator      *string `json:"scanlator" db:"scanlator"`
	ChapterNumber  float64 `json:"chapter_number" db:"chapter_number"`
	SourceOrder    int     `json:"source_order" db:"source_order"`
	Read           bool    `json:"read" db:"read"`
	Bookmark       bool    `json:"bookmark" db:"bookmark"`
	LastPageRead   int64   `json:"last_page_read" db:"last_page_read"`
	PagesLeft      int64   `json:"pages_left" db:"pages_left"`
	DateFetch      *int64  `json:"date_fetch" db:"date_fetch"`
	DateUpload     *int64  `json:"date_upload" db:"date_upload"`
	LastModifiedAt int64   `json:"last_modified_at" db:"last_modified_at"`
	Version        int     `json:"version" db:"version"`
}

// Category is a user-scoped label. Natural key: (user_id, name).
type Category struct {
	ID        string  `json:"id" db:"id"`
	UserID    int64   `json:"user_id" db:"user_id"`
	Name      string  `json:"name" db:"name"`
	Order     int     `json:"order" db:"order"`
	Flags     int     `json:"flags" db:"flags"`
	MangaSort *string `json:"manga_sort" db:"manga_sort"`
}

// Tracking holds one external tracker record per (manga_id, sync_id).
type Tracking struct {
	ID                  string  `json:"id" db:"id"`
	MangaID             string  `json:"manga_id" db:"manga_id"`
	SyncID              int     `json:"sync_id" db:"sync_id"`
	MediaID             int64   `json:"media_id" db:"media_id"`
	LibraryID           *int64  `json:"library_id" db:"library_id"`
	Title               *string `json:"title" db:"title"`
	TrackingURL         *string `json:"tracking_url" db:"tracking_url"`
	LastChapterRead     float64 `json:"last_chapter_read" db:"last_chapter_read"`
	TotalChapters       int     `json:"total_chapters" db:"total_chapters"`
	Score               float64 `json:"score" db:"score"`
	Status              int     `json:"status" db:"status"`
	StartedReadingDate  *int64  `json:"started_reading_date" db:"started_reading_date"`
	FinishedReadingDate *int64  `json:"finished_reading_date" db:"finished_reading_date"`
	Private             bool    `json:"private" db:"private"`
}

// History is a read event keyed by (manga_id, chapter_url). Upsert-only.
type History struct {
	ID           string `json:"id" db:"id"`
	MangaID      string `json:"manga_id" db:"manga_id"`
	ChapterURL   string `json:"chapter_url" db:"chapter_url"`
	LastRead     int64  `json:"last_read" db:"last_read"`
	ReadDuration int64  `json:"read_duration" db:"read_duration"`
}

type Preference struct {
	ID     string `json:"id" db:"id"`
	UserID int64  `json:"user_id" db:"user_id"`
	Key    string `json:"key" db:"key"`
	Value  string `json:"value" db:"value"` // raw JSON
	Type   string `json:"type" db:"type"`
}

type SourcePreference struct {
	ID          string `json:"id" db:"id"`
	UserID      int64  `json:"user_id" db:"user_id"`
	SourceID    int64  `json:"source_id" db:"source_id"`
	Preferences string `json:"preferences" db:"preferences"` // raw JSON
}

type ExtensionRepo struct {
	ID                    string  `json:"id" db:"id"`
	UserID                int64   `json:"user_id" db:"user_id"`
	BaseURL               string  `json:"base_url" db:"base_url"`
	Name                  string  `json:"name" db:"name"`
	ShortName             *string `json:"short_name" db:"short_name"`
	Website               *string `json:"website" db:"website"`
	SigningKeyFingerprint *string `json:"signing_key_fingerprint" db:"signing_key_fingerprint"`
}

type SavedSearch struct {
	ID         string  `json:"id" db:"id"`
	UserID     int64   `json:"user_id" db:"user_id"`
	Name       string  `json:"name" db:"name"`
	Source     int64   `json:"source" db:"source"`
	Query      *string `json:"query" db:"query"`
	FilterList *string `json:"filter_list" db:"filter_list"`
}

type Feed struct {
	ID            string  `json:"id" db:"id"`
	UserID        int64   `json:"user_id" db:"user_id"`
	Source        int64   `json:"source" db:"source"`
	SavedSearchID *string `json:"saved_search_id" db:"saved_search_id"`
	Global        bool    `json:"global" db:"global"`
}

// Backup is an immutable named snapshot of a user's library.
type Backup struct {
	ID           string  `json:"id" db:"id"`
	UserID       int64   `json:"user_id" db:"user_id"`
	Name         string  `json:"name" db:"name"`
	Description  *string `json:"description" db:"description"`
	Data         string  `json:"-" db:"data"` // serialized backup document
	MangaCount   int     `json:"manga_count" db:"manga_count"`
	ChapterCount int     `json:"chapter_count" db:"chapter_count"`
	SizeBytes    int     `json:"size_bytes" db:"size_bytes"`
	CreatedAt    int64   `json:"created_at" db:"created_at"`
}

// SyncRecord is one append-only audit row per sync call.
type SyncRecord struct {
	ID             string  `json:"id" db:"id"`
	UserID         int64   `json:"user_id" db:"user_id"`
	DeviceName     *string `json:"device_name" db:"device_name"`
	SyncType       string  `json:"sync_type" db:"sync_type"` // "push" | "pull"
	MangaSynced    int     `json:"manga_synced" db:"manga_synced"`
	ChaptersSynced int     `json:"chapters_synced" db:"chapters_synced"`
	Status         string  `json:"status" db:"status"` // "success" | "partial" | "failed"
	ErrorMessage   *string `json:"error_message" db:"error_message"`
	CreatedAt      int64   `json:"created_at" db:"created_at"`
}

const (
	SyncTypePush = "push"
	SyncTypePull = "pull"

	SyncStatusSuccess = "success"
	SyncStatusPartial = "partial"
	SyncStatusFailed  = "failed"
)
