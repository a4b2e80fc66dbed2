// Package backup defines the wire format mobile manga readers use to
// export and import their library, plus the normalization needed to
// accept the field aliases that accumulated across client generations.
package backup

import (
	"encoding/json"
)

// Document is the backup-shaped payload exchanged on sync. Decoding
// tolerates both the wrapped form {"backup": {...}} and the bare form,
// and both the backup-prefixed and the bare top-level key names.
// Encoding always produces the canonical backup-prefixed keys.
type Document struct {
	Manga             []Manga            `json:"backupManga"`
	Categories        []Category         `json:"backupCategories"`
	Sources           []Source           `json:"backupSources,omitempty"`
	Preferences       []Preference       `json:"backupPreferences,omitempty"`
	SourcePreferences []SourcePreference `json:"backupSourcePreferences,omitempty"`
	ExtensionRepos    []ExtensionRepo    `json:"backupExtensionRepo,omitempty"`
	SavedSearches     []SavedSearch      `json:"backupSavedSearches,omitempty"`
	Feeds             []Feed             `json:"backupFeeds,omitempty"`
	DeviceName        string             `json:"deviceName,omitempty"`
}

func (d *Document) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	// Some clients wrap the document under a "backup" key.
	if inner, ok := raw["backup"]; ok && len(inner) > 0 && inner[0] == '{' {
		var innerRaw map[string]json.RawMessage
		if err := json.Unmarshal(inner, &innerRaw); err != nil {
			return err
		}
		for k, v := range innerRaw {
			raw[k] = v
		}
	}

	pick := func(dst any, keys ...string) error {
		for _, k := range keys {
			if v, ok := raw[k]; ok && string(v) != "null" {
				return json.Unmarshal(v, dst)
			}
		}
		return nil
	}

	if err := pick(&d.Manga, "backupManga", "manga"); err != nil {
		return err
	}
	if err := pick(&d.Categories, "backupCategories", "categories"); err != nil {
		return err
	}
	if err := pick(&d.Sources, "backupSources", "sources"); err != nil {
		return err
	}
	if err := pick(&d.Preferences, "backupPreferences", "preferences"); err != nil {
		return err
	}
	if err := pick(&d.SourcePreferences, "backupSourcePreferences", "sourcePreferences"); err != nil {
		return err
	}
	if err := pick(&d.ExtensionRepos, "backupExtensionRepo", "extensionRepos"); err != nil {
		return err
	}
	if err := pick(&d.SavedSearches, "backupSavedSearches", "savedSearches"); err != nil {
		return err
	}
	if err := pick(&d.Feeds, "backupFeeds", "feeds"); err != nil {
		return err
	}
	return pick(&d.DeviceName, "deviceName", "device_name")
}

// SourceNames maps source id to display name from the payload's source list.
func (d *Document) SourceNames() map[int64]string {
	m := make(map[int64]string, len(d.Sources))
	for _, s := range d.Sources {
		if s.Name != "" {
			m[s.SourceID.Int64()] = s.Name
		}
	}
	return m
}

// Manga mirrors BackupManga. Fields the client may omit are pointers
// (absent means "use the default on insert, keep stored on update");
// custom override fields are Nullable so an explicit null clears the
// override while an absent key leaves it untouched.
type Manga struct {
	Source         FlexInt64  `json:"source"`
	URL            string     `json:"url"`
	Title          string     `json:"title"`
	Artist         *string    `json:"artist,omitempty"`
	Author         *string    `json:"author,omitempty"`
	Description    *string    `json:"description,omitempty"`
	Genres         StringList `json:"genres,omitempty"`
	Genre          StringList `json:"genre,omitempty"`
	Status         *int       `json:"status,omitempty"`
	ThumbnailURL   *string    `json:"thumbnailUrl,omitempty"`
	Favorite       *bool      `json:"favorite,omitempty"`
	DateAdded      *int64     `json:"dateAdded,omitempty"`
	ViewerFlags    *int       `json:"viewerFlags,omitempty"`
	ViewerFlagsAlt *int       `json:"viewer_flags,omitempty"`
	ChapterFlags   *int       `json:"chapterFlags,omitempty"`
	UpdateStrategy *string    `json:"updateStrategy,omitempty"`

	Chapters []Chapter  `json:"chapters,omitempty"`
	Tracking []Tracking `json:"tracking,omitempty"`
	History  []History  `json:"history,omitempty"`

	// Category membership as category order indexes. nil means the
	// client did not declare membership; an empty list clears it.
	Categories []FlexInt64 `json:"categories,omitempty"`

	CustomTitle        Nullable[string]     `json:"customTitle,omitzero"`
	CustomArtist       Nullable[string]     `json:"customArtist,omitzero"`
	CustomAuthor       Nullable[string]     `json:"customAuthor,omitzero"`
	CustomDescription  Nullable[string]     `json:"customDescription,omitzero"`
	CustomGenres       Nullable[StringList] `json:"customGenres,omitzero"`
	CustomGenre        Nullable[StringList] `json:"customGenre,omitzero"`
	CustomStatus       Nullable[int]        `json:"customStatus,omitzero"`
	CustomThumbnailURL Nullable[string]     `json:"customThumbnailUrl,omitzero"`
}

// GenreList normalizes the three genre shapes (array under "genres",
// array or comma-joined string under "genre", or absent) to one list.
func (m *Manga) GenreList() []string {
	if m.Genres != nil {
		return m.Genres
	}
	if m.Genre != nil {
		return m.Genre
	}
	return []string{}
}

// CustomGenreList merges the two custom-genre aliases into one
// tri-state value.
func (m *Manga) CustomGenreList() Nullable[StringList] {
	if m.CustomGenre.Set {
		return m.CustomGenre
	}
	return m.CustomGenres
}

func (m *Manga) ViewerFlagsValue() *int {
	if m.ViewerFlags != nil {
		return m.ViewerFlags
	}
	return m.ViewerFlagsAlt
}

type Chapter struct {
	URL              string     `json:"url"`
	Name             *string    `json:"name,omitempty"`
	Scanlator        *string    `json:"scanlator,omitempty"`
	ChapterNumber    *float64   `json:"chapterNumber,omitempty"`
	ChapterNumberAlt *float64   `json:"chapter_number,omitempty"`
	SourceOrder      *int       `json:"sourceOrder,omitempty"`
	Read             *bool      `json:"read,omitempty"`
	Bookmark         *bool      `json:"bookmark,omitempty"`
	LastPageRead     *FlexInt64 `json:"lastPageRead,omitempty"`
	LastPageReadAlt  *FlexInt64 `json:"last_page_read,omitempty"`
	PagesLeft        *FlexInt64 `json:"pagesLeft,omitempty"`
	PagesLeftAlt     *FlexInt64 `json:"pages_left,omitempty"`
	DateFetch        *int64     `json:"dateFetch,omitempty"`
	DateUpload       *int64     `json:"dateUpload,omitempty"`
}

func (c *Chapter) Number() *float64 {
	if c.ChapterNumber != nil {
		return c.ChapterNumber
	}
	return c.ChapterNumberAlt
}

func (c *Chapter) PageRead() *int64 {
	return flexPtr(c.LastPageRead, c.LastPageReadAlt)
}

func (c *Chapter) PagesLeftValue() *int64 {
	return flexPtr(c.PagesLeft, c.PagesLeftAlt)
}

func flexPtr(a, b *FlexInt64) *int64 {
	if a != nil {
		v := a.Int64()
		return &v
	}
	if b != nil {
		v := b.Int64()
		return &v
	}
	return nil
}

type Tracking struct {
	SyncID              int            `json:"syncId"`
	MediaID             *FlexInt64     `json:"mediaId,omitempty"`
	MediaIDAlt          *FlexInt64     `json:"mediaIdInt,omitempty"`
	LibraryID           *FlexInt64     `json:"libraryId,omitempty"`
	Title               *string        `json:"title,omitempty"`
	TrackingURL         *string        `json:"trackingUrl,omitempty"`
	LastChapterRead     *float64       `json:"lastChapterRead,omitempty"`
	TotalChapters       *int           `json:"totalChapters,omitempty"`
	Score               *float64       `json:"score,omitempty"`
	Status              *int           `json:"status,omitempty"`
	StartedReadingDate  *int64         `json:"startedReadingDate,omitempty"`
	FinishedReadingDate *int64         `json:"finishedReadingDate,omitempty"`
	Private             Nullable[bool] `json:"private,omitzero"`
}

func (t *Tracking) MediaIDValue() int64 {
	if v := flexPtr(t.MediaID, t.MediaIDAlt); v != nil {
		return *v
	}
	return 0
}

type History struct {
	URL          *string `json:"url,omitempty"`
	ChapterURL   *string `json:"chapterUrl,omitempty"`
	LastRead     int64   `json:"lastRead"`
	ReadDuration *int64  `json:"readDuration,omitempty"`
}

// ResolveURL returns the chapter url under either alias, or "" when the
// row carries none and must be skipped.
func (h *History) ResolveURL() string {
	if h.URL != nil && *h.URL != "" {
		return *h.URL
	}
	if h.ChapterURL != nil {
		return *h.ChapterURL
	}
	return ""
}

type Category struct {
	Name      string  `json:"name"`
	Order     *int    `json:"order,omitempty"`
	Flags     *int    `json:"flags,omitempty"`
	MangaSort *string `json:"mangaSort,omitempty"`
}

type Source struct {
	SourceID FlexInt64 `json:"sourceId"`
	Name     string    `json:"name"`
}

type Preference struct {
	Key   string          `json:"key"`
	Value json.RawMessage `json:"value,omitempty"`
}

type SourcePreference struct {
	SourceKey *FlexInt64      `json:"sourceKey,omitempty"`
	SourceAlt *FlexInt64      `json:"source,omitempty"`
	Prefs     json.RawMessage `json:"prefs,omitempty"`
}

func (p *SourcePreference) SourceID() *int64 {
	return flexPtr(p.SourceKey, p.SourceAlt)
}

type ExtensionRepo struct {
	BaseURL               string  `json:"baseUrl"`
	Name                  string  `json:"name"`
	ShortName             *string `json:"shortName,omitempty"`
	Website               *string `json:"website,omitempty"`
	SigningKeyFingerprint *string `json:"signingKeyFingerprint,omitempty"`
}

type SavedSearch struct {
	Name       string    `json:"name"`
	Source     FlexInt64 `json:"source"`
	Query      *string   `json:"query,omitempty"`
	FilterList *string   `json:"filterList,omitempty"`
}

type Feed struct {
	Source      FlexInt64 `json:"source"`
	SavedSearch *string   `json:"savedSearch,omitempty"`
	Global      *bool     `json:"global,omitempty"`
}
