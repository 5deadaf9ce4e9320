package main

import "time"

// Roles a user account can hold.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// Journal categories.
const (
	CategoryDaily       = "daily"
	CategoryBestMoments = "best-moments"
	CategoryCustom      = "custom"
)

// User represents a registered account
type User struct {
	ID        int64
	Name      string
	Email     string
	Password  string // bcrypt hash, never serialized to clients
	Role      string
	IsActive  bool
	LastLogin *time.Time
	CreatedAt time.Time
}

// AudioJournal is the metadata record for one uploaded recording. The audio
// bytes live on the media host; FileURL and StorageKey point at them.
type AudioJournal struct {
	ID             int64      `json:"id"`
	UserID         int64      `json:"userId"`
	Title          string     `json:"title"`
	FileURL        string     `json:"fileUrl"`
	FileName       string     `json:"fileName"`
	FileSize       int64      `json:"fileSize"`
	Format         string     `json:"format"`
	Duration       float64    `json:"duration"` // seconds
	Category       string     `json:"category"`
	CustomCategory string     `json:"customCategory,omitempty"`
	Tags           []string   `json:"tags"`
	StorageKey     string     `json:"-"`
	Transcription  string     `json:"transcription,omitempty"`
	Summary        string     `json:"summary,omitempty"`
	IsTranscribed  bool       `json:"isTranscribed"`
	RecordedAt     time.Time  `json:"recordedAt"`
	IsDeleted      bool       `json:"-"`
	DeletedAt      *time.Time `json:"-"`
	CreatedAt      time.Time  `json:"createdAt"`
	UpdatedAt      time.Time  `json:"updatedAt"`
}

// CategoryCount is one bucket of a per-category breakdown.
type CategoryCount struct {
	Category string `json:"category"`
	Count    int64  `json:"count"`
}

// FormatStat is one bucket of a per-format breakdown.
type FormatStat struct {
	Format    string `json:"format"`
	Count     int64  `json:"count"`
	TotalSize int64  `json:"totalSize"`
}

// UserStats aggregates a single user's non-deleted journals.
type UserStats struct {
	TotalAudios   int64           `json:"totalAudios"`
	TotalStorage  int64           `json:"totalStorage"`
	TotalDuration float64         `json:"totalDuration"`
	AvgDuration   float64         `json:"avgDuration"`
	Categories    []CategoryCount `json:"categories"`
}

// AdminStats aggregates usage across all users.
type AdminStats struct {
	TotalUsers    int64
	TotalAudios   int64
	TotalBytes    int64
	TotalDuration float64
	AvgDuration   float64
	Formats       []FormatStat
	Categories    []CategoryCount
}

// UserActivity is one user's journal usage, for the admin listing.
type UserActivity struct {
	AudioCount   int64
	StorageBytes int64
}

// JournalFilter narrows and orders a journal listing.
type JournalFilter struct {
	Category string // empty or "all" matches every category
	Search   string // case-insensitive title substring
	SortBy   string // createdAt (default), title, duration, fileSize, recordedAt
	Order    string // asc or desc (default)
}
