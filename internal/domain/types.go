package domain

import (
	"strings"
	"time"
)

// RecordStatus tracks where one file sits in the metadata pipeline.
type RecordStatus string

const (
	RecordStatusPending    RecordStatus = "pending"
	RecordStatusQueued     RecordStatus = "queued"
	RecordStatusProcessing RecordStatus = "processing"
	RecordStatusCompleted  RecordStatus = "completed"
	RecordStatusError      RecordStatus = "error"
	RecordStatusStopped    RecordStatus = "stopped"
)

// Terminal reports whether the status ends a record's pass through a session.
func (s RecordStatus) Terminal() bool {
	switch s {
	case RecordStatusCompleted, RecordStatusError, RecordStatusStopped:
		return true
	default:
		return false
	}
}

// KeywordSeparator joins keyword lists into the single string stored on disk and in CSV.
const KeywordSeparator = ", "

// FileRecord is one tracked image file and its generated metadata.
type FileRecord struct {
	ID          string       `json:"id"`
	Path        string       `json:"path"`
	DisplayName string       `json:"displayName"`
	Status      RecordStatus `json:"status"`
	Reason      string       `json:"reason,omitempty"`
	Title       string       `json:"title"`
	Keywords    []string     `json:"keywords"`
	Description string       `json:"description"`
	Selected    bool         `json:"selected"`
	UpdatedAt   time.Time    `json:"updatedAt"`
}

// KeywordString renders keywords in their stored single-string form.
func (r FileRecord) KeywordString() string {
	return JoinKeywords(r.Keywords)
}

// JoinKeywords trims and joins keywords, dropping empty entries.
func JoinKeywords(keywords []string) string {
	parts := make([]string, 0, len(keywords))
	for _, keyword := range keywords {
		if trimmed := strings.TrimSpace(keyword); trimmed != "" {
			parts = append(parts, trimmed)
		}
	}
	return strings.Join(parts, KeywordSeparator)
}

// SplitKeywords parses a comma-delimited keyword string.
func SplitKeywords(value string) []string {
	raw := strings.Split(value, ",")
	out := make([]string, 0, len(raw))
	for _, part := range raw {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// SessionState is the batch scheduler lifecycle state.
type SessionState string

const (
	SessionStateIdle     SessionState = "idle"
	SessionStateRunning  SessionState = "running"
	SessionStatePaused   SessionState = "paused"
	SessionStateFinished SessionState = "finished"
	SessionStateStopped  SessionState = "stopped"
)

// Session stores the current batch identity and lifecycle state.
type Session struct {
	ID        string       `json:"id"`
	State     SessionState `json:"state"`
	Items     []string     `json:"items,omitempty"`
	StartedAt time.Time    `json:"startedAt,omitempty"`
	Processed int          `json:"processed"`
	Total     int          `json:"total"`
}

// Limits bound the size of generated metadata.
type Limits struct {
	TitleWords       int `json:"titleWords" toml:"title_words"`
	KeywordCount     int `json:"keywordCount" toml:"keyword_count"`
	DescriptionWords int `json:"descriptionWords" toml:"description_words"`
}

// DefaultLimits returns the limits used when none are configured.
func DefaultLimits() Limits {
	return Limits{TitleWords: 10, KeywordCount: 20, DescriptionWords: 100}
}

// Fields is the set of metadata values written into a file. Empty values are left untouched.
type Fields struct {
	Title       string   `json:"title,omitempty"`
	Description string   `json:"description,omitempty"`
	Keywords    []string `json:"keywords,omitempty"`
	Artist      string   `json:"artist,omitempty"`
	Copyright   string   `json:"copyright,omitempty"`
	Rating      *int     `json:"rating,omitempty"`
}

// Empty reports whether no field would be applied.
func (f Fields) Empty() bool {
	return strings.TrimSpace(f.Title) == "" &&
		strings.TrimSpace(f.Description) == "" &&
		len(SplitKeywords(JoinKeywords(f.Keywords))) == 0 &&
		strings.TrimSpace(f.Artist) == "" &&
		strings.TrimSpace(f.Copyright) == "" &&
		f.Rating == nil
}

// FieldsFromRecord converts generated record text into embeddable fields.
func FieldsFromRecord(r FileRecord) Fields {
	return Fields{
		Title:       r.Title,
		Description: r.Description,
		Keywords:    append([]string(nil), r.Keywords...),
	}
}

// Settings contains user-editable values persisted between launches.
type Settings struct {
	APIKey string `json:"api_key"`
	Theme  string `json:"theme"`
}

// WindowStats counts files processed inside the rolling 24 hour window.
type WindowStats struct {
	FilesProcessed int     `json:"files_processed"`
	Timestamp      float64 `json:"timestamp"`
}

// UsageStats is the persisted usage counter document.
type UsageStats struct {
	AllTimeProcessed    int         `json:"all_time_processed"`
	Last24h             WindowStats `json:"last_24h_stats"`
	TotalProcessingTime float64     `json:"total_processing_time"`
}
