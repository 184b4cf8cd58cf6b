package models

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"gorm.io/gorm"
)

// Import status values written to EpgSource.LastImportStatus. The column is
// free text: failures carry a reason suffix, errors a truncated message.
const (
	ImportStatusSuccess     = "success"
	ImportStatusFailed      = "failed"
	importStatusErrorPrefix = "error: "
)

// maxStatusErrorLen bounds the error message stored in the status column.
const maxStatusErrorLen = 100

// EpgSource represents a configured XMLTV feed: a remote URL or a file path
// under the EPG storage directory, plus the status fields the pipeline
// updates after each run.
type EpgSource struct {
	BaseModel

	// Name is a user-friendly name for the source.
	// Must be unique across all EPG sources.
	Name string `gorm:"uniqueIndex;not null;size:255" json:"name"`

	// URL is the remote XMLTV document URL. Mutually exclusive with FilePath.
	URL string `gorm:"size:2048" json:"url,omitempty"`

	// FilePath is a path relative to the EPG storage directory.
	// Mutually exclusive with URL.
	FilePath string `gorm:"size:1024" json:"file_path,omitempty"`

	// IsActive indicates whether this source is included in import runs.
	IsActive *bool `gorm:"default:true" json:"is_active"`

	// LastImportAt is the timestamp of the last import attempt, success or not.
	LastImportAt *time.Time `json:"last_import_at,omitempty"`

	// LastImportStatus is the outcome of the last attempt: "success",
	// "failed: <reason>", or "error: <truncated message>".
	LastImportStatus string `gorm:"size:255" json:"last_import_status,omitempty"`

	// ProgramsCount is the number of programs admitted by the last
	// successful import. Left unchanged on failure.
	ProgramsCount int `gorm:"default:0" json:"programs_count"`

	// ChannelsCount is the number of channels declared by the document in
	// the last successful import. Left unchanged on failure.
	ChannelsCount int `gorm:"default:0" json:"channels_count"`
}

// TableName returns the table name for EpgSource.
func (EpgSource) TableName() string {
	return "epg_sources"
}

// Active returns true if the source should be included in import runs.
func (s *EpgSource) Active() bool {
	return BoolVal(s.IsActive)
}

// MarkSuccess records a successful run with the just-computed totals.
func (s *EpgSource) MarkSuccess(at time.Time, programs, channels int) {
	s.LastImportAt = &at
	s.LastImportStatus = ImportStatusSuccess
	s.ProgramsCount = programs
	s.ChannelsCount = channels
}

// MarkFailed records a failed run with a short reason.
// Program and channel counts are left unchanged.
func (s *EpgSource) MarkFailed(at time.Time, reason string) {
	s.LastImportAt = &at
	if reason == "" {
		s.LastImportStatus = ImportStatusFailed
	} else {
		s.LastImportStatus = fmt.Sprintf("%s: %s", ImportStatusFailed, reason)
	}
}

// MarkError records an unexpected failure, truncating the message so the
// status column stays readable on a dashboard.
// Program and channel counts are left unchanged.
func (s *EpgSource) MarkError(at time.Time, err error) {
	s.LastImportAt = &at
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	if len(msg) > maxStatusErrorLen {
		msg = msg[:maxStatusErrorLen]
	}
	s.LastImportStatus = importStatusErrorPrefix + msg
}

// Sanitize trims whitespace from user-provided fields.
func (s *EpgSource) Sanitize() {
	s.Name = strings.TrimSpace(s.Name)
	s.URL = strings.TrimSpace(s.URL)
	s.FilePath = strings.TrimSpace(s.FilePath)
}

// Validate performs basic validation on the EPG source.
func (s *EpgSource) Validate() error {
	s.Sanitize()

	if s.Name == "" {
		return ErrNameRequired
	}
	if s.URL == "" && s.FilePath == "" {
		return ErrLocationRequired
	}
	if s.URL != "" && s.FilePath != "" {
		return ErrLocationConflict
	}
	if s.URL != "" {
		u, err := url.Parse(s.URL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return ErrInvalidURL
		}
	}
	return nil
}

// BeforeCreate is a GORM hook that validates the source and generates a ULID.
func (s *EpgSource) BeforeCreate(tx *gorm.DB) error {
	if err := s.BaseModel.BeforeCreate(tx); err != nil {
		return err
	}
	return s.Validate()
}

// BeforeUpdate is a GORM hook that validates the source before update.
func (s *EpgSource) BeforeUpdate(tx *gorm.DB) error {
	return s.Validate()
}
