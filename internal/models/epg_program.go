package models

import (
	"time"

	"gorm.io/gorm"
)

// DefaultProgramLang is used when the document does not carry a language
// attribute on the programme title.
const DefaultProgramLang = "en"

// EpgProgram represents a single scheduled broadcast imported from an XMLTV
// source. The upsert key is (channel_id, start_time); every other attribute
// is replaced when a conflicting row is imported again.
//
// Deletes are hard. A soft-delete column would leave tombstones holding the
// unique key and block re-imports of the same slot.
type EpgProgram struct {
	ID        ULID      `gorm:"primarykey;type:varchar(26)" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// ChannelID is the XMLTV channel identifier. Feed-scoped by convention;
	// not a database-enforced foreign key.
	ChannelID string `gorm:"not null;size:255;uniqueIndex:idx_program_key;index:idx_channel_time" json:"channel_id"`

	// StartTime is the program start, UTC.
	StartTime time.Time `gorm:"not null;uniqueIndex:idx_program_key;index:idx_channel_time" json:"start_time"`

	// EndTime is the program end, UTC.
	EndTime time.Time `gorm:"not null;index" json:"end_time"`

	// Title is the program title.
	Title string `gorm:"not null;size:512" json:"title"`

	// Description is the full program description.
	Description string `gorm:"type:text" json:"description,omitempty"`

	// Category is the program genre/category.
	Category string `gorm:"size:255" json:"category,omitempty"`

	// EpisodeNum is the episode number in whatever format the feed uses.
	EpisodeNum string `gorm:"size:100" json:"episode_num,omitempty"`

	// IconURL is the URL to a program image.
	IconURL string `gorm:"size:2048" json:"icon_url,omitempty"`

	// Lang is the program language, defaulting to "en".
	Lang string `gorm:"size:16;default:'en'" json:"lang"`
}

// TableName returns the table name for EpgProgram.
func (EpgProgram) TableName() string {
	return "epg_programs"
}

// Duration returns the program duration.
func (p *EpgProgram) Duration() time.Duration {
	return p.EndTime.Sub(p.StartTime)
}

// IsOnAir returns true if the program is airing at the given instant.
func (p *EpgProgram) IsOnAir(now time.Time) bool {
	return !now.Before(p.StartTime) && now.Before(p.EndTime)
}

// HasEnded returns true if the program has ended at the given instant.
func (p *EpgProgram) HasEnded(now time.Time) bool {
	return p.EndTime.Before(now)
}

// Validate performs basic validation on the EPG program.
func (p *EpgProgram) Validate() error {
	if p.ChannelID == "" {
		return ErrChannelIDRequired
	}
	if p.StartTime.IsZero() {
		return ErrStartTimeRequired
	}
	if p.EndTime.IsZero() {
		return ErrEndTimeRequired
	}
	if p.Title == "" {
		return ErrTitleRequired
	}
	if p.EndTime.Before(p.StartTime) {
		return ErrInvalidTimeRange
	}
	return nil
}

// BeforeCreate is a GORM hook that generates a ULID and applies defaults.
func (p *EpgProgram) BeforeCreate(tx *gorm.DB) error {
	if p.ID.IsZero() {
		p.ID = NewULID()
	}
	if p.Lang == "" {
		p.Lang = DefaultProgramLang
	}
	return nil
}
