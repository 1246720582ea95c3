package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// VersionEntry is an append-only snapshot of a copy's state, written either
// when the copy is created (the version-1 record) or immediately before an
// update overwrites the row. Entries are never mutated after creation.
type VersionEntry struct {
	ID        uint      `gorm:"primaryKey"`
	CopyID    uint      `gorm:"index;not null"`
	Version   string    `gorm:"type:varchar(50);not null"`
	Data      string    `gorm:"type:text;not null"`
	Changelog string    `gorm:"type:text"`
	CreatedBy string    `gorm:"type:varchar(191)"`
	CreatedAt time.Time `gorm:"autoCreateTime;index"`
}

// NewVersionEntry serializes the full copy row into an archive record.
func NewVersionEntry(c *Copy, changelog, createdBy string) (*VersionEntry, error) {
	data, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("serialize copy %q for version history: %w", c.Slug, err)
	}
	return &VersionEntry{
		CopyID:    c.ID,
		Version:   c.Version,
		Data:      string(data),
		Changelog: changelog,
		CreatedBy: createdBy,
	}, nil
}
