package domain

import "time"

// Contributor records an author label that has uploaded to a copy. The upsert
// endpoint accepts uploads from non-owners, so a copy can accumulate several
// contributors over its lifetime.
type Contributor struct {
	ID        uint      `gorm:"primaryKey" json:"-"`
	CopyID    uint      `gorm:"not null;uniqueIndex:idx_contrib_copy_author" json:"copy_id"`
	Author    string    `gorm:"type:varchar(191);not null;uniqueIndex:idx_contrib_copy_author" json:"author"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// Kinds of change recorded in the audit trail.
const (
	ChangeCreate    = "create"
	ChangeUpdate    = "update"
	ChangeFork      = "fork"
	ChangePublish   = "publish"
	ChangeUnpublish = "unpublish"
)

// ChangeEntry is an append-only audit row written alongside every mutation of
// a copy's lifecycle.
type ChangeEntry struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CopyID    uint      `gorm:"index;not null" json:"copy_id"`
	UserID    uint      `gorm:"index" json:"user_id,omitempty"`
	Kind      string    `gorm:"type:varchar(20);not null" json:"kind"`
	Note      string    `gorm:"type:text" json:"note,omitempty"`
	CreatedAt time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}
