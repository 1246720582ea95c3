package domain

import "time"

// Rating holds one user's score for a copy. At most one row exists per
// (copy, user) pair; a repeat submission replaces the previous value.
type Rating struct {
	ID        uint      `gorm:"primaryKey"`
	CopyID    uint      `gorm:"not null;uniqueIndex:idx_rating_copy_user"`
	UserID    uint      `gorm:"not null;uniqueIndex:idx_rating_copy_user"`
	Value     int       `gorm:"not null"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

// Comment is free text appended to a copy. Comments are never edited.
type Comment struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CopyID    uint      `gorm:"index;not null" json:"copy_id"`
	UserID    uint      `gorm:"index" json:"user_id,omitempty"`
	Author    string    `gorm:"type:varchar(191);not null" json:"author"`
	Text      string    `gorm:"type:text;not null" json:"text"`
	CreatedAt time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}

// Star marks a copy as starred by a user. The unique index makes a repeat
// star a no-op rather than a double count.
type Star struct {
	ID        uint      `gorm:"primaryKey"`
	CopyID    uint      `gorm:"not null;uniqueIndex:idx_star_copy_user"`
	UserID    uint      `gorm:"not null;uniqueIndex:idx_star_copy_user"`
	CreatedAt time.Time `gorm:"autoCreateTime;index"`
}

// Star toggle actions supplied explicitly by the caller.
const (
	StarActionStar   = "star"
	StarActionUnstar = "unstar"
)
