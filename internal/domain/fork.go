package domain

import "time"

// ForkRecord is an immutable edge from an original copy to a derived one,
// tagged with the user who performed the fork. One record per fork; never
// updated or deleted.
type ForkRecord struct {
	ID           uint      `gorm:"primaryKey"`
	OriginalSlug string    `gorm:"type:varchar(191);index;not null"`
	ForkedSlug   string    `gorm:"type:varchar(191);uniqueIndex:idx_forked_slug;not null"`
	UserID       uint      `gorm:"index;not null"`
	CreatedAt    time.Time `gorm:"autoCreateTime;index"`
}
