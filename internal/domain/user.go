// Package domain defines the entities stored by ClawFactory.
package domain

import "time"

// User represents a registered account. Identity is immutable; the username
// is the public routing key.
type User struct {
	ID           uint   `gorm:"primaryKey" json:"id"`
	Username     string `gorm:"type:varchar(191);uniqueIndex:idx_username;not null" json:"username"`
	PasswordHash string `gorm:"type:text" json:"-"`
	Email        string `gorm:"type:varchar(191);uniqueIndex:idx_email" json:"email,omitempty"`

	// Optional external-identity link, set on first OAuth login.
	Provider   string `gorm:"type:varchar(50);index:idx_identity" json:"provider,omitempty"`
	ProviderID string `gorm:"type:varchar(191);index:idx_identity" json:"provider_id,omitempty"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
