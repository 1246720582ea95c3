package domain

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Visibility states of a Copy. A private copy is readable by its owner only;
// an unlisted copy is fetchable by slug but never appears in listings.
const (
	VisibilityPublic   = "public"
	VisibilityPrivate  = "private"
	VisibilityUnlisted = "unlisted"
)

// StringList is an ordered list stored as a JSON array in a TEXT column.
type StringList []string

func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		l = StringList{}
	}
	b, err := json.Marshal(l)
	if err != nil {
		return nil, fmt.Errorf("marshal string list: %w", err)
	}
	return string(b), nil
}

func (l *StringList) Scan(src interface{}) error {
	return scanJSON(src, l)
}

// FileMap holds a copy's snapshot: filename mapped to full file content.
type FileMap map[string]string

func (m FileMap) Value() (driver.Value, error) {
	if m == nil {
		m = FileMap{}
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("marshal file map: %w", err)
	}
	return string(b), nil
}

func (m *FileMap) Scan(src interface{}) error {
	return scanJSON(src, m)
}

func scanJSON(src, dst interface{}) error {
	switch v := src.(type) {
	case nil:
		return nil
	case []byte:
		if len(v) == 0 {
			return nil
		}
		return json.Unmarshal(v, dst)
	case string:
		if v == "" {
			return nil
		}
		return json.Unmarshal([]byte(v), dst)
	default:
		return fmt.Errorf("unsupported column type %T for JSON field", src)
	}
}

// Copy is the marketplace's core unit: a named, versioned bundle of
// configuration files owned by exactly one user. The row always holds the
// current state; prior states live in VersionEntry.
type Copy struct {
	ID          uint       `gorm:"primaryKey"`
	Slug        string     `gorm:"type:varchar(191);uniqueIndex:idx_copy_slug;not null"`
	OwnerID     uint       `gorm:"index;not null"`
	Name        string     `gorm:"type:varchar(191);not null"`
	Description string     `gorm:"type:text"`
	Author      string     `gorm:"type:varchar(191);not null"`
	Version     string     `gorm:"type:varchar(50);not null;default:1.0.0"`
	Category    string     `gorm:"type:varchar(50);index"`
	ModelTag    string     `gorm:"type:varchar(100)"`
	Skills      StringList `gorm:"type:text"`
	Tags        StringList `gorm:"type:text"`
	Features    StringList `gorm:"type:text"`
	Files       FileMap    `gorm:"type:text"`
	Memory      string     `gorm:"type:text"`
	HasArchive  bool       `gorm:"not null;default:false"`

	RatingAverage float64 `gorm:"not null;default:0"`
	RatingCount   int     `gorm:"not null;default:0"`
	InstallCount  int     `gorm:"not null;default:0"`

	Visibility  string     `gorm:"type:varchar(20);index;not null;default:unlisted"`
	PublishedAt *time.Time `gorm:"index"`
	ForkedFrom  string     `gorm:"type:varchar(191);index"`

	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

func (c *Copy) IsPublic() bool  { return c.Visibility == VisibilityPublic }
func (c *Copy) IsPrivate() bool { return c.Visibility == VisibilityPrivate }

// ResolveVisibility collapses the wire-level is_public/is_private flag pair
// into the single stored state. A private flag wins over public.
func ResolveVisibility(isPublic, isPrivate bool) string {
	switch {
	case isPrivate:
		return VisibilityPrivate
	case isPublic:
		return VisibilityPublic
	default:
		return VisibilityUnlisted
	}
}

var slugStrip = regexp.MustCompile(`\s+`)

// Slugify derives the URL-safe identifier from a display name. Applying it to
// the same name always yields the same slug.
func Slugify(name string) string {
	return slugStrip.ReplaceAllString(strings.TrimSpace(strings.ToLower(name)), "-")
}

// NextPatchVersion bumps the patch component of a semantic version string.
// A version that does not parse as x.y.z is returned unchanged.
func NextPatchVersion(version string) string {
	parts := strings.Split(version, ".")
	if len(parts) != 3 {
		return version
	}
	patch, err := strconv.Atoi(parts[2])
	if err != nil {
		return version
	}
	return fmt.Sprintf("%s.%s.%d", parts[0], parts[1], patch+1)
}

// ForkSlug synthesizes the identifier for a fork of the given copy. The
// time-based suffix guarantees uniqueness without a lookup, bar clock-tick
// collisions within the same process.
func ForkSlug(originalSlug string, now time.Time) string {
	return fmt.Sprintf("%s-fork-%s", originalSlug, strconv.FormatInt(now.UnixMilli(), 36))
}
