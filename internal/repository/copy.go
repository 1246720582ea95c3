package repository

import (
	"context"

	"github.com/mdscolour/clawfactory/internal/domain"
)

// Sort orders accepted by listing queries.
const (
	SortDefault = ""
	SortPopular = "popular"
	SortRating  = "rating"
	SortRecent  = "recent"
)

// ListQuery narrows public listing and search results.
type ListQuery struct {
	Search        string // substring match on name/description/skills
	Category      string // empty or "all" matches every category
	Sort          string // one of the Sort constants
	Limit         int    // 0 means no limit
	PublishedOnly bool   // restrict to copies with a published_at timestamp
}

// CategoryCount is one row of the category aggregation.
type CategoryCount struct {
	Category string `json:"category"`
	Count    int64  `json:"count"`
}

// CopyRepository defines storage operations for copies and the append-only
// records hanging off them. The multi-row writers (CreateWithHistory,
// UpdateWithHistory, CreateFork) run inside a single transaction so a crash
// cannot leave an orphaned copy or a lost version archive.
type CopyRepository interface {
	FindBySlug(ctx context.Context, slug string) (*domain.Copy, error)

	// ListPublic returns public copies matching the query. Private and
	// unlisted copies are never included, regardless of caller.
	ListPublic(ctx context.Context, q ListQuery) ([]domain.Copy, error)

	// ListByOwner returns a user's copies, newest first. When includeHidden
	// is false only public copies are returned.
	ListByOwner(ctx context.Context, ownerID uint, includeHidden bool) ([]domain.Copy, error)

	// ListAll returns every copy; used by the export endpoint.
	ListAll(ctx context.Context) ([]domain.Copy, error)

	CategoryCounts(ctx context.Context) ([]CategoryCount, error)

	// Featured returns the top-rated public copies with at least one rating.
	Featured(ctx context.Context, limit int) ([]domain.Copy, error)

	// CreateWithHistory inserts a new copy together with its version-1
	// archive, contributor row and change entry.
	CreateWithHistory(ctx context.Context, c *domain.Copy, entry *domain.VersionEntry, change *domain.ChangeEntry) error

	// UpdateWithHistory archives the pre-update state and overwrites the copy
	// row in place.
	UpdateWithHistory(ctx context.Context, c *domain.Copy, entry *domain.VersionEntry, change *domain.ChangeEntry) error

	// CreateFork inserts a forked copy and its lineage record.
	CreateFork(ctx context.Context, c *domain.Copy, record *domain.ForkRecord, change *domain.ChangeEntry) error

	// SetVisibility flips a copy's visibility (publish/unpublish) and records
	// the change.
	SetVisibility(ctx context.Context, slug, visibility string, change *domain.ChangeEntry) error

	// IncrementInstall bumps the install counter and returns the new value.
	IncrementInstall(ctx context.Context, slug string) (int, error)

	// Save persists field updates on an existing copy row (aggregates,
	// archive flag). Not for the upsert path.
	Save(ctx context.Context, c *domain.Copy) error

	// Upsert inserts or replaces a copy row keyed by slug; used by import.
	Upsert(ctx context.Context, c *domain.Copy) error

	AppendVersion(ctx context.Context, entry *domain.VersionEntry) error
	VersionsForCopy(ctx context.Context, copyID uint) ([]domain.VersionEntry, error)
	ChangesForCopy(ctx context.Context, copyID uint) ([]domain.ChangeEntry, error)
	ContributorsForCopy(ctx context.Context, copyID uint) ([]domain.Contributor, error)

	// ForksOf returns the copies forked from the given slug, newest first.
	ForksOf(ctx context.Context, originalSlug string) ([]domain.Copy, error)
	// ForksByUser returns the copies a user created by forking.
	ForksByUser(ctx context.Context, userID uint) ([]domain.Copy, error)
}
