package service

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"

	"github.com/mdscolour/clawfactory/internal/archive"
	"github.com/mdscolour/clawfactory/internal/domain"
	"github.com/mdscolour/clawfactory/internal/repository"
)

// FeaturedCacheKey is where the background worker parks the ranked listing.
const FeaturedCacheKey = "cf:featured"

// FeaturedLimit is the number of copies on the featured shelf.
const FeaturedLimit = 4

// CopyInput is the wire-level payload of an upload. The same shape serves
// create and update; the slug decides which path runs.
type CopyInput struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Description string            `json:"description"`
	Author      string            `json:"author"`
	Version     string            `json:"version"`
	Category    string            `json:"category"`
	ModelTag    string            `json:"model_tag"`
	Skills      []string          `json:"skills"`
	Tags        []string          `json:"tags"`
	Features    []string          `json:"features"`
	Files       map[string]string `json:"files"`
	Memory      string            `json:"memory"`
	Archive     string            `json:"archive"` // base64 tar.gz
	IsPublic    bool              `json:"is_public"`
	IsPrivate   bool              `json:"is_private"`
}

// UpsertResult mirrors the original upload response.
type UpsertResult struct {
	ID              string `json:"id"`
	IsUpdate        bool   `json:"isUpdate"`
	PreviousVersion string `json:"previousVersion,omitempty"`
}

// ExportBundle is the full-database backup served by the export endpoint.
type ExportBundle struct {
	ExportedAt time.Time        `json:"exportedAt"`
	Version    string           `json:"version"`
	Copies     []domain.Copy    `json:"copies"`
	Comments   []domain.Comment `json:"comments"`
	Ratings    []domain.Rating  `json:"ratings"`
}

// CopyService owns the copy lifecycle: upload reconciliation, reads behind
// the visibility guard, listings, publication and backup.
type CopyService struct {
	copies   repository.CopyRepository
	social   repository.SocialRepository
	archives *archive.Store
	cache    *redis.Client // nil disables the featured cache
}

func NewCopyService(copies repository.CopyRepository, social repository.SocialRepository, archives *archive.Store, cache *redis.Client) *CopyService {
	if copies == nil {
		panic("CopyRepository cannot be nil for CopyService")
	}
	if social == nil {
		panic("SocialRepository cannot be nil for CopyService")
	}
	if archives == nil {
		panic("archive store cannot be nil for CopyService")
	}
	return &CopyService{copies: copies, social: social, archives: archives, cache: cache}
}

// Upsert reconciles an upload against the store. A new slug inserts the copy
// with its version-1 archive; an existing slug archives the prior row and
// overwrites it in place. Repeating the same upload converges on the same
// stored state (modulo the version counter).
func (s *CopyService) Upsert(ctx context.Context, input CopyInput, userID uint) (*UpsertResult, error) {
	if input.Name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	if input.Author == "" {
		return nil, fmt.Errorf("%w: author is required", ErrInvalidInput)
	}
	slug := input.ID
	if slug == "" {
		slug = domain.Slugify(input.Name)
	}
	logCtx := logrus.WithFields(logrus.Fields{"slug": slug, "user_id": userID})

	var archiveData []byte
	if input.Archive != "" {
		var err error
		archiveData, err = base64.StdEncoding.DecodeString(input.Archive)
		if err != nil {
			return nil, fmt.Errorf("%w: archive is not valid base64", ErrInvalidInput)
		}
	}

	existing, err := s.copies.FindBySlug(ctx, slug)
	if err != nil && !errors.Is(err, repository.ErrCopyNotFound) {
		logCtx.WithError(err).Error("Lookup failed during upsert")
		return nil, ErrInternalServer
	}

	if existing == nil {
		if err := s.create(ctx, slug, input, userID, archiveData != nil); err != nil {
			return nil, err
		}
		if err := s.writeArchive(logCtx, slug, archiveData); err != nil {
			return nil, err
		}
		logCtx.Info("Copy created")
		return &UpsertResult{ID: slug, IsUpdate: false}, nil
	}

	previousVersion := existing.Version
	if err := s.update(ctx, existing, input, userID, archiveData != nil); err != nil {
		return nil, err
	}
	if err := s.writeArchive(logCtx, slug, archiveData); err != nil {
		return nil, err
	}
	logCtx.WithField("previous_version", previousVersion).Info("Copy updated")
	return &UpsertResult{ID: slug, IsUpdate: true, PreviousVersion: previousVersion}, nil
}

func (s *CopyService) create(ctx context.Context, slug string, input CopyInput, userID uint, hasArchive bool) error {
	version := input.Version
	if version == "" {
		version = "1.0.0"
	}
	c := &domain.Copy{
		Slug:        slug,
		OwnerID:     userID,
		Name:        input.Name,
		Description: input.Description,
		Author:      input.Author,
		Version:     version,
		Category:    input.Category,
		ModelTag:    input.ModelTag,
		Skills:      input.Skills,
		Tags:        input.Tags,
		Features:    input.Features,
		Files:       input.Files,
		Memory:      input.Memory,
		HasArchive:  hasArchive,
		Visibility:  domain.ResolveVisibility(input.IsPublic, input.IsPrivate),
	}
	entry, err := domain.NewVersionEntry(c, "Initial version", input.Author)
	if err != nil {
		return ErrInternalServer
	}
	change := &domain.ChangeEntry{UserID: userID, Kind: domain.ChangeCreate, Note: "version " + version}
	if err := s.copies.CreateWithHistory(ctx, c, entry, change); err != nil {
		if errors.Is(err, repository.ErrDuplicateEntry) {
			// Raced with a concurrent upload of the same name.
			return fmt.Errorf("%w: copy %q already exists", ErrInvalidInput, slug)
		}
		logrus.WithError(err).WithField("slug", slug).Error("Database error creating copy")
		return ErrInternalServer
	}
	return nil
}

func (s *CopyService) update(ctx context.Context, existing *domain.Copy, input CopyInput, userID uint, hasArchive bool) error {
	// Archive the pre-update row before any field changes.
	entry, err := domain.NewVersionEntry(existing, "", input.Author)
	if err != nil {
		return ErrInternalServer
	}

	version := input.Version
	if version == "" {
		version = domain.NextPatchVersion(existing.Version)
	}
	existing.Name = input.Name
	existing.Description = input.Description
	existing.Author = input.Author
	existing.Version = version
	existing.Category = input.Category
	existing.ModelTag = input.ModelTag
	existing.Skills = input.Skills
	existing.Tags = input.Tags
	existing.Features = input.Features
	existing.Files = input.Files
	existing.Memory = input.Memory
	existing.Visibility = domain.ResolveVisibility(input.IsPublic, input.IsPrivate)
	if hasArchive {
		existing.HasArchive = true
	}

	change := &domain.ChangeEntry{UserID: userID, Kind: domain.ChangeUpdate, Note: "version " + version}
	if err := s.copies.UpdateWithHistory(ctx, existing, entry, change); err != nil {
		logrus.WithError(err).WithField("slug", existing.Slug).Error("Database error updating copy")
		return ErrInternalServer
	}
	return nil
}

func (s *CopyService) writeArchive(logCtx *logrus.Entry, slug string, data []byte) error {
	if data == nil {
		return nil
	}
	if err := s.archives.Save(slug, data); err != nil {
		logCtx.WithError(err).Error("Failed to write archive bundle")
		return ErrInternalServer
	}
	return nil
}

// Get fetches a copy by slug. A private copy is returned only to its owner.
func (s *CopyService) Get(ctx context.Context, slug string, viewer *domain.User) (*domain.Copy, error) {
	c, err := s.find(ctx, slug)
	if err != nil {
		return nil, err
	}
	if c.IsPrivate() && (viewer == nil || viewer.ID != c.OwnerID) {
		return nil, ErrForbidden
	}
	return c, nil
}

// GetPrivate is the owner-only fetch: any non-owner caller is refused, even
// for a public copy.
func (s *CopyService) GetPrivate(ctx context.Context, slug string, viewer *domain.User) (*domain.Copy, error) {
	c, err := s.find(ctx, slug)
	if err != nil {
		return nil, err
	}
	if viewer == nil || viewer.ID != c.OwnerID {
		return nil, ErrForbidden
	}
	return c, nil
}

func (s *CopyService) find(ctx context.Context, slug string) (*domain.Copy, error) {
	c, err := s.copies.FindBySlug(ctx, slug)
	if err != nil {
		if errors.Is(err, repository.ErrCopyNotFound) {
			return nil, ErrCopyNotFound
		}
		logrus.WithError(err).WithField("slug", slug).Error("Database error fetching copy")
		return nil, ErrInternalServer
	}
	return c, nil
}

// ArchivePath returns the on-disk bundle path for a copy, or ErrCopyNotFound
// when no bundle was ever uploaded.
func (s *CopyService) ArchivePath(ctx context.Context, slug string, viewer *domain.User) (string, error) {
	c, err := s.Get(ctx, slug, viewer)
	if err != nil {
		return "", err
	}
	if !c.HasArchive || !s.archives.Exists(slug) {
		return "", ErrCopyNotFound
	}
	return s.archives.Path(slug), nil
}

// List returns all public copies, best rated first.
func (s *CopyService) List(ctx context.Context) ([]domain.Copy, error) {
	return s.listPublic(ctx, repository.ListQuery{})
}

// Search filters public copies by substring, category and sort order.
func (s *CopyService) Search(ctx context.Context, q, category, sort string) ([]domain.Copy, error) {
	if sort == "" {
		sort = repository.SortRating
	}
	return s.listPublic(ctx, repository.ListQuery{Search: q, Category: category, Sort: sort})
}

// Marketplace lists published public copies (those with a publish timestamp).
func (s *CopyService) Marketplace(ctx context.Context, sort, category string, limit int) ([]domain.Copy, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.listPublic(ctx, repository.ListQuery{
		Category:      category,
		Sort:          sort,
		Limit:         limit,
		PublishedOnly: true,
	})
}

func (s *CopyService) listPublic(ctx context.Context, q repository.ListQuery) ([]domain.Copy, error) {
	copies, err := s.copies.ListPublic(ctx, q)
	if err != nil {
		logrus.WithError(err).Error("Database error listing copies")
		return nil, ErrInternalServer
	}
	return copies, nil
}

// UserCopies lists a user's copies. The owner sees everything; everyone else
// sees public copies only.
func (s *CopyService) UserCopies(ctx context.Context, ownerID uint, viewer *domain.User) ([]domain.Copy, error) {
	isOwner := viewer != nil && viewer.ID == ownerID
	copies, err := s.copies.ListByOwner(ctx, ownerID, isOwner)
	if err != nil {
		logrus.WithError(err).WithField("owner_id", ownerID).Error("Database error listing user copies")
		return nil, ErrInternalServer
	}
	return copies, nil
}

// Categories returns the public category counts.
func (s *CopyService) Categories(ctx context.Context) ([]repository.CategoryCount, error) {
	counts, err := s.copies.CategoryCounts(ctx)
	if err != nil {
		logrus.WithError(err).Error("Database error aggregating categories")
		return nil, ErrInternalServer
	}
	return counts, nil
}

// Featured serves the worker-maintained cache when present, falling back to a
// live ranking query.
func (s *CopyService) Featured(ctx context.Context) ([]domain.Copy, error) {
	if s.cache != nil {
		raw, err := s.cache.Get(ctx, FeaturedCacheKey).Result()
		if err == nil {
			var copies []domain.Copy
			if jsonErr := json.Unmarshal([]byte(raw), &copies); jsonErr == nil {
				return copies, nil
			}
			logrus.Warn("Discarding malformed featured cache entry")
		} else if err != redis.Nil {
			logrus.WithError(err).Warn("Featured cache read failed, querying database")
		}
	}
	copies, err := s.copies.Featured(ctx, FeaturedLimit)
	if err != nil {
		logrus.WithError(err).Error("Database error ranking featured copies")
		return nil, ErrInternalServer
	}
	return copies, nil
}

// Publish makes an owned copy public and stamps its publication time.
func (s *CopyService) Publish(ctx context.Context, slug string, userID uint) error {
	return s.setVisibility(ctx, slug, userID, domain.VisibilityPublic, domain.ChangePublish)
}

// Unpublish pulls a copy off the marketplace. The copy stays fetchable by
// slug (unlisted) rather than turning private.
func (s *CopyService) Unpublish(ctx context.Context, slug string, userID uint) error {
	return s.setVisibility(ctx, slug, userID, domain.VisibilityUnlisted, domain.ChangeUnpublish)
}

func (s *CopyService) setVisibility(ctx context.Context, slug string, userID uint, visibility, kind string) error {
	c, err := s.find(ctx, slug)
	if err != nil {
		return err
	}
	if c.OwnerID != userID {
		return ErrForbidden
	}
	change := &domain.ChangeEntry{UserID: userID, Kind: kind}
	if err := s.copies.SetVisibility(ctx, slug, visibility, change); err != nil {
		if errors.Is(err, repository.ErrCopyNotFound) {
			return ErrCopyNotFound
		}
		logrus.WithError(err).WithField("slug", slug).Error("Database error changing visibility")
		return ErrInternalServer
	}
	return nil
}

// Export dumps every copy, comment and rating for backup.
func (s *CopyService) Export(ctx context.Context) (*ExportBundle, error) {
	copies, err := s.copies.ListAll(ctx)
	if err != nil {
		logrus.WithError(err).Error("Database error exporting copies")
		return nil, ErrInternalServer
	}
	comments, err := s.social.AllComments(ctx)
	if err != nil {
		logrus.WithError(err).Error("Database error exporting comments")
		return nil, ErrInternalServer
	}
	ratings, err := s.social.AllRatings(ctx)
	if err != nil {
		logrus.WithError(err).Error("Database error exporting ratings")
		return nil, ErrInternalServer
	}
	return &ExportBundle{
		ExportedAt: time.Now(),
		Version:    "1.0",
		Copies:     copies,
		Comments:   comments,
		Ratings:    ratings,
	}, nil
}

// ImportCopy is one row of an import payload.
type ImportCopy struct {
	ID            string            `json:"id"`
	OwnerID       uint              `json:"owner_id"`
	Name          string            `json:"name"`
	Description   string            `json:"description"`
	Author        string            `json:"author"`
	Version       string            `json:"version"`
	Category      string            `json:"category"`
	ModelTag      string            `json:"model_tag"`
	Skills        []string          `json:"skills"`
	Tags          []string          `json:"tags"`
	Features      []string          `json:"features"`
	Files         map[string]string `json:"files"`
	Memory        string            `json:"memory"`
	RatingAverage float64           `json:"rating_average"`
	RatingCount   int               `json:"rating_count"`
	InstallCount  int               `json:"install_count"`
	Visibility    string            `json:"visibility"`
}

// Import restores copies from a backup. Existing slugs are skipped unless
// overwrite is set; a row that fails to import is logged and skipped, never
// aborting the batch.
func (s *CopyService) Import(ctx context.Context, rows []ImportCopy, overwrite bool) (int, error) {
	imported := 0
	for _, row := range rows {
		slug := row.ID
		if slug == "" {
			slug = domain.Slugify(row.Name)
		}
		if slug == "" {
			continue
		}
		logCtx := logrus.WithField("slug", slug)

		existing, err := s.copies.FindBySlug(ctx, slug)
		if err != nil && !errors.Is(err, repository.ErrCopyNotFound) {
			logCtx.WithError(err).Error("Lookup failed during import")
			return imported, ErrInternalServer
		}
		if existing != nil && !overwrite {
			continue
		}

		visibility := row.Visibility
		if visibility == "" {
			visibility = domain.VisibilityPublic
		}
		version := row.Version
		if version == "" {
			version = "1.0.0"
		}
		c := &domain.Copy{
			Slug:          slug,
			OwnerID:       row.OwnerID,
			Name:          row.Name,
			Description:   row.Description,
			Author:        row.Author,
			Version:       version,
			Category:      row.Category,
			ModelTag:      row.ModelTag,
			Skills:        row.Skills,
			Tags:          row.Tags,
			Features:      row.Features,
			Files:         row.Files,
			Memory:        row.Memory,
			RatingAverage: row.RatingAverage,
			RatingCount:   row.RatingCount,
			InstallCount:  row.InstallCount,
			Visibility:    visibility,
		}
		if existing != nil {
			c.ID = existing.ID
			c.CreatedAt = existing.CreatedAt
		}
		if err := s.copies.Upsert(ctx, c); err != nil {
			logCtx.WithError(err).Error("Error importing copy")
			continue
		}
		imported++
	}
	return imported, nil
}

// Versions returns a copy's archive history, newest first.
func (s *CopyService) Versions(ctx context.Context, slug string) ([]domain.VersionEntry, error) {
	c, err := s.find(ctx, slug)
	if err != nil {
		return nil, err
	}
	entries, err := s.copies.VersionsForCopy(ctx, c.ID)
	if err != nil {
		logrus.WithError(err).WithField("slug", slug).Error("Database error listing versions")
		return nil, ErrInternalServer
	}
	return entries, nil
}

// AppendVersion records an explicit version entry and moves the copy's
// version pointer to it.
func (s *CopyService) AppendVersion(ctx context.Context, slug, version, changelog string, data interface{}, userID uint) error {
	if version == "" {
		return fmt.Errorf("%w: version is required", ErrInvalidInput)
	}
	c, err := s.find(ctx, slug)
	if err != nil {
		return err
	}
	serialized, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("%w: version data is not serializable", ErrInvalidInput)
	}
	entry := &domain.VersionEntry{
		CopyID:    c.ID,
		Version:   version,
		Data:      string(serialized),
		Changelog: changelog,
	}
	if err := s.copies.AppendVersion(ctx, entry); err != nil {
		logrus.WithError(err).WithField("slug", slug).Error("Database error appending version")
		return ErrInternalServer
	}
	c.Version = version
	if err := s.copies.Save(ctx, c); err != nil {
		logrus.WithError(err).WithField("slug", slug).Error("Database error moving version pointer")
		return ErrInternalServer
	}
	return nil
}

// Changes returns the audit trail for a copy, newest first.
func (s *CopyService) Changes(ctx context.Context, slug string) ([]domain.ChangeEntry, error) {
	c, err := s.find(ctx, slug)
	if err != nil {
		return nil, err
	}
	entries, err := s.copies.ChangesForCopy(ctx, c.ID)
	if err != nil {
		logrus.WithError(err).WithField("slug", slug).Error("Database error listing changes")
		return nil, ErrInternalServer
	}
	return entries, nil
}

// Contributors returns the author labels that have uploaded to a copy.
func (s *CopyService) Contributors(ctx context.Context, slug string) ([]domain.Contributor, error) {
	c, err := s.find(ctx, slug)
	if err != nil {
		return nil, err
	}
	contribs, err := s.copies.ContributorsForCopy(ctx, c.ID)
	if err != nil {
		logrus.WithError(err).WithField("slug", slug).Error("Database error listing contributors")
		return nil, ErrInternalServer
	}
	return contribs, nil
}
