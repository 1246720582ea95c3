package service_test

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/mdscolour/clawfactory/internal/archive"
	"github.com/mdscolour/clawfactory/internal/domain"
	gormpersistence "github.com/mdscolour/clawfactory/internal/infra/persistence/gorm"
	"github.com/mdscolour/clawfactory/internal/infra/setup"
	"github.com/mdscolour/clawfactory/internal/repository"
	"github.com/mdscolour/clawfactory/internal/service"
)

// testServices wires the real gorm repositories against an in-memory sqlite
// database, so tests cover the SQL paths too.
type testServices struct {
	copies *service.CopyService
	forks  *service.ForkService
	social *service.SocialService

	copyRepo   repository.CopyRepository
	socialRepo repository.SocialRepository
}

// testDBCounter keeps each newTestServices call on its own in-memory
// database; a DSN keyed on t.Name() alone would alias two stores opened
// within the same test.
var testDBCounter atomic.Int64

func newTestServices(t *testing.T) *testServices {
	t.Helper()

	dsn := fmt.Sprintf("file:%s-%d?mode=memory&cache=shared", t.Name(), testDBCounter.Add(1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, setup.MigrateDB(db))

	store, err := archive.NewStore(t.TempDir())
	require.NoError(t, err)

	copyRepo := gormpersistence.NewGormCopyRepository(db)
	socialRepo := gormpersistence.NewGormSocialRepository(db)
	return &testServices{
		copies:     service.NewCopyService(copyRepo, socialRepo, store, nil),
		forks:      service.NewForkService(copyRepo),
		social:     service.NewSocialService(copyRepo, socialRepo, nil),
		copyRepo:   copyRepo,
		socialRepo: socialRepo,
	}
}

func publicInput(name string) service.CopyInput {
	return service.CopyInput{
		Name:        name,
		Description: "Reviews pull requests",
		Author:      "alice",
		Category:    "development",
		Skills:      []string{"review"},
		Files:       map[string]string{"SOUL.md": "be thorough"},
		Memory:      "remembers style guides",
		IsPublic:    true,
	}
}

func TestCopyService_Upsert_CreatesWithDefaults(t *testing.T) {
	svc := newTestServices(t)
	ctx := context.Background()

	result, err := svc.copies.Upsert(ctx, publicInput("Code Reviewer"), 1)
	require.NoError(t, err)
	assert.Equal(t, "code-reviewer", result.ID)
	assert.False(t, result.IsUpdate)
	assert.Empty(t, result.PreviousVersion)

	owner := &domain.User{ID: 1}
	c, err := svc.copies.Get(ctx, "code-reviewer", owner)
	require.NoError(t, err)
	assert.Equal(t, "Code Reviewer", c.Name)
	assert.Equal(t, "1.0.0", c.Version, "missing version defaults to 1.0.0")
	assert.Equal(t, uint(1), c.OwnerID)
	assert.Equal(t, domain.VisibilityPublic, c.Visibility)
	assert.Equal(t, "be thorough", c.Files["SOUL.md"])

	versions, err := svc.copies.Versions(ctx, "code-reviewer")
	require.NoError(t, err)
	require.Len(t, versions, 1, "creation records exactly one archive entry")
	assert.Equal(t, "1.0.0", versions[0].Version)
	assert.Equal(t, "Initial version", versions[0].Changelog)
}

func TestCopyService_Upsert_SecondUploadBumpsPatch(t *testing.T) {
	svc := newTestServices(t)
	ctx := context.Background()

	_, err := svc.copies.Upsert(ctx, publicInput("Code Reviewer"), 1)
	require.NoError(t, err)

	updated := publicInput("Code Reviewer")
	updated.Description = "Now with security checks"
	result, err := svc.copies.Upsert(ctx, updated, 1)
	require.NoError(t, err)
	assert.True(t, result.IsUpdate)
	assert.Equal(t, "1.0.0", result.PreviousVersion)

	c, err := svc.copies.Get(ctx, "code-reviewer", nil)
	require.NoError(t, err)
	assert.Equal(t, "1.0.1", c.Version, "version auto-increments when the upload omits one")
	assert.Equal(t, "Now with security checks", c.Description)

	// One row, two archive entries.
	all, err := svc.copies.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
	versions, err := svc.copies.Versions(ctx, "code-reviewer")
	require.NoError(t, err)
	assert.Len(t, versions, 2)
}

func TestCopyService_Upsert_ExplicitVersionWins(t *testing.T) {
	svc := newTestServices(t)
	ctx := context.Background()

	_, err := svc.copies.Upsert(ctx, publicInput("Code Reviewer"), 1)
	require.NoError(t, err)

	updated := publicInput("Code Reviewer")
	updated.Version = "2.0.0"
	_, err = svc.copies.Upsert(ctx, updated, 1)
	require.NoError(t, err)

	c, err := svc.copies.Get(ctx, "code-reviewer", nil)
	require.NoError(t, err)
	assert.Equal(t, "2.0.0", c.Version)
}

func TestCopyService_Upsert_RequiresAuthor(t *testing.T) {
	svc := newTestServices(t)
	ctx := context.Background()

	noAuthor := publicInput("No Author Copy")
	noAuthor.Author = ""
	_, err := svc.copies.Upsert(ctx, noAuthor, 1)
	assert.ErrorIs(t, err, service.ErrInvalidInput)

	_, err = svc.copies.Get(ctx, "no-author-copy", nil)
	assert.ErrorIs(t, err, service.ErrCopyNotFound, "rejected upload must not persist a row")
}

func TestCopyService_Upsert_IDOnlyPayloadCannotBlankFields(t *testing.T) {
	svc := newTestServices(t)
	ctx := context.Background()

	_, err := svc.copies.Upsert(ctx, publicInput("Code Reviewer"), 1)
	require.NoError(t, err)

	// A payload carrying only the id must not overwrite the stored name with
	// an empty string.
	_, err = svc.copies.Upsert(ctx, service.CopyInput{ID: "code-reviewer", Author: "alice"}, 1)
	assert.ErrorIs(t, err, service.ErrInvalidInput)

	c, err := svc.copies.Get(ctx, "code-reviewer", nil)
	require.NoError(t, err)
	assert.Equal(t, "Code Reviewer", c.Name)
	assert.Equal(t, "1.0.0", c.Version, "rejected update must not bump the version")
}

func TestCopyService_Get_PrivateIsOwnerOnly(t *testing.T) {
	svc := newTestServices(t)
	ctx := context.Background()

	input := publicInput("Secret Agent")
	input.IsPublic = false
	input.IsPrivate = true
	_, err := svc.copies.Upsert(ctx, input, 1)
	require.NoError(t, err)

	owner := &domain.User{ID: 1}
	stranger := &domain.User{ID: 2}

	_, err = svc.copies.Get(ctx, "secret-agent", owner)
	assert.NoError(t, err, "owner can read their private copy")

	_, err = svc.copies.Get(ctx, "secret-agent", stranger)
	assert.ErrorIs(t, err, service.ErrForbidden)

	_, err = svc.copies.Get(ctx, "secret-agent", nil)
	assert.ErrorIs(t, err, service.ErrForbidden, "anonymous readers are refused too")
}

func TestCopyService_UserCopies_HidesPrivateFromOthers(t *testing.T) {
	svc := newTestServices(t)
	ctx := context.Background()

	_, err := svc.copies.Upsert(ctx, publicInput("Public Agent"), 1)
	require.NoError(t, err)
	private := publicInput("Private Agent")
	private.IsPublic = false
	private.IsPrivate = true
	_, err = svc.copies.Upsert(ctx, private, 1)
	require.NoError(t, err)

	owner := &domain.User{ID: 1}
	ownerView, err := svc.copies.UserCopies(ctx, 1, owner)
	require.NoError(t, err)
	assert.Len(t, ownerView, 2, "owner sees public and private copies")

	stranger := &domain.User{ID: 2}
	strangerView, err := svc.copies.UserCopies(ctx, 1, stranger)
	require.NoError(t, err)
	require.Len(t, strangerView, 1, "strangers see public copies only")
	assert.Equal(t, "public-agent", strangerView[0].Slug)

	anonView, err := svc.copies.UserCopies(ctx, 1, nil)
	require.NoError(t, err)
	assert.Len(t, anonView, 1)
}

func TestCopyService_List_ExcludesHiddenCopies(t *testing.T) {
	svc := newTestServices(t)
	ctx := context.Background()

	_, err := svc.copies.Upsert(ctx, publicInput("Visible"), 1)
	require.NoError(t, err)

	hidden := publicInput("Hidden")
	hidden.IsPublic = false
	hidden.IsPrivate = true
	_, err = svc.copies.Upsert(ctx, hidden, 1)
	require.NoError(t, err)

	unlisted := publicInput("Quiet")
	unlisted.IsPublic = false
	_, err = svc.copies.Upsert(ctx, unlisted, 1)
	require.NoError(t, err)

	copies, err := svc.copies.List(ctx)
	require.NoError(t, err)
	require.Len(t, copies, 1)
	assert.Equal(t, "visible", copies[0].Slug)
}

func TestCopyService_PublishUnpublishCycle(t *testing.T) {
	svc := newTestServices(t)
	ctx := context.Background()

	input := publicInput("Launcher")
	input.IsPublic = false
	_, err := svc.copies.Upsert(ctx, input, 1)
	require.NoError(t, err)

	// Before publication the marketplace is empty.
	listed, err := svc.copies.Marketplace(ctx, "", "", 0)
	require.NoError(t, err)
	assert.Empty(t, listed)

	require.NoError(t, svc.copies.Publish(ctx, "launcher", 1))
	listed, err = svc.copies.Marketplace(ctx, "", "", 0)
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.NotNil(t, listed[0].PublishedAt)

	// Only the owner can change visibility.
	assert.ErrorIs(t, svc.copies.Publish(ctx, "launcher", 2), service.ErrForbidden)

	require.NoError(t, svc.copies.Unpublish(ctx, "launcher", 1))
	c, err := svc.copies.Get(ctx, "launcher", nil)
	require.NoError(t, err, "unpublished copies stay fetchable by slug")
	assert.Equal(t, domain.VisibilityUnlisted, c.Visibility)
}

func TestForkService_Fork(t *testing.T) {
	svc := newTestServices(t)
	ctx := context.Background()

	_, err := svc.copies.Upsert(ctx, publicInput("Code Reviewer"), 1)
	require.NoError(t, err)

	fork, err := svc.forks.Fork(ctx, "code-reviewer", 2)
	require.NoError(t, err)

	assert.Contains(t, fork.Slug, "code-reviewer-fork-")
	assert.Equal(t, "Code Reviewer (Fork)", fork.Name)
	assert.Equal(t, uint(2), fork.OwnerID)
	assert.Equal(t, domain.VisibilityPrivate, fork.Visibility, "forks start private")
	assert.Equal(t, "code-reviewer", fork.ForkedFrom)
	assert.Equal(t, "development", fork.Category)
	assert.Empty(t, fork.Files, "fork copies metadata, not the file snapshot")
	assert.Empty(t, fork.Memory)

	forks, err := svc.forks.ForksOf(ctx, "code-reviewer")
	require.NoError(t, err)
	require.Len(t, forks, 1)
	assert.Equal(t, fork.Slug, forks[0].Slug)

	mine, err := svc.forks.ForksByUser(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, mine, 1)
}

func TestForkService_Fork_MissingOriginal(t *testing.T) {
	svc := newTestServices(t)

	_, err := svc.forks.Fork(context.Background(), "no-such-copy", 2)
	assert.ErrorIs(t, err, service.ErrCopyNotFound)
}

func TestCopyService_ExportImportRoundTrip(t *testing.T) {
	source := newTestServices(t)
	ctx := context.Background()

	_, err := source.copies.Upsert(ctx, publicInput("Code Reviewer"), 1)
	require.NoError(t, err)

	bundle, err := source.copies.Export(ctx)
	require.NoError(t, err)
	assert.Equal(t, "1.0", bundle.Version)
	require.Len(t, bundle.Copies, 1)

	rows := make([]service.ImportCopy, 0, len(bundle.Copies))
	for _, c := range bundle.Copies {
		rows = append(rows, service.ImportCopy{
			ID:          c.Slug,
			OwnerID:     c.OwnerID,
			Name:        c.Name,
			Description: c.Description,
			Author:      c.Author,
			Version:     c.Version,
			Category:    c.Category,
			Files:       c.Files,
			Memory:      c.Memory,
			Visibility:  c.Visibility,
		})
	}

	target := newTestServices(t)
	imported, err := target.copies.Import(ctx, rows, false)
	require.NoError(t, err)
	assert.Equal(t, 1, imported)

	c, err := target.copies.Get(ctx, "code-reviewer", nil)
	require.NoError(t, err)
	assert.Equal(t, "Code Reviewer", c.Name)

	// A second import without overwrite skips the existing row.
	imported, err = target.copies.Import(ctx, rows, false)
	require.NoError(t, err)
	assert.Equal(t, 0, imported)
}

func TestCopyService_Import_OverwriteReplacesRow(t *testing.T) {
	svc := newTestServices(t)
	ctx := context.Background()

	_, err := svc.copies.Upsert(ctx, publicInput("Code Reviewer"), 1)
	require.NoError(t, err)

	rows := []service.ImportCopy{{
		ID:         "code-reviewer",
		OwnerID:    1,
		Name:       "Code Reviewer",
		Author:     "alice",
		Version:    "3.0.0",
		Visibility: domain.VisibilityPublic,
	}}
	imported, err := svc.copies.Import(ctx, rows, true)
	require.NoError(t, err)
	assert.Equal(t, 1, imported)

	c, err := svc.copies.Get(ctx, "code-reviewer", nil)
	require.NoError(t, err)
	assert.Equal(t, "3.0.0", c.Version)
}

func TestCopyService_AppendVersionMovesPointer(t *testing.T) {
	svc := newTestServices(t)
	ctx := context.Background()

	_, err := svc.copies.Upsert(ctx, publicInput("Code Reviewer"), 1)
	require.NoError(t, err)

	err = svc.copies.AppendVersion(ctx, "code-reviewer", "1.1.0", "adds security pass", map[string]string{"note": "manual"}, 1)
	require.NoError(t, err)

	c, err := svc.copies.Get(ctx, "code-reviewer", nil)
	require.NoError(t, err)
	assert.Equal(t, "1.1.0", c.Version)

	versions, err := svc.copies.Versions(ctx, "code-reviewer")
	require.NoError(t, err)
	assert.Len(t, versions, 2)
	assert.Equal(t, "1.1.0", versions[0].Version, "newest entry first")
}

func TestCopyService_Search(t *testing.T) {
	svc := newTestServices(t)
	ctx := context.Background()

	_, err := svc.copies.Upsert(ctx, publicInput("Code Reviewer"), 1)
	require.NoError(t, err)
	other := publicInput("Data Analyst")
	other.Category = "data-analysis"
	other.Description = "Crunches numbers"
	_, err = svc.copies.Upsert(ctx, other, 1)
	require.NoError(t, err)

	hits, err := svc.copies.Search(ctx, "reviewer", "", "")
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "code-reviewer", hits[0].Slug)

	hits, err = svc.copies.Search(ctx, "", "data-analysis", "")
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "data-analyst", hits[0].Slug)

	hits, err = svc.copies.Search(ctx, "", "all", "")
	require.NoError(t, err)
	assert.Len(t, hits, 2, `category "all" matches everything`)
}
