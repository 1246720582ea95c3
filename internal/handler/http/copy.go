package http

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/mdscolour/clawfactory/internal/middleware"
	"github.com/mdscolour/clawfactory/internal/service"
)

// CopyHandler covers the copy lifecycle, listings, marketplace publication,
// version history and backup.
type CopyHandler struct {
	copyService   *service.CopyService
	forkService   *service.ForkService
	socialService *service.SocialService
}

func NewCopyHandler(copyService *service.CopyService, forkService *service.ForkService, socialService *service.SocialService) *CopyHandler {
	if copyService == nil {
		panic("CopyService cannot be nil for CopyHandler")
	}
	if forkService == nil {
		panic("ForkService cannot be nil for CopyHandler")
	}
	if socialService == nil {
		panic("SocialService cannot be nil for CopyHandler")
	}
	return &CopyHandler{copyService: copyService, forkService: forkService, socialService: socialService}
}

// actingUserID resolves the caller identity: the bearer token wins, otherwise
// the legacy user_id body field is honored.
func actingUserID(c *gin.Context, bodyUserID uint) uint {
	if user := middleware.UserFromContext(c); user != nil {
		return user.ID
	}
	return bodyUserID
}

// List serves GET /api/copies: every public copy, best rated first.
func (h *CopyHandler) List(c *gin.Context) {
	copies, err := h.copyService.List(c.Request.Context())
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, NewCopyList(copies))
}

// Get serves GET /api/copies/:id with the full snapshot, comments and
// ratings. Private copies are owner-only.
func (h *CopyHandler) Get(c *gin.Context) {
	slug := c.Param("id")
	viewer := middleware.UserFromContext(c)

	copy, err := h.copyService.Get(c.Request.Context(), slug, viewer)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	comments, err := h.socialService.Comments(c.Request.Context(), slug)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	ratings, err := h.socialService.Ratings(c.Request.Context(), slug)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	contributors, err := h.copyService.Contributors(c.Request.Context(), slug)
	if err != nil {
		HandleServiceError(c, err)
		return
	}

	resp := NewCopyResponse(copy).withSnapshot(copy)
	c.JSON(http.StatusOK, gin.H{
		"copy":         resp,
		"comments":     comments,
		"ratings":      ratings,
		"contributors": contributors,
	})
}

// GetPrivate serves GET /api/copies/:id/private: the owner-only fetch.
func (h *CopyHandler) GetPrivate(c *gin.Context) {
	slug := c.Param("id")
	viewer := middleware.UserFromContext(c)

	copy, err := h.copyService.GetPrivate(c.Request.Context(), slug, viewer)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, NewCopyResponse(copy).withSnapshot(copy))
}

type upsertRequest struct {
	service.CopyInput
	UserID uint `json:"user_id"`
}

// Upsert serves POST /api/copies: create on a fresh slug, archive-and-update
// on an existing one.
func (h *CopyHandler) Upsert(c *gin.Context) {
	var req upsertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logrus.WithError(err).Warn("Handler.Upsert: invalid input format")
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input", "details": err.Error()})
		return
	}

	result, err := h.copyService.Upsert(c.Request.Context(), req.CopyInput, actingUserID(c, req.UserID))
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":         true,
		"id":              result.ID,
		"isUpdate":        result.IsUpdate,
		"previousVersion": result.PreviousVersion,
	})
}

// Archive serves GET /api/copies/:id/archive: the uploaded tar.gz bundle.
func (h *CopyHandler) Archive(c *gin.Context) {
	slug := c.Param("id")
	viewer := middleware.UserFromContext(c)

	path, err := h.copyService.ArchivePath(c.Request.Context(), slug, viewer)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	c.Header("Content-Disposition", "attachment; filename="+slug+".tar.gz")
	c.File(path)
}

// Search serves GET /api/search with q, category and sort parameters.
func (h *CopyHandler) Search(c *gin.Context) {
	copies, err := h.copyService.Search(c.Request.Context(), c.Query("q"), c.Query("category"), c.Query("sort"))
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, NewCopyList(copies))
}

// Categories serves GET /api/categories: public category counts.
func (h *CopyHandler) Categories(c *gin.Context) {
	counts, err := h.copyService.Categories(c.Request.Context())
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, counts)
}

// Featured serves GET /api/featured from the worker-maintained cache.
func (h *CopyHandler) Featured(c *gin.Context) {
	copies, err := h.copyService.Featured(c.Request.Context())
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, NewCopyList(copies))
}

// Marketplace serves GET /api/marketplace: published copies only.
func (h *CopyHandler) Marketplace(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))
	copies, err := h.copyService.Marketplace(c.Request.Context(), c.Query("sort"), c.Query("category"), limit)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, NewCopyList(copies))
}

type publishRequest struct {
	CopyID string `json:"copy_id" binding:"required"`
	UserID uint   `json:"user_id"`
}

// Publish serves POST /api/marketplace/publish.
func (h *CopyHandler) Publish(c *gin.Context) {
	var req publishRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input: copy_id required"})
		return
	}
	if err := h.copyService.Publish(c.Request.Context(), req.CopyID, actingUserID(c, req.UserID)); err != nil {
		HandleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Published to marketplace"})
}

// Unpublish serves POST /api/marketplace/unpublish.
func (h *CopyHandler) Unpublish(c *gin.Context) {
	var req publishRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input: copy_id required"})
		return
	}
	if err := h.copyService.Unpublish(c.Request.Context(), req.CopyID, actingUserID(c, req.UserID)); err != nil {
		HandleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Removed from marketplace"})
}

// UserCopies serves GET /api/users/:id/copies. The owner's token reveals
// private copies; everyone else sees public only.
func (h *CopyHandler) UserCopies(c *gin.Context) {
	ownerID, err := parseUserID(c)
	if err != nil {
		return
	}
	copies, svcErr := h.copyService.UserCopies(c.Request.Context(), ownerID, middleware.UserFromContext(c))
	if svcErr != nil {
		HandleServiceError(c, svcErr)
		return
	}
	c.JSON(http.StatusOK, NewCopyList(copies))
}

// MarketplaceUser serves GET /api/marketplace/user/:id: a user's public
// copies.
func (h *CopyHandler) MarketplaceUser(c *gin.Context) {
	ownerID, err := parseUserID(c)
	if err != nil {
		return
	}
	copies, svcErr := h.copyService.UserCopies(c.Request.Context(), ownerID, nil)
	if svcErr != nil {
		HandleServiceError(c, svcErr)
		return
	}
	c.JSON(http.StatusOK, NewCopyList(copies))
}

type forkRequest struct {
	UserID uint `json:"user_id"`
}

// Fork serves POST /api/copies/:id/fork.
func (h *CopyHandler) Fork(c *gin.Context) {
	var req forkRequest
	_ = c.ShouldBindJSON(&req)

	originalSlug := c.Param("id")
	fork, err := h.forkService.Fork(c.Request.Context(), originalSlug, actingUserID(c, req.UserID))
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"id":         fork.Slug,
		"originalId": originalSlug,
	})
}

// ForksOf serves GET /api/copies/:id/forks.
func (h *CopyHandler) ForksOf(c *gin.Context) {
	copies, err := h.forkService.ForksOf(c.Request.Context(), c.Param("id"))
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, NewCopyList(copies))
}

// UserForks serves GET /api/users/:id/forks.
func (h *CopyHandler) UserForks(c *gin.Context) {
	userID, err := parseUserID(c)
	if err != nil {
		return
	}
	copies, svcErr := h.forkService.ForksByUser(c.Request.Context(), userID)
	if svcErr != nil {
		HandleServiceError(c, svcErr)
		return
	}
	c.JSON(http.StatusOK, NewCopyList(copies))
}

// Versions serves GET /api/copies/:id/versions.
func (h *CopyHandler) Versions(c *gin.Context) {
	entries, err := h.copyService.Versions(c.Request.Context(), c.Param("id"))
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	type versionPayload struct {
		ID        uint   `json:"id"`
		Version   string `json:"version"`
		Changelog string `json:"changelog,omitempty"`
		CreatedAt string `json:"created_at"`
	}
	out := make([]versionPayload, 0, len(entries))
	for _, e := range entries {
		out = append(out, versionPayload{
			ID:        e.ID,
			Version:   e.Version,
			Changelog: e.Changelog,
			CreatedAt: e.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	c.JSON(http.StatusOK, out)
}

type appendVersionRequest struct {
	Version   string      `json:"version" binding:"required"`
	Changelog string      `json:"changelog"`
	Data      interface{} `json:"data"`
	UserID    uint        `json:"user_id"`
}

// AppendVersion serves POST /api/copies/:id/versions.
func (h *CopyHandler) AppendVersion(c *gin.Context) {
	var req appendVersionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input: version required"})
		return
	}
	slug := c.Param("id")
	err := h.copyService.AppendVersion(c.Request.Context(), slug, req.Version, req.Changelog, req.Data, actingUserID(c, req.UserID))
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "version": req.Version})
}

// Changes serves GET /api/copies/:id/changes: the audit trail.
func (h *CopyHandler) Changes(c *gin.Context) {
	entries, err := h.copyService.Changes(c.Request.Context(), c.Param("id"))
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, entries)
}

// Export serves GET /api/export: the full backup bundle.
func (h *CopyHandler) Export(c *gin.Context) {
	bundle, err := h.copyService.Export(c.Request.Context())
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, bundle)
}

type importRequest struct {
	Copies    []service.ImportCopy `json:"copies"`
	Overwrite bool                 `json:"overwrite"`
}

// Import serves POST /api/import.
func (h *CopyHandler) Import(c *gin.Context) {
	var req importRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input", "details": err.Error()})
		return
	}
	imported, err := h.copyService.Import(c.Request.Context(), req.Copies, req.Overwrite)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "imported": imported})
}

func parseUserID(c *gin.Context) (uint, error) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid user id"})
		return 0, err
	}
	return uint(id), nil
}
