package http

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/mdscolour/clawfactory/internal/middleware"
	"github.com/mdscolour/clawfactory/internal/service"
)

// SocialHandler covers ratings, comments, stars and install tracking.
type SocialHandler struct {
	socialService *service.SocialService
}

func NewSocialHandler(socialService *service.SocialService) *SocialHandler {
	if socialService == nil {
		panic("SocialService cannot be nil for SocialHandler")
	}
	return &SocialHandler{socialService: socialService}
}

type rateRequest struct {
	Rating int  `json:"rating" binding:"required"`
	UserID uint `json:"user_id"`
}

// Rate serves POST /api/copies/:id/rate.
func (h *SocialHandler) Rate(c *gin.Context) {
	var req rateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input: rating required"})
		return
	}
	average, count, err := h.socialService.SubmitRating(c.Request.Context(), c.Param("id"), actingUserID(c, req.UserID), req.Rating)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "average": average, "count": count})
}

type commentRequest struct {
	Author string `json:"author"`
	Text   string `json:"text" binding:"required"`
	UserID uint   `json:"user_id"`
}

// Comment serves POST /api/copies/:id/comments.
func (h *SocialHandler) Comment(c *gin.Context) {
	var req commentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input: text required"})
		return
	}
	comment, err := h.socialService.AddComment(c.Request.Context(), c.Param("id"), req.Author, req.Text, actingUserID(c, req.UserID))
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "id": comment.ID})
}

// Install serves POST /api/copies/:id/install.
func (h *SocialHandler) Install(c *gin.Context) {
	count, err := h.socialService.TrackInstall(c.Request.Context(), c.Param("id"))
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "install_count": count})
}

type starRequest struct {
	Action string `json:"action"`
	UserID uint   `json:"user_id"`
}

// Star serves POST /api/copies/:id/star with an explicit star/unstar action.
func (h *SocialHandler) Star(c *gin.Context) {
	var req starRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input"})
		return
	}
	count, err := h.socialService.ToggleStar(c.Request.Context(), c.Param("id"), actingUserID(c, req.UserID), req.Action)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "stars": count})
}

// Stars serves GET /api/copies/:id/stars with the caller's star status.
func (h *SocialHandler) Stars(c *gin.Context) {
	var userID uint
	if user := middleware.UserFromContext(c); user != nil {
		userID = user.ID
	} else if q := c.Query("user_id"); q != "" {
		if parsed, err := strconv.ParseUint(q, 10, 64); err == nil {
			userID = uint(parsed)
		}
	}
	count, starred, err := h.socialService.StarStatus(c.Request.Context(), c.Param("id"), userID)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"stars": count, "isStarred": starred})
}

// UserStars serves GET /api/users/:id/stars: the user's starred copies.
func (h *SocialHandler) UserStars(c *gin.Context) {
	userID, err := parseUserID(c)
	if err != nil {
		return
	}
	copies, svcErr := h.socialService.StarredCopies(c.Request.Context(), userID)
	if svcErr != nil {
		HandleServiceError(c, svcErr)
		return
	}
	c.JSON(http.StatusOK, NewCopyList(copies))
}
