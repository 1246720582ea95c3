// Package http exposes the REST surface.
package http

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mdscolour/clawfactory/internal/domain"
)

func ErrorResponse(c *gin.Context, code int, message string) {
	c.JSON(code, gin.H{"error": message})
}

func SuccessResponse(c *gin.Context, code int, data interface{}) {
	c.JSON(code, data)
}

// CopyResponse is the wire shape of a copy. The stored visibility enum is
// flattened back into the is_public/is_private flag pair clients expect.
type CopyResponse struct {
	ID            string            `json:"id"`
	UserID        uint              `json:"user_id"`
	Name          string            `json:"name"`
	Description   string            `json:"description"`
	Author        string            `json:"author"`
	Version       string            `json:"version"`
	Category      string            `json:"category"`
	ModelTag      string            `json:"model_tag,omitempty"`
	Skills        []string          `json:"skills"`
	Tags          []string          `json:"tags"`
	Features      []string          `json:"features"`
	Files         map[string]string `json:"files,omitempty"`
	Memory        string            `json:"memory,omitempty"`
	HasArchive    bool              `json:"has_archive"`
	RatingAverage float64           `json:"rating_average"`
	RatingCount   int               `json:"rating_count"`
	InstallCount  int               `json:"install_count"`
	IsPublic      int               `json:"is_public"`
	IsPrivate     int               `json:"is_private"`
	Visibility    string            `json:"visibility"`
	PublishedAt   *time.Time        `json:"published_at,omitempty"`
	ForkedFrom    string            `json:"forked_from,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
}

// NewCopyResponse builds the listing shape: snapshot files and memory are
// omitted. Use withSnapshot for the detail endpoint.
func NewCopyResponse(c *domain.Copy) CopyResponse {
	resp := CopyResponse{
		ID:            c.Slug,
		UserID:        c.OwnerID,
		Name:          c.Name,
		Description:   c.Description,
		Author:        c.Author,
		Version:       c.Version,
		Category:      c.Category,
		ModelTag:      c.ModelTag,
		Skills:        c.Skills,
		Tags:          c.Tags,
		Features:      c.Features,
		HasArchive:    c.HasArchive,
		RatingAverage: c.RatingAverage,
		RatingCount:   c.RatingCount,
		InstallCount:  c.InstallCount,
		Visibility:    c.Visibility,
		PublishedAt:   c.PublishedAt,
		ForkedFrom:    c.ForkedFrom,
		CreatedAt:     c.CreatedAt,
		UpdatedAt:     c.UpdatedAt,
	}
	if resp.Skills == nil {
		resp.Skills = []string{}
	}
	if resp.Tags == nil {
		resp.Tags = []string{}
	}
	if resp.Features == nil {
		resp.Features = []string{}
	}
	if c.IsPublic() {
		resp.IsPublic = 1
	}
	if c.IsPrivate() {
		resp.IsPrivate = 1
	}
	return resp
}

func (r CopyResponse) withSnapshot(c *domain.Copy) CopyResponse {
	r.Files = c.Files
	if r.Files == nil {
		r.Files = map[string]string{}
	}
	r.Memory = c.Memory
	return r
}

func NewCopyList(copies []domain.Copy) []CopyResponse {
	out := make([]CopyResponse, 0, len(copies))
	for i := range copies {
		out = append(out, NewCopyResponse(&copies[i]))
	}
	return out
}
