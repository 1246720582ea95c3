package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/mdscolour/clawfactory/internal/archive"
	handlers "github.com/mdscolour/clawfactory/internal/handler/http"
	gormpersistence "github.com/mdscolour/clawfactory/internal/infra/persistence/gorm"
	"github.com/mdscolour/clawfactory/internal/infra/setup"
	"github.com/mdscolour/clawfactory/internal/middleware"
	"github.com/mdscolour/clawfactory/internal/service"
)

type nopLimiter struct{}

func (nopLimiter) TooMany(context.Context, string) (bool, error) { return false, nil }
func (nopLimiter) RecordFailure(context.Context, string) error   { return nil }
func (nopLimiter) Reset(context.Context, string) error           { return nil }

// newTestRouter builds the copy routes against an in-memory database, exactly
// as the application wires them.
func newTestRouter(t *testing.T) (*gin.Engine, *service.AuthService) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, setup.MigrateDB(db))

	store, err := archive.NewStore(t.TempDir())
	require.NoError(t, err)

	userRepo := gormpersistence.NewGormUserRepository(db)
	copyRepo := gormpersistence.NewGormCopyRepository(db)
	socialRepo := gormpersistence.NewGormSocialRepository(db)

	authService := service.NewAuthService(userRepo, nopLimiter{})
	copyService := service.NewCopyService(copyRepo, socialRepo, store, nil)
	forkService := service.NewForkService(copyRepo)
	socialService := service.NewSocialService(copyRepo, socialRepo, nil)

	authHandler := handlers.NewAuthHandler(authService)
	copyHandler := handlers.NewCopyHandler(copyService, forkService, socialService)
	socialHandler := handlers.NewSocialHandler(socialService)

	router := gin.New()
	api := router.Group("/api")
	api.Use(middleware.OptionalAuth(authService))
	{
		api.POST("/auth/register", authHandler.Register)
		api.POST("/auth/login", authHandler.Login)
		api.GET("/copies", copyHandler.List)
		api.POST("/copies", copyHandler.Upsert)
		api.GET("/copies/:id", copyHandler.Get)
		api.GET("/copies/:id/private", copyHandler.GetPrivate)
		api.POST("/copies/:id/rate", socialHandler.Rate)
		api.POST("/copies/:id/star", socialHandler.Star)
		api.GET("/users/:id/copies", copyHandler.UserCopies)
	}
	return router, authService
}

func doJSON(t *testing.T, router *gin.Engine, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func registerUser(t *testing.T, auth *service.AuthService, username string) string {
	t.Helper()
	_, token, err := auth.Register(context.Background(), username, "password123", username+"@example.com")
	require.NoError(t, err)
	return token
}

func uploadCopy(t *testing.T, router *gin.Engine, token, name string, private bool) string {
	t.Helper()
	w := doJSON(t, router, http.MethodPost, "/api/copies", token, map[string]interface{}{
		"name":       name,
		"author":     "alice",
		"category":   "development",
		"files":      map[string]string{"SOUL.md": "content"},
		"is_public":  !private,
		"is_private": private,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp.ID
}

func TestCopyRoutes_PrivateCopiesHiddenFromOthers(t *testing.T) {
	router, auth := newTestRouter(t)
	ownerToken := registerUser(t, auth, "alice")
	strangerToken := registerUser(t, auth, "bob")

	publicID := uploadCopy(t, router, ownerToken, "Public Agent", false)
	privateID := uploadCopy(t, router, ownerToken, "Private Agent", true)

	// The public listing carries only the public copy.
	w := doJSON(t, router, http.MethodGet, "/api/copies", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var listing []map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &listing))
	require.Len(t, listing, 1)
	assert.Equal(t, publicID, listing[0]["id"])
	assert.EqualValues(t, 1, listing[0]["is_public"])
	assert.EqualValues(t, 0, listing[0]["is_private"])

	// Owner listing: the token reveals both copies; strangers and anonymous
	// callers get the public one only.
	w = doJSON(t, router, http.MethodGet, "/api/users/1/copies", ownerToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &listing))
	assert.Len(t, listing, 2)

	w = doJSON(t, router, http.MethodGet, "/api/users/1/copies", strangerToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &listing))
	assert.Len(t, listing, 1)

	w = doJSON(t, router, http.MethodGet, "/api/users/1/copies", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &listing))
	assert.Len(t, listing, 1)

	// Direct fetch of the private copy follows the same rule.
	w = doJSON(t, router, http.MethodGet, "/api/copies/"+privateID, ownerToken, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	w = doJSON(t, router, http.MethodGet, "/api/copies/"+privateID, strangerToken, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	w = doJSON(t, router, http.MethodGet, "/api/copies/"+privateID, "", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestCopyRoutes_GetReturnsSnapshotAndSocialData(t *testing.T) {
	router, auth := newTestRouter(t)
	token := registerUser(t, auth, "alice")
	id := uploadCopy(t, router, token, "Code Reviewer", false)

	w := doJSON(t, router, http.MethodPost, "/api/copies/"+id+"/rate", token, map[string]interface{}{"rating": 5})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = doJSON(t, router, http.MethodGet, "/api/copies/"+id, "", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Copy struct {
			ID      string            `json:"id"`
			Files   map[string]string `json:"files"`
			Version string            `json:"version"`
		} `json:"copy"`
		Comments     []interface{} `json:"comments"`
		Ratings      []interface{} `json:"ratings"`
		Contributors []interface{} `json:"contributors"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, id, resp.Copy.ID)
	assert.Equal(t, "1.0.0", resp.Copy.Version)
	assert.Equal(t, "content", resp.Copy.Files["SOUL.md"])
	assert.Len(t, resp.Ratings, 1)
	assert.Len(t, resp.Contributors, 1)
}

func TestCopyRoutes_UpsertRequiresName(t *testing.T) {
	router, auth := newTestRouter(t)
	token := registerUser(t, auth, "alice")

	w := doJSON(t, router, http.MethodPost, "/api/copies", token, map[string]interface{}{
		"description": "no name at all",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCopyRoutes_UpsertRequiresAuthor(t *testing.T) {
	router, auth := newTestRouter(t)
	token := registerUser(t, auth, "alice")

	w := doJSON(t, router, http.MethodPost, "/api/copies", token, map[string]interface{}{
		"name":      "No Author Copy",
		"is_public": true,
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// Nothing was persisted by the rejected upload.
	w = doJSON(t, router, http.MethodGet, "/api/copies/no-author-copy", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCopyRoutes_GetPrivateRefusesNonOwner(t *testing.T) {
	router, auth := newTestRouter(t)
	ownerToken := registerUser(t, auth, "alice")
	strangerToken := registerUser(t, auth, "bob")
	id := uploadCopy(t, router, ownerToken, "Public Agent", false)

	// Even a public copy is owner-only through the private endpoint.
	w := doJSON(t, router, http.MethodGet, "/api/copies/"+id+"/private", ownerToken, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	w = doJSON(t, router, http.MethodGet, "/api/copies/"+id+"/private", strangerToken, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestCopyRoutes_UnknownCopyIs404(t *testing.T) {
	router, _ := newTestRouter(t)

	w := doJSON(t, router, http.MethodGet, "/api/copies/no-such-copy", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
