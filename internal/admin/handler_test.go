package admin

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"quickaccess/internal/config"
	"quickaccess/internal/db"
	"quickaccess/internal/logger"
	"quickaccess/internal/model"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

const adminPassword = "test-password"

func setupRouter(t *testing.T) (*gin.Engine, db.Service) {
	gin.SetMode(gin.TestMode)

	service, err := db.NewService(config.DatabaseConfig{Type: "sqlite", DSN: "file::memory:"})
	if err != nil {
		t.Fatalf("Failed to create test db service: %v", err)
	}

	cfg := &config.Config{
		Admin: config.AdminConfig{Password: adminPassword},
		Links: config.LinksConfig{
			SlugLength:    12,
			ReservedPaths: []string{"admin", "healthz"},
		},
	}

	router := gin.New()
	SetupRoutes(router, service, cfg, logger.New(false))
	return router, service
}

func doRequest(router *gin.Engine, method, path string, body interface{}, authed bool) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if authed {
		req.SetBasicAuth("admin", adminPassword)
	}
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func createUser(t *testing.T, service db.Service) *model.User {
	user := &model.User{Username: "alice"}
	assert.NoError(t, service.CreateUser(user))
	return user
}

func TestAdminRequiresAuth(t *testing.T) {
	router, _ := setupRouter(t)

	rr := doRequest(router, http.MethodGet, "/admin/links", nil, false)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	req := httptest.NewRequest(http.MethodGet, "/admin/links", nil)
	req.SetBasicAuth("admin", "wrong-password")
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = doRequest(router, http.MethodGet, "/admin/links", nil, true)
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestCreateLink(t *testing.T) {
	router, service := setupRouter(t)
	user := createUser(t, service)

	rr := doRequest(router, http.MethodPost, "/admin/links", CreateLinkRequest{
		Slug:    "welcome",
		UserID:  user.ID,
		MaxUses: 3,
	}, true)
	assert.Equal(t, http.StatusCreated, rr.Code)

	link, err := service.GetLinkBySlug("welcome")
	assert.NoError(t, err)
	assert.NotNil(t, link)
	assert.True(t, link.Active)
	assert.Equal(t, 3, link.MaxUses)
}

func TestCreateLinkGeneratesSlug(t *testing.T) {
	router, service := setupRouter(t)
	user := createUser(t, service)

	rr := doRequest(router, http.MethodPost, "/admin/links", CreateLinkRequest{UserID: user.ID}, true)
	assert.Equal(t, http.StatusCreated, rr.Code)

	var link model.AccessLink
	assert.NoError(t, json.Unmarshal(rr.Body.Bytes(), &link))
	assert.Len(t, link.Slug, 12)
}

func TestCreateLinkRejectsBadInput(t *testing.T) {
	router, service := setupRouter(t)
	user := createUser(t, service)

	// Unknown user
	rr := doRequest(router, http.MethodPost, "/admin/links", CreateLinkRequest{Slug: "x1", UserID: 999}, true)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	// Reserved path
	rr = doRequest(router, http.MethodPost, "/admin/links", CreateLinkRequest{Slug: "Admin", UserID: user.ID}, true)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "reserved")

	// Nested slug
	rr = doRequest(router, http.MethodPost, "/admin/links", CreateLinkRequest{Slug: "a/b", UserID: user.ID}, true)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	// Bad expiry format
	rr = doRequest(router, http.MethodPost, "/admin/links", CreateLinkRequest{
		Slug: "x2", UserID: user.ID, ExpiresAt: "tomorrow",
	}, true)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestCreateLinkRejectsDuplicateSlugIgnoringCase(t *testing.T) {
	router, service := setupRouter(t)
	user := createUser(t, service)

	rr := doRequest(router, http.MethodPost, "/admin/links", CreateLinkRequest{Slug: "Demo", UserID: user.ID}, true)
	assert.Equal(t, http.StatusCreated, rr.Code)

	rr = doRequest(router, http.MethodPost, "/admin/links", CreateLinkRequest{Slug: "demo", UserID: user.ID}, true)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "already exists")
}

func TestUpdateLink(t *testing.T) {
	router, service := setupRouter(t)
	user := createUser(t, service)

	link := &model.AccessLink{Slug: "before", UserID: user.ID, Active: true}
	assert.NoError(t, service.CreateLink(link))

	newSlug := "after"
	maxUses := 5
	rr := doRequest(router, http.MethodPut, fmt.Sprintf("/admin/links/%d", link.ID), UpdateLinkRequest{
		Slug:    &newSlug,
		MaxUses: &maxUses,
	}, true)
	assert.Equal(t, http.StatusOK, rr.Code)

	loaded, _ := service.GetLink(link.ID)
	assert.Equal(t, "after", loaded.Slug)
	assert.Equal(t, 5, loaded.MaxUses)

	// Slug updates re-validate conflicts.
	reserved := "admin"
	rr = doRequest(router, http.MethodPut, fmt.Sprintf("/admin/links/%d", link.ID), UpdateLinkRequest{Slug: &reserved}, true)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = doRequest(router, http.MethodPut, "/admin/links/999", UpdateLinkRequest{}, true)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestDeleteLink(t *testing.T) {
	router, service := setupRouter(t)
	user := createUser(t, service)

	link := &model.AccessLink{Slug: "gone", UserID: user.ID, Active: true}
	assert.NoError(t, service.CreateLink(link))

	rr := doRequest(router, http.MethodDelete, fmt.Sprintf("/admin/links/%d", link.ID), nil, true)
	assert.Equal(t, http.StatusOK, rr.Code)

	loaded, _ := service.GetLink(link.ID)
	assert.Nil(t, loaded)

	rr = doRequest(router, http.MethodDelete, fmt.Sprintf("/admin/links/%d", link.ID), nil, true)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestSetLinkActiveTakesDesiredState(t *testing.T) {
	router, service := setupRouter(t)
	user := createUser(t, service)

	link := &model.AccessLink{Slug: "switch", UserID: user.ID, Active: true}
	assert.NoError(t, service.CreateLink(link))

	off := false
	path := fmt.Sprintf("/admin/links/%d/active", link.ID)

	rr := doRequest(router, http.MethodPatch, path, SetActiveRequest{Active: &off}, true)
	assert.Equal(t, http.StatusOK, rr.Code)
	loaded, _ := service.GetLink(link.ID)
	assert.False(t, loaded.Active)

	// Repeating the same desired state does not flip it back.
	rr = doRequest(router, http.MethodPatch, path, SetActiveRequest{Active: &off}, true)
	assert.Equal(t, http.StatusOK, rr.Code)
	loaded, _ = service.GetLink(link.ID)
	assert.False(t, loaded.Active)

	// Missing desired state is rejected rather than interpreted as a flip.
	rr = doRequest(router, http.MethodPatch, path, map[string]string{}, true)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestListLogs(t *testing.T) {
	router, service := setupRouter(t)

	linkID := uint(7)
	service.GetDB().Create(&model.AuditLogEntry{LinkID: &linkID, ClientKey: "1.1.1.1", Status: model.AuditStatusSuccess})
	service.GetDB().Create(&model.AuditLogEntry{ClientKey: "2.2.2.2", Status: model.AuditStatusDenied})

	rr := doRequest(router, http.MethodGet, "/admin/logs", nil, true)
	assert.Equal(t, http.StatusOK, rr.Code)

	var resp struct {
		Logs  []model.AuditLogEntry `json:"logs"`
		Total int64                 `json:"total"`
	}
	assert.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.EqualValues(t, 2, resp.Total)

	rr = doRequest(router, http.MethodGet, "/admin/logs?status=denied", nil, true)
	assert.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.EqualValues(t, 1, resp.Total)

	rr = doRequest(router, http.MethodGet, "/admin/logs?link_id=7", nil, true)
	assert.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.EqualValues(t, 1, resp.Total)
}

func TestStats(t *testing.T) {
	router, service := setupRouter(t)
	user := createUser(t, service)
	assert.NoError(t, service.CreateLink(&model.AccessLink{Slug: "a", UserID: user.ID, Active: true}))

	rr := doRequest(router, http.MethodGet, "/admin/stats", nil, true)
	assert.Equal(t, http.StatusOK, rr.Code)

	var stats db.Stats
	assert.NoError(t, json.Unmarshal(rr.Body.Bytes(), &stats))
	assert.EqualValues(t, 1, stats.TotalLinks)
	assert.EqualValues(t, 1, stats.ActiveLinks)
}

func TestUserEndpoints(t *testing.T) {
	router, _ := setupRouter(t)

	rr := doRequest(router, http.MethodPost, "/admin/users", CreateUserRequest{
		Username: "bob", Email: "bob@example.com",
	}, true)
	assert.Equal(t, http.StatusCreated, rr.Code)

	var user model.User
	assert.NoError(t, json.Unmarshal(rr.Body.Bytes(), &user))
	assert.NotZero(t, user.ID)

	rr = doRequest(router, http.MethodGet, fmt.Sprintf("/admin/users/%d", user.ID), nil, true)
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = doRequest(router, http.MethodGet, "/admin/users/999", nil, true)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = doRequest(router, http.MethodGet, "/admin/users", nil, true)
	assert.Equal(t, http.StatusOK, rr.Code)

	// Missing required username
	rr = doRequest(router, http.MethodPost, "/admin/users", map[string]string{"email": "x@example.com"}, true)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}
