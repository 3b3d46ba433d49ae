package admin

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"quickaccess/internal/config"
	"quickaccess/internal/db"
	"quickaccess/internal/model"
	"quickaccess/internal/slug"

	"github.com/gin-gonic/gin"
)

// Handler serves the admin CRUD endpoints for links, users and logs.
type Handler struct {
	db         db.Service
	logger     *slog.Logger
	conflicts  slug.ConflictChecker
	slugLength int
}

// NewHandler creates the admin handler.
func NewHandler(dbService db.Service, cfg *config.Config, logger *slog.Logger) *Handler {
	return &Handler{
		db:         dbService,
		logger:     logger.With("component", "admin"),
		conflicts:  slug.NewReservedList(cfg.Links.ReservedPaths),
		slugLength: cfg.Links.SlugLength,
	}
}

// CreateLinkRequest is the payload for creating an access link. An
// empty slug requests a generated one.
type CreateLinkRequest struct {
	Slug        string `json:"slug"`
	UserID      uint   `json:"user_id" binding:"required"`
	RedirectURL string `json:"redirect_url"`
	MaxUses     int    `json:"max_uses"`
	ExpiresAt   string `json:"expires_at"`
	Active      *bool  `json:"active"`
}

// UpdateLinkRequest carries a partial link update. Nil fields are left
// untouched.
type UpdateLinkRequest struct {
	Slug        *string `json:"slug"`
	UserID      *uint   `json:"user_id"`
	RedirectURL *string `json:"redirect_url"`
	MaxUses     *int    `json:"max_uses"`
	ExpiresAt   *string `json:"expires_at"`
	Active      *bool   `json:"active"`
}

// SetActiveRequest carries the DESIRED activation state. Repeating the
// call with the same value is idempotent; there is no "flip" endpoint.
type SetActiveRequest struct {
	Active *bool `json:"active" binding:"required"`
}

// CreateUserRequest is the payload for creating an identity record.
type CreateUserRequest struct {
	Username    string `json:"username" binding:"required"`
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
}

func parseID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid ID"})
		return 0, false
	}
	return uint(id), true
}

func parseExpiry(value string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// checkSlug validates a proposed slug: shape, reserved-path conflicts
// and case-insensitive uniqueness. Returns an error message or "".
func (h *Handler) checkSlug(s string, excludeID uint) string {
	if !slug.Valid(s) {
		return "Invalid slug"
	}
	if h.conflicts.Conflicts(s) {
		return "Slug conflicts with a reserved path"
	}
	exists, err := h.db.SlugExists(s, excludeID)
	if err != nil {
		h.logger.Error("Failed to check slug uniqueness", "error", err)
		return "Database error"
	}
	if exists {
		return "Slug already exists"
	}
	return ""
}

// generateSlug draws random slugs until one is free of collisions.
func (h *Handler) generateSlug() (string, error) {
	for {
		s, err := slug.Generate(h.slugLength)
		if err != nil {
			return "", err
		}
		if h.conflicts.Conflicts(s) {
			continue
		}
		exists, err := h.db.SlugExists(s, 0)
		if err != nil {
			return "", err
		}
		if !exists {
			return s, nil
		}
	}
}

func (h *Handler) CreateLinkHandler(c *gin.Context) {
	var req CreateLinkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	user, err := h.db.GetUser(req.UserID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}
	if user == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "User not found"})
		return
	}

	if req.Slug == "" {
		req.Slug, err = h.generateSlug()
		if err != nil {
			h.logger.Error("Failed to generate slug", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate slug"})
			return
		}
	} else if msg := h.checkSlug(req.Slug, 0); msg != "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": msg})
		return
	}

	expiresAt, err := parseExpiry(req.ExpiresAt)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid expires_at, use RFC3339"})
		return
	}

	link := &model.AccessLink{
		Slug:        req.Slug,
		UserID:      req.UserID,
		RedirectURL: req.RedirectURL,
		MaxUses:     req.MaxUses,
		ExpiresAt:   expiresAt,
		Active:      req.Active == nil || *req.Active,
	}
	if err := h.db.CreateLink(link); err != nil {
		h.logger.Error("Failed to create link", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create link"})
		return
	}

	c.JSON(http.StatusCreated, link)
}

func (h *Handler) ListLinksHandler(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

	links, total, err := h.db.ListLinks(db.LinkListOptions{
		Page:   page,
		Limit:  limit,
		Status: c.Query("status"),
		Search: c.Query("search"),
	})
	if err != nil {
		h.logger.Error("Failed to list links", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list links"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"links": links, "total": total})
}

func (h *Handler) GetLinkHandler(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	link, err := h.db.GetLink(id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}
	if link == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Link not found"})
		return
	}
	c.JSON(http.StatusOK, link)
}

func (h *Handler) UpdateLinkHandler(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	link, err := h.db.GetLink(id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}
	if link == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Link not found"})
		return
	}

	var req UpdateLinkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	// A slug change re-validates uniqueness and namespace conflicts.
	if req.Slug != nil && *req.Slug != link.Slug {
		if msg := h.checkSlug(*req.Slug, link.ID); msg != "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": msg})
			return
		}
		link.Slug = *req.Slug
	}
	if req.UserID != nil {
		user, err := h.db.GetUser(*req.UserID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
			return
		}
		if user == nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "User not found"})
			return
		}
		link.UserID = *req.UserID
	}
	if req.RedirectURL != nil {
		link.RedirectURL = *req.RedirectURL
	}
	if req.MaxUses != nil {
		link.MaxUses = *req.MaxUses
	}
	if req.ExpiresAt != nil {
		expiresAt, err := parseExpiry(*req.ExpiresAt)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid expires_at, use RFC3339"})
			return
		}
		link.ExpiresAt = expiresAt
	}
	if req.Active != nil {
		link.Active = *req.Active
	}

	if err := h.db.UpdateLink(link); err != nil {
		h.logger.Error("Failed to update link", "id", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update link"})
		return
	}

	c.JSON(http.StatusOK, link)
}

func (h *Handler) DeleteLinkHandler(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	if err := h.db.DeleteLink(id); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Link not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Link deleted"})
}

func (h *Handler) SetLinkActiveHandler(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var req SetActiveRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Active == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body, desired active state required"})
		return
	}
	if err := h.db.SetLinkActive(id, *req.Active); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Link not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": id, "active": *req.Active})
}

func (h *Handler) ListLogsHandler(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	linkID, _ := strconv.ParseUint(c.Query("link_id"), 10, 32)

	entries, total, err := h.db.ListAuditLogs(db.AuditListOptions{
		Page:   page,
		Limit:  limit,
		LinkID: uint(linkID),
		Status: c.Query("status"),
	})
	if err != nil {
		h.logger.Error("Failed to list audit logs", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list logs"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"logs": entries, "total": total})
}

func (h *Handler) StatsHandler(c *gin.Context) {
	stats, err := h.db.Stats()
	if err != nil {
		h.logger.Error("Failed to collect stats", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to collect stats"})
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (h *Handler) CreateUserHandler(c *gin.Context) {
	var req CreateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	user := &model.User{
		Username:    req.Username,
		Email:       req.Email,
		DisplayName: req.DisplayName,
	}
	if err := h.db.CreateUser(user); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create user"})
		return
	}
	c.JSON(http.StatusCreated, user)
}

func (h *Handler) ListUsersHandler(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

	users, total, err := h.db.ListUsers(page, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list users"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"users": users, "total": total})
}

func (h *Handler) GetUserHandler(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	user, err := h.db.GetUser(id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}
	if user == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		return
	}
	c.JSON(http.StatusOK, user)
}
