package db

import (
	"errors"
	"fmt"
	"time"

	"quickaccess/internal/config"
	"quickaccess/internal/model"

	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// LinkListOptions filters the paginated link listing.
type LinkListOptions struct {
	Page   int
	Limit  int
	Status string // "active", "inactive" or "" for all
	Search string // matches against the slug
}

// AuditListOptions filters the paginated audit log listing.
type AuditListOptions struct {
	Page   int
	Limit  int
	LinkID uint
	Status string
}

// Stats summarizes link and login activity for the admin dashboard.
type Stats struct {
	TotalLinks     int64 `json:"total_links"`
	ActiveLinks    int64 `json:"active_links"`
	InactiveLinks  int64 `json:"inactive_links"`
	TotalLogins    int64 `json:"total_logins"`
	LoginsToday    int64 `json:"logins_today"`
	LoginsThisWeek int64 `json:"logins_this_week"`
}

// Service defines the interface for database operations. This allows
// for mocking in tests and decouples callers from the gorm types.
type Service interface {
	// Links
	CreateLink(link *model.AccessLink) error
	GetLink(id uint) (*model.AccessLink, error)
	GetLinkBySlug(slug string) (*model.AccessLink, error)
	ListLinks(opts LinkListOptions) ([]model.AccessLink, int64, error)
	UpdateLink(link *model.AccessLink) error
	DeleteLink(id uint) error
	SetLinkActive(id uint, active bool) error
	IncrementLinkUsage(id uint) error
	SlugExists(slug string, excludeID uint) (bool, error)

	// Rate limits
	GetRateLimit(clientKey string) (*model.RateLimitRecord, error)
	ClearRateLimit(clientKey string) error
	RecordRateLimitFailure(clientKey string, maxAttempts int, window, block time.Duration) (bool, error)
	SweepRateLimits(window time.Duration) (int64, error)

	// Audit log
	AppendAuditLog(entry *model.AuditLogEntry) error
	ListAuditLogs(opts AuditListOptions) ([]model.AuditLogEntry, int64, error)
	PurgeAuditLogs(retention time.Duration) (int64, error)

	// Users
	CreateUser(user *model.User) error
	GetUser(id uint) (*model.User, error)
	ListUsers(page, limit int) ([]model.User, int64, error)

	Stats() (*Stats, error)

	GetDB() *gorm.DB
}

type gormService struct {
	db *gorm.DB
}

// NewService initializes the database connection based on the provided
// configuration and returns a Service backed by it.
func NewService(cfg config.DatabaseConfig) (Service, error) {
	var dialector gorm.Dialector
	switch cfg.Type {
	case "sqlite":
		dialector = sqlite.Open(cfg.DSN)
	case "postgres":
		dialector = postgres.Open(cfg.DSN)
	case "mysql":
		dialector = mysql.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("unsupported database type: %s", cfg.Type)
	}

	db, err := gorm.Open(dialector, &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite allows a single writer; funnel everything through one
	// connection so concurrent grants serialize instead of failing
	// with SQLITE_BUSY.
	if cfg.Type == "sqlite" {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("failed to access underlying connection: %w", err)
		}
		sqlDB.SetMaxOpenConns(1)
	}

	// Auto-migrate the schema
	err = db.AutoMigrate(
		&model.AccessLink{},
		&model.RateLimitRecord{},
		&model.AuditLogEntry{},
		&model.User{},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to auto-migrate database: %w", err)
	}

	return &gormService{db: db}, nil
}

// GetDB returns the underlying gorm handle, mainly for tests.
func (s *gormService) GetDB() *gorm.DB {
	return s.db
}

// CreateLink inserts a new access link.
func (s *gormService) CreateLink(link *model.AccessLink) error {
	if err := s.db.Create(link).Error; err != nil {
		return fmt.Errorf("failed to create link: %w", err)
	}
	return nil
}

// GetLink retrieves a link by ID. Returns (nil, nil) when not found.
func (s *gormService) GetLink(id uint) (*model.AccessLink, error) {
	var link model.AccessLink
	err := s.db.First(&link, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load link %d: %w", id, err)
	}
	return &link, nil
}

// GetLinkBySlug retrieves a link by its slug, case-insensitively.
// Returns (nil, nil) when no link matches.
func (s *gormService) GetLinkBySlug(slug string) (*model.AccessLink, error) {
	var link model.AccessLink
	err := s.db.Where("LOWER(slug) = LOWER(?)", slug).First(&link).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up slug: %w", err)
	}
	return &link, nil
}

// ListLinks returns one page of links plus the total count.
func (s *gormService) ListLinks(opts LinkListOptions) ([]model.AccessLink, int64, error) {
	if opts.Page < 1 {
		opts.Page = 1
	}
	if opts.Limit < 1 {
		opts.Limit = 20
	}

	query := s.db.Model(&model.AccessLink{})
	switch opts.Status {
	case "active":
		query = query.Where("active = ?", true)
	case "inactive":
		query = query.Where("active = ?", false)
	}
	if opts.Search != "" {
		query = query.Where("slug LIKE ?", "%"+opts.Search+"%")
	}

	var count int64
	if err := query.Count(&count).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count links: %w", err)
	}

	var links []model.AccessLink
	err := query.Order("created_at desc").
		Limit(opts.Limit).
		Offset((opts.Page - 1) * opts.Limit).
		Find(&links).Error
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list links: %w", err)
	}
	return links, count, nil
}

// UpdateLink saves the full link record.
func (s *gormService) UpdateLink(link *model.AccessLink) error {
	// Save would skip zero values with Updates; use Select to persist
	// cleared fields such as Active=false or ExpiresAt=nil.
	err := s.db.Model(link).
		Select("Slug", "UserID", "RedirectURL", "MaxUses", "ExpiresAt", "Active").
		Updates(link).Error
	if err != nil {
		return fmt.Errorf("failed to update link %d: %w", link.ID, err)
	}
	return nil
}

// DeleteLink removes a link permanently. Future slug lookups miss.
func (s *gormService) DeleteLink(id uint) error {
	result := s.db.Unscoped().Delete(&model.AccessLink{}, id)
	if result.Error != nil {
		return fmt.Errorf("failed to delete link %d: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// SetLinkActive sets the active flag to the desired state. Calling it
// twice with the same value is a no-op, not a flip.
func (s *gormService) SetLinkActive(id uint, active bool) error {
	result := s.db.Model(&model.AccessLink{}).Where("id = ?", id).Update("active", active)
	if result.Error != nil {
		return fmt.Errorf("failed to set link %d active=%t: %w", id, active, result.Error)
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// IncrementLinkUsage atomically increments the usage count for a link.
// The increment happens at the storage layer so concurrent grants for
// the same slug never lose updates.
func (s *gormService) IncrementLinkUsage(id uint) error {
	result := s.db.Model(&model.AccessLink{}).
		Where("id = ?", id).
		UpdateColumn("current_uses", gorm.Expr("current_uses + 1"))
	if result.Error != nil {
		return fmt.Errorf("failed to increment usage for link %d: %w", id, result.Error)
	}
	// It's okay if RowsAffected is 0, the link might have been deleted
	// in the meantime.
	return nil
}

// SlugExists reports whether a slug is already taken, ignoring case.
// excludeID skips one link, for uniqueness checks during updates.
func (s *gormService) SlugExists(slug string, excludeID uint) (bool, error) {
	query := s.db.Model(&model.AccessLink{}).Where("LOWER(slug) = LOWER(?)", slug)
	if excludeID > 0 {
		query = query.Where("id != ?", excludeID)
	}
	var count int64
	if err := query.Count(&count).Error; err != nil {
		return false, fmt.Errorf("failed to check slug existence: %w", err)
	}
	return count > 0, nil
}

// GetRateLimit retrieves the rate-limit record for a client key.
// Returns (nil, nil) when the client has no record.
func (s *gormService) GetRateLimit(clientKey string) (*model.RateLimitRecord, error) {
	var rec model.RateLimitRecord
	err := s.db.Where("client_key = ?", clientKey).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load rate limit record: %w", err)
	}
	return &rec, nil
}

// ClearRateLimit deletes the record for a client key. Idempotent.
func (s *gormService) ClearRateLimit(clientKey string) error {
	err := s.db.Unscoped().Where("client_key = ?", clientKey).Delete(&model.RateLimitRecord{}).Error
	if err != nil {
		return fmt.Errorf("failed to clear rate limit record: %w", err)
	}
	return nil
}

// RecordRateLimitFailure registers one failed attempt for a client and
// returns whether the client is now blocked. The read-modify-write runs
// in a single transaction with an atomic counter increment so two
// concurrent failures cannot under-count toward the block threshold.
func (s *gormService) RecordRateLimitFailure(clientKey string, maxAttempts int, window, block time.Duration) (bool, error) {
	var blocked bool
	now := time.Now()

	err := s.db.Transaction(func(tx *gorm.DB) error {
		var rec model.RateLimitRecord
		err := tx.Where("client_key = ?", clientKey).First(&rec).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			rec = model.RateLimitRecord{
				ClientKey:   clientKey,
				Attempts:    1,
				WindowStart: now,
			}
			return tx.Create(&rec).Error
		}
		if err != nil {
			return err
		}

		// A new failure after the window aged out starts a fresh window.
		if now.Sub(rec.WindowStart) >= window {
			return tx.Model(&rec).Updates(map[string]interface{}{
				"attempts":      1,
				"window_start":  now,
				"blocked_until": nil,
			}).Error
		}

		// Atomically increment the attempt count
		result := tx.Model(&model.RateLimitRecord{}).
			Where("client_key = ?", clientKey).
			UpdateColumn("attempts", gorm.Expr("attempts + 1"))
		if result.Error != nil {
			return result.Error
		}

		// Re-read to check whether the threshold was reached
		if err := tx.Where("client_key = ?", clientKey).First(&rec).Error; err != nil {
			return err
		}
		if rec.Attempts >= maxAttempts {
			until := now.Add(block)
			if err := tx.Model(&rec).Update("blocked_until", until).Error; err != nil {
				return err
			}
			blocked = true
		}
		return nil
	})

	return blocked, err
}

// SweepRateLimits garbage-collects stale trackers: records that are not
// currently blocked and whose window has aged out.
func (s *gormService) SweepRateLimits(window time.Duration) (int64, error) {
	now := time.Now()
	result := s.db.Unscoped().
		Where("(blocked_until IS NULL OR blocked_until < ?) AND window_start < ?", now, now.Add(-window)).
		Delete(&model.RateLimitRecord{})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to sweep rate limit records: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// AppendAuditLog inserts an audit entry. Entries are never mutated.
func (s *gormService) AppendAuditLog(entry *model.AuditLogEntry) error {
	if err := s.db.Create(entry).Error; err != nil {
		return fmt.Errorf("failed to append audit log entry: %w", err)
	}
	return nil
}

// ListAuditLogs returns one page of audit entries, newest first.
func (s *gormService) ListAuditLogs(opts AuditListOptions) ([]model.AuditLogEntry, int64, error) {
	if opts.Page < 1 {
		opts.Page = 1
	}
	if opts.Limit < 1 {
		opts.Limit = 50
	}

	query := s.db.Model(&model.AuditLogEntry{})
	if opts.LinkID > 0 {
		query = query.Where("link_id = ?", opts.LinkID)
	}
	if opts.Status != "" {
		query = query.Where("status = ?", opts.Status)
	}

	var count int64
	if err := query.Count(&count).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count audit log entries: %w", err)
	}

	var entries []model.AuditLogEntry
	err := query.Order("created_at desc").
		Limit(opts.Limit).
		Offset((opts.Page - 1) * opts.Limit).
		Find(&entries).Error
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list audit log entries: %w", err)
	}
	return entries, count, nil
}

// PurgeAuditLogs deletes entries older than the retention period.
func (s *gormService) PurgeAuditLogs(retention time.Duration) (int64, error) {
	cutoff := time.Now().Add(-retention)
	result := s.db.Unscoped().
		Where("created_at < ?", cutoff).
		Delete(&model.AuditLogEntry{})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to purge audit log entries: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// CreateUser inserts a new identity record.
func (s *gormService) CreateUser(user *model.User) error {
	if err := s.db.Create(user).Error; err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

// GetUser retrieves a user by ID. Returns (nil, nil) when not found.
func (s *gormService) GetUser(id uint) (*model.User, error) {
	var user model.User
	err := s.db.First(&user, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load user %d: %w", id, err)
	}
	return &user, nil
}

// ListUsers returns one page of users plus the total count.
func (s *gormService) ListUsers(page, limit int) ([]model.User, int64, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 20
	}

	var count int64
	if err := s.db.Model(&model.User{}).Count(&count).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count users: %w", err)
	}

	var users []model.User
	err := s.db.Order("id asc").Limit(limit).Offset((page - 1) * limit).Find(&users).Error
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list users: %w", err)
	}
	return users, count, nil
}

// Stats collects the dashboard counters.
func (s *gormService) Stats() (*Stats, error) {
	var stats Stats

	if err := s.db.Model(&model.AccessLink{}).Count(&stats.TotalLinks).Error; err != nil {
		return nil, fmt.Errorf("failed to count links: %w", err)
	}
	if err := s.db.Model(&model.AccessLink{}).Where("active = ?", true).Count(&stats.ActiveLinks).Error; err != nil {
		return nil, fmt.Errorf("failed to count active links: %w", err)
	}
	stats.InactiveLinks = stats.TotalLinks - stats.ActiveLinks

	success := s.db.Model(&model.AuditLogEntry{}).Where("status = ?", model.AuditStatusSuccess)
	if err := success.Count(&stats.TotalLogins).Error; err != nil {
		return nil, fmt.Errorf("failed to count logins: %w", err)
	}

	now := time.Now()
	startOfDay := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	err := s.db.Model(&model.AuditLogEntry{}).
		Where("status = ? AND created_at >= ?", model.AuditStatusSuccess, startOfDay).
		Count(&stats.LoginsToday).Error
	if err != nil {
		return nil, fmt.Errorf("failed to count logins today: %w", err)
	}

	err = s.db.Model(&model.AuditLogEntry{}).
		Where("status = ? AND created_at >= ?", model.AuditStatusSuccess, now.AddDate(0, 0, -7)).
		Count(&stats.LoginsThisWeek).Error
	if err != nil {
		return nil, fmt.Errorf("failed to count logins this week: %w", err)
	}

	return &stats, nil
}
