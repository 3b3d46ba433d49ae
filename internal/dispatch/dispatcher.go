// Package dispatch is the front door of the access-link engine. For
// every unmatched request it extracts a slug candidate, consults the
// rate limiter and the validator, and either grants a session and
// redirects or renders a denial.
package dispatch

import (
	"fmt"
	"log/slog"
	"math"
	"net"
	"net/http"
	"strings"
	"time"

	"quickaccess/internal/access"
	"quickaccess/internal/audit"
	"quickaccess/internal/config"
	"quickaccess/internal/db"
	"quickaccess/internal/model"
	"quickaccess/internal/ratelimit"
	"quickaccess/internal/slug"

	"github.com/gin-gonic/gin"
)

// SessionManager is the session/identity provider the dispatcher calls
// into. It never implements session storage itself.
type SessionManager interface {
	Establish(c *gin.Context, userID uint) error
	Current(c *gin.Context) (uint, bool)
	Invalidate(c *gin.Context)
}

// ErrorRenderer turns a denial into a response. The default renders
// JSON; hosts can plug in their own presentation.
type ErrorRenderer func(c *gin.Context, status int, reason access.Reason, message string)

// Dispatcher wires the link store, rate limiter, validator, audit log
// and session provider into the per-request state machine.
type Dispatcher struct {
	db              db.Service
	validator       *access.Validator
	limiter         *ratelimit.Limiter
	audit           *audit.Recorder
	sessions        SessionManager
	reserved        slug.ConflictChecker
	logger          *slog.Logger
	render          ErrorRenderer
	defaultRedirect string
	trustedHeaders  []string
}

// NewDispatcher constructs the dispatcher. All collaborators are
// passed in explicitly; there is no ambient registry.
func NewDispatcher(
	dbService db.Service,
	validator *access.Validator,
	limiter *ratelimit.Limiter,
	recorder *audit.Recorder,
	sessions SessionManager,
	cfg config.LinksConfig,
	logger *slog.Logger,
) *Dispatcher {
	return &Dispatcher{
		db:              dbService,
		validator:       validator,
		limiter:         limiter,
		audit:           recorder,
		sessions:        sessions,
		reserved:        slug.NewReservedList(cfg.ReservedPaths),
		logger:          logger.With("component", "dispatch"),
		render:          jsonRenderer(cfg.ExposeReasons),
		defaultRedirect: cfg.DefaultRedirect,
		trustedHeaders:  cfg.TrustedProxyHeaders,
	}
}

// SetRenderer replaces the default error renderer.
func (d *Dispatcher) SetRenderer(r ErrorRenderer) {
	d.render = r
}

func jsonRenderer(exposeReasons bool) ErrorRenderer {
	return func(c *gin.Context, status int, reason access.Reason, message string) {
		body := gin.H{"error": message}
		if exposeReasons {
			body["reason"] = string(reason)
		}
		c.JSON(status, body)
	}
}

// Handler returns the gin handler implementing the dispatch state
// machine. It is installed as the NoRoute handler so registered routes
// are never shadowed by the link namespace.
func (d *Dispatcher) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		// EXTRACT: a slug candidate is a single non-reserved path
		// segment. Anything else passes through untouched.
		candidate, ok := slug.Extract(c.Request.URL.Path)
		if !ok || d.reserved.Conflicts(candidate) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
			return
		}

		now := time.Now()

		// LOOKUP
		link, err := d.db.GetLinkBySlug(candidate)
		if err != nil {
			// Fail closed: an unreadable store yields a generic denial,
			// never a grant.
			d.logger.Error("Link store unreadable", "slug", candidate, "error", err)
			d.render(c, http.StatusForbidden, access.ReasonStorageFailure, access.ReasonStorageFailure.Message())
			return
		}
		if link == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
			return
		}

		clientKey := d.ClientKey(c.Request)
		userAgent := c.Request.UserAgent()

		// CHECK_RATE_LIMIT: blocked clients short-circuit before the
		// validator runs, even for links that would otherwise be valid.
		if d.limiter.IsBlocked(clientKey, now) {
			remaining := d.limiter.TimeRemaining(clientKey, now)
			minutes := int(math.Ceil(remaining.Minutes()))
			if minutes < 1 {
				minutes = 1
			}
			d.audit.Record(&link.ID, nil, clientKey, userAgent, model.AuditStatusInvalid, "Rate limited")
			message := fmt.Sprintf("Too many attempts. Please try again in %d minutes.", minutes)
			d.render(c, http.StatusForbidden, access.ReasonRateLimited, message)
			return
		}

		// VALIDATE
		decision := d.validator.Validate(link, now)
		if decision.Reason == access.ReasonStorageFailure {
			d.logger.Error("Identity store unreadable", "slug", candidate, "error", decision.Err)
			d.render(c, http.StatusForbidden, access.ReasonStorageFailure, access.ReasonStorageFailure.Message())
			return
		}
		if !decision.Valid {
			d.limiter.RecordAttempt(clientKey, false)
			d.audit.Record(&link.ID, nil, clientKey, userAgent, model.AuditStatusDenied, decision.Reason.Message())
			d.render(c, http.StatusForbidden, decision.Reason, decision.Reason.Message())
			return
		}

		// GRANT
		d.grant(c, link, decision.User, clientKey, userAgent)
	}
}

// grant establishes the session, accounts the use and redirects. Side
// effects happen only here, after the full validation decision.
func (d *Dispatcher) grant(c *gin.Context, link *model.AccessLink, user *model.User, clientKey, userAgent string) {
	current, hasSession := d.sessions.Current(c)
	alreadyAuthenticated := hasSession && current == user.ID

	// A session for a different identity is invalidated before the new
	// one is established; there is no dual-session state.
	if hasSession && current != user.ID {
		d.sessions.Invalidate(c)
	}

	if !alreadyAuthenticated {
		if err := d.sessions.Establish(c, user.ID); err != nil {
			d.logger.Error("Failed to establish session", "user", user.ID, "error", err)
			d.render(c, http.StatusForbidden, access.ReasonStorageFailure, access.ReasonStorageFailure.Message())
			return
		}
	}

	// Usage accounting and the rate-limit reset are two independent
	// atomic operations; both are self-correcting, so no transaction
	// spans them.
	if err := d.db.IncrementLinkUsage(link.ID); err != nil {
		d.logger.Error("Failed to increment link usage", "link", link.ID, "error", err)
	}
	d.limiter.RecordAttempt(clientKey, true)

	message := "User logged in: " + user.Username
	if alreadyAuthenticated {
		message = "Already logged in, redirected"
	}
	d.audit.Record(&link.ID, &user.ID, clientKey, userAgent, model.AuditStatusSuccess, message)

	target := link.RedirectURL
	if target == "" {
		target = d.defaultRedirect
	}
	c.Redirect(http.StatusFound, target)
}

// ClientKey derives the rate-limit bucket for a request: the first
// valid IP found in the configured trusted-proxy headers, falling back
// to the socket address.
func (d *Dispatcher) ClientKey(r *http.Request) string {
	for _, header := range d.trustedHeaders {
		value := r.Header.Get(header)
		if value == "" {
			continue
		}
		// X-Forwarded-For may carry a chain; the client is first.
		if idx := strings.IndexByte(value, ','); idx >= 0 {
			value = value[:idx]
		}
		value = strings.TrimSpace(value)
		if net.ParseIP(value) != nil {
			return value
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
