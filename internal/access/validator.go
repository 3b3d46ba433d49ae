package access

import (
	"time"

	"quickaccess/internal/model"
)

// Reason identifies why a request was denied.
type Reason string

const (
	ReasonInactive        Reason = "inactive"
	ReasonExpired         Reason = "expired"
	ReasonExhausted       Reason = "exhausted"
	ReasonIdentityMissing Reason = "identity_missing"
	ReasonRateLimited     Reason = "rate_limited"
	ReasonStorageFailure  Reason = "storage_unavailable"
)

// Message returns the user-facing text for a denial reason. Reason
// codes themselves are not shown to users unless explicitly configured.
func (r Reason) Message() string {
	switch r {
	case ReasonInactive:
		return "This access link has been disabled."
	case ReasonExpired:
		return "This access link has expired."
	case ReasonExhausted:
		return "This access link has reached its usage limit."
	case ReasonIdentityMissing:
		return "User account not found."
	case ReasonRateLimited:
		return "Too many attempts. Please try again later."
	default:
		return "Access denied."
	}
}

// Decision is the outcome of validating a link.
type Decision struct {
	Valid  bool
	Reason Reason
	User   *model.User
	Err    error
}

// IdentityResolver resolves the identity a link points at. The db
// Service satisfies it; tests supply fakes.
type IdentityResolver interface {
	GetUser(id uint) (*model.User, error)
}

// Validator decides whether a link grants a session. It performs no
// side effects and may be called repeatedly.
type Validator struct {
	resolver IdentityResolver
}

// NewValidator creates a Validator backed by the given resolver.
func NewValidator(resolver IdentityResolver) *Validator {
	return &Validator{resolver: resolver}
}

// Validate checks a link against the given time. Checks run in a fixed
// order and short-circuit at the first failure: the administrative
// state first, then expiry, then exhaustion. The identity lookup comes
// last since identity loss is rare and requires storage access.
func (v *Validator) Validate(link *model.AccessLink, now time.Time) Decision {
	if !link.Active {
		return Decision{Reason: ReasonInactive}
	}
	if link.ExpiresAt != nil && !link.ExpiresAt.After(now) {
		return Decision{Reason: ReasonExpired}
	}
	if link.MaxUses > 0 && link.CurrentUses >= link.MaxUses {
		return Decision{Reason: ReasonExhausted}
	}

	user, err := v.resolver.GetUser(link.UserID)
	if err != nil {
		return Decision{Reason: ReasonStorageFailure, Err: err}
	}
	if user == nil {
		return Decision{Reason: ReasonIdentityMissing}
	}

	return Decision{Valid: true, User: user}
}
