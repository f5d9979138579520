package authflow

import (
	"context"

	"zenspace/models"
)

// UserStore is the persistence contract the reconciler and orchestrator need
// for user records. Lookups return (nil, nil) when no record matches.
type UserStore interface {
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindByID(ctx context.Context, id uint) (*models.User, error)
	// Create inserts the user and fills in its id. It returns
	// ErrAlreadyExists when the email unique index rejects the insert.
	Create(ctx context.Context, user *models.User) error
	Update(ctx context.Context, user *models.User) error
}

// SessionStore is the persistence contract for refresh sessions.
type SessionStore interface {
	Create(ctx context.Context, session *models.Session) error
	// Get returns (nil, nil) for a missing or malformed id; callers treat
	// both identically.
	Get(ctx context.Context, id string) (*models.Session, error)
	// Delete removes the session if present and reports whether a row was
	// actually deleted. The report is what makes concurrent rotation of the
	// same token safe: only the caller that observes true may issue a
	// replacement pair.
	Delete(ctx context.Context, id string) (bool, error)
}
