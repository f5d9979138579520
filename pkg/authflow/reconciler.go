// Package authflow holds the authentication core: resolving login, signup and
// federated-callback events to a single user record, and issuing and rotating
// access/refresh token pairs against a persistent session store.
package authflow

import (
	"context"
	"strings"

	"zenspace/models"
	"zenspace/pkg/credential"
)

// ParentContact is the guardian contact block captured at signup.
type ParentContact struct {
	Name  string
	Email string
	Phone string
}

// SignupInput is a manual registration request.
type SignupInput struct {
	Name     string
	Email    string
	Password string
	Parent   ParentContact
}

// FederatedIdentity is what the federated provider asserts about a user
// after a successful callback.
type FederatedIdentity struct {
	Email   string
	Subject string
	Name    string
}

// Reconciler maps each authentication event to exactly one user record,
// merging the manual and federated provider paths on matching email.
type Reconciler struct {
	users  UserStore
	hasher credential.Hasher
}

func NewReconciler(users UserStore, hasher credential.Hasher) *Reconciler {
	return &Reconciler{users: users, hasher: hasher}
}

// NormalizeEmail lowercases and trims an email address; every lookup and
// every stored record uses this form.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Login resolves a password login. Unknown email, a passwordless federated
// account and a rejected password all return ErrInvalidCredentials so the
// response cannot be used to enumerate accounts.
func (r *Reconciler) Login(ctx context.Context, email, password string) (*models.User, error) {
	user, err := r.users.FindByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		return nil, err
	}
	if user == nil || user.PasswordHash == "" || !r.hasher.Verify(password, user.PasswordHash) {
		return nil, ErrInvalidCredentials
	}
	return user, nil
}

// Signup creates a manual user, or links a password onto an existing
// federated account that has none. The federated-to-manual transition
// happens at most once and is never reversed here.
func (r *Reconciler) Signup(ctx context.Context, in SignupInput) (*models.User, error) {
	email := NormalizeEmail(in.Email)
	existing, err := r.users.FindByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		if existing.AuthProvider == models.ProviderGoogle && existing.PasswordHash == "" {
			hash, err := r.hasher.Hash(in.Password)
			if err != nil {
				return nil, err
			}
			existing.PasswordHash = hash
			existing.AuthProvider = models.ProviderManual
			existing.ParentName = in.Parent.Name
			existing.ParentEmail = in.Parent.Email
			existing.ParentPhone = in.Parent.Phone
			if err := r.users.Update(ctx, existing); err != nil {
				return nil, err
			}
			return existing, nil
		}
		return nil, ErrAlreadyExists
	}
	hash, err := r.hasher.Hash(in.Password)
	if err != nil {
		return nil, err
	}
	user := &models.User{
		Name:         in.Name,
		Email:        email,
		PasswordHash: hash,
		AuthProvider: models.ProviderManual,
		ParentName:   in.Parent.Name,
		ParentEmail:  in.Parent.Email,
		ParentPhone:  in.Parent.Phone,
	}
	// The store reports a unique-index violation as ErrAlreadyExists, which
	// covers a concurrent signup racing past the lookup above.
	if err := r.users.Create(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// FederatedCallback resolves a provider assertion to a user. An existing
// account with the same email is re-tagged as federated and its subject
// overwritten (last-writer-wins merge; the provider's own email assertion is
// the only proof of ownership).
func (r *Reconciler) FederatedCallback(ctx context.Context, id FederatedIdentity) (*models.User, error) {
	email := NormalizeEmail(id.Email)
	user, err := r.users.FindByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if user != nil {
		user.GoogleSub = id.Subject
		user.AuthProvider = models.ProviderGoogle
		if err := r.users.Update(ctx, user); err != nil {
			return nil, err
		}
		return user, nil
	}
	name := id.Name
	if name == "" {
		name = email
	}
	user = &models.User{
		Name:         name,
		Email:        email,
		AuthProvider: models.ProviderGoogle,
		GoogleSub:    id.Subject,
	}
	if err := r.users.Create(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}
