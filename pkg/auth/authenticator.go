package auth

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/crypto/bcrypt"

	"github.com/vedmemory/ved/pkg/storage"
)

// UserLookup resolves a token subject to a stored user.
type UserLookup interface {
	GetUserByEmail(ctx context.Context, email string) (*storage.User, error)
}

// Authenticator turns a bearer token into the user it was issued to.
type Authenticator struct {
	issuer *TokenIssuer
	users  UserLookup
	cost   int

	decoyOnce sync.Once
	decoy     string
}

// AuthenticatorOption configures an Authenticator.
type AuthenticatorOption func(*Authenticator)

// WithPasswordCost sets the bcrypt cost stored hashes are made with, so
// that logins for unknown emails take as long as real ones.
func WithPasswordCost(cost int) AuthenticatorOption {
	return func(a *Authenticator) { a.cost = cost }
}

// NewAuthenticator returns an Authenticator backed by issuer and users.
func NewAuthenticator(issuer *TokenIssuer, users UserLookup, opts ...AuthenticatorOption) *Authenticator {
	a := &Authenticator{issuer: issuer, users: users, cost: bcrypt.DefaultCost}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// decoyHash is compared against when the email is unknown.
func (a *Authenticator) decoyHash() string {
	a.decoyOnce.Do(func() {
		a.decoy, _ = HashPassword("ved-decoy-password", a.cost)
	})
	return a.decoy
}

// Authenticate verifies token and loads its user. A valid token for a user
// that no longer exists is reported as ErrInvalidToken.
func (a *Authenticator) Authenticate(ctx context.Context, token string) (*storage.User, error) {
	email, err := a.issuer.Verify(token)
	if err != nil {
		return nil, err
	}
	u, err := a.users.GetUserByEmail(ctx, email)
	if storage.IsNotFound(err) {
		return nil, ErrInvalidToken
	}
	if err != nil {
		return nil, fmt.Errorf("auth: load user: %w", err)
	}
	return u, nil
}

// Login checks email and password and returns a fresh token. Unknown emails
// and wrong passwords both yield ErrMismatchedPassword.
func (a *Authenticator) Login(ctx context.Context, email, password string) (string, error) {
	u, err := a.users.GetUserByEmail(ctx, email)
	if storage.IsNotFound(err) {
		_ = CheckPassword(a.decoyHash(), password)
		return "", ErrMismatchedPassword
	}
	if err != nil {
		return "", fmt.Errorf("auth: load user: %w", err)
	}
	if err := CheckPassword(u.PasswordHash, password); err != nil {
		return "", err
	}
	return a.issuer.Issue(u.Email)
}
