package api

import (
	"context"

	"github.com/mohdragon010/taskflow/domain"
)

// Store abstracts persistence for handlers.
type Store interface {
	CreateTask(ctx context.Context, userID, title string) (domain.Task, error)
	UpdateTask(ctx context.Context, userID, id string, patch domain.TaskPatch) error
	DeleteTask(ctx context.Context, userID, id string) error
	FetchTasks(ctx context.Context, userID string) ([]domain.Task, error)
	CreateAccount(ctx context.Context, acc domain.Account) error
	FetchAccountByEmail(ctx context.Context, email string) (domain.Account, error)
	UpdateDisplayName(ctx context.Context, email, displayName string) error
}

// Principal identifies an authenticated caller.
type Principal struct {
	UserID    string
	Email     string
	SessionID string
}

// Authenticator resolves the caller identity from an Authorization header.
type Authenticator interface {
	Principal(ctx context.Context, authHeader string) (Principal, error)
}

// TokenIssuer mints session tokens for authenticated principals.
type TokenIssuer interface {
	IssueToken(p Principal) (string, error)
}

// SessionStore tracks active sessions. Deleting a session invalidates every
// token that references it.
type SessionStore interface {
	Create(ctx context.Context, userID string) (string, error)
	Delete(ctx context.Context, id string) error
	Exists(ctx context.Context, id string) (bool, error)
}

// Notifier publishes change events after successful mutations.
type Notifier interface {
	Publish(ctx context.Context, ev domain.ChangeEvent)
}

// FederatedIdentity is the profile extracted from an external provider's
// ID token.
type FederatedIdentity struct {
	Subject string
	Email   string
	Name    string
}

// FederatedVerifier validates ID tokens minted by the external identity
// provider.
type FederatedVerifier interface {
	Verify(idToken string) (FederatedIdentity, error)
}
