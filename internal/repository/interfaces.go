package repository

import (
	"context"
	"time"

	"github.com/ambrosia-fish/armatillo-api/internal/domain"
)

// UserRepository exposes persistence for user identity records.
type UserRepository interface {
	Create(ctx context.Context, user domain.User) (domain.User, error)
	GetByID(ctx context.Context, id int64) (domain.User, error)
	GetByEmail(ctx context.Context, email string) (domain.User, error)
	GetByGoogleID(ctx context.Context, googleID string) (domain.User, error)
	LinkGoogleID(ctx context.Context, userID int64, googleID string) error
	SetApprovedByEmail(ctx context.Context, email string, approved bool) error
}

// RefreshTokenRepository handles one-row-per-session refresh tokens.
type RefreshTokenRepository interface {
	Create(ctx context.Context, rt domain.RefreshToken) error
	// Consume atomically deletes the row for the token and returns it.
	// Two racing calls for the same token cannot both succeed.
	Consume(ctx context.Context, token string) (domain.RefreshToken, error)
	Delete(ctx context.Context, token string) error
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// BlacklistRepository is the persistent revocation ledger.
type BlacklistRepository interface {
	Add(ctx context.Context, entry domain.BlacklistedToken) error
	Contains(ctx context.Context, fingerprint string) (bool, error)
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// AccessRequestRepository stores gated-access requests.
type AccessRequestRepository interface {
	Create(ctx context.Context, req domain.AccessRequest) (domain.AccessRequest, error)
	GetByID(ctx context.Context, id int64) (domain.AccessRequest, error)
	GetByEmail(ctx context.Context, email string) (domain.AccessRequest, error)
	// List returns requests newest first, optionally filtered by status.
	List(ctx context.Context, status string) ([]domain.AccessRequest, error)
	UpdateStatus(ctx context.Context, id int64, status, notes string) (domain.AccessRequest, error)
}

// InstanceRepository stores tracked behavior instances, scoped by owner.
type InstanceRepository interface {
	Create(ctx context.Context, in domain.Instance) (domain.Instance, error)
	GetByID(ctx context.Context, userID, id int64) (domain.Instance, error)
	ListByUser(ctx context.Context, userID int64) ([]domain.Instance, error)
	Update(ctx context.Context, in domain.Instance) (domain.Instance, error)
	Delete(ctx context.Context, userID, id int64) error
}

// StrategyRepository stores habit-reversal strategies, scoped by owner.
type StrategyRepository interface {
	Create(ctx context.Context, s domain.Strategy) (domain.Strategy, error)
	GetByID(ctx context.Context, userID, id int64) (domain.Strategy, error)
	ListByUser(ctx context.Context, userID int64) ([]domain.Strategy, error)
	Update(ctx context.Context, s domain.Strategy) (domain.Strategy, error)
	Delete(ctx context.Context, userID, id int64) error
}
