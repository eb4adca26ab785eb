package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ambrosia-fish/armatillo-api/internal/domain"
)

// Compile-time interface assertions.
var (
	_ UserRepository          = (*PostgresUserRepo)(nil)
	_ RefreshTokenRepository  = (*PostgresRefreshTokenRepo)(nil)
	_ BlacklistRepository     = (*PostgresBlacklistRepo)(nil)
	_ AccessRequestRepository = (*PostgresAccessRequestRepo)(nil)
)

const uniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

// PostgresUserRepo implements UserRepository over pgx.
type PostgresUserRepo struct {
	db *pgxpool.Pool
}

func NewPostgresUserRepo(db *pgxpool.Pool) *PostgresUserRepo {
	return &PostgresUserRepo{db: db}
}

const userColumns = `id, email, password_hash, google_id, display_name, approved, is_admin, created_at, updated_at`

func scanUser(row pgx.Row) (domain.User, error) {
	var u domain.User
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.GoogleID, &u.DisplayName, &u.Approved, &u.IsAdmin, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.User{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.User{}, fmt.Errorf("scan user: %w", err)
	}
	return u, nil
}

func (r *PostgresUserRepo) Create(ctx context.Context, user domain.User) (domain.User, error) {
	row := r.db.QueryRow(ctx, `
		INSERT INTO users (id, email, password_hash, google_id, display_name, approved, is_admin)
		VALUES ($1, lower($2), $3, $4, $5, $6, $7)
		RETURNING `+userColumns,
		user.ID, user.Email, user.PasswordHash, user.GoogleID, user.DisplayName, user.Approved, user.IsAdmin,
	)
	created, err := scanUser(row)
	if isUniqueViolation(err) {
		return domain.User{}, domain.ErrEmailTaken
	}
	if err != nil {
		return domain.User{}, err
	}
	return created, nil
}

func (r *PostgresUserRepo) GetByID(ctx context.Context, id int64) (domain.User, error) {
	return scanUser(r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
}

func (r *PostgresUserRepo) GetByEmail(ctx context.Context, email string) (domain.User, error) {
	return scanUser(r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = lower($1)`, email))
}

func (r *PostgresUserRepo) GetByGoogleID(ctx context.Context, googleID string) (domain.User, error) {
	return scanUser(r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE google_id = $1`, googleID))
}

func (r *PostgresUserRepo) LinkGoogleID(ctx context.Context, userID int64, googleID string) error {
	tag, err := r.db.Exec(ctx, `UPDATE users SET google_id = $2, updated_at = now() WHERE id = $1`, userID, googleID)
	if err != nil {
		return fmt.Errorf("link google id: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *PostgresUserRepo) SetApprovedByEmail(ctx context.Context, email string, approved bool) error {
	tag, err := r.db.Exec(ctx, `UPDATE users SET approved = $2, updated_at = now() WHERE email = lower($1)`, email, approved)
	if err != nil {
		return fmt.Errorf("set approved: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// PostgresRefreshTokenRepo implements RefreshTokenRepository.
type PostgresRefreshTokenRepo struct {
	db *pgxpool.Pool
}

func NewPostgresRefreshTokenRepo(db *pgxpool.Pool) *PostgresRefreshTokenRepo {
	return &PostgresRefreshTokenRepo{db: db}
}

func (r *PostgresRefreshTokenRepo) Create(ctx context.Context, rt domain.RefreshToken) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO refresh_tokens (id, user_id, token, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5)`,
		rt.ID, rt.UserID, rt.Token, rt.CreatedAt, rt.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("create refresh token: %w", err)
	}
	return nil
}

// Consume is a single conditional delete so that two racing rotations
// cannot both succeed from the same token.
func (r *PostgresRefreshTokenRepo) Consume(ctx context.Context, token string) (domain.RefreshToken, error) {
	var rt domain.RefreshToken
	err := r.db.QueryRow(ctx, `
		DELETE FROM refresh_tokens
		WHERE token = $1 AND expires_at > now()
		RETURNING id, user_id, token, created_at, expires_at`,
		token,
	).Scan(&rt.ID, &rt.UserID, &rt.Token, &rt.CreatedAt, &rt.ExpiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.RefreshToken{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.RefreshToken{}, fmt.Errorf("consume refresh token: %w", err)
	}
	return rt, nil
}

func (r *PostgresRefreshTokenRepo) Delete(ctx context.Context, token string) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM refresh_tokens WHERE token = $1`, token); err != nil {
		return fmt.Errorf("delete refresh token: %w", err)
	}
	return nil
}

func (r *PostgresRefreshTokenRepo) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM refresh_tokens WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("delete expired refresh tokens: %w", err)
	}
	return tag.RowsAffected(), nil
}

// PostgresBlacklistRepo implements the revocation ledger.
type PostgresBlacklistRepo struct {
	db *pgxpool.Pool
}

func NewPostgresBlacklistRepo(db *pgxpool.Pool) *PostgresBlacklistRepo {
	return &PostgresBlacklistRepo{db: db}
}

func (r *PostgresBlacklistRepo) Add(ctx context.Context, entry domain.BlacklistedToken) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO blacklisted_tokens (fingerprint, token_type, user_id, reason, ip_address, device_info, blacklisted_at, expires_at)
		VALUES ($1, $2, NULLIF($3, 0), $4, $5, $6, $7, $8)
		ON CONFLICT (fingerprint) DO NOTHING`,
		entry.Fingerprint, entry.TokenType, entry.UserID, entry.Reason,
		entry.IPAddress, entry.DeviceInfo, entry.BlacklistedAt, entry.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("blacklist token: %w", err)
	}
	return nil
}

func (r *PostgresBlacklistRepo) Contains(ctx context.Context, fingerprint string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM blacklisted_tokens WHERE fingerprint = $1)`, fingerprint).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("blacklist lookup: %w", err)
	}
	return exists, nil
}

func (r *PostgresBlacklistRepo) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM blacklisted_tokens WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("delete expired blacklist entries: %w", err)
	}
	return tag.RowsAffected(), nil
}

// PostgresAccessRequestRepo implements AccessRequestRepository.
type PostgresAccessRequestRepo struct {
	db *pgxpool.Pool
}

func NewPostgresAccessRequestRepo(db *pgxpool.Pool) *PostgresAccessRequestRepo {
	return &PostgresAccessRequestRepo{db: db}
}

const accessRequestColumns = `id, email, status, notes, created_at, updated_at`

func scanAccessRequest(row pgx.Row) (domain.AccessRequest, error) {
	var req domain.AccessRequest
	err := row.Scan(&req.ID, &req.Email, &req.Status, &req.Notes, &req.CreatedAt, &req.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.AccessRequest{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.AccessRequest{}, fmt.Errorf("scan access request: %w", err)
	}
	return req, nil
}

func (r *PostgresAccessRequestRepo) Create(ctx context.Context, req domain.AccessRequest) (domain.AccessRequest, error) {
	row := r.db.QueryRow(ctx, `
		INSERT INTO access_requests (id, email, status, notes)
		VALUES ($1, lower($2), $3, $4)
		RETURNING `+accessRequestColumns,
		req.ID, req.Email, req.Status, req.Notes,
	)
	created, err := scanAccessRequest(row)
	if isUniqueViolation(err) {
		return domain.AccessRequest{}, domain.ErrDuplicate
	}
	if err != nil {
		return domain.AccessRequest{}, err
	}
	return created, nil
}

func (r *PostgresAccessRequestRepo) GetByID(ctx context.Context, id int64) (domain.AccessRequest, error) {
	return scanAccessRequest(r.db.QueryRow(ctx, `SELECT `+accessRequestColumns+` FROM access_requests WHERE id = $1`, id))
}

func (r *PostgresAccessRequestRepo) GetByEmail(ctx context.Context, email string) (domain.AccessRequest, error) {
	return scanAccessRequest(r.db.QueryRow(ctx, `SELECT `+accessRequestColumns+` FROM access_requests WHERE email = lower($1)`, email))
}

func (r *PostgresAccessRequestRepo) List(ctx context.Context, status string) ([]domain.AccessRequest, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+accessRequestColumns+` FROM access_requests
		WHERE $1 = '' OR status = $1
		ORDER BY created_at DESC`,
		status,
	)
	if err != nil {
		return nil, fmt.Errorf("list access requests: %w", err)
	}
	defer rows.Close()

	var out []domain.AccessRequest
	for rows.Next() {
		req, err := scanAccessRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, req)
	}
	return out, rows.Err()
}

func (r *PostgresAccessRequestRepo) UpdateStatus(ctx context.Context, id int64, status, notes string) (domain.AccessRequest, error) {
	return scanAccessRequest(r.db.QueryRow(ctx, `
		UPDATE access_requests SET status = $2, notes = $3, updated_at = now()
		WHERE id = $1
		RETURNING `+accessRequestColumns,
		id, status, notes,
	))
}
