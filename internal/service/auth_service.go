package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/ambrosia-fish/armatillo-api/internal/config"
	"github.com/ambrosia-fish/armatillo-api/internal/domain"
	pw "github.com/ambrosia-fish/armatillo-api/internal/password"
	"github.com/ambrosia-fish/armatillo-api/internal/repository"
	"github.com/ambrosia-fish/armatillo-api/internal/token"
)

// TokenPair matches OAuth2 token responses.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
}

// RequestMeta carries optional request metadata recorded with
// revocation-ledger entries.
type RequestMeta struct {
	IPAddress  string
	DeviceInfo string
}

// AuthService orchestrates credential auth, token issuance, refresh
// rotation, and revocation.
type AuthService struct {
	users     repository.UserRepository
	refresh   repository.RefreshTokenRepository
	blacklist repository.BlacklistRepository
	tokens    *token.Service
	node      *snowflake.Node
	cfg       config.Config
	logger    *zap.Logger
	tracer    trace.Tracer
}

// NewAuthService wires dependencies.
func NewAuthService(
	users repository.UserRepository,
	refresh repository.RefreshTokenRepository,
	blacklist repository.BlacklistRepository,
	tokens *token.Service,
	node *snowflake.Node,
	cfg config.Config,
	logger *zap.Logger,
) *AuthService {
	return &AuthService{
		users:     users,
		refresh:   refresh,
		blacklist: blacklist,
		tokens:    tokens,
		node:      node,
		cfg:       cfg,
		logger:    logger,
		tracer:    otel.Tracer("github.com/ambrosia-fish/armatillo-api/internal/service"),
	}
}

// Register creates a local account. No tokens are issued; the account
// stays gated until an admin approves it.
func (s *AuthService) Register(ctx context.Context, email, password, displayName string) (domain.Summary, error) {
	ctx, span := s.startSpan(ctx, "AuthService.Register")
	defer span.End()

	normalized := strings.ToLower(strings.TrimSpace(email))
	if normalized == "" || !strings.Contains(normalized, "@") {
		return domain.Summary{}, newError("validation", "A valid email is required.", http.StatusBadRequest)
	}
	if len(password) < 8 {
		return domain.Summary{}, newError("validation", "Password must be at least 8 characters.", http.StatusBadRequest)
	}
	if strings.TrimSpace(displayName) == "" {
		displayName = strings.SplitN(normalized, "@", 2)[0]
	}

	hash, err := pw.Hash(password)
	if err != nil {
		return domain.Summary{}, fmt.Errorf("hash password: %w", err)
	}

	user := domain.User{
		ID:           s.node.Generate().Int64(),
		Email:        normalized,
		PasswordHash: hash,
		DisplayName:  strings.TrimSpace(displayName),
		Approved:     s.isTestIdentity(normalized),
	}
	created, err := s.users.Create(ctx, user)
	if errors.Is(err, domain.ErrEmailTaken) {
		return domain.Summary{}, newError("email_taken", "User already exists.", http.StatusBadRequest)
	}
	if err != nil {
		span.RecordError(err)
		return domain.Summary{}, fmt.Errorf("create user: %w", err)
	}

	s.audit("register.success", "user_id", created.ID)
	return created.Summary(), nil
}

// Login authenticates email/password and issues a token pair. The
// approval gate denies before any token or store mutation happens.
func (s *AuthService) Login(ctx context.Context, email, password string) (*TokenPair, domain.Summary, error) {
	ctx, span := s.startSpan(ctx, "AuthService.Login")
	defer span.End()

	normalized := strings.ToLower(strings.TrimSpace(email))
	user, err := s.users.GetByEmail(ctx, normalized)
	if err != nil {
		s.log().Info("login rejected", zap.String("reason", "unknown_email"))
		return nil, domain.Summary{}, newError("invalid_credentials", msgInvalidCredentials, http.StatusUnauthorized)
	}

	valid, err := pw.Verify(password, user.PasswordHash)
	if err != nil || !valid {
		s.log().Info("login rejected", zap.String("reason", "bad_password"), zap.Int64("user_id", user.ID))
		return nil, domain.Summary{}, newError("invalid_credentials", msgInvalidCredentials, http.StatusUnauthorized)
	}

	if !user.Approved {
		s.log().Info("login rejected", zap.String("reason", "not_approved"), zap.Int64("user_id", user.ID))
		return nil, domain.Summary{}, newError("account_not_approved", msgNotApproved, http.StatusForbidden)
	}

	pair, err := s.IssueTokens(ctx, user.ID)
	if err != nil {
		span.RecordError(err)
		return nil, domain.Summary{}, err
	}

	s.audit("login.success", "user_id", user.ID)
	return pair, user.Summary(), nil
}

// Refresh rotates a refresh token: the presented token is consumed
// atomically, blacklisted, and replaced with a fresh pair. At most one
// rotation ever succeeds per issued token.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string, meta RequestMeta) (*TokenPair, error) {
	ctx, span := s.startSpan(ctx, "AuthService.Refresh")
	defer span.End()

	if strings.TrimSpace(refreshToken) == "" {
		return nil, newError("validation", "Refresh token is required.", http.StatusBadRequest)
	}

	claims, err := s.tokens.Verify(ctx, refreshToken)
	if err != nil {
		s.log().Info("refresh rejected", zap.NamedError("kind", err))
		return nil, newError("invalid_refresh_token", msgInvalidToken, http.StatusUnauthorized)
	}

	if claims.Kind != token.KindRefresh {
		// Someone is presenting an access token or auth code as a
		// refresh token. Treat as a security event and revoke it.
		s.blacklistToken(ctx, refreshToken, string(claims.Kind), claims.UserID, "refresh_type_confusion", meta)
		s.log().Warn("refresh token type confusion", zap.Int64("user_id", claims.UserID))
		return nil, newError("invalid_refresh_token", msgInvalidToken, http.StatusUnauthorized)
	}

	stored, err := s.refresh.Consume(ctx, refreshToken)
	if errors.Is(err, domain.ErrNotFound) {
		// Cryptographically valid but already consumed or logged out.
		s.log().Warn("refresh token not in store", zap.Int64("user_id", claims.UserID))
		return nil, newError("refresh_token_not_found", msgInvalidToken, http.StatusUnauthorized)
	}
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("consume refresh token: %w", err)
	}

	user, err := s.users.GetByID(ctx, stored.UserID)
	if err != nil {
		span.RecordError(err)
		return nil, newError("invalid_refresh_token", msgInvalidToken, http.StatusUnauthorized)
	}
	if !user.Approved {
		// The stored token is already consumed above, which satisfies
		// the delete-on-deny requirement.
		return nil, newError("account_not_approved", msgNotApproved, http.StatusForbidden)
	}

	pair, err := s.IssueTokens(ctx, user.ID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	// Defense in depth: a replayed exchange now fails at the token
	// layer too, not only on the store lookup.
	s.blacklistToken(ctx, refreshToken, domain.TokenTypeRefresh, user.ID, "rotated", meta)

	s.audit("refresh.success", "user_id", user.ID)
	return pair, nil
}

// Logout revokes the presented refresh token. Idempotent: a token that
// is already gone still yields success.
func (s *AuthService) Logout(ctx context.Context, refreshToken string, meta RequestMeta) error {
	ctx, span := s.startSpan(ctx, "AuthService.Logout")
	defer span.End()

	trimmed := strings.TrimSpace(refreshToken)
	if trimmed == "" {
		return nil
	}

	if err := s.refresh.Delete(ctx, trimmed); err != nil {
		span.RecordError(err)
		return fmt.Errorf("delete refresh token: %w", err)
	}

	userID := int64(0)
	if claims, err := s.tokens.Verify(ctx, trimmed); err == nil {
		userID = claims.UserID
	}
	s.blacklistToken(ctx, trimmed, domain.TokenTypeRefresh, userID, "logout", meta)

	s.audit("logout.success", "user_id", userID)
	return nil
}

// Authenticate verifies a bearer access token and resolves its user,
// applying the approval gate. Used by the HTTP auth middleware.
func (s *AuthService) Authenticate(ctx context.Context, accessToken string, meta RequestMeta) (domain.User, error) {
	claims, err := s.tokens.Verify(ctx, accessToken)
	if err != nil {
		s.log().Info("authentication rejected", zap.NamedError("kind", err))
		return domain.User{}, newError("invalid_token", msgInvalidToken, http.StatusUnauthorized)
	}
	if claims.Kind != token.KindAccess {
		s.blacklistToken(ctx, accessToken, string(claims.Kind), claims.UserID, "access_type_confusion", meta)
		return domain.User{}, newError("invalid_token", msgInvalidToken, http.StatusUnauthorized)
	}

	user, err := s.users.GetByID(ctx, claims.UserID)
	if errors.Is(err, domain.ErrNotFound) {
		// Token for a user that no longer exists: revoke it.
		s.blacklistToken(ctx, accessToken, domain.TokenTypeAccess, claims.UserID, "token_for_nonexistent_user", meta)
		return domain.User{}, newError("invalid_token", msgInvalidToken, http.StatusUnauthorized)
	}
	if err != nil {
		return domain.User{}, fmt.Errorf("load user: %w", err)
	}

	if !user.Approved {
		return domain.User{}, newError("account_not_approved", msgNotApproved, http.StatusForbidden)
	}
	return user, nil
}

// ReportIncident records an externally observed token compromise in
// the revocation ledger.
func (s *AuthService) ReportIncident(ctx context.Context, fingerprint, reason string, meta RequestMeta) error {
	if strings.TrimSpace(reason) == "" {
		return newError("validation", "Reason is required.", http.StatusBadRequest)
	}
	s.log().Warn("security incident reported",
		zap.String("reason", reason),
		zap.String("ip", meta.IPAddress),
	)
	if strings.TrimSpace(fingerprint) == "" {
		return nil
	}
	entry := domain.BlacklistedToken{
		Fingerprint:   fingerprint,
		TokenType:     domain.TokenTypeAccess,
		Reason:        reason,
		IPAddress:     meta.IPAddress,
		DeviceInfo:    meta.DeviceInfo,
		BlacklistedAt: time.Now().UTC(),
		ExpiresAt:     time.Now().UTC().Add(s.cfg.BlacklistTTL),
	}
	if err := s.blacklist.Add(ctx, entry); err != nil {
		return fmt.Errorf("record incident: %w", err)
	}
	return nil
}

// IssueTokens mints an access+refresh pair and persists the refresh
// token. expires_in reflects the actual decoded expiry of the access
// token, not the nominal TTL.
func (s *AuthService) IssueTokens(ctx context.Context, userID int64) (*TokenPair, error) {
	access, accessExp, err := s.tokens.Issue(token.KindAccess, userID, s.cfg.AccessTokenTTL)
	if err != nil {
		return nil, fmt.Errorf("issue access token: %w", err)
	}
	refresh, refreshExp, err := s.tokens.Issue(token.KindRefresh, userID, s.cfg.RefreshTokenTTL)
	if err != nil {
		return nil, fmt.Errorf("issue refresh token: %w", err)
	}

	record := domain.RefreshToken{
		ID:        s.node.Generate().Int64(),
		UserID:    userID,
		Token:     refresh,
		CreatedAt: time.Now().UTC(),
		ExpiresAt: refreshExp,
	}
	if err := s.refresh.Create(ctx, record); err != nil {
		return nil, fmt.Errorf("persist refresh token: %w", err)
	}

	return &TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "Bearer",
		ExpiresIn:    int(time.Until(accessExp).Seconds()),
	}, nil
}

func (s *AuthService) blacklistToken(ctx context.Context, raw, tokenType string, userID int64, reason string, meta RequestMeta) {
	entry := domain.BlacklistedToken{
		Fingerprint:   token.Fingerprint(raw),
		TokenType:     tokenType,
		UserID:        userID,
		Reason:        reason,
		IPAddress:     meta.IPAddress,
		DeviceInfo:    meta.DeviceInfo,
		BlacklistedAt: time.Now().UTC(),
		ExpiresAt:     time.Now().UTC().Add(s.cfg.BlacklistTTL),
	}
	if err := s.blacklist.Add(ctx, entry); err != nil {
		s.log().Error("failed to blacklist token", zap.String("reason", reason), zap.Error(err))
	}
}

func (s *AuthService) isTestIdentity(email string) bool {
	if s.cfg.IsProduction() || s.cfg.ApprovalTestDomain == "" {
		return false
	}
	return strings.HasSuffix(email, "@"+s.cfg.ApprovalTestDomain)
}

func (s *AuthService) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	if s == nil || s.tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return s.tracer.Start(ctx, name)
}

func (s *AuthService) audit(event string, attrs ...any) {
	logger := s.log()
	fields := make([]zap.Field, 0, len(attrs)/2+2)
	fields = append(fields, zap.String("event", event), zap.Time("timestamp", time.Now().UTC()))
	for i := 0; i+1 < len(attrs); i += 2 {
		key, ok := attrs[i].(string)
		if !ok {
			continue
		}
		fields = append(fields, zap.Any(key, attrs[i+1]))
	}
	logger.Info("audit", fields...)
}

func (s *AuthService) log() *zap.Logger {
	if s != nil && s.logger != nil {
		return s.logger
	}
	return zap.L()
}
