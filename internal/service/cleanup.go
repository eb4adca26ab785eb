package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/ambrosia-fish/armatillo-api/internal/repository"
)

// Cleaner prunes expired revocation-ledger entries and refresh tokens.
// Expired blacklist rows are safe to drop because the tokens they
// fingerprint have long since expired on their own.
type Cleaner struct {
	refresh   repository.RefreshTokenRepository
	blacklist repository.BlacklistRepository
	logger    *zap.Logger
}

// NewCleaner wires dependencies.
func NewCleaner(
	refresh repository.RefreshTokenRepository,
	blacklist repository.BlacklistRepository,
	logger *zap.Logger,
) *Cleaner {
	return &Cleaner{refresh: refresh, blacklist: blacklist, logger: logger}
}

// Run performs one cleanup sweep. Failures in one store do not stop
// the other from being swept.
func (c *Cleaner) Run(ctx context.Context) {
	now := time.Now().UTC()

	removed, err := c.blacklist.DeleteExpired(ctx, now)
	if err != nil {
		c.logger.Error("blacklist cleanup failed", zap.Error(err))
	} else if removed > 0 {
		c.logger.Info("pruned expired blacklist entries", zap.Int64("count", removed))
	}

	removed, err = c.refresh.DeleteExpired(ctx, now)
	if err != nil {
		c.logger.Error("refresh token cleanup failed", zap.Error(err))
	} else if removed > 0 {
		c.logger.Info("pruned expired refresh tokens", zap.Int64("count", removed))
	}
}
