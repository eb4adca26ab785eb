package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/zap"

	"github.com/ambrosia-fish/armatillo-api/internal/domain"
	"github.com/ambrosia-fish/armatillo-api/internal/repository"
)

// TrackingService owns behavior instances and regulation strategies.
// Every operation is scoped to the calling user.
type TrackingService struct {
	instances  repository.InstanceRepository
	strategies repository.StrategyRepository
	node       *snowflake.Node
	logger     *zap.Logger
}

// NewTrackingService wires dependencies.
func NewTrackingService(
	instances repository.InstanceRepository,
	strategies repository.StrategyRepository,
	node *snowflake.Node,
	logger *zap.Logger,
) *TrackingService {
	return &TrackingService{instances: instances, strategies: strategies, node: node, logger: logger}
}

// CreateInstance records one tracked occurrence for the user.
func (s *TrackingService) CreateInstance(ctx context.Context, userID int64, in domain.Instance) (domain.Instance, error) {
	in.ID = s.node.Generate().Int64()
	in.UserID = userID
	if in.Time.IsZero() {
		in.Time = time.Now().UTC()
	}
	if in.Duration < 0 {
		return domain.Instance{}, newError("validation", "Duration must not be negative.", http.StatusBadRequest)
	}

	created, err := s.instances.Create(ctx, in)
	if err != nil {
		return domain.Instance{}, fmt.Errorf("create instance: %w", err)
	}
	return created, nil
}

// GetInstance returns a single instance owned by the user.
func (s *TrackingService) GetInstance(ctx context.Context, userID, id int64) (domain.Instance, error) {
	inst, err := s.instances.GetByID(ctx, userID, id)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.Instance{}, newError("not_found", "Instance not found.", http.StatusNotFound)
	}
	if err != nil {
		return domain.Instance{}, fmt.Errorf("load instance: %w", err)
	}
	return inst, nil
}

// ListInstances returns the user's instances, newest first.
func (s *TrackingService) ListInstances(ctx context.Context, userID int64) ([]domain.Instance, error) {
	list, err := s.instances.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list instances: %w", err)
	}
	return list, nil
}

// UpdateInstance replaces a user-owned instance.
func (s *TrackingService) UpdateInstance(ctx context.Context, userID, id int64, in domain.Instance) (domain.Instance, error) {
	in.ID = id
	in.UserID = userID
	if in.Duration < 0 {
		return domain.Instance{}, newError("validation", "Duration must not be negative.", http.StatusBadRequest)
	}

	updated, err := s.instances.Update(ctx, in)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.Instance{}, newError("not_found", "Instance not found.", http.StatusNotFound)
	}
	if err != nil {
		return domain.Instance{}, fmt.Errorf("update instance: %w", err)
	}
	return updated, nil
}

// DeleteInstance removes a user-owned instance.
func (s *TrackingService) DeleteInstance(ctx context.Context, userID, id int64) error {
	err := s.instances.Delete(ctx, userID, id)
	if errors.Is(err, domain.ErrNotFound) {
		return newError("not_found", "Instance not found.", http.StatusNotFound)
	}
	if err != nil {
		return fmt.Errorf("delete instance: %w", err)
	}
	s.logger.Info("audit",
		zap.String("event", "instance.deleted"),
		zap.Int64("user_id", userID),
		zap.Int64("instance_id", id),
	)
	return nil
}

// CreateStrategy records a new regulation strategy for the user.
func (s *TrackingService) CreateStrategy(ctx context.Context, userID int64, in domain.Strategy) (domain.Strategy, error) {
	if strings.TrimSpace(in.Name) == "" {
		return domain.Strategy{}, newError("validation", "Name is required.", http.StatusBadRequest)
	}
	in.ID = s.node.Generate().Int64()
	in.UserID = userID

	created, err := s.strategies.Create(ctx, in)
	if err != nil {
		return domain.Strategy{}, fmt.Errorf("create strategy: %w", err)
	}
	return created, nil
}

// GetStrategy returns a single strategy owned by the user.
func (s *TrackingService) GetStrategy(ctx context.Context, userID, id int64) (domain.Strategy, error) {
	strategy, err := s.strategies.GetByID(ctx, userID, id)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.Strategy{}, newError("not_found", "Strategy not found.", http.StatusNotFound)
	}
	if err != nil {
		return domain.Strategy{}, fmt.Errorf("load strategy: %w", err)
	}
	return strategy, nil
}

// ListStrategies returns the user's strategies.
func (s *TrackingService) ListStrategies(ctx context.Context, userID int64) ([]domain.Strategy, error) {
	list, err := s.strategies.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list strategies: %w", err)
	}
	return list, nil
}

// UpdateStrategy replaces a user-owned strategy.
func (s *TrackingService) UpdateStrategy(ctx context.Context, userID, id int64, in domain.Strategy) (domain.Strategy, error) {
	if strings.TrimSpace(in.Name) == "" {
		return domain.Strategy{}, newError("validation", "Name is required.", http.StatusBadRequest)
	}
	in.ID = id
	in.UserID = userID

	updated, err := s.strategies.Update(ctx, in)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.Strategy{}, newError("not_found", "Strategy not found.", http.StatusNotFound)
	}
	if err != nil {
		return domain.Strategy{}, fmt.Errorf("update strategy: %w", err)
	}
	return updated, nil
}

// DeleteStrategy removes a user-owned strategy.
func (s *TrackingService) DeleteStrategy(ctx context.Context, userID, id int64) error {
	err := s.strategies.Delete(ctx, userID, id)
	if errors.Is(err, domain.ErrNotFound) {
		return newError("not_found", "Strategy not found.", http.StatusNotFound)
	}
	if err != nil {
		return fmt.Errorf("delete strategy: %w", err)
	}
	return nil
}
