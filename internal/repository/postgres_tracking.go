package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ambrosia-fish/armatillo-api/internal/domain"
)

var (
	_ InstanceRepository = (*PostgresInstanceRepo)(nil)
	_ StrategyRepository = (*PostgresStrategyRepo)(nil)
)

// PostgresInstanceRepo implements InstanceRepository.
type PostgresInstanceRepo struct {
	db *pgxpool.Pool
}

func NewPostgresInstanceRepo(db *pgxpool.Pool) *PostgresInstanceRepo {
	return &PostgresInstanceRepo{db: db}
}

const instanceColumns = `id, user_id, time, duration, urge_strength, intention_type, environments, emotions, sensations, thoughts, notes, created_at`

func scanInstance(row pgx.Row) (domain.Instance, error) {
	var in domain.Instance
	err := row.Scan(&in.ID, &in.UserID, &in.Time, &in.Duration, &in.UrgeStrength, &in.IntentionType,
		&in.Environments, &in.Emotions, &in.Sensations, &in.Thoughts, &in.Notes, &in.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Instance{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Instance{}, fmt.Errorf("scan instance: %w", err)
	}
	return in, nil
}

func (r *PostgresInstanceRepo) Create(ctx context.Context, in domain.Instance) (domain.Instance, error) {
	return scanInstance(r.db.QueryRow(ctx, `
		INSERT INTO instances (id, user_id, time, duration, urge_strength, intention_type, environments, emotions, sensations, thoughts, notes)
		VALUES ($1, $2, $3, $4, $5, $6, COALESCE($7, '{}'), COALESCE($8, '{}'), COALESCE($9, '{}'), COALESCE($10, '{}'), $11)
		RETURNING `+instanceColumns,
		in.ID, in.UserID, in.Time, in.Duration, in.UrgeStrength, in.IntentionType,
		in.Environments, in.Emotions, in.Sensations, in.Thoughts, in.Notes,
	))
}

func (r *PostgresInstanceRepo) GetByID(ctx context.Context, userID, id int64) (domain.Instance, error) {
	return scanInstance(r.db.QueryRow(ctx,
		`SELECT `+instanceColumns+` FROM instances WHERE id = $1 AND user_id = $2`, id, userID))
}

func (r *PostgresInstanceRepo) ListByUser(ctx context.Context, userID int64) ([]domain.Instance, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+instanceColumns+` FROM instances WHERE user_id = $1 ORDER BY time DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list instances: %w", err)
	}
	defer rows.Close()

	var out []domain.Instance
	for rows.Next() {
		in, err := scanInstance(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, in)
	}
	return out, rows.Err()
}

func (r *PostgresInstanceRepo) Update(ctx context.Context, in domain.Instance) (domain.Instance, error) {
	return scanInstance(r.db.QueryRow(ctx, `
		UPDATE instances
		SET time = $3, duration = $4, urge_strength = $5, intention_type = $6,
		    environments = COALESCE($7, '{}'), emotions = COALESCE($8, '{}'),
		    sensations = COALESCE($9, '{}'), thoughts = COALESCE($10, '{}'), notes = $11
		WHERE id = $1 AND user_id = $2
		RETURNING `+instanceColumns,
		in.ID, in.UserID, in.Time, in.Duration, in.UrgeStrength, in.IntentionType,
		in.Environments, in.Emotions, in.Sensations, in.Thoughts, in.Notes,
	))
}

func (r *PostgresInstanceRepo) Delete(ctx context.Context, userID, id int64) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM instances WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("delete instance: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// PostgresStrategyRepo implements StrategyRepository.
type PostgresStrategyRepo struct {
	db *pgxpool.Pool
}

func NewPostgresStrategyRepo(db *pgxpool.Pool) *PostgresStrategyRepo {
	return &PostgresStrategyRepo{db: db}
}

const strategyColumns = `id, user_id, name, trigger_pattern, competing_responses, stimulus_controls, community_supports, notifications, is_active, created_at, updated_at`

func scanStrategy(row pgx.Row) (domain.Strategy, error) {
	var s domain.Strategy
	err := row.Scan(&s.ID, &s.UserID, &s.Name, &s.Trigger, &s.CompetingResponses,
		&s.StimulusControls, &s.CommunitySupports, &s.Notifications, &s.IsActive, &s.CreatedAt, &s.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Strategy{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Strategy{}, fmt.Errorf("scan strategy: %w", err)
	}
	return s, nil
}

func (r *PostgresStrategyRepo) Create(ctx context.Context, s domain.Strategy) (domain.Strategy, error) {
	return scanStrategy(r.db.QueryRow(ctx, `
		INSERT INTO strategies (id, user_id, name, trigger_pattern, competing_responses, stimulus_controls, community_supports, notifications, is_active)
		VALUES ($1, $2, $3, $4, COALESCE($5, '[]'::jsonb), COALESCE($6, '[]'::jsonb), COALESCE($7, '[]'::jsonb), COALESCE($8, '[]'::jsonb), $9)
		RETURNING `+strategyColumns,
		s.ID, s.UserID, s.Name, s.Trigger, s.CompetingResponses,
		s.StimulusControls, s.CommunitySupports, s.Notifications, s.IsActive,
	))
}

func (r *PostgresStrategyRepo) GetByID(ctx context.Context, userID, id int64) (domain.Strategy, error) {
	return scanStrategy(r.db.QueryRow(ctx,
		`SELECT `+strategyColumns+` FROM strategies WHERE id = $1 AND user_id = $2`, id, userID))
}

func (r *PostgresStrategyRepo) ListByUser(ctx context.Context, userID int64) ([]domain.Strategy, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+strategyColumns+` FROM strategies WHERE user_id = $1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list strategies: %w", err)
	}
	defer rows.Close()

	var out []domain.Strategy
	for rows.Next() {
		s, err := scanStrategy(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *PostgresStrategyRepo) Update(ctx context.Context, s domain.Strategy) (domain.Strategy, error) {
	return scanStrategy(r.db.QueryRow(ctx, `
		UPDATE strategies
		SET name = $3, trigger_pattern = $4, competing_responses = COALESCE($5, '[]'::jsonb),
		    stimulus_controls = COALESCE($6, '[]'::jsonb), community_supports = COALESCE($7, '[]'::jsonb),
		    notifications = COALESCE($8, '[]'::jsonb), is_active = $9, updated_at = now()
		WHERE id = $1 AND user_id = $2
		RETURNING `+strategyColumns,
		s.ID, s.UserID, s.Name, s.Trigger, s.CompetingResponses,
		s.StimulusControls, s.CommunitySupports, s.Notifications, s.IsActive,
	))
}

func (r *PostgresStrategyRepo) Delete(ctx context.Context, userID, id int64) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM strategies WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("delete strategy: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}
