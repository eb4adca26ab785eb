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

// AdminService manages the access-request approval queue.
type AdminService struct {
	users    repository.UserRepository
	requests repository.AccessRequestRepository
	node     *snowflake.Node
	logger   *zap.Logger
}

// NewAdminService wires dependencies.
func NewAdminService(
	users repository.UserRepository,
	requests repository.AccessRequestRepository,
	node *snowflake.Node,
	logger *zap.Logger,
) *AdminService {
	return &AdminService{users: users, requests: requests, node: node, logger: logger}
}

// ListAccessRequests returns the queue, optionally filtered by status.
func (s *AdminService) ListAccessRequests(ctx context.Context, status string) ([]domain.AccessRequest, error) {
	status = strings.TrimSpace(strings.ToLower(status))
	switch status {
	case "", domain.AccessStatusPending, domain.AccessStatusApproved, domain.AccessStatusRejected:
	default:
		return nil, newError("validation", "Unknown status filter.", http.StatusBadRequest)
	}
	list, err := s.requests.List(ctx, status)
	if err != nil {
		return nil, fmt.Errorf("list access requests: %w", err)
	}
	return list, nil
}

// CreateAccessRequest enqueues a manual request for the given email.
// Duplicate emails return the existing record.
func (s *AdminService) CreateAccessRequest(ctx context.Context, email, notes string) (domain.AccessRequest, error) {
	normalized := strings.ToLower(strings.TrimSpace(email))
	if normalized == "" || !strings.Contains(normalized, "@") {
		return domain.AccessRequest{}, newError("validation", "A valid email is required.", http.StatusBadRequest)
	}

	req, err := s.requests.Create(ctx, domain.AccessRequest{
		ID:     s.node.Generate().Int64(),
		Email:  normalized,
		Status: domain.AccessStatusPending,
		Notes:  strings.TrimSpace(notes),
	})
	if errors.Is(err, domain.ErrDuplicate) {
		existing, lookupErr := s.requests.GetByEmail(ctx, normalized)
		if lookupErr != nil {
			return domain.AccessRequest{}, fmt.Errorf("load existing access request: %w", lookupErr)
		}
		return existing, nil
	}
	if err != nil {
		return domain.AccessRequest{}, fmt.Errorf("create access request: %w", err)
	}

	s.logger.Info("audit",
		zap.String("event", "access_request.created"),
		zap.Int64("request_id", req.ID),
	)
	return req, nil
}

// ApproveAccessRequest marks the request approved and flips the
// matching user's approved flag when an account already exists.
func (s *AdminService) ApproveAccessRequest(ctx context.Context, id int64, adminEmail string) (domain.AccessRequest, error) {
	req, err := s.requests.GetByID(ctx, id)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.AccessRequest{}, newError("not_found", "Access request not found.", http.StatusNotFound)
	}
	if err != nil {
		return domain.AccessRequest{}, fmt.Errorf("load access request: %w", err)
	}

	notes := fmt.Sprintf("Approved by %s on %s", adminEmail, time.Now().UTC().Format(time.RFC3339))
	updated, err := s.requests.UpdateStatus(ctx, req.ID, domain.AccessStatusApproved, notes)
	if err != nil {
		return domain.AccessRequest{}, fmt.Errorf("update access request: %w", err)
	}

	// The requester may not have registered yet. Approval then takes
	// effect when the account is created with this email.
	if err := s.users.SetApprovedByEmail(ctx, req.Email, true); err != nil && !errors.Is(err, domain.ErrNotFound) {
		return domain.AccessRequest{}, fmt.Errorf("approve user: %w", err)
	}

	s.logger.Info("audit",
		zap.String("event", "access_request.approved"),
		zap.Int64("request_id", req.ID),
		zap.String("admin", adminEmail),
	)
	return updated, nil
}

// RejectAccessRequest marks the request rejected.
func (s *AdminService) RejectAccessRequest(ctx context.Context, id int64, adminEmail, reason string) (domain.AccessRequest, error) {
	req, err := s.requests.GetByID(ctx, id)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.AccessRequest{}, newError("not_found", "Access request not found.", http.StatusNotFound)
	}
	if err != nil {
		return domain.AccessRequest{}, fmt.Errorf("load access request: %w", err)
	}

	notes := fmt.Sprintf("Rejected by %s on %s", adminEmail, time.Now().UTC().Format(time.RFC3339))
	if reason = strings.TrimSpace(reason); reason != "" {
		notes += ": " + reason
	}
	updated, err := s.requests.UpdateStatus(ctx, req.ID, domain.AccessStatusRejected, notes)
	if err != nil {
		return domain.AccessRequest{}, fmt.Errorf("update access request: %w", err)
	}

	s.logger.Info("audit",
		zap.String("event", "access_request.rejected"),
		zap.Int64("request_id", req.ID),
		zap.String("admin", adminEmail),
	)
	return updated, nil
}
