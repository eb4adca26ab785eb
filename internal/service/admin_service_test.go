package service_test

import (
	"context"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ambrosia-fish/armatillo-api/internal/domain"
	"github.com/ambrosia-fish/armatillo-api/internal/service"
)

func newAdminFixture(t *testing.T) (*service.AdminService, *memoryUserRepo, *memoryAccessRequestRepo) {
	t.Helper()
	users := newMemoryUserRepo()
	requests := newMemoryAccessRequestRepo()
	node, err := snowflake.NewNode(3)
	require.NoError(t, err)
	return service.NewAdminService(users, requests, node, zap.NewNop()), users, requests
}

func TestApproveAccessRequestFlipsUser(t *testing.T) {
	ctx := context.Background()
	admin, users, _ := newAdminFixture(t)

	_, err := users.Create(ctx, domain.User{ID: 1, Email: "waiting@example.com"})
	require.NoError(t, err)

	req, err := admin.CreateAccessRequest(ctx, "Waiting@Example.com", "via test")
	require.NoError(t, err)
	require.Equal(t, domain.AccessStatusPending, req.Status)

	updated, err := admin.ApproveAccessRequest(ctx, req.ID, "root@example.com")
	require.NoError(t, err)
	require.Equal(t, domain.AccessStatusApproved, updated.Status)
	require.Contains(t, updated.Notes, "root@example.com")

	user, err := users.GetByEmail(ctx, "waiting@example.com")
	require.NoError(t, err)
	require.True(t, user.Approved)
}

// Approving a request for an email with no account yet is not an
// error; the flag applies when the account appears.
func TestApproveAccessRequestWithoutAccount(t *testing.T) {
	ctx := context.Background()
	admin, _, _ := newAdminFixture(t)

	req, err := admin.CreateAccessRequest(ctx, "future@example.com", "")
	require.NoError(t, err)

	updated, err := admin.ApproveAccessRequest(ctx, req.ID, "root@example.com")
	require.NoError(t, err)
	require.Equal(t, domain.AccessStatusApproved, updated.Status)
}

func TestRejectAccessRequest(t *testing.T) {
	ctx := context.Background()
	admin, _, _ := newAdminFixture(t)

	req, err := admin.CreateAccessRequest(ctx, "nope@example.com", "")
	require.NoError(t, err)

	updated, err := admin.RejectAccessRequest(ctx, req.ID, "root@example.com", "unknown requester")
	require.NoError(t, err)
	require.Equal(t, domain.AccessStatusRejected, updated.Status)
	require.Contains(t, updated.Notes, "unknown requester")
}

func TestCreateAccessRequestDeduplicates(t *testing.T) {
	ctx := context.Background()
	admin, _, requests := newAdminFixture(t)

	first, err := admin.CreateAccessRequest(ctx, "dup@example.com", "")
	require.NoError(t, err)

	second, err := admin.CreateAccessRequest(ctx, "dup@example.com", "again")
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID)

	list, err := requests.List(ctx, "")
	require.NoError(t, err)
	require.Len(t, list, 1)
}

func TestListAccessRequestsRejectsBadFilter(t *testing.T) {
	ctx := context.Background()
	admin, _, _ := newAdminFixture(t)

	_, err := admin.ListAccessRequests(ctx, "bogus")
	requireServiceError(t, err, 400)
}

func TestApproveMissingRequest(t *testing.T) {
	ctx := context.Background()
	admin, _, _ := newAdminFixture(t)

	_, err := admin.ApproveAccessRequest(ctx, 999, "root@example.com")
	requireServiceError(t, err, 404)
}
