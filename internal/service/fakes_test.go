package service_test

import (
	"context"
	"sync"
	"time"

	"github.com/ambrosia-fish/armatillo-api/internal/domain"
	"github.com/ambrosia-fish/armatillo-api/internal/pkce"

	oauthbridge "github.com/ambrosia-fish/armatillo-api/internal/adapter/oauth"
)

type memoryUserRepo struct {
	mu    sync.Mutex
	users map[int64]domain.User
}

func newMemoryUserRepo() *memoryUserRepo {
	return &memoryUserRepo{users: map[int64]domain.User{}}
}

func (r *memoryUserRepo) Create(_ context.Context, user domain.User) (domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.users {
		if existing.Email == user.Email {
			return domain.User{}, domain.ErrEmailTaken
		}
	}
	user.CreatedAt = time.Now().UTC()
	user.UpdatedAt = user.CreatedAt
	r.users[user.ID] = user
	return user, nil
}

func (r *memoryUserRepo) GetByID(_ context.Context, id int64) (domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[id]
	if !ok {
		return domain.User{}, domain.ErrNotFound
	}
	return user, nil
}

func (r *memoryUserRepo) GetByEmail(_ context.Context, email string) (domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, user := range r.users {
		if user.Email == email {
			return user, nil
		}
	}
	return domain.User{}, domain.ErrNotFound
}

func (r *memoryUserRepo) GetByGoogleID(_ context.Context, googleID string) (domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, user := range r.users {
		if user.GoogleID != "" && user.GoogleID == googleID {
			return user, nil
		}
	}
	return domain.User{}, domain.ErrNotFound
}

func (r *memoryUserRepo) LinkGoogleID(_ context.Context, userID int64, googleID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[userID]
	if !ok {
		return domain.ErrNotFound
	}
	user.GoogleID = googleID
	r.users[userID] = user
	return nil
}

func (r *memoryUserRepo) SetApprovedByEmail(_ context.Context, email string, approved bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, user := range r.users {
		if user.Email == email {
			user.Approved = approved
			r.users[id] = user
			return nil
		}
	}
	return domain.ErrNotFound
}

func (r *memoryUserRepo) approve(id int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	user := r.users[id]
	user.Approved = true
	r.users[id] = user
}

type memoryRefreshRepo struct {
	mu     sync.Mutex
	tokens map[string]domain.RefreshToken
}

func newMemoryRefreshRepo() *memoryRefreshRepo {
	return &memoryRefreshRepo{tokens: map[string]domain.RefreshToken{}}
}

func (r *memoryRefreshRepo) Create(_ context.Context, rt domain.RefreshToken) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tokens[rt.Token] = rt
	return nil
}

func (r *memoryRefreshRepo) Consume(_ context.Context, token string) (domain.RefreshToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rt, ok := r.tokens[token]
	if !ok || !rt.ExpiresAt.After(time.Now()) {
		return domain.RefreshToken{}, domain.ErrNotFound
	}
	delete(r.tokens, token)
	return rt, nil
}

func (r *memoryRefreshRepo) Delete(_ context.Context, token string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tokens, token)
	return nil
}

func (r *memoryRefreshRepo) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for token, rt := range r.tokens {
		if !rt.ExpiresAt.After(now) {
			delete(r.tokens, token)
			n++
		}
	}
	return n, nil
}

type memoryBlacklistRepo struct {
	mu      sync.Mutex
	entries map[string]domain.BlacklistedToken
}

func newMemoryBlacklistRepo() *memoryBlacklistRepo {
	return &memoryBlacklistRepo{entries: map[string]domain.BlacklistedToken{}}
}

func (r *memoryBlacklistRepo) Add(_ context.Context, entry domain.BlacklistedToken) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[entry.Fingerprint]; !ok {
		r.entries[entry.Fingerprint] = entry
	}
	return nil
}

func (r *memoryBlacklistRepo) Contains(_ context.Context, fingerprint string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.entries[fingerprint]
	return ok, nil
}

func (r *memoryBlacklistRepo) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for fp, entry := range r.entries {
		if !entry.ExpiresAt.After(now) {
			delete(r.entries, fp)
			n++
		}
	}
	return n, nil
}

type memoryAccessRequestRepo struct {
	mu       sync.Mutex
	requests map[int64]domain.AccessRequest
}

func newMemoryAccessRequestRepo() *memoryAccessRequestRepo {
	return &memoryAccessRequestRepo{requests: map[int64]domain.AccessRequest{}}
}

func (r *memoryAccessRequestRepo) Create(_ context.Context, req domain.AccessRequest) (domain.AccessRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.requests {
		if existing.Email == req.Email {
			return domain.AccessRequest{}, domain.ErrDuplicate
		}
	}
	req.CreatedAt = time.Now().UTC()
	req.UpdatedAt = req.CreatedAt
	r.requests[req.ID] = req
	return req, nil
}

func (r *memoryAccessRequestRepo) GetByID(_ context.Context, id int64) (domain.AccessRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	req, ok := r.requests[id]
	if !ok {
		return domain.AccessRequest{}, domain.ErrNotFound
	}
	return req, nil
}

func (r *memoryAccessRequestRepo) GetByEmail(_ context.Context, email string) (domain.AccessRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, req := range r.requests {
		if req.Email == email {
			return req, nil
		}
	}
	return domain.AccessRequest{}, domain.ErrNotFound
}

func (r *memoryAccessRequestRepo) List(_ context.Context, status string) ([]domain.AccessRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.AccessRequest
	for _, req := range r.requests {
		if status == "" || req.Status == status {
			out = append(out, req)
		}
	}
	return out, nil
}

func (r *memoryAccessRequestRepo) UpdateStatus(_ context.Context, id int64, status, notes string) (domain.AccessRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	req, ok := r.requests[id]
	if !ok {
		return domain.AccessRequest{}, domain.ErrNotFound
	}
	req.Status = status
	req.Notes = notes
	req.UpdatedAt = time.Now().UTC()
	r.requests[id] = req
	return req, nil
}

type memorySessionStore struct {
	mu     sync.Mutex
	states map[string]string
	pkces  map[string]pkce.Challenge
}

func newMemorySessionStore() *memorySessionStore {
	return &memorySessionStore{states: map[string]string{}, pkces: map[string]pkce.Challenge{}}
}

func (s *memorySessionStore) SaveState(_ context.Context, sessionID, state string, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[sessionID] = state
	return nil
}

func (s *memorySessionStore) State(_ context.Context, sessionID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.states[sessionID], nil
}

func (s *memorySessionStore) DeleteState(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.states, sessionID)
	return nil
}

func (s *memorySessionStore) SavePKCE(_ context.Context, sessionID string, challenge pkce.Challenge, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pkces[sessionID] = challenge
	return nil
}

func (s *memorySessionStore) PKCE(_ context.Context, sessionID string) (*pkce.Challenge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	challenge, ok := s.pkces[sessionID]
	if !ok {
		return nil, nil
	}
	return &challenge, nil
}

func (s *memorySessionStore) DeletePKCE(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pkces, sessionID)
	return nil
}

type fakeBridge struct {
	identity *oauthbridge.Identity
	err      error
	calls    int
}

func (b *fakeBridge) Exchange(_ context.Context, _ string) (*oauthbridge.Identity, error) {
	b.calls++
	if b.err != nil {
		return nil, b.err
	}
	return b.identity, nil
}
