// Package oauth contains the outbound bridge to the external identity
// provider. Only the code-for-identity contract is visible to the rest
// of the service.
package oauth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Identity is the assertion returned by a successful code exchange.
type Identity struct {
	ExternalID  string
	Email       string
	DisplayName string
}

// Bridge exchanges an authorization code with the external IdP.
type Bridge interface {
	Exchange(ctx context.Context, code string) (*Identity, error)
}

const (
	googleTokenURL    = "https://oauth2.googleapis.com/token"
	googleUserInfoURL = "https://www.googleapis.com/oauth2/v2/userinfo"

	// GoogleAuthURL is the consent endpoint the initiate step redirects to.
	GoogleAuthURL = "https://accounts.google.com/o/oauth2/v2/auth"
)

// GoogleBridge is the default HTTP implementation of Bridge.
type GoogleBridge struct {
	httpClient   *http.Client
	clientID     string
	clientSecret string
	redirectURI  string
	tokenURL     string
	userInfoURL  string
}

// NewGoogleBridge constructs the bridge. A nil client gets a bounded
// timeout so a stalled IdP cannot hold the callback open.
func NewGoogleBridge(client *http.Client, clientID, clientSecret, redirectURI string) *GoogleBridge {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &GoogleBridge{
		httpClient:   client,
		clientID:     clientID,
		clientSecret: clientSecret,
		redirectURI:  redirectURI,
		tokenURL:     googleTokenURL,
		userInfoURL:  googleUserInfoURL,
	}
}

// Exchange swaps the authorization code for tokens, then resolves the
// user profile from the userinfo endpoint.
func (b *GoogleBridge) Exchange(ctx context.Context, code string) (*Identity, error) {
	data := url.Values{}
	data.Set("grant_type", "authorization_code")
	data.Set("code", code)
	data.Set("client_id", b.clientID)
	data.Set("client_secret", b.clientSecret)
	data.Set("redirect_uri", b.redirectURI)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.tokenURL, strings.NewReader(data.Encode()))
	if err != nil {
		return nil, fmt.Errorf("build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("token exchange request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read token response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("token exchange failed: status=%d", resp.StatusCode)
	}

	var tokenResp struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.Unmarshal(body, &tokenResp); err != nil {
		return nil, fmt.Errorf("decode token response: %w", err)
	}
	if strings.TrimSpace(tokenResp.AccessToken) == "" {
		return nil, fmt.Errorf("token exchange returned no access token")
	}

	return b.fetchUserInfo(ctx, tokenResp.AccessToken)
}

func (b *GoogleBridge) fetchUserInfo(ctx context.Context, accessToken string) (*Identity, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.userInfoURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build userinfo request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("userinfo request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read userinfo: %w", err)
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("userinfo failed: status=%d", resp.StatusCode)
	}

	var raw struct {
		ID    string `json:"id"`
		Email string `json:"email"`
		Name  string `json:"name"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("decode userinfo: %w", err)
	}
	if raw.ID == "" || raw.Email == "" {
		return nil, fmt.Errorf("userinfo missing subject or email")
	}

	name := strings.TrimSpace(raw.Name)
	if name == "" {
		name = strings.SplitN(raw.Email, "@", 2)[0]
	}

	return &Identity{
		ExternalID:  raw.ID,
		Email:       strings.ToLower(raw.Email),
		DisplayName: name,
	}, nil
}
