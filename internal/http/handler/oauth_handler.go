package handler

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ambrosia-fish/armatillo-api/internal/config"
	"github.com/ambrosia-fish/armatillo-api/internal/service"
)

// sessionCookie ties the OAuth initiation and callback legs of one
// browser to the same stored state and PKCE challenge.
const sessionCookie = "arm_session"

// OAuthHandler exposes the Google OAuth + PKCE endpoints. Callback
// results are delivered to the mobile app through its deep-link scheme.
type OAuthHandler struct {
	OAuth *service.OAuthService
	cfg   config.Config
}

// NewOAuthHandler creates the handler set.
func NewOAuthHandler(oauth *service.OAuthService, cfg config.Config) *OAuthHandler {
	return &OAuthHandler{OAuth: oauth, cfg: cfg}
}

// Start begins the Google consent flow for the mobile app.
func (h *OAuthHandler) Start(c *gin.Context) {
	sessionID := h.ensureSession(c)

	in := service.StartInput{
		SessionID:           sessionID,
		State:               c.Query("state"),
		CodeChallenge:       c.Query("code_challenge"),
		CodeChallengeMethod: c.Query("code_challenge_method"),
		Prompt:              c.Query("prompt"),
		ForceLogin:          c.Query("force_login") == "true",
	}
	authURL, err := h.OAuth.Start(c.Request.Context(), in)
	if err != nil {
		respondError(c, err)
		return
	}
	c.Redirect(http.StatusFound, authURL)
}

// Callback receives the IdP redirect and hands the result to the app
// via deep link.
func (h *OAuthHandler) Callback(c *gin.Context) {
	if idpErr := c.Query("error"); idpErr != "" {
		h.redirectError(c, idpErr)
		return
	}

	sessionID, err := c.Cookie(sessionCookie)
	if err != nil {
		sessionID = ""
	}

	outcome, err := h.OAuth.HandleCallback(c.Request.Context(), service.CallbackInput{
		SessionID: sessionID,
		Code:      c.Query("code"),
		State:     c.Query("state"),
	})
	if err != nil {
		h.redirectError(c, errorCode(err))
		return
	}

	switch {
	case outcome.Pending:
		h.redirectError(c, "pending_approval")
	case outcome.AuthCode != "":
		params := url.Values{}
		params.Set("code", outcome.AuthCode)
		if outcome.State != "" {
			params.Set("state", outcome.State)
		}
		c.Redirect(http.StatusFound, h.appLink("auth/callback")+"?"+params.Encode())
	default:
		params := url.Values{}
		params.Set("token", outcome.Tokens.AccessToken)
		params.Set("refresh_token", outcome.Tokens.RefreshToken)
		params.Set("expires_in", strconv.Itoa(outcome.Tokens.ExpiresIn))
		if outcome.State != "" {
			params.Set("state", outcome.State)
		}
		c.Redirect(http.StatusFound, h.appLink("auth/callback")+"?"+params.Encode())
	}
}

// Exchange redeems a PKCE authorization code for tokens.
func (h *OAuthHandler) Exchange(c *gin.Context) {
	var req struct {
		Code         string `json:"code" binding:"required"`
		CodeVerifier string `json:"code_verifier" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "error_description": "code and code_verifier are required."})
		return
	}

	sessionID, err := c.Cookie(sessionCookie)
	if err != nil {
		sessionID = ""
	}

	pair, err := h.OAuth.ExchangeCode(c.Request.Context(), sessionID, req.Code, req.CodeVerifier, requestMeta(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, pair)
}

// ensureSession returns the browser's session id, minting and setting
// the cookie when absent.
func (h *OAuthHandler) ensureSession(c *gin.Context) string {
	if sid, err := c.Cookie(sessionCookie); err == nil && sid != "" {
		return sid
	}
	sid := uuid.NewString()
	maxAge := int(h.cfg.PKCEMaxAge.Seconds())
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(sessionCookie, sid, maxAge, "/", "", h.cfg.IsProduction(), true)
	return sid
}

func (h *OAuthHandler) redirectError(c *gin.Context, code string) {
	c.Redirect(http.StatusFound, h.appLink("auth-error")+"?error="+url.QueryEscape(code))
}

func (h *OAuthHandler) appLink(path string) string {
	scheme := h.cfg.AppScheme
	if !strings.HasSuffix(scheme, "://") {
		scheme += "://"
	}
	return scheme + path
}

func errorCode(err error) string {
	if svcErr, ok := err.(*service.Error); ok {
		return svcErr.Code
	}
	return "server_error"
}
