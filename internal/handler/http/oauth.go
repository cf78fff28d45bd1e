package http

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/healthlinkhq/healthlink-auth/internal/service"
	apperrors "github.com/healthlinkhq/healthlink-auth/pkg/errors"
	"github.com/healthlinkhq/healthlink-auth/pkg/httputil"
)

const (
	oauthStateCookie = "oauth_state"
	oauthStateTTL    = 10 * time.Minute

	googleUserInfoURL = "https://www.googleapis.com/oauth2/v2/userinfo"
)

// OAuthConfig holds the Google federation settings.
type OAuthConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string

	// Secure controls the state cookie's Secure flag; off only in development.
	Secure bool
}

// OAuthHandler implements the Google federation endpoints.
type OAuthHandler struct {
	conf    *oauth2.Config
	service *service.AuthService
	logger  *slog.Logger
	secure  bool

	// userInfoURL is swapped in tests to point at a stub provider.
	userInfoURL string
}

// NewOAuthHandler creates the Google federation handler.
func NewOAuthHandler(cfg OAuthConfig, svc *service.AuthService, logger *slog.Logger) *OAuthHandler {
	return &OAuthHandler{
		conf: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Endpoint:     google.Endpoint,
			Scopes:       []string{"openid", "email", "profile"},
		},
		service:     svc,
		logger:      logger,
		secure:      cfg.Secure,
		userInfoURL: googleUserInfoURL,
	}
}

// googleProfile is the subset of the userinfo response the service needs.
type googleProfile struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

// GoogleLogin handles GET /api/v1/auth/google: issues a state cookie and
// redirects to the provider's consent screen.
func (h *OAuthHandler) GoogleLogin(w http.ResponseWriter, r *http.Request) {
	state, err := newStateToken()
	if err != nil {
		httputil.WriteError(w, r, apperrors.Internal(err), h.logger)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     oauthStateCookie,
		Value:    state,
		Path:     "/api/v1/auth/google",
		MaxAge:   int(oauthStateTTL.Seconds()),
		HttpOnly: true,
		Secure:   h.secure,
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(w, r, h.conf.AuthCodeURL(state), http.StatusTemporaryRedirect)
}

// GoogleCallback handles GET /api/v1/auth/google/callback: verifies the state
// cookie, exchanges the code, fetches the profile, and signs the identity in.
func (h *OAuthHandler) GoogleCallback(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(oauthStateCookie)
	if err != nil || cookie.Value == "" || cookie.Value != r.URL.Query().Get("state") {
		httputil.WriteError(w, r, apperrors.FederationFailed(errors.New("state mismatch")), h.logger)
		return
	}

	// The state is single-use.
	http.SetCookie(w, &http.Cookie{
		Name:     oauthStateCookie,
		Value:    "",
		Path:     "/api/v1/auth/google",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.secure,
		SameSite: http.SameSiteLaxMode,
	})

	code := r.URL.Query().Get("code")
	if code == "" {
		httputil.WriteError(w, r, apperrors.FederationFailed(errors.New("missing authorization code")), h.logger)
		return
	}

	token, err := h.conf.Exchange(r.Context(), code)
	if err != nil {
		httputil.WriteError(w, r, apperrors.FederationFailed(fmt.Errorf("code exchange: %w", err)), h.logger)
		return
	}

	profile, err := h.fetchProfile(r, token)
	if err != nil {
		httputil.WriteError(w, r, apperrors.FederationFailed(err), h.logger)
		return
	}

	account, tokens, err := h.service.LoginWithExternalIdentity(r.Context(), service.ExternalIdentity{
		Provider: "google",
		Subject:  profile.ID,
		Email:    profile.Email,
		Name:     profile.Name,
	})
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteSuccess(w, http.StatusOK, "login successful", AuthResponse{
		Account: account,
		Tokens:  tokens,
	})
}

func (h *OAuthHandler) fetchProfile(r *http.Request, token *oauth2.Token) (*googleProfile, error) {
	client := h.conf.Client(r.Context(), token)
	resp, err := client.Get(h.userInfoURL)
	if err != nil {
		return nil, fmt.Errorf("fetch userinfo: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("userinfo returned status %d", resp.StatusCode)
	}

	var profile googleProfile
	if err := json.NewDecoder(resp.Body).Decode(&profile); err != nil {
		return nil, fmt.Errorf("decode userinfo: %w", err)
	}
	if profile.ID == "" || profile.Email == "" {
		return nil, errors.New("incomplete userinfo profile")
	}

	return &profile, nil
}

func newStateToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate state token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
