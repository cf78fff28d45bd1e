package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/healthlinkhq/healthlink-auth/internal/auth"
	"github.com/healthlinkhq/healthlink-auth/internal/repository/memory"
	"github.com/healthlinkhq/healthlink-auth/internal/service"
	"github.com/healthlinkhq/healthlink-auth/pkg/health"
	"github.com/healthlinkhq/healthlink-auth/pkg/httputil"
)

// --- Fixture ---

type recordingNotifier struct {
	mu        sync.Mutex
	otpCodes  map[string]string
	resetURLs map[string]string
}

func newRecordingNotifier() *recordingNotifier {
	return &recordingNotifier{
		otpCodes:  make(map[string]string),
		resetURLs: make(map[string]string),
	}
}

func (n *recordingNotifier) SendOTP(ctx context.Context, accountID, email, name, code string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.otpCodes[email] = code
	return nil
}

func (n *recordingNotifier) SendPasswordReset(ctx context.Context, accountID, email, name, resetURL string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.resetURLs[email] = resetURL
	return nil
}

func (n *recordingNotifier) otpFor(email string) string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.otpCodes[email]
}

func (n *recordingNotifier) resetURLFor(email string) string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.resetURLs[email]
}

type serverFixture struct {
	router   http.Handler
	notifier *recordingNotifier
}

func newServerFixture(t *testing.T) *serverFixture {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	notifier := newRecordingNotifier()
	jwtManager := auth.NewJWTManager("test-secret", 15*time.Minute, 30*24*time.Hour)
	svc := service.NewAuthService(memory.NewRepository(), jwtManager, notifier, service.DefaultConfig(), logger)

	router := NewRouter(RouterDeps{
		Service:       svc,
		JWTManager:    jwtManager,
		HealthHandler: health.NewHandler(),
		Limiter:       nil,
		OAuth:         OAuthConfig{ClientID: "test", ClientSecret: "test", RedirectURL: "http://localhost/cb"},
		CORS:          CORSConfig{Environment: "development"},
		Logger:        logger,
	})

	return &serverFixture{router: router, notifier: notifier}
}

func (f *serverFixture) do(t *testing.T, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) httputil.Response {
	t.Helper()
	var resp httputil.Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func (f *serverFixture) registerAndVerify(t *testing.T, email string) {
	t.Helper()

	rec := f.do(t, http.MethodPost, "/api/v1/auth/register", map[string]string{
		"name":     "Jordan Reyes",
		"email":    email,
		"password": "secret-pass",
	}, nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/v1/auth/verify-otp", map[string]string{
		"email": email,
		"otp":   f.notifier.otpFor(email),
	}, nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func (f *serverFixture) login(t *testing.T, email, password string) (accessToken, refreshToken string) {
	t.Helper()

	rec := f.do(t, http.MethodPost, "/api/v1/auth/login", map[string]string{
		"email":    email,
		"password": password,
	}, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Data struct {
			Tokens struct {
				AccessToken  string `json:"access_token"`
				RefreshToken string `json:"refresh_token"`
			} `json:"tokens"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.Data.Tokens.AccessToken, resp.Data.Tokens.RefreshToken
}

// --- Registration ---

func TestRegisterEndpoint_Success(t *testing.T) {
	f := newServerFixture(t)

	rec := f.do(t, http.MethodPost, "/api/v1/auth/register", map[string]string{
		"name":     "Jordan Reyes",
		"email":    "jordan@example.com",
		"password": "secret-pass",
	}, nil)

	require.Equal(t, http.StatusCreated, rec.Code)
	resp := decodeEnvelope(t, rec)
	assert.True(t, resp.Success)

	// No secret material leaks into the response body.
	body := rec.Body.String()
	assert.NotContains(t, body, "password_hash")
	assert.NotContains(t, body, "otp")
	assert.Contains(t, body, `"email_status":"sent"`)
}

func TestRegisterEndpoint_ValidationFailure(t *testing.T) {
	f := newServerFixture(t)

	rec := f.do(t, http.MethodPost, "/api/v1/auth/register", map[string]string{
		"name":     "J",
		"email":    "not-an-email",
		"password": "x",
	}, nil)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decodeEnvelope(t, rec)
	assert.False(t, resp.Success)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "VALIDATION_ERROR", resp.Error.Code)
	assert.Contains(t, resp.Error.Fields, "email")
}

func TestRegisterEndpoint_DuplicateEmail(t *testing.T) {
	f := newServerFixture(t)
	f.registerAndVerify(t, "jordan@example.com")

	rec := f.do(t, http.MethodPost, "/api/v1/auth/register", map[string]string{
		"name":     "Someone Else",
		"email":    "jordan@example.com",
		"password": "secret-pass",
	}, nil)

	require.Equal(t, http.StatusConflict, rec.Code)
	resp := decodeEnvelope(t, rec)
	assert.Equal(t, "ALREADY_EXISTS", resp.Error.Code)
}

func TestRegisterEndpoint_RequiresJSONContentType(t *testing.T) {
	f := newServerFixture(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/register", strings.NewReader("name=x"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
}

// --- Verification ---

func TestVerifyOTPEndpoint_WrongCode(t *testing.T) {
	f := newServerFixture(t)
	f.do(t, http.MethodPost, "/api/v1/auth/register", map[string]string{
		"name":     "Jordan Reyes",
		"email":    "jordan@example.com",
		"password": "secret-pass",
	}, nil)

	code := f.notifier.otpFor("jordan@example.com")
	wrong := "000000"
	if wrong == code {
		wrong = "000001"
	}

	rec := f.do(t, http.MethodPost, "/api/v1/auth/verify-otp", map[string]string{
		"email": "jordan@example.com",
		"otp":   wrong,
	}, nil)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decodeEnvelope(t, rec)
	assert.Equal(t, "OTP_MISMATCH", resp.Error.Code)
}

// --- Login ---

func TestLoginEndpoint_SuccessAndGenericFailure(t *testing.T) {
	f := newServerFixture(t)
	f.registerAndVerify(t, "jordan@example.com")

	access, refresh := f.login(t, "jordan@example.com", "secret-pass")
	assert.NotEmpty(t, access)
	assert.NotEmpty(t, refresh)

	recUnknown := f.do(t, http.MethodPost, "/api/v1/auth/login", map[string]string{
		"email":    "ghost@example.com",
		"password": "secret-pass",
	}, nil)
	recWrong := f.do(t, http.MethodPost, "/api/v1/auth/login", map[string]string{
		"email":    "jordan@example.com",
		"password": "wrong-pass",
	}, nil)

	assert.Equal(t, http.StatusUnauthorized, recUnknown.Code)
	assert.Equal(t, http.StatusUnauthorized, recWrong.Code)
	assert.Equal(t, decodeEnvelope(t, recUnknown).Message, decodeEnvelope(t, recWrong).Message)
}

func TestLoginEndpoint_LockoutReports423(t *testing.T) {
	f := newServerFixture(t)
	f.registerAndVerify(t, "jordan@example.com")

	for i := 0; i < 5; i++ {
		f.do(t, http.MethodPost, "/api/v1/auth/login", map[string]string{
			"email":    "jordan@example.com",
			"password": "wrong-pass",
		}, nil)
	}

	rec := f.do(t, http.MethodPost, "/api/v1/auth/login", map[string]string{
		"email":    "jordan@example.com",
		"password": "secret-pass",
	}, nil)

	require.Equal(t, http.StatusLocked, rec.Code)
	resp := decodeEnvelope(t, rec)
	assert.Equal(t, "ACCOUNT_LOCKED", resp.Error.Code)
	assert.Contains(t, resp.Error.Details, "retry_after_minutes")
}

func TestLoginEndpoint_UnverifiedReports403(t *testing.T) {
	f := newServerFixture(t)
	f.do(t, http.MethodPost, "/api/v1/auth/register", map[string]string{
		"name":     "Jordan Reyes",
		"email":    "jordan@example.com",
		"password": "secret-pass",
	}, nil)

	rec := f.do(t, http.MethodPost, "/api/v1/auth/login", map[string]string{
		"email":    "jordan@example.com",
		"password": "secret-pass",
	}, nil)

	require.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "NOT_VERIFIED", decodeEnvelope(t, rec).Error.Code)
}

// --- Refresh / logout / me ---

func TestRefreshEndpoint_LifecycleWithLogout(t *testing.T) {
	f := newServerFixture(t)
	f.registerAndVerify(t, "jordan@example.com")
	access, refresh := f.login(t, "jordan@example.com", "secret-pass")

	rec := f.do(t, http.MethodPost, "/api/v1/auth/refresh", map[string]string{
		"refresh_token": refresh,
	}, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/v1/auth/logout", nil, map[string]string{
		"Authorization": "Bearer " + access,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/v1/auth/refresh", map[string]string{
		"refresh_token": refresh,
	}, nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "TOKEN_REVOKED", decodeEnvelope(t, rec).Error.Code)
}

func TestRefreshEndpoint_GarbageToken(t *testing.T) {
	f := newServerFixture(t)

	rec := f.do(t, http.MethodPost, "/api/v1/auth/refresh", map[string]string{
		"refresh_token": "garbage",
	}, nil)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "TOKEN_INVALID", decodeEnvelope(t, rec).Error.Code)
}

func TestMeEndpoint(t *testing.T) {
	f := newServerFixture(t)
	f.registerAndVerify(t, "jordan@example.com")
	access, _ := f.login(t, "jordan@example.com", "secret-pass")

	rec := f.do(t, http.MethodGet, "/api/v1/auth/me", nil, map[string]string{
		"Authorization": "Bearer " + access,
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "jordan@example.com")
	assert.NotContains(t, rec.Body.String(), "password_hash")

	rec = f.do(t, http.MethodGet, "/api/v1/auth/me", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

// --- Password reset ---

func TestResetPasswordEndpoint_FullFlow(t *testing.T) {
	f := newServerFixture(t)
	f.registerAndVerify(t, "jordan@example.com")

	rec := f.do(t, http.MethodPost, "/api/v1/auth/forgot-password", map[string]string{
		"email": "jordan@example.com",
	}, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	url := f.notifier.resetURLFor("jordan@example.com")
	require.NotEmpty(t, url)
	token := url[strings.LastIndex(url, "/")+1:]

	rec = f.do(t, http.MethodPost, "/api/v1/auth/reset-password/"+token, map[string]string{
		"password": "brand-new-pass",
	}, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	// New password works; the consumed token does not.
	f.login(t, "jordan@example.com", "brand-new-pass")

	rec = f.do(t, http.MethodPost, "/api/v1/auth/reset-password/"+token, map[string]string{
		"password": "yet-another-pass",
	}, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "RESET_INVALID", decodeEnvelope(t, rec).Error.Code)
}

func TestForgotPasswordEndpoint_UnknownEmailSameResponse(t *testing.T) {
	f := newServerFixture(t)
	f.registerAndVerify(t, "jordan@example.com")

	recKnown := f.do(t, http.MethodPost, "/api/v1/auth/forgot-password", map[string]string{
		"email": "jordan@example.com",
	}, nil)
	recUnknown := f.do(t, http.MethodPost, "/api/v1/auth/forgot-password", map[string]string{
		"email": "ghost@example.com",
	}, nil)

	assert.Equal(t, recKnown.Code, recUnknown.Code)
	assert.Equal(t, decodeEnvelope(t, recKnown).Message, decodeEnvelope(t, recUnknown).Message)
}

// --- Federation ---

func TestGoogleLoginEndpoint_RedirectsWithStateCookie(t *testing.T) {
	f := newServerFixture(t)

	rec := f.do(t, http.MethodGet, "/api/v1/auth/google", nil, nil)

	require.Equal(t, http.StatusTemporaryRedirect, rec.Code)
	location := rec.Header().Get("Location")
	assert.Contains(t, location, "accounts.google.com")

	var state string
	for _, c := range rec.Result().Cookies() {
		if c.Name == oauthStateCookie {
			state = c.Value
		}
	}
	require.NotEmpty(t, state)
	assert.Contains(t, location, "state="+state)
}

func TestGoogleCallbackEndpoint_StateMismatch(t *testing.T) {
	f := newServerFixture(t)

	rec := f.do(t, http.MethodGet, "/api/v1/auth/google/callback?state=forged&code=abc", nil, nil)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "FEDERATION_FAILED", decodeEnvelope(t, rec).Error.Code)
}

func TestGoogleCallbackEndpoint_FullExchange(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	notifier := newRecordingNotifier()
	jwtManager := auth.NewJWTManager("test-secret", 15*time.Minute, 30*24*time.Hour)
	svc := service.NewAuthService(memory.NewRepository(), jwtManager, notifier, service.DefaultConfig(), logger)

	// Stub provider serving both the token exchange and the userinfo fetch.
	provider := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/token":
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprint(w, `{"access_token":"provider-token","token_type":"Bearer","expires_in":3600}`)
		case "/userinfo":
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprint(w, `{"id":"sub-42","email":"jordan@example.com","name":"Jordan Reyes"}`)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer provider.Close()

	h := NewOAuthHandler(OAuthConfig{ClientID: "test", ClientSecret: "test", RedirectURL: "http://localhost/cb"}, svc, logger)
	h.conf.Endpoint.AuthURL = provider.URL + "/auth"
	h.conf.Endpoint.TokenURL = provider.URL + "/token"
	h.userInfoURL = provider.URL + "/userinfo"

	req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/google/callback?state=st-1&code=good-code", nil)
	req.AddCookie(&http.Cookie{Name: oauthStateCookie, Value: "st-1"})
	rec := httptest.NewRecorder()
	h.GoogleCallback(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "jordan@example.com")
	assert.Contains(t, body, "refresh_token")
}
