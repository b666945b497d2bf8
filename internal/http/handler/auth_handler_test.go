package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/taskhive/taskhive-auth/internal/config"
	"github.com/taskhive/taskhive-auth/internal/domain"
	httptransport "github.com/taskhive/taskhive-auth/internal/http"
	"github.com/taskhive/taskhive-auth/internal/http/handler"
	"github.com/taskhive/taskhive-auth/internal/http/middleware"
	"github.com/taskhive/taskhive-auth/internal/mail"
	"github.com/taskhive/taskhive-auth/internal/password"
	"github.com/taskhive/taskhive-auth/internal/repository"
	"github.com/taskhive/taskhive-auth/internal/service"
	"github.com/taskhive/taskhive-auth/internal/token"
)

type testServer struct {
	router   *gin.Engine
	accounts *repository.MemoryAccountRepo
	mailer   *recordingMailer
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := config.Config{
		Environment:          "test",
		ServiceName:          "taskhive-auth",
		AccessTokenTTL:       15 * time.Minute,
		RefreshTokenTTL:      7 * 24 * time.Hour,
		VerificationTokenTTL: 7 * 24 * time.Hour,
		ResetTokenTTL:        15 * time.Minute,
		FrontendURL:          "https://app.taskhive.test",
	}

	signer, err := token.NewSigner(
		[]byte("test-access-secret-0123456789abcdef"),
		[]byte("test-refresh-secret-0123456789abcde"),
		cfg.AccessTokenTTL, cfg.RefreshTokenTTL,
	)
	require.NoError(t, err)

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	accounts := repository.NewMemoryAccountRepo()
	mailer := &recordingMailer{}
	logger := zap.NewNop()

	svc := service.NewAuthService(accounts, repository.NewMemoryLedger(), signer, mailer, node, cfg, logger)
	router := httptransport.NewRouter(cfg, handler.NewAuthHandler(svc, logger), &middleware.Auth{AuthService: svc}, logger)

	return &testServer{router: router, accounts: accounts, mailer: mailer}
}

func (s *testServer) do(t *testing.T, method, path string, body any, bearer string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) register(t *testing.T, email, name, passwd string) envelope {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/auth/register", gin.H{
		"email": email, "name": name, "password": passwd,
	}, "")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode(t, rec)
}

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return env
}

type authData struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	User         struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"user"`
}

func decodeAuth(t *testing.T, env envelope) authData {
	t.Helper()
	var data authData
	require.NoError(t, json.Unmarshal(env.Data, &data))
	return data
}

func TestRegisterEndpoint(t *testing.T) {
	s := newTestServer(t)

	env := s.register(t, "a@x.com", "Ann", "secret1")
	require.True(t, env.Success)
	require.Equal(t, "User created successfully, please verify your email", env.Message)

	data := decodeAuth(t, env)
	require.NotEmpty(t, data.AccessToken)
	require.NotEmpty(t, data.RefreshToken)
	require.Equal(t, "Ann", data.User.Name)

	// Snowflake ids serialize as decimal strings so browser clients keep
	// precision.
	_, err := strconv.ParseInt(data.User.ID, 10, 64)
	require.NoError(t, err)
}

func TestRegisterEndpointRejectsBadPayload(t *testing.T) {
	s := newTestServer(t)

	cases := []gin.H{
		{"email": "not-an-email", "name": "Ann", "password": "secret1"},
		{"email": "a@x.com", "name": "Ann", "password": "short"},
		{"email": "a@x.com", "password": "secret1"},
	}
	for _, body := range cases {
		rec := s.do(t, http.MethodPost, "/auth/register", body, "")
		require.Equal(t, http.StatusBadRequest, rec.Code)
		env := decode(t, rec)
		require.False(t, env.Success)
		require.Equal(t, "Invalid payload", env.Message)
	}
}

func TestRegisterEndpointDuplicateEmail(t *testing.T) {
	s := newTestServer(t)
	s.register(t, "dup@x.com", "First", "secret1")

	rec := s.do(t, http.MethodPost, "/auth/register", gin.H{
		"email": "dup@x.com", "name": "Second", "password": "secret2",
	}, "")
	require.Equal(t, http.StatusConflict, rec.Code)
	require.Equal(t, "Email already registered", decode(t, rec).Message)
}

func TestLoginFailureBodiesAreByteIdentical(t *testing.T) {
	s := newTestServer(t)
	s.register(t, "a@x.com", "Ann", "secret1")

	wrongPassword := s.do(t, http.MethodPost, "/auth/login", gin.H{
		"email": "a@x.com", "password": "nope",
	}, "")
	unknownEmail := s.do(t, http.MethodPost, "/auth/login", gin.H{
		"email": "ghost@x.com", "password": "secret1",
	}, "")

	require.Equal(t, http.StatusUnauthorized, wrongPassword.Code)
	require.Equal(t, http.StatusUnauthorized, unknownEmail.Code)
	require.Equal(t, wrongPassword.Body.Bytes(), unknownEmail.Body.Bytes())
}

func TestVerifyEmailEndpoint(t *testing.T) {
	s := newTestServer(t)
	s.register(t, "a@x.com", "Ann", "secret1")

	raw := s.mailer.lastToken(t)
	rec := s.do(t, http.MethodGet, "/auth/verify-email/"+raw, nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "Email verified successfully", decode(t, rec).Message)

	rec = s.do(t, http.MethodGet, "/auth/verify-email/"+raw, nil, "")
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Equal(t, "User not found", decode(t, rec).Message)
}

func TestRefreshTokenEndpoint(t *testing.T) {
	s := newTestServer(t)
	registered := decodeAuth(t, s.register(t, "a@x.com", "Ann", "secret1"))

	rec := s.do(t, http.MethodPost, "/auth/refresh-token", gin.H{}, "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "Refresh token is required", decode(t, rec).Message)

	rec = s.do(t, http.MethodPost, "/auth/refresh-token", gin.H{
		"refreshToken": registered.RefreshToken,
	}, "")
	require.Equal(t, http.StatusOK, rec.Code)
	rotated := decodeAuth(t, decode(t, rec))
	require.NotEmpty(t, rotated.AccessToken)
	require.NotEqual(t, registered.RefreshToken, rotated.RefreshToken)

	// The presented token was consumed by the rotation.
	rec = s.do(t, http.MethodPost, "/auth/refresh-token", gin.H{
		"refreshToken": registered.RefreshToken,
	}, "")
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAccessGateRejections(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/auth/me", nil, "")
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Equal(t, "Authorization header required", decode(t, rec).Message)

	req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	req.Header.Set("Authorization", "Token abc")
	malformed := httptest.NewRecorder()
	s.router.ServeHTTP(malformed, req)
	require.Equal(t, http.StatusUnauthorized, malformed.Code)
	require.Equal(t, "Bearer token required", decode(t, malformed).Message)

	rec = s.do(t, http.MethodGet, "/auth/me", nil, "garbage")
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Equal(t, "Invalid or expired access token", decode(t, rec).Message)
}

func TestMeEchoesVerifiedIdentity(t *testing.T) {
	s := newTestServer(t)
	registered := decodeAuth(t, s.register(t, "a@x.com", "Ann", "secret1"))

	rec := s.do(t, http.MethodGet, "/auth/me", nil, registered.AccessToken)
	require.Equal(t, http.StatusOK, rec.Code)

	var data struct {
		ID   string `json:"id"`
		Name string `json:"name"`
		Role string `json:"role"`
	}
	require.NoError(t, json.Unmarshal(decode(t, rec).Data, &data))
	require.Equal(t, registered.User.ID, data.ID)
	require.Equal(t, "Ann", data.Name)
	require.Equal(t, string(domain.RoleUser), data.Role)
}

func TestLogoutEndpointRevokesSession(t *testing.T) {
	s := newTestServer(t)
	registered := decodeAuth(t, s.register(t, "a@x.com", "Ann", "secret1"))

	rec := s.do(t, http.MethodPost, "/auth/logout", nil, registered.AccessToken)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "Logged out successfully", decode(t, rec).Message)

	rec = s.do(t, http.MethodGet, "/auth/me", nil, registered.AccessToken)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Equal(t, "Access token has been revoked", decode(t, rec).Message)

	rec = s.do(t, http.MethodPost, "/auth/refresh-token", gin.H{
		"refreshToken": registered.RefreshToken,
	}, "")
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestForgotPasswordBodiesAreByteIdentical(t *testing.T) {
	s := newTestServer(t)
	s.register(t, "a@x.com", "Ann", "secret1")

	known := s.do(t, http.MethodPost, "/auth/forgot-password", gin.H{"email": "a@x.com"}, "")
	unknown := s.do(t, http.MethodPost, "/auth/forgot-password", gin.H{"email": "ghost@x.com"}, "")

	require.Equal(t, http.StatusOK, known.Code)
	require.Equal(t, http.StatusOK, unknown.Code)
	require.Equal(t, known.Body.Bytes(), unknown.Body.Bytes())
	require.Contains(t, known.Body.String(), service.MsgResetRequested)
}

func TestResetPasswordEndpoint(t *testing.T) {
	s := newTestServer(t)
	s.register(t, "a@x.com", "Ann", "secret1")

	rec := s.do(t, http.MethodPost, "/auth/forgot-password", gin.H{"email": "a@x.com"}, "")
	require.Equal(t, http.StatusOK, rec.Code)

	raw := s.mailer.lastToken(t)
	rec = s.do(t, http.MethodPost, "/auth/reset-password/"+raw, gin.H{"newPassword": "secret2"}, "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "Password reset done, please login with your new password", decode(t, rec).Message)

	rec = s.do(t, http.MethodPost, "/auth/reset-password/"+raw, gin.H{"newPassword": "secret3"}, "")
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(t, http.MethodPost, "/auth/login", gin.H{"email": "a@x.com", "password": "secret2"}, "")
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestChangePasswordEndpoint(t *testing.T) {
	s := newTestServer(t)
	registered := decodeAuth(t, s.register(t, "a@x.com", "Ann", "secret1"))

	rec := s.do(t, http.MethodPut, "/auth/change-password", gin.H{
		"currentPassword": "wrong", "newPassword": "secret2",
	}, registered.AccessToken)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "Current password is incorrect", decode(t, rec).Message)

	rec = s.do(t, http.MethodPut, "/auth/change-password", gin.H{
		"currentPassword": "secret1", "newPassword": "secret2",
	}, registered.AccessToken)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodPost, "/auth/login", gin.H{"email": "a@x.com", "password": "secret2"}, "")
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestAdminAccountsRequiresAdminRole(t *testing.T) {
	s := newTestServer(t)
	registered := decodeAuth(t, s.register(t, "a@x.com", "Ann", "secret1"))

	rec := s.do(t, http.MethodGet, "/admin/accounts", nil, registered.AccessToken)
	require.Equal(t, http.StatusForbidden, rec.Code)
	require.Equal(t, "Only admin can access this", decode(t, rec).Message)

	hash, err := password.Hash("admin-secret")
	require.NoError(t, err)
	_, err = s.accounts.Create(context.Background(), domain.Account{
		ID:           99,
		Email:        "admin@x.com",
		Name:         "Admin",
		PasswordHash: hash,
		Role:         domain.RoleAdmin,
		Active:       true,
	})
	require.NoError(t, err)

	login := s.do(t, http.MethodPost, "/auth/login", gin.H{
		"email": "admin@x.com", "password": "admin-secret",
	}, "")
	require.Equal(t, http.StatusOK, login.Code)
	admin := decodeAuth(t, decode(t, login))

	rec = s.do(t, http.MethodGet, "/admin/accounts", nil, admin.AccessToken)
	require.Equal(t, http.StatusOK, rec.Code)

	var accounts []struct {
		ID    string `json:"id"`
		Email string `json:"email"`
	}
	require.NoError(t, json.Unmarshal(decode(t, rec).Data, &accounts))
	require.Len(t, accounts, 2)
}

type recordingMailer struct {
	mu   sync.Mutex
	urls []string
}

func (m *recordingMailer) Send(ctx context.Context, to string, tmpl mail.Template, payload mail.Payload) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.urls = append(m.urls, payload.URL)
	return nil
}

func (m *recordingMailer) lastToken(t *testing.T) string {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	require.NotEmpty(t, m.urls)
	url := m.urls[len(m.urls)-1]
	idx := strings.LastIndex(url, "/")
	require.Greater(t, idx, 0)
	return url[idx+1:]
}
