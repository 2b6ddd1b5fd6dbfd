package server_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
	"golang.org/x/crypto/bcrypt"

	"github.com/a-essam23/go-classroom/internal/server"
	"github.com/a-essam23/go-classroom/internal/server/middleware"
	"github.com/a-essam23/go-classroom/pkg/api"
	"github.com/a-essam23/go-classroom/pkg/config"
	"github.com/a-essam23/go-classroom/pkg/httpclient"
	"github.com/a-essam23/go-classroom/pkg/logging"
	"github.com/a-essam23/go-classroom/pkg/session"
)

const testSecret = "test-secret"

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Stub.JWTSecret = testSecret
	cfg.Stub.TokenTTL = time.Hour
	cfg.Stub.PollTimeout = 200 * time.Millisecond
	cfg.Stub.PollSessionTTL = 5 * time.Second
	cfg.Stub.ConnectionLimit = config.ConnectionLimitConfig{}
	return cfg
}

// newStub serves a stub with the demo accounts: admin (1), teacher (2), student (3).
func newStub(t *testing.T) (*server.App, *httptest.Server) {
	t.Helper()
	users := server.NewDirectory(bcrypt.MinCost)
	require.NoError(t, server.SeedDemoUsers(users))

	ctx, cancel := context.WithCancel(context.Background())
	app := server.NewApp(logging.Discard(), ctx, testConfig(), users)
	srv := httptest.NewServer(app.Handler())
	t.Cleanup(func() {
		app.Close()
		srv.Close()
		cancel()
	})
	return app, srv
}

// newSession wires the real client stack against the stub.
func newSession(t *testing.T, srv *httptest.Server) *session.Service {
	t.Helper()
	store := session.NewStore(session.NewMemoryTokenStore(""), logging.Discard())
	hc := httpclient.New(httpclient.Options{BaseURL: srv.URL + "/api", Timeout: 5 * time.Second},
		store, httpclient.Hooks{Invalidator: store}, logging.Discard())
	return session.NewService(store, api.New(hc).Auth, nil, logging.Discard())
}

func loginToken(t *testing.T, srv *httptest.Server, email string) string {
	t.Helper()
	body := strings.NewReader(`{"email":"` + email + `","password":"` + server.DemoPassword + `"}`)
	resp, err := http.Post(srv.URL+"/api/auth/login", "application/json", body)
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(raw))
	token := gjson.GetBytes(raw, "token").String()
	require.NotEmpty(t, token)
	return token
}

func do(t *testing.T, method, url, token string, body io.Reader) (int, string) {
	t.Helper()
	req, err := http.NewRequest(method, url, body)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, string(raw)
}

func TestLoginVerifyLogout(t *testing.T) {
	_, srv := newStub(t)
	svc := newSession(t, srv)
	ctx := context.Background()

	res := svc.Login(ctx, "Teacher@Example.com", server.DemoPassword)
	require.True(t, res.Success, res.Message)

	store := svc.Store()
	profile, ok := store.Profile()
	require.True(t, ok)
	assert.Equal(t, int64(2), profile.UserID)
	assert.Equal(t, session.RoleTeacher, profile.Role)
	assert.Equal(t, "teacher", profile.SystemAccount)
	assert.True(t, store.HasPermission("create_checkin"))

	claims, ok := store.Claims()
	require.True(t, ok)
	assert.Equal(t, "2", claims.Subject)
	assert.Equal(t, session.RoleTeacher, claims.Role)
	assert.False(t, claims.Expired(time.Now()))

	assert.True(t, svc.Verify(ctx))

	token := store.Token()
	assert.True(t, svc.Logout(ctx).Success)
	assert.False(t, store.IsAuthenticated())

	// the logged-out token is dead on the server too
	status, body := do(t, http.MethodGet, srv.URL+"/api/auth/verify-token", token, nil)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.False(t, gjson.Get(body, "success").Bool())

	require.NoError(t, store.Set(token, profile))
	assert.False(t, svc.Verify(ctx))
	assert.Empty(t, store.Token(), "a rejected credential is cleared")
}

func TestLoginRejected(t *testing.T) {
	_, srv := newStub(t)
	svc := newSession(t, srv)

	res := svc.Login(context.Background(), "student@example.com", "wrong-password")
	assert.False(t, res.Success)
	assert.Equal(t, session.FailureRejected, res.Failure)
	assert.True(t, httpclient.IsKind(res.Err, httpclient.KindUnauthorized))

	status, body := do(t, http.MethodPost, srv.URL+"/api/auth/login", "", strings.NewReader(`{"email":""}`))
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "Email and password are required", gjson.Get(body, "message").String())
}

func TestVerifyTokenStatuses(t *testing.T) {
	_, srv := newStub(t)
	url := srv.URL + "/api/auth/verify-token"

	status, _ := do(t, http.MethodGet, url, "", nil)
	assert.Equal(t, http.StatusUnauthorized, status)

	status, _ = do(t, http.MethodGet, url, "not-a-jwt", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, status)

	forged, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "1",
		"exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte("other-secret"))
	require.NoError(t, err)
	status, _ = do(t, http.MethodGet, url, forged, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, status)

	status, body := do(t, http.MethodGet, url, loginToken(t, srv, "admin@example.com"), nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "admin", gjson.Get(body, "userInfo.role").String())
	assert.True(t, gjson.Get(body, "userInfo.isApproved").Bool())
}

func TestRegisterFlow(t *testing.T) {
	app, srv := newStub(t)
	svc := newSession(t, srv)
	ctx := context.Background()

	require.True(t, svc.SendVerificationCode(ctx, "new.teacher@example.com").Success)
	code, ok := app.Users().PendingCode("new.teacher@example.com")
	require.True(t, ok)
	assert.Len(t, code, 6)

	res := svc.Register(ctx, session.RegisterInput{
		Email:            "new.teacher@example.com",
		Password:         "secret1",
		VerificationCode: code,
		Role:             session.RoleTeacher,
		RealName:         "Nell",
		Photo:            &session.Photo{Name: "Me.PNG", ContentType: "image/png", Content: strings.NewReader("png")},
	})
	require.True(t, res.Success, res.Message)
	assert.Contains(t, res.Message, "approval")
	_, pending := app.Users().PendingCode("new.teacher@example.com")
	assert.False(t, pending, "codes are single use")

	require.True(t, svc.Login(ctx, "new.teacher@example.com", "secret1").Success)
	profile, _ := svc.Store().Profile()
	assert.False(t, profile.IsApproved)
	assert.Equal(t, "Nell", profile.RealName)
	assert.True(t, strings.HasPrefix(profile.PhotoURL, "/uploads/avatars/"))
	assert.True(t, strings.HasSuffix(profile.PhotoURL, ".png"))

	again := svc.SendVerificationCode(ctx, "new.teacher@example.com")
	assert.False(t, again.Success)
	assert.Equal(t, session.FailureRejected, again.Failure)
}

func TestRegisterRejectsBadCode(t *testing.T) {
	app, srv := newStub(t)
	_, err := app.Users().IssueCode("kim@example.com")
	require.NoError(t, err)

	form := url.Values{
		"email":            {"kim@example.com"},
		"password":         {"secret1"},
		"verificationCode": {"000000x"},
		"role":             {"student"},
	}
	resp, err := http.PostForm(srv.URL+"/api/auth/register", form)
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "Invalid or expired verification code", gjson.GetBytes(raw, "message").String())

	form.Set("role", "janitor")
	resp2, err := http.PostForm(srv.URL+"/api/auth/register", form)
	require.NoError(t, err)
	resp2.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp2.StatusCode)
}

func TestUnknownRoutes(t *testing.T) {
	_, srv := newStub(t)

	status, body := do(t, http.MethodGet, srv.URL+"/api/nope", "", nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "Not found", gjson.Get(body, "message").String())

	wrongMethod := []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/api/auth/login"},
		{http.MethodPut, "/api/auth/login"},
		{http.MethodPost, "/api/auth/verify-token"},
		{http.MethodPut, "/realtime/poll"},
		{http.MethodPatch, "/realtime/poll/some-sid"},
	}
	for _, tt := range wrongMethod {
		status, body := do(t, tt.method, srv.URL+tt.path, "", nil)
		assert.Equal(t, http.StatusMethodNotAllowed, status, "%s %s", tt.method, tt.path)
		assert.Equal(t, "Method not allowed", gjson.Get(body, "message").String())
	}
}

func TestPollingProtocol(t *testing.T) {
	_, srv := newStub(t)
	base := srv.URL + "/realtime/poll"

	status, body := do(t, http.MethodPost, base, "", nil)
	require.Equal(t, http.StatusCreated, status)
	sid := gjson.Get(body, "sid").String()
	require.NotEmpty(t, sid)

	status, _ = do(t, http.MethodGet, base+"/unknown", "", nil)
	assert.Equal(t, http.StatusNotFound, status)

	status, _ = do(t, http.MethodGet, base+"/"+sid, "", nil)
	assert.Equal(t, http.StatusNoContent, status, "nothing queued")

	frame, _ := json.Marshal(map[string]any{
		"event":   "authenticate",
		"payload": map[string]string{"token": loginToken(t, srv, "student@example.com")},
	})
	status, _ = do(t, http.MethodPost, base+"/"+sid, "", strings.NewReader(string(frame)))
	assert.Equal(t, http.StatusNoContent, status)

	status, body = do(t, http.MethodGet, base+"/"+sid, "", nil)
	require.Equal(t, http.StatusOK, status)
	frames := gjson.Parse(body).Array()
	require.Len(t, frames, 1)
	assert.Equal(t, "authenticated", frames[0].Get("event").String())
	assert.Equal(t, int64(3), frames[0].Get("payload.user_id").Int())

	status, _ = do(t, http.MethodDelete, base+"/"+sid, "", nil)
	assert.Equal(t, http.StatusNoContent, status)
	status, _ = do(t, http.MethodGet, base+"/"+sid, "", nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestConnectionLimitRejects(t *testing.T) {
	cfg := testConfig()
	cfg.Stub.ConnectionLimit = config.ConnectionLimitConfig{MaxPerIP: 1, Mode: "reject"}
	users := server.NewDirectory(bcrypt.MinCost)
	ctx, cancel := context.WithCancel(context.Background())
	app := server.NewApp(logging.Discard(), ctx, cfg, users)
	srv := httptest.NewServer(app.Handler())
	t.Cleanup(func() {
		app.Close()
		srv.Close()
		cancel()
	})

	status, _ := do(t, http.MethodPost, srv.URL+"/realtime/poll", "", nil)
	assert.Equal(t, http.StatusCreated, status)
	status, body := do(t, http.MethodPost, srv.URL+"/realtime/poll", "", nil)
	assert.Equal(t, http.StatusTooManyRequests, status)
	assert.False(t, gjson.Get(body, "success").Bool())
}

func TestTokenIssuer(t *testing.T) {
	issuer := server.NewTokenIssuer(testSecret, time.Hour)
	user := server.UserRecord{ID: 9, Role: session.RoleStudent}

	token, err := issuer.Issue(user)
	require.NoError(t, err)
	claims, err := issuer.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "9", claims.Subject)
	assert.Equal(t, "student", claims.Role)
	assert.Contains(t, claims.Permissions, "checkin")
	assert.NotEmpty(t, claims.ID)

	issuer.Revoke(claims.ID, claims.ExpiresAt.Time)
	_, err = issuer.Verify(token)
	assert.ErrorIs(t, err, middleware.ErrTokenRevoked)

	expired, err := server.NewTokenIssuer(testSecret, -time.Minute).Issue(user)
	require.NoError(t, err)
	_, err = issuer.Verify(expired)
	assert.ErrorIs(t, err, jwt.ErrTokenExpired)
}

func TestDirectory(t *testing.T) {
	d := server.NewDirectory(bcrypt.MinCost)
	u, err := d.Add(server.UserRecord{Email: " Pat@Example.com ", Role: session.RoleStudent, StudentNumber: "S1"}, "hunter22")
	require.NoError(t, err)
	assert.Equal(t, int64(1), u.ID)
	assert.Equal(t, "pat@example.com", u.Email)
	assert.Equal(t, "S1", u.Profile().SystemAccount)

	_, err = d.Add(server.UserRecord{Email: "pat@example.com"}, "x")
	assert.ErrorIs(t, err, server.ErrEmailTaken)

	_, err = d.Authenticate("pat@example.com", "wrong")
	assert.ErrorIs(t, err, server.ErrBadCredentials)
	_, err = d.Authenticate("nobody@example.com", "hunter22")
	assert.ErrorIs(t, err, server.ErrBadCredentials)
	got, err := d.Authenticate("PAT@example.com", "hunter22")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)

	code, err := d.IssueCode("pat@example.com")
	require.NoError(t, err)
	assert.False(t, d.ConsumeCode("pat@example.com", "nope"))
	assert.True(t, d.ConsumeCode("pat@example.com", code))
	assert.False(t, d.ConsumeCode("pat@example.com", code))
}
