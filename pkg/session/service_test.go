package session_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/a-essam23/go-classroom/pkg/httpclient"
	"github.com/a-essam23/go-classroom/pkg/logging"
	"github.com/a-essam23/go-classroom/pkg/notify"
	"github.com/a-essam23/go-classroom/pkg/session"
)

type fakeAuth struct {
	login    func(email, password string) (*session.AuthResponse, error)
	verify   func() (*session.AuthResponse, error)
	register func(in session.RegisterInput) (*session.AuthResponse, error)
	code     func(email string) (*session.AuthResponse, error)

	logoutErr error
	calls     []string
}

func (f *fakeAuth) Login(_ context.Context, email, password string) (*session.AuthResponse, error) {
	f.calls = append(f.calls, "login")
	return f.login(email, password)
}

func (f *fakeAuth) Logout(context.Context) error {
	f.calls = append(f.calls, "logout")
	return f.logoutErr
}

func (f *fakeAuth) VerifyToken(context.Context) (*session.AuthResponse, error) {
	f.calls = append(f.calls, "verify")
	return f.verify()
}

func (f *fakeAuth) Register(_ context.Context, in session.RegisterInput) (*session.AuthResponse, error) {
	f.calls = append(f.calls, "register")
	return f.register(in)
}

func (f *fakeAuth) SendVerificationCode(_ context.Context, email string) (*session.AuthResponse, error) {
	f.calls = append(f.calls, "code")
	return f.code(email)
}

type notices struct{ got []string }

func (n *notices) Notify(level notify.Level, msg string) {
	n.got = append(n.got, level.String()+": "+msg)
}

func newService(auth *fakeAuth, token string) (*session.Service, *session.Store, *notices) {
	store := session.NewStore(session.NewMemoryTokenStore(token), logging.Discard())
	n := &notices{}
	return session.NewService(store, auth, n, logging.Discard()), store, n
}

func TestLoginSuccess(t *testing.T) {
	auth := &fakeAuth{login: func(email, password string) (*session.AuthResponse, error) {
		assert.Equal(t, "wang@school.edu", email)
		p := teacher
		return &session.AuthResponse{Success: true, Message: "Welcome", Token: "tok", UserInfo: &p}, nil
	}}
	svc, store, n := newService(auth, "")

	res := svc.Login(context.Background(), "  wang@school.edu ", "secret")
	require.True(t, res.Success)
	assert.True(t, store.IsAuthenticated())
	assert.Equal(t, "tok", store.Token())
	assert.Equal(t, []string{"success: Welcome"}, n.got)
}

func TestLoginMalformedMakesNoRequest(t *testing.T) {
	auth := &fakeAuth{}
	svc, store, n := newService(auth, "")

	res := svc.Login(context.Background(), "not-an-email", "")
	assert.False(t, res.Success)
	assert.Equal(t, session.FailureMalformed, res.Failure)
	assert.Contains(t, res.Message, "email")
	assert.Contains(t, res.Message, "password")
	assert.Empty(t, auth.calls)
	assert.False(t, store.IsAuthenticated())
	assert.Len(t, n.got, 1)
}

func TestLoginRejected(t *testing.T) {
	auth := &fakeAuth{login: func(string, string) (*session.AuthResponse, error) {
		return &session.AuthResponse{Success: false, Message: "wrong password"}, nil
	}}
	svc, store, n := newService(auth, "")

	res := svc.Login(context.Background(), "a@b.co", "x")
	assert.Equal(t, session.FailureRejected, res.Failure)
	assert.Equal(t, "wrong password", res.Message)
	assert.Empty(t, store.Token())
	assert.Equal(t, []string{"error: wrong password"}, n.got)
}

func TestLoginTransportFailures(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want session.FailureKind
	}{
		{"server said no", &httpclient.Error{Kind: httpclient.KindUnauthorized, Status: 401, Message: "bad credentials"}, session.FailureRejected},
		{"unreachable", &httpclient.Error{Kind: httpclient.KindNetwork, Message: "Network error"}, session.FailureNetwork},
		{"bad request", &httpclient.Error{Kind: httpclient.KindConfig, Message: "Request configuration error"}, session.FailureMalformed},
		{"other error", errors.New("boom"), session.FailureNetwork},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			auth := &fakeAuth{login: func(string, string) (*session.AuthResponse, error) { return nil, tc.err }}
			svc, store, _ := newService(auth, "")

			res := svc.Login(context.Background(), "a@b.co", "x")
			assert.False(t, res.Success)
			assert.Equal(t, tc.want, res.Failure)
			assert.ErrorIs(t, res.Err, tc.err)
			assert.False(t, store.IsAuthenticated())
		})
	}
}

func TestLogoutAlwaysClears(t *testing.T) {
	auth := &fakeAuth{logoutErr: errors.New("server down")}
	svc, store, n := newService(auth, "")
	require.NoError(t, store.Set("tok", teacher))

	res := svc.Logout(context.Background())
	assert.True(t, res.Success)
	assert.Empty(t, store.Token())
	assert.False(t, store.IsAuthenticated())
	assert.Equal(t, []string{"logout"}, auth.calls)
	assert.Equal(t, []string{"success: Logged out"}, n.got)
}

func TestVerifyWithoutCredential(t *testing.T) {
	auth := &fakeAuth{}
	svc, _, _ := newService(auth, "")

	assert.False(t, svc.Verify(context.Background()))
	assert.Empty(t, auth.calls, "no request without a credential")
}

func TestVerifySuccessRestoresProfile(t *testing.T) {
	auth := &fakeAuth{verify: func() (*session.AuthResponse, error) {
		p := teacher
		return &session.AuthResponse{Success: true, UserInfo: &p}, nil
	}}
	svc, store, _ := newService(auth, "persisted")
	require.True(t, store.NeedsVerification())

	assert.True(t, svc.Verify(context.Background()))
	assert.True(t, store.IsAuthenticated())
	assert.Equal(t, "persisted", store.Token())
}

func TestVerifyFailureClearsSession(t *testing.T) {
	for name, verify := range map[string]func() (*session.AuthResponse, error){
		"rejected": func() (*session.AuthResponse, error) {
			return &session.AuthResponse{Success: false, Message: "user not found"}, nil
		},
		"error": func() (*session.AuthResponse, error) {
			return nil, &httpclient.Error{Kind: httpclient.KindUnauthorized, Status: 401}
		},
	} {
		t.Run(name, func(t *testing.T) {
			svc, store, _ := newService(&fakeAuth{verify: verify}, "persisted")
			store.SetProfile(teacher)

			assert.False(t, svc.Verify(context.Background()))
			assert.Empty(t, store.Token())
			_, ok := store.Profile()
			assert.False(t, ok)
		})
	}
}

func TestRegisterValidation(t *testing.T) {
	auth := &fakeAuth{register: func(session.RegisterInput) (*session.AuthResponse, error) {
		return &session.AuthResponse{Success: true, Message: "Registered"}, nil
	}}
	svc, _, _ := newService(auth, "")

	base := session.RegisterInput{
		Email:            "li@school.edu",
		Password:         "secret1",
		VerificationCode: "123456",
		Role:             session.RoleStudent,
	}

	res := svc.Register(context.Background(), base)
	assert.Equal(t, session.FailureMalformed, res.Failure)
	assert.Contains(t, res.Message, "face verification")

	bad := base
	bad.Role = "guest"
	bad.RosterID = "r1"
	res = svc.Register(context.Background(), bad)
	assert.Equal(t, session.FailureMalformed, res.Failure)
	assert.Contains(t, res.Message, "role")

	blank := base
	blank.RosterID = "r1"
	blank.VerificationCode = "   "
	res = svc.Register(context.Background(), blank)
	assert.Equal(t, session.FailureMalformed, res.Failure)
	assert.Contains(t, res.Message, "verificationCode")
	assert.Empty(t, auth.calls)

	ok := base
	ok.RosterID = "r1"
	res = svc.Register(context.Background(), ok)
	assert.True(t, res.Success)

	teacherSignup := base
	teacherSignup.Role = session.RoleTeacher
	teacherSignup.Photo = &session.Photo{Name: "me.jpg", Content: strings.NewReader("jpeg")}
	res = svc.Register(context.Background(), teacherSignup)
	assert.True(t, res.Success, "roster id only required for students")
	assert.Equal(t, []string{"register", "register"}, auth.calls)
}

func TestSendVerificationCode(t *testing.T) {
	auth := &fakeAuth{code: func(email string) (*session.AuthResponse, error) {
		if email == "slow@school.edu" {
			return &session.AuthResponse{Success: false, Message: "wait 42 seconds"}, nil
		}
		return &session.AuthResponse{Success: true, Message: "Code sent"}, nil
	}}
	svc, _, _ := newService(auth, "")

	assert.True(t, svc.SendVerificationCode(context.Background(), "li@school.edu").Success)

	res := svc.SendVerificationCode(context.Background(), "slow@school.edu")
	assert.Equal(t, session.FailureRejected, res.Failure)
	assert.Equal(t, "wait 42 seconds", res.Message)

	res = svc.SendVerificationCode(context.Background(), "")
	assert.Equal(t, session.FailureMalformed, res.Failure)
}
