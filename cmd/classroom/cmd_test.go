package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
	"golang.org/x/crypto/bcrypt"

	"github.com/a-essam23/go-classroom/internal/server"
	"github.com/a-essam23/go-classroom/pkg/config"
	"github.com/a-essam23/go-classroom/pkg/logging"
	"github.com/a-essam23/go-classroom/pkg/realtime"
	"github.com/a-essam23/go-classroom/pkg/transport"
)

// syncBuffer is written from realtime handler goroutines.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

type fixture struct {
	srv *httptest.Server
	cfg *config.Config
}

func setup(t *testing.T) *fixture {
	t.Helper()
	cfg := config.Default()
	cfg.Stub.JWTSecret = "cli-secret"
	cfg.Stub.PollTimeout = 200 * time.Millisecond

	users := server.NewDirectory(bcrypt.MinCost)
	require.NoError(t, server.SeedDemoUsers(users))
	ctx, cancel := context.WithCancel(context.Background())
	app := server.NewApp(logging.Discard(), ctx, cfg, users)
	srv := httptest.NewServer(app.Handler())
	t.Cleanup(func() {
		app.Close()
		srv.Close()
		cancel()
	})

	cfg.API.BaseURL = srv.URL + "/api"
	cfg.Realtime.URL = srv.URL + "/realtime"
	cfg.Realtime.ReconnectAttempts = 0
	cfg.Realtime.ReconnectDelay = 10 * time.Millisecond
	cfg.Session.StorePath = filepath.Join(t.TempDir(), "session.json")
	return &fixture{srv: srv, cfg: cfg}
}

// cli builds a fresh command line, like a new process sharing the session file.
func (f *fixture) cli() (*commandLine, *syncBuffer) {
	out := &syncBuffer{}
	return newCommandLine(f.cfg, logging.Discard(), out, &syncBuffer{}), out
}

func (f *fixture) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cli, out := f.cli()
	err := cli.run(context.Background(), append([]string{"classroom"}, args...))
	return out.String(), err
}

func withPassword(t *testing.T, pwd string) {
	t.Helper()
	prev := readPasswordFunc
	readPasswordFunc = func(int) ([]byte, error) { return []byte(pwd), nil }
	t.Cleanup(func() { readPasswordFunc = prev })
}

type cliTest struct {
	name       string
	args       []string // without program name
	wantErr    error
	wantErrStr string
}

func Test_commandLine_usage(t *testing.T) {
	f := setup(t)
	withPassword(t, "")

	tests := []cliTest{
		{name: "no command", args: nil, wantErr: errHelp},
		{name: "unknown command", args: []string{"lol"}, wantErr: errHelp},
		{name: "login: no email", args: []string{"login"}, wantErr: errHelp},
		{name: "login: empty password", args: []string{"login", "-email", "student@example.com"}, wantErr: errHelp},
		{name: "open: no path", args: []string{"open"}, wantErr: errHelp},
		{name: "send: no receiver", args: []string{"send", "-text", "hi"}, wantErr: errHelp},
		{name: "send: signed out", args: []string{"send", "-to", "2", "-text", "hi"}, wantErr: errNotSignedIn},
		{name: "whoami: signed out", args: []string{"whoami"}, wantErr: errNotSignedIn},
		{name: "listen: signed out", args: []string{"listen"}, wantErr: errNotSignedIn},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.run(t, tt.args...)
			if tt.wantErr != nil {
				assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
			}
			if tt.wantErrStr != "" {
				assert.EqualError(t, err, tt.wantErrStr)
			}
		})
	}
}

func Test_commandLine_loginRejected(t *testing.T) {
	f := setup(t)
	withPassword(t, "wrong-password")

	_, err := f.run(t, "login", "-email", "student@example.com")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Invalid email or password")
	assert.Contains(t, err.Error(), "rejected")
}

func Test_commandLine_session(t *testing.T) {
	f := setup(t)
	withPassword(t, server.DemoPassword)

	out, err := f.run(t, "login", "-email", "teacher@example.com")
	require.NoError(t, err)
	assert.Contains(t, out, "Signed in as teacher@example.com (teacher)")

	// a new process restores the credential and verifies it
	out, err = f.run(t, "whoami")
	require.NoError(t, err)
	assert.Contains(t, out, "email:       teacher@example.com")
	assert.Contains(t, out, "name:        Terry Teacher")
	assert.Contains(t, out, "create_checkin")

	tests := []struct {
		path string
		want string
	}{
		{"/student-roster", "allow /student-roster\n"},
		{"/admin", "redirect /dashboard (role not permitted)\nallow /dashboard\n"},
		{"/login", "redirect /dashboard (already signed in)\nallow /dashboard\n"},
		{"/", "redirect /login (alias)\nallow /dashboard\n"},
		{"/chatbot?topic=go", "allow /chatbot?topic=go\n"},
	}
	for _, tt := range tests {
		out, err := f.run(t, "open", "-path", tt.path)
		require.NoError(t, err)
		assert.Equal(t, tt.want, out, "path %s", tt.path)
	}

	out, err = f.run(t, "logout")
	require.NoError(t, err)
	assert.Contains(t, out, "Signed out")

	_, err = f.run(t, "whoami")
	assert.ErrorIs(t, err, errNotSignedIn)
	out, err = f.run(t, "open", "-path", "/dashboard")
	require.NoError(t, err)
	assert.Equal(t, "redirect /login?redirect=%2Fdashboard (authentication required)\nallow /login?redirect=%2Fdashboard\n", out)
}

func Test_commandLine_send(t *testing.T) {
	f := setup(t)
	withPassword(t, server.DemoPassword)

	// the student listens with a plain client; the sender's login then takes over the session file
	studentCLI, _ := f.cli()
	require.NoError(t, studentCLI.login(context.Background(), "student@example.com", server.DemoPassword))
	studentToken := studentCLI.store.Token()
	_, err := f.run(t, "login", "-email", "teacher@example.com")
	require.NoError(t, err)

	inbox := make(chan json.RawMessage, 1)
	dialer := transport.NewDialer([]string{"websocket"}, transport.ConnectionConfig{}, 5*time.Second, logging.Discard())
	student := realtime.New(realtime.Options{URL: f.cfg.Realtime.URL}, dialer, staticToken(studentToken), logging.Discard())
	student.On(realtime.EventNewMessage, func(p json.RawMessage) {
		select {
		case inbox <- p:
		default:
		}
	})
	student.Connect(context.Background())
	t.Cleanup(student.Disconnect)
	require.Eventually(t, student.IsConnected, 5*time.Second, 10*time.Millisecond)

	out, err := f.run(t, "send", "-to", "3", "-text", "see you in class")
	require.NoError(t, err)
	assert.Contains(t, out, "sent ")

	select {
	case msg := <-inbox:
		assert.Equal(t, "see you in class", gjson.GetBytes(msg, "content").String())
		assert.Equal(t, int64(2), gjson.GetBytes(msg, "sender_id").Int())
	case <-time.After(5 * time.Second):
		t.Fatal("message not delivered")
	}

	_, err = f.run(t, "send", "-to", "3", "-text", "x", "-type", "text", "-timeout", "2s")
	require.NoError(t, err)
}

func Test_commandLine_listen(t *testing.T) {
	f := setup(t)
	withPassword(t, server.DemoPassword)

	_, err := f.run(t, "login", "-email", "student@example.com")
	require.NoError(t, err)

	out, err := f.run(t, "listen", "-for", "500ms")
	require.NoError(t, err)
	assert.Contains(t, out, `authenticated {"user_id":3}`)
}

type staticToken string

func (s staticToken) Token() string { return string(s) }
