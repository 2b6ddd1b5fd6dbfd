package session

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"

	"github.com/a-essam23/go-classroom/pkg/httpclient"
	"github.com/a-essam23/go-classroom/pkg/notify"
)

// AuthResponse is the body shared by the /auth endpoints.
type AuthResponse struct {
	Success  bool     `json:"success"`
	Message  string   `json:"message"`
	Token    string   `json:"token,omitempty"`
	UserInfo *Profile `json:"userInfo,omitempty"`
}

// Authenticator performs the remote half of the session flows.
type Authenticator interface {
	Login(ctx context.Context, email, password string) (*AuthResponse, error)
	Logout(ctx context.Context) error
	VerifyToken(ctx context.Context) (*AuthResponse, error)
	Register(ctx context.Context, in RegisterInput) (*AuthResponse, error)
	SendVerificationCode(ctx context.Context, email string) (*AuthResponse, error)
}

type FailureKind int

const (
	FailureNone FailureKind = iota
	// FailureMalformed means the input was rejected before any request was made.
	FailureMalformed
	// FailureRejected means the server answered and said no.
	FailureRejected
	// FailureNetwork means the server could not be reached.
	FailureNetwork
)

func (k FailureKind) String() string {
	switch k {
	case FailureNone:
		return "none"
	case FailureMalformed:
		return "malformed"
	case FailureRejected:
		return "rejected"
	case FailureNetwork:
		return "network"
	default:
		return "unknown"
	}
}

// Result is the outcome of a session operation. Operations never return a
// bare error: callers branch on Success and Failure.
type Result struct {
	Success bool
	Message string
	Failure FailureKind
	Err     error
}

type LoginInput struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,notblank"`
}

// Photo is an optional registration attachment.
type Photo struct {
	Name        string
	ContentType string
	Content     io.Reader
}

type RegisterInput struct {
	Email            string `json:"email" validate:"required,email"`
	Password         string `json:"password" validate:"required,min=6"`
	VerificationCode string `json:"verificationCode" validate:"required,notblank"`
	Role             Role   `json:"role" validate:"required,oneof=student teacher admin"`
	RealName         string `json:"realName"`
	StudentNumber    string `json:"studentNumber"`
	RosterID         string `json:"rosterId"`
	Photo            *Photo `json:"-"`
}

type codeInput struct {
	Email string `json:"email" validate:"required,email"`
}

// Service runs the session flows against an Authenticator and records the
// outcome in a Store.
type Service struct {
	store    *Store
	auth     Authenticator
	notifier notify.Notifier
	logger   *slog.Logger
}

func NewService(store *Store, auth Authenticator, notifier notify.Notifier, logger *slog.Logger) *Service {
	if notifier == nil {
		notifier = notify.Discard
	}
	return &Service{
		store:    store,
		auth:     auth,
		notifier: notifier,
		logger:   logger.With(slog.String("component", "session")),
	}
}

func (s *Service) Store() *Store { return s.store }

func (s *Service) Login(ctx context.Context, email, password string) Result {
	in := LoginInput{Email: strings.TrimSpace(email), Password: password}
	if err := validate.Struct(in); err != nil {
		return s.malformed(err)
	}

	resp, err := s.auth.Login(ctx, in.Email, in.Password)
	if err != nil {
		return s.remoteFailure("Login failed", err)
	}
	if !resp.Success || resp.Token == "" || resp.UserInfo == nil {
		return s.rejected(resp.Message, "Login failed")
	}

	if err := s.store.Set(resp.Token, *resp.UserInfo); err != nil {
		// the session is usable for this process; only persistence failed
		s.notifier.Notify(notify.Warning, "Signed in, but the session could not be saved")
	}
	s.logger.Info("Logged in", slog.Int64("userID", resp.UserInfo.UserID), slog.String("role", string(resp.UserInfo.Role)))
	s.notifier.Notify(notify.Success, orDefault(resp.Message, "Login successful"))
	return Result{Success: true, Message: resp.Message}
}

// Logout invalidates the credential remotely when possible and always clears
// the local session.
func (s *Service) Logout(ctx context.Context) Result {
	if s.store.Token() != "" {
		if err := s.auth.Logout(ctx); err != nil {
			s.logger.Warn("Remote logout failed", slog.Any("error", err))
		}
	}
	_ = s.store.Clear()
	s.logger.Info("Logged out")
	s.notifier.Notify(notify.Success, "Logged out")
	return Result{Success: true}
}

// Verify checks a stored credential with the server and reloads the profile.
// Any failure clears the session.
func (s *Service) Verify(ctx context.Context) bool {
	if s.store.Token() == "" {
		return false
	}

	resp, err := s.auth.VerifyToken(ctx)
	switch {
	case err != nil:
		s.logger.Warn("Credential verification failed", slog.Any("error", err))
	case !resp.Success || resp.UserInfo == nil:
		s.logger.Warn("Credential rejected", slog.String("message", resp.Message))
	default:
		s.store.SetProfile(*resp.UserInfo)
		s.logger.Debug("Credential verified", slog.Int64("userID", resp.UserInfo.UserID))
		return true
	}
	_ = s.store.Clear()
	return false
}

func (s *Service) Register(ctx context.Context, in RegisterInput) Result {
	in.Email = strings.TrimSpace(in.Email)
	if err := validate.Struct(in); err != nil {
		return s.malformed(err)
	}

	resp, err := s.auth.Register(ctx, in)
	if err != nil {
		return s.remoteFailure("Registration failed", err)
	}
	if !resp.Success {
		return s.rejected(resp.Message, "Registration failed")
	}
	s.logger.Info("Registered account", slog.String("email", in.Email), slog.String("role", string(in.Role)))
	s.notifier.Notify(notify.Success, orDefault(resp.Message, "Registration successful"))
	return Result{Success: true, Message: resp.Message}
}

func (s *Service) SendVerificationCode(ctx context.Context, email string) Result {
	in := codeInput{Email: strings.TrimSpace(email)}
	if err := validate.Struct(in); err != nil {
		return s.malformed(err)
	}

	resp, err := s.auth.SendVerificationCode(ctx, in.Email)
	if err != nil {
		return s.remoteFailure("Could not send verification code", err)
	}
	if !resp.Success {
		return s.rejected(resp.Message, "Could not send verification code")
	}
	s.notifier.Notify(notify.Success, orDefault(resp.Message, "Verification code sent"))
	return Result{Success: true, Message: resp.Message}
}

func (s *Service) malformed(err error) Result {
	msg := validationMessage(err)
	s.notifier.Notify(notify.Error, msg)
	return Result{Message: msg, Failure: FailureMalformed, Err: err}
}

func (s *Service) rejected(msg, fallback string) Result {
	msg = orDefault(msg, fallback)
	s.notifier.Notify(notify.Error, msg)
	return Result{Message: msg, Failure: FailureRejected}
}

// remoteFailure maps a transport error. Facade errors were already surfaced
// to the user by the facade itself.
func (s *Service) remoteFailure(fallback string, err error) Result {
	var herr *httpclient.Error
	if !errors.As(err, &herr) {
		s.logger.Error(fallback, slog.Any("error", err))
		s.notifier.Notify(notify.Error, fallback)
		return Result{Message: fallback, Failure: FailureNetwork, Err: err}
	}

	res := Result{Message: orDefault(herr.Message, fallback), Err: err}
	switch herr.Kind {
	case httpclient.KindNetwork:
		res.Failure = FailureNetwork
	case httpclient.KindConfig:
		res.Failure = FailureMalformed
	default:
		res.Failure = FailureRejected
	}
	return res
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
