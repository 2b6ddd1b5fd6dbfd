package server

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/mail"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/a-essam23/go-classroom/internal/server/middleware"
	"github.com/a-essam23/go-classroom/pkg/session"
	"github.com/a-essam23/go-classroom/pkg/transport"
)

const (
	maxJSONBody   = 1 << 20
	maxUploadBody = 8 << 20
)

func decodeJSON(r *http.Request, v any) error {
	return json.NewDecoder(io.LimitReader(r.Body, maxJSONBody)).Decode(v)
}

func validEmail(s string) bool {
	addr, err := mail.ParseAddress(s)
	return err == nil && addr.Address == s
}

// --- /api/auth ---

func (a *App) login(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decodeJSON(r, &in); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if strings.TrimSpace(in.Email) == "" || in.Password == "" {
		middleware.WriteError(w, http.StatusBadRequest, "Email and password are required")
		return
	}

	user, err := a.users.Authenticate(in.Email, in.Password)
	if err != nil {
		a.logger.Info("Login rejected", slog.String("email", in.Email))
		middleware.WriteError(w, http.StatusUnauthorized, "Invalid email or password")
		return
	}
	token, err := a.tokens.Issue(user)
	if err != nil {
		a.logger.Error("Failed to issue token", slog.Any("error", err))
		middleware.WriteError(w, http.StatusInternalServerError, "Could not sign in")
		return
	}

	profile := user.Profile()
	a.logger.Info("User logged in", slog.Int64("userID", user.ID), slog.String("role", string(user.Role)))
	middleware.WriteJSON(w, http.StatusOK, session.AuthResponse{
		Success:  true,
		Message:  "Login successful",
		Token:    token,
		UserInfo: &profile,
	})
}

func (a *App) logout(w http.ResponseWriter, r *http.Request) {
	reqMeta, _ := middleware.ReqMetadataFrom(r.Context())
	a.tokens.Revoke(reqMeta.TokenID, reqMeta.ExpiresAt)
	a.logger.Info("User logged out", slog.String("userID", reqMeta.UserID))
	middleware.WriteJSON(w, http.StatusOK, middleware.Envelope{Success: true, Message: "Logged out"})
}

func (a *App) verifyToken(w http.ResponseWriter, r *http.Request) {
	reqMeta, _ := middleware.ReqMetadataFrom(r.Context())
	id, err := strconv.ParseInt(reqMeta.UserID, 10, 64)
	if err != nil {
		middleware.WriteError(w, http.StatusUnprocessableEntity, "Token validation failed")
		return
	}
	user, ok := a.users.Find(id)
	if !ok {
		middleware.WriteError(w, http.StatusUnauthorized, "User no longer exists")
		return
	}
	profile := user.Profile()
	middleware.WriteJSON(w, http.StatusOK, session.AuthResponse{
		Success:  true,
		Message:  "Token is valid",
		UserInfo: &profile,
	})
}

func (a *App) sendCode(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Email string `json:"email"`
	}
	if err := decodeJSON(r, &in); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	email := strings.TrimSpace(in.Email)
	if !validEmail(email) {
		middleware.WriteError(w, http.StatusBadRequest, "A valid email is required")
		return
	}
	if a.users.Exists(email) {
		middleware.WriteError(w, http.StatusConflict, "Email is already registered")
		return
	}

	code, err := a.users.IssueCode(email)
	if err != nil {
		a.logger.Error("Failed to generate verification code", slog.Any("error", err))
		middleware.WriteError(w, http.StatusInternalServerError, "Could not send verification code")
		return
	}
	// No mail transport: the log is the delivery channel.
	a.logger.Info("Verification code issued", slog.String("email", email), slog.String("code", code))
	middleware.WriteJSON(w, http.StatusOK, middleware.Envelope{Success: true, Message: "Verification code sent"})
}

func (a *App) register(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBody)
	if err := r.ParseMultipartForm(maxUploadBody); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid form data")
		return
	}

	email := strings.TrimSpace(r.FormValue("email"))
	password := r.FormValue("password")
	role := session.Role(r.FormValue("role"))
	switch {
	case !validEmail(email):
		middleware.WriteError(w, http.StatusBadRequest, "A valid email is required")
		return
	case len(password) < 6:
		middleware.WriteError(w, http.StatusBadRequest, "Password must be at least 6 characters")
		return
	case !role.Valid():
		middleware.WriteError(w, http.StatusBadRequest, "Unknown role")
		return
	case strings.TrimSpace(r.FormValue("verificationCode")) == "":
		middleware.WriteError(w, http.StatusBadRequest, "Verification code is required")
		return
	}
	if a.users.Exists(email) {
		middleware.WriteError(w, http.StatusConflict, "Email is already registered")
		return
	}
	if !a.users.ConsumeCode(email, r.FormValue("verificationCode")) {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid or expired verification code")
		return
	}

	rec := UserRecord{
		Email:         email,
		RealName:      strings.TrimSpace(r.FormValue("realName")),
		Role:          role,
		StudentNumber: strings.TrimSpace(r.FormValue("studentNumber")),
		RosterID:      strings.TrimSpace(r.FormValue("rosterId")),
		// teachers wait for an administrator
		IsApproved: role != session.RoleTeacher,
	}
	if r.MultipartForm != nil {
		if files := r.MultipartForm.File["photo"]; len(files) > 0 {
			rec.PhotoURL = "/uploads/avatars/" + uuid.NewString() + strings.ToLower(filepath.Ext(files[0].Filename))
		}
	}

	user, err := a.users.Add(rec, password)
	if errors.Is(err, ErrEmailTaken) {
		middleware.WriteError(w, http.StatusConflict, "Email is already registered")
		return
	}
	if err != nil {
		a.logger.Error("Failed to create user", slog.Any("error", err))
		middleware.WriteError(w, http.StatusInternalServerError, "Registration failed")
		return
	}

	message := "Registration successful"
	if !user.IsApproved {
		message = "Registration submitted, waiting for administrator approval"
	}
	profile := user.Profile()
	a.logger.Info("User registered", slog.Int64("userID", user.ID), slog.String("role", string(user.Role)))
	middleware.WriteJSON(w, http.StatusCreated, session.AuthResponse{
		Success:  true,
		Message:  message,
		UserInfo: &profile,
	})
}

// --- /realtime/poll ---

func (a *App) openPoll(w http.ResponseWriter, r *http.Request) {
	reqMeta, _ := middleware.ReqMetadataFrom(r.Context())

	var sess *pollSession
	sess = newPollSession(a.connConfig(), func(id uuid.UUID, err error) {
		a.polls.remove(sess.sid)
		a.eventRouter.HandleClose(id, err)
	}, a.logger)

	if _, err := a.stateManager.RegisterConnection(sess, reqMeta.IP); err != nil {
		a.logger.Error("Failed to register polling session", slog.Any("error", err))
		middleware.WriteError(w, http.StatusInternalServerError, "Could not open session")
		return
	}
	a.polls.add(sess)
	a.logger.Info("Polling session opened", slog.String("sid", sess.sid), slog.String("ip", reqMeta.IP))
	middleware.WriteJSON(w, http.StatusCreated, map[string]string{"sid": sess.sid})
}

func (a *App) pollSessionFrom(w http.ResponseWriter, r *http.Request) (*pollSession, bool) {
	sess, ok := a.polls.get(mux.Vars(r)["sid"])
	if !ok {
		middleware.WriteError(w, http.StatusNotFound, "Unknown session")
		return nil, false
	}
	select {
	case <-sess.Done():
		middleware.WriteError(w, http.StatusGone, "Session closed")
		return nil, false
	default:
	}
	return sess, true
}

func (a *App) pollFrames(w http.ResponseWriter, r *http.Request) {
	sess, ok := a.pollSessionFrom(w, r)
	if !ok {
		return
	}
	frames, err := sess.drain(r.Context(), a.pollTimeout())
	switch {
	case errors.Is(err, transport.ErrSessionGone):
		middleware.WriteError(w, http.StatusGone, "Session closed")
	case err != nil:
		// the client went away
	case len(frames) == 0:
		w.WriteHeader(http.StatusNoContent)
	default:
		middleware.WriteJSON(w, http.StatusOK, frames)
	}
}

func (a *App) pushFrame(w http.ResponseWriter, r *http.Request) {
	sess, ok := a.pollSessionFrom(w, r)
	if !ok {
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxJSONBody))
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Unreadable frame")
		return
	}
	sess.touch()
	a.eventRouter.HandleMessage(sess.ctx, sess.id, body)
	w.WriteHeader(http.StatusNoContent)
}

func (a *App) closePoll(w http.ResponseWriter, r *http.Request) {
	sess, ok := a.polls.get(mux.Vars(r)["sid"])
	if !ok {
		middleware.WriteError(w, http.StatusNotFound, "Unknown session")
		return
	}
	sess.Close(transport.ErrClosedByClient)
	w.WriteHeader(http.StatusNoContent)
}
