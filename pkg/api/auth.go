package api

import (
	"context"
	"net/url"

	"github.com/a-essam23/go-classroom/pkg/httpclient"
	"github.com/a-essam23/go-classroom/pkg/session"
)

// Auth covers /auth. It implements session.Authenticator.
type Auth struct{ d Doer }

var _ session.Authenticator = (*Auth)(nil)

func (a *Auth) Login(ctx context.Context, email, password string) (*session.AuthResponse, error) {
	return authResponse(ctx, a.d, post, "auth/login",
		map[string]string{"email": email, "password": password},
		&httpclient.RequestOptions{SkipAuth: true})
}

func (a *Auth) Logout(ctx context.Context) error {
	_, err := a.d.Send(ctx, post, "auth/logout", nil, nil)
	return err
}

func (a *Auth) VerifyToken(ctx context.Context) (*session.AuthResponse, error) {
	return authResponse(ctx, a.d, get, "auth/verify-token", nil, nil)
}

// Register sends the sign-up form, as multipart when a photo is attached.
func (a *Auth) Register(ctx context.Context, in session.RegisterInput) (*session.AuthResponse, error) {
	form := url.Values{
		"email":            {in.Email},
		"password":         {in.Password},
		"verificationCode": {in.VerificationCode},
		"role":             {string(in.Role)},
	}
	for k, v := range map[string]string{
		"realName":      in.RealName,
		"studentNumber": in.StudentNumber,
		"rosterId":      in.RosterID,
	} {
		if v != "" {
			form.Set(k, v)
		}
	}
	opts := &httpclient.RequestOptions{SkipAuth: true, Form: form}
	if in.Photo != nil {
		opts.Files = []httpclient.File{{
			Field:       "photo",
			Name:        in.Photo.Name,
			ContentType: in.Photo.ContentType,
			Content:     in.Photo.Content,
		}}
	}
	return authResponse(ctx, a.d, post, "auth/register", nil, opts)
}

func (a *Auth) SendVerificationCode(ctx context.Context, email string) (*session.AuthResponse, error) {
	return authResponse(ctx, a.d, post, "auth/send-code",
		map[string]string{"email": email},
		&httpclient.RequestOptions{SkipAuth: true})
}

func authResponse(ctx context.Context, d Doer, method, endpoint string, payload any, opts *httpclient.RequestOptions) (*session.AuthResponse, error) {
	out, err := envelope[session.AuthResponse](ctx, d, method, endpoint, payload, opts)
	if err != nil {
		return nil, err
	}
	return &out, nil
}
