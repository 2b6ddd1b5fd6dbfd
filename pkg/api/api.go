// Package api wraps the classroom REST endpoints, one service per endpoint
// group, on top of the httpclient facade.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/a-essam23/go-classroom/pkg/httpclient"
)

// Doer is the part of the facade the services need.
type Doer interface {
	Send(ctx context.Context, method, endpoint string, payload any, opts *httpclient.RequestOptions) (*httpclient.Response, error)
}

// API bundles every endpoint group.
type API struct {
	Auth      *Auth
	Users     *Users
	Admin     *Admin
	Checkin   *Checkin
	Messages  *Messages
	GroupChat *GroupChat
	Chatbot   *Chatbot
	Teacher   *Teacher
	Material  *Material
	Chapter   *Chapter
	Classify  *Classify
}

func New(d Doer) *API {
	return &API{
		Auth:      &Auth{d: d},
		Users:     &Users{d: d},
		Admin:     &Admin{d: d},
		Checkin:   &Checkin{d: d},
		Messages:  &Messages{d: d},
		GroupChat: &GroupChat{d: d},
		Chatbot:   &Chatbot{d: d},
		Teacher:   newTeacher(d),
		Material:  &Material{d: d},
		Chapter:   &Chapter{d: d},
		Classify:  &Classify{d: d},
	}
}

// Page selects one page of a paginated listing.
type Page struct {
	Page    int
	PerPage int
}

func (p Page) apply(q url.Values) url.Values {
	if q == nil {
		q = url.Values{}
	}
	if p.Page > 0 {
		q.Set("page", strconv.Itoa(p.Page))
	}
	if p.PerPage > 0 {
		q.Set("per_page", strconv.Itoa(p.PerPage))
	}
	return q
}

// data performs a request and returns the envelope's data member.
func data(ctx context.Context, d Doer, method, endpoint string, payload any, opts *httpclient.RequestOptions) (json.RawMessage, error) {
	resp, err := d.Send(ctx, method, endpoint, payload, opts)
	if err != nil {
		return nil, err
	}
	return resp.Data(), nil
}

// envelope performs a request and decodes the whole body into T.
func envelope[T any](ctx context.Context, d Doer, method, endpoint string, payload any, opts *httpclient.RequestOptions) (T, error) {
	var out T
	resp, err := d.Send(ctx, method, endpoint, payload, opts)
	if err != nil {
		return out, err
	}
	out, err = httpclient.Decode[T](resp)
	if err != nil {
		return out, fmt.Errorf("decoding %s %s: %w", method, endpoint, err)
	}
	return out, nil
}

// download performs a request and returns the undecoded body, for file downloads.
func download(ctx context.Context, d Doer, method, endpoint string, payload any, opts *httpclient.RequestOptions) ([]byte, error) {
	resp, err := d.Send(ctx, method, endpoint, payload, opts)
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

// body performs a request and returns the whole JSON body, for endpoints
// that answer without a data member.
func body(ctx context.Context, d Doer, method, endpoint string, payload any, opts *httpclient.RequestOptions) (json.RawMessage, error) {
	resp, err := d.Send(ctx, method, endpoint, payload, opts)
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

// Status is the minimal envelope most mutations return.
type Status struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

func status(ctx context.Context, d Doer, method, endpoint string, payload any) (Status, error) {
	return envelope[Status](ctx, d, method, endpoint, payload, nil)
}

func query(kv ...string) url.Values {
	q := url.Values{}
	for i := 0; i+1 < len(kv); i += 2 {
		if kv[i+1] != "" {
			q.Set(kv[i], kv[i+1])
		}
	}
	return q
}

func itoa(v int64) string { return strconv.FormatInt(v, 10) }

func opts(q url.Values) *httpclient.RequestOptions {
	return &httpclient.RequestOptions{Query: q}
}

const (
	get  = http.MethodGet
	post = http.MethodPost
	put  = http.MethodPut
	del  = http.MethodDelete
)
