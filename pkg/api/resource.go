package api

import (
	"context"
	"encoding/json"
	"net/url"
)

// Resource is a REST collection with the usual list/detail/create/update/delete routes.
type Resource struct {
	d    Doer
	path string
}

func (r Resource) List(ctx context.Context, q url.Values) (json.RawMessage, error) {
	return data(ctx, r.d, get, r.path, nil, opts(q))
}

func (r Resource) Get(ctx context.Context, id int64) (json.RawMessage, error) {
	return data(ctx, r.d, get, r.path+"/"+itoa(id), nil, nil)
}

func (r Resource) Create(ctx context.Context, payload any) (json.RawMessage, error) {
	return data(ctx, r.d, post, r.path, payload, nil)
}

func (r Resource) Update(ctx context.Context, id int64, payload any) (json.RawMessage, error) {
	return data(ctx, r.d, put, r.path+"/"+itoa(id), payload, nil)
}

func (r Resource) Delete(ctx context.Context, id int64) (Status, error) {
	return status(ctx, r.d, del, r.path+"/"+itoa(id), nil)
}
