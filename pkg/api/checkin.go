package api

import (
	"context"
	"encoding/json"
)

// Checkin covers /checkin attendance sessions.
type Checkin struct{ d Doer }

// CheckinType is how students prove presence.
type CheckinType string

const (
	CheckinQRCode   CheckinType = "qrcode"
	CheckinGesture  CheckinType = "gesture"
	CheckinLocation CheckinType = "location"
	CheckinFace     CheckinType = "face"
)

type CreateCheckin struct {
	GroupID       int64       `json:"group_id,omitempty"`
	Title         string      `json:"title"`
	Type          CheckinType `json:"type"`
	Duration      int         `json:"duration"` // minutes
	Description   string      `json:"description,omitempty"`
	GestureNumber string      `json:"gesture_number,omitempty"`
	LocationLat   float64     `json:"location_lat,omitempty"`
	LocationLng   float64     `json:"location_lng,omitempty"`
	LocationRange int         `json:"location_range,omitempty"` // meters
}

func (c *Checkin) Create(ctx context.Context, in CreateCheckin) (json.RawMessage, error) {
	return data(ctx, c.d, post, "checkin/create", in, nil)
}

func (c *Checkin) Detail(ctx context.Context, checkinID int64) (json.RawMessage, error) {
	return data(ctx, c.d, get, "checkin/"+itoa(checkinID), nil, nil)
}

func (c *Checkin) QRCode(ctx context.Context, checkinID int64) (json.RawMessage, error) {
	return data(ctx, c.d, get, "checkin/"+itoa(checkinID)+"/qrcode", nil, nil)
}

// Do checks in with a code. Method-specific flows use Face, Gesture, Location or Smart.
func (c *Checkin) Do(ctx context.Context, payload any) (json.RawMessage, error) {
	return data(ctx, c.d, post, "checkin/do", payload, nil)
}

func (c *Checkin) Face(ctx context.Context, payload any) (json.RawMessage, error) {
	return data(ctx, c.d, post, "checkin/face", payload, nil)
}

func (c *Checkin) Gesture(ctx context.Context, payload any) (json.RawMessage, error) {
	return data(ctx, c.d, post, "checkin/gesture", payload, nil)
}

func (c *Checkin) Location(ctx context.Context, payload any) (json.RawMessage, error) {
	return data(ctx, c.d, post, "checkin/location", payload, nil)
}

func (c *Checkin) Smart(ctx context.Context, payload any) (json.RawMessage, error) {
	return data(ctx, c.d, post, "checkin/smart-checkin", payload, nil)
}

func (c *Checkin) Records(ctx context.Context, checkinID int64) (json.RawMessage, error) {
	return data(ctx, c.d, get, "checkin/"+itoa(checkinID)+"/records", nil, nil)
}

func (c *Checkin) Active(ctx context.Context) (json.RawMessage, error) {
	return data(ctx, c.d, get, "checkin/active", nil, nil)
}

func (c *Checkin) MyCreated(ctx context.Context) (json.RawMessage, error) {
	return data(ctx, c.d, get, "checkin/my-created", nil, nil)
}

func (c *Checkin) History(ctx context.Context) (json.RawMessage, error) {
	return data(ctx, c.d, get, "checkin/history", nil, nil)
}

func (c *Checkin) End(ctx context.Context, checkinID int64) (Status, error) {
	return status(ctx, c.d, post, "checkin/"+itoa(checkinID)+"/end", nil)
}
