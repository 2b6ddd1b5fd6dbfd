package httpclient

import (
	"encoding/json"
	"net/http"

	"github.com/tidwall/gjson"
)

// Response is a decoded 2xx response. Bodies follow the envelope
// {success, message|msg, data}, though some endpoints return the payload at
// the top level.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// Get extracts a field with gjson path syntax.
func (r *Response) Get(path string) gjson.Result {
	return gjson.GetBytes(r.Body, path)
}

// Success reports the envelope flag. A body without one counts as success.
func (r *Response) Success() bool {
	v := r.Get("success")
	return !v.Exists() || v.Bool()
}

func (r *Response) Message() string {
	return envelopeMessage(r.Body, false)
}

// Data returns the envelope's data member, or the whole body when absent.
func (r *Response) Data() json.RawMessage {
	if v := r.Get("data"); v.Exists() {
		return json.RawMessage(v.Raw)
	}
	return r.Body
}

// Decode unmarshals the whole body.
func Decode[T any](r *Response) (T, error) {
	var out T
	err := json.Unmarshal(r.Body, &out)
	return out, err
}

// DecodeData unmarshals the envelope's data member.
func DecodeData[T any](r *Response) (T, error) {
	var out T
	err := json.Unmarshal(r.Data(), &out)
	return out, err
}

// envelopeMessage reads the server message. Validation responses put theirs
// in msg first.
func envelopeMessage(body []byte, msgFirst bool) string {
	if !gjson.ValidBytes(body) {
		return ""
	}
	fields := []string{"message", "msg"}
	if msgFirst {
		fields = []string{"msg", "message"}
	}
	for _, f := range fields {
		if v := gjson.GetBytes(body, f); v.Exists() && v.String() != "" {
			return v.String()
		}
	}
	return ""
}
