package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"todoapp/internal/auth"
	"todoapp/internal/schedule"
	"todoapp/internal/todo"
	logx "todoapp/pkg/logx"
)

const (
	msgServerError = "Server error"
	msgBadBody     = "Invalid request body"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type errorBody struct {
	Error   string   `json:"error"`
	Details []string `json:"details,omitempty"`
}

func writeErrorMsg(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Error: msg})
}

// statusFor maps domain errors to a status and client-safe message.
// ok is false for unexpected errors.
func statusFor(err error) (status int, msg string, ok bool) {
	var ae *auth.Error
	if errors.As(err, &ae) {
		switch ae.Kind {
		case auth.KindUnauthorized:
			return http.StatusUnauthorized, ae.Message, true
		case auth.KindForbidden:
			return http.StatusForbidden, ae.Message, true
		case auth.KindThrottled:
			return http.StatusTooManyRequests, ae.Message, true
		default:
			return http.StatusBadRequest, ae.Message, true
		}
	}
	var sf *schedule.Failure
	if errors.As(err, &sf) {
		return http.StatusUnprocessableEntity, sf.Error(), true
	}
	switch {
	case errors.Is(err, todo.ErrTextRequired):
		return http.StatusBadRequest, err.Error(), true
	case errors.Is(err, todo.ErrNotFound):
		return http.StatusNotFound, err.Error(), true
	}
	return http.StatusInternalServerError, msgServerError, false
}

func (s *Service) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, msg, ok := statusFor(err)
	if !ok {
		s.logger().Error("request failed", logx.String("method", r.Method), logx.String("path", r.URL.Path), logx.Err(err))
	}
	writeErrorMsg(w, status, msg)
}

// decodeJSON decodes a single JSON value from the body. Unknown fields are allowed.
func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		return err
	}
	if _, err := dec.Token(); err != io.EOF {
		return errors.New("trailing data")
	}
	return nil
}

// flexString accepts a JSON string or number; numbers keep their literal text.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	switch {
	case s == "null":
		*f = ""
	case strings.HasPrefix(s, `"`):
		var v string
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		*f = flexString(v)
	default:
		var n json.Number
		if err := json.Unmarshal(b, &n); err != nil {
			return err
		}
		*f = flexString(n.String())
	}
	return nil
}

// flexInt accepts a JSON integer or numeric string. Anything else decodes to 0.
type flexInt int

func (f *flexInt) UnmarshalJSON(b []byte) error {
	var raw any
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	switch v := raw.(type) {
	case float64:
		*f = flexInt(int(v))
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			*f = 0
			return nil
		}
		*f = flexInt(n)
	default:
		*f = 0
	}
	return nil
}
