// Package http provides the JSON API server and its handlers.
//
// This file implements request body decoding and input normalization shared
// by the handlers.

package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"budgets/internal/core"
)

// maxBodyBytes caps request bodies. Every payload in this API is tiny.
const maxBodyBytes = 64 << 10

// Amount is a request field that accepts a JSON number (12.5) or a JSON
// string ("12.50", "12,50").
type Amount struct {
	raw string
	set bool
}

// UnmarshalJSON keeps the literal so Money parsing sees exactly what the
// client sent.
func (a *Amount) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		s, err := strconv.Unquote(string(data))
		if err != nil {
			return fmt.Errorf("%w: amount is not a valid string", core.ErrInvalidArgument)
		}
		a.raw, a.set = s, true
		return nil
	}
	a.raw, a.set = string(data), true
	return nil
}

// Money parses the amount. A missing amount is an invalid argument.
func (a Amount) Money() (core.Money, error) {
	if !a.set {
		return core.Money{}, fmt.Errorf("%w: amount is required", core.ErrInvalidArgument)
	}
	return core.ParseMoney(a.raw)
}

type ensureUserRequest struct {
	Email string `json:"email"`
}

type createBudgetRequest struct {
	Name   string `json:"name"`
	Amount Amount `json:"amount"`
	Emoji  string `json:"emoji"`
}

type addTransactionRequest struct {
	Amount      Amount `json:"amount"`
	Description string `json:"description"`
}

// decodeJSON reads one JSON object from the request body into dst. Unknown
// fields, trailing data and oversized bodies are rejected.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.Is(err, io.EOF):
			return fmt.Errorf("%w: request body is empty", core.ErrInvalidArgument)
		case errors.As(err, &maxErr):
			return fmt.Errorf("%w: request body exceeds %d bytes", core.ErrInvalidArgument, maxErr.Limit)
		case errors.Is(err, core.ErrInvalidArgument):
			return err
		default:
			return fmt.Errorf("%w: malformed JSON: %v", core.ErrInvalidArgument, err)
		}
	}
	if dec.More() {
		return fmt.Errorf("%w: request body must contain a single JSON object", core.ErrInvalidArgument)
	}
	return nil
}

// sanitizeInput removes control characters except tab, newline and carriage
// return, and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != '\t' && r != '\n' && r != '\r' {
			return -1
		}
		return r
	}, s)
}

// pathParam returns the named path segment, sanitized. An empty segment is an
// invalid argument.
func pathParam(r *http.Request, name string) (string, error) {
	v := sanitizeInput(r.PathValue(name))
	if v == "" {
		return "", fmt.Errorf("%w: %s is required", core.ErrInvalidArgument, name)
	}
	return v, nil
}

// periodParam reads ?period=, defaulting to last30.
func periodParam(r *http.Request) string {
	if v := strings.TrimSpace(r.URL.Query().Get("period")); v != "" {
		return v
	}
	return string(core.Last30)
}
