package apiutil

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
)

// Error kinds reported to clients in addition to the engine's own codes.
const (
	KindInvalidRequest = "invalid_request"
	KindNotFound       = "not_found"
	KindForbidden      = "forbidden"
	KindRateLimited    = "rate_limited"
	KindTooLarge       = "payload_too_large"
	KindInternal       = "internal_error"
)

type FieldError struct {
	Field  string
	Reason string
}

func (e FieldError) Error() string {
	return fmt.Sprintf("%s %s", e.Field, e.Reason)
}

type HandlerError struct {
	Status  int
	Kind    string
	Field   string
	Message string
	Err     error
}

func (e HandlerError) Error() string {
	return e.Message
}

func (e HandlerError) Unwrap() error {
	return e.Err
}

// ErrorBody is the JSON shape of every error response.
type ErrorBody struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
	Field string `json:"field,omitempty"`
}

// DecodeJSON decodes a single JSON value and rejects unknown fields.
func DecodeJSON(r *http.Request, dst any) error {
	return decodeJSON(r, dst, true)
}

// DecodeJSONLenient is DecodeJSON for bodies built by clients that may send
// fields the server does not use.
func DecodeJSONLenient(r *http.Request, dst any) error {
	return decodeJSON(r, dst, false)
}

func decodeJSON(r *http.Request, dst any, strict bool) error {
	if r.Body == nil {
		return fmt.Errorf("missing request body")
	}
	defer r.Body.Close()

	decoder := json.NewDecoder(r.Body)
	if strict {
		decoder.DisallowUnknownFields()
	}

	if err := decoder.Decode(dst); err != nil {
		return err
	}
	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

// IsBodyTooLarge reports whether err came from an http.MaxBytesReader.
func IsBodyTooLarge(err error) bool {
	var maxErr *http.MaxBytesError
	return errors.As(err, &maxErr)
}

func WriteJSON(w http.ResponseWriter, status int, payload any) error {
	var buf bytes.Buffer
	encoder := json.NewEncoder(&buf)
	if err := encoder.Encode(payload); err != nil {
		return err
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, err := w.Write(buf.Bytes())
	return err
}

// WriteError writes err as an ErrorBody. FieldErrors become 400s, HandlerErrors
// carry their own status, anything else is an opaque 500.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	body := ErrorBody{Error: "Internal Server Error", Kind: KindInternal}

	var handlerErr HandlerError
	var fieldErr FieldError
	switch {
	case errors.As(err, &handlerErr):
		status = handlerErr.Status
		body = ErrorBody{Error: handlerErr.Message, Kind: handlerErr.Kind, Field: handlerErr.Field}
		if body.Kind == "" {
			body.Kind = KindInternal
		}
	case errors.As(err, &fieldErr):
		status = http.StatusBadRequest
		body = ErrorBody{Error: fieldErr.Error(), Kind: KindInvalidRequest, Field: fieldErr.Field}
	}

	if writeErr := WriteJSON(w, status, body); writeErr != nil {
		log.Ctx(r.Context()).Error().Err(writeErr).Msg("Failed to write error response")
	}
}

// WriteRateLimited sends a 429 with a Retry-After header rounded up to whole
// seconds.
func WriteRateLimited(w http.ResponseWriter, r *http.Request, retryAfter time.Duration) {
	seconds := int((retryAfter + time.Second - 1) / time.Second)
	if seconds < 1 {
		seconds = 1
	}
	w.Header().Set("Retry-After", strconv.Itoa(seconds))
	WriteError(w, r, HandlerError{
		Status:  http.StatusTooManyRequests,
		Kind:    KindRateLimited,
		Message: "Too many requests, please try again later",
	})
}
