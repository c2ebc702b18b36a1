package engine

import (
	"errors"
	"fmt"
)

// Error kinds. Every error returned by Generate is an *Error whose Kind is
// one of these, so callers can branch with errors.Is.
var (
	ErrInvalidRequest   = errors.New("invalid request")
	ErrDecode           = errors.New("image could not be decoded")
	ErrInvalidImage     = errors.New("invalid image")
	ErrPaletteExhausted = errors.New("palette exhausted")
	ErrInternal         = errors.New("internal error")
)

type Stage string

const (
	StageValidate Stage = "validate"
	StageDecode   Stage = "decode"
	StageSample   Stage = "sample"
	StageQuantize Stage = "quantize"
	StageMatch    Stage = "match"
	StageAssemble Stage = "assemble"
	StageAllocate Stage = "allocate"
	StageEncode   Stage = "encode"
)

type Error struct {
	Kind    error
	Stage   Stage
	Field   string
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Field != "" {
		return fmt.Sprintf("%v: %s: %s", e.Kind, e.Field, msg)
	}
	if msg == "" {
		return e.Kind.Error()
	}
	return fmt.Sprintf("%v: %s", e.Kind, msg)
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// Code is the stable machine-readable name of the error kind.
func (e *Error) Code() string {
	switch e.Kind {
	case ErrInvalidRequest:
		return "invalid_request"
	case ErrDecode:
		return "decode_error"
	case ErrInvalidImage:
		return "invalid_image"
	case ErrPaletteExhausted:
		return "palette_exhausted"
	default:
		return "internal_error"
	}
}

// Public reports whether the message can be shown to the caller. Internal
// failures are reported opaquely.
func (e *Error) Public() bool {
	switch e.Kind {
	case ErrInvalidRequest, ErrDecode, ErrInvalidImage:
		return true
	}
	return false
}

func invalidField(field, format string, args ...any) *Error {
	return &Error{Kind: ErrInvalidRequest, Stage: StageValidate, Field: field, Message: fmt.Sprintf(format, args...)}
}

func stageError(kind error, stage Stage, err error) *Error {
	return &Error{Kind: kind, Stage: stage, Err: err}
}
