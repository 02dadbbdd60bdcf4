package codec

import (
	"fmt"
)

// DecodeErrorKind classifies why a legacy blob could not be decoded.
type DecodeErrorKind string

const (
	// UnrecognizedShape means the blob is valid JSON but matches no known legacy shape.
	UnrecognizedShape DecodeErrorKind = "UnrecognizedShape"
	// MalformedJSON means the blob is not valid JSON.
	MalformedJSON DecodeErrorKind = "MalformedJSON"
	// InvalidField means the shape is known but a field is missing or has a bad value.
	InvalidField DecodeErrorKind = "InvalidField"
)

// DecodeError is returned by DecodeLegacy for every input it cannot decode.
type DecodeError struct {
	Kind   DecodeErrorKind
	Entity Kind
	Field  string
	Detail string
	Err    error
}

func (e *DecodeError) Error() string {
	msg := fmt.Sprintf("decode %s: %s", e.Entity, e.Kind)
	if e.Field != "" {
		msg += fmt.Sprintf(" (field %q)", e.Field)
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

func shapeError(entity Kind, detail string) *DecodeError {
	return &DecodeError{Kind: UnrecognizedShape, Entity: entity, Detail: detail}
}

func fieldError(entity Kind, field, detail string, err error) *DecodeError {
	return &DecodeError{Kind: InvalidField, Entity: entity, Field: field, Detail: detail, Err: err}
}
