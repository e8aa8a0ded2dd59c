package payload

import (
	sferrors "github.com/drblury/shipflow/internal/runtime/errors"
)

// Text is an undecoded string payload. It has no addressable fields.
type Text struct {
	value string
}

func NewText(s string) *Text { return &Text{value: s} }

func (t *Text) Payload() any { return t.value }

func (t *Text) GetField(name string) (any, error) {
	return nil, &sferrors.FieldNotFoundError{Field: name}
}

func (t *Text) GetFieldAsString(name string) (string, error) {
	return "", &sferrors.FieldNotFoundError{Field: name}
}

func (t *Text) SetField(name string, _ any) error {
	return sferrors.NewOperationError("set", "text payload has no field %q", name)
}

func (t *Text) DeleteField(name string) error {
	return &sferrors.FieldNotFoundError{Field: name}
}
