package client

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"

	"github.com/Sternrassler/resilient-api-client/pkg/apierror"
	"github.com/Sternrassler/resilient-api-client/pkg/pagination"
)

// Validator is implemented by payload types that check their own shape.
// A failing Validate turns into a validation-class error.
type Validator interface {
	Validate() error
}

// envelopeKeys are the only members an envelope may carry. An object with
// any other member is a bare payload, even if it has a "data" field.
var envelopeKeys = map[string]bool{"data": true, "next_offset": true, "total": true}

// envelope is the response wrapper: {"data": ..., "next_offset": n, "total": n}.
type envelope struct {
	Data       json.RawMessage `json:"data"`
	NextOffset *int            `json:"next_offset"`
	Total      int             `json:"total"`
}

var errEmptyBody = errors.New("empty response body")

// DecodeOne decodes a single object, unwrapping a {"data": ...} envelope
// when present.
func DecodeOne[T any](body []byte) (T, error) {
	var zero T

	payload, _, err := unwrap(body)
	if err != nil {
		return zero, apierror.Validation(fmt.Errorf("decode %T: %w", zero, err))
	}

	var v T
	if err := json.Unmarshal(payload, &v); err != nil {
		return zero, apierror.Validation(fmt.Errorf("decode %T: %w", zero, err))
	}
	if err := validate(&v); err != nil {
		return zero, apierror.Validation(fmt.Errorf("validate %T: %w", zero, err))
	}
	return v, nil
}

// DecodeList decodes one page of a listing. A bare JSON array is accepted as
// a single, final page.
func DecodeList[T any](body []byte) (pagination.Page[T], error) {
	var zero T

	payload, env, err := unwrap(body)
	if err != nil {
		return pagination.Page[T]{}, apierror.Validation(fmt.Errorf("decode []%T: %w", zero, err))
	}

	var items []T
	if err := json.Unmarshal(payload, &items); err != nil {
		return pagination.Page[T]{}, apierror.Validation(fmt.Errorf("decode []%T: %w", zero, err))
	}
	for i := range items {
		if err := validate(&items[i]); err != nil {
			return pagination.Page[T]{}, apierror.Validation(fmt.Errorf("validate %T at index %d: %w", zero, i, err))
		}
	}

	page := pagination.Page[T]{Items: items}
	if env != nil {
		page.NextOffset = env.NextOffset
		page.Total = env.Total
	}
	return page, nil
}

// unwrap returns the payload inside the envelope, or the whole body when it
// is not enveloped. env is nil in the latter case.
func unwrap(body []byte) (json.RawMessage, *envelope, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, nil, errEmptyBody
	}
	if trimmed[0] != '{' {
		return trimmed, nil, nil
	}

	var members map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &members); err != nil {
		return nil, nil, err
	}
	if _, ok := members["data"]; !ok {
		return trimmed, nil, nil
	}
	for k := range members {
		if !envelopeKeys[k] {
			return trimmed, nil, nil
		}
	}

	var env envelope
	if err := json.Unmarshal(trimmed, &env); err != nil {
		return nil, nil, err
	}
	return env.Data, &env, nil
}

func validate[T any](v *T) error {
	if val, ok := any(v).(Validator); ok {
		return val.Validate()
	}
	if val, ok := any(*v).(Validator); ok {
		if rv := reflect.ValueOf(*v); rv.Kind() == reflect.Pointer && rv.IsNil() {
			return errors.New("missing object")
		}
		return val.Validate()
	}
	return nil
}
