/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

// Package feed decodes feed operations sent by clients.
//
// A request body is a stream of JSON objects, one operation per object (usually one per line):
//
//	{"id": "id:music:song::1", "operation": "put", "fields": {"title": "Bohemian Rhapsody"}}
//	{"id": "id:music:song::2", "operation": "remove"}
package feed

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// ErrMalformedPayload is returned (wrapped) when the body can't be decoded into valid operations.
var ErrMalformedPayload = errors.New("malformed feed payload")

// OperationType is a type of feed operation.
type OperationType string

// Operation types.
const (
	OperationPut    OperationType = "put"
	OperationUpdate OperationType = "update"
	OperationRemove OperationType = "remove"
)

// Operation is a single document operation.
type Operation struct {
	DocumentID string          `json:"id"`
	Type       OperationType   `json:"operation"`
	Fields     json.RawMessage `json:"fields,omitempty"`
}

// Validate checks that operation may be delivered to the backend.
func (op *Operation) Validate() error {
	if op.DocumentID == "" {
		return errors.New("document id is missing")
	}
	switch op.Type {
	case OperationPut, OperationUpdate:
		if len(op.Fields) == 0 {
			return fmt.Errorf("fields are required for %q operation", op.Type)
		}
	case OperationRemove:
	default:
		return fmt.Errorf("unknown operation %q", op.Type)
	}
	return nil
}

// MalformedOperationError describes which operation in the stream is invalid.
type MalformedOperationError struct {
	Index int
	Err   error
}

func (e *MalformedOperationError) Error() string {
	return fmt.Sprintf("operation #%d: %v", e.Index, e.Err)
}

// Unwrap returns the underlying error.
func (e *MalformedOperationError) Unwrap() error {
	return e.Err
}

// Is makes errors.Is(err, ErrMalformedPayload) true for every MalformedOperationError.
func (e *MalformedOperationError) Is(target error) bool {
	return target == ErrMalformedPayload //nolint:errorlint // sentinel comparison
}

// Decode reads all operations from r.
// Read errors (e.g. exceeding the body size limit) are returned wrapped as is,
// while invalid JSON or invalid operations produce MalformedOperationError.
func Decode(r io.Reader) ([]Operation, error) {
	decoder := json.NewDecoder(r)
	var ops []Operation
	for i := 0; ; i++ {
		var op Operation
		if err := decoder.Decode(&op); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			var syntaxErr *json.SyntaxError
			var typeErr *json.UnmarshalTypeError
			if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) || errors.Is(err, io.ErrUnexpectedEOF) {
				return nil, &MalformedOperationError{Index: i, Err: err}
			}
			return nil, fmt.Errorf("read operation #%d: %w", i, err)
		}
		if err := op.Validate(); err != nil {
			return nil, &MalformedOperationError{Index: i, Err: err}
		}
		ops = append(ops, op)
	}
	if len(ops) == 0 {
		return nil, &MalformedOperationError{Index: 0, Err: errors.New("no operations")}
	}
	return ops, nil
}
