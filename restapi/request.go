/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package restapi

import (
	"errors"
	"io"
	"net/http"
)

// RequestBodyTooLargeError is returned by a limited request body once more than MaxSizeBytes is read.
type RequestBodyTooLargeError struct {
	MaxSizeBytes uint64
	Err          error
}

func (e *RequestBodyTooLargeError) Error() string {
	return e.Err.Error()
}

func (e *RequestBodyTooLargeError) Unwrap() error {
	return e.Err
}

type limitedBody struct {
	io.ReadCloser
	maxSizeBytes uint64
}

func (b *limitedBody) Read(p []byte) (int, error) {
	n, err := b.ReadCloser.Read(p)
	var maxBytesErr *http.MaxBytesError
	if errors.As(err, &maxBytesErr) {
		return n, &RequestBodyTooLargeError{MaxSizeBytes: b.maxSizeBytes, Err: err}
	}
	return n, err
}

// SetRequestMaxBodySize limits the request body. Reading past maxSizeBytes fails with RequestBodyTooLargeError
// and makes the server close the connection after the response.
func SetRequestMaxBodySize(rw http.ResponseWriter, r *http.Request, maxSizeBytes uint64) {
	r.Body = &limitedBody{
		ReadCloser:   http.MaxBytesReader(rw, r.Body, int64(maxSizeBytes)), //nolint:gosec // limit comes from config
		maxSizeBytes: maxSizeBytes,
	}
}
