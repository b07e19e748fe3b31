/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package middleware

import (
	"fmt"
	"net/http"
	"runtime"

	"github.com/acronis/go-feedgate/log"
	"github.com/acronis/go-feedgate/restapi"
)

// RecoveryStackSize limits the part of the goroutine stack logged for a panic.
const RecoveryStackSize = 8192

// Recovery is a middleware that turns a panic in the handler into a 500 response with an internal error
// of the domain. The panic value and the stack are logged with the request logger.
// http.ErrAbortHandler is re-panicked, it's the way to abort a response on purpose.
func Recovery(errDomain string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
			defer recoverRequest(rw, r, errDomain)
			next.ServeHTTP(rw, r)
		})
	}
}

func recoverRequest(rw http.ResponseWriter, r *http.Request, errDomain string) {
	p := recover()
	if p == nil {
		return
	}
	logger := GetLoggerFromContext(r.Context())
	if logger == nil {
		logger = log.NewDisabledLogger()
	}
	if p == http.ErrAbortHandler { //nolint:errorlint // sentinel panic value
		logger.Warn("request has been aborted", log.Error(http.ErrAbortHandler))
		panic(p)
	}

	stack := make([]byte, RecoveryStackSize)
	stack = stack[:runtime.Stack(stack, false)]
	logger.Error(fmt.Sprintf("Panic: %+v", p), log.Bytes("stack", stack))
	restapi.RespondError(rw, http.StatusInternalServerError, restapi.NewInternalError(errDomain), logger)
}
