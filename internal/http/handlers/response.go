// Package handlers implements the HTTP endpoints of the public API.
//
// Every endpoint answers with the same envelope the reservation engine
// produces: {ok, message, code?, data?}. Handlers never invent their own
// response shapes; they bind the request, call the engine, and translate the
// envelope's code into an HTTP status. Route-level failures (unknown route,
// malformed JSON) are rendered in the identical shape so clients can parse
// every response the same way.
package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-library-backend/internal/http/middleware"
	"github.com/tbourn/go-library-backend/internal/services"
)

// statusFor maps an envelope to its HTTP status. Successful envelopes map to
// okStatus (200 for reads, 201 for creations); failures map by code:
// not-found codes to 404, availability and uniqueness conflicts to 409,
// infrastructure faults to 500, everything else to 400.
func statusFor(res services.Result, okStatus int) int {
	if res.OK {
		return okStatus
	}
	switch {
	case strings.HasSuffix(res.Code, "_NOT_FOUND"):
		return http.StatusNotFound
	case res.Code == services.CodeNoAvailableCopies,
		res.Code == services.CodeReservationExpired,
		res.Code == services.CodeBarcodeExists:
		return http.StatusConflict
	case res.Code == services.CodeActionError:
		return http.StatusInternalServerError
	default:
		return http.StatusBadRequest
	}
}

// respond writes the envelope with the status derived by statusFor. Server
// faults are additionally logged with the request-scoped logger.
func respond(c *gin.Context, res services.Result, okStatus int) {
	status := statusFor(res, okStatus)
	if status >= http.StatusInternalServerError {
		middleware.LoggerFrom(c).Error().
			Str("code", res.Code).
			Str("message", res.Message).
			Msg("engine failure")
	}
	c.JSON(status, res)
}

// fail aborts the request with a failure envelope built at the HTTP layer,
// for errors that never reached the engine (bad JSON, missing route).
func fail(c *gin.Context, status int, code, msg string) {
	c.AbortWithStatusJSON(status, services.Err(msg, code))
}

// Fail is the exported variant of fail, used by the router's fallbacks.
func Fail(c *gin.Context, status int, code, msg string) { fail(c, status, code, msg) }
