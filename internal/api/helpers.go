package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v5"

	"github.com/samcharles93/datenorm/internal/inference"
	"github.com/samcharles93/datenorm/internal/logger"
	"github.com/samcharles93/datenorm/internal/metrics"
	"github.com/samcharles93/datenorm/internal/vocab"
)

func writeError(c *echo.Context, status int, body ErrorBody) error {
	return c.JSON(status, ErrorResponse{Error: body})
}

// errorStatus maps a handler error onto a status code and response body.
func errorStatus(err error) (int, ErrorBody) {
	var invalid invalidRequestError
	if errors.As(err, &invalid) {
		return http.StatusBadRequest, ErrorBody{
			Message: invalid.msg,
			Type:    "invalid_request_error",
			Param:   invalid.param,
		}
	}

	var unknown *vocab.UnknownCharError
	if errors.As(err, &unknown) {
		pos := unknown.Pos
		return http.StatusBadRequest, ErrorBody{
			Message:  fmt.Sprintf("unsupported character %q at position %d", unknown.Char, unknown.Pos),
			Type:     "invalid_request_error",
			Param:    "date",
			Char:     string(unknown.Char),
			Position: &pos,
		}
	}
	if inference.IsClientError(err) {
		return http.StatusBadRequest, ErrorBody{
			Message: err.Error(),
			Type:    "invalid_request_error",
			Param:   "date",
		}
	}

	switch {
	case errors.Is(err, ErrNoModel):
		return http.StatusServiceUnavailable, ErrorBody{Message: err.Error(), Type: "unavailable_error"}
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable, ErrorBody{Message: err.Error(), Type: "timeout_error"}
	}
	return http.StatusInternalServerError, ErrorBody{Message: err.Error(), Type: "server_error"}
}

// requestID tags every response with an X-Request-Id and stores a logger
// carrying the same id on the request context. A client-supplied id is kept
// when it parses as a UUID. The request header is rewritten too so the access
// log reports the id the client was given.
func requestID(log logger.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c *echo.Context) error {
			req := c.Request()
			id := req.Header.Get(echo.HeaderXRequestID)
			if _, err := uuid.Parse(id); err != nil {
				id = uuid.NewString()
			}
			req.Header.Set(echo.HeaderXRequestID, id)
			c.Response().Header().Set(echo.HeaderXRequestID, id)
			ctx := logger.WithContext(req.Context(), log.With("request_id", id))
			c.SetRequest(req.WithContext(ctx))
			return next(c)
		}
	}
}

// countRequests records one datenorm_http_requests_total sample per request,
// including responses written by http.Handlers, router 404s and errors that
// middleware further in turns into a response.
func countRequests(m *metrics.Metrics) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c *echo.Context) error {
			err := next(c)
			_, status := echo.ResolveResponseStatus(c.Response(), err)
			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			m.ObserveRequest(route, status)
			return err
		}
	}
}
