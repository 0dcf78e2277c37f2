package httpserver

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pscheid92/peakstream/internal/platform/correlation"
	apperrors "github.com/pscheid92/peakstream/internal/platform/errors"
)

// correlationMiddleware keeps a caller-supplied correlation ID or mints one,
// and echoes it in the response.
func correlationMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, id := correlation.Ensure(c.Request().Context(), c.Request().Header.Get(correlation.Header))
		c.SetRequest(c.Request().WithContext(ctx))
		c.Response().Header().Set(correlation.Header, id)
		return next(c)
	}
}

// ErrorHandlingMiddleware renders every error as an ErrorResponse. Echo's own
// errors (unknown route, malformed body) are mapped when their status has an
// error type; anything else is left to echo's default handler.
func ErrorHandlingMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			err := next(c)
			if err == nil {
				return nil
			}

			var structuredErr *apperrors.Error
			if httpErr, ok := errors.AsType[*echo.HTTPError](err); ok {
				if structuredErr, ok = wrapHTTPError(httpErr); !ok {
					return err
				}
			} else {
				structuredErr = apperrors.AsStructuredError(err)
			}
			logError(c, structuredErr)

			if c.Response().Committed {
				return nil
			}
			if err := c.JSON(structuredErr.HTTPStatus(), structuredErr.ToResponse()); err != nil {
				return fmt.Errorf("failed to write error response: %w", err)
			}
			return nil
		}
	}
}

func logError(c echo.Context, err *apperrors.Error) {
	attrs := []any{
		"error_type", err.Type,
		"message", err.Message,
		"path", c.Request().URL.Path,
		"method", c.Request().Method,
		"status", err.HTTPStatus(),
	}

	for k, v := range err.Context {
		attrs = append(attrs, k, v)
	}

	ctx := c.Request().Context()
	switch err.Type {
	case apperrors.TypeValidation:
		slog.InfoContext(ctx, "Validation error", attrs...)
	case apperrors.TypeNotFound:
		slog.InfoContext(ctx, "Not found", attrs...)
	case apperrors.TypePaymentRequired:
		slog.InfoContext(ctx, "Payment required", attrs...)
	case apperrors.TypeConflict:
		slog.WarnContext(ctx, "Conflict", attrs...)
	case apperrors.TypeUnavailable:
		slog.WarnContext(ctx, "Feature unavailable", attrs...)
	case apperrors.TypeRateLimited:
		slog.DebugContext(ctx, "Rate limited", attrs...)
	case apperrors.TypeInternal:
		if err.Cause != nil {
			attrs = append(attrs, "cause", err.Cause)
		}
		slog.ErrorContext(ctx, "Internal error", attrs...)
	case apperrors.TypeExternal:
		if err.Cause != nil {
			attrs = append(attrs, "cause", err.Cause)
		}
		slog.ErrorContext(ctx, "External service error", attrs...)
	default:
		slog.ErrorContext(ctx, "Unknown error type", attrs...)
	}
}

var httpErrorTypes = map[int]apperrors.ErrorType{
	http.StatusBadRequest:          apperrors.TypeValidation,
	http.StatusPaymentRequired:     apperrors.TypePaymentRequired,
	http.StatusNotFound:            apperrors.TypeNotFound,
	http.StatusConflict:            apperrors.TypeConflict,
	http.StatusTooManyRequests:     apperrors.TypeRateLimited,
	http.StatusInternalServerError: apperrors.TypeInternal,
	http.StatusBadGateway:          apperrors.TypeExternal,
	http.StatusServiceUnavailable:  apperrors.TypeUnavailable,
}

// wrapHTTPError maps an echo error onto the API error types. It reports false
// for statuses without a type, such as 405.
func wrapHTTPError(httpErr *echo.HTTPError) (*apperrors.Error, bool) {
	errType, ok := httpErrorTypes[httpErr.Code]
	if !ok {
		return nil, false
	}

	message := http.StatusText(httpErr.Code)
	if msg, ok := httpErr.Message.(string); ok && msg != "" {
		message = msg
	}

	return &apperrors.Error{
		Type:    errType,
		Message: message,
		Cause:   httpErr.Internal,
		Context: make(map[string]any),
	}, true
}
