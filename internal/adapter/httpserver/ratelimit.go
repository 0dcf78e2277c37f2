package httpserver

import (
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	apperrors "github.com/pscheid92/peakstream/internal/platform/errors"
	"golang.org/x/time/rate"
)

const rateLimiterExpiry = 5 * time.Minute

// newRateLimiter limits /api per client IP. Rejections use the regular error
// envelope plus a Retry-After hint derived from the refill rate. Echo hands
// the deny handler's error to c.Error instead of returning it, so the
// response is written here rather than by ErrorHandlingMiddleware.
func newRateLimiter(ratePerSecond float64, burst int) echo.MiddlewareFunc {
	store := middleware.NewRateLimiterMemoryStoreWithConfig(
		middleware.RateLimiterMemoryStoreConfig{
			Rate:      rate.Limit(ratePerSecond),
			Burst:     burst,
			ExpiresIn: rateLimiterExpiry,
		},
	)
	retryAfter := retryAfterSeconds(ratePerSecond)

	return middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
		IdentifierExtractor: func(c echo.Context) (string, error) {
			return c.RealIP(), nil
		},
		Store: store,
		DenyHandler: func(c echo.Context, identifier string, _ error) error {
			appErr := apperrors.RateLimitedError("rate limit exceeded").
				WithField("client", identifier).
				WithField("retry_after_seconds", retryAfter)
			logError(c, appErr)

			c.Response().Header().Set("Retry-After", strconv.Itoa(retryAfter))
			if err := c.JSON(appErr.HTTPStatus(), appErr.ToResponse()); err != nil {
				return fmt.Errorf("failed to write rate limit response: %w", err)
			}
			return nil
		},
	})
}

// retryAfterSeconds is the time one token takes to refill, at least 1s.
func retryAfterSeconds(ratePerSecond float64) int {
	if ratePerSecond <= 0 {
		return 60
	}
	return max(1, int(math.Ceil(1/ratePerSecond)))
}
