package echoapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/trezcool/chuo/core"
	"github.com/trezcool/chuo/core/access"
	"github.com/trezcool/chuo/core/user"
)

func userMiddleware(allowed func(usr user.User) bool) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			usr, err := getContextUser(ctx)
			if err != nil {
				return err
			}
			if !allowed(usr) {
				return errHttpForbidden
			}
			return next(ctx)
		}
	}
}

// adminMiddleware restricts the account management to admins.
func adminMiddleware() echo.MiddlewareFunc {
	return userMiddleware(func(usr user.User) bool { return usr.IsAdmin() })
}

// consoleMiddleware restricts the course management and the approvals to the staff.
func consoleMiddleware() echo.MiddlewareFunc {
	return userMiddleware(access.CanAccessAdminConsole)
}

func maintenanceMiddleware() echo.MiddlewareFunc {
	return userMiddleware(access.CanAccessMaintenance)
}

// rateLimitMiddleware limits the requests per client IP. It is a no-op without a limiter.
// Limiter failures let the requests through.
func rateLimitMiddleware(limiter RateLimiter, logger core.Logger, name string, limit int, window time.Duration) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		if limiter == nil || limit <= 0 {
			return next
		}
		return func(ctx echo.Context) error {
			key := name + ":" + ctx.RealIP()
			allowed, retryAfter, err := limiter.Allow(ctx.Request().Context(), key, limit, window)
			if err != nil {
				logger.Warn("rate limiting "+name, err)
				return next(ctx)
			}
			if !allowed {
				secs := int(retryAfter.Round(time.Second) / time.Second)
				if secs < 1 {
					secs = 1
				}
				ctx.Response().Header().Set("Retry-After", strconv.Itoa(secs))
				return errTooManyRequests
			}
			return next(ctx)
		}
	}
}

// statusOK is used by handlers answering with a plain message.
func statusOK(ctx echo.Context, msg string) error {
	return ctx.JSON(http.StatusOK, SuccessResponse{Success: msg})
}
