package httpserver

import (
	"crypto/subtle"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/mcpsandbox/mcpsandbox/pkg/types"
)

// APIKeyMiddleware validates the X-API-Key header against the configured
// key. An empty configured key disables authentication.
func APIKeyMiddleware(apiKey string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if apiKey == "" {
				return next(c)
			}

			provided := c.Request().Header.Get("X-API-Key")
			if provided == "" {
				return c.JSON(http.StatusUnauthorized,
					types.NewError("unauthorized", "missing API key"))
			}
			if subtle.ConstantTimeCompare([]byte(provided), []byte(apiKey)) != 1 {
				return c.JSON(http.StatusForbidden,
					types.NewError("forbidden", "invalid API key"))
			}
			return next(c)
		}
	}
}
