package middleware

import (
	"crypto/subtle"
	"net/http"

	echo "github.com/labstack/echo/v4"
)

const HeaderAPIKey = "X-API-Key"

// APIKeyMiddleware admits requests whose X-API-Key header equals apiKey exactly.
// An empty apiKey rejects everything.
func APIKeyMiddleware(apiKey string) echo.MiddlewareFunc {
	want := []byte(apiKey)
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			got := []byte(c.Request().Header.Get(HeaderAPIKey))
			if len(want) == 0 || subtle.ConstantTimeCompare(got, want) != 1 {
				return c.JSON(http.StatusForbidden, map[string]string{"error": "invalid api key"})
			}
			return next(c)
		}
	}
}
