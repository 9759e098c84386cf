package httpapi

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"golang.org/x/crypto/bcrypt"
)

// requireAPIKey guards mutating endpoints with a bearer token checked against
// the configured bcrypt hash. An empty hash disables the check, which is the
// expected setup behind a private network.
func (s *Server) requireAPIKey() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			hash := strings.TrimSpace(s.opts.APIKeyHash)
			if hash == "" {
				return next(c)
			}

			token := bearerToken(c.Request().Header.Get(echo.HeaderAuthorization))
			if token == "" {
				return fail(c, http.StatusUnauthorized, "Missing API key", nil)
			}
			if bcrypt.CompareHashAndPassword([]byte(hash), []byte(token)) != nil {
				return fail(c, http.StatusUnauthorized, "Invalid API key", nil)
			}
			return next(c)
		}
	}
}

func bearerToken(header string) string {
	value := strings.TrimSpace(header)
	if value == "" {
		return ""
	}
	const prefix = "bearer "
	if len(value) <= len(prefix) || !strings.EqualFold(value[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(value[len(prefix):])
}
