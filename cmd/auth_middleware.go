package cmd

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"evalgo.org/dataflowmigrator/auth"
)

// apiKeyHeader carries the API key of every /v1/api request
const apiKeyHeader = "x-api-key"

// APIKeyMiddleware rejects requests without a valid x-api-key header and
// records rejections in the audit log
func APIKeyMiddleware(verifier *auth.Verifier, audit *auth.AuditLogger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !verifier.Enabled() {
				return next(c)
			}

			apiKey := c.Request().Header.Get(apiKeyHeader)
			if apiKey == "" {
				recordDenied(c, audit, "", "missing api key")
				return echo.NewHTTPError(http.StatusUnauthorized, "Missing x-api-key header")
			}
			if !verifier.Verify(apiKey) {
				recordDenied(c, audit, auth.KeyID(apiKey), "invalid api key")
				return echo.NewHTTPError(http.StatusUnauthorized, "Invalid API key")
			}

			c.Set("key_id", auth.KeyID(apiKey))
			return next(c)
		}
	}
}

// GetKeyID returns the fingerprint of the key that authenticated the request
func GetKeyID(c echo.Context) string {
	if val, ok := c.Get("key_id").(string); ok {
		return val
	}
	return ""
}

func recordDenied(c echo.Context, audit *auth.AuditLogger, keyID, reason string) {
	if audit == nil {
		return
	}
	err := audit.LogEntry(auth.AuditEntry{
		Action:    auth.ActionAccessDenied,
		Resource:  c.Request().Method + " " + c.Path(),
		KeyID:     keyID,
		Success:   false,
		IPAddress: c.RealIP(),
		UserAgent: c.Request().UserAgent(),
		ErrorMsg:  reason,
	})
	if err != nil {
		logrus.WithError(err).Warn("Failed to write audit entry")
	}
}
