package middleware

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

const (
	InterServiceTokenHeader = "X-Internal-Service-Token"
	// SourceServiceKey - ключ echo.Context с именем сервиса-источника.
	SourceServiceKey = "source_service"
)

// InterServiceAuth проверяет межсервисный JWT в заголовке X-Internal-Service-Token.
func InterServiceAuth(verifier *InterServiceVerifier, logger *zap.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			log := logger.With(zap.String("path", c.Request().URL.Path))

			tokenString := c.Request().Header.Get(InterServiceTokenHeader)
			if tokenString == "" {
				log.Warn("X-Internal-Service-Token header missing")
				return echo.NewHTTPError(http.StatusUnauthorized, "Unauthorized: Missing inter-service token")
			}

			claims, err := verifier.Verify(tokenString)
			if err != nil {
				msg := "Unauthorized: Invalid inter-service token"
				if errors.Is(err, ErrTokenExpired) {
					msg = "Unauthorized: Inter-service token expired"
				}
				log.Warn("Inter-service token verification failed", zap.Error(err), zap.String("tokenSnippet", tokenSnippet(tokenString)))
				return echo.NewHTTPError(http.StatusUnauthorized, msg)
			}

			if claims.Subject != "" {
				c.Set(SourceServiceKey, claims.Subject)
				log.Debug("Inter-service request authorized", zap.String("sourceService", claims.Subject))
			} else {
				log.Warn("Inter-service token authorized but Subject (source service) is missing")
			}
			return next(c)
		}
	}
}
