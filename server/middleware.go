package server

import (
	"crypto/subtle"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"whatsapp-api-gateway/metrics"
	"whatsapp-api-gateway/types"
	"whatsapp-api-gateway/whatsapp"
)

const apiKeyHeader = "x-api-key"

func secureCompare(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// apiKeyAuth guards management endpoints. A missing server-side key is a
// misconfiguration, not an open door.
func (s *Server) apiKeyAuth(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if s.apiKey == "" {
			return fail(c, http.StatusInternalServerError, "API key is not configured on the server")
		}
		key := c.Request().Header.Get(apiKeyHeader)
		if key == "" {
			key = c.QueryParam("api_key")
		}
		if key == "" || !secureCompare(key, s.apiKey) {
			s.log.Warn().Str("ip", c.RealIP()).Msg("invalid API key attempt")
			return fail(c, http.StatusUnauthorized, "Invalid or missing API key")
		}
		return next(c)
	}
}

// rateLimit gates a route on one admission category keyed by client IP.
func (s *Server) rateLimit(cat whatsapp.Category) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if err := s.limiter.Admit(cat, c.RealIP()); err != nil {
				var rle *types.RateLimitedError
				if errors.As(err, &rle) {
					return c.JSON(http.StatusTooManyRequests, map[string]any{
						"success":    false,
						"message":    "Too many requests, please try again later",
						"retryAfter": int(rle.RetryAfter.Seconds()),
					})
				}
				return fail(c, http.StatusTooManyRequests, "Too many requests")
			}
			return next(c)
		}
	}
}

// trackAPI counts every admitted API request and every error response.
func (s *Server) trackAPI(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		s.stats.Increment(metrics.APIRequests)
		err := next(c)
		if err != nil || c.Response().Status >= http.StatusBadRequest {
			s.stats.Increment(metrics.APIErrors)
		}
		return err
	}
}

func (s *Server) requestLogger() echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:   true,
		LogURI:      true,
		LogMethod:   true,
		LogRemoteIP: true,
		LogLatency:  true,
		LogError:    true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			evt := s.log.Info()
			if v.Error != nil || v.Status >= http.StatusInternalServerError {
				evt = s.log.Error().Err(v.Error)
			}
			evt.Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Str("ip", v.RemoteIP).
				Dur("latency", v.Latency).
				Msg("request")
			return nil
		},
	})
}
