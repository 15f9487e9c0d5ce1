package middleware

import (
	"errors"
	"net/http"
	"time"

	"concentra/internal/apierror"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// ErrorHandler renders errors that handlers attach with c.Error. Typed domain
// errors map to their status and public detail; anything else becomes a
// generic 500. Stack traces and driver messages are never sent to clients.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}

		err := c.Errors.Last().Err
		status := apierror.HTTPStatus(err)

		level := zerolog.DebugLevel
		if status >= http.StatusInternalServerError {
			level = zerolog.ErrorLevel
		}
		log.WithLevel(level).
			Str("request_id", c.GetString(RequestIDKey)).
			Str("path", c.FullPath()).
			Str("method", c.Request.Method).
			Int("status", status).
			Err(err).
			Msg("request failed")

		var typed *apierror.Error
		if errors.As(err, &typed) && len(typed.Fields) > 0 {
			c.AbortWithStatusJSON(status, &apierror.ValidationError{Detail: typed.Detail, Fields: typed.Fields})
			return
		}
		c.AbortWithStatusJSON(status, apierror.New(apierror.Public(err)))
	}
}

// Recovery handles panics and converts them into 500 responses.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				log.Error().
					Str("request_id", c.GetString(RequestIDKey)).
					Interface("panic", r).
					Msg("panic recovered")
				c.AbortWithStatusJSON(http.StatusInternalServerError, apierror.New("Error interno del servidor"))
			}
		}()
		c.Next()
	}
}

// Logger logs each request with method, path, status, latency, and request_id.
func Logger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Info().
			Str("request_id", c.GetString(RequestIDKey)).
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Msg("request")
	}
}
