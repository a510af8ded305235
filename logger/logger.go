// Package logger wires logrus into request contexts.
package logger

import (
	"context"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

type ctxKey struct{}

const RequestIDHeader = "X-Request-ID"

var base = logrus.New()

// Setup configures the process logger; production gets JSON output.
func Setup(env string) {
	base.SetOutput(os.Stdout)
	if env == "production" {
		base.SetFormatter(&logrus.JSONFormatter{})
		base.SetLevel(logrus.InfoLevel)
		return
	}
	base.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	base.SetLevel(logrus.DebugLevel)
}

// GetLogger returns the entry stored in ctx, or the base logger.
func GetLogger(ctx context.Context) *logrus.Entry {
	if ctx != nil {
		if e, ok := ctx.Value(ctxKey{}).(*logrus.Entry); ok {
			return e
		}
	}
	return logrus.NewEntry(base)
}

func WithContext(ctx context.Context, e *logrus.Entry) context.Context {
	return context.WithValue(ctx, ctxKey{}, e)
}

// Middleware tags every request with an id and logs the outcome.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		rid := c.GetHeader(RequestIDHeader)
		if rid == "" {
			rid = uuid.NewString()
		}
		c.Header(RequestIDHeader, rid)

		entry := logrus.NewEntry(base).WithField("request_id", rid)
		c.Request = c.Request.WithContext(WithContext(c.Request.Context(), entry))

		start := time.Now()
		c.Next()

		fields := logrus.Fields{
			"method":  c.Request.Method,
			"path":    c.Request.URL.Path,
			"status":  c.Writer.Status(),
			"latency": time.Since(start).String(),
		}
		if uid := c.GetString("userID"); uid != "" {
			fields["user_id"] = uid
		}
		e := entry.WithFields(fields)
		switch {
		case c.Writer.Status() >= 500:
			e.Error("request failed")
		case len(c.Errors) > 0:
			e.Warn(c.Errors.String())
		default:
			e.Info("request")
		}
	}
}
