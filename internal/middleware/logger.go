package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

const (
	HeaderRequestID = "X-Request-ID"
	KeyRequestID    = "requestID"
	keyLogger       = "logger"
)

// RequestLogger stamps every request with an id and logs it on completion.
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		reqID := c.GetHeader(HeaderRequestID)
		if _, err := uuid.Parse(reqID); err != nil {
			reqID = uuid.NewString()
		}
		c.Set(KeyRequestID, reqID)
		c.Header(HeaderRequestID, reqID)

		entry := log.WithField("request_id", reqID)
		c.Set(keyLogger, entry)

		c.Next()

		fields := log.Fields{
			"method":   c.Request.Method,
			"path":     c.FullPath(),
			"status":   c.Writer.Status(),
			"latency":  time.Since(start).String(),
			"client":   c.ClientIP(),
			"user_id":  c.GetInt64(KeyUserID),
			"resp_len": c.Writer.Size(),
		}
		switch status := c.Writer.Status(); {
		case status >= 500:
			entry.WithFields(fields).WithField("errors", c.Errors.String()).Error("request failed")
		case status >= 400:
			entry.WithFields(fields).Warn("request rejected")
		default:
			entry.WithFields(fields).Info("request served")
		}
	}
}

// Logger returns the request-scoped entry, or the standard logger outside a request.
func Logger(c *gin.Context) *log.Entry {
	if v, ok := c.Get(keyLogger); ok {
		if e, ok := v.(*log.Entry); ok {
			return e
		}
	}
	return log.NewEntry(log.StandardLogger())
}
