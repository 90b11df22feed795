package middleware

import (
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	jsoniter "github.com/json-iterator/go"
	"github.com/sirupsen/logrus"
)

var sensitiveFields = []string{
	"password", "token", "secret", "key", "auth",
	"credential", "authorization",
}

// NewLoggingMiddleware logs one line per request. It must run after the
// request ID middleware.
func (m *middleware) NewLoggingMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()

		err := c.Next()

		status := c.Response().StatusCode()
		if err != nil {
			if fe, ok := err.(*fiber.Error); ok {
				status = fe.Code
			}
		}

		fields := logrus.Fields{
			"request_id":    m.GetRequestID(c),
			"method":        c.Method(),
			"path":          c.Path(),
			"status":        status,
			"latency_ms":    time.Since(start).Milliseconds(),
			"ip":            c.IP(),
			"user_agent":    c.Get(fiber.HeaderUserAgent),
			"response_size": len(c.Response().Body()),
		}

		if body := describeBody(string(c.Request().Header.ContentType()), c.Request().Body()); body != "" {
			fields["request_body"] = body
		}

		entry := m.log.WithFields(fields)
		switch {
		case status >= fiber.StatusInternalServerError:
			entry.Error("Server error")
		case status >= fiber.StatusBadRequest:
			entry.Warn("Client error")
		default:
			entry.Info("Success")
		}

		return err
	}
}

// describeBody returns a loggable form of the request body: sanitised JSON,
// a size note for uploads, or "" when there is no body.
func describeBody(contentType string, body []byte) string {
	if len(body) == 0 {
		return ""
	}
	if !strings.HasPrefix(strings.ToLower(contentType), fiber.MIMEApplicationJSON) {
		return "[" + strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0]) + " body, " + byteCount(len(body)) + "]"
	}

	var jsonBody map[string]interface{}
	if err := jsoniter.Unmarshal(body, &jsonBody); err != nil {
		return "[non-JSON body]"
	}

	for _, field := range sensitiveFields {
		if _, exists := jsonBody[field]; exists {
			jsonBody[field] = "[SECRET]"
		}
	}

	sanitized, err := jsoniter.Marshal(jsonBody)
	if err != nil {
		return "[sanitization-failed]"
	}

	return string(sanitized)
}

func byteCount(n int) string {
	const unit = 1024
	switch {
	case n < unit:
		return strconv.Itoa(n) + " B"
	case n < unit*unit:
		return strconv.Itoa(n/unit) + " KiB"
	default:
		return strconv.Itoa(n/(unit*unit)) + " MiB"
	}
}
