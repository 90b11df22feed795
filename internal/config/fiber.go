package config

import (
	"errors"
	"os"
	"strconv"

	"github.com/gofiber/fiber/v2"
	jsoniter "github.com/json-iterator/go"
	"github.com/sirupsen/logrus"
)

// multipartOverhead leaves room for form fields and boundaries on top of the
// image itself.
const multipartOverhead = 1024 * 1024

func NewFiber(logger *logrus.Logger) *fiber.App {
	maxUploadMB, err := strconv.Atoi(os.Getenv("MAX_UPLOAD_MB"))
	if err != nil || maxUploadMB <= 0 {
		maxUploadMB = 10
	}

	app := fiber.New(
		fiber.Config{
			AppName:           serviceName,
			BodyLimit:         maxUploadMB*1024*1024 + multipartOverhead,
			DisableKeepalive:  false,
			StrictRouting:     true,
			CaseSensitive:     true,
			EnablePrintRoutes: os.Getenv("APP_ENV") == "development",
			JSONEncoder:       jsoniter.Marshal,
			JSONDecoder:       jsoniter.Unmarshal,
			ErrorHandler:      newErrorHandler(logger),
		})

	return app
}

// newErrorHandler answers errors that escape handlers, such as 404s and body
// limit rejections, in the same JSON shape handlers use.
func newErrorHandler(logger *logrus.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		code := fiber.StatusInternalServerError
		message := "An unexpected error occurred"

		var fe *fiber.Error
		if errors.As(err, &fe) {
			code = fe.Code
			message = fe.Message
		}

		if code >= fiber.StatusInternalServerError {
			logger.WithFields(logrus.Fields{
				"path":  c.Path(),
				"error": err.Error(),
			}).Error("Unhandled error")
		}

		return c.Status(code).JSON(fiber.Map{
			"success": false,
			"error":   message,
		})
	}
}
