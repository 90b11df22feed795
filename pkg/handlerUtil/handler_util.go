package handlerUtil

import (
	"Plan2Protect/pkg/depth"
	"Plan2Protect/pkg/log"
	"Plan2Protect/pkg/response"
	"Plan2Protect/pkg/utils"
	websocketPkg "Plan2Protect/pkg/websocket"
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"
	fiberUtils "github.com/gofiber/fiber/v2/utils"
	"github.com/sirupsen/logrus"
)

type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Stage   string `json:"stage,omitempty"`
}

type errorRule struct {
	target  error
	status  int
	code    string
	message string
}

// rules are checked in order; the first match wins.
var rules = []errorRule{
	{depth.ErrUnsupportedMediaType, fiber.StatusUnsupportedMediaType, "UNSUPPORTED_MEDIA_TYPE", "File must be an image"},
	{utils.ErrNotImage, fiber.StatusUnsupportedMediaType, "UNSUPPORTED_MEDIA_TYPE", "File must be an image"},
	{utils.ErrFileTooLarge, fiber.StatusRequestEntityTooLarge, "FILE_TOO_LARGE", "File too large"},
	{utils.ErrNoFile, fiber.StatusBadRequest, "MISSING_IMAGE", "Image file is required"},
	{depth.ErrInvalidImage, fiber.StatusBadRequest, "INVALID_IMAGE", "Image could not be decoded"},
	{depth.ErrInvalidParameter, fiber.StatusBadRequest, "INVALID_PARAMETER", "Invalid sampling parameter"},
	{websocketPkg.ErrDepthServiceUnavailable, fiber.StatusServiceUnavailable, "DEPTH_SERVICE_UNAVAILABLE", "Depth service unavailable"},
	{websocketPkg.ErrMalformedDepth, fiber.StatusBadGateway, "DEPTH_SERVICE_ERROR", "Depth service returned an invalid response"},
}

type ErrorHandler struct {
	logger *logrus.Logger
}

func New(logger *logrus.Logger) *ErrorHandler {
	return &ErrorHandler{
		logger: logger,
	}
}

// Status reports the HTTP status Handle would answer err with.
func Status(err error) int {
	if errors.Is(err, context.DeadlineExceeded) {
		return fiber.StatusRequestTimeout
	}

	var respErr *response.Error
	if errors.As(err, &respErr) {
		return respErr.Code
	}

	for _, rule := range rules {
		if errors.Is(err, rule.target) {
			return rule.status
		}
	}

	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		return fiberErr.Code
	}

	return fiber.StatusInternalServerError
}

func (h *ErrorHandler) Handle(c *fiber.Ctx, requestID string, err error, path string, operation string) error {
	fields := log.Fields{
		"request_id": requestID,
		"error":      err.Error(),
		"path":       path,
		"operation":  operation,
	}

	var stage string
	var pipelineErr *depth.PipelineError
	if errors.As(err, &pipelineErr) {
		stage = pipelineErr.Stage
		fields["stage"] = stage
	}

	if errors.Is(err, context.DeadlineExceeded) {
		h.logger.WithFields(fields).Warn("Operation timed out")
		return h.HandleRequestTimeout(c)
	}

	var respErr *response.Error
	if errors.As(err, &respErr) {
		fields["code"] = respErr.Code
		if respErr.Code >= fiber.StatusInternalServerError {
			h.logger.WithFields(fields).Error("Operation failed with error response")
		} else {
			h.logger.WithFields(fields).Warn("Operation failed with error response")
		}
		return c.Status(respErr.Code).JSON(ErrorResponse{
			Error: respErr.Error(),
		})
	}

	for _, rule := range rules {
		if !errors.Is(err, rule.target) {
			continue
		}
		if rule.status >= fiber.StatusInternalServerError {
			h.logger.WithFields(fields).Error(rule.message)
		} else {
			h.logger.WithFields(fields).Warn(rule.message)
		}
		return c.Status(rule.status).JSON(ErrorResponse{
			Error: rule.message + ": " + rootCause(err).Error(),
			Code:  rule.code,
			Stage: stage,
		})
	}

	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		h.logger.WithFields(fields).Warn("Request rejected by framework")
		return c.Status(fiberErr.Code).JSON(ErrorResponse{
			Error: fiberErr.Message,
		})
	}

	traceID := log.ErrorWithTraceID(fields, "Unexpected error")

	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"success":  false,
		"error":    "Error generating 3D model",
		"trace_id": traceID,
	})
}

func (h *ErrorHandler) HandleValidationError(c *fiber.Ctx, requestID string, err error, path string) error {
	h.logger.WithFields(log.Fields{
		"request_id": requestID,
		"error":      err.Error(),
		"path":       path,
	}).Warn("Validation failed")

	return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
		Error: "Validation failed: " + err.Error(),
		Code:  "VALIDATION_ERROR",
	})
}

func (h *ErrorHandler) HandleRequestTimeout(c *fiber.Ctx) error {
	return c.Status(fiber.StatusRequestTimeout).JSON(ErrorResponse{
		Error: fiberUtils.StatusMessage(fiber.StatusRequestTimeout),
		Code:  "REQUEST_TIMEOUT",
	})
}

func (h *ErrorHandler) HandleSuccess(c *fiber.Ctx, statusCode int, data interface{}) error {
	if data == nil {
		return c.SendStatus(statusCode)
	}
	return c.Status(statusCode).JSON(data)
}

// rootCause strips the pipeline stage wrapper so clients see the cause only.
func rootCause(err error) error {
	var pipelineErr *depth.PipelineError
	if errors.As(err, &pipelineErr) && pipelineErr.Err != nil {
		return pipelineErr.Err
	}
	return err
}
