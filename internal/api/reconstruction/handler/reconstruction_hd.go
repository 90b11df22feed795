package reconstructionHandler

import (
	"Plan2Protect/internal/api/reconstruction"
	"Plan2Protect/internal/middleware"
	contextPkg "Plan2Protect/pkg/context"
	"Plan2Protect/pkg/handlerUtil"
	"Plan2Protect/pkg/log"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"golang.org/x/net/context"
)

func (h *ReconstructionHandler) Generate3D(ctx *fiber.Ctx) error {
	requestID := h.middleware.GetRequestID(ctx)
	c, cancel := context.WithTimeout(contextPkg.FromFiberCtx(ctx), requestTimeout)
	defer cancel()

	errHandler := handlerUtil.New(h.log)

	file, err := ctx.FormFile("image")
	if err != nil {
		return errHandler.Handle(ctx, requestID, reconstruction.ErrMissingImage, ctx.Path(), "read_form_file")
	}

	var req reconstruction.GenerateRequest
	if err := ctx.BodyParser(&req); err != nil {
		return errHandler.HandleValidationError(ctx, requestID, err, ctx.Path())
	}
	if err := h.validator.Struct(req); err != nil {
		return errHandler.HandleValidationError(ctx, requestID, err, ctx.Path())
	}

	h.log.WithFields(log.Fields{
		"request_id": requestID,
		"path":       ctx.Path(),
		"file_name":  file.Filename,
		"file_size":  file.Size,
	}).Debug("Processing generate-3d upload")

	if err := h.utils.ValidateImageFile(file); err != nil {
		return errHandler.Handle(ctx, requestID, err, ctx.Path(), "validate_image_file")
	}

	image, err := h.utils.ReadFile(file)
	if err != nil {
		return errHandler.Handle(ctx, requestID, err, ctx.Path(), "read_image_file")
	}

	input := reconstruction.GenerateInput{
		Image:       image,
		ContentType: file.Header.Get(fiber.HeaderContentType),
		FileName:    file.Filename,
		UserID:      req.UserID,
	}
	if req.Stride != nil {
		input.Stride = *req.Stride
	}

	result, err := h.reconstructionService.Generate3D(c, input)
	if err != nil {
		return errHandler.Handle(ctx, requestID, err, ctx.Path(), "generate_3d")
	}

	select {
	case <-c.Done():
		return errHandler.HandleRequestTimeout(ctx)
	default:
		h.log.WithFields(log.Fields{
			"request_id":    requestID,
			"path":          ctx.Path(),
			"assessment_id": result.AssessmentID,
			"overall_score": result.Result.SafetyMetrics.OverallScore,
		}).Info("3D generation successful")
		return errHandler.HandleSuccess(ctx, fiber.StatusOK, reconstruction.NewGenerateResponse(result))
	}
}

func (h *ReconstructionHandler) GetAssessment(ctx *fiber.Ctx) error {
	requestID := h.middleware.GetRequestID(ctx)
	c, cancel := context.WithTimeout(contextPkg.FromFiberCtx(ctx), requestTimeout)
	defer cancel()

	errHandler := handlerUtil.New(h.log)

	id := ctx.Params("id")
	if err := h.validator.Var(id, "required,len=26,alphanum"); err != nil {
		return errHandler.HandleValidationError(ctx, requestID, err, ctx.Path())
	}

	assessment, err := h.reconstructionService.GetAssessment(c, id)
	if err != nil {
		return errHandler.Handle(ctx, requestID, err, ctx.Path(), "get_assessment")
	}

	select {
	case <-c.Done():
		return errHandler.HandleRequestTimeout(ctx)
	default:
		return errHandler.HandleSuccess(ctx, fiber.StatusOK, reconstruction.AssessmentResponse{
			Data: *assessment,
		})
	}
}

func (h *ReconstructionHandler) ListAssessments(ctx *fiber.Ctx) error {
	requestID := h.middleware.GetRequestID(ctx)
	c, cancel := context.WithTimeout(contextPkg.FromFiberCtx(ctx), requestTimeout)
	defer cancel()

	errHandler := handlerUtil.New(h.log)

	userID := ctx.Params("user_id")
	if err := h.validator.Var(userID, "required,max=64"); err != nil {
		return errHandler.HandleValidationError(ctx, requestID, err, ctx.Path())
	}

	assessments, err := h.reconstructionService.ListAssessments(c, userID)
	if err != nil {
		return errHandler.Handle(ctx, requestID, err, ctx.Path(), "list_assessments")
	}

	select {
	case <-c.Done():
		return errHandler.HandleRequestTimeout(ctx)
	default:
		return errHandler.HandleSuccess(ctx, fiber.StatusOK, reconstruction.AssessmentListResponse{
			Data:  assessments,
			Total: len(assessments),
		})
	}
}

// handleWebSocket runs the pipeline on every binary frame and answers with
// the points and metrics, or an error object. Errors never close the socket.
func (h *ReconstructionHandler) handleWebSocket(c *websocket.Conn) {
	requestID, _ := c.Locals(middleware.RequestIDKey).(string)
	if requestID == "" {
		requestID = "unknown"
	}

	h.log.Info("Reconstruction WebSocket client connected")
	defer h.log.Info("Reconstruction WebSocket client disconnected")

	c.SetReadLimit(h.utils.MaxFileSize())
	c.SetPingHandler(func(data string) error {
		if err := c.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(5*time.Second)); err != nil {
			h.log.Errorf("Error sending pong: %v", err)
		}
		return nil
	})

	for {
		if err := c.SetReadDeadline(time.Now().Add(wsReadTimeout)); err != nil {
			h.log.Errorf("Error setting read deadline: %v", err)
			break
		}

		messageType, message, err := c.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.Errorf("Reconstruction WebSocket error: %v", err)
			}
			break
		}

		if messageType != websocket.BinaryMessage {
			h.log.Warnf("Received unexpected message type: %d", messageType)
			continue
		}

		var reply interface{}
		frameCtx, cancel := context.WithTimeout(contextPkg.WithRequestID(context.Background(), requestID), requestTimeout)
		result, err := h.reconstructionService.ProcessFrame(frameCtx, message)
		cancel()
		if err != nil {
			h.log.WithFields(log.Fields{
				"request_id": requestID,
				"error":      err.Error(),
			}).Warn("Error processing frame")
			reply = fiber.Map{
				"error":  err.Error(),
				"status": handlerUtil.Status(err),
			}
		} else {
			reply = reconstruction.NewFrameResponse(result)
		}

		if err := c.SetWriteDeadline(time.Now().Add(wsWriteTimeout)); err != nil {
			h.log.Errorf("Error setting write deadline: %v", err)
			break
		}
		if err := c.WriteJSON(reply); err != nil {
			h.log.Errorf("Error writing JSON response: %v", err)
			break
		}
	}
}
