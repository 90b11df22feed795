package reconstructionHandler

import (
	reconstructionService "Plan2Protect/internal/api/reconstruction/service"
	"Plan2Protect/internal/middleware"
	"Plan2Protect/pkg/utils"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/sirupsen/logrus"
)

const (
	requestTimeout = 30 * time.Second
	wsReadTimeout  = 60 * time.Second
	wsWriteTimeout = 10 * time.Second
)

type ReconstructionHandler struct {
	log                   *logrus.Logger
	validator             *validator.Validate
	middleware            middleware.Middleware
	reconstructionService reconstructionService.IReconstructionService
	utils                 utils.IUtils
}

func New(
	log *logrus.Logger,
	validator *validator.Validate,
	middleware middleware.Middleware,
	rs reconstructionService.IReconstructionService,
	utils utils.IUtils,
) *ReconstructionHandler {
	return &ReconstructionHandler{
		log:                   log,
		validator:             validator,
		middleware:            middleware,
		reconstructionService: rs,
		utils:                 utils,
	}
}

func (h *ReconstructionHandler) Start(srv fiber.Router) {
	wsMiddleware := func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	}

	reconstruction := srv.Group("/reconstruction")
	reconstruction.Post("/generate-3d", h.middleware.NewRateLimiter, h.Generate3D)
	reconstruction.Get("/assessments/:id", h.GetAssessment)
	reconstruction.Get("/users/:user_id/assessments", h.ListAssessments)

	reconstruction.Use("/ws", wsMiddleware)
	reconstruction.Get("/ws", websocket.New(h.handleWebSocket, websocket.Config{
		ReadBufferSize:  64 * 1024,
		WriteBufferSize: 64 * 1024,
	}))
}
