package config

import (
	"Plan2Protect/database/postgres"
	reconstructionHandler "Plan2Protect/internal/api/reconstruction/handler"
	reconstructionRepository "Plan2Protect/internal/api/reconstruction/repository"
	reconstructionService "Plan2Protect/internal/api/reconstruction/service"
	"Plan2Protect/internal/middleware"
	"Plan2Protect/pkg/depth"
	"Plan2Protect/pkg/redis"
	"Plan2Protect/pkg/s3"
	"Plan2Protect/pkg/utils"
	websocketPkg "Plan2Protect/pkg/websocket"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"
)

const (
	EstimatorHeuristic = "heuristic"
	EstimatorRemote    = "remote"

	serviceName = "Plan2Protect 3D Generator"
)

type ServerOption func(*Server) error

type Server struct {
	engine        *fiber.App
	db            *sqlx.DB
	log           *logrus.Logger
	middleware    middleware.Middleware
	validator     *validator.Validate
	utils         utils.IUtils
	handlers      []handler
	redisServer   redis.IRedis
	s3Client      s3.ItfS3
	depthClient   websocketPkg.IDepthClient
	pipelineCfg   reconstructionService.Config
	registeredAPI bool
}

type handler interface {
	Start(srv fiber.Router)
}

func NewServer(options ...ServerOption) (*Server, error) {
	server := &Server{}

	for _, option := range options {
		if err := option(server); err != nil {
			return nil, fmt.Errorf("failed to apply option: %w", err)
		}
	}

	if server.engine == nil {
		return nil, fmt.Errorf("fiber app is required")
	}
	if server.log == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if server.middleware == nil {
		server.middleware = middleware.New(server.log)
	}
	if server.validator == nil {
		server.validator = NewValidator()
	}
	if server.utils == nil {
		server.utils = utils.New()
	}

	return server, nil
}

func WithFiber(fiberApp *fiber.App) ServerOption {
	return func(s *Server) error {
		s.engine = fiberApp
		return nil
	}
}

func WithLogger(logger *logrus.Logger) ServerOption {
	return func(s *Server) error {
		s.log = logger
		return nil
	}
}

func WithValidator(validator *validator.Validate) ServerOption {
	return func(s *Server) error {
		s.validator = validator
		return nil
	}
}

// WithDatabase connects to Postgres when DB_HOST is set. Without it the
// service runs and assessment storage is disabled.
func WithDatabase() ServerOption {
	return func(s *Server) error {
		if os.Getenv("DB_HOST") == "" {
			s.logInfo("DB_HOST not set, assessment storage disabled")
			return nil
		}

		db, err := postgres.New()
		if err != nil {
			if s.log != nil {
				s.log.Errorf("Failed to connect to database: %v", err)
			}
			return fmt.Errorf("failed to create database connection: %w", err)
		}
		s.db = db
		return nil
	}
}

// WithRedisServer enables the result cache when REDIS_ADDRESS is set.
func WithRedisServer() ServerOption {
	return func(s *Server) error {
		if os.Getenv("REDIS_ADDRESS") == "" {
			s.logInfo("REDIS_ADDRESS not set, result cache disabled")
			return nil
		}
		if s.log == nil {
			return fmt.Errorf("logger must be initialized before redis")
		}
		s.redisServer = redis.New(s.log)
		return nil
	}
}

// WithS3Client enables the photo archive when AWS_BUCKET_NAME is set.
func WithS3Client() ServerOption {
	return func(s *Server) error {
		if os.Getenv("AWS_BUCKET_NAME") == "" {
			s.logInfo("AWS_BUCKET_NAME not set, image archive disabled")
			return nil
		}

		client, err := s3.New()
		if err != nil {
			if s.log != nil {
				s.log.Errorf("Failed to initialize S3 client: %v", err)
			}
			return fmt.Errorf("failed to create S3 client: %w", err)
		}
		s.s3Client = client
		return nil
	}
}

func WithMiddleware() ServerOption {
	return func(s *Server) error {
		if s.log == nil {
			return fmt.Errorf("logger must be initialized before middleware")
		}
		s.middleware = middleware.New(s.log)
		return nil
	}
}

func WithUtils() ServerOption {
	return func(s *Server) error {
		s.utils = utils.New()
		return nil
	}
}

// WithDepthEstimator selects the estimator from DEPTH_ESTIMATOR, the default
// stride from POINT_STRIDE and the decoded size limit from MAX_IMAGE_PIXELS.
func WithDepthEstimator() ServerOption {
	return func(s *Server) error {
		kind := strings.ToLower(strings.TrimSpace(os.Getenv("DEPTH_ESTIMATOR")))
		if kind == "" {
			kind = EstimatorHeuristic
		}

		cfg := reconstructionService.Config{
			EstimatorKind: kind,
			DefaultStride: envInt("POINT_STRIDE", depth.DefaultStride),
			CacheTTL:      time.Duration(envInt("CACHE_TTL_MINUTES", 60)) * time.Minute,
			CacheMaxBytes: envInt("CACHE_MAX_BYTES", 8*1024*1024),
			MaxPixels:     envInt("MAX_IMAGE_PIXELS", depth.DefaultMaxPixels),
		}

		switch kind {
		case EstimatorHeuristic:
			cfg.Estimator = depth.NewHeuristicEstimator()
		case EstimatorRemote:
			if s.log == nil {
				return fmt.Errorf("logger must be initialized before the remote estimator")
			}
			url := os.Getenv("DEPTH_SERVICE_URL")
			if url == "" {
				return fmt.Errorf("DEPTH_SERVICE_URL is required when DEPTH_ESTIMATOR=%s", EstimatorRemote)
			}
			s.depthClient = websocketPkg.NewDepthClient(url, s.log)
			cfg.Estimator = s.depthClient
		default:
			return fmt.Errorf("unknown DEPTH_ESTIMATOR %q", kind)
		}

		s.pipelineCfg = cfg
		return nil
	}
}

func WithPipelineConfig(cfg reconstructionService.Config) ServerOption {
	return func(s *Server) error {
		s.pipelineCfg = cfg
		return nil
	}
}

func (s *Server) RegisterHandler() {
	if s.registeredAPI {
		return
	}
	s.registeredAPI = true

	var repo reconstructionRepository.Repository
	if s.db != nil {
		repo = reconstructionRepository.New(s.db, s.log)
	}

	services := reconstructionService.NewReconstructionService(s.log, s.pipelineCfg, repo, s.redisServer, s.s3Client, s.utils)
	handlers := reconstructionHandler.New(s.log, s.validator, s.middleware, services, s.utils)

	s.engine.Use(s.middleware.NewRequestIDMiddleware())
	s.engine.Use(s.middleware.NewLoggingMiddleware())

	s.setupHealthCheck()
	s.handlers = append(s.handlers, handlers)

	router := s.engine.Group("/api/v1")
	for _, h := range s.handlers {
		h.Start(router)
	}
}

func (s *Server) App() *fiber.App {
	return s.engine
}

func (s *Server) Run() error {
	port := os.Getenv("APP_PORT")
	if port == "" {
		port = "3000"
	}

	return s.engine.Listen(fmt.Sprintf(":%s", port))
}

// Shutdown stops the listener and releases external connections.
func (s *Server) Shutdown() error {
	err := s.engine.ShutdownWithTimeout(10 * time.Second)

	if s.depthClient != nil {
		s.depthClient.Close()
	}
	if s.redisServer != nil {
		if cerr := s.redisServer.Close(); cerr != nil {
			s.log.Warnf("Error closing redis: %v", cerr)
		}
	}
	if s.db != nil {
		if cerr := s.db.Close(); cerr != nil {
			s.log.Warnf("Error closing database: %v", cerr)
		}
	}

	return err
}

func (s *Server) setupHealthCheck() {
	s.engine.Get("/", func(ctx *fiber.Ctx) error {
		return ctx.JSON(fiber.Map{
			"message": "Server is Healthy!",
		})
	})

	s.engine.Get("/api/health", func(ctx *fiber.Ctx) error {
		return ctx.JSON(fiber.Map{
			"status":  "healthy",
			"service": serviceName,
		})
	})
}

func (s *Server) logInfo(msg string) {
	if s.log != nil {
		s.log.Info(msg)
	}
}

func envInt(key string, fallback int) int {
	v, err := strconv.Atoi(os.Getenv(key))
	if err != nil || v <= 0 {
		return fallback
	}
	return v
}
