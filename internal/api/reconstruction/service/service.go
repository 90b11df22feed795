package reconstructionService

import (
	"Plan2Protect/internal/api/reconstruction"
	reconstructionRepository "Plan2Protect/internal/api/reconstruction/repository"
	"Plan2Protect/internal/entity"
	"Plan2Protect/pkg/depth"
	"Plan2Protect/pkg/redis"
	"Plan2Protect/pkg/s3"
	"Plan2Protect/pkg/utils"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/net/context"
)

const (
	defaultCacheTTL      = 60 * time.Minute
	defaultCacheMaxBytes = 8 * 1024 * 1024
	archivePrefix        = "assessments"
)

type IReconstructionService interface {
	Generate3D(ctx context.Context, input reconstruction.GenerateInput) (*reconstruction.GenerateResult, error)
	ProcessFrame(ctx context.Context, frame []byte) (*depth.Result, error)
	GetAssessment(ctx context.Context, id string) (*entity.SafetyAssessment, error)
	ListAssessments(ctx context.Context, userID string) ([]entity.SafetyAssessment, error)
}

// Config carries the pipeline settings. EstimatorKind namespaces cache keys
// so results of different estimators never mix.
type Config struct {
	Estimator     depth.Estimator
	EstimatorKind string
	DefaultStride int
	CacheTTL      time.Duration
	CacheMaxBytes int
	MaxPixels     int
}

type reconstructionService struct {
	log     *logrus.Logger
	cfg     Config
	repo    reconstructionRepository.Repository
	cache   redis.IRedis
	storage s3.ItfS3
	utils   utils.IUtils
}

// NewReconstructionService wires the pipeline to its optional collaborators.
// repo, cache and storage may be nil; the matching feature is then skipped.
func NewReconstructionService(
	log *logrus.Logger,
	cfg Config,
	repo reconstructionRepository.Repository,
	cache redis.IRedis,
	storage s3.ItfS3,
	util utils.IUtils,
) IReconstructionService {
	if util == nil {
		util = utils.New()
	}
	if cfg.Estimator == nil {
		cfg.Estimator = depth.NewHeuristicEstimator()
		cfg.EstimatorKind = "heuristic"
	}
	if cfg.EstimatorKind == "" {
		cfg.EstimatorKind = "custom"
	}
	if cfg.DefaultStride < 1 {
		cfg.DefaultStride = depth.DefaultStride
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = defaultCacheTTL
	}
	if cfg.CacheMaxBytes <= 0 {
		cfg.CacheMaxBytes = defaultCacheMaxBytes
	}
	if cfg.MaxPixels <= 0 {
		cfg.MaxPixels = depth.DefaultMaxPixels
	}

	return &reconstructionService{
		log:     log,
		cfg:     cfg,
		repo:    repo,
		cache:   cache,
		storage: storage,
		utils:   util,
	}
}

func (s *reconstructionService) pipeline(stride int) *depth.Pipeline {
	if stride == 0 {
		stride = s.cfg.DefaultStride
	}
	return depth.NewPipeline(
		depth.WithEstimator(s.cfg.Estimator),
		depth.WithStride(stride),
		depth.WithMaxPixels(s.cfg.MaxPixels),
	)
}
