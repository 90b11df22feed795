package reconstructionService

import (
	"Plan2Protect/internal/api/reconstruction"
	"Plan2Protect/internal/entity"
	contextPkg "Plan2Protect/pkg/context"
	"Plan2Protect/pkg/depth"
	"Plan2Protect/pkg/redis"
	"Plan2Protect/pkg/s3"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/sirupsen/logrus"
	"golang.org/x/net/context"
)

type runOutcome struct {
	result *depth.Result
	err    error
}

func (s *reconstructionService) Generate3D(ctx context.Context, input reconstruction.GenerateInput) (*reconstruction.GenerateResult, error) {
	requestID := contextPkg.GetRequestID(ctx)

	p := s.pipeline(input.Stride)
	if err := p.Validate(input.ContentType); err != nil {
		return nil, err
	}

	key := s.cacheKey(input.Image, p.Stride())
	result, cached := s.lookupCache(ctx, key)

	if !cached {
		var err error
		result, err = s.run(ctx, p, input)
		if err != nil {
			s.log.WithFields(logrus.Fields{
				"request_id": requestID,
				"error":      err.Error(),
			}).Warn("Depth pipeline failed")
			return nil, err
		}
		s.storeCache(ctx, key, result)
	}

	s.log.WithFields(logrus.Fields{
		"request_id":    requestID,
		"width":         result.OriginalSize[1],
		"height":        result.OriginalSize[0],
		"point_count":   len(result.Points),
		"overall_score": result.SafetyMetrics.OverallScore,
		"cached":        cached,
	}).Info("Generated 3D reconstruction")

	out := &reconstruction.GenerateResult{Result: result, Cached: cached}

	if s.repo == nil {
		return out, nil
	}

	id, err := s.saveAssessment(ctx, input, result)
	if err != nil {
		return nil, err
	}
	out.AssessmentID = id

	return out, nil
}

// run executes the pipeline off the request goroutine so the caller's
// deadline is honoured even while an estimator is blocked.
func (s *reconstructionService) run(ctx context.Context, p *depth.Pipeline, input reconstruction.GenerateInput) (*depth.Result, error) {
	return s.await(ctx, func() (*depth.Result, error) {
		return p.Run(input.Image, input.ContentType)
	})
}

// await runs fn in its own goroutine and gives up when ctx is done. fn keeps
// running to completion in the background; its result is discarded.
func (s *reconstructionService) await(ctx context.Context, fn func() (*depth.Result, error)) (*depth.Result, error) {
	done := make(chan runOutcome, 1)
	go func() {
		res, err := fn()
		done <- runOutcome{result: res, err: err}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case out := <-done:
		return out.result, out.err
	}
}

// ProcessFrame runs one websocket frame through the pipeline with the default
// stride. Frames carry no content type, so the bytes are decoded directly.
func (s *reconstructionService) ProcessFrame(ctx context.Context, frame []byte) (*depth.Result, error) {
	p := s.pipeline(0)
	return s.await(ctx, func() (*depth.Result, error) {
		img, err := p.DecodeImage(frame)
		if err != nil {
			return nil, err
		}
		return p.RunImage(img)
	})
}

func (s *reconstructionService) GetAssessment(ctx context.Context, id string) (*entity.SafetyAssessment, error) {
	if s.repo == nil {
		return nil, reconstruction.ErrStorageDisabled
	}

	client, err := s.repo.NewClient(false)
	if err != nil {
		return nil, err
	}

	assessment, err := client.Assessment.GetAssessmentByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if assessment.ImageURL != "" && s.storage != nil {
		presigned, err := s.storage.PresignUrl(assessment.ImageURL)
		if err != nil {
			s.log.WithFields(logrus.Fields{
				"request_id":    contextPkg.GetRequestID(ctx),
				"assessment_id": id,
				"error":         err.Error(),
			}).Warn("Failed to presign assessment image")
		} else {
			assessment.ImageURL = presigned
		}
	}

	return &assessment, nil
}

// ListAssessments returns stored summaries newest first. Image URLs are the
// stored locations; fetch a single assessment for a presigned link.
func (s *reconstructionService) ListAssessments(ctx context.Context, userID string) ([]entity.SafetyAssessment, error) {
	if s.repo == nil {
		return nil, reconstruction.ErrStorageDisabled
	}

	client, err := s.repo.NewClient(false)
	if err != nil {
		return nil, err
	}

	return client.Assessment.GetAssessmentsByUserID(ctx, userID)
}

func (s *reconstructionService) saveAssessment(ctx context.Context, input reconstruction.GenerateInput, result *depth.Result) (string, error) {
	requestID := contextPkg.GetRequestID(ctx)

	id, err := s.utils.NewULIDFromTimestamp(time.Now())
	if err != nil {
		return "", fmt.Errorf("%w: %v", reconstruction.ErrSaveAssessment, err)
	}

	assessment := entity.SafetyAssessment{
		ID:              id,
		UserID:          input.UserID,
		ImageURL:        s.archiveImage(ctx, id, input),
		Status:          entity.AssessmentStatusCompleted,
		OverallScore:    result.SafetyMetrics.OverallScore,
		CriticalIssues:  result.SafetyMetrics.CriticalIssues,
		MediumIssues:    result.SafetyMetrics.MediumIssues,
		Recommendations: result.SafetyMetrics.Recommendations,
		Width:           result.OriginalSize[1],
		Height:          result.OriginalSize[0],
		PointCount:      len(result.Points),
		CreatedAt:       time.Now(),
	}

	client, err := s.repo.NewClient(false)
	if err != nil {
		return "", fmt.Errorf("%w: %v", reconstruction.ErrSaveAssessment, err)
	}

	if err := client.Assessment.CreateAssessment(ctx, assessment); err != nil {
		s.log.WithFields(logrus.Fields{
			"request_id":    requestID,
			"assessment_id": id,
			"error":         err.Error(),
		}).Error("Failed to save assessment")
		s.discardImage(ctx, assessment.ImageURL)
		return "", fmt.Errorf("%w: %v", reconstruction.ErrSaveAssessment, err)
	}

	return id, nil
}

// archiveImage uploads the original photo and returns its location, or ""
// when archiving is disabled or fails.
func (s *reconstructionService) archiveImage(ctx context.Context, id string, input reconstruction.GenerateInput) string {
	if s.storage == nil {
		return ""
	}

	location, err := s.storage.UploadBytes(s3.ObjectKey(archivePrefix, id, input.FileName), input.ContentType, input.Image)
	if err != nil {
		s.log.WithFields(logrus.Fields{
			"request_id":    contextPkg.GetRequestID(ctx),
			"assessment_id": id,
			"error":         err.Error(),
		}).Warn("Failed to archive uploaded image")
		return ""
	}

	return location
}

// discardImage removes an archived photo whose assessment row was never written.
func (s *reconstructionService) discardImage(ctx context.Context, location string) {
	if s.storage == nil || location == "" {
		return
	}

	if err := s.storage.DeleteFile(location); err != nil {
		s.log.WithFields(logrus.Fields{
			"request_id": contextPkg.GetRequestID(ctx),
			"location":   location,
			"error":      err.Error(),
		}).Warn("Failed to remove orphaned image")
	}
}

func (s *reconstructionService) cacheKey(image []byte, stride int) string {
	sum := sha256.Sum256(image)
	return fmt.Sprintf("plan2protect:reconstruction:%s:%d:%s", s.cfg.EstimatorKind, stride, hex.EncodeToString(sum[:]))
}

func (s *reconstructionService) lookupCache(ctx context.Context, key string) (*depth.Result, bool) {
	if s.cache == nil {
		return nil, false
	}

	raw, err := s.cache.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, redis.ErrCacheMiss) {
			s.log.WithFields(logrus.Fields{
				"request_id": contextPkg.GetRequestID(ctx),
				"error":      err.Error(),
			}).Warn("Result cache read failed")
		}
		return nil, false
	}

	var payload depth.Payload
	if err := jsoniter.Unmarshal(raw, &payload); err != nil {
		s.evict(ctx, key, err)
		return nil, false
	}

	result, err := depth.ResultFromPayload(payload)
	if err != nil {
		s.evict(ctx, key, err)
		return nil, false
	}

	return result, true
}

func (s *reconstructionService) storeCache(ctx context.Context, key string, result *depth.Result) {
	if s.cache == nil {
		return
	}

	raw, err := jsoniter.Marshal(result.Payload())
	if err != nil {
		s.log.WithFields(logrus.Fields{
			"request_id": contextPkg.GetRequestID(ctx),
			"error":      err.Error(),
		}).Warn("Failed to encode result for cache")
		return
	}
	if len(raw) > s.cfg.CacheMaxBytes {
		s.log.WithFields(logrus.Fields{
			"request_id": contextPkg.GetRequestID(ctx),
			"size":       len(raw),
			"limit":      s.cfg.CacheMaxBytes,
		}).Debug("Result exceeds cache limit, not cached")
		return
	}

	if err := s.cache.Set(ctx, key, raw, s.cfg.CacheTTL); err != nil {
		s.log.WithFields(logrus.Fields{
			"request_id": contextPkg.GetRequestID(ctx),
			"error":      err.Error(),
		}).Warn("Result cache write failed")
	}
}

func (s *reconstructionService) evict(ctx context.Context, key string, cause error) {
	s.log.WithFields(logrus.Fields{
		"request_id": contextPkg.GetRequestID(ctx),
		"key":        key,
		"error":      cause.Error(),
	}).Warn("Dropping unreadable cache entry")
	if err := s.cache.Delete(ctx, key); err != nil {
		s.log.WithFields(logrus.Fields{
			"request_id": contextPkg.GetRequestID(ctx),
			"key":        key,
			"error":      err.Error(),
		}).Warn("Failed to drop cache entry")
	}
}
