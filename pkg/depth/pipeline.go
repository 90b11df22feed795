package depth

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"strings"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
	"golang.org/x/sync/errgroup"
)

const imageMediaPrefix = "image/"

// DefaultMaxPixels bounds the decoded size of a photo. Compressed uploads can
// expand by several orders of magnitude, so the limit applies to width*height
// read from the image header before any pixel data is decoded.
const DefaultMaxPixels = 25_000_000

type Option func(*Pipeline)

// Pipeline wires an Estimator to the point sampler and the safety scorer.
// A Pipeline is immutable after construction and safe for concurrent use as
// long as its Estimator is.
type Pipeline struct {
	estimator Estimator
	stride    int
	maxPixels int
}

func WithEstimator(estimator Estimator) Option {
	return func(p *Pipeline) {
		if estimator != nil {
			p.estimator = estimator
		}
	}
}

// WithStride sets the sampling stride. Invalid values are reported by Run.
func WithStride(stride int) Option {
	return func(p *Pipeline) {
		p.stride = stride
	}
}

// WithMaxPixels overrides DefaultMaxPixels. Values below 1 keep the default.
func WithMaxPixels(maxPixels int) Option {
	return func(p *Pipeline) {
		if maxPixels > 0 {
			p.maxPixels = maxPixels
		}
	}
}

func NewPipeline(opts ...Option) *Pipeline {
	p := &Pipeline{
		estimator: NewHeuristicEstimator(),
		stride:    DefaultStride,
		maxPixels: DefaultMaxPixels,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// RunPipeline runs the default pipeline: heuristic estimator, DefaultStride.
func RunPipeline(raw []byte, contentType string) (*Result, error) {
	return NewPipeline().Run(raw, contentType)
}

func (p *Pipeline) Stride() int { return p.stride }

// Run validates and decodes raw, estimates depth, then samples the point cloud
// and scores the scene. Any failure is returned as a *PipelineError and no
// partial result is produced.
func (p *Pipeline) Run(raw []byte, contentType string) (*Result, error) {
	if err := p.Validate(contentType); err != nil {
		return nil, err
	}

	img, err := p.DecodeImage(raw)
	if err != nil {
		return nil, err
	}

	return p.RunImage(img)
}

// DecodeImage decodes raw within the pipeline's pixel limit.
func (p *Pipeline) DecodeImage(raw []byte) (image.Image, error) {
	img, err := Decode(raw, p.maxPixels)
	if err != nil {
		return nil, wrapStage(StageDecode, err)
	}
	return img, nil
}

// Validate runs the checks Run performs before touching the image bytes.
func (p *Pipeline) Validate(contentType string) error {
	if !IsImageContentType(contentType) {
		return wrapStage(StageValidate, fmt.Errorf("%w: %q", ErrUnsupportedMediaType, contentType))
	}
	if p.stride < 1 {
		return wrapStage(StageValidate, fmt.Errorf("%w: stride must be >= 1, got %d", ErrInvalidParameter, p.stride))
	}
	return nil
}

// RunImage runs the pipeline on an already decoded image.
func (p *Pipeline) RunImage(img image.Image) (*Result, error) {
	dm, err := p.estimator.Estimate(img)
	if err != nil {
		return nil, wrapStage(StageEstimate, err)
	}
	if b := img.Bounds(); dm.Width() != b.Dx() || dm.Height() != b.Dy() {
		return nil, wrapStage(StageEstimate, fmt.Errorf("%w: depth map is %dx%d, image is %dx%d",
			ErrInvalidImage, dm.Width(), dm.Height(), b.Dx(), b.Dy()))
	}

	var (
		points  PointCloud
		metrics SafetyMetrics
		g       errgroup.Group
	)

	g.Go(func() error {
		var err error
		points, err = SamplePoints(dm, p.stride)
		if err != nil {
			return wrapStage(StageSample, err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		metrics, err = ScoreSafety(dm)
		if err != nil {
			return wrapStage(StageScore, err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return &Result{
		DepthMap:      dm,
		Points:        points,
		OriginalSize:  [2]int{dm.Height(), dm.Width()},
		SafetyMetrics: metrics,
	}, nil
}

// Decode decodes any registered image format. Zero-area images and images
// whose header declares more than maxPixels pixels are rejected; the latter
// before their pixel data is read.
func Decode(raw []byte, maxPixels int) (image.Image, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: empty body", ErrInvalidImage)
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, fmt.Errorf("%w: zero area (%dx%d)", ErrInvalidImage, cfg.Width, cfg.Height)
	}
	if maxPixels > 0 && int64(cfg.Width)*int64(cfg.Height) > int64(maxPixels) {
		return nil, fmt.Errorf("%w: %dx%d exceeds the limit of %d pixels", ErrInvalidImage, cfg.Width, cfg.Height, maxPixels)
	}

	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}

	b := img.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 {
		return nil, fmt.Errorf("%w: zero area (%dx%d)", ErrInvalidImage, b.Dx(), b.Dy())
	}

	return img, nil
}

func IsImageContentType(contentType string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(contentType)), imageMediaPrefix)
}
