package depth

import (
	"fmt"
	"image"
	"image/color"
	"math"
)

// Estimator turns a decoded photo into a per-pixel depth map of the same size.
type Estimator interface {
	Estimate(img image.Image) (DepthMap, error)
}

const (
	intensityWeight = 0.8
	centerWeight    = 0.2
)

// HeuristicEstimator stands in for a trained monocular depth model: darker
// pixels are treated as farther away, with a radial term that pushes the
// borders back. Values are not clamped and can exceed 1 near the corners.
type HeuristicEstimator struct{}

func NewHeuristicEstimator() *HeuristicEstimator {
	return &HeuristicEstimator{}
}

func (e *HeuristicEstimator) Estimate(img image.Image) (DepthMap, error) {
	if img == nil {
		return DepthMap{}, fmt.Errorf("%w: nil image", ErrInvalidImage)
	}

	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	if width <= 0 || height <= 0 {
		return DepthMap{}, fmt.Errorf("%w: zero area (%dx%d)", ErrInvalidImage, width, height)
	}

	dm := NewDepthMap(width, height)
	halfW := float64(width) / 2
	halfH := float64(height) / 2

	for y := 0; y < height; y++ {
		dy := float64(y) - halfH
		row := dm.rows[y]
		for x := 0; x < width; x++ {
			intensity := float64(grayAt(img, bounds.Min.X+x, bounds.Min.Y+y)) / 255
			dx := float64(x) - halfW
			centerDist := math.Sqrt(dx*dx+dy*dy) / halfW
			row[x] = (1-intensity)*intensityWeight + centerDist*centerWeight
		}
	}

	return dm, nil
}

// grayAt returns the 8-bit BT.601 luma of a pixel.
func grayAt(img image.Image, x, y int) uint8 {
	if g, ok := img.(*image.Gray); ok {
		return g.GrayAt(x, y).Y
	}
	return color.GrayModel.Convert(img.At(x, y)).(color.Gray).Y
}

var _ Estimator = (*HeuristicEstimator)(nil)
