package depth

import "fmt"

// DefaultStride is the pixel interval used when callers do not pick one.
const DefaultStride = 10

// SamplePoints takes every stride-th pixel in both directions and maps it to
// normalised image-plane coordinates. Points are emitted row by row.
func SamplePoints(dm DepthMap, stride int) (PointCloud, error) {
	if stride < 1 {
		return nil, fmt.Errorf("%w: stride must be >= 1, got %d", ErrInvalidParameter, stride)
	}
	if dm.Empty() {
		return nil, fmt.Errorf("%w: empty depth map", ErrInvalidImage)
	}

	width, height := dm.Width(), dm.Height()
	halfW := float64(width) / 2
	halfH := float64(height) / 2

	cols := (width + stride - 1) / stride
	rows := (height + stride - 1) / stride
	points := make(PointCloud, 0, rows*cols)

	for y := 0; y < height; y += stride {
		yNorm := (float64(y) - halfH) / halfH
		for x := 0; x < width; x += stride {
			xNorm := (float64(x) - halfW) / halfW
			points = append(points, Point3D{xNorm, yNorm, dm.At(x, y)})
		}
	}

	return points, nil
}
