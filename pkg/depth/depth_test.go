package depth

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"hash/crc32"
	"image"
	"image/color"
	"image/png"
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func grayImage(w, h int, pix []uint8) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, w, h))
	copy(img.Pix, pix)
	return img
}

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func filledMap(w, h int, v float64) DepthMap {
	dm := NewDepthMap(w, h)
	for i := range dm.values {
		dm.values[i] = v
	}
	return dm
}

func TestHeuristicEstimator_MatchesFormula(t *testing.T) {
	pix := []uint8{
		0, 17, 34, 51,
		68, 85, 102, 119,
		136, 153, 170, 187,
		204, 221, 238, 255,
	}
	img := grayImage(4, 4, pix)

	dm, err := NewHeuristicEstimator().Estimate(img)
	require.NoError(t, err)
	require.Equal(t, 4, dm.Width())
	require.Equal(t, 4, dm.Height())

	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			intensity := float64(pix[y*4+x]) / 255
			centerDist := math.Sqrt(math.Pow(float64(x)-2, 2)+math.Pow(float64(y)-2, 2)) / 2
			want := (1-intensity)*0.8 + centerDist*0.2
			assert.InDelta(t, want, dm.At(x, y), 1e-12, "pixel (%d,%d)", x, y)
		}
	}
}

func TestHeuristicEstimator_ColorUsesLuma(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	for y := 0; y < 2; y++ {
		for x := 0; x < 2; x++ {
			img.Set(x, y, color.RGBA{R: 200, G: 100, B: 50, A: 255})
		}
	}

	dm, err := NewHeuristicEstimator().Estimate(img)
	require.NoError(t, err)

	gray := color.GrayModel.Convert(color.RGBA{R: 200, G: 100, B: 50, A: 255}).(color.Gray).Y
	want := (1-float64(gray)/255)*0.8 + 0 // pixel (1,1) is the center
	assert.InDelta(t, want, dm.At(1, 1), 1e-12)
}

func TestHeuristicEstimator_DimensionsMatchImage(t *testing.T) {
	for _, size := range [][2]int{{1, 1}, {7, 3}, {3, 7}, {64, 48}} {
		img := image.NewRGBA(image.Rect(0, 0, size[0], size[1]))
		dm, err := NewHeuristicEstimator().Estimate(img)
		require.NoError(t, err)
		assert.Equal(t, size[0], dm.Width())
		assert.Equal(t, size[1], dm.Height())
		assert.Len(t, dm.Rows(), size[1])
		assert.Len(t, dm.Values(), size[0]*size[1])
	}
}

func TestHeuristicEstimator_NonZeroOrigin(t *testing.T) {
	img := image.NewGray(image.Rect(10, 20, 14, 24))
	for i := range img.Pix {
		img.Pix[i] = 255
	}

	dm, err := NewHeuristicEstimator().Estimate(img)
	require.NoError(t, err)
	assert.InDelta(t, 0.0, dm.At(2, 2), 1e-12)
}

func TestHeuristicEstimator_CornersAreNotClamped(t *testing.T) {
	img := grayImage(4, 4, make([]uint8, 16))

	dm, err := NewHeuristicEstimator().Estimate(img)
	require.NoError(t, err)
	assert.Greater(t, dm.At(0, 0), 1.0)
	assert.InDelta(t, 0.8+math.Sqrt(8)/2*0.2, dm.At(0, 0), 1e-12)
}

func TestHeuristicEstimator_ZeroArea(t *testing.T) {
	_, err := NewHeuristicEstimator().Estimate(image.NewGray(image.Rect(0, 0, 0, 5)))
	require.ErrorIs(t, err, ErrInvalidImage)

	_, err = NewHeuristicEstimator().Estimate(nil)
	require.ErrorIs(t, err, ErrInvalidImage)
}

func TestSamplePoints_Stride10On20x20(t *testing.T) {
	dm := NewDepthMap(20, 20)
	dm.Set(0, 0, 0.1)
	dm.Set(10, 0, 0.2)
	dm.Set(0, 10, 0.3)
	dm.Set(10, 10, 0.4)

	points, err := SamplePoints(dm, 10)
	require.NoError(t, err)
	require.Equal(t, PointCloud{
		{-1, -1, 0.1},
		{0, -1, 0.2},
		{-1, 0, 0.3},
		{0, 0, 0.4},
	}, points)
}

func TestSamplePoints_LengthIsCeilProduct(t *testing.T) {
	cases := []struct {
		w, h, stride, want int
	}{
		{25, 13, 10, 3 * 2},
		{1, 1, 10, 1},
		{10, 10, 1, 100},
		{11, 9, 5, 3 * 2},
	}
	for _, tc := range cases {
		points, err := SamplePoints(NewDepthMap(tc.w, tc.h), tc.stride)
		require.NoError(t, err)
		assert.Len(t, points, tc.want, "%dx%d stride %d", tc.w, tc.h, tc.stride)
	}
}

func TestSamplePoints_CoordinatesInRange(t *testing.T) {
	points, err := SamplePoints(filledMap(33, 17, 0.5), 3)
	require.NoError(t, err)
	for _, p := range points {
		assert.GreaterOrEqual(t, p.X(), -1.0)
		assert.LessOrEqual(t, p.X(), 1.0)
		assert.GreaterOrEqual(t, p.Y(), -1.0)
		assert.LessOrEqual(t, p.Y(), 1.0)
		assert.Equal(t, 0.5, p.Z())
	}
}

func TestSamplePoints_InvalidStride(t *testing.T) {
	for _, stride := range []int{0, -1} {
		_, err := SamplePoints(NewDepthMap(20, 20), stride)
		require.ErrorIs(t, err, ErrInvalidParameter)
	}
}

func TestScoreSafety(t *testing.T) {
	t.Run("all zeros", func(t *testing.T) {
		m, err := ScoreSafety(filledMap(8, 6, 0))
		require.NoError(t, err)
		assert.Equal(t, SafetyMetrics{OverallScore: 70, CriticalIssues: 5, MediumIssues: 8, Recommendations: 13}, m)
	})

	t.Run("all ones", func(t *testing.T) {
		m, err := ScoreSafety(filledMap(8, 6, 1))
		require.NoError(t, err)
		assert.Equal(t, SafetyMetrics{OverallScore: 90, CriticalIssues: 2, MediumIssues: 4, Recommendations: 6}, m)
	})

	t.Run("score clamps high", func(t *testing.T) {
		m, err := ScoreSafety(filledMap(4, 4, 2))
		require.NoError(t, err)
		assert.Equal(t, 95, m.OverallScore)
		assert.Equal(t, 0, m.CriticalIssues)
		assert.Equal(t, 0, m.MediumIssues)
		assert.Equal(t, 1, m.Recommendations)
	})

	t.Run("score clamps low", func(t *testing.T) {
		m, err := ScoreSafety(filledMap(4, 4, -2))
		require.NoError(t, err)
		assert.Equal(t, 50, m.OverallScore)
	})

	t.Run("population variance", func(t *testing.T) {
		dm := NewDepthMap(2, 1)
		dm.Set(0, 0, 0)
		dm.Set(1, 0, 1)
		// mean 0.5, population variance 0.25: 70 + 10 - 2.5 = 77.5
		m, err := ScoreSafety(dm)
		require.NoError(t, err)
		assert.Equal(t, 78, m.OverallScore)
		assert.Equal(t, 4, m.CriticalIssues) // round(3.5)
		assert.Equal(t, 6, m.MediumIssues)
		assert.Equal(t, 10, m.Recommendations)
	})

	t.Run("empty map", func(t *testing.T) {
		_, err := ScoreSafety(DepthMap{})
		require.ErrorIs(t, err, ErrInvalidImage)
	})
}

func TestRunPipeline_RejectsNonImageBeforeDecode(t *testing.T) {
	pngBytes := encodePNG(t, grayImage(4, 4, make([]uint8, 16)))

	for _, ct := range []string{"text/plain", "application/octet-stream", "", "video/mp4"} {
		_, err := RunPipeline(pngBytes, ct)
		require.ErrorIs(t, err, ErrUnsupportedMediaType)

		var pe *PipelineError
		require.ErrorAs(t, err, &pe)
		assert.Equal(t, StageValidate, pe.Stage)
	}
}

func TestRunPipeline_CorruptImage(t *testing.T) {
	pngBytes := encodePNG(t, grayImage(8, 8, make([]uint8, 64)))

	for _, raw := range [][]byte{nil, []byte("not an image"), pngBytes[:len(pngBytes)/2]} {
		_, err := RunPipeline(raw, "image/png")
		require.ErrorIs(t, err, ErrInvalidImage)

		var pe *PipelineError
		require.ErrorAs(t, err, &pe)
		assert.Equal(t, StageDecode, pe.Stage)
	}
}

// pngHeader returns a PNG signature and IHDR chunk declaring a w x h 8-bit
// grayscale image, with no pixel data behind it.
func pngHeader(w, h uint32) []byte {
	var ihdr bytes.Buffer
	ihdr.WriteString("IHDR")
	_ = binary.Write(&ihdr, binary.BigEndian, w)
	_ = binary.Write(&ihdr, binary.BigEndian, h)
	ihdr.Write([]byte{8, 0, 0, 0, 0})

	var out bytes.Buffer
	out.WriteString("\x89PNG\r\n\x1a\n")
	_ = binary.Write(&out, binary.BigEndian, uint32(ihdr.Len()-4))
	out.Write(ihdr.Bytes())
	_ = binary.Write(&out, binary.BigEndian, crc32.ChecksumIEEE(ihdr.Bytes()))
	return out.Bytes()
}

func TestRunPipeline_RejectsOversizedImageFromHeader(t *testing.T) {
	raw := pngHeader(20000, 20000)

	_, err := RunPipeline(raw, "image/png")
	require.ErrorIs(t, err, ErrInvalidImage)
	assert.Contains(t, err.Error(), "exceeds the limit")

	var pe *PipelineError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, StageDecode, pe.Stage)
}

func TestPipeline_MaxPixels(t *testing.T) {
	small := encodePNG(t, grayImage(10, 10, make([]uint8, 100)))
	large := encodePNG(t, grayImage(20, 20, make([]uint8, 400)))
	p := NewPipeline(WithMaxPixels(100))

	_, err := p.Run(small, "image/png")
	require.NoError(t, err)

	_, err = p.Run(large, "image/png")
	require.ErrorIs(t, err, ErrInvalidImage)

	_, err = NewPipeline(WithMaxPixels(0)).Run(large, "image/png")
	require.NoError(t, err)
}

func TestRunPipeline_InvalidStride(t *testing.T) {
	pngBytes := encodePNG(t, grayImage(4, 4, make([]uint8, 16)))

	_, err := NewPipeline(WithStride(0)).Run(pngBytes, "image/png")
	require.ErrorIs(t, err, ErrInvalidParameter)
}

func TestRunPipeline_Result(t *testing.T) {
	pix := make([]uint8, 30*20)
	for i := range pix {
		pix[i] = uint8(i % 256)
	}
	img := grayImage(30, 20, pix)

	res, err := RunPipeline(encodePNG(t, img), "IMAGE/PNG")
	require.NoError(t, err)

	assert.Equal(t, [2]int{20, 30}, res.OriginalSize)
	assert.Equal(t, 30, res.DepthMap.Width())
	assert.Equal(t, 20, res.DepthMap.Height())
	assert.Len(t, res.Points, 3*2)

	want, err := NewHeuristicEstimator().Estimate(img)
	require.NoError(t, err)
	assert.Equal(t, want.Values(), res.DepthMap.Values())

	metrics, err := ScoreSafety(want)
	require.NoError(t, err)
	assert.Equal(t, metrics, res.SafetyMetrics)
}

func TestRunPipeline_Idempotent(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 23, 17))
	for y := 0; y < 17; y++ {
		for x := 0; x < 23; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 11), G: uint8(y * 13), B: uint8(x * y), A: 255})
		}
	}
	raw := encodePNG(t, img)

	first, err := RunPipeline(raw, "image/png")
	require.NoError(t, err)
	second, err := RunPipeline(raw, "image/png")
	require.NoError(t, err)

	require.Equal(t, first, second)
}

func TestRunPipeline_ConcurrentCallsAreIndependent(t *testing.T) {
	raw := encodePNG(t, grayImage(16, 16, make([]uint8, 256)))
	want, err := RunPipeline(raw, "image/png")
	require.NoError(t, err)

	var wg sync.WaitGroup
	results := make([]*Result, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], _ = RunPipeline(raw, "image/png")
		}(i)
	}
	wg.Wait()

	for _, r := range results {
		assert.Equal(t, want, r)
	}
}

type stubEstimator struct {
	dm  DepthMap
	err error
}

func (s stubEstimator) Estimate(image.Image) (DepthMap, error) {
	return s.dm, s.err
}

func TestPipeline_SwapEstimator(t *testing.T) {
	img := grayImage(20, 20, make([]uint8, 400))

	res, err := NewPipeline(WithEstimator(stubEstimator{dm: filledMap(20, 20, 1)})).RunImage(img)
	require.NoError(t, err)
	assert.Equal(t, 90, res.SafetyMetrics.OverallScore)
	assert.Len(t, res.Points, 4)
}

func TestPipeline_EstimatorFailures(t *testing.T) {
	img := grayImage(20, 20, make([]uint8, 400))

	boom := errors.New("model unavailable")
	_, err := NewPipeline(WithEstimator(stubEstimator{err: boom})).RunImage(img)
	require.ErrorIs(t, err, boom)
	var pe *PipelineError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, StageEstimate, pe.Stage)

	_, err = NewPipeline(WithEstimator(stubEstimator{dm: filledMap(10, 20, 1)})).RunImage(img)
	require.ErrorIs(t, err, ErrInvalidImage)
}

func TestPayload_JSONShape(t *testing.T) {
	raw := encodePNG(t, grayImage(20, 10, make([]uint8, 200)))
	res, err := RunPipeline(raw, "image/png")
	require.NoError(t, err)

	data, err := json.Marshal(res.Payload())
	require.NoError(t, err)

	var decoded map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &decoded))
	require.Contains(t, decoded, "depth_map")
	require.Contains(t, decoded, "points_3d")
	require.Contains(t, decoded, "original_size")
	require.Contains(t, decoded, "safety_metrics")

	var points [][]float64
	require.NoError(t, json.Unmarshal(decoded["points_3d"], &points))
	require.Len(t, points, 2)
	assert.Len(t, points[0], 3)

	var size []int
	require.NoError(t, json.Unmarshal(decoded["original_size"], &size))
	assert.Equal(t, []int{10, 20}, size)

	var payload Payload
	require.NoError(t, json.Unmarshal(data, &payload))
	back, err := ResultFromPayload(payload)
	require.NoError(t, err)
	assert.Equal(t, res, back)
}

func TestResultFromPayload_Invalid(t *testing.T) {
	_, err := ResultFromPayload(Payload{})
	require.ErrorIs(t, err, ErrInvalidImage)

	_, err = ResultFromPayload(Payload{DepthMap: [][]float64{{1, 2}, {3}}, OriginalSize: [2]int{2, 2}})
	require.ErrorIs(t, err, ErrInvalidImage)

	_, err = ResultFromPayload(Payload{DepthMap: [][]float64{{1, 2}}, OriginalSize: [2]int{2, 1}})
	require.ErrorIs(t, err, ErrInvalidImage)
}

func TestPipelineError_Message(t *testing.T) {
	err := &PipelineError{Stage: StageDecode, Err: ErrInvalidImage}
	assert.Equal(t, "depth pipeline: decode: invalid image", err.Error())
	assert.Equal(t, "depth pipeline: score failed", (&PipelineError{Stage: StageScore}).Error())

	var nilErr *PipelineError
	assert.Equal(t, "<nil>", nilErr.Error())
	assert.Nil(t, nilErr.Unwrap())
}
