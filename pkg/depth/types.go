package depth

// DepthMap is a row-major grid of relative depth values, 0 near and 1 far.
// Rows share one backing buffer so Values can be handed to numeric routines
// without copying.
type DepthMap struct {
	width  int
	height int
	values []float64
	rows   [][]float64
}

func NewDepthMap(width, height int) DepthMap {
	values := make([]float64, width*height)
	rows := make([][]float64, height)
	for y := range rows {
		rows[y] = values[y*width : (y+1)*width : (y+1)*width]
	}

	return DepthMap{
		width:  width,
		height: height,
		values: values,
		rows:   rows,
	}
}

// NewDepthMapFromRows copies rows into a new DepthMap. All rows must have the
// same length.
func NewDepthMapFromRows(rows [][]float64) (DepthMap, error) {
	if len(rows) == 0 || len(rows[0]) == 0 {
		return DepthMap{}, ErrInvalidImage
	}

	dm := NewDepthMap(len(rows[0]), len(rows))
	for y, row := range rows {
		if len(row) != dm.width {
			return DepthMap{}, ErrInvalidImage
		}
		copy(dm.rows[y], row)
	}

	return dm, nil
}

func (d DepthMap) Width() int  { return d.width }
func (d DepthMap) Height() int { return d.height }

func (d DepthMap) At(x, y int) float64 {
	return d.values[y*d.width+x]
}

func (d DepthMap) Set(x, y int, v float64) {
	d.values[y*d.width+x] = v
}

// Values returns the flat backing buffer. Callers must not modify it.
func (d DepthMap) Values() []float64 {
	return d.values
}

// Rows returns per-row views over the backing buffer.
func (d DepthMap) Rows() [][]float64 {
	return d.rows
}

func (d DepthMap) Empty() bool {
	return d.width == 0 || d.height == 0
}

// Point3D is (x, y, z) with x and y normalised to the image plane and z the
// sampled depth. It serialises as a three element array.
type Point3D [3]float64

func (p Point3D) X() float64 { return p[0] }
func (p Point3D) Y() float64 { return p[1] }
func (p Point3D) Z() float64 { return p[2] }

type PointCloud []Point3D

type SafetyMetrics struct {
	OverallScore    int `json:"overall_score"`
	CriticalIssues  int `json:"critical_issues"`
	MediumIssues    int `json:"medium_issues"`
	Recommendations int `json:"recommendations"`
}

// Result is the output of a single pipeline run.
type Result struct {
	DepthMap      DepthMap
	Points        PointCloud
	OriginalSize  [2]int // height, width
	SafetyMetrics SafetyMetrics
}

// Payload is the wire form of a Result, with the field names existing
// clients expect.
type Payload struct {
	DepthMap      [][]float64   `json:"depth_map"`
	Points3D      PointCloud    `json:"points_3d"`
	OriginalSize  [2]int        `json:"original_size"`
	SafetyMetrics SafetyMetrics `json:"safety_metrics"`
}

func (r *Result) Payload() Payload {
	return Payload{
		DepthMap:      r.DepthMap.Rows(),
		Points3D:      r.Points,
		OriginalSize:  r.OriginalSize,
		SafetyMetrics: r.SafetyMetrics,
	}
}

// ResultFromPayload rebuilds a Result, e.g. after reading one back from a cache.
func ResultFromPayload(p Payload) (*Result, error) {
	dm, err := NewDepthMapFromRows(p.DepthMap)
	if err != nil {
		return nil, err
	}
	if p.OriginalSize != [2]int{dm.Height(), dm.Width()} {
		return nil, ErrInvalidImage
	}

	return &Result{
		DepthMap:      dm,
		Points:        p.Points3D,
		OriginalSize:  p.OriginalSize,
		SafetyMetrics: p.SafetyMetrics,
	}, nil
}
