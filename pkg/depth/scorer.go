package depth

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"
)

const (
	minOverallScore = 50
	maxOverallScore = 95
)

// ScoreSafety derives the risk summary from the mean and population variance
// of the depth map.
func ScoreSafety(dm DepthMap) (SafetyMetrics, error) {
	if dm.Empty() {
		return SafetyMetrics{}, fmt.Errorf("%w: empty depth map", ErrInvalidImage)
	}

	avgDepth, depthVariance := stat.PopMeanVariance(dm.Values(), nil)

	overall := roundInt(70 + avgDepth*20 - depthVariance*10)
	overall = min(max(overall, minOverallScore), maxOverallScore)

	critical := max(0, roundInt(5-avgDepth*3))
	medium := max(0, roundInt(8-avgDepth*4))

	return SafetyMetrics{
		OverallScore:    overall,
		CriticalIssues:  critical,
		MediumIssues:    medium,
		Recommendations: max(1, critical+medium),
	}, nil
}

func roundInt(v float64) int {
	return int(math.Round(v))
}
