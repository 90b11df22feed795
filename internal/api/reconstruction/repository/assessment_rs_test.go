package reconstructionRepository

import (
	"Plan2Protect/internal/entity"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMakeSafetyAssessment(t *testing.T) {
	created := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	got := makeSafetyAssessment(SafetyAssessmentDB{
		ID:              sql.NullString{String: "01J9ZQ4X7B6Y5V3T2S1R0QPNMK", Valid: true},
		Status:          sql.NullString{String: "completed", Valid: true},
		OverallScore:    sql.NullInt64{Int64: 78, Valid: true},
		CriticalIssues:  sql.NullInt64{Int64: 4, Valid: true},
		MediumIssues:    sql.NullInt64{Int64: 6, Valid: true},
		Recommendations: sql.NullInt64{Int64: 10, Valid: true},
		Width:           sql.NullInt64{Int64: 640, Valid: true},
		Height:          sql.NullInt64{Int64: 480, Valid: true},
		PointCount:      sql.NullInt64{Int64: 3072, Valid: true},
		CreatedAt:       created,
	})

	assert.Equal(t, entity.SafetyAssessment{
		ID:              "01J9ZQ4X7B6Y5V3T2S1R0QPNMK",
		Status:          entity.AssessmentStatusCompleted,
		OverallScore:    78,
		CriticalIssues:  4,
		MediumIssues:    6,
		Recommendations: 10,
		Width:           640,
		Height:          480,
		PointCount:      3072,
		CreatedAt:       created,
	}, got)
}

func TestNullString(t *testing.T) {
	assert.False(t, nullString("").Valid)
	assert.Equal(t, sql.NullString{String: "user-1", Valid: true}, nullString("user-1"))
}
