package entity

import "time"

type AssessmentStatus string

const (
	AssessmentStatusCompleted AssessmentStatus = "completed"
)

// SafetyAssessment is the persisted summary of one reconstruction run.
type SafetyAssessment struct {
	ID              string           `json:"id"`
	UserID          string           `json:"user_id,omitempty"`
	ImageURL        string           `json:"image_url,omitempty"`
	Status          AssessmentStatus `json:"status"`
	OverallScore    int              `json:"overall_score"`
	CriticalIssues  int              `json:"critical_issues"`
	MediumIssues    int              `json:"medium_issues"`
	Recommendations int              `json:"recommendations"`
	Width           int              `json:"width"`
	Height          int              `json:"height"`
	PointCount      int              `json:"point_count"`
	CreatedAt       time.Time        `json:"created_at"`
}
