package reconstructionRepository

import (
	"Plan2Protect/internal/api/reconstruction"
	"Plan2Protect/internal/entity"
	contextPkg "Plan2Protect/pkg/context"
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"
)

type SafetyAssessmentDB struct {
	ID              sql.NullString `db:"id"`
	UserID          sql.NullString `db:"user_id"`
	ImageURL        sql.NullString `db:"image_url"`
	Status          sql.NullString `db:"status"`
	OverallScore    sql.NullInt64  `db:"overall_score"`
	CriticalIssues  sql.NullInt64  `db:"critical_issues"`
	MediumIssues    sql.NullInt64  `db:"medium_issues"`
	Recommendations sql.NullInt64  `db:"recommendations"`
	Width           sql.NullInt64  `db:"width"`
	Height          sql.NullInt64  `db:"height"`
	PointCount      sql.NullInt64  `db:"point_count"`
	CreatedAt       time.Time      `db:"created_at"`
}

func (r *assessmentRepository) CreateAssessment(c context.Context, assessment entity.SafetyAssessment) error {
	requestID := contextPkg.GetRequestID(c)

	createdAt := assessment.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	argsKV := map[string]interface{}{
		"id":              assessment.ID,
		"user_id":         nullString(assessment.UserID),
		"image_url":       nullString(assessment.ImageURL),
		"status":          string(assessment.Status),
		"overall_score":   assessment.OverallScore,
		"critical_issues": assessment.CriticalIssues,
		"medium_issues":   assessment.MediumIssues,
		"recommendations": assessment.Recommendations,
		"width":           assessment.Width,
		"height":          assessment.Height,
		"point_count":     assessment.PointCount,
		"created_at":      createdAt,
	}

	query, args, err := sqlx.Named(queryCreateAssessment, argsKV)
	if err != nil {
		r.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"error":      err.Error(),
		}).Error("Failed to build SQL query for CreateAssessment")
		return err
	}
	query = r.q.Rebind(query)

	if _, err := r.q.ExecContext(c, query, args...); err != nil {
		r.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"error":      err.Error(),
		}).Error("Database error when creating assessment")
		return err
	}

	return nil
}

func (r *assessmentRepository) GetAssessmentByID(c context.Context, id string) (entity.SafetyAssessment, error) {
	requestID := contextPkg.GetRequestID(c)
	var row SafetyAssessmentDB

	query, args, err := sqlx.Named(queryGetAssessmentByID, map[string]interface{}{"id": id})
	if err != nil {
		r.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"error":      err.Error(),
		}).Error("GetAssessmentByID named query preparation err")
		return entity.SafetyAssessment{}, err
	}
	query = r.q.Rebind(query)

	if err := r.q.QueryRowxContext(c, query, args...).StructScan(&row); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			r.log.WithFields(logrus.Fields{
				"request_id":    requestID,
				"assessment_id": id,
			}).Warn("GetAssessmentByID no rows found")
			return entity.SafetyAssessment{}, reconstruction.ErrAssessmentNotFound
		}
		r.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"error":      err.Error(),
		}).Error("GetAssessmentByID execution err")
		return entity.SafetyAssessment{}, err
	}

	return makeSafetyAssessment(row), nil
}

func (r *assessmentRepository) GetAssessmentsByUserID(c context.Context, userID string) ([]entity.SafetyAssessment, error) {
	requestID := contextPkg.GetRequestID(c)
	var rows []SafetyAssessmentDB

	query, args, err := sqlx.Named(queryGetAssessmentsByUserID, map[string]interface{}{"user_id": userID})
	if err != nil {
		r.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"error":      err.Error(),
		}).Error("GetAssessmentsByUserID named query preparation err")
		return nil, err
	}
	query = r.q.Rebind(query)

	if err := r.q.SelectContext(c, &rows, query, args...); err != nil {
		r.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"error":      err.Error(),
		}).Error("GetAssessmentsByUserID execution err")
		return nil, err
	}

	assessments := make([]entity.SafetyAssessment, 0, len(rows))
	for _, row := range rows {
		assessments = append(assessments, makeSafetyAssessment(row))
	}

	return assessments, nil
}

func makeSafetyAssessment(row SafetyAssessmentDB) entity.SafetyAssessment {
	return entity.SafetyAssessment{
		ID:              row.ID.String,
		UserID:          row.UserID.String,
		ImageURL:        row.ImageURL.String,
		Status:          entity.AssessmentStatus(row.Status.String),
		OverallScore:    int(row.OverallScore.Int64),
		CriticalIssues:  int(row.CriticalIssues.Int64),
		MediumIssues:    int(row.MediumIssues.Int64),
		Recommendations: int(row.Recommendations.Int64),
		Width:           int(row.Width.Int64),
		Height:          int(row.Height.Int64),
		PointCount:      int(row.PointCount.Int64),
		CreatedAt:       row.CreatedAt,
	}
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
