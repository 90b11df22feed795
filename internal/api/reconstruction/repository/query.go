package reconstructionRepository

const (
	queryCreateAssessment = `
		INSERT INTO safety_assessments (
			id,
			user_id,
			image_url,
			status,
			overall_score,
			critical_issues,
			medium_issues,
			recommendations,
			width,
			height,
			point_count,
			created_at
		) VALUES (
			:id,
			:user_id,
			:image_url,
			:status,
			:overall_score,
			:critical_issues,
			:medium_issues,
			:recommendations,
			:width,
			:height,
			:point_count,
			:created_at
		)
	`

	queryGetAssessmentByID = `
		SELECT
			id,
			user_id,
			image_url,
			status,
			overall_score,
			critical_issues,
			medium_issues,
			recommendations,
			width,
			height,
			point_count,
			created_at
		FROM safety_assessments
		WHERE id = :id
	`

	queryGetAssessmentsByUserID = `
		SELECT
			id,
			user_id,
			image_url,
			status,
			overall_score,
			critical_issues,
			medium_issues,
			recommendations,
			width,
			height,
			point_count,
			created_at
		FROM safety_assessments
		WHERE user_id = :user_id
		ORDER BY created_at DESC
	`
)
