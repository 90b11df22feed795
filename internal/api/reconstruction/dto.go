package reconstruction

import (
	"Plan2Protect/internal/entity"
	"Plan2Protect/pkg/depth"
)

// GenerateRequest holds the non-file form fields of generate-3d.
type GenerateRequest struct {
	Stride *int   `form:"stride" validate:"omitempty,min=1,max=1000"`
	UserID string `form:"user_id" validate:"omitempty,max=64"`
}

type GenerateInput struct {
	Image       []byte
	ContentType string
	FileName    string
	Stride      int
	UserID      string
}

type GenerateResult struct {
	Result       *depth.Result
	AssessmentID string
	Cached       bool
}

type GenerateResponse struct {
	Success      bool   `json:"success"`
	Message      string `json:"message"`
	AssessmentID string `json:"assessment_id,omitempty"`
	Cached       bool   `json:"cached,omitempty"`
	depth.Payload
}

// FrameResponse is the websocket reply; the full depth grid is left out.
type FrameResponse struct {
	Points3D      depth.PointCloud    `json:"points_3d"`
	OriginalSize  [2]int              `json:"original_size"`
	SafetyMetrics depth.SafetyMetrics `json:"safety_metrics"`
}

type AssessmentResponse struct {
	Data entity.SafetyAssessment `json:"data"`
}

type AssessmentListResponse struct {
	Data  []entity.SafetyAssessment `json:"data"`
	Total int                       `json:"total"`
}

func NewGenerateResponse(res *GenerateResult) GenerateResponse {
	return GenerateResponse{
		Success:      true,
		Message:      "3D model generated successfully",
		AssessmentID: res.AssessmentID,
		Cached:       res.Cached,
		Payload:      res.Result.Payload(),
	}
}

func NewFrameResponse(res *depth.Result) FrameResponse {
	return FrameResponse{
		Points3D:      res.Points,
		OriginalSize:  res.OriginalSize,
		SafetyMetrics: res.SafetyMetrics,
	}
}
