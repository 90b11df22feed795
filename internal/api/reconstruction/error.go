package reconstruction

import (
	"Plan2Protect/pkg/response"
	"net/http"
)

var (
	ErrMissingImage       = response.NewError(http.StatusBadRequest, "image file is required")
	ErrAssessmentNotFound = response.NewError(http.StatusNotFound, "assessment not found")
	ErrStorageDisabled    = response.NewError(http.StatusServiceUnavailable, "assessment storage is not configured")
	ErrSaveAssessment     = response.NewError(http.StatusInternalServerError, "failed to save assessment")
)
