package handlerUtil

import (
	"Plan2Protect/pkg/depth"
	"Plan2Protect/pkg/response"
	"Plan2Protect/pkg/utils"
	websocketPkg "Plan2Protect/pkg/websocket"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/gofiber/fiber/v2"
	jsoniter "github.com/json-iterator/go"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	os.Setenv("APP_ENV", "test")
	os.Exit(m.Run())
}

func TestStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"unsupported media", &depth.PipelineError{Stage: depth.StageValidate, Err: depth.ErrUnsupportedMediaType}, http.StatusUnsupportedMediaType},
		{"not an image upload", fmt.Errorf("%w: %q", utils.ErrNotImage, "text/plain"), http.StatusUnsupportedMediaType},
		{"invalid image", &depth.PipelineError{Stage: depth.StageDecode, Err: depth.ErrInvalidImage}, http.StatusBadRequest},
		{"invalid stride", depth.ErrInvalidParameter, http.StatusBadRequest},
		{"too large", utils.ErrFileTooLarge, http.StatusRequestEntityTooLarge},
		{"no file", utils.ErrNoFile, http.StatusBadRequest},
		{"depth service down", &depth.PipelineError{Stage: depth.StageEstimate, Err: websocketPkg.ErrDepthServiceUnavailable}, http.StatusServiceUnavailable},
		{"bad depth reply", websocketPkg.ErrMalformedDepth, http.StatusBadGateway},
		{"response error", response.NewError(http.StatusNotFound, "assessment not found"), http.StatusNotFound},
		{"wrapped response error", fmt.Errorf("%w: db down", response.NewError(http.StatusInternalServerError, "failed")), http.StatusInternalServerError},
		{"deadline", context.DeadlineExceeded, http.StatusRequestTimeout},
		{"fiber error", fiber.ErrUnprocessableEntity, http.StatusUnprocessableEntity},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Status(tt.err))
		})
	}
}

func handleApp(err error) *fiber.App {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	h := New(logger)

	app := fiber.New(fiber.Config{JSONEncoder: jsoniter.Marshal, JSONDecoder: jsoniter.Unmarshal})
	app.Get("/", func(c *fiber.Ctx) error {
		return h.Handle(c, "req-1", err, c.Path(), "test")
	})
	return app
}

func TestHandle_PipelineErrorBody(t *testing.T) {
	err := &depth.PipelineError{Stage: depth.StageDecode, Err: fmt.Errorf("%w: unexpected EOF", depth.ErrInvalidImage)}

	resp, testErr := handleApp(err).Test(httptest.NewRequest(http.MethodGet, "/", nil), -1)
	require.NoError(t, testErr)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var body ErrorResponse
	require.NoError(t, jsoniter.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "INVALID_IMAGE", body.Code)
	assert.Equal(t, depth.StageDecode, body.Stage)
	assert.Equal(t, "Image could not be decoded: invalid image: unexpected EOF", body.Error)
}

func TestHandle_ResponseErrorHidesCause(t *testing.T) {
	err := fmt.Errorf("%w: pq: password authentication failed", response.NewError(http.StatusInternalServerError, "failed to save assessment"))

	resp, testErr := handleApp(err).Test(httptest.NewRequest(http.MethodGet, "/", nil), -1)
	require.NoError(t, testErr)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)

	var body ErrorResponse
	require.NoError(t, jsoniter.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "failed to save assessment", body.Error)
}

func TestHandle_UnexpectedErrorHasTraceID(t *testing.T) {
	resp, testErr := handleApp(errors.New("boom")).Test(httptest.NewRequest(http.MethodGet, "/", nil), -1)
	require.NoError(t, testErr)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)

	var body map[string]interface{}
	require.NoError(t, jsoniter.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "req-1", body["trace_id"])
}

func TestHandle_Timeout(t *testing.T) {
	resp, testErr := handleApp(context.DeadlineExceeded).Test(httptest.NewRequest(http.MethodGet, "/", nil), -1)
	require.NoError(t, testErr)
	assert.Equal(t, http.StatusRequestTimeout, resp.StatusCode)
}
