package ingestion

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	httperr "github.com/aevon-lab/rules-engine/internal/core/errors"
	"github.com/aevon-lab/rules-engine/internal/core/storage"
	"github.com/aevon-lab/rules-engine/internal/execution"
	storagemocks "github.com/aevon-lab/rules-engine/internal/mocks/storage"
)

const twoPoints = `{"points":[
	{"twin_id":"ahu1-sat","timestamp":"2026-03-01T12:00:00Z","value":21.5},
	{"twin_id":"ahu1-sat","timestamp":"2026-03-01T12:05:00Z","value":22}
]}`

func post(t *testing.T, svc *Service, body string) *httptest.ResponseRecorder {
	t.Helper()
	r := gin.New()
	svc.RegisterRoutes(r)

	req := httptest.NewRequest(http.MethodPost, "/v1/telemetry", bytes.NewReader([]byte(body)))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	return resp
}

func decodeError(t *testing.T, resp *httptest.ResponseRecorder) httperr.ErrorResponse {
	t.Helper()
	var errResp httperr.ErrorResponse
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &errResp))
	return errResp
}

func TestIngestHandler_SuccessFeedsRealtime(t *testing.T) {
	gin.SetMode(gin.TestMode)

	mockStore := storagemocks.NewTelemetryStore(t)
	mockStore.EXPECT().
		SavePoints(mock.Anything, mock.MatchedBy(func(points []execution.Point) bool {
			return len(points) == 2 && points[0].TwinID == "ahu1-sat"
		})).
		Return(2, nil).
		Once()

	feed := make(chan execution.Point, 4)
	resp := post(t, NewService(mockStore, feed, 1), twoPoints)

	require.Equal(t, http.StatusAccepted, resp.Code)
	var result map[string]interface{}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &result))
	require.Equal(t, "accepted", result["status"])
	require.Equal(t, 2.0, result["saved"])

	require.Len(t, feed, 2)
	first := <-feed
	require.Equal(t, 21.5, first.Value)
}

func TestIngestHandler_StoreOnlyWithoutFeed(t *testing.T) {
	gin.SetMode(gin.TestMode)

	mockStore := storagemocks.NewTelemetryStore(t)
	mockStore.EXPECT().SavePoints(mock.Anything, mock.Anything).Return(2, nil).Once()

	resp := post(t, NewService(mockStore, nil, 1), twoPoints)
	require.Equal(t, http.StatusAccepted, resp.Code)
}

func TestIngestHandler_InvalidJSON(t *testing.T) {
	gin.SetMode(gin.TestMode)

	mockStore := storagemocks.NewTelemetryStore(t)
	resp := post(t, NewService(mockStore, nil, 1), `{"points": [`)

	require.Equal(t, http.StatusBadRequest, resp.Code)
	require.Equal(t, httperr.HttpInvalidJsonError, decodeError(t, resp).ErrorType)
}

func TestIngestHandler_ValidationFailure(t *testing.T) {
	gin.SetMode(gin.TestMode)

	mockStore := storagemocks.NewTelemetryStore(t)
	resp := post(t, NewService(mockStore, nil, 1), `{"points":[{"timestamp":"2026-03-01T12:00:00Z","value":1}]}`)

	require.Equal(t, http.StatusBadRequest, resp.Code)
	errResp := decodeError(t, resp)
	require.Equal(t, httperr.HttpValidationError, errResp.ErrorType)
	require.Contains(t, errResp.Message, "twin_id")
}

func TestIngestHandler_Duplicate(t *testing.T) {
	gin.SetMode(gin.TestMode)

	mockStore := storagemocks.NewTelemetryStore(t)
	mockStore.EXPECT().SavePoints(mock.Anything, mock.Anything).Return(0, storage.ErrDuplicate).Once()

	feed := make(chan execution.Point, 4)
	resp := post(t, NewService(mockStore, feed, 1), twoPoints)

	require.Equal(t, http.StatusConflict, resp.Code)
	require.Equal(t, httperr.HttpDuplicateError, decodeError(t, resp).ErrorType)
	require.Empty(t, feed)
}

func TestIngestHandler_StorageError(t *testing.T) {
	gin.SetMode(gin.TestMode)

	mockStore := storagemocks.NewTelemetryStore(t)
	mockStore.EXPECT().SavePoints(mock.Anything, mock.Anything).Return(0, errors.New("db down")).Once()

	resp := post(t, NewService(mockStore, nil, 1), twoPoints)

	require.Equal(t, http.StatusInternalServerError, resp.Code)
	require.Equal(t, msgPersistFailed, decodeError(t, resp).Message)
}

func TestIngestHandler_QueueFull(t *testing.T) {
	gin.SetMode(gin.TestMode)

	mockStore := storagemocks.NewTelemetryStore(t)
	mockStore.EXPECT().SavePoints(mock.Anything, mock.Anything).Return(2, nil).Once()

	feed := make(chan execution.Point, 1)
	resp := post(t, NewService(mockStore, feed, 1), twoPoints)

	require.Equal(t, http.StatusServiceUnavailable, resp.Code)
	errResp := decodeError(t, resp)
	require.Equal(t, httperr.HttpServiceUnavailable, errResp.ErrorType)
	require.Equal(t, msgQueueFull, errResp.Message)
	require.Len(t, feed, 1)
}

func TestIngestHandler_BodySizeLimit(t *testing.T) {
	gin.SetMode(gin.TestMode)

	mockStore := storagemocks.NewTelemetryStore(t)
	svc := NewService(mockStore, nil, 0)
	svc.maxBodySizeBytes = 10

	resp := post(t, svc, twoPoints)

	require.Equal(t, http.StatusRequestEntityTooLarge, resp.Code)
	require.Contains(t, decodeError(t, resp).Message, "maximum allowed size")
}
