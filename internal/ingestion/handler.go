package ingestion

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	v1 "github.com/aevon-lab/rules-engine/internal/api/v1"
	httperr "github.com/aevon-lab/rules-engine/internal/core/errors"
	"github.com/aevon-lab/rules-engine/internal/core/storage"
	"github.com/aevon-lab/rules-engine/internal/execution"
)

const (
	msgReadBodyFailed     = "Failed to read request body"
	msgInvalidJSON        = "Invalid JSON body"
	msgPersistFailed      = "Failed to persist telemetry"
	msgDuplicateTelemetry = "Telemetry already exists"
	msgQueueFull          = "Realtime queue is full"
)

// ingestionError carries the structured HTTP error shape from a helper back to the orchestrator.
// Helpers return this instead of writing to gin.Context directly, keeping them decoupled from HTTP.
type ingestionError struct {
	statusCode int
	errorType  string
	message    string
	details    interface{}
}

func (e *ingestionError) Error() string {
	return e.message
}

// IngestHandler handles POST /v1/telemetry.
func (s *Service) IngestHandler(c *gin.Context) {
	batch, payloadSize, err := s.parseBatch(c)
	if err != nil {
		writeError(c, err)
		return
	}

	if err := validateBatch(batch); err != nil {
		writeError(c, err)
		return
	}

	points := batch.ToPoints()
	slog.Debug("[Ingestion] Received telemetry",
		"points", len(points),
		"payload_size", payloadSize)

	saved, err := s.persistPoints(c.Request.Context(), points)
	if err != nil {
		writeError(c, err)
		return
	}

	if err := s.enqueue(c.Request.Context(), points); err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"status": "accepted", "saved": saved})
}

// parseBatch reads the raw request body and binds it into a TelemetryBatch.
func (s *Service) parseBatch(c *gin.Context) (*v1.TelemetryBatch, int, *ingestionError) {
	maxBytes := int64(s.maxBodySizeBytes)
	limitedBody := io.LimitReader(c.Request.Body, maxBytes+1) // +1 to detect oversized requests

	bodyBytes, err := io.ReadAll(limitedBody)
	if err != nil {
		slog.Error("[Ingestion] Failed to read request body", "error", err)
		return nil, 0, &ingestionError{
			statusCode: http.StatusInternalServerError,
			errorType:  httperr.HttpInternalError,
			message:    msgReadBodyFailed,
		}
	}

	if int64(len(bodyBytes)) > maxBytes {
		slog.Warn("[Ingestion] Request body exceeds maximum size", "size", len(bodyBytes), "max", maxBytes)
		return nil, len(bodyBytes), &ingestionError{
			statusCode: http.StatusRequestEntityTooLarge,
			errorType:  httperr.HttpInvalidJsonError,
			message:    "Request body exceeds maximum allowed size",
			details: map[string]interface{}{
				"max_size_mb": maxBytes / (1024 * 1024),
			},
		}
	}

	c.Request.Body = io.NopCloser(bytes.NewReader(bodyBytes))

	var batch v1.TelemetryBatch
	if err := c.ShouldBindJSON(&batch); err != nil {
		slog.Warn("[Ingestion] Invalid JSON body received", "error", err, "payload_size", len(bodyBytes))
		return nil, len(bodyBytes), &ingestionError{
			statusCode: http.StatusBadRequest,
			errorType:  httperr.HttpInvalidJsonError,
			message:    msgInvalidJSON,
		}
	}
	return &batch, len(bodyBytes), nil
}

func validateBatch(batch *v1.TelemetryBatch) *ingestionError {
	if err := batch.Validate(); err != nil {
		slog.Warn("[Ingestion] Telemetry validation failed", "error", err)
		return &ingestionError{
			statusCode: http.StatusBadRequest,
			errorType:  httperr.HttpValidationError,
			message:    err.Error(),
		}
	}
	return nil
}

// persistPoints saves the batch so later batch runs can replay it.
func (s *Service) persistPoints(ctx context.Context, points []execution.Point) (int, *ingestionError) {
	saved, err := s.store.SavePoints(ctx, points)
	if err != nil {
		if errors.Is(err, storage.ErrDuplicate) {
			slog.Info("[Ingestion] Duplicate telemetry rejected", "points", len(points))
			return 0, &ingestionError{
				statusCode: http.StatusConflict,
				errorType:  httperr.HttpDuplicateError,
				message:    msgDuplicateTelemetry,
			}
		}

		slog.Error("[Ingestion] Failed to persist telemetry", "error", err, "points", len(points))
		return 0, &ingestionError{
			statusCode: http.StatusInternalServerError,
			errorType:  httperr.HttpInternalError,
			message:    msgPersistFailed,
		}
	}
	return saved, nil
}

// enqueue hands points to the realtime scheduler without blocking. Points
// that do not fit stay in the store and are picked up by the next replay.
func (s *Service) enqueue(ctx context.Context, points []execution.Point) *ingestionError {
	if s.feed == nil {
		return nil
	}
	for i, p := range points {
		select {
		case s.feed <- p:
		case <-ctx.Done():
			return &ingestionError{
				statusCode: http.StatusServiceUnavailable,
				errorType:  httperr.HttpServiceUnavailable,
				message:    ctx.Err().Error(),
			}
		default:
			slog.Warn("[Ingestion] Realtime queue full", "queued", i, "dropped", len(points)-i)
			return &ingestionError{
				statusCode: http.StatusServiceUnavailable,
				errorType:  httperr.HttpServiceUnavailable,
				message:    msgQueueFull,
				details: map[string]interface{}{
					"queued": i,
					"error":  httperr.ErrQueueFull.Error(),
				},
			}
		}
	}
	return nil
}

// writeError serializes an ingestionError as the JSON HTTP response.
func writeError(c *gin.Context, err *ingestionError) {
	c.JSON(err.statusCode, httperr.ErrorResponse{
		ErrorType: err.errorType,
		Message:   err.message,
		Details:   err.details,
	})
}
