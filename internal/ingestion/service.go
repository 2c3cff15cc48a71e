package ingestion

import (
	"github.com/gin-gonic/gin"

	"github.com/aevon-lab/rules-engine/internal/core/storage"
	"github.com/aevon-lab/rules-engine/internal/execution"
)

type Service struct {
	store            storage.TelemetryStore
	feed             chan<- execution.Point
	maxBodySizeBytes int
}

// NewService creates the telemetry ingestion service. Stored points are
// also pushed to feed when it is not nil, which drives realtime evaluation.
func NewService(store storage.TelemetryStore, feed chan<- execution.Point, maxBodySizeMB int) *Service {
	if store == nil {
		panic("ingestion: store must not be nil")
	}
	if maxBodySizeMB <= 0 {
		maxBodySizeMB = 1 // default to 1MB
	}
	return &Service{
		store:            store,
		feed:             feed,
		maxBodySizeBytes: maxBodySizeMB * 1024 * 1024,
	}
}

// RegisterRoutes registers the ingestion service routes.
func (s *Service) RegisterRoutes(r gin.IRouter) {
	r.POST("/v1/telemetry", s.IngestHandler)
}
