package projection

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	httperr "github.com/aevon-lab/rules-engine/internal/core/errors"
)

// RegisterRoutes registers all projection API routes on the given router.
func (s *Service) RegisterRoutes(r gin.IRouter) {
	r.GET("/v1/actors", s.HandleListActors)
	r.GET("/v1/actors/:id", s.HandleQueryActor)
	r.GET("/v1/timeseries/:twin_id", s.HandleQuerySeries)
}

// HandleListActors handles GET /v1/actors
// Query parameters: rule, faulted
func (s *Service) HandleListActors(c *gin.Context) {
	var req ActorListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, httperr.ErrorResponse{
			ErrorType: httperr.HttpInvalidQueryError,
			Message:   "Invalid query parameters",
			Details:   err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, s.ListActors(req))
}

// HandleQueryActor handles GET /v1/actors/:id
// Query parameters: start, end, granularity
func (s *Service) HandleQueryActor(c *gin.Context) {
	var req ActorQueryRequest
	if err := c.ShouldBindUri(&req); err != nil {
		c.JSON(http.StatusBadRequest, httperr.ErrorResponse{
			ErrorType: httperr.HttpInvalidQueryError,
			Message:   "Invalid path parameters",
			Details:   err.Error(),
		})
		return
	}
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, httperr.ErrorResponse{
			ErrorType: httperr.HttpInvalidQueryError,
			Message:   "Invalid query parameters",
			Details:   err.Error(),
		})
		return
	}

	resp, err := s.QueryActor(c.Request.Context(), req)
	if err != nil {
		writeQueryError(c, "Failed to query actor", err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// HandleQuerySeries handles GET /v1/timeseries/:twin_id
// Query parameters: start, end
func (s *Service) HandleQuerySeries(c *gin.Context) {
	var req SeriesQueryRequest
	if err := c.ShouldBindUri(&req); err != nil {
		c.JSON(http.StatusBadRequest, httperr.ErrorResponse{
			ErrorType: httperr.HttpInvalidQueryError,
			Message:   "Invalid path parameters",
			Details:   err.Error(),
		})
		return
	}
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, httperr.ErrorResponse{
			ErrorType: httperr.HttpInvalidQueryError,
			Message:   "Invalid query parameters",
			Details:   err.Error(),
		})
		return
	}

	resp, err := s.QuerySeries(req)
	if err != nil {
		writeQueryError(c, "Failed to query time series", err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func writeQueryError(c *gin.Context, message string, err error) {
	switch {
	case errors.Is(err, ErrInvalidQuery):
		c.JSON(http.StatusBadRequest, httperr.ErrorResponse{
			ErrorType: httperr.HttpInvalidQueryError,
			Message:   message,
			Details:   err.Error(),
		})
	case errors.Is(err, httperr.ErrNotFound):
		c.JSON(http.StatusNotFound, httperr.ErrorResponse{
			ErrorType: httperr.HttpNotFoundError,
			Message:   message,
			Details:   err.Error(),
		})
	default:
		c.JSON(http.StatusInternalServerError, httperr.ErrorResponse{
			ErrorType: httperr.HttpInternalError,
			Message:   message,
			Details:   err.Error(),
		})
	}
}
