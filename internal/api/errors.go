package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/tox-signal-mcp-server/internal/domain"
	"github.com/tox-signal-mcp-server/internal/middleware"
	"github.com/tox-signal-mcp-server/internal/service"
	"github.com/tox-signal-mcp-server/pkg/studydata"
)

// classify maps an error onto an HTTP status and a ServiceError code.
func classify(err error) (int, string) {
	var (
		vErr      *domain.ValidationError
		statusErr *studydata.StatusError
	)
	switch {
	case errors.As(err, &vErr):
		return http.StatusBadRequest, domain.CodeValidation
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, domain.CodeNotFound
	case errors.Is(err, service.ErrOverridesDisabled), errors.Is(err, service.ErrNoDataSource):
		return http.StatusNotImplemented, domain.CodeDisabled
	case errors.Is(err, studydata.ErrUnavailable), errors.Is(err, studydata.ErrMalformedBundle):
		return http.StatusBadGateway, domain.CodeUpstreamError
	case errors.As(err, &statusErr):
		if statusErr.StatusCode == http.StatusTooManyRequests {
			return http.StatusTooManyRequests, domain.CodeRateLimit
		}
		return http.StatusBadGateway, domain.CodeUpstreamError
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, domain.CodeTimeout
	default:
		return http.StatusInternalServerError, domain.CodeAnalysisFailed
	}
}

func (s *Server) writeError(c *gin.Context, err error) {
	status, code := classify(err)
	requestID := c.GetString(middleware.CorrelationIDKey)

	message := err.Error()
	if status == http.StatusInternalServerError {
		message = "analysis failed"
	}

	s.logger.WithFields(logrus.Fields{
		"correlation_id": requestID,
		"status":         status,
		"code":           code,
		"error":          err,
	}).Warn("Request returned an error")

	c.AbortWithStatusJSON(status, domain.NewServiceError(code, message, "", requestID))
}
