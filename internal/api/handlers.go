package api

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	"github.com/tox-signal-mcp-server/internal/domain"
	"github.com/tox-signal-mcp-server/internal/labrules"
	"github.com/tox-signal-mcp-server/internal/syndrome"
)

// MagnitudeFloorRequest is the body of POST /api/v1/magnitude-floor.
type MagnitudeFloorRequest struct {
	Endpoint domain.EndpointSummary        `json:"endpoint"`
	Contexts []domain.NormalizationContext `json:"contexts"`
}

const readinessTimeout = 5 * time.Second

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"version":   Version,
	})
}

// handleReady runs every health check concurrently with a shared deadline.
func (s *Server) handleReady(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), readinessTimeout)
	defer cancel()

	var (
		mu      sync.Mutex
		healthy = true
		results = make(map[string]string, len(s.checks))
	)
	g, gctx := errgroup.WithContext(ctx)
	for _, check := range s.checks {
		check := check
		g.Go(func() error {
			err := check.Check(gctx)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				results[check.Name] = err.Error()
				healthy = false
				return nil
			}
			results[check.Name] = "ok"
			return nil
		})
	}
	_ = g.Wait()

	status, state := http.StatusOK, "ready"
	if !healthy {
		status, state = http.StatusServiceUnavailable, "degraded"
	}
	c.JSON(status, gin.H{
		"status": state,
		"checks": results,
	})
}

func (s *Server) handleAnalyzeStudy(c *gin.Context) {
	analysis, err := s.studies.AnalyzeStudy(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, analysis)
}

func (s *Server) handleAnalyzeInput(c *gin.Context) {
	var input domain.StudyInput
	if err := c.ShouldBindJSON(&input); err != nil {
		s.writeError(c, domain.NewValidationError("body", err.Error(), nil))
		return
	}

	analysis, err := s.studies.AnalyzeInput(c.Request.Context(), &input)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, analysis)
}

func (s *Server) handleMagnitudeFloor(c *gin.Context) {
	var req MagnitudeFloorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.writeError(c, domain.NewValidationError("body", err.Error(), nil))
		return
	}
	if req.Endpoint.EndpointLabel == "" {
		s.writeError(c, domain.NewValidationError("endpoint.endpoint_label", "endpoint label is required", ""))
		return
	}

	check := s.studies.Analyzer().CheckMagnitudeFloor(req.Endpoint, req.Contexts)
	c.JSON(http.StatusOK, check)
}

func (s *Server) handleLabRules(c *gin.Context) {
	rules := labrules.Catalog()
	if category := c.Query("category"); category != "" {
		filtered := rules[:0]
		for _, r := range rules {
			if string(r.Category) == category {
				filtered = append(filtered, r)
			}
		}
		rules = filtered
	}
	c.JSON(http.StatusOK, gin.H{
		"count": len(rules),
		"rules": rules,
	})
}

func (s *Server) handleSyndromes(c *gin.Context) {
	defs := syndrome.Catalog()
	c.JSON(http.StatusOK, gin.H{
		"count":     len(defs),
		"syndromes": defs,
	})
}

func (s *Server) handleCacheStats(c *gin.Context) {
	c.JSON(http.StatusOK, s.studies.CacheStats())
}

func (s *Server) handleListOverrides(c *gin.Context) {
	list, err := s.studies.ListOverrides(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	if list == nil {
		list = []domain.NormalizationOverride{}
	}
	c.JSON(http.StatusOK, gin.H{
		"study_id":  c.Param("id"),
		"overrides": list,
	})
}

func (s *Server) handleSetOverride(c *gin.Context) {
	var override domain.NormalizationOverride
	if err := c.ShouldBindJSON(&override); err != nil {
		s.writeError(c, domain.NewValidationError("body", err.Error(), nil))
		return
	}

	if err := s.studies.SetOverride(c.Request.Context(), c.Param("id"), override); err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"study_id": c.Param("id"),
		"override": override,
	})
}

func (s *Server) handleDeleteOverride(c *gin.Context) {
	dose := 0
	if raw := c.Query("dose_level"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			s.writeError(c, domain.NewValidationError("dose_level", "must be an integer", raw))
			return
		}
		dose = parsed
	}

	if err := s.studies.DeleteOverride(c.Request.Context(), c.Param("id"), c.Param("organ"), dose); err != nil {
		s.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleListRuns(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			s.writeError(c, domain.NewValidationError("limit", "must be a non-negative integer", raw))
			return
		}
		limit = parsed
	}

	runs, err := s.studies.ListRuns(c.Request.Context(), c.Param("id"), limit)
	if err != nil {
		s.writeError(c, err)
		return
	}
	if runs == nil {
		runs = []*domain.AnalysisRun{}
	}
	c.JSON(http.StatusOK, gin.H{
		"study_id": c.Param("id"),
		"runs":     runs,
	})
}

func (s *Server) handleGetRun(c *gin.Context) {
	run, err := s.studies.GetRun(c.Request.Context(), c.Param("run_id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, run)
}
