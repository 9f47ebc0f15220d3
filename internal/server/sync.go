package server

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/nhle/pmsync/internal/issuekey"
	"github.com/nhle/pmsync/internal/logger"
	"github.com/nhle/pmsync/internal/model"
	"github.com/nhle/pmsync/internal/store"
	appsync "github.com/nhle/pmsync/internal/sync"
)

// maxRunsLimit caps the page size of the run history.
const maxRunsLimit = 500

// TriggerRequest is the body of POST /api/sync. Every field is optional.
type TriggerRequest struct {
	Type       model.SyncType `json:"type"`
	ProjectKey string         `json:"project_key"`

	// Wait makes the request block until the run finishes.
	Wait bool `json:"wait"`
}

// handleTriggerSync starts a manual run. It answers 202 once the run is
// accepted, or 200 with the summary when wait is set.
func (s *Server) handleTriggerSync(c echo.Context) error {
	var req TriggerRequest
	if c.Request().ContentLength > 0 {
		if err := c.Bind(&req); err != nil {
			return errorJSON(c, http.StatusBadRequest, "invalid request body")
		}
	}

	switch req.Type {
	case "", model.SyncFull, model.SyncIncremental:
	default:
		return errorJSON(c, http.StatusBadRequest, "type must be full or incremental")
	}
	if req.ProjectKey != "" && !issuekey.ValidProject(req.ProjectKey) {
		return errorJSON(c, http.StatusBadRequest, "invalid project key")
	}

	opts := appsync.RunOptions{
		Trigger:    model.TriggerManual,
		Type:       req.Type,
		ProjectKey: req.ProjectKey,
	}

	if !req.Wait {
		if err := s.sync.TriggerAsync(opts); err != nil {
			if errors.Is(err, appsync.ErrRunInProgress) {
				return errorJSON(c, http.StatusConflict, err.Error())
			}
			return errorJSON(c, http.StatusInternalServerError, err.Error())
		}
		return c.JSON(http.StatusAccepted, map[string]string{"status": "accepted"})
	}

	res, err := s.sync.Trigger(c.Request().Context(), opts)
	if errors.Is(err, appsync.ErrRunInProgress) {
		return errorJSON(c, http.StatusConflict, err.Error())
	}
	if err != nil && res.RunID == "" {
		return errorJSON(c, http.StatusInternalServerError, err.Error())
	}
	// A failed run still has an audit record; report it as the result.
	return c.JSON(http.StatusOK, res)
}

func (s *Server) handleListRuns(c echo.Context) error {
	filter := store.SyncRunFilter{Limit: 50}

	if v := c.QueryParam("since"); v != "" {
		since, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return errorJSON(c, http.StatusBadRequest, "since must be RFC 3339")
		}
		filter.Since = &since
	}
	if v := c.QueryParam("status"); v != "" {
		status := model.SyncStatus(v)
		filter.Status = &status
	}
	if v := c.QueryParam("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit <= 0 {
			return errorJSON(c, http.StatusBadRequest, "limit must be a positive integer")
		}
		filter.Limit = min(limit, maxRunsLimit)
	}

	runs, err := s.store.ListSyncRuns(c.Request().Context(), filter)
	if err != nil {
		logger.Error("listing sync runs failed", logger.F("error", err))
		return errorJSON(c, http.StatusInternalServerError, "listing sync runs failed")
	}
	if runs == nil {
		runs = []model.SyncRun{}
	}
	return c.JSON(http.StatusOK, runs)
}

func (s *Server) handleLatestRun(c echo.Context) error {
	run, err := s.store.LatestSyncRun(c.Request().Context())
	return s.respondRun(c, run, err)
}

func (s *Server) handleGetRun(c echo.Context) error {
	run, err := s.store.GetSyncRun(c.Request().Context(), c.Param("id"))
	return s.respondRun(c, run, err)
}

func (s *Server) respondRun(c echo.Context, run *model.SyncRun, err error) error {
	if store.IsNotFound(err) {
		return errorJSON(c, http.StatusNotFound, "sync run not found")
	}
	if err != nil {
		logger.Error("reading sync run failed", logger.F("error", err))
		return errorJSON(c, http.StatusInternalServerError, "reading sync run failed")
	}
	return c.JSON(http.StatusOK, run)
}
