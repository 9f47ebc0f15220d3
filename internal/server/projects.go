package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/nhle/pmsync/internal/logger"
	"github.com/nhle/pmsync/internal/model"
	"github.com/nhle/pmsync/internal/store"
)

// ProjectDetail is a project with its PM-managed collections.
type ProjectDetail struct {
	model.Project
	Milestones []model.Milestone `json:"milestones"`
	Risks      []model.Risk      `json:"risks"`
}

// HealthReport is the response of GET /api/projects/:key/health.
type HealthReport struct {
	Key          string         `json:"key"`
	Name         string         `json:"name"`
	Health       model.Health   `json:"health"`
	Progress     model.Progress `json:"progress"`
	LastSyncedAt *time.Time     `json:"last_synced_at,omitempty"`
}

func (s *Server) handleListProjects(c echo.Context) error {
	includeArchived, _ := strconv.ParseBool(c.QueryParam("archived"))

	projects, err := s.store.ListProjects(c.Request().Context(), includeArchived)
	if err != nil {
		logger.Error("listing projects failed", logger.F("error", err))
		return errorJSON(c, http.StatusInternalServerError, "listing projects failed")
	}
	if projects == nil {
		projects = []model.Project{}
	}
	return c.JSON(http.StatusOK, projects)
}

// projectByKey loads the project named in the :key path parameter and
// writes the error response itself when it cannot.
func (s *Server) projectByKey(c echo.Context) (*model.Project, error) {
	project, err := s.store.GetProjectByKey(c.Request().Context(), c.Param("key"))
	if store.IsNotFound(err) {
		return nil, errorJSON(c, http.StatusNotFound, "project not found")
	}
	if err != nil {
		logger.Error("reading project failed", logger.F("key", c.Param("key")), logger.F("error", err))
		return nil, errorJSON(c, http.StatusInternalServerError, "reading project failed")
	}
	return project, nil
}

func (s *Server) handleGetProject(c echo.Context) error {
	project, err := s.projectByKey(c)
	if project == nil {
		return err
	}
	ctx := c.Request().Context()

	milestones, err := s.store.ListMilestones(ctx, project.ID)
	if err != nil {
		return errorJSON(c, http.StatusInternalServerError, "listing milestones failed")
	}
	risks, err := s.store.ListRisks(ctx, project.ID)
	if err != nil {
		return errorJSON(c, http.StatusInternalServerError, "listing risks failed")
	}
	if milestones == nil {
		milestones = []model.Milestone{}
	}
	if risks == nil {
		risks = []model.Risk{}
	}
	return c.JSON(http.StatusOK, ProjectDetail{Project: *project, Milestones: milestones, Risks: risks})
}

func (s *Server) handleProjectHealth(c echo.Context) error {
	project, err := s.projectByKey(c)
	if project == nil {
		return err
	}
	return c.JSON(http.StatusOK, HealthReport{
		Key:          project.RemoteKey,
		Name:         project.Name,
		Health:       project.Health,
		Progress:     project.Progress,
		LastSyncedAt: project.LastSyncedAt,
	})
}

func (s *Server) handleProjectTasks(c echo.Context) error {
	project, err := s.projectByKey(c)
	if project == nil {
		return err
	}
	tasks, err := s.store.ListTasksByProject(c.Request().Context(), project.ID)
	if err != nil {
		return errorJSON(c, http.StatusInternalServerError, "listing tasks failed")
	}
	if tasks == nil {
		tasks = []model.Task{}
	}
	return c.JSON(http.StatusOK, tasks)
}
