package cmd

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"evalgo.org/dataflowmigrator/auth"
	"evalgo.org/dataflowmigrator/internal/domain"
	"evalgo.org/dataflowmigrator/internal/ledger"
	"evalgo.org/dataflowmigrator/internal/operations"
	"evalgo.org/dataflowmigrator/web/templates"
)

// migrationRequest carries the four inputs of a run
type migrationRequest struct {
	TargetWorkspace string `json:"target_workspace"`
	TargetLakehouse string `json:"target_lakehouse"`
	SourceLakehouse string `json:"source_lakehouse,omitempty"`
	SourceWorkspace string `json:"source_workspace"`
}

type startResponse struct {
	RunID  string            `json:"run_id"`
	Status string            `json:"status"`
	Marker string            `json:"marker"`
	Links  map[string]string `json:"links"`
}

type errorResponse struct {
	Error string `json:"error"`
	RunID string `json:"run_id,omitempty"`
}

// startMigrationHandler starts a run; with ?wait=true it answers with the
// finished summary instead of 202
func (s *server) startMigrationHandler(c echo.Context) error {
	var req migrationRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "Invalid request format"})
	}

	runCfg := s.app.cfg.RunConfig(req.TargetWorkspace, req.TargetLakehouse, req.SourceLakehouse, req.SourceWorkspace)

	exec, err := s.app.migrator.Start(s.runCtx, runCfg)
	s.recordStart(c, runCfg, exec, err)
	if err != nil {
		return c.JSON(errorStatus(err), errorResponse{Error: err.Error()})
	}
	s.registry.Track(exec)

	if wait, _ := strconv.ParseBool(c.QueryParam("wait")); wait {
		summary, err := exec.Wait()
		if err != nil {
			return c.JSON(errorStatus(err), errorResponse{Error: err.Error(), RunID: exec.RunID})
		}
		return c.JSON(http.StatusOK, newSummaryView(summary))
	}

	return c.JSON(http.StatusAccepted, startResponse{
		RunID:  exec.RunID,
		Status: ledger.RunStatusRunning,
		Marker: runCfg.Marker.Text,
		Links: map[string]string{
			"self": "/v1/api/migrations/" + exec.RunID,
		},
	})
}

// listMigrationsHandler returns the runs of a day with filtering
func (s *server) listMigrationsHandler(c echo.Context) error {
	limit := 50
	if limitStr := c.QueryParam("limit"); limitStr != "" {
		if parsed, err := strconv.Atoi(limitStr); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	runs, err := listRuns(s.app.ledger, c.QueryParam("date"), c.QueryParam("status"), limit)
	if err != nil {
		return c.JSON(errorStatus(err), errorResponse{Error: err.Error()})
	}
	return c.JSON(http.StatusOK, runs)
}

// getMigrationHandler returns one run
func (s *server) getMigrationHandler(c echo.Context) error {
	run, err := s.app.ledger.GetRun(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusNotFound, errorResponse{Error: err.Error()})
	}
	return c.JSON(http.StatusOK, run)
}

// migrationStatsHandler returns statistics over a date range
func (s *server) migrationStatsHandler(c echo.Context) error {
	start, end, err := dateRange(c.QueryParam("from"), c.QueryParam("to"), time.Now())
	if err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
	}
	stats, err := s.app.ledger.GetStatistics(start, end)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, errorResponse{Error: err.Error()})
	}
	return c.JSON(http.StatusOK, stats)
}

// auditHandler returns audit entries: one day with ?date, a filtered range
// with ?from/?to/?action/?success, otherwise the most recent entries
func (s *server) auditHandler(c echo.Context) error {
	limit := 100
	if parsed, err := strconv.Atoi(c.QueryParam("limit")); err == nil && parsed > 0 {
		limit = parsed
	}

	var (
		entries []auth.AuditEntry
		err     error
	)
	switch {
	case c.QueryParam("date") != "":
		entries, err = s.audit.GetEntriesForDate(c.QueryParam("date"))
	case c.QueryParam("from") != "" || c.QueryParam("action") != "" || c.QueryParam("success") != "":
		criteria, cErr := auditCriteria(c, time.Now())
		if cErr != nil {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: cErr.Error()})
		}
		entries, err = s.audit.SearchEntries(criteria)
	default:
		entries, err = s.audit.GetRecentEntries(limit)
	}
	if err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
	}
	if len(entries) > limit {
		entries = entries[len(entries)-limit:]
	}
	return c.JSON(http.StatusOK, entries)
}

func auditCriteria(c echo.Context, now time.Time) (auth.AuditSearchCriteria, error) {
	criteria := auth.AuditSearchCriteria{
		StartDate: c.QueryParam("from"),
		EndDate:   c.QueryParam("to"),
		Action:    c.QueryParam("action"),
		Resource:  c.QueryParam("resource"),
	}
	if criteria.EndDate == "" {
		criteria.EndDate = now.Format(dateLayout)
	}
	if criteria.StartDate == "" {
		criteria.StartDate = now.AddDate(0, 0, -7).Format(dateLayout)
	}
	if raw := c.QueryParam("success"); raw != "" {
		success, err := strconv.ParseBool(raw)
		if err != nil {
			return criteria, domain.NewValidationError("success", fmt.Sprintf("%q is not a boolean", raw))
		}
		criteria.Success = &success
	}
	return criteria, nil
}

// runsPageHandler renders the HTML overview of a day
func (s *server) runsPageHandler(c echo.Context) error {
	date := c.QueryParam("date")
	if date == "" {
		date = time.Now().Format(dateLayout)
	}
	runs, err := listRuns(s.app.ledger, date, "", 0)
	if err != nil {
		return c.String(errorStatus(err), err.Error())
	}

	day, _ := time.Parse(dateLayout, date)
	stats, err := s.app.ledger.GetStatistics(day, day)
	if err != nil {
		stats = nil
	}

	c.Response().Header().Set(echo.HeaderContentType, echo.MIMETextHTMLCharsetUTF8)
	c.Response().WriteHeader(http.StatusOK)
	return templates.RunsPage(templates.RunsPageData{Date: date, Runs: runs, Stats: stats}).
		Render(c.Request().Context(), c.Response().Writer)
}

// healthHandler reports liveness and the number of runs in progress
func (s *server) healthHandler(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"status":      "healthy",
		"active_runs": len(s.registry.Active()),
	})
}

// recordStart writes the audit entry of a start request
func (s *server) recordStart(c echo.Context, runCfg domain.RunConfig, exec *operations.Execution, startErr error) {
	if s.audit == nil {
		return
	}
	entry := auth.AuditEntry{
		Action:    auth.ActionMigrationStart,
		Resource:  runCfg.TargetWorkspace,
		KeyID:     GetKeyID(c),
		Success:   startErr == nil,
		IPAddress: c.RealIP(),
		UserAgent: c.Request().UserAgent(),
		Details: map[string]interface{}{
			"source_workspace": runCfg.SourceWorkspace,
			"source_lakehouse": runCfg.SourceLakehouse,
			"target_lakehouse": runCfg.TargetLakehouse,
		},
	}
	if exec != nil {
		entry.Details["run_id"] = exec.RunID
	}
	if startErr != nil {
		entry.ErrorMsg = startErr.Error()
	}
	if err := s.audit.LogEntry(entry); err != nil {
		logrus.WithError(err).Warn("Failed to write audit entry")
	}
}

// errorStatus maps domain errors onto HTTP status codes
func errorStatus(err error) int {
	var (
		validationErr *domain.ValidationError
		conflictErr   *domain.ConflictError
	)
	switch {
	case errors.As(err, &validationErr):
		return http.StatusBadRequest
	case errors.As(err, &conflictErr):
		return http.StatusConflict
	case errors.Is(err, domain.ErrResolution):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
