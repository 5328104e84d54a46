package cmd

// This file contains Swagger/OpenAPI documentation annotations for all API endpoints.
// The actual handler implementations are in other files.

// Health endpoint
// @Summary Health check
// @Description Returns the health status of the service and the number of runs in progress
// @Tags Health
// @Produce json
// @Success 200 {object} map[string]interface{} "status: healthy"
// @Router /health [get]
func swaggerHealthCheck() {}

// Start migration
// @Summary Start a migration
// @Description Starts a migration of every dataflow in the target workspace. The run continues in the background unless wait=true.
// @Tags Migrations
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param request body migrationRequest true "Migration inputs"
// @Param wait query bool false "Block until the run has finished"
// @Success 200 {object} summaryView "Finished run summary"
// @Success 202 {object} startResponse "Run started"
// @Failure 400 {object} errorResponse "Invalid request"
// @Failure 401 {object} errorResponse "Unauthorized"
// @Failure 409 {object} errorResponse "Another run targets the same workspace"
// @Failure 422 {object} errorResponse "A workspace or lakehouse could not be resolved"
// @Router /v1/api/migrations [post]
func swaggerStartMigration() {}

// List migrations
// @Summary List migration runs
// @Description Lists the runs of one day, newest first, including runs still in progress
// @Tags Migrations
// @Produce json
// @Security ApiKeyAuth
// @Param date query string false "Day (YYYY-MM-DD), default today"
// @Param status query string false "running, completed, partial or failed"
// @Param limit query int false "Maximum number of runs"
// @Success 200 {array} ledger.Run "Runs"
// @Failure 400 {object} errorResponse "Invalid query"
// @Router /v1/api/migrations [get]
func swaggerListMigrations() {}

// Migration statistics
// @Summary Migration statistics
// @Description Aggregates runs over a date range, default the last seven days
// @Tags Migrations
// @Produce json
// @Security ApiKeyAuth
// @Param from query string false "First day (YYYY-MM-DD)"
// @Param to query string false "Last day (YYYY-MM-DD)"
// @Success 200 {object} ledger.Statistics "Statistics"
// @Failure 400 {object} errorResponse "Invalid range"
// @Router /v1/api/migrations/stats [get]
func swaggerMigrationStats() {}

// Get migration
// @Summary Get a migration run
// @Description Returns one run with the outcome of every dataflow
// @Tags Migrations
// @Produce json
// @Security ApiKeyAuth
// @Param id path string true "Run id"
// @Success 200 {object} ledger.Run "Run"
// @Failure 404 {object} errorResponse "Run not found"
// @Router /v1/api/migrations/{id} [get]
func swaggerGetMigration() {}

// Audit log
// @Summary Recent audit entries
// @Description Returns the most recent audited API calls
// @Tags Audit
// @Produce json
// @Security ApiKeyAuth
// @Param limit query int false "Maximum number of entries"
// @Param date query string false "Single day (YYYY-MM-DD)"
// @Param from query string false "First day of a search (YYYY-MM-DD)"
// @Param to query string false "Last day of a search (YYYY-MM-DD)"
// @Param action query string false "migration.start or access.denied"
// @Param resource query string false "Exact resource"
// @Param success query bool false "Only successful or failed calls"
// @Success 200 {array} auth.AuditEntry "Entries"
// @Failure 400 {object} errorResponse "Invalid query"
// @Router /v1/api/audit [get]
func swaggerAudit() {}

// Runs page
// @Summary Runs page
// @Description Renders the runs of one day as HTML
// @Tags UI
// @Produce html
// @Param date query string false "Day (YYYY-MM-DD), default today"
// @Success 200 {string} string "HTML page"
// @Router /runs [get]
func swaggerRunsPage() {}

// Metrics
// @Summary Metrics
// @Description Prometheus metrics in the text exposition format
// @Tags Health
// @Produce plain
// @Success 200 {string} string "Metrics"
// @Router /metrics [get]
func swaggerMetrics() {}
