// Package docs registers the OpenAPI description of the migration API.
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {},
        "license": {
            "name": "Apache 2.0",
            "url": "http://www.apache.org/licenses/LICENSE-2.0.html"
        },
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/health": {
            "get": {
                "description": "Returns the health status of the service",
                "produces": ["application/json"],
                "tags": ["Health"],
                "summary": "Health check",
                "responses": {
                    "200": {
                        "description": "status: healthy",
                        "schema": {"type": "object", "additionalProperties": {"type": "string"}}
                    }
                }
            }
        },
        "/v1/api/migrations": {
            "get": {
                "security": [{"ApiKeyAuth": []}],
                "description": "Lists the runs of one day, newest first, including runs still in progress",
                "produces": ["application/json"],
                "tags": ["Migrations"],
                "summary": "List migration runs",
                "parameters": [
                    {"type": "string", "description": "Day (YYYY-MM-DD), default today", "name": "date", "in": "query"},
                    {"type": "string", "description": "running, completed, partial or failed", "name": "status", "in": "query"},
                    {"type": "integer", "description": "Maximum number of runs", "name": "limit", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "Runs", "schema": {"type": "array", "items": {"$ref": "#/definitions/ledger.Run"}}},
                    "400": {"description": "Invalid query", "schema": {"$ref": "#/definitions/cmd.errorResponse"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/cmd.errorResponse"}}
                }
            },
            "post": {
                "security": [{"ApiKeyAuth": []}],
                "description": "Starts a migration of every dataflow in the target workspace. The run continues in the background unless wait=true.",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Migrations"],
                "summary": "Start a migration",
                "parameters": [
                    {"description": "Migration inputs", "name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/cmd.migrationRequest"}},
                    {"type": "boolean", "description": "Block until the run has finished", "name": "wait", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "Finished run summary", "schema": {"$ref": "#/definitions/cmd.summaryView"}},
                    "202": {"description": "Run started", "schema": {"$ref": "#/definitions/cmd.startResponse"}},
                    "400": {"description": "Invalid request", "schema": {"$ref": "#/definitions/cmd.errorResponse"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/cmd.errorResponse"}},
                    "409": {"description": "Another run targets the same workspace", "schema": {"$ref": "#/definitions/cmd.errorResponse"}},
                    "422": {"description": "A workspace or lakehouse could not be resolved", "schema": {"$ref": "#/definitions/cmd.errorResponse"}}
                }
            }
        },
        "/v1/api/migrations/stats": {
            "get": {
                "security": [{"ApiKeyAuth": []}],
                "description": "Aggregates runs over a date range, default the last seven days",
                "produces": ["application/json"],
                "tags": ["Migrations"],
                "summary": "Migration statistics",
                "parameters": [
                    {"type": "string", "description": "First day (YYYY-MM-DD)", "name": "from", "in": "query"},
                    {"type": "string", "description": "Last day (YYYY-MM-DD)", "name": "to", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "Statistics", "schema": {"$ref": "#/definitions/ledger.Statistics"}},
                    "400": {"description": "Invalid range", "schema": {"$ref": "#/definitions/cmd.errorResponse"}}
                }
            }
        },
        "/v1/api/migrations/{id}": {
            "get": {
                "security": [{"ApiKeyAuth": []}],
                "description": "Returns one run with the outcome of every dataflow",
                "produces": ["application/json"],
                "tags": ["Migrations"],
                "summary": "Get a migration run",
                "parameters": [
                    {"type": "string", "description": "Run id", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "Run", "schema": {"$ref": "#/definitions/ledger.Run"}},
                    "404": {"description": "Run not found", "schema": {"$ref": "#/definitions/cmd.errorResponse"}}
                }
            }
        },
        "/v1/api/audit": {
            "get": {
                "security": [{"ApiKeyAuth": []}],
                "description": "Returns the most recent audited API calls",
                "produces": ["application/json"],
                "tags": ["Audit"],
                "summary": "Recent audit entries",
                "parameters": [
                    {"type": "integer", "description": "Maximum number of entries", "name": "limit", "in": "query"},
                    {"type": "string", "description": "Single day (YYYY-MM-DD)", "name": "date", "in": "query"},
                    {"type": "string", "description": "First day of a search (YYYY-MM-DD)", "name": "from", "in": "query"},
                    {"type": "string", "description": "Last day of a search (YYYY-MM-DD)", "name": "to", "in": "query"},
                    {"type": "string", "description": "migration.start or access.denied", "name": "action", "in": "query"},
                    {"type": "string", "description": "Exact resource", "name": "resource", "in": "query"},
                    {"type": "boolean", "description": "Only successful or failed calls", "name": "success", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "Entries", "schema": {"type": "array", "items": {"$ref": "#/definitions/auth.AuditEntry"}}},
                    "400": {"description": "Invalid query", "schema": {"$ref": "#/definitions/cmd.errorResponse"}}
                }
            }
        },
        "/runs": {
            "get": {
                "description": "Renders the runs of one day as HTML",
                "produces": ["text/html"],
                "tags": ["UI"],
                "summary": "Runs page",
                "parameters": [
                    {"type": "string", "description": "Day (YYYY-MM-DD), default today", "name": "date", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "HTML page", "schema": {"type": "string"}}
                }
            }
        },
        "/metrics": {
            "get": {
                "description": "Prometheus metrics",
                "produces": ["text/plain"],
                "tags": ["Health"],
                "summary": "Metrics",
                "responses": {
                    "200": {"description": "Exposition format", "schema": {"type": "string"}}
                }
            }
        }
    },
    "definitions": {
        "cmd.migrationRequest": {
            "type": "object",
            "required": ["target_workspace", "target_lakehouse", "source_workspace"],
            "properties": {
                "target_workspace": {"type": "string"},
                "target_lakehouse": {"type": "string"},
                "source_lakehouse": {"type": "string", "description": "Defaults to target_lakehouse"},
                "source_workspace": {"type": "string"}
            }
        },
        "cmd.startResponse": {
            "type": "object",
            "properties": {
                "run_id": {"type": "string"},
                "status": {"type": "string"},
                "marker": {"type": "string"},
                "links": {"type": "object", "additionalProperties": {"type": "string"}}
            }
        },
        "cmd.errorResponse": {
            "type": "object",
            "properties": {
                "error": {"type": "string"},
                "run_id": {"type": "string"}
            }
        },
        "cmd.itemView": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "display_name": {"type": "string"},
                "outcome": {"type": "string"},
                "replacements": {"type": "integer"},
                "stage": {"type": "string"},
                "status_code": {"type": "integer"},
                "partially_applied": {"type": "boolean"},
                "error": {"type": "string"}
            }
        },
        "cmd.summaryView": {
            "type": "object",
            "properties": {
                "run_id": {"type": "string"},
                "updated": {"type": "integer"},
                "skipped": {"type": "integer"},
                "unchanged": {"type": "integer"},
                "failed": {"type": "integer"},
                "items": {"type": "array", "items": {"$ref": "#/definitions/cmd.itemView"}}
            }
        },
        "ledger.Item": {
            "type": "object",
            "properties": {
                "index": {"type": "integer"},
                "item_id": {"type": "string"},
                "display_name": {"type": "string"},
                "start_time": {"type": "string"},
                "end_time": {"type": "string"},
                "duration_ms": {"type": "integer"},
                "status": {"type": "string"},
                "stage": {"type": "string"},
                "status_code": {"type": "integer"},
                "replacements": {"type": "integer"},
                "partially_applied": {"type": "boolean"},
                "error_message": {"type": "string"}
            }
        },
        "ledger.Run": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "principal": {"type": "string"},
                "source_workspace": {"type": "string"},
                "target_workspace": {"type": "string"},
                "source_lakehouse": {"type": "string"},
                "target_lakehouse": {"type": "string"},
                "source_workspace_id": {"type": "string"},
                "target_workspace_id": {"type": "string"},
                "source_lakehouse_id": {"type": "string"},
                "target_lakehouse_id": {"type": "string"},
                "marker": {"type": "string"},
                "start_time": {"type": "string"},
                "end_time": {"type": "string"},
                "duration_ms": {"type": "integer"},
                "status": {"type": "string"},
                "total_items": {"type": "integer"},
                "updated_items": {"type": "integer"},
                "unchanged_items": {"type": "integer"},
                "failed_items": {"type": "integer"},
                "error_message": {"type": "string"},
                "items": {"type": "array", "items": {"$ref": "#/definitions/ledger.Item"}}
            }
        },
        "ledger.Statistics": {
            "type": "object",
            "properties": {
                "total_runs": {"type": "integer"},
                "completed_runs": {"type": "integer"},
                "partial_runs": {"type": "integer"},
                "failed_runs": {"type": "integer"},
                "running_runs": {"type": "integer"},
                "total_items": {"type": "integer"},
                "updated_items": {"type": "integer"},
                "unchanged_items": {"type": "integer"},
                "failed_items": {"type": "integer"},
                "partially_applied_items": {"type": "integer"},
                "avg_duration_ms": {"type": "integer"},
                "failure_rate": {"type": "number"},
                "failure_stages": {"type": "object", "additionalProperties": {"type": "integer"}},
                "target_counts": {"type": "object", "additionalProperties": {"type": "integer"}}
            }
        },
        "auth.AuditEntry": {
            "type": "object",
            "properties": {
                "timestamp": {"type": "string"},
                "action": {"type": "string"},
                "resource": {"type": "string"},
                "key_id": {"type": "string"},
                "success": {"type": "boolean"},
                "ip_address": {"type": "string"},
                "error_message": {"type": "string"}
            }
        }
    },
    "securityDefinitions": {
        "ApiKeyAuth": {
            "type": "apiKey",
            "name": "x-api-key",
            "in": "header"
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "Dataflow Migrator API",
	Description:      "Retargets dataflow destinations between lakehouses and records every run.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
