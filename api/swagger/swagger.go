package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "Clinic Rota API",
        "description": "Constraint-based weekly clinic schedule generation for residency programs",
        "version": "1.0.0"
    },
    "basePath": "/",
    "schemes": [
        "http"
    ],
    "tags": [
        {"name": "Schedule", "description": "Run lifecycle, preview and validation"},
        {"name": "Rules", "description": "Unit-constraint rules document"},
        {"name": "Export", "description": "Signed artifact downloads"},
        {"name": "Authentication", "description": "Admin login"},
        {"name": "System", "description": "Health and observability"}
    ],
    "paths": {
        "/health": {
            "get": {
                "tags": ["System"],
                "summary": "Health check",
                "responses": {
                    "200": {"description": "OK"}
                }
            }
        },
        "/ready": {
            "get": {
                "tags": ["System"],
                "summary": "Readiness check",
                "responses": {
                    "200": {"description": "Ready"},
                    "503": {"description": "A dependency is unreachable"}
                }
            }
        },
        "/metrics": {
            "get": {
                "tags": ["System"],
                "summary": "Prometheus exposition endpoint",
                "responses": {
                    "200": {"description": "OK"}
                }
            }
        },
        "/metrics/snapshot": {
            "get": {
                "tags": ["System"],
                "summary": "Aggregated runtime counters for ops dashboards",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/api/v1/schedule/runs": {
            "get": {
                "tags": ["Schedule"],
                "summary": "List schedule runs",
                "parameters": [
                    {"name": "status", "in": "query", "type": "string", "enum": ["QUEUED", "PROCESSING", "FINISHED", "FAILED"]},
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "perPage", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["Schedule"],
                "summary": "Create a schedule generation run",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/CreateRunRequest"}}
                ],
                "responses": {
                    "202": {"description": "Run queued", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "200": {"description": "Identical recent run reused", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Invalid roster"}
                }
            }
        },
        "/api/v1/schedule/runs/{id}": {
            "get": {
                "tags": ["Schedule"],
                "summary": "Run status, progress and artifact links",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Unknown run"}
                }
            }
        },
        "/api/v1/schedule/runs/{id}/result": {
            "get": {
                "tags": ["Schedule"],
                "summary": "Full result of a finished run",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Unknown run"},
                    "409": {"description": "Run not finished yet"}
                }
            }
        },
        "/api/v1/schedule/preview": {
            "post": {
                "tags": ["Schedule"],
                "summary": "Deterministic pre-schedule preview",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/PreviewRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "422": {"description": "Roster cannot be pre-scheduled"}
                }
            }
        },
        "/api/v1/schedule/validate": {
            "post": {
                "tags": ["Schedule"],
                "summary": "Full roster validation verdict",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/PreviewRequest"}}
                ],
                "responses": {
                    "200": {"description": "Verdict", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/api/v1/schedule/validate-field": {
            "post": {
                "tags": ["Schedule"],
                "summary": "Validate a single roster field",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/ValidateFieldRequest"}}
                ],
                "responses": {
                    "200": {"description": "Verdict", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/api/v1/schedule/defaults": {
            "get": {
                "tags": ["Schedule"],
                "summary": "Schedulable levels, units, rooms and engine defaults",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/api/v1/rules": {
            "get": {
                "tags": ["Rules"],
                "summary": "Active rules document",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "put": {
                "tags": ["Rules"],
                "summary": "Replace the rules document (admin)",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/RulesDocument"}}
                ],
                "responses": {
                    "200": {"description": "Stored document", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "401": {"description": "Missing or invalid token"},
                    "403": {"description": "Token lacks the admin role"}
                }
            }
        },
        "/api/v1/export/{token}": {
            "get": {
                "tags": ["Export"],
                "summary": "Download a run artifact via signed token",
                "produces": ["application/octet-stream"],
                "parameters": [
                    {"name": "token", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "File stream"},
                    "403": {"description": "Invalid token"},
                    "410": {"description": "Link expired"}
                }
            }
        },
        "/api/v1/auth/login": {
            "post": {
                "tags": ["Authentication"],
                "summary": "Authenticate the admin account",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/LoginRequest"}}
                ],
                "responses": {
                    "200": {"description": "Token issued", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "401": {"description": "Invalid credentials"}
                }
            }
        },
        "/api/v1/auth/me": {
            "get": {
                "tags": ["Authentication"],
                "summary": "Authenticated identity",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "401": {"description": "Missing or invalid token"}
                }
            }
        }
    },
    "definitions": {
        "PersonInput": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "name": {"type": "string"},
                "level": {"type": "string", "enum": ["R1", "R2", "R3", "R4"]},
                "rotation_unit": {"type": "string"},
                "health_check": {"type": "boolean"},
                "tuesday_teaching": {"type": "boolean"},
                "fixed_schedule": {"$ref": "#/definitions/FixedScheduleInput"}
            },
            "required": ["id", "level", "rotation_unit"]
        },
        "FixedScheduleInput": {
            "type": "object",
            "properties": {
                "day": {"type": "string"},
                "time_slot": {"type": "string", "enum": ["Morning", "Afternoon"]},
                "room": {"type": "string"}
            },
            "required": ["day", "time_slot"]
        },
        "EngineOptions": {
            "type": "object",
            "properties": {
                "population_size": {"type": "integer"},
                "max_generations": {"type": "integer"},
                "elite_fraction": {"type": "number"},
                "mutation_rate": {"type": "number"},
                "crossover_rate": {"type": "number"},
                "tournament_size": {"type": "integer"},
                "convergence_threshold": {"type": "integer"},
                "random_seed": {"type": "integer"}
            }
        },
        "R1AssignmentInput": {
            "type": "object",
            "properties": {
                "day": {"type": "string"},
                "room": {"type": "string"}
            },
            "required": ["day", "room"]
        },
        "CreateRunRequest": {
            "type": "object",
            "properties": {
                "personnel": {
                    "type": "array",
                    "items": {"$ref": "#/definitions/PersonInput"}
                },
                "options": {"$ref": "#/definitions/EngineOptions"},
                "r1_assignments": {
                    "type": "object",
                    "additionalProperties": {"$ref": "#/definitions/R1AssignmentInput"}
                },
                "week_label": {"type": "string"}
            },
            "required": ["personnel"]
        },
        "PreviewRequest": {
            "type": "object",
            "properties": {
                "personnel": {
                    "type": "array",
                    "items": {"$ref": "#/definitions/PersonInput"}
                }
            },
            "required": ["personnel"]
        },
        "ValidateFieldRequest": {
            "type": "object",
            "properties": {
                "level": {"type": "string", "enum": ["R1", "R2", "R3", "R4"]},
                "field": {"type": "string"},
                "value": {"type": "string"}
            },
            "required": ["level", "field", "value"]
        },
        "RunResponse": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "status": {"type": "string"},
                "progress": {"type": "integer"},
                "reused": {"type": "boolean"}
            }
        },
        "ArtifactLink": {
            "type": "object",
            "properties": {
                "kind": {"type": "string"},
                "filename": {"type": "string"},
                "url": {"type": "string"},
                "expires_at": {"type": "string"}
            }
        },
        "RunStatusResponse": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "status": {"type": "string", "enum": ["QUEUED", "PROCESSING", "FINISHED", "FAILED"]},
                "progress": {"type": "integer"},
                "created_at": {"type": "string"},
                "finished_at": {"type": "string"},
                "error": {"type": "string"},
                "artifacts": {
                    "type": "array",
                    "items": {"$ref": "#/definitions/ArtifactLink"}
                }
            }
        },
        "UnitConstraint": {
            "type": "object",
            "properties": {
                "min_clinics": {"type": "integer"},
                "max_clinics": {"type": "integer"},
                "allow_health_check": {"type": "boolean"}
            }
        },
        "GeneralRules": {
            "type": "object",
            "properties": {
                "max_clinics_per_day": {"type": "integer"},
                "max_clinics_per_week": {"type": "integer"},
                "health_check_priority": {
                    "type": "array",
                    "items": {"type": "string"}
                },
                "tuesday_teaching_exemption": {"type": "boolean"}
            }
        },
        "RulesDocument": {
            "type": "object",
            "properties": {
                "unit_constraints": {
                    "type": "object",
                    "additionalProperties": {"$ref": "#/definitions/UnitConstraint"}
                },
                "general_rules": {"$ref": "#/definitions/GeneralRules"},
                "room_preferences": {
                    "type": "object",
                    "additionalProperties": {
                        "type": "array",
                        "items": {"type": "string"}
                    }
                }
            }
        },
        "LoginRequest": {
            "type": "object",
            "properties": {
                "email": {"type": "string"},
                "password": {"type": "string"}
            },
            "required": ["email", "password"]
        },
        "Pagination": {
            "type": "object",
            "properties": {
                "page": {"type": "integer"},
                "page_size": {"type": "integer"},
                "total_count": {"type": "integer"}
            }
        },
        "APIError": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "message": {"type": "string"},
                "status": {"type": "integer"}
            }
        },
        "ResponseEnvelope": {
            "type": "object",
            "properties": {
                "data": {"type": "object"},
                "error": {"$ref": "#/definitions/APIError"},
                "pagination": {"$ref": "#/definitions/Pagination"},
                "meta": {"type": "object"}
            }
        }
    }
}`

type swaggerDoc struct{}

// ReadDoc returns the Swagger document.
func (s *swaggerDoc) ReadDoc() string {
	return docTemplate
}

func init() {
	swag.Register(swag.Name, &swaggerDoc{})
}
