package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "School Bulletin API",
        "description": "Report cards: grade averaging, mentions, class ranking and publication.",
        "version": "1.0.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http"
    ],
    "securityDefinitions": {
        "BearerAuth": {"type": "apiKey", "name": "Authorization", "in": "header"}
    },
    "tags": [
        {"name": "Bulletins", "description": "Report card lifecycle and ranking"},
        {"name": "Portal", "description": "Published bulletins for students and parents"},
        {"name": "Grades", "description": "Individual marks"},
        {"name": "Notifications", "description": "In-app inbox"}
    ],
    "paths": {
        "/auth/login": {
            "post": {
                "tags": ["Auth"],
                "summary": "Exchange credentials for an access token",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "401": {"description": "Invalid credentials"}
                }
            }
        },
        "/bulletins": {
            "get": {
                "tags": ["Bulletins"],
                "summary": "List bulletins",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "class_id", "in": "query", "type": "string"},
                    {"name": "student_id", "in": "query", "type": "string"},
                    {"name": "period", "in": "query", "type": "string"},
                    {"name": "school_year", "in": "query", "type": "string"},
                    {"name": "published", "in": "query", "type": "boolean"},
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "page_size", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["Bulletins"],
                "summary": "Create a draft bulletin from recorded grades",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/CreateBulletinRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Bulletin already exists"},
                    "412": {"description": "No grades for the period"}
                }
            }
        },
        "/bulletins/generate-bulk": {
            "post": {
                "tags": ["Bulletins"],
                "summary": "Generate the bulletins of a whole class",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/GenerateBulkRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "423": {"description": "Scope busy"}
                }
            }
        },
        "/bulletins/recalculate-ranks": {
            "post": {
                "tags": ["Bulletins"],
                "summary": "Recompute competition ranks for a class and period",
                "security": [{"BearerAuth": []}],
                "responses": {
                    "200": {"description": "OK"}
                }
            }
        },
        "/bulletins/ranking": {
            "get": {
                "tags": ["Bulletins"],
                "summary": "Class ranking board (JSON or CSV)",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "class_id", "in": "query", "type": "string", "required": true},
                    {"name": "period", "in": "query", "type": "string", "required": true},
                    {"name": "school_year", "in": "query", "type": "string", "required": true},
                    {"name": "format", "in": "query", "type": "string", "enum": ["json", "csv"]}
                ],
                "responses": {
                    "200": {"description": "OK"}
                }
            }
        },
        "/bulletins/{id}": {
            "get": {
                "tags": ["Bulletins"],
                "summary": "Bulletin with per-subject breakdown",
                "security": [{"BearerAuth": []}],
                "parameters": [{"name": "id", "in": "path", "type": "string", "required": true}],
                "responses": {
                    "200": {"description": "OK"},
                    "404": {"description": "Not found"}
                }
            },
            "put": {
                "tags": ["Bulletins"],
                "summary": "Edit stored fields without recomputation",
                "security": [{"BearerAuth": []}],
                "parameters": [{"name": "id", "in": "path", "type": "string", "required": true}],
                "responses": {
                    "200": {"description": "OK"},
                    "400": {"description": "Validation error"}
                }
            },
            "delete": {
                "tags": ["Bulletins"],
                "summary": "Delete a bulletin",
                "security": [{"BearerAuth": []}],
                "parameters": [{"name": "id", "in": "path", "type": "string", "required": true}],
                "responses": {
                    "204": {"description": "Deleted"}
                }
            }
        },
        "/bulletins/{id}/publish": {
            "post": {
                "tags": ["Bulletins"],
                "summary": "Publish a draft and notify the family",
                "security": [{"BearerAuth": []}],
                "parameters": [{"name": "id", "in": "path", "type": "string", "required": true}],
                "responses": {
                    "200": {"description": "OK"},
                    "409": {"description": "Already published"}
                }
            }
        },
        "/bulletins/{id}/pdf": {
            "get": {
                "tags": ["Bulletins"],
                "summary": "Signed download link for the rendered PDF",
                "security": [{"BearerAuth": []}],
                "parameters": [{"name": "id", "in": "path", "type": "string", "required": true}],
                "responses": {
                    "200": {"description": "OK"},
                    "404": {"description": "Not rendered yet"}
                }
            },
            "post": {
                "tags": ["Bulletins"],
                "summary": "Queue PDF rendering",
                "security": [{"BearerAuth": []}],
                "parameters": [{"name": "id", "in": "path", "type": "string", "required": true}],
                "responses": {
                    "202": {"description": "Queued"}
                }
            }
        },
        "/student/bulletins": {
            "get": {
                "tags": ["Portal"],
                "summary": "Published bulletins of the signed-in student",
                "security": [{"BearerAuth": []}],
                "responses": {
                    "200": {"description": "OK"}
                }
            }
        },
        "/parent/children/{studentId}/bulletins": {
            "get": {
                "tags": ["Portal"],
                "summary": "Published bulletins of a linked child",
                "security": [{"BearerAuth": []}],
                "parameters": [{"name": "studentId", "in": "path", "type": "string", "required": true}],
                "responses": {
                    "200": {"description": "OK"},
                    "403": {"description": "Not the parent of this student"}
                }
            }
        },
        "/grades": {
            "get": {
                "tags": ["Grades"],
                "summary": "List grades",
                "security": [{"BearerAuth": []}],
                "responses": {
                    "200": {"description": "OK"}
                }
            },
            "post": {
                "tags": ["Grades"],
                "summary": "Record a grade",
                "security": [{"BearerAuth": []}],
                "responses": {
                    "201": {"description": "Created"}
                }
            }
        },
        "/notifications": {
            "get": {
                "tags": ["Notifications"],
                "summary": "Inbox of the signed-in user",
                "security": [{"BearerAuth": []}],
                "responses": {
                    "200": {"description": "OK"}
                }
            }
        },
        "/exports/{token}": {
            "get": {
                "tags": ["Bulletins"],
                "summary": "Download a rendered bulletin PDF",
                "parameters": [{"name": "token", "in": "path", "type": "string", "required": true}],
                "produces": ["application/pdf"],
                "responses": {
                    "200": {"description": "PDF"},
                    "403": {"description": "Invalid or expired token"}
                }
            }
        }
    },
    "definitions": {
        "CreateBulletinRequest": {
            "type": "object",
            "required": ["student_id", "period", "school_year"],
            "properties": {
                "student_id": {"type": "string"},
                "period": {"type": "string", "enum": ["trimestre_1", "trimestre_2", "trimestre_3"]},
                "school_year": {"type": "string", "example": "2024-2025"},
                "remark": {"type": "string"}
            }
        },
        "GenerateBulkRequest": {
            "type": "object",
            "required": ["class_id", "period", "school_year"],
            "properties": {
                "class_id": {"type": "string"},
                "period": {"type": "string"},
                "school_year": {"type": "string"},
                "publish_immediately": {"type": "boolean"}
            }
        },
        "Bulletin": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "student_id": {"type": "string"},
                "period": {"type": "string"},
                "school_year": {"type": "string"},
                "average": {"type": "number"},
                "mention": {"type": "string"},
                "rank": {"type": "integer"},
                "total_students": {"type": "integer"},
                "published": {"type": "boolean"},
                "remark": {"type": "string"},
                "published_at": {"type": "string", "format": "date-time"}
            }
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
