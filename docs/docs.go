// Package docs holds the OpenAPI description served under /swagger.
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {},
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/health": {
            "get": {
                "produces": ["application/json"],
                "tags": ["health"],
                "summary": "Dependency health",
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "object", "additionalProperties": {"type": "string"}}},
                    "503": {"description": "Service Unavailable", "schema": {"$ref": "#/definitions/handler.errorPayload"}}
                }
            }
        },
        "/healthz": {
            "get": {
                "tags": ["health"],
                "summary": "Liveness check",
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/{kind}-with-image": {
            "post": {
                "consumes": ["multipart/form-data"],
                "produces": ["text/plain"],
                "tags": ["entities"],
                "summary": "Create an entity with an image",
                "parameters": [
                    {"type": "string", "enum": ["order", "product", "customer"], "name": "kind", "in": "path", "required": true},
                    {"type": "file", "name": "Image", "in": "formData", "required": true}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"type": "string"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/handler.errorPayload"}},
                    "500": {"description": "Internal Server Error", "schema": {"$ref": "#/definitions/handler.errorPayload"}}
                }
            }
        },
        "/{kinds}-with-image": {
            "get": {
                "produces": ["application/json"],
                "tags": ["entities"],
                "summary": "List entities with image URLs",
                "parameters": [
                    {"type": "string", "enum": ["orders", "products", "customers"], "name": "kinds", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "array", "items": {"$ref": "#/definitions/model.Entity"}}},
                    "500": {"description": "Internal Server Error", "schema": {"$ref": "#/definitions/handler.errorPayload"}}
                }
            }
        },
        "/{kind}": {
            "get": {
                "produces": ["application/json"],
                "tags": ["entities"],
                "summary": "List entities",
                "parameters": [
                    {"type": "string", "enum": ["order", "product", "customer"], "name": "kind", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "array", "items": {"$ref": "#/definitions/model.Entity"}}}
                }
            }
        },
        "/{kind}/{id}": {
            "get": {
                "produces": ["application/json"],
                "tags": ["entities"],
                "summary": "Get an entity",
                "parameters": [
                    {"type": "string", "name": "kind", "in": "path", "required": true},
                    {"type": "string", "format": "uuid", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "headers": {"ETag": {"type": "string"}}, "schema": {"$ref": "#/definitions/model.Entity"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/handler.errorPayload"}}
                }
            },
            "put": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["entities"],
                "summary": "Replace entity fields",
                "parameters": [
                    {"type": "string", "name": "kind", "in": "path", "required": true},
                    {"type": "string", "format": "uuid", "name": "id", "in": "path", "required": true},
                    {"type": "string", "description": "expected version", "name": "If-Match", "in": "header"},
                    {"name": "fields", "in": "body", "required": true, "schema": {"type": "object"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/model.Entity"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/handler.errorPayload"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/handler.errorPayload"}},
                    "409": {"description": "Conflict", "schema": {"$ref": "#/definitions/handler.errorPayload"}}
                }
            },
            "delete": {
                "tags": ["entities"],
                "summary": "Delete an entity and its image",
                "parameters": [
                    {"type": "string", "name": "kind", "in": "path", "required": true},
                    {"type": "string", "format": "uuid", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "204": {"description": "No Content"},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/handler.errorPayload"}}
                }
            }
        },
        "/{kind}/queue": {
            "post": {
                "consumes": ["application/json"],
                "tags": ["queue"],
                "summary": "Queue an entity for creation",
                "parameters": [
                    {"type": "string", "name": "kind", "in": "path", "required": true},
                    {"name": "fields", "in": "body", "required": true, "schema": {"type": "object"}}
                ],
                "responses": {
                    "202": {"description": "Accepted"},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/handler.errorPayload"}},
                    "503": {"description": "Service Unavailable", "schema": {"$ref": "#/definitions/handler.errorPayload"}}
                }
            }
        },
        "/{kind}/files": {
            "get": {
                "produces": ["application/json"],
                "tags": ["files"],
                "summary": "List files",
                "parameters": [{"type": "string", "name": "kind", "in": "path", "required": true}],
                "responses": {"200": {"description": "OK", "schema": {"type": "array", "items": {"type": "string"}}}}
            }
        },
        "/{kind}/upload/{fileName}": {
            "post": {
                "consumes": ["application/octet-stream"],
                "produces": ["text/plain"],
                "tags": ["files"],
                "summary": "Upload a file",
                "parameters": [
                    {"type": "string", "name": "kind", "in": "path", "required": true},
                    {"type": "string", "name": "fileName", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "string"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/handler.errorPayload"}}
                }
            }
        },
        "/{kind}/download/{fileName}": {
            "get": {
                "produces": ["application/octet-stream"],
                "tags": ["files"],
                "summary": "Download a file",
                "parameters": [
                    {"type": "string", "name": "kind", "in": "path", "required": true},
                    {"type": "string", "name": "fileName", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "file"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/handler.errorPayload"}}
                }
            }
        }
    },
    "definitions": {
        "handler.errorEnvelope": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "message": {"type": "string"}
            }
        },
        "handler.errorPayload": {
            "type": "object",
            "properties": {
                "error": {"$ref": "#/definitions/handler.errorEnvelope"},
                "request_id": {"type": "string"}
            }
        },
        "model.Entity": {
            "type": "object",
            "properties": {
                "attachment_ref": {"type": "string", "x-nullable": true},
                "fields": {"type": "object", "additionalProperties": true},
                "id": {"type": "string"},
                "last_modified": {"type": "string", "format": "date-time"},
                "partition": {"type": "string"},
                "version": {"type": "string"}
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "Retail Ingestion API",
	Description:      "Ingests orders, products and customers over HTTP and Kafka.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
