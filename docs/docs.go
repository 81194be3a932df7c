// Package docs holds the OpenAPI description of the bridge API served at /docs.
// Regenerate with `swag init -g cmd/server/main.go` after changing handler annotations.
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
        "/auth/login": {
            "post": {
                "description": "Trade the bridge passcode for a bridge token of the signed-in Medius user",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["auth"],
                "summary": "Bridge login",
                "parameters": [
                    {"description": "Passcode", "name": "input", "in": "body", "required": true, "schema": {"$ref": "#/definitions/httpserver.loginRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/httpserver.tokenResponse"}},
                    "400": {"description": "Bad Request", "schema": {"type": "object", "additionalProperties": {"type": "string"}}},
                    "401": {"description": "Unauthorized", "schema": {"type": "object", "additionalProperties": {"type": "string"}}}
                }
            }
        },
        "/auth/me": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["auth"],
                "summary": "Current user",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/domain.User"}},
                    "401": {"description": "Unauthorized", "schema": {"type": "object", "additionalProperties": {"type": "string"}}}
                }
            }
        },
        "/dashboard": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["dashboard"],
                "summary": "Dashboard",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/httpserver.dashboardResponse"}},
                    "502": {"description": "Bad Gateway", "schema": {"type": "object", "additionalProperties": {"type": "string"}}}
                }
            }
        },
        "/deals": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["dashboard"],
                "summary": "List deals",
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/notifications": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["dashboard"],
                "summary": "List notifications",
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/notifications/{notificationID}/read": {
            "post": {
                "security": [{"BearerAuth": []}],
                "tags": ["dashboard"],
                "summary": "Mark a notification read",
                "parameters": [
                    {"type": "string", "description": "Notification ID", "name": "notificationID", "in": "path", "required": true}
                ],
                "responses": {
                    "204": {"description": "No Content"},
                    "404": {"description": "Not Found", "schema": {"type": "object", "additionalProperties": {"type": "string"}}}
                }
            }
        },
        "/contacts": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["dashboard"],
                "summary": "List contacts",
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/stats": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["dashboard"],
                "summary": "User stats",
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/deals/{dealID}/session": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["sessions"],
                "summary": "Session snapshot",
                "parameters": [{"type": "string", "description": "Deal ID", "name": "dealID", "in": "path", "required": true}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/chat.Snapshot"}},
                    "404": {"description": "Not Found", "schema": {"type": "object", "additionalProperties": {"type": "string"}}}
                }
            },
            "post": {
                "security": [{"BearerAuth": []}],
                "description": "Load the deal and its history and open the realtime channel",
                "produces": ["application/json"],
                "tags": ["sessions"],
                "summary": "Mount a deal session",
                "parameters": [{"type": "string", "description": "Deal ID", "name": "dealID", "in": "path", "required": true}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/chat.Snapshot"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/httpserver.loadErrorResponse"}},
                    "502": {"description": "Bad Gateway", "schema": {"$ref": "#/definitions/httpserver.loadErrorResponse"}}
                }
            },
            "delete": {
                "security": [{"BearerAuth": []}],
                "tags": ["sessions"],
                "summary": "Unmount a deal session",
                "parameters": [{"type": "string", "description": "Deal ID", "name": "dealID", "in": "path", "required": true}],
                "responses": {
                    "204": {"description": "No Content"},
                    "404": {"description": "Not Found", "schema": {"type": "object", "additionalProperties": {"type": "string"}}}
                }
            }
        },
        "/deals/{dealID}/session/reconnect": {
            "post": {
                "security": [{"BearerAuth": []}],
                "tags": ["sessions"],
                "summary": "Reconnect the realtime channel",
                "parameters": [{"type": "string", "description": "Deal ID", "name": "dealID", "in": "path", "required": true}],
                "responses": {
                    "202": {"description": "Accepted"},
                    "404": {"description": "Not Found", "schema": {"type": "object", "additionalProperties": {"type": "string"}}}
                }
            }
        },
        "/deals/{dealID}/messages": {
            "post": {
                "security": [{"BearerAuth": []}],
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["sessions"],
                "summary": "Send a chat message",
                "parameters": [
                    {"type": "string", "description": "Deal ID", "name": "dealID", "in": "path", "required": true},
                    {"description": "Message", "name": "input", "in": "body", "required": true, "schema": {"$ref": "#/definitions/httpserver.sendMessageRequest"}}
                ],
                "responses": {
                    "202": {"description": "Accepted", "schema": {"$ref": "#/definitions/chat.Snapshot"}},
                    "400": {"description": "Bad Request", "schema": {"type": "object", "additionalProperties": {"type": "string"}}},
                    "409": {"description": "Conflict", "schema": {"type": "object", "additionalProperties": {"type": "string"}}}
                }
            }
        },
        "/deals/{dealID}/draft": {
            "put": {
                "security": [{"BearerAuth": []}],
                "consumes": ["application/json"],
                "tags": ["sessions"],
                "summary": "Save the composer draft",
                "parameters": [
                    {"type": "string", "description": "Deal ID", "name": "dealID", "in": "path", "required": true},
                    {"description": "Draft", "name": "input", "in": "body", "required": true, "schema": {"$ref": "#/definitions/httpserver.draftRequest"}}
                ],
                "responses": {"204": {"description": "No Content"}}
            }
        },
        "/deals/{dealID}/attachments": {
            "post": {
                "security": [{"BearerAuth": []}],
                "consumes": ["multipart/form-data"],
                "produces": ["application/json"],
                "tags": ["sessions"],
                "summary": "Upload an attachment",
                "parameters": [
                    {"type": "string", "description": "Deal ID", "name": "dealID", "in": "path", "required": true},
                    {"type": "file", "description": "Attachment", "name": "file", "in": "formData", "required": true}
                ],
                "responses": {
                    "202": {"description": "Accepted"},
                    "409": {"description": "Conflict", "schema": {"type": "object", "additionalProperties": {"type": "string"}}},
                    "413": {"description": "Request Entity Too Large", "schema": {"type": "object", "additionalProperties": {"type": "string"}}}
                }
            }
        },
        "/deals/{dealID}/files/link": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["sessions"],
                "summary": "Resolve a secure attachment link",
                "parameters": [
                    {"type": "string", "description": "Deal ID", "name": "dealID", "in": "path", "required": true},
                    {"type": "string", "description": "File key", "name": "key", "in": "query", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK"},
                    "400": {"description": "Bad Request", "schema": {"type": "object", "additionalProperties": {"type": "string"}}}
                }
            }
        },
        "/deals/{dealID}/release": {
            "post": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["sessions"],
                "summary": "Release escrowed funds",
                "parameters": [{"type": "string", "description": "Deal ID", "name": "dealID", "in": "path", "required": true}],
                "responses": {
                    "200": {"description": "OK"},
                    "409": {"description": "Conflict", "schema": {"type": "object", "additionalProperties": {"type": "string"}}}
                }
            }
        },
        "/deals/{dealID}/cancel": {
            "post": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["sessions"],
                "summary": "Request or confirm cancellation",
                "parameters": [{"type": "string", "description": "Deal ID", "name": "dealID", "in": "path", "required": true}],
                "responses": {
                    "200": {"description": "OK"},
                    "403": {"description": "Forbidden", "schema": {"type": "object", "additionalProperties": {"type": "string"}}},
                    "409": {"description": "Conflict", "schema": {"type": "object", "additionalProperties": {"type": "string"}}}
                }
            }
        },
        "/deals/{dealID}/banner/dismiss": {
            "post": {
                "security": [{"BearerAuth": []}],
                "tags": ["sessions"],
                "summary": "Dismiss the error banner",
                "parameters": [{"type": "string", "description": "Deal ID", "name": "dealID", "in": "path", "required": true}],
                "responses": {"204": {"description": "No Content"}}
            }
        }
    },
    "definitions": {
        "domain.User": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "username": {"type": "string"}
            }
        },
        "chat.Snapshot": {
            "type": "object",
            "properties": {
                "deal_id": {"type": "string"},
                "deal": {"type": "object"},
                "messages": {"type": "array", "items": {"type": "object"}},
                "connection": {"type": "object"},
                "notices": {"type": "object"},
                "draft": {"type": "string"},
                "sending": {"type": "boolean"},
                "uploading": {"type": "boolean"},
                "action": {"type": "string"},
                "history_error": {"type": "string"},
                "stale": {"type": "boolean"}
            }
        },
        "httpserver.dashboardResponse": {
            "type": "object",
            "properties": {
                "deals": {"type": "array", "items": {"type": "object"}},
                "notifications": {"type": "array", "items": {"type": "object"}},
                "contacts": {"type": "array", "items": {"type": "object"}},
                "stats": {"type": "object"}
            }
        },
        "httpserver.draftRequest": {
            "type": "object",
            "properties": {"draft": {"type": "string"}}
        },
        "httpserver.loadErrorResponse": {
            "type": "object",
            "properties": {
                "error": {"type": "string"},
                "cached": {"$ref": "#/definitions/chat.Snapshot"}
            }
        },
        "httpserver.loginRequest": {
            "type": "object",
            "properties": {"passcode": {"type": "string"}}
        },
        "httpserver.sendMessageRequest": {
            "type": "object",
            "properties": {"message": {"type": "string"}}
        },
        "httpserver.tokenResponse": {
            "type": "object",
            "properties": {
                "access_token": {"type": "string"},
                "token_type": {"type": "string"},
                "user": {"$ref": "#/definitions/domain.User"}
            }
        }
    },
    "securityDefinitions": {
        "BearerAuth": {
            "type": "apiKey",
            "name": "Authorization",
            "in": "header"
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "localhost:8700",
	BasePath:         "/api",
	Schemes:          []string{},
	Title:            "Medius Deal Chat Bridge",
	Description:      "Local bridge between a deal chat UI and the Medius escrow API.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
