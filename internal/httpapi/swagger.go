//go:build swagger

package httpapi

import (
	"github.com/go-chi/chi/v5"
	httpSwagger "github.com/swaggo/http-swagger"
	"github.com/swaggo/swag"
)

// docTemplate is replaced by the output of `swag init -g cmd/asistan/docs.go`
// when generated docs are vendored; it lists the routes so the UI is usable
// without the generator.
const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "{{.Title}}",
        "description": "{{escape .Description}}",
        "version": "{{.Version}}"
    },
    "basePath": "{{.BasePath}}",
    "schemes": {{ marshal .Schemes }},
    "paths": {
        "/chat": {"post": {"tags": ["chat"], "summary": "Chat turn", "consumes": ["application/json"], "produces": ["application/json", "application/x-ndjson"], "responses": {"200": {"description": "OK"}}}},
        "/vision": {"post": {"tags": ["chat"], "summary": "Describe an image", "responses": {"200": {"description": "OK"}}}},
        "/transcribe": {"post": {"tags": ["speech"], "summary": "Speech to text", "responses": {"200": {"description": "OK"}}}},
        "/ws/chat": {"get": {"tags": ["chat"], "summary": "Streaming chat over websocket", "responses": {"101": {"description": "Switching Protocols"}}}},
        "/history": {
            "get": {"tags": ["session"], "summary": "Conversation history", "responses": {"200": {"description": "OK"}}},
            "delete": {"tags": ["session"], "summary": "Clear history", "responses": {"204": {"description": "No Content"}}}
        },
        "/session": {"post": {"tags": ["session"], "summary": "Save the current session", "responses": {"200": {"description": "OK"}}}},
        "/sessions": {"get": {"tags": ["session"], "summary": "Saved sessions", "responses": {"200": {"description": "OK"}}}},
        "/sessions/{id}/load": {"post": {"tags": ["session"], "summary": "Resume a saved session", "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}], "responses": {"204": {"description": "No Content"}, "404": {"description": "Not Found"}}}},
        "/status": {"get": {"tags": ["system"], "summary": "Assistant status", "responses": {"200": {"description": "OK"}}}},
        "/models": {"get": {"tags": ["models"], "summary": "List models", "responses": {"200": {"description": "OK"}}}},
        "/cache": {"delete": {"tags": ["system"], "summary": "Clear the response cache", "responses": {"204": {"description": "No Content"}}}},
        "/readyz": {"get": {"tags": ["system"], "summary": "Readiness probe", "responses": {"200": {"description": "ready"}, "503": {"description": "unavailable"}}}}
    }
}`

// SwaggerInfo holds the document metadata.
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	BasePath:         "/",
	Schemes:          []string{"http"},
	Title:            "asistan API",
	Description:      "Local Turkish voice and text assistant.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}

// MountSwagger serves the UI under /swagger/.
func MountSwagger(r chi.Router) {
	r.Get("/swagger/*", httpSwagger.Handler(httpSwagger.URL("/swagger/doc.json")))
}
