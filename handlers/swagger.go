package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// RegisterSwagger registers minimal Swagger/OpenAPI endpoints.
// - GET /swagger/index.html  -> a small HTML page that loads the OpenAPI JSON
// - GET /swagger/doc.json    -> machine-readable OpenAPI JSON
func RegisterSwagger(r *gin.Engine) {
	r.GET("/swagger/index.html", func(c *gin.Context) {
		c.Header("Content-Type", "text/html; charset=utf-8")
		c.String(http.StatusOK, swaggerHTML)
	})

	r.GET("/swagger/doc.json", func(c *gin.Context) {
		c.Data(http.StatusOK, "application/json", []byte(swaggerJSON))
	})
}

const swaggerHTML = `<!doctype html>
<html>
  <head>
    <meta charset="utf-8" />
    <title>keyforge — Swagger</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@4/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@4/swagger-ui-bundle.js"></script>
    <script>
      window.ui = SwaggerUIBundle({
        url: '/swagger/doc.json',
        dom_id: '#swagger-ui',
      })
    </script>
  </body>
</html>`

// Minimal OpenAPI document covering the main API surface. Auth is the
// httpOnly auth_token cookie set by /api/auth/login.
const swaggerJSON = `{
  "openapi": "3.0.0",
  "info": { "title": "keyforge", "version": "v0.1.0" },
  "paths": {
    "/api/auth/register": {
      "post": { "summary": "Create an account", "responses": { "201": { "description": "account created" }, "400": { "description": "invalid input or email taken" } } }
    },
    "/api/auth/login": {
      "post": { "summary": "Authenticate and set the session cookie", "responses": { "200": { "description": "logged in" }, "401": { "description": "bad credentials" } } }
    },
    "/api/auth/me": {
      "get": { "summary": "Current account with plan state", "responses": { "200": { "description": "account" }, "401": { "description": "not authenticated" } } }
    },
    "/api/auth/logout": {
      "post": { "summary": "Drop the session and blacklist the token", "responses": { "200": { "description": "logged out" } } }
    },
    "/api/projects": {
      "get": { "summary": "Projects owned by or linked to the caller", "responses": { "200": { "description": "project summaries" } } },
      "post": { "summary": "Create a project (empresarial only)", "responses": { "201": { "description": "created" }, "403": { "description": "plan too low" } } }
    },
    "/api/collections": {
      "get": { "summary": "Discovered license collections", "responses": { "200": { "description": "collection rows" } } }
    },
    "/api/keys/generate": {
      "post": { "summary": "Issue a batch of license keys", "responses": { "200": { "description": "batch result" }, "403": { "description": "plan too low" } } }
    },
    "/api/billing/activate": {
      "post": { "summary": "Apply a confirmed PIX payment to the plan", "responses": { "200": { "description": "plan granted" }, "409": { "description": "payment not confirmed yet" } } }
    },
    "/api/dashboard/overview": {
      "get": { "summary": "Aggregated dashboard panel", "responses": { "200": { "description": "overview" } } }
    },
    "/health": { "get": { "summary": "Liveness check", "responses": { "200": { "description": "healthy" } } } },
    "/ready": { "get": { "summary": "Readiness check", "responses": { "200": { "description": "ready" }, "503": { "description": "not ready" } } } }
  }
}`
