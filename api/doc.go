// Package api provides OpenAPI/Swagger documentation for the GoHumanLoopHub API.
//
// This package contains the OpenAPI 3.0 specification and related documentation
// for the GoHumanLoopHub HTTP API.
//
// # API Overview
//
// GoHumanLoopHub provides a RESTful API for:
//   - Human-in-the-loop request submission (approval, information, conversation)
//   - Request status polling and cancellation
//   - Admin review console: list, inspect, respond, batch transitions
//   - Request statistics and health monitoring
//
// # Authentication
//
// Agent-facing endpoints require authentication via the X-API-Key header:
//
//	X-API-Key: your-api-key
//
// Admin endpoints require a superuser Bearer token obtained from
// POST /api/v1/login/access-token:
//
//	Authorization: Bearer <token>
//
// # Base URL
//
// The default base URL for the API is:
//
//	http://localhost:8080
//
// # Generating Documentation
//
// To regenerate Swagger documentation using swag:
//
//	swag init -g cmd/gohumanloophub/main.go -o api --parseDependency --parseInternal
package api
