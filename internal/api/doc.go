// Package api provides the REST client for the CampusLink backend.
//
// Every response uses the envelope {"success": bool, "message": string, "data": ...}.
// Default base URL: http://localhost:8000/api (CAMPUSLINK_API_URL overrides).
//
// Endpoints used:
//   - POST  /auth/login
//   - GET   /chats/{id}/messages
//   - GET   /notifications
//   - PATCH /notifications/{id}/read
package api
