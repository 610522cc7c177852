// Package api provides the HTTP client for the trading server's
// authentication endpoints.
//
// Two independent schemes are exposed:
//   - Primary: cookie/session based, GET /auth/session-status
//   - Legacy: bearer token, /api/v1/auth/{login,register,logout,me}
//
// The client owns a cookie jar so the session cookie set by the primary
// scheme is replayed on later requests and on the WebSocket handshake.
package api
