// Package model defines the shared domain types of the notification pipeline.
//
// Conventions:
//   - Events are immutable values constructed once by the router
//   - Order IDs are kept as the server's opaque strings
//   - UserRef never carries credential material
package model
