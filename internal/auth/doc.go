// Package auth reconciles the client's identity from three sources: the local
// cache, the primary cookie/session endpoint and the legacy bearer-token
// endpoint.
//
// Resolution runs the sources in order and the first one that yields a user
// wins. A cached user is reported immediately and then re-validated in the
// background against the two remote schemes.
//
// The Resolver is the only writer of the identity and of the cache keys
// auth_user and auth_token.
package auth
