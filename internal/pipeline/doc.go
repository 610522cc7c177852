// Package pipeline wires the identity resolver, event channel, router and
// notification center into one client.
//
// Data flows one way:
//
//	auth.Resolver -> connection.Manager -> router.Router -> notify.Center
//
// Every identity change is pushed into the connection manager: a signed-in
// user starts the channel, signing out closes it. Each routed event becomes
// a notification. Callers outside the package see only the upward interface
// on Pipeline.
package pipeline
