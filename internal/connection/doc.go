// Package connection owns the client's single event channel.
//
// The Manager:
//   - Opens one WebSocket at a time, and only while the user is signed in
//   - Reconnects after failures with capped exponential backoff
//   - Gives up after a fixed number of attempts and waits for Start
//   - Forwards raw frames to the event router
package connection
