// Package router turns raw channel frames into typed domain events.
//
// Frames are JSON envelopes of the form {"event": <name>, "data": {...}}.
// Each of the five supported event names has its own wire struct and
// required-field check. A frame that fails to parse or validate is dropped,
// logged and counted; subscribers only ever see complete events.
//
// Parsed events pass through an unbounded FIFO Queue to a single dispatch
// goroutine, so a slow subscriber never stalls reading from the channel.
package router
