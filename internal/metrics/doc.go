// Package metrics provides Prometheus metrics for monitoring.
//
// Key metrics:
//   - tradeline_identity_resolutions_total{source}: finished resolutions by identity source
//   - tradeline_channel_state{state}: one-hot event channel state
//   - tradeline_channel_reconnects_total: scheduled reconnect attempts
//   - tradeline_channel_messages_total: raw frames read from the channel
//   - tradeline_events_routed_total{kind}: validated domain events
//   - tradeline_events_dropped_total{reason}: frames rejected by the router
//   - tradeline_notifications_created_total{kind}, tradeline_notifications_active
//
// Collectors are registered with the default registry at init and served by
// Handler().
package metrics
