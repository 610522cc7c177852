// Package notify keeps the set of user-visible notifications.
//
// Each domain event becomes exactly one Notification through a fixed mapping
// (see FromEvent). Every notification owns one expiry timer, cancelled if the
// user dismisses it first. The active set is ordered oldest first, most
// recent last, and bounded: adding past the limit evicts the oldest.
package notify
