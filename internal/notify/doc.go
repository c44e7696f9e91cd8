// Package notify turns change sets into destination-agnostic messages and
// delivers them.
//
// # Formatting
//
// Format is pure: the same kind, metadata and changes always produce the same
// Message. Numbers are rendered with thousands separators and deltas carry an
// explicit sign.
//
// # Delivery
//
// The Dispatcher sends one Message to every Destination concurrently, exactly
// once each, bounded by a fixed per-attempt timeout. A failing destination is
// logged and reported in its Result; it never stops delivery to the others and
// is never returned to the caller as an error. There is no retry: a dropped
// notification is accepted loss.
package notify
