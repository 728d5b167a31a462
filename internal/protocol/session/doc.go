// Package session owns per-connection transport settings and lifecycle.
//
// Ownership boundary:
// - timeouts, hand-off queue policy, decode limits
// - Connecting -> Negotiating -> Streaming -> Closed state tracking
// - connection snapshots for logs and admin views
package session
