// Package observability contains the monitoring core for the strategy
// research loop: an in-memory metrics registry, background resource and
// container monitors, population diversity tracking, and a suppressed,
// rate-limited alert engine.
package observability
