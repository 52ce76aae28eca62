// Package observability provides the SDK's structured logger and Prometheus
// metrics for the session lifecycle: refresh attempts and outcomes, request
// replays, anti-forgery rotation waits, and persistence writes.
package observability
