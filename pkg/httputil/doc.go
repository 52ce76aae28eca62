// Package httputil provides client-side HTTP helpers shared by the SDK:
// JSON response decoding, error-message extraction from failure bodies, and
// connection-friendly body draining.
package httputil
