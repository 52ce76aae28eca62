// Package client is the session lifecycle controller and the typed API
// surface for the Tablero backend services.
//
// A Client owns one credential store, one menu store, one cookie jar, and
// one HTTP client wrapped in the pkg/transport interceptor. Login, Logout,
// FetchSession, and the proactive renewal loop are short state-machine
// transitions over those stores:
//
//	SignedOut -> Login -> Authenticated -> (401 + refresh ok) -> Authenticated
//	          -> (refresh failure | renewal failure | Logout) -> SignedOut
//
// The only fatal, non-retried failure is a refresh failure, which always
// clears all local state.
package client
