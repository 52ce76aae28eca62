// Package transport implements the request interceptor protocol as an
// explicit http.RoundTripper decorator composed per client instance.
//
// # Outbound
//
// Every request gets the current access token (bearer header) and
// anti-forgery token (x-csrf-token header) from the credential store.
// Purely a read; headers already set by the caller are left alone.
//
// # Recovery
//
// A 401 response triggers at most one recovery per request: wait for the
// rotated anti-forgery token, refresh credentials, re-fetch the session,
// then replay the original request with the new tokens. The replay's
// outcome is returned to the caller as if it were the first response.
// Requests to login/logout/refresh endpoints, requests carrying the
// x-skip-refresh header, and requests already replayed once are never
// recovered. A failed refresh clears all session state (silent logout) and
// surfaces the refresh error.
//
// Concurrent 401s each refresh independently by default, matching the
// reference behavior; WithCoalescing collapses them behind a single
// in-flight refresh.
package transport
