// Package csrf reconciles the server-rotated anti-forgery token into the
// credential store.
//
// The server delivers the token in a readable (non-HTTP-only) cookie on
// login and refresh responses. No event fires when a cookie changes, so the
// only reliable way to observe a rotation before issuing a dependent
// state-changing request is a bounded poll; Wait implements that poll with
// an explicit timeout and interval.
package csrf
