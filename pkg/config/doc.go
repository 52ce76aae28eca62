// Package config loads SDK configuration from TABLERO_-prefixed environment
// variables. Timeouts and intervals governing the anti-forgery rotation poll
// and proactive session renewal are explicit settings, not hidden constants.
package config
