// Package cli implements the tablero command-line interface for operating
// the admin platform from the terminal.
//
// # Commands
//
// login: Authenticate and persist the session
//
//	tablero login --identifier alice --password secret
//
// logout: End the session
//
//	tablero logout
//
// whoami: Show the current identity, roles, and permissions
//
//	tablero whoami
//
// users: List users
//
//	tablero users
//
// user-toggle: Enable or disable an account
//
//	tablero user-toggle --id u42 --active=false
//
// menus: Print the menu tree
//
//	tablero menus
//
// menu-delete: Remove a menu entry
//
//	tablero menu-delete --id 7
//
// session: Dump the locally persisted session state
//
//	tablero session
//
// # Configuration
//
// Service URLs and lifecycle tuning come from TABLERO_-prefixed environment
// variables (see pkg/config):
//
//	export TABLERO_AUTH_SERVICE_URL="https://auth.example.com"
//	export TABLERO_USER_SERVICE_URL="https://users.example.com"
//	export TABLERO_MENU_SERVICE_URL="https://menus.example.com"
//
// The session persists in the state directory, so consecutive invocations
// reuse the same credentials until they expire or logout runs.
package cli
