// Package api defines the wire types exchanged with the Tablero backend
// services (auth, user, menu) and the error type returned for non-2xx
// responses.
//
// # Services
//
// Three HTTP services cooperate behind the SDK:
//
//   - auth: login, logout, refresh-token, me
//   - user: users CRUD, roles
//   - menu: menu tree CRUD
//
// All types here are plain data carriers; behavior lives in pkg/client and
// pkg/transport.
package api
