// Package session implements the credential store: the single source of
// truth for the authenticated user, access token, anti-forgery token, role
// and permission sets, and menu tree.
//
// # Ownership
//
// The Store owns the record. Collaborators (the request interceptor, the
// lifecycle controller) read snapshots and request mutations through the
// exported setters; no raw mutable reference ever leaves the store.
//
// # Persistence
//
// Every effective mutation writes a restricted projection (auth flag,
// minimal user fields, anti-forgery token, roles, permissions) to a
// pluggable Storage backend. The access token is excluded unless explicitly
// opted in. Menus are persisted separately by pkg/menu.
//
// Backends: MemoryStorage (tests), FileStorage (JSON file, with fsnotify
// change watching so another process rotating the session is picked up),
// and RedisStorage for agents sharing a session.
package session
