// Package menu holds the client-side copy of the permission-gated
// navigation tree: flattening with path deduplication, and a store that
// persists the tree and its loaded flag separately from the session.
package menu
