package menu

import (
	"github.com/sirupsen/logrus"

	"github.com/tablerohq/tablero/pkg/api"
)

// Flatten walks the tree depth-first and returns the nodes in first-seen
// order, deduplicated by path. A later node with an already-seen path is
// dropped and logged as a warning; duplicates are a data problem on the
// menu service, not an error here.
func Flatten(tree []api.MenuNode, log *logrus.Logger) []api.MenuNode {
	flat := make([]api.MenuNode, 0, len(tree))
	seen := make(map[string]struct{})

	var walk func(nodes []api.MenuNode)
	walk = func(nodes []api.MenuNode) {
		for _, node := range nodes {
			if _, dup := seen[node.Path]; dup {
				if log != nil {
					log.WithFields(logrus.Fields{
						"path": node.Path,
						"id":   node.ID,
					}).Warn("dropping menu node with duplicate path")
				}
			} else {
				seen[node.Path] = struct{}{}
				flat = append(flat, node)
			}
			if len(node.Children) > 0 {
				walk(node.Children)
			}
		}
	}
	walk(tree)
	return flat
}

// FindByPath returns the first node in the tree whose path matches, or nil.
func FindByPath(tree []api.MenuNode, path string) *api.MenuNode {
	for i := range tree {
		if tree[i].Path == path {
			node := tree[i]
			return &node
		}
		if found := FindByPath(tree[i].Children, path); found != nil {
			return found
		}
	}
	return nil
}
