package cli

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/tablerohq/tablero/pkg/api"
)

func newMenusCommand() *Command {
	cmd := &Command{
		Name:        "menus",
		Description: "Print the menu tree",
		Flags:       flag.NewFlagSet("menus", flag.ExitOnError),
		Run:         runMenus,
	}
	return cmd
}

func runMenus(args []string) error {
	cmd := newMenusCommand()
	if err := cmd.Flags.Parse(args); err != nil {
		return err
	}

	ctx := context.Background()
	cl, err := newClient(ctx)
	if err != nil {
		return err
	}

	tree, err := cl.MenuTree(ctx)
	if err != nil {
		return fmt.Errorf("fetch menu tree: %w", err)
	}

	printMenuLevel(tree, 0)
	return nil
}

func printMenuLevel(nodes []api.MenuNode, depth int) {
	indent := strings.Repeat("  ", depth)
	for _, node := range nodes {
		gate := ""
		if node.Permission != nil && *node.Permission != "" {
			gate = fmt.Sprintf("  [%s]", *node.Permission)
		}
		fmt.Printf("%s%s (%s)%s\n", indent, node.Name, node.Path, gate)
		printMenuLevel(node.Children, depth+1)
	}
}

func newMenuDeleteCommand() *Command {
	cmd := &Command{
		Name:        "menu-delete",
		Description: "Remove a menu entry",
		Flags:       flag.NewFlagSet("menu-delete", flag.ExitOnError),
		Run:         runMenuDelete,
	}

	cmd.Flags.Int64("id", 0, "Menu id")

	return cmd
}

func runMenuDelete(args []string) error {
	cmd := newMenuDeleteCommand()
	if err := cmd.Flags.Parse(args); err != nil {
		return err
	}

	id, err := strconv.ParseInt(cmd.Flags.Lookup("id").Value.String(), 10, 64)
	if err != nil || id == 0 {
		return fmt.Errorf("a valid --id is required")
	}

	ctx := context.Background()
	cl, err := newClient(ctx)
	if err != nil {
		return err
	}

	if err := cl.DeleteMenu(ctx, id); err != nil {
		return fmt.Errorf("delete menu: %w", err)
	}
	fmt.Printf("Menu %d deleted\n", id)
	return nil
}

func newSessionCommand() *Command {
	cmd := &Command{
		Name:        "session",
		Description: "Dump the locally persisted session state",
		Flags:       flag.NewFlagSet("session", flag.ExitOnError),
		Run:         runSession,
	}
	return cmd
}

func runSession(args []string) error {
	cmd := newSessionCommand()
	if err := cmd.Flags.Parse(args); err != nil {
		return err
	}

	ctx := context.Background()
	cl, err := newClient(ctx)
	if err != nil {
		return err
	}

	snap := cl.Session().Snapshot()
	out := map[string]interface{}{
		"isAuthenticated": snap.IsAuthenticated,
		"user":            snap.User,
		"roles":           snap.Roles,
		"permissions":     snap.Permissions,
		"menusLoaded":     cl.Menus().Loaded(),
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
