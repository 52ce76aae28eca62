package cli

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/tablerohq/tablero/pkg/client"
	"github.com/tablerohq/tablero/pkg/config"
)

// Command represents a CLI command.
type Command struct {
	Name        string
	Description string
	Run         func(args []string) error
	Subcommands map[string]*Command
	Flags       *flag.FlagSet
}

// NewRootCommand creates the root command.
func NewRootCommand() *Command {
	root := &Command{
		Name:        "tablero",
		Description: "Tablero - admin platform CLI",
		Subcommands: make(map[string]*Command),
		Flags:       flag.NewFlagSet("tablero", flag.ExitOnError),
	}

	root.Subcommands["login"] = newLoginCommand()
	root.Subcommands["logout"] = newLogoutCommand()
	root.Subcommands["whoami"] = newWhoamiCommand()
	root.Subcommands["users"] = newUsersCommand()
	root.Subcommands["user-toggle"] = newUserToggleCommand()
	root.Subcommands["menus"] = newMenusCommand()
	root.Subcommands["menu-delete"] = newMenuDeleteCommand()
	root.Subcommands["session"] = newSessionCommand()

	return root
}

// Execute runs the command.
func (c *Command) Execute() error {
	args := os.Args[1:]
	if len(args) == 0 {
		return c.usage()
	}

	if args[0] == "-h" || args[0] == "--help" {
		return c.usage()
	}

	if subcmd, ok := c.Subcommands[args[0]]; ok {
		return subcmd.Run(args[1:])
	}

	return fmt.Errorf("unknown command: %s", args[0])
}

// usage prints the command usage.
func (c *Command) usage() error {
	fmt.Printf("Usage: %s <command> [args]\n\n", c.Name)
	fmt.Printf("Commands:\n")
	for name, cmd := range c.Subcommands {
		fmt.Printf("  %-15s %s\n", name, cmd.Description)
	}
	return nil
}

// newClient builds a client from the environment and restores any
// persisted session.
func newClient(ctx context.Context) (*client.Client, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	cl, err := client.New(cfg, client.WithSessionExpiredHandler(func() {
		fmt.Fprintln(os.Stderr, "session expired; run `tablero login` to sign in again")
	}))
	if err != nil {
		return nil, err
	}
	if err := cl.Restore(ctx); err != nil {
		return nil, err
	}
	return cl, nil
}
