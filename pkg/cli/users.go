package cli

import (
	"context"
	"flag"
	"fmt"
	"strconv"
)

func newUsersCommand() *Command {
	cmd := &Command{
		Name:        "users",
		Description: "List users",
		Flags:       flag.NewFlagSet("users", flag.ExitOnError),
		Run:         runUsers,
	}
	return cmd
}

func runUsers(args []string) error {
	cmd := newUsersCommand()
	if err := cmd.Flags.Parse(args); err != nil {
		return err
	}

	ctx := context.Background()
	cl, err := newClient(ctx)
	if err != nil {
		return err
	}

	users, err := cl.ListUsers(ctx)
	if err != nil {
		return fmt.Errorf("list users: %w", err)
	}

	fmt.Printf("%-24s %-20s %-28s %s\n", "ID", "USERNAME", "EMAIL", "ACTIVE")
	for _, u := range users {
		fmt.Printf("%-24s %-20s %-28s %t\n", u.ID, u.Username, u.Email, u.IsActive)
	}
	return nil
}

func newUserToggleCommand() *Command {
	cmd := &Command{
		Name:        "user-toggle",
		Description: "Enable or disable an account",
		Flags:       flag.NewFlagSet("user-toggle", flag.ExitOnError),
		Run:         runUserToggle,
	}

	cmd.Flags.String("id", "", "User id")
	cmd.Flags.Bool("active", true, "Target active state")

	return cmd
}

func runUserToggle(args []string) error {
	cmd := newUserToggleCommand()
	if err := cmd.Flags.Parse(args); err != nil {
		return err
	}

	id := cmd.Flags.Lookup("id").Value.String()
	if id == "" {
		return fmt.Errorf("--id is required")
	}
	active, err := strconv.ParseBool(cmd.Flags.Lookup("active").Value.String())
	if err != nil {
		return fmt.Errorf("invalid --active value: %w", err)
	}

	ctx := context.Background()
	cl, err := newClient(ctx)
	if err != nil {
		return err
	}

	user, err := cl.ToggleUserActive(ctx, id, active)
	if err != nil {
		return fmt.Errorf("toggle user: %w", err)
	}

	fmt.Printf("User %s is now active=%t\n", user.Username, user.IsActive)
	return nil
}
