package cli

import (
	"context"
	"flag"
	"fmt"
	"strings"
)

func newLoginCommand() *Command {
	cmd := &Command{
		Name:        "login",
		Description: "Authenticate and persist the session",
		Flags:       flag.NewFlagSet("login", flag.ExitOnError),
		Run:         runLogin,
	}

	cmd.Flags.String("identifier", "", "Username or email")
	cmd.Flags.String("password", "", "Password")

	return cmd
}

func runLogin(args []string) error {
	cmd := newLoginCommand()
	if err := cmd.Flags.Parse(args); err != nil {
		return err
	}

	identifier := cmd.Flags.Lookup("identifier").Value.String()
	password := cmd.Flags.Lookup("password").Value.String()
	if identifier == "" || password == "" {
		return fmt.Errorf("both --identifier and --password are required")
	}

	ctx := context.Background()
	cl, err := newClient(ctx)
	if err != nil {
		return err
	}

	ok, msg := cl.Login(ctx, identifier, password)
	if !ok {
		return fmt.Errorf("login failed: %s", msg)
	}

	user := cl.Session().User()
	fmt.Printf("Signed in as %s\n", user.DisplayName())
	if roles := cl.Session().Snapshot().Roles; len(roles) > 0 {
		fmt.Printf("Roles: %s\n", strings.Join(roles, ", "))
	}
	return nil
}

func newLogoutCommand() *Command {
	cmd := &Command{
		Name:        "logout",
		Description: "End the session",
		Flags:       flag.NewFlagSet("logout", flag.ExitOnError),
		Run:         runLogout,
	}
	return cmd
}

func runLogout(args []string) error {
	cmd := newLogoutCommand()
	if err := cmd.Flags.Parse(args); err != nil {
		return err
	}

	ctx := context.Background()
	cl, err := newClient(ctx)
	if err != nil {
		return err
	}

	cl.Logout(ctx, false)
	fmt.Println("Signed out")
	return nil
}

func newWhoamiCommand() *Command {
	cmd := &Command{
		Name:        "whoami",
		Description: "Show the current identity, roles, and permissions",
		Flags:       flag.NewFlagSet("whoami", flag.ExitOnError),
		Run:         runWhoami,
	}
	return cmd
}

func runWhoami(args []string) error {
	cmd := newWhoamiCommand()
	if err := cmd.Flags.Parse(args); err != nil {
		return err
	}

	ctx := context.Background()
	cl, err := newClient(ctx)
	if err != nil {
		return err
	}

	snap := cl.Session().Snapshot()
	if !snap.IsAuthenticated || snap.User == nil {
		return fmt.Errorf("not signed in; run `tablero login`")
	}

	fmt.Printf("User:        %s (%s)\n", snap.User.DisplayName(), snap.User.Email)
	fmt.Printf("Roles:       %s\n", strings.Join(snap.Roles, ", "))
	fmt.Printf("Permissions: %s\n", strings.Join(snap.Permissions, ", "))
	return nil
}
