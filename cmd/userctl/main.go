// Command userctl is the operator tool for identity maintenance: it resets
// passwords and revokes sessions directly against the configured store.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"golang.org/x/term"

	"vidtube/internal/auth"
	"vidtube/internal/config"
	"vidtube/internal/db"
	"vidtube/internal/session"
)

const usage = `usage: userctl [-config path] <command> [flags]

commands:
  revoke-sessions -username <name>   log the user out everywhere
  set-password    -username <name>   set a new password and revoke all sessions
  list-sessions   -username <name>   show the user's live sessions
`

// readPassword is a test seam for term.ReadPassword.
var readPassword = func() ([]byte, error) {
	return term.ReadPassword(int(os.Stdin.Fd()))
}

func main() {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	})))

	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "loading config: %v\n", err)
		os.Exit(1)
	}

	database, err := db.Open(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		fmt.Fprintf(os.Stderr, "opening database: %v\n", err)
		os.Exit(1)
	}
	defer database.Close()

	a := newApp(database, cfg, os.Stdout)
	if err := a.run(context.Background(), flag.Args()); err != nil {
		fmt.Fprintf(os.Stderr, "userctl: %v\n", err)
		database.Close()
		os.Exit(1)
	}
}

type app struct {
	users   *db.UserRepository
	manager *session.Manager
	out     io.Writer
}

func newApp(database *db.DB, cfg *config.Config, out io.Writer) *app {
	users := db.NewUserRepository(database)
	tokens := auth.NewTokenIssuer(
		cfg.Auth.AccessTokenSecret,
		cfg.Auth.RefreshTokenSecret,
		cfg.Auth.AccessTokenTTL,
		cfg.Auth.RefreshTokenTTL,
	)
	return &app{
		users:   users,
		manager: session.NewManager(users, db.NewSessionRepository(database), tokens),
		out:     out,
	}
}

func (a *app) run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errors.New("missing command")
	}

	command, rest := args[0], args[1:]
	fs := flag.NewFlagSet(command, flag.ContinueOnError)
	fs.SetOutput(a.out)
	username := fs.String("username", "", "username of the account")
	if err := fs.Parse(rest); err != nil {
		return err
	}
	if strings.TrimSpace(*username) == "" {
		return errors.New("-username is required")
	}

	user, err := a.users.FindByUsername(ctx, strings.ToLower(strings.TrimSpace(*username)))
	if errors.Is(err, db.ErrNotFound) {
		return fmt.Errorf("user %q does not exist", *username)
	}
	if err != nil {
		return fmt.Errorf("looking up user: %w", err)
	}

	switch command {
	case "revoke-sessions":
		count, err := a.manager.LogoutAll(ctx, user.ID)
		if err != nil {
			return err
		}
		fmt.Fprintf(a.out, "revoked %d session(s) for %s\n", count, user.Username)
		return nil

	case "set-password":
		password, err := a.promptNewPassword()
		if err != nil {
			return err
		}
		if err := a.manager.ResetPassword(ctx, user.ID, password); err != nil {
			return err
		}
		fmt.Fprintf(a.out, "password updated for %s; all sessions revoked\n", user.Username)
		return nil

	case "list-sessions":
		sessions, err := a.manager.ListSessions(ctx, user.ID, "")
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tCREATED\tEXPIRES\tIP\tUSER AGENT")
		for _, s := range sessions {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
				s.ID,
				s.CreatedAt.Format(time.RFC3339),
				s.ExpiresAt.Format(time.RFC3339),
				s.IPAddress,
				s.UserAgent,
			)
		}
		return tw.Flush()

	default:
		return fmt.Errorf("unknown command %q", command)
	}
}

func (a *app) promptNewPassword() (string, error) {
	fmt.Fprint(a.out, "New password: ")
	first, err := readPassword()
	fmt.Fprintln(a.out)
	if err != nil {
		return "", fmt.Errorf("reading password: %w", err)
	}

	fmt.Fprint(a.out, "Repeat password: ")
	second, err := readPassword()
	fmt.Fprintln(a.out)
	if err != nil {
		return "", fmt.Errorf("reading password: %w", err)
	}

	if string(first) != string(second) {
		return "", errors.New("passwords do not match")
	}
	if len(first) == 0 {
		return "", errors.New("password must not be empty")
	}
	return string(first), nil
}
