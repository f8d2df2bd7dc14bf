// Command comlabctl performs one-off administrative tasks against the
// service's database.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"

	"comlab-status-backend/config"
	"comlab-status-backend/internal/app"
	"comlab-status-backend/internal/auth"
	"comlab-status-backend/internal/logging"
)

const usage = `usage: comlabctl [-config path] <command> [flags]

commands:
  token      -subject s [-role admin|instructor] [-ttl d]   print a signed bearer token
  init-labs  [-count n]                                     create labs 1..n if none exist
  reset-lab  -lab n                                         mark a lab available
`

var errUsage = errors.New("invalid usage")

func main() {
	if err := run(context.Background(), os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if !errors.Is(err, errUsage) {
			fmt.Fprintln(os.Stderr, "comlabctl:", err)
		}
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	global := flag.NewFlagSet("comlabctl", flag.ContinueOnError)
	global.SetOutput(stderr)
	global.Usage = func() { fmt.Fprint(stderr, usage) }
	configPath := global.String("config", envOr("CONFIG_PATH", "./config/config.yaml"), "configuration file")
	if err := global.Parse(args); err != nil {
		return errUsage
	}
	if global.NArg() == 0 {
		global.Usage()
		return errUsage
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("load configuration from %s: %w", *configPath, err)
	}
	logger := logging.NewWithWriter(cfg.Log, stderr)

	cmd, rest := global.Arg(0), global.Args()[1:]
	switch cmd {
	case "token":
		return runToken(cfg, rest, stdout, stderr)
	case "init-labs":
		return withApp(ctx, cfg, logger, func(a *app.App) error {
			return runInitLabs(ctx, a, rest, stdout, stderr)
		})
	case "reset-lab":
		return withApp(ctx, cfg, logger, func(a *app.App) error {
			return runResetLab(ctx, a, rest, stdout, stderr)
		})
	default:
		fmt.Fprintf(stderr, "unknown command %q\n", cmd)
		global.Usage()
		return errUsage
	}
}

func withApp(ctx context.Context, cfg *config.Config, log zerolog.Logger, fn func(*app.App) error) error {
	a, err := app.Build(ctx, cfg, log, app.Options{})
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a)
}

func runToken(cfg *config.Config, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("token", flag.ContinueOnError)
	fs.SetOutput(stderr)
	subject := fs.String("subject", "", "token subject, usually an email")
	role := fs.String("role", auth.RoleAdmin, "admin or instructor")
	ttl := fs.Duration("ttl", cfg.Auth.TokenTTL(), "token lifetime")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	if *subject == "" {
		fmt.Fprintln(stderr, "token: -subject is required")
		return errUsage
	}
	if *role != auth.RoleAdmin && *role != auth.RoleInstructor {
		fmt.Fprintf(stderr, "token: unknown role %q\n", *role)
		return errUsage
	}

	token, exp, err := auth.Issue(*subject, *role, cfg.Auth.Issuer, cfg.Auth.SigningKey, *ttl)
	if err != nil {
		return fmt.Errorf("sign token: %w", err)
	}
	fmt.Fprintln(stdout, token)
	fmt.Fprintf(stderr, "expires %s\n", exp.Format(time.RFC3339))
	return nil
}

func runInitLabs(ctx context.Context, a *app.App, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("init-labs", flag.ContinueOnError)
	fs.SetOutput(stderr)
	count := fs.Int("count", a.Config.Labs.Count, "number of labs")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}

	labs, err := a.Registry.Initialize(ctx, *count)
	if err != nil {
		return err
	}
	for _, lab := range labs {
		fmt.Fprintf(stdout, "%s\t%s\t%s\n", lab.LabNumber, lab.LabName, lab.Status)
	}
	return nil
}

func runResetLab(ctx context.Context, a *app.App, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("reset-lab", flag.ContinueOnError)
	fs.SetOutput(stderr)
	labNumber := fs.String("lab", "", "lab number")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	if *labNumber == "" {
		fmt.Fprintln(stderr, "reset-lab: -lab is required")
		return errUsage
	}

	lab, err := a.Registry.Release(ctx, *labNumber)
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "lab %s is %s\n", lab.LabNumber, lab.Status)
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
