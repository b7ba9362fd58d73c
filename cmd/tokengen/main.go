// Command tokengen prints a signed bearer token for local testing of the
// office hours API.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/pflag"

	"github.com/spec-kit/office-hours/internal/auth"
	"github.com/spec-kit/office-hours/internal/config"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "tokengen: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	var (
		userID int64
		name   string
		ttl    int
	)
	flagSet := pflag.NewFlagSet("tokengen", pflag.ContinueOnError)
	flagSet.Int64Var(&userID, "user", 0, "numeric user id placed in the token subject")
	flagSet.StringVar(&name, "name", "", "optional display name claim")
	flagSet.IntVar(&ttl, "ttl", 0, "token lifetime in minutes (default: AUTH_ACCESS_TOKEN_TTL_MINUTES)")
	flagSet.BoolP("help", "h", false, "show help")

	if err := flagSet.Parse(args); err != nil {
		if err == pflag.ErrHelp {
			printHelp(flagSet)
			return nil
		}
		return err
	}
	if help, _ := flagSet.GetBool("help"); help {
		printHelp(flagSet)
		return nil
	}
	if userID <= 0 {
		return fmt.Errorf("--user is required")
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if ttl <= 0 {
		ttl = cfg.Auth.AccessTokenTTLMinutes
	}

	token, expiresAt, err := auth.NewTokenManager(cfg.Auth.JWTSecret, ttl).GenerateToken(userID, name)
	if err != nil {
		return err
	}
	fmt.Println(token)
	fmt.Fprintf(os.Stderr, "expires %s\n", expiresAt.Format(time.RFC3339))
	return nil
}

func printHelp(flagSet *pflag.FlagSet) {
	fmt.Fprintf(os.Stderr, "Usage: tokengen --user ID [--ttl MINUTES] [--name NAME]\n\n")
	flagSet.PrintDefaults()
}
