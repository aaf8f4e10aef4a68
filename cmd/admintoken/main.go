// admintoken mints an admin JWT for the catalog setup endpoints, signed
// with JWT_SECRET from the environment or a .env file.
//
//	admintoken --subject ops --ttl 2h
package main

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"github.com/iliyamo/flashsale-booking/internal/utils"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func defaultTTL() time.Duration {
	if m, err := strconv.Atoi(os.Getenv("ADMIN_TOKEN_TTL_MIN")); err == nil && m > 0 {
		return time.Duration(m) * time.Minute
	}
	return time.Hour
}

func run(args []string) error {
	_ = godotenv.Load()

	var subject string
	var ttl time.Duration
	flags := pflag.NewFlagSet("admintoken", pflag.ContinueOnError)
	flags.StringVarP(&subject, "subject", "s", "admin", "subject recorded in the token")
	flags.DurationVar(&ttl, "ttl", defaultTTL(), "token lifetime (default from ADMIN_TOKEN_TTL_MIN)")
	if err := flags.Parse(args); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}

	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		return fmt.Errorf("JWT_SECRET is not set")
	}
	if ttl <= 0 {
		return fmt.Errorf("--ttl must be positive")
	}
	tok, err := utils.NewAdminToken(secret, subject, ttl)
	if err != nil {
		return err
	}
	fmt.Println(tok.Token)
	fmt.Fprintf(os.Stderr, "expires %s\n", tok.Exp.Format(time.RFC3339))
	return nil
}
