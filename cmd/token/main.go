package main

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/erp/qbconnector/internal/infrastructure/auth"
	"github.com/erp/qbconnector/internal/infrastructure/config"
	"github.com/joho/godotenv"
)

func main() {
	var (
		subject string
		users   string
		ttl     time.Duration
	)

	flag.StringVar(&subject, "subject", "", "Caller identity recorded in the token (required)")
	flag.StringVar(&users, "users", "", "Comma-separated usernames the token may submit for (default: any)")
	flag.DurationVar(&ttl, "ttl", 0, "Token lifetime (default: api.token_ttl)")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if ttl > 0 {
		cfg.API.TokenTTL = ttl
	}

	var allowed []string
	for _, u := range strings.Split(users, ",") {
		if u = strings.TrimSpace(u); u != "" {
			allowed = append(allowed, u)
		}
	}

	token, expiresAt, err := auth.NewJWTService(cfg.API).GenerateToken(subject, allowed...)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to generate token: %v\n", err)
		os.Exit(1)
	}

	fmt.Println(token)
	fmt.Fprintf(os.Stderr, "expires at %s\n", expiresAt.Format(time.RFC3339))
}
