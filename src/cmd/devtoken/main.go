package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/ce-fello/barter-service/src/internal/auth"
	"github.com/ce-fello/barter-service/src/internal/config"
)

func main() {
	userID := flag.String("user", "alice", "user id placed in the token subject")
	ttl := flag.Duration("ttl", 24*time.Hour, "token lifetime")
	outputJSON := flag.Bool("json", false, "output as JSON")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	if cfg.JWTSecret == "" {
		fmt.Fprintln(os.Stderr, "JWT_SECRET is not set")
		os.Exit(1)
	}

	token, err := auth.NewTokenService(cfg.JWTSecret).Issue(*userID, *ttl)
	if err != nil {
		fmt.Fprintf(os.Stderr, "sign token: %v\n", err)
		os.Exit(1)
	}

	if *outputJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(map[string]any{
			"access_token": token,
			"token_type":   "Bearer",
			"expires_in":   int(ttl.Seconds()),
			"user_id":      *userID,
		})
		return
	}
	fmt.Println(token)
}
