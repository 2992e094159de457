// Package main mints an admin token for the secret configured in
// HANGOUT_ADMIN_SECRET, for use as "Authorization: Bearer <token>".
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/Tyrowin/hangout/internal/auth"
	"github.com/Tyrowin/hangout/internal/server"
)

func main() {
	subject := flag.String("subject", "admin", "token subject recorded in server logs")
	ttl := flag.Duration("ttl", time.Hour, "token lifetime")
	flag.Parse()

	cfg, err := server.LoadConfigFromEnv()
	if err != nil {
		log.Fatalf("parse config: %v", err)
	}
	token, err := auth.IssueAdminToken(auth.AdminConfig{
		Secret: []byte(cfg.AdminSecret),
		Issuer: cfg.AdminIssuer,
	}, *subject, *ttl)
	if err != nil {
		log.Fatalf("issue admin token: %v", err)
	}
	fmt.Fprintln(os.Stdout, token)
}
