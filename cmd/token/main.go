// Package main issues a bearer token for the broker's guarded endpoints.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/aura-webinar/adbroker/config"
	"github.com/aura-webinar/adbroker/internal/auth"
)

func main() {
	role := flag.String("role", auth.RoleAdmin, "role claim")
	subject := flag.String("subject", "ops", "subject claim")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "load config:", err)
		os.Exit(1)
	}
	if !cfg.JWT.Enabled() {
		fmt.Fprintln(os.Stderr, "JWT_SECRET is not set")
		os.Exit(1)
	}
	token, err := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.ExpireHours).Generate(*subject, *role)
	if err != nil {
		fmt.Fprintln(os.Stderr, "sign token:", err)
		os.Exit(1)
	}
	fmt.Println(token)
}
