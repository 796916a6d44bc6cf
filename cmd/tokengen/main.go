// Package main mints admin bearer tokens for the badge service's issue,
// revoke and reinstate endpoints.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	jwttoken "openbadges/internal/jwt_token"
	pstrings "openbadges/pkg/platform/strings"
	"openbadges/pkg/platform/validation"

	"github.com/joho/godotenv"
)

const (
	defaultIssuer   = "openbadges-admin"
	defaultAudience = "openbadges"
	defaultTTL      = 15 * time.Minute
)

type tokenOutput struct {
	Token     string   `json:"token"`
	Actor     string   `json:"actor"`
	Scopes    []string `json:"scopes"`
	ExpiresIn string   `json:"expires_in"`
}

func main() {
	_ = godotenv.Load() // optional .env, never overrides the environment

	fs := flag.NewFlagSet("tokengen", flag.ExitOnError)
	actor := fs.String("actor", "", "Actor recorded against status changes (required)")
	scopes := fs.String("scopes", jwttoken.ScopeIssue+","+jwttoken.ScopeStatusWrite, "Comma-separated scopes")
	ttl := fs.Duration("ttl", defaultTTL, "Token time-to-live")
	secret := fs.String("secret", os.Getenv("BADGE_ADMIN_JWT_SECRET"), "HS256 signing secret (defaults to BADGE_ADMIN_JWT_SECRET)")
	issuer := fs.String("issuer", envOr("BADGE_ADMIN_JWT_ISSUER", defaultIssuer), "Token issuer")
	audience := fs.String("audience", envOr("BADGE_ADMIN_JWT_AUDIENCE", defaultAudience), "Token audience")
	jsonOutput := fs.Bool("json", false, "Output as JSON")
	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, `tokengen - mint an admin token for the badge service

Usage:
  tokengen -actor registrar@example.edu [-scopes assertions:issue,status:write] [-ttl 1h] [-json]

Send the token as "Authorization: Bearer <token>".`)
		fs.PrintDefaults()
	}
	_ = fs.Parse(os.Args[1:])

	if *secret == "" {
		fail("signing secret required: set BADGE_ADMIN_JWT_SECRET or pass -secret")
	}
	scopeList := pstrings.SplitList(*scopes)
	if err := validation.CheckSliceCount("scopes", len(scopeList), validation.MaxScopes); err != nil {
		fail(err.Error())
	}
	if err := validation.CheckEachStringLength("scope", scopeList, validation.MaxScopeLength); err != nil {
		fail(err.Error())
	}

	svc := jwttoken.NewJWTService(*secret, *issuer, *audience, *ttl)
	token, err := svc.GenerateAdminToken(*actor, scopeList)
	if err != nil {
		fail(err.Error())
	}

	if *jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(tokenOutput{Token: token, Actor: *actor, Scopes: scopeList, ExpiresIn: ttl.String()})
		return
	}
	fmt.Printf("Actor:      %s\n", *actor)
	fmt.Printf("Scopes:     %s\n", strings.Join(scopeList, " "))
	fmt.Printf("Expires In: %s\n\n", *ttl)
	fmt.Println(token)
}

func envOr(name, fallback string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return fallback
}

func fail(msg string) {
	fmt.Fprintf(os.Stderr, "tokengen: %s\n", msg)
	os.Exit(1)
}
