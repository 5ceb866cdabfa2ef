package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"qugate/crypto"
	"qugate/rpc"
)

var tokenSecret = func() string { return os.Getenv("QUGATE_RPC_JWT_SECRET") }

func runIdentityCommand(args []string, stdout, stderr io.Writer) int {
	if len(args) < 1 || args[0] != "derive" {
		fmt.Fprintln(stderr, "Usage: qugate-cli id derive <seed>")
		return 1
	}
	if len(args) != 2 {
		fmt.Fprintln(stderr, "Error: exactly one seed is required")
		return 1
	}
	id, err := crypto.IdentityFromSeed(args[1])
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	fmt.Fprintf(stdout, "identity: %s\nhex:      %s\n", id, id.Hex())
	return 0
}

func runTokenCommand(args []string, stdout, stderr io.Writer) int {
	if len(args) < 1 || args[0] != "issue" {
		fmt.Fprintln(stderr, "Usage: qugate-cli token issue --subject ID [--role admin] [--ttl 1h]")
		return 1
	}
	fs := flag.NewFlagSet("token issue", flag.ContinueOnError)
	fs.SetOutput(stderr)
	subject := fs.String("subject", "", "caller identity (bech32 or hex)")
	seed := fs.String("seed", "", "derive the subject from this seed instead")
	role := fs.String("role", "", "token role; \"admin\" unlocks epoch end")
	ttl := fs.Duration("ttl", time.Hour, "token lifetime; 0 for no expiry")
	if err := fs.Parse(args[1:]); err != nil {
		return 1
	}

	var id crypto.Identity
	var err error
	switch {
	case strings.TrimSpace(*seed) != "":
		id, err = crypto.IdentityFromSeed(*seed)
	case strings.TrimSpace(*subject) != "":
		id, err = crypto.ParseIdentity(*subject)
	default:
		fmt.Fprintln(stderr, "Error: --subject or --seed is required")
		return 1
	}
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	secret := strings.TrimSpace(tokenSecret())
	if secret == "" {
		fmt.Fprintln(stderr, "Error: QUGATE_RPC_JWT_SECRET is not set")
		return 1
	}
	token, err := rpc.IssueToken(secret, id.String(), strings.TrimSpace(*role), *ttl)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	fmt.Fprintln(stdout, token)
	return 0
}
