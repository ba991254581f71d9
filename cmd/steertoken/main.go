// Command steertoken mints a camera steering token for a raygrid host started
// with RAYGRID_STEERING_SECRET.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"raygrid/internal/auth"
)

func main() {
	subject := flag.String("subject", "", "who the token is for")
	ttl := flag.Duration("ttl", time.Hour, "token lifetime")
	flag.Parse()

	if err := run(os.Stdout, os.Getenv("RAYGRID_STEERING_SECRET"), *subject, *ttl); err != nil {
		fmt.Fprintf(os.Stderr, "steertoken: %v\n", err)
		os.Exit(1)
	}
}

func run(out io.Writer, secret, subject string, ttl time.Duration) error {
	tokens, err := auth.NewSteeringTokens(secret, 0)
	if err != nil {
		return err
	}
	token, err := tokens.Issue(subject, ttl)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, token)
	return err
}
