package config

import (
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// ResolvePassword returns the configured password, prompting without echo
// on an interactive terminal when the environment has none. An empty result
// with a nil error means no password is available.
func (c *Config) ResolvePassword(prompt io.Writer) (string, error) {
	if pw := c.Password(); pw != "" {
		return pw, nil
	}
	if c.Login.Username == "" {
		return "", nil
	}

	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", nil
	}

	fmt.Fprintf(prompt, "Strava password for %s: ", c.Login.Username)
	b, err := term.ReadPassword(fd)
	fmt.Fprintln(prompt)
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return strings.TrimSpace(string(b)), nil
}
