package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/ini.v1"
)

// SaveTokens writes the token pair into the [Tokens] section of the config
// file at path, keeping every other section as it was.
func SaveTokens(path string, tok Tokens) error {
	file, err := ini.Load(path)
	if err != nil {
		return fmt.Errorf("failed to load config for update: %w", err)
	}

	sec := file.Section("Tokens")
	sec.Key("access_token").SetValue(tok.AccessToken)
	sec.Key("refresh_token").SetValue(tok.RefreshToken)
	sec.Key("token_type").SetValue(tok.TokenType)
	if tok.ExpiresAt.IsZero() {
		sec.DeleteKey("expires_at")
	} else {
		sec.Key("expires_at").SetValue(tok.ExpiresAt.UTC().Format(time.RFC3339))
	}

	var buf bytes.Buffer
	if _, err := file.WriteTo(&buf); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	mode := os.FileMode(0600)
	if info, err := os.Stat(path); err == nil {
		mode = info.Mode().Perm()
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".config-*.ini")
	if err != nil {
		return fmt.Errorf("failed to create temp config: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write temp config: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp config: %w", err)
	}
	if err := os.Chmod(tmp.Name(), mode); err != nil {
		return fmt.Errorf("failed to set config permissions: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to replace config: %w", err)
	}

	return nil
}

// HasTokens reports whether a refresh token is available.
func (t Tokens) HasTokens() bool {
	return t.RefreshToken != ""
}
