package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/ini.v1"
)

const (
	DefaultPath        = "config.ini"
	DefaultAuthURL     = "https://www.strava.com/oauth/authorize"
	DefaultTokenURL    = "https://www.strava.com/oauth/token"
	DefaultAPIURL      = "https://www.strava.com/api/v3"
	DefaultPasswordEnv = "STRAVA_PASSWORD"
)

type Config struct {
	Path string

	API     APIInfo
	Login   LoginInfo
	Tokens  Tokens
	Browser BrowserConfig
	Export  ExportConfig
	Log     LogConfig
}

type APIInfo struct {
	ClientID     int
	ClientSecret string
	RedirectURI  string
	Scope        string
	AuthURL      string
	TokenURL     string
	APIURL       string
}

type LoginInfo struct {
	Username    string
	PasswordEnv string
}

type Tokens struct {
	AccessToken  string
	RefreshToken string
	TokenType    string
	ExpiresAt    time.Time
}

type BrowserConfig struct {
	Bin        string
	Headless   bool
	ControlURL string
	Timeout    time.Duration
}

type ExportConfig struct {
	DataDir           string
	Workbook          string
	SpreadsheetID     string
	GoogleCredentials string
	GoogleToken       string
	GoogleRedirectURL string
}

type LogConfig struct {
	File       string
	Level      string
	MaxSizeMB  int
	MaxBackups int
}

// Load reads the INI file at path, applies a local .env file and STRAVA_*
// environment overrides, and validates the API section.
func Load(path string) (*Config, error) {
	if path == "" {
		path = getEnv("STRAVA_CONFIG", DefaultPath)
	}

	// .env is optional
	_ = godotenv.Load()

	if info, err := os.Stat(path); err != nil || info.IsDir() {
		return nil, fmt.Errorf("failed to read config file %s", path)
	}

	file, err := ini.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	cfg, err := fromFile(file)
	if err != nil {
		return nil, err
	}
	cfg.Path = path

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func fromFile(file *ini.File) (*Config, error) {
	api := file.Section("ApiInfo")
	login := file.Section("Login")
	tokens := file.Section("Tokens")
	browser := file.Section("Browser")
	export := file.Section("Export")
	logSec := file.Section("Log")

	cfg := &Config{
		API: APIInfo{
			ClientSecret: value(api, "client_secret", ""),
			RedirectURI:  value(api, "redirect_uri", ""),
			Scope:        value(api, "scope", ""),
			AuthURL:      value(api, "auth_url", DefaultAuthURL),
			TokenURL:     value(api, "token_url", DefaultTokenURL),
			APIURL:       value(api, "api_url", DefaultAPIURL),
		},
		Login: LoginInfo{
			Username:    value(login, "username", ""),
			PasswordEnv: value(login, "password_env", DefaultPasswordEnv),
		},
		Tokens: Tokens{
			AccessToken:  value(tokens, "access_token", ""),
			RefreshToken: value(tokens, "refresh_token", ""),
			TokenType:    value(tokens, "token_type", ""),
		},
		Browser: BrowserConfig{
			Bin:        value(browser, "bin", ""),
			ControlURL: value(browser, "control_url", ""),
			Headless:   true,
			Timeout:    60 * time.Second,
		},
		Export: ExportConfig{
			DataDir:           value(export, "data_dir", ".local"),
			Workbook:          value(export, "workbook", "strava.xlsx"),
			SpreadsheetID:     value(export, "spreadsheet_id", ""),
			GoogleCredentials: value(export, "google_credentials", ".local/credentials.json"),
			GoogleToken:       value(export, "google_token", ".local/token.json"),
			GoogleRedirectURL: value(export, "google_redirect_url", "http://localhost:8080/callback"),
		},
		Log: LogConfig{
			File:       value(logSec, "file", "strava.log"),
			Level:      value(logSec, "level", "debug"),
			MaxSizeMB:  1,
			MaxBackups: 5,
		},
	}

	if raw := value(api, "client_id", ""); raw != "" {
		id, err := strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("empty client_id: %q is not a number", raw)
		}
		cfg.API.ClientID = id
	}

	if raw := value(tokens, "expires_at", ""); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return nil, fmt.Errorf("invalid expires_at %q: %w", raw, err)
		}
		cfg.Tokens.ExpiresAt = t
	}

	if raw := value(browser, "headless", ""); raw != "" {
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid headless %q: %w", raw, err)
		}
		cfg.Browser.Headless = b
	}
	if raw := value(browser, "timeout", ""); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid browser timeout %q: %w", raw, err)
		}
		cfg.Browser.Timeout = d
	}

	if raw := value(logSec, "max_size_mb", ""); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid max_size_mb %q: %w", raw, err)
		}
		cfg.Log.MaxSizeMB = n
	}
	if raw := value(logSec, "max_backups", ""); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid max_backups %q: %w", raw, err)
		}
		cfg.Log.MaxBackups = n
	}

	return cfg, nil
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("STRAVA_CLIENT_ID"); v != "" {
		if id, err := strconv.Atoi(unquote(v)); err == nil {
			c.API.ClientID = id
		}
	}
	c.API.ClientSecret = getEnv("STRAVA_CLIENT_SECRET", c.API.ClientSecret)
	c.API.RedirectURI = getEnv("STRAVA_REDIRECT_URI", c.API.RedirectURI)
	c.API.Scope = getEnv("STRAVA_SCOPE", c.API.Scope)
	c.Login.Username = getEnv("STRAVA_USERNAME", c.Login.Username)
	c.Tokens.RefreshToken = getEnv("STRAVA_REFRESH_TOKEN", c.Tokens.RefreshToken)
	c.Export.SpreadsheetID = getEnv("STRAVA_SPREADSHEET_ID", c.Export.SpreadsheetID)
}

// Validate checks the fields every command needs.
func (c *Config) Validate() error {
	if c.API.ClientID == 0 {
		return errors.New("empty client_id")
	}
	if c.API.ClientSecret == "" {
		return errors.New("empty client_secret")
	}
	if c.API.RedirectURI == "" {
		return errors.New("empty redirect_uri")
	}
	if c.API.Scope == "" {
		return errors.New("empty scope")
	}
	return nil
}

// Password resolves the login password from the environment variable named
// by password_env. It returns "" when the variable is unset.
func (c *Config) Password() string {
	name := c.Login.PasswordEnv
	if name == "" {
		name = DefaultPasswordEnv
	}
	return unquote(os.Getenv(name))
}

// HasLogin reports whether a username and an environment password are both
// configured.
func (c *Config) HasLogin() bool {
	return c.Login.Username != "" && c.Password() != ""
}

func value(sec *ini.Section, key, def string) string {
	if !sec.HasKey(key) {
		return def
	}
	v := unquote(sec.Key(key).String())
	if v == "" {
		return def
	}
	return v
}

// unquote strips every single and double quote, matching how existing
// config files were written.
func unquote(s string) string {
	s = strings.TrimSpace(s)
	s = strings.ReplaceAll(s, `"`, "")
	return strings.ReplaceAll(s, `'`, "")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return unquote(value)
	}
	return defaultValue
}
