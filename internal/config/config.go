package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/DoyleJ11/live-poll/internal/auth"
)

const (
	DefaultPort          = 3002
	DefaultAdminPassword = "abc"
)

type Config struct {
	Addr              string
	AdminPassword     string
	AdminPasswordHash string
	SessionTTL        time.Duration
	CatalogPath       string
	ArchiveDSN        string
	StaticDir         string
	WSOrigins         []string
	LogLevel          string
	Dev               bool
}

// UsesDefaultPassword reports whether the admin password was left at its default.
func (c Config) UsesDefaultPassword() bool {
	return c.AdminPasswordHash == "" && c.AdminPassword == DefaultAdminPassword
}

// Parse reads flags, falling back to the environment (and a .env file, if present).
func Parse(args []string) (Config, error) {
	// a missing .env is fine; variables may come from the real environment
	_ = godotenv.Load()

	var cfg Config
	fs := flag.NewFlagSet("live-poll", flag.ContinueOnError)

	fs.StringVar(&cfg.Addr, "addr", "", "Listen address (default :HTTP_PORT)")
	fs.StringVar(&cfg.AdminPassword, "admin-password", "", "Admin password (prefer env)")
	fs.StringVar(&cfg.AdminPasswordHash, "admin-password-hash", "", "bcrypt hash of the admin password")
	fs.DurationVar(&cfg.SessionTTL, "session-ttl", 0, "Admin session lifetime")
	fs.StringVar(&cfg.CatalogPath, "catalog", "", "Topic catalog YAML (default: embedded)")
	fs.StringVar(&cfg.ArchiveDSN, "archive-dsn", "", "Results archive DSN (postgres URL or sqlite path)")
	fs.StringVar(&cfg.StaticDir, "static", "", "Directory of static assets served at /")
	origins := fs.String("ws-origins", "", "Comma-separated extra origin host patterns accepted on /ws")
	fs.StringVar(&cfg.LogLevel, "log-level", "", "debug, info, warn or error")
	fs.BoolVar(&cfg.Dev, "dev", false, "Human-friendly console logs")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	if cfg.Addr == "" {
		cfg.Addr = os.Getenv("HTTP_ADDR")
	}
	if cfg.Addr == "" {
		port := DefaultPort
		if portStr := os.Getenv("HTTP_PORT"); portStr != "" {
			p, err := strconv.Atoi(portStr)
			if err != nil || p <= 0 || p > 65535 {
				return Config{}, errors.New("invalid HTTP_PORT env variable")
			}
			port = p
		}
		cfg.Addr = ":" + strconv.Itoa(port)
	}

	if cfg.AdminPassword == "" {
		cfg.AdminPassword = os.Getenv("ADMIN_PASSWORD")
	}
	if cfg.AdminPasswordHash == "" {
		cfg.AdminPasswordHash = os.Getenv("ADMIN_PASSWORD_HASH")
	}
	if cfg.AdminPassword == "" && cfg.AdminPasswordHash == "" {
		cfg.AdminPassword = DefaultAdminPassword
	}

	var err error
	if cfg.SessionTTL, err = durationOr(cfg.SessionTTL, "SESSION_TTL", auth.DefaultSessionTTL); err != nil {
		return Config{}, err
	}

	if cfg.CatalogPath == "" {
		cfg.CatalogPath = os.Getenv("CATALOG_PATH")
	}
	if cfg.ArchiveDSN == "" {
		cfg.ArchiveDSN = os.Getenv("ARCHIVE_DSN")
	}
	if cfg.StaticDir == "" {
		cfg.StaticDir = os.Getenv("STATIC_DIR")
	}
	if *origins == "" {
		*origins = os.Getenv("WS_ORIGINS")
	}
	cfg.WSOrigins = splitList(*origins)
	if cfg.LogLevel == "" {
		cfg.LogLevel = os.Getenv("LOG_LEVEL")
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if !cfg.Dev {
		if v := os.Getenv("DEV"); v != "" {
			dev, err := strconv.ParseBool(v)
			if err != nil {
				return Config{}, fmt.Errorf("invalid DEV env variable: %w", err)
			}
			cfg.Dev = dev
		}
	}

	return cfg, nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func durationOr(flagVal time.Duration, env string, def time.Duration) (time.Duration, error) {
	if flagVal < 0 {
		return 0, fmt.Errorf("negative duration for %s", env)
	}
	if flagVal > 0 {
		return flagVal, nil
	}
	v := os.Getenv(env)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s env variable %q", env, v)
	}
	return d, nil
}
