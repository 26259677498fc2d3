// Package config loads the process environment into a typed struct, the way
// main.go in the teacher repo reads os.Getenv directly but centralized so
// every consumer (cmd/server's wiring, httpapi) shares one source of truth.
package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config is the process configuration, sourced entirely from environment
// variables per spec.md §6's "Configuration (process env)" list.
type Config struct {
	DatabaseURL string
	ServerAddr  string

	JWTSecret string

	OAuthProviders map[string]OAuthProvider

	CORSOrigins []string

	LogStacktrace bool
	LogJSON       bool

	KickPlayerAfterSeconds int
	HeartbeatTimeout        time.Duration
	DisconnectTimeout       time.Duration

	SelfURL      string
	FrontendURL  string

	EnableTestLogin bool
}

// OAuthProvider holds the client credentials for one external OAuth provider.
// Issuance itself is out of scope (spec.md §1); the core only needs to know
// which providers exist to validate the `provider` path parameter.
type OAuthProvider struct {
	ClientID     string
	ClientSecret string
}

// KickPlayerAfter returns the configured grace period as a time.Duration.
func (c Config) KickPlayerAfter() time.Duration {
	return time.Duration(c.KickPlayerAfterSeconds) * time.Second
}

// Load reads .env (if present, same as the teacher's godotenv.Load call) then
// the process environment, filling in defaults for anything unset.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file found, using environment variables")
	}

	cfg := Config{
		DatabaseURL:             getenv("DATABASE_URL", ""),
		ServerAddr:              getenv("SERVER_ADDR", ":8080"),
		JWTSecret:               getenv("JWT_SECRET", ""),
		CORSOrigins:             splitCSV(getenv("CORS_ORIGINS", "")),
		LogStacktrace:           getbool("LOG_STACKTRACE", false),
		LogJSON:                 getbool("LOG_JSON", true),
		KickPlayerAfterSeconds:  getint("KICK_PLAYER_AFTER_SECONDS", 30),
		HeartbeatTimeout:        time.Duration(getint("HEARTBEAT_TIMEOUT_SECONDS", 30)) * time.Second,
		DisconnectTimeout:       time.Duration(getint("DISCONNECT_TIMEOUT_SECONDS", 30)) * time.Second,
		SelfURL:                 getenv("SELF_URL", "http://localhost:8080"),
		FrontendURL:             getenv("FRONTEND_URL", "http://localhost:3000"),
		EnableTestLogin:         getbool("ENABLE_TEST_LOGIN", false),
	}

	if cfg.DatabaseURL == "" {
		return cfg, fmt.Errorf("DATABASE_URL is required")
	}

	cfg.OAuthProviders = map[string]OAuthProvider{}
	for _, name := range []string{"google", "github", "discord"} {
		id := os.Getenv(fmt.Sprintf("OAUTH_%s_CLIENT_ID", upper(name)))
		secret := os.Getenv(fmt.Sprintf("OAUTH_%s_CLIENT_SECRET", upper(name)))
		if id != "" || secret != "" {
			cfg.OAuthProviders[name] = OAuthProvider{ClientID: id, ClientSecret: secret}
		}
	}

	return cfg, nil
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getbool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func getint(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func splitCSV(v string) []string {
	if v == "" {
		return nil
	}
	var out []string
	start := 0
	for i := 0; i <= len(v); i++ {
		if i == len(v) || v[i] == ',' {
			if i > start {
				out = append(out, v[start:i])
			}
			start = i + 1
		}
	}
	return out
}

func upper(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'a' && c <= 'z' {
			b[i] = c - ('a' - 'A')
		}
	}
	return string(b)
}
