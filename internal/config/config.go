// Package config loads service configuration. Environment variables are
// authoritative; an optional YAML file supplies server tuning defaults
// (port, HTTP timeouts) for local development.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v2"
)

// Redis database indexes. Sessions and autosave live in separate logical
// databases so the autosave listener only sees its own expiry events.
const (
	RedisSessionDB  = 1
	RedisCodeSaveDB = 10
)

type Config struct {
	Server ServerConfig

	// SSO
	SSOIntrospectURL string

	// Redis
	RedisURL        string
	SessionPrefix   string
	CodeSavePrefix  string
	TokenCookieName string
	LocalTokenTTL   time.Duration
	CodeSaveTTL     time.Duration

	// Judge
	JudgeServerToken string // optional env override; empty → read from sysoptions
	TestCaseDataPath string

	// Postgres
	DatabaseURL string
}

type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// Load reads the optional YAML file at path (ignored if missing), then
// overlays the authoritative environment variables. It fails on missing
// required settings so the process dies at startup, not mid-request.
func Load(path string) (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:         "8080",
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 60 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
	}

	if path != "" {
		if err := loadYAML(path, &cfg.Server); err != nil {
			return nil, err
		}
	}
	if port := os.Getenv("PORT"); port != "" {
		cfg.Server.Port = port
	}

	var err error
	cfg.SSOIntrospectURL = os.Getenv("SSO_INTROSPECT_URL")
	cfg.RedisURL = os.Getenv("REDIS_URL")
	cfg.SessionPrefix = os.Getenv("REDIS_SESSION_PREFIX")
	cfg.CodeSavePrefix = os.Getenv("REDIS_CODE_SAVE_PREFIX")
	cfg.TokenCookieName = os.Getenv("TOKEN_COOKIE_NAME")
	cfg.JudgeServerToken = os.Getenv("JUDGE_SERVER_TOKEN")
	cfg.TestCaseDataPath = os.Getenv("TEST_CASE_DATA_PATH")

	if cfg.LocalTokenTTL, err = envSeconds("LOCAL_TOKEN_TTL_SECONDS"); err != nil {
		return nil, err
	}
	if cfg.CodeSaveTTL, err = envSeconds("CODE_SAVE_TTL_SECONDS"); err != nil {
		return nil, err
	}

	cfg.DatabaseURL = databaseURL()

	return cfg, cfg.validate()
}

func (c *Config) validate() error {
	required := []struct{ name, value string }{
		{"SSO_INTROSPECT_URL", c.SSOIntrospectURL},
		{"REDIS_URL", c.RedisURL},
		{"REDIS_SESSION_PREFIX", c.SessionPrefix},
		{"REDIS_CODE_SAVE_PREFIX", c.CodeSavePrefix},
		{"TOKEN_COOKIE_NAME", c.TokenCookieName},
	}
	for _, r := range required {
		if r.value == "" {
			return fmt.Errorf("config: %s is required", r.name)
		}
	}
	if c.DatabaseURL == "" {
		return fmt.Errorf("config: DATABASE_URL or DB_{USER,PASSWORD,HOST,PORT,NAME} is required")
	}
	return nil
}

// databaseURL prefers DATABASE_URL and falls back to the split DB_* vars.
func databaseURL() string {
	if u := os.Getenv("DATABASE_URL"); u != "" {
		return u
	}
	user := os.Getenv("DB_USER")
	host := os.Getenv("DB_HOST")
	name := os.Getenv("DB_NAME")
	if user == "" || host == "" || name == "" {
		return ""
	}
	port := os.Getenv("DB_PORT")
	if port == "" {
		port = "5432"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
		url.QueryEscape(user), url.QueryEscape(os.Getenv("DB_PASSWORD")), host, port, name)
}

func envSeconds(name string) (time.Duration, error) {
	raw := os.Getenv(name)
	if raw == "" {
		return 0, fmt.Errorf("config: %s is required", name)
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("config: %s must be a positive integer, got %q", name, raw)
	}
	return time.Duration(n) * time.Second, nil
}

func loadYAML(path string, out *ServerConfig) error {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer f.Close()

	var file struct {
		Server struct {
			Port         string `yaml:"port"`
			ReadTimeout  int    `yaml:"read_timeout_seconds"`
			WriteTimeout int    `yaml:"write_timeout_seconds"`
			IdleTimeout  int    `yaml:"idle_timeout_seconds"`
		} `yaml:"server"`
	}
	if err := yaml.NewDecoder(f).Decode(&file); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	if file.Server.Port != "" {
		out.Port = file.Server.Port
	}
	if file.Server.ReadTimeout > 0 {
		out.ReadTimeout = time.Duration(file.Server.ReadTimeout) * time.Second
	}
	if file.Server.WriteTimeout > 0 {
		out.WriteTimeout = time.Duration(file.Server.WriteTimeout) * time.Second
	}
	if file.Server.IdleTimeout > 0 {
		out.IdleTimeout = time.Duration(file.Server.IdleTimeout) * time.Second
	}
	return nil
}
