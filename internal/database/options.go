package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

// Option keys read by the core.
const (
	OptionLanguages        = "languages"
	OptionJudgeServerToken = "judge_server_token"
)

// SysOptions reads the options_sysoptions table, which stores JSON values
// keyed by name. The core only ever reads it.
type SysOptions struct {
	db *sql.DB
}

func NewSysOptions(db *sql.DB) *SysOptions {
	return &SysOptions{db: db}
}

// Value returns the raw JSON value for key, or nil when the row is absent.
func (o *SysOptions) Value(ctx context.Context, key string) (json.RawMessage, error) {
	var raw []byte
	err := o.db.QueryRowContext(ctx,
		`SELECT value FROM options_sysoptions WHERE key = $1`, key).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query sysoption %q: %w", key, err)
	}
	return raw, nil
}

// LanguageEntry is one element of the languages option: a display name plus
// an opaque judge-side config document.
type LanguageEntry struct {
	Name   string                 `json:"name"`
	Config map[string]interface{} `json:"config"`
}

// LanguageConfig looks up the config document for a language by name.
// Returns nil when the language is unknown.
func (o *SysOptions) LanguageConfig(ctx context.Context, language string) (map[string]interface{}, error) {
	raw, err := o.Value(ctx, OptionLanguages)
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, nil
	}

	var entries []LanguageEntry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("parse languages option: %w", err)
	}
	for _, e := range entries {
		if e.Name == language {
			return e.Config, nil
		}
	}
	return nil, nil
}

// JudgeServerToken returns the raw judge token. The environment override
// wins over the database option; this precedence is load-bearing and must
// not change. Empty string means the service is misconfigured.
func (o *SysOptions) JudgeServerToken(ctx context.Context) (string, error) {
	if token := os.Getenv("JUDGE_SERVER_TOKEN"); token != "" {
		return token, nil
	}
	raw, err := o.Value(ctx, OptionJudgeServerToken)
	if err != nil {
		return "", err
	}
	if raw == nil {
		return "", nil
	}
	var token string
	if err := json.Unmarshal(raw, &token); err != nil {
		// Some deployments store the token unquoted.
		return string(raw), nil
	}
	return token, nil
}
