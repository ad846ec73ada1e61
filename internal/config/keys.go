package config

import (
	"net/url"
	"os"
)

// SecretSource represents where a secret comes from.
type SecretSource string

const (
	SourceEnv    SecretSource = "env"
	SourceConfig SecretSource = "config"
	SourceNone   SecretSource = "none"
)

// SecretStatus represents the status of a configured credential.
type SecretStatus struct {
	Name   string       `json:"name"`
	Source SecretSource `json:"source"`
	IsSet  bool         `json:"is_set"`
	Masked string       `json:"masked,omitempty"` // e.g., "pas...ord"
}

// CheckSecrets returns the status of the storage credentials.
func CheckSecrets(cfg *Config) []SecretStatus {
	return []SecretStatus{
		checkSecret("Redis password", cfg.Storage.Redis.Password, "MACROCAL_STORAGE_REDIS_PASSWORD"),
		checkSecret("Postgres DSN", cfg.Storage.Postgres.DSN, "MACROCAL_STORAGE_POSTGRES_DSN"),
	}
}

// Redacted returns a copy of cfg that is safe to print.
func Redacted(cfg *Config) Config {
	out := *cfg
	if out.Storage.Redis.Password != "" {
		out.Storage.Redis.Password = maskKey(out.Storage.Redis.Password)
	}
	out.Storage.Postgres.DSN = redactDSN(out.Storage.Postgres.DSN)
	if len(cfg.API.Headers) > 0 {
		out.API.Headers = make(map[string]string, len(cfg.API.Headers))
		for k, v := range cfg.API.Headers {
			out.API.Headers[k] = maskKey(v)
		}
	}
	return out
}

// checkSecret checks if a secret is set and where it came from.
func checkSecret(name, value, envVar string) SecretStatus {
	status := SecretStatus{
		Name:  name,
		IsSet: value != "",
	}

	if value != "" {
		if os.Getenv(envVar) != "" {
			status.Source = SourceEnv
		} else {
			status.Source = SourceConfig
		}
		status.Masked = maskKey(value)
	} else {
		status.Source = SourceNone
	}

	return status
}

// maskKey masks a secret for display, showing only first 3 and last 3 chars.
func maskKey(key string) string {
	if len(key) <= 8 {
		return "***"
	}
	return key[:3] + "..." + key[len(key)-3:]
}

// redactDSN hides the password of a URL-style DSN. Key=value DSNs are
// masked whole.
func redactDSN(dsn string) string {
	if dsn == "" {
		return ""
	}
	u, err := url.Parse(dsn)
	if err != nil || u.Scheme == "" {
		return maskKey(dsn)
	}
	return u.Redacted()
}
