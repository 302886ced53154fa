package infra

import (
	"fmt"
)

// Credentials holds the exchange key material for signed calls.
// Loaded once at bootstrap and wiped on shutdown.
type Credentials struct {
	APIKey    string
	APISecret string
}

// CredentialsFromConfig extracts key material after env overrides ran.
// Fails fast in live mode; paper mode works unauthenticated.
func CredentialsFromConfig(cfg *Config) (Credentials, error) {
	creds := Credentials{
		APIKey:    cfg.API.Mexc.APIKey,
		APISecret: cfg.API.Mexc.APISecret,
	}
	if cfg.Trading.Mode == ModeLive && (creds.APIKey == "" || creds.APISecret == "") {
		return Credentials{}, fmt.Errorf("live mode requires MEXC_API_KEY and MEXC_API_SECRET")
	}
	// Keep the plaintext out of the long-lived config object.
	cfg.API.Mexc.APIKey = ""
	cfg.API.Mexc.APISecret = ""
	return creds, nil
}

// IsZero reports whether no key material is present.
func (c *Credentials) IsZero() bool {
	return c.APIKey == "" && c.APISecret == ""
}

// Wipe best-effort clears key material from memory.
func (c *Credentials) Wipe() {
	c.APIKey = ""
	c.APISecret = ""
}
