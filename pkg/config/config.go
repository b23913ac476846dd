package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds the credentials and endpoints for one Marketing Cloud account.
// Values are immutable once loaded; the client never mutates them.
type Config struct {
	ClientID     string
	ClientSecret string
	AuthURL      string
	RestBaseURL  string
	WSDLURL      string
	SoapEndpoint string
	AccountID    string
	Debug        bool
}

// fileProfile is one entry of a conf.json file. The file is a JSON object
// keyed by profile id, so one file can hold several business units.
type fileProfile struct {
	ClientID     string `json:"clientid"`
	ClientSecret string `json:"clientsecret"`
	AuthURL      string `json:"authenticationurl"`
	RestBaseURL  string `json:"baseapiurl"`
	WSDLURL      string `json:"defaultwsdl"`
	SoapEndpoint string `json:"soapendpoint"`
	AccountID    string `json:"accountid"`
}

// Load builds a Config from environment variables. A .env file in the
// working directory is honored when present.
func Load() (*Config, error) {
	// Try to load .env file, but don't fail if it doesn't exist
	_ = godotenv.Load()

	cfg := &Config{
		ClientID:     os.Getenv("SFMC_CLIENT_ID"),
		ClientSecret: os.Getenv("SFMC_CLIENT_SECRET"),
		AuthURL:      os.Getenv("SFMC_AUTH_URL"),
		RestBaseURL:  os.Getenv("SFMC_REST_URL"),
		WSDLURL:      os.Getenv("SFMC_WSDL_URL"),
		SoapEndpoint: os.Getenv("SFMC_SOAP_ENDPOINT"),
		AccountID:    os.Getenv("SFMC_ACCOUNT_ID"),
		Debug:        os.Getenv("SFMC_DEBUG") == "1",
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadFile reads the named profile from a conf.json file. Fields missing
// from the profile fall back to the corresponding environment variable,
// so a shared file can leave secrets to the environment.
func LoadFile(path, profile string) (*Config, error) {
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var profiles map[string]fileProfile
	if err := json.Unmarshal(data, &profiles); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	p, ok := profiles[profile]
	if !ok {
		return nil, fmt.Errorf("profile %q not found in %s", profile, path)
	}

	cfg := &Config{
		ClientID:     orEnv(p.ClientID, "SFMC_CLIENT_ID"),
		ClientSecret: orEnv(p.ClientSecret, "SFMC_CLIENT_SECRET"),
		AuthURL:      orEnv(p.AuthURL, "SFMC_AUTH_URL"),
		RestBaseURL:  orEnv(p.RestBaseURL, "SFMC_REST_URL"),
		WSDLURL:      orEnv(p.WSDLURL, "SFMC_WSDL_URL"),
		SoapEndpoint: orEnv(p.SoapEndpoint, "SFMC_SOAP_ENDPOINT"),
		AccountID:    orEnv(p.AccountID, "SFMC_ACCOUNT_ID"),
		Debug:        os.Getenv("SFMC_DEBUG") == "1",
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func orEnv(value, envKey string) string {
	if value != "" {
		return value
	}
	return os.Getenv(envKey)
}

func (c *Config) Validate() error {
	if c.ClientID == "" {
		return fmt.Errorf("SFMC_CLIENT_ID is required")
	}
	if c.ClientSecret == "" {
		return fmt.Errorf("SFMC_CLIENT_SECRET is required")
	}
	if c.AuthURL == "" {
		return fmt.Errorf("SFMC_AUTH_URL is required")
	}
	if c.RestBaseURL == "" {
		return fmt.Errorf("SFMC_REST_URL is required")
	}
	if c.SoapEndpoint == "" {
		return fmt.Errorf("SFMC_SOAP_ENDPOINT is required")
	}
	// WSDLURL and AccountID are optional: the SOAP endpoint is addressed
	// directly, and AccountID only scopes the token to a business unit.
	c.AuthURL = strings.TrimRight(c.AuthURL, "/")
	c.RestBaseURL = strings.TrimRight(c.RestBaseURL, "/")
	return nil
}
