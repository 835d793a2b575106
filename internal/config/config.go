// Package config holds the training workflow configuration.
//
// Values come from an optional YAML file overridden by LABFLEET_* environment
// variables. Validation is eager: a bad value fails the run before any
// platform mutation is issued.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/labfleet/labfleet/internal/ipcodec"
)

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config is the full workflow configuration.
type Config struct {
	// AutomationAPIURL and AutomationAPIToken locate and authenticate the
	// vendor automation API.
	AutomationAPIURL   string `yaml:"automation_api_url"`
	AutomationAPIToken string `yaml:"automation_api_token"`

	// PortalBaseURL is the training portal prefix student links are built on.
	PortalBaseURL string `yaml:"portal_base_url"`

	// TokenAPIHost and TokenAPIPort locate the token microservice.
	TokenAPIHost string `yaml:"token_api_host"`
	TokenAPIPort int    `yaml:"token_api_port"`

	// AdminUser/AdminPassword are the platform admin credentials used for
	// token issuance.
	AdminUser     string `yaml:"admin_user"`
	AdminPassword string `yaml:"admin_password"`

	// Domain is the platform domain the training runs in.
	Domain string `yaml:"domain"`

	// BlueprintPath is the topology path trainee sandboxes are reserved
	// from. Required for instructor-mode setup.
	BlueprintPath string `yaml:"blueprint_path"`

	// IncrementOctet selects which octet trainee IP offsets move
	// (/24, /16 or /8).
	IncrementOctet string `yaml:"increment_octet"`

	// IPIncrement is the per-trainee address increment. Trainee N gets
	// N*IPIncrement added to the selected octet.
	IPIncrement int `yaml:"ip_increment"`

	// PollIntervalSeconds is the reservation status poll interval.
	PollIntervalSeconds int `yaml:"poll_interval_seconds"`

	// MaxWaitMinutes bounds how long one trainee sandbox may take to
	// become ready before the wait is abandoned.
	MaxWaitMinutes int `yaml:"max_wait_minutes"`

	// MonitorPort is the local monitor API port.
	MonitorPort int `yaml:"monitor_port"`

	// MonitorAPIKey guards the monitor API when set.
	MonitorAPIKey string `yaml:"monitor_api_key"`
}

// Default returns the configuration baseline.
func Default() Config {
	return Config{
		TokenAPIPort:        82,
		IncrementOctet:      string(ipcodec.OctetSlash24),
		IPIncrement:         10,
		PollIntervalSeconds: 10,
		MaxWaitMinutes:      120,
		MonitorPort:         8080,
	}
}

// Load reads the config file (when path is non-empty), applies env
// overrides and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return cfg, fmt.Errorf("parsing config file: %w", err)
		}
	}

	overrideFromEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func overrideFromEnv(cfg *Config) {
	setString := func(key string, dst *string) {
		if val := os.Getenv(key); val != "" {
			*dst = val
		}
	}
	setInt := func(key string, dst *int) {
		if val := os.Getenv(key); val != "" {
			if n, err := strconv.Atoi(val); err == nil {
				*dst = n
			}
		}
	}

	setString("LABFLEET_AUTOMATION_API_URL", &cfg.AutomationAPIURL)
	setString("LABFLEET_AUTOMATION_API_TOKEN", &cfg.AutomationAPIToken)
	setString("LABFLEET_PORTAL_BASE_URL", &cfg.PortalBaseURL)
	setString("LABFLEET_TOKEN_API_HOST", &cfg.TokenAPIHost)
	setInt("LABFLEET_TOKEN_API_PORT", &cfg.TokenAPIPort)
	setString("LABFLEET_ADMIN_USER", &cfg.AdminUser)
	setString("LABFLEET_ADMIN_PASSWORD", &cfg.AdminPassword)
	setString("LABFLEET_DOMAIN", &cfg.Domain)
	setString("LABFLEET_BLUEPRINT_PATH", &cfg.BlueprintPath)
	setString("LABFLEET_INCREMENT_OCTET", &cfg.IncrementOctet)
	setInt("LABFLEET_IP_INCREMENT", &cfg.IPIncrement)
	setInt("LABFLEET_POLL_INTERVAL_SECONDS", &cfg.PollIntervalSeconds)
	setInt("LABFLEET_MAX_WAIT_MINUTES", &cfg.MaxWaitMinutes)
	setInt("LABFLEET_MONITOR_PORT", &cfg.MonitorPort)
	setString("LABFLEET_MONITOR_API_KEY", &cfg.MonitorAPIKey)
}

// Validate rejects values that would corrupt addressing or hang the
// workflow. Nothing is silently defaulted here; Default() already did that.
func (c *Config) Validate() error {
	if _, err := ipcodec.ValidateOctet(c.IncrementOctet); err != nil {
		return fmt.Errorf("%w: increment_octet: %v", ErrInvalidConfig, err)
	}
	if c.IPIncrement <= 0 || c.IPIncrement > 255 {
		return fmt.Errorf("%w: ip_increment must be in 1..255, got %d", ErrInvalidConfig, c.IPIncrement)
	}
	if c.TokenAPIPort <= 0 || c.TokenAPIPort > 65535 {
		return fmt.Errorf("%w: token_api_port must be in 1..65535, got %d", ErrInvalidConfig, c.TokenAPIPort)
	}
	if c.PollIntervalSeconds <= 0 {
		return fmt.Errorf("%w: poll_interval_seconds must be positive, got %d", ErrInvalidConfig, c.PollIntervalSeconds)
	}
	if c.MaxWaitMinutes <= 0 {
		return fmt.Errorf("%w: max_wait_minutes must be positive, got %d", ErrInvalidConfig, c.MaxWaitMinutes)
	}
	if c.MonitorPort <= 0 || c.MonitorPort > 65535 {
		return fmt.Errorf("%w: monitor_port must be in 1..65535, got %d", ErrInvalidConfig, c.MonitorPort)
	}
	return nil
}

// Octet returns the typed increment octet. Validate must have passed.
func (c *Config) Octet() ipcodec.Octet {
	return ipcodec.Octet(c.IncrementOctet)
}
