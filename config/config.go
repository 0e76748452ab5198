package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"seatsync/shared"
)

// ReconnectConfig defines transport reconnect parameters
type ReconnectConfig struct {
	// MaxAttempts sets the max number of reconnect attempts before giving up
	MaxAttempts int `mapstructure:"max_attempts" json:"max_attempts" validate:"gte=1"`
	// InitialDelay is the delay before the first reconnect attempt
	InitialDelay time.Duration `mapstructure:"initial_delay" json:"initial_delay" validate:"gt=0"`
	// MaxDelay caps the exponential backoff between attempts
	MaxDelay time.Duration `mapstructure:"max_delay" json:"max_delay" validate:"gt=0"`
}

// RealtimeConfig defines parameters for the realtime channel
type RealtimeConfig struct {
	// URL is an explicit websocket URL override; when empty the URL is
	// derived from the API base URL
	URL string `mapstructure:"url" json:"url" validate:"omitempty,uri"`
	// HeartbeatInterval is the app-level ping period while connected
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval" json:"heartbeat_interval" validate:"gt=0"`
	// JoinTimeout bounds how long a room join waits for acknowledgment
	JoinTimeout time.Duration `mapstructure:"join_timeout" json:"join_timeout" validate:"gt=0"`
	// QueryTimeout bounds how long a seat-status query waits for a response
	QueryTimeout time.Duration `mapstructure:"query_timeout" json:"query_timeout" validate:"gt=0"`
	// Reconnect defines the transport reconnect policy
	Reconnect ReconnectConfig `mapstructure:"reconnect" json:"reconnect" validate:"required"`
}

// Config is the complete client configuration
type Config struct {
	// APIURL is the storefront HTTP API base URL
	APIURL string `mapstructure:"api_url" json:"api_url" validate:"required,uri"`
	// Realtime holds the realtime channel parameters
	Realtime RealtimeConfig `mapstructure:"realtime" json:"realtime" validate:"required"`
	// PaymentPublishableKey is handed to the payment widget untouched
	PaymentPublishableKey string `mapstructure:"payment_publishable_key" json:"payment_publishable_key"`
	// StateFile is the path of the persisted client state file; empty
	// selects the per-user default
	StateFile string `mapstructure:"state_file" json:"state_file"`
}

// InstallDefaultConfigValues installs default config parameters in viper
func InstallDefaultConfigValues() {
	viper.SetDefault("api_url", shared.DefaultAPIURL)
	viper.SetDefault("realtime.url", "")
	viper.SetDefault("realtime.heartbeat_interval", shared.HeartbeatInterval)
	viper.SetDefault("realtime.join_timeout", shared.JoinTimeout)
	viper.SetDefault("realtime.query_timeout", shared.QueryTimeout)
	viper.SetDefault("realtime.reconnect.max_attempts", shared.ReconnectMaxAttempts)
	viper.SetDefault("realtime.reconnect.initial_delay", shared.ReconnectInitialDelay)
	viper.SetDefault("realtime.reconnect.max_delay", shared.ReconnectMaxDelay)
	viper.SetDefault("payment_publishable_key", "")
	viper.SetDefault("state_file", "")
}

// Load builds the configuration from defaults and SEATSYNC_* environment
// variables, then validates it
func Load() (*Config, error) {
	InstallDefaultConfigValues()
	viper.SetEnvPrefix("seatsync")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	validate := validator.New()
	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// RealtimeURL resolves the websocket endpoint: the explicit override wins,
// otherwise the API base URL is rewritten to the matching ws scheme, and as
// a last resort the hardcoded local default is used.
func (c *Config) RealtimeURL() string {
	if c.Realtime.URL != "" {
		return c.Realtime.URL
	}
	if derived, err := deriveRealtimeURL(c.APIURL); err == nil {
		return derived
	}
	return shared.DefaultRealtimeURL
}

func deriveRealtimeURL(apiURL string) (string, error) {
	parsed, err := url.Parse(apiURL)
	if err != nil {
		return "", err
	}
	if parsed.Host == "" {
		return "", fmt.Errorf("no host in API URL %q", apiURL)
	}
	scheme := "ws"
	if parsed.Scheme == "https" {
		scheme = "wss"
	}
	return scheme + "://" + parsed.Host, nil
}
