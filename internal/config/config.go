package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the application configuration, read from environment variables
// with an optional YAML file underneath.
type Config struct {
	Server struct {
		Address           string        `mapstructure:"address"`
		ReadTimeout       time.Duration `mapstructure:"read_timeout"`
		WriteTimeout      time.Duration `mapstructure:"write_timeout"`
		IdleTimeout       time.Duration `mapstructure:"idle_timeout"`
		ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout"`
		MaxBodyBytes      int64         `mapstructure:"max_body_bytes"`
		RateLimitPerSec   int           `mapstructure:"rate_limit_per_sec"`
		RateLimitBurst    int           `mapstructure:"rate_limit_burst"`
	} `mapstructure:"server"`

	Database struct {
		DSN string `mapstructure:"dsn"`
	} `mapstructure:"database"`

	Session struct {
		// Secret signs and verifies the HS256 session tokens issued by the
		// platform's identity service.
		Secret string `mapstructure:"secret"`
		Issuer string `mapstructure:"issuer"`
	} `mapstructure:"session"`
}

// Load reads configuration from env/file with defaults.
func Load() (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("NEXTEACH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("server.address", ":8080")
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 15*time.Second)
	v.SetDefault("server.idle_timeout", 60*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("server.max_body_bytes", int64(1<<20))
	v.SetDefault("server.rate_limit_per_sec", 50)
	v.SetDefault("server.rate_limit_burst", 100)
	v.SetDefault("database.dsn", "")
	v.SetDefault("session.secret", "")
	v.SetDefault("session.issuer", "nexteach-identity")

	if cfgFile := os.Getenv("NEXTEACH_CONFIG_FILE"); cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/nexteach")
	}

	// A missing file is fine; a broken one is not.
	if err := v.ReadInConfig(); err != nil {
		var nf viper.ConfigFileNotFoundError
		if !errors.As(err, &nf) && !os.IsNotExist(err) {
			return nil, fmt.Errorf("config read error: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config unmarshal error: %w", err)
	}
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func validate(c *Config) error {
	if strings.TrimSpace(c.Server.Address) == "" {
		return errors.New("server.address must not be empty")
	}
	if c.Server.MaxBodyBytes <= 0 {
		return errors.New("server.max_body_bytes must be positive")
	}
	return nil
}
